package reporting

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"

	"github.com/meinzeug/autodevai-sub008/internal/loadtest"
)

var csvHeader = []string{"timestamp", "actorId", "actorType", "endpoint", "responseTimeMs", "statusCode"}

// exportCSV writes one row per measurement.
func exportCSV(result *loadtest.LoadTestResult) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}

	for _, m := range result.Measurements {
		row := []string{
			m.Timestamp.UTC().Format(time.RFC3339Nano),
			m.ActorID,
			m.ActorType,
			m.Endpoint,
			strconv.FormatFloat(m.ResponseTimeMs, 'f', 3, 64),
			strconv.Itoa(m.StatusCode),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}
