package reporting

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/meinzeug/autodevai-sub008/internal/loadtest"
)

// Summary renders a short plain-text overview of a run for terminals.
func Summary(result *loadtest.LoadTestResult) string {
	var b strings.Builder
	st := result.Statistics

	fmt.Fprintf(&b, "Load test %s (run %s)\n", result.Scenario.TestSuite, result.RunID)
	fmt.Fprintf(&b, "  duration:     %s\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Fprintf(&b, "  actors:       %d\n", len(result.SessionResults.Sessions))
	fmt.Fprintf(&b, "  requests:     %d (%.2f%% success, %.2f%% errors)\n", st.Count, st.SuccessRate*100, st.ErrorRate*100)
	fmt.Fprintf(&b, "  throughput:   %.2f req/s\n", st.ThroughputPerSec)
	fmt.Fprintf(&b, "  latency:      avg %.1fms  p50 %.1fms  p95 %.1fms  p99 %.1fms\n",
		st.ResponseTime.Avg, st.ResponseTime.Median, st.ResponseTime.P95, st.ResponseTime.P99)

	if ra := result.ResourceAnalysis; ra != nil && ra.SnapshotCount > 0 {
		fmt.Fprintf(&b, "  resources:    peak cpu %.1f%%  peak mem %.1f MiB  growth %.1f%%\n",
			ra.PeakCPUPercent, float64(ra.PeakMemoryBytes)/(1<<20), ra.MemoryGrowth)
	}

	if c := result.Comparison; c != nil {
		status := string(c.Status)
		if c.BaselineCreated {
			status += ", baseline created"
		}
		fmt.Fprintf(&b, "  baseline:     %s\n", status)

		names := make([]string, 0, len(c.Metrics))
		for name := range c.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			m := c.Metrics[name]
			if m.Skipped {
				continue
			}
			verdict := "ok"
			switch {
			case m.IsRegression:
				verdict = "REGRESSION"
			case m.IsImprovement:
				verdict = "improved"
			}
			fmt.Fprintf(&b, "    %-22s %12.3f -> %12.3f  (%+.1f)  %s\n", name, m.Baseline, m.Current, m.Change, verdict)
		}
	}

	if len(result.Alerts) > 0 {
		fmt.Fprintf(&b, "  alerts:       %d\n", len(result.Alerts))
		for _, a := range result.Alerts {
			fmt.Fprintf(&b, "    [%s/%s] %s\n", a.Type, a.Severity, a.Message)
		}
	}
	return b.String()
}
