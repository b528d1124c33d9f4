// internal/reporting/report.go
package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/meinzeug/autodevai-sub008/internal/loadtest"
)

// Export formats
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatHTML = "html"
)

var contentTypes = map[string]string{
	FormatJSON: "application/json",
	FormatCSV:  "text/csv",
	FormatHTML: "text/html; charset=utf-8",
}

// GeneratorConfig configures the report generator
type GeneratorConfig struct {
	Dir     string
	Formats []string
	Gzip    bool
}

// Validate checks configuration
func (c *GeneratorConfig) Validate() error {
	if c.Dir == "" {
		return errors.New("report: dir is required")
	}
	for _, f := range c.Formats {
		if _, ok := contentTypes[f]; !ok {
			return fmt.Errorf("report: unsupported format %q", f)
		}
	}
	return nil
}

// Artifact is one file written for a report.
type Artifact struct {
	Format      string `json:"format"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
	Compressed  bool   `json:"compressed"`
	Size        int64  `json:"size"`
}

// Report represents a generated report
type Report struct {
	ID        string     `json:"id"`
	RunID     string     `json:"run_id"`
	TestSuite string     `json:"test_suite"`
	CreatedAt time.Time  `json:"created_at"`
	Dir       string     `json:"dir"`
	Artifacts []Artifact `json:"artifacts"`
}

// ReportGenerator renders load test results to files
type ReportGenerator struct {
	config *GeneratorConfig
	logger *zap.Logger
}

// NewReportGenerator creates a report generator. A nil config writes every
// format to ./reports.
func NewReportGenerator(config *GeneratorConfig, logger *zap.Logger) (*ReportGenerator, error) {
	if config == nil {
		config = &GeneratorConfig{Dir: "./reports"}
	}
	if len(config.Formats) == 0 {
		config.Formats = []string{FormatJSON, FormatCSV, FormatHTML}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportGenerator{config: config, logger: logger}, nil
}

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func safeSegment(s string) string {
	s = unsafePathChars.ReplaceAllString(s, "_")
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}

// Generate writes every configured format for result into
// <dir>/<suite>/<run-id>/.
func (g *ReportGenerator) Generate(ctx context.Context, result *loadtest.LoadTestResult) (*Report, error) {
	if result == nil {
		return nil, errors.New("report: result is required")
	}

	report := &Report{
		ID:        uuid.New().String(),
		RunID:     result.RunID,
		TestSuite: result.Scenario.TestSuite,
		CreatedAt: time.Now().UTC(),
		Dir:       filepath.Join(g.config.Dir, safeSegment(result.Scenario.TestSuite), safeSegment(result.RunID)),
	}

	if err := os.MkdirAll(report.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	for _, format := range g.config.Formats {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := g.Export(result, format)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", format, err)
		}

		artifact := Artifact{
			Format:      format,
			Name:        "report." + format,
			ContentType: contentTypes[format],
		}
		if g.config.Gzip {
			if data, err = compress(data); err != nil {
				return nil, fmt.Errorf("compress %s: %w", format, err)
			}
			artifact.Name += ".gz"
			artifact.Compressed = true
		}
		artifact.Path = filepath.Join(report.Dir, artifact.Name)
		artifact.Size = int64(len(data))

		if err := os.WriteFile(artifact.Path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", artifact.Path, err)
		}
		report.Artifacts = append(report.Artifacts, artifact)

		g.logger.Info("report written",
			zap.String("run_id", result.RunID),
			zap.String("format", format),
			zap.String("path", artifact.Path),
			zap.Int64("bytes", artifact.Size))
	}

	return report, nil
}

// Export renders result in the given format
func (g *ReportGenerator) Export(result *loadtest.LoadTestResult, format string) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(result, "", "  ")
	case FormatCSV:
		return exportCSV(result)
	case FormatHTML:
		return exportHTML(result)
	default:
		return nil, fmt.Errorf("report: unsupported format %q", format)
	}
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
