package reporting

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"time"

	"github.com/meinzeug/autodevai-sub008/internal/loadtest"
)

var dashboardTemplate = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"ms":      func(v float64) string { return fmt.Sprintf("%.1f ms", v) },
	"pct":     func(v float64) string { return fmt.Sprintf("%.2f%%", v*100) },
	"change":  func(v float64) string { return fmt.Sprintf("%+.1f", v) },
	"rate":    func(v float64) string { return fmt.Sprintf("%.2f/s", v) },
	"mib":     func(v uint64) string { return fmt.Sprintf("%.1f MiB", float64(v)/(1<<20)) },
	"instant": func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Load test {{.Result.Scenario.TestSuite}} / {{.Result.RunID}}</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
table { border-collapse: collapse; margin-bottom: 1.5em; }
th, td { border: 1px solid #ccc; padding: 4px 10px; text-align: right; }
th:first-child, td:first-child { text-align: left; }
.status-pass { color: #1a7f37; }
.status-regression, .sev-high { color: #cf222e; font-weight: bold; }
.sev-medium { color: #9a6700; }
.sev-info { color: #0969da; }
</style>
</head>
<body>
<h1>Load test: {{.Result.Scenario.TestSuite}}</h1>
<p>Run {{.Result.RunID}} from {{instant .Result.StartTime}} to {{instant .Result.EndTime}},
{{.Result.Scenario.UserCount}} users over {{.Result.Scenario.TestDuration}} (ramp-up {{.Result.Scenario.RampUp}}).</p>
{{with .Result.Comparison}}<p>Baseline comparison: <span class="status-{{.Status}}">{{.Status}}</span>{{if .BaselineCreated}} (baseline created by this run){{end}}</p>{{end}}

<h2>Summary</h2>
{{with .Result.Statistics}}
<table>
<tr><th>Requests</th><th>Success rate</th><th>Error rate</th><th>Throughput</th><th>Avg</th><th>Median</th><th>P95</th><th>P99</th><th>Min</th><th>Max</th></tr>
<tr><td>{{.Count}}</td><td>{{pct .SuccessRate}}</td><td>{{pct .ErrorRate}}</td><td>{{rate .ThroughputPerSec}}</td>
<td>{{ms .ResponseTime.Avg}}</td><td>{{ms .ResponseTime.Median}}</td><td>{{ms .ResponseTime.P95}}</td><td>{{ms .ResponseTime.P99}}</td><td>{{ms .ResponseTime.Min}}</td><td>{{ms .ResponseTime.Max}}</td></tr>
</table>
{{end}}

{{if .Endpoints}}
<h2>Endpoints</h2>
<table>
<tr><th>Endpoint</th><th>Requests</th><th>Error rate</th><th>Avg</th><th>P95</th></tr>
{{range .Endpoints}}<tr><td>{{.Name}}</td><td>{{.Stats.Count}}</td><td>{{pct .Stats.ErrorRate}}</td><td>{{ms .Stats.ResponseTime.Avg}}</td><td>{{ms .Stats.ResponseTime.P95}}</td></tr>
{{end}}</table>
{{end}}

{{if .ActorTypes}}
<h2>Actors</h2>
<table>
<tr><th>Type</th><th>Sessions</th><th>Requests</th><th>Errors</th><th>Crashed</th></tr>
{{range .ActorTypes}}<tr><td>{{.ActorType}}</td><td>{{.Sessions}}</td><td>{{.Requests}}</td><td>{{.Errors}}</td><td>{{.Crashed}}</td></tr>
{{end}}</table>
{{end}}

{{with .Result.ResourceAnalysis}}{{if .SnapshotCount}}
<h2>Resources</h2>
<table>
<tr><th>Snapshots</th><th>Peak CPU</th><th>Avg CPU</th><th>Peak memory</th><th>Memory growth</th><th>Max active actors</th></tr>
<tr><td>{{.SnapshotCount}}</td><td>{{printf "%.1f%%" .PeakCPUPercent}}</td><td>{{printf "%.1f%%" .AvgCPUPercent}}</td><td>{{mib .PeakMemoryBytes}}</td><td>{{printf "%.1f%%" .MemoryGrowth}}</td><td>{{.MaxActiveActors}}</td></tr>
</table>
{{end}}{{end}}

{{if .Metrics}}
<h2>Baseline comparison</h2>
<table>
<tr><th>Metric</th><th>Baseline</th><th>Current</th><th>Change</th><th>Threshold</th><th>Result</th></tr>
{{range .Metrics}}<tr><td>{{.Metric}}</td><td>{{printf "%.3f" .Baseline}}</td><td>{{printf "%.3f" .Current}}</td><td>{{change .Change}}</td><td>{{printf "%.0f" .Threshold}}</td>
<td>{{if .Skipped}}skipped{{else if .IsRegression}}<span class="status-regression">regression</span>{{else if .IsImprovement}}improvement{{else}}ok{{end}}</td></tr>
{{end}}</table>
{{end}}

<h2>Alerts</h2>
{{if .Result.Alerts}}
<table>
<tr><th>Time</th><th>Type</th><th>Severity</th><th>Metric</th><th>Message</th></tr>
{{range .Result.Alerts}}<tr><td>{{instant .Timestamp}}</td><td>{{.Type}}</td><td class="sev-{{.Severity}}">{{.Severity}}</td><td>{{.Metric}}</td><td>{{.Message}}</td></tr>
{{end}}</table>
{{else}}<p>No alerts.</p>{{end}}
</body>
</html>
`))

type endpointRow struct {
	Name  string
	Stats loadtest.Statistics
}

type dashboardData struct {
	Result     *loadtest.LoadTestResult
	Endpoints  []endpointRow
	ActorTypes []*loadtest.ActorTypeSummary
	Metrics    []loadtest.MetricComparison
}

func exportHTML(result *loadtest.LoadTestResult) ([]byte, error) {
	data := dashboardData{Result: result}

	for name, stats := range result.EndpointStats {
		data.Endpoints = append(data.Endpoints, endpointRow{Name: name, Stats: stats})
	}
	sort.Slice(data.Endpoints, func(i, j int) bool { return data.Endpoints[i].Name < data.Endpoints[j].Name })

	for _, s := range result.SessionResults.ByType {
		data.ActorTypes = append(data.ActorTypes, s)
	}
	sort.Slice(data.ActorTypes, func(i, j int) bool { return data.ActorTypes[i].ActorType < data.ActorTypes[j].ActorType })

	if result.Comparison != nil {
		for _, m := range result.Comparison.Metrics {
			data.Metrics = append(data.Metrics, m)
		}
		sort.Slice(data.Metrics, func(i, j int) bool { return data.Metrics[i].Metric < data.Metrics[j].Metric })
	}

	var buf bytes.Buffer
	if err := dashboardTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
