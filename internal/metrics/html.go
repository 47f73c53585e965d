package metrics

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// HTMLReporter renders a JSONReport as a standalone HTML page.
type HTMLReporter struct {
	tmpl *template.Template
}

// NewHTMLReporter parses the report template.
func NewHTMLReporter() *HTMLReporter {
	return &HTMLReporter{
		tmpl: template.Must(template.New("report").Funcs(template.FuncMap{
			"pct":  func(f float64) string { return fmt.Sprintf("%.2f%%", f*100) },
			"ms":   func(f float64) string { return fmt.Sprintf("%.2f", f) },
			"dur":  func(d Duration) string { return formatDuration(d.Duration) },
			"size": formatBytes,
		}).Parse(htmlTemplate)),
	}
}

// htmlView is the template input.
type htmlView struct {
	*JSONReport
	Title       string
	GeneratedAt string
	StartTime   string
	EndTime     string
	StatusCodes []statusRow
	ChecksTotal int64
	Passed      bool
}

type statusRow struct {
	Code    string
	Count   int64
	Percent string
}

// GenerateHTML renders report.
func (r *HTMLReporter) GenerateHTML(report *JSONReport) ([]byte, error) {
	view := htmlView{
		JSONReport:  report,
		Title:       "Load Test Report - " + report.Configuration.Name,
		GeneratedAt: report.Metadata.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"),
		StartTime:   report.Summary.StartTime.Format(time.DateTime),
		EndTime:     report.Summary.EndTime.Format(time.DateTime),
		StatusCodes: statusRows(report.StatusCodes, report.Summary.HTTPReqs),
		Passed:      report.Thresholds == nil || report.Thresholds.AllPassed,
	}
	for _, c := range report.Checks {
		view.ChecksTotal += c.Passes + c.Fails
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("executing HTML template: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteHTMLToFile writes the rendered report and returns the expanded path.
func (r *HTMLReporter) WriteHTMLToFile(report *JSONReport, path string) (string, error) {
	expanded := filepath.Clean(ExpandPathTemplate(path, time.Now()))
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	data, err := r.GenerateHTML(report)
	if err != nil {
		return "", fmt.Errorf("generating HTML report: %w", err)
	}
	if err := os.WriteFile(expanded, data, 0o644); err != nil {
		return "", fmt.Errorf("writing HTML report file: %w", err)
	}
	return expanded, nil
}

func statusRows(codes map[string]int64, total int64) []statusRow {
	rows := make([]statusRow, 0, len(codes))
	for code, count := range codes {
		pct := 0.0
		if total > 0 {
			pct = float64(count) / float64(total) * 100
		}
		rows = append(rows, statusRow{Code: code, Count: count, Percent: strconv.FormatFloat(pct, 'f', 1, 64) + "%"})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Code < rows[j].Code })
	return rows
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; margin: 2rem; color: #222; }
h1 { margin-bottom: 0.2rem; }
.meta { color: #666; margin-bottom: 1.5rem; }
.cards { display: flex; flex-wrap: wrap; gap: 1rem; margin-bottom: 2rem; }
.card { border: 1px solid #ddd; border-radius: 6px; padding: 0.8rem 1.2rem; min-width: 9rem; }
.card .value { font-size: 1.4rem; font-weight: 600; }
.card .label { color: #666; font-size: 0.85rem; }
table { border-collapse: collapse; margin-bottom: 2rem; min-width: 40rem; }
th, td { border-bottom: 1px solid #eee; padding: 0.4rem 0.8rem; text-align: left; }
th { background: #f6f6f6; }
.pass { color: #1a7f37; }
.fail { color: #cf222e; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="meta">
  {{.Configuration.Scenario}} against {{.Configuration.TargetBaseURL}}
  &middot; run {{.Metadata.RunID}} &middot; generated {{.GeneratedAt}} by {{.Metadata.Generator}} {{.Metadata.Version}}
  {{if .Configuration.Description}}<br>{{.Configuration.Description}}{{end}}
</div>

<h2 class="{{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}&#10003; Thresholds passed{{else}}&#10007; Thresholds failed{{end}}</h2>

<div class="cards">
  <div class="card"><div class="value">{{.Summary.HTTPReqs}}</div><div class="label">http_reqs</div></div>
  <div class="card"><div class="value">{{pct .Summary.HTTPReqFailed}}</div><div class="label">http_req_failed</div></div>
  <div class="card"><div class="value">{{printf "%.2f" .Summary.QPS}}/s</div><div class="label">request rate</div></div>
  <div class="card"><div class="value">{{ms .Summary.HTTPReqDuration.P95Ms}} ms</div><div class="label">p(95) duration</div></div>
  <div class="card"><div class="value">{{pct .Summary.ChecksRate}}</div><div class="label">checks</div></div>
  <div class="card"><div class="value">{{.Summary.Iterations}}</div><div class="label">iterations</div></div>
  <div class="card"><div class="value">{{size .Summary.DataReceived}}</div><div class="label">data received</div></div>
  <div class="card"><div class="value">{{dur .Summary.Duration}}</div><div class="label">{{.StartTime}} to {{.EndTime}}</div></div>
</div>

<h2>Stages</h2>
<table>
<tr><th>#</th><th>Duration</th><th>Target VUs</th></tr>
{{range $i, $s := .Configuration.Stages}}<tr><td>{{$i}}</td><td>{{dur $s.Duration}}</td><td>{{$s.Target}}</td></tr>
{{end}}</table>

{{if .Thresholds}}
<h2>Thresholds</h2>
<table>
<tr><th>Metric</th><th>Expression</th><th>Actual</th><th>Result</th></tr>
{{range .Thresholds.Results}}<tr><td>{{.Metric}}</td><td>{{.Expr}}</td><td>{{printf "%.4g" .Actual}}</td><td class="{{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}pass{{else}}fail{{end}}</td></tr>
{{end}}</table>
{{end}}

<h2>Checks ({{.ChecksTotal}})</h2>
<table>
<tr><th>Check</th><th>Passes</th><th>Fails</th></tr>
{{range .Checks}}<tr><td>{{.Name}}</td><td class="pass">{{.Passes}}</td><td class="{{if .Fails}}fail{{end}}">{{.Fails}}</td></tr>
{{else}}<tr><td colspan="3">no checks</td></tr>
{{end}}</table>

<h2>http_req_duration (ms)</h2>
<table>
<tr><th>min</th><th>avg</th><th>med</th><th>p(90)</th><th>p(95)</th><th>p(99)</th><th>max</th></tr>
{{with .Summary.HTTPReqDuration}}<tr><td>{{ms .MinMs}}</td><td>{{ms .AvgMs}}</td><td>{{ms .MedMs}}</td><td>{{ms .P90Ms}}</td><td>{{ms .P95Ms}}</td><td>{{ms .P99Ms}}</td><td>{{ms .MaxMs}}</td></tr>{{end}}
</table>

<h2>Requests</h2>
<table>
<tr><th>Name</th><th>Total</th><th>Failed</th><th>Failed rate</th><th>min</th><th>avg</th><th>p(95)</th><th>max</th></tr>
{{range .Requests}}<tr><td>{{.Name}}</td><td>{{.TotalRequests}}</td><td>{{.FailedRequests}}</td><td>{{pct .FailedRate}}</td><td>{{ms .MinMs}}</td><td>{{ms .AvgMs}}</td><td>{{ms .P95Ms}}</td><td>{{ms .MaxMs}}</td></tr>
{{end}}</table>

<h2>Status codes</h2>
<table>
<tr><th>Status</th><th>Count</th><th>Share</th></tr>
{{range .StatusCodes}}<tr><td>{{.Code}}</td><td>{{.Count}}</td><td>{{.Percent}}</td></tr>
{{end}}</table>
</body>
</html>
`
