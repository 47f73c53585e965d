package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// JSONReport is the machine-readable summary written at the end of a run.
type JSONReport struct {
	Metadata      ReportMetadata      `json:"metadata"`
	Configuration ReportConfiguration `json:"configuration"`
	Summary       ReportSummary       `json:"summary"`

	// Requests are grouped by request name, sorted.
	Requests    []RequestReport   `json:"requests"`
	StatusCodes map[string]int64  `json:"statusCodes"`
	Checks      []CheckSnapshot   `json:"checks"`
	Thresholds  *ThresholdResults `json:"thresholds,omitempty"`
}

// ReportMetadata identifies the run.
type ReportMetadata struct {
	Version     string    `json:"version"`
	RunID       string    `json:"runId,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
	Generator   string    `json:"generator"`
}

// ReportConfiguration captures the run options.
type ReportConfiguration struct {
	Name          string        `json:"name"`
	Scenario      string        `json:"scenario"`
	Description   string        `json:"description,omitempty"`
	TargetBaseURL string        `json:"targetBaseURL"`
	Duration      Duration      `json:"duration"`
	MaxVUs        int           `json:"maxVUs"`
	Stages        []StageReport `json:"stages"`
	RPS           float64       `json:"rps,omitempty"`
}

// StageReport is one ramp stage.
type StageReport struct {
	Duration Duration `json:"duration"`
	Target   int      `json:"target"`
}

// Duration wraps time.Duration for JSON serialization.
type Duration struct {
	time.Duration
}

// MarshalJSON implements json.Marshaler for Duration.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"seconds": d.Seconds(),
		"display": formatDuration(d.Duration),
	})
}

// UnmarshalJSON implements json.Unmarshaler for Duration.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if seconds, ok := obj["seconds"].(float64); ok {
		d.Duration = time.Duration(seconds * float64(time.Second))
	}
	return nil
}

// ReportSummary contains overall run statistics.
type ReportSummary struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Duration  Duration  `json:"duration"`

	HTTPReqs       int64   `json:"httpReqs"`
	HTTPReqFailed  float64 `json:"httpReqFailed"`
	FailedRequests int64   `json:"failedRequests"`
	DataReceived   int64   `json:"dataReceivedBytes"`
	QPS            float64 `json:"qps"`

	HTTPReqDuration LatencyStats `json:"httpReqDuration"`

	ChecksRate       float64 `json:"checksRate"`
	Iterations       int64   `json:"iterations"`
	FailedIterations int64   `json:"failedIterations"`
	IterationAvgMs   float64 `json:"iterationAvgMs"`
}

// LatencyStats contains latency statistics in milliseconds.
type LatencyStats struct {
	MinMs float64 `json:"minMs"`
	AvgMs float64 `json:"avgMs"`
	MedMs float64 `json:"medMs"`
	P90Ms float64 `json:"p90Ms"`
	P95Ms float64 `json:"p95Ms"`
	P99Ms float64 `json:"p99Ms"`
	MaxMs float64 `json:"maxMs"`
}

// RequestReport contains statistics for one request name.
type RequestReport struct {
	Name           string  `json:"name"`
	TotalRequests  int64   `json:"totalRequests"`
	FailedRequests int64   `json:"failedRequests"`
	FailedRate     float64 `json:"failedRate"`
	MinMs          float64 `json:"minMs"`
	AvgMs          float64 `json:"avgMs"`
	P95Ms          float64 `json:"p95Ms"`
	MaxMs          float64 `json:"maxMs"`
}

// ReportOptions carries what the snapshot does not know.
type ReportOptions struct {
	RunID         string
	ConfigName    string
	Scenario      string
	Description   string
	TargetBaseURL string
	TestDuration  time.Duration
	MaxVUs        int
	Stages        []StageReport
	RPS           float64
	Thresholds    *ThresholdResults
}

// Reporter generates JSON reports from run metrics.
type Reporter struct {
	version string
}

// NewReporter creates a new Reporter.
func NewReporter() *Reporter {
	return &Reporter{version: "1.0.0"}
}

// GenerateReport creates a JSON report from a snapshot.
func (r *Reporter) GenerateReport(snapshot Snapshot, opts ReportOptions) *JSONReport {
	statusCodes := make(map[string]int64, len(snapshot.StatusCodes))
	for code, count := range snapshot.StatusCodes {
		statusCodes[strconv.Itoa(code)] = count
	}
	checks := snapshot.Checks
	if checks == nil {
		checks = []CheckSnapshot{}
	}
	stages := opts.Stages
	if stages == nil {
		stages = []StageReport{}
	}

	return &JSONReport{
		Metadata: ReportMetadata{
			Version:     r.version,
			RunID:       opts.RunID,
			GeneratedAt: time.Now().UTC(),
			Generator:   "loadgen",
		},
		Configuration: ReportConfiguration{
			Name:          opts.ConfigName,
			Scenario:      opts.Scenario,
			Description:   opts.Description,
			TargetBaseURL: opts.TargetBaseURL,
			Duration:      Duration{opts.TestDuration},
			MaxVUs:        opts.MaxVUs,
			Stages:        stages,
			RPS:           opts.RPS,
		},
		Summary:     r.buildSummary(snapshot),
		Requests:    r.buildRequestReports(snapshot),
		StatusCodes: statusCodes,
		Checks:      checks,
		Thresholds:  opts.Thresholds,
	}
}

func (r *Reporter) buildSummary(s Snapshot) ReportSummary {
	return ReportSummary{
		StartTime:      s.StartTime,
		EndTime:        s.EndTime,
		Duration:       Duration{s.Duration},
		HTTPReqs:       s.TotalRequests,
		HTTPReqFailed:  s.FailedRate,
		FailedRequests: s.FailedRequests,
		DataReceived:   s.TotalBytes,
		QPS:            s.QPS,
		HTTPReqDuration: LatencyStats{
			MinMs: toMs(s.MinLatency),
			AvgMs: toMs(s.AvgLatency),
			MedMs: toMs(s.MedLatency),
			P90Ms: toMs(s.P90Latency),
			P95Ms: toMs(s.P95Latency),
			P99Ms: toMs(s.P99Latency),
			MaxMs: toMs(s.MaxLatency),
		},
		ChecksRate:       s.ChecksRate(),
		Iterations:       s.Iterations,
		FailedIterations: s.FailedIterations,
		IterationAvgMs:   toMs(s.AvgIteration),
	}
}

func (r *Reporter) buildRequestReports(s Snapshot) []RequestReport {
	names := make([]string, 0, len(s.EndpointStats))
	for name := range s.EndpointStats {
		names = append(names, name)
	}
	sort.Strings(names)

	reports := make([]RequestReport, 0, len(names))
	for _, name := range names {
		st := s.EndpointStats[name]
		reports = append(reports, RequestReport{
			Name:           name,
			TotalRequests:  st.TotalRequests,
			FailedRequests: st.FailedRequests,
			FailedRate:     st.FailedRate,
			MinMs:          toMs(st.MinLatency),
			AvgMs:          toMs(st.AvgLatency),
			P95Ms:          toMs(st.P95Latency),
			MaxMs:          toMs(st.MaxLatency),
		})
	}
	return reports
}

// ToJSON serializes a report to indented JSON.
func (r *Reporter) ToJSON(report *JSONReport) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

// WriteToFile writes a report and returns the path actually written.
// The path supports {{.Timestamp}} (YYYYMMDD-HHMMSS), {{.Date}} and {{.Time}}.
func (r *Reporter) WriteToFile(report *JSONReport, path string) (string, error) {
	expanded := filepath.Clean(ExpandPathTemplate(path, time.Now()))

	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	data, err := r.ToJSON(report)
	if err != nil {
		return "", fmt.Errorf("marshaling report to JSON: %w", err)
	}
	if err := os.WriteFile(expanded, data, 0o644); err != nil {
		return "", fmt.Errorf("writing report file: %w", err)
	}
	return expanded, nil
}

// ExpandPathTemplate substitutes the time placeholders in path.
func ExpandPathTemplate(path string, now time.Time) string {
	return strings.NewReplacer(
		"{{.Timestamp}}", now.Format("20060102-150405"),
		"{{.Date}}", now.Format("2006-01-02"),
		"{{.Time}}", now.Format("150405"),
	).Replace(path)
}

func toMs(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
