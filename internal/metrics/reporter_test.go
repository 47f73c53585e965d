package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCollector() *Collector {
	c := NewCollector(DefaultCollectorConfig())
	c.Start()
	c.Record(Result{Name: "create employee", Method: "POST", StatusCode: 200, Latency: 100 * time.Millisecond, ResponseSize: 512})
	c.Record(Result{Name: "create employee", Method: "POST", StatusCode: 422, Latency: 300 * time.Millisecond})
	c.Record(Result{Name: "check employee id", Method: "GET", StatusCode: 200, Latency: 50 * time.Millisecond})
	c.RecordCheck("Create Employee Status is 200", true)
	c.RecordCheck("Create Employee Status is 200", false)
	c.RecordIteration(2*time.Second, nil)
	c.Stop()
	return c
}

func TestReporter_GenerateReport(t *testing.T) {
	c := sampleCollector()
	ts, err := ParseThresholds(map[string][]string{MetricHTTPReqFailed: {"rate<0.05"}})
	require.NoError(t, err)
	th := EvaluateThresholds(c, ts)

	report := NewReporter().GenerateReport(c.Snapshot(), ReportOptions{
		RunID:         "run-1",
		ConfigName:    "create-employee",
		Scenario:      "create-employee",
		TargetBaseURL: "http://hrm.local",
		TestDuration:  2 * time.Minute,
		MaxVUs:        10,
		Stages:        []StageReport{{Duration: Duration{time.Minute}, Target: 10}},
		Thresholds:    th,
	})

	assert.Equal(t, "run-1", report.Metadata.RunID)
	assert.Equal(t, "loadgen", report.Metadata.Generator)
	assert.Equal(t, "create-employee", report.Configuration.Scenario)
	assert.Equal(t, 10, report.Configuration.MaxVUs)
	assert.Equal(t, int64(3), report.Summary.HTTPReqs)
	assert.Equal(t, int64(1), report.Summary.FailedRequests)
	assert.Equal(t, int64(512), report.Summary.DataReceived)
	assert.InDelta(t, 0.5, report.Summary.ChecksRate, 1e-9)
	assert.InDelta(t, 2000, report.Summary.IterationAvgMs, 0.001)
	assert.InDelta(t, 50, report.Summary.HTTPReqDuration.MinMs, 0.001)
	assert.InDelta(t, 300, report.Summary.HTTPReqDuration.MaxMs, 0.001)

	require.Len(t, report.Requests, 2)
	assert.Equal(t, "check employee id", report.Requests[0].Name)
	assert.Equal(t, "create employee", report.Requests[1].Name)
	assert.InDelta(t, 0.5, report.Requests[1].FailedRate, 1e-9)

	assert.Equal(t, map[string]int64{"200": 2, "422": 1}, report.StatusCodes)
	require.Len(t, report.Checks, 1)
	require.NotNil(t, report.Thresholds)
	assert.False(t, report.Thresholds.AllPassed)
}

func TestReporter_EmptySnapshotHasNoNullArrays(t *testing.T) {
	r := NewReporter()
	data, err := r.ToJSON(r.GenerateReport(Snapshot{}, ReportOptions{}))
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `"checks": []`)
	assert.Contains(t, s, `"requests": []`)
	assert.Contains(t, s, `"stages": []`)
	assert.NotContains(t, s, `"thresholds"`)
}

func TestReporter_WriteToFile(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter()
	report := r.GenerateReport(sampleCollector().Snapshot(), ReportOptions{Scenario: "login"})

	path, err := r.WriteToFile(report, filepath.Join(dir, "results", "{{.Timestamp}}-login.json"))
	require.NoError(t, err)
	assert.NotContains(t, path, "{{")
	assert.True(t, strings.HasSuffix(path, "-login.json"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded JSONReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "login", decoded.Configuration.Scenario)
	assert.Equal(t, int64(3), decoded.Summary.HTTPReqs)
	assert.InDelta(t, report.Summary.Duration.Seconds(), decoded.Summary.Duration.Seconds(), 1e-6)
}

func TestExpandPathTemplate(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	assert.Equal(t, "results/20240309-140507-login.json", ExpandPathTemplate("results/{{.Timestamp}}-login.json", now))
	assert.Equal(t, "2024-03-09/140507.json", ExpandPathTemplate("{{.Date}}/{{.Time}}.json", now))
	assert.Equal(t, "plain.json", ExpandPathTemplate("plain.json", now))
}

func TestDuration_JSON(t *testing.T) {
	data, err := json.Marshal(Duration{90 * time.Second})
	require.NoError(t, err)
	assert.JSONEq(t, `{"seconds":90,"display":"1m30s"}`, string(data))

	var d Duration
	require.NoError(t, json.Unmarshal(data, &d))
	assert.Equal(t, 90*time.Second, d.Duration)
}
