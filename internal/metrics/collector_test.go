package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult_Failed(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   bool
	}{
		{name: "200", result: Result{StatusCode: 200}},
		{name: "302 redirect", result: Result{StatusCode: 302}},
		{name: "399", result: Result{StatusCode: 399}},
		{name: "400", result: Result{StatusCode: 400}, want: true},
		{name: "500", result: Result{StatusCode: 500}, want: true},
		{name: "199", result: Result{StatusCode: 199}, want: true},
		{name: "transport error", result: Result{Error: errors.New("connection refused")}, want: true},
		{name: "error with status", result: Result{StatusCode: 200, Error: errors.New("read body")}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.Failed())
		})
	}
}

func TestCollector_Record(t *testing.T) {
	c := NewCollector(DefaultCollectorConfig())
	c.Start()

	c.Record(Result{Name: "login", Method: "POST", StatusCode: 302, Latency: 10 * time.Millisecond, ResponseSize: 100})
	c.Record(Result{Name: "login", Method: "POST", StatusCode: 200, Latency: 20 * time.Millisecond, ResponseSize: 50})
	c.Record(Result{Name: "create employee", Method: "POST", StatusCode: 422, Latency: 30 * time.Millisecond})
	c.Record(Result{Name: "create employee", Method: "POST", Error: errors.New("timeout"), Latency: 40 * time.Millisecond})
	c.Stop()

	s := c.Snapshot()
	assert.Equal(t, int64(4), s.TotalRequests)
	assert.Equal(t, int64(2), s.FailedRequests)
	assert.Equal(t, int64(150), s.TotalBytes)
	assert.InDelta(t, 0.5, s.FailedRate, 1e-9)
	assert.Equal(t, 10*time.Millisecond, s.MinLatency)
	assert.Equal(t, 40*time.Millisecond, s.MaxLatency)
	assert.Equal(t, 25*time.Millisecond, s.AvgLatency)
	assert.Equal(t, 25*time.Millisecond, s.MedLatency)

	assert.Equal(t, map[int]int64{200: 1, 302: 1, 422: 1}, s.StatusCodes)

	require.Contains(t, s.EndpointStats, "login")
	require.Contains(t, s.EndpointStats, "create employee")
	login := s.EndpointStats["login"]
	assert.Equal(t, int64(2), login.TotalRequests)
	assert.Zero(t, login.FailedRequests)
	assert.Equal(t, 15*time.Millisecond, login.AvgLatency)
	assert.InDelta(t, 1.0, s.EndpointStats["create employee"].FailedRate, 1e-9)

	assert.False(t, s.EndTime.IsZero())
	assert.Positive(t, s.QPS)
}

func TestCollector_EndpointStatsDisabled(t *testing.T) {
	c := NewCollector(CollectorConfig{})
	c.Record(Result{Name: "login", StatusCode: 200})
	assert.Empty(t, c.Snapshot().EndpointStats)
}

func TestCollector_Checks(t *testing.T) {
	c := NewCollector(DefaultCollectorConfig())

	c.RecordCheck("status is 200 or 302", true)
	c.RecordCheck("status is 200 or 302", true)
	c.RecordCheck("status is 200 or 302", false)
	c.RecordCheck("Create Employee Status is 200", true)

	s := c.Snapshot()
	assert.Equal(t, []CheckSnapshot{
		{Name: "Create Employee Status is 200", Passes: 1},
		{Name: "status is 200 or 302", Passes: 2, Fails: 1},
	}, s.Checks)
	assert.Equal(t, int64(3), s.ChecksPassed)
	assert.Equal(t, int64(1), s.ChecksFailed)
	assert.InDelta(t, 0.75, s.ChecksRate(), 1e-9)

	// checks never move the failed rate
	assert.Zero(t, s.FailedRate)
}

func TestSnapshot_ChecksRateEmpty(t *testing.T) {
	assert.Zero(t, Snapshot{}.ChecksRate())
}

func TestCollector_Iterations(t *testing.T) {
	c := NewCollector(DefaultCollectorConfig())
	c.RecordIteration(100*time.Millisecond, nil)
	c.RecordIteration(300*time.Millisecond, errors.New("boom"))

	s := c.Snapshot()
	assert.Equal(t, int64(2), s.Iterations)
	assert.Equal(t, int64(1), s.FailedIterations)
	assert.Equal(t, 200*time.Millisecond, s.AvgIteration)

	minD, avgD, maxD := c.IterationStats()
	assert.Equal(t, 100*time.Millisecond, minD)
	assert.Equal(t, 200*time.Millisecond, avgD)
	assert.Equal(t, 300*time.Millisecond, maxD)
	assert.Equal(t, int64(2), c.Iterations())
}

func TestCollector_Percentile(t *testing.T) {
	c := NewCollector(DefaultCollectorConfig())
	assert.Zero(t, c.Percentile(95))

	for i := 1; i <= 10; i++ {
		c.Record(Result{StatusCode: 200, Latency: time.Duration(i) * time.Millisecond})
	}

	assert.Equal(t, time.Millisecond, c.Percentile(0))
	assert.Equal(t, 10*time.Millisecond, c.Percentile(100))
	assert.InDelta(t, float64(5500*time.Microsecond), float64(c.Percentile(50)), float64(time.Microsecond))
	assert.InDelta(t, float64(9100*time.Microsecond), float64(c.Percentile(90)), float64(time.Microsecond))
	assert.InDelta(t, float64(9550*time.Microsecond), float64(c.Percentile(95)), float64(time.Microsecond))
}

func TestCollector_WindowKeepsRecentSamples(t *testing.T) {
	c := NewCollector(CollectorConfig{MaxLatencies: 10})
	for i := 1; i <= 25; i++ {
		c.Record(Result{StatusCode: 200, Latency: time.Duration(i) * time.Millisecond})
	}

	s := c.Snapshot()
	assert.Equal(t, int64(25), s.TotalRequests)
	assert.Equal(t, 25*time.Millisecond, s.MaxLatency)
	assert.Greater(t, s.MinLatency, 10*time.Millisecond)
}

func TestCollector_Reset(t *testing.T) {
	c := NewCollector(DefaultCollectorConfig())
	c.Start()
	c.Record(Result{Name: "login", StatusCode: 500})
	c.RecordCheck("x", false)
	c.RecordIteration(time.Second, nil)

	c.Reset()

	s := c.Snapshot()
	assert.Zero(t, s.TotalRequests)
	assert.Zero(t, s.FailedRequests)
	assert.Zero(t, s.Iterations)
	assert.Empty(t, s.Checks)
	assert.Empty(t, s.StatusCodes)
	assert.Empty(t, s.EndpointStats)
	assert.Zero(t, c.Duration())
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector(DefaultCollectorConfig())
	c.Start()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				c.Record(Result{Name: "login", StatusCode: 200 + (i%2)*300, Latency: time.Millisecond})
				c.RecordCheck("ok", i%2 == 0)
				_ = c.Snapshot()
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	assert.Equal(t, int64(2000), s.TotalRequests)
	assert.Equal(t, int64(1000), s.FailedRequests)
	assert.Equal(t, int64(1000), s.ChecksPassed)
	assert.Equal(t, int64(2000), s.EndpointStats["login"].TotalRequests)
}
