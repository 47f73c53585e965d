// Package metrics collects what a load run measures, evaluates k6-style
// thresholds over it and reports it to the console, a JSON file and Prometheus.
package metrics

import (
	"maps"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Collector aggregates request results, checks and iterations.
//
// A request counts as failed when it had a transport error or its status is
// outside [200, 400), the way k6 computes http_req_failed. Checks are tracked
// separately and never affect the failed rate.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Collector struct {
	mu sync.RWMutex

	totalRequests  atomic.Int64
	failedRequests atomic.Int64
	totalBytes     atomic.Int64

	latencies    *window
	maxLatencies int

	endpointStats   map[string]*EndpointStats
	endpointStatsMu sync.RWMutex

	statusCodes   map[int]int64
	statusCodesMu sync.RWMutex

	checks   map[string]*checkCounter
	checksMu sync.RWMutex

	iterations        atomic.Int64
	failedIterations  atomic.Int64
	iterationDuration *window

	startTime time.Time
	endTime   time.Time

	config CollectorConfig
}

// CollectorConfig holds configuration for the metrics collector.
type CollectorConfig struct {
	// MaxLatencies is the number of samples kept for percentiles.
	// Default: 100000
	MaxLatencies int

	// EnableEndpointStats enables per-endpoint statistics.
	EnableEndpointStats bool
}

const (
	defaultMaxLatencies         = 100000
	defaultEndpointMaxLatencies = 10000
)

// DefaultCollectorConfig returns default configuration.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		MaxLatencies:        defaultMaxLatencies,
		EnableEndpointStats: true,
	}
}

// Result is one HTTP request as seen by a virtual user.
type Result struct {
	// Name tags the request, e.g. "login" or "create employee".
	Name         string
	Method       string
	StatusCode   int
	Latency      time.Duration
	ResponseSize int64
	Timestamp    time.Time
	Error        error
}

// Failed reports whether r counts towards http_req_failed.
func (r Result) Failed() bool {
	return r.Error != nil || !ExpectedStatus(r.StatusCode)
}

// ExpectedStatus is k6's default expected_statuses range.
func ExpectedStatus(code int) bool {
	return code >= 200 && code < 400
}

// EndpointStats holds statistics for one request name.
type EndpointStats struct {
	mu sync.Mutex

	Name           string
	TotalRequests  int64
	FailedRequests int64
	TotalLatencyNs int64
	MinLatency     time.Duration
	MaxLatency     time.Duration
	latencies      *window
}

type checkCounter struct {
	passes atomic.Int64
	fails  atomic.Int64
}

// CheckSnapshot is the tally of one named check.
type CheckSnapshot struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// Snapshot is a point-in-time copy of all metrics.
type Snapshot struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	TotalRequests  int64
	FailedRequests int64
	TotalBytes     int64
	// FailedRate is http_req_failed, 0..1.
	FailedRate float64
	QPS        float64

	MinLatency time.Duration
	AvgLatency time.Duration
	MedLatency time.Duration
	P90Latency time.Duration
	P95Latency time.Duration
	P99Latency time.Duration
	MaxLatency time.Duration

	StatusCodes   map[int]int64
	EndpointStats map[string]*EndpointSnapshot

	// Checks are ordered by name.
	Checks       []CheckSnapshot
	ChecksPassed int64
	ChecksFailed int64

	Iterations       int64
	FailedIterations int64
	AvgIteration     time.Duration
}

// ChecksRate is the passing fraction of all checks, 0 when none ran.
func (s Snapshot) ChecksRate() float64 {
	total := s.ChecksPassed + s.ChecksFailed
	if total == 0 {
		return 0
	}
	return float64(s.ChecksPassed) / float64(total)
}

// EndpointSnapshot is a point-in-time copy of one EndpointStats.
type EndpointSnapshot struct {
	Name           string
	TotalRequests  int64
	FailedRequests int64
	MinLatency     time.Duration
	AvgLatency     time.Duration
	P95Latency     time.Duration
	MaxLatency     time.Duration
	FailedRate     float64
}

// NewCollector creates a new metrics collector.
func NewCollector(config CollectorConfig) *Collector {
	if config.MaxLatencies <= 0 {
		config.MaxLatencies = defaultMaxLatencies
	}
	return &Collector{
		latencies:         newWindow(config.MaxLatencies),
		maxLatencies:      config.MaxLatencies,
		endpointStats:     make(map[string]*EndpointStats),
		statusCodes:       make(map[int]int64),
		checks:            make(map[string]*checkCounter),
		iterationDuration: newWindow(config.MaxLatencies),
		config:            config,
	}
}

// Start marks the beginning of metrics collection.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()
	c.endTime = time.Time{}
}

// Stop marks the end of metrics collection.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endTime = time.Now()
}

// Record records a request result.
func (c *Collector) Record(result Result) {
	c.totalRequests.Add(1)
	failed := result.Failed()
	if failed {
		c.failedRequests.Add(1)
	}
	c.totalBytes.Add(result.ResponseSize)
	c.latencies.add(result.Latency.Nanoseconds())

	if result.StatusCode > 0 {
		c.statusCodesMu.Lock()
		c.statusCodes[result.StatusCode]++
		c.statusCodesMu.Unlock()
	}

	if c.config.EnableEndpointStats && result.Name != "" {
		c.recordEndpoint(result, failed)
	}
}

// RecordCheck counts one evaluation of a named check.
func (c *Collector) RecordCheck(name string, passed bool) {
	c.checksMu.RLock()
	cc, ok := c.checks[name]
	c.checksMu.RUnlock()
	if !ok {
		c.checksMu.Lock()
		if cc, ok = c.checks[name]; !ok {
			cc = &checkCounter{}
			c.checks[name] = cc
		}
		c.checksMu.Unlock()
	}
	if passed {
		cc.passes.Add(1)
	} else {
		cc.fails.Add(1)
	}
}

// RecordIteration counts one completed iteration.
func (c *Collector) RecordIteration(d time.Duration, err error) {
	c.iterations.Add(1)
	if err != nil {
		c.failedIterations.Add(1)
	}
	c.iterationDuration.add(d.Nanoseconds())
}

func (c *Collector) recordEndpoint(result Result, failed bool) {
	c.endpointStatsMu.Lock()
	stats, ok := c.endpointStats[result.Name]
	if !ok {
		stats = &EndpointStats{
			Name:      result.Name,
			latencies: newWindow(defaultEndpointMaxLatencies),
		}
		c.endpointStats[result.Name] = stats
	}
	c.endpointStatsMu.Unlock()

	stats.mu.Lock()
	defer stats.mu.Unlock()

	stats.TotalRequests++
	if failed {
		stats.FailedRequests++
	}
	stats.TotalLatencyNs += result.Latency.Nanoseconds()
	if stats.MinLatency == 0 || result.Latency < stats.MinLatency {
		stats.MinLatency = result.Latency
	}
	if result.Latency > stats.MaxLatency {
		stats.MaxLatency = result.Latency
	}
	stats.latencies.add(result.Latency.Nanoseconds())
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	startTime, endTime := c.startTime, c.endTime
	c.mu.RUnlock()

	s := Snapshot{
		StartTime:        startTime,
		EndTime:          endTime,
		Duration:         c.Duration(),
		TotalRequests:    c.totalRequests.Load(),
		FailedRequests:   c.failedRequests.Load(),
		TotalBytes:       c.totalBytes.Load(),
		StatusCodes:      c.copyStatusCodes(),
		Iterations:       c.iterations.Load(),
		FailedIterations: c.failedIterations.Load(),
	}

	if s.TotalRequests > 0 {
		s.FailedRate = float64(s.FailedRequests) / float64(s.TotalRequests)
	}
	if s.Duration > 0 {
		s.QPS = float64(s.TotalRequests) / s.Duration.Seconds()
	}

	sorted := c.latencies.sorted()
	if n := len(sorted); n > 0 {
		s.MinLatency = time.Duration(sorted[0])
		s.MaxLatency = time.Duration(sorted[n-1])
		s.AvgLatency = time.Duration(mean(sorted))
		s.MedLatency = time.Duration(percentile(sorted, 50))
		s.P90Latency = time.Duration(percentile(sorted, 90))
		s.P95Latency = time.Duration(percentile(sorted, 95))
		s.P99Latency = time.Duration(percentile(sorted, 99))
	}
	if iter := c.iterationDuration.sorted(); len(iter) > 0 {
		s.AvgIteration = time.Duration(mean(iter))
	}

	s.EndpointStats = c.copyEndpointStats()
	s.Checks = c.copyChecks()
	for _, ck := range s.Checks {
		s.ChecksPassed += ck.Passes
		s.ChecksFailed += ck.Fails
	}
	return s
}

// Percentile returns the p-th percentile (0..100) of request latency.
func (c *Collector) Percentile(p float64) time.Duration {
	sorted := c.latencies.sorted()
	if len(sorted) == 0 {
		return 0
	}
	return time.Duration(percentile(sorted, p))
}

// IterationPercentile returns the p-th percentile of iteration duration.
func (c *Collector) IterationPercentile(p float64) time.Duration {
	sorted := c.iterationDuration.sorted()
	if len(sorted) == 0 {
		return 0
	}
	return time.Duration(percentile(sorted, p))
}

// IterationStats returns min, avg and max iteration duration.
func (c *Collector) IterationStats() (minD, avgD, maxD time.Duration) {
	sorted := c.iterationDuration.sorted()
	if len(sorted) == 0 {
		return 0, 0, 0
	}
	return time.Duration(sorted[0]), time.Duration(mean(sorted)), time.Duration(sorted[len(sorted)-1])
}

func (c *Collector) copyStatusCodes() map[int]int64 {
	c.statusCodesMu.RLock()
	defer c.statusCodesMu.RUnlock()
	out := make(map[int]int64, len(c.statusCodes))
	maps.Copy(out, c.statusCodes)
	return out
}

func (c *Collector) copyChecks() []CheckSnapshot {
	c.checksMu.RLock()
	defer c.checksMu.RUnlock()
	out := make([]CheckSnapshot, 0, len(c.checks))
	for name, cc := range c.checks {
		out = append(out, CheckSnapshot{Name: name, Passes: cc.passes.Load(), Fails: cc.fails.Load()})
	}
	slices.SortFunc(out, func(a, b CheckSnapshot) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

func (c *Collector) copyEndpointStats() map[string]*EndpointSnapshot {
	c.endpointStatsMu.RLock()
	defer c.endpointStatsMu.RUnlock()
	out := make(map[string]*EndpointSnapshot, len(c.endpointStats))
	for name, stats := range c.endpointStats {
		out[name] = stats.snapshot()
	}
	return out
}

func (s *EndpointStats) snapshot() *EndpointSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &EndpointSnapshot{
		Name:           s.Name,
		TotalRequests:  s.TotalRequests,
		FailedRequests: s.FailedRequests,
		MinLatency:     s.MinLatency,
		MaxLatency:     s.MaxLatency,
	}
	if s.TotalRequests > 0 {
		snap.AvgLatency = time.Duration(s.TotalLatencyNs / s.TotalRequests)
		snap.FailedRate = float64(s.FailedRequests) / float64(s.TotalRequests)
	}
	if sorted := s.latencies.sorted(); len(sorted) > 0 {
		snap.P95Latency = time.Duration(percentile(sorted, 95))
	}
	return snap
}

// Reset clears all collected metrics.
func (c *Collector) Reset() {
	c.mu.Lock()
	c.startTime = time.Time{}
	c.endTime = time.Time{}
	c.mu.Unlock()

	c.totalRequests.Store(0)
	c.failedRequests.Store(0)
	c.totalBytes.Store(0)
	c.iterations.Store(0)
	c.failedIterations.Store(0)
	c.latencies.reset()
	c.iterationDuration.reset()

	c.statusCodesMu.Lock()
	c.statusCodes = make(map[int]int64)
	c.statusCodesMu.Unlock()

	c.endpointStatsMu.Lock()
	c.endpointStats = make(map[string]*EndpointStats)
	c.endpointStatsMu.Unlock()

	c.checksMu.Lock()
	c.checks = make(map[string]*checkCounter)
	c.checksMu.Unlock()
}

// TotalRequests returns the current request count.
func (c *Collector) TotalRequests() int64 {
	return c.totalRequests.Load()
}

// FailedRequests returns the current failed request count.
func (c *Collector) FailedRequests() int64 {
	return c.failedRequests.Load()
}

// Iterations returns the completed iteration count.
func (c *Collector) Iterations() int64 {
	return c.iterations.Load()
}

// Duration returns the elapsed duration since start.
func (c *Collector) Duration() time.Duration {
	c.mu.RLock()
	startTime, endTime := c.startTime, c.endTime
	c.mu.RUnlock()

	if startTime.IsZero() {
		return 0
	}
	if endTime.IsZero() {
		return time.Since(startTime)
	}
	return endTime.Sub(startTime)
}

// window keeps the most recent samples. When full it drops the older half.
type window struct {
	mu      sync.RWMutex
	samples []int64
	max     int
}

func newWindow(size int) *window {
	return &window{samples: make([]int64, 0, min(size, 1024)), max: size}
}

func (w *window) add(v int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) >= w.max {
		w.samples = append(w.samples[:0], w.samples[len(w.samples)-w.max/2:]...)
	}
	w.samples = append(w.samples, v)
}

func (w *window) sorted() []int64 {
	w.mu.RLock()
	out := slices.Clone(w.samples)
	w.mu.RUnlock()
	slices.Sort(out)
	return out
}

func (w *window) reset() {
	w.mu.Lock()
	w.samples = w.samples[:0]
	w.mu.Unlock()
}

func mean(sorted []int64) int64 {
	var sum int64
	for _, v := range sorted {
		sum += v
	}
	return sum / int64(len(sorted))
}

// percentile interpolates linearly between closest ranks, as k6 trends do.
func percentile(sorted []int64, p float64) int64 {
	n := len(sorted)
	if n == 1 || p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	rank := float64(n-1) * p / 100
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + int64(frac*float64(sorted[hi]-sorted[lo]))
}
