package metrics

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ExitCodeThresholdsFailed is the process exit code when any threshold fails.
const ExitCodeThresholdsFailed = 99

// Built-in metric names.
const (
	MetricHTTPReqDuration   = "http_req_duration"
	MetricHTTPReqFailed     = "http_req_failed"
	MetricHTTPReqs          = "http_reqs"
	MetricChecks            = "checks"
	MetricIterations        = "iterations"
	MetricIterationDuration = "iteration_duration"
)

// ErrInvalidThreshold is returned by ParseThreshold.
var ErrInvalidThreshold = errors.New("metrics: invalid threshold")

type metricKind int

const (
	kindTrend metricKind = iota
	kindRate
	kindCounter
)

var metricKinds = map[string]metricKind{
	MetricHTTPReqDuration:   kindTrend,
	MetricIterationDuration: kindTrend,
	MetricHTTPReqFailed:     kindRate,
	MetricChecks:            kindRate,
	MetricHTTPReqs:          kindCounter,
	MetricIterations:        kindCounter,
}

var thresholdRe = regexp.MustCompile(`^\s*(avg|min|max|med|count|rate|p\(\s*(\d+(?:\.\d+)?)\s*\))\s*(<=|>=|==|!=|<|>)\s*(-?\d+(?:\.\d+)?)\s*$`)

// Threshold is one parsed expression such as p(95)<500.
type Threshold struct {
	Metric string
	Expr   string
	// Aggregation is avg, min, max, med, count, rate or p.
	Aggregation string
	// Percentile is set when Aggregation is p.
	Percentile float64
	Operator   string
	Value      float64
}

// ParseThreshold parses expr for metric. Trend values are in milliseconds.
func ParseThreshold(metric, expr string) (Threshold, error) {
	kind, ok := metricKinds[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("%w: unknown metric %q", ErrInvalidThreshold, metric)
	}
	m := thresholdRe.FindStringSubmatch(expr)
	if m == nil {
		return Threshold{}, fmt.Errorf("%w: cannot parse %q", ErrInvalidThreshold, expr)
	}

	t := Threshold{Metric: metric, Expr: strings.TrimSpace(expr), Aggregation: m[1], Operator: m[3]}
	if m[2] != "" {
		t.Aggregation = "p"
		t.Percentile, _ = strconv.ParseFloat(m[2], 64)
		if t.Percentile < 0 || t.Percentile > 100 {
			return Threshold{}, fmt.Errorf("%w: percentile out of range in %q", ErrInvalidThreshold, expr)
		}
	}
	t.Value, _ = strconv.ParseFloat(m[4], 64)

	allowed := map[metricKind][]string{
		kindTrend:   {"avg", "min", "max", "med", "p"},
		kindRate:    {"rate"},
		kindCounter: {"count", "rate"},
	}[kind]
	for _, a := range allowed {
		if a == t.Aggregation {
			return t, nil
		}
	}
	return Threshold{}, fmt.Errorf("%w: %s is not available on %s", ErrInvalidThreshold, t.Aggregation, metric)
}

// ParseThresholds parses a metric -> expressions map in a stable order.
func ParseThresholds(m map[string][]string) ([]Threshold, error) {
	metrics := make([]string, 0, len(m))
	for name := range m {
		metrics = append(metrics, name)
	}
	sort.Strings(metrics)

	var out []Threshold
	for _, name := range metrics {
		for _, expr := range m[name] {
			t, err := ParseThreshold(name, expr)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
	}
	return out, nil
}

// ThresholdResult is the outcome of one threshold.
type ThresholdResult struct {
	Metric string  `json:"metric"`
	Expr   string  `json:"expr"`
	Passed bool    `json:"passed"`
	Actual float64 `json:"actual"`
}

// ThresholdResults holds every evaluated threshold.
type ThresholdResults struct {
	Results     []ThresholdResult `json:"results"`
	PassedCount int               `json:"passed"`
	FailedCount int               `json:"failed"`
	AllPassed   bool              `json:"allPassed"`
}

// FailedResults returns only the failed thresholds.
func (r *ThresholdResults) FailedResults() []ThresholdResult {
	failed := make([]ThresholdResult, 0, r.FailedCount)
	for _, res := range r.Results {
		if !res.Passed {
			failed = append(failed, res)
		}
	}
	return failed
}

// Summary returns a one-line summary.
func (r *ThresholdResults) Summary() string {
	total := len(r.Results)
	if total == 0 {
		return "No thresholds configured"
	}
	s := fmt.Sprintf("Thresholds: %d/%d passed", r.PassedCount, total)
	if r.FailedCount > 0 {
		s += fmt.Sprintf(" (%d FAILED)", r.FailedCount)
	}
	return s
}

// ExitCode is 0 when every threshold passed, else ExitCodeThresholdsFailed.
func (r *ThresholdResults) ExitCode() int {
	if r.AllPassed {
		return 0
	}
	return ExitCodeThresholdsFailed
}

// EvaluateThresholds evaluates ts against the collector's current data.
func EvaluateThresholds(c *Collector, ts []Threshold) *ThresholdResults {
	snap := c.Snapshot()
	results := &ThresholdResults{Results: make([]ThresholdResult, 0, len(ts))}

	for _, t := range ts {
		actual := t.actual(c, snap)
		passed := compare(actual, t.Operator, t.Value)
		results.Results = append(results.Results, ThresholdResult{
			Metric: t.Metric,
			Expr:   t.Expr,
			Passed: passed,
			Actual: actual,
		})
		if passed {
			results.PassedCount++
		} else {
			results.FailedCount++
		}
	}
	results.AllPassed = results.FailedCount == 0
	return results
}

func (t Threshold) actual(c *Collector, s Snapshot) float64 {
	switch t.Metric {
	case MetricHTTPReqDuration:
		switch t.Aggregation {
		case "avg":
			return ms(s.AvgLatency.Nanoseconds())
		case "min":
			return ms(s.MinLatency.Nanoseconds())
		case "max":
			return ms(s.MaxLatency.Nanoseconds())
		case "med":
			return ms(c.Percentile(50).Nanoseconds())
		default:
			return ms(c.Percentile(t.Percentile).Nanoseconds())
		}
	case MetricIterationDuration:
		minD, avgD, maxD := c.IterationStats()
		switch t.Aggregation {
		case "avg":
			return ms(avgD.Nanoseconds())
		case "min":
			return ms(minD.Nanoseconds())
		case "max":
			return ms(maxD.Nanoseconds())
		case "med":
			return ms(c.IterationPercentile(50).Nanoseconds())
		default:
			return ms(c.IterationPercentile(t.Percentile).Nanoseconds())
		}
	case MetricHTTPReqFailed:
		return s.FailedRate
	case MetricChecks:
		return s.ChecksRate()
	case MetricHTTPReqs:
		if t.Aggregation == "count" {
			return float64(s.TotalRequests)
		}
		return s.QPS
	case MetricIterations:
		if t.Aggregation == "count" {
			return float64(s.Iterations)
		}
		if s.Duration > 0 {
			return float64(s.Iterations) / s.Duration.Seconds()
		}
	}
	return 0
}

func ms(ns int64) float64 {
	return float64(ns) / 1e6
}

func compare(actual float64, op string, value float64) bool {
	switch op {
	case "<":
		return actual < value
	case "<=":
		return actual <= value
	case ">":
		return actual > value
	case ">=":
		return actual >= value
	case "==":
		return actual == value
	case "!=":
		return actual != value
	}
	return false
}
