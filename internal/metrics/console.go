package metrics

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Console prints a progress line while a run is going and a k6-like summary
// when it ends.
//
// Thread Safety: Safe for concurrent use.
type Console struct {
	mu sync.Mutex

	writer io.Writer
	config ConsoleConfig

	isRunning bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// ConsoleConfig holds configuration for console output.
type ConsoleConfig struct {
	// Writer is the output destination. Default: os.Stdout
	Writer io.Writer

	// RefreshInterval is how often a progress line is printed. Default: 10s
	RefreshInterval time.Duration

	// ShowRequestStats adds the per-request-name table to the summary.
	ShowRequestStats bool

	// UseColors enables ANSI color codes.
	UseColors bool

	// TotalDuration is the expected run length, used for the percentage.
	TotalDuration time.Duration
}

// DefaultConsoleConfig returns default configuration.
func DefaultConsoleConfig() ConsoleConfig {
	return ConsoleConfig{
		Writer:           os.Stdout,
		RefreshInterval:  10 * time.Second,
		ShowRequestStats: true,
		UseColors:        true,
	}
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

// NewConsole creates a console output handler.
func NewConsole(config ConsoleConfig) *Console {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = 10 * time.Second
	}
	return &Console{
		writer: config.Writer,
		config: config,
	}
}

func (c *Console) color(code string) string {
	if c.config.UseColors {
		return code
	}
	return ""
}

// Start prints a progress line every RefreshInterval until Stop.
// phase describes the current stage; it may be nil.
func (c *Console) Start(collector *Collector, phase func() string) {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return
	}
	c.isRunning = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.mu.Unlock()

	go c.updateLoop(collector, phase)
}

// Stop stops progress output and waits for the loop to exit.
func (c *Console) Stop() {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return
	}
	c.isRunning = false
	close(c.stopCh)
	c.mu.Unlock()

	<-c.doneCh
}

func (c *Console) updateLoop(collector *Collector, phase func() string) {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			p := ""
			if phase != nil {
				p = phase()
			}
			c.PrintProgress(collector.Snapshot(), p)
		}
	}
}

// PrintProgress prints one progress line.
func (c *Console) PrintProgress(s Snapshot, phase string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := formatDuration(s.Duration)
	if c.config.TotalDuration > 0 {
		pct := s.Duration.Seconds() / c.config.TotalDuration.Seconds() * 100
		if pct > 100 {
			pct = 100
		}
		elapsed = fmt.Sprintf("%s/%s (%3.0f%%)", elapsed, formatDuration(c.config.TotalDuration), pct)
	}

	line := fmt.Sprintf("%s[%s]%s reqs=%d failed=%s%.2f%%%s qps=%.1f p95=%s iters=%d",
		c.color(colorDim), elapsed, c.color(colorReset),
		s.TotalRequests,
		c.color(failedRateColor(s.FailedRate)), s.FailedRate*100, c.color(colorReset),
		s.QPS, formatLatency(s.P95Latency), s.Iterations)
	if phase != "" {
		line += " " + c.color(colorCyan) + phase + c.color(colorReset)
	}
	fmt.Fprintln(c.writer, line)
}

// PrintSummary prints the end-of-run summary. thresholds may be nil.
func (c *Console) PrintSummary(s Snapshot, thresholds *ThresholdResults) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := c.writer
	fmt.Fprintln(w)

	if len(s.Checks) > 0 {
		for _, ch := range s.Checks {
			total := ch.Passes + ch.Fails
			mark, col := "✓", colorGreen
			if ch.Fails > 0 {
				mark, col = "✗", colorRed
			}
			fmt.Fprintf(w, "     %s%s %s%s\n", c.color(col), mark, ch.Name, c.color(colorReset))
			if ch.Fails > 0 {
				fmt.Fprintf(w, "      %s↳  %.0f%% - ✓ %d / ✗ %d%s\n",
					c.color(colorDim), float64(ch.Passes)/float64(total)*100, ch.Passes, ch.Fails, c.color(colorReset))
			}
		}
		fmt.Fprintln(w)
	}

	failed := thresholdIndex(thresholds)

	c.metricLine(w, MetricChecks, failed, fmt.Sprintf("%.2f%% ✓ %d ✗ %d",
		s.ChecksRate()*100, s.ChecksPassed, s.ChecksFailed))
	c.metricLine(w, "data_received", nil, formatBytes(s.TotalBytes))
	c.metricLine(w, MetricHTTPReqDuration, failed, fmt.Sprintf(
		"avg=%s min=%s med=%s max=%s p(90)=%s p(95)=%s",
		formatLatency(s.AvgLatency), formatLatency(s.MinLatency), formatLatency(s.MedLatency),
		formatLatency(s.MaxLatency), formatLatency(s.P90Latency), formatLatency(s.P95Latency)))
	c.metricLine(w, MetricHTTPReqFailed, failed, fmt.Sprintf("%.2f%% ✓ %d ✗ %d",
		s.FailedRate*100, s.FailedRequests, s.TotalRequests-s.FailedRequests))
	c.metricLine(w, MetricHTTPReqs, failed, fmt.Sprintf("%d %.2f/s", s.TotalRequests, s.QPS))
	c.metricLine(w, MetricIterationDuration, failed, fmt.Sprintf("avg=%s", formatLatency(s.AvgIteration)))
	iterRate := 0.0
	if s.Duration > 0 {
		iterRate = float64(s.Iterations) / s.Duration.Seconds()
	}
	c.metricLine(w, MetricIterations, failed, fmt.Sprintf("%d %.2f/s", s.Iterations, iterRate))

	if len(s.StatusCodes) > 0 {
		codes := make([]int, 0, len(s.StatusCodes))
		for code := range s.StatusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		parts := make([]string, 0, len(codes))
		for _, code := range codes {
			label := fmt.Sprintf("%d", code)
			if code == 0 {
				label = "error"
			}
			parts = append(parts, fmt.Sprintf("%s%s%s=%d",
				c.color(statusCodeColor(code)), label, c.color(colorReset), s.StatusCodes[code]))
		}
		fmt.Fprintf(w, "     %-24s %s\n", "status_codes", strings.Join(parts, " "))
	}

	if c.config.ShowRequestStats && len(s.EndpointStats) > 0 {
		fmt.Fprintln(w)
		names := make([]string, 0, len(s.EndpointStats))
		for name := range s.EndpointStats {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(w, "     %s%-30s %8s %8s %10s %10s%s\n", c.color(colorBold),
			"request", "count", "failed", "avg", "p(95)", c.color(colorReset))
		for _, name := range names {
			st := s.EndpointStats[name]
			fmt.Fprintf(w, "     %-30s %8d %7.2f%% %10s %10s\n",
				truncate(name, 30), st.TotalRequests, st.FailedRate*100,
				formatLatency(st.AvgLatency), formatLatency(st.P95Latency))
		}
	}

	if thresholds != nil && len(thresholds.Results) > 0 {
		fmt.Fprintln(w)
		col := colorGreen
		if !thresholds.AllPassed {
			col = colorRed
		}
		fmt.Fprintf(w, "     %s%s%s\n", c.color(col), thresholds.Summary(), c.color(colorReset))
		for _, r := range thresholds.FailedResults() {
			fmt.Fprintf(w, "     %s✗ %s: %s (actual %.4g)%s\n",
				c.color(colorRed), r.Metric, r.Expr, r.Actual, c.color(colorReset))
		}
	}
	fmt.Fprintln(w)
}

func (c *Console) metricLine(w io.Writer, name string, failed map[string]bool, value string) {
	mark := " "
	if failed != nil {
		if bad, ok := failed[name]; ok {
			mark = c.color(colorGreen) + "✓" + c.color(colorReset)
			if bad {
				mark = c.color(colorRed) + "✗" + c.color(colorReset)
			}
		}
	}
	fmt.Fprintf(w, "   %s %s%s\n", mark, padDots(name, 24), value)
}

// thresholdIndex maps metric name to whether any of its thresholds failed.
func thresholdIndex(r *ThresholdResults) map[string]bool {
	out := map[string]bool{}
	if r == nil {
		return out
	}
	for _, res := range r.Results {
		out[res.Metric] = out[res.Metric] || !res.Passed
	}
	return out
}

func padDots(s string, width int) string {
	if len(s) >= width {
		return s + ": "
	}
	return s + strings.Repeat(".", width-len(s)) + ": "
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func failedRateColor(rate float64) string {
	switch {
	case rate == 0:
		return colorGreen
	case rate < 0.01:
		return colorYellow
	default:
		return colorRed
	}
}

func statusCodeColor(code int) string {
	switch {
	case code >= 200 && code < 300:
		return colorGreen
	case code >= 300 && code < 400:
		return colorCyan
	case code >= 400 && code < 500:
		return colorYellow
	default:
		return colorRed
	}
}

func formatLatency(d time.Duration) string {
	switch {
	case d == 0:
		return "0s"
	case d < time.Millisecond:
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1e3)
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "kMGTPE"[exp])
}
