// Package runner drives a load run end to end: setup, the ramping VU stages,
// graceful stop, then the summary, thresholds and reports.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/bootstrap"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/client"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/config"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/loadctrl"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/logger"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/metrics"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/scenario"
)

const defaultTick = 100 * time.Millisecond

// ErrAlreadyRunning is returned when Run is called twice concurrently.
var ErrAlreadyRunning = errors.New("runner: already running")

// Runner orchestrates one load run.
type Runner struct {
	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer

	collector *metrics.Collector
	exporter  *metrics.PrometheusExporter
	console   *metrics.Console
	reporter  *metrics.Reporter

	setupClient *client.Client
	vuClient    *client.Client
	limiter     *loadctrl.TokenBucketLimiter
	thresholds  []metrics.Threshold

	scenario scenario.Scenario
	tick     time.Duration
	signals  bool

	running atomic.Bool
}

// Result is the outcome of a run.
type Result struct {
	RunID          string
	Snapshot       metrics.Snapshot
	Thresholds     *metrics.ThresholdResults
	ReportPath     string
	HTMLReportPath string
	Interrupted    bool
	// Aborted is set when in-flight iterations outlived gracefulStop.
	Aborted bool
}

// ExitCode is 0, or 99 when a threshold failed.
func (r *Result) ExitCode() int {
	if r.Thresholds == nil {
		return 0
	}
	return r.Thresholds.ExitCode()
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithOutput sends the banner, progress and summary to w. Default: os.Stdout
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithScenario replaces the scenario cfg.Scenario would build.
func WithScenario(s scenario.Scenario) Option {
	return func(r *Runner) { r.scenario = s }
}

// WithTick sets how often the VU count is adjusted. Default: 100ms
func WithTick(d time.Duration) Option {
	return func(r *Runner) { r.tick = d }
}

// WithoutSignals leaves SIGINT and SIGTERM to the caller.
func WithoutSignals() Option {
	return func(r *Runner) { r.signals = false }
}

// New creates a runner for cfg. cfg must already be validated.
func New(cfg *config.Config, opts ...Option) (*Runner, error) {
	r := &Runner{
		cfg:      cfg,
		logger:   zap.NewNop(),
		out:      os.Stdout,
		reporter: metrics.NewReporter(),
		tick:     defaultTick,
		signals:  true,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tick <= 0 {
		r.tick = defaultTick
	}

	var err error
	r.thresholds, err = metrics.ParseThresholds(cfg.Thresholds)
	if err != nil {
		return nil, err
	}

	retry := client.RetryFromConfig(cfg.Retry)
	if r.setupClient, err = client.NewClient(cfg.Target, &retry); err != nil {
		return nil, fmt.Errorf("creating setup client: %w", err)
	}
	if r.vuClient, err = client.NewClient(cfg.Target, &retry); err != nil {
		return nil, fmt.Errorf("creating VU client: %w", err)
	}
	if cfg.RPS > 0 {
		r.limiter = loadctrl.NewTokenBucketLimiter(cfg.RPS, 0)
		r.vuClient.SetLimiter(r.limiter)
	}

	r.collector = metrics.NewCollector(metrics.DefaultCollectorConfig())

	consoleCfg := metrics.DefaultConsoleConfig()
	consoleCfg.Writer = r.out
	consoleCfg.RefreshInterval = cfg.Output.ReportInterval
	consoleCfg.TotalDuration = cfg.TotalDuration()
	consoleCfg.UseColors = r.out == os.Stdout
	r.console = metrics.NewConsole(consoleCfg)

	return r, nil
}

// Run executes the whole run. Errors are reserved for setup failures;
// failed thresholds are reported through Result.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if r.running.Swap(true) {
		return nil, ErrAlreadyRunning
	}
	defer r.running.Store(false)

	ctx, log, runID := logger.WithRunID(ctx, r.logger)
	res := &Result{RunID: runID}

	if r.cfg.Prometheus.Enabled {
		r.exporter = metrics.NewPrometheusExporter(metrics.PrometheusExporterConfig{
			Port:        r.cfg.Prometheus.Port,
			Path:        r.cfg.Prometheus.Path,
			ConstLabels: prometheus.Labels{"scenario": r.cfg.Scenario, "run_id": runID},
		})
		if err := r.exporter.Start(); err != nil {
			return nil, err
		}
		defer r.stopExporter(log)
		log.Info("prometheus metrics enabled", zap.String("address", r.exporter.Address()))
	}

	observe := r.observer()
	r.setupClient.SetObserver(observe)
	r.vuClient.SetObserver(observe)
	defer r.setupClient.CloseIdleConnections()
	defer r.vuClient.CloseIdleConnections()

	checks := &checkFanout{collector: r.collector, exporter: r.exporter}

	sc := r.scenario
	release := func() {}
	if sc == nil {
		fetcher, rel := bootstrap.FetcherFor(r.cfg, r.setupClient, log)
		release = rel
		var err error
		sc, err = scenario.New(r.cfg, scenario.Deps{
			Client:      r.vuClient,
			SetupClient: r.setupClient,
			Fetcher:     fetcher,
			Checks:      checks,
			Logger:      log,
		})
		if err != nil {
			release()
			return nil, err
		}
	}

	r.printBanner(runID)
	r.collector.Start()

	log.Info("running setup", zap.String("scenario", sc.Name()))
	err := sc.Setup(ctx)
	release()
	if err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}

	res.Interrupted, res.Aborted = r.runStages(ctx, log, sc)

	r.collector.Stop()
	res.Snapshot = r.collector.Snapshot()
	res.Thresholds = metrics.EvaluateThresholds(r.collector, r.thresholds)

	if r.exporter != nil {
		r.exporter.UpdateFromSnapshot(res.Snapshot)
		r.exporter.UpdateVUs(0, 0)
	}
	if r.cfg.WantsConsole() {
		r.console.PrintSummary(res.Snapshot, res.Thresholds)
	}
	log.Info("run finished",
		zap.Int64("http_reqs", res.Snapshot.TotalRequests),
		zap.Float64("http_req_failed", res.Snapshot.FailedRate),
		zap.Int64("iterations", res.Snapshot.Iterations),
		zap.Duration("p95", res.Snapshot.P95Latency),
		zap.String("thresholds", res.Thresholds.Summary()),
	)
	if r.limiter != nil {
		st := r.limiter.Stats()
		log.Info("rps cap",
			zap.Float64("rps", st.CurrentQPS),
			zap.Int64("acquired", st.TotalAcquired),
			zap.Duration("avg_wait", st.AvgWaitTime))
	}
	for _, f := range res.Thresholds.FailedResults() {
		log.Warn("threshold failed",
			zap.String("metric", f.Metric),
			zap.String("expr", f.Expr),
			zap.Float64("actual", f.Actual))
	}

	if !r.cfg.WantsJSON() && !r.cfg.WantsHTML() {
		return res, nil
	}
	report := r.reporter.GenerateReport(res.Snapshot, r.reportOptions(runID, res.Thresholds))
	if r.cfg.WantsJSON() {
		path, err := r.reporter.WriteToFile(report, r.cfg.Output.Path)
		if err != nil {
			log.Error("writing JSON report failed", zap.Error(err))
		} else {
			res.ReportPath = path
			log.Info("JSON report written", zap.String("path", path))
		}
	}
	if r.cfg.WantsHTML() {
		path, err := metrics.NewHTMLReporter().WriteHTMLToFile(report, r.cfg.Output.HTMLPath)
		if err != nil {
			log.Error("writing HTML report failed", zap.Error(err))
		} else {
			res.HTMLReportPath = path
			log.Info("HTML report written", zap.String("path", path))
		}
	}

	return res, nil
}

// runStages ramps VUs until the last stage ends or the run is interrupted,
// then stops them gracefully.
func (r *Runner) runStages(ctx context.Context, log *zap.Logger, sc scenario.Scenario) (interrupted, aborted bool) {
	shaper, err := loadctrl.NewStageShaper(r.cfg.StartVUs, r.cfg.Stages)
	if err != nil {
		log.Error("invalid stages", zap.Error(err))
		return false, false
	}

	iterCtx, cancelIterations := context.WithCancel(ctx)
	defer cancelIterations()

	pool := loadctrl.NewVUPool(sc.Iteration, shaper.MaxVUs(), func(vu int, d time.Duration, err error) {
		r.collector.RecordIteration(d, err)
		if r.exporter != nil {
			r.exporter.RecordIteration()
		}
		if err != nil && r.cfg.Output.Verbose {
			log.Debug("iteration failed", zap.Int("vu", vu), zap.Error(err))
		}
	})

	var sigCh chan os.Signal
	if r.signals {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
	}

	start := time.Now()
	phase := func() string { return shaper.Phase(time.Since(start)) }
	if r.cfg.WantsConsole() {
		r.console.Start(r.collector, phase)
		defer r.console.Stop()
	}

	pool.Start(iterCtx)
	pool.Resize(shaper.TargetVUs(0))

	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	interval := r.cfg.Output.ReportInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	progress := time.NewTicker(interval)
	defer progress.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			log.Warn("run cancelled", zap.Error(ctx.Err()))
			interrupted = true
			break loop
		case sig := <-sigCh:
			log.Warn("received signal, stopping", zap.String("signal", sig.String()))
			interrupted = true
			break loop
		case <-progress.C:
			stats := pool.Stats()
			log.Info("progress",
				zap.String("phase", phase()),
				zap.Int("vus", stats.Active),
				zap.Int64("iterations", stats.Iterations),
				zap.Int64("http_reqs", r.collector.TotalRequests()))
		case <-ticker.C:
			elapsed := time.Since(start)
			if shaper.Done(elapsed) {
				break loop
			}
			target := shaper.TargetVUs(elapsed)
			pool.Resize(target)
			if r.exporter != nil {
				r.exporter.UpdateVUs(pool.Stats().Active, target)
				r.exporter.UpdateFromSnapshot(r.collector.Snapshot())
			}
		}
	}

	pool.Stop()
	if r.cfg.GracefulStop > 0 {
		log.Info("waiting for in-flight iterations", zap.Duration("gracefulStop", r.cfg.GracefulStop))
	}
	if !pool.Wait(r.cfg.GracefulStop) {
		log.Warn("graceful stop timed out, interrupting iterations")
		aborted = true
		cancelIterations()
		pool.Wait(5 * time.Second)
	}
	return interrupted, aborted
}

// observer feeds every HTTP attempt into the collector and the exporter.
func (r *Runner) observer() client.Observer {
	return func(o client.Observation) {
		res := metrics.Result{
			Name:         o.Name,
			Method:       o.Method,
			StatusCode:   o.StatusCode,
			Latency:      o.Duration,
			ResponseSize: o.Size,
			Timestamp:    time.Now(),
			Error:        o.Err,
		}
		r.collector.Record(res)
		if r.exporter != nil {
			r.exporter.RecordRequest(res)
		}
	}
}

func (r *Runner) stopExporter(log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.exporter.Stop(ctx); err != nil {
		log.Warn("stopping prometheus exporter", zap.Error(err))
	}
}

func (r *Runner) reportOptions(runID string, th *metrics.ThresholdResults) metrics.ReportOptions {
	stages := make([]metrics.StageReport, 0, len(r.cfg.Stages))
	for _, st := range r.cfg.Stages {
		stages = append(stages, metrics.StageReport{Duration: metrics.Duration{Duration: st.Duration}, Target: st.Target})
	}
	return metrics.ReportOptions{
		RunID:         runID,
		ConfigName:    r.cfg.Name,
		Scenario:      r.cfg.Scenario,
		Description:   r.cfg.Description,
		TargetBaseURL: r.cfg.Target.BaseURL,
		TestDuration:  r.cfg.TotalDuration(),
		MaxVUs:        r.cfg.MaxVUs(),
		Stages:        stages,
		RPS:           r.cfg.RPS,
		Thresholds:    th,
	}
}

// Collector exposes the run's metrics.
func (r *Runner) Collector() *metrics.Collector {
	return r.collector
}

func (r *Runner) printBanner(runID string) {
	w := r.out
	fmt.Fprintln(w, "╔════════════════════════════════════════════════════════════╗")
	fmt.Fprintf(w, "║  Load run:  %-48s ║\n", truncate(r.cfg.Name, 48))
	fmt.Fprintln(w, "╠════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Scenario:  %-48s ║\n", truncate(r.cfg.Scenario, 48))
	fmt.Fprintf(w, "║  Target:    %-48s ║\n", truncate(r.cfg.Target.BaseURL, 48))
	fmt.Fprintf(w, "║  Duration:  %-48s ║\n", r.cfg.TotalDuration())
	fmt.Fprintf(w, "║  Max VUs:   %-48d ║\n", r.cfg.MaxVUs())
	fmt.Fprintf(w, "║  Stages:    %-48s ║\n", truncate(stagesString(r.cfg.Stages), 48))
	if r.cfg.RPS > 0 {
		fmt.Fprintf(w, "║  RPS cap:   %-48.1f ║\n", r.cfg.RPS)
	}
	fmt.Fprintf(w, "║  Run ID:    %-48s ║\n", runID)
	fmt.Fprintln(w, "╚════════════════════════════════════════════════════════════╝")
}

func stagesString(stages []loadctrl.Stage) string {
	parts := make([]string, 0, len(stages))
	for _, st := range stages {
		parts = append(parts, fmt.Sprintf("%s->%d", st.Duration, st.Target))
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// checkFanout records checks into the collector and, when enabled, Prometheus.
type checkFanout struct {
	collector *metrics.Collector
	exporter  *metrics.PrometheusExporter
}

func (c *checkFanout) RecordCheck(name string, passed bool) {
	c.collector.RecordCheck(name, passed)
	if c.exporter != nil {
		c.exporter.RecordCheck(name, passed)
	}
}
