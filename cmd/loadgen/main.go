// Package main provides the CLI entry point for the OrangeHRM load generator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/config"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/contract"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/logger"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/metrics"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/runner"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/scenario"
)

// Version information (populated at build time)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Exit codes. 99 matches k6 when thresholds fail.
const (
	exitOK               = 0
	exitError            = 1
	exitThresholdsFailed = metrics.ExitCodeThresholdsFailed
)

type options struct {
	configPath     string
	scenario       string
	baseURL        string
	duration       time.Duration
	vus            int
	rps            float64
	validate       bool
	dryRun         bool
	list           bool
	showVersion    bool
	outputFormat   string
	outputFile     string
	prometheusAddr string
	logLevel       string
	logFormat      string
}

func newFlagSet(opts *options, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("loadgen", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.configPath, "config", "", "Path to the YAML configuration file")
	fs.StringVar(&opts.configPath, "c", "", "Path to the YAML configuration file (shorthand)")
	fs.StringVar(&opts.scenario, "scenario", "", "Run a built-in scenario without a file: "+strings.Join(scenario.Names(), ", "))

	fs.StringVar(&opts.baseURL, "base-url", "", "Override target.baseURL")
	fs.DurationVar(&opts.duration, "duration", 0, "Stretch the stages to this total duration (e.g. 2m)")
	fs.IntVar(&opts.vus, "vus", 0, "Run a constant number of VUs instead of the stages")
	fs.Float64Var(&opts.rps, "rps", 0, "Cap requests per second across all VUs")

	fs.BoolVar(&opts.validate, "validate", false, "Validate configuration and exit")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Show the execution plan without running")
	fs.BoolVar(&opts.list, "list", false, "List the OrangeHRM endpoints the scenarios consume")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")

	fs.StringVar(&opts.outputFormat, "output", "", "Output formats, comma separated: console, json, html")
	fs.StringVar(&opts.outputFile, "output-file", "", "JSON report path (enables JSON, supports {{.Timestamp}})")
	fs.StringVar(&opts.prometheusAddr, "prometheus", "", "Enable the Prometheus endpoint (e.g. :9090)")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&opts.logFormat, "log-format", "", "Log format: console or json")

	fs.Usage = func() { printUsage(stderr) }
	return fs
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `loadgen - OrangeHRM load generator

USAGE:
    loadgen -config <path> [options]
    loadgen -scenario <name> [options]
    loadgen -list

SCENARIOS:
    login              POST credentials to /auth/validate (30s->20, 1m->20, 10s->0)
    create-employee    Bootstrap a session once, then create employees (5s->5)

CONFIGURATION:
    -config, -c <path>    YAML configuration file
    -scenario <name>      Built-in options of a scenario

OVERRIDE OPTIONS:
    -base-url <url>       Target instance (BASE_URL works too)
    -duration <dur>       Stretch the stages to a total duration
    -vus <n>              Constant VUs for -duration (or the configured total)
    -rps <n>              Cap requests per second

UTILITY OPTIONS:
    -validate             Validate configuration and exit
    -dry-run              Show execution plan without running
    -list                 List consumed endpoints from the API contract
    -version              Show version information

OUTPUT OPTIONS:
    -output <formats>     comma-separated list of console, json, html
    -output-file <path>   JSON report file (supports {{.Timestamp}})
    -prometheus <addr>    Prometheus metrics endpoint (e.g. :9090)
    -log-level <level>    debug, info, warn, error
    -log-format <format>  console or json

EXIT CODES:
    0 success, 1 error, 99 thresholds failed

EXAMPLES:
    loadgen -scenario login
    loadgen -config configs/create_employee.yaml -vus 10 -duration 1m
    loadgen -config configs/login.yaml -output console,json -output-file results/login-{{.Timestamp}}.json
`)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := newFlagSet(&opts, stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitError
	}

	if opts.showVersion {
		printVersion(stdout)
		return exitOK
	}

	if opts.list {
		if err := printEndpointList(stdout); err != nil {
			fmt.Fprintf(stderr, "Error loading API contract: %v\n", err)
			return exitError
		}
		return exitOK
	}

	cfg, err := loadConfig(&opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return exitError
	}

	if opts.validate {
		fmt.Fprintf(stdout, "Configuration '%s' is valid.\n", cfg.Name)
		printConfigSummary(stdout, cfg)
		return exitOK
	}

	if opts.dryRun {
		printExecutionPlan(stdout, cfg)
		return exitOK
	}

	log, err := logger.New(logConfig(cfg))
	if err != nil {
		fmt.Fprintf(stderr, "Error creating logger: %v\n", err)
		return exitError
	}
	defer log.Sync() //nolint:errcheck

	r, err := runner.New(cfg, runner.WithLogger(log), runner.WithOutput(stdout))
	if err != nil {
		fmt.Fprintf(stderr, "Error creating runner: %v\n", err)
		return exitError
	}
	res, err := r.Run(context.Background())
	if err != nil {
		log.Error("load test failed", zap.Error(err))
		fmt.Fprintf(stderr, "Error running load test: %v\n", err)
		return exitError
	}
	return res.ExitCode()
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "loadgen version %s\n", version)
	fmt.Fprintf(w, "  Build time: %s\n", buildTime)
	fmt.Fprintf(w, "  Git commit: %s\n", gitCommit)
}

// loadConfig reads -config or the built-in -scenario options, then applies
// the command-line overrides and validates the result.
func loadConfig(opts *options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case opts.configPath != "" && opts.scenario != "":
		return nil, fmt.Errorf("%w: use either -config or -scenario", config.ErrInvalidConfig)
	case opts.configPath != "":
		path, absErr := filepath.Abs(opts.configPath)
		if absErr != nil {
			return nil, fmt.Errorf("resolving config path: %w", absErr)
		}
		cfg, err = config.LoadFromFile(path)
	case opts.scenario != "":
		cfg, err = config.ForScenario(opts.scenario)
	default:
		return nil, fmt.Errorf("%w: -config or -scenario is required", config.ErrInvalidConfig)
	}
	if err != nil {
		return nil, err
	}

	if err := applyOverrides(cfg, opts); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config, opts *options) error {
	if opts.baseURL != "" {
		cfg.Target.BaseURL = strings.TrimRight(opts.baseURL, "/")
	}

	switch {
	case opts.vus > 0:
		d := opts.duration
		if d <= 0 {
			d = cfg.TotalDuration()
		}
		cfg.SetConstantVUs(opts.vus, d)
	case opts.vus < 0:
		return fmt.Errorf("%w: -vus cannot be negative", config.ErrInvalidConfig)
	case opts.duration > 0:
		cfg.ScaleDuration(opts.duration)
	}

	if opts.rps > 0 {
		cfg.RPS = opts.rps
	}

	if opts.outputFormat != "" {
		cfg.Output.Type = opts.outputFormat
	}
	if opts.outputFile != "" {
		cfg.Output.Path = opts.outputFile
		if !cfg.WantsJSON() {
			cfg.Output.Type += ",json"
		}
	}

	if opts.prometheusAddr != "" {
		port := parsePrometheusPort(opts.prometheusAddr)
		if port == 0 {
			return fmt.Errorf("%w: invalid -prometheus address %q", config.ErrInvalidConfig, opts.prometheusAddr)
		}
		cfg.Prometheus.Enabled = true
		cfg.Prometheus.Port = port
	}

	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}
	return nil
}

// parsePrometheusPort accepts "9090", ":9090" or "host:9090". Zero means invalid.
func parsePrometheusPort(addr string) int {
	addr = strings.TrimSpace(addr)
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		addr = addr[i+1:]
	}
	port, err := strconv.Atoi(addr)
	if err != nil || port <= 0 || port > 65535 {
		return 0
	}
	return port
}

func logConfig(cfg *config.Config) *logger.Config {
	lc := logger.ConfigFromEnv()
	if cfg.Log.Level != "" {
		lc.Level = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		lc.Format = cfg.Log.Format
	}
	if cfg.Log.Output != "" {
		lc.Output = cfg.Log.Output
	}
	return lc
}

func printConfigSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Configuration Summary:")
	fmt.Fprintf(w, "  Name:        %s\n", cfg.Name)
	fmt.Fprintf(w, "  Scenario:    %s\n", cfg.Scenario)
	fmt.Fprintf(w, "  Target:      %s\n", cfg.Target.BaseURL)
	fmt.Fprintf(w, "  Duration:    %v\n", cfg.TotalDuration())
	fmt.Fprintf(w, "  Max VUs:     %d\n", cfg.MaxVUs())
	fmt.Fprintf(w, "  Pacing:      %v\n", cfg.Pacing)
	if cfg.RPS > 0 {
		fmt.Fprintf(w, "  RPS cap:     %.1f\n", cfg.RPS)
	}
	fmt.Fprintf(w, "  Renderer:    %s\n", cfg.Bootstrap.Renderer)
	fmt.Fprintf(w, "  Output:      %s\n", cfg.Output.Type)
}

func printExecutionPlan(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "=== Execution Plan (Dry Run) ===")
	printConfigSummary(w, cfg)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Stages:")
	var elapsed time.Duration
	from := cfg.StartVUs
	for i, st := range cfg.Stages {
		elapsed += st.Duration
		fmt.Fprintf(w, "  %d. %d -> %d VUs over %v (ends at %v)\n", i+1, from, st.Target, st.Duration, elapsed)
		from = st.Target
	}
	fmt.Fprintf(w, "  Graceful stop: %v\n", cfg.GracefulStop)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Thresholds:")
	if len(cfg.Thresholds) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, th := range sortedThresholds(cfg.Thresholds) {
		fmt.Fprintf(w, "  %s: %s\n", th.Metric, th.Expr)
	}

	if cfg.WantsJSON() || cfg.WantsHTML() {
		fmt.Fprintln(w)
	}
	if cfg.WantsJSON() {
		fmt.Fprintf(w, "JSON report: %s\n", cfg.Output.Path)
	}
	if cfg.WantsHTML() {
		fmt.Fprintf(w, "HTML report: %s\n", cfg.Output.HTMLPath)
	}
	if cfg.Prometheus.Enabled {
		fmt.Fprintf(w, "Prometheus:  :%d%s\n", cfg.Prometheus.Port, cfg.Prometheus.Path)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Ready to execute. Remove -dry-run flag to start the load test.")
}

func sortedThresholds(m map[string][]string) []metrics.Threshold {
	ths, err := metrics.ParseThresholds(m)
	if err != nil {
		return nil
	}
	return ths
}

func printEndpointList(w io.Writer) error {
	endpoints, err := contract.Endpoints()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "OrangeHRM endpoints (%d total):\n\n", len(endpoints))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  METHOD\tPATH\tOPERATION\tSTATUS")
	for _, ep := range endpoints {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", ep.Method, ep.Path, ep.OperationID, contract.StatusText(ep))
	}
	return tw.Flush()
}
