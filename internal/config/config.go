// Package config provides the YAML configuration of a load run.
// A run executes one scenario against one target with k6-style stages and thresholds.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/loadctrl"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/metrics"
)

// Errors returned by the config package.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("config: invalid configuration")
	// ErrConfigNotFound is returned when the config file is not found.
	ErrConfigNotFound = errors.New("config: configuration file not found")
)

// Scenario names.
const (
	ScenarioLogin          = "login"
	ScenarioCreateEmployee = "create-employee"
)

// Bootstrap document renderers.
const (
	RendererHTTP     = "http"
	RendererChromedp = "chromedp"
)

// DefaultBaseURL is the public OrangeHRM demo.
const DefaultBaseURL = "https://opensource-demo.orangehrmlive.com"

// Config is the root configuration of a load run.
type Config struct {
	// Name is a descriptive name for this run. Default: the scenario name
	Name string `yaml:"name" json:"name"`

	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Scenario is "login" or "create-employee".
	Scenario string `yaml:"scenario" json:"scenario"`

	Target TargetConfig `yaml:"target" json:"target"`

	// Credentials are used by the login scenario and by the session bootstrap.
	// Default: Admin / admin123
	Credentials CredentialsConfig `yaml:"credentials" json:"credentials"`

	// StartVUs is the VU count before the first stage begins ramping.
	StartVUs int `yaml:"startVUs,omitempty" json:"startVUs,omitempty"`

	// Stages ramp the number of virtual users. Default: the scenario's stages
	Stages []loadctrl.Stage `yaml:"stages" json:"stages"`

	// Thresholds map a metric name to k6 threshold expressions,
	// e.g. http_req_duration: ["p(95)<500"]. Default: the scenario's thresholds
	Thresholds map[string][]string `yaml:"thresholds" json:"thresholds"`

	// Pacing is the sleep at the end of every iteration.
	// Default: 1s
	Pacing time.Duration `yaml:"pacing,omitempty" json:"pacing,omitempty"`

	// RPS caps requests per second across all VUs. Zero means no cap.
	RPS float64 `yaml:"rps,omitempty" json:"rps,omitempty"`

	// GracefulStop is how long in-flight iterations may run after the last stage.
	// Default: 30s
	GracefulStop time.Duration `yaml:"gracefulStop,omitempty" json:"gracefulStop,omitempty"`

	Retry RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty"`

	Employee EmployeeConfig `yaml:"employee,omitempty" json:"employee,omitempty"`

	Bootstrap BootstrapConfig `yaml:"bootstrap,omitempty" json:"bootstrap,omitempty"`

	Output OutputConfig `yaml:"output,omitempty" json:"output,omitempty"`

	Prometheus PrometheusConfig `yaml:"prometheus,omitempty" json:"prometheus,omitempty"`

	Log LogConfig `yaml:"log,omitempty" json:"log,omitempty"`
}

// TargetConfig holds target system configuration.
type TargetConfig struct {
	// BaseURL of the OrangeHRM instance. BASE_URL overrides it.
	// Default: https://opensource-demo.orangehrmlive.com
	BaseURL string `yaml:"baseURL" json:"baseURL"`

	// Timeout is the per-request timeout.
	// Default: 60s
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	TLSSkipVerify bool `yaml:"tlsSkipVerify,omitempty" json:"tlsSkipVerify,omitempty"`

	// FollowRedirects follows 3xx responses like a browser.
	// Default: true
	FollowRedirects *bool `yaml:"followRedirects,omitempty" json:"followRedirects,omitempty"`

	// UserAgent is sent on every request.
	UserAgent string `yaml:"userAgent,omitempty" json:"userAgent,omitempty"`

	// Headers are additional headers to include in all requests.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// CredentialsConfig is the application login.
type CredentialsConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// RetryConfig configures client retries. Load runs default to none.
type RetryConfig struct {
	MaxRetries int           `yaml:"maxRetries,omitempty" json:"maxRetries,omitempty"`
	RetryDelay time.Duration `yaml:"retryDelay,omitempty" json:"retryDelay,omitempty"`
	MaxDelay   time.Duration `yaml:"maxDelay,omitempty" json:"maxDelay,omitempty"`
	Multiplier float64       `yaml:"multiplier,omitempty" json:"multiplier,omitempty"`
}

// EmployeeConfig shapes the records posted by create-employee.
type EmployeeConfig struct {
	// FirstName Default: K6
	FirstName string `yaml:"firstName,omitempty" json:"firstName,omitempty"`
	// MiddleName Default: Perf
	MiddleName string `yaml:"middleName,omitempty" json:"middleName,omitempty"`
	// Names is "fixed" or "faker". Default: fixed
	Names string `yaml:"names,omitempty" json:"names,omitempty"`
	Seed  uint64 `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// BootstrapConfig configures how setup fetches the pages it extracts tokens from.
type BootstrapConfig struct {
	// Renderer is "http" or "chromedp". Default: http
	Renderer string       `yaml:"renderer,omitempty" json:"renderer,omitempty"`
	Chrome   ChromeConfig `yaml:"chrome,omitempty" json:"chrome,omitempty"`
}

// ChromeConfig configures the headless Chrome used by the chromedp renderer.
type ChromeConfig struct {
	// RemoteURL connects to a running Chrome instead of launching one.
	RemoteURL string `yaml:"remoteURL,omitempty" json:"remoteURL,omitempty"`
	// Headless Default: true
	Headless  *bool `yaml:"headless,omitempty" json:"headless,omitempty"`
	NoSandbox bool  `yaml:"noSandbox,omitempty" json:"noSandbox,omitempty"`
	// Timeout per rendered page. Default: 30s
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// OutputConfig configures output and reporting.
type OutputConfig struct {
	// Type is a comma-separated list of "console", "json" and "html".
	// Default: console
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	// Path of the JSON report; supports {{.Timestamp}}.
	// Default: results/{{.Timestamp}}-<scenario>.json
	Path string `yaml:"path,omitempty" json:"path,omitempty"`

	// HTMLPath of the HTML report; supports {{.Timestamp}}.
	// Default: results/{{.Timestamp}}-<scenario>.html
	HTMLPath string `yaml:"htmlPath,omitempty" json:"htmlPath,omitempty"`

	// ReportInterval is how often to log progress.
	// Default: 10s
	ReportInterval time.Duration `yaml:"reportInterval,omitempty" json:"reportInterval,omitempty"`

	Verbose bool `yaml:"verbose,omitempty" json:"verbose,omitempty"`
}

// PrometheusConfig configures the metrics endpoint.
type PrometheusConfig struct {
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	// Port Default: 9090
	Port int `yaml:"port,omitempty" json:"port,omitempty"`
	// Path Default: /metrics
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return finish(&cfg)
}

// ForScenario returns the built-in options of a scenario, as the original
// scripts defined them, with environment overrides and defaults applied.
func ForScenario(scenario string) (*Config, error) {
	return finish(&Config{Scenario: scenario})
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies BASE_URL.
func (c *Config) ApplyEnv() {
	if u := os.Getenv("BASE_URL"); u != "" {
		c.Target.BaseURL = u
	}
}

// ApplyDefaults applies default values to unset fields.
func (c *Config) ApplyDefaults() {
	c.Scenario = strings.ToLower(strings.TrimSpace(c.Scenario))
	if c.Name == "" {
		c.Name = c.Scenario
	}

	if c.Target.BaseURL == "" {
		c.Target.BaseURL = DefaultBaseURL
	}
	c.Target.BaseURL = strings.TrimRight(c.Target.BaseURL, "/")
	if c.Target.Timeout == 0 {
		c.Target.Timeout = 60 * time.Second
	}
	if c.Target.FollowRedirects == nil {
		follow := true
		c.Target.FollowRedirects = &follow
	}
	if c.Target.UserAgent == "" {
		c.Target.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko)"
	}

	if c.Credentials.Username == "" {
		c.Credentials.Username = "Admin"
	}
	if c.Credentials.Password == "" {
		c.Credentials.Password = "admin123"
	}

	stages, thresholds := scenarioOptions(c.Scenario)
	if len(c.Stages) == 0 {
		c.Stages = stages
	}
	if c.Thresholds == nil {
		c.Thresholds = thresholds
	}

	if c.Pacing == 0 {
		c.Pacing = time.Second
	}
	if c.GracefulStop == 0 {
		c.GracefulStop = 30 * time.Second
	}
	if c.Retry.MaxRetries > 0 {
		if c.Retry.RetryDelay == 0 {
			c.Retry.RetryDelay = 500 * time.Millisecond
		}
		if c.Retry.MaxDelay == 0 {
			c.Retry.MaxDelay = 5 * time.Second
		}
		if c.Retry.Multiplier == 0 {
			c.Retry.Multiplier = 2
		}
	}

	if c.Employee.FirstName == "" {
		c.Employee.FirstName = "K6"
	}
	if c.Employee.MiddleName == "" {
		c.Employee.MiddleName = "Perf"
	}
	if c.Employee.Names == "" {
		c.Employee.Names = "fixed"
	}

	if c.Bootstrap.Renderer == "" {
		c.Bootstrap.Renderer = RendererHTTP
	}
	if c.Bootstrap.Chrome.Headless == nil {
		headless := true
		c.Bootstrap.Chrome.Headless = &headless
	}
	if c.Bootstrap.Chrome.Timeout == 0 {
		c.Bootstrap.Chrome.Timeout = 30 * time.Second
	}

	if c.Output.Type == "" {
		c.Output.Type = "console"
	}
	if c.Output.Path == "" {
		c.Output.Path = "results/{{.Timestamp}}-" + c.Scenario + ".json"
	}
	if c.Output.HTMLPath == "" {
		c.Output.HTMLPath = "results/{{.Timestamp}}-" + c.Scenario + ".html"
	}
	if c.Output.ReportInterval == 0 {
		c.Output.ReportInterval = 10 * time.Second
	}

	if c.Prometheus.Port == 0 {
		c.Prometheus.Port = 9090
	}
	if c.Prometheus.Path == "" {
		c.Prometheus.Path = "/metrics"
	}
}

// scenarioOptions returns the stages and thresholds of the original scripts.
func scenarioOptions(scenario string) ([]loadctrl.Stage, map[string][]string) {
	switch scenario {
	case ScenarioLogin:
		return []loadctrl.Stage{
				{Duration: 30 * time.Second, Target: 20},
				{Duration: time.Minute, Target: 20},
				{Duration: 10 * time.Second, Target: 0},
			}, map[string][]string{
				metrics.MetricHTTPReqDuration: {"p(95)<500"},
			}
	case ScenarioCreateEmployee:
		return []loadctrl.Stage{
				{Duration: 5 * time.Second, Target: 5},
			}, map[string][]string{
				metrics.MetricHTTPReqDuration: {"p(95)<2000"},
				metrics.MetricHTTPReqFailed:   {"rate<0.01"},
			}
	}
	return nil, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Scenario {
	case ScenarioLogin, ScenarioCreateEmployee:
	case "":
		return fmt.Errorf("%w: scenario is required", ErrInvalidConfig)
	default:
		return fmt.Errorf("%w: unknown scenario %q", ErrInvalidConfig, c.Scenario)
	}

	u, err := url.Parse(c.Target.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: target.baseURL must be an absolute URL: %q", ErrInvalidConfig, c.Target.BaseURL)
	}

	if len(c.Stages) == 0 {
		return fmt.Errorf("%w: at least one stage is required", ErrInvalidConfig)
	}
	if c.StartVUs < 0 {
		return fmt.Errorf("%w: startVUs cannot be negative", ErrInvalidConfig)
	}
	for i, st := range c.Stages {
		if st.Duration <= 0 {
			return fmt.Errorf("%w: stages[%d].duration must be positive", ErrInvalidConfig, i)
		}
		if st.Target < 0 {
			return fmt.Errorf("%w: stages[%d].target cannot be negative", ErrInvalidConfig, i)
		}
	}

	for metric, exprs := range c.Thresholds {
		for _, expr := range exprs {
			if _, err := metrics.ParseThreshold(metric, expr); err != nil {
				return fmt.Errorf("%w: thresholds.%s: %v", ErrInvalidConfig, metric, err)
			}
		}
	}

	if c.RPS < 0 {
		return fmt.Errorf("%w: rps cannot be negative", ErrInvalidConfig)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("%w: retry.maxRetries cannot be negative", ErrInvalidConfig)
	}

	switch c.Employee.Names {
	case "fixed", "faker":
	default:
		return fmt.Errorf("%w: employee.names must be fixed or faker", ErrInvalidConfig)
	}

	switch c.Bootstrap.Renderer {
	case RendererHTTP, RendererChromedp:
	default:
		return fmt.Errorf("%w: bootstrap.renderer must be http or chromedp", ErrInvalidConfig)
	}

	for _, t := range strings.Split(c.Output.Type, ",") {
		switch strings.TrimSpace(t) {
		case "console", "json", "html":
		default:
			return fmt.Errorf("%w: unknown output type %q", ErrInvalidConfig, t)
		}
	}

	return nil
}

// TotalDuration is the sum of all stage durations.
func (c *Config) TotalDuration() time.Duration {
	var total time.Duration
	for _, st := range c.Stages {
		total += st.Duration
	}
	return total
}

// MaxVUs is the highest VU count any stage reaches.
func (c *Config) MaxVUs() int {
	m := c.StartVUs
	for _, st := range c.Stages {
		m = max(m, st.Target)
	}
	return m
}

// WantsJSON reports whether a JSON report should be written.
func (c *Config) WantsJSON() bool {
	return strings.Contains(c.Output.Type, "json")
}

// WantsHTML reports whether an HTML report should be written.
func (c *Config) WantsHTML() bool {
	return strings.Contains(c.Output.Type, "html")
}

// WantsConsole reports whether progress and the summary go to the terminal.
func (c *Config) WantsConsole() bool {
	return strings.Contains(c.Output.Type, "console")
}

// SetConstantVUs replaces the stages with a single flat stage, like k6 --vus --duration.
func (c *Config) SetConstantVUs(vus int, d time.Duration) {
	c.StartVUs = vus
	c.Stages = []loadctrl.Stage{{Duration: d, Target: vus}}
}

// ScaleDuration stretches every stage so the run lasts d in total.
func (c *Config) ScaleDuration(d time.Duration) {
	total := c.TotalDuration()
	if total <= 0 || d <= 0 {
		return
	}
	factor := float64(d) / float64(total)
	for i := range c.Stages {
		c.Stages[i].Duration = time.Duration(float64(c.Stages[i].Duration) * factor)
	}
}
