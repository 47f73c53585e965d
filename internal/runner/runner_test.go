package runner

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/bootstrap"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/config"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/hrmapi"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/hrmtest"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/loadctrl"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/metrics"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/scenario"
)

func shortConfig(t *testing.T, name, baseURL string) *config.Config {
	t.Helper()
	cfg, err := config.ForScenario(name)
	require.NoError(t, err)
	cfg.Target.BaseURL = baseURL
	cfg.Stages = []loadctrl.Stage{{Duration: 300 * time.Millisecond, Target: 2}}
	cfg.Pacing = 20 * time.Millisecond
	cfg.GracefulStop = 2 * time.Second
	cfg.Output.Type = "console,json"
	cfg.Output.Path = filepath.Join(t.TempDir(), "{{.Timestamp}}-"+name+".json")
	return cfg
}

func newRunner(t *testing.T, cfg *config.Config, opts ...Option) (*Runner, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	opts = append([]Option{WithOutput(&out), WithTick(10 * time.Millisecond), WithoutSignals()}, opts...)
	r, err := New(cfg, opts...)
	require.NoError(t, err)
	return r, &out
}

func TestRun_CreateEmployee(t *testing.T) {
	srv := hrmtest.NewServer(t, hrmtest.WithRequireActionToken())
	r, out := newRunner(t, shortConfig(t, config.ScenarioCreateEmployee, srv.URL))

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.False(t, res.Interrupted)
	assert.False(t, res.Aborted)
	assert.Positive(t, res.Snapshot.Iterations)
	assert.Zero(t, res.Snapshot.FailedRequests)

	checks := map[string]metrics.CheckSnapshot{}
	for _, c := range res.Snapshot.Checks {
		checks[c.Name] = c
	}
	assert.Equal(t, int64(1), checks[bootstrap.CheckLoggedIn].Passes)
	assert.Positive(t, checks[scenario.CheckCreateStatus].Passes)
	assert.Zero(t, checks[scenario.CheckCreateStatus].Fails)

	creates := srv.RequestsTo(http.MethodPost, hrmapi.EmployeesPath)
	assert.Len(t, srv.Employees(), len(creates))
	assert.Equal(t, int64(len(creates)), res.Snapshot.EndpointStats["create employee"].TotalRequests)

	require.NotNil(t, res.Thresholds)
	assert.True(t, res.Thresholds.AllPassed)
	assert.Zero(t, res.ExitCode())

	require.NotEmpty(t, res.ReportPath)
	_, err = os.Stat(res.ReportPath)
	assert.NoError(t, err)

	assert.Contains(t, out.String(), "Load run:")
	assert.Contains(t, out.String(), "Create Employee Status is 200")
}

func TestRun_FailedThresholdExitCode(t *testing.T) {
	srv := hrmtest.NewServer(t, hrmtest.WithCreateStatus(http.StatusInternalServerError))
	cfg := shortConfig(t, config.ScenarioCreateEmployee, srv.URL)
	cfg.Output.Type = "console,html"
	cfg.Output.HTMLPath = filepath.Join(t.TempDir(), "report.html")
	r, _ := newRunner(t, cfg)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Thresholds.AllPassed)
	assert.Equal(t, metrics.ExitCodeThresholdsFailed, res.ExitCode())
	assert.Empty(t, res.ReportPath)

	require.Equal(t, cfg.Output.HTMLPath, res.HTMLReportPath)
	html, err := os.ReadFile(res.HTMLReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Thresholds failed")
	assert.Contains(t, string(html), "create employee")
}

func TestRun_Login(t *testing.T) {
	srv := hrmtest.NewServer(t)
	cfg := shortConfig(t, config.ScenarioLogin, srv.URL)
	cfg.Output.Type = "json"
	r, out := newRunner(t, cfg)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	logins := srv.RequestsTo(http.MethodPost, hrmapi.ValidatePath)
	assert.NotEmpty(t, logins)
	assert.Equal(t, int64(len(logins)), res.Snapshot.EndpointStats["login"].TotalRequests)
	assert.NotContains(t, out.String(), "checks")
}

type stubScenario struct {
	setupErr   error
	iterations atomic.Int64
	block      bool
}

func (s *stubScenario) Name() string                { return "stub" }
func (s *stubScenario) Setup(context.Context) error { return s.setupErr }
func (s *stubScenario) Iteration(ctx context.Context) error {
	s.iterations.Add(1)
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	time.Sleep(5 * time.Millisecond)
	return nil
}

func TestRun_SetupError(t *testing.T) {
	cfg := shortConfig(t, config.ScenarioLogin, "http://127.0.0.1:1")
	r, _ := newRunner(t, cfg, WithScenario(&stubScenario{setupErr: errors.New("boom")}))

	_, err := r.Run(context.Background())
	assert.ErrorContains(t, err, "setup: boom")
}

func TestRun_GracefulStopTimeout(t *testing.T) {
	cfg := shortConfig(t, config.ScenarioLogin, "http://127.0.0.1:1")
	cfg.StartVUs = 2
	cfg.Stages = []loadctrl.Stage{{Duration: 50 * time.Millisecond, Target: 2}}
	cfg.GracefulStop = 50 * time.Millisecond
	cfg.Output.Type = "json"
	cfg.Output.Path = filepath.Join(t.TempDir(), "r.json")
	sc := &stubScenario{block: true}
	r, _ := newRunner(t, cfg, WithScenario(sc))

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Aborted)
	assert.Positive(t, sc.iterations.Load())
	// iterations cut short are not counted
	assert.Zero(t, res.Snapshot.Iterations)
}

func TestRun_Cancelled(t *testing.T) {
	cfg := shortConfig(t, config.ScenarioLogin, "http://127.0.0.1:1")
	cfg.StartVUs = 1
	cfg.Stages = []loadctrl.Stage{{Duration: time.Hour, Target: 1}}
	cfg.Output.Type = "console"
	sc := &stubScenario{}
	r, _ := newRunner(t, cfg, WithScenario(sc))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := r.Run(ctx)
	require.NoError(t, err)
	assert.True(t, res.Interrupted)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Positive(t, sc.iterations.Load())
}

func TestRun_AlreadyRunning(t *testing.T) {
	cfg := shortConfig(t, config.ScenarioLogin, "http://127.0.0.1:1")
	cfg.Stages = []loadctrl.Stage{{Duration: 200 * time.Millisecond, Target: 1}}
	cfg.Output.Type = "json"
	r, _ := newRunner(t, cfg, WithScenario(&stubScenario{}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Run(context.Background())
	}()
	require.Eventually(t, r.running.Load, time.Second, time.Millisecond)

	_, err := r.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	<-done
}

func TestNew_InvalidThreshold(t *testing.T) {
	cfg := shortConfig(t, config.ScenarioLogin, "http://127.0.0.1:1")
	cfg.Thresholds = map[string][]string{"http_req_duration": {"fast"}}
	_, err := New(cfg)
	assert.ErrorIs(t, err, metrics.ErrInvalidThreshold)
}

func TestNew_RPSLimiter(t *testing.T) {
	cfg := shortConfig(t, config.ScenarioLogin, "http://127.0.0.1:1")
	cfg.RPS = 5
	r, _ := newRunner(t, cfg)
	require.NotNil(t, r.limiter)
	assert.InDelta(t, 5, r.limiter.CurrentRate(), 0)
}

func TestRun_RPSCapLogsStats(t *testing.T) {
	srv := hrmtest.NewServer(t)
	cfg := shortConfig(t, config.ScenarioLogin, srv.URL)
	cfg.RPS = 20
	core, logs := observer.New(zap.InfoLevel)
	r, _ := newRunner(t, cfg, WithLogger(zap.New(core)))

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	entries := logs.FilterMessage("rps cap").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.InDelta(t, 20.0, fields["rps"], 0)
	assert.Positive(t, fields["acquired"])
}

func TestStagesString(t *testing.T) {
	assert.Equal(t, "30s->20, 1m0s->20, 10s->0", stagesString([]loadctrl.Stage{
		{Duration: 30 * time.Second, Target: 20},
		{Duration: time.Minute, Target: 20},
		{Duration: 10 * time.Second, Target: 0},
	}))
	assert.Equal(t, "hel...", truncate("hello world", 6))
}
