package main

import (
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/config"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/hrmapi"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/hrmtest"
)

func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func TestCLI_Version(t *testing.T) {
	stdout, _, code := runCLI(t, "-version")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "loadgen version dev")
}

func TestCLI_Help(t *testing.T) {
	_, stderr, code := runCLI(t, "-h")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stderr, "USAGE:")
	assert.Contains(t, stderr, "99 thresholds failed")
}

func TestCLI_UnknownFlag(t *testing.T) {
	_, _, code := runCLI(t, "-bogus")
	assert.Equal(t, exitError, code)
}

func TestCLI_List(t *testing.T) {
	stdout, _, code := runCLI(t, "-list")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "OrangeHRM endpoints (7 total)")
	assert.Contains(t, stdout, hrmapi.ValidatePath)
	assert.Contains(t, stdout, hrmapi.UniqueValidationPath)
	assert.Contains(t, stdout, "createEmployee")
	assert.Contains(t, stdout, "200, 302")
}

func TestCLI_ConfigRequired(t *testing.T) {
	_, stderr, code := runCLI(t)
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "-config or -scenario is required")

	_, stderr, code = runCLI(t, "-config", "x.yaml", "-scenario", "login")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "either -config or -scenario")

	_, stderr, code = runCLI(t, "-config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "not found")
}

func TestCLI_Validate(t *testing.T) {
	t.Setenv("BASE_URL", "")
	stdout, stderr, code := runCLI(t, "-config", "../../configs/login.yaml", "-validate")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "is valid.")
	assert.Contains(t, stdout, "Scenario:    login")
	assert.Contains(t, stdout, "Max VUs:     20")
}

func TestCLI_DryRun(t *testing.T) {
	t.Setenv("BASE_URL", "")
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "login defaults",
			args: []string{"-scenario", "login", "-dry-run"},
			want: []string{"1. 0 -> 20 VUs over 30s", "3. 20 -> 0 VUs over 10s (ends at 1m40s)", "http_req_duration: p(95)<500"},
		},
		{
			name: "scaled duration",
			args: []string{"-scenario", "create-employee", "-duration", "20s", "-dry-run"},
			want: []string{"1. 0 -> 5 VUs over 20s", "http_req_failed: rate<0.01"},
		},
		{
			name: "constant vus",
			args: []string{"-scenario", "login", "-vus", "3", "-duration", "10s", "-dry-run"},
			want: []string{"1. 3 -> 3 VUs over 10s", "Max VUs:     3"},
		},
		{
			name: "json and prometheus",
			args: []string{"-scenario", "login", "-output-file", "out/{{.Timestamp}}.json", "-prometheus", ":9191", "-dry-run"},
			want: []string{"JSON report: out/{{.Timestamp}}.json", "Prometheus:  :9191/metrics", "Output:      console,json"},
		},
		{
			name: "base url",
			args: []string{"-scenario", "login", "-base-url", "http://hrm.local/", "-dry-run"},
			want: []string{"Target:      http://hrm.local\n"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr, code := runCLI(t, tt.args...)
			require.Equal(t, exitOK, code, stderr)
			for _, w := range tt.want {
				assert.Contains(t, stdout, w)
			}
		})
	}
}

func TestCLI_InvalidOverrides(t *testing.T) {
	tests := [][]string{
		{"-scenario", "login", "-prometheus", "nope", "-validate"},
		{"-scenario", "login", "-vus", "-1", "-validate"},
		{"-scenario", "login", "-output", "xml", "-validate"},
		{"-scenario", "soak", "-validate"},
		{"-scenario", "login", "-base-url", "not a url", "-validate"},
	}
	for _, args := range tests {
		_, stderr, code := runCLI(t, args...)
		assert.Equal(t, exitError, code, args)
		assert.Contains(t, stderr, "invalid configuration", args)
	}
}

func TestParsePrometheusPort(t *testing.T) {
	tests := []struct {
		addr string
		want int
	}{
		{":9090", 9090},
		{"9091", 9091},
		{"localhost:9092", 9092},
		{" :9093 ", 9093},
		{"", 0},
		{":0", 0},
		{":70000", 0},
		{"host:port", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parsePrometheusPort(tt.addr), tt.addr)
	}
}

func TestApplyOverrides_OutputFile(t *testing.T) {
	cfg, err := config.ForScenario(config.ScenarioLogin)
	require.NoError(t, err)

	require.NoError(t, applyOverrides(cfg, &options{outputFile: "r.json", rps: 4, logLevel: "debug"}))
	assert.Equal(t, "console,json", cfg.Output.Type)
	assert.Equal(t, "r.json", cfg.Output.Path)
	assert.Equal(t, 4.0, cfg.RPS)
	assert.Equal(t, "debug", logConfig(cfg).Level)

	require.NoError(t, applyOverrides(cfg, &options{outputFormat: "json", outputFile: "s.json"}))
	assert.Equal(t, "json", cfg.Output.Type)
}

func TestCLI_Run(t *testing.T) {
	t.Setenv("BASE_URL", "")
	srv := hrmtest.NewServer(t)
	report := filepath.Join(t.TempDir(), "report.json")

	stdout, stderr, code := runCLI(t,
		"-scenario", "create-employee",
		"-base-url", srv.URL,
		"-vus", "1",
		"-duration", "300ms",
		"-output", "console,json",
		"-output-file", report,
		"-log-level", "error",
	)
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "Create Employee Status is 200")

	_, err := os.Stat(report)
	assert.NoError(t, err)
	assert.NotEmpty(t, srv.RequestsTo(http.MethodPost, hrmapi.EmployeesPath))
}

func TestCLI_RunFailedThresholds(t *testing.T) {
	t.Setenv("BASE_URL", "")
	srv := hrmtest.NewServer(t, hrmtest.WithCreateStatus(http.StatusInternalServerError))

	start := time.Now()
	_, stderr, code := runCLI(t,
		"-scenario", "create-employee",
		"-base-url", srv.URL,
		"-vus", "1",
		"-duration", "300ms",
		"-output", "json",
		"-output-file", filepath.Join(t.TempDir(), "r.json"),
		"-log-level", "error",
	)
	assert.Equal(t, exitThresholdsFailed, code, stderr)
	assert.Less(t, time.Since(start), 10*time.Second)
}
