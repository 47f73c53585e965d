package scenario

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/client"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/config"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/hrmapi"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/logger"
)

// CheckLoginStatus is recorded once per login iteration.
const CheckLoginStatus = "status is 200 or 302"

// Login posts the credentials form on every iteration.
type Login struct {
	client *client.Client
	creds  config.CredentialsConfig
	pacing time.Duration
	checks CheckRecorder
	logger *zap.Logger
}

// NewLogin returns the login scenario.
func NewLogin(c *client.Client, creds config.CredentialsConfig, pacing time.Duration, checks CheckRecorder, l *zap.Logger) *Login {
	if checks == nil {
		checks = nopChecks{}
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &Login{
		client: c,
		creds:  creds,
		pacing: pacing,
		checks: checks,
		logger: l.Named("login"),
	}
}

// Name implements Scenario.
func (s *Login) Name() string { return config.ScenarioLogin }

// Setup implements Scenario. Login needs no shared state.
func (s *Login) Setup(context.Context) error { return nil }

// Iteration implements Scenario.
func (s *Login) Iteration(ctx context.Context) error {
	defer sleep(ctx, s.pacing)

	resp, err := s.client.Do(ctx, client.Request{
		Name:   "login",
		Method: http.MethodPost,
		Path:   hrmapi.ValidatePath,
		Form: url.Values{
			"username": {s.creds.Username},
			"password": {s.creds.Password},
		},
	})

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	s.checks.RecordCheck(CheckLoginStatus, err == nil && (status == http.StatusOK || status == http.StatusFound))

	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("login: %w", err)
	}
	if status != http.StatusOK && status != http.StatusFound {
		s.logger.Warn("login failed",
			zap.Int("status", status),
			zap.String("body", logger.Truncate(string(resp.Body), 200)))
	}
	return nil
}
