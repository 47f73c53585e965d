package scenario

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/bootstrap"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/client"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/config"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/generator"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/hrmapi"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/logger"
)

// CheckCreateStatus is recorded once per create attempt.
const CheckCreateStatus = "Create Employee Status is 200"

const acceptJSON = "application/json, text/plain, */*"

// Records produces the employees to create. *generator.EmployeeGenerator
// is the usual implementation.
type Records interface {
	Next() generator.EmployeeRecord
}

// CreateEmployeeOptions configures CreateEmployee.
type CreateEmployeeOptions struct {
	Client    *client.Client
	Bootstrap *bootstrap.Bootstrapper
	Generator Records
	UserAgent string
	Pacing    time.Duration
	Checks    CheckRecorder
	Logger    *zap.Logger
}

// CreateEmployee logs in once during Setup, then every iteration checks a
// random employee id for uniqueness and creates an employee with it.
type CreateEmployee struct {
	opts   CreateEmployeeOptions
	logger *zap.Logger
	parser *client.ResponseParser

	mu      sync.RWMutex
	session bootstrap.Session
}

// NewCreateEmployee returns the create-employee scenario.
func NewCreateEmployee(opts CreateEmployeeOptions) *CreateEmployee {
	if opts.Checks == nil {
		opts.Checks = nopChecks{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &CreateEmployee{
		opts:   opts,
		logger: opts.Logger.Named("create_employee"),
		parser: client.NewResponseParser(),
	}
}

// Name implements Scenario.
func (s *CreateEmployee) Name() string { return config.ScenarioCreateEmployee }

// Setup implements Scenario. It never fails: an incomplete session only
// turns iterations into no-ops.
func (s *CreateEmployee) Setup(ctx context.Context) error {
	if s.opts.Bootstrap == nil {
		return nil
	}
	sess := s.opts.Bootstrap.Run(ctx)
	s.SetSession(sess)
	if !sess.Valid() {
		s.logger.Warn("no session cookie, iterations will be skipped")
	}
	return nil
}

// SetSession replaces the session used by iterations.
func (s *CreateEmployee) SetSession(sess bootstrap.Session) {
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
}

// Session returns the session used by iterations.
func (s *CreateEmployee) Session() bootstrap.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

type createEmployeeBody struct {
	FirstName  string  `json:"firstName"`
	MiddleName string  `json:"middleName"`
	LastName   string  `json:"lastName"`
	EmployeeID string  `json:"employeeId"`
	EmpPicture *string `json:"empPicture"`
}

// Iteration implements Scenario.
func (s *CreateEmployee) Iteration(ctx context.Context) error {
	sess := s.Session()
	if !sess.Valid() {
		s.logger.Debug("no session token, skipping iteration")
		sleep(ctx, s.opts.Pacing)
		return nil
	}
	defer sleep(ctx, s.opts.Pacing)

	rec := s.opts.Generator.Next()
	c := s.opts.Client

	// The uniqueness check mirrors the UI; its answer is not used.
	if _, err := c.Do(ctx, client.Request{
		Name:        "check employee id",
		Method:      http.MethodGet,
		Path:        hrmapi.UniqueValidationPath,
		QueryParams: hrmapi.UniqueEmployeeIDQuery(rec.EmployeeID),
		Headers: map[string]string{
			"Accept":     acceptJSON,
			"User-Agent": s.opts.UserAgent,
		},
	}); err != nil && ctx.Err() == nil {
		s.logger.Debug("uniqueness check failed", zap.Error(err))
	}

	c.SetCookie(hrmapi.SessionCookie, sess.Cookie)
	headers := map[string]string{
		"Content-Type": "application/json",
		"Cookie":       hrmapi.SessionCookie + "=" + sess.Cookie,
		"User-Agent":   s.opts.UserAgent,
	}
	if sess.ActionToken != "" {
		headers["token"] = sess.ActionToken
		headers["X-CSRF-TOKEN"] = sess.ActionToken
	}

	resp, err := c.Do(ctx, client.Request{
		Name:   "create employee",
		Method: http.MethodPost,
		Path:   hrmapi.EmployeesPath,
		Body: createEmployeeBody{
			FirstName:  rec.FirstName,
			MiddleName: rec.MiddleName,
			LastName:   rec.LastName,
			EmployeeID: rec.EmployeeID,
		},
		Headers: headers,
	})

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	s.opts.Checks.RecordCheck(CheckCreateStatus, err == nil && status == http.StatusOK)

	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("create employee request failed", zap.String("employee_id", rec.EmployeeID), zap.Error(err))
		return fmt.Errorf("create employee: %w", err)
	}
	if status != http.StatusOK {
		s.logger.Warn("create employee failed",
			zap.Int("status", status),
			zap.String("employee_id", rec.EmployeeID),
			zap.String("message", logger.Truncate(s.parser.ParseErrorResponse(resp.Body), 200)),
			zap.String("body", logger.Truncate(string(resp.Body), 200)))
		return nil
	}
	if empNumber, err := s.parser.ExtractInt(resp.Body, "$.data.empNumber"); err == nil {
		s.logger.Debug("employee created",
			zap.String("employee_id", rec.EmployeeID),
			zap.Int("emp_number", empNumber))
	}
	return nil
}
