// Package hrmapi holds the OrangeHRM routes and the REST helpers the suites
// use to check server-side state behind the UI.
package hrmapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/contract"
)

var (
	// ErrNoData is returned when the lookup produced no payload.
	ErrNoData = errors.New("hrmapi: no data returned from API")
	// ErrMalformedResponse is returned when the payload has an unexpected shape.
	ErrMalformedResponse = errors.New("hrmapi: malformed response")
	// ErrEmployeeNotFound is returned when no entry matches the employee id.
	ErrEmployeeNotFound = errors.New("hrmapi: employee not found")
	// ErrFirstNameMismatch is returned when the matching entry has another first name.
	ErrFirstNameMismatch = errors.New("hrmapi: first name mismatch")
	// ErrEmployeeStillExists is returned when a deleted employee is still listed.
	ErrEmployeeStillExists = errors.New("hrmapi: employee still exists")
)

// Requester performs an authenticated GET against an absolute URL.
type Requester interface {
	Get(ctx context.Context, url string, query map[string]string) (status int, body []byte, err error)
}

// RequesterFunc adapts a function to Requester.
type RequesterFunc func(ctx context.Context, url string, query map[string]string) (int, []byte, error)

// Get calls f.
func (f RequesterFunc) Get(ctx context.Context, url string, query map[string]string) (int, []byte, error) {
	return f(ctx, url, query)
}

// Employee is one entry of the employee list.
type Employee struct {
	EmpNumber     int    `json:"empNumber"`
	EmployeeID    string `json:"employeeId"`
	FirstName     string `json:"firstName"`
	MiddleName    string `json:"middleName"`
	LastName      string `json:"lastName"`
	TerminationID *int   `json:"terminationId"`
}

// EmployeeList is the decoded list payload. Data stays raw until Employees
// is called so that shape errors surface where they matter.
type EmployeeList struct {
	Data json.RawMessage `json:"data"`
	Meta json.RawMessage `json:"meta"`
}

// Employees decodes Data. Missing or null data is an empty list.
func (l *EmployeeList) Employees() ([]Employee, error) {
	if l == nil || isNull(l.Data) {
		return nil, nil
	}
	if trimmed := bytes.TrimSpace(l.Data); len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: data is not an array", ErrMalformedResponse)
	}
	var out []Employee
	if err := json.Unmarshal(l.Data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return out, nil
}

// Total is meta.total, or -1 when absent.
func (l *EmployeeList) Total() int {
	var meta struct {
		Total *int `json:"total"`
	}
	if l == nil || isNull(l.Meta) || json.Unmarshal(l.Meta, &meta) != nil || meta.Total == nil {
		return -1
	}
	return *meta.Total
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// Helpers issues REST lookups with the session of the underlying Requester.
type Helpers struct {
	requester Requester
	baseURL   string
	logger    *zap.Logger
	contract  *contract.Contract
}

// Option configures Helpers.
type Option func(*Helpers)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Helpers) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithContract validates responses against c. Nil disables validation.
func WithContract(c *contract.Contract) Option {
	return func(h *Helpers) { h.contract = c }
}

// NewHelpers returns Helpers resolving paths against baseURL. Responses are
// validated against the embedded contract unless WithContract(nil) is given.
func NewHelpers(r Requester, baseURL string, opts ...Option) *Helpers {
	h := &Helpers{
		requester: r,
		baseURL:   strings.TrimRight(baseURL, "/"),
		logger:    zap.NewNop(),
	}
	if c, err := contract.Default(); err == nil {
		h.contract = c
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("hrmapi")
	return h
}

// BaseURL returns the resolved base URL.
func (h *Helpers) BaseURL() string {
	return h.baseURL
}

// EmployeeQuery is the detailed lookup of one employee id.
func EmployeeQuery(employeeID string) map[string]string {
	return map[string]string{
		"limit":            "50",
		"offset":           "0",
		"model":            "detailed",
		"employeeId":       employeeID,
		"includeEmployees": "onlyCurrent",
		"sortField":        "employee.firstName",
		"sortOrder":        "ASC",
	}
}

// GetEmployee looks an employee up by employee id. A non-200 answer is logged
// and yields (nil, nil).
func (h *Helpers) GetEmployee(ctx context.Context, employeeID string) (*EmployeeList, error) {
	status, body, err := h.requester.Get(ctx, h.baseURL+EmployeesPath, EmployeeQuery(employeeID))
	if err != nil {
		return nil, fmt.Errorf("hrmapi: fetching employee %s: %w", employeeID, err)
	}
	if status != http.StatusOK {
		h.logger.Warn("employee lookup failed",
			zap.String("employee_id", employeeID),
			zap.Int("status", status),
		)
		return nil, nil
	}

	if h.contract != nil {
		if err := h.contract.ValidateResponse(contract.OpListEmployees, status, body); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
	}

	var list EmployeeList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	h.logger.Debug("employee lookup",
		zap.String("employee_id", employeeID),
		zap.ByteString("payload", body),
	)
	return &list, nil
}

// VerifyEmployeeExists checks that employeeID is listed with firstName.
func (h *Helpers) VerifyEmployeeExists(ctx context.Context, employeeID, firstName string) error {
	list, err := h.GetEmployee(ctx, employeeID)
	if err != nil {
		return err
	}
	if list == nil {
		return fmt.Errorf("%w for employee %s", ErrNoData, employeeID)
	}
	if isNull(list.Data) {
		return fmt.Errorf("%w: data is missing", ErrMalformedResponse)
	}
	employees, err := list.Employees()
	if err != nil {
		return err
	}

	seen := make([]string, 0, len(employees))
	for _, e := range employees {
		if e.EmployeeID != employeeID {
			seen = append(seen, strconv.Quote(e.EmployeeID))
			continue
		}
		if e.FirstName != firstName {
			return fmt.Errorf("%w: expected %q, got %q", ErrFirstNameMismatch, firstName, e.FirstName)
		}
		return nil
	}
	return fmt.Errorf("%w: %s (seen: [%s])", ErrEmployeeNotFound, employeeID, strings.Join(seen, ", "))
}

// VerifyEmployeeDeleted checks that employeeID is no longer listed. An
// unavailable lookup counts as empty.
func (h *Helpers) VerifyEmployeeDeleted(ctx context.Context, employeeID string) error {
	list, err := h.GetEmployee(ctx, employeeID)
	if err != nil {
		return err
	}
	employees, err := list.Employees()
	if err != nil {
		return err
	}
	for _, e := range employees {
		if e.EmployeeID == employeeID {
			return fmt.Errorf("%w: %s (empNumber %d)", ErrEmployeeStillExists, employeeID, e.EmpNumber)
		}
	}
	return nil
}
