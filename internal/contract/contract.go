// Package contract describes the OrangeHRM endpoints the suite talks to as an
// OpenAPI 3 document and checks response bodies against it.
package contract

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

// Operation ids of the consumed endpoints.
const (
	OpLoginPage             = "loginPage"
	OpValidateCredentials   = "validateCredentials"
	OpAddEmployeePage       = "addEmployeePage"
	OpCheckEmployeeIDUnique = "checkEmployeeIdUnique"
	OpListEmployees         = "listEmployees"
	OpCreateEmployee        = "createEmployee"
	OpDeleteEmployees       = "deleteEmployees"
)

//go:embed orangehrm.yaml
var document []byte

var (
	// ErrUnknownOperation is returned for operation ids the document lacks.
	ErrUnknownOperation = errors.New("contract: unknown operation")
	// ErrUndeclaredStatus is returned when neither the status nor a default
	// response is declared.
	ErrUndeclaredStatus = errors.New("contract: undeclared response status")
	// ErrSchemaMismatch is returned when a body does not match its schema.
	ErrSchemaMismatch = errors.New("contract: response does not match schema")
)

// Endpoint is one consumed operation.
type Endpoint struct {
	OperationID string
	Method      string
	Path        string
	Summary     string
	// Statuses lists the declared response codes, "default" last.
	Statuses []string
}

// Contract is a loaded and validated document.
type Contract struct {
	doc *openapi3.T
	ops map[string]*operation
}

type operation struct {
	Endpoint
	op *openapi3.Operation
}

var (
	defaultOnce     sync.Once
	defaultContract *Contract
	defaultErr      error
)

// Default returns the embedded contract, loading it once.
func Default() (*Contract, error) {
	defaultOnce.Do(func() {
		defaultContract, defaultErr = Load(document)
	})
	return defaultContract, defaultErr
}

// Load parses and validates an OpenAPI 3 document.
func Load(data []byte) (*Contract, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("contract: parsing document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("contract: invalid document: %w", err)
	}

	c := &Contract{doc: doc, ops: make(map[string]*operation)}
	for path, item := range doc.Paths.Map() {
		for method, op := range item.Operations() {
			if op.OperationID == "" {
				continue
			}
			c.ops[op.OperationID] = &operation{
				Endpoint: Endpoint{
					OperationID: op.OperationID,
					Method:      strings.ToUpper(method),
					Path:        path,
					Summary:     op.Summary,
					Statuses:    statuses(op),
				},
				op: op,
			}
		}
	}
	return c, nil
}

func statuses(op *openapi3.Operation) []string {
	if op.Responses == nil {
		return nil
	}
	var out []string
	hasDefault := false
	for code := range op.Responses.Map() {
		if code == "default" {
			hasDefault = true
			continue
		}
		out = append(out, code)
	}
	sort.Strings(out)
	if hasDefault {
		out = append(out, "default")
	}
	return out
}

// Endpoints lists the operations ordered by path, then method.
func (c *Contract) Endpoints() []Endpoint {
	out := make([]Endpoint, 0, len(c.ops))
	for _, op := range c.ops {
		out = append(out, op.Endpoint)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// Endpoint returns one operation.
func (c *Contract) Endpoint(operationID string) (Endpoint, bool) {
	op, ok := c.ops[operationID]
	if !ok {
		return Endpoint{}, false
	}
	return op.Endpoint, true
}

// ValidateResponse checks body against the JSON schema declared for status.
// Responses without a JSON schema (HTML pages, redirects) only need a
// declared status.
func (c *Contract) ValidateResponse(operationID string, status int, body []byte) error {
	op, ok := c.ops[operationID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOperation, operationID)
	}

	ref := op.op.Responses.Status(status)
	if ref == nil {
		ref = op.op.Responses.Default()
	}
	if ref == nil || ref.Value == nil {
		return fmt.Errorf("%w: %s %d", ErrUndeclaredStatus, operationID, status)
	}

	mt := ref.Value.Content.Get("application/json")
	if mt == nil || mt.Schema == nil || mt.Schema.Value == nil {
		return nil
	}

	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("%w: %s %d: body is not JSON: %v", ErrSchemaMismatch, operationID, status, err)
	}
	if err := mt.Schema.Value.VisitJSON(v); err != nil {
		return fmt.Errorf("%w: %s %d: %v", ErrSchemaMismatch, operationID, status, err)
	}
	return nil
}

// Endpoints lists the operations of the embedded contract.
func Endpoints() ([]Endpoint, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	return c.Endpoints(), nil
}

// ValidateResponse validates against the embedded contract.
func ValidateResponse(operationID string, status int, body []byte) error {
	c, err := Default()
	if err != nil {
		return err
	}
	return c.ValidateResponse(operationID, status, body)
}

// StatusText renders a status list for listings, e.g. "200, default".
func StatusText(e Endpoint) string {
	if len(e.Statuses) == 0 {
		return strconv.Itoa(http.StatusOK)
	}
	return strings.Join(e.Statuses, ", ")
}
