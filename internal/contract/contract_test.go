package contract

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	apiPrefix = "/web/index.php/api/v2"
	webPrefix = "/web/index.php"
)

func TestDefault_Loads(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	again, err := Default()
	require.NoError(t, err)
	assert.Same(t, c, again)
}

func TestEndpoints(t *testing.T) {
	eps, err := Endpoints()
	require.NoError(t, err)
	require.Len(t, eps, 7)

	got := map[string]Endpoint{}
	for _, e := range eps {
		got[e.OperationID] = e
	}
	assert.Equal(t, webPrefix+"/auth/login", got[OpLoginPage].Path)
	assert.Equal(t, http.MethodGet, got[OpLoginPage].Method)
	assert.Equal(t, webPrefix+"/auth/validate", got[OpValidateCredentials].Path)
	assert.Equal(t, http.MethodPost, got[OpValidateCredentials].Method)
	assert.Equal(t, webPrefix+"/pim/addEmployee", got[OpAddEmployeePage].Path)
	assert.Equal(t, apiPrefix+"/core/validation/unique", got[OpCheckEmployeeIDUnique].Path)
	assert.Equal(t, apiPrefix+"/pim/employees", got[OpListEmployees].Path)
	assert.Equal(t, http.MethodPost, got[OpCreateEmployee].Method)
	assert.Equal(t, http.MethodDelete, got[OpDeleteEmployees].Method)
	assert.Equal(t, []string{"200", "default"}, got[OpCreateEmployee].Statuses)
	assert.Equal(t, "200, 302", StatusText(got[OpValidateCredentials]))

	// ordered by path then method
	for i := 1; i < len(eps); i++ {
		prev, cur := eps[i-1], eps[i]
		assert.True(t, prev.Path < cur.Path || (prev.Path == cur.Path && prev.Method < cur.Method))
	}
}

func TestValidateResponse(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		status  int
		body    string
		wantErr error
	}{
		{
			name: "employee list", op: OpListEmployees, status: 200,
			body: `{"data":[{"empNumber":7,"employeeId":"42","firstName":"K6","middleName":"Perf","lastName":"User_42","terminationId":null}],"meta":{"total":1},"rels":[]}`,
		},
		{
			name: "empty list", op: OpListEmployees, status: 200,
			body: `{"data":[],"meta":{"total":0},"rels":[]}`,
		},
		{name: "null list", op: OpListEmployees, status: 200, body: `{"data":null}`},
		{name: "list without data", op: OpListEmployees, status: 200, body: `{"meta":{"total":0}}`},
		{
			name: "created employee", op: OpCreateEmployee, status: 200,
			body: `{"data":{"empNumber":8,"employeeId":"42","firstName":"K6","middleName":"","lastName":"User_42","terminationId":null},"meta":[],"rels":[]}`,
		},
		{
			name: "error payload via default", op: OpCreateEmployee, status: 422,
			body: `{"error":{"status":"422","message":"Invalid Parameter"}}`,
		},
		{
			name: "uniqueness", op: OpCheckEmployeeIDUnique, status: 200,
			body: `{"data":{"valid":true},"meta":[],"rels":[]}`,
		},
		{
			name: "deleted ids", op: OpDeleteEmployees, status: 200,
			body: `{"data":[7,8],"meta":[],"rels":[]}`,
		},
		{name: "html page", op: OpAddEmployeePage, status: 200, body: `<html></html>`},
		{name: "redirect", op: OpValidateCredentials, status: 302},
		{
			name: "data not an array", op: OpListEmployees, status: 200,
			body: `{"data":{"empNumber":1}}`, wantErr: ErrSchemaMismatch,
		},
		{
			name: "missing first name", op: OpCreateEmployee, status: 200,
			body: `{"data":{"empNumber":1,"lastName":"x"}}`, wantErr: ErrSchemaMismatch,
		},
		{name: "not json", op: OpListEmployees, status: 200, body: `<html>`, wantErr: ErrSchemaMismatch},
		{name: "undeclared status", op: OpLoginPage, status: 500, wantErr: ErrUndeclaredStatus},
		{name: "unknown operation", op: "getEmployee", status: 200, wantErr: ErrUnknownOperation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResponse(tt.op, tt.status, []byte(tt.body))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load([]byte("openapi: 3.0.3\ninfo: {}\n"))
	assert.Error(t, err)

	_, err = Load([]byte("{not yaml"))
	assert.Error(t, err)
}
