package hrmapi_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/client"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/config"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/contract"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/hrmapi"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/hrmtest"
)

func newHelpers(t *testing.T, srv *hrmtest.Server, loggedIn bool, opts ...hrmapi.Option) *hrmapi.Helpers {
	t.Helper()
	c, err := client.NewClient(config.TargetConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)
	if loggedIn {
		c.SetCookie(hrmapi.SessionCookie, srv.SessionID)
	}
	return hrmapi.NewHelpers(hrmapi.ClientRequester{Client: c}, srv.URL+"/", opts...)
}

func staticRequester(status int, body string) hrmapi.Requester {
	return hrmapi.RequesterFunc(func(context.Context, string, map[string]string) (int, []byte, error) {
		return status, []byte(body), nil
	})
}

func TestHelpers_GetEmployee(t *testing.T) {
	srv := hrmtest.NewServer(t)
	srv.AddEmployee(hrmtest.Employee{EmployeeID: "42", FirstName: "K6", MiddleName: "Perf", LastName: "User_42"})
	srv.AddEmployee(hrmtest.Employee{EmployeeID: "43", FirstName: "Other", LastName: "User_43"})

	h := newHelpers(t, srv, true)
	assert.Equal(t, srv.URL, h.BaseURL())

	list, err := h.GetEmployee(context.Background(), "42")
	require.NoError(t, err)
	require.NotNil(t, list)

	employees, err := list.Employees()
	require.NoError(t, err)
	require.Len(t, employees, 1)
	assert.Equal(t, "K6", employees[0].FirstName)
	assert.Equal(t, "User_42", employees[0].LastName)
	assert.Nil(t, employees[0].TerminationID)
	assert.Equal(t, 1, list.Total())

	reqs := srv.RequestsTo(http.MethodGet, hrmapi.EmployeesPath)
	require.Len(t, reqs, 1)
	q := reqs[0].Query
	assert.Equal(t, "50", q.Get("limit"))
	assert.Equal(t, "0", q.Get("offset"))
	assert.Equal(t, "detailed", q.Get("model"))
	assert.Equal(t, "42", q.Get("employeeId"))
	assert.Equal(t, "onlyCurrent", q.Get("includeEmployees"))
	assert.Equal(t, "employee.firstName", q.Get("sortField"))
	assert.Equal(t, "ASC", q.Get("sortOrder"))
}

func TestHelpers_GetEmployee_NonOK(t *testing.T) {
	srv := hrmtest.NewServer(t)
	core, logs := observer.New(zapcore.WarnLevel)
	h := newHelpers(t, srv, false, hrmapi.WithLogger(zap.New(core)))

	list, err := h.GetEmployee(context.Background(), "42")
	assert.NoError(t, err)
	assert.Nil(t, list)

	entries := logs.FilterMessage("employee lookup failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(http.StatusUnauthorized), entries[0].ContextMap()["status"])
}

func TestHelpers_VerifyEmployeeExists(t *testing.T) {
	srv := hrmtest.NewServer(t)
	srv.AddEmployee(hrmtest.Employee{EmployeeID: "42", FirstName: "K6", LastName: "User_42"})
	srv.AddEmployee(hrmtest.Employee{EmployeeID: "7", FirstName: "Seven", LastName: "User_7"})
	ctx := context.Background()

	t.Run("created", func(t *testing.T) {
		assert.NoError(t, newHelpers(t, srv, true).VerifyEmployeeExists(ctx, "42", "K6"))
	})

	t.Run("first name differs", func(t *testing.T) {
		err := newHelpers(t, srv, true).VerifyEmployeeExists(ctx, "42", "Someone")
		assert.ErrorIs(t, err, hrmapi.ErrFirstNameMismatch)
		assert.Contains(t, err.Error(), `"Someone"`)
	})

	t.Run("not listed", func(t *testing.T) {
		err := newHelpers(t, srv, true).VerifyEmployeeExists(ctx, "99", "K6")
		assert.ErrorIs(t, err, hrmapi.ErrEmployeeNotFound)
	})

	t.Run("lookup unavailable", func(t *testing.T) {
		err := newHelpers(t, srv, false).VerifyEmployeeExists(ctx, "42", "K6")
		assert.ErrorIs(t, err, hrmapi.ErrNoData)
	})
}

func TestHelpers_VerifyEmployeeExists_ListsSeenIDs(t *testing.T) {
	// a loose search can return neighbours of the requested id
	h := hrmapi.NewHelpers(staticRequester(http.StatusOK,
		`{"data":[{"empNumber":1,"employeeId":"420","firstName":"A","lastName":"B"},{"empNumber":2,"employeeId":"4200","firstName":"C","lastName":"D"}],"meta":{"total":2},"rels":[]}`,
	), "http://hrm.local")

	err := h.VerifyEmployeeExists(context.Background(), "42", "A")
	assert.ErrorIs(t, err, hrmapi.ErrEmployeeNotFound)
	assert.Contains(t, err.Error(), `"420", "4200"`)
}

func TestHelpers_MalformedResponses(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		body     string
		opts     []hrmapi.Option
		contract bool
	}{
		{name: "data object", body: `{"data":{"empNumber":1}}`, contract: true},
		{name: "data object without contract", body: `{"data":{"empNumber":1}}`, opts: []hrmapi.Option{hrmapi.WithContract(nil)}},
		{name: "data null", body: `{"data":null}`},
		{name: "data absent", body: `{"meta":{"total":0}}`},
		{name: "data null without contract", body: `{"data":null}`, opts: []hrmapi.Option{hrmapi.WithContract(nil)}},
		{name: "not json", body: `<html>`, opts: []hrmapi.Option{hrmapi.WithContract(nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := hrmapi.NewHelpers(staticRequester(http.StatusOK, tt.body), "http://hrm.local", tt.opts...)
			err := h.VerifyEmployeeExists(ctx, "42", "K6")
			assert.ErrorIs(t, err, hrmapi.ErrMalformedResponse)
			if tt.contract {
				assert.ErrorIs(t, err, contract.ErrSchemaMismatch)
			}
		})
	}
}

func TestHelpers_VerifyEmployeeDeleted(t *testing.T) {
	srv := hrmtest.NewServer(t)
	srv.AddEmployee(hrmtest.Employee{EmployeeID: "42", FirstName: "K6", LastName: "User_42"})
	ctx := context.Background()

	err := newHelpers(t, srv, true).VerifyEmployeeDeleted(ctx, "42")
	assert.ErrorIs(t, err, hrmapi.ErrEmployeeStillExists)

	assert.NoError(t, newHelpers(t, srv, true).VerifyEmployeeDeleted(ctx, "43"))

	// an unavailable lookup counts as empty
	assert.NoError(t, newHelpers(t, srv, false).VerifyEmployeeDeleted(ctx, "42"))

}

func TestHelpers_VerifyEmployeeDeleted_NullData(t *testing.T) {
	tests := []struct {
		name string
		body string
		opts []hrmapi.Option
	}{
		{name: "data null", body: `{"data":null}`},
		{name: "data absent", body: `{"meta":{"total":0}}`},
		{name: "data null without contract", body: `{"data":null}`, opts: []hrmapi.Option{hrmapi.WithContract(nil)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := hrmapi.NewHelpers(staticRequester(http.StatusOK, tt.body), "http://hrm.local", tt.opts...)
			assert.NoError(t, h.VerifyEmployeeDeleted(context.Background(), "42"))
		})
	}
}

func TestHelpers_TransportError(t *testing.T) {
	boom := errors.New("connection refused")
	h := hrmapi.NewHelpers(hrmapi.RequesterFunc(func(context.Context, string, map[string]string) (int, []byte, error) {
		return 0, nil, boom
	}), "http://hrm.local")

	_, err := h.GetEmployee(context.Background(), "42")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, h.VerifyEmployeeDeleted(context.Background(), "42"), boom)
}

func TestHelpers_RequestURL(t *testing.T) {
	var gotURL string
	var gotQuery map[string]string
	h := hrmapi.NewHelpers(hrmapi.RequesterFunc(func(_ context.Context, url string, q map[string]string) (int, []byte, error) {
		gotURL, gotQuery = url, q
		return http.StatusOK, []byte(`{"data":[],"meta":{"total":0},"rels":[]}`), nil
	}), "https://opensource-demo.orangehrmlive.com/")

	list, err := h.GetEmployee(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, "https://opensource-demo.orangehrmlive.com"+hrmapi.EmployeesPath, gotURL)
	assert.Equal(t, hrmapi.EmployeeQuery("5"), gotQuery)
	assert.Equal(t, 0, list.Total())
}

func TestEmployeeList_NilSafe(t *testing.T) {
	var l *hrmapi.EmployeeList
	employees, err := l.Employees()
	assert.NoError(t, err)
	assert.Empty(t, employees)
	assert.Equal(t, -1, l.Total())
}
