// Package hrmtest provides an in-memory OrangeHRM stand-in for tests. It
// serves the login form, the add-employee page and the PIM REST endpoints the
// suite consumes, and records every request it receives.
package hrmtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/csrf"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/hrmapi"
)

// Employee is a stored record.
type Employee struct {
	EmpNumber     int     `json:"empNumber"`
	EmployeeID    string  `json:"employeeId"`
	FirstName     string  `json:"firstName"`
	MiddleName    string  `json:"middleName"`
	LastName      string  `json:"lastName"`
	TerminationID *int    `json:"terminationId"`
	EmpPicture    *string `json:"-"`
}

// RecordedRequest is one request as the server saw it.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Server is a fake OrangeHRM instance.
type Server struct {
	*httptest.Server

	Username    string
	Password    string
	LoginToken  string
	ActionToken string
	SessionID   string

	// LoginStyle is HiddenInput or VueProp.
	LoginStyle csrf.Strategy
	// ActionStyle picks how the add-employee page embeds the action token.
	// Empty means the page has no token.
	ActionStyle csrf.Strategy
	// RequireActionToken rejects creates whose token header is wrong.
	RequireActionToken bool
	// CreateStatus forces the status of employee creation when non-zero.
	CreateStatus int
	// Latency is added to every response.
	Latency time.Duration

	mu        sync.Mutex
	requests  []RecordedRequest
	employees map[int]*Employee
	nextEmp   int
}

// Option configures a Server.
type Option func(*Server)

// WithActionStyle sets ActionStyle.
func WithActionStyle(s csrf.Strategy) Option { return func(srv *Server) { srv.ActionStyle = s } }

// WithLoginStyle sets LoginStyle.
func WithLoginStyle(s csrf.Strategy) Option { return func(srv *Server) { srv.LoginStyle = s } }

// WithCreateStatus sets CreateStatus.
func WithCreateStatus(code int) Option { return func(srv *Server) { srv.CreateStatus = code } }

// WithLatency sets Latency.
func WithLatency(d time.Duration) Option { return func(srv *Server) { srv.Latency = d } }

// WithRequireActionToken sets RequireActionToken.
func WithRequireActionToken() Option { return func(srv *Server) { srv.RequireActionToken = true } }

// NewServer starts a Server that is closed when t finishes.
func NewServer(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		Username:    "Admin",
		Password:    "admin123",
		LoginToken:  "login-token-0123456789",
		ActionToken: "action-token-abcdef",
		SessionID:   "sess-9f8e7d6c5b4a",
		LoginStyle:  csrf.VueProp,
		ActionStyle: csrf.MetaTag,
		employees:   make(map[int]*Employee),
		nextEmp:     1,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+hrmapi.LoginPath, s.handleLoginPage)
	mux.HandleFunc("POST "+hrmapi.ValidatePath, s.handleValidate)
	mux.HandleFunc("GET "+hrmapi.DashboardPath, s.handleDashboard)
	mux.HandleFunc("GET "+hrmapi.AddEmployeePath, s.handleAddEmployeePage)
	mux.HandleFunc("GET "+hrmapi.UniqueValidationPath, s.handleUnique)
	mux.HandleFunc("GET "+hrmapi.EmployeesPath, s.handleListEmployees)
	mux.HandleFunc("POST "+hrmapi.EmployeesPath, s.handleCreateEmployee)
	mux.HandleFunc("DELETE "+hrmapi.EmployeesPath, s.handleDeleteEmployees)
	mux.HandleFunc("GET "+hrmapi.EmployeesPath+"/{empNumber}", s.handleGetEmployee)
	mux.HandleFunc("PUT "+hrmapi.EmployeesPath+"/{empNumber}/personal-details", s.handleUpdatePersonalDetails)

	s.Server = httptest.NewServer(s.record(mux))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   body,
		})
		s.mu.Unlock()

		if s.Latency > 0 {
			time.Sleep(s.Latency)
		}
		next.ServeHTTP(w, r)
	})
}

// Requests returns a copy of everything received so far.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// RequestsTo returns the requests with the given method and path.
func (s *Server) RequestsTo(method, path string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// Employees returns the stored employees ordered by empNumber.
func (s *Server) Employees() []Employee {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Employee, 0, len(s.employees))
	for _, e := range s.employees {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmpNumber < out[j].EmpNumber })
	return out
}

// AddEmployee stores an employee directly.
func (s *Server) AddEmployee(e Employee) Employee {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.EmpNumber = s.nextEmp
	s.nextEmp++
	s.employees[e.EmpNumber] = &e
	return e
}

func (s *Server) authenticated(r *http.Request) bool {
	ck, err := r.Cookie(hrmapi.SessionCookie)
	return err == nil && ck.Value == s.SessionID
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: hrmapi.SessionCookie, Value: "anon-" + s.SessionID, Path: "/web"})

	var form string
	switch s.LoginStyle {
	case csrf.HiddenInput:
		form = fmt.Sprintf(`<form method="post" action="%s"><input type="hidden" name="_token" value="%s"></form>`,
			hrmapi.ValidatePath, s.LoginToken)
	case csrf.VueProp:
		form = fmt.Sprintf(`<auth-login :token="%s"></auth-login>`, quot(`"`+s.LoginToken+`"`))
	}
	writeHTML(w, "Login", form)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("username") != s.Username || r.PostForm.Get("password") != s.Password {
		http.Redirect(w, r, hrmapi.LoginPath, http.StatusFound)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: hrmapi.SessionCookie, Value: s.SessionID, Path: "/web", HttpOnly: true})
	http.Redirect(w, r, hrmapi.DashboardPath, http.StatusFound)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		http.Redirect(w, r, hrmapi.LoginPath, http.StatusFound)
		return
	}
	writeHTML(w, "Dashboard", `<span class="oxd-userdropdown-name">Admin</span>`)
}

func (s *Server) handleAddEmployeePage(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		http.Redirect(w, r, hrmapi.LoginPath, http.StatusFound)
		return
	}
	var body string
	switch s.ActionStyle {
	case csrf.HiddenInput:
		body = fmt.Sprintf(`<input type="hidden" name="_token" value="%s">`, s.ActionToken)
	case csrf.MetaTag:
		body = fmt.Sprintf(`<meta name="csrf-token" content="%s">`, s.ActionToken)
	case csrf.EscapedJSON:
		body = fmt.Sprintf(`<pim-add-employee :props="%s"></pim-add-employee>`,
			quot(`{"_token":"`+s.ActionToken+`"}`))
	case csrf.ScriptVariable:
		body = fmt.Sprintf(`<script>window.app = {"csrf_token": "%s"};</script>`, s.ActionToken)
	case csrf.VueProp:
		body = fmt.Sprintf(`<pim-add-employee :token="%s"></pim-add-employee>`, quot(`"`+s.ActionToken+`"`))
	}
	writeHTML(w, "Add Employee", body)
}

func (s *Server) handleUnique(w http.ResponseWriter, r *http.Request) {
	value := r.URL.Query().Get("value")
	valid := true
	s.mu.Lock()
	for _, e := range s.employees {
		if e.EmployeeID == value {
			valid = false
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]bool{"valid": valid}, "meta": []any{}, "rels": []any{}})
}

func (s *Server) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		writeError(w, http.StatusUnauthorized, "Session expired")
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	employeeID := q.Get("employeeId")
	nameOrID := strings.ToLower(q.Get("nameOrId"))

	var out []Employee
	for _, e := range s.Employees() {
		if employeeID != "" && e.EmployeeID != employeeID {
			continue
		}
		if nameOrID != "" && !strings.Contains(strings.ToLower(e.FirstName+" "+e.LastName+" "+e.EmployeeID), nameOrID) {
			continue
		}
		out = append(out, e)
	}
	total := len(out)
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []Employee{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out, "meta": map[string]int{"total": total}, "rels": []any{}})
}

type createRequest struct {
	FirstName  string  `json:"firstName"`
	MiddleName string  `json:"middleName"`
	LastName   string  `json:"lastName"`
	EmployeeID string  `json:"employeeId"`
	EmpPicture *string `json:"empPicture"`
}

func (s *Server) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	if s.CreateStatus != 0 {
		writeError(w, s.CreateStatus, http.StatusText(s.CreateStatus))
		return
	}
	if !s.authenticated(r) {
		writeError(w, http.StatusUnauthorized, "Session expired")
		return
	}
	if s.RequireActionToken && r.Header.Get("token") != s.ActionToken {
		writeError(w, http.StatusForbidden, "Invalid token")
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.FirstName == "" || req.LastName == "" {
		writeError(w, http.StatusUnprocessableEntity, "Invalid Parameter")
		return
	}

	e := s.AddEmployee(Employee{
		EmployeeID: req.EmployeeID,
		FirstName:  req.FirstName,
		MiddleName: req.MiddleName,
		LastName:   req.LastName,
		EmpPicture: req.EmpPicture,
	})
	writeJSON(w, http.StatusOK, map[string]any{"data": e, "meta": []any{}, "rels": []any{}})
}

func (s *Server) handleDeleteEmployees(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		writeError(w, http.StatusUnauthorized, "Session expired")
		return
	}
	var req struct {
		IDs []int `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "Invalid Parameter")
		return
	}

	s.mu.Lock()
	deleted := make([]int, 0, len(req.IDs))
	for _, id := range req.IDs {
		if _, ok := s.employees[id]; ok {
			delete(s.employees, id)
			deleted = append(deleted, id)
		}
	}
	s.mu.Unlock()

	if len(deleted) == 0 {
		writeError(w, http.StatusNotFound, "Records Not Found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": deleted, "meta": []any{}, "rels": []any{}})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*Employee, bool) {
	if !s.authenticated(r) {
		writeError(w, http.StatusUnauthorized, "Session expired")
		return nil, false
	}
	n, err := strconv.Atoi(r.PathValue("empNumber"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Invalid Parameter")
		return nil, false
	}
	s.mu.Lock()
	e, ok := s.employees[n]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Record Not Found")
		return nil, false
	}
	return e, true
}

func (s *Server) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	cp := *e
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": cp, "meta": []any{}, "rels": []any{}})
}

func (s *Server) handleUpdatePersonalDetails(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	s.mu.Lock()
	if req.FirstName != "" {
		e.FirstName = req.FirstName
	}
	if req.LastName != "" {
		e.LastName = req.LastName
	}
	e.MiddleName = req.MiddleName
	if req.EmployeeID != "" {
		e.EmployeeID = req.EmployeeID
	}
	cp := *e
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": cp, "meta": []any{}, "rels": []any{}})
}

func writeHTML(w http.ResponseWriter, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	fmt.Fprintf(w, "<!DOCTYPE html><html><head><title>OrangeHRM - %s</title></head><body>%s</body></html>", title, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"status": strconv.Itoa(status), "message": message},
	})
}

// quot escapes double quotes the way the server-rendered Vue props do.
func quot(s string) string {
	return strings.ReplaceAll(s, `"`, "&quot;")
}
