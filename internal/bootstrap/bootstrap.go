// Package bootstrap establishes one authenticated OrangeHRM session before a
// load run: it logs in through the web form, captures the session cookie and
// scrapes the action token that API calls must echo back.
//
// Bootstrap never fails. Missing pieces are logged and left empty, and the
// scenario decides what to do with an incomplete Session.
package bootstrap

import (
	"context"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/client"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/config"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/csrf"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/hrmapi"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/logger"
)

// CheckLoggedIn is the name of the login check recorded during setup.
const CheckLoggedIn = "Logged in successfully"

// Session is what setup hands to every VU.
type Session struct {
	Cookie      string
	ActionToken string
	// LoginStatus is the status of the auth/validate response, 0 on transport error.
	LoginStatus   int
	LoggedIn      bool
	TokenStrategy csrf.Strategy
}

// Valid reports whether iterations can run.
func (s Session) Valid() bool {
	return s.Cookie != ""
}

// CheckRecorder records named pass/fail checks.
type CheckRecorder interface {
	RecordCheck(name string, passed bool)
}

// Bootstrapper runs the setup phase.
type Bootstrapper struct {
	client  *client.Client
	fetcher DocumentFetcher
	creds   config.CredentialsConfig
	checks  CheckRecorder
	logger  *zap.Logger
}

// Option configures a Bootstrapper.
type Option func(*Bootstrapper)

// WithFetcher replaces the HTTP fetcher used for the add-employee page.
func WithFetcher(f DocumentFetcher) Option {
	return func(b *Bootstrapper) { b.fetcher = f }
}

// WithChecks records the login check into r.
func WithChecks(r CheckRecorder) Option {
	return func(b *Bootstrapper) { b.checks = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bootstrapper) { b.logger = l }
}

// New returns a Bootstrapper that logs in with creds through c.
func New(c *client.Client, creds config.CredentialsConfig, opts ...Option) *Bootstrapper {
	b := &Bootstrapper{
		client: c,
		creds:  creds,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.fetcher == nil {
		b.fetcher = NewHTTPFetcher(c)
	}
	b.logger = b.logger.Named("bootstrap")
	return b
}

// Run performs login and token discovery.
func (b *Bootstrapper) Run(ctx context.Context) Session {
	var s Session

	// The login page must come from the same cookie jar as the form post,
	// otherwise its token belongs to another session.
	loginToken := ""
	page, err := b.client.Do(ctx, client.Request{Name: "login page", Method: http.MethodGet, Path: hrmapi.LoginPath})
	if err != nil {
		b.logger.Warn("fetching login page failed", zap.Error(err))
	} else if m, ok := csrf.LoginToken(string(page.Body)); ok {
		loginToken = m.Token
		b.logger.Info("CSRF token found",
			zap.String("token", logger.Truncate(m.Token, 10)),
			zap.String("strategy", string(m.Strategy)))
	}
	if loginToken == "" {
		b.logger.Warn("could not find CSRF token, login might fail")
	}

	form := url.Values{
		"_token":   {loginToken},
		"username": {b.creds.Username},
		"password": {b.creds.Password},
	}
	resp, err := b.client.Do(ctx, client.Request{Name: "login", Method: http.MethodPost, Path: hrmapi.ValidatePath, Form: form})
	if resp != nil {
		s.LoginStatus = resp.StatusCode
	}
	s.LoggedIn = err == nil && (s.LoginStatus == http.StatusOK || s.LoginStatus == http.StatusFound)
	b.logger.Info("login status", zap.Int("status", s.LoginStatus))
	if !s.LoggedIn {
		fields := []zap.Field{zap.Int("status", s.LoginStatus)}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		if resp != nil {
			fields = append(fields, zap.String("body", logger.Truncate(string(resp.Body), 200)))
		}
		b.logger.Warn("login request failed", fields...)
	}
	if b.checks != nil {
		b.checks.RecordCheck(CheckLoggedIn, s.LoggedIn)
	}

	s.Cookie = b.sessionCookie(resp)
	if s.Cookie == "" {
		b.logger.Warn("no session cookie found", zap.String("cookie", hrmapi.SessionCookie))
		return s
	}
	b.logger.Info("session cookie captured", zap.String("cookie", logger.Truncate(s.Cookie, 10)))

	body, err := b.fetcher.Fetch(ctx, hrmapi.AddEmployeePath, map[string]string{hrmapi.SessionCookie: s.Cookie})
	if err != nil {
		b.logger.Warn("fetching add employee page failed", zap.Error(err))
	}
	if m, ok := csrf.ActionToken(body); ok {
		s.ActionToken = m.Token
		s.TokenStrategy = m.Strategy
		b.logger.Info("action token captured",
			zap.String("token", logger.Truncate(m.Token, 10)),
			zap.String("strategy", string(m.Strategy)))
	} else {
		b.logger.Warn("could not find action token in add employee page")
	}

	return s
}

// sessionCookie takes the first orangehrm cookie from the login response,
// then from the jar.
func (b *Bootstrapper) sessionCookie(resp *client.Response) string {
	if resp != nil {
		if v, ok := resp.Cookie(hrmapi.SessionCookie); ok && v != "" {
			return v
		}
	}
	for _, path := range []string{"/web/index.php/", "/"} {
		if v, ok := b.client.Cookie(path, hrmapi.SessionCookie); ok && v != "" {
			return v
		}
	}
	return ""
}
