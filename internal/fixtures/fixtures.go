// Package fixtures composes the page objects, API helpers and test data each
// browser test needs, on top of one shared Chromium instance per test binary.
package fixtures

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/envconfig"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/hrmapi"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/pages"
)

// Browser timeouts, in milliseconds.
const (
	ActionTimeout     = 15000
	NavigationTimeout = 30000
)

// DefaultResultsDir receives failure screenshots.
const DefaultResultsDir = "test-results"

// Suite owns the Playwright driver and browser of one test binary.
type Suite struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	logger  *zap.Logger

	Env  *envconfig.Environment
	Data *envconfig.TestData
	// ResultsDir receives <test>.png when a test fails.
	ResultsDir string
}

// NewSuite resolves the environment, starts Playwright and launches Chromium.
// HEADLESS=false shows the browser.
func NewSuite(logger *zap.Logger) (*Suite, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	env, err := envconfig.NewManager(logger).Load()
	if err != nil {
		return nil, err
	}
	data, err := envconfig.LoadTestData(env)
	if err != nil {
		return nil, err
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("fixtures: starting playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(Headless()),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("fixtures: launching chromium: %w", err)
	}

	logger.Info("browser suite ready",
		zap.String("env", env.Name),
		zap.String("url", env.URL),
		zap.Bool("headless", Headless()),
	)
	return &Suite{
		pw:         pw,
		browser:    browser,
		logger:     logger,
		Env:        env,
		Data:       data,
		ResultsDir: DefaultResultsDir,
	}, nil
}

// Headless is false only when HEADLESS=false.
func Headless() bool {
	return !strings.EqualFold(os.Getenv("HEADLESS"), "false")
}

// Close shuts the browser and the driver down.
func (s *Suite) Close() error {
	return errors.Join(s.browser.Close(), s.pw.Stop())
}

// Fixture is the per-test set of collaborators.
type Fixture struct {
	Context    playwright.BrowserContext
	Page       playwright.Page
	LoginPage  *pages.LoginPage
	PIMPage    *pages.PIMPage
	APIHelpers *hrmapi.Helpers
	Data       *envconfig.TestData
	Logger     *zap.Logger
}

// New opens an isolated browser context and page for t. The context is closed
// when t finishes, after a full-page screenshot if t failed.
func (s *Suite) New(t testing.TB) *Fixture {
	t.Helper()

	bctx, err := s.browser.NewContext(playwright.BrowserNewContextOptions{
		BaseURL: playwright.String(s.Env.URL),
	})
	if err != nil {
		t.Fatalf("fixtures: new browser context: %v", err)
	}
	bctx.SetDefaultTimeout(ActionTimeout)
	bctx.SetDefaultNavigationTimeout(NavigationTimeout)

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		t.Fatalf("fixtures: new page: %v", err)
	}

	logger := s.logger.With(zap.String("test", t.Name()))
	t.Cleanup(func() {
		if t.Failed() {
			s.screenshot(t, page, logger)
		}
		if err := bctx.Close(); err != nil {
			logger.Warn("closing browser context", zap.Error(err))
		}
	})

	return &Fixture{
		Context:   bctx,
		Page:      page,
		LoginPage: pages.NewLoginPage(page),
		PIMPage:   pages.NewPIMPage(page, s.Data.Messages.Success),
		APIHelpers: hrmapi.NewHelpers(
			pages.APIRequester{Request: bctx.Request()},
			envconfig.APIBaseURL(),
			hrmapi.WithLogger(logger),
		),
		Data:   s.Data,
		Logger: logger,
	}
}

func (s *Suite) screenshot(t testing.TB, page playwright.Page, logger *zap.Logger) {
	path := ScreenshotPath(s.ResultsDir, t.Name())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Warn("creating results dir", zap.Error(err))
		return
	}
	if _, err := page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		logger.Warn("failure screenshot", zap.Error(err))
		return
	}
	t.Logf("screenshot: %s", path)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ScreenshotPath maps a test name to a file under dir.
func ScreenshotPath(dir, testName string) string {
	name := strings.Trim(unsafeChars.ReplaceAllString(testName, "_"), "_")
	if name == "" {
		name = "test"
	}
	return filepath.Join(dir, name+".png")
}

// LoggedIn navigates to the application, logs in with the suite user and
// asserts the dashboard is shown.
func (f *Fixture) LoggedIn() error {
	if err := f.LoginPage.Navigate(); err != nil {
		return err
	}
	if err := f.LoginPage.Login(f.Data.User.Username, f.Data.User.Password); err != nil {
		return err
	}
	return f.LoginPage.IsLoggedIn()
}
