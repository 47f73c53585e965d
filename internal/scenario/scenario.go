// Package scenario holds the per-VU iterations a load run executes: repeated
// logins, and employee creation against a session bootstrapped in Setup.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/bootstrap"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/client"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/config"
	"github.com/hemanthi1109-arch/orangehrm-automation-qa/internal/generator"
)

// ErrUnknownScenario is returned by New for names it does not know.
var ErrUnknownScenario = errors.New("scenario: unknown scenario")

// Scenario is one load script.
type Scenario interface {
	Name() string
	// Setup runs once before any VU starts.
	Setup(ctx context.Context) error
	// Iteration is the body each VU loops over.
	Iteration(ctx context.Context) error
}

// CheckRecorder records named pass/fail checks.
type CheckRecorder interface {
	RecordCheck(name string, passed bool)
}

// Deps is what a scenario needs from the runner.
type Deps struct {
	// Client is shared by all VUs.
	Client *client.Client
	// SetupClient runs Setup. It keeps its own cookie jar. Default: Client
	SetupClient *client.Client
	// Fetcher renders the add-employee page during bootstrap. Default: HTTP
	Fetcher bootstrap.DocumentFetcher
	Checks  CheckRecorder
	Logger  *zap.Logger
}

type factory func(cfg *config.Config, deps Deps) (Scenario, error)

var registry = map[string]factory{
	config.ScenarioLogin: func(cfg *config.Config, deps Deps) (Scenario, error) {
		return NewLogin(deps.Client, cfg.Credentials, cfg.Pacing, deps.Checks, deps.Logger), nil
	},
	config.ScenarioCreateEmployee: func(cfg *config.Config, deps Deps) (Scenario, error) {
		gen, err := generator.NewEmployeeGenerator(generator.Config{
			FirstName:  cfg.Employee.FirstName,
			MiddleName: cfg.Employee.MiddleName,
			Names:      generator.NameMode(cfg.Employee.Names),
			Seed:       cfg.Employee.Seed,
		})
		if err != nil {
			return nil, fmt.Errorf("scenario: %w", err)
		}
		setup := deps.SetupClient
		if setup == nil {
			setup = deps.Client
		}
		opts := []bootstrap.Option{bootstrap.WithLogger(deps.Logger)}
		if deps.Fetcher != nil {
			opts = append(opts, bootstrap.WithFetcher(deps.Fetcher))
		}
		if deps.Checks != nil {
			opts = append(opts, bootstrap.WithChecks(deps.Checks))
		}
		return NewCreateEmployee(CreateEmployeeOptions{
			Client:    deps.Client,
			Bootstrap: bootstrap.New(setup, cfg.Credentials, opts...),
			Generator: gen,
			UserAgent: cfg.Target.UserAgent,
			Pacing:    cfg.Pacing,
			Checks:    deps.Checks,
			Logger:    deps.Logger,
		}), nil
	},
}

// New builds the scenario cfg.Scenario names.
func New(cfg *config.Config, deps Deps) (Scenario, error) {
	f, ok := registry[cfg.Scenario]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, cfg.Scenario)
	}
	if deps.Client == nil {
		return nil, errors.New("scenario: client is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return f(cfg, deps)
}

// Names lists the registered scenarios.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

type nopChecks struct{}

func (nopChecks) RecordCheck(string, bool) {}
