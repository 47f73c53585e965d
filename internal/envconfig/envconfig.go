// Package envconfig selects the target environment for the browser suites and
// exposes the shared test data.
//
// TEST_ENV picks one of the embedded environment files (qa, dev, stage). BASE_URL
// overrides the environment url and HRM_-prefixed variables override any other
// key, e.g. HRM_CREDENTIALS_PASSWORD.
package envconfig

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

//go:embed envs/*.json data.json
var files embed.FS

// DefaultEnv is used when TEST_ENV is unset or unknown.
const DefaultEnv = "qa"

// DefaultBaseURL is the public OrangeHRM demo.
const DefaultBaseURL = "https://opensource-demo.orangehrmlive.com"

// ErrConfigNotFound is returned when an environment file cannot be read.
var ErrConfigNotFound = errors.New("envconfig: environment file not found")

var knownEnvs = map[string]bool{"qa": true, "dev": true, "stage": true}

// Credentials is the login used by the suites.
type Credentials struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Environment is one resolved environment file.
type Environment struct {
	Name        string
	URL         string      `mapstructure:"url"`
	Credentials Credentials `mapstructure:"credentials"`
}

// Manager resolves environments. The zero value is not usable; call NewManager.
type Manager struct {
	logger *zap.Logger
	// Dir, when set, is searched for <env>.json before the embedded files.
	Dir string
}

// NewManager returns a Manager. HRM_ENV_DIR sets Dir.
func NewManager(l *zap.Logger) *Manager {
	if l == nil {
		l = zap.NewNop()
	}
	return &Manager{
		logger: l.Named("envconfig"),
		Dir:    os.Getenv("HRM_ENV_DIR"),
	}
}

// EnvName resolves TEST_ENV, falling back to qa with a warning.
func (m *Manager) EnvName() string {
	raw := os.Getenv("TEST_ENV")
	if raw == "" {
		return DefaultEnv
	}
	name := strings.ToLower(strings.TrimSpace(raw))
	if !knownEnvs[name] {
		m.logger.Warn("environment not found, defaulting to qa", zap.String("env", raw))
		return DefaultEnv
	}
	return name
}

// Load reads the environment selected by TEST_ENV.
func (m *Manager) Load() (*Environment, error) {
	return m.LoadEnv(m.EnvName())
}

// LoadEnv reads the named environment and applies overrides.
func (m *Manager) LoadEnv(name string) (*Environment, error) {
	data, err := m.readEnvFile(name)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("envconfig: parsing %s: %w", name, err)
	}
	v.SetEnvPrefix("HRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("url", "BASE_URL"); err != nil {
		return nil, fmt.Errorf("envconfig: binding BASE_URL: %w", err)
	}

	env := &Environment{
		Name: name,
		URL:  strings.TrimRight(v.GetString("url"), "/"),
		Credentials: Credentials{
			Username: v.GetString("credentials.username"),
			Password: v.GetString("credentials.password"),
		},
	}
	if env.URL == "" {
		env.URL = DefaultBaseURL
	}

	m.logger.Info("loaded environment",
		zap.String("env", env.Name),
		zap.String("url", env.URL),
		zap.String("user", env.Credentials.Username),
	)
	return env, nil
}

func (m *Manager) readEnvFile(name string) ([]byte, error) {
	if m.Dir != "" {
		data, err := os.ReadFile(filepath.Join(m.Dir, name+".json"))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("envconfig: reading %s: %w", name, err)
		}
	}
	data, err := files.ReadFile("envs/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, name)
	}
	return data, nil
}

// APIBaseURL is the base URL for API helpers: BASE_URL or the public demo.
func APIBaseURL() string {
	if u := os.Getenv("BASE_URL"); u != "" {
		return strings.TrimRight(u, "/")
	}
	return DefaultBaseURL
}
