// Package generator produces the synthetic employee records used by the load
// scenarios and the browser suites.
package generator

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/brianvoe/gofakeit/v7"
)

// MaxEmployeeID bounds generated identifiers to [0, MaxEmployeeID).
const MaxEmployeeID = 100000

// ErrInvalidConfig is returned for an unusable generator configuration.
var ErrInvalidConfig = errors.New("generator: invalid configuration")

// NameMode selects how first names are produced.
type NameMode string

const (
	// NamesFixed uses the configured first name for every record.
	NamesFixed NameMode = "fixed"
	// NamesFaker draws first names from gofakeit.
	NamesFaker NameMode = "faker"
)

// EmployeeRecord is one synthetic employee. LastName is always User_<id> so a
// created record can be traced back to the request that made it.
type EmployeeRecord struct {
	FirstName  string `json:"firstName"`
	MiddleName string `json:"middleName"`
	LastName   string `json:"lastName"`
	EmployeeID string `json:"employeeId"`
}

// Config configures an EmployeeGenerator.
type Config struct {
	FirstName  string
	MiddleName string
	Names      NameMode
	// Seed makes the sequence reproducible. Zero means a random seed.
	Seed uint64
}

// EmployeeGenerator is safe for concurrent use by many virtual users.
type EmployeeGenerator struct {
	cfg   Config
	mu    sync.Mutex
	faker *gofakeit.Faker
}

// NewEmployeeGenerator validates cfg and returns a generator.
func NewEmployeeGenerator(cfg Config) (*EmployeeGenerator, error) {
	if cfg.Names == "" {
		cfg.Names = NamesFixed
	}
	switch cfg.Names {
	case NamesFixed:
		if cfg.FirstName == "" {
			return nil, fmt.Errorf("%w: firstName is required for fixed names", ErrInvalidConfig)
		}
	case NamesFaker:
	default:
		return nil, fmt.Errorf("%w: unknown name mode %q", ErrInvalidConfig, cfg.Names)
	}

	return &EmployeeGenerator{
		cfg:   cfg,
		faker: gofakeit.New(cfg.Seed),
	}, nil
}

// RandomID returns a non-cryptographic id in [0, MaxEmployeeID).
func (g *EmployeeGenerator) RandomID() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.faker.Number(0, MaxEmployeeID-1)
}

// Next returns a fresh record.
func (g *EmployeeGenerator) Next() EmployeeRecord {
	return g.ForID(g.RandomID())
}

// ForID builds the record for a given id.
func (g *EmployeeGenerator) ForID(id int) EmployeeRecord {
	first := g.cfg.FirstName
	if g.cfg.Names == NamesFaker {
		g.mu.Lock()
		first = g.faker.FirstName()
		g.mu.Unlock()
	}

	idStr := strconv.Itoa(id)
	return EmployeeRecord{
		FirstName:  first,
		MiddleName: g.cfg.MiddleName,
		LastName:   "User_" + idStr,
		EmployeeID: idStr,
	}
}
