package generator

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmployeeGenerator(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "fixed defaults", cfg: Config{FirstName: "K6", MiddleName: "Perf"}},
		{name: "faker", cfg: Config{Names: NamesFaker}},
		{name: "fixed without first name", cfg: Config{Names: NamesFixed}, wantErr: true},
		{name: "unknown mode", cfg: Config{FirstName: "K6", Names: "random"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewEmployeeGenerator(tt.cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, g)
		})
	}
}

func TestEmployeeGenerator_Next(t *testing.T) {
	g, err := NewEmployeeGenerator(Config{FirstName: "K6", MiddleName: "Perf"})
	require.NoError(t, err)

	for range 200 {
		rec := g.Next()
		id, err := strconv.Atoi(rec.EmployeeID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, id, 0)
		assert.Less(t, id, MaxEmployeeID)
		assert.Equal(t, "K6", rec.FirstName)
		assert.Equal(t, "Perf", rec.MiddleName)
		assert.Equal(t, "User_"+rec.EmployeeID, rec.LastName)
	}
}

func TestEmployeeGenerator_ForID(t *testing.T) {
	g, err := NewEmployeeGenerator(Config{FirstName: "K6", MiddleName: "Perf"})
	require.NoError(t, err)

	assert.Equal(t, EmployeeRecord{
		FirstName:  "K6",
		MiddleName: "Perf",
		LastName:   "User_42",
		EmployeeID: "42",
	}, g.ForID(42))
}

func TestEmployeeGenerator_SeedIsReproducible(t *testing.T) {
	a, err := NewEmployeeGenerator(Config{Names: NamesFaker, Seed: 7})
	require.NoError(t, err)
	b, err := NewEmployeeGenerator(Config{Names: NamesFaker, Seed: 7})
	require.NoError(t, err)

	for range 10 {
		assert.Equal(t, a.Next(), b.Next())
	}
}

func TestEmployeeGenerator_Concurrent(t *testing.T) {
	g, err := NewEmployeeGenerator(Config{Names: NamesFaker})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				rec := g.Next()
				assert.NotEmpty(t, rec.FirstName)
			}
		}()
	}
	wg.Wait()
}
