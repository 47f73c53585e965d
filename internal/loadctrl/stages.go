// Package loadctrl controls how much load a run applies: ramping stages that
// set the number of virtual users, the pool of VUs itself, and an optional
// request rate cap.
package loadctrl

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNoStages is returned by NewStageShaper for an empty stage list.
var ErrNoStages = errors.New("loadctrl: at least one stage is required")

// Stage ramps linearly to Target VUs over Duration.
type Stage struct {
	Duration time.Duration `yaml:"duration" json:"duration"`
	Target   int           `yaml:"target" json:"target"`
}

// StageShaper computes the VU target for any point of a run.
//
//	target
//	  20 |      ________
//	     |     /        \
//	     |    /          \
//	   0 |___/            \__
//	       30s    1m     10s
//
// Thread Safety: read-only after creation.
type StageShaper struct {
	stages     []Stage
	start      int
	cumulative []time.Duration
	total      time.Duration
}

// NewStageShaper validates stages. start is the VU count the first stage ramps from.
func NewStageShaper(start int, stages []Stage) (*StageShaper, error) {
	if len(stages) == 0 {
		return nil, ErrNoStages
	}
	if start < 0 {
		return nil, fmt.Errorf("loadctrl: start VUs cannot be negative: %d", start)
	}

	cumulative := make([]time.Duration, len(stages))
	var total time.Duration
	for i, st := range stages {
		if st.Duration <= 0 {
			return nil, fmt.Errorf("loadctrl: stage %d: duration must be positive: %v", i, st.Duration)
		}
		if st.Target < 0 {
			return nil, fmt.Errorf("loadctrl: stage %d: target cannot be negative: %d", i, st.Target)
		}
		total += st.Duration
		cumulative[i] = total
	}

	return &StageShaper{
		stages:     append([]Stage(nil), stages...),
		start:      start,
		cumulative: cumulative,
		total:      total,
	}, nil
}

// TargetVUs returns the VU count for elapsed, rounded to the nearest integer.
// Past the end it returns the last stage's target.
func (s *StageShaper) TargetVUs(elapsed time.Duration) int {
	idx, pos := s.position(elapsed)
	st := s.stages[idx]
	from := s.from(idx)
	progress := float64(pos) / float64(st.Duration)
	return int(math.Round(float64(from) + float64(st.Target-from)*progress))
}

// Done reports whether every stage has elapsed.
func (s *StageShaper) Done(elapsed time.Duration) bool {
	return elapsed >= s.total
}

// TotalDuration is the sum of all stage durations.
func (s *StageShaper) TotalDuration() time.Duration {
	return s.total
}

// MaxVUs is the highest target reached.
func (s *StageShaper) MaxVUs() int {
	m := s.start
	for _, st := range s.stages {
		m = max(m, st.Target)
	}
	return m
}

// StageIndex returns the 0-based index of the current stage.
func (s *StageShaper) StageIndex(elapsed time.Duration) int {
	idx, _ := s.position(elapsed)
	return idx
}

// Phase describes the current stage for progress logs.
func (s *StageShaper) Phase(elapsed time.Duration) string {
	idx, pos := s.position(elapsed)
	st := s.stages[idx]
	from := s.from(idx)
	pct := float64(pos) / float64(st.Duration) * 100

	if from == st.Target {
		return fmt.Sprintf("stage %d/%d: holding at %d VUs (%.0f%%)", idx+1, len(s.stages), st.Target, pct)
	}
	return fmt.Sprintf("stage %d/%d: ramping %d -> %d VUs (%.0f%%)", idx+1, len(s.stages), from, st.Target, pct)
}

func (s *StageShaper) from(idx int) int {
	if idx == 0 {
		return s.start
	}
	return s.stages[idx-1].Target
}

func (s *StageShaper) position(elapsed time.Duration) (int, time.Duration) {
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= s.total {
		last := len(s.stages) - 1
		return last, s.stages[last].Duration
	}
	var stageStart time.Duration
	for i, end := range s.cumulative {
		if elapsed < end {
			return i, elapsed - stageStart
		}
		stageStart = end
	}
	last := len(s.stages) - 1
	return last, s.stages[last].Duration
}
