// Package scheduler serializes learning cycles: one cycle in flight at a
// time, never two starts closer than the cooldown.
package scheduler

import (
	"sync"
	"time"
)

// State holds the cooldown clock and the in-flight flag. It is an explicit,
// injectable object rather than process-global state so it can be unit
// tested; one mutex covers both fields, and the cooldown check plus the
// in-flight flip happen as a single step.
type State struct {
	mu        sync.Mutex
	lastRunAt time.Time
	inFlight  bool
}

func NewState() *State {
	return &State{}
}

// TryBegin atomically checks the cooldown and the in-flight flag and, when
// both allow it, marks the cycle as started. There is no separate
// check-then-set path.
func (s *State) TryBegin(now time.Time, cooldown time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return false
	}
	if !s.lastRunAt.IsZero() && now.Sub(s.lastRunAt) < cooldown {
		return false
	}
	s.inFlight = true
	return true
}

// Complete records the run and returns to idle. Called on success and on
// downstream failure alike.
func (s *State) Complete(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRunAt = now
	s.inFlight = false
}

// Abort returns to idle without consuming cooldown budget. Used for empty
// cycles so a quiet system is not starved of its next real run.
func (s *State) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
}

func (s *State) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

func (s *State) LastRunAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRunAt
}
