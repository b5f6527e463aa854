package control

import (
	"sync"
	"sync/atomic"

	"github.com/roman-kulish/phenox-pilot/internal/phenox"
)

// State is the loop state owned by a Loop. The flags are safe to read from
// any goroutine; the mode cache and snapshot are written only by the tick
// holding the busy flag.
type State struct {
	enabled        atomic.Bool
	busy           atomic.Bool
	seriousTrouble atomic.Bool

	ticks   atomic.Uint64
	skipped atomic.Uint64

	mu       sync.Mutex
	prevMode phenox.OperateMode
	snapshot phenox.SelfState
}

// Enabled reports whether ticks are still being scheduled.
func (s *State) Enabled() bool {
	return s.enabled.Load()
}

// Busy reports whether a tick is executing.
func (s *State) Busy() bool {
	return s.busy.Load()
}

// SeriousTrouble reports whether a fatal condition was observed. Once set it
// stays set for the life of the process.
func (s *State) SeriousTrouble() bool {
	return s.seriousTrouble.Load()
}

// Ticks returns the number of executed ticks.
func (s *State) Ticks() uint64 {
	return s.ticks.Load()
}

// Skipped returns the number of ticks dropped because the previous one was
// still executing.
func (s *State) Skipped() uint64 {
	return s.skipped.Load()
}

// PreviousMode returns the operate mode observed by the last executed tick.
func (s *State) PreviousMode() phenox.OperateMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prevMode
}

// Snapshot returns the self-state read by the last executed tick.
func (s *State) Snapshot() phenox.SelfState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

func (s *State) setSnapshot(st phenox.SelfState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = st
}

// swapMode stores the current mode and returns the previous one.
func (s *State) swapMode(mode phenox.OperateMode) phenox.OperateMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.prevMode
	s.prevMode = mode
	return prev
}
