package mode

import (
	"sync"
	"time"
)

// Signal is a one-shot, clearable event. Setting an already-set signal and
// clearing an already-clear one are both no-ops, so producers never need to
// coordinate. It carries its own mutex: signaling never touches the arbiter
// lock.
type Signal struct {
	mu sync.Mutex
	ch chan struct{} // closed while set
}

// NewSignal returns a cleared signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Set marks the signal. Idempotent.
func (s *Signal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.ch:
	default:
		close(s.ch)
	}
}

// Clear resets the signal. Idempotent.
func (s *Signal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.ch:
		s.ch = make(chan struct{})
	default:
	}
}

// IsSet reports whether the signal is currently set.
func (s *Signal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until the signal is set or the timeout elapses, and reports
// which happened. It does not clear the signal; consumers clear and then
// re-check state, tolerating spurious sets.
func (s *Signal) Wait(timeout time.Duration) bool {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}
