// Package mode owns the online/offline session lifecycle. Exactly one mode
// is ever live; every transition is serialized under the arbiter's lock.
package mode

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexvoice/internal/bus"
	"github.com/normanking/cortexvoice/internal/metrics"
)

// Mode identifies which conversation engine is live.
type Mode int

const (
	Idle Mode = iota
	Online
	Offline
)

func (m Mode) String() string {
	switch m {
	case Online:
		return "online"
	case Offline:
		return "offline"
	default:
		return "idle"
	}
}

// Session is one run of a conversation engine. Run blocks until the session
// ends naturally or Stop is called; Stop is cooperative and must tolerate
// being called on an already-closing session.
type Session interface {
	Run() error
	Stop() error
}

// SessionFactory initializes a new session. Initialization failure (missing
// credentials, handshake timeout) is reported to the caller and leaves the
// arbiter Idle; the factory is not retried by the arbiter itself.
type SessionFactory func() (Session, error)

// Arbiter is the mode state machine. One mutex guards the mode, the
// switching flag and the session handle; the conversation-ended signal has
// its own lock so consumers never contend with transitions.
type Arbiter struct {
	logger      zerolog.Logger
	events      *bus.EventBus
	newOnline   SessionFactory
	newOffline  SessionFactory
	joinTimeout time.Duration

	mu        sync.Mutex
	mode      Mode
	switching bool
	current   Session       // live session handle; nil when Idle
	done      chan struct{} // closed when the live worker's Run returns

	ended *Signal
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithJoinTimeout bounds how long StopCurrent waits for a worker to unwind.
// A worker that misses the deadline is abandoned, never blocked on.
func WithJoinTimeout(d time.Duration) Option {
	return func(a *Arbiter) { a.joinTimeout = d }
}

// NewArbiter creates an arbiter in Idle with the given session factories.
func NewArbiter(online, offline SessionFactory, events *bus.EventBus, logger zerolog.Logger, opts ...Option) *Arbiter {
	a := &Arbiter{
		logger:      logger.With().Str("component", "mode-arbiter").Logger(),
		events:      events,
		newOnline:   online,
		newOffline:  offline,
		joinTimeout: 2 * time.Second,
		ended:       NewSignal(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Mode returns the current mode.
func (a *Arbiter) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// Switching reports whether a transition is mid-flight.
func (a *Arbiter) Switching() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.switching
}

// IdleSettled reports whether the arbiter is genuinely Idle with no switch
// in progress. The monitor uses this to tell a natural conversation end from
// a deliberate teardown.
func (a *Arbiter) IdleSettled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode == Idle && !a.switching
}

// ConversationEnded returns the one-shot signal a finishing worker sets when
// its session concludes naturally.
func (a *Arbiter) ConversationEnded() *Signal {
	return a.ended
}

// RequestOnline transitions to the online engine. Calling while already
// online is a no-op that still clears a stale switching flag.
func (a *Arbiter) RequestOnline() error {
	return a.request(Online, a.newOnline)
}

// RequestOffline transitions to the offline engine. Idempotent like
// RequestOnline.
func (a *Arbiter) RequestOffline() error {
	return a.request(Offline, a.newOffline)
}

func (a *Arbiter) request(target Mode, factory SessionFactory) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mode == target {
		a.switching = false
		return nil
	}

	a.switching = true
	a.ended.Clear()

	if a.mode != Idle {
		a.logger.Info().Stringer("from", a.mode).Stringer("to", target).Msg("Preempting live mode")
		a.stopCurrentLocked()
	}
	a.current = nil

	sess, err := factory()
	if err != nil {
		a.switching = false
		metrics.SessionStarts.WithLabelValues(target.String(), "init_failed").Inc()
		a.events.Publish(bus.Event{Type: bus.EventTypeSessionFailed, Data: map[string]any{
			"mode": target.String(), "error": err.Error(),
		}})
		a.logger.Warn().Err(err).Stringer("target", target).Msg("Session init failed, staying idle")
		return fmt.Errorf("%s: %w: %w", target, ErrSessionInit, err)
	}

	a.current = sess
	a.mode = target
	done := make(chan struct{})
	a.done = done
	go a.runWorker(target, sess, done)

	// The worker is confirmed started; only now does the transition end.
	a.switching = false

	metrics.ModeSwitches.WithLabelValues(target.String()).Inc()
	metrics.CurrentMode.Set(float64(target))
	metrics.SessionStarts.WithLabelValues(target.String(), "ok").Inc()
	a.events.Publish(bus.Event{Type: bus.EventTypeModeChanged, Data: map[string]any{
		"mode": target.String(),
	}})
	a.logger.Info().Stringer("mode", target).Msg("Mode started")
	return nil
}

// runWorker runs the session to completion on its own goroutine. Completion
// closes done before taking the lock, so a bounded join in StopCurrent can
// observe it even while the lock is held by the stopper.
func (a *Arbiter) runWorker(m Mode, sess Session, done chan struct{}) {
	err := sess.Run()
	close(done)

	a.mu.Lock()
	defer a.mu.Unlock()

	// Owner-generation check: a slow-finishing worker whose handle has been
	// replaced must not clobber the newer session's state.
	if a.current != sess {
		a.logger.Debug().Stringer("mode", m).Msg("Stale worker finished, state untouched")
		return
	}

	if err != nil {
		a.logger.Warn().Err(err).Stringer("mode", m).Msg("Session ended with error")
	}

	a.mode = Idle
	a.current = nil
	metrics.CurrentMode.Set(float64(Idle))

	if !a.switching {
		// Mode goes Idle before the signal so the monitor's re-check sees a
		// settled arbiter.
		a.ended.Set()
		a.events.Publish(bus.Event{Type: bus.EventTypeConversationEnded, Data: map[string]any{
			"mode": m.String(),
		}})
		a.logger.Info().Stringer("mode", m).Msg("Conversation ended naturally")
	}
}

// StopCurrent tears down whatever mode is live and leaves the arbiter Idle.
// Safe to call when Idle.
func (a *Arbiter) StopCurrent() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.switching = true
	a.stopCurrentLocked()
	a.switching = false
}

// stopCurrentLocked performs the teardown under a.mu. The handle is cleared
// before stopping so the finishing worker fails its owner check; expected
// teardown noise is swallowed; the join is bounded and an overdue worker is
// abandoned rather than waited on.
func (a *Arbiter) stopCurrentLocked() {
	sess := a.current
	done := a.done
	prev := a.mode

	a.current = nil
	a.done = nil
	a.mode = Idle
	metrics.CurrentMode.Set(float64(Idle))

	if sess == nil {
		return
	}

	if err := sess.Stop(); err != nil {
		if errors.Is(err, ErrExpectedTeardown) {
			a.logger.Debug().Err(err).Stringer("mode", prev).Msg("Teardown noise during stop")
		} else {
			a.logger.Warn().Err(err).Stringer("mode", prev).Msg("Error stopping session")
		}
	}

	if done != nil {
		timer := time.NewTimer(a.joinTimeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			a.logger.Warn().Stringer("mode", prev).Dur("timeout", a.joinTimeout).
				Msg("Worker did not unwind in time, abandoning")
		}
	}
	a.logger.Info().Stringer("mode", prev).Msg("Mode stopped")
}
