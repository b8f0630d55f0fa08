package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexvoice/internal/bus"
	"github.com/normanking/cortexvoice/internal/mode"
)

// CheckFunc classifies reachability. Tests substitute their own.
type CheckFunc func(ctx context.Context) bool

// Monitor polls connectivity at a fixed interval and requests the matching
// mode on the first classification and on every edge after that. Between
// polls it watches the conversation-ended signal so a natural end is
// reported promptly.
type Monitor struct {
	logger   zerolog.Logger
	check    CheckFunc
	arbiter  *mode.Arbiter
	events   *bus.EventBus
	interval time.Duration

	mu        sync.Mutex
	lastKnown *bool
}

// NewMonitor creates a monitor driving the arbiter from check results.
func NewMonitor(check CheckFunc, arbiter *mode.Arbiter, events *bus.EventBus, interval time.Duration, logger zerolog.Logger) *Monitor {
	return &Monitor{
		logger:   logger.With().Str("component", "connectivity-monitor").Logger(),
		check:    check,
		arbiter:  arbiter,
		events:   events,
		interval: interval,
	}
}

// LastKnown returns the most recent classification, or nil before the first
// poll completes.
func (m *Monitor) LastKnown() *bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastKnown
}

// Run loops until the context is cancelled or the conversation ends
// naturally. Every wait inside the loop is bounded by the poll interval, so
// cancellation is observed promptly.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		isConnected := m.check(ctx)
		m.drive(isConnected)

		connected := isConnected
		m.mu.Lock()
		m.lastKnown = &connected
		m.mu.Unlock()

		// A natural conversation end surfaces here. An in-flight switch also
		// sets session workers in motion, so the signal alone is not enough:
		// clear it, then re-check that the arbiter has genuinely settled.
		if m.arbiter.ConversationEnded().Wait(m.interval) {
			m.arbiter.ConversationEnded().Clear()
			if m.arbiter.IdleSettled() {
				m.logger.Info().Msg("Conversation ended naturally, monitor exiting")
				return nil
			}
			m.logger.Debug().Msg("Ignoring conversation-ended signal from in-flight switch")
		}
	}
}

// drive requests a mode change on bootstrap (no prior classification) or on
// an edge. Steady-state polls are no-ops.
func (m *Monitor) drive(isConnected bool) {
	if m.lastKnown == nil {
		if isConnected {
			m.logger.Info().Msg("Internet connection detected, starting online mode")
			m.requestOnline()
		} else {
			m.logger.Info().Msg("No internet connection, starting offline mode")
			m.requestOffline()
		}
		return
	}

	if *m.lastKnown == isConnected {
		return
	}

	if isConnected {
		m.logger.Info().Msg("Internet connection detected")
		m.events.Publish(bus.Event{Type: bus.EventTypeConnectivityUp})
		// Guard against redundant switches while a manual switch is
		// mid-flight: only drive when not already in the target mode.
		if cur := m.arbiter.Mode(); cur == mode.Offline || cur == mode.Idle {
			m.requestOnline()
		}
	} else {
		m.logger.Info().Msg("Internet connection lost")
		m.events.Publish(bus.Event{Type: bus.EventTypeConnectivityDown})
		if cur := m.arbiter.Mode(); cur == mode.Online || cur == mode.Idle {
			m.requestOffline()
		}
	}
}

func (m *Monitor) requestOnline() {
	if err := m.arbiter.RequestOnline(); err != nil {
		// Init failure leaves the arbiter Idle; the next poll retries.
		m.logger.Warn().Err(err).Msg("Online mode unavailable, retrying next poll")
	}
}

func (m *Monitor) requestOffline() {
	if err := m.arbiter.RequestOffline(); err != nil {
		m.logger.Warn().Err(err).Msg("Offline mode unavailable, retrying next poll")
	}
}
