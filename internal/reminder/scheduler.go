package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/normanking/cortexvoice/internal/bus"
	"github.com/normanking/cortexvoice/internal/metrics"
	"github.com/normanking/cortexvoice/internal/speech"
	"github.com/normanking/cortexvoice/internal/timeparse"
)

// SchedulerConfig holds scheduling policy.
type SchedulerConfig struct {
	// FallbackDelay is how far out to place a reminder whose time fragment
	// could not be parsed. Zero disables the fallback and surfaces the parse
	// error instead.
	FallbackDelay time.Duration

	// SweepSchedule is the cron spec for the orphan reconciliation sweep.
	SweepSchedule string
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		FallbackDelay: time.Minute,
		SweepSchedule: "@hourly",
	}
}

// Scheduler turns stored reminders into one-shot timers and announces them
// when due. Timer bookkeeping has its own small mutex; the reminder file
// stays behind the store's mutex, so a slow announcement never blocks
// anything but its own timer goroutine.
type Scheduler struct {
	logger  zerolog.Logger
	store   *Store
	parser  *timeparse.Parser
	speaker speech.Speaker
	events  *bus.EventBus
	config  SchedulerConfig

	// Now supplies the reference instant. Tests pin it.
	Now func() time.Time

	tmu    sync.Mutex
	timers map[string]*time.Timer
	cron   *cron.Cron
}

// NewScheduler creates a scheduler over the given store.
func NewScheduler(store *Store, parser *timeparse.Parser, speaker speech.Speaker, events *bus.EventBus, logger zerolog.Logger, config SchedulerConfig) *Scheduler {
	return &Scheduler{
		logger:  logger.With().Str("component", "reminder-scheduler").Logger(),
		store:   store,
		parser:  parser,
		speaker: speaker,
		events:  events,
		config:  config,
		Now:     time.Now,
		timers:  make(map[string]*time.Timer),
		cron:    cron.New(),
	}
}

// Start reconciles persisted reminders and begins scheduling. Active
// reminders already in the past are retired, never fired retroactively;
// active future ones get their timers back.
func (s *Scheduler) Start() error {
	now := s.Now()

	stale, err := s.store.DeactivatePast(now)
	if err != nil {
		return fmt.Errorf("boot reconciliation: %w", err)
	}
	for _, r := range stale {
		s.logger.Info().Uint64("id", r.ID).Str("text", r.Text).Time("due", r.Time).
			Msg("Retired stale reminder")
	}

	upcoming := s.store.ActiveFuture(now)
	for _, r := range upcoming {
		s.Schedule(r)
	}

	if _, err := s.cron.AddFunc(s.config.SweepSchedule, s.sweep); err != nil {
		return fmt.Errorf("add sweep schedule %q: %w", s.config.SweepSchedule, err)
	}
	s.cron.Start()

	s.updateGauge()
	s.logger.Info().Int("scheduled", len(upcoming)).Int("retired", len(stale)).
		Msg("Reminder scheduler started")
	return nil
}

// Stop cancels every pending timer and halts the sweep. The wait on
// in-flight cron jobs is bounded.
func (s *Scheduler) Stop() {
	cronDone := s.cron.Stop().Done()

	s.tmu.Lock()
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
	s.tmu.Unlock()

	select {
	case <-cronDone:
	case <-time.After(2 * time.Second):
		s.logger.Warn().Msg("Timed out waiting for sweep to finish")
	}
	s.logger.Info().Msg("Reminder scheduler stopped")
}

// Create parses the time fragment, persists a new reminder and schedules it.
// The returned confirmation is ready to speak; it flags the fallback window
// when the fragment could not yield a usable time. A parse failure of any
// kind falls back rather than rejecting; only a disabled fallback window
// surfaces the error to the caller.
func (s *Scheduler) Create(text, timeFragment string) (Reminder, string, error) {
	now := s.Now()

	due, err := s.parser.Parse(timeFragment)
	var parseFailure error
	if err != nil {
		if s.config.FallbackDelay <= 0 {
			return Reminder{}, "", err
		}
		parseFailure = err
		due = now.Add(s.config.FallbackDelay)
		s.logger.Warn().Str("fragment", timeFragment).Dur("fallback", s.config.FallbackDelay).
			Err(err).Msg("Unusable time fragment, using fallback window")
	}

	r, err := s.store.Add(text, due)
	if err != nil {
		return Reminder{}, "", err
	}
	s.Schedule(r)

	metrics.RemindersCreated.Inc()
	s.updateGauge()
	s.events.Publish(bus.Event{Type: bus.EventTypeReminderCreated, Data: map[string]any{
		"id": r.ID, "text": r.Text, "due": r.Time,
	}})

	when := timeparse.FormatHuman(due, now)
	var confirmation string
	switch {
	case errors.Is(parseFailure, timeparse.ErrTimeAlreadyPassed):
		confirmation = fmt.Sprintf("That time has already passed today, so I'll remind you to %s at %s.", text, due.Format("03:04 PM"))
	case parseFailure != nil:
		confirmation = fmt.Sprintf("I couldn't make out the time, so I'll remind you to %s at %s.", text, due.Format("03:04 PM"))
	default:
		confirmation = fmt.Sprintf("I'll remind you to %s %s.", text, when)
	}
	return r, confirmation, nil
}

// Schedule registers the one-shot timer for a reminder. Re-registering the
// same reminder replaces its timer rather than duplicating it.
func (s *Scheduler) Schedule(r Reminder) {
	delay := r.Time.Sub(s.Now())
	if delay < 0 {
		delay = 0
	}

	s.tmu.Lock()
	defer s.tmu.Unlock()
	if old, ok := s.timers[r.Key()]; ok {
		old.Stop()
	}
	s.timers[r.Key()] = time.AfterFunc(delay, func() { s.fire(r) })
	s.logger.Debug().Uint64("id", r.ID).Time("due", r.Time).Dur("delay", delay).
		Msg("Reminder scheduled")
}

// fire announces a due reminder, then retires it. Runs on the timer
// goroutine; the store mutex is the only lock it shares with anyone.
func (s *Scheduler) fire(r Reminder) {
	s.tmu.Lock()
	delete(s.timers, r.Key())
	s.tmu.Unlock()

	s.logger.Info().Uint64("id", r.ID).Str("text", r.Text).Msg("Reminder due")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.speaker.Speak(ctx, "Reminder: "+r.Text); err != nil {
		s.logger.Warn().Err(err).Uint64("id", r.ID).Msg("Reminder announcement failed")
	}

	if _, err := s.store.Deactivate(r.ID); err != nil {
		var perr *PersistError
		if errors.As(err, &perr) {
			metrics.PersistFailures.Inc()
		}
		s.logger.Error().Err(err).Uint64("id", r.ID).Msg("Failed to retire fired reminder")
	}

	metrics.RemindersFired.Inc()
	s.updateGauge()
	s.events.Publish(bus.Event{Type: bus.EventTypeReminderFired, Data: map[string]any{
		"id": r.ID, "text": r.Text,
	}})
}

// List returns active future reminders sorted by due time; the slice
// ordering is what DeleteByNumber addresses.
func (s *Scheduler) List() []Reminder {
	return s.store.ActiveFuture(s.Now())
}

// DeleteByNumber removes the n-th upcoming reminder, 1-indexed over the List
// ordering.
func (s *Scheduler) DeleteByNumber(n int) (Reminder, error) {
	list := s.List()
	if n < 1 || n > len(list) {
		return Reminder{}, fmt.Errorf("reminder %d of %d upcoming: %w", n, len(list), ErrNotFound)
	}
	return s.delete(list[n-1])
}

// DeleteByContent removes the single active future reminder whose text
// matches the phrase, by substring first and any-word second. More than one
// match declines and reports the candidates.
func (s *Scheduler) DeleteByContent(phrase string) (Reminder, error) {
	frag := strings.ToLower(strings.TrimSpace(phrase))
	if frag == "" {
		return Reminder{}, ErrNotFound
	}

	candidates := s.List()
	var matches []Reminder
	for _, r := range candidates {
		if strings.Contains(strings.ToLower(r.Text), frag) {
			matches = append(matches, r)
		}
	}
	if len(matches) == 0 {
		words := strings.Fields(frag)
		for _, r := range candidates {
			if containsAnyWord(strings.ToLower(r.Text), words) {
				matches = append(matches, r)
			}
		}
	}

	switch len(matches) {
	case 0:
		return Reminder{}, fmt.Errorf("%q: %w", phrase, ErrNotFound)
	case 1:
		return s.delete(matches[0])
	default:
		return Reminder{}, &AmbiguousMatchError{Matches: matches}
	}
}

func (s *Scheduler) delete(r Reminder) (Reminder, error) {
	s.cancelTimer(r.Key())
	deleted, err := s.store.Deactivate(r.ID)
	if err != nil {
		return Reminder{}, err
	}

	metrics.RemindersDeleted.Inc()
	s.updateGauge()
	s.events.Publish(bus.Event{Type: bus.EventTypeReminderDeleted, Data: map[string]any{
		"id": deleted.ID, "text": deleted.Text,
	}})
	return deleted, nil
}

// ClearAll cancels every pending timer and empties the store in one write.
func (s *Scheduler) ClearAll() (int, error) {
	s.tmu.Lock()
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
	s.tmu.Unlock()

	n, err := s.store.Clear()
	if err != nil {
		return 0, err
	}
	s.updateGauge()
	s.events.Publish(bus.Event{Type: bus.EventTypeReminderCleared, Data: map[string]any{
		"count": n,
	}})
	return n, nil
}

// Reload re-reads the store after an external edit and rebuilds the timer
// set to match.
func (s *Scheduler) Reload() {
	changed, err := s.store.ReloadIfChanged()
	if err != nil {
		s.logger.Error().Err(err).Msg("Reminder store reload failed")
		return
	}
	if !changed {
		return
	}

	s.tmu.Lock()
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
	s.tmu.Unlock()

	now := s.Now()
	if stale, err := s.store.DeactivatePast(now); err != nil {
		s.logger.Error().Err(err).Msg("Reconciliation after reload failed")
	} else if len(stale) > 0 {
		s.logger.Info().Int("retired", len(stale)).Msg("Retired stale reminders after reload")
	}
	upcoming := s.store.ActiveFuture(now)
	for _, r := range upcoming {
		s.Schedule(r)
	}

	s.updateGauge()
	s.events.Publish(bus.Event{Type: bus.EventTypeStoreReloaded, Data: map[string]any{
		"scheduled": len(upcoming),
	}})
}

// sweep retires active past-due reminders that have no pending timer.
// Timers normally fire first; orphans appear when the file was edited
// externally or a timer was lost across a suspend.
func (s *Scheduler) sweep() {
	now := s.Now()
	for _, r := range s.store.All() {
		if !r.Active || r.Time.After(now) {
			continue
		}
		s.tmu.Lock()
		_, pending := s.timers[r.Key()]
		s.tmu.Unlock()
		if pending {
			continue
		}
		if _, err := s.store.Deactivate(r.ID); err != nil {
			s.logger.Error().Err(err).Uint64("id", r.ID).Msg("Sweep failed to retire reminder")
			continue
		}
		s.logger.Info().Uint64("id", r.ID).Str("text", r.Text).Msg("Sweep retired orphaned reminder")
	}
	s.updateGauge()
}

func (s *Scheduler) cancelTimer(key string) {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

func (s *Scheduler) updateGauge() {
	metrics.ActiveReminders.Set(float64(len(s.store.ActiveFuture(s.Now()))))
}

func containsAnyWord(text string, words []string) bool {
	textWords := strings.Fields(text)
	for _, w := range words {
		for _, tw := range textWords {
			if tw == w {
				return true
			}
		}
	}
	return false
}
