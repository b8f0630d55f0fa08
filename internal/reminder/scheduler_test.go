package reminder

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexvoice/internal/bus"
	"github.com/normanking/cortexvoice/internal/timeparse"
)

// recordingSpeaker captures announcements for assertions.
type recordingSpeaker struct {
	mu     sync.Mutex
	spoken []string
	ch     chan string
}

func newRecordingSpeaker() *recordingSpeaker {
	return &recordingSpeaker{ch: make(chan string, 16)}
}

func (s *recordingSpeaker) Name() string      { return "recording" }
func (s *recordingSpeaker) IsAvailable() bool { return true }

func (s *recordingSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()
	s.ch <- text
	return nil
}

func (s *recordingSpeaker) waitForAnnouncement(t *testing.T) string {
	t.Helper()
	select {
	case text := <-s.ch:
		return text
	case <-time.After(2 * time.Second):
		t.Fatal("no announcement arrived")
		return ""
	}
}

func newTestScheduler(t *testing.T, cfg SchedulerConfig) (*Scheduler, *recordingSpeaker) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reminders.json")
	store, err := NewStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	speaker := newRecordingSpeaker()
	s := NewScheduler(store, timeparse.New(), speaker, bus.NewEventBus(), zerolog.Nop(), cfg)
	return s, speaker
}

func TestScheduler_CreateParsesTimeFragment(t *testing.T) {
	s, _ := newTestScheduler(t, DefaultSchedulerConfig())
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.Local)
	s.Now = func() time.Time { return now }
	s.parser.Now = s.Now

	r, confirmation, err := s.Create("call mom", "call mom in 2 hours")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if want := now.Add(2 * time.Hour); !r.Time.Equal(want) {
		t.Errorf("due = %v, want %v", r.Time, want)
	}
	if !strings.Contains(confirmation, "I'll remind you to call mom") {
		t.Errorf("unexpected confirmation: %q", confirmation)
	}
	if strings.Contains(confirmation, "couldn't make out") {
		t.Errorf("parseable fragment should not use the fallback wording: %q", confirmation)
	}

	s.cancelTimer(r.Key())
}

func TestScheduler_CreateFallsBackWhenUnparseable(t *testing.T) {
	s, _ := newTestScheduler(t, SchedulerConfig{FallbackDelay: time.Minute, SweepSchedule: "@hourly"})
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.Local)
	s.Now = func() time.Time { return now }
	s.parser.Now = s.Now

	r, confirmation, err := s.Create("do the thing", "whenever feels right")
	if err != nil {
		t.Fatalf("Create with fallback: %v", err)
	}
	if want := now.Add(time.Minute); !r.Time.Equal(want) {
		t.Errorf("fallback due = %v, want %v", r.Time, want)
	}
	if !strings.Contains(confirmation, "couldn't make out the time") {
		t.Errorf("expected fallback wording, got %q", confirmation)
	}

	s.cancelTimer(r.Key())
}

func TestScheduler_CreateSurfacesParseErrorWithoutFallback(t *testing.T) {
	s, _ := newTestScheduler(t, SchedulerConfig{FallbackDelay: 0, SweepSchedule: "@hourly"})
	now := time.Date(2026, time.March, 10, 18, 0, 0, 0, time.Local)
	s.Now = func() time.Time { return now }
	s.parser.Now = s.Now

	_, _, err := s.Create("do the thing", "whenever feels right")
	if !errors.Is(err, timeparse.ErrUnparseable) {
		t.Errorf("expected ErrUnparseable with fallback disabled, got %v", err)
	}

	_, _, err = s.Create("call mom", "today at 9am")
	if !errors.Is(err, timeparse.ErrTimeAlreadyPassed) {
		t.Errorf("expected ErrTimeAlreadyPassed with fallback disabled, got %v", err)
	}

	if len(s.store.All()) != 0 {
		t.Error("a failed create must not persist anything")
	}
}

func TestScheduler_CreateFallsBackWhenTimePassed(t *testing.T) {
	s, _ := newTestScheduler(t, DefaultSchedulerConfig())
	now := time.Date(2026, time.March, 10, 18, 0, 0, 0, time.Local)
	s.Now = func() time.Time { return now }
	s.parser.Now = s.Now

	r, confirmation, err := s.Create("take medicine", "today at 5am")
	if err != nil {
		t.Fatalf("Create with a passed time must fall back, got %v", err)
	}
	if want := now.Add(time.Minute); !r.Time.Equal(want) {
		t.Errorf("fallback due = %v, want %v", r.Time, want)
	}
	if !strings.Contains(confirmation, "already passed") {
		t.Errorf("expected passed-time wording, got %q", confirmation)
	}

	s.cancelTimer(r.Key())
}

func TestScheduler_FireAnnouncesAndRetires(t *testing.T) {
	s, speaker := newTestScheduler(t, DefaultSchedulerConfig())

	r, err := s.store.Add("stretch your legs", time.Now().Add(20*time.Millisecond))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	s.Schedule(r)

	announced := speaker.waitForAnnouncement(t)
	if announced != "Reminder: stretch your legs" {
		t.Errorf("announcement = %q", announced)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if items := s.store.All(); len(items) == 1 && !items[0].Active {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("fired reminder was not retired")
}

func TestScheduler_StartRetiresStaleAndSchedulesUpcoming(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.json")
	store, err := NewStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	now := time.Now()
	if _, err := store.Add("from yesterday", now.Add(-24*time.Hour)); err != nil {
		t.Fatal(err)
	}
	upcoming, err := store.Add("later today", now.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	speaker := newRecordingSpeaker()
	s := NewScheduler(store, timeparse.New(), speaker, bus.NewEventBus(), zerolog.Nop(), DefaultSchedulerConfig())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	items := store.All()
	for _, item := range items {
		switch item.Text {
		case "from yesterday":
			if item.Active {
				t.Error("stale reminder should be retired at boot, not fired")
			}
		case "later today":
			if !item.Active {
				t.Error("upcoming reminder must stay active")
			}
		}
	}

	s.tmu.Lock()
	_, pending := s.timers[upcoming.Key()]
	staleKey := items[0].Key()
	_, stalePending := s.timers[staleKey]
	s.tmu.Unlock()
	if !pending {
		t.Error("expected a timer for the upcoming reminder")
	}
	if stalePending {
		t.Error("stale reminder must not get a timer")
	}

	// Retired, never announced.
	if len(speaker.spoken) != 0 {
		t.Errorf("boot reconciliation announced %v", speaker.spoken)
	}
}

func TestScheduler_DeleteByNumber(t *testing.T) {
	s, _ := newTestScheduler(t, DefaultSchedulerConfig())
	now := time.Now()

	if _, err := s.store.Add("call mom", now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.store.Add("water plants", now.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}

	deleted, err := s.DeleteByNumber(2)
	if err != nil {
		t.Fatalf("DeleteByNumber: %v", err)
	}
	if deleted.Text != "water plants" {
		t.Errorf("deleted %q, want the second upcoming reminder", deleted.Text)
	}
	if got := len(s.List()); got != 1 {
		t.Errorf("expected 1 reminder left, got %d", got)
	}

	if _, err := s.DeleteByNumber(5); !errors.Is(err, ErrNotFound) {
		t.Errorf("out-of-range number: expected ErrNotFound, got %v", err)
	}
	if _, err := s.DeleteByNumber(0); !errors.Is(err, ErrNotFound) {
		t.Errorf("zero number: expected ErrNotFound, got %v", err)
	}
}

func TestScheduler_DeleteByContent(t *testing.T) {
	s, _ := newTestScheduler(t, DefaultSchedulerConfig())
	now := time.Now()

	if _, err := s.store.Add("call mom", now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.store.Add("call grandma", now.Add(2*time.Hour)); err != nil {
		t.Fatal(err)
	}

	// Unique substring match deletes exactly one.
	deleted, err := s.DeleteByContent("mom")
	if err != nil {
		t.Fatalf("DeleteByContent: %v", err)
	}
	if deleted.Text != "call mom" {
		t.Errorf("deleted %q, want \"call mom\"", deleted.Text)
	}

	if _, err := s.store.Add("call mom back", now.Add(3*time.Hour)); err != nil {
		t.Fatal(err)
	}

	// Two matches decline and report both.
	_, err = s.DeleteByContent("call")
	var ambiguous *AmbiguousMatchError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("expected AmbiguousMatchError, got %v", err)
	}
	if len(ambiguous.Matches) != 2 {
		t.Errorf("expected 2 candidates, got %d", len(ambiguous.Matches))
	}
	if got := len(s.List()); got != 2 {
		t.Errorf("ambiguous delete must not remove anything, %d reminders left", got)
	}

	if _, err := s.DeleteByContent("dentist"); !errors.Is(err, ErrNotFound) {
		t.Errorf("no match: expected ErrNotFound, got %v", err)
	}
}

func TestScheduler_DeleteByContentWordFallback(t *testing.T) {
	s, _ := newTestScheduler(t, DefaultSchedulerConfig())
	now := time.Now()

	if _, err := s.store.Add("pick up the dry cleaning", now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	// No substring match for the whole phrase, but a word overlaps.
	deleted, err := s.DeleteByContent("cleaning errand")
	if err != nil {
		t.Fatalf("DeleteByContent word fallback: %v", err)
	}
	if deleted.Text != "pick up the dry cleaning" {
		t.Errorf("deleted %q", deleted.Text)
	}
}

func TestScheduler_ClearAll(t *testing.T) {
	s, _ := newTestScheduler(t, DefaultSchedulerConfig())
	now := time.Now()

	for _, text := range []string{"one", "two"} {
		r, err := s.store.Add(text, now.Add(time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		s.Schedule(r)
	}

	n, err := s.ClearAll()
	if err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 cleared, got %d", n)
	}
	if got := len(s.List()); got != 0 {
		t.Errorf("expected no reminders after ClearAll, got %d", got)
	}

	s.tmu.Lock()
	pending := len(s.timers)
	s.tmu.Unlock()
	if pending != 0 {
		t.Errorf("expected no pending timers after ClearAll, got %d", pending)
	}
}

func TestScheduler_TimerKeyFormat(t *testing.T) {
	r := Reminder{ID: 12}
	if got := r.Key(); got != "reminder_12" {
		t.Errorf("Key() = %q, want \"reminder_12\"", got)
	}
}
