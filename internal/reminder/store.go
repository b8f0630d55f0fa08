// Package reminder provides the durable reminder collection and its
// time-triggered firing. One JSON file is the single source of truth; every
// mutation rewrites it whole under one mutex.
package reminder

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Common errors
var (
	// ErrNotFound reports that no reminder matched an id, number or phrase.
	ErrNotFound = errors.New("no matching reminder")
	// ErrEmptyText rejects reminders with nothing to say.
	ErrEmptyText = errors.New("reminder text is empty")
)

// AmbiguousMatchError reports a content match that hit more than one
// reminder. Nothing is deleted; the matches go back to the caller for
// disambiguation.
type AmbiguousMatchError struct {
	Matches []Reminder
}

func (e *AmbiguousMatchError) Error() string {
	texts := make([]string, len(e.Matches))
	for i, m := range e.Matches {
		texts[i] = m.Text
	}
	return fmt.Sprintf("%d reminders match: %s", len(e.Matches), strings.Join(texts, "; "))
}

// PersistError reports a failed file write. The in-memory collection is not
// advanced past the last successfully persisted state.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string { return "persist reminders: " + e.Err.Error() }

func (e *PersistError) Unwrap() error { return e.Err }

// Reminder is one scheduled announcement. Records are never physically
// removed except by Clear; firing or deleting flips Active exactly once.
type Reminder struct {
	ID     uint64    `json:"id"`
	Text   string    `json:"text"`
	Time   time.Time `json:"time"`
	Active bool      `json:"active"`
}

// Key returns the scheduler timer key for the reminder.
func (r Reminder) Key() string {
	return fmt.Sprintf("reminder_%d", r.ID)
}

// Store owns the reminder file. All reads and mutations serialize on one
// mutex; writes are whole-file with write-then-replace semantics so a failed
// write leaves the previous content untouched.
type Store struct {
	logger zerolog.Logger
	path   string

	mu    sync.Mutex
	items []Reminder
}

// NewStore opens or creates the reminder file at path.
func NewStore(path string, logger zerolog.Logger) (*Store, error) {
	s := &Store{
		logger: logger.With().Str("component", "reminder-store").Logger(),
		path:   path,
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create reminder directory: %w", err)
	}
	items, err := s.readFile()
	if err != nil {
		return nil, err
	}
	s.items = items
	s.logger.Info().Str("path", path).Int("count", len(items)).Msg("Reminder store loaded")
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// All returns a copy of every record, active or not.
func (s *Store) All() []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.items)
}

// ActiveFuture returns active reminders due after now, sorted ascending by
// due time. This is the ordering user-facing numbering addresses.
func (s *Store) ActiveFuture(now time.Time) []Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return activeFutureLocked(s.items, now)
}

// Add assigns the next id, appends and persists. Ids grow monotonically from
// the maximum ever stored and are never reused.
func (s *Store) Add(text string, due time.Time) (Reminder, error) {
	if strings.TrimSpace(text) == "" {
		return Reminder{}, ErrEmptyText
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := Reminder{ID: maxID(s.items) + 1, Text: text, Time: due, Active: true}
	next := append(cloneItems(s.items), r)
	if err := s.writeFile(next); err != nil {
		return Reminder{}, err
	}
	s.items = next
	return r, nil
}

// Deactivate flips a reminder inactive and persists. Already-inactive is a
// no-op; an unknown id is ErrNotFound.
func (s *Store) Deactivate(id uint64) (Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.items {
		if s.items[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Reminder{}, ErrNotFound
	}
	if !s.items[idx].Active {
		return s.items[idx], nil
	}

	next := cloneItems(s.items)
	next[idx].Active = false
	if err := s.writeFile(next); err != nil {
		return Reminder{}, err
	}
	s.items = next
	return next[idx], nil
}

// DeactivatePast flips every active reminder dated at or before now to
// inactive in a single persisted write and returns the ones it touched.
// This is the boot reconciliation: stale reminders are retired, not fired.
func (s *Store) DeactivatePast(now time.Time) ([]Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []Reminder
	next := cloneItems(s.items)
	for i := range next {
		if next[i].Active && !next[i].Time.After(now) {
			next[i].Active = false
			stale = append(stale, next[i])
		}
	}
	if len(stale) == 0 {
		return nil, nil
	}
	if err := s.writeFile(next); err != nil {
		return nil, err
	}
	s.items = next
	return stale, nil
}

// Clear empties the collection in one persisted write and returns how many
// active reminders were dropped.
func (s *Store) Clear() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	for _, r := range s.items {
		if r.Active {
			active++
		}
	}
	if err := s.writeFile([]Reminder{}); err != nil {
		return 0, err
	}
	s.items = nil
	return active, nil
}

// ReloadIfChanged re-reads the backing file and swaps it in when its content
// differs from memory. Used when the file is edited behind the runtime's
// back.
func (s *Store) ReloadIfChanged() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.readFile()
	if err != nil {
		return false, err
	}
	if equalItems(items, s.items) {
		return false, nil
	}
	s.items = items
	s.logger.Info().Int("count", len(items)).Msg("Reminder store reloaded from disk")
	return true, nil
}

func (s *Store) readFile() ([]Reminder, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reminder file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var items []Reminder
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode reminder file %s: %w", s.path, err)
	}
	return items, nil
}

// writeFile writes the collection to a fresh temp file and renames it over
// the store path. The old content survives any failure before the rename.
func (s *Store) writeFile(items []Reminder) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return &PersistError{Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".reminders-*.json")
	if err != nil {
		return &PersistError{Err: err}
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &PersistError{Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &PersistError{Err: err}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return &PersistError{Err: err}
	}
	return nil
}

func cloneItems(items []Reminder) []Reminder {
	next := make([]Reminder, len(items))
	copy(next, items)
	return next
}

func activeFutureLocked(items []Reminder, now time.Time) []Reminder {
	var out []Reminder
	for _, r := range items {
		if r.Active && r.Time.After(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time.Equal(out[j].Time) {
			return out[i].ID < out[j].ID
		}
		return out[i].Time.Before(out[j].Time)
	})
	return out
}

func maxID(items []Reminder) uint64 {
	var max uint64
	for _, r := range items {
		if r.ID > max {
			max = r.ID
		}
	}
	return max
}

func equalItems(a, b []Reminder) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Text != b[i].Text ||
			a[i].Active != b[i].Active || !a[i].Time.Equal(b[i].Time) {
			return false
		}
	}
	return true
}
