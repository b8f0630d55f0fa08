// Package timeparse turns natural-language time fragments ("tomorrow at 3pm",
// "in 20 minutes", "next friday morning") into absolute timestamps. Parsing is
// deterministic: rules are tried in a fixed precedence order and the first
// match wins.
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnparseable reports a fragment no rule matched.
	ErrUnparseable = errors.New("unparseable time fragment")
	// ErrTimeAlreadyPassed reports an explicit today-time that is already in
	// the past. It is never rolled over silently.
	ErrTimeAlreadyPassed = errors.New("time already passed today")
)

// ParseError carries the original fragment alongside the classification so
// callers can fall back or explain.
type ParseError struct {
	Fragment string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Fragment)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parser resolves fragments against a clock. The zero value is not usable;
// construct with New.
type Parser struct {
	// Now supplies the reference instant. Tests pin it.
	Now func() time.Time
}

// New returns a Parser using the wall clock.
func New() *Parser {
	return &Parser{Now: time.Now}
}

// weekdays maps day names, abbreviations included, to time.Weekday.
var weekdays = map[string]time.Weekday{
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
	"sunday": time.Sunday, "sun": time.Sunday,
}

var reRelative = regexp.MustCompile(`\bin (a|an|\d+) (minute|min|hour|hr|day)s?\b`)

// Parse maps a fragment to an absolute timestamp. Rule order encodes
// precedence: day-part expansion happens during normalization, then next-week,
// relative offsets, tomorrow, today-at, weekday names, and finally a bare
// clock time. Anything else is ErrUnparseable.
func (p *Parser) Parse(fragment string) (time.Time, error) {
	now := p.Now()
	text := normalize(fragment)

	if t, ok, err := parseNextWeek(text, now); ok {
		return t, err
	}
	if t, ok, err := parseRelative(text, now); ok {
		return t, err
	}
	if t, ok, err := parseTomorrow(text, now); ok {
		return t, err
	}
	if t, ok, err := parseTodayAt(text, now); ok {
		return t, err
	}
	if t, ok, err := parseWeekday(text, now); ok {
		return t, err
	}
	if t, ok, err := parseBareClock(text, now); ok {
		return t, err
	}
	return time.Time{}, &ParseError{Fragment: fragment, Err: ErrUnparseable}
}

// parseNextWeek handles "next week" with no explicit weekday or time:
// seven days out at 09:00. A weekday or clock in the fragment defers to the
// later, more specific rules ("monday next week" was rewritten to
// "next monday" during normalization).
func parseNextWeek(text string, now time.Time) (time.Time, bool, error) {
	if !strings.Contains(text, "next week") {
		return time.Time{}, false, nil
	}
	if containsWeekday(text) {
		return time.Time{}, false, nil
	}
	if _, ok := extractClock(text); ok {
		return time.Time{}, false, nil
	}
	return at(now.AddDate(0, 0, 7), clockTime{hour: 9}), true, nil
}

func parseRelative(text string, now time.Time) (time.Time, bool, error) {
	m := reRelative.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false, nil
	}
	n := 1
	if m[1] != "a" && m[1] != "an" {
		n, _ = strconv.Atoi(m[1])
	}
	switch m[2] {
	case "minute", "min":
		return now.Add(time.Duration(n) * time.Minute), true, nil
	case "hour", "hr":
		return now.Add(time.Duration(n) * time.Hour), true, nil
	default:
		return now.AddDate(0, 0, n), true, nil
	}
}

func parseTomorrow(text string, now time.Time) (time.Time, bool, error) {
	if !strings.Contains(text, "tomorrow") {
		return time.Time{}, false, nil
	}
	ct := clockTime{hour: 9}
	if c, ok := extractClock(text); ok {
		ct = c
	}
	return at(now.AddDate(0, 0, 1), ct), true, nil
}

func parseTodayAt(text string, now time.Time) (time.Time, bool, error) {
	if !strings.Contains(text, "today") {
		return time.Time{}, false, nil
	}
	ct, ok := extractClock(text)
	if !ok {
		return time.Time{}, false, nil
	}
	t := at(now, ct)
	if !t.After(now) {
		return time.Time{}, true, &ParseError{Fragment: text, Err: ErrTimeAlreadyPassed}
	}
	return t, true, nil
}

func parseWeekday(text string, now time.Time) (time.Time, bool, error) {
	name, target, ok := findWeekday(text)
	if !ok {
		return time.Time{}, false, nil
	}
	next := strings.Contains(text, "next "+name)
	ct, hasClock := extractClock(text)
	if !hasClock {
		ct = clockTime{hour: 9}
	}

	ahead := int((target - now.Weekday() + 7) % 7)
	if next {
		// "next monday" is never this week, even when plain "monday" still
		// lies ahead.
		if ahead == 0 {
			ahead = 7
		} else {
			ahead += 7
		}
	} else if ahead == 0 {
		// Today is the named day: honor it only for a still-future time,
		// otherwise roll a full week.
		if !hasClock || !at(now, ct).After(now) {
			ahead = 7
		}
	}
	return at(now.AddDate(0, 0, ahead), ct), true, nil
}

func parseBareClock(text string, now time.Time) (time.Time, bool, error) {
	ct, ok := extractClock(text)
	if !ok {
		return time.Time{}, false, nil
	}
	t := at(now, ct)
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t, true, nil
}

// at pins day's date to the given time of day in day's location.
func at(day time.Time, ct clockTime) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), ct.hour, ct.minute, 0, 0, day.Location())
}

func containsWeekday(text string) bool {
	_, _, ok := findWeekday(text)
	return ok
}

func findWeekday(text string) (string, time.Weekday, bool) {
	for name, wd := range weekdays {
		if containsWord(text, name) {
			return name, wd, true
		}
	}
	return "", 0, false
}

func containsWord(text, word string) bool {
	for from := 0; ; {
		idx := strings.Index(text[from:], word)
		if idx < 0 {
			return false
		}
		idx += from
		end := idx + len(word)
		if (idx == 0 || !isWordChar(text[idx-1])) && (end == len(text) || !isWordChar(text[end])) {
			return true
		}
		from = idx + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}
