package timeparse

import (
	"errors"
	"testing"
	"time"
)

// Monday, March 10 2025, 10:00 UTC.
var testNow = time.Date(2025, time.March, 10, 10, 0, 0, 0, time.UTC)

func testParser() *Parser {
	return &Parser{Now: func() time.Time { return testNow }}
}

func mustParse(t *testing.T, fragment string) time.Time {
	t.Helper()
	got, err := testParser().Parse(fragment)
	if err != nil {
		t.Fatalf("Parse(%q) returned error: %v", fragment, err)
	}
	return got
}

func TestParse_Absolute(t *testing.T) {
	tests := []struct {
		fragment string
		want     time.Time
	}{
		{"tomorrow at 3pm", time.Date(2025, 3, 11, 15, 0, 0, 0, time.UTC)},
		{"tomorrow", time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)},
		{"tomorrow morning", time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)},
		{"tomorrow evening", time.Date(2025, 3, 11, 19, 0, 0, 0, time.UTC)},
		{"today at 5pm", time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC)},
		{"tonight", time.Date(2025, 3, 10, 21, 0, 0, 0, time.UTC)},
		{"in the evening", time.Date(2025, 3, 10, 19, 0, 0, 0, time.UTC)},
		{"next week", time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC)},
		{"friday", time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)},
		{"friday at 7pm", time.Date(2025, 3, 14, 19, 0, 0, 0, time.UTC)},
		{"next friday", time.Date(2025, 3, 21, 9, 0, 0, 0, time.UTC)},
		{"monday next week", time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC)},
		{"next week on friday", time.Date(2025, 3, 21, 9, 0, 0, 0, time.UTC)},
		{"saturday night", time.Date(2025, 3, 15, 21, 0, 0, 0, time.UTC)},
		{"5pm", time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC)},
		{"10:30", time.Date(2025, 3, 10, 10, 30, 0, 0, time.UTC)},
		{"at 22:15", time.Date(2025, 3, 10, 22, 15, 0, 0, time.UTC)},
		{"five thirty pm", time.Date(2025, 3, 10, 17, 30, 0, 0, time.UTC)},
		{"530pm", time.Date(2025, 3, 10, 17, 30, 0, 0, time.UTC)},
		{"7:05pm", time.Date(2025, 3, 10, 19, 5, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		got := mustParse(t, tc.fragment)
		if !got.Equal(tc.want) {
			t.Errorf("Parse(%q) = %v, want %v", tc.fragment, got, tc.want)
		}
	}
}

func TestParse_RelativeOffsets(t *testing.T) {
	tests := []struct {
		fragment string
		want     time.Time
	}{
		{"in 20 minutes", testNow.Add(20 * time.Minute)},
		{"in twenty minutes", testNow.Add(20 * time.Minute)},
		{"in twenty five minutes", testNow.Add(25 * time.Minute)},
		{"in twenty-five minutes", testNow.Add(25 * time.Minute)},
		{"in 1 minute", testNow.Add(time.Minute)},
		{"in an hour", testNow.Add(time.Hour)},
		{"in a minute", testNow.Add(time.Minute)},
		{"in 3 hours", testNow.Add(3 * time.Hour)},
		{"in 2 days", testNow.AddDate(0, 0, 2)},
		{"in fifteen minutes", testNow.Add(15 * time.Minute)},
	}
	for _, tc := range tests {
		got := mustParse(t, tc.fragment)
		if !got.Equal(tc.want) {
			t.Errorf("Parse(%q) = %v, want %v", tc.fragment, got, tc.want)
		}
	}
}

func TestParse_Abbreviations(t *testing.T) {
	// Spoken shorthand: unit and weekday abbreviations parse the same as
	// their full forms. The pinned reference is a Monday.
	tests := []struct {
		fragment string
		want     time.Time
	}{
		{"in 5 mins", testNow.Add(5 * time.Minute)},
		{"in 1 min", testNow.Add(time.Minute)},
		{"in 2 hrs", testNow.Add(2 * time.Hour)},
		{"in an hr", testNow.Add(time.Hour)},
		{"fri at 3pm", time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)},
		{"thurs at 8am", time.Date(2025, 3, 13, 8, 0, 0, 0, time.UTC)},
		{"next mon", time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC)},
		{"tues morning", time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		got := mustParse(t, tc.fragment)
		if !got.Equal(tc.want) {
			t.Errorf("Parse(%q) = %v, want %v", tc.fragment, got, tc.want)
		}
	}
}

func TestParse_BareClockRollsToTomorrow(t *testing.T) {
	// 09:00 is in the past at the pinned 10:00 reference, so a bare clock
	// rolls forward a day rather than failing.
	got := mustParse(t, "9am")
	want := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Parse(\"9am\") = %v, want %v", got, want)
	}
}

func TestParse_TodayAtPastTimeFails(t *testing.T) {
	_, err := testParser().Parse("today at 9am")
	if !errors.Is(err, ErrTimeAlreadyPassed) {
		t.Fatalf("expected ErrTimeAlreadyPassed, got %v", err)
	}

	// A bare day part expands to "today at <clock>"; in the morning the
	// expansion lands in the past and keeps the explicit-today semantics.
	_, err = testParser().Parse("in the morning")
	if !errors.Is(err, ErrTimeAlreadyPassed) {
		t.Fatalf("expected ErrTimeAlreadyPassed for past day part, got %v", err)
	}
}

func TestParse_WeekdayOnNamedDay(t *testing.T) {
	// The pinned reference is a Monday.
	tests := []struct {
		fragment string
		want     time.Time
	}{
		// No time given: rolls a full week.
		{"monday", time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC)},
		// Future time today: stays today.
		{"monday at 5pm", time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC)},
		// Past time today: rolls a full week.
		{"monday at 9am", time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC)},
		// "next" always means not this week.
		{"next monday", time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC)},
		{"next monday at 5pm", time.Date(2025, 3, 17, 17, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		got := mustParse(t, tc.fragment)
		if !got.Equal(tc.want) {
			t.Errorf("Parse(%q) = %v, want %v", tc.fragment, got, tc.want)
		}
	}
}

func TestParse_PrecedenceContract(t *testing.T) {
	// Day-part expansion must win before weekday or bare-clock rules fire.
	a := mustParse(t, "tomorrow morning")
	b := mustParse(t, "tomorrow at 9am")
	if !a.Equal(b) {
		t.Errorf("day-part expansion diverged: %v vs %v", a, b)
	}

	// "tomorrow" outranks the weekday rule even when a weekday is present.
	got := mustParse(t, "tomorrow not friday")
	if got.Day() != 11 {
		t.Errorf("tomorrow should pre-empt weekday rule, got %v", got)
	}

	// A relative offset outranks a trailing clock reading.
	got = mustParse(t, "in 2 hours at 5pm")
	if !got.Equal(testNow.Add(2 * time.Hour)) {
		t.Errorf("relative offset should pre-empt clock rule, got %v", got)
	}
}

func TestParse_Unparseable(t *testing.T) {
	for _, fragment := range []string{"", "whenever", "the heat death of the universe", "today"} {
		_, err := testParser().Parse(fragment)
		if !errors.Is(err, ErrUnparseable) {
			t.Errorf("Parse(%q): expected ErrUnparseable, got %v", fragment, err)
		}
	}

	var perr *ParseError
	_, err := testParser().Parse("whenever")
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if perr.Fragment != "whenever" {
		t.Errorf("ParseError fragment = %q, want %q", perr.Fragment, "whenever")
	}
}

func TestParse_NormalizationArtifacts(t *testing.T) {
	// Transcripts arrive with punctuation and mixed case.
	got := mustParse(t, "Tomorrow at 3 P.M.")
	want := time.Date(2025, 3, 11, 15, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Parse punctuation = %v, want %v", got, want)
	}
}

func TestFormatHuman(t *testing.T) {
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC), "today at 03:00 PM"},
		{time.Date(2025, 3, 11, 15, 0, 0, 0, time.UTC), "tomorrow at 03:00 PM"},
		{time.Date(2025, 3, 14, 19, 30, 0, 0, time.UTC), "Friday at 07:30 PM"},
		{time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC), "April 2 at 10:00 AM"},
	}
	for _, tc := range tests {
		if got := FormatHuman(tc.in, testNow); got != tc.want {
			t.Errorf("FormatHuman(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatHuman_RoundTrip(t *testing.T) {
	got := FormatHuman(mustParse(t, "tomorrow at 3pm"), testNow)
	if got != "tomorrow at 03:00 PM" {
		t.Errorf("round trip = %q, want %q", got, "tomorrow at 03:00 PM")
	}
}
