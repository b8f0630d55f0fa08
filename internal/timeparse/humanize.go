package timeparse

import "time"

// FormatHuman renders a timestamp the way it would be spoken back to the
// user: "today at 03:00 PM", "tomorrow at 09:00 AM", "Friday at 07:30 PM",
// or "January 2 at 10:00 AM" beyond the coming week.
func FormatHuman(t, now time.Time) string {
	clock := t.Format("03:04 PM")
	switch daysBetween(now, t) {
	case 0:
		return "today at " + clock
	case 1:
		return "tomorrow at " + clock
	}
	if t.Before(startOfDay(now).AddDate(0, 0, 7)) {
		return t.Format("Monday") + " at " + clock
	}
	return t.Format("January 2") + " at " + clock
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func daysBetween(now, t time.Time) int {
	return int(startOfDay(t).Sub(startOfDay(now)) / (24 * time.Hour))
}
