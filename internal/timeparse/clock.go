package timeparse

import (
	"regexp"
	"strconv"
	"strings"
)

// clockTime is a time of day with hour in [0,23] and minute in [0,59].
type clockTime struct {
	hour   int
	minute int
}

var (
	reColonMeridiem = regexp.MustCompile(`(\d{1,2}):(\d{2})\s*(am|pm)`)
	reHourMeridiem  = regexp.MustCompile(`\b(\d{1,2})\s*(am|pm)`)
	reSpaced        = regexp.MustCompile(`\b(\d{1,2})\s+(\d{2})\s*(am|pm)`)
	reCompact       = regexp.MustCompile(`\b(\d{3,4})\s*(am|pm)`)
	reTwentyFour    = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
)

// extractClock pulls a time of day out of a fragment. Patterns are tried in a
// fixed precedence order; a pattern that matches but fails range validation
// falls through to the next one, so "5 30 pm" is not lost to the bogus
// hour-only match on "30 pm".
func extractClock(s string) (clockTime, bool) {
	if m := reColonMeridiem.FindStringSubmatch(s); m != nil {
		if ct, ok := meridiemTime(m[1], m[2], m[3]); ok {
			return ct, true
		}
	}
	if m := reHourMeridiem.FindStringSubmatch(s); m != nil {
		if ct, ok := meridiemTime(m[1], "0", m[2]); ok {
			return ct, true
		}
	}
	if m := reSpaced.FindStringSubmatch(s); m != nil {
		if ct, ok := meridiemTime(m[1], m[2], m[3]); ok {
			return ct, true
		}
	}
	if m := reCompact.FindStringSubmatch(s); m != nil {
		digits := m[1]
		hh := digits[:len(digits)-2]
		mm := digits[len(digits)-2:]
		if ct, ok := meridiemTime(hh, mm, m[2]); ok {
			return ct, true
		}
	}
	// Bare 24-hour H:MM. Rejected when a meridiem follows: that text belongs
	// to the colon-meridiem pattern, and reaching here means it failed
	// validation there.
	if loc := reTwentyFour.FindStringSubmatchIndex(s); loc != nil {
		rest := strings.TrimLeft(s[loc[1]:], " ")
		if !strings.HasPrefix(rest, "am") && !strings.HasPrefix(rest, "pm") {
			hour, _ := strconv.Atoi(s[loc[2]:loc[3]])
			minute, _ := strconv.Atoi(s[loc[4]:loc[5]])
			if hour <= 23 && minute <= 59 {
				return clockTime{hour: hour, minute: minute}, true
			}
		}
	}
	return clockTime{}, false
}

// meridiemTime converts a 12-hour reading to a clockTime. 12am means
// midnight, 12pm means noon.
func meridiemTime(hh, mm, meridiem string) (clockTime, bool) {
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 1 || hour > 12 {
		return clockTime{}, false
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute > 59 {
		return clockTime{}, false
	}
	if meridiem == "pm" && hour != 12 {
		hour += 12
	}
	if meridiem == "am" && hour == 12 {
		hour = 0
	}
	return clockTime{hour: hour, minute: minute}, true
}
