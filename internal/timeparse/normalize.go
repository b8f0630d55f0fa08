package timeparse

import (
	"regexp"
	"strconv"
	"strings"
)

// Day-part words carry a conventional clock time. Attached to a day token
// ("tomorrow morning") they become that day at the clock time; standing alone
// ("in the evening") they mean today.
var dayparts = map[string]string{
	"morning":   "9am",
	"afternoon": "3pm",
	"evening":   "7pm",
	"night":     "9pm",
}

var ones = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9,
}

var teens = map[string]int{
	"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
}

var tens = map[string]int{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50, "sixty": 60,
}

// reWeekNames lists day names longest-first so the abbreviated forms never
// shadow the full ones inside an alternation.
const reWeekNames = `monday|mon|tuesday|tues|tue|wednesday|wed|thursday|thurs|thur|thu|friday|fri|saturday|sat|sunday|sun`

var (
	reCompound     = regexp.MustCompile(`\b(twenty|thirty|forty|fifty)[ -](one|two|three|four|five|six|seven|eight|nine)\b`)
	reAttachedPart = regexp.MustCompile(`\b(today|tomorrow|` + reWeekNames + `)( in the| this)? (morning|afternoon|evening|night)\b`)
	reBarePart     = regexp.MustCompile(`\b(?:in the |this )?(morning|afternoon|evening|night)\b`)
	reWeekdayNext  = regexp.MustCompile(`\b(` + reWeekNames + `) next week\b`)
	reNextWeekday  = regexp.MustCompile(`\bnext week (?:on )?(` + reWeekNames + `)\b`)
	rePunct        = strings.NewReplacer(",", " ", ".", "", "!", " ", "?", " ")
)

// normalize lower-cases, strips punctuation, rewrites spelled-out numbers to
// digits and expands day-part words so the rule pipeline only ever sees
// canonical tokens.
func normalize(fragment string) string {
	s := strings.ToLower(strings.TrimSpace(fragment))
	s = rePunct.Replace(s)

	s = reCompound.ReplaceAllStringFunc(s, func(m string) string {
		parts := regexp.MustCompile(`[ -]`).Split(m, 2)
		return strconv.Itoa(tens[parts[0]] + ones[parts[1]])
	})
	s = replaceNumberWords(s, teens)
	s = replaceNumberWords(s, tens)
	s = replaceNumberWords(s, ones)

	s = strings.ReplaceAll(s, "tonight", "today at 9pm")
	s = reAttachedPart.ReplaceAllStringFunc(s, func(m string) string {
		sub := reAttachedPart.FindStringSubmatch(m)
		return sub[1] + " at " + dayparts[sub[3]]
	})
	s = reBarePart.ReplaceAllStringFunc(s, func(m string) string {
		sub := reBarePart.FindStringSubmatch(m)
		return "today at " + dayparts[sub[1]]
	})

	s = reWeekdayNext.ReplaceAllString(s, "next $1")
	s = reNextWeekday.ReplaceAllString(s, "next $1")

	return strings.Join(strings.Fields(s), " ")
}

func replaceNumberWords(s string, words map[string]int) string {
	for w, n := range words {
		s = replaceWord(s, w, strconv.Itoa(n))
	}
	return s
}

// replaceWord swaps whole-word occurrences only, so "one" inside "money"
// survives.
func replaceWord(s, word, repl string) string {
	var b strings.Builder
	for {
		idx := strings.Index(s, word)
		if idx < 0 {
			b.WriteString(s)
			return b.String()
		}
		end := idx + len(word)
		boundedLeft := idx == 0 || !isWordChar(s[idx-1])
		boundedRight := end == len(s) || !isWordChar(s[end])
		b.WriteString(s[:idx])
		if boundedLeft && boundedRight {
			b.WriteString(repl)
		} else {
			b.WriteString(word)
		}
		s = s[end:]
	}
}
