package offline

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexvoice/internal/reminder"
	"github.com/normanking/cortexvoice/internal/timeparse"
)

// transcriptFixes repairs recurring transcription artifacts before routing.
var transcriptFixes = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\b(?:2|to)\s*morrow\b`), "tomorrow"},
	{regexp.MustCompile(`\btom+or+ow\b`), "tomorrow"},
	{regexp.MustCompile(`\b2day\b`), "today"},
	{regexp.MustCompile(`\bat\s*10d\b`), "attend"},
	{regexp.MustCompile(`\bmee\s*ting\b`), "meeting"},
	{regexp.MustCompile(`\b(\d+)\s*p\.?\s?m\.?\b`), "${1}pm"},
	{regexp.MustCompile(`\b(\d+)\s*a\.?\s?m\.?\b`), "${1}am"},
	{regexp.MustCompile(`\b(\d{1,2})\.(\d{2})\b`), "$1:$2"},
}

// NormalizeTranscript lower-cases a transcript, strips trailing punctuation
// and repairs the transcription errors the recognizer habitually makes.
func NormalizeTranscript(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.Trim(s, ".!?")
	for _, f := range transcriptFixes {
		s = f.re.ReplaceAllString(s, f.repl)
	}
	return strings.Join(strings.Fields(s), " ")
}

var (
	reExit          = regexp.MustCompile(`\b(goodbye|exit|quit|stop talking|bye|see you|end conversation|terminate)\b`)
	reTimeQuery     = regexp.MustCompile(`\b(what time is it|what's the time|current time|tell me the time|time now)\b`)
	reDateQuery     = regexp.MustCompile(`\b(what's the date|current date|what day is (it|today)|tell me the date|what is today)\b`)
	reListReminders = regexp.MustCompile(`\b(list|show|what are my|read( out)? my) reminders?\b|\bmy reminders\b`)
	reSetReminder   = regexp.MustCompile(`\bremind\s+me\b|\bset a reminder\b|\breminder to\b|\bneed to\b|\bhave to\b|\bremember to\b`)
	reDeleteByNum   = regexp.MustCompile(`\b(delete|remove|cancel) reminder\b`)
	reDeleteByText  = regexp.MustCompile(`\b(delete|remove|cancel) the\b`)
	reClearAll      = regexp.MustCompile(`\b(clear|delete|remove|cancel) all( of)? (my )?reminders\b`)
	reMath          = regexp.MustCompile(`\b(plus|minus|times|multiplied|divided|calculate|square root)\b|\d+\s*[-+*/]\s*\d+`)
	reQuestionStart = regexp.MustCompile(`^(what|when|where|how|why|who|is|are|do|does|can|will|should)\b`)
	reTimeReference = regexp.MustCompile(`\b(tonight|tomorrow|today|monday|tuesday|wednesday|thursday|friday|saturday|sunday|morning|afternoon|evening|night|next week)\b|\bat\s+\d{1,2}\b|\bin\s+\d+\b|\d\s*(am|pm)\b`)
)

// Router maps a normalized transcript to a spoken response. The second
// return value reports that the user ended the conversation.
type Router struct {
	logger    zerolog.Logger
	reminders *reminder.Scheduler

	// Now supplies the reference instant. Tests pin it.
	Now func() time.Time
}

// NewRouter creates a command router over the reminder scheduler.
func NewRouter(reminders *reminder.Scheduler, logger zerolog.Logger) *Router {
	return &Router{
		logger:    logger.With().Str("component", "offline-router").Logger(),
		reminders: reminders,
		Now:       time.Now,
	}
}

// Route dispatches one transcript. Ordering matters: explicit commands win
// over the implicit time-reference reminder heuristic, which wins over the
// fallback.
func (r *Router) Route(text string) (string, bool) {
	switch {
	case reExit.MatchString(text):
		return "Goodbye! Have a great day!", true

	case reClearAll.MatchString(text):
		return r.clearAll(), false

	case reListReminders.MatchString(text):
		return r.list(), false

	// Set wins over the delete patterns: "remind me to delete the old
	// files" is a reminder, not a deletion.
	case reSetReminder.MatchString(text):
		return r.set(text), false

	case reDeleteByNum.MatchString(text):
		return r.deleteByNumber(text), false

	case reDeleteByText.MatchString(text):
		return r.deleteByContent(text), false

	case reMath.MatchString(text) && !reTimeReference.MatchString(text):
		return "I can't do calculations in offline mode, sorry.", false

	case reTimeQuery.MatchString(text):
		return fmt.Sprintf("The current time is %s", r.Now().Format("03:04 PM")), false

	case reDateQuery.MatchString(text):
		return fmt.Sprintf("Today is %s", r.Now().Format("Monday, January 2, 2006")), false

	case reTimeReference.MatchString(text) && !reQuestionStart.MatchString(text):
		// A bare statement with a time reference is treated as a reminder.
		return "Got it! I'll set that reminder for you. " + r.set(text), false

	default:
		return "I'm sorry, I can only tell the time, date, set reminders, and list reminders in offline mode.", false
	}
}

var reTriggerPrefix = regexp.MustCompile(`^(?:remind\s+me(?:\s+to)?|set\s+(?:a\s+)?reminder(?:\s+to)?|remember\s+to|(?:we\s+)?(?:need|have)\s+to)\s+`)

// timePatterns are the fragments stripped from a reminder phrase to recover
// the bare task text.
var timePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bin\s+\d+\s+(minute|minutes|min|mins|hour|hours|hr|hrs|day|days)\b`),
	regexp.MustCompile(`\b(tomorrow|today)\s+at\s+`),
	regexp.MustCompile(`\bon\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\s+at\s+`),
	regexp.MustCompile(`\bat\s+\d{1,2}[:.]?\d{0,2}\s*(am|pm)?\b`),
	regexp.MustCompile(`\b\d{1,2}[:.]?\d{0,2}\s*(am|pm)\b`),
	regexp.MustCompile(`\b(on\s+|next\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`),
	regexp.MustCompile(`\b(morning|afternoon|evening|night|tonight)\b`),
	regexp.MustCompile(`\bnext\s+week\b`),
	regexp.MustCompile(`\b(tomorrow|today)\b`),
}

// extractTask removes time phrasing from a reminder phrase, leaving the task
// to announce. An empty result means the task and the time were too
// entangled; callers keep the whole phrase instead.
func extractTask(text string) string {
	task := text
	for _, re := range timePatterns {
		task = re.ReplaceAllString(task, " ")
	}
	task = strings.Join(strings.Fields(task), " ")
	task = strings.Trim(task, " .,!?")
	for _, prefix := range []string{"to ", "at ", "on ", "in "} {
		task = strings.TrimPrefix(task, prefix)
	}
	for _, suffix := range []string{" to", " at", " on", " in"} {
		task = strings.TrimSuffix(task, suffix)
	}
	if len(task) < 3 {
		return ""
	}
	if _, err := strconv.Atoi(task); err == nil {
		return ""
	}
	return task
}

func (r *Router) set(text string) string {
	cleaned := strings.TrimSpace(reTriggerPrefix.ReplaceAllString(text, ""))
	if cleaned == "" {
		return "What would you like me to remind you about?"
	}

	task := extractTask(cleaned)
	if task == "" {
		task = cleaned
	}

	_, confirmation, err := r.reminders.Create(task, cleaned)
	if err != nil {
		if errors.Is(err, timeparse.ErrTimeAlreadyPassed) {
			return "That time has already passed today. When should I remind you?"
		}
		r.logger.Error().Err(err).Msg("Failed to create reminder")
		return "Sorry, I couldn't save the reminder."
	}
	return confirmation
}

func (r *Router) list() string {
	upcoming := r.reminders.List()
	if len(upcoming) == 0 {
		return "You have no active reminders."
	}

	var b strings.Builder
	plural := ""
	if len(upcoming) > 1 {
		plural = "s"
	}
	fmt.Fprintf(&b, "You have %d active reminder%s.", len(upcoming), plural)
	now := r.Now()
	for i, item := range upcoming {
		fmt.Fprintf(&b, " Reminder %d, %s: %s.", i+1, timeparse.FormatHuman(item.Time, now), item.Text)
	}
	return b.String()
}

var ordinalNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
}

var reDigits = regexp.MustCompile(`\d+`)

// parseOrdinal pulls a reminder number out of a delete phrase, accepting
// digits, number words and ordinals.
func parseOrdinal(text string) (int, bool) {
	if m := reDigits.FindString(text); m != "" {
		n, err := strconv.Atoi(m)
		return n, err == nil
	}
	for _, word := range strings.Fields(text) {
		if n, ok := ordinalNumbers[word]; ok {
			return n, true
		}
	}
	return 0, false
}

func (r *Router) deleteByNumber(text string) string {
	n, ok := parseOrdinal(text)
	if !ok {
		return "Please say the reminder number, for example 'delete reminder number 2'."
	}

	deleted, err := r.reminders.DeleteByNumber(n)
	if err != nil {
		if errors.Is(err, reminder.ErrNotFound) {
			count := len(r.reminders.List())
			if count == 0 {
				return "You have no active reminders to delete."
			}
			plural := ""
			if count > 1 {
				plural = "s"
			}
			return fmt.Sprintf("Invalid reminder number. You have %d active reminder%s.", count, plural)
		}
		r.logger.Error().Err(err).Msg("Failed to delete reminder")
		return "Failed to delete the reminder. Please try again."
	}
	return fmt.Sprintf("Reminder number %d deleted: %s", n, deleted.Text)
}

var reDeleteFiller = regexp.MustCompile(`\b(delete|remove|cancel|the|reminder(s)?|about|to|my)\b`)

func (r *Router) deleteByContent(text string) string {
	phrase := strings.TrimSpace(reDeleteFiller.ReplaceAllString(text, " "))
	phrase = strings.Join(strings.Fields(phrase), " ")
	if len(phrase) < 3 {
		return "Please tell me what the reminder is about. For example, say 'delete the reminder about calling mom'."
	}

	deleted, err := r.reminders.DeleteByContent(phrase)
	if err == nil {
		return "Deleted reminder: " + deleted.Text
	}

	var ambiguous *reminder.AmbiguousMatchError
	if errors.As(err, &ambiguous) {
		var b strings.Builder
		fmt.Fprintf(&b, "I found %d reminders matching your request.", len(ambiguous.Matches))
		now := r.Now()
		for i, item := range ambiguous.Matches {
			fmt.Fprintf(&b, " Number %d: %s, %s.", i+1, item.Text, timeparse.FormatHuman(item.Time, now))
		}
		b.WriteString(" Please say 'delete reminder number' followed by the number you want to delete.")
		return b.String()
	}
	if errors.Is(err, reminder.ErrNotFound) {
		return fmt.Sprintf("I could not find any reminders matching '%s'. Please try again with different keywords.", phrase)
	}
	r.logger.Error().Err(err).Msg("Failed to delete reminder")
	return "Failed to delete the reminder. Please try again."
}

func (r *Router) clearAll() string {
	n, err := r.reminders.ClearAll()
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to clear reminders")
		return "Error clearing reminders."
	}
	if n == 0 {
		return "You have no reminders to clear."
	}
	return "All reminders have been cleared."
}
