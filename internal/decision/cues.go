package decision

import (
	"regexp"
	"strings"

	"github.com/chris/helpem/internal/commitment"
)

const weekdays = `monday|tuesday|wednesday|thursday|friday|saturday|sunday`

var (
	weeklyCue = regexp.MustCompile(`(?i)\b(weekly|(every|each) (other )?(week|weekend|` + weekdays + `)|(once|twice) a week|(` + weekdays + `)s)\b`)
	dailyCue  = regexp.MustCompile(`(?i)\b(daily|nightly|(every|each) (day|morning|afternoon|evening|night|weekday)|(once|twice) a day|every \d+ (hours|days)|every other day)\b`)
	clockCue  = regexp.MustCompile(`(?i)\b(\d{1,2}(:\d{2})?\s*((am|pm)\b|a\.m\.|p\.m\.)|\d{1,2}:\d{2}\b|(noon|midnight)\b)`)

	lowPriorityCues  = []string{"not urgent", "no rush", "low priority", "eventually", "sometime", "someday", "whenever", "when possible", "when i can", "when i get a chance"}
	highPriorityCues = []string{"high priority", "urgent", "urgently", "asap", "a.s.a.p", "immediately", "right away", "critical", "important", "emergency"}
	medPriorityCues  = []string{"medium priority", "soon"}
)

// HasRepetition reports whether the utterance describes something that
// recurs.
func HasRepetition(utterance string) bool {
	return weeklyCue.MatchString(utterance) || dailyCue.MatchString(utterance)
}

// HasClockTime reports whether the utterance names a time of day.
func HasClockTime(utterance string) bool {
	return clockCue.MatchString(utterance)
}

// InferFrequency picks a routine cadence from repetition words. ok is false
// when the utterance has none.
func InferFrequency(utterance string) (f commitment.Frequency, ok bool) {
	switch {
	case weeklyCue.MatchString(utterance):
		return commitment.Weekly, true
	case dailyCue.MatchString(utterance):
		return commitment.Daily, true
	}
	return "", false
}

// InferPriority picks a task priority from urgency words. Negated and
// relaxed phrasings are checked first so "not urgent" reads as low.
func InferPriority(utterance string) (p commitment.Priority, ok bool) {
	u := strings.ToLower(utterance)
	switch {
	case containsWord(u, lowPriorityCues):
		return commitment.PriorityLow, true
	case containsWord(u, highPriorityCues):
		return commitment.PriorityHigh, true
	case containsWord(u, medPriorityCues):
		return commitment.PriorityMedium, true
	}
	return commitment.PriorityMedium, false
}

func containsWord(s string, words []string) bool {
	for _, w := range words {
		if mentions(s, w) {
			return true
		}
	}
	return false
}

// mentions reports whether phrase occurs in s on word boundaries, ignoring
// case.
func mentions(s, phrase string) bool {
	return len(occurrences(s, phrase)) > 0
}

// occurrences returns the byte spans of every word-bounded, case-insensitive
// match of phrase in s.
func occurrences(s, phrase string) [][2]int {
	s = strings.ToLower(s)
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return nil
	}
	var out [][2]int
	for from := 0; from < len(s); {
		i := strings.Index(s[from:], phrase)
		if i < 0 {
			break
		}
		start := from + i
		end := start + len(phrase)
		if boundary(s, start-1) && boundary(s, end) {
			out = append(out, [2]int{start, end})
		}
		from = start + 1
	}
	return out
}

func boundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_')
}
