package decision

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chris/helpem/internal/commitment"
	"github.com/chris/helpem/internal/prompt"
)

var (
	categoryCues = map[commitment.Kind]*regexp.Regexp{
		commitment.KindTask:        regexp.MustCompile(`(?i)\b(to-?dos?|to do( list)?|tasks?|get done|need to do|have to do)\b`),
		commitment.KindRoutine:     regexp.MustCompile(`(?i)\b(routines?|habits?|streaks?|daily)\b`),
		commitment.KindAppointment: regexp.MustCompile(`(?i)\b(schedule|calendar|appointments?|meetings?|events?)\b`),
	}
	kindOrder = []commitment.Kind{commitment.KindTask, commitment.KindRoutine, commitment.KindAppointment}

	todayCue    = regexp.MustCompile(`(?i)\btoday\b`)
	tomorrowCue = regexp.MustCompile(`(?i)\btomorrow\b`)
)

var categoryNames = map[commitment.Kind]string{
	commitment.KindTask:        "to-do list",
	commitment.KindRoutine:     "routines",
	commitment.KindAppointment: "calendar",
}

// QueryCategories returns the categories an utterance asks about, in a
// fixed order.
func QueryCategories(utterance string) []commitment.Kind {
	var out []commitment.Kind
	for _, k := range kindOrder {
		if categoryCues[k].MatchString(utterance) {
			out = append(out, k)
		}
	}
	return out
}

// Isolate removes from message every line or sentence that mentions an item
// outside the category the user asked about, plus appointments that already
// happened when the user asked about today. When something was removed the
// other categories are offered in one sentence; when nothing useful is left
// a summary built from the snapshot replaces the message.
func Isolate(message string, in Input) string {
	cats := QueryCategories(in.Utterance)
	today := todayCue.MatchString(in.Utterance)

	var asked commitment.Kind
	if len(cats) == 1 {
		asked = cats[0]
	}
	if asked == "" && !today {
		return message
	}

	var forbidden, allowed []string
	if asked != "" {
		for _, k := range kindOrder {
			switch {
			case k != asked:
				forbidden = append(forbidden, in.Snapshot.Titles(k)...)
			case today && k == commitment.KindAppointment:
				// Only the appointments still ahead are allowed, below.
			default:
				allowed = append(allowed, in.Snapshot.Titles(k)...)
			}
		}
	}
	if today {
		for _, a := range in.Snapshot.Appointments {
			if commitment.SameDay(in.Now, a.Datetime) && a.Datetime.Before(in.Now) {
				forbidden = append(forbidden, a.Title)
			}
		}
		for _, a := range in.Snapshot.UpcomingAppointments(in.Now) {
			allowed = append(allowed, a.Title)
		}
	}

	kept, removed := dropMentions(message, unshadowed(forbidden, allowed))
	if !removed {
		return message
	}
	if !hasContent(kept) {
		summaryKind := asked
		if summaryKind == "" {
			summaryKind = commitment.KindAppointment
		}
		kept = Summary(summaryKind, in)
	}
	if asked != "" {
		if offer := offerOthers(asked, in.Snapshot); offer != "" {
			kept += "\n\n" + offer
		}
	}
	return kept
}

// unshadowed drops forbidden titles that occur inside an allowed title, so
// that a task "Call dentist" survives a forbidden appointment "Dentist".
func unshadowed(forbidden, allowed []string) []string {
	out := forbidden[:0:0]
	for _, f := range forbidden {
		if strings.TrimSpace(f) == "" {
			continue
		}
		shadowed := false
		for _, a := range allowed {
			if mentions(a, f) {
				shadowed = true
				break
			}
		}
		if !shadowed {
			out = append(out, f)
		}
	}
	return out
}

// dropMentions removes every sentence a title touches. Titles are matched
// against the whole line first, so a title such as "Dr. Patel checkup"
// still removes both sentence fragments it spans.
func dropMentions(message string, titles []string) (string, bool) {
	if len(titles) == 0 {
		return message, false
	}
	removed := false
	var lines []string
	for _, line := range strings.Split(message, "\n") {
		if strings.TrimSpace(line) == "" {
			lines = append(lines, line)
			continue
		}
		spans := sentenceSpans(line)
		drop := make([]bool, len(spans))
		for _, t := range titles {
			for _, hit := range occurrences(line, t) {
				for i, sp := range spans {
					if hit[0] < sp[1] && sp[0] < hit[1] {
						drop[i] = true
					}
				}
			}
		}
		var keep []string
		for i, sp := range spans {
			if drop[i] {
				removed = true
				continue
			}
			if s := strings.TrimSpace(line[sp[0]:sp[1]]); s != "" {
				keep = append(keep, s)
			}
		}
		if len(keep) > 0 {
			lines = append(lines, strings.Join(keep, " "))
		}
	}
	return strings.TrimSpace(collapseBlank(lines)), removed
}

func collapseBlank(lines []string) string {
	var b strings.Builder
	blank := false
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			blank = true
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
			if blank {
				b.WriteString("\n")
			}
		}
		blank = false
		b.WriteString(l)
	}
	return b.String()
}

// sentenceSpans cuts a line after ., ! or ? followed by a space and
// returns the byte range of each piece.
func sentenceSpans(line string) [][2]int {
	var out [][2]int
	start := 0
	for i := 0; i < len(line)-1; i++ {
		switch line[i] {
		case '.', '!', '?':
			if line[i+1] == ' ' {
				out = append(out, [2]int{start, i + 1})
				start = i + 1
			}
		}
	}
	if start < len(line) {
		out = append(out, [2]int{start, len(line)})
	}
	return out
}

// hasContent is false for empty text and for text made only of headings
// such as "Tomorrow you have:".
func hasContent(s string) bool {
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(l)
		if l != "" && !strings.HasSuffix(l, ":") {
			return true
		}
	}
	return false
}

func offerOthers(asked commitment.Kind, snap commitment.Snapshot) string {
	var names []string
	for _, k := range kindOrder {
		if k != asked && len(snap.Titles(k)) > 0 {
			names = append(names, categoryNames[k])
		}
	}
	if len(names) == 0 {
		return ""
	}
	return fmt.Sprintf("Want me to go over your %s too?", strings.Join(names, " or "))
}

// Summary describes one category of the snapshot without asking the model.
// "today" and "tomorrow" in the utterance narrow tasks and appointments to
// that day.
func Summary(kind commitment.Kind, in Input) string {
	day, when := dayFilter(in)
	switch kind {
	case commitment.KindTask:
		var titles []string
		for _, t := range in.Snapshot.OpenTasks() {
			if day.IsZero() || t.DueOn(day) {
				titles = append(titles, t.Title)
			}
		}
		if len(titles) == 0 {
			if when != "" {
				return "Nothing on your to-do list for " + when + "."
			}
			return "Your to-do list is clear."
		}
		return fmt.Sprintf("On your to-do list%s: %s.", forWhen(when), strings.Join(titles, ", "))

	case commitment.KindRoutine:
		if len(in.Snapshot.Routines) == 0 {
			return "You don't have any routines yet."
		}
		parts := make([]string, 0, len(in.Snapshot.Routines))
		for _, r := range in.Snapshot.Routines {
			status := "not done yet today"
			if r.CompletedOn(in.Now) {
				status = "done today"
			}
			parts = append(parts, fmt.Sprintf("%s (%s)", r.Title, status))
		}
		return "Your routines: " + strings.Join(parts, ", ") + "."

	case commitment.KindAppointment:
		var items []string
		for _, a := range in.Snapshot.UpcomingAppointments(in.Now) {
			if day.IsZero() || commitment.SameDay(day, a.Datetime) {
				items = append(items, fmt.Sprintf("%s (%s)", a.Title, prompt.FormatDate(a.Datetime.In(in.Now.Location()))))
			}
		}
		if len(items) == 0 {
			return "Nothing on your calendar" + forWhen(when) + "."
		}
		return fmt.Sprintf("On your calendar%s: %s.", forWhen(when), strings.Join(items, ", "))
	}
	return ""
}

func dayFilter(in Input) (time.Time, string) {
	switch {
	case tomorrowCue.MatchString(in.Utterance):
		return in.Now.AddDate(0, 0, 1), "tomorrow"
	case todayCue.MatchString(in.Utterance):
		return in.Now, "today"
	}
	return time.Time{}, ""
}

func forWhen(when string) string {
	if when == "" {
		return ""
	}
	return " for " + when
}
