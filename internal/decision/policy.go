package decision

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/chris/helpem/internal/commitment"
)

// Input is what Enforce needs besides the decision itself.
type Input struct {
	Utterance string
	Snapshot  commitment.Snapshot
	Now       time.Time
}

var fillerPrefix = regexp.MustCompile(`(?i)^(please\s+|can you\s+|could you\s+)?(remind me to|i need to|i have to|i should|i want to|i must|need to|have to)(\s+|$)`)

// Enforce applies the deterministic classification policy on top of what
// the model proposed. Lexical cues in the utterance win over the model.
func Enforce(d Decision, in Input) Decision {
	switch d.Action {
	case ActionAdd:
		if d.Add == nil {
			return Error("Sorry, something went wrong. Please try again.")
		}
		return enforceAdd(*d.Add, in)
	case ActionUpdatePriority:
		if d.PriorityChange == nil {
			return Error("Sorry, something went wrong. Please try again.")
		}
		return resolvePriorityChange(*d.PriorityChange, in.Snapshot)
	case ActionRespond:
		return Respond(Isolate(d.Message, in))
	}
	return d
}

func enforceAdd(a Add, in Input) Decision {
	a.Title = NormalizeTitle(a.Title)
	if a.Title == "" {
		return Respond("What would you like me to add?")
	}

	if HasRepetition(in.Utterance) {
		a.Kind = commitment.KindRoutine
	}
	// A dated task with a time of day is an appointment. Date-only due
	// dates stay on the task.
	if a.Kind == commitment.KindTask && a.Schedule != nil && HasClockTime(in.Utterance) {
		a.Kind = commitment.KindAppointment
	}
	if a.Kind == commitment.KindAppointment && a.Schedule == nil {
		if HasClockTime(in.Utterance) {
			return Respond(fmt.Sprintf("What day is %q? Tell me the day and time and I'll add it.", a.Title))
		}
		a.Kind = commitment.KindTask
	}

	switch a.Kind {
	case commitment.KindTask:
		a.Frequency = ""
		a.Priority = taskPriority(a.Title, in)
	case commitment.KindRoutine:
		a.Schedule = nil
		a.Priority = ""
		if f, ok := InferFrequency(in.Utterance); ok {
			a.Frequency = f
		} else if a.Frequency == "" {
			a.Frequency = commitment.Daily
		}
	case commitment.KindAppointment:
		a.Frequency = ""
		a.Priority = ""
	}
	return NewAdd(a)
}

// taskPriority prefers a priority the user already set on a task with the
// same title, then urgency words, then medium.
func taskPriority(title string, in Input) commitment.Priority {
	for _, t := range in.Snapshot.OpenTasks() {
		if strings.EqualFold(t.Title, title) && t.Priority != "" {
			return t.Priority
		}
	}
	p, _ := InferPriority(in.Utterance)
	return p
}

func resolvePriorityChange(pc PriorityChange, snap commitment.Snapshot) Decision {
	t, ok := snap.FindTask(pc.TargetTitle)
	if !ok {
		return Respond(fmt.Sprintf("I couldn't find a task called %q. Want me to add it as a new task instead?", pc.TargetTitle))
	}
	if t.Priority == pc.NewPriority {
		return Respond(fmt.Sprintf("%q is already %s priority.", t.Title, t.Priority))
	}
	pc.TargetTitle = t.Title
	pc.TaskID = t.ID
	return NewPriorityChange(pc)
}

// NormalizeTitle trims filler and punctuation and capitalizes the first
// letter.
func NormalizeTitle(title string) string {
	t := strings.TrimSpace(title)
	t = fillerPrefix.ReplaceAllString(t, "")
	t = strings.TrimSpace(strings.TrimRight(t, ".!?,; "))
	t = strings.Trim(t, `"'`)
	if t == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(t)
	return string(unicode.ToUpper(r)) + t[size:]
}
