package decision

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/chris/helpem/internal/commitment"
)

// DefaultConfidence is used when an add decision carries no confidence.
const DefaultConfidence = 0.8

// actionAliases maps every tag spelling models have been seen to use onto
// the canonical action.
var actionAliases = map[string]Action{
	"add":             ActionAdd,
	"add_commitment":  ActionAdd,
	"create":          ActionAdd,
	"update_priority": ActionUpdatePriority,
	"updatepriority":  ActionUpdatePriority,
	"set_priority":    ActionUpdatePriority,
	"change_priority": ActionUpdatePriority,
	"respond":         ActionRespond,
	"response":        ActionRespond,
	"reply":           ActionRespond,
	"error":           ActionError,
}

var scheduleLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.DateOnly,
}

type rawDecision struct {
	Action      Action   `json:"action"`
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Confidence  *float64 `json:"confidence"`
	Priority    string   `json:"priority"`
	Datetime    string   `json:"datetime"`
	DueDate     string   `json:"dueDate"`
	Frequency   string   `json:"frequency"`
	TargetTitle string   `json:"targetTitle"`
	NewPriority string   `json:"newPriority"`
	Message     string   `json:"message"`
}

// Parse converts raw model text into a Decision. It never fails: text that
// does not hold a well-formed decision becomes a Respond carrying the raw
// text verbatim. Zone-less datetimes are read in loc.
func Parse(raw string, loc *time.Location) Decision {
	if loc == nil {
		loc = time.UTC
	}
	d, ok := parse(raw, loc)
	if !ok {
		return Respond(raw)
	}
	return d
}

func parse(raw string, loc *time.Location) (Decision, bool) {
	js := extractJSON(raw)
	if js == "" || !gjson.Valid(js) {
		return Decision{}, false
	}

	action, ok := resolveAction(js)
	if !ok {
		return Decision{}, false
	}
	js, err := sjson.Set(js, "action", string(action))
	if err != nil {
		return Decision{}, false
	}

	var rd rawDecision
	if err := json.Unmarshal([]byte(js), &rd); err != nil {
		return Decision{}, false
	}

	switch rd.Action {
	case ActionAdd:
		return parseAdd(rd, loc)
	case ActionUpdatePriority:
		target := strings.TrimSpace(rd.TargetTitle)
		p, err := commitment.ParsePriority(rd.NewPriority)
		if target == "" || err != nil {
			return Decision{}, false
		}
		return NewPriorityChange(PriorityChange{TargetTitle: target, NewPriority: p}), true
	case ActionRespond, ActionError:
		msg := strings.TrimSpace(rd.Message)
		if msg == "" {
			return Decision{}, false
		}
		if rd.Action == ActionError {
			return Error(msg), true
		}
		return Respond(msg), true
	}
	return Decision{}, false
}

// resolveAction reads the union tag. The canonical field is "action"; some
// models put the tag in "type" instead, which is only accepted when it is
// not a commitment kind.
func resolveAction(js string) (Action, bool) {
	tag := gjson.Get(js, "action")
	if !tag.Exists() {
		tag = gjson.Get(js, "type")
	}
	if tag.Type != gjson.String {
		return "", false
	}
	a, ok := actionAliases[strings.ToLower(strings.TrimSpace(tag.Str))]
	return a, ok
}

func parseAdd(rd rawDecision, loc *time.Location) (Decision, bool) {
	kind, err := commitment.ParseKind(rd.Type)
	title := strings.TrimSpace(rd.Title)
	if err != nil || title == "" {
		return Decision{}, false
	}

	a := Add{Kind: kind, Title: title, Confidence: DefaultConfidence}
	if rd.Confidence != nil {
		a.Confidence = clamp01(*rd.Confidence)
	}
	if p, err := commitment.ParsePriority(rd.Priority); err == nil {
		a.Priority = p
	}
	if f, err := commitment.ParseFrequency(rd.Frequency); err == nil {
		a.Frequency = f
	}

	when := rd.Datetime
	if when == "" {
		when = rd.DueDate
	}
	if t, ok := parseSchedule(when, loc); ok {
		a.Schedule = &t
	}
	return NewAdd(a), true
}

func parseSchedule(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range scheduleLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
