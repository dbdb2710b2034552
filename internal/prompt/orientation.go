package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/chris/helpem/internal/commitment"
)

// Orientation builds the user-side message for the scheduled daily
// check-in. The model sees the full snapshot in the system prompt; this
// message points it at what matters today.
func Orientation(now time.Time, snap commitment.Snapshot) string {
	var today []string
	for _, a := range snap.UpcomingAppointments(now) {
		if commitment.SameDay(now, a.Datetime) {
			today = append(today, fmt.Sprintf("%s at %s", a.Title, a.Datetime.In(now.Location()).Format("3:04 PM")))
		}
	}

	var overdue []string
	for _, t := range snap.OpenTasks() {
		if t.DueDate != nil && t.DueDate.Before(now) {
			overdue = append(overdue, t.Title)
		}
	}

	var pending []string
	for _, r := range snap.Routines {
		if r.Frequency == commitment.Daily && !r.CompletedOn(now) {
			pending = append(pending, r.Title)
		}
	}

	var b strings.Builder
	b.WriteString("It's time for my daily orientation.\n")
	fmt.Fprintf(&b, "Appointments still ahead today: %s.\n", listOrNone(today))
	fmt.Fprintf(&b, "Overdue tasks: %s.\n", listOrNone(overdue))
	fmt.Fprintf(&b, "Daily routines not done yet: %s.\n", listOrNone(pending))
	b.WriteString("Give me a short orientation for today: what's fixed, anything overdue, and at most three focus suggestions. Don't list everything and don't scold. Reply with a respond action.")
	return b.String()
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
