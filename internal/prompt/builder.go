// Package prompt assembles the instruction text sent to the language model.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/chris/helpem/internal/commitment"
)

// recentCompletions is how many completion days are listed per routine.
const recentCompletions = 7

// FormatDay renders t as "Friday, January 16th".
func FormatDay(t time.Time) string {
	return t.Format("Monday, January ") + humanize.Ordinal(t.Day())
}

// FormatDate renders t as "Friday, January 16th at 3:00 PM".
func FormatDate(t time.Time) string {
	return FormatDay(t) + " at " + t.Format("3:04 PM")
}

type Builder struct {
	charter string
}

func NewBuilder() *Builder {
	return &Builder{charter: Charter}
}

// Build returns the system prompt for one turn. now decides which
// timezone every date is rendered in and what "today" means.
func (b *Builder) Build(now time.Time, snap commitment.Snapshot) string {
	var sb strings.Builder
	sb.WriteString(b.charter)
	sb.WriteString("\n\n=== NOW ===\n")
	fmt.Fprintf(&sb, "Current date and time: %s (%s)\n", FormatDate(now), now.Format("MST"))

	sb.WriteString("\n=== TASKS ===\n")
	writeTasks(&sb, now, snap.Tasks)

	sb.WriteString("\n=== ROUTINES ===\n")
	writeRoutines(&sb, now, snap.Routines)

	sb.WriteString("\n=== APPOINTMENTS ===\n")
	writeAppointments(&sb, now, snap.Appointments)

	return sb.String()
}

func writeTasks(sb *strings.Builder, now time.Time, tasks []commitment.Task) {
	if len(tasks) == 0 {
		sb.WriteString("No tasks.\n")
		return
	}
	for _, t := range tasks {
		if t.Completed() {
			fmt.Fprintf(sb, "- [done] %s (completed %s)\n", t.Title, FormatDay(t.CompletedAt.In(now.Location())))
			continue
		}
		fmt.Fprintf(sb, "- [%s priority] %s", t.Priority, t.Title)
		if t.DueDate != nil {
			due := t.DueDate.In(now.Location())
			fmt.Fprintf(sb, " (due %s", FormatDate(due))
			if due.Before(now) {
				sb.WriteString(", overdue")
			}
			sb.WriteString(")")
		}
		sb.WriteString("\n")
	}
}

func writeRoutines(sb *strings.Builder, now time.Time, routines []commitment.Routine) {
	if len(routines) == 0 {
		sb.WriteString("No routines.\n")
		return
	}
	for _, r := range routines {
		status := "not done today"
		if r.CompletedOn(now) {
			status = "done today"
		}
		fmt.Fprintf(sb, "- %s (%s), %s", r.Title, r.Frequency, status)
		if days := recentDays(r, now.Location()); len(days) > 0 {
			fmt.Fprintf(sb, "; recently completed %s", strings.Join(days, "; "))
		}
		sb.WriteString("\n")
	}
}

// recentDays lists the distinct calendar days of the latest completions,
// newest first.
func recentDays(r commitment.Routine, loc *time.Location) []string {
	dates := make([]time.Time, 0, len(r.Completions))
	for _, c := range r.Completions {
		dates = append(dates, c.Date.In(loc))
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })

	var out []string
	seen := make(map[string]bool)
	for _, d := range dates {
		key := d.Format(time.DateOnly)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, FormatDay(d))
		if len(out) == recentCompletions {
			break
		}
	}
	return out
}

func writeAppointments(sb *strings.Builder, now time.Time, appts []commitment.Appointment) {
	if len(appts) == 0 {
		sb.WriteString("No appointments.\n")
		return
	}
	sorted := append([]commitment.Appointment(nil), appts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Datetime.Before(sorted[j].Datetime) })

	for _, a := range sorted {
		at := a.Datetime.In(now.Location())
		fmt.Fprintf(sb, "- %s (%s)", a.Title, FormatDate(at))
		if at.Before(now) {
			sb.WriteString(" [already happened]")
		}
		sb.WriteString("\n")
	}
}
