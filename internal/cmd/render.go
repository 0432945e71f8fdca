package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/event"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/reassign"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

var (
	primaryColor = lipgloss.Color("#A78BFA") // Purple
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Amber
	errorColor   = lipgloss.Color("#F87171") // Red
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
	blueColor    = lipgloss.Color("#60A5FA") // Blue
	borderColor  = lipgloss.Color("#6B7280")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// statusColors maps task statuses to display colors.
var statusColors = map[task.Status]lipgloss.Color{
	task.StatusPending:    mutedColor,
	task.StatusReady:      blueColor,
	task.StatusInProgress: successColor,
	task.StatusPaused:     warningColor,
	task.StatusCompleted:  primaryColor,
	task.StatusFailed:     errorColor,
	task.StatusCancelled:  mutedColor,
}

func statusText(s task.Status) string {
	return lipgloss.NewStyle().Foreground(statusColors[s]).Render(string(s))
}

// emit writes v as indented JSON when --output json is set, otherwise calls
// text.
func (a *app) emit(v any, text func(w io.Writer)) error {
	if a.format == "json" {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(a.out)
	return nil
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

func formatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// renderTasks formats tasks as a table.
func renderTasks(tasks []*task.Task) string {
	if len(tasks) == 0 {
		return mutedStyle.Render("No tasks.")
	}
	t := newTable("ID", "NAME", "STATUS", "PRIORITY", "HOURS", "ASSIGNEE", "DEPENDS ON", "DUE")
	for _, tk := range tasks {
		due := "-"
		if tk.DueDate != nil {
			due = tk.DueDate.Format("2006-01-02 15:04")
		}
		t.Row(
			tk.ID,
			tk.Name,
			statusText(tk.Status),
			tk.Priority.String(),
			formatHours(tk.EstimatedHours),
			orDash(tk.AssigneeID),
			orDash(strings.Join(tk.DependsOn, ",")),
			due,
		)
	}
	return t.Render()
}

// renderResults formats a reassignment batch.
func renderResults(results []reassign.Result) string {
	if len(results) == 0 {
		return mutedStyle.Render("Nothing to reassign.")
	}
	t := newTable("TASK", "FROM", "TO", "OUTCOME", "DETAIL")
	for _, r := range results {
		outcome, detail := successStyle.Render("moved"), r.Reason
		switch {
		case r.Skipped:
			outcome, detail = warningStyle.Render("skipped"), r.Error
		case !r.Success:
			outcome, detail = errorStyle.Render("failed"), r.Error
		}
		t.Row(r.TaskID, orDash(r.PreviousAssignee), orDash(r.NewAssignee), outcome, detail)
	}
	return t.Render()
}

func renderLoads(loads map[string]int) string {
	ids := slices.Sorted(maps.Keys(loads))
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s=%d", id, loads[id])
	}
	return strings.Join(parts, " ")
}

// describeEvent returns a one-line summary of an event.
func describeEvent(e event.Event) string {
	switch ev := e.(type) {
	case event.DependencyAddedEvent:
		return fmt.Sprintf("%s now depends on %s", ev.TaskID, ev.DependsOnID)
	case event.DependencyRemovedEvent:
		return fmt.Sprintf("%s no longer depends on %s", ev.TaskID, ev.DependsOnID)
	case event.TaskReadyEvent:
		if ev.TriggeredBy != "" {
			return fmt.Sprintf("%s is ready (unblocked by %s)", ev.Task.ID, ev.TriggeredBy)
		}
		return fmt.Sprintf("%s is ready", ev.Task.ID)
	case event.TaskSplitEvent:
		return fmt.Sprintf("%s split into %d subtasks", ev.Original.ID, len(ev.Subtasks))
	case event.TaskStatusChangedEvent:
		return fmt.Sprintf("%s: %s -> %s", ev.TaskID, ev.From, ev.To)
	case event.TaskAssignedEvent:
		if ev.PreviousWorkerID != "" {
			return fmt.Sprintf("%s reassigned %s -> %s (%s)", ev.TaskID, ev.PreviousWorkerID, ev.WorkerID, ev.Method)
		}
		return fmt.Sprintf("%s assigned to %s (%s)", ev.TaskID, ev.WorkerID, ev.Method)
	case event.TasksBulkReassignedEvent:
		return fmt.Sprintf("bulk reassignment to %s: %s", ev.TargetWorkerID, describeSummary(ev.BatchSummary))
	case event.WorkerUnavailabilityHandledEvent:
		return fmt.Sprintf("worker %s unavailable: %s", ev.WorkerID, describeSummary(ev.BatchSummary))
	case event.WorkloadBalancedEvent:
		return fmt.Sprintf("workload balanced: %s (before: %s, after: %s)",
			describeSummary(ev.BatchSummary), renderLoads(ev.Before), renderLoads(ev.After))
	case event.EmergencyRedistributionEvent:
		return fmt.Sprintf("emergency redistribution: %s", describeSummary(ev.BatchSummary))
	default:
		return e.EventType()
	}
}

func describeSummary(s event.BatchSummary) string {
	return fmt.Sprintf("%d moved, %d failed, %d skipped of %d", s.Succeeded, s.Failed, s.Skipped, s.Total)
}

// printEvents lists the events published during the command.
func (a *app) printEvents(w io.Writer) {
	if len(a.published) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("Events"))
	for _, e := range a.published {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render(e.EventType()), describeEvent(e))
	}
}
