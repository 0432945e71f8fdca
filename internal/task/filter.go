package task

import (
	"slices"
	"time"
)

// Filter selects tasks within a tenant. Zero-valued fields match everything.
type Filter struct {
	WorkOrderID  string
	AssigneeID   string
	IDs          []string
	Statuses     []Status
	Priorities   []Priority
	WorkCenterID string
	// DueBefore matches tasks with a due date strictly before it.
	DueBefore *time.Time
	// UpdatedAfter and UpdatedBefore bound UpdatedAt, inclusive.
	UpdatedAfter  *time.Time
	UpdatedBefore *time.Time
	// ExcludeTerminal drops COMPLETED, FAILED and CANCELLED tasks.
	ExcludeTerminal bool
}

// Match reports whether t satisfies every populated criterion.
func (f Filter) Match(t *Task) bool {
	if f.WorkOrderID != "" && t.WorkOrderID != f.WorkOrderID {
		return false
	}
	if f.AssigneeID != "" && t.AssigneeID != f.AssigneeID {
		return false
	}
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, t.ID) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !slices.Contains(f.Priorities, t.Priority) {
		return false
	}
	if f.WorkCenterID != "" && t.WorkCenterID != f.WorkCenterID {
		return false
	}
	if f.DueBefore != nil && (t.DueDate == nil || !t.DueDate.Before(*f.DueBefore)) {
		return false
	}
	if f.UpdatedAfter != nil && t.UpdatedAt.Before(*f.UpdatedAfter) {
		return false
	}
	if f.UpdatedBefore != nil && t.UpdatedAt.After(*f.UpdatedBefore) {
		return false
	}
	if f.ExcludeTerminal && t.Status.IsTerminal() {
		return false
	}
	return true
}

// Apply returns the tasks matching f, preserving order.
func (f Filter) Apply(tasks []*Task) []*Task {
	out := make([]*Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}
