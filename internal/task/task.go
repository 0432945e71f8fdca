// Package task defines the scheduling data model: tasks, their status state
// machine and priorities, workers, assignments, and task filters.
//
// Tasks reference each other only by ID. The dependency graph is rebuilt on
// demand from a task set by package graph.
package task

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusReady      Status = "READY"
	StatusInProgress Status = "IN_PROGRESS"
	StatusPaused     Status = "PAUSED"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusPending, StatusReady, StatusInProgress, StatusPaused,
		StatusCompleted, StatusFailed, StatusCancelled,
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	return slices.Contains(Statuses(), s)
}

// ParseStatus converts a case-insensitive name into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", errors.NewValidationError(fmt.Sprintf("unknown task status %q", s)).
			WithField("status").
			WithValue(s)
	}
	return st, nil
}

// Priority is an ordered task priority. Higher values are more urgent.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityUrgent
	PriorityCritical
)

var priorityNames = map[Priority]string{
	PriorityLow:      "LOW",
	PriorityNormal:   "NORMAL",
	PriorityHigh:     "HIGH",
	PriorityUrgent:   "URGENT",
	PriorityCritical: "CRITICAL",
}

// String returns the upper-case priority name.
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

// IsUrgent reports whether p is URGENT or CRITICAL.
func (p Priority) IsUrgent() bool {
	return p >= PriorityUrgent
}

// ParsePriority converts a case-insensitive name into a Priority.
func ParsePriority(s string) (Priority, error) {
	want := strings.ToUpper(strings.TrimSpace(s))
	for p, name := range priorityNames {
		if name == want {
			return p, nil
		}
	}
	return 0, errors.NewValidationError(fmt.Sprintf("unknown task priority %q", s)).
		WithField("priority").
		WithValue(s)
}

// MarshalText encodes the priority by name. The zero value encodes empty.
func (p Priority) MarshalText() ([]byte, error) {
	if p == 0 {
		return []byte{}, nil
	}
	name, ok := priorityNames[p]
	if !ok {
		return nil, fmt.Errorf("invalid priority %d", int(p))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a priority name. An empty value leaves it unset.
func (p *Priority) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*p = 0
		return nil
	}
	parsed, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Task is a unit of schedulable work and a node of the dependency graph.
type Task struct {
	ID                string     `json:"id" yaml:"id"`
	Number            string     `json:"number,omitempty" yaml:"number,omitempty"`
	Name              string     `json:"name" yaml:"name"`
	WorkOrderID       string     `json:"workOrderId" yaml:"workOrder"`
	Status            Status     `json:"status" yaml:"status"`
	Priority          Priority   `json:"priority" yaml:"priority"`
	EstimatedHours    float64    `json:"estimatedHours" yaml:"estimatedHours"`
	TargetQuantity    int        `json:"targetQuantity" yaml:"targetQuantity"`
	CompletedQuantity int        `json:"completedQuantity" yaml:"completedQuantity"`
	RejectedQuantity  int        `json:"rejectedQuantity" yaml:"rejectedQuantity"`
	AssigneeID        string     `json:"assigneeId,omitempty" yaml:"assignee,omitempty"`
	DueDate           *time.Time `json:"dueDate,omitempty" yaml:"dueDate,omitempty"`
	DependsOn         []string   `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
	RequiredSkills    []string   `json:"requiredSkills,omitempty" yaml:"requiredSkills,omitempty"`
	WorkCenterID      string     `json:"workCenterId,omitempty" yaml:"workCenter,omitempty"`
	SplitFrom         string     `json:"splitFrom,omitempty" yaml:"splitFrom,omitempty"`
	Notes             string     `json:"notes,omitempty" yaml:"notes,omitempty"`
	CreatedAt         time.Time  `json:"createdAt" yaml:"createdAt,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt" yaml:"updatedAt,omitempty"`
}

// Clone returns a deep copy so callers can mutate the result freely.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.DependsOn = slices.Clone(t.DependsOn)
	c.RequiredSkills = slices.Clone(t.RequiredSkills)
	if t.DueDate != nil {
		due := *t.DueDate
		c.DueDate = &due
	}
	return &c
}

// HasDependency reports whether the task directly depends on id.
func (t *Task) HasDependency(id string) bool {
	return slices.Contains(t.DependsOn, id)
}

// AddDependency appends id to the dependency list if absent.
func (t *Task) AddDependency(id string) bool {
	if t.HasDependency(id) {
		return false
	}
	t.DependsOn = append(t.DependsOn, id)
	return true
}

// RemoveDependency drops id from the dependency list.
func (t *Task) RemoveDependency(id string) bool {
	idx := slices.Index(t.DependsOn, id)
	if idx < 0 {
		return false
	}
	t.DependsOn = slices.Delete(t.DependsOn, idx, idx+1)
	return true
}

// IsOverdue reports whether the task is unfinished past its due date.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.DueDate != nil && !t.Status.IsTerminal() && t.DueDate.Before(now)
}

// AppendNote adds a line to the task notes.
func (t *Task) AppendNote(note string) {
	if t.Notes == "" {
		t.Notes = note
		return
	}
	t.Notes += "\n" + note
}

// CompareUrgency orders tasks by priority descending, then due date
// ascending (tasks without a due date last), then ID for stability.
func CompareUrgency(a, b *Task) int {
	if a.Priority != b.Priority {
		if a.Priority > b.Priority {
			return -1
		}
		return 1
	}
	switch {
	case a.DueDate != nil && b.DueDate == nil:
		return -1
	case a.DueDate == nil && b.DueDate != nil:
		return 1
	case a.DueDate != nil && b.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
		return a.DueDate.Compare(*b.DueDate)
	}
	return strings.Compare(a.ID, b.ID)
}

// SortByUrgency sorts tasks in place using CompareUrgency.
func SortByUrgency(tasks []*Task) {
	slices.SortFunc(tasks, CompareUrgency)
}

// IDs returns the IDs of tasks in order.
func IDs(tasks []*Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}
