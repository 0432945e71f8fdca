package task

import (
	"time"

	"github.com/google/uuid"
)

// AssignmentStatus is the lifecycle state of an assignment record.
type AssignmentStatus string

const (
	AssignmentPending    AssignmentStatus = "pending"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentCompleted  AssignmentStatus = "completed"
	AssignmentReassigned AssignmentStatus = "reassigned"
)

// Method records how an assignment was produced.
type Method string

const (
	MethodManual      Method = "manual"
	MethodSkillMatch  Method = "skill_match"
	MethodLeastLoaded Method = "least_loaded"
	MethodRoundRobin  Method = "round_robin"
	MethodPriority    Method = "priority"
	MethodProximity   Method = "proximity"
	MethodEmergency   Method = "emergency"
	MethodBalancing   Method = "balancing"
)

// ReassignmentEntry is one hop in an assignment's audit trail.
type ReassignmentEntry struct {
	From   string    `json:"from,omitempty"`
	To     string    `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Assignment pairs a worker with a task. Records are superseded, never
// deleted, so the full history of a task survives reassignment.
type Assignment struct {
	ID        string              `json:"id"`
	TaskID    string              `json:"taskId"`
	WorkerID  string              `json:"workerId"`
	Status    AssignmentStatus    `json:"status"`
	Method    Method              `json:"method"`
	Reason    string              `json:"reason,omitempty"`
	History   []ReassignmentEntry `json:"history,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// NewAssignment creates a pending assignment with a fresh ID.
func NewAssignment(taskID, workerID string, method Method, reason string, now time.Time) *Assignment {
	return &Assignment{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		WorkerID:  workerID,
		Status:    AssignmentPending,
		Method:    method,
		Reason:    reason,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActive reports whether the assignment still binds the worker.
func (a *Assignment) IsActive() bool {
	return a.Status == AssignmentPending || a.Status == AssignmentInProgress
}

// Supersede closes a and returns its replacement for workerID, carrying the
// history forward with a new entry.
func (a *Assignment) Supersede(workerID string, method Method, reason string, now time.Time) *Assignment {
	a.Status = AssignmentReassigned
	a.UpdatedAt = now

	next := NewAssignment(a.TaskID, workerID, method, reason, now)
	next.History = make([]ReassignmentEntry, 0, len(a.History)+1)
	next.History = append(next.History, a.History...)
	next.History = append(next.History, ReassignmentEntry{
		From:   a.WorkerID,
		To:     workerID,
		Reason: reason,
		At:     now,
	})
	return next
}

// Clone returns a deep copy.
func (a *Assignment) Clone() *Assignment {
	if a == nil {
		return nil
	}
	c := *a
	c.History = append([]ReassignmentEntry(nil), a.History...)
	return &c
}
