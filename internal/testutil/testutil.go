// Package testutil provides fixture builders for scheduling engine tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/store"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

// Tenant is the tenant ID used by fixtures unless a test picks another.
const Tenant = "acme"

// WorkOrder is the default work order of fixture tasks.
const WorkOrder = "wo-1"

// Epoch is a fixed clock for deterministic tests.
var Epoch = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

// Clock returns a func reporting Epoch, for WithClock options.
func Clock() func() time.Time {
	return func() time.Time { return Epoch }
}

// TaskOption customizes a fixture task.
type TaskOption func(*task.Task)

// NewTask builds a PENDING, NORMAL priority task in WorkOrder.
func NewTask(id string, opts ...TaskOption) *task.Task {
	t := &task.Task{
		ID:          id,
		Number:      id,
		Name:        "Task " + id,
		WorkOrderID: WorkOrder,
		Status:      task.StatusPending,
		Priority:    task.PriorityNormal,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Hours sets the estimated duration.
func Hours(h float64) TaskOption {
	return func(t *task.Task) { t.EstimatedHours = h }
}

// DependsOn sets the dependency list.
func DependsOn(ids ...string) TaskOption {
	return func(t *task.Task) { t.DependsOn = ids }
}

// Status sets the status.
func Status(s task.Status) TaskOption {
	return func(t *task.Task) { t.Status = s }
}

// Priority sets the priority.
func Priority(p task.Priority) TaskOption {
	return func(t *task.Task) { t.Priority = p }
}

// InWorkOrder moves the task to another work order.
func InWorkOrder(wo string) TaskOption {
	return func(t *task.Task) { t.WorkOrderID = wo }
}

// AssignedTo sets the assignee.
func AssignedTo(workerID string) TaskOption {
	return func(t *task.Task) { t.AssigneeID = workerID }
}

// Quantity sets the target quantity.
func Quantity(q int) TaskOption {
	return func(t *task.Task) { t.TargetQuantity = q }
}

// Skills sets the required skills.
func Skills(skills ...string) TaskOption {
	return func(t *task.Task) { t.RequiredSkills = skills }
}

// WorkCenter sets the work center.
func WorkCenter(id string) TaskOption {
	return func(t *task.Task) { t.WorkCenterID = id }
}

// Due sets the due date relative to Epoch.
func Due(in time.Duration) TaskOption {
	return func(t *task.Task) {
		due := Epoch.Add(in)
		t.DueDate = &due
	}
}

// Created sets the creation time relative to Epoch, which fixes list order.
func Created(offset time.Duration) TaskOption {
	return func(t *task.Task) { t.CreatedAt = Epoch.Add(offset) }
}

// NewWorker builds an active worker.
func NewWorker(id string, skills ...string) *task.Worker {
	return &task.Worker{ID: id, Name: "Worker " + id, Active: true, Skills: skills}
}

// Seed writes tasks and workers for tenant in one unit of work. Tasks
// without a creation time get increasing offsets from Epoch in argument
// order so stores list them deterministically.
func Seed(t *testing.T, s store.Store, tenantID string, tasks []*task.Task, workers ...*task.Worker) {
	t.Helper()
	for i, tk := range tasks {
		if tk.CreatedAt.IsZero() {
			tk.CreatedAt = Epoch.Add(time.Duration(i) * time.Second)
		}
	}
	err := s.Update(context.Background(), tenantID, func(tx store.Tx) error {
		tx.PutTasks(tasks...)
		tx.PutWorkers(workers...)
		return nil
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
}

// Assign writes an active assignment of taskID to workerID and sets the
// task's assignee, the way the assignment engine would.
func Assign(t *testing.T, s store.Store, tenantID, taskID, workerID string) *task.Assignment {
	t.Helper()
	ctx := context.Background()
	tk, err := s.Task(ctx, tenantID, taskID)
	if err != nil {
		t.Fatalf("load task %s: %v", taskID, err)
	}
	a := task.NewAssignment(taskID, workerID, task.MethodManual, "", Epoch)
	tk.AssigneeID = workerID
	err = s.Update(ctx, tenantID, func(tx store.Tx) error {
		tx.PutTasks(tk)
		tx.PutAssignments(a)
		return nil
	})
	if err != nil {
		t.Fatalf("assign %s: %v", taskID, err)
	}
	return a
}

// MustTask loads a task or fails the test.
func MustTask(t *testing.T, s store.Reader, tenantID, id string) *task.Task {
	t.Helper()
	tk, err := s.Task(context.Background(), tenantID, id)
	if err != nil {
		t.Fatalf("load task %s: %v", id, err)
	}
	return tk
}
