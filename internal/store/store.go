// Package store defines the persistence boundary of the scheduling engine
// and provides an in-memory implementation.
//
// Every call takes the tenant explicitly. Reads return copies; writes go
// through Update, which stages a batch in a Tx and applies it atomically
// when the callback returns nil. Engine operations save everything they
// changed in one Update call.
package store

import (
	"context"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

// Reader is the read side of the task service.
type Reader interface {
	// Task returns one task or a NotFoundError.
	Task(ctx context.Context, tenantID, id string) (*task.Task, error)
	// Tasks returns the tasks with the given IDs in request order. Unknown
	// IDs are omitted.
	Tasks(ctx context.Context, tenantID string, ids []string) ([]*task.Task, error)
	// ListTasks returns tasks matching f ordered by creation time, then ID.
	ListTasks(ctx context.Context, tenantID string, f task.Filter) ([]*task.Task, error)
	// ActiveAssignment returns the task's active assignment, or nil.
	ActiveAssignment(ctx context.Context, tenantID, taskID string) (*task.Assignment, error)
	// Assignments returns every assignment of the task, oldest first.
	Assignments(ctx context.Context, tenantID, taskID string) ([]*task.Assignment, error)
	// Cursor returns a stored round-robin cursor, or "" when unset.
	Cursor(ctx context.Context, tenantID, key string) (string, error)
}

// Tx stages writes for one unit of work.
type Tx interface {
	PutTasks(tasks ...*task.Task)
	PutAssignments(assignments ...*task.Assignment)
	PutCursor(key, value string)
	PutWorkers(workers ...*task.Worker)
}

// Store is the task service: reads plus an explicit unit-of-work boundary.
type Store interface {
	Reader
	// Update runs fn and applies its staged writes atomically if fn returns
	// nil. Nothing is written when fn fails.
	Update(ctx context.Context, tenantID string, fn func(tx Tx) error) error
}

// WorkerDirectory lists the workers of a tenant.
type WorkerDirectory interface {
	// ActiveWorkers returns workers with Active set, ordered by ID.
	ActiveWorkers(ctx context.Context, tenantID string) ([]*task.Worker, error)
	// Worker returns one worker or a NotFoundError.
	Worker(ctx context.Context, tenantID, id string) (*task.Worker, error)
}

// Backend is a store that also serves as the worker directory.
type Backend interface {
	Store
	WorkerDirectory
	Close() error
}

// batch is the Tx implementation shared by the backends.
type batch struct {
	tasks       []*task.Task
	assignments []*task.Assignment
	cursors     map[string]string
	workers     []*task.Worker
}

func newBatch() *batch {
	return &batch{cursors: make(map[string]string)}
}

func (b *batch) PutTasks(tasks ...*task.Task) {
	for _, t := range tasks {
		b.tasks = append(b.tasks, t.Clone())
	}
}

func (b *batch) PutAssignments(assignments ...*task.Assignment) {
	for _, a := range assignments {
		b.assignments = append(b.assignments, a.Clone())
	}
}

func (b *batch) PutCursor(key, value string) {
	b.cursors[key] = value
}

func (b *batch) PutWorkers(workers ...*task.Worker) {
	for _, w := range workers {
		b.workers = append(b.workers, w.Clone())
	}
}

// Size returns the number of staged writes.
func (b *batch) Size() int {
	return len(b.tasks) + len(b.assignments) + len(b.cursors) + len(b.workers)
}

// NewBatch returns an empty Tx and an apply func that hands its staged
// writes to the given callbacks. Alternative backends use it to share the
// staging semantics of Update.
func NewBatch() (Tx, func(apply Applier) error) {
	b := newBatch()
	return b, func(apply Applier) error {
		for _, t := range b.tasks {
			if err := apply.Task(t); err != nil {
				return err
			}
		}
		for _, a := range b.assignments {
			if err := apply.Assignment(a); err != nil {
				return err
			}
		}
		for k, v := range b.cursors {
			if err := apply.Cursor(k, v); err != nil {
				return err
			}
		}
		for _, w := range b.workers {
			if err := apply.Worker(w); err != nil {
				return err
			}
		}
		return nil
	}
}

// Applier receives staged writes from a batch.
type Applier interface {
	Task(t *task.Task) error
	Assignment(a *task.Assignment) error
	Cursor(key, value string) error
	Worker(w *task.Worker) error
}
