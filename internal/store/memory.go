package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

type tenantData struct {
	tasks       map[string]*task.Task
	assignments map[string][]*task.Assignment // taskID -> records, oldest first
	cursors     map[string]string
	workers     map[string]*task.Worker
}

func newTenantData() *tenantData {
	return &tenantData{
		tasks:       make(map[string]*task.Task),
		assignments: make(map[string][]*task.Assignment),
		cursors:     make(map[string]string),
		workers:     make(map[string]*task.Worker),
	}
}

// Memory is an in-process Backend. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	tenants map[string]*tenantData
	now     func() time.Time

	// failNext, when set, makes the next Update fail with this error before
	// applying anything. Tests use it to exercise per-item isolation.
	failNext error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tenants: make(map[string]*tenantData),
		now:     time.Now,
	}
}

// FailNextUpdate makes the next Update call return err without writing.
func (m *Memory) FailNextUpdate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func (m *Memory) tenant(id string) *tenantData {
	td, ok := m.tenants[id]
	if !ok {
		return newTenantData()
	}
	return td
}

// Task implements Reader.
func (m *Memory) Task(ctx context.Context, tenantID, id string) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenant(tenantID).tasks[id]
	if !ok {
		return nil, errors.NewNotFoundError("task", id)
	}
	return t.Clone(), nil
}

// Tasks implements Reader.
func (m *Memory) Tasks(ctx context.Context, tenantID string, ids []string) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	td := m.tenant(tenantID)
	out := make([]*task.Task, 0, len(ids))
	for _, id := range ids {
		if t, ok := td.tasks[id]; ok {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

// ListTasks implements Reader.
func (m *Memory) ListTasks(ctx context.Context, tenantID string, f task.Filter) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*task.Task
	for _, t := range m.tenant(tenantID).tasks {
		if f.Match(t) {
			out = append(out, t.Clone())
		}
	}
	SortByCreation(out)
	return out, nil
}

// SortByCreation orders tasks by CreatedAt, then ID.
func SortByCreation(tasks []*task.Task) {
	slices.SortFunc(tasks, func(a, b *task.Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// ActiveAssignment implements Reader.
func (m *Memory) ActiveAssignment(ctx context.Context, tenantID, taskID string) (*task.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.tenant(tenantID).assignments[taskID]
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].IsActive() {
			return records[i].Clone(), nil
		}
	}
	return nil, nil
}

// Assignments implements Reader.
func (m *Memory) Assignments(ctx context.Context, tenantID, taskID string) ([]*task.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.tenant(tenantID).assignments[taskID]
	out := make([]*task.Assignment, len(records))
	for i, a := range records {
		out[i] = a.Clone()
	}
	return out, nil
}

// Cursor implements Reader.
func (m *Memory) Cursor(ctx context.Context, tenantID, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tenant(tenantID).cursors[key], nil
}

// ActiveWorkers implements WorkerDirectory.
func (m *Memory) ActiveWorkers(ctx context.Context, tenantID string) ([]*task.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*task.Worker
	for _, w := range m.tenant(tenantID).workers {
		if w.Active {
			out = append(out, w.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *task.Worker) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// Worker implements WorkerDirectory.
func (m *Memory) Worker(ctx context.Context, tenantID, id string) (*task.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.tenant(tenantID).workers[id]
	if !ok {
		return nil, errors.NewNotFoundError("worker", id)
	}
	return w.Clone(), nil
}

// Update implements Store. Staged writes are applied under one lock, so
// readers never observe a partial batch.
func (m *Memory) Update(ctx context.Context, tenantID string, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "update aborted")
	}

	tx, apply := NewBatch()
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}

	td, ok := m.tenants[tenantID]
	if !ok {
		td = newTenantData()
		m.tenants[tenantID] = td
	}
	return apply(memoryApplier{td: td, now: m.now()})
}

// Close implements Backend.
func (m *Memory) Close() error { return nil }

type memoryApplier struct {
	td  *tenantData
	now time.Time
}

func (a memoryApplier) Task(t *task.Task) error {
	if prev, ok := a.td.tasks[t.ID]; ok && t.CreatedAt.IsZero() {
		t.CreatedAt = prev.CreatedAt
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = a.now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = a.now
	}
	a.td.tasks[t.ID] = t
	return nil
}

func (a memoryApplier) Assignment(asg *task.Assignment) error {
	records := a.td.assignments[asg.TaskID]
	for i, existing := range records {
		if existing.ID == asg.ID {
			records[i] = asg
			return nil
		}
	}
	a.td.assignments[asg.TaskID] = append(records, asg)
	return nil
}

func (a memoryApplier) Cursor(key, value string) error {
	a.td.cursors[key] = value
	return nil
}

func (a memoryApplier) Worker(w *task.Worker) error {
	a.td.workers[w.ID] = w
	return nil
}
