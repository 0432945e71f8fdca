// Package assignment selects workers for tasks.
//
// Strategies are pure: they receive a task, a candidate pool and, for round
// robin, the current cursor, and return a pick. The Engine loads the pool
// from the store, persists the cursor, and writes assignment records,
// superseding the active one rather than deleting it.
package assignment

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/event"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/logging"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/metrics"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/scopelock"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/store"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

// CursorKey is the store key of the round robin cursor.
const CursorKey = "round_robin"

// cursorLockKey serializes round robin picks across work orders of a tenant.
func cursorLockKey(tenantID string) string {
	return scopelock.ResourceKey(tenantID, CursorKey)
}

// Result is the outcome of one assignment.
type Result struct {
	Task       *task.Task
	Assignment *task.Assignment
	// Previous is the superseded record, nil for a first assignment.
	Previous *task.Assignment
	// PreviousWorkerID is the task's assignee before the operation.
	PreviousWorkerID string
	Score            float64
	// Unchanged is set when the task was already assigned to the worker.
	Unchanged bool
}

// Engine assigns tasks to workers.
type Engine struct {
	store      store.Store
	workers    store.WorkerDirectory
	locks      *scopelock.Locks
	logger     *logging.Logger
	metrics    *metrics.Metrics
	capacity   int
	now        func() time.Time
	strategies map[task.Method]Strategy
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	logger         *logging.Logger
	metrics        *metrics.Metrics
	locks          *scopelock.Locks
	capacity       int
	now            func() time.Time
	scorer         SkillScorer
	workloadWeight float64
	urgentWeight   float64
	overrides      []Strategy
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option { return func(o *engineOptions) { o.logger = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(o *engineOptions) { o.metrics = m } }

// WithLocks shares scope locks with the dependency manager.
func WithLocks(l *scopelock.Locks) Option { return func(o *engineOptions) { o.locks = l } }

// WithCapacity sets the per-worker active task ceiling.
func WithCapacity(n int) Option { return func(o *engineOptions) { o.capacity = n } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(o *engineOptions) { o.now = now } }

// WithSkillScorer replaces the default skill overlap scorer.
func WithSkillScorer(s SkillScorer) Option { return func(o *engineOptions) { o.scorer = s } }

// WithWeights sets the least loaded and priority aware weights.
func WithWeights(workload, urgent float64) Option {
	return func(o *engineOptions) {
		o.workloadWeight = workload
		o.urgentWeight = urgent
	}
}

// WithStrategy registers s for its method, replacing the built-in one.
func WithStrategy(s Strategy) Option {
	return func(o *engineOptions) { o.overrides = append(o.overrides, s) }
}

// NewEngine creates an Engine over a task store and worker directory.
func NewEngine(s store.Store, workers store.WorkerDirectory, opts ...Option) *Engine {
	o := engineOptions{
		logger:         logging.NopLogger(),
		capacity:       DefaultCapacity,
		now:            time.Now,
		workloadWeight: DefaultWorkloadWeight,
		urgentWeight:   DefaultUrgentWeight,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.locks == nil {
		o.locks = scopelock.New()
	}

	strategies := Strategies(o.scorer, o.workloadWeight, o.urgentWeight)
	for _, s := range o.overrides {
		strategies[s.Method()] = s
	}

	return &Engine{
		store:      s,
		workers:    workers,
		locks:      o.locks,
		logger:     o.logger,
		metrics:    o.metrics,
		capacity:   o.capacity,
		now:        o.now,
		strategies: strategies,
	}
}

// Strategy returns the strategy registered for method.
func (e *Engine) Strategy(method task.Method) (Strategy, error) {
	s, ok := e.strategies[method]
	if !ok {
		return nil, errors.NewValidationError(fmt.Sprintf("unknown assignment strategy %q", method)).
			WithField("method").
			WithValue(string(method))
	}
	return s, nil
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time { return e.now() }

// LoadPool loads the tenant's active workers and open tasks concurrently and
// computes their workloads.
func (e *Engine) LoadPool(ctx context.Context, tenantID string) (*Pool, error) {
	var (
		workers []*task.Worker
		tasks   []*task.Task
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		workers, err = e.workers.ActiveWorkers(gctx, tenantID)
		return errors.Wrap(err, "load workers")
	})
	g.Go(func() error {
		var err error
		tasks, err = e.store.ListTasks(gctx, tenantID, task.Filter{ExcludeTerminal: true})
		return errors.Wrap(err, "load open tasks")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewPool(workers, tasks, e.capacity, e.now()), nil
}

// Assign picks a worker for taskID with the strategy for method and records
// the assignment. Round robin reads and advances the tenant's stored cursor
// in the same unit of work.
func (e *Engine) Assign(ctx context.Context, tenantID, taskID string, method task.Method) (res *Result, events []event.Event, err error) {
	defer func() { e.metrics.Assignment(string(method), err) }()

	strategy, err := e.Strategy(method)
	if err != nil {
		return nil, nil, err
	}
	t, err := e.store.Task(ctx, tenantID, taskID)
	if err != nil {
		return nil, nil, err
	}

	unlock, err := e.locks.Lock(ctx, scopelock.Key(tenantID, t.WorkOrderID))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "lock work order %s", t.WorkOrderID)
	}
	defer unlock()

	if method == task.MethodRoundRobin {
		unlockCursor, err := e.locks.Lock(ctx, cursorLockKey(tenantID))
		if err != nil {
			return nil, nil, errors.Wrap(err, "lock round robin cursor")
		}
		defer unlockCursor()
	}

	if t, err = e.store.Task(ctx, tenantID, taskID); err != nil {
		return nil, nil, err
	}
	pool, err := e.LoadPool(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	req := Request{Task: t, Candidates: pool.Candidates()}
	if method == task.MethodRoundRobin {
		if req.Cursor, err = e.store.Cursor(ctx, tenantID, CursorKey); err != nil {
			return nil, nil, err
		}
	}

	sel, ok := strategy.Select(req)
	if !ok {
		e.logger.WithTenant(tenantID).WithWorkOrder(t.WorkOrderID).Warn("no eligible worker",
			"task_id", taskID, "method", method, "candidates", len(req.Candidates))
		return nil, nil, errors.NewNotFoundError("worker", "candidate for task "+taskID).
			WithCause(errors.ErrNoCandidate)
	}

	res, events, err = e.commit(ctx, tenantID, t, sel.Candidate.ID(), method, "", sel.Cursor)
	if err != nil {
		return nil, nil, err
	}
	res.Score = sel.Score
	return res, events, nil
}

// AssignTo assigns taskID to a specific worker. The worker must exist and be
// active, and the task must not be terminal.
func (e *Engine) AssignTo(ctx context.Context, tenantID, taskID, workerID string, method task.Method, reason string) (res *Result, events []event.Event, err error) {
	defer func() { e.metrics.Assignment(string(method), err) }()

	w, err := e.workers.Worker(ctx, tenantID, workerID)
	if err != nil {
		return nil, nil, err
	}
	if !w.Active {
		return nil, nil, errors.NewInvalidStateError("worker is not active", errors.ErrIllegalTransition).
			WithEntity(workerID)
	}
	t, err := e.store.Task(ctx, tenantID, taskID)
	if err != nil {
		return nil, nil, err
	}

	unlock, err := e.locks.Lock(ctx, scopelock.Key(tenantID, t.WorkOrderID))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "lock work order %s", t.WorkOrderID)
	}
	defer unlock()

	// Reload under the lock; the task may have moved since the first read.
	if t, err = e.store.Task(ctx, tenantID, taskID); err != nil {
		return nil, nil, err
	}
	return e.commit(ctx, tenantID, t, workerID, method, reason, "")
}

// commit writes the assignment of t to workerID. The caller holds the scope
// lock.
func (e *Engine) commit(ctx context.Context, tenantID string, t *task.Task, workerID string, method task.Method, reason, cursor string) (*Result, []event.Event, error) {
	if t.Status.IsTerminal() {
		return nil, nil, errors.NewInvalidStateError("cannot assign a finished task", errors.ErrTerminalTask).
			WithEntity(t.ID).
			WithStates(string(t.Status), string(t.Status))
	}

	active, err := e.store.ActiveAssignment(ctx, tenantID, t.ID)
	if err != nil {
		return nil, nil, err
	}
	if active != nil && active.WorkerID == workerID && t.AssigneeID == workerID {
		return &Result{Task: t, Assignment: active, PreviousWorkerID: workerID, Unchanged: true}, nil, nil
	}

	now := e.now()
	var next *task.Assignment
	if active != nil {
		next = active.Supersede(workerID, method, reason, now)
	} else {
		next = task.NewAssignment(t.ID, workerID, method, reason, now)
		if t.AssigneeID != "" && t.AssigneeID != workerID {
			next.History = []task.ReassignmentEntry{{From: t.AssigneeID, To: workerID, Reason: reason, At: now}}
		}
	}
	if t.Status == task.StatusInProgress {
		next.Status = task.AssignmentInProgress
	}
	previousWorker := t.AssigneeID
	t.AssigneeID = workerID
	t.UpdatedAt = now

	err = e.store.Update(ctx, tenantID, func(tx store.Tx) error {
		tx.PutTasks(t)
		if active != nil {
			tx.PutAssignments(active)
		}
		tx.PutAssignments(next)
		if cursor != "" {
			tx.PutCursor(CursorKey, cursor)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	e.logger.WithTenant(tenantID).WithWorkOrder(t.WorkOrderID).Info("task assigned",
		"task_id", t.ID, "worker_id", workerID, "previous_worker_id", previousWorker, "method", method)

	return &Result{Task: t, Assignment: next, Previous: active, PreviousWorkerID: previousWorker},
		[]event.Event{event.NewTaskAssignedEvent(tenantID, next, previousWorker)},
		nil
}
