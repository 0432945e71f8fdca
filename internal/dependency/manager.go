// Package dependency implements the dependency engine of a work order: edge
// mutation with cycle prevention, graph queries, validation, the critical
// path, the readiness cascade, task splitting, and status transitions.
//
// Every operation takes the tenant explicitly and serializes on the task's
// work order. Mutations load the scope's tasks once, build a graph, decide
// everything in memory, and save the changed tasks in a single unit of work.
// They return the events they produced; publishing them is up to the caller.
package dependency

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/graph"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/logging"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/metrics"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/scopelock"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/store"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

var tracer = otel.Tracer("mesched/dependency")

// DefaultCriticalPathTimeout bounds one critical path computation.
const DefaultCriticalPathTimeout = 5 * time.Second

// Manager owns dependency mutations and queries for all scopes of a store.
type Manager struct {
	store     store.Store
	workers   store.WorkerDirectory
	locks     *scopelock.Locks
	logger    *logging.Logger
	metrics   *metrics.Metrics
	limits    graph.Limits
	tolerance float64
	cpTimeout time.Duration
	now       func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithLimits bounds the graphs the manager will process.
func WithLimits(l graph.Limits) Option {
	return func(m *Manager) { m.limits = l }
}

// WithSlackTolerance sets the critical path slack tolerance in hours.
func WithSlackTolerance(tol float64) Option {
	return func(m *Manager) { m.tolerance = tol }
}

// WithCriticalPathTimeout bounds each critical path computation.
func WithCriticalPathTimeout(d time.Duration) Option {
	return func(m *Manager) { m.cpTimeout = d }
}

// WithLocks shares a scope lock set with other components.
func WithLocks(l *scopelock.Locks) Option {
	return func(m *Manager) { m.locks = l }
}

// WithWorkers sets the directory split assignees are checked against.
// NewManager uses the store when it also implements store.WorkerDirectory.
func WithWorkers(w store.WorkerDirectory) Option {
	return func(m *Manager) { m.workers = w }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager over s.
func NewManager(s store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:     s,
		locks:     scopelock.New(),
		logger:    logging.NopLogger(),
		tolerance: graph.DefaultSlackTolerance,
		cpTimeout: DefaultCriticalPathTimeout,
		now:       time.Now,
	}
	if wd, ok := s.(store.WorkerDirectory); ok {
		m.workers = wd
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Locks returns the scope locks so collaborators can serialize with the
// manager on the same work orders.
func (m *Manager) Locks() *scopelock.Locks {
	return m.locks
}

// -----------------------------------------------------------------------------
// Scope helpers
// -----------------------------------------------------------------------------

// scope holds the locked graph of one work order during an operation.
type scope struct {
	tenantID    string
	workOrderID string
	graph       *graph.Graph
	dirty       map[string]*task.Task
	assignments []*task.Assignment
	now         time.Time
}

// touch marks t as changed so it is saved at commit.
func (s *scope) touch(t *task.Task) {
	t.UpdatedAt = s.now
	s.dirty[t.ID] = t
}

// add registers a new task in the graph and marks it for saving.
func (s *scope) add(t *task.Task) {
	s.graph.AddNode(t)
	s.touch(t)
}

func (s *scope) changed() []*task.Task {
	out := make([]*task.Task, 0, len(s.dirty))
	for _, id := range s.graph.IDs() {
		if t, ok := s.dirty[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// resolveScope returns the work order of taskID.
func (m *Manager) resolveScope(ctx context.Context, tenantID, taskID string) (string, error) {
	t, err := m.store.Task(ctx, tenantID, taskID)
	if err != nil {
		return "", err
	}
	return t.WorkOrderID, nil
}

// withScope locks the work order, builds its graph and runs fn. If fn returns
// nil, touched tasks and staged assignments are saved in one unit of work.
func (m *Manager) withScope(ctx context.Context, tenantID, workOrderID string, fn func(s *scope) error) error {
	unlock, err := m.locks.Lock(ctx, scopelock.Key(tenantID, workOrderID))
	if err != nil {
		return errors.Wrapf(err, "lock work order %s", workOrderID)
	}
	defer unlock()

	g, err := m.loadGraph(ctx, tenantID, workOrderID)
	if err != nil {
		return err
	}

	s := &scope{
		tenantID:    tenantID,
		workOrderID: workOrderID,
		graph:       g,
		dirty:       make(map[string]*task.Task),
		now:         m.now(),
	}
	if err := fn(s); err != nil {
		return err
	}
	if len(s.dirty) == 0 && len(s.assignments) == 0 {
		return nil
	}

	changed := s.changed()
	return m.store.Update(ctx, tenantID, func(tx store.Tx) error {
		tx.PutTasks(changed...)
		tx.PutAssignments(s.assignments...)
		return nil
	})
}

func (m *Manager) loadGraph(ctx context.Context, tenantID, workOrderID string) (*graph.Graph, error) {
	tasks, err := m.store.ListTasks(ctx, tenantID, task.Filter{WorkOrderID: workOrderID})
	if err != nil {
		return nil, errors.Wrapf(err, "load work order %s", workOrderID)
	}
	g := graph.Build(tasks)
	m.metrics.GraphBuilt(g.NodeCount())
	if err := m.limits.Check(g); err != nil {
		return nil, err
	}
	return g, nil
}

// node returns the task from the locked graph or a NotFoundError.
func (s *scope) node(id string) (*task.Task, error) {
	t, ok := s.graph.Nodes[id]
	if !ok {
		return nil, errors.NewNotFoundError("task", id)
	}
	return t, nil
}

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

// BuildGraph loads a work order and returns its dependency graph.
func (m *Manager) BuildGraph(ctx context.Context, tenantID, workOrderID string) (*graph.Graph, error) {
	var g *graph.Graph
	err := m.withScope(ctx, tenantID, workOrderID, func(s *scope) error {
		g = s.graph
		return nil
	})
	return g, err
}

// Dependencies returns the tasks taskID depends on, directly or transitively,
// sorted by ID.
func (m *Manager) Dependencies(ctx context.Context, tenantID, taskID string, transitive bool) ([]*task.Task, error) {
	return m.related(ctx, tenantID, taskID, func(g *graph.Graph) []string {
		return g.Dependencies(taskID, transitive)
	})
}

// Dependents returns the tasks that depend on taskID, directly or
// transitively, sorted by ID.
func (m *Manager) Dependents(ctx context.Context, tenantID, taskID string, transitive bool) ([]*task.Task, error) {
	return m.related(ctx, tenantID, taskID, func(g *graph.Graph) []string {
		return g.Dependents(taskID, transitive)
	})
}

func (m *Manager) related(ctx context.Context, tenantID, taskID string, pick func(*graph.Graph) []string) ([]*task.Task, error) {
	workOrderID, err := m.resolveScope(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}

	var out []*task.Task
	err = m.withScope(ctx, tenantID, workOrderID, func(s *scope) error {
		if _, err := s.node(taskID); err != nil {
			return err
		}
		for _, id := range pick(s.graph) {
			out = append(out, s.graph.Nodes[id].Clone())
		}
		return nil
	})
	return out, err
}

// -----------------------------------------------------------------------------
// Tracing
// -----------------------------------------------------------------------------

func startSpan(ctx context.Context, name, tenantID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("tenant_id", tenantID))
	return tracer.Start(ctx, "dependency."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errors.Kind(err))
	}
	span.End()
}
