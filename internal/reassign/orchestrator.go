// Package reassign moves tasks between workers in batches: explicit bulk
// moves, evacuating an unavailable worker, workload balancing, and emergency
// redistribution of urgent work.
//
// Batches are not atomic. Each task is reassigned in its own unit of work
// through the assignment engine, and every input task gets a Result entry
// whether it moved, failed or was skipped. One aggregate event summarizes
// each batch.
package reassign

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/assignment"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/event"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/logging"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/metrics"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/store"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

var tracer = otel.Tracer("mesched/reassign")

// Operation names used in logs and metrics.
const (
	OpBulk        = "bulk"
	OpUnavailable = "worker_unavailable"
	OpBalance     = "balance"
	OpEmergency   = "emergency"
)

// Result is the outcome for one task of a batch.
type Result struct {
	TaskID           string `json:"taskId"`
	PreviousAssignee string `json:"previousAssignee,omitempty"`
	NewAssignee      string `json:"newAssignee,omitempty"`
	Reason           string `json:"reason,omitempty"`
	Success          bool   `json:"success"`
	// Skipped marks tasks that were deliberately left alone.
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
	// Err is the underlying error of a failed entry.
	Err error `json:"-"`
}

func (r Result) outcome() string {
	switch {
	case r.Success:
		return "success"
	case r.Skipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Orchestrator runs reassignment batches.
type Orchestrator struct {
	engine  *assignment.Engine
	store   store.Store
	workers store.WorkerDirectory
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// New creates an Orchestrator. Reassignments go through engine so they share
// its locks and audit trail.
func New(engine *assignment.Engine, s store.Store, workers store.WorkerDirectory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:  engine,
		store:   s,
		workers: workers,
		logger:  logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// batch accumulates results and events of one operation.
type batch struct {
	op      string
	results []Result
	events  []event.Event
	moved   []string
	o       *Orchestrator
	logger  *logging.Logger
}

func (o *Orchestrator) newBatch(tenantID, op string) *batch {
	return &batch{op: op, o: o, logger: o.logger.WithTenant(tenantID).WithOperation(op)}
}

func (b *batch) add(r Result) {
	if r.Err != nil && r.Error == "" {
		r.Error = r.Err.Error()
	}
	b.results = append(b.results, r)
	b.o.metrics.Reassignment(b.op, r.outcome())
	if r.Success {
		b.moved = append(b.moved, r.TaskID)
	} else {
		b.logger.Warn("task not reassigned", "task_id", r.TaskID, "skipped", r.Skipped, "error", r.Error)
	}
}

// move reassigns t through the engine and records the outcome.
func (b *batch) move(ctx context.Context, tenantID string, t *task.Task, workerID string, method task.Method, reason string) bool {
	res, events, err := b.o.engine.AssignTo(ctx, tenantID, t.ID, workerID, method, reason)
	if err != nil {
		b.add(Result{TaskID: t.ID, PreviousAssignee: t.AssigneeID, Reason: reason, Err: err})
		return false
	}
	b.events = append(b.events, events...)
	b.add(Result{
		TaskID:           t.ID,
		PreviousAssignee: res.PreviousWorkerID,
		NewAssignee:      workerID,
		Reason:           reason,
		Success:          true,
	})
	return true
}

func (b *batch) summary() event.BatchSummary {
	s := event.BatchSummary{Total: len(b.results), TaskIDs: b.moved}
	for _, r := range b.results {
		switch r.outcome() {
		case "success":
			s.Succeeded++
		case "skipped":
			s.Skipped++
		default:
			s.Failed++
		}
	}
	return s
}

// finish records the summary on the span and appends the aggregate event
// built by aggregate.
func (b *batch) finish(span trace.Span, aggregate func(event.BatchSummary) event.Event) ([]Result, []event.Event) {
	s := b.summary()
	span.SetAttributes(
		attribute.Int("total", s.Total),
		attribute.Int("succeeded", s.Succeeded),
		attribute.Int("failed", s.Failed),
		attribute.Int("skipped", s.Skipped),
	)
	b.logger.Info("batch complete", "total", s.Total, "succeeded", s.Succeeded,
		"failed", s.Failed, "skipped", s.Skipped)
	return b.results, append(b.events, aggregate(s))
}

// activeWorker loads a worker and fails unless it exists and is active.
func (o *Orchestrator) activeWorker(ctx context.Context, tenantID, workerID string) (*task.Worker, error) {
	if workerID == "" {
		return nil, errors.NewValidationError("worker is required").WithField("workerId")
	}
	w, err := o.workers.Worker(ctx, tenantID, workerID)
	if err != nil {
		return nil, err
	}
	if !w.Active {
		return nil, errors.NewInvalidStateError("worker is not active", errors.ErrIllegalTransition).
			WithEntity(workerID)
	}
	return w, nil
}

func startSpan(ctx context.Context, op, tenantID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "reassign."+op, trace.WithAttributes(attribute.String("tenant_id", tenantID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errors.Kind(err))
	}
	span.End()
}

func hoursFrom(now time.Time, hours float64) time.Time {
	return now.Add(time.Duration(hours * float64(time.Hour)))
}
