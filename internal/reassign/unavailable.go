package reassign

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/assignment"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/event"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

// UnavailabilityRequest evacuates a worker's open tasks.
type UnavailabilityRequest struct {
	WorkerID string
	// Method picks replacements. Defaults to least loaded.
	Method task.Method
	Reason string
}

// HandleWorkerUnavailability reassigns every open task of a worker, most
// urgent first, choosing each replacement with the requested strategy. Tasks
// without an eligible replacement are skipped and logged. Round robin
// rotates within the batch without touching the stored cursor.
func (o *Orchestrator) HandleWorkerUnavailability(ctx context.Context, tenantID string, req UnavailabilityRequest) (results []Result, events []event.Event, err error) {
	ctx, span := startSpan(ctx, OpUnavailable, tenantID)
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("worker_id", req.WorkerID))

	if req.WorkerID == "" {
		return nil, nil, errors.NewValidationError("worker is required").WithField("workerId")
	}
	if _, err := o.workers.Worker(ctx, tenantID, req.WorkerID); err != nil {
		return nil, nil, err
	}

	method := req.Method
	if method == "" {
		method = task.MethodLeastLoaded
	}
	strategy, err := o.engine.Strategy(method)
	if err != nil {
		return nil, nil, err
	}

	reason := req.Reason
	if reason == "" {
		reason = "worker unavailable"
	}

	tasks, err := o.store.ListTasks(ctx, tenantID, task.Filter{AssigneeID: req.WorkerID, ExcludeTerminal: true})
	if err != nil {
		return nil, nil, errors.Wrap(err, "load worker tasks")
	}
	task.SortByUrgency(tasks)

	pool, err := o.engine.LoadPool(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}

	b := o.newBatch(tenantID, OpUnavailable)
	var cursor string
	for _, t := range tasks {
		sel, ok := strategy.Select(assignment.Request{
			Task:       t,
			Candidates: assignment.Without(pool.Candidates(), req.WorkerID),
			Cursor:     cursor,
		})
		if !ok {
			b.add(Result{
				TaskID:           t.ID,
				PreviousAssignee: t.AssigneeID,
				Reason:           "no eligible replacement",
				Skipped:          true,
			})
			continue
		}
		if sel.Cursor != "" {
			cursor = sel.Cursor
		}
		if b.move(ctx, tenantID, t, sel.Candidate.ID(), method, reason) {
			pool.Move(t, req.WorkerID, sel.Candidate.ID())
		}
	}

	results, events = b.finish(span, func(s event.BatchSummary) event.Event {
		return event.NewWorkerUnavailabilityHandledEvent(tenantID, req.WorkerID, reason, s)
	})
	return results, events, nil
}
