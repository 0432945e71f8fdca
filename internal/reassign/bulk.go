package reassign

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/event"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

// BulkRequest moves an explicit set of tasks to one worker.
type BulkRequest struct {
	TaskIDs []string
	// FromWorkerID, when set, limits the move to tasks currently assigned to
	// that worker. Other tasks are reported as skipped.
	FromWorkerID string
	ToWorkerID   string
	Reason       string
}

// BulkReassign moves the requested tasks to req.ToWorkerID. The target must
// exist and be active, otherwise nothing happens. Every requested ID gets a
// result in request order: finished tasks and unknown IDs fail without
// stopping the batch.
func (o *Orchestrator) BulkReassign(ctx context.Context, tenantID string, req BulkRequest) (results []Result, events []event.Event, err error) {
	ctx, span := startSpan(ctx, OpBulk, tenantID)
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("target_worker_id", req.ToWorkerID), attribute.Int("requested", len(req.TaskIDs)))

	if len(req.TaskIDs) == 0 {
		return nil, nil, errors.NewValidationError("no tasks to reassign").WithField("taskIds")
	}
	if _, err := o.activeWorker(ctx, tenantID, req.ToWorkerID); err != nil {
		return nil, nil, err
	}

	tasks, err := o.store.Tasks(ctx, tenantID, req.TaskIDs)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load tasks")
	}
	byID := make(map[string]*task.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	reason := req.Reason
	if reason == "" {
		reason = "bulk reassignment"
	}

	b := o.newBatch(tenantID, OpBulk)
	for _, id := range req.TaskIDs {
		t, ok := byID[id]
		switch {
		case !ok:
			b.add(Result{TaskID: id, Reason: reason, Err: errors.NewNotFoundError("task", id)})
		case req.FromWorkerID != "" && t.AssigneeID != req.FromWorkerID:
			b.add(Result{
				TaskID:           id,
				PreviousAssignee: t.AssigneeID,
				Reason:           fmt.Sprintf("not assigned to %s", req.FromWorkerID),
				Skipped:          true,
			})
		case t.Status == task.StatusCompleted || t.Status == task.StatusCancelled:
			b.add(Result{
				TaskID:           id,
				PreviousAssignee: t.AssigneeID,
				Reason:           reason,
				Err: errors.NewInvalidStateError("cannot reassign a finished task", errors.ErrTerminalTask).
					WithEntity(id).
					WithStates(string(t.Status), string(t.Status)),
			})
		default:
			b.move(ctx, tenantID, t, req.ToWorkerID, task.MethodManual, reason)
		}
	}

	results, events = b.finish(span, func(s event.BatchSummary) event.Event {
		return event.NewTasksBulkReassignedEvent(tenantID, req.ToWorkerID, s)
	})
	return results, events, nil
}
