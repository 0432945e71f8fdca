package reassign

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/assignment"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/event"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

// EmergencyRequest selects the tasks to redistribute. At least one filter
// must be set.
type EmergencyRequest struct {
	Priorities []task.Priority
	// DueWithinHours selects tasks due before now plus this many hours.
	DueWithinHours float64
	WorkCenterID   string
	Reason         string
}

func (r EmergencyRequest) empty() bool {
	return len(r.Priorities) == 0 && r.DueWithinHours <= 0 && r.WorkCenterID == ""
}

// EmergencyRedistribute sends every matching open task, most urgent first,
// to the best priority aware candidate. Tasks already held by that candidate
// are skipped, and so are tasks no active worker can take.
func (o *Orchestrator) EmergencyRedistribute(ctx context.Context, tenantID string, req EmergencyRequest) (results []Result, events []event.Event, err error) {
	ctx, span := startSpan(ctx, OpEmergency, tenantID)
	defer func() { endSpan(span, err) }()

	if req.empty() {
		return nil, nil, errors.NewValidationError("emergency redistribution needs a priority, due window or work center filter")
	}
	if req.DueWithinHours < 0 {
		return nil, nil, errors.NewValidationError("due window must not be negative").
			WithField("dueWithinHours").
			WithValue(req.DueWithinHours)
	}

	reason := req.Reason
	if reason == "" {
		reason = "emergency redistribution"
	}

	filter := task.Filter{
		Priorities:      req.Priorities,
		WorkCenterID:    req.WorkCenterID,
		ExcludeTerminal: true,
	}
	if req.DueWithinHours > 0 {
		due := hoursFrom(o.engine.Now(), req.DueWithinHours)
		filter.DueBefore = &due
	}
	tasks, err := o.store.ListTasks(ctx, tenantID, filter)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load tasks")
	}
	task.SortByUrgency(tasks)
	span.SetAttributes(attribute.Int("matched", len(tasks)))

	strategy, err := o.engine.Strategy(task.MethodPriority)
	if err != nil {
		return nil, nil, err
	}
	pool, err := o.engine.LoadPool(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}

	b := o.newBatch(tenantID, OpEmergency)
	for _, t := range tasks {
		sel, ok := strategy.Select(assignment.Request{Task: t, Candidates: pool.Candidates()})
		switch {
		case !ok:
			b.add(Result{
				TaskID:           t.ID,
				PreviousAssignee: t.AssigneeID,
				Reason:           "no eligible worker",
				Skipped:          true,
				Err:              errors.NewNotFoundError("worker", "candidate for task "+t.ID).WithCause(errors.ErrNoCandidate),
			})
		case sel.Candidate.ID() == t.AssigneeID:
			b.add(Result{
				TaskID:           t.ID,
				PreviousAssignee: t.AssigneeID,
				NewAssignee:      t.AssigneeID,
				Reason:           fmt.Sprintf("already assigned to best candidate %s", t.AssigneeID),
				Skipped:          true,
			})
		default:
			if b.move(ctx, tenantID, t, sel.Candidate.ID(), task.MethodEmergency, reason) {
				pool.Move(t, t.AssigneeID, sel.Candidate.ID())
			}
		}
	}

	results, events = b.finish(span, func(s event.BatchSummary) event.Event {
		return event.NewEmergencyRedistributionEvent(tenantID, reason, s)
	})
	return results, events, nil
}
