package dependency

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/event"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

// StatusResult is the outcome of a status transition.
type StatusResult struct {
	Task *task.Task
	From task.Status
	To   task.Status
	// Promoted lists dependents readied by a completion.
	Promoted []*task.Task
}

// assignmentStatusFor maps a task status to the status its active assignment
// should follow, if any.
func assignmentStatusFor(s task.Status) (task.AssignmentStatus, bool) {
	switch s {
	case task.StatusInProgress:
		return task.AssignmentInProgress, true
	case task.StatusCompleted:
		return task.AssignmentCompleted, true
	}
	return "", false
}

// TransitionStatus moves a task to a new status after checking the state
// machine. Callers cannot request READY, which only readiness evaluation
// may set. Completing a task runs the readiness cascade in the same unit of
// work, and the task's active assignment follows it into in_progress or
// completed.
func (m *Manager) TransitionStatus(ctx context.Context, tenantID, taskID string, to task.Status) (res *StatusResult, events []event.Event, err error) {
	ctx, span := startSpan(ctx, "TransitionStatus", tenantID,
		attribute.String("task_id", taskID), attribute.String("to", string(to)))
	defer func() { endSpan(span, err) }()

	workOrderID, err := m.resolveScope(ctx, tenantID, taskID)
	if err != nil {
		return nil, nil, err
	}

	res = &StatusResult{To: to}
	cascade := &ReadinessResult{}
	err = m.withScope(ctx, tenantID, workOrderID, func(s *scope) error {
		t, err := s.node(taskID)
		if err != nil {
			return err
		}
		if err := task.ValidateRequest(taskID, t.Status, to); err != nil {
			return err
		}

		if next, ok := assignmentStatusFor(to); ok {
			active, err := m.store.ActiveAssignment(ctx, tenantID, taskID)
			if err != nil {
				return err
			}
			if active != nil {
				active.Status = next
				active.UpdatedAt = s.now
				s.assignments = append(s.assignments, active)
			}
		}

		res.From = t.Status
		t.Status = to
		s.touch(t)
		res.Task = t

		if to == task.StatusCompleted {
			s.cascade(taskID, cascade)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	res.Task = res.Task.Clone()
	cascade.Task = res.Task
	cascade.snapshot()
	res.Promoted = cascade.Promoted
	m.metrics.ReadinessChanged(len(cascade.Promoted), 0)

	m.logger.WithTenant(tenantID).WithWorkOrder(workOrderID).WithOperation("transition_status").
		Info("task status changed", "task_id", taskID, "from", res.From, "to", to, "promoted", len(res.Promoted))

	events = append(events, event.NewTaskStatusChangedEvent(tenantID, taskID, res.From, to))
	events = append(events, readinessEvents(tenantID, taskID, cascade)...)
	return res, events, nil
}
