package dependency

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/event"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

// ReadinessResult reports the readiness changes made by one operation.
type ReadinessResult struct {
	// Task is the evaluated task after the operation.
	Task *task.Task
	// Promoted lists tasks moved PENDING -> READY, in topological order.
	Promoted []*task.Task
	// Demoted lists tasks moved READY -> PENDING.
	Demoted []*task.Task
}

// incompleteDependencies returns the dependencies of t that are not
// COMPLETED. assumeComplete is treated as completed regardless of its stored
// status. Dependencies outside the graph count as incomplete.
func (s *scope) incompleteDependencies(t *task.Task, assumeComplete string) []string {
	var incomplete []string
	for _, depID := range t.DependsOn {
		if depID == assumeComplete {
			continue
		}
		dep, ok := s.graph.Nodes[depID]
		if !ok || dep.Status != task.StatusCompleted {
			incomplete = append(incomplete, depID)
		}
	}
	return incomplete
}

// reevaluate applies the readiness rule to t: PENDING with every dependency
// complete becomes READY, READY with any incomplete dependency goes back to
// PENDING. Other statuses are left alone.
func (s *scope) reevaluate(t *task.Task, assumeComplete string, res *ReadinessResult) {
	ready := len(s.incompleteDependencies(t, assumeComplete)) == 0
	switch {
	case ready && t.Status == task.StatusPending:
		t.Status = task.StatusReady
		s.touch(t)
		res.Promoted = append(res.Promoted, t)
	case !ready && t.Status == task.StatusReady:
		t.Status = task.StatusPending
		s.touch(t)
		res.Demoted = append(res.Demoted, t)
	}
}

// cascade re-evaluates every transitive dependent of completedID in
// topological order so a chain of dependents can be readied in one call.
func (s *scope) cascade(completedID string, res *ReadinessResult) {
	descendants := make(map[string]bool)
	for _, id := range s.graph.Dependents(completedID, true) {
		descendants[id] = true
	}
	if len(descendants) == 0 {
		return
	}

	order, err := s.graph.TopologicalOrder()
	if err != nil {
		// Out-of-band cycles: fall back to ID order, which still visits
		// every dependent once.
		order = s.graph.IDs()
	}
	for _, id := range order {
		if !descendants[id] {
			continue
		}
		t := s.graph.Nodes[id]
		if t.Status != task.StatusPending {
			continue
		}
		s.reevaluate(t, completedID, res)
	}
}

// readinessEvents builds task.ready events for promotions and status change
// events for demotions.
func readinessEvents(tenantID, trigger string, res *ReadinessResult) []event.Event {
	var events []event.Event
	for _, t := range res.Promoted {
		events = append(events, event.NewTaskReadyEvent(tenantID, t, trigger))
	}
	for _, t := range res.Demoted {
		events = append(events, event.NewTaskStatusChangedEvent(tenantID, t.ID, task.StatusReady, task.StatusPending))
	}
	return events
}

func (res *ReadinessResult) snapshot() {
	res.Task = res.Task.Clone()
	for i, t := range res.Promoted {
		res.Promoted[i] = t.Clone()
	}
	for i, t := range res.Demoted {
		res.Demoted[i] = t.Clone()
	}
}

// UpdateReadiness re-evaluates one task against its dependencies.
func (m *Manager) UpdateReadiness(ctx context.Context, tenantID, taskID string) (res *ReadinessResult, events []event.Event, err error) {
	ctx, span := startSpan(ctx, "UpdateReadiness", tenantID, attribute.String("task_id", taskID))
	defer func() { endSpan(span, err) }()

	workOrderID, err := m.resolveScope(ctx, tenantID, taskID)
	if err != nil {
		return nil, nil, err
	}

	res = &ReadinessResult{}
	err = m.withScope(ctx, tenantID, workOrderID, func(s *scope) error {
		t, err := s.node(taskID)
		if err != nil {
			return err
		}
		res.Task = t
		s.reevaluate(t, "", res)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	res.snapshot()
	m.metrics.ReadinessChanged(len(res.Promoted), len(res.Demoted))
	if len(res.Promoted)+len(res.Demoted) > 0 {
		m.logger.WithTenant(tenantID).WithWorkOrder(workOrderID).Info("readiness updated",
			"task_id", taskID, "status", res.Task.Status)
	}
	return res, readinessEvents(tenantID, "", res), nil
}

// CascadeOnCompletion promotes every PENDING transitive dependent of a
// completed task whose dependencies are now all complete. The completed task
// itself is treated as complete even if its status has not been saved yet.
func (m *Manager) CascadeOnCompletion(ctx context.Context, tenantID, completedID string) (res *ReadinessResult, events []event.Event, err error) {
	ctx, span := startSpan(ctx, "CascadeOnCompletion", tenantID, attribute.String("task_id", completedID))
	defer func() { endSpan(span, err) }()

	workOrderID, err := m.resolveScope(ctx, tenantID, completedID)
	if err != nil {
		return nil, nil, err
	}

	res = &ReadinessResult{}
	err = m.withScope(ctx, tenantID, workOrderID, func(s *scope) error {
		t, err := s.node(completedID)
		if err != nil {
			return err
		}
		res.Task = t
		s.cascade(completedID, res)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	res.snapshot()
	m.metrics.ReadinessChanged(len(res.Promoted), 0)
	m.logger.WithTenant(tenantID).WithWorkOrder(workOrderID).Debug("cascade complete",
		"task_id", completedID, "promoted", len(res.Promoted))
	span.SetAttributes(attribute.Int("promoted", len(res.Promoted)))
	return res, readinessEvents(tenantID, completedID, res), nil
}
