package dependency

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/event"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

// EdgeResult describes a dependency edge after a mutation.
type EdgeResult struct {
	TaskID      string
	DependsOnID string
	WorkOrderID string
	// Task is the dependent task after readiness was re-evaluated.
	Task *task.Task
	// StatusChanged is set when the mutation moved Task between PENDING and
	// READY.
	StatusChanged bool
}

// AddDependency records that taskID depends on dependsOnID.
//
// The edge is rejected without any write when it is a self-dependency, a
// duplicate, crosses work orders, or would close a cycle. On success the
// dependent's readiness is re-evaluated and both changes are saved together.
func (m *Manager) AddDependency(ctx context.Context, tenantID, taskID, dependsOnID string) (res *EdgeResult, events []event.Event, err error) {
	ctx, span := startSpan(ctx, "AddDependency", tenantID,
		attribute.String("task_id", taskID), attribute.String("depends_on_id", dependsOnID))
	defer func() {
		m.metrics.DependencyOp("add", err)
		endSpan(span, err)
	}()

	if taskID == dependsOnID {
		return nil, nil, errors.NewValidationError("task cannot depend on itself").
			WithField("dependsOn").
			WithValue(dependsOnID).
			WithCause(errors.ErrSelfDependency)
	}

	t, err := m.store.Task(ctx, tenantID, taskID)
	if err != nil {
		return nil, nil, err
	}
	dep, err := m.store.Task(ctx, tenantID, dependsOnID)
	if err != nil {
		return nil, nil, err
	}
	if t.WorkOrderID != dep.WorkOrderID {
		return nil, nil, errors.NewValidationError("dependency must be within the same work order").
			WithField("dependsOn").
			WithValue(dependsOnID).
			WithCause(errors.ErrCrossScope)
	}

	logger := m.logger.WithTenant(tenantID).WithWorkOrder(t.WorkOrderID).WithOperation("add_dependency")
	readiness := &ReadinessResult{}

	err = m.withScope(ctx, tenantID, t.WorkOrderID, func(s *scope) error {
		node, err := s.node(taskID)
		if err != nil {
			return err
		}
		if _, err := s.node(dependsOnID); err != nil {
			return err
		}
		if s.graph.HasEdge(taskID, dependsOnID) || node.HasDependency(dependsOnID) {
			return errors.NewValidationError("dependency already exists").
				WithField("dependsOn").
				WithValue(dependsOnID).
				WithCause(errors.ErrDuplicateDependency)
		}
		if cycle, path := s.graph.WouldCycle(taskID, dependsOnID); cycle {
			return errors.NewCycleError(path).WithEdge(taskID, dependsOnID)
		}

		node.AddDependency(dependsOnID)
		s.graph.AddEdge(taskID, dependsOnID)
		s.touch(node)
		readiness.Task = node
		s.reevaluate(node, "", readiness)
		return nil
	})
	if err != nil {
		logger.Debug("dependency rejected", "task_id", taskID, "depends_on_id", dependsOnID, "error", err)
		return nil, nil, err
	}

	readiness.snapshot()
	m.metrics.ReadinessChanged(len(readiness.Promoted), len(readiness.Demoted))
	logger.Info("dependency added", "task_id", taskID, "depends_on_id", dependsOnID)

	events = append(events, event.NewDependencyAddedEvent(tenantID, t.WorkOrderID, taskID, dependsOnID))
	events = append(events, readinessEvents(tenantID, dependsOnID, readiness)...)

	return &EdgeResult{
		TaskID:        taskID,
		DependsOnID:   dependsOnID,
		WorkOrderID:   t.WorkOrderID,
		Task:          readiness.Task,
		StatusChanged: len(readiness.Promoted)+len(readiness.Demoted) > 0,
	}, events, nil
}

// RemoveDependency deletes the edge taskID -> dependsOnID and re-evaluates
// the dependent's readiness.
func (m *Manager) RemoveDependency(ctx context.Context, tenantID, taskID, dependsOnID string) (res *EdgeResult, events []event.Event, err error) {
	ctx, span := startSpan(ctx, "RemoveDependency", tenantID,
		attribute.String("task_id", taskID), attribute.String("depends_on_id", dependsOnID))
	defer func() {
		m.metrics.DependencyOp("remove", err)
		endSpan(span, err)
	}()

	workOrderID, err := m.resolveScope(ctx, tenantID, taskID)
	if err != nil {
		return nil, nil, err
	}

	readiness := &ReadinessResult{}
	err = m.withScope(ctx, tenantID, workOrderID, func(s *scope) error {
		node, err := s.node(taskID)
		if err != nil {
			return err
		}
		if !node.HasDependency(dependsOnID) {
			return errors.NewNotFoundError("dependency", taskID+"->"+dependsOnID)
		}

		node.RemoveDependency(dependsOnID)
		s.graph.RemoveEdge(taskID, dependsOnID)
		s.touch(node)
		readiness.Task = node
		s.reevaluate(node, "", readiness)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	readiness.snapshot()
	m.metrics.ReadinessChanged(len(readiness.Promoted), len(readiness.Demoted))
	m.logger.WithTenant(tenantID).WithWorkOrder(workOrderID).WithOperation("remove_dependency").
		Info("dependency removed", "task_id", taskID, "depends_on_id", dependsOnID)

	events = append(events, event.NewDependencyRemovedEvent(tenantID, workOrderID, taskID, dependsOnID))
	events = append(events, readinessEvents(tenantID, dependsOnID, readiness)...)

	return &EdgeResult{
		TaskID:        taskID,
		DependsOnID:   dependsOnID,
		WorkOrderID:   workOrderID,
		Task:          readiness.Task,
		StatusChanged: len(readiness.Promoted)+len(readiness.Demoted) > 0,
	}, events, nil
}
