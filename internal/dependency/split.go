package dependency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/event"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

var validate = validator.New()

// SubtaskSpec describes one subtask of a split.
type SubtaskSpec struct {
	Name           string        `json:"name" yaml:"name" validate:"required"`
	EstimatedHours float64       `json:"estimatedHours" yaml:"estimatedHours" validate:"gte=0"`
	TargetQuantity int           `json:"targetQuantity" yaml:"targetQuantity" validate:"gte=0"`
	AssigneeID     string        `json:"assigneeId,omitempty" yaml:"assignee,omitempty"`
	Priority       task.Priority `json:"priority,omitempty" yaml:"priority,omitempty" validate:"omitempty,min=1,max=5"`
}

// SplitResult is the outcome of SplitTask.
type SplitResult struct {
	Original *task.Task
	Subtasks []*task.Task
	// Rewired lists the dependents moved from the original to the last
	// subtask.
	Rewired []string
}

// validateSpecs checks every spec and reports the first problem as a
// ValidationError naming the offending field.
func validateSpecs(specs []SubtaskSpec) error {
	if len(specs) == 0 {
		return errors.NewValidationError("at least one subtask is required").WithField("subtasks")
	}
	for i, spec := range specs {
		err := validate.Struct(spec)
		if err == nil {
			continue
		}
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return errors.NewValidationError(fmt.Sprintf("subtask %d: failed %q check", i+1, fe.Tag())).
				WithField(fe.Field()).
				WithValue(fe.Value())
		}
		return errors.NewValidationError(fmt.Sprintf("subtask %d is invalid", i+1)).WithCause(err)
	}
	return nil
}

// checkAssignees fails unless every named assignee exists and is active.
func (m *Manager) checkAssignees(ctx context.Context, tenantID string, specs []SubtaskSpec) error {
	seen := make(map[string]bool)
	for _, spec := range specs {
		if spec.AssigneeID == "" || seen[spec.AssigneeID] {
			continue
		}
		seen[spec.AssigneeID] = true
		if m.workers == nil {
			return errors.New("subtask assignees require a worker directory")
		}
		w, err := m.workers.Worker(ctx, tenantID, spec.AssigneeID)
		if err != nil {
			return err
		}
		if !w.Active {
			return errors.NewInvalidStateError("worker is not active", errors.ErrIllegalTransition).
				WithEntity(spec.AssigneeID)
		}
	}
	return nil
}

// SplitTask replaces a PENDING or READY task with a chain of subtasks.
//
// Subtasks live in the original's work order and start PENDING. With
// preserveDependencies the first subtask inherits the original's
// dependencies; every later subtask depends on the one before it. Dependents
// of the original are rewired to the last subtask, and the original is
// CANCELLED with a note. The first subtask is readied only when the original
// was already READY and its inherited dependencies are complete.
func (m *Manager) SplitTask(ctx context.Context, tenantID, taskID string, specs []SubtaskSpec, preserveDependencies bool) (res *SplitResult, events []event.Event, err error) {
	ctx, span := startSpan(ctx, "SplitTask", tenantID,
		attribute.String("task_id", taskID), attribute.Int("subtasks", len(specs)))
	defer func() {
		m.metrics.Split(err)
		endSpan(span, err)
	}()

	if err := validateSpecs(specs); err != nil {
		return nil, nil, err
	}
	if err := m.checkAssignees(ctx, tenantID, specs); err != nil {
		return nil, nil, err
	}

	workOrderID, err := m.resolveScope(ctx, tenantID, taskID)
	if err != nil {
		return nil, nil, err
	}
	logger := m.logger.WithTenant(tenantID).WithWorkOrder(workOrderID).WithOperation("split_task")

	res = &SplitResult{}
	readiness := &ReadinessResult{}
	var previousStatus task.Status

	err = m.withScope(ctx, tenantID, workOrderID, func(s *scope) error {
		orig, err := s.node(taskID)
		if err != nil {
			return err
		}
		if orig.Status != task.StatusPending && orig.Status != task.StatusReady {
			return errors.NewInvalidStateError("only PENDING or READY tasks can be split", errors.ErrNotSplittable).
				WithEntity(taskID).
				WithStates(string(orig.Status), string(task.StatusCancelled))
		}
		previousStatus = orig.Status
		dependents := s.graph.Dependents(taskID, false)

		base := orig.Number
		if base == "" {
			base = orig.ID
		}

		var prev *task.Task
		for i, spec := range specs {
			sub := &task.Task{
				ID:             uuid.NewString(),
				Number:         fmt.Sprintf("%s-%d", base, i+1),
				Name:           spec.Name,
				WorkOrderID:    orig.WorkOrderID,
				Status:         task.StatusPending,
				Priority:       spec.Priority,
				EstimatedHours: spec.EstimatedHours,
				TargetQuantity: spec.TargetQuantity,
				AssigneeID:     spec.AssigneeID,
				RequiredSkills: append([]string(nil), orig.RequiredSkills...),
				WorkCenterID:   orig.WorkCenterID,
				SplitFrom:      orig.ID,
				// Offset creation times so subtasks list in chain order.
				CreatedAt: s.now.Add(time.Duration(i)),
			}
			if sub.Priority == 0 {
				sub.Priority = orig.Priority
			}
			if orig.DueDate != nil {
				due := *orig.DueDate
				sub.DueDate = &due
			}

			switch {
			case prev != nil:
				sub.DependsOn = []string{prev.ID}
			case preserveDependencies:
				sub.DependsOn = append([]string(nil), orig.DependsOn...)
			}

			s.add(sub)
			for _, dep := range sub.DependsOn {
				if s.graph.Has(dep) {
					s.graph.AddEdge(sub.ID, dep)
				}
			}
			if sub.AssigneeID != "" {
				s.assignments = append(s.assignments, task.NewAssignment(sub.ID, sub.AssigneeID,
					task.MethodManual, "split from "+base, s.now))
			}

			res.Subtasks = append(res.Subtasks, sub)
			prev = sub
		}

		last := prev
		for _, id := range dependents {
			d := s.graph.Nodes[id]
			d.RemoveDependency(taskID)
			s.graph.RemoveEdge(id, taskID)
			d.AddDependency(last.ID)
			s.graph.AddEdge(id, last.ID)
			s.touch(d)
			res.Rewired = append(res.Rewired, id)
		}

		numbers := make([]string, len(res.Subtasks))
		for i, sub := range res.Subtasks {
			numbers[i] = sub.Number
		}
		orig.Status = task.StatusCancelled
		orig.AppendNote(fmt.Sprintf("Split into %d subtasks: %s", len(res.Subtasks), strings.Join(numbers, ", ")))
		s.touch(orig)
		res.Original = orig

		if previousStatus == task.StatusReady {
			readiness.Task = res.Subtasks[0]
			s.reevaluate(res.Subtasks[0], "", readiness)
		}

		total := 0
		for _, sub := range res.Subtasks {
			total += sub.TargetQuantity
		}
		if total != orig.TargetQuantity {
			logger.Warn("subtask quantities do not match original",
				"task_id", taskID, "original_quantity", orig.TargetQuantity, "subtask_quantity", total)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	res.Original = res.Original.Clone()
	for i, sub := range res.Subtasks {
		res.Subtasks[i] = sub.Clone()
	}
	readiness.snapshot()
	m.metrics.ReadinessChanged(len(readiness.Promoted), 0)

	logger.Info("task split", "task_id", taskID, "subtasks", len(res.Subtasks),
		"preserve_dependencies", preserveDependencies, "rewired", len(res.Rewired))

	events = append(events,
		event.NewTaskSplitEvent(tenantID, res.Original, res.Subtasks),
		event.NewTaskStatusChangedEvent(tenantID, taskID, previousStatus, task.StatusCancelled),
	)
	events = append(events, readinessEvents(tenantID, taskID, readiness)...)
	return res, events, nil
}
