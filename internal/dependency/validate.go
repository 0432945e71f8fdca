package dependency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/graph"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

// BlockedTask is a PENDING or READY task with unfinished dependencies.
type BlockedTask struct {
	Task                   *task.Task `json:"task"`
	IncompleteDependencies []string   `json:"incompleteDependencies"`
}

// ValidationReport is the diagnostic view of one work order.
type ValidationReport struct {
	WorkOrderID string `json:"workOrderId"`
	// IsValid is true when the graph has no cycles.
	IsValid bool       `json:"isValid"`
	Cycles  [][]string `json:"cycles,omitempty"`
	Issues  []string   `json:"issues,omitempty"`
	// Ready lists PENDING tasks whose dependencies are all COMPLETED.
	Ready   []*task.Task  `json:"ready,omitempty"`
	Blocked []BlockedTask `json:"blocked,omitempty"`
}

// ValidateDependencies inspects a work order for cycles and dangling
// references, and partitions its open tasks into ready and blocked. It never
// modifies state.
func (m *Manager) ValidateDependencies(ctx context.Context, tenantID, workOrderID string) (report *ValidationReport, err error) {
	ctx, span := startSpan(ctx, "ValidateDependencies", tenantID, attribute.String("work_order_id", workOrderID))
	defer func() { endSpan(span, err) }()

	report = &ValidationReport{WorkOrderID: workOrderID}
	err = m.withScope(ctx, tenantID, workOrderID, func(s *scope) error {
		g := s.graph
		report.Cycles = g.FindCycles()
		report.IsValid = len(report.Cycles) == 0

		for _, cycle := range report.Cycles {
			report.Issues = append(report.Issues,
				fmt.Sprintf("circular dependency: %s", strings.Join(cycle, " -> ")))
		}

		for _, id := range g.IDs() {
			t := g.Nodes[id]
			for _, dep := range g.Missing[id] {
				report.Issues = append(report.Issues,
					fmt.Sprintf("task %s depends on unknown task %s", id, dep))
			}
			if t.Status != task.StatusPending && t.Status != task.StatusReady {
				continue
			}

			incomplete := s.incompleteDependencies(t, "")
			switch {
			case len(incomplete) > 0:
				report.Blocked = append(report.Blocked, BlockedTask{
					Task:                   t.Clone(),
					IncompleteDependencies: incomplete,
				})
			case t.Status == task.StatusPending:
				report.Ready = append(report.Ready, t.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Bool("valid", report.IsValid), attribute.Int("cycles", len(report.Cycles)))
	m.logger.WithTenant(tenantID).WithWorkOrder(workOrderID).Debug("dependencies validated",
		"valid", report.IsValid, "cycles", len(report.Cycles), "issues", len(report.Issues))
	return report, nil
}

// CriticalPathResult is a critical path with its tasks resolved.
type CriticalPathResult struct {
	WorkOrderID string          `json:"workOrderId"`
	Path        []*task.Task    `json:"path"`
	Duration    float64         `json:"duration"`
	Schedule    *graph.Schedule `json:"schedule"`
}

// CriticalPath computes the critical path of a work order. A cycle fails the
// computation with a CycleError and no partial result. The work is bounded
// by the configured graph limits and timeout.
func (m *Manager) CriticalPath(ctx context.Context, tenantID, workOrderID string) (res *CriticalPathResult, err error) {
	ctx, span := startSpan(ctx, "CriticalPath", tenantID, attribute.String("work_order_id", workOrderID))
	defer func() { endSpan(span, err) }()

	if m.cpTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cpTimeout)
		defer cancel()
	}

	err = m.withScope(ctx, tenantID, workOrderID, func(s *scope) error {
		start := time.Now()
		schedule, err := s.graph.CriticalPath(ctx, m.tolerance)
		m.metrics.CriticalPath(time.Since(start))
		if err != nil {
			return err
		}

		res = &CriticalPathResult{
			WorkOrderID: workOrderID,
			Duration:    schedule.Duration,
			Schedule:    schedule,
		}
		for _, id := range schedule.Path {
			res.Path = append(res.Path, s.graph.Nodes[id].Clone())
		}
		return nil
	})
	if err != nil {
		m.logger.WithTenant(tenantID).WithWorkOrder(workOrderID).Warn("critical path failed", "error", err)
		return nil, err
	}

	span.SetAttributes(attribute.Float64("duration_hours", res.Duration), attribute.Int("path_length", len(res.Path)))
	return res, nil
}
