package reassign

import (
	"cmp"
	"context"
	"math"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/assignment"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/event"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

// DefaultMaxTasksPerWorker is the balancing threshold when none is given.
const DefaultMaxTasksPerWorker = 5

// BalanceRequest configures a balancing pass.
type BalanceRequest struct {
	// WorkOrderID limits the pass to one work order. Empty means the whole
	// tenant.
	WorkOrderID string
	// DueBefore limits the pass to tasks due before it.
	DueBefore *time.Time
	// MaxTasksPerWorker separates overloaded (above) from underloaded
	// (below) workers.
	MaxTasksPerWorker int
	// RequireSkillMatch only moves a task to workers holding all of its
	// required skills.
	RequireSkillMatch bool
}

// movable reports whether balancing may move t. Started work stays with its
// worker.
func movable(t *task.Task) bool {
	return t.Status == task.StatusPending || t.Status == task.StatusReady
}

// leastUrgentFirst orders by priority ascending, later due dates first.
func leastUrgentFirst(a, b *task.Task) int {
	return -task.CompareUrgency(a, b)
}

// BalanceWorkload moves open tasks off overloaded workers. Each step takes
// the most loaded worker above the threshold and moves its least urgent
// movable task to the least loaded eligible worker below it. A move only
// happens when it narrows the gap, so the pass always terminates.
func (o *Orchestrator) BalanceWorkload(ctx context.Context, tenantID string, req BalanceRequest) (results []Result, events []event.Event, err error) {
	ctx, span := startSpan(ctx, OpBalance, tenantID)
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("work_order_id", req.WorkOrderID))

	limit := req.MaxTasksPerWorker
	if limit < 0 {
		return nil, nil, errors.NewValidationError("max tasks per worker must not be negative").
			WithField("maxTasksPerWorker").
			WithValue(limit)
	}
	if limit == 0 {
		limit = DefaultMaxTasksPerWorker
	}

	workers, err := o.workers.ActiveWorkers(ctx, tenantID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load workers")
	}
	tasks, err := o.store.ListTasks(ctx, tenantID, task.Filter{
		WorkOrderID:     req.WorkOrderID,
		DueBefore:       req.DueBefore,
		ExcludeTerminal: true,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "load tasks")
	}

	// Loads are scoped to the selected tasks, so capacity does not apply.
	pool := assignment.NewPool(workers, tasks, math.MaxInt, o.engine.Now())
	before := pool.Loads()

	byWorker := make(map[string][]*task.Task)
	for _, t := range tasks {
		if _, known := before[t.AssigneeID]; known && movable(t) {
			byWorker[t.AssigneeID] = append(byWorker[t.AssigneeID], t)
		}
	}
	for id := range byWorker {
		slices.SortFunc(byWorker[id], leastUrgentFirst)
	}

	b := o.newBatch(tenantID, OpBalance)
	exhausted := make(map[string]bool)

	for {
		source, ok := mostOverloaded(pool, limit, exhausted)
		if !ok {
			break
		}
		src, _ := pool.Get(source)

		moved := false
		for i := 0; i < len(byWorker[source]); {
			t := byWorker[source][i]
			target, ok := balanceTarget(pool, t, source, src.ActiveTasks, limit, req.RequireSkillMatch)
			if !ok {
				i++
				continue
			}
			// Attempted tasks leave the queue whether or not the move works.
			byWorker[source] = slices.Delete(byWorker[source], i, i+1)
			if b.move(ctx, tenantID, t, target, task.MethodBalancing, "workload balancing") {
				pool.Move(t, source, target)
				moved = true
				break
			}
		}
		if !moved {
			exhausted[source] = true
		}
	}

	after := pool.Loads()
	results, events = b.finish(span, func(s event.BatchSummary) event.Event {
		return event.NewWorkloadBalancedEvent(tenantID, req.WorkOrderID, s, before, after)
	})
	return results, events, nil
}

// mostOverloaded returns the worker furthest above limit, ties by ID.
func mostOverloaded(pool *assignment.Pool, limit int, exhausted map[string]bool) (string, bool) {
	var best assignment.Candidate
	found := false
	for _, c := range pool.Candidates() {
		if c.ActiveTasks <= limit || exhausted[c.ID()] {
			continue
		}
		if !found || c.ActiveTasks > best.ActiveTasks {
			best, found = c, true
		}
	}
	return best.ID(), found
}

// balanceTarget picks the least loaded worker below limit that would still
// be lighter than the source after the move.
func balanceTarget(pool *assignment.Pool, t *task.Task, source string, sourceLoad, limit int, requireSkills bool) (string, bool) {
	cands := assignment.Without(pool.Candidates(), source)
	if requireSkills {
		cands = assignment.Qualified(cands, t.RequiredSkills)
	}
	cands = slices.DeleteFunc(cands, func(c assignment.Candidate) bool {
		return c.ActiveTasks >= limit || c.ActiveTasks >= sourceLoad-1
	})
	if len(cands) == 0 {
		return "", false
	}
	best := slices.MinFunc(cands, func(a, b assignment.Candidate) int {
		if c := cmp.Compare(a.ActiveTasks, b.ActiveTasks); c != 0 {
			return c
		}
		if c := cmp.Compare(a.ActiveHours, b.ActiveHours); c != 0 {
			return c
		}
		return strings.Compare(a.ID(), b.ID())
	})
	return best.ID(), true
}
