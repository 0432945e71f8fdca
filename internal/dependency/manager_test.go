package dependency

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/event"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/graph"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/metrics"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/store"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
	tu "github.com/kcstrada/manufacturing-execution-system-sub002/internal/testutil"
)

const tenant = tu.Tenant

func newManager(t *testing.T, tasks ...*task.Task) (*Manager, *store.Memory) {
	t.Helper()
	s := store.NewMemory()
	tu.Seed(t, s, tenant, tasks)
	return NewManager(s, WithClock(tu.Clock()), WithMetrics(metrics.NewUnregistered())), s
}

func eventTypes(events []event.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.EventType()
	}
	return out
}

// cpmFixture is T1(2h), T2(3h, T1), T3(1h, T1), T4(2h, T2+T3).
func cpmFixture() []*task.Task {
	return []*task.Task{
		tu.NewTask("T1", tu.Hours(2), tu.Status(task.StatusInProgress)),
		tu.NewTask("T2", tu.Hours(3), tu.DependsOn("T1")),
		tu.NewTask("T3", tu.Hours(1), tu.DependsOn("T1")),
		tu.NewTask("T4", tu.Hours(2), tu.DependsOn("T2", "T3")),
	}
}

func TestAddDependency(t *testing.T) {
	ctx := context.Background()
	m, s := newManager(t,
		tu.NewTask("a", tu.Status(task.StatusReady)),
		tu.NewTask("b"),
	)

	res, events, err := m.AddDependency(ctx, tenant, "a", "b")
	require.NoError(t, err)

	assert.Equal(t, tu.WorkOrder, res.WorkOrderID)
	assert.True(t, res.StatusChanged, "READY task gains an incomplete dependency")
	assert.Equal(t, task.StatusPending, res.Task.Status)
	assert.Equal(t, []string{event.TypeDependencyAdded, event.TypeTaskStatusChanged}, eventTypes(events))

	stored := tu.MustTask(t, s, tenant, "a")
	assert.Equal(t, []string{"b"}, stored.DependsOn)
	assert.Equal(t, task.StatusPending, stored.Status)
}

func TestAddDependency_CompletedDependencyPromotes(t *testing.T) {
	ctx := context.Background()
	m, s := newManager(t,
		tu.NewTask("a"),
		tu.NewTask("b", tu.Status(task.StatusCompleted)),
	)

	_, events, err := m.AddDependency(ctx, tenant, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{event.TypeDependencyAdded, event.TypeTaskReady}, eventTypes(events))
	assert.Equal(t, task.StatusReady, tu.MustTask(t, s, tenant, "a").Status)
}

func TestAddDependency_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		taskID    string
		dependsOn string
		wantErr   error
	}{
		{"self dependency", "a", "a", errors.ErrSelfDependency},
		{"duplicate edge", "b", "a", errors.ErrDuplicateDependency},
		{"cross scope", "a", "x", errors.ErrCrossScope},
		{"would cycle", "a", "c", errors.ErrDependencyCycle},
		{"unknown task", "ghost", "a", errors.ErrTaskNotFound},
		{"unknown dependency", "a", "ghost", errors.ErrTaskNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m, s := newManager(t,
				tu.NewTask("a"),
				tu.NewTask("b", tu.DependsOn("a")),
				tu.NewTask("c", tu.DependsOn("b")),
				tu.NewTask("x", tu.InWorkOrder("wo-2")),
			)
			before, err := s.ListTasks(ctx, tenant, task.Filter{})
			require.NoError(t, err)

			res, events, err := m.AddDependency(ctx, tenant, tt.taskID, tt.dependsOn)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)
			assert.Empty(t, events)

			after, err := s.ListTasks(ctx, tenant, task.Filter{})
			require.NoError(t, err)
			assert.Equal(t, before, after, "rejected edge must not write")
		})
	}
}

func TestAddDependency_CycleErrorCarriesPath(t *testing.T) {
	m, _ := newManager(t,
		tu.NewTask("a"),
		tu.NewTask("b", tu.DependsOn("a")),
		tu.NewTask("c", tu.DependsOn("b")),
	)

	_, _, err := m.AddDependency(context.Background(), tenant, "a", "c")

	var cycleErr *errors.CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"a", "c", "b", "a"}, cycleErr.Path)
	assert.Equal(t, "a", cycleErr.TaskID)
	assert.Equal(t, "c", cycleErr.DependsOnID)
}

func TestAddDependency_AcyclicAfterAnySequence(t *testing.T) {
	ctx := context.Background()
	ids := []string{"n1", "n2", "n3", "n4", "n5"}
	var tasks []*task.Task
	for _, id := range ids {
		tasks = append(tasks, tu.NewTask(id))
	}
	m, _ := newManager(t, tasks...)

	// Try every ordered pair, forward and then backward, so many insertions
	// are accepted and the rest must be rejected.
	var pairs [][2]string
	for i := range ids {
		for j := range ids {
			pairs = append(pairs, [2]string{ids[i], ids[(i+j)%len(ids)]})
		}
	}
	accepted := 0
	for _, p := range pairs {
		_, _, err := m.AddDependency(ctx, tenant, p[0], p[1])
		if err == nil {
			accepted++
		}

		g, err := m.BuildGraph(ctx, tenant, tu.WorkOrder)
		require.NoError(t, err)
		_, err = g.TopologicalOrder()
		require.NoError(t, err, "graph has a cycle after adding %s->%s", p[0], p[1])
		assert.Empty(t, g.FindCycles())
	}
	assert.Greater(t, accepted, 0)
}

func TestAddDependency_ConcurrentInsertsStayAcyclic(t *testing.T) {
	tests := []struct {
		name  string
		edges [][2]string
	}{
		{"opposing", [][2]string{{"a", "b"}, {"b", "a"}}},
		{"ring of three", [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for range 50 {
				m, s := newManager(t, tu.NewTask("a"), tu.NewTask("b"), tu.NewTask("c"))
				ctx := context.Background()

				errs := make([]error, len(tt.edges))
				var wg sync.WaitGroup
				for i, edge := range tt.edges {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, _, errs[i] = m.AddDependency(ctx, tenant, edge[0], edge[1])
					}()
				}
				wg.Wait()

				var failed int
				for _, err := range errs {
					if err != nil {
						require.ErrorIs(t, err, errors.ErrDependencyCycle)
						failed++
					}
				}
				require.Equal(t, 1, failed, "exactly one insert closes the cycle")

				tasks, err := s.ListTasks(ctx, tenant, task.Filter{})
				require.NoError(t, err)
				_, err = graph.Build(tasks).TopologicalOrder()
				require.NoError(t, err)
			}
		})
	}
}

func TestAddDependency_SaveFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	m, s := newManager(t, tu.NewTask("a"), tu.NewTask("b"))
	s.FailNextUpdate(fmt.Errorf("disk full"))

	_, events, err := m.AddDependency(ctx, tenant, "a", "b")
	require.EqualError(t, err, "disk full")
	assert.Empty(t, events)
	assert.Empty(t, tu.MustTask(t, s, tenant, "a").DependsOn)
}

func TestRemoveDependency(t *testing.T) {
	ctx := context.Background()
	m, s := newManager(t,
		tu.NewTask("a", tu.Status(task.StatusCompleted)),
		tu.NewTask("b"),
		tu.NewTask("c", tu.DependsOn("a", "b")),
	)

	_, _, err := m.RemoveDependency(ctx, tenant, "c", "a")
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, tu.MustTask(t, s, tenant, "c").Status)

	res, events, err := m.RemoveDependency(ctx, tenant, "c", "b")
	require.NoError(t, err)
	assert.True(t, res.StatusChanged)
	assert.Equal(t, []string{event.TypeDependencyRemoved, event.TypeTaskReady}, eventTypes(events))

	stored := tu.MustTask(t, s, tenant, "c")
	assert.Empty(t, stored.DependsOn)
	assert.Equal(t, task.StatusReady, stored.Status)

	_, _, err = m.RemoveDependency(ctx, tenant, "c", "b")
	assert.ErrorIs(t, err, errors.ErrDependencyNotFound)
}

func TestDependenciesAndDependents(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, cpmFixture()...)

	direct, err := m.Dependencies(ctx, tenant, "T4", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"T2", "T3"}, task.IDs(direct))

	all, err := m.Dependencies(ctx, tenant, "T4", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"T1", "T2", "T3"}, task.IDs(all))

	dependents, err := m.Dependents(ctx, tenant, "T1", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"T2", "T3", "T4"}, task.IDs(dependents))

	_, err = m.Dependents(ctx, tenant, "missing", false)
	assert.ErrorIs(t, err, errors.ErrTaskNotFound)
}

func TestCriticalPath(t *testing.T) {
	m, _ := newManager(t, cpmFixture()...)

	res, err := m.CriticalPath(context.Background(), tenant, tu.WorkOrder)
	require.NoError(t, err)

	assert.Equal(t, []string{"T1", "T2", "T4"}, task.IDs(res.Path))
	assert.InDelta(t, 7.0, res.Duration, 1e-9)
	assert.False(t, res.Schedule.Timings["T3"].Critical)
	assert.InDelta(t, 2.0, res.Schedule.Timings["T3"].Slack, 1e-9)
}

func TestCriticalPath_Cycle(t *testing.T) {
	m, _ := newManager(t,
		tu.NewTask("a", tu.Hours(1), tu.DependsOn("b")),
		tu.NewTask("b", tu.Hours(1), tu.DependsOn("a")),
	)

	res, err := m.CriticalPath(context.Background(), tenant, tu.WorkOrder)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, errors.ErrDependencyCycle)
}

func TestCriticalPath_GraphLimit(t *testing.T) {
	s := store.NewMemory()
	tu.Seed(t, s, tenant, cpmFixture())
	m := NewManager(s, WithLimits(graph.Limits{MaxNodes: 3}))

	_, err := m.CriticalPath(context.Background(), tenant, tu.WorkOrder)
	assert.ErrorIs(t, err, errors.ErrGraphTooLarge)
}

func TestValidateDependencies(t *testing.T) {
	m, _ := newManager(t,
		tu.NewTask("done", tu.Status(task.StatusCompleted)),
		tu.NewTask("ready", tu.DependsOn("done")),
		tu.NewTask("blocked", tu.DependsOn("done", "ready")),
		tu.NewTask("dangling", tu.DependsOn("nowhere")),
	)

	report, err := m.ValidateDependencies(context.Background(), tenant, tu.WorkOrder)
	require.NoError(t, err)

	assert.True(t, report.IsValid)
	assert.Empty(t, report.Cycles)
	assert.Equal(t, []string{"ready"}, task.IDs(report.Ready))

	require.Len(t, report.Blocked, 2)
	assert.Equal(t, "blocked", report.Blocked[0].Task.ID)
	assert.Equal(t, []string{"ready"}, report.Blocked[0].IncompleteDependencies)
	assert.Equal(t, "dangling", report.Blocked[1].Task.ID)
	assert.Contains(t, report.Issues, "task dangling depends on unknown task nowhere")
}

func TestValidateDependencies_OutOfBandCycle(t *testing.T) {
	m, _ := newManager(t,
		tu.NewTask("A", tu.DependsOn("B")),
		tu.NewTask("B", tu.DependsOn("A")),
	)

	report, err := m.ValidateDependencies(context.Background(), tenant, tu.WorkOrder)
	require.NoError(t, err)

	assert.False(t, report.IsValid)
	assert.Equal(t, [][]string{{"A", "B"}}, report.Cycles)
	assert.NotEmpty(t, report.Issues)
}

func TestCascadeOnCompletion(t *testing.T) {
	ctx := context.Background()
	fixture := cpmFixture()
	fixture[0].Status = task.StatusCompleted
	m, s := newManager(t, fixture...)

	res, events, err := m.CascadeOnCompletion(ctx, tenant, "T1")
	require.NoError(t, err)

	assert.Equal(t, []string{"T2", "T3"}, task.IDs(res.Promoted))
	assert.Equal(t, []string{event.TypeTaskReady, event.TypeTaskReady}, eventTypes(events))
	assert.Equal(t, task.StatusPending, tu.MustTask(t, s, tenant, "T4").Status,
		"T4 still waits on T2 and T3")
}

func TestCascadeOnCompletion_Transitive(t *testing.T) {
	ctx := context.Background()
	m, s := newManager(t,
		tu.NewTask("a", tu.Status(task.StatusCompleted)),
		tu.NewTask("b", tu.Status(task.StatusCompleted), tu.DependsOn("a")),
		tu.NewTask("c", tu.DependsOn("b")),
		tu.NewTask("d", tu.DependsOn("c")),
	)

	res, _, err := m.CascadeOnCompletion(ctx, tenant, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, task.IDs(res.Promoted))
	assert.Equal(t, task.StatusReady, tu.MustTask(t, s, tenant, "c").Status)
	assert.Equal(t, task.StatusPending, tu.MustTask(t, s, tenant, "d").Status)
}

func TestUpdateReadiness(t *testing.T) {
	ctx := context.Background()
	m, s := newManager(t,
		tu.NewTask("a", tu.Status(task.StatusCompleted)),
		tu.NewTask("b", tu.DependsOn("a")),
		tu.NewTask("c", tu.Status(task.StatusReady), tu.DependsOn("b")),
	)

	res, events, err := m.UpdateReadiness(ctx, tenant, "b")
	require.NoError(t, err)
	assert.Equal(t, task.StatusReady, res.Task.Status)
	assert.Equal(t, []string{event.TypeTaskReady}, eventTypes(events))

	res, events, err = m.UpdateReadiness(ctx, tenant, "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, task.IDs(res.Demoted))
	assert.Equal(t, []string{event.TypeTaskStatusChanged}, eventTypes(events))
	assert.Equal(t, task.StatusPending, tu.MustTask(t, s, tenant, "c").Status)

	_, events, err = m.UpdateReadiness(ctx, tenant, "c")
	require.NoError(t, err)
	assert.Empty(t, events, "no change, no events")
}

func TestTransitionStatus_CompletionCascades(t *testing.T) {
	ctx := context.Background()
	m, s := newManager(t, cpmFixture()...)
	asg := tu.Assign(t, s, tenant, "T1", "w1")

	res, events, err := m.TransitionStatus(ctx, tenant, "T1", task.StatusCompleted)
	require.NoError(t, err)

	assert.Equal(t, task.StatusInProgress, res.From)
	assert.Equal(t, []string{"T2", "T3"}, task.IDs(res.Promoted))
	assert.Equal(t,
		[]string{event.TypeTaskStatusChanged, event.TypeTaskReady, event.TypeTaskReady},
		eventTypes(events))
	assert.Equal(t, task.StatusPending, tu.MustTask(t, s, tenant, "T4").Status)

	records, err := s.Assignments(ctx, tenant, "T1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, asg.ID, records[0].ID)
	assert.Equal(t, task.AssignmentCompleted, records[0].Status)
}

func TestTransitionStatus_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		from    task.Status
		to      task.Status
		wantErr error
	}{
		{"ready is derived", task.StatusPending, task.StatusReady, errors.ErrIllegalTransition},
		{"demotion is derived", task.StatusReady, task.StatusPending, errors.ErrIllegalTransition},
		{"skip ahead", task.StatusPending, task.StatusInProgress, errors.ErrIllegalTransition},
		{"completed is terminal", task.StatusCompleted, task.StatusInProgress, errors.ErrTerminalTask},
		{"failed is terminal", task.StatusFailed, task.StatusInProgress, errors.ErrTerminalTask},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, s := newManager(t, tu.NewTask("a", tu.Status(tt.from)))

			_, events, err := m.TransitionStatus(context.Background(), tenant, "a", tt.to)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, events)
			assert.Equal(t, tt.from, tu.MustTask(t, s, tenant, "a").Status)
		})
	}
}

func TestSplitTask_PreserveDependencies(t *testing.T) {
	ctx := context.Background()
	m, s := newManager(t,
		tu.NewTask("P"),
		tu.NewTask("S", tu.Hours(10), tu.Quantity(100), tu.DependsOn("P"), tu.Skills("weld")),
		tu.NewTask("D", tu.DependsOn("S")),
	)

	res, events, err := m.SplitTask(ctx, tenant, "S", []SubtaskSpec{
		{Name: "first half", EstimatedHours: 5, TargetQuantity: 50},
		{Name: "second half", EstimatedHours: 5, TargetQuantity: 50},
	}, true)
	require.NoError(t, err)
	require.Len(t, res.Subtasks, 2)

	first, second := res.Subtasks[0], res.Subtasks[1]
	for _, sub := range res.Subtasks {
		stored := tu.MustTask(t, s, tenant, sub.ID)
		assert.Equal(t, task.StatusPending, stored.Status)
		assert.Equal(t, tu.WorkOrder, stored.WorkOrderID)
		assert.Equal(t, "S", stored.SplitFrom)
		assert.Equal(t, []string{"weld"}, stored.RequiredSkills)
	}
	assert.Equal(t, "S-1", first.Number)
	assert.Equal(t, "S-2", second.Number)
	assert.Equal(t, []string{"P"}, tu.MustTask(t, s, tenant, first.ID).DependsOn)
	assert.Equal(t, []string{first.ID}, tu.MustTask(t, s, tenant, second.ID).DependsOn)

	d := tu.MustTask(t, s, tenant, "D")
	assert.Equal(t, []string{second.ID}, d.DependsOn)
	assert.Equal(t, []string{"D"}, res.Rewired)

	orig := tu.MustTask(t, s, tenant, "S")
	assert.Equal(t, task.StatusCancelled, orig.Status)
	assert.Contains(t, orig.Notes, "Split into 2 subtasks")

	assert.Equal(t, []string{event.TypeTaskSplit, event.TypeTaskStatusChanged}, eventTypes(events))
	split := events[0].(event.TaskSplitEvent)
	assert.Equal(t, "S", split.Original.ID)
	assert.Len(t, split.Subtasks, 2)

	report, err := m.ValidateDependencies(ctx, tenant, tu.WorkOrder)
	require.NoError(t, err)
	assert.True(t, report.IsValid)
}

func TestSplitTask_WithoutPreserveStartsFreshChain(t *testing.T) {
	ctx := context.Background()
	m, s := newManager(t,
		tu.NewTask("P", tu.Status(task.StatusCompleted)),
		tu.NewTask("S", tu.Status(task.StatusReady), tu.DependsOn("P"), tu.Quantity(10)),
	)
	tu.Seed(t, s, tenant, nil, tu.NewWorker("w1"))

	res, events, err := m.SplitTask(ctx, tenant, "S", []SubtaskSpec{
		{Name: "only", TargetQuantity: 7, AssigneeID: "w1", Priority: task.PriorityUrgent},
	}, false)
	require.NoError(t, err)

	sub := tu.MustTask(t, s, tenant, res.Subtasks[0].ID)
	assert.Empty(t, sub.DependsOn)
	assert.Equal(t, task.StatusReady, sub.Status, "a READY original hands readiness to the first subtask")
	assert.Equal(t, task.PriorityUrgent, sub.Priority)
	assert.Contains(t, eventTypes(events), event.TypeTaskReady)

	active, err := s.ActiveAssignment(ctx, tenant, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "w1", active.WorkerID)
}

func TestSplitTask_AssigneeMustBeActiveWorker(t *testing.T) {
	ctx := context.Background()
	m, s := newManager(t, tu.NewTask("S"))
	away := tu.NewWorker("away")
	away.Active = false
	tu.Seed(t, s, tenant, nil, tu.NewWorker("w1"), away)

	tests := []struct {
		name     string
		assignee string
		wantErr  error
	}{
		{"unknown worker", "ghost", errors.ErrWorkerNotFound},
		{"inactive worker", "away", errors.ErrIllegalTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := m.SplitTask(ctx, tenant, "S", []SubtaskSpec{
				{Name: "first", AssigneeID: "w1"},
				{Name: "second", AssigneeID: tt.assignee},
			}, true)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, task.StatusPending, tu.MustTask(t, s, tenant, "S").Status)
			all, err := s.ListTasks(ctx, tenant, task.Filter{})
			require.NoError(t, err)
			assert.Len(t, all, 1, "a rejected split creates nothing")
		})
	}
}

func TestSplitTask_Rejections(t *testing.T) {
	ctx := context.Background()
	m, s := newManager(t,
		tu.NewTask("running", tu.Status(task.StatusInProgress)),
		tu.NewTask("open"),
	)

	_, _, err := m.SplitTask(ctx, tenant, "running", []SubtaskSpec{{Name: "x"}}, true)
	assert.ErrorIs(t, err, errors.ErrNotSplittable)

	_, _, err = m.SplitTask(ctx, tenant, "open", nil, true)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, _, err = m.SplitTask(ctx, tenant, "open", []SubtaskSpec{{Name: ""}}, true)
	var verr *errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Name", verr.Field)

	_, _, err = m.SplitTask(ctx, tenant, "open", []SubtaskSpec{{Name: "x", EstimatedHours: -1}}, true)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, _, err = m.SplitTask(ctx, tenant, "open", []SubtaskSpec{{Name: "x", Priority: 9}}, true)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	all, err := s.ListTasks(ctx, tenant, task.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2, "rejected splits create nothing")
}
