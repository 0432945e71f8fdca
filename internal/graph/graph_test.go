package graph

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

func tk(id string, hours float64, deps ...string) *task.Task {
	return &task.Task{ID: id, WorkOrderID: "wo", Status: task.StatusPending, EstimatedHours: hours, DependsOn: deps}
}

// cpmFixture is T1(2h), T2(3h)->T1, T3(1h)->T1, T4(2h)->T2,T3.
func cpmFixture() *Graph {
	return Build([]*task.Task{
		tk("T1", 2),
		tk("T2", 3, "T1"),
		tk("T3", 1, "T1"),
		tk("T4", 2, "T2", "T3"),
	})
}

func TestBuild(t *testing.T) {
	g := Build([]*task.Task{tk("a", 1), tk("b", 1, "a", "ghost")})

	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.EdgeCount())
	assert.True(t, g.HasEdge("b", "a"))
	assert.False(t, g.HasEdge("a", "b"))
	assert.Equal(t, []string{"ghost"}, g.Missing["b"])
	assert.Equal(t, []string{"b"}, g.Dependents("a", false))
}

func TestAddRemoveEdge(t *testing.T) {
	g := Build([]*task.Task{tk("a", 1), tk("b", 1)})

	assert.True(t, g.AddEdge("b", "a"))
	assert.False(t, g.AddEdge("b", "a"), "duplicate edge")
	assert.False(t, g.AddEdge("b", "zz"), "unknown endpoint")
	assert.Equal(t, 1, g.EdgeCount())

	assert.True(t, g.RemoveEdge("b", "a"))
	assert.False(t, g.RemoveEdge("b", "a"))
	assert.Equal(t, 0, g.EdgeCount())
	assert.Empty(t, g.Dependents("a", false))
}

func TestTransitiveQueries(t *testing.T) {
	g := cpmFixture()

	assert.Equal(t, []string{"T2", "T3"}, g.Dependencies("T4", false))
	assert.Equal(t, []string{"T1", "T2", "T3"}, g.Dependencies("T4", true))
	assert.Equal(t, []string{"T2", "T3"}, g.Dependents("T1", false))
	assert.Equal(t, []string{"T2", "T3", "T4"}, g.Dependents("T1", true))
	assert.Empty(t, g.Dependencies("T1", true))
	assert.Nil(t, g.Dependencies("missing", true))
}

// closure computes the fixed point of direct dependencies by repeated
// expansion, independently of the BFS in Dependencies.
func closure(g *Graph, id string, adj func(string) []string) map[string]bool {
	out := map[string]bool{}
	for _, d := range adj(id) {
		out[d] = true
	}
	for changed := true; changed; {
		changed = false
		for d := range out {
			for _, dd := range adj(d) {
				if !out[dd] {
					out[dd] = true
					changed = true
				}
			}
		}
	}
	return out
}

func TestTransitiveClosureMatchesFixedPoint(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 25; trial++ {
		g := randomDAG(rng, 12, 0.25)
		for _, id := range g.IDs() {
			want := closure(g, id, func(x string) []string { return g.Dependencies(x, false) })
			got := g.Dependencies(id, true)
			require.Len(t, got, len(want), "dependencies of %s", id)
			for _, d := range got {
				assert.True(t, want[d])
			}

			wantRev := closure(g, id, func(x string) []string { return g.Dependents(x, false) })
			gotRev := g.Dependents(id, true)
			require.Len(t, gotRev, len(wantRev), "dependents of %s", id)
			for _, d := range gotRev {
				assert.True(t, wantRev[d])
			}
		}
	}
}

func randomDAG(rng *rand.Rand, n int, density float64) *Graph {
	tasks := make([]*task.Task, n)
	for i := range tasks {
		tasks[i] = tk(fmt.Sprintf("n%02d", i), float64(rng.Intn(5)))
	}
	// Edges only from higher to lower index keep the graph acyclic.
	for i := range tasks {
		for j := 0; j < i; j++ {
			if rng.Float64() < density {
				tasks[i].DependsOn = append(tasks[i].DependsOn, tasks[j].ID)
			}
		}
	}
	return Build(tasks)
}

func TestWouldCycle(t *testing.T) {
	g := Build([]*task.Task{tk("a", 1), tk("b", 1, "a"), tk("c", 1, "b"), tk("d", 1)})

	tests := []struct {
		name      string
		task, dep string
		want      bool
		path      []string
	}{
		{"self", "a", "a", true, []string{"a", "a"}},
		{"direct back edge", "a", "b", true, []string{"a", "b", "a"}},
		{"transitive back edge", "a", "c", true, []string{"a", "c", "b", "a"}},
		{"forward shortcut", "c", "a", false, nil},
		{"unrelated", "d", "c", false, nil},
		{"reverse unrelated", "c", "d", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, path := g.WouldCycle(tt.task, tt.dep)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.path, path)
		})
	}
}

// TestWouldCycle_Exhaustive checks the reachability test against direct cycle
// detection for every edge insertion sequence over four nodes.
func TestWouldCycle_Exhaustive(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	var candidates [][2]string
	for _, from := range ids {
		for _, to := range ids {
			if from != to {
				candidates = append(candidates, [2]string{from, to})
			}
		}
	}

	// Every subset ordering is too many; iterate all subsets in index order
	// plus a batch of random permutations.
	check := func(seq [][2]string) {
		g := Build([]*task.Task{tk("a", 1), tk("b", 1), tk("c", 1), tk("d", 1)})
		for _, e := range seq {
			would, _ := g.WouldCycle(e[0], e[1])

			trial := Build(nodesOf(g))
			trial.AddEdge(e[0], e[1])
			actual := len(trial.FindCycles()) > 0

			require.Equal(t, actual, would, "edge %s->%s after %v", e[0], e[1], seq)
			if !would {
				g.AddEdge(e[0], e[1])
				_, err := g.TopologicalOrder()
				require.NoError(t, err)
			}
		}
	}

	for mask := 1; mask < 1<<len(candidates); mask += 37 {
		var seq [][2]string
		for i, c := range candidates {
			if mask&(1<<i) != 0 {
				seq = append(seq, c)
			}
		}
		check(seq)
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		seq := append([][2]string(nil), candidates...)
		rng.Shuffle(len(seq), func(a, b int) { seq[a], seq[b] = seq[b], seq[a] })
		check(seq)
	}
}

// nodesOf returns clones of g's tasks with DependsOn rebuilt from edges.
func nodesOf(g *Graph) []*task.Task {
	var out []*task.Task
	for _, id := range g.IDs() {
		c := g.Nodes[id].Clone()
		c.DependsOn = g.Dependencies(id, false)
		out = append(out, c)
	}
	return out
}

func TestFindCycles(t *testing.T) {
	t.Run("acyclic", func(t *testing.T) {
		assert.Empty(t, cpmFixture().FindCycles())
	})

	t.Run("two node cycle", func(t *testing.T) {
		g := Build([]*task.Task{tk("A", 1, "B"), tk("B", 1, "A")})
		cycles := g.FindCycles()
		require.Len(t, cycles, 1)
		assert.Equal(t, []string{"A", "B"}, cycles[0])
	})

	t.Run("self loop and separate cycle", func(t *testing.T) {
		g := Build([]*task.Task{
			tk("a", 1, "a"),
			tk("x", 1, "y"), tk("y", 1, "z"), tk("z", 1, "x"),
			tk("free", 1),
		})
		cycles := g.FindCycles()
		require.Len(t, cycles, 2)
		assert.Equal(t, []string{"a"}, cycles[0])
		assert.Equal(t, []string{"x", "y", "z"}, cycles[1])
	})
}

func TestTopologicalOrder(t *testing.T) {
	order, err := cpmFixture().TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"T1", "T2", "T3", "T4"}, order)

	pos := map[string]int{}
	g := randomDAG(rand.New(rand.NewSource(3)), 30, 0.2)
	order, err = g.TopologicalOrder()
	require.NoError(t, err)
	require.Len(t, order, 30)
	for i, id := range order {
		pos[id] = i
	}
	for _, id := range g.IDs() {
		for _, dep := range g.Dependencies(id, false) {
			assert.Less(t, pos[dep], pos[id], "%s must come before %s", dep, id)
		}
	}
}

func TestTopologicalOrder_Cycle(t *testing.T) {
	g := Build([]*task.Task{tk("A", 1, "B"), tk("B", 1, "A"), tk("C", 1)})
	order, err := g.TopologicalOrder()
	assert.Nil(t, order)
	require.ErrorIs(t, err, errors.ErrDependencyCycle)

	var cycleErr *errors.CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"A", "B"}, cycleErr.Path)
}

func TestCriticalPath(t *testing.T) {
	sched, err := cpmFixture().CriticalPath(context.Background(), DefaultSlackTolerance)
	require.NoError(t, err)

	assert.Equal(t, []string{"T1", "T2", "T4"}, sched.Path)
	assert.InDelta(t, 7.0, sched.Duration, 1e-9)

	t3 := sched.Timings["T3"]
	assert.False(t, t3.Critical)
	assert.InDelta(t, 2.0, t3.Slack, 1e-9)
	assert.InDelta(t, 2.0, t3.EarliestStart, 1e-9)
	assert.InDelta(t, 5.0, t3.LatestFinish, 1e-9)

	t1 := sched.Timings["T1"]
	assert.InDelta(t, 0.0, t1.EarliestStart, 1e-9)
	assert.InDelta(t, 2.0, t1.LatestFinish, 1e-9)
	assert.InDelta(t, 5.0, sched.Timings["T4"].EarliestStart, 1e-9)
}

func TestCriticalPath_FloatTolerance(t *testing.T) {
	// 0.1 + 0.2 is not exactly 0.3 in floating point.
	g := Build([]*task.Task{
		tk("a", 0.1),
		tk("b", 0.2, "a"),
		tk("c", 0.3),
		tk("end", 1, "b", "c"),
	})
	sched, err := g.CriticalPath(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b", "end"}, sched.Path)
}

func TestCriticalPath_Empty(t *testing.T) {
	sched, err := New().CriticalPath(context.Background(), DefaultSlackTolerance)
	require.NoError(t, err)
	assert.Empty(t, sched.Path)
	assert.Zero(t, sched.Duration)
}

func TestCriticalPath_Cycle(t *testing.T) {
	g := Build([]*task.Task{tk("A", 1, "B"), tk("B", 1, "A")})
	sched, err := g.CriticalPath(context.Background(), DefaultSlackTolerance)
	assert.Nil(t, sched)
	require.ErrorIs(t, err, errors.ErrDependencyCycle)
	assert.Contains(t, err.Error(), "cannot compute critical path")
}

func TestCriticalPath_ContextExpired(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := cpmFixture().CriticalPath(ctx, DefaultSlackTolerance)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimits(t *testing.T) {
	g := cpmFixture()

	assert.NoError(t, Limits{}.Check(g))
	assert.NoError(t, Limits{MaxNodes: 4, MaxEdges: 4}.Check(g))

	err := Limits{MaxNodes: 3}.Check(g)
	require.ErrorIs(t, err, errors.ErrGraphTooLarge)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	err = Limits{MaxEdges: 3}.Check(g)
	require.ErrorIs(t, err, errors.ErrGraphTooLarge)
}
