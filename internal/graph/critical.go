package graph

import (
	"context"
	"math"
	"slices"
	"strings"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
)

// DefaultSlackTolerance is the slack, in hours, under which a node counts as
// critical. Slack comes from floating sums so exact zero is not reliable.
const DefaultSlackTolerance = 0.01

// ctxCheckInterval is how many nodes the passes process between checks of
// the context deadline.
const ctxCheckInterval = 256

// Timing is the CPM result for one node. All values are in hours from the
// project start.
type Timing struct {
	ID             string  `json:"id"`
	Duration       float64 `json:"duration"`
	EarliestStart  float64 `json:"earliestStart"`
	EarliestFinish float64 `json:"earliestFinish"`
	LatestStart    float64 `json:"latestStart"`
	LatestFinish   float64 `json:"latestFinish"`
	Slack          float64 `json:"slack"`
	Critical       bool    `json:"critical"`
}

// Schedule is the outcome of a critical path computation.
type Schedule struct {
	// Path lists the critical nodes ordered by earliest start.
	Path []string `json:"path"`
	// Duration is the minimum project duration in hours.
	Duration float64 `json:"duration"`
	// Order is the topological order the passes ran in.
	Order   []string          `json:"order"`
	Timings map[string]Timing `json:"timings"`
}

// duration returns the node's estimated hours, clamping negatives to zero.
func (g *Graph) duration(id string) float64 {
	d := g.Nodes[id].EstimatedHours
	if d < 0 || math.IsNaN(d) {
		return 0
	}
	return d
}

// CriticalPath runs the forward and backward CPM passes. A cycle yields a
// CycleError and no schedule. The context is checked periodically so a
// deadline bounds the work on very large graphs.
func (g *Graph) CriticalPath(ctx context.Context, tolerance float64) (*Schedule, error) {
	if tolerance <= 0 {
		tolerance = DefaultSlackTolerance
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		var cycleErr *errors.CycleError
		if errors.As(err, &cycleErr) {
			return nil, errors.NewCycleError(cycleErr.Path).
				WithMessage("cannot compute critical path: circular dependency")
		}
		return nil, err
	}

	timings := make(map[string]Timing, len(order))
	var project float64

	// Forward pass: earliest start is the latest finish among dependencies.
	for i, id := range order {
		if err := checkCtx(ctx, i); err != nil {
			return nil, err
		}
		var es float64
		for dep := range g.Edges[id] {
			es = math.Max(es, timings[dep].EarliestFinish)
		}
		d := g.duration(id)
		timings[id] = Timing{
			ID:             id,
			Duration:       d,
			EarliestStart:  es,
			EarliestFinish: es + d,
		}
		project = math.Max(project, es+d)
	}

	// Backward pass: latest finish is the earliest latest-start among dependents.
	for i := len(order) - 1; i >= 0; i-- {
		if err := checkCtx(ctx, i); err != nil {
			return nil, err
		}
		id := order[i]
		tm := timings[id]
		lf := project
		for dependent := range g.Reverse[id] {
			lf = math.Min(lf, timings[dependent].LatestStart)
		}
		tm.LatestFinish = lf
		tm.LatestStart = lf - tm.Duration
		tm.Slack = lf - tm.EarliestFinish
		tm.Critical = math.Abs(tm.Slack) <= tolerance
		timings[id] = tm
	}

	var path []string
	for _, id := range order {
		if timings[id].Critical {
			path = append(path, id)
		}
	}
	slices.SortStableFunc(path, func(a, b string) int {
		ta, tb := timings[a], timings[b]
		if ta.EarliestStart != tb.EarliestStart {
			if ta.EarliestStart < tb.EarliestStart {
				return -1
			}
			return 1
		}
		return strings.Compare(a, b)
	})

	return &Schedule{
		Path:     path,
		Duration: project,
		Order:    order,
		Timings:  timings,
	}, nil
}

func checkCtx(ctx context.Context, i int) error {
	if i%ctxCheckInterval != 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "critical path computation aborted")
	}
	return nil
}
