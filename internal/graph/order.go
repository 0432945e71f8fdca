package graph

import (
	"slices"
	"strings"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
)

// FindCycles runs a depth-first search with a recursion stack and returns
// every distinct cycle closed by a back edge. Each cycle is an ordered list
// of IDs where each element depends on the next and the last depends on the
// first. Cycles are rotated to start at their smallest ID so the result is
// deterministic.
func (g *Graph) FindCycles() [][]string {
	const (
		white = iota // unvisited
		gray         // on the recursion stack
		black        // finished
	)

	color := make(map[string]int, len(g.Nodes))
	var stack []string
	seen := make(map[string]struct{})
	var cycles [][]string

	var visit func(id string)
	visit = func(id string) {
		color[id] = gray
		stack = append(stack, id)

		for _, dep := range g.Edges[id].sorted() {
			switch color[dep] {
			case white:
				visit(dep)
			case gray:
				idx := slices.Index(stack, dep)
				cycle := normalizeCycle(stack[idx:])
				key := strings.Join(cycle, "\x00")
				if _, dup := seen[key]; !dup {
					seen[key] = struct{}{}
					cycles = append(cycles, cycle)
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, id := range g.IDs() {
		if color[id] == white {
			visit(id)
		}
	}
	return cycles
}

// normalizeCycle rotates a copy of cycle so it starts at its smallest ID.
func normalizeCycle(cycle []string) []string {
	minIdx := 0
	for i, id := range cycle {
		if id < cycle[minIdx] {
			minIdx = i
		}
	}
	out := make([]string, 0, len(cycle))
	out = append(out, cycle[minIdx:]...)
	out = append(out, cycle[:minIdx]...)
	return out
}

// TopologicalOrder returns the node IDs with every dependency ahead of its
// dependents, using Kahn's algorithm. Nodes that become available together
// are emitted in ID order. If fewer nodes are processed than exist, the graph
// has a cycle and a CycleError is returned with no partial order.
func (g *Graph) TopologicalOrder() ([]string, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	var queue []string
	for _, id := range g.IDs() {
		inDegree[id] = len(g.Edges[id])
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(g.Nodes))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)

		var released []string
		for dependent := range g.Reverse[cur] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				released = append(released, dependent)
			}
		}
		slices.Sort(released)
		queue = append(queue, released...)
	}

	if len(order) < len(g.Nodes) {
		var path []string
		if cycles := g.FindCycles(); len(cycles) > 0 {
			path = cycles[0]
		}
		return nil, errors.NewCycleError(path).
			WithMessage("circular dependency prevents ordering")
	}
	return order, nil
}
