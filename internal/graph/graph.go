// Package graph holds the transient dependency graph of one scope.
//
// The graph is an ID-indexed arena: Nodes maps task ID to task, Edges maps a
// task to the IDs it depends on, and Reverse maps a task to the IDs that
// depend on it. Tasks never reference each other directly. A Graph is built
// per operation and is not safe for concurrent mutation.
package graph

import (
	"slices"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

type set map[string]struct{}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Graph is the dependency graph of a task set.
type Graph struct {
	Nodes   map[string]*task.Task
	Edges   map[string]set // task -> dependencies
	Reverse map[string]set // task -> dependents

	// Missing records dependency IDs that point outside the node set.
	Missing map[string][]string

	edgeCount int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		Nodes:   make(map[string]*task.Task),
		Edges:   make(map[string]set),
		Reverse: make(map[string]set),
		Missing: make(map[string][]string),
	}
}

// Build constructs a graph from tasks. Dependencies that reference tasks
// outside the set are recorded in Missing rather than as edges.
func Build(tasks []*task.Task) *Graph {
	g := New()
	for _, t := range tasks {
		g.AddNode(t)
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := g.Nodes[dep]; !ok {
				g.Missing[t.ID] = append(g.Missing[t.ID], dep)
				continue
			}
			g.AddEdge(t.ID, dep)
		}
	}
	return g
}

// AddNode registers t. Existing edges of the ID are kept.
func (g *Graph) AddNode(t *task.Task) {
	g.Nodes[t.ID] = t
	if g.Edges[t.ID] == nil {
		g.Edges[t.ID] = make(set)
	}
	if g.Reverse[t.ID] == nil {
		g.Reverse[t.ID] = make(set)
	}
}

// AddEdge records that taskID depends on dependsOnID. It reports false when
// the edge already exists or either endpoint is unknown. It does not check
// for cycles; use WouldCycle first.
func (g *Graph) AddEdge(taskID, dependsOnID string) bool {
	if !g.Has(taskID) || !g.Has(dependsOnID) || g.HasEdge(taskID, dependsOnID) {
		return false
	}
	g.Edges[taskID][dependsOnID] = struct{}{}
	g.Reverse[dependsOnID][taskID] = struct{}{}
	g.edgeCount++
	return true
}

// RemoveEdge deletes the edge and reports whether it existed.
func (g *Graph) RemoveEdge(taskID, dependsOnID string) bool {
	if !g.HasEdge(taskID, dependsOnID) {
		return false
	}
	delete(g.Edges[taskID], dependsOnID)
	delete(g.Reverse[dependsOnID], taskID)
	g.edgeCount--
	return true
}

// Has reports whether id is a node.
func (g *Graph) Has(id string) bool {
	_, ok := g.Nodes[id]
	return ok
}

// HasEdge reports whether taskID directly depends on dependsOnID.
func (g *Graph) HasEdge(taskID, dependsOnID string) bool {
	_, ok := g.Edges[taskID][dependsOnID]
	return ok
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.Nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return g.edgeCount }

// IDs returns every node ID in sorted order.
func (g *Graph) IDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Dependencies returns the IDs id depends on: direct ones, or every ancestor
// reachable through dependency edges when transitive is set. Sorted.
func (g *Graph) Dependencies(id string, transitive bool) []string {
	if !transitive {
		return g.Edges[id].sorted()
	}
	return g.bfs(id, g.Edges)
}

// Dependents returns the IDs that depend on id: direct ones, or every
// descendant reachable through reverse edges when transitive is set. Sorted.
func (g *Graph) Dependents(id string, transitive bool) []string {
	if !transitive {
		return g.Reverse[id].sorted()
	}
	return g.bfs(id, g.Reverse)
}

// bfs returns every node reachable from start along adj, excluding start
// unless it lies on a cycle back to itself.
func (g *Graph) bfs(start string, adj map[string]set) []string {
	seen := make(set)
	queue := adj[start].sorted()
	for _, id := range queue {
		seen[id] = struct{}{}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur].sorted() {
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	return seen.sorted()
}

// Reaches reports whether from transitively depends on to.
func (g *Graph) Reaches(from, to string) bool {
	return g.pathTo(from, to) != nil
}

// pathTo returns the dependency chain from -> ... -> to, or nil.
func (g *Graph) pathTo(from, to string) []string {
	if !g.Has(from) || !g.Has(to) {
		return nil
	}
	if from == to {
		return []string{from}
	}
	parent := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.Edges[cur].sorted() {
			if _, ok := parent[next]; ok {
				continue
			}
			parent[next] = cur
			if next == to {
				path := []string{to}
				for p := cur; p != ""; p = parent[p] {
					path = append(path, p)
				}
				slices.Reverse(path)
				return path
			}
			queue = append(queue, next)
		}
	}
	return nil
}

// WouldCycle reports whether adding taskID -> dependsOnID would close a
// cycle. That happens exactly when dependsOnID already depends, directly or
// transitively, on taskID (or the two are equal). When it would, the
// returned path lists the resulting cycle starting and ending at taskID.
func (g *Graph) WouldCycle(taskID, dependsOnID string) (bool, []string) {
	if taskID == dependsOnID {
		return true, []string{taskID, taskID}
	}
	chain := g.pathTo(dependsOnID, taskID)
	if chain == nil {
		return false, nil
	}
	return true, append([]string{taskID}, chain...)
}
