package assignment

import (
	"slices"
	"strings"
	"time"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

// DefaultCapacity is the active-task ceiling above which a worker is no
// longer a candidate.
const DefaultCapacity = 10

// Candidate is a worker together with its current workload.
type Candidate struct {
	Worker *task.Worker
	// ActiveTasks counts non-terminal tasks assigned to the worker.
	ActiveTasks int
	// UrgentTasks counts active URGENT and CRITICAL tasks.
	UrgentTasks int
	// OverdueTasks counts active tasks past their due date.
	OverdueTasks int
	// ActiveHours sums the estimated hours of active tasks.
	ActiveHours float64
}

// ID returns the worker ID.
func (c Candidate) ID() string { return c.Worker.ID }

// Pool tracks the workload of every active worker of a tenant. It is built
// once per operation and updated in place as tasks move, so a batch does not
// reload the task set for each item.
type Pool struct {
	capacity int
	now      time.Time
	entries  []*Candidate
	byID     map[string]*Candidate
}

// NewPool computes workloads for workers from tasks. Inactive workers are
// dropped and terminal tasks are ignored. A capacity of zero or less means
// DefaultCapacity.
func NewPool(workers []*task.Worker, tasks []*task.Task, capacity int, now time.Time) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	p := &Pool{
		capacity: capacity,
		now:      now,
		byID:     make(map[string]*Candidate, len(workers)),
	}
	for _, w := range workers {
		if !w.Active {
			continue
		}
		c := &Candidate{Worker: w}
		p.entries = append(p.entries, c)
		p.byID[w.ID] = c
	}
	slices.SortFunc(p.entries, func(a, b *Candidate) int {
		return strings.Compare(a.Worker.ID, b.Worker.ID)
	})

	for _, t := range tasks {
		if c, ok := p.byID[t.AssigneeID]; ok {
			p.apply(c, t, 1)
		}
	}
	return p
}

// BuildPool returns the candidates among workers: active workers whose
// active task count is below capacity, ordered by ID.
func BuildPool(workers []*task.Worker, tasks []*task.Task, capacity int, now time.Time) []Candidate {
	return NewPool(workers, tasks, capacity, now).Candidates()
}

func (p *Pool) apply(c *Candidate, t *task.Task, sign int) {
	if t.Status.IsTerminal() {
		return
	}
	c.ActiveTasks += sign
	c.ActiveHours += float64(sign) * t.EstimatedHours
	if t.Priority.IsUrgent() {
		c.UrgentTasks += sign
	}
	if t.IsOverdue(p.now) {
		c.OverdueTasks += sign
	}
}

// Candidates returns copies of the workers below capacity, ordered by ID.
func (p *Pool) Candidates() []Candidate {
	out := make([]Candidate, 0, len(p.entries))
	for _, c := range p.entries {
		if c.ActiveTasks < p.capacity {
			out = append(out, *c)
		}
	}
	return out
}

// All returns copies of every active worker's workload, ordered by ID.
func (p *Pool) All() []Candidate {
	out := make([]Candidate, len(p.entries))
	for i, c := range p.entries {
		out[i] = *c
	}
	return out
}

// Get returns the workload of one worker regardless of capacity.
func (p *Pool) Get(workerID string) (Candidate, bool) {
	c, ok := p.byID[workerID]
	if !ok {
		return Candidate{}, false
	}
	return *c, true
}

// Move shifts t's workload from one worker to another. Either side may be
// empty or unknown.
func (p *Pool) Move(t *task.Task, from, to string) {
	if c, ok := p.byID[from]; ok {
		p.apply(c, t, -1)
	}
	if c, ok := p.byID[to]; ok {
		p.apply(c, t, 1)
	}
}

// Loads returns the active task count of every worker.
func (p *Pool) Loads() map[string]int {
	out := make(map[string]int, len(p.entries))
	for _, c := range p.entries {
		out[c.Worker.ID] = c.ActiveTasks
	}
	return out
}

// Capacity returns the active-task ceiling.
func (p *Pool) Capacity() int { return p.capacity }

// Without returns cands minus the listed workers.
func Without(cands []Candidate, workerIDs ...string) []Candidate {
	return slices.DeleteFunc(slices.Clone(cands), func(c Candidate) bool {
		return slices.Contains(workerIDs, c.ID())
	})
}

// Qualified returns the candidates that hold every skill in required.
func Qualified(cands []Candidate, required []string) []Candidate {
	return slices.DeleteFunc(slices.Clone(cands), func(c Candidate) bool {
		return !c.Worker.HasAllSkills(required)
	})
}
