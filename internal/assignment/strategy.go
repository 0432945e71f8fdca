package assignment

import (
	"cmp"
	"slices"
	"strings"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/task"
)

// Default scoring weights.
const (
	DefaultWorkloadWeight = 1.0
	DefaultUrgentWeight   = 10.0
)

// Request is the input to a strategy.
type Request struct {
	Task       *task.Task
	Candidates []Candidate
	// Cursor is the last worker picked by round robin. Other strategies
	// ignore it.
	Cursor string
}

// Selection is a strategy's pick.
type Selection struct {
	Candidate Candidate
	Score     float64
	// Cursor is the value to persist for the next round robin call.
	Cursor string
}

// Strategy selects one candidate for a task, or none.
type Strategy interface {
	Method() task.Method
	Select(req Request) (Selection, bool)
}

// SkillScorer rates how well a worker fits a task. Higher is better; zero
// means unqualified.
type SkillScorer interface {
	Score(t *task.Task, w *task.Worker) float64
}

// SkillScorerFunc adapts a function to SkillScorer.
type SkillScorerFunc func(t *task.Task, w *task.Worker) float64

// Score implements SkillScorer.
func (f SkillScorerFunc) Score(t *task.Task, w *task.Worker) float64 { return f(t, w) }

// OverlapScorer scores a worker by the fraction of the task's required
// skills it declares. Tasks without required skills score 1 for everyone.
type OverlapScorer struct{}

// Score implements SkillScorer.
func (OverlapScorer) Score(t *task.Task, w *task.Worker) float64 {
	if len(t.RequiredSkills) == 0 {
		return 1
	}
	held := 0
	for _, s := range t.RequiredSkills {
		if w.HasSkill(s) {
			held++
		}
	}
	return float64(held) / float64(len(t.RequiredSkills))
}

// lowest returns the candidate with the smallest score, breaking ties with
// less, then by ID.
func lowest(cands []Candidate, score func(Candidate) float64, less func(a, b Candidate) int) (Selection, bool) {
	if len(cands) == 0 {
		return Selection{}, false
	}
	best := slices.MinFunc(cands, func(a, b Candidate) int {
		if c := cmp.Compare(score(a), score(b)); c != 0 {
			return c
		}
		if less != nil {
			if c := less(a, b); c != 0 {
				return c
			}
		}
		return strings.Compare(a.ID(), b.ID())
	})
	return Selection{Candidate: best, Score: score(best)}, true
}

func byHours(a, b Candidate) int { return cmp.Compare(a.ActiveHours, b.ActiveHours) }

func byActive(a, b Candidate) int { return cmp.Compare(a.ActiveTasks, b.ActiveTasks) }

// SkillMatch picks the candidate whose skills best fit the task. Ties go to
// the less loaded worker. When the task requires skills, a candidate
// scoring zero is never picked.
type SkillMatch struct {
	Scorer SkillScorer
}

// Method implements Strategy.
func (SkillMatch) Method() task.Method { return task.MethodSkillMatch }

// Select implements Strategy.
func (s SkillMatch) Select(req Request) (Selection, bool) {
	scorer := s.Scorer
	if scorer == nil {
		scorer = OverlapScorer{}
	}
	scores := make(map[string]float64, len(req.Candidates))
	var qualified []Candidate
	for _, c := range req.Candidates {
		score := scorer.Score(req.Task, c.Worker)
		if score <= 0 && len(req.Task.RequiredSkills) > 0 {
			continue
		}
		scores[c.ID()] = score
		qualified = append(qualified, c)
	}
	sel, ok := lowest(qualified, func(c Candidate) float64 { return -scores[c.ID()] }, byActive)
	sel.Score = -sel.Score
	return sel, ok
}

// LeastLoaded picks the candidate with the lowest active-task count times
// Weight.
type LeastLoaded struct {
	Weight float64
}

// Method implements Strategy.
func (LeastLoaded) Method() task.Method { return task.MethodLeastLoaded }

// Select implements Strategy.
func (l LeastLoaded) Select(req Request) (Selection, bool) {
	weight := l.Weight
	if weight <= 0 {
		weight = DefaultWorkloadWeight
	}
	return lowest(req.Candidates, func(c Candidate) float64 {
		return float64(c.ActiveTasks) * weight
	}, byHours)
}

// RoundRobin rotates through candidates in ID order. The position is carried
// by Request.Cursor and Selection.Cursor, never by the strategy itself.
type RoundRobin struct{}

// Method implements Strategy.
func (RoundRobin) Method() task.Method { return task.MethodRoundRobin }

// Select implements Strategy. It picks the first candidate whose ID sorts
// after the cursor, wrapping to the first candidate. A cursor naming a worker
// that has since left the pool still lands in the right place.
func (RoundRobin) Select(req Request) (Selection, bool) {
	if len(req.Candidates) == 0 {
		return Selection{}, false
	}
	cands := slices.Clone(req.Candidates)
	slices.SortFunc(cands, func(a, b Candidate) int { return strings.Compare(a.ID(), b.ID()) })

	pick := cands[0]
	if req.Cursor != "" {
		if i := slices.IndexFunc(cands, func(c Candidate) bool { return c.ID() > req.Cursor }); i >= 0 {
			pick = cands[i]
		}
	}
	return Selection{Candidate: pick, Cursor: pick.ID()}, true
}

// PriorityAware steers work away from workers already carrying urgent tasks:
// score = UrgentTasks*UrgentWeight + ActiveTasks, lowest wins.
type PriorityAware struct {
	UrgentWeight float64
}

// Method implements Strategy.
func (PriorityAware) Method() task.Method { return task.MethodPriority }

// Select implements Strategy.
func (p PriorityAware) Select(req Request) (Selection, bool) {
	weight := p.UrgentWeight
	if weight <= 0 {
		weight = DefaultUrgentWeight
	}
	return lowest(req.Candidates, func(c Candidate) float64 {
		return float64(c.UrgentTasks)*weight + float64(c.ActiveTasks)
	}, byHours)
}

// Proximity prefers workers attached to the task's work center, least
// loaded first. Without a work center or a matching worker it falls back to
// the first available candidate.
type Proximity struct{}

// Method implements Strategy.
func (Proximity) Method() task.Method { return task.MethodProximity }

// Select implements Strategy.
func (Proximity) Select(req Request) (Selection, bool) {
	if len(req.Candidates) == 0 {
		return Selection{}, false
	}
	if wc := req.Task.WorkCenterID; wc != "" {
		var local []Candidate
		for _, c := range req.Candidates {
			if c.Worker.InWorkCenter(wc) {
				local = append(local, c)
			}
		}
		if sel, ok := lowest(local, func(c Candidate) float64 { return float64(c.ActiveTasks) }, nil); ok {
			return sel, true
		}
	}
	first := slices.MinFunc(req.Candidates, func(a, b Candidate) int { return strings.Compare(a.ID(), b.ID()) })
	return Selection{Candidate: first}, true
}

// Strategies returns the built-in strategies keyed by method.
func Strategies(scorer SkillScorer, workloadWeight, urgentWeight float64) map[task.Method]Strategy {
	list := []Strategy{
		SkillMatch{Scorer: scorer},
		LeastLoaded{Weight: workloadWeight},
		RoundRobin{},
		PriorityAware{UrgentWeight: urgentWeight},
		Proximity{},
	}
	out := make(map[task.Method]Strategy, len(list))
	for _, s := range list {
		out[s.Method()] = s
	}
	return out
}

// ParseMethod converts a strategy name into a Method. Hyphens and case are
// ignored, and "skills", "workload" and "priority_aware" are accepted as
// aliases.
func ParseMethod(s string) (task.Method, bool) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	switch name {
	case "skills":
		return task.MethodSkillMatch, true
	case "workload":
		return task.MethodLeastLoaded, true
	case "priority_aware":
		return task.MethodPriority, true
	}
	for _, m := range []task.Method{
		task.MethodSkillMatch, task.MethodLeastLoaded, task.MethodRoundRobin,
		task.MethodPriority, task.MethodProximity,
	} {
		if string(m) == name {
			return m, true
		}
	}
	return "", false
}
