package task

import (
	"slices"
	"strings"
)

// Worker is an operator that tasks can be assigned to.
type Worker struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Active        bool     `json:"active" yaml:"active"`
	Skills        []string `json:"skills,omitempty" yaml:"skills,omitempty"`
	WorkCenterIDs []string `json:"workCenterIds,omitempty" yaml:"workCenters,omitempty"`
}

// HasSkill reports whether the worker declares skill (case-insensitive).
func (w *Worker) HasSkill(skill string) bool {
	return slices.ContainsFunc(w.Skills, func(s string) bool {
		return strings.EqualFold(s, skill)
	})
}

// HasAllSkills reports whether every required skill is declared.
func (w *Worker) HasAllSkills(required []string) bool {
	for _, s := range required {
		if !w.HasSkill(s) {
			return false
		}
	}
	return true
}

// InWorkCenter reports whether the worker is associated with the work center.
func (w *Worker) InWorkCenter(id string) bool {
	return slices.Contains(w.WorkCenterIDs, id)
}

// Clone returns a deep copy.
func (w *Worker) Clone() *Worker {
	if w == nil {
		return nil
	}
	c := *w
	c.Skills = slices.Clone(w.Skills)
	c.WorkCenterIDs = slices.Clone(w.WorkCenterIDs)
	return &c
}
