package graph

import (
	"fmt"

	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
)

// Limits bounds the size of a graph an operation will process.
// Zero means unlimited.
type Limits struct {
	MaxNodes int
	MaxEdges int
}

// Check returns a ValidationError wrapping ErrGraphTooLarge when g exceeds l.
func (l Limits) Check(g *Graph) error {
	if l.MaxNodes > 0 && g.NodeCount() > l.MaxNodes {
		return errors.NewValidationError(fmt.Sprintf("graph has %d nodes, limit is %d", g.NodeCount(), l.MaxNodes)).
			WithField("nodes").
			WithCause(errors.ErrGraphTooLarge)
	}
	if l.MaxEdges > 0 && g.EdgeCount() > l.MaxEdges {
		return errors.NewValidationError(fmt.Sprintf("graph has %d edges, limit is %d", g.EdgeCount(), l.MaxEdges)).
			WithField("edges").
			WithCause(errors.ErrGraphTooLarge)
	}
	return nil
}
