package task

import (
	"github.com/kcstrada/manufacturing-execution-system-sub002/internal/errors"
)

// transitions is the status state machine. Keys are source states.
var transitions = map[Status][]Status{
	StatusPending:    {StatusReady, StatusCancelled},
	StatusReady:      {StatusInProgress, StatusPending, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusFailed, StatusPaused, StatusCancelled},
	StatusPaused:     {StatusInProgress, StatusCancelled},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsSystemTransition reports whether the move is driven only by dependency
// readiness. Callers may not request these directly.
func IsSystemTransition(from, to Status) bool {
	return to == StatusReady || (from == StatusReady && to == StatusPending)
}

// ValidateTransition returns an InvalidStateError when the move is illegal.
func ValidateTransition(taskID string, from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	cause := errors.ErrIllegalTransition
	if from.IsTerminal() {
		cause = errors.ErrTerminalTask
	}
	return errors.NewInvalidStateError("status transition rejected", cause).
		WithEntity(taskID).
		WithStates(string(from), string(to))
}

// ValidateRequest is ValidateTransition for caller-initiated changes: it also
// rejects readiness moves, which only the cascade may perform.
func ValidateRequest(taskID string, from, to Status) error {
	if IsSystemTransition(from, to) {
		return errors.NewInvalidStateError("readiness is derived from dependencies", errors.ErrIllegalTransition).
			WithEntity(taskID).
			WithStates(string(from), string(to))
	}
	return ValidateTransition(taskID, from, to)
}
