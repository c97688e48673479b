package missions

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is a Conflict: the caller asked for a state change
// the machine does not allow.
var ErrInvalidTransition = errors.New("missions: invalid status transition")

// allowedTransitions encodes the mission state machine: active ⇄ paused,
// both may end in completed or cancelled, terminal states accept nothing.
var allowedTransitions = map[string]map[string]bool{
	StatusActive: {
		StatusPaused:    true,
		StatusCompleted: true,
		StatusCancelled: true,
	},
	StatusPaused: {
		StatusActive:    true,
		StatusCompleted: true,
		StatusCancelled: true,
	},
	StatusCompleted: {},
	StatusCancelled: {},
}

// validateTransition checks from → to against the state machine.
func validateTransition(from, to string) error {
	next, ok := allowedTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, from)
	}
	if !next[to] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// terminalStatus reports whether a status ends the mission.
func terminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}
