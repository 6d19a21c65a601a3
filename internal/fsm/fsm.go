// Package fsm is the pure session lifecycle state machine.
//
// It has no side effects, no persistence access and no graph-provider
// access: every function is a deterministic predicate over session states.
// Keeping transition legality here guarantees the runtime engine can never
// reach a state outside the transition table.
package fsm

import (
	"fmt"

	"github.com/mkarling/intervu/pkg/api"
)

// allowedTransitions is the exhaustive transition table.
// COMPLETED and FAILED are terminal: they have no outgoing transitions.
var allowedTransitions = map[api.SessionState][]api.SessionState{
	api.StateCreated:   {api.StateRunning},
	api.StateRunning:   {api.StatePaused, api.StateCompleted, api.StateFailed},
	api.StatePaused:    {api.StateRunning, api.StateFailed},
	api.StateCompleted: {},
	api.StateFailed:    {},
}

// ValidateTransition returns api.ErrInvalidTransition (wrapped with the
// offending states) when to is not reachable from from. A state outside
// the table is treated as having no outgoing transitions.
func ValidateTransition(from, to api.SessionState) error {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", api.ErrInvalidTransition, from, to)
}

// IsTerminal reports whether state has no outgoing transitions.
func IsTerminal(state api.SessionState) bool {
	return state == api.StateCompleted || state == api.StateFailed
}

// CanAcceptAnswers reports whether a session in state may record attempts.
func CanAcceptAnswers(state api.SessionState) bool {
	return state == api.StateRunning
}

// CanPause reports whether a session in state may be paused.
func CanPause(state api.SessionState) bool {
	return state == api.StateRunning
}

// CanResume reports whether a session in state may be resumed.
func CanResume(state api.SessionState) bool {
	return state == api.StatePaused
}
