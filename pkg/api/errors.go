package api

import "errors"

// Sentinel errors returned by Engine operations. Callers should match with
// errors.Is: operations wrap these with session-specific detail.
var (
	// ErrSessionNotFound indicates the session ID does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists indicates a CreateSession with an ID already in use.
	ErrSessionExists = errors.New("session already exists")

	// ErrInvalidTransition indicates the requested state change is not an
	// edge of the session lifecycle.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrConcurrentModification indicates the caller's expected runtime
	// version no longer matches the stored session.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrNoOpenTurn indicates an answer was submitted while no turn was
	// open.
	ErrNoOpenTurn = errors.New("no open turn")

	// ErrOpenTurnExists indicates a pause or resume while a turn is still
	// open.
	ErrOpenTurnExists = errors.New("open turn exists")

	// ErrNoCurrentNode indicates a resume on a session with no position in
	// the question graph.
	ErrNoCurrentNode = errors.New("session has no current node")

	// ErrGraphProvider wraps failures from the graph provider.
	ErrGraphProvider = errors.New("graph provider error")
)
