package api

import "context"

// Engine is the interview session runtime engine API.
//
// Every mutating operation executes as one atomic unit of work: either all
// of its effects (state change, ledger writes) commit together, or none do.
// All mutating operations except CreateSession and StartSession require the
// runtime version the caller last observed; a mismatch fails with
// ErrConcurrentModification.
//
// Any error raised inside an operation body rolls the unit of work back,
// forces the session to FAILED in a separate commit, and is then returned
// to the caller. FAILED is terminal: every later mutation fails with
// ErrInvalidTransition.
type Engine interface {
	// CreateSession creates a session in state CREATED with runtime
	// version 0. If sessionID is empty a new ID is generated.
	CreateSession(ctx context.Context, sessionID, candidateID, graphVersion string) (*Session, error)

	// StartSession moves a CREATED session to RUNNING, positions it at the
	// graph's start node and opens turn 0 for that node.
	StartSession(ctx context.Context, sessionID string) (*Session, error)

	// SubmitAnswer appends an attempt to the session's open turn.
	//
	// A draft attempt (isFinal == false) commits without touching session
	// state or the runtime version. A final attempt closes the open turn,
	// asks the graph provider for the next node, then either opens the next
	// turn or completes the session, and increments the runtime version.
	SubmitAnswer(ctx context.Context, sessionID string, payload any, isFinal bool, expectedRuntimeVersion int64) (*Session, error)

	// PauseSession moves a RUNNING session with no open turn to PAUSED.
	PauseSession(ctx context.Context, sessionID string, expectedRuntimeVersion int64) (*Session, error)

	// ResumeSession moves a PAUSED session back to RUNNING, re-presenting
	// the current node in a fresh turn.
	ResumeSession(ctx context.Context, sessionID string, expectedRuntimeVersion int64) (*Session, error)

	// GetSession looks up a session by ID.
	GetSession(ctx context.Context, sessionID string) (*Session, error)

	// GetCurrentQuestion resolves the content of the session's current
	// node via the graph provider. The session must be RUNNING.
	GetCurrentQuestion(ctx context.Context, sessionID string) (*Question, error)

	// ListSessions returns sessions matching the given options.
	ListSessions(ctx context.Context, opts SessionListOptions) ([]*Session, error)

	// History returns the session's full turn/attempt ledger in turn order.
	History(ctx context.Context, sessionID string) ([]TurnHistory, error)
}
