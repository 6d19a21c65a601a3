package api

import "time"

// SessionState is the lifecycle state of an interview session.
type SessionState string

const (
	StateCreated   SessionState = "CREATED"
	StateRunning   SessionState = "RUNNING"
	StatePaused    SessionState = "PAUSED"
	StateCompleted SessionState = "COMPLETED"
	StateFailed    SessionState = "FAILED"
)

// Session is the authoritative runtime record of one interview.
//
// RuntimeVersion is the optimistic concurrency token: it increments on
// every state-changing commit, and mutating operations must present the
// version they last observed. CurrentNodeID is empty when the session has
// no position in the graph (before start and after completion).
type Session struct {
	SessionID      string       `json:"session_id"`
	CandidateID    string       `json:"candidate_id"`
	State          SessionState `json:"state"`
	CurrentNodeID  string       `json:"current_node_id,omitempty"`
	GraphVersion   string       `json:"graph_version,omitempty"`
	RuntimeVersion int64        `json:"runtime_version"`
	StateUpdatedAt time.Time    `json:"state_updated_at"`
}

// Turn records one presentation of a question node to the candidate.
// Turns are append-only: a closed turn is never reopened or rewritten.
type Turn struct {
	TurnID      string     `json:"turn_id"`
	SessionID   string     `json:"session_id"`
	NodeID      string     `json:"node_id"`
	TurnIndex   int        `json:"turn_index"`
	PresentedAt time.Time  `json:"presented_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

// Open reports whether the turn is still accepting attempts.
func (t *Turn) Open() bool {
	return t.ClosedAt == nil
}

// Attempt is one answer submission within a turn. Draft attempts
// (IsFinal == false) are recorded in the ledger without advancing the
// session.
type Attempt struct {
	AttemptID    string    `json:"attempt_id"`
	TurnID       string    `json:"turn_id"`
	AttemptIndex int       `json:"attempt_index"`
	Payload      any       `json:"payload"`
	IsFinal      bool      `json:"is_final"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// Question is the resolved content of a session's current node.
type Question struct {
	NodeID string `json:"node_id"`
	Node   Node   `json:"node"`
}

// TurnHistory is one turn together with its attempts, in attempt order.
type TurnHistory struct {
	Turn     *Turn      `json:"turn"`
	Attempts []*Attempt `json:"attempts"`
}

// SessionListOptions filters ListSessions. The zero value matches all
// sessions.
type SessionListOptions struct {
	State SessionState
}
