package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/mkarling/intervu/pkg/api"
)

var (
	// ErrSessionNotFound is returned when a session record does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTurnNotFound is returned when a turn record does not exist,
	// including the "no open turn" case.
	ErrTurnNotFound = errors.New("turn not found")

	// ErrDuplicateSession is returned when inserting a session whose ID
	// already exists.
	ErrDuplicateSession = errors.New("session already exists")

	// ErrVersionConflict is returned when the session row changed between
	// the transaction's read and its guarded write.
	ErrVersionConflict = errors.New("session version conflict")
)

// SessionFilter selects sessions from the store.
// A zero State means "no filter".
type SessionFilter struct {
	State api.SessionState
}

// Tx is the set of ledger operations available inside one unit of work.
//
// All writes staged through a Tx become visible atomically when the
// enclosing RunInTx call returns nil, and are discarded when it returns an
// error. Implementations must make the session version compare-then-write
// part of the same transaction, not two round trips: UpdateSession after a
// GetSession in the same Tx must fail with ErrVersionConflict when another
// writer committed the session in between.
type Tx interface {
	GetSession(id string) (*api.Session, error)
	InsertSession(s *api.Session) error
	UpdateSession(s *api.Session) error

	// OpenTurn returns the session's single turn with a nil ClosedAt,
	// or ErrTurnNotFound when every turn is closed.
	OpenTurn(sessionID string) (*api.Turn, error)

	// LastTurnIndex returns the highest turn index recorded for the
	// session, or -1 when the session has no turns.
	LastTurnIndex(sessionID string) (int, error)

	InsertTurn(t *api.Turn) error
	CloseTurn(turnID string, at time.Time) error

	CountAttempts(turnID string) (int, error)
	InsertAttempt(a *api.Attempt) error
}

// Store persists sessions, turns and attempts.
//
// RunInTx executes fn inside one atomic unit of work scoped to sessionID;
// per-session serializability is all the engine requires, so stores may
// (and the Redis store does) scope their transaction to that one session.
type Store interface {
	RunInTx(ctx context.Context, sessionID string, fn func(tx Tx) error) error

	// Read-only accessors outside any transaction.
	GetSession(ctx context.Context, id string) (*api.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]*api.Session, error)
	ListTurns(ctx context.Context, sessionID string) ([]*api.Turn, error)
	ListAttempts(ctx context.Context, turnID string) ([]*api.Attempt, error)
}
