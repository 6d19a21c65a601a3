package intervu

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/mkarling/intervu/internal/engine"
	"github.com/mkarling/intervu/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	Session              = api.Session
	SessionState         = api.SessionState
	Turn                 = api.Turn
	Attempt              = api.Attempt
	Question             = api.Question
	TurnHistory          = api.TurnHistory
	SessionListOptions   = api.SessionListOptions
	GraphProvider        = api.GraphProvider
	Node                 = api.Node
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export session states for convenience.

const (
	StateCreated   = api.StateCreated
	StateRunning   = api.StateRunning
	StatePaused    = api.StatePaused
	StateCompleted = api.StateCompleted
	StateFailed    = api.StateFailed
)

// Re-export the engine error taxonomy; match with errors.Is.

var (
	ErrSessionNotFound        = api.ErrSessionNotFound
	ErrSessionExists          = api.ErrSessionExists
	ErrInvalidTransition      = api.ErrInvalidTransition
	ErrConcurrentModification = api.ErrConcurrentModification
	ErrNoOpenTurn             = api.ErrNoOpenTurn
	ErrOpenTurnExists         = api.ErrOpenTurnExists
	ErrNoCurrentNode          = api.ErrNoCurrentNode
	ErrGraphProvider          = api.ErrGraphProvider
)

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory storage.
func NewInMemoryEngine(graph GraphProvider) Engine {
	return engine.NewInMemoryEngine(graph)
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given Observer.
func NewInMemoryEngineWithObserver(graph GraphProvider, obs Observer) Engine {
	return engine.NewInMemoryEngineWithObserver(graph, obs)
}

// NewSQLiteEngine returns an Engine that persists the session ledger in a
// SQLite database.
func NewSQLiteEngine(db *sql.DB, graph GraphProvider) (Engine, error) {
	return engine.NewSQLiteEngine(db, graph)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, graph GraphProvider, obs Observer) (Engine, error) {
	return engine.NewSQLiteEngineWithObserver(db, graph, obs)
}

// NewPostgresEngine returns an Engine that persists the ledger in PostgreSQL.
func NewPostgresEngine(db *sql.DB, graph GraphProvider) (Engine, error) {
	return engine.NewPostgresEngine(db, graph)
}

// NewPostgresEngineWithObserver returns a Postgres-backed Engine with the given Observer.
func NewPostgresEngineWithObserver(db *sql.DB, graph GraphProvider, obs Observer) (Engine, error) {
	return engine.NewPostgresEngineWithObserver(db, graph, obs)
}

// NewRedisEngine returns an Engine that persists the ledger in Redis.
func NewRedisEngine(client *redis.Client, graph GraphProvider) Engine {
	return engine.NewRedisEngine(client, graph)
}

// NewRedisEngineWithObserver returns a Redis-backed Engine with the given Observer.
func NewRedisEngineWithObserver(client *redis.Client, graph GraphProvider, obs Observer) Engine {
	return engine.NewRedisEngineWithObserver(client, graph, obs)
}

// Convenience helpers that just forward to the underlying Engine.

// GetSession fetches a session by ID.
func GetSession(ctx context.Context, eng Engine, sessionID string) (*Session, error) {
	return eng.GetSession(ctx, sessionID)
}

// ListSessions lists sessions according to the given options.
func ListSessions(ctx context.Context, eng Engine, opts SessionListOptions) ([]*Session, error) {
	return eng.ListSessions(ctx, opts)
}

// History returns the session's full turn/attempt ledger.
func History(ctx context.Context, eng Engine, sessionID string) ([]TurnHistory, error) {
	return eng.History(ctx, sessionID)
}
