package api

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Observer receives callbacks from the runtime engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay engine operations. Callbacks fire after
// the corresponding unit of work has committed.
type Observer interface {
	// OnSessionStarted is called when a session transitions CREATED -> RUNNING.
	OnSessionStarted(ctx context.Context, s *Session)

	// OnAttemptRecorded is called for every committed attempt, draft or final.
	OnAttemptRecorded(ctx context.Context, s *Session, turn *Turn, attempt *Attempt)

	// OnTurnAdvanced is called when a final attempt opens the next turn.
	OnTurnAdvanced(ctx context.Context, s *Session, turn *Turn)

	// OnSessionCompleted is called when the graph is exhausted and the
	// session reaches COMPLETED.
	OnSessionCompleted(ctx context.Context, s *Session)

	// OnSessionPaused is called when a session transitions to PAUSED.
	OnSessionPaused(ctx context.Context, s *Session)

	// OnSessionResumed is called when a session transitions PAUSED -> RUNNING.
	OnSessionResumed(ctx context.Context, s *Session)

	// OnSessionFailed is called when the failure policy forces a session
	// to FAILED. err is the original operation error.
	OnSessionFailed(ctx context.Context, s *Session, err error)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnSessionStarted(ctx context.Context, s *Session)                       {}
func (NoopObserver) OnAttemptRecorded(ctx context.Context, s *Session, t *Turn, a *Attempt) {}
func (NoopObserver) OnTurnAdvanced(ctx context.Context, s *Session, t *Turn)                {}
func (NoopObserver) OnSessionCompleted(ctx context.Context, s *Session)                     {}
func (NoopObserver) OnSessionPaused(ctx context.Context, s *Session)                        {}
func (NoopObserver) OnSessionResumed(ctx context.Context, s *Session)                       {}
func (NoopObserver) OnSessionFailed(ctx context.Context, s *Session, err error)             {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnSessionStarted(ctx context.Context, s *Session) {
	for _, o := range c.observers {
		o.OnSessionStarted(ctx, s)
	}
}

func (c *CompositeObserver) OnAttemptRecorded(ctx context.Context, s *Session, t *Turn, a *Attempt) {
	for _, o := range c.observers {
		o.OnAttemptRecorded(ctx, s, t, a)
	}
}

func (c *CompositeObserver) OnTurnAdvanced(ctx context.Context, s *Session, t *Turn) {
	for _, o := range c.observers {
		o.OnTurnAdvanced(ctx, s, t)
	}
}

func (c *CompositeObserver) OnSessionCompleted(ctx context.Context, s *Session) {
	for _, o := range c.observers {
		o.OnSessionCompleted(ctx, s)
	}
}

func (c *CompositeObserver) OnSessionPaused(ctx context.Context, s *Session) {
	for _, o := range c.observers {
		o.OnSessionPaused(ctx, s)
	}
}

func (c *CompositeObserver) OnSessionResumed(ctx context.Context, s *Session) {
	for _, o := range c.observers {
		o.OnSessionResumed(ctx, s)
	}
}

func (c *CompositeObserver) OnSessionFailed(ctx context.Context, s *Session, err error) {
	for _, o := range c.observers {
		o.OnSessionFailed(ctx, s, err)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs session lifecycle events
// using the provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnSessionStarted(ctx context.Context, s *Session) {
	o.Logger.InfoContext(ctx, "session_started",
		slog.String("session_id", s.SessionID),
		slog.String("node_id", s.CurrentNodeID),
	)
}

func (o *LoggingObserver) OnAttemptRecorded(ctx context.Context, s *Session, t *Turn, a *Attempt) {
	o.Logger.DebugContext(ctx, "attempt_recorded",
		slog.String("session_id", s.SessionID),
		slog.String("turn_id", t.TurnID),
		slog.Int("turn_index", t.TurnIndex),
		slog.Int("attempt_index", a.AttemptIndex),
		slog.Bool("is_final", a.IsFinal),
	)
}

func (o *LoggingObserver) OnTurnAdvanced(ctx context.Context, s *Session, t *Turn) {
	o.Logger.InfoContext(ctx, "turn_advanced",
		slog.String("session_id", s.SessionID),
		slog.String("node_id", t.NodeID),
		slog.Int("turn_index", t.TurnIndex),
	)
}

func (o *LoggingObserver) OnSessionCompleted(ctx context.Context, s *Session) {
	o.Logger.InfoContext(ctx, "session_completed",
		slog.String("session_id", s.SessionID),
		slog.Int64("runtime_version", s.RuntimeVersion),
	)
}

func (o *LoggingObserver) OnSessionPaused(ctx context.Context, s *Session) {
	o.Logger.InfoContext(ctx, "session_paused",
		slog.String("session_id", s.SessionID),
	)
}

func (o *LoggingObserver) OnSessionResumed(ctx context.Context, s *Session) {
	o.Logger.InfoContext(ctx, "session_resumed",
		slog.String("session_id", s.SessionID),
		slog.String("node_id", s.CurrentNodeID),
	)
}

func (o *LoggingObserver) OnSessionFailed(ctx context.Context, s *Session, err error) {
	o.Logger.ErrorContext(ctx, "session_failed",
		slog.String("session_id", s.SessionID),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters for session and ledger activity.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	sessionsStarted   atomic.Int64
	sessionsCompleted atomic.Int64
	sessionsFailed    atomic.Int64
	attemptsRecorded  atomic.Int64
	turnsAdvanced     atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	SessionsStarted   int64
	SessionsCompleted int64
	SessionsFailed    int64
	SessionsInFlight  int64

	AttemptsRecorded int64
	TurnsAdvanced    int64
}

func (m *BasicMetrics) OnSessionStarted(ctx context.Context, s *Session) {
	m.sessionsStarted.Add(1)
}

func (m *BasicMetrics) OnSessionCompleted(ctx context.Context, s *Session) {
	m.sessionsCompleted.Add(1)
}

func (m *BasicMetrics) OnSessionFailed(ctx context.Context, s *Session, err error) {
	m.sessionsFailed.Add(1)
}

func (m *BasicMetrics) OnAttemptRecorded(ctx context.Context, s *Session, t *Turn, a *Attempt) {
	m.attemptsRecorded.Add(1)
}

func (m *BasicMetrics) OnTurnAdvanced(ctx context.Context, s *Session, t *Turn) {
	m.turnsAdvanced.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.sessionsStarted.Load()
	completed := m.sessionsCompleted.Load()
	failed := m.sessionsFailed.Load()

	return BasicMetricsSnapshot{
		SessionsStarted:   started,
		SessionsCompleted: completed,
		SessionsFailed:    failed,
		SessionsInFlight:  started - completed - failed,
		AttemptsRecorded:  m.attemptsRecorded.Load(),
		TurnsAdvanced:     m.turnsAdvanced.Load(),
	}
}
