package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mkarling/intervu/internal/fsm"
	"github.com/mkarling/intervu/internal/persistence"
	"github.com/mkarling/intervu/pkg/api"
)

// engineImpl is the transactional session runtime engine. It owns the only
// write path to sessions, turns and attempts: every public operation runs
// as one unit of work against the store, and any error inside that unit of
// work rolls it back, forces the session to FAILED in a separate commit and
// is then returned to the caller.
type engineImpl struct {
	store    persistence.Store
	graph    api.GraphProvider
	observer api.Observer

	now   func() time.Time
	newID func() string
}

// Config describes how to construct an engineImpl.
// Only used inside this package; external callers use the helper functions.
type Config struct {
	Store    persistence.Store
	Graph    api.GraphProvider
	Observer api.Observer
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	return &engineImpl{
		store:    cfg.Store,
		graph:    cfg.Graph,
		observer: obs,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// NewEngine returns an Engine backed by the given store and graph provider.
func NewEngine(store persistence.Store, graph api.GraphProvider) api.Engine {
	return NewEngineWithConfig(Config{Store: store, Graph: graph})
}

func NewInMemoryEngine(graph api.GraphProvider) api.Engine {
	return NewEngine(persistence.NewMemoryStore(), graph)
}

func NewInMemoryEngineWithObserver(graph api.GraphProvider, obs api.Observer) api.Engine {
	return NewEngineWithConfig(Config{
		Store:    persistence.NewMemoryStore(),
		Graph:    graph,
		Observer: obs,
	})
}

func NewSQLiteEngine(db *sql.DB, graph api.GraphProvider) (api.Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(store, graph), nil
}

func NewSQLiteEngineWithObserver(db *sql.DB, graph api.GraphProvider, obs api.Observer) (api.Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(Config{Store: store, Graph: graph, Observer: obs}), nil
}

func NewPostgresEngine(db *sql.DB, graph api.GraphProvider) (api.Engine, error) {
	store, err := persistence.NewPostgresStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngine(store, graph), nil
}

func NewPostgresEngineWithObserver(db *sql.DB, graph api.GraphProvider, obs api.Observer) (api.Engine, error) {
	store, err := persistence.NewPostgresStore(db)
	if err != nil {
		return nil, err
	}
	return NewEngineWithConfig(Config{Store: store, Graph: graph, Observer: obs}), nil
}

func NewRedisEngine(client *redis.Client, graph api.GraphProvider) api.Engine {
	return NewEngine(persistence.NewRedisStore(client, "intervu:"), graph)
}

func NewRedisEngineWithObserver(client *redis.Client, graph api.GraphProvider, obs api.Observer) api.Engine {
	return NewEngineWithConfig(Config{
		Store:    persistence.NewRedisStore(client, "intervu:"),
		Graph:    graph,
		Observer: obs,
	})
}

func (e *engineImpl) CreateSession(ctx context.Context, sessionID, candidateID, graphVersion string) (*api.Session, error) {
	if sessionID == "" {
		sessionID = e.newID()
	}

	sess := &api.Session{
		SessionID:      sessionID,
		CandidateID:    candidateID,
		State:          api.StateCreated,
		GraphVersion:   graphVersion,
		RuntimeVersion: 0,
		StateUpdatedAt: e.now(),
	}

	err := e.store.RunInTx(ctx, sessionID, func(tx persistence.Tx) error {
		return tx.InsertSession(sess)
	})
	if err != nil {
		if errors.Is(err, persistence.ErrDuplicateSession) {
			return nil, fmt.Errorf("%w: %s", api.ErrSessionExists, sessionID)
		}
		return nil, err
	}
	return sess, nil
}

// mutate runs fn against the freshly loaded session inside one unit of
// work. On any error from fn or from the commit it applies the uniform
// failure policy: the unit of work is already rolled back, the session is
// forced to FAILED in its own commit, and the original error is returned.
//
// A missing session is the one exception: there is nothing to fail, so the
// error is returned as is.
func (e *engineImpl) mutate(ctx context.Context, sessionID string, fn func(tx persistence.Tx, sess *api.Session) error) (*api.Session, error) {
	var result *api.Session

	err := e.store.RunInTx(ctx, sessionID, func(tx persistence.Tx) error {
		sess, err := tx.GetSession(sessionID)
		if err != nil {
			return err
		}
		if err := fn(tx, sess); err != nil {
			return err
		}
		result = sess
		return nil
	})
	if err != nil {
		if errors.Is(err, persistence.ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: %s", api.ErrSessionNotFound, sessionID)
		}
		// A racing writer committed between this unit of work's read and
		// its write; the loser is treated like any stale caller.
		if errors.Is(err, persistence.ErrVersionConflict) {
			err = fmt.Errorf("%w: session %s changed during the operation", api.ErrConcurrentModification, sessionID)
		}
		e.failSession(ctx, sessionID, err)
		return nil, err
	}
	return result, nil
}

// failSession forcibly commits a FAILED state for the session. The forced
// transition is skipped when the session is already terminal: COMPLETED and
// FAILED have no outgoing transitions, forced or otherwise.
func (e *engineImpl) failSession(ctx context.Context, sessionID string, cause error) {
	var failed *api.Session

	err := e.store.RunInTx(ctx, sessionID, func(tx persistence.Tx) error {
		sess, err := tx.GetSession(sessionID)
		if err != nil {
			return err
		}
		if fsm.IsTerminal(sess.State) {
			failed = sess
			return nil
		}
		sess.State = api.StateFailed
		sess.StateUpdatedAt = e.now()
		if err := tx.UpdateSession(sess); err != nil {
			return err
		}
		failed = sess
		return nil
	})
	if err != nil {
		// The forced commit itself failed; the original error still
		// propagates to the caller, there is nothing more to do here.
		return
	}

	e.observer.OnSessionFailed(ctx, failed, cause)
}

func checkVersion(sess *api.Session, expected int64) error {
	if sess.RuntimeVersion != expected {
		return fmt.Errorf("%w: session %s at version %d, expected %d",
			api.ErrConcurrentModification, sess.SessionID, sess.RuntimeVersion, expected)
	}
	return nil
}

// noOpenTurn verifies every turn of the session is closed.
func noOpenTurn(tx persistence.Tx, sessionID string) error {
	if _, err := tx.OpenTurn(sessionID); err == nil {
		return fmt.Errorf("%w: session %s", api.ErrOpenTurnExists, sessionID)
	} else if !errors.Is(err, persistence.ErrTurnNotFound) {
		return err
	}
	return nil
}

func (e *engineImpl) StartSession(ctx context.Context, sessionID string) (*api.Session, error) {
	sess, err := e.mutate(ctx, sessionID, func(tx persistence.Tx, sess *api.Session) error {
		if err := fsm.ValidateTransition(sess.State, api.StateRunning); err != nil {
			return err
		}

		startNodeID, err := e.graph.StartNodeID(ctx)
		if err != nil {
			return fmt.Errorf("%w: resolving start node: %v", api.ErrGraphProvider, err)
		}

		now := e.now()
		if err := tx.InsertTurn(&api.Turn{
			TurnID:      e.newID(),
			SessionID:   sessionID,
			NodeID:      startNodeID,
			TurnIndex:   0,
			PresentedAt: now,
		}); err != nil {
			return err
		}

		sess.State = api.StateRunning
		sess.CurrentNodeID = startNodeID
		sess.RuntimeVersion++
		sess.StateUpdatedAt = now
		return tx.UpdateSession(sess)
	})
	if err != nil {
		return nil, err
	}

	e.observer.OnSessionStarted(ctx, sess)
	return sess, nil
}

func (e *engineImpl) SubmitAnswer(ctx context.Context, sessionID string, payload any, isFinal bool, expectedRuntimeVersion int64) (*api.Session, error) {
	var (
		turn     *api.Turn
		attempt  *api.Attempt
		nextTurn *api.Turn
	)

	sess, err := e.mutate(ctx, sessionID, func(tx persistence.Tx, sess *api.Session) error {
		if err := checkVersion(sess, expectedRuntimeVersion); err != nil {
			return err
		}
		if !fsm.CanAcceptAnswers(sess.State) {
			return fmt.Errorf("%w: session %s in state %s is not accepting answers",
				api.ErrInvalidTransition, sessionID, sess.State)
		}

		open, err := tx.OpenTurn(sessionID)
		if err != nil {
			if errors.Is(err, persistence.ErrTurnNotFound) {
				return fmt.Errorf("%w: session %s", api.ErrNoOpenTurn, sessionID)
			}
			return err
		}
		turn = open

		count, err := tx.CountAttempts(open.TurnID)
		if err != nil {
			return err
		}

		now := e.now()
		attempt = &api.Attempt{
			AttemptID:    e.newID(),
			TurnID:       open.TurnID,
			AttemptIndex: count,
			Payload:      payload,
			IsFinal:      isFinal,
			SubmittedAt:  now,
		}
		if err := tx.InsertAttempt(attempt); err != nil {
			return err
		}

		// Drafts commit without touching session state: only terminal
		// effects increment the runtime version.
		if !isFinal {
			return nil
		}

		if err := tx.CloseTurn(open.TurnID, now); err != nil {
			return err
		}

		nextNodeID, err := e.graph.NextNode(ctx, sess.CurrentNodeID)
		if err != nil {
			return fmt.Errorf("%w: resolving node after %s: %v", api.ErrGraphProvider, sess.CurrentNodeID, err)
		}

		if nextNodeID == "" {
			// End of interview.
			if err := fsm.ValidateTransition(sess.State, api.StateCompleted); err != nil {
				return err
			}
			sess.State = api.StateCompleted
			sess.CurrentNodeID = ""
		} else {
			nextTurn = &api.Turn{
				TurnID:      e.newID(),
				SessionID:   sessionID,
				NodeID:      nextNodeID,
				TurnIndex:   open.TurnIndex + 1,
				PresentedAt: now,
			}
			if err := tx.InsertTurn(nextTurn); err != nil {
				return err
			}
			sess.CurrentNodeID = nextNodeID
		}

		sess.RuntimeVersion++
		sess.StateUpdatedAt = now
		return tx.UpdateSession(sess)
	})
	if err != nil {
		return nil, err
	}

	e.observer.OnAttemptRecorded(ctx, sess, turn, attempt)
	if nextTurn != nil {
		e.observer.OnTurnAdvanced(ctx, sess, nextTurn)
	}
	if sess.State == api.StateCompleted {
		e.observer.OnSessionCompleted(ctx, sess)
	}
	return sess, nil
}

func (e *engineImpl) PauseSession(ctx context.Context, sessionID string, expectedRuntimeVersion int64) (*api.Session, error) {
	sess, err := e.mutate(ctx, sessionID, func(tx persistence.Tx, sess *api.Session) error {
		if err := checkVersion(sess, expectedRuntimeVersion); err != nil {
			return err
		}
		if err := fsm.ValidateTransition(sess.State, api.StatePaused); err != nil {
			return err
		}

		// Pausing mid-question is disallowed: the open turn must be
		// finalized first.
		if err := noOpenTurn(tx, sessionID); err != nil {
			return err
		}

		sess.State = api.StatePaused
		sess.RuntimeVersion++
		sess.StateUpdatedAt = e.now()
		return tx.UpdateSession(sess)
	})
	if err != nil {
		return nil, err
	}

	e.observer.OnSessionPaused(ctx, sess)
	return sess, nil
}

func (e *engineImpl) ResumeSession(ctx context.Context, sessionID string, expectedRuntimeVersion int64) (*api.Session, error) {
	sess, err := e.mutate(ctx, sessionID, func(tx persistence.Tx, sess *api.Session) error {
		if err := checkVersion(sess, expectedRuntimeVersion); err != nil {
			return err
		}
		if err := fsm.ValidateTransition(sess.State, api.StateRunning); err != nil {
			return err
		}
		if err := noOpenTurn(tx, sessionID); err != nil {
			return err
		}
		if sess.CurrentNodeID == "" {
			return fmt.Errorf("%w: session %s", api.ErrNoCurrentNode, sessionID)
		}

		lastIndex, err := tx.LastTurnIndex(sessionID)
		if err != nil {
			return err
		}

		// Re-present the current node in a fresh turn.
		now := e.now()
		if err := tx.InsertTurn(&api.Turn{
			TurnID:      e.newID(),
			SessionID:   sessionID,
			NodeID:      sess.CurrentNodeID,
			TurnIndex:   lastIndex + 1,
			PresentedAt: now,
		}); err != nil {
			return err
		}

		sess.State = api.StateRunning
		sess.RuntimeVersion++
		sess.StateUpdatedAt = now
		return tx.UpdateSession(sess)
	})
	if err != nil {
		return nil, err
	}

	e.observer.OnSessionResumed(ctx, sess)
	return sess, nil
}

func (e *engineImpl) GetSession(ctx context.Context, sessionID string) (*api.Session, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, persistence.ErrSessionNotFound) {
			return nil, fmt.Errorf("%w: %s", api.ErrSessionNotFound, sessionID)
		}
		return nil, err
	}
	return sess, nil
}

func (e *engineImpl) GetCurrentQuestion(ctx context.Context, sessionID string) (*api.Question, error) {
	sess, err := e.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !fsm.CanAcceptAnswers(sess.State) {
		return nil, fmt.Errorf("%w: session %s in state %s has no current question",
			api.ErrInvalidTransition, sessionID, sess.State)
	}

	node, err := e.graph.GetNode(ctx, sess.CurrentNodeID)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving node %s: %v", api.ErrGraphProvider, sess.CurrentNodeID, err)
	}

	return &api.Question{NodeID: sess.CurrentNodeID, Node: node}, nil
}

func (e *engineImpl) ListSessions(ctx context.Context, opts api.SessionListOptions) ([]*api.Session, error) {
	return e.store.ListSessions(ctx, persistence.SessionFilter{State: opts.State})
}

func (e *engineImpl) History(ctx context.Context, sessionID string) ([]api.TurnHistory, error) {
	if _, err := e.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	turns, err := e.store.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	history := make([]api.TurnHistory, 0, len(turns))
	for _, turn := range turns {
		attempts, err := e.store.ListAttempts(ctx, turn.TurnID)
		if err != nil {
			return nil, err
		}
		history = append(history, api.TurnHistory{Turn: turn, Attempts: attempts})
	}
	return history, nil
}
