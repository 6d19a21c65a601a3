package intervu

import (
	"context"
	"sync"

	"github.com/mkarling/intervu/pkg/advisory"
)

// LocalInterview bundles an in-memory Engine with a graph provider and keeps
// track of the runtime version on behalf of the caller, so a single-process
// tool can walk a session from start to completion without version
// bookkeeping.
//
// Typical usage:
//
//	li := intervu.NewLocalInterview(g, "candidate-1")
//	if err := li.Start(ctx); err != nil { ... }
//	for !li.Done() {
//	    q, _ := li.CurrentQuestion(ctx)
//	    ...
//	    _, _ = li.Answer(ctx, payload)
//	}
//
// LocalInterview is safe for concurrent use, but it drives exactly one
// session; concurrent callers share that session's version and will trip the
// engine's concurrency check just as remote callers would.
type LocalInterview struct {
	// Engine is the in-memory engine used by this interview.
	Engine Engine

	candidateID string
	policy      advisory.FollowupPolicy

	mu        sync.Mutex
	sessionID string
	version   int64
	state     SessionState
}

// NewLocalInterview constructs a LocalInterview for one candidate backed by
// an in-memory engine.
func NewLocalInterview(graph GraphProvider, candidateID string) *LocalInterview {
	return &LocalInterview{
		Engine:      NewInMemoryEngine(graph),
		candidateID: candidateID,
	}
}

// NewLocalInterviewWithEngine constructs a LocalInterview on a caller-built
// engine, for durable backends or custom observers.
func NewLocalInterviewWithEngine(eng Engine, candidateID string) *LocalInterview {
	return &LocalInterview{Engine: eng, candidateID: candidateID}
}

// SetFollowupPolicy configures the follow-up prompts attached by
// CurrentQuestion.
func (li *LocalInterview) SetFollowupPolicy(policy advisory.FollowupPolicy) {
	li.mu.Lock()
	defer li.mu.Unlock()
	li.policy = policy
}

func (li *LocalInterview) track(sess *Session) {
	li.sessionID = sess.SessionID
	li.version = sess.RuntimeVersion
	li.state = sess.State
}

// Start creates and starts the session.
func (li *LocalInterview) Start(ctx context.Context) error {
	li.mu.Lock()
	defer li.mu.Unlock()

	sess, err := li.Engine.CreateSession(ctx, "", li.candidateID, "")
	if err != nil {
		return err
	}
	sess, err = li.Engine.StartSession(ctx, sess.SessionID)
	if err != nil {
		return err
	}
	li.track(sess)
	return nil
}

// SessionID returns the underlying session's ID. Empty before Start.
func (li *LocalInterview) SessionID() string {
	li.mu.Lock()
	defer li.mu.Unlock()
	return li.sessionID
}

// Version returns the runtime version the interview last observed.
func (li *LocalInterview) Version() int64 {
	li.mu.Lock()
	defer li.mu.Unlock()
	return li.version
}

// State returns the session state after the last operation.
func (li *LocalInterview) State() SessionState {
	li.mu.Lock()
	defer li.mu.Unlock()
	return li.state
}

// Done reports whether the session has reached a terminal state.
func (li *LocalInterview) Done() bool {
	s := li.State()
	return s == StateCompleted || s == StateFailed
}

// CurrentQuestion resolves the current node and renders it for delivery,
// including any follow-up prompts allowed by the configured policy.
func (li *LocalInterview) CurrentQuestion(ctx context.Context) (*Question, advisory.RenderedQuestion, error) {
	li.mu.Lock()
	sessionID := li.sessionID
	policy := li.policy
	li.mu.Unlock()

	q, err := li.Engine.GetCurrentQuestion(ctx, sessionID)
	if err != nil {
		return nil, advisory.RenderedQuestion{}, err
	}
	rendered := advisory.RenderQuestion(q.NodeID, q.Node.PromptID, advisory.FollowupTemplateIDs(), policy)
	return q, rendered, nil
}

// Draft records a non-final attempt on the open turn. The runtime version
// does not change.
func (li *LocalInterview) Draft(ctx context.Context, payload any) (*Session, error) {
	return li.submit(ctx, payload, false)
}

// Answer records a final attempt, advancing the session to the next node or
// to COMPLETED.
func (li *LocalInterview) Answer(ctx context.Context, payload any) (*Session, error) {
	return li.submit(ctx, payload, true)
}

func (li *LocalInterview) submit(ctx context.Context, payload any, isFinal bool) (*Session, error) {
	li.mu.Lock()
	defer li.mu.Unlock()

	sess, err := li.Engine.SubmitAnswer(ctx, li.sessionID, payload, isFinal, li.version)
	if err != nil {
		li.markFailed(ctx)
		return nil, err
	}
	li.track(sess)
	return sess, nil
}

// Pause moves the session to PAUSED. It fails while a turn is open.
func (li *LocalInterview) Pause(ctx context.Context) (*Session, error) {
	li.mu.Lock()
	defer li.mu.Unlock()

	sess, err := li.Engine.PauseSession(ctx, li.sessionID, li.version)
	if err != nil {
		li.markFailed(ctx)
		return nil, err
	}
	li.track(sess)
	return sess, nil
}

// Resume moves a PAUSED session back to RUNNING.
func (li *LocalInterview) Resume(ctx context.Context) (*Session, error) {
	li.mu.Lock()
	defer li.mu.Unlock()

	sess, err := li.Engine.ResumeSession(ctx, li.sessionID, li.version)
	if err != nil {
		li.markFailed(ctx)
		return nil, err
	}
	li.track(sess)
	return sess, nil
}

// markFailed refreshes the cached state after a failed operation; the engine
// has usually forced the session to FAILED by then. Callers hold li.mu.
func (li *LocalInterview) markFailed(ctx context.Context) {
	if li.sessionID == "" {
		return
	}
	if sess, err := li.Engine.GetSession(ctx, li.sessionID); err == nil {
		li.track(sess)
	}
}

// History returns the session's turn/attempt ledger.
func (li *LocalInterview) History(ctx context.Context) ([]TurnHistory, error) {
	return li.Engine.History(ctx, li.SessionID())
}
