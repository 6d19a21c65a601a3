package intervu

import (
	"context"
	"errors"
	"testing"

	"github.com/mkarling/intervu/pkg/advisory"
	"github.com/mkarling/intervu/pkg/graph"
)

func linearGraph(t *testing.T, nodeIDs ...string) GraphProvider {
	t.Helper()
	g, err := graph.Linear("v1", nodeIDs...)
	if err != nil {
		t.Fatalf("building graph: %v", err)
	}
	return g
}

func TestLocalInterviewWalksGraphToCompletion(t *testing.T) {
	li := NewLocalInterview(linearGraph(t, "N0", "N1", "N2"), "cand-1")
	ctx := context.Background()

	if err := li.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if li.State() != StateRunning || li.Version() != 1 {
		t.Fatalf("unexpected state after start: %s v%d", li.State(), li.Version())
	}

	answered := 0
	for !li.Done() {
		q, _, err := li.CurrentQuestion(ctx)
		if err != nil {
			t.Fatalf("question %d: %v", answered, err)
		}
		if _, err := li.Answer(ctx, map[string]any{"node": q.NodeID}); err != nil {
			t.Fatalf("answer %d: %v", answered, err)
		}
		answered++
		if answered > 10 {
			t.Fatalf("interview did not terminate")
		}
	}

	if answered != 3 {
		t.Fatalf("expected 3 answers, got %d", answered)
	}
	if li.State() != StateCompleted {
		t.Fatalf("expected COMPLETED, got %s", li.State())
	}

	history, err := li.History(ctx)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(history))
	}
	for i, th := range history {
		if th.Turn.TurnIndex != i || th.Turn.Open() {
			t.Fatalf("unexpected turn %d: %+v", i, th.Turn)
		}
	}
}

func TestLocalInterviewDraftsKeepVersion(t *testing.T) {
	li := NewLocalInterview(linearGraph(t, "N0", "N1"), "cand-1")
	ctx := context.Background()

	if err := li.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := li.Draft(ctx, "thinking out loud"); err != nil {
		t.Fatalf("draft: %v", err)
	}
	if li.Version() != 1 {
		t.Fatalf("draft changed version to %d", li.Version())
	}

	if _, err := li.Answer(ctx, "final"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if li.Version() != 2 {
		t.Fatalf("expected version 2, got %d", li.Version())
	}
}

func TestLocalInterviewRendersFollowups(t *testing.T) {
	li := NewLocalInterview(linearGraph(t, "N0"), "cand-1")
	li.SetFollowupPolicy(advisory.FollowupPolicy{Enabled: true, MaxFollowups: 2})
	ctx := context.Background()

	if err := li.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, rendered, err := li.CurrentQuestion(ctx)
	if err != nil {
		t.Fatalf("question: %v", err)
	}
	if rendered.QuestionID != "N0" {
		t.Fatalf("unexpected question ID: %q", rendered.QuestionID)
	}
	if len(rendered.OptionalFollowups) != 2 {
		t.Fatalf("expected 2 followups, got %d", len(rendered.OptionalFollowups))
	}
}

func TestLocalInterviewSurfacesEngineFailure(t *testing.T) {
	li := NewLocalInterview(linearGraph(t, "N0", "N1"), "cand-1")
	ctx := context.Background()

	if err := li.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Pausing mid-question violates the open-turn rule and permanently
	// fails the session.
	if _, err := li.Pause(ctx); !errors.Is(err, ErrOpenTurnExists) {
		t.Fatalf("expected ErrOpenTurnExists, got %v", err)
	}
	if li.State() != StateFailed {
		t.Fatalf("expected FAILED, got %s", li.State())
	}
	if !li.Done() {
		t.Fatalf("failed interview should be done")
	}

	if _, err := li.Answer(ctx, "too late"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestRootForwarders(t *testing.T) {
	eng := NewInMemoryEngine(linearGraph(t, "N0"))
	ctx := context.Background()

	sess, err := eng.CreateSession(ctx, "", "cand-1", "v1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := GetSession(ctx, eng, sess.SessionID)
	if err != nil || got.SessionID != sess.SessionID {
		t.Fatalf("GetSession forwarder: %+v, err=%v", got, err)
	}

	all, err := ListSessions(ctx, eng, SessionListOptions{})
	if err != nil || len(all) != 1 {
		t.Fatalf("ListSessions forwarder: %d sessions, err=%v", len(all), err)
	}

	if _, err := History(ctx, eng, sess.SessionID); err != nil {
		t.Fatalf("History forwarder: %v", err)
	}
}
