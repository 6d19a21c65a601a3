package engine

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/mkarling/intervu/pkg/api"
)

func newSQLiteEngine(t *testing.T) api.Engine {
	t.Helper()

	db, err := sql.Open("sqlite", "file:engine_test.db?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	// The shared in-memory database lives as long as one connection is open.
	db.SetMaxOpenConns(1)

	eng, err := NewSQLiteEngine(db, testGraph(t))
	if err != nil {
		t.Fatalf("NewSQLiteEngine: %v", err)
	}
	return eng
}

// The full lifecycle exercised against the SQLite store: same semantics as
// the in-memory store, backed by real transactions.
func TestSQLiteEngineLifecycle(t *testing.T) {
	eng := newSQLiteEngine(t)
	ctx := context.Background()

	sess, err := eng.CreateSession(ctx, "", "cand-1", "v1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sess, err = eng.StartSession(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.CurrentNodeID != "N0" || sess.RuntimeVersion != 1 {
		t.Fatalf("unexpected started session: %+v", sess)
	}

	if _, err := eng.SubmitAnswer(ctx, sess.SessionID, map[string]any{"text": "draft"}, false, 1); err != nil {
		t.Fatalf("draft: %v", err)
	}
	sess, err = eng.SubmitAnswer(ctx, sess.SessionID, map[string]any{"text": "final"}, true, 1)
	if err != nil {
		t.Fatalf("final: %v", err)
	}
	if sess.CurrentNodeID != "N1" || sess.RuntimeVersion != 2 {
		t.Fatalf("unexpected advanced session: %+v", sess)
	}

	history, err := eng.History(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(history))
	}
	if len(history[0].Attempts) != 2 {
		t.Fatalf("expected 2 attempts on turn 0, got %d", len(history[0].Attempts))
	}
	// Payloads survive the round trip through the store codec.
	payload, ok := history[0].Attempts[1].Payload.(map[string]any)
	if !ok || payload["text"] != "final" {
		t.Fatalf("unexpected payload: %#v", history[0].Attempts[1].Payload)
	}
}

func TestSQLiteEngineFailurePolicy(t *testing.T) {
	eng := newSQLiteEngine(t)
	ctx := context.Background()

	sess, err := eng.CreateSession(ctx, "", "cand-1", "v1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := eng.StartSession(ctx, sess.SessionID); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err = eng.SubmitAnswer(ctx, sess.SessionID, "stale", true, 99)
	if !errors.Is(err, api.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}

	got, err := eng.GetSession(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != api.StateFailed {
		t.Fatalf("expected FAILED, got %s", got.State)
	}

	// The rolled-back attempt left no trace in the ledger.
	history, err := eng.History(ctx, sess.SessionID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || len(history[0].Attempts) != 0 {
		t.Fatalf("expected clean ledger, got %+v", history)
	}
}
