package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mkarling/intervu/internal/engine"
	"github.com/mkarling/intervu/pkg/api"
	"github.com/mkarling/intervu/pkg/graph"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	g, err := graph.Linear("v1", "N0", "N1")
	if err != nil {
		t.Fatalf("building graph: %v", err)
	}

	h := NewHandler(engine.NewInMemoryEngine(g))
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp, decoded
}

func createAndStart(t *testing.T, srv *httptest.Server) string {
	t.Helper()

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/interview-runtime/sessions", map[string]any{
		"candidate_id": "cand-1",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (%v)", resp.StatusCode, body)
	}
	sessionID := body["session_id"].(string)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/interview-runtime/sessions/"+sessionID+"/start", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: expected 200, got %d (%v)", resp.StatusCode, body)
	}
	return sessionID
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	sessionID := createAndStart(t, srv)

	// Current question is the start node.
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/interview-runtime/sessions/"+sessionID+"/current-question", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("current-question: expected 200, got %d (%v)", resp.StatusCode, body)
	}
	if body["node_id"] != "N0" {
		t.Fatalf("expected node N0, got %v", body["node_id"])
	}

	// Final answer advances to N1 and bumps the version.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/interview-runtime/sessions/"+sessionID+"/answer", map[string]any{
		"payload":                  map[string]any{"text": "my answer"},
		"is_final":                 true,
		"expected_runtime_version": 1,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("answer: expected 200, got %d (%v)", resp.StatusCode, body)
	}
	if body["status"] != "answer_recorded" {
		t.Fatalf("unexpected status: %v", body["status"])
	}
	if body["runtime_version"].(float64) != 2 {
		t.Fatalf("expected runtime_version 2, got %v", body["runtime_version"])
	}

	// Final answer on the last node completes the session.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/interview-runtime/sessions/"+sessionID+"/answer", map[string]any{
		"payload":                  map[string]any{"text": "second answer"},
		"is_final":                 true,
		"expected_runtime_version": 2,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("answer 2: expected 200, got %d (%v)", resp.StatusCode, body)
	}
	if body["session_state"] != string(api.StateCompleted) {
		t.Fatalf("expected COMPLETED, got %v", body["session_state"])
	}

	// History shows two closed turns, one attempt each.
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/interview-runtime/sessions/"+sessionID+"/history", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history: expected 200, got %d (%v)", resp.StatusCode, body)
	}
	turns := body["turns"].([]any)
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
}

func TestStaleVersionReturnsConflict(t *testing.T) {
	srv := newTestServer(t)
	sessionID := createAndStart(t, srv)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/interview-runtime/sessions/"+sessionID+"/answer", map[string]any{
		"payload":                  "late answer",
		"is_final":                 true,
		"expected_runtime_version": 0,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d (%v)", resp.StatusCode, body)
	}

	// The failure policy has moved the session to FAILED.
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/interview-runtime/sessions/"+sessionID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	if body["state"] != string(api.StateFailed) {
		t.Fatalf("expected FAILED, got %v", body["state"])
	}
}

func TestUnknownSessionReturns404(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/interview-runtime/sessions/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/interview-runtime/sessions/nope/start", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCreateValidation(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/interview-runtime/sessions", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing candidate_id, got %d", resp.StatusCode)
	}

	// Duplicate explicit ID conflicts.
	create := map[string]any{"session_id": "fixed-id", "candidate_id": "cand-1"}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/interview-runtime/sessions", create)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/interview-runtime/sessions", create)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", resp.StatusCode)
	}
}

func TestPauseWithOpenTurnIs422(t *testing.T) {
	srv := newTestServer(t)
	sessionID := createAndStart(t, srv)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/interview-runtime/sessions/"+sessionID+"/pause", map[string]any{
		"expected_runtime_version": 1,
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (%v)", resp.StatusCode, body)
	}
}

func TestListSessionsFilter(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 3; i++ {
		doJSON(t, http.MethodPost, srv.URL+"/interview-runtime/sessions", map[string]any{
			"candidate_id": fmt.Sprintf("cand-%d", i),
		})
	}
	createAndStart(t, srv)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/interview-runtime/sessions?state=RUNNING", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	sessions := body["sessions"].([]any)
	if len(sessions) != 1 {
		t.Fatalf("expected 1 RUNNING session, got %d", len(sessions))
	}
}
