// Package httpapi exposes the runtime engine over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mkarling/intervu/pkg/api"
)

// Handler serves the interview runtime endpoints.
type Handler struct {
	engine api.Engine
}

// NewHandler creates a Handler backed by the given engine.
func NewHandler(engine api.Engine) *Handler {
	return &Handler{engine: engine}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// engineError maps engine errors onto HTTP status codes and writes the
// response. Ledger and transition violations are 422: the request was
// well-formed but the session cannot accept it.
func engineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, api.ErrSessionNotFound):
		Error(w, http.StatusNotFound, "session not found")
	case errors.Is(err, api.ErrSessionExists):
		Error(w, http.StatusConflict, "session already exists")
	case errors.Is(err, api.ErrConcurrentModification):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, api.ErrInvalidTransition),
		errors.Is(err, api.ErrNoOpenTurn),
		errors.Is(err, api.ErrOpenTurnExists),
		errors.Is(err, api.ErrNoCurrentNode):
		Error(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, api.ErrGraphProvider):
		Error(w, http.StatusBadGateway, err.Error())
	default:
		Error(w, http.StatusInternalServerError, err.Error())
	}
}

// RegisterRoutes registers the interview runtime routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/interview-runtime/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Get("/", h.ListSessions)
		r.Get("/{sessionID}", h.GetSession)
		r.Post("/{sessionID}/start", h.StartSession)
		r.Get("/{sessionID}/current-question", h.GetCurrentQuestion)
		r.Post("/{sessionID}/answer", h.SubmitAnswer)
		r.Post("/{sessionID}/pause", h.PauseSession)
		r.Post("/{sessionID}/resume", h.ResumeSession)
		r.Get("/{sessionID}/history", h.History)
	})
}

type createSessionRequest struct {
	SessionID    string `json:"session_id"`
	CandidateID  string `json:"candidate_id"`
	GraphVersion string `json:"graph_version"`
}

// CreateSession creates a new session in state CREATED.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CandidateID == "" {
		Error(w, http.StatusBadRequest, "candidate_id is required")
		return
	}

	sess, err := h.engine.CreateSession(r.Context(), req.SessionID, req.CandidateID, req.GraphVersion)
	if err != nil {
		engineError(w, err)
		return
	}

	JSON(w, http.StatusCreated, map[string]any{
		"status":          "created",
		"session_id":      sess.SessionID,
		"runtime_version": sess.RuntimeVersion,
	})
}

// StartSession moves a CREATED session to RUNNING and opens turn 0.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.engine.StartSession(r.Context(), sessionID)
	if err != nil {
		engineError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"status":          "started",
		"session_id":      sess.SessionID,
		"runtime_version": sess.RuntimeVersion,
	})
}

// GetSession returns the session record.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.engine.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusOK, sess)
}

// GetCurrentQuestion resolves the session's current node content.
func (h *Handler) GetCurrentQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.engine.GetCurrentQuestion(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		engineError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"node_id":  q.NodeID,
		"question": q.Node,
	})
}

type submitAnswerRequest struct {
	Payload                json.RawMessage `json:"payload"`
	IsFinal                bool            `json:"is_final"`
	ExpectedRuntimeVersion int64           `json:"expected_runtime_version"`
}

// SubmitAnswer appends an attempt to the session's open turn.
func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req submitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var payload any
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &payload); err != nil {
			Error(w, http.StatusBadRequest, "invalid payload")
			return
		}
	}

	sess, err := h.engine.SubmitAnswer(r.Context(), sessionID, payload, req.IsFinal, req.ExpectedRuntimeVersion)
	if err != nil {
		engineError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"status":          "answer_recorded",
		"session_state":   sess.State,
		"runtime_version": sess.RuntimeVersion,
	})
}

type versionedRequest struct {
	ExpectedRuntimeVersion int64 `json:"expected_runtime_version"`
}

// PauseSession moves a RUNNING session with no open turn to PAUSED.
func (h *Handler) PauseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req versionedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.engine.PauseSession(r.Context(), sessionID, req.ExpectedRuntimeVersion)
	if err != nil {
		engineError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"status":          "paused",
		"runtime_version": sess.RuntimeVersion,
	})
}

// ResumeSession moves a PAUSED session back to RUNNING.
func (h *Handler) ResumeSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req versionedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.engine.ResumeSession(r.Context(), sessionID, req.ExpectedRuntimeVersion)
	if err != nil {
		engineError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"status":          "resumed",
		"runtime_version": sess.RuntimeVersion,
	})
}

// ListSessions returns sessions, optionally filtered by ?state=.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	opts := api.SessionListOptions{
		State: api.SessionState(r.URL.Query().Get("state")),
	}

	sessions, err := h.engine.ListSessions(r.Context(), opts)
	if err != nil {
		engineError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// History returns the session's full turn/attempt ledger.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.engine.History(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		engineError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{"turns": history})
}
