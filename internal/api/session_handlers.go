package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/interview-engine/internal/models"
)

// maxRequestBody bounds request bodies; answer length itself is checked by the engine.
const maxRequestBody = 1 << 20

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	session, err := s.sessions.CreateSession(r.Context(), OwnerFromContext(r.Context()), req)
	if err != nil {
		respondEngineError(w, r, err, "create session")
		return
	}

	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters := models.ListFilters{
		Status: models.SessionStatus(query.Get("status")),
		Topic:  query.Get("topic"),
	}

	var ok bool
	if filters.Limit, ok = parseNonNegative(w, query.Get("limit"), "limit"); !ok {
		return
	}
	if filters.Offset, ok = parseNonNegative(w, query.Get("offset"), "offset"); !ok {
		return
	}

	sessions, err := s.sessions.ListSessions(r.Context(), OwnerFromContext(r.Context()), filters)
	if err != nil {
		respondEngineError(w, r, err, "list sessions")
		return
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, err := s.sessions.GetSession(r.Context(), OwnerFromContext(r.Context()), id)
	if err != nil {
		respondEngineError(w, r, err, "get session")
		return
	}

	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleSubmitAnswers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req models.SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	session, err := s.sessions.SubmitAnswers(r.Context(), OwnerFromContext(r.Context()), id, req)
	if err != nil {
		respondEngineError(w, r, err, "submit answers")
		return
	}

	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.sessions.DeleteSession(r.Context(), OwnerFromContext(r.Context()), id); err != nil {
		respondEngineError(w, r, err, "delete session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "session deleted",
		"id":      id,
	})
}

// parseNonNegative reads an optional integer query value. An empty value is 0.
func parseNonNegative(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondError(w, http.StatusBadRequest, "validation_error", name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
