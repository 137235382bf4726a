package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/terra-clan/interview-engine/internal/interview"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondEngineError maps session errors onto statuses. Conflicts and store
// failures are 503 so clients know to retry.
func respondEngineError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, interview.ErrValidation):
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, interview.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", "session not found")
	case errors.Is(err, interview.ErrInvalidState):
		respondError(w, http.StatusConflict, "invalid_state", "session is already completed")
	case errors.Is(err, interview.ErrConflict):
		slog.Warn("session write conflict", "op", op, "error", err, "request_id", requestID(r))
		w.Header().Set("Retry-After", "1")
		respondError(w, http.StatusServiceUnavailable, "conflict", "session was modified concurrently, retry the request")
	case errors.Is(err, interview.ErrPersistence):
		slog.Error("session store failure", "op", op, "error", err, "request_id", requestID(r))
		w.Header().Set("Retry-After", "1")
		respondError(w, http.StatusServiceUnavailable, "persistence_error", "session store unavailable, retry the request")
	default:
		slog.Error("failed to "+op, "error", err, "request_id", requestID(r))
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to "+op)
	}
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Ping(r.Context()); err != nil {
		slog.Warn("readiness check failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
