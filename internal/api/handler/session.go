package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sentinelgg/sentinel/internal/api/middleware"
	"github.com/sentinelgg/sentinel/internal/api/response"
	"github.com/sentinelgg/sentinel/internal/api/validation"
	"github.com/sentinelgg/sentinel/internal/session"
)

const (
	defaultKickBatch = 50
	maxKickBatch     = 500
)

// SessionStore is the session directory surface the proxy drives.
type SessionStore interface {
	Register(ctx context.Context, s session.Session) error
	Remove(ctx context.Context, gameID uuid.UUID) error
	DrainKicks(ctx context.Context, limit int) ([]session.Kick, error)
}

type sessionRequest struct {
	Username string `json:"username"`
	Route    string `json:"route"`
}

type kickResponse struct {
	GameID   string `json:"gameId"`
	Username string `json:"username,omitempty"`
	Message  string `json:"message"`
	IssuedAt string `json:"issuedAt"`
}

// SessionHandler handles session heartbeats and the kick queue.
type SessionHandler struct {
	store SessionStore
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(store SessionStore) *SessionHandler {
	return &SessionHandler{store: store}
}

// Put handles PUT /v1/sessions/{gameId}: registers a session or refreshes its TTL.
func (h *SessionHandler) Put(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidJSON, "Request body must be valid JSON", requestID)
		return
	}

	gameID := chi.URLParam(r, "gameId")
	fieldErrors := validation.ValidateSessionRequest(validation.SessionRequest{
		GameID:   gameID,
		Username: req.Username,
		Route:    req.Route,
	})
	if len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, response.CodeValidation, "Input validation failed", fieldErrors, requestID)
		return
	}

	err := h.store.Register(r.Context(), session.Session{
		GameID:   uuid.MustParse(gameID),
		Username: strings.TrimSpace(req.Username),
		Route:    req.Route,
	})
	if err != nil {
		middleware.Logger(r.Context()).Error("failed to register session", "gameId", gameID, "error", err)
		response.Err(w, http.StatusServiceUnavailable, response.CodeUnavailable, "Session directory unavailable", requestID)
		return
	}

	response.NoContent(w)
}

// Delete handles DELETE /v1/sessions/{gameId}.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	gameID, err := uuid.Parse(chi.URLParam(r, "gameId"))
	if err != nil {
		response.Err(w, http.StatusBadRequest, response.CodeValidation, "gameId must be a valid UUID", requestID)
		return
	}

	if err := h.store.Remove(r.Context(), gameID); err != nil {
		middleware.Logger(r.Context()).Error("failed to remove session", "gameId", gameID, "error", err)
		response.Err(w, http.StatusServiceUnavailable, response.CodeUnavailable, "Session directory unavailable", requestID)
		return
	}

	response.NoContent(w)
}

// Kicks handles GET /v1/kicks?max=N: pops pending forced disconnects.
func (h *SessionHandler) Kicks(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	batch := defaultKickBatch
	if raw := r.URL.Query().Get("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxKickBatch {
			response.Err(w, http.StatusBadRequest, response.CodeValidation, "max must be between 1 and 500", requestID)
			return
		}
		batch = n
	}

	kicks, err := h.store.DrainKicks(r.Context(), batch)
	if err != nil {
		middleware.Logger(r.Context()).Error("failed to drain kicks", "error", err)
		response.Err(w, http.StatusServiceUnavailable, response.CodeUnavailable, "Session directory unavailable", requestID)
		return
	}

	out := make([]kickResponse, 0, len(kicks))
	for _, k := range kicks {
		out = append(out, kickResponse{
			GameID:   k.GameID.String(),
			Username: k.Username,
			Message:  k.Message,
			IssuedAt: k.IssuedAt.UTC().Format(time.RFC3339),
		})
	}
	response.SuccessList(w, http.StatusOK, out, len(out), requestID)
}
