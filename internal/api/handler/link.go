package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sentinelgg/sentinel/internal/api/middleware"
	"github.com/sentinelgg/sentinel/internal/api/response"
	"github.com/sentinelgg/sentinel/internal/api/validation"
	"github.com/sentinelgg/sentinel/internal/link"
)

// LinkStore is the link repository surface exposed to staff tooling.
type LinkStore interface {
	FindByGameID(ctx context.Context, gameID uuid.UUID) (*link.Record, error)
	FindByCommID(ctx context.Context, commID string) (*link.Record, error)
	FindByUsername(ctx context.Context, username string) (*link.Record, error)
	RemoveLinkByCommID(ctx context.Context, commID string) (bool, error)
}

type linkResponse struct {
	GameID   string  `json:"gameId"`
	CommID   string  `json:"commId"`
	Username *string `json:"username"`
}

// LinkHandler serves read-only link lookups and explicit unlinking.
type LinkHandler struct {
	links LinkStore
}

// NewLinkHandler creates a new LinkHandler.
func NewLinkHandler(links LinkStore) *LinkHandler {
	return &LinkHandler{links: links}
}

// Get handles GET /v1/links?gameId=|commId=|username=.
func (h *LinkHandler) Get(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	q := r.URL.Query()
	query := validation.LinkQuery{
		GameID:   strings.TrimSpace(q.Get("gameId")),
		CommID:   strings.TrimSpace(q.Get("commId")),
		Username: strings.TrimSpace(q.Get("username")),
	}
	if fieldErrors := validation.ValidateLinkQuery(query); len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, response.CodeValidation, "Input validation failed", fieldErrors, requestID)
		return
	}

	var (
		rec *link.Record
		err error
	)
	switch {
	case query.GameID != "":
		rec, err = h.links.FindByGameID(r.Context(), uuid.MustParse(query.GameID))
	case query.CommID != "":
		rec, err = h.links.FindByCommID(r.Context(), query.CommID)
	default:
		rec, err = h.links.FindByUsername(r.Context(), query.Username)
	}
	if err != nil {
		if errors.Is(err, link.ErrNotFound) {
			response.Err(w, http.StatusNotFound, response.CodeNotFound, "Link not found", requestID)
			return
		}
		middleware.Logger(r.Context()).Error("failed to look up link", "error", err)
		response.Err(w, http.StatusInternalServerError, response.CodeInternal, "Failed to look up link", requestID)
		return
	}

	response.Success(w, http.StatusOK, toLinkResponse(rec), requestID)
}

// Delete handles DELETE /v1/links/{commId}.
func (h *LinkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	commID := chi.URLParam(r, "commId")

	removed, err := h.links.RemoveLinkByCommID(r.Context(), commID)
	if err != nil {
		middleware.Logger(r.Context()).Error("failed to remove link", "commId", commID, "error", err)
		response.Err(w, http.StatusInternalServerError, response.CodeInternal, "Failed to remove link", requestID)
		return
	}
	if !removed {
		response.Err(w, http.StatusNotFound, response.CodeNotFound, "Link not found", requestID)
		return
	}

	middleware.Logger(r.Context()).Info("link removed by staff", "commId", commID)
	response.NoContent(w)
}

func toLinkResponse(rec *link.Record) linkResponse {
	return linkResponse{
		GameID:   rec.GameID.String(),
		CommID:   rec.CommID,
		Username: rec.Username,
	}
}
