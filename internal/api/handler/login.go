package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sentinelgg/sentinel/internal/api/middleware"
	"github.com/sentinelgg/sentinel/internal/api/response"
	"github.com/sentinelgg/sentinel/internal/api/validation"
	"github.com/sentinelgg/sentinel/internal/gate"
)

type loginRequest struct {
	GameID   string `json:"gameId"`
	Username string `json:"username"`
	Route    string `json:"route"`
}

type loginResponse struct {
	Allowed bool   `json:"allowed"`
	Message string `json:"message,omitempty"`
	Reason  string `json:"reason"`
}

// LoginHandler hands proxy login attempts to the login observer.
type LoginHandler struct {
	observer gate.LoginObserver
}

// NewLoginHandler creates a new LoginHandler.
func NewLoginHandler(observer gate.LoginObserver) *LoginHandler {
	return &LoginHandler{observer: observer}
}

// Create handles POST /v1/logins. A well-formed request always gets 200 with a
// decision; the proxy must treat any other status as a deny.
func (h *LoginHandler) Create(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Err(w, http.StatusBadRequest, response.CodeInvalidJSON, "Request body must be valid JSON", requestID)
		return
	}

	fieldErrors := validation.ValidateLoginRequest(validation.LoginRequest{
		GameID:   req.GameID,
		Username: req.Username,
		Route:    req.Route,
	})
	if len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, response.CodeValidation, "Input validation failed", fieldErrors, requestID)
		return
	}

	decision := h.observer.OnLogin(r.Context(), gate.Attempt{
		GameID:   uuid.MustParse(req.GameID),
		Username: strings.TrimSpace(req.Username),
		Route:    req.Route,
	})

	response.Success(w, http.StatusOK, loginResponse{
		Allowed: decision.Allowed,
		Message: decision.Message,
		Reason:  string(decision.Reason),
	}, requestID)
}
