// Package validation checks bridge request bodies and query parameters.
package validation

import (
	"strings"

	"github.com/google/uuid"
)

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// maxUsernameLen covers game usernames with room to spare.
const maxUsernameLen = 32

// maxRouteLen bounds the virtual host string the proxy reports.
const maxRouteLen = 255

// LoginRequest mirrors the fields needed for login validation.
type LoginRequest struct {
	GameID   string
	Username string
	Route    string
}

// ValidateLoginRequest validates a login attempt reported by the proxy.
func ValidateLoginRequest(req LoginRequest) []FieldError {
	var errs []FieldError
	errs = appendGameID(errs, req.GameID)
	errs = appendUsername(errs, req.Username)
	if len(req.Route) > maxRouteLen {
		errs = append(errs, FieldError{Field: "route", Message: "route must be at most 255 characters"})
	}
	return errs
}

// SessionRequest mirrors the fields needed for session validation.
type SessionRequest struct {
	GameID   string
	Username string
	Route    string
}

// ValidateSessionRequest validates a session registration or heartbeat.
func ValidateSessionRequest(req SessionRequest) []FieldError {
	return ValidateLoginRequest(LoginRequest(req))
}

// LinkQuery mirrors the lookup parameters of GET /v1/links.
type LinkQuery struct {
	GameID   string
	CommID   string
	Username string
}

// ValidateLinkQuery requires exactly one lookup key.
func ValidateLinkQuery(q LinkQuery) []FieldError {
	set := 0
	for _, v := range []string{q.GameID, q.CommID, q.Username} {
		if strings.TrimSpace(v) != "" {
			set++
		}
	}
	if set != 1 {
		return []FieldError{{Field: "query", Message: "exactly one of gameId, commId or username is required"}}
	}
	if q.GameID != "" {
		return appendGameID(nil, q.GameID)
	}
	return nil
}

func appendGameID(errs []FieldError, gameID string) []FieldError {
	if gameID == "" {
		return append(errs, FieldError{Field: "gameId", Message: "gameId is required"})
	}
	if _, err := uuid.Parse(gameID); err != nil {
		return append(errs, FieldError{Field: "gameId", Message: "gameId must be a valid UUID"})
	}
	return errs
}

func appendUsername(errs []FieldError, username string) []FieldError {
	name := strings.TrimSpace(username)
	if name == "" {
		return append(errs, FieldError{Field: "username", Message: "username is required"})
	}
	if len(name) > maxUsernameLen {
		return append(errs, FieldError{Field: "username", Message: "username must be at most 32 characters"})
	}
	return errs
}
