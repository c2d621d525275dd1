package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/sentinelgg/sentinel/internal/api/response"
	"github.com/sentinelgg/sentinel/internal/auth"
)

// Authenticator verifies a raw bridge key.
type Authenticator interface {
	Authenticate(ctx context.Context, rawKey string) error
}

// Auth is middleware that checks the X-API-Key header against the bridge key.
// Missing or invalid keys return 401.
func Auth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())

			rawKey := r.Header.Get("X-API-Key")
			if rawKey == "" {
				response.Err(w, http.StatusUnauthorized, response.CodeUnauthorized, "API key is required", requestID)
				return
			}

			if err := authenticator.Authenticate(r.Context(), rawKey); err != nil {
				if errors.Is(err, auth.ErrInvalidKey) {
					Logger(r.Context()).Warn("rejected bridge request with invalid key", "remote", r.RemoteAddr)
					response.Err(w, http.StatusUnauthorized, response.CodeUnauthorized, "Invalid API key", requestID)
					return
				}
				response.Err(w, http.StatusInternalServerError, response.CodeInternal, "Authentication failed", requestID)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
