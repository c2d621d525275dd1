package middleware

import (
	"net/http"

	"github.com/sentinelgg/sentinel/internal/api/response"
)

// Recovery is middleware that recovers from panics and returns a 500 error.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				Logger(r.Context()).Error("panic recovered", "error", err, "method", r.Method, "path", r.URL.Path)
				response.Err(w, http.StatusInternalServerError, response.CodeInternal, "An unexpected error occurred", GetRequestID(r.Context()))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
