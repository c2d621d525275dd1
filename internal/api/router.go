package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinelgg/sentinel/internal/api/handler"
	"github.com/sentinelgg/sentinel/internal/api/middleware"
	"github.com/sentinelgg/sentinel/internal/discord"
	"github.com/sentinelgg/sentinel/internal/gate"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Authenticator  middleware.Authenticator
	Observer       gate.LoginObserver
	Sessions       handler.SessionStore
	Links          handler.LinkStore
	DiscordChecker discord.HealthChecker
	StorePinger    handler.Pinger
	SessionPinger  handler.Pinger
	Gatherer       prometheus.Gatherer
	Version        string
	OpenAPISpec    []byte
}

// NewRouter creates and configures a Chi router with all middleware and routes.
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(chimiddleware.Logger)

	healthHandler := handler.NewHealthHandler(deps.DiscordChecker, deps.StorePinger, deps.SessionPinger, deps.Version)
	r.Get("/health", healthHandler.ServeHTTP)

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	if len(deps.OpenAPISpec) > 0 {
		openapiHandler := handler.NewOpenAPIHandler(deps.OpenAPISpec)
		r.Get("/openapi.json", openapiHandler.ServeHTTP)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(deps.Authenticator))

		if deps.Observer != nil {
			loginHandler := handler.NewLoginHandler(deps.Observer)
			r.Post("/logins", loginHandler.Create)
		}

		if deps.Sessions != nil {
			sessionHandler := handler.NewSessionHandler(deps.Sessions)
			r.Put("/sessions/{gameId}", sessionHandler.Put)
			r.Delete("/sessions/{gameId}", sessionHandler.Delete)
			r.Get("/kicks", sessionHandler.Kicks)
		}

		if deps.Links != nil {
			linkHandler := handler.NewLinkHandler(deps.Links)
			r.Get("/links", linkHandler.Get)
			r.Delete("/links/{commId}", linkHandler.Delete)
		}
	})

	return r
}
