package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/sentinelgg/sentinel/internal/api/middleware"
	"github.com/sentinelgg/sentinel/internal/api/response"
	"github.com/sentinelgg/sentinel/internal/discord"
)

// Pinger checks that a backing service answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles the GET /health endpoint.
type HealthHandler struct {
	discordChecker discord.HealthChecker
	store          Pinger
	sessions       Pinger
	version        string
}

// NewHealthHandler creates a new HealthHandler. A nil discordChecker reports
// Discord as disconnected.
func NewHealthHandler(checker discord.HealthChecker, store, sessions Pinger, version string) *HealthHandler {
	return &HealthHandler{
		discordChecker: checker,
		store:          store,
		sessions:       sessions,
		version:        version,
	}
}

type discordStatus struct {
	Connected bool   `json:"connected"`
	Guilds    int    `json:"guilds"`
	Latency   string `json:"latency,omitempty"`
}

type healthData struct {
	Status   string        `json:"status"`
	Version  string        `json:"version"`
	Store    string        `json:"store"`
	Sessions string        `json:"sessions"`
	Discord  discordStatus `json:"discord"`
}

// ServeHTTP reports "unhealthy" with 503 when the store or session directory is
// down, and "degraded" when only Discord is unavailable.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	data := healthData{
		Status:   "healthy",
		Version:  h.version,
		Store:    pingStatus(ctx, h.store),
		Sessions: pingStatus(ctx, h.sessions),
	}

	if h.discordChecker != nil {
		c := h.discordChecker.CheckConnectivity(ctx)
		data.Discord = discordStatus{Connected: c.Connected, Guilds: c.Guilds}
		if c.Connected {
			data.Discord.Latency = c.Latency.String()
		}
	}

	status := http.StatusOK
	switch {
	case data.Store != "up" || data.Sessions != "up":
		data.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	case !data.Discord.Connected:
		data.Status = "degraded"
	}

	response.Success(w, status, data, requestID)
}

func pingStatus(ctx context.Context, p Pinger) string {
	if p == nil {
		return "disabled"
	}
	if err := p.Ping(ctx); err != nil {
		return "down"
	}
	return "up"
}
