package command

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/sentinelgg/sentinel/internal/link"
	"github.com/sentinelgg/sentinel/internal/metrics"
)

const (
	messageLinked        = "Your account has been linked!"
	messageInvalidCode   = "Invalid or expired code."
	messageCommLinked    = "This Discord account is already linked!"
	messageGameLinked    = "That game account is already linked to another Discord account."
	messageLinkThrottled = "You are trying to link too often. Wait a minute and try again."
)

// maxTrackedInvokers bounds the limiter map; idle limiters are pruned past it.
const maxTrackedInvokers = 1024

// Claimer is the part of the link store the link command mutates.
type Claimer interface {
	ClaimCode(ctx context.Context, code string) (uuid.UUID, error)
	AddLink(ctx context.Context, gameID uuid.UUID, commID string) error
}

// RoleGranter grants the linked role to a freshly linked account.
type RoleGranter interface {
	EnsureLinkedRole(ctx context.Context, commID string) (bool, error)
}

// LinkHandler redeems a one-time code and binds the invoker's Discord account to it.
type LinkHandler struct {
	links   Claimer
	roles   RoleGranter
	perMin  int
	mu      sync.Mutex
	limiter map[string]*rate.Limiter
}

// NewLinkHandler creates a LinkHandler. roles may be nil when no linked role is
// managed. perMinute <= 0 disables the per-invoker rate limit.
func NewLinkHandler(links Claimer, roles RoleGranter, perMinute int) *LinkHandler {
	return &LinkHandler{
		links:   links,
		roles:   roles,
		perMin:  perMinute,
		limiter: make(map[string]*rate.Limiter),
	}
}

// Definition registers /link with its code argument.
func (h *LinkHandler) Definition() Definition {
	return Definition{
		Name:        "link",
		Description: "Link your game account",
		Option:      Option{Name: "code", Description: "Your link code", Required: true},
	}
}

// Handle acknowledges ephemerally and performs the claim in the follow-up.
func (h *LinkHandler) Handle(_ context.Context, inv Invocation) Response {
	if !h.allow(inv.Invoker.ID) {
		metrics.LinkCommands.WithLabelValues("rate_limited").Inc()
		return Immediate(messageLinkThrottled, true)
	}

	return Deferred(true, func(ctx context.Context) Reply {
		content, result := h.redeem(ctx, inv.Invoker.ID, inv.Option)
		metrics.LinkCommands.WithLabelValues(result).Inc()
		return Reply{Content: content}
	})
}

func (h *LinkHandler) redeem(ctx context.Context, commID, raw string) (content, result string) {
	code := link.NormalizeCode(raw)
	if !link.ValidCode(code) {
		return messageInvalidCode, "invalid_code"
	}

	gameID, err := h.links.ClaimCode(ctx, code)
	if err != nil {
		if errors.Is(err, link.ErrCodeNotFound) {
			return messageInvalidCode, "invalid_code"
		}
		slog.Error("failed to claim link code", "commId", commID, "error", err)
		return messageServerError, "error"
	}

	if err := h.links.AddLink(ctx, gameID, commID); err != nil {
		switch {
		case errors.Is(err, link.ErrCommAlreadyLinked):
			return messageCommLinked, "already_linked"
		case errors.Is(err, link.ErrGameAlreadyLinked):
			return messageGameLinked, "already_linked"
		}
		slog.Error("failed to add link", "commId", commID, "gameId", gameID, "error", err)
		return messageServerError, "error"
	}

	slog.Info("linked accounts", "gameId", gameID, "commId", commID)

	if h.roles != nil {
		if _, err := h.roles.EnsureLinkedRole(ctx, commID); err != nil {
			// The reconciler grants it on its next pass.
			slog.Warn("failed to grant linked role", "commId", commID, "error", err)
		}
	}
	return messageLinked, "linked"
}

func (h *LinkHandler) allow(invokerID string) bool {
	if h.perMin <= 0 {
		return true
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.limiter[invokerID]
	if !ok {
		if len(h.limiter) >= maxTrackedInvokers {
			h.pruneLocked()
		}
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(h.perMin)), h.perMin)
		h.limiter[invokerID] = l
	}
	return l.Allow()
}

// pruneLocked drops limiters that have refilled completely.
func (h *LinkHandler) pruneLocked() {
	for id, l := range h.limiter {
		if l.Tokens() >= float64(h.perMin) {
			delete(h.limiter, id)
		}
	}
}
