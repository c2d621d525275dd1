package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sentinelgg/sentinel/internal/link"
)

// WhoIsHandler looks up a binding by Discord mention, Discord id or game username. It never mutates.
type WhoIsHandler struct {
	links Finder
}

// NewWhoIsHandler creates a WhoIsHandler.
func NewWhoIsHandler(links Finder) *WhoIsHandler {
	return &WhoIsHandler{links: links}
}

// Definition registers /whois with its user argument.
func (h *WhoIsHandler) Definition() Definition {
	return Definition{
		Name:        "whois",
		Description: "Show which accounts are linked",
		Option:      Option{Name: "user", Description: "Game username or Discord @mention", Required: true},
	}
}

// Handle validates the argument and looks the account up in the follow-up.
func (h *WhoIsHandler) Handle(_ context.Context, inv Invocation) Response {
	input := strings.TrimSpace(inv.Option)
	if input == "" {
		return Immediate("User parameter is required.", true)
	}

	return Deferred(true, func(ctx context.Context) Reply {
		rec, err := resolveTarget(ctx, h.links, input)
		if err != nil {
			if errors.Is(err, link.ErrNotFound) {
				return Reply{Content: fmt.Sprintf("No linked account found for %s.", input)}
			}
			slog.Error("whois lookup failed", "input", input, "error", err)
			return Reply{Content: messageServerError}
		}
		return Reply{Content: describe(rec)}
	})
}

func describe(rec *link.Record) string {
	name := "unknown username"
	if rec.Username != nil && *rec.Username != "" {
		name = *rec.Username
	}
	return fmt.Sprintf("%s is linked to %s (%s).", mention(rec.CommID), name, rec.GameID)
}
