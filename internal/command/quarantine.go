package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/sentinelgg/sentinel/internal/link"
	"github.com/sentinelgg/sentinel/internal/membership"
	"github.com/sentinelgg/sentinel/internal/roster"
	"github.com/sentinelgg/sentinel/internal/session"
)

const (
	messageQuarantineUnset    = "Quarantine role is not configured."
	messageNoPermission       = "You don't have permission to use this command."
	messageUserRequired       = "User parameter is required."
	messageQuarantineNotFound = "Quarantine role not found in any guild."
	messageMemberNotFound     = "User not found in Discord server."
	messageToggleFailed       = "Failed to update the quarantine role."
)

// Quarantiner toggles the quarantine role.
type Quarantiner interface {
	QuarantineRoleID() string
	ToggleQuarantine(ctx context.Context, commID string) (bool, *roster.Member, error)
}

// SessionDirectory finds and terminates active game sessions.
type SessionDirectory interface {
	Find(ctx context.Context, gameID uuid.UUID) (*session.Session, error)
	Disconnect(ctx context.Context, gameID uuid.UUID, message string) error
}

// QuarantineHandler toggles the quarantine role on a member. Newly quarantined
// members with an active session are disconnected at once.
type QuarantineHandler struct {
	roles      Quarantiner
	links      Finder
	sessions   SessionDirectory
	staffRoles []string
	message    string
}

// NewQuarantineHandler creates a QuarantineHandler. sessions may be nil, in
// which case quarantine only takes effect on the next login.
func NewQuarantineHandler(roles Quarantiner, links Finder, sessions SessionDirectory, staffRoles []string, quarantineMessage string) *QuarantineHandler {
	return &QuarantineHandler{
		roles:      roles,
		links:      links,
		sessions:   sessions,
		staffRoles: staffRoles,
		message:    quarantineMessage,
	}
}

// Definition registers /quarantine with its user argument.
func (h *QuarantineHandler) Definition() Definition {
	return Definition{
		Name:        "quarantine",
		Description: "Toggle quarantine role for a user",
		Option:      Option{Name: "user", Description: "Game username or Discord @mention", Required: true},
	}
}

// Handle rejects unconfigured or unauthorized use immediately, before any mutation.
func (h *QuarantineHandler) Handle(_ context.Context, inv Invocation) Response {
	if h.roles.QuarantineRoleID() == "" {
		return Immediate(messageQuarantineUnset, true)
	}
	if !IsStaff(inv.Invoker.Roles, h.staffRoles) {
		slog.Warn("quarantine denied: invoker is not staff", "invoker", inv.Invoker.ID)
		return Immediate(messageNoPermission, true)
	}
	input := strings.TrimSpace(inv.Option)
	if input == "" {
		return Immediate(messageUserRequired, true)
	}

	return Deferred(false, func(ctx context.Context) Reply {
		return Reply{Content: h.toggle(ctx, inv.Invoker, input)}
	})
}

func (h *QuarantineHandler) toggle(ctx context.Context, invoker Invoker, input string) string {
	commID, ok := parseUserRef(input)
	if !ok {
		rec, err := h.links.FindByUsername(ctx, input)
		if err != nil {
			if errors.Is(err, link.ErrNotFound) {
				return fmt.Sprintf("No linked account found for game username: %s", input)
			}
			slog.Error("quarantine: username lookup failed", "input", input, "error", err)
			return messageServerError
		}
		commID = rec.CommID
	}

	applied, member, err := h.roles.ToggleQuarantine(ctx, commID)
	if err != nil {
		switch {
		case errors.Is(err, membership.ErrRoleNotFound):
			return messageQuarantineNotFound
		case errors.Is(err, roster.ErrMemberNotFound):
			return messageMemberNotFound
		}
		slog.Error("quarantine: failed to toggle role", "commId", commID, "error", err)
		return messageToggleFailed
	}

	name := displayName(member, commID)
	if !applied {
		slog.Info("quarantine removed", "invoker", invoker.ID, "commId", commID)
		return "Removed quarantine role from " + name
	}

	slog.Info("quarantine applied", "invoker", invoker.ID, "commId", commID)
	h.disconnect(ctx, commID)
	return "Added quarantine role to " + name
}

// disconnect kicks the bound game account if it is online. Failures are logged only.
func (h *QuarantineHandler) disconnect(ctx context.Context, commID string) {
	if h.sessions == nil {
		return
	}

	rec, err := h.links.FindByCommID(ctx, commID)
	if err != nil {
		if !errors.Is(err, link.ErrNotFound) {
			slog.Error("quarantine: failed to resolve linked account", "commId", commID, "error", err)
		}
		return
	}

	if _, err := h.sessions.Find(ctx, rec.GameID); err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) {
			slog.Error("quarantine: failed to find session", "gameId", rec.GameID, "error", err)
		}
		return
	}

	if err := h.sessions.Disconnect(ctx, rec.GameID, h.message); err != nil {
		slog.Error("quarantine: failed to disconnect player", "gameId", rec.GameID, "error", err)
		return
	}
	slog.Info("quarantine: disconnected player", "gameId", rec.GameID, "commId", commID)
}

func displayName(m *roster.Member, fallback string) string {
	switch {
	case m == nil:
		return mention(fallback)
	case m.DisplayName != "":
		return m.DisplayName
	case m.Username != "":
		return m.Username
	}
	return mention(m.ID)
}
