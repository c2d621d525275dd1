// Package gate decides, once per connection attempt, whether a game identity may log in.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelgg/sentinel/internal/link"
	"github.com/sentinelgg/sentinel/internal/metrics"
)

// maxCodeAttempts bounds retries when a fresh code collides with one pending elsewhere.
const maxCodeAttempts = 5

const (
	messageServerError  = "A server error occurred. Try again later."
	messageInconsistent = "Your Discord account is no longer linked.\nPlease contact an administrator to relink your account."
)

// Reason names the rule that produced a Decision.
type Reason string

const (
	ReasonBypass       Reason = "bypass"
	ReasonLinked       Reason = "linked"
	ReasonStaleLink    Reason = "stale_link"
	ReasonQuarantined  Reason = "quarantined"
	ReasonInconsistent Reason = "inconsistent"
	ReasonUnlinked     Reason = "unlinked"
	ReasonError        Reason = "error"
)

// Attempt is one connection attempt reported by the proxy.
type Attempt struct {
	GameID   uuid.UUID
	Username string
	Route    string // virtual host the player connected through
}

// Decision is the terminal allow/deny result. Message is shown to the player on deny.
type Decision struct {
	Allowed bool
	Message string
	Reason  Reason
}

// LoginObserver is the capability the proxy bridge dispatches login attempts to.
type LoginObserver interface {
	OnLogin(ctx context.Context, attempt Attempt) Decision
}

// MembershipChecker reports the standing of a linked Discord account.
type MembershipChecker interface {
	IsPresent(ctx context.Context, commID string) (bool, error)
	IsQuarantined(ctx context.Context, commID string) (bool, error)
}

// CodeGenerator produces link codes.
type CodeGenerator interface {
	Generate() (string, error)
}

// Options are the static policy inputs of the gate.
type Options struct {
	BypassRoutes      []string
	QuarantineMessage string
	// Timeout bounds the whole decision, store round trips included.
	Timeout time.Duration
	// MembershipTimeout bounds the presence and quarantine lookups.
	MembershipTimeout time.Duration
}

// Gate is the login decision engine. It is safe for concurrent use; calls
// share nothing but the link repository.
type Gate struct {
	links   link.Repository
	codes   CodeGenerator
	members MembershipChecker
	opts    Options
}

// New creates a new Gate. members may be nil, in which case presence and
// quarantine are not checked.
func New(links link.Repository, codes CodeGenerator, members MembershipChecker, opts Options) *Gate {
	return &Gate{
		links:   links,
		codes:   codes,
		members: members,
		opts:    opts,
	}
}

var _ LoginObserver = (*Gate)(nil)

// OnLogin runs the rule chain for one attempt. It never allows on error: any
// failure, timeout or panic yields a deny with a generic retry message.
func (g *Gate) OnLogin(ctx context.Context, attempt Attempt) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic during login check",
				"username", attempt.Username, "gameId", attempt.GameID, "panic", r)
			decision = deny(ReasonError, messageServerError)
		}
		metrics.LoginDecisions.WithLabelValues(string(decision.Reason)).Inc()
	}()

	if g.bypassed(attempt.Route) {
		slog.Info("connecting through bypass route; allowing login",
			"username", attempt.Username, "gameId", attempt.GameID, "route", attempt.Route)
		return Decision{Allowed: true, Reason: ReasonBypass}
	}

	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	result, err := g.decide(ctx, attempt)
	if err != nil {
		slog.Error("error during login check",
			"username", attempt.Username, "gameId", attempt.GameID, "error", err)
		return deny(ReasonError, messageServerError)
	}
	return result
}

func (g *Gate) decide(ctx context.Context, attempt Attempt) (Decision, error) {
	linked, err := g.links.IsLinked(ctx, attempt.GameID)
	if err != nil {
		return Decision{}, err
	}
	if linked {
		return g.decideLinked(ctx, attempt)
	}
	return g.decideUnlinked(ctx, attempt)
}

func (g *Gate) decideLinked(ctx context.Context, attempt Attempt) (Decision, error) {
	if g.members != nil {
		rec, err := g.links.FindByGameID(ctx, attempt.GameID)
		if err != nil {
			return Decision{}, fmt.Errorf("resolving linked account: %w", err)
		}

		present, quarantined, err := g.standing(ctx, rec.CommID)
		if err != nil {
			return Decision{}, err
		}

		if !present {
			code, err := g.issueCode(ctx, attempt.GameID)
			if err != nil {
				return Decision{}, err
			}
			slog.Info("linked account left discord; issued new link code",
				"username", attempt.Username, "gameId", attempt.GameID, "commId", rec.CommID)
			return deny(ReasonStaleLink, staleMessage(code)), nil
		}

		if quarantined {
			slog.Debug("quarantined; denying login", "username", attempt.Username, "gameId", attempt.GameID)
			return deny(ReasonQuarantined, g.opts.QuarantineMessage), nil
		}
	}

	if err := g.links.UpdateUsername(ctx, attempt.GameID, attempt.Username); err != nil {
		slog.Warn("failed to refresh username", "gameId", attempt.GameID, "error", err)
	}

	slog.Debug("linked; allowing login", "username", attempt.Username, "gameId", attempt.GameID)
	return Decision{Allowed: true, Reason: ReasonLinked}, nil
}

func (g *Gate) decideUnlinked(ctx context.Context, attempt Attempt) (Decision, error) {
	rec, err := g.links.FindByGameID(ctx, attempt.GameID)
	switch {
	case err == nil:
		slog.Warn("reverse lookup found a binding for an unlinked account",
			"username", attempt.Username, "gameId", attempt.GameID, "commId", rec.CommID)
		return deny(ReasonInconsistent, messageInconsistent), nil
	case !errors.Is(err, link.ErrNotFound):
		return Decision{}, err
	}

	code, err := g.issueCode(ctx, attempt.GameID)
	if err != nil {
		return Decision{}, err
	}

	slog.Info("not linked; issued link code",
		"username", attempt.Username, "gameId", attempt.GameID, "code", code)
	return deny(ReasonUnlinked, unlinkedMessage(code)), nil
}

// standing runs the presence check and, for present members, the quarantine
// check under the membership deadline.
func (g *Gate) standing(ctx context.Context, commID string) (present, quarantined bool, err error) {
	if g.opts.MembershipTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.MembershipTimeout)
		defer cancel()
	}

	present, err = g.members.IsPresent(ctx, commID)
	if err != nil {
		return false, false, fmt.Errorf("checking presence: %w", err)
	}
	if !present {
		return false, false, nil
	}

	quarantined, err = g.members.IsQuarantined(ctx, commID)
	if err != nil {
		return false, false, fmt.Errorf("checking quarantine: %w", err)
	}
	return true, quarantined, nil
}

// issueCode generates and persists a fresh code for gameID, rotating any earlier one.
func (g *Gate) issueCode(ctx context.Context, gameID uuid.UUID) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := g.codes.Generate()
		if err != nil {
			return "", err
		}
		err = g.links.SavePendingCode(ctx, gameID, code)
		if errors.Is(err, link.ErrCodeCollision) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("saving pending code: %w", err)
		}
		return code, nil
	}
	return "", fmt.Errorf("no free link code after %d attempts", maxCodeAttempts)
}

func (g *Gate) bypassed(route string) bool {
	if route == "" {
		return false
	}
	route = strings.ToLower(route)
	for _, entry := range g.opts.BypassRoutes {
		if entry != "" && strings.Contains(route, strings.ToLower(entry)) {
			return true
		}
	}
	return false
}

func deny(reason Reason, message string) Decision {
	return Decision{Allowed: false, Message: message, Reason: reason}
}

func unlinkedMessage(code string) string {
	return fmt.Sprintf("This game account is not linked.\nUse /link %s in Discord to link.", code)
}

func staleMessage(code string) string {
	return fmt.Sprintf("Your Discord account is no longer linked.\nUse /link %s in Discord to link.", code)
}
