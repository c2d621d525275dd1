// Package membership answers whether a linked Discord account is still in good
// standing, and performs the role changes that follow from those answers.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentinelgg/sentinel/internal/metrics"
	"github.com/sentinelgg/sentinel/internal/roster"
)

// ErrRoleNotConfigured is returned when an operation needs a role id that was left empty.
var ErrRoleNotConfigured = errors.New("role not configured")

// ErrRoleNotFound is returned when no known guild contains the configured role.
var ErrRoleNotFound = errors.New("role not found in any guild")

// ErrNoGuilds is returned when the bot is not a member of any guild. Presence
// cannot be decided without at least one guild to look in.
var ErrNoGuilds = errors.New("bot is not in any guild")

// LinkRemover deletes the link of an account that left.
type LinkRemover interface {
	RemoveLinkByCommID(ctx context.Context, commID string) (bool, error)
}

// Oracle resolves presence and quarantine state against the roster.
type Oracle struct {
	roster           roster.Client
	links            LinkRemover
	linkedRoleID     string
	quarantineRoleID string
}

// New creates a new Oracle. Either role id may be empty to disable that feature.
func New(client roster.Client, links LinkRemover, linkedRoleID, quarantineRoleID string) *Oracle {
	return &Oracle{
		roster:           client,
		links:            links,
		linkedRoleID:     linkedRoleID,
		quarantineRoleID: quarantineRoleID,
	}
}

// LinkedRoleID returns the configured linked role id.
func (o *Oracle) LinkedRoleID() string {
	return o.linkedRoleID
}

// QuarantineRoleID returns the configured quarantine role id.
func (o *Oracle) QuarantineRoleID() string {
	return o.quarantineRoleID
}

// IsPresent reports whether commID is a member of any known guild. When every
// guild answers "unknown member" the account has left: its link is removed and
// false is returned. Any other roster failure is returned as an error and
// nothing is removed.
func (o *Oracle) IsPresent(ctx context.Context, commID string) (bool, error) {
	defer observe("presence", time.Now())

	guilds, err := o.roster.Guilds(ctx)
	if err != nil {
		return false, fmt.Errorf("listing guilds: %w", err)
	}
	if len(guilds) == 0 {
		return false, ErrNoGuilds
	}

	var lookupErr error
	for _, guildID := range guilds {
		_, err := o.roster.Member(ctx, guildID, commID)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, roster.ErrMemberNotFound) {
			lookupErr = err
		}
	}
	if lookupErr != nil {
		return false, fmt.Errorf("looking up member %s: %w", commID, lookupErr)
	}

	o.forget(ctx, commID)
	return false, nil
}

// IsQuarantined reports whether commID holds the quarantine role in the guild
// that defines it. An unconfigured or missing role disables quarantine and
// reports false. A member unknown to that guild is not quarantined; the link is
// removed only if IsPresent finds them in no guild at all.
func (o *Oracle) IsQuarantined(ctx context.Context, commID string) (bool, error) {
	if o.quarantineRoleID == "" {
		return false, nil
	}
	defer observe("quarantine", time.Now())

	guildID, err := o.guildForRole(ctx, o.quarantineRoleID)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			slog.Warn("quarantine role not found in any guild; quarantine disabled", "roleId", o.quarantineRoleID)
			return false, nil
		}
		return false, err
	}

	member, err := o.roster.Member(ctx, guildID, commID)
	if err != nil {
		if errors.Is(err, roster.ErrMemberNotFound) {
			if _, err := o.IsPresent(ctx, commID); err != nil {
				return false, err
			}
			return false, nil
		}
		return false, fmt.Errorf("looking up member %s: %w", commID, err)
	}

	quarantined := member.HasRole(o.quarantineRoleID)
	if quarantined {
		slog.Debug("member is quarantined", "commId", commID, "guildId", guildID)
	}
	return quarantined, nil
}

// EnsureLinkedRole grants the linked role to commID if it is missing. It
// reports whether a grant was made.
func (o *Oracle) EnsureLinkedRole(ctx context.Context, commID string) (bool, error) {
	if o.linkedRoleID == "" {
		return false, ErrRoleNotConfigured
	}

	guildID, err := o.guildForRole(ctx, o.linkedRoleID)
	if err != nil {
		return false, err
	}

	member, err := o.roster.Member(ctx, guildID, commID)
	if err != nil {
		return false, fmt.Errorf("looking up member %s: %w", commID, err)
	}
	if member.HasRole(o.linkedRoleID) {
		return false, nil
	}

	if err := o.roster.AddRole(ctx, guildID, commID, o.linkedRoleID); err != nil {
		return false, fmt.Errorf("granting linked role to %s: %w", commID, err)
	}
	metrics.RolesGranted.Inc()
	return true, nil
}

// ToggleQuarantine flips the quarantine role on commID. It reports whether the
// role is now applied, along with the member as seen before the change.
func (o *Oracle) ToggleQuarantine(ctx context.Context, commID string) (bool, *roster.Member, error) {
	if o.quarantineRoleID == "" {
		return false, nil, ErrRoleNotConfigured
	}

	guildID, err := o.guildForRole(ctx, o.quarantineRoleID)
	if err != nil {
		return false, nil, err
	}

	member, err := o.roster.Member(ctx, guildID, commID)
	if err != nil {
		return false, nil, err
	}

	if member.HasRole(o.quarantineRoleID) {
		if err := o.roster.RemoveRole(ctx, guildID, commID, o.quarantineRoleID); err != nil {
			return false, member, fmt.Errorf("removing quarantine role: %w", err)
		}
		metrics.QuarantineToggles.WithLabelValues("removed").Inc()
		return false, member, nil
	}

	if err := o.roster.AddRole(ctx, guildID, commID, o.quarantineRoleID); err != nil {
		return false, member, fmt.Errorf("adding quarantine role: %w", err)
	}
	metrics.QuarantineToggles.WithLabelValues("applied").Inc()
	return true, member, nil
}

// guildForRole returns the first known guild that defines roleID.
func (o *Oracle) guildForRole(ctx context.Context, roleID string) (string, error) {
	guilds, err := o.roster.Guilds(ctx)
	if err != nil {
		return "", fmt.Errorf("listing guilds: %w", err)
	}
	for _, guildID := range guilds {
		ok, err := o.roster.HasRole(ctx, guildID, roleID)
		if err != nil {
			return "", fmt.Errorf("resolving role %s in guild %s: %w", roleID, guildID, err)
		}
		if ok {
			return guildID, nil
		}
	}
	return "", ErrRoleNotFound
}

func (o *Oracle) forget(ctx context.Context, commID string) {
	removed, err := o.links.RemoveLinkByCommID(ctx, commID)
	if err != nil {
		slog.Error("failed to remove link of departed member", "commId", commID, "error", err)
		return
	}
	if removed {
		metrics.StaleLinksRemoved.Inc()
		slog.Info("removed link: member no longer in any guild", "commId", commID)
	}
}

func observe(check string, start time.Time) {
	metrics.MembershipLookupDuration.WithLabelValues(check).Observe(time.Since(start).Seconds())
}
