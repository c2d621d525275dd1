// Package roster describes the chat platform's membership roster as seen by Sentinel.
package roster

import (
	"context"
	"errors"
)

// ErrMemberNotFound is returned when the platform reports the user is not a member of the guild.
var ErrMemberNotFound = errors.New("member not found")

// Member is a guild member with the role ids they currently hold.
type Member struct {
	ID          string
	Username    string
	DisplayName string
	Roles       []string
}

// HasRole reports whether the member holds roleID.
func (m *Member) HasRole(roleID string) bool {
	for _, r := range m.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// Client is the subset of the platform API Sentinel relies on. Role ids are
// scoped per guild, so every role operation names the guild explicitly.
type Client interface {
	Guilds(ctx context.Context) ([]string, error)
	HasRole(ctx context.Context, guildID, roleID string) (bool, error)
	Member(ctx context.Context, guildID, userID string) (*Member, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
}
