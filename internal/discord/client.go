package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/sentinelgg/sentinel/internal/roster"
)

// restAPI is the subset of discordgo REST calls the client makes.
type restAPI interface {
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
}

// Client implements roster.Client. Guilds and roles come from the gateway state
// cache; members are always fetched over REST so role changes are seen at once.
type Client struct {
	rest    restAPI
	state   *discordgo.State
	session *discordgo.Session
}

// NewClient creates a Client over an open session.
func NewClient(s *discordgo.Session) *Client {
	return &Client{rest: s, state: s.State, session: s}
}

var _ roster.Client = (*Client)(nil)

// Guilds lists the guilds the bot is in.
func (c *Client) Guilds(_ context.Context) ([]string, error) {
	if c.state == nil {
		return nil, errors.New("discord state cache disabled")
	}
	c.state.RLock()
	defer c.state.RUnlock()

	ids := make([]string, 0, len(c.state.Guilds))
	for _, g := range c.state.Guilds {
		ids = append(ids, g.ID)
	}
	return ids, nil
}

// HasRole reports whether roleID exists in guildID, falling back to REST when the cache misses.
func (c *Client) HasRole(ctx context.Context, guildID, roleID string) (bool, error) {
	if c.state != nil {
		if _, err := c.state.Role(guildID, roleID); err == nil {
			return true, nil
		}
	}

	roles, err := c.rest.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("listing roles of guild %s: %w", guildID, err)
	}
	for _, r := range roles {
		if r.ID == roleID {
			return true, nil
		}
	}
	return false, nil
}

// Member fetches a guild member. An unknown member or user maps to roster.ErrMemberNotFound.
func (c *Client) Member(ctx context.Context, guildID, userID string) (*roster.Member, error) {
	m, err := c.rest.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		if isUnknownMember(err) {
			return nil, roster.ErrMemberNotFound
		}
		return nil, err
	}
	return toMember(m, userID), nil
}

func (c *Client) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return c.rest.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
}

func (c *Client) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return c.rest.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx))
}

// CheckConnectivity reports whether the gateway session is up.
func (c *Client) CheckConnectivity(_ context.Context) ConnectivityStatus {
	if c.session == nil || !c.session.DataReady {
		return ConnectivityStatus{Connected: false}
	}
	guilds, _ := c.Guilds(context.Background())
	return ConnectivityStatus{
		Connected: true,
		Guilds:    len(guilds),
		Latency:   c.session.HeartbeatLatency(),
	}
}

func isUnknownMember(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Message == nil {
		return false
	}
	switch restErr.Message.Code {
	case discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownUser:
		return true
	}
	return false
}

func toMember(m *discordgo.Member, fallbackID string) *roster.Member {
	out := &roster.Member{ID: fallbackID, DisplayName: m.Nick, Roles: m.Roles}
	if m.User != nil {
		out.ID = m.User.ID
		out.Username = m.User.Username
		if out.DisplayName == "" {
			out.DisplayName = m.User.GlobalName
		}
	}
	return out
}
