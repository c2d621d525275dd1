package command_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelgg/sentinel/internal/command"
	"github.com/sentinelgg/sentinel/internal/membership"
	"github.com/sentinelgg/sentinel/internal/metrics"
	"github.com/sentinelgg/sentinel/internal/roster"
)

const (
	staffRole  = "role-staff"
	kickNotice = "You have been quarantined."
)

func TestQuarantine_NotConfigured(t *testing.T) {
	roles := &mockRoles{}
	h := command.NewQuarantineHandler(roles, newMemStore(), nil, []string{staffRole}, kickNotice)

	reply := immediate(t, h.Handle(context.Background(), invoke("quarantine", "Steve", "S1", staffRole)))
	assert.Equal(t, "Quarantine role is not configured.", reply.Content)
	assert.Empty(t, roles.toggled)
}

func TestQuarantine_NonStaffRejectedWithoutMutation(t *testing.T) {
	roles := &mockRoles{roleID: "role-q"}
	h := command.NewQuarantineHandler(roles, newMemStore(), nil, []string{staffRole}, kickNotice)

	reply := immediate(t, h.Handle(context.Background(), invoke("quarantine", "<@"+snowflake+">", "U1", "role-member")))
	assert.Equal(t, "You don't have permission to use this command.", reply.Content)
	assert.True(t, reply.Ephemeral)
	assert.Empty(t, roles.toggled)
}

func TestQuarantine_EmptyStaffListRejects(t *testing.T) {
	roles := &mockRoles{roleID: "role-q"}
	h := command.NewQuarantineHandler(roles, newMemStore(), nil, nil, kickNotice)

	reply := immediate(t, h.Handle(context.Background(), invoke("quarantine", "Steve", "S1", staffRole)))
	assert.Equal(t, "You don't have permission to use this command.", reply.Content)
	assert.Empty(t, roles.toggled)
}

func TestQuarantine_MissingUser(t *testing.T) {
	h := command.NewQuarantineHandler(&mockRoles{roleID: "role-q"}, newMemStore(), nil, []string{staffRole}, kickNotice)

	reply := immediate(t, h.Handle(context.Background(), invoke("quarantine", "", "S1", staffRole)))
	assert.Equal(t, "User parameter is required.", reply.Content)
}

func TestQuarantine_ApplyDisconnectsOnlinePlayer(t *testing.T) {
	store := newMemStore()
	gameID := uuid.New()
	store.put(gameID, snowflake, "Steve")
	roles := &mockRoles{roleID: "role-q"}
	sessions := newMockSessions()
	sessions.online[gameID] = true
	h := command.NewQuarantineHandler(roles, store, sessions, []string{staffRole}, kickNotice)

	resp := h.Handle(context.Background(), invoke("quarantine", "Steve", "S1", staffRole))
	assert.False(t, resp.Ack.Ephemeral)
	reply := followup(t, resp)

	assert.Equal(t, "Added quarantine role to Member "+snowflake, reply.Content)
	assert.Equal(t, []string{snowflake}, roles.toggled)
	assert.Equal(t, kickNotice, sessions.disconnected[gameID])
}

func TestQuarantine_ApplyOfflinePlayerDoesNotKick(t *testing.T) {
	store := newMemStore()
	gameID := uuid.New()
	store.put(gameID, snowflake, "Steve")
	sessions := newMockSessions()
	h := command.NewQuarantineHandler(&mockRoles{roleID: "role-q"}, store, sessions, []string{staffRole}, kickNotice)

	followup(t, h.Handle(context.Background(), invoke("quarantine", "<@"+snowflake+">", "S1", staffRole)))
	assert.Empty(t, sessions.disconnected)
}

func TestQuarantine_RemoveDoesNotKick(t *testing.T) {
	store := newMemStore()
	gameID := uuid.New()
	store.put(gameID, snowflake, "Steve")
	roles := &mockRoles{roleID: "role-q", quarantined: map[string]bool{snowflake: true}}
	sessions := newMockSessions()
	sessions.online[gameID] = true
	h := command.NewQuarantineHandler(roles, store, sessions, []string{staffRole}, kickNotice)

	reply := followup(t, h.Handle(context.Background(), invoke("quarantine", snowflake, "S1", staffRole)))
	assert.Equal(t, "Removed quarantine role from Member "+snowflake, reply.Content)
	assert.Empty(t, sessions.disconnected)
}

func TestQuarantine_UnlinkedUsername(t *testing.T) {
	roles := &mockRoles{roleID: "role-q"}
	h := command.NewQuarantineHandler(roles, newMemStore(), nil, []string{staffRole}, kickNotice)

	reply := followup(t, h.Handle(context.Background(), invoke("quarantine", "Ghost", "S1", staffRole)))
	assert.Equal(t, "No linked account found for game username: Ghost", reply.Content)
	assert.Empty(t, roles.toggled)
}

func TestQuarantine_ToggleErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"role missing", membership.ErrRoleNotFound, "Quarantine role not found in any guild."},
		{"member missing", roster.ErrMemberNotFound, "User not found in Discord server."},
		{"transport", errors.New("503"), "Failed to update the quarantine role."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roles := &mockRoles{roleID: "role-q", toggleErr: tt.err}
			h := command.NewQuarantineHandler(roles, newMemStore(), nil, []string{staffRole}, kickNotice)

			reply := followup(t, h.Handle(context.Background(), invoke("quarantine", snowflake, "S1", staffRole)))
			assert.Equal(t, tt.want, reply.Content)
		})
	}
}

// singleGuild is a one-guild roster that defines the quarantine role.
type singleGuild struct {
	roleID string
	roles  map[string][]string // user -> role ids
}

func (g *singleGuild) Guilds(context.Context) ([]string, error) { return []string{"g1"}, nil }

func (g *singleGuild) HasRole(_ context.Context, _, roleID string) (bool, error) {
	return roleID == g.roleID, nil
}

func (g *singleGuild) Member(_ context.Context, _, userID string) (*roster.Member, error) {
	roles, ok := g.roles[userID]
	if !ok {
		return nil, roster.ErrMemberNotFound
	}
	return &roster.Member{ID: userID, Username: "steve", Roles: append([]string(nil), roles...)}, nil
}

func (g *singleGuild) AddRole(_ context.Context, _, userID, roleID string) error {
	g.roles[userID] = append(g.roles[userID], roleID)
	return nil
}

func (g *singleGuild) RemoveRole(_ context.Context, _, userID, roleID string) error {
	var kept []string
	for _, r := range g.roles[userID] {
		if r != roleID {
			kept = append(kept, r)
		}
	}
	g.roles[userID] = kept
	return nil
}

func TestQuarantine_ToggleCountedOnce(t *testing.T) {
	// Arrange
	store := newMemStore()
	store.put(uuid.New(), snowflake, "Steve")
	guild := &singleGuild{roleID: "role-q", roles: map[string][]string{snowflake: nil}}
	oracle := membership.New(guild, store, "", "role-q")
	h := command.NewQuarantineHandler(oracle, store, nil, []string{staffRole}, kickNotice)
	applied := metrics.QuarantineToggles.WithLabelValues("applied")
	before := testutil.ToFloat64(applied)

	// Act
	reply := followup(t, h.Handle(context.Background(), invoke("quarantine", "Steve", "S1", staffRole)))

	// Assert
	require.Equal(t, "Added quarantine role to steve", reply.Content)
	assert.Equal(t, 1.0, testutil.ToFloat64(applied)-before)
}
