package command_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelgg/sentinel/internal/command"
)

func TestLink_ClaimsCodeAndGrantsRole(t *testing.T) {
	store := newMemStore()
	gameID := uuid.New()
	store.pending["ABC234"] = gameID
	roles := &mockRoles{}
	h := command.NewLinkHandler(store, roles, 0)

	resp := h.Handle(context.Background(), invoke("link", " abc234 ", "D1"))
	assert.True(t, resp.Ack.Ephemeral)
	reply := followup(t, resp)

	assert.Equal(t, "Your account has been linked!", reply.Content)
	assert.True(t, reply.Ephemeral)
	rec, err := store.FindByCommID(context.Background(), "D1")
	require.NoError(t, err)
	assert.Equal(t, gameID, rec.GameID)
	assert.Equal(t, []string{"D1"}, roles.ensured)
}

func TestLink_CodeIsSingleUse(t *testing.T) {
	store := newMemStore()
	store.pending["ABC234"] = uuid.New()
	h := command.NewLinkHandler(store, nil, 0)

	first := followup(t, h.Handle(context.Background(), invoke("link", "ABC234", "D1")))
	second := followup(t, h.Handle(context.Background(), invoke("link", "ABC234", "D2")))

	assert.Equal(t, "Your account has been linked!", first.Content)
	assert.Equal(t, "Invalid or expired code.", second.Content)
}

func TestLink_MalformedCodeSkipsStore(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("must not be called")
	h := command.NewLinkHandler(store, nil, 0)

	reply := followup(t, h.Handle(context.Background(), invoke("link", "not-a-code", "D1")))
	assert.Equal(t, "Invalid or expired code.", reply.Content)
}

func TestLink_DiscordAccountAlreadyLinked(t *testing.T) {
	store := newMemStore()
	store.put(uuid.New(), "D1", "Steve")
	store.pending["ABC234"] = uuid.New()
	h := command.NewLinkHandler(store, nil, 0)

	reply := followup(t, h.Handle(context.Background(), invoke("link", "ABC234", "D1")))
	assert.Equal(t, "This Discord account is already linked!", reply.Content)
}

func TestLink_GameAccountAlreadyLinked(t *testing.T) {
	store := newMemStore()
	gameID := uuid.New()
	store.put(gameID, "D9", "Steve")
	store.pending["ABC234"] = gameID
	h := command.NewLinkHandler(store, nil, 0)

	reply := followup(t, h.Handle(context.Background(), invoke("link", "ABC234", "D1")))
	assert.Equal(t, "That game account is already linked to another Discord account.", reply.Content)
}

func TestLink_StoreErrorIsGeneric(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("pool exhausted")
	h := command.NewLinkHandler(store, nil, 0)

	reply := followup(t, h.Handle(context.Background(), invoke("link", "ABC234", "D1")))
	assert.Equal(t, "A server error occurred. Try again later.", reply.Content)
}

func TestLink_RoleGrantFailureStillLinks(t *testing.T) {
	store := newMemStore()
	store.pending["ABC234"] = uuid.New()
	roles := &mockRoles{ensureErr: errors.New("missing permissions")}
	h := command.NewLinkHandler(store, roles, 0)

	reply := followup(t, h.Handle(context.Background(), invoke("link", "ABC234", "D1")))
	assert.Equal(t, "Your account has been linked!", reply.Content)
}

func TestLink_RateLimitedPerInvoker(t *testing.T) {
	store := newMemStore()
	h := command.NewLinkHandler(store, nil, 2)
	ctx := context.Background()

	assert.True(t, h.Handle(ctx, invoke("link", "AAAAAA", "D1")).Ack.Deferred)
	assert.True(t, h.Handle(ctx, invoke("link", "AAAAAA", "D1")).Ack.Deferred)

	reply := immediate(t, h.Handle(ctx, invoke("link", "AAAAAA", "D1")))
	assert.Contains(t, reply.Content, "too often")
	assert.True(t, reply.Ephemeral)

	assert.True(t, h.Handle(ctx, invoke("link", "AAAAAA", "D2")).Ack.Deferred, "other invokers are unaffected")
}
