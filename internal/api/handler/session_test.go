package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelgg/sentinel/internal/api/handler"
	"github.com/sentinelgg/sentinel/internal/session"
)

type mockSessionStore struct {
	registerFn func(ctx context.Context, s session.Session) error
	removeFn   func(ctx context.Context, gameID uuid.UUID) error
	drainFn    func(ctx context.Context, limit int) ([]session.Kick, error)
}

func (m *mockSessionStore) Register(ctx context.Context, s session.Session) error {
	if m.registerFn != nil {
		return m.registerFn(ctx, s)
	}
	return nil
}

func (m *mockSessionStore) Remove(ctx context.Context, gameID uuid.UUID) error {
	if m.removeFn != nil {
		return m.removeFn(ctx, gameID)
	}
	return nil
}

func (m *mockSessionStore) DrainKicks(ctx context.Context, limit int) ([]session.Kick, error) {
	if m.drainFn != nil {
		return m.drainFn(ctx, limit)
	}
	return nil, nil
}

func sessionRouter(store handler.SessionStore) *chi.Mux {
	h := handler.NewSessionHandler(store)
	r := chi.NewRouter()
	r.Put("/v1/sessions/{gameId}", h.Put)
	r.Delete("/v1/sessions/{gameId}", h.Delete)
	r.Get("/v1/kicks", h.Kicks)
	return r
}

func TestSessionHandler_Put(t *testing.T) {
	var got session.Session
	store := &mockSessionStore{registerFn: func(_ context.Context, s session.Session) error {
		got = s
		return nil
	}}
	gameID := uuid.New()
	req := httptest.NewRequest(http.MethodPut, "/v1/sessions/"+gameID.String(), strings.NewReader(`{"username":"Steve","route":"play"}`))
	w := httptest.NewRecorder()

	sessionRouter(store).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, gameID, got.GameID)
	assert.Equal(t, "Steve", got.Username)
}

func TestSessionHandler_PutInvalidGameID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/v1/sessions/not-a-uuid", strings.NewReader(`{"username":"Steve"}`))
	w := httptest.NewRecorder()

	sessionRouter(&mockSessionStore{}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
}

func TestSessionHandler_PutStoreDown(t *testing.T) {
	store := &mockSessionStore{registerFn: func(context.Context, session.Session) error {
		return errors.New("connection refused")
	}}
	req := httptest.NewRequest(http.MethodPut, "/v1/sessions/"+uuid.NewString(), strings.NewReader(`{"username":"Steve"}`))
	w := httptest.NewRecorder()

	sessionRouter(store).ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", errorCode(t, w))
}

func TestSessionHandler_Delete(t *testing.T) {
	var removed uuid.UUID
	store := &mockSessionStore{removeFn: func(_ context.Context, id uuid.UUID) error {
		removed = id
		return nil
	}}
	gameID := uuid.New()
	req := httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+gameID.String(), nil)
	w := httptest.NewRecorder()

	sessionRouter(store).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, gameID, removed)
}

func TestSessionHandler_Kicks(t *testing.T) {
	gameID := uuid.New()
	issued := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var limit int
	store := &mockSessionStore{drainFn: func(_ context.Context, n int) ([]session.Kick, error) {
		limit = n
		return []session.Kick{{GameID: gameID, Username: "Steve", Message: "bye", IssuedAt: issued}}, nil
	}}
	req := httptest.NewRequest(http.MethodGet, "/v1/kicks?max=10", nil)
	w := httptest.NewRecorder()

	sessionRouter(store).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, limit)
	env := parseEnvelope(t, w)
	data := env["data"].([]interface{})
	require.Len(t, data, 1)
	kick := data[0].(map[string]interface{})
	assert.Equal(t, gameID.String(), kick["gameId"])
	assert.Equal(t, "bye", kick["message"])
	assert.Equal(t, "2026-01-02T03:04:05Z", kick["issuedAt"])
	assert.Equal(t, float64(1), env["meta"].(map[string]interface{})["count"])
}

func TestSessionHandler_KicksDefaultsAndBounds(t *testing.T) {
	var limit int
	store := &mockSessionStore{drainFn: func(_ context.Context, n int) ([]session.Kick, error) {
		limit = n
		return nil, nil
	}}
	r := sessionRouter(store)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/kicks", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 50, limit)
	assert.Equal(t, []interface{}{}, parseEnvelope(t, w)["data"])

	for _, bad := range []string{"0", "501", "abc"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/kicks?max="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}
