package reconciler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelgg/sentinel/internal/metrics"
	"github.com/sentinelgg/sentinel/internal/reconciler"
)

// --- Mock link lister ---

type mockLinks struct {
	listFn  func(ctx context.Context) ([]string, error)
	purgeFn func(ctx context.Context, olderThan time.Time) (int64, error)

	mu     sync.Mutex
	purges int
}

func (m *mockLinks) ListAllCommIDs(ctx context.Context) ([]string, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []string{}, nil
}

func (m *mockLinks) PurgeExpiredCodes(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	m.purges++
	m.mu.Unlock()
	if m.purgeFn != nil {
		return m.purgeFn(ctx, olderThan)
	}
	return 0, nil
}

func (m *mockLinks) purgeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purges
}

// --- Mock role syncer ---

type mockRoles struct {
	unconfigured bool
	isPresentFn  func(ctx context.Context, commID string) (bool, error)
	ensureFn     func(ctx context.Context, commID string) (bool, error)

	mu      sync.Mutex
	ensured []string
}

func (m *mockRoles) LinkedRoleID() string {
	if m.unconfigured {
		return ""
	}
	return "role-linked"
}

func (m *mockRoles) IsPresent(ctx context.Context, commID string) (bool, error) {
	if m.isPresentFn != nil {
		return m.isPresentFn(ctx, commID)
	}
	return true, nil
}

func (m *mockRoles) EnsureLinkedRole(ctx context.Context, commID string) (bool, error) {
	m.mu.Lock()
	m.ensured = append(m.ensured, commID)
	m.mu.Unlock()
	if m.ensureFn != nil {
		return m.ensureFn(ctx, commID)
	}
	return true, nil
}

func (m *mockRoles) getEnsured() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.ensured))
	copy(out, m.ensured)
	return out
}

// --- Tests ---

func TestRunOnce_EnsuresRoleForPresentMembers(t *testing.T) {
	links := &mockLinks{
		listFn: func(context.Context) ([]string, error) { return []string{"D1", "D2", "D3"}, nil },
	}
	roles := &mockRoles{
		isPresentFn: func(_ context.Context, commID string) (bool, error) { return commID != "D2", nil },
	}
	r := reconciler.New(links, roles, time.Minute, 0)

	r.RunOnce(context.Background())

	assert.Equal(t, []string{"D1", "D3"}, roles.getEnsured())
	assert.Equal(t, 0, links.purgeCount())
}

func TestRunOnce_WithoutLinkedRoleOnlyChecksPresence(t *testing.T) {
	links := &mockLinks{
		listFn: func(context.Context) ([]string, error) { return []string{"D1", "D2"}, nil },
	}
	var checked []string
	roles := &mockRoles{
		unconfigured: true,
		isPresentFn: func(_ context.Context, commID string) (bool, error) {
			checked = append(checked, commID)
			return commID == "D1", nil
		},
	}
	r := reconciler.New(links, roles, time.Minute, 0)
	ok := metrics.ReconcilerPasses.WithLabelValues("ok")
	partial := metrics.ReconcilerPasses.WithLabelValues("partial")
	okBefore, partialBefore := testutil.ToFloat64(ok), testutil.ToFloat64(partial)

	r.RunOnce(context.Background())

	assert.Equal(t, []string{"D1", "D2"}, checked)
	assert.Empty(t, roles.getEnsured())
	assert.Equal(t, 1.0, testutil.ToFloat64(ok)-okBefore)
	assert.Equal(t, 0.0, testutil.ToFloat64(partial)-partialBefore)
}

func TestRunOnce_ContinuesAfterPerMemberFailures(t *testing.T) {
	links := &mockLinks{
		listFn: func(context.Context) ([]string, error) { return []string{"D1", "D2", "D3"}, nil },
	}
	roles := &mockRoles{
		isPresentFn: func(_ context.Context, commID string) (bool, error) {
			if commID == "D1" {
				return false, errors.New("rate limited")
			}
			return true, nil
		},
		ensureFn: func(_ context.Context, commID string) (bool, error) {
			if commID == "D2" {
				return false, errors.New("missing permissions")
			}
			return false, nil
		},
	}
	r := reconciler.New(links, roles, time.Minute, 0)

	r.RunOnce(context.Background())

	assert.Equal(t, []string{"D2", "D3"}, roles.getEnsured())
}

func TestRunOnce_UsesPartialListOnError(t *testing.T) {
	links := &mockLinks{
		listFn: func(context.Context) ([]string, error) {
			return []string{"D1"}, errors.New("connection reset")
		},
	}
	roles := &mockRoles{}
	r := reconciler.New(links, roles, time.Minute, 0)

	r.RunOnce(context.Background())

	assert.Equal(t, []string{"D1"}, roles.getEnsured())
}

func TestRunOnce_RecoversFromPanic(t *testing.T) {
	links := &mockLinks{
		listFn: func(context.Context) ([]string, error) { return []string{"D1"}, nil },
	}
	roles := &mockRoles{
		isPresentFn: func(context.Context, string) (bool, error) { panic("nil session") },
	}
	r := reconciler.New(links, roles, time.Minute, 0)

	assert.NotPanics(t, func() { r.RunOnce(context.Background()) })
}

func TestRunOnce_PurgesExpiredCodesWhenTTLSet(t *testing.T) {
	var cutoff time.Time
	links := &mockLinks{
		purgeFn: func(_ context.Context, olderThan time.Time) (int64, error) {
			cutoff = olderThan
			return 3, nil
		},
	}
	r := reconciler.New(links, &mockRoles{}, time.Minute, time.Hour)

	before := time.Now()
	r.RunOnce(context.Background())

	require.Equal(t, 1, links.purgeCount())
	assert.WithinDuration(t, before.Add(-time.Hour), cutoff, 5*time.Second)
}

func TestStart_StopsOnCancel(t *testing.T) {
	links := &mockLinks{
		listFn: func(context.Context) ([]string, error) { return []string{"D1"}, nil },
	}
	roles := &mockRoles{}
	r := reconciler.New(links, roles, 10*time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(roles.getEnsured()) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop after cancel")
	}
}
