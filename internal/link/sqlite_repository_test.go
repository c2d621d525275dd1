package link_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelgg/sentinel/internal/link"
)

func setupSQLiteRepo(t *testing.T, codeTTL time.Duration) *link.SQLiteRepository {
	t.Helper()

	repo, err := link.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "sentinel.db"), codeTTL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// --- Pending code tests ---

func TestSQLiteSavePendingCode_RotatesPerGameID(t *testing.T) {
	repo := setupSQLiteRepo(t, 0)
	ctx := context.Background()
	gameID := uuid.New()

	for _, code := range []string{"AAAAAA", "BBBBBB", "CCCCCC"} {
		require.NoError(t, repo.SavePendingCode(ctx, gameID, code))
	}

	_, err := repo.ClaimCode(ctx, "AAAAAA")
	assert.ErrorIs(t, err, link.ErrCodeNotFound)
	_, err = repo.ClaimCode(ctx, "BBBBBB")
	assert.ErrorIs(t, err, link.ErrCodeNotFound)

	claimed, err := repo.ClaimCode(ctx, "CCCCCC")
	require.NoError(t, err)
	assert.Equal(t, gameID, claimed)
}

func TestSQLiteSavePendingCode_SameCodeRetryIsIdempotent(t *testing.T) {
	repo := setupSQLiteRepo(t, 0)
	ctx := context.Background()
	gameID := uuid.New()

	require.NoError(t, repo.SavePendingCode(ctx, gameID, "DDDDDD"))
	require.NoError(t, repo.SavePendingCode(ctx, gameID, "DDDDDD"))

	claimed, err := repo.ClaimCode(ctx, "DDDDDD")
	require.NoError(t, err)
	assert.Equal(t, gameID, claimed)
}

func TestSQLiteSavePendingCode_CollisionAcrossGameIDs(t *testing.T) {
	repo := setupSQLiteRepo(t, 0)
	ctx := context.Background()

	require.NoError(t, repo.SavePendingCode(ctx, uuid.New(), "EEEEEE"))
	err := repo.SavePendingCode(ctx, uuid.New(), "EEEEEE")
	assert.ErrorIs(t, err, link.ErrCodeCollision)
}

func TestSQLiteClaimCode_CaseInsensitive(t *testing.T) {
	repo := setupSQLiteRepo(t, 0)
	ctx := context.Background()
	gameID := uuid.New()

	require.NoError(t, repo.SavePendingCode(ctx, gameID, "ABC234"))

	claimed, err := repo.ClaimCode(ctx, " abc234 ")
	require.NoError(t, err)
	assert.Equal(t, gameID, claimed)
}

func TestSQLiteClaimCode_OnlyOnce(t *testing.T) {
	repo := setupSQLiteRepo(t, 0)
	ctx := context.Background()
	gameID := uuid.New()

	require.NoError(t, repo.SavePendingCode(ctx, gameID, "FFFFFF"))

	_, err := repo.ClaimCode(ctx, "FFFFFF")
	require.NoError(t, err)
	_, err = repo.ClaimCode(ctx, "FFFFFF")
	assert.ErrorIs(t, err, link.ErrCodeNotFound)
}

func TestSQLiteClaimCode_ConcurrentCallersSingleWinner(t *testing.T) {
	repo := setupSQLiteRepo(t, 0)
	ctx := context.Background()
	gameID := uuid.New()
	require.NoError(t, repo.SavePendingCode(ctx, gameID, "GGGGGG"))

	const callers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []uuid.UUID
		errs    []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			id, err := repo.ClaimCode(ctx, "GGGGGG")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			winners = append(winners, id)
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, gameID, winners[0])
	for _, err := range errs {
		assert.ErrorIs(t, err, link.ErrCodeNotFound)
	}
}

func TestSQLiteClaimCode_ExpiredByTTL(t *testing.T) {
	repo := setupSQLiteRepo(t, time.Nanosecond)
	ctx := context.Background()

	require.NoError(t, repo.SavePendingCode(ctx, uuid.New(), "HHHHHH"))
	time.Sleep(5 * time.Millisecond)

	_, err := repo.ClaimCode(ctx, "HHHHHH")
	assert.ErrorIs(t, err, link.ErrCodeNotFound)
}

func TestSQLitePurgeExpiredCodes(t *testing.T) {
	repo := setupSQLiteRepo(t, 0)
	ctx := context.Background()

	require.NoError(t, repo.SavePendingCode(ctx, uuid.New(), "JJJJJJ"))
	require.NoError(t, repo.SavePendingCode(ctx, uuid.New(), "KKKKKK"))

	n, err := repo.PurgeExpiredCodes(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = repo.ClaimCode(ctx, "JJJJJJ")
	assert.ErrorIs(t, err, link.ErrCodeNotFound)
}

// --- Link tests ---

func TestSQLiteAddLink_Success(t *testing.T) {
	repo := setupSQLiteRepo(t, 0)
	ctx := context.Background()
	gameID := uuid.New()

	require.NoError(t, repo.AddLink(ctx, gameID, "111"))

	linked, err := repo.IsLinked(ctx, gameID)
	require.NoError(t, err)
	assert.True(t, linked)

	rec, err := repo.FindByCommID(ctx, "111")
	require.NoError(t, err)
	assert.Equal(t, gameID, rec.GameID)
	assert.Nil(t, rec.Username)
}

func TestSQLiteAddLink_CommIDAlreadyBound(t *testing.T) {
	repo := setupSQLiteRepo(t, 0)
	ctx := context.Background()
	first, second := uuid.New(), uuid.New()

	require.NoError(t, repo.AddLink(ctx, first, "222"))
	err := repo.AddLink(ctx, second, "222")
	assert.ErrorIs(t, err, link.ErrCommAlreadyLinked)

	linked, err := repo.IsLinked(ctx, second)
	require.NoError(t, err)
	assert.False(t, linked)

	ids, err := repo.ListAllCommIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"222"}, ids)
}

func TestSQLiteAddLink_GameIDAlreadyBound(t *testing.T) {
	repo := setupSQLiteRepo(t, 0)
	ctx := context.Background()
	gameID := uuid.New()

	require.NoError(t, repo.AddLink(ctx, gameID, "333"))
	err := repo.AddLink(ctx, gameID, "444")
	assert.ErrorIs(t, err, link.ErrGameAlreadyLinked)
}

func TestSQLiteIsLinked_Unknown(t *testing.T) {
	repo := setupSQLiteRepo(t, 0)

	linked, err := repo.IsLinked(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, linked)
}

func TestSQLiteUpdateUsername_AndFindByUsername(t *testing.T) {
	repo := setupSQLiteRepo(t, 0)
	ctx := context.Background()
	gameID := uuid.New()

	require.NoError(t, repo.AddLink(ctx, gameID, "555"))
	require.NoError(t, repo.UpdateUsername(ctx, gameID, "Notch"))

	rec, err := repo.FindByUsername(ctx, "notch")
	require.NoError(t, err)
	assert.Equal(t, gameID, rec.GameID)
	require.NotNil(t, rec.Username)
	assert.Equal(t, "Notch", *rec.Username)

	byGame, err := repo.FindByGameID(ctx, gameID)
	require.NoError(t, err)
	assert.Equal(t, "555", byGame.CommID)
}

func TestSQLiteFind_NotFound(t *testing.T) {
	repo := setupSQLiteRepo(t, 0)
	ctx := context.Background()

	_, err := repo.FindByCommID(ctx, "missing")
	assert.ErrorIs(t, err, link.ErrNotFound)
	_, err = repo.FindByUsername(ctx, "missing")
	assert.ErrorIs(t, err, link.ErrNotFound)
	_, err = repo.FindByGameID(ctx, uuid.New())
	assert.ErrorIs(t, err, link.ErrNotFound)
}

func TestSQLiteRemoveLinkByCommID(t *testing.T) {
	repo := setupSQLiteRepo(t, 0)
	ctx := context.Background()
	gameID := uuid.New()
	require.NoError(t, repo.AddLink(ctx, gameID, "666"))

	removed, err := repo.RemoveLinkByCommID(ctx, "666")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.RemoveLinkByCommID(ctx, "666")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = repo.FindByCommID(ctx, "666")
	assert.ErrorIs(t, err, link.ErrNotFound)
}

func TestSQLiteListAllCommIDs_Empty(t *testing.T) {
	repo := setupSQLiteRepo(t, 0)

	ids, err := repo.ListAllCommIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}
