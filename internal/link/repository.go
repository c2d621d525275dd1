package link

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no link record matches the lookup.
var ErrNotFound = errors.New("link not found")

// ErrCodeNotFound is returned when a code is unknown, expired, or already claimed.
var ErrCodeNotFound = errors.New("link code not found")

// ErrCodeCollision is returned when a code is already pending for another game id.
var ErrCodeCollision = errors.New("link code already pending for another account")

// ErrCommAlreadyLinked is returned when the Discord account is bound to some game id.
var ErrCommAlreadyLinked = errors.New("discord account already linked")

// ErrGameAlreadyLinked is returned when the game id is already bound to some Discord account.
var ErrGameAlreadyLinked = errors.New("game account already linked")

// Repository provides operations on the linked_accounts and pending_links tables.
//
// Implementations report every backing-store failure as an error; callers decide
// the conservative interpretation.
type Repository interface {
	IsLinked(ctx context.Context, gameID uuid.UUID) (bool, error)
	SavePendingCode(ctx context.Context, gameID uuid.UUID, code string) error
	// ClaimCode consumes a pending code. For any code, at most one concurrent
	// caller receives the game id; the rest get ErrCodeNotFound.
	ClaimCode(ctx context.Context, code string) (uuid.UUID, error)
	AddLink(ctx context.Context, gameID uuid.UUID, commID string) error
	FindByGameID(ctx context.Context, gameID uuid.UUID) (*Record, error)
	FindByCommID(ctx context.Context, commID string) (*Record, error)
	FindByUsername(ctx context.Context, username string) (*Record, error)
	RemoveLinkByCommID(ctx context.Context, commID string) (bool, error)
	UpdateUsername(ctx context.Context, gameID uuid.UUID, username string) error
	// ListAllCommIDs returns every linked Discord id. On a mid-scan failure it
	// returns the ids gathered so far together with the error.
	ListAllCommIDs(ctx context.Context) ([]string, error)
	PurgeExpiredCodes(ctx context.Context, olderThan time.Time) (int64, error)
}

// claimCutoff returns the oldest created_at still redeemable. A zero ttl never expires.
func claimCutoff(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Unix(0, 0).UTC()
	}
	return now.Add(-ttl)
}
