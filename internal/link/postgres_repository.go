package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PostgresRepository implements Repository using pgxpool.
type PostgresRepository struct {
	pool    *pgxpool.Pool
	codeTTL time.Duration
	now     func() time.Time
}

// NewPostgresRepository creates a new Repository backed by the given connection pool.
// Pending codes older than codeTTL cannot be claimed; zero disables expiry.
func NewPostgresRepository(pool *pgxpool.Pool, codeTTL time.Duration) Repository {
	return &PostgresRepository{pool: pool, codeTTL: codeTTL, now: time.Now}
}

// IsLinked reports whether a link record exists for the game id.
func (r *PostgresRepository) IsLinked(ctx context.Context, gameID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM linked_accounts WHERE game_id = $1)", gameID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking link: %w", err)
	}
	return exists, nil
}

// SavePendingCode upserts the pending code for gameID, replacing any earlier one.
func (r *PostgresRepository) SavePendingCode(ctx context.Context, gameID uuid.UUID, code string) error {
	query := `
		INSERT INTO pending_links (game_id, code, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (game_id) DO UPDATE
		SET code = EXCLUDED.code, created_at = EXCLUDED.created_at`

	_, err := r.pool.Exec(ctx, query, gameID, NormalizeCode(code), r.now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrCodeCollision
		}
		return fmt.Errorf("saving pending code: %w", err)
	}
	return nil
}

// ClaimCode locks the pending row for code, deletes it, and returns its game id,
// all in one transaction. A concurrent claimer blocks on the row lock and then
// re-reads the row as gone.
func (r *PostgresRepository) ClaimCode(ctx context.Context, code string) (uuid.UUID, error) {
	code = NormalizeCode(code)
	cutoff := claimCutoff(r.now().UTC(), r.codeTTL)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var gameID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT game_id
		FROM pending_links
		WHERE code = $1 AND created_at >= $2
		FOR UPDATE`,
		code, cutoff,
	).Scan(&gameID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrCodeNotFound
		}
		return uuid.Nil, fmt.Errorf("locking pending code: %w", err)
	}

	result, err := tx.Exec(ctx,
		"DELETE FROM pending_links WHERE game_id = $1 AND code = $2", gameID, code)
	if err != nil {
		return uuid.Nil, fmt.Errorf("deleting pending code: %w", err)
	}
	if result.RowsAffected() == 0 {
		return uuid.Nil, ErrCodeNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("committing claim: %w", err)
	}
	return gameID, nil
}

// AddLink binds gameID to commID. Both columns are unique at the storage layer,
// so a racing insert fails instead of creating a second binding.
func (r *PostgresRepository) AddLink(ctx context.Context, gameID uuid.UUID, commID string) error {
	_, err := r.pool.Exec(ctx,
		"INSERT INTO linked_accounts (game_id, comm_id) VALUES ($1, $2)", gameID, commID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == "linked_accounts_pkey" {
				return ErrGameAlreadyLinked
			}
			return ErrCommAlreadyLinked
		}
		return fmt.Errorf("inserting link: %w", err)
	}
	return nil
}

// FindByGameID retrieves the link record for a game id.
func (r *PostgresRepository) FindByGameID(ctx context.Context, gameID uuid.UUID) (*Record, error) {
	return r.findOne(ctx, "game_id = $1", gameID)
}

// FindByCommID retrieves the link record for a Discord id.
func (r *PostgresRepository) FindByCommID(ctx context.Context, commID string) (*Record, error) {
	return r.findOne(ctx, "comm_id = $1", commID)
}

// FindByUsername retrieves the link record whose last seen username matches,
// ignoring case.
func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (*Record, error) {
	return r.findOne(ctx, "LOWER(username) = LOWER($1)", username)
}

func (r *PostgresRepository) findOne(ctx context.Context, where string, arg any) (*Record, error) {
	query := `
		SELECT game_id, comm_id, username
		FROM linked_accounts
		WHERE ` + where + `
		LIMIT 1`

	var rec Record
	err := r.pool.QueryRow(ctx, query, arg).Scan(&rec.GameID, &rec.CommID, &rec.Username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying link: %w", err)
	}
	return &rec, nil
}

// RemoveLinkByCommID deletes the binding for a Discord id. It reports whether a row was deleted.
func (r *PostgresRepository) RemoveLinkByCommID(ctx context.Context, commID string) (bool, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM linked_accounts WHERE comm_id = $1", commID)
	if err != nil {
		return false, fmt.Errorf("deleting link: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// UpdateUsername refreshes the cached username for a linked game id.
func (r *PostgresRepository) UpdateUsername(ctx context.Context, gameID uuid.UUID, username string) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE linked_accounts SET username = $2 WHERE game_id = $1", gameID, username)
	if err != nil {
		return fmt.Errorf("updating username: %w", err)
	}
	return nil
}

// ListAllCommIDs returns every linked Discord id.
func (r *PostgresRepository) ListAllCommIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, "SELECT comm_id FROM linked_accounts ORDER BY comm_id")
	if err != nil {
		return []string{}, fmt.Errorf("listing links: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return ids, fmt.Errorf("scanning link row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return ids, fmt.Errorf("iterating link rows: %w", err)
	}
	return ids, nil
}

// PurgeExpiredCodes deletes pending codes created before olderThan.
func (r *PostgresRepository) PurgeExpiredCodes(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM pending_links WHERE created_at < $1", olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("purging pending codes: %w", err)
	}
	return result.RowsAffected(), nil
}
