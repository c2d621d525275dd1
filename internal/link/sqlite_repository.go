package link

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS linked_accounts (
		game_id  TEXT PRIMARY KEY,
		comm_id  TEXT NOT NULL UNIQUE,
		username TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS linked_accounts_username_idx ON linked_accounts (username COLLATE NOCASE)`,
	`CREATE TABLE IF NOT EXISTS pending_links (
		game_id    TEXT PRIMARY KEY,
		code       TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL
	)`,
}

// SQLiteRepository implements Repository on an embedded SQLite file for
// single-node deployments.
type SQLiteRepository struct {
	sqlDB   *sql.DB
	codeTTL time.Duration
	now     func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// OpenSQLite opens (creating if needed) the SQLite store at path and applies the schema.
func OpenSQLite(ctx context.Context, path string, codeTTL time.Duration) (*SQLiteRepository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; every statement below is a single atomic unit.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := sqlDB.ExecContext(ctx, stmt); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("applying sqlite schema: %w", err)
		}
	}
	return &SQLiteRepository{sqlDB: sqlDB, codeTTL: codeTTL, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (r *SQLiteRepository) Close() error {
	if r == nil || r.sqlDB == nil {
		return nil
	}
	return r.sqlDB.Close()
}

// Ping verifies the SQLite handle is usable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.sqlDB.PingContext(ctx)
}

// IsLinked reports whether gameID has a link record.
func (r *SQLiteRepository) IsLinked(ctx context.Context, gameID uuid.UUID) (bool, error) {
	var exists bool
	err := r.sqlDB.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM linked_accounts WHERE game_id = ?)", gameID.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check link: %w", err)
	}
	return exists, nil
}

// SavePendingCode stores code for gameID, replacing any earlier code. It returns
// ErrCodeCollision when another game id already holds code.
func (r *SQLiteRepository) SavePendingCode(ctx context.Context, gameID uuid.UUID, code string) error {
	_, err := r.sqlDB.ExecContext(ctx,
		`INSERT INTO pending_links (game_id, code, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(game_id) DO UPDATE SET
		   code = excluded.code,
		   created_at = excluded.created_at`,
		gameID.String(), NormalizeCode(code), toMillis(r.now()),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err, "pending_links.code") {
			return ErrCodeCollision
		}
		return fmt.Errorf("save pending code: %w", err)
	}
	return nil
}

// ClaimCode deletes the pending row and returns its game id in one statement,
// so two claimers can never both observe the row.
func (r *SQLiteRepository) ClaimCode(ctx context.Context, code string) (uuid.UUID, error) {
	cutoff := claimCutoff(r.now(), r.codeTTL)

	var raw string
	err := r.sqlDB.QueryRowContext(ctx,
		`DELETE FROM pending_links
		 WHERE code = ? AND created_at >= ?
		 RETURNING game_id`,
		NormalizeCode(code), toMillis(cutoff),
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, ErrCodeNotFound
		}
		return uuid.Nil, fmt.Errorf("claim pending code: %w", err)
	}

	gameID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse claimed game id %q: %w", raw, err)
	}
	return gameID, nil
}

// AddLink binds gameID to commID. Either side already bound yields
// ErrGameAlreadyLinked or ErrCommAlreadyLinked.
func (r *SQLiteRepository) AddLink(ctx context.Context, gameID uuid.UUID, commID string) error {
	_, err := r.sqlDB.ExecContext(ctx,
		"INSERT INTO linked_accounts (game_id, comm_id) VALUES (?, ?)", gameID.String(), commID)
	if err != nil {
		if isSQLiteUniqueViolation(err, "linked_accounts.game_id") {
			return ErrGameAlreadyLinked
		}
		if isSQLiteUniqueViolation(err, "linked_accounts.comm_id") {
			return ErrCommAlreadyLinked
		}
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

// FindByGameID retrieves the link record for a game id.
func (r *SQLiteRepository) FindByGameID(ctx context.Context, gameID uuid.UUID) (*Record, error) {
	return r.findOne(ctx, "game_id = ?", gameID.String())
}

// FindByCommID retrieves the link record for a Discord id.
func (r *SQLiteRepository) FindByCommID(ctx context.Context, commID string) (*Record, error) {
	return r.findOne(ctx, "comm_id = ?", commID)
}

// FindByUsername retrieves the link record whose last seen username matches, ignoring case.
func (r *SQLiteRepository) FindByUsername(ctx context.Context, username string) (*Record, error) {
	return r.findOne(ctx, "username = ? COLLATE NOCASE", username)
}

func (r *SQLiteRepository) findOne(ctx context.Context, where string, arg any) (*Record, error) {
	row := r.sqlDB.QueryRowContext(ctx,
		"SELECT game_id, comm_id, username FROM linked_accounts WHERE "+where+" LIMIT 1", arg)

	var (
		rec      Record
		rawID    string
		username sql.NullString
	)
	if err := row.Scan(&rawID, &rec.CommID, &username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query link: %w", err)
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse game id %q: %w", rawID, err)
	}
	rec.GameID = id
	if username.Valid {
		rec.Username = &username.String
	}
	return &rec, nil
}

// RemoveLinkByCommID deletes the link for commID and reports whether one existed.
func (r *SQLiteRepository) RemoveLinkByCommID(ctx context.Context, commID string) (bool, error) {
	result, err := r.sqlDB.ExecContext(ctx, "DELETE FROM linked_accounts WHERE comm_id = ?", commID)
	if err != nil {
		return false, fmt.Errorf("delete link: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete link rows affected: %w", err)
	}
	return n > 0, nil
}

// UpdateUsername records the latest username seen for gameID.
func (r *SQLiteRepository) UpdateUsername(ctx context.Context, gameID uuid.UUID, username string) error {
	_, err := r.sqlDB.ExecContext(ctx,
		"UPDATE linked_accounts SET username = ? WHERE game_id = ?", username, gameID.String())
	if err != nil {
		return fmt.Errorf("update username: %w", err)
	}
	return nil
}

// ListAllCommIDs returns every linked Discord id, with the ids read so far on error.
func (r *SQLiteRepository) ListAllCommIDs(ctx context.Context) ([]string, error) {
	rows, err := r.sqlDB.QueryContext(ctx, "SELECT comm_id FROM linked_accounts ORDER BY comm_id")
	if err != nil {
		return []string{}, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return ids, fmt.Errorf("scan link row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return ids, fmt.Errorf("iterate link rows: %w", err)
	}
	return ids, nil
}

// PurgeExpiredCodes deletes pending codes created before olderThan.
func (r *SQLiteRepository) PurgeExpiredCodes(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.sqlDB.ExecContext(ctx, "DELETE FROM pending_links WHERE created_at < ?", toMillis(olderThan))
	if err != nil {
		return 0, fmt.Errorf("purge pending codes: %w", err)
	}
	return result.RowsAffected()
}

func isSQLiteUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return strings.Contains(message, column)
		}
	}
	return strings.Contains(message, "unique constraint failed") && strings.Contains(message, column)
}

var _ Repository = (*SQLiteRepository)(nil)
