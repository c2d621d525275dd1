package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sentinelgg/sentinel/internal/metrics"
)

const (
	sessionKeyPrefix = "sentinel:session:"
	kicksKey         = "sentinel:kicks"
)

// DefaultTTL is how long a session survives without a heartbeat.
const DefaultTTL = 90 * time.Second

// Directory is a Redis-backed session directory. Sessions are JSON values that
// expire unless the proxy refreshes them; kicks are a list the proxy drains.
type Directory struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to the Redis server at url and verifies the connection.
func New(ctx context.Context, url string, ttl time.Duration) (*Directory, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return NewWithClient(client, ttl), nil
}

// NewWithClient creates a Directory over an existing client.
func NewWithClient(client *redis.Client, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Directory{client: client, ttl: ttl}
}

// Close closes the Redis connection.
func (d *Directory) Close() error {
	return d.client.Close()
}

// Ping verifies Redis is reachable.
func (d *Directory) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}

// Register records or refreshes an active session. Repeated calls act as heartbeats.
func (d *Directory) Register(ctx context.Context, s Session) error {
	if s.ConnectedAt.IsZero() {
		s.ConnectedAt = time.Now().UTC()
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := d.client.Set(ctx, sessionKey(s.GameID), data, d.ttl).Err(); err != nil {
		return fmt.Errorf("registering session %s: %w", s.GameID, err)
	}
	return nil
}

// Remove forgets a session. Removing an unknown session is not an error.
func (d *Directory) Remove(ctx context.Context, gameID uuid.UUID) error {
	if err := d.client.Del(ctx, sessionKey(gameID)).Err(); err != nil {
		return fmt.Errorf("removing session %s: %w", gameID, err)
	}
	return nil
}

// Find returns the active session for gameID, or ErrSessionNotFound.
func (d *Directory) Find(ctx context.Context, gameID uuid.UUID) (*Session, error) {
	data, err := d.client.Get(ctx, sessionKey(gameID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("finding session %s: %w", gameID, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", gameID, err)
	}
	return &s, nil
}

// Disconnect ends the session for gameID and queues a kick carrying message.
// The delete and the enqueue happen in one MULTI block.
func (d *Directory) Disconnect(ctx context.Context, gameID uuid.UUID, message string) error {
	kick := Kick{GameID: gameID, Message: message, IssuedAt: time.Now().UTC()}
	if s, err := d.Find(ctx, gameID); err == nil {
		kick.Username = s.Username
	}

	data, err := json.Marshal(kick)
	if err != nil {
		return err
	}

	_, err = d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(gameID))
		pipe.RPush(ctx, kicksKey, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("queueing kick for %s: %w", gameID, err)
	}

	metrics.Kicks.Inc()
	return nil
}

// DrainKicks pops up to limit queued kicks, oldest first. The read and the trim
// run atomically so two drainers never receive the same kick.
func (d *Directory) DrainKicks(ctx context.Context, limit int) ([]Kick, error) {
	if limit <= 0 {
		return []Kick{}, nil
	}

	var rng *redis.StringSliceCmd
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rng = pipe.LRange(ctx, kicksKey, 0, int64(limit-1))
		pipe.LTrim(ctx, kicksKey, int64(limit), -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("draining kicks: %w", err)
	}

	kicks := make([]Kick, 0, len(rng.Val()))
	for _, raw := range rng.Val() {
		var k Kick
		if err := json.Unmarshal([]byte(raw), &k); err != nil {
			slog.Warn("dropping malformed kick", "error", err)
			continue
		}
		kicks = append(kicks, k)
	}
	return kicks, nil
}

func sessionKey(gameID uuid.UUID) string {
	return sessionKeyPrefix + gameID.String()
}
