package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix is the Redis key prefix for all session hashes.
const KeyPrefix = "session:"

// connectTimeout bounds the startup ping so a dead Redis fails fast and the
// caller can fall back to the file backend.
const connectTimeout = 5 * time.Second

// RedisStore keeps one Redis hash per session. Hash fields are the flag wire
// names plus the internal bookkeeping fields; every write refreshes the TTL
// when one is configured. Field-level HSET gives the atomicity the record
// needs across workers.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection before
// returning. A connection that cannot be established is an error here — the
// fallback decision belongs to Open, not to this constructor.
func NewRedisStore(addr string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("session: redis connect %s: %w", addr, err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) key(sessionID string) string { return KeyPrefix + sessionID }

// Get returns the current value of a flag, or def when the session or the
// flag does not exist.
func (s *RedisStore) Get(ctx context.Context, sessionID, flag, def string) (string, error) {
	if err := validateSessionID(sessionID); err != nil {
		return def, err
	}

	v, err := s.client.HGet(ctx, s.key(sessionID), flag).Result()
	if errors.Is(err, redis.Nil) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("session: redis HGET %s: %w", sessionID, err)
	}
	return v, nil
}

// Set upserts one flag and stamps the internal bookkeeping fields in the same
// pipeline, refreshing the TTL when configured.
func (s *RedisStore) Set(ctx context.Context, sessionID, flag, value string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	if err := validateFlag(flag); err != nil {
		return err
	}

	key := s.key(sessionID)
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key,
		flag, value,
		fieldPermanent, "true",
		fieldSchema, SchemaVersion,
	)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: redis HSET %s %s: %w", sessionID, flag, err)
	}
	return nil
}

// SetDownloadLinks replaces the stored download link list. Links are opaque
// to the store and kept as a single JSON array field.
func (s *RedisStore) SetDownloadLinks(ctx context.Context, sessionID string, links []json.RawMessage) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	data, err := json.Marshal(links)
	if err != nil {
		return fmt.Errorf("session: marshal download links %s: %w", sessionID, err)
	}

	key := s.key(sessionID)
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key,
		fieldLinks, string(data),
		fieldPermanent, "true",
		fieldSchema, SchemaVersion,
	)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: redis HSET %s links: %w", sessionID, err)
	}
	return nil
}

// Snapshot reads the whole hash in one HGETALL, which is atomic on the Redis
// side, and returns the typed state. Unknown sessions snapshot to defaults.
func (s *RedisStore) Snapshot(ctx context.Context, sessionID string) (*State, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	raw, err := s.client.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("session: redis HGETALL %s: %w", sessionID, err)
	}

	var links []json.RawMessage
	if data, ok := raw[fieldLinks]; ok && data != "" {
		if err := json.Unmarshal([]byte(data), &links); err != nil {
			return nil, &CorruptRecordError{SessionID: sessionID, Err: err}
		}
	}
	return stateFromRaw(sessionID, raw, links), nil
}

// Delete removes the session hash.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

func (s *RedisStore) Backend() string { return "redis" }

// Close closes the Redis connection.
func (s *RedisStore) Close() error { return s.client.Close() }

// Client exposes the underlying Redis client for components that share the
// connection (the debug API rate limiter).
func (s *RedisStore) Client() *redis.Client { return s.client }
