package session

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Store is the session record contract shared by both backends.
//
// Get and Set address individual flags by wire name; absence of a flag is
// expected and yields the caller's default, never an error. Set persists
// immediately — there is no batching, and the last writer wins. Snapshot
// returns the full typed state for inspection and never exposes the backend's
// internal bookkeeping fields.
type Store interface {
	Get(ctx context.Context, sessionID, flag, def string) (string, error)
	Set(ctx context.Context, sessionID, flag, value string) error
	SetDownloadLinks(ctx context.Context, sessionID string, links []json.RawMessage) error
	Snapshot(ctx context.Context, sessionID string) (*State, error)
	Delete(ctx context.Context, sessionID string) error

	// Backend names the active implementation ("redis" or "file").
	Backend() string
	Close() error
}

// RecentEntry is one stored session with its last-modified time.
type RecentEntry struct {
	SessionID  string    `json:"session_id"`
	ModifiedAt time.Time `json:"modified_at"`
}

// RecentLister enumerates stored sessions by recency. Only the file backend
// implements it; Redis has no cheap notion of per-record modification time,
// and the operation exists for offline debugging, not the request path.
type RecentLister interface {
	ListRecent(n int) ([]RecentEntry, error)
}

// GetBool reads a bool flag through a Store, applying the default when the
// flag is absent or unparsable.
func GetBool(ctx context.Context, s Store, sessionID, flag string, def bool) (bool, error) {
	raw, err := s.Get(ctx, sessionID, flag, strconv.FormatBool(def))
	if err != nil {
		return def, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, nil
	}
	return v, nil
}

// SetBool writes a bool flag through a Store in its canonical string form.
func SetBool(ctx context.Context, s Store, sessionID, flag string, v bool) error {
	return s.Set(ctx, sessionID, flag, strconv.FormatBool(v))
}

// Options selects and configures a backend for Open.
type Options struct {
	// RedisHost selects the Redis backend when non-empty. When empty, or when
	// the Redis connection cannot be established, the file backend is used.
	RedisHost string
	RedisPort int
	RedisDB   int

	// TTL applies to Redis records only; zero disables expiry. The file
	// backend has no eviction.
	TTL time.Duration

	// Dir is the file backend's session directory.
	Dir string
}

// Addr returns the host:port form of the Redis target, or "" when no host is
// configured.
func (o Options) Addr() string {
	if o.RedisHost == "" {
		return ""
	}
	port := o.RedisPort
	if port == 0 {
		port = 6379
	}
	return o.RedisHost + ":" + strconv.Itoa(port)
}

// Open constructs the session store, preferring Redis when a host is
// configured. A Redis that cannot be reached is logged and silently degraded
// to the file backend — store construction must never prevent the service
// from starting.
func Open(opts Options) (Store, error) {
	if addr := opts.Addr(); addr != "" {
		rs, err := NewRedisStore(addr, opts.RedisDB, opts.TTL)
		if err == nil {
			log.Info().Str("addr", addr).Int("db", opts.RedisDB).Msg("session store: redis backend")
			return rs, nil
		}
		log.Warn().Err(err).Str("addr", addr).Msg("session store: redis unavailable, falling back to file backend")
	}

	fs, err := NewFileStore(opts.Dir)
	if err != nil {
		return nil, err
	}
	log.Info().Str("dir", fs.Dir()).Msg("session store: file backend")
	return fs, nil
}
