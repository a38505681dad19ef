// Package notify publishes session flag changes over NATS so that writes made
// by one worker are observable everywhere else. The bus exists for
// operational visibility — the session-watch debug endpoint streams from it —
// and is strictly best-effort: a publish failure is logged, never surfaced to
// the write path.
package notify

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// SubjectChanged is the firehose subject for all flag changes. Per-session
// events are additionally published to SubjectChanged + ".<session_id>".
const SubjectChanged = "session.changed"

// FlagChange is one observed mutation of a session record.
type FlagChange struct {
	SessionID string `json:"session_id"`
	Flag      string `json:"flag"`
	Value     string `json:"value"`
	Backend   string `json:"backend"`
	ChangedAt int64  `json:"changed_at"` // unix timestamp
}

// Bus wraps the NATS connection for publishing and subscribing to flag
// change events.
type Bus struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs []*nats.Subscription
}

// Connect establishes the NATS connection with infinite reconnects and
// returns a ready bus.
func Connect(url, name string) (*Bus, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("notify: nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("notify: nats reconnected")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: nats connect: %w", err)
	}

	log.Info().Str("url", nc.ConnectedUrl()).Msg("notify: nats connected")
	return &Bus{conn: nc}, nil
}

// PublishChange emits a flag change to the firehose subject and the
// per-session subject.
func (b *Bus) PublishChange(ch FlagChange) error {
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("notify: marshal change: %w", err)
	}
	if err := b.conn.Publish(SubjectChanged, data); err != nil {
		return fmt.Errorf("notify: publish %s: %w", SubjectChanged, err)
	}
	subject := SubjectChanged + "." + ch.SessionID
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("notify: publish %s: %w", subject, err)
	}
	return nil
}

// SubscribeChanges registers a handler for flag changes. An empty sessionID
// subscribes to the firehose; otherwise only that session's events are
// delivered. The returned function cancels the subscription.
func (b *Bus) SubscribeChanges(sessionID string, handler func(FlagChange)) (func(), error) {
	subject := SubjectChanged
	if sessionID != "" {
		subject = SubjectChanged + "." + sessionID
	}

	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		var ch FlagChange
		if err := json.Unmarshal(msg.Data, &ch); err != nil {
			log.Warn().Err(err).Str("subject", subject).Msg("notify: bad change event")
			return
		}
		handler(ch)
	})
	if err != nil {
		return nil, fmt.Errorf("notify: subscribe %s: %w", subject, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return func() { _ = sub.Unsubscribe() }, nil
}

// Close drains outstanding subscriptions and closes the connection.
func (b *Bus) Close() {
	b.mu.Lock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
	b.mu.Unlock()
	b.conn.Close()
}
