package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Broker carries envelopes from publishers to the hub of every instance.
type Broker interface {
	// Publish hands env to the broker for delivery on all instances.
	Publish(ctx context.Context, env Envelope) error
	// Run delivers incoming envelopes to the local hub until ctx is done.
	Run(ctx context.Context) error
}

// LocalBroker delivers straight to the in-process hub. It is the broker for
// a single instance.
type LocalBroker struct {
	hub *Hub
}

// NewLocalBroker creates a LocalBroker.
func NewLocalBroker(hub *Hub) *LocalBroker {
	return &LocalBroker{hub: hub}
}

// Publish delivers env to the local hub.
func (b *LocalBroker) Publish(_ context.Context, env Envelope) error {
	b.hub.Deliver(env.Target, DataFrame(env.Event))
	return nil
}

// Run blocks until ctx is done.
func (b *LocalBroker) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// maxNotifyPayload stays below PostgreSQL's 8000-byte NOTIFY limit.
const maxNotifyPayload = 7900

// PGBroker fans envelopes out through PostgreSQL LISTEN/NOTIFY so every
// instance sharing the database delivers to its own connections.
type PGBroker struct {
	pool    *pgxpool.Pool
	channel string
	hub     *Hub
	log     *slog.Logger
	backoff time.Duration
}

// NewPGBroker creates a PGBroker on channel.
func NewPGBroker(pool *pgxpool.Pool, channel string, hub *Hub, log *slog.Logger) *PGBroker {
	return &PGBroker{pool: pool, channel: channel, hub: hub, log: log, backoff: time.Second}
}

// Publish sends env with pg_notify. Envelopes too large for NOTIFY are
// delivered to this instance only.
func (b *PGBroker) Publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if len(payload) > maxNotifyPayload {
		b.log.WarnContext(ctx, "notify: envelope exceeds NOTIFY limit, delivering locally only", "bytes", len(payload))
		b.hub.Deliver(env.Target, DataFrame(env.Event))
		return nil
	}
	if _, err := b.pool.Exec(ctx, "SELECT pg_notify($1, $2)", b.channel, string(payload)); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}
	return nil
}

// Run listens on the channel, reconnecting after failures, until ctx is done.
func (b *PGBroker) Run(ctx context.Context) error {
	for {
		err := b.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		b.log.Error("notify: listener stopped, reconnecting", "err", err, "backoff", b.backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(b.backoff):
		}
	}
}

func (b *PGBroker) listen(ctx context.Context) error {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{b.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", b.channel, err)
	}
	b.log.Info("notify: listening", "channel", b.channel)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		var env Envelope
		if err := json.Unmarshal([]byte(n.Payload), &env); err != nil {
			b.log.Warn("notify: discarding malformed envelope", "err", err)
			continue
		}
		b.hub.Deliver(env.Target, DataFrame(env.Event))
	}
}
