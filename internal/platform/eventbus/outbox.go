package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Outbox implements the write-then-publish pattern spec.md §9 requires:
// a domain operation inserts its event row in the same transaction as its
// state change, so a crash between commit and publish never loses an
// event — a relay goroutine polls the table and forwards unsent rows to
// the Publisher, retrying with bounded exponential backoff.
type Outbox struct {
	pool *pgxpool.Pool
	pub  *Publisher
	log  *slog.Logger
}

func NewOutbox(pool *pgxpool.Pool, pub *Publisher, log *slog.Logger) *Outbox {
	return &Outbox{pool: pool, pub: pub, log: log}
}

// Enqueue writes env into the outbox table using tx, the same transaction
// the caller's domain write runs in. Call this instead of Publisher.Publish
// directly from any code path that also mutates Postgres state.
func (o *Outbox) Enqueue(ctx context.Context, tx pgx.Tx, env Envelope) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO eventbus.outbox (event_id, event_type, tenant_id, occurred_at, payload, attempts, status)
		VALUES ($1, $2, $3, $4, $5, 0, 'pending')
	`, env.EventID, env.EventType, env.TenantID, env.OccurredAt, env.Payload)
	if err != nil {
		return fmt.Errorf("eventbus: enqueue outbox row: %w", err)
	}
	return nil
}

const (
	relayBatchSize  = 50
	relayMaxAttempt = 3
	relayBaseDelay  = 100 * time.Millisecond
)

// RelayLoop polls the outbox table every interval and publishes pending
// rows until ctx is cancelled. Run it once per process that owns the
// outbox table (typically the service performing the domain write).
func (o *Outbox) RelayLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.relayOnce(ctx); err != nil {
				o.log.Error("outbox_relay_failed", "error", err)
			}
		}
	}
}

func (o *Outbox) relayOnce(ctx context.Context) error {
	rows, err := o.pool.Query(ctx, `
		SELECT event_id, event_type, tenant_id, occurred_at, payload, attempts
		FROM eventbus.outbox
		WHERE status = 'pending' AND next_attempt_at <= now()
		ORDER BY occurred_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, relayBatchSize)
	if err != nil {
		return fmt.Errorf("eventbus: query outbox: %w", err)
	}
	defer rows.Close()

	type pendingRow struct {
		env      Envelope
		attempts int
	}
	var pending []pendingRow

	for rows.Next() {
		var env Envelope
		var payload json.RawMessage
		var attempts int
		if err := rows.Scan(&env.EventID, &env.EventType, &env.TenantID, &env.OccurredAt, &payload, &attempts); err != nil {
			return fmt.Errorf("eventbus: scan outbox row: %w", err)
		}
		env.Payload = payload
		pending = append(pending, pendingRow{env: env, attempts: attempts})
	}
	rows.Close()

	for _, p := range pending {
		if err := o.pub.Publish(ctx, p.env); err != nil {
			o.markFailed(ctx, p.env.EventID, p.attempts+1, err)
			continue
		}
		o.markPublished(ctx, p.env.EventID)
	}
	return nil
}

func (o *Outbox) markPublished(ctx context.Context, eventID any) {
	if _, err := o.pool.Exec(ctx, `
		UPDATE eventbus.outbox SET status = 'published', published_at = now() WHERE event_id = $1
	`, eventID); err != nil {
		o.log.Error("outbox_mark_published_failed", "event_id", eventID, "error", err)
	}
}

// markFailed bumps the attempt counter and schedules the next retry with
// exponential backoff plus jitter; once attempts reaches relayMaxAttempt
// the row is marked dead so it stops being polled but stays for inspection.
func (o *Outbox) markFailed(ctx context.Context, eventID any, attempts int, cause error) {
	status := "pending"
	if attempts >= relayMaxAttempt {
		status = "dead"
	}

	delay := relayBaseDelay * time.Duration(1<<uint(attempts))
	jitter := time.Duration(rand.Int63n(int64(delay) / 2))
	nextAttempt := time.Now().Add(delay + jitter)

	if _, err := o.pool.Exec(ctx, `
		UPDATE eventbus.outbox
		SET attempts = $2, status = $3, next_attempt_at = $4, last_error = $5
		WHERE event_id = $1
	`, eventID, attempts, status, nextAttempt, cause.Error()); err != nil {
		o.log.Error("outbox_mark_failed_failed", "event_id", eventID, "error", err)
	}

	o.log.Warn("outbox_publish_failed", "event_id", eventID, "attempts", attempts, "status", status, "error", cause)
}
