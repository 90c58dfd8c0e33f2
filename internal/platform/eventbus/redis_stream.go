package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	streamPrefix     = "events:"
	deadLetterSuffix = ":dead"
	claimMinIdle     = 30 * time.Second
	maxDeliveries    = 2 // one redelivery attempt before dead-lettering, per spec.md §4.4
)

// streamKey returns the Redis stream holding events for the given
// aggregate family, e.g. "events:appointment".
func streamKey(aggregate string) string {
	return streamPrefix + aggregate
}

func deadLetterKey(aggregate string) string {
	return streamKey(aggregate) + deadLetterSuffix
}

// Publisher appends envelopes to their aggregate's Redis stream.
type Publisher struct {
	client redis.UniversalClient
	log    *slog.Logger
}

func NewPublisher(client redis.UniversalClient, log *slog.Logger) *Publisher {
	return &Publisher{client: client, log: log}
}

// Publish appends env to the stream selected by its aggregate prefix.
func (p *Publisher) Publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("eventbus: marshal envelope: %w", err)
	}

	stream := streamKey(Aggregate(env.EventType))
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"envelope": string(body)},
	}).Result()
	if err != nil {
		return fmt.Errorf("eventbus: xadd %s: %w", stream, err)
	}

	p.log.Debug("event_published", "event_id", env.EventID, "event_type", env.EventType, "stream", stream, "stream_id", id)
	return nil
}

// Handler processes one decoded envelope. Returning an error nacks the
// message; the consumer redelivers it once before dead-lettering.
type Handler func(ctx context.Context, env Envelope) error

// Consumer reads one aggregate's stream under a named consumer group,
// dispatching to Handler with bounded concurrency and reclaiming messages
// abandoned by dead consumers via XPENDING/XCLAIM.
type Consumer struct {
	client        redis.UniversalClient
	log           *slog.Logger
	aggregate     string
	group         string
	consumerName  string
	prefetch       int64
	concurrency    int
	blockInterval  time.Duration
	handlerTimeout time.Duration
	deadLetterDB   *pgxpool.Pool
}

type ConsumerOption func(*Consumer)

func WithPrefetch(n int) ConsumerOption {
	return func(c *Consumer) { c.prefetch = int64(n) }
}

func WithConcurrency(n int) ConsumerOption {
	return func(c *Consumer) { c.concurrency = n }
}

// WithHandlerTimeout bounds how long a single Handler invocation may run
// before its message is nacked, so one slow downstream call can't stall
// an entire worker goroutine indefinitely.
func WithHandlerTimeout(d time.Duration) ConsumerOption {
	return func(c *Consumer) { c.handlerTimeout = d }
}

// WithDeadLetterSink additionally persists dead-lettered envelopes into
// eventbus.dead_letters, giving operators a durable, queryable record
// beyond the Redis dead-letter stream's own retention.
func WithDeadLetterSink(pool *pgxpool.Pool) ConsumerOption {
	return func(c *Consumer) { c.deadLetterDB = pool }
}

// NewConsumer builds a Consumer for aggregate's stream. consumerName
// should be unique per process (e.g. hostname-pid) so reclaim logic can
// tell live consumers from dead ones.
func NewConsumer(client redis.UniversalClient, log *slog.Logger, aggregate, group, consumerName string, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		client:         client,
		log:            log,
		aggregate:      aggregate,
		group:          group,
		consumerName:   consumerName,
		prefetch:       10,
		concurrency:    4,
		blockInterval:  5 * time.Second,
		handlerTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run creates the consumer group if needed and blocks, dispatching
// messages to handle until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	stream := streamKey(c.aggregate)
	if err := c.client.XGroupCreateMkStream(ctx, stream, c.group, "0").Err(); err != nil && !isBusyGroupErr(err) {
		return fmt.Errorf("eventbus: create consumer group %s on %s: %w", c.group, stream, err)
	}

	work := make(chan redis.XMessage, c.prefetch)
	for i := 0; i < c.concurrency; i++ {
		go c.worker(ctx, work, handle)
	}
	defer close(work)

	reclaimTicker := time.NewTicker(claimMinIdle)
	defer reclaimTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-reclaimTicker.C:
			c.reclaimAbandoned(ctx, work, handle)
		default:
		}

		res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumerName,
			Streams:  []string{stream, ">"},
			Count:    c.prefetch,
			Block:    c.blockInterval,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			c.log.Error("eventbus_read_failed", "stream", stream, "group", c.group, "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				select {
				case work <- msg:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func (c *Consumer) worker(ctx context.Context, work <-chan redis.XMessage, handle Handler) {
	for msg := range work {
		c.process(ctx, msg, handle)
	}
}

func (c *Consumer) process(ctx context.Context, msg redis.XMessage, handle Handler) {
	stream := streamKey(c.aggregate)

	env, err := decodeMessage(msg)
	if err != nil {
		c.log.Error("eventbus_decode_failed", "stream", stream, "stream_id", msg.ID, "error", err)
		_ = c.client.XAck(ctx, stream, c.group, msg.ID).Err()
		return
	}

	// Per spec.md's tenant isolation invariant: an envelope missing a
	// tenant id cannot be safely dispatched to any tenant-scoped handler.
	if env.TenantID == "" {
		c.log.Warn("eventbus_dropped_missing_tenant", "stream", stream, "event_id", env.EventID)
		_ = c.client.XAck(ctx, stream, c.group, msg.ID).Err()
		return
	}

	handlerCtx, cancel := context.WithTimeout(ctx, c.handlerTimeout)
	defer cancel()

	if err := handle(handlerCtx, env); err != nil {
		c.log.Warn("eventbus_handler_failed", "stream", stream, "event_id", env.EventID, "event_type", env.EventType, "error", err)
		c.nack(ctx, msg, env)
		return
	}

	if ackErr := c.client.XAck(ctx, stream, c.group, msg.ID).Err(); ackErr != nil {
		c.log.Error("eventbus_ack_failed", "stream", stream, "stream_id", msg.ID, "error", ackErr)
	}
}

// nack leaves the message pending so XPENDING/XCLAIM can redeliver it; once
// a message's delivery count reaches maxDeliveries, reclaimAbandoned moves
// it to the dead-letter stream instead of reclaiming it again.
func (c *Consumer) nack(ctx context.Context, msg redis.XMessage, env Envelope) {
	// Nothing to do beyond leaving the message unacked; it stays in the
	// group's pending entries list until the next reclaim pass.
	_ = msg
	_ = env
}

// reclaimAbandoned scans the pending entries list for messages idle longer
// than claimMinIdle, claims them for this consumer, and either redelivers
// or dead-letters them depending on delivery count.
func (c *Consumer) reclaimAbandoned(ctx context.Context, work chan<- redis.XMessage, handle Handler) {
	stream := streamKey(c.aggregate)

	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  c.group,
		Start:  "-",
		End:    "+",
		Count:  100,
		Idle:   claimMinIdle,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Error("eventbus_xpending_failed", "stream", stream, "error", err)
		}
		return
	}

	for _, p := range pending {
		if p.RetryCount >= maxDeliveries {
			c.deadLetter(ctx, stream, p.ID)
			continue
		}

		claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   stream,
			Group:    c.group,
			Consumer: c.consumerName,
			MinIdle:  claimMinIdle,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			c.log.Error("eventbus_xclaim_failed", "stream", stream, "stream_id", p.ID, "error", err)
			continue
		}

		for _, msg := range claimed {
			select {
			case work <- msg:
			default:
				c.process(ctx, msg, handle)
			}
		}
	}
}

// deadLetter moves a message's raw fields onto the aggregate's dead-letter
// stream and acknowledges it off the main stream's pending list.
func (c *Consumer) deadLetter(ctx context.Context, stream, id string) {
	msgs, err := c.client.XRange(ctx, stream, id, id).Result()
	if err != nil || len(msgs) == 0 {
		c.log.Error("eventbus_dead_letter_lookup_failed", "stream", stream, "stream_id", id, "error", err)
		return
	}

	dlStream := deadLetterKey(c.aggregate)
	if _, err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: dlStream, Values: msgs[0].Values}).Result(); err != nil {
		c.log.Error("eventbus_dead_letter_write_failed", "stream", dlStream, "error", err)
		return
	}

	if c.deadLetterDB != nil {
		if env, err := decodeMessage(msgs[0]); err == nil {
			if _, err := c.deadLetterDB.Exec(ctx, `
				INSERT INTO eventbus.dead_letters (stream, event_id, event_type, tenant_id, payload)
				VALUES ($1, $2, $3, $4, $5)
			`, stream, env.EventID, env.EventType, env.TenantID, env.Payload); err != nil {
				c.log.Error("eventbus_dead_letter_persist_failed", "stream", stream, "stream_id", id, "error", err)
			}
		}
	}

	if err := c.client.XAck(ctx, stream, c.group, id).Err(); err != nil {
		c.log.Error("eventbus_dead_letter_ack_failed", "stream", stream, "stream_id", id, "error", err)
	}
	c.log.Warn("eventbus_dead_lettered", "stream", stream, "stream_id", id, "dead_letter_stream", dlStream)
}

func decodeMessage(msg redis.XMessage) (Envelope, error) {
	raw, ok := msg.Values["envelope"].(string)
	if !ok {
		return Envelope{}, fmt.Errorf("eventbus: message %s missing envelope field", msg.ID)
	}
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Envelope{}, fmt.Errorf("eventbus: unmarshal envelope: %w", err)
	}
	return env, nil
}

func isBusyGroupErr(err error) bool {
	return strings.Contains(err.Error(), "BUSYGROUP")
}
