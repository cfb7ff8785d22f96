package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/amirasaad/ledgersync/pkg/domain"
	"github.com/amirasaad/ledgersync/pkg/messaging"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	fieldPayload       = "payload"
	fieldCorrelationID = "correlation_id"
	fieldReplyTo       = "reply_to"
)

// RedisConfig configures a RedisBus.
type RedisConfig struct {
	// Prefix namespaces every stream and reply key.
	Prefix string
	// Group is the consumer group used by Serve.
	Group string
	// ReplyTTL bounds how long an unread reply list survives.
	ReplyTTL time.Duration
	// Block is how long one XREADGROUP call waits for new entries.
	Block time.Duration
}

// DefaultRedisConfig returns the defaults used when fields are left empty.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Prefix:   "ledger",
		Group:    "ledger",
		ReplyTTL: time.Minute,
		Block:    2 * time.Second,
	}
}

// RedisBus implements messaging.Bus on Redis Streams. Requests are stream
// entries carrying a reply_to list key; the consumer LPUSHes its reply there
// and the requester BLPOPs it.
type RedisBus struct {
	client *redis.Client
	cfg    RedisConfig
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedisBus creates a bus on an existing client. The client is not closed by Close.
func NewRedisBus(client *redis.Client, cfg RedisConfig, logger *slog.Logger) (*RedisBus, error) {
	if client == nil {
		return nil, fmt.Errorf("redis bus: client is required")
	}
	def := DefaultRedisConfig()
	if strings.TrimSpace(cfg.Prefix) == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.Group == "" {
		cfg.Group = def.Group
	}
	if cfg.ReplyTTL <= 0 {
		cfg.ReplyTTL = def.ReplyTTL
	}
	if cfg.Block <= 0 {
		cfg.Block = def.Block
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisBus{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "redis-bus"),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (b *RedisBus) stream(route string) string {
	return b.cfg.Prefix + ":" + route
}

func (b *RedisBus) replyKey(correlationID string) string {
	return b.cfg.Prefix + ":reply:" + correlationID
}

// Publish appends a fire-and-forget entry to route's stream.
func (b *RedisBus) Publish(ctx context.Context, route string, payload []byte) error {
	err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream(route),
		Values: map[string]any{fieldPayload: string(payload)},
	}).Err()
	if err != nil {
		b.logger.Error("failed to publish", "route", route, "error", err)
		return fmt.Errorf("%w: redis publish on %s: %v", domain.ErrTransport, route, err)
	}
	return nil
}

// Request appends a request entry and returns a Future that waits on its reply key.
func (b *RedisBus) Request(ctx context.Context, route string, payload []byte) (*messaging.Future, error) {
	correlationID := uuid.NewString()
	replyKey := b.replyKey(correlationID)

	err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream(route),
		Values: map[string]any{
			fieldPayload:       string(payload),
			fieldCorrelationID: correlationID,
			fieldReplyTo:       replyKey,
		},
	}).Err()
	if err != nil {
		b.logger.Error("failed to send request", "route", route, "error", err)
		return nil, fmt.Errorf("%w: redis request on %s: %v", domain.ErrTransport, route, err)
	}
	b.logger.Debug("request sent", "route", route, "correlation_id", correlationID)

	wait := func(ctx context.Context, timeout time.Duration) ([]byte, error) {
		res, err := b.client.BLPop(ctx, timeout, replyKey).Result()
		switch {
		case errors.Is(err, redis.Nil):
			return nil, messaging.TimeoutError(route, correlationID, timeout)
		case ctx.Err() != nil:
			return nil, fmt.Errorf("%w: %v", domain.ErrTimeout, ctx.Err())
		case err != nil:
			return nil, fmt.Errorf("%w: redis reply wait on %s: %v", domain.ErrTransport, route, err)
		}
		// BLPOP returns [key, value]
		if len(res) != 2 {
			return nil, fmt.Errorf("%w: unexpected BLPOP result", domain.ErrMalformedReply)
		}
		return []byte(res[1]), nil
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := b.client.Del(ctx, replyKey).Err(); err != nil {
			b.logger.Warn("failed to release reply key", "key", replyKey, "error", err)
		}
	}
	return messaging.NewFuture(correlationID, wait, release), nil
}

// Serve starts a consumer for route in the bus's consumer group.
func (b *RedisBus) Serve(route string, handler messaging.Handler) error {
	stream := b.stream(route)
	err := b.client.XGroupCreateMkStream(b.ctx, stream, b.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("%w: redis group create on %s: %v", domain.ErrTransport, stream, err)
	}
	consumer := fmt.Sprintf("consumer-%s-%d", route, time.Now().UnixNano())
	b.logger.Info("serving route", "route", route, "consumer", consumer)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.consume(route, stream, consumer, handler)
	}()
	return nil
}

func (b *RedisBus) consume(route, stream, consumer string, handler messaging.Handler) {
	for {
		if b.ctx.Err() != nil {
			return
		}
		res, err := b.client.XReadGroup(b.ctx, &redis.XReadGroupArgs{
			Group:    b.cfg.Group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    1,
			Block:    b.cfg.Block,
		}).Result()
		if err != nil {
			if b.ctx.Err() != nil {
				return
			}
			if !errors.Is(err, redis.Nil) {
				b.logger.Error("error reading from stream", "error", err, "consumer", consumer)
				time.Sleep(time.Second)
			}
			continue
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				b.handle(route, stream, msg, handler)
			}
		}
	}
}

func (b *RedisBus) handle(route, stream string, msg redis.XMessage, handler messaging.Handler) {
	ctx := b.ctx
	payload, _ := msg.Values[fieldPayload].(string)
	replyTo, _ := msg.Values[fieldReplyTo].(string)
	correlationID, _ := msg.Values[fieldCorrelationID].(string)

	var reply []byte
	func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("handler panic recovered", "panic", r, "route", route)
				b.pushToDLQ(ctx, stream, msg.Values)
			}
		}()
		out, err := handler(ctx, []byte(payload))
		if err != nil {
			b.logger.Error("handler error", "error", err, "route", route, "correlation_id", correlationID)
			b.pushToDLQ(ctx, stream, msg.Values)
			return
		}
		reply = out
	}()

	if replyTo != "" && reply != nil {
		_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LPush(ctx, replyTo, reply)
			pipe.Expire(ctx, replyTo, b.cfg.ReplyTTL)
			return nil
		})
		if err != nil {
			b.logger.Error("failed to send reply", "error", err, "route", route, "correlation_id", correlationID)
		}
	}

	if err := b.client.XAck(ctx, stream, b.cfg.Group, msg.ID).Err(); err != nil {
		b.logger.Error("failed to acknowledge message", "error", err, "msg_id", msg.ID)
	}
}

// pushToDLQ keeps the raw entry on a side stream for inspection.
func (b *RedisBus) pushToDLQ(ctx context.Context, stream string, values map[string]any) {
	dlq := stream + "-DLQ"
	if err := b.client.XAdd(ctx, &redis.XAddArgs{Stream: dlq, Values: values}).Err(); err != nil {
		b.logger.Error("failed to push to DLQ", "error", err, "stream", dlq)
		return
	}
	b.logger.Warn("message pushed to DLQ", "stream", dlq)
}

// Close stops all consumers started by Serve.
func (b *RedisBus) Close() error {
	b.cancel()
	b.wg.Wait()
	return nil
}

var _ messaging.Bus = (*RedisBus)(nil)
