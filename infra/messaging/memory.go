package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amirasaad/ledgersync/pkg/domain"
	"github.com/amirasaad/ledgersync/pkg/messaging"
	"github.com/google/uuid"
)

// Message is a fire-and-forget delivery recorded by MemoryBus.
type Message struct {
	Route   string
	Payload []byte
}

// MemoryBus is an in-process Bus. Deliveries run on their own goroutines,
// so a handler that never returns behaves like a consumer that never replies.
type MemoryBus struct {
	mu        sync.RWMutex
	handlers  map[string]messaging.Handler
	pending   map[string]chan []byte
	published []Message

	down   atomic.Bool
	closed atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewMemoryBus creates an in-process message bus.
func NewMemoryBus(logger *slog.Logger) *MemoryBus {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryBus{
		handlers: make(map[string]messaging.Handler),
		pending:  make(map[string]chan []byte),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.With("bus", "memory"),
	}
}

// SetAvailable toggles simulated broker reachability. While unavailable,
// Publish and Request fail with a transport error.
func (b *MemoryBus) SetAvailable(ok bool) {
	b.down.Store(!ok)
}

func (b *MemoryBus) checkTransport(route string) error {
	if b.closed.Load() {
		return fmt.Errorf("%w: memory bus closed", domain.ErrTransport)
	}
	if b.down.Load() {
		return fmt.Errorf("%w: broker unreachable for %s", domain.ErrTransport, route)
	}
	return nil
}

// Serve registers the single consumer of route.
func (b *MemoryBus) Serve(route string, handler messaging.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.handlers[route]; ok {
		return fmt.Errorf("memory bus: route %s already served", route)
	}
	b.handlers[route] = handler
	b.logger.Debug("serving route", "route", route)
	return nil
}

// Publish records the message and hands it to the route's consumer, if any.
func (b *MemoryBus) Publish(ctx context.Context, route string, payload []byte) error {
	if err := b.checkTransport(route); err != nil {
		return err
	}
	b.mu.Lock()
	b.published = append(b.published, Message{Route: route, Payload: payload})
	handler := b.handlers[route]
	b.mu.Unlock()

	if handler != nil {
		b.deliver(route, "", handler, payload)
	}
	return nil
}

// Request sends payload to route's consumer and returns a Future for the reply.
// Requests to a route nobody serves are accepted and never answered.
func (b *MemoryBus) Request(ctx context.Context, route string, payload []byte) (*messaging.Future, error) {
	if err := b.checkTransport(route); err != nil {
		return nil, err
	}
	correlationID := uuid.NewString()
	replies := make(chan []byte, 1)

	b.mu.Lock()
	b.pending[correlationID] = replies
	handler := b.handlers[route]
	b.mu.Unlock()

	if handler != nil {
		b.deliver(route, correlationID, handler, payload)
	}

	wait := func(ctx context.Context, timeout time.Duration) ([]byte, error) {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case reply := <-replies:
			return reply, nil
		case <-timer.C:
			return nil, messaging.TimeoutError(route, correlationID, timeout)
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", domain.ErrTimeout, ctx.Err())
		}
	}
	release := func() {
		b.mu.Lock()
		delete(b.pending, correlationID)
		b.mu.Unlock()
	}
	return messaging.NewFuture(correlationID, wait, release), nil
}

func (b *MemoryBus) deliver(route, correlationID string, handler messaging.Handler, payload []byte) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("panic recovered in handler", "route", route, "panic", r)
			}
		}()

		reply, err := handler(b.ctx, payload)
		if err != nil {
			b.logger.Error("handler failed", "route", route, "correlation_id", correlationID, "error", err)
			return
		}
		if correlationID == "" || reply == nil {
			return
		}

		b.mu.Lock()
		replies, ok := b.pending[correlationID]
		b.mu.Unlock()
		if !ok {
			b.logger.Warn("dropping late reply", "route", route, "correlation_id", correlationID)
			return
		}
		select {
		case replies <- reply:
		default:
		}
	}()
}

// Pending reports how many correlation slots are still held.
func (b *MemoryBus) Pending() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pending)
}

// Published returns the fire-and-forget messages sent on route.
func (b *MemoryBus) Published(route string) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Message
	for _, m := range b.published {
		if m.Route == route {
			out = append(out, m)
		}
	}
	return out
}

// Close stops accepting messages and waits for in-flight deliveries.
func (b *MemoryBus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.cancel()
	b.wg.Wait()
	return nil
}

var _ messaging.Bus = (*MemoryBus)(nil)
