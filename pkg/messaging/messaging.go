// Package messaging is the contract between the ledgers: fire-and-forget
// publish, correlated request/reply, and serving a route.
package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amirasaad/ledgersync/pkg/domain"
)

// Routes. Each request route is served by exactly one side.
const (
	// RouteBalanceUpdate carries settlement requests to the Account side.
	RouteBalanceUpdate = "accounts.balance.update"
	// RouteTransactionsFetch asks the Transaction side for an account's recent transactions.
	RouteTransactionsFetch = "transactions.fetch"
	// RouteTransactionsPurge asks the Transaction side to delete an account's transactions.
	RouteTransactionsPurge = "transactions.purge"
	// RouteLedgerEvents carries fire-and-forget ledger events.
	RouteLedgerEvents = "ledger.events"
)

// DefaultRequestTimeout is how long a requester waits for a reply.
const DefaultRequestTimeout = 10 * time.Second

// Handler processes one delivery. For request deliveries the returned bytes are
// sent back as the reply; a nil reply or an error sends nothing and the
// requester observes a timeout.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Publisher sends a message without waiting for anything.
type Publisher interface {
	Publish(ctx context.Context, route string, payload []byte) error
}

// Bus is a message channel with fire-and-forget and request/reply semantics.
//
// Request returns once the request has been handed to the channel. A transport
// failure at that point is returned wrapped in domain.ErrTransport; everything
// that happens afterwards is observed through the Future.
type Bus interface {
	Publisher
	Request(ctx context.Context, route string, payload []byte) (*Future, error)
	Serve(route string, handler Handler) error
	Close() error
}

// WaitFunc blocks until a reply arrives, timeout elapses, or ctx ends.
type WaitFunc func(ctx context.Context, timeout time.Duration) ([]byte, error)

// Future is a pending reply to one request.
// Wait may be called once; the correlation slot is released when it returns.
type Future struct {
	CorrelationID string

	wait    WaitFunc
	release func()
	once    sync.Once
	waited  bool
	mu      sync.Mutex
}

// NewFuture is used by Bus implementations.
func NewFuture(correlationID string, wait WaitFunc, release func()) *Future {
	return &Future{CorrelationID: correlationID, wait: wait, release: release}
}

// Wait blocks for the correlated reply. It returns domain.ErrTimeout if none
// arrives within timeout. There is no way to cancel the request itself.
func (f *Future) Wait(ctx context.Context, timeout time.Duration) ([]byte, error) {
	f.mu.Lock()
	if f.waited {
		f.mu.Unlock()
		return nil, fmt.Errorf("future %s: already awaited", f.CorrelationID)
	}
	f.waited = true
	f.mu.Unlock()

	defer f.Release()
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return f.wait(ctx, timeout)
}

// Release frees the correlation slot without waiting. Late replies are dropped.
func (f *Future) Release() {
	f.once.Do(func() {
		if f.release != nil {
			f.release()
		}
	})
}

// Await is a convenience for Request followed by Wait.
func Await(ctx context.Context, bus Bus, route string, payload []byte, timeout time.Duration) ([]byte, error) {
	future, err := bus.Request(ctx, route, payload)
	if err != nil {
		return nil, err
	}
	return future.Wait(ctx, timeout)
}

// TimeoutError reports a request that got no reply.
func TimeoutError(route, correlationID string, timeout time.Duration) error {
	return fmt.Errorf("%w: no reply on %s for %s after %s", domain.ErrTimeout, route, correlationID, timeout)
}
