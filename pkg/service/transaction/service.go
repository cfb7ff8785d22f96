// Package transaction is the Transaction ledger side of the settlement
// protocol. It records transactions as PENDING, asks the Account ledger to
// apply them and resolves each one to DONE or FAILED from the reply.
package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/amirasaad/ledgersync/pkg/currency"
	"github.com/amirasaad/ledgersync/pkg/domain"
	"github.com/amirasaad/ledgersync/pkg/domain/transaction"
	"github.com/amirasaad/ledgersync/pkg/messaging"
	"github.com/amirasaad/ledgersync/pkg/metrics"
	"github.com/amirasaad/ledgersync/pkg/mirror"
	repo "github.com/amirasaad/ledgersync/pkg/repository/transaction"
	"github.com/amirasaad/ledgersync/pkg/workerpool"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// DefaultPageSize is used by List when no size is given.
	DefaultPageSize = 5
	// MaxPageSize caps List page sizes.
	MaxPageSize = 100
	// RecentLimit is how many transactions a fetch request returns.
	RecentLimit = 5
)

// SweepConfig controls the stale PENDING sweeper.
type SweepConfig struct {
	StaleAfter time.Duration
	BatchSize  int
}

// RetryConfig bounds the retries of writing a settlement outcome.
type RetryConfig struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Deps are the collaborators of Service. Events and General may be nil.
type Deps struct {
	Transactions   repo.Repository
	Mirror         *mirror.Mirror
	Bus            messaging.Bus
	Events         messaging.Publisher
	General        *workerpool.Pool
	Settlement     *workerpool.Pool
	Metrics        metrics.Metrics
	Logger         *slog.Logger
	RequestTimeout time.Duration
	Sweep          SweepConfig
	ResolveRetry   RetryConfig
}

// Service implements the Transaction ledger operations.
type Service struct {
	txs        repo.Repository
	mirror     *mirror.Mirror
	bus        messaging.Bus
	events     messaging.Publisher
	general    *workerpool.Pool
	settlement *workerpool.Pool
	metrics    metrics.Metrics
	logger     *slog.Logger
	timeout    time.Duration
	sweep      SweepConfig
	retry      RetryConfig

	// inflight holds ids of transactions whose settlement reply is awaited.
	inflight sync.Map
	// unresolved maps ids whose outcome is known but could not be written to
	// that outcome.
	unresolved sync.Map
	settling   sync.WaitGroup
}

// New creates a Service. Settlement must be set.
func New(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop()
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = messaging.DefaultRequestTimeout
	}
	if deps.Sweep.StaleAfter <= 0 {
		deps.Sweep.StaleAfter = 10 * time.Minute
	}
	if deps.Sweep.BatchSize <= 0 {
		deps.Sweep.BatchSize = 100
	}
	if deps.ResolveRetry.Attempts <= 0 {
		deps.ResolveRetry.Attempts = 5
	}
	if deps.ResolveRetry.InitialInterval <= 0 {
		deps.ResolveRetry.InitialInterval = 100 * time.Millisecond
	}
	if deps.ResolveRetry.MaxInterval <= 0 {
		deps.ResolveRetry.MaxInterval = 2 * time.Second
	}
	return &Service{
		txs:        deps.Transactions,
		mirror:     deps.Mirror,
		bus:        deps.Bus,
		events:     deps.Events,
		general:    deps.General,
		settlement: deps.Settlement,
		metrics:    deps.Metrics,
		logger:     deps.Logger.With("component", "transaction-service"),
		timeout:    deps.RequestTimeout,
		sweep:      deps.Sweep,
		retry:      deps.ResolveRetry,
	}
}

// Create records a PENDING transaction and sends its settlement request. The
// reply is awaited on the settlement pool, so the returned record is still
// PENDING. When the request cannot be sent the transaction stays PENDING and
// the returned error is retryable.
func (s *Service) Create(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, code currency.Code, description string) (*transaction.Transaction, error) {
	logger := s.logger.With("account_id", accountID)

	tx, err := transaction.New(accountID, amount, code, description)
	if err != nil {
		return nil, err
	}

	_, ok, err := s.mirror.Balance(ctx, accountID)
	if err != nil {
		s.metrics.Counter(metrics.TransactionErrors).Inc()
		logger.Error("account lookup failed", "error", err)
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: account %s", domain.ErrNotFound, accountID)
	}

	if err := s.txs.Create(ctx, tx); err != nil {
		s.metrics.Counter(metrics.TransactionErrors).Inc()
		logger.Error("transaction create failed", "error", err)
		return nil, err
	}
	s.metrics.Counter(metrics.TransactionsCreated).Inc()
	logger = logger.With("transaction_id", tx.ID)
	logger.Info("transaction recorded", "amount", tx.Amount, "currency", tx.Currency)

	if err := s.requestSettlement(ctx, *tx); err != nil {
		s.metrics.Counter(metrics.TransactionErrors).Inc()
		logger.Warn("settlement request not sent, transaction left pending", "error", err)
		return nil, fmt.Errorf("transaction %s recorded but not settled: %w", tx.ID, err)
	}
	return tx, nil
}

// List returns a zero-based page of the account's transactions, newest first.
func (s *Service) List(ctx context.Context, accountID uuid.UUID, page, size int) (transaction.Page, error) {
	if size == 0 {
		size = DefaultPageSize
	}
	if page < 0 || size < 0 || size > MaxPageSize {
		return transaction.Page{}, fmt.Errorf("%w: page %d size %d", domain.ErrValidation, page, size)
	}
	return s.txs.ListPage(ctx, accountID, page, size)
}

// Get returns one transaction.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	return s.txs.Get(ctx, id)
}

// Listen serves the fetch and purge routes used by the Account ledger.
func (s *Service) Listen() error {
	if err := s.bus.Serve(messaging.RouteTransactionsFetch, s.HandleFetch); err != nil {
		return err
	}
	return s.bus.Serve(messaging.RouteTransactionsPurge, s.HandlePurge)
}

// Wait blocks until every settlement awaited so far has resolved or ctx ends.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.settling.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolve moves tx to status and announces the outcome. A transaction that was
// already resolved elsewhere is left alone.
func (s *Service) resolve(ctx context.Context, tx transaction.Transaction, status transaction.Status) error {
	if err := s.txs.Resolve(ctx, tx.ID, status); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			s.logger.Warn("transaction already resolved", "transaction_id", tx.ID, "status", status)
			return err
		}
		s.metrics.Counter(metrics.TransactionErrors).Inc()
		s.logger.Error("transaction resolve failed", "transaction_id", tx.ID, "status", status, "error", err)
		return err
	}

	evt := messaging.LedgerEvent{
		Type:          messaging.EventTransactionSettled,
		AccountID:     tx.AccountID.String(),
		TransactionID: tx.ID.String(),
		Status:        string(status),
		OccurredAt:    time.Now().UTC(),
	}
	if status == transaction.StatusFailed {
		s.metrics.Counter(metrics.SettlementsFailed).Inc()
		evt.Type = messaging.EventTransactionFailed
	} else {
		s.metrics.Counter(metrics.SettlementsDone).Inc()
	}
	s.publish(ctx, evt)
	return nil
}

// publish sends evt on the general pool when there is one.
func (s *Service) publish(ctx context.Context, evt messaging.LedgerEvent) {
	if s.events == nil {
		return
	}
	send := func() {
		b, err := json.Marshal(evt)
		if err == nil {
			err = s.events.Publish(ctx, messaging.RouteLedgerEvents, b)
		}
		if err != nil {
			s.metrics.Counter(metrics.EventPublishFailures).Inc()
			s.logger.Warn("ledger event not published", "type", evt.Type, "transaction_id", evt.TransactionID, "error", err)
		}
	}
	if s.general == nil {
		send()
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := s.general.Submit(ctx, send); err != nil {
		s.metrics.Counter(metrics.EventPublishFailures).Inc()
		s.logger.Warn("ledger event dropped", "type", evt.Type, "transaction_id", evt.TransactionID, "error", err)
	}
}
