package transaction_test

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amirasaad/ledgersync/infra/cache"
	infrabus "github.com/amirasaad/ledgersync/infra/messaging"
	"github.com/amirasaad/ledgersync/internal/fixtures"
	"github.com/amirasaad/ledgersync/pkg/currency"
	"github.com/amirasaad/ledgersync/pkg/domain/account"
	"github.com/amirasaad/ledgersync/pkg/domain/transaction"
	"github.com/amirasaad/ledgersync/pkg/messaging"
	"github.com/amirasaad/ledgersync/pkg/metrics"
	"github.com/amirasaad/ledgersync/pkg/mirror"
	accountrepo "github.com/amirasaad/ledgersync/pkg/repository/account"
	accountsvc "github.com/amirasaad/ledgersync/pkg/service/account"
	txsvc "github.com/amirasaad/ledgersync/pkg/service/transaction"
	"github.com/amirasaad/ledgersync/pkg/workerpool"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testTimeout = 100 * time.Millisecond

type harness struct {
	svc     *txsvc.Service
	txs     *fixtures.Transactions
	store   *cache.MemoryHashStore
	mirror  *mirror.Mirror
	bus     *infrabus.MemoryBus
	metrics *metrics.Memory

	accounts *fixtures.Accounts
}

type option func(*harness, *txsvc.Deps)

// withFlakyResolve makes the first n status writes fail.
func withFlakyResolve(n int32) option {
	return func(h *harness, d *txsvc.Deps) {
		flaky := &flakyTransactions{Transactions: h.txs}
		flaky.failures.Store(n)
		d.Transactions = flaky
	}
}

type flakyTransactions struct {
	*fixtures.Transactions
	failures atomic.Int32
}

func (f *flakyTransactions) Resolve(ctx context.Context, id uuid.UUID, status transaction.Status) error {
	if f.failures.Add(-1) >= 0 {
		return errors.New("connection reset")
	}
	return f.Transactions.Resolve(ctx, id, status)
}

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	logger := slog.Default()
	h := &harness{
		txs:      fixtures.NewTransactions(),
		store:    cache.NewMemoryHashStore(),
		bus:      infrabus.NewMemoryBus(logger),
		metrics:  metrics.NewMemory(),
		accounts: fixtures.NewAccounts(),
	}
	h.mirror = mirror.New(h.store, logger)

	general := workerpool.New(workerpool.Config{Name: "general", Workers: 2, QueueSize: 16}, logger, h.metrics)
	settlement := workerpool.New(workerpool.Config{Name: "settlement", Workers: 4, QueueSize: 16}, logger, h.metrics)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = settlement.Close(ctx)
		_ = general.Close(ctx)
		_ = h.bus.Close()
	})

	deps := txsvc.Deps{
		Transactions:   h.txs,
		Mirror:         h.mirror,
		Bus:            h.bus,
		Events:         h.bus,
		General:        general,
		Settlement:     settlement,
		Metrics:        h.metrics,
		Logger:         logger,
		RequestTimeout: testTimeout,
		Sweep:          txsvc.SweepConfig{StaleAfter: time.Minute, BatchSize: 10},
		ResolveRetry:   txsvc.RetryConfig{Attempts: 3, InitialInterval: 5 * time.Millisecond, MaxInterval: 20 * time.Millisecond},
	}
	for _, opt := range opts {
		opt(h, &deps)
	}
	h.svc = txsvc.New(deps)
	return h
}

// withAccountLedger starts a real Account ledger on the harness bus and mirror.
func (h *harness) withAccountLedger(t *testing.T) *metrics.Memory {
	t.Helper()
	return h.withAccountLedgerOn(t, h.accounts)
}

// withAccountLedgerOn is withAccountLedger over a custom account store. It
// returns the Account ledger's metrics.
func (h *harness) withAccountLedgerOn(t *testing.T, accounts accountrepo.Repository) *metrics.Memory {
	t.Helper()
	m := metrics.NewMemory()
	svc := accountsvc.New(accountsvc.Deps{
		Accounts:       accounts,
		Mirror:         h.mirror,
		Bus:            h.bus,
		Metrics:        m,
		RequestTimeout: testTimeout,
	})
	require.NoError(t, svc.Listen())
	return m
}

// slowAccounts delays every read of the account store.
type slowAccounts struct {
	*fixtures.Accounts
	delay time.Duration
}

func (s *slowAccounts) Get(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	time.Sleep(s.delay)
	return s.Accounts.Get(ctx, id)
}

// seed stores an account in the account fixture and the mirror.
func (h *harness) seed(t *testing.T, balance string, code currency.Code) *account.Account {
	t.Helper()
	a, err := account.New(uuid.New(), code)
	require.NoError(t, err)
	a.Balance = decimal.RequireFromString(balance)
	h.accounts.Put(*a)
	require.NoError(t, h.mirror.Put(context.Background(), a.Snapshot()))
	return a
}

// answer serves balance updates with a fixed raw reply.
func (h *harness) answer(t *testing.T, reply string) {
	t.Helper()
	require.NoError(t, h.bus.Serve(messaging.RouteBalanceUpdate, func(ctx context.Context, payload []byte) ([]byte, error) {
		return []byte(reply), nil
	}))
}

func (h *harness) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.svc.Wait(ctx))
}

func (h *harness) status(t *testing.T, id uuid.UUID) transaction.Status {
	t.Helper()
	tx, err := h.txs.Get(context.Background(), id)
	require.NoError(t, err)
	return tx.Status
}

func (h *harness) put(accountID uuid.UUID, status transaction.Status, age time.Duration) transaction.Transaction {
	tx := transaction.Transaction{
		ID:        uuid.New(),
		AccountID: accountID,
		Amount:    decimal.NewFromInt(1),
		Currency:  currency.USD,
		Status:    status,
		CreatedAt: time.Now().UTC().Add(-age),
	}
	h.txs.Put(tx)
	return tx
}
