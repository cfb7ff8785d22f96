package account_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/amirasaad/ledgersync/infra/cache"
	infrabus "github.com/amirasaad/ledgersync/infra/messaging"
	"github.com/amirasaad/ledgersync/internal/fixtures"
	"github.com/amirasaad/ledgersync/pkg/currency"
	"github.com/amirasaad/ledgersync/pkg/domain/account"
	"github.com/amirasaad/ledgersync/pkg/messaging"
	"github.com/amirasaad/ledgersync/pkg/metrics"
	"github.com/amirasaad/ledgersync/pkg/mirror"
	repo "github.com/amirasaad/ledgersync/pkg/repository/account"
	accountsvc "github.com/amirasaad/ledgersync/pkg/service/account"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testTimeout = 100 * time.Millisecond

type harness struct {
	svc      *accountsvc.Service
	accounts *fixtures.Accounts
	store    *cache.MemoryHashStore
	mirror   *mirror.Mirror
	bus      *infrabus.MemoryBus
	metrics  *metrics.Memory
}

type option func(*accountsvc.Deps)

func withRepository(r repo.Repository) option {
	return func(d *accountsvc.Deps) { d.Accounts = r }
}

func withEvents(p messaging.Publisher) option {
	return func(d *accountsvc.Deps) { d.Events = p }
}

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	h := &harness{
		accounts: fixtures.NewAccounts(),
		store:    cache.NewMemoryHashStore(),
		bus:      infrabus.NewMemoryBus(slog.Default()),
		metrics:  metrics.NewMemory(),
	}
	t.Cleanup(func() { _ = h.bus.Close() })
	h.mirror = mirror.New(h.store, slog.Default())

	deps := accountsvc.Deps{
		Accounts:       h.accounts,
		Mirror:         h.mirror,
		Bus:            h.bus,
		Converter:      currency.NewConverter(nil),
		Metrics:        h.metrics,
		Logger:         slog.Default(),
		RequestTimeout: testTimeout,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.svc = accountsvc.New(deps)
	return h
}

// seed stores an account with balance in the ledger and the mirror.
func (h *harness) seed(t *testing.T, balance string, code currency.Code) *account.Account {
	t.Helper()
	a, err := account.New(uuid.New(), code)
	require.NoError(t, err)
	a.Balance = decimal.RequireFromString(balance)
	h.accounts.Put(*a)
	require.NoError(t, h.mirror.Put(context.Background(), a.Snapshot()))
	return a
}

func (h *harness) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	a, err := h.accounts.Get(context.Background(), id)
	require.NoError(t, err)
	return a.Balance
}

// serveFetch answers transaction fetches with txs.
func (h *harness) serveFetch(t *testing.T, txs []messaging.TransactionSummary) {
	t.Helper()
	require.NoError(t, h.bus.Serve(messaging.RouteTransactionsFetch, func(ctx context.Context, payload []byte) ([]byte, error) {
		return json.Marshal(txs)
	}))
}

// servePurge answers purge requests with reply.
func (h *harness) servePurge(t *testing.T, reply string) {
	t.Helper()
	require.NoError(t, h.bus.Serve(messaging.RouteTransactionsPurge, func(ctx context.Context, payload []byte) ([]byte, error) {
		return []byte(reply), nil
	}))
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, route string, payload []byte) error {
	args := m.Called(ctx, route, payload)
	return args.Error(0)
}
