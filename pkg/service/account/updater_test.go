package account_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/amirasaad/ledgersync/internal/fixtures"
	"github.com/amirasaad/ledgersync/pkg/currency"
	"github.com/amirasaad/ledgersync/pkg/domain"
	"github.com/amirasaad/ledgersync/pkg/domain/account"
	"github.com/amirasaad/ledgersync/pkg/messaging"
	"github.com/amirasaad/ledgersync/pkg/metrics"
	"github.com/amirasaad/ledgersync/pkg/mirror"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(a *account.Account, amount string, code currency.Code) messaging.BalanceUpdateRequest {
	return messaging.BalanceUpdateRequest{
		AccountID: a.ID.String(),
		Amount:    decimal.RequireFromString(amount),
		Currency:  code.String(),
	}
}

func TestUpdateBalance_SameCurrency(t *testing.T) {
	h := newHarness(t)
	a := h.seed(t, "100.00", currency.USD)

	reply := h.svc.UpdateBalance(context.Background(), request(a, "50.00", currency.USD))

	assert.True(t, reply.Success)
	assert.Equal(t, a.ID.String(), reply.AccountID)
	assert.Equal(t, "150", h.balance(t, a.ID).String())

	fields, err := h.store.GetAll(context.Background(), a.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "150", fields[mirror.FieldBalance])
	assert.Equal(t, float64(1), h.metrics.Value(metrics.BalanceUpdates))
}

func TestUpdateBalance_ConvertsIntoAccountCurrency(t *testing.T) {
	h := newHarness(t)
	a := h.seed(t, "100.00", currency.EUR)

	reply := h.svc.UpdateBalance(context.Background(), request(a, "10.00", currency.USD))

	require.True(t, reply.Success)
	assert.True(t, decimal.RequireFromString("108.60").Equal(h.balance(t, a.ID)))
}

func TestUpdateBalance_NegativeAmountHasNoOverdraftCheck(t *testing.T) {
	h := newHarness(t)
	a := h.seed(t, "10", currency.USD)

	reply := h.svc.UpdateBalance(context.Background(), request(a, "-25", currency.USD))

	require.True(t, reply.Success)
	assert.Equal(t, "-15", h.balance(t, a.ID).String())
}

func TestUpdateBalance_FailureReplies(t *testing.T) {
	h := newHarness(t)
	a := h.seed(t, "1", currency.USD)
	missing := uuid.NewString()

	tests := []struct {
		name string
		req  messaging.BalanceUpdateRequest
		kind domain.Kind
	}{
		{
			name: "unknown account",
			req:  messaging.BalanceUpdateRequest{AccountID: missing, Amount: decimal.NewFromInt(1), Currency: "USD"},
			kind: domain.KindNotFound,
		},
		{
			name: "malformed account id",
			req:  messaging.BalanceUpdateRequest{AccountID: "A1", Amount: decimal.NewFromInt(1), Currency: "USD"},
			kind: domain.KindValidationFailure,
		},
		{
			name: "unsupported currency",
			req:  messaging.BalanceUpdateRequest{AccountID: a.ID.String(), Amount: decimal.NewFromInt(1), Currency: "XXX"},
			kind: domain.KindValidationFailure,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := h.svc.UpdateBalance(context.Background(), tt.req)
			assert.False(t, reply.Success)
			assert.Equal(t, tt.req.AccountID, reply.AccountID)
			require.NotNil(t, reply.Error)
			assert.Equal(t, tt.kind, reply.Error.Kind)
		})
	}
	assert.Equal(t, "1", h.balance(t, a.ID).String())
	assert.Equal(t, float64(len(tests)), h.metrics.Value(metrics.BalanceUpdateFailures))
}

func TestUpdateBalance_DuplicateTransactionIsNotReapplied(t *testing.T) {
	h := newHarness(t)
	a := h.seed(t, "0", currency.USD)
	req := request(a, "5", currency.USD)
	req.TransactionID = uuid.NewString()

	require.True(t, h.svc.UpdateBalance(context.Background(), req).Success)
	require.True(t, h.svc.UpdateBalance(context.Background(), req).Success)

	assert.Equal(t, "5", h.balance(t, a.ID).String())
	assert.Equal(t, float64(1), h.metrics.Value(metrics.BalanceUpdateDuplicates))
}

func TestUpdateBalance_ConcurrentUpdatesAreNotLost(t *testing.T) {
	h := newHarness(t)
	a := h.seed(t, "0", currency.USD)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, h.svc.UpdateBalance(context.Background(), request(a, "1", currency.USD)).Success)
		}()
	}
	wg.Wait()
	assert.Equal(t, "50", h.balance(t, a.ID).String())
}

// racingAccounts bumps the stored version behind the updater's back a fixed
// number of times, as another process would.
type racingAccounts struct {
	*fixtures.Accounts
	races int
}

func (r *racingAccounts) Update(ctx context.Context, a *account.Account) error {
	if r.races > 0 {
		r.races--
		stored, err := r.Accounts.Get(ctx, a.ID)
		if err != nil {
			return err
		}
		stored.Apply(decimal.NewFromInt(100), time.Now())
		if err := r.Accounts.Update(ctx, stored); err != nil {
			return err
		}
	}
	return r.Accounts.Update(ctx, a)
}

func TestUpdateBalance_RetriesLostRaces(t *testing.T) {
	racing := &racingAccounts{Accounts: fixtures.NewAccounts(), races: 2}
	h := newHarness(t, withRepository(racing))
	a, err := account.New(uuid.New(), currency.USD)
	require.NoError(t, err)
	racing.Put(*a)

	reply := h.svc.UpdateBalance(context.Background(), request(a, "1", currency.USD))

	require.True(t, reply.Success)
	stored, err := racing.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "201", stored.Balance.String())
	assert.Equal(t, float64(2), h.metrics.Value(metrics.BalanceUpdateConflicts))
}

func TestUpdateBalance_GivesUpAfterMaxAttempts(t *testing.T) {
	racing := &racingAccounts{Accounts: fixtures.NewAccounts(), races: 10}
	h := newHarness(t, withRepository(racing))
	a, err := account.New(uuid.New(), currency.USD)
	require.NoError(t, err)
	racing.Put(*a)

	reply := h.svc.UpdateBalance(context.Background(), request(a, "1", currency.USD))

	assert.False(t, reply.Success)
	require.NotNil(t, reply.Error)
	assert.Equal(t, domain.KindConflict, reply.Error.Kind)
}

type slowAccounts struct {
	*fixtures.Accounts
	delay time.Duration
}

func (s *slowAccounts) Get(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	time.Sleep(s.delay)
	return s.Accounts.Get(ctx, id)
}

func TestUpdateBalance_ExpiredRequestIsNotApplied(t *testing.T) {
	h := newHarness(t)
	a := h.seed(t, "100", currency.USD)
	req := request(a, "50", currency.USD)
	req.TransactionID = uuid.NewString()
	past := time.Now().UTC().Add(-time.Second)
	req.Deadline = &past

	reply := h.svc.UpdateBalance(context.Background(), req)

	assert.False(t, reply.Success)
	require.NotNil(t, reply.Error)
	assert.Equal(t, domain.KindTimeout, reply.Error.Kind)
	assert.Equal(t, "100", h.balance(t, a.ID).String())
	assert.Equal(t, float64(1), h.metrics.Value(metrics.BalanceUpdatesExpired))
}

func TestUpdateBalance_DeadlinePassingDuringReadIsNotApplied(t *testing.T) {
	slow := &slowAccounts{Accounts: fixtures.NewAccounts(), delay: 50 * time.Millisecond}
	h := newHarness(t, withRepository(slow))
	a, err := account.New(uuid.New(), currency.USD)
	require.NoError(t, err)
	slow.Put(*a)

	req := request(a, "50", currency.USD)
	deadline := time.Now().UTC().Add(10 * time.Millisecond)
	req.Deadline = &deadline

	reply := h.svc.UpdateBalance(context.Background(), req)

	assert.False(t, reply.Success)
	require.NotNil(t, reply.Error)
	assert.Equal(t, domain.KindTimeout, reply.Error.Kind)
	stored, err := slow.Accounts.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, stored.Balance.IsZero())
}

func TestUpdateBalance_RequestWithinDeadlineIsApplied(t *testing.T) {
	h := newHarness(t)
	a := h.seed(t, "100", currency.USD)
	req := request(a, "50", currency.USD)
	deadline := time.Now().UTC().Add(time.Minute)
	req.Deadline = &deadline

	reply := h.svc.UpdateBalance(context.Background(), req)

	assert.True(t, reply.Success)
	assert.Equal(t, "150", h.balance(t, a.ID).String())
}

type panickingAccounts struct {
	*fixtures.Accounts
}

func (panickingAccounts) Get(context.Context, uuid.UUID) (*account.Account, error) {
	panic("store exploded")
}

func TestUpdateBalance_PanicBecomesFailureReply(t *testing.T) {
	h := newHarness(t, withRepository(panickingAccounts{fixtures.NewAccounts()}))
	id := uuid.NewString()

	reply := h.svc.UpdateBalance(context.Background(), messaging.BalanceUpdateRequest{
		AccountID: id, Amount: decimal.NewFromInt(1), Currency: "USD",
	})

	assert.False(t, reply.Success)
	assert.Equal(t, id, reply.AccountID)
	require.NotNil(t, reply.Error)
	assert.Equal(t, domain.KindInternal, reply.Error.Kind)
}

func TestUpdateBalance_MirrorFailureStillSucceeds(t *testing.T) {
	h := newHarness(t)
	a := h.seed(t, "1", currency.USD)
	h.store.SetAvailable(false)

	reply := h.svc.UpdateBalance(context.Background(), request(a, "1", currency.USD))

	assert.True(t, reply.Success)
	assert.Equal(t, "2", h.balance(t, a.ID).String())
	assert.Equal(t, float64(1), h.metrics.Value(metrics.MirrorErrors))
}

func TestHandleBalanceUpdate_OverTheBus(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.Listen())
	a := h.seed(t, "100.00", currency.USD)

	payload, err := json.Marshal(request(a, "50.00", currency.USD))
	require.NoError(t, err)
	raw, err := messaging.Await(context.Background(), h.bus, messaging.RouteBalanceUpdate, payload, time.Second)
	require.NoError(t, err)

	reply, err := messaging.ParseBalanceUpdateReply(raw)
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.Equal(t, a.ID.String(), reply.AccountID)
	assert.Equal(t, "150", h.balance(t, a.ID).String())
}

func TestHandleBalanceUpdate_UndecodableRequest(t *testing.T) {
	h := newHarness(t)

	raw, err := h.svc.HandleBalanceUpdate(context.Background(), []byte(`{not json`))
	require.NoError(t, err)

	var reply messaging.BalanceUpdateReply
	require.NoError(t, json.Unmarshal(raw, &reply))
	assert.False(t, reply.Success)
	require.NotNil(t, reply.Error)
	assert.Equal(t, domain.KindValidationFailure, reply.Error.Kind)
}
