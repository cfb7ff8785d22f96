// Package mirror keeps the read-optimised hash copy of each account. The
// Account ledger is authoritative; every entry can be rebuilt from it.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/ledgersync/pkg/cache"
	"github.com/amirasaad/ledgersync/pkg/currency"
	"github.com/amirasaad/ledgersync/pkg/domain/account"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Hash field names.
const (
	FieldOwnerID   = "ownerId"
	FieldBalance   = "balance"
	FieldCurrency  = "currency"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Mirror maps accounts to hash entries keyed by account id.
type Mirror struct {
	store  cache.HashStore
	logger *slog.Logger
}

// New creates a Mirror over store.
func New(store cache.HashStore, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{store: store, logger: logger.With("component", "mirror")}
}

// Fields renders a as hash fields. The balance is kept as a decimal string.
func Fields(a account.Account) map[string]string {
	return map[string]string{
		FieldOwnerID:   a.OwnerID.String(),
		FieldBalance:   a.Balance.String(),
		FieldCurrency:  a.Currency.String(),
		FieldCreatedAt: a.CreatedAt.UTC().Format(time.RFC3339Nano),
		FieldUpdatedAt: a.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Put writes every field of a new account.
func (m *Mirror) Put(ctx context.Context, a account.Account) error {
	return m.store.PutAll(ctx, a.ID.String(), Fields(a))
}

// Refresh overwrites the entry with a's current state: delete then write, never merge.
func (m *Mirror) Refresh(ctx context.Context, a account.Account) error {
	return m.store.Replace(ctx, a.ID.String(), Fields(a))
}

// Remove deletes the account's entry.
func (m *Mirror) Remove(ctx context.Context, id uuid.UUID) error {
	return m.store.Delete(ctx, id.String())
}

// Get returns the mirrored account. ok is false on a miss, and also when the
// entry cannot be decoded, so callers fall back to the ledger. The returned
// account has no Version; it is for reads only.
func (m *Mirror) Get(ctx context.Context, id uuid.UUID) (acc *account.Account, ok bool, err error) {
	fields, err := m.store.GetAll(ctx, id.String())
	if err != nil {
		return nil, false, err
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	acc, err = decode(id, fields)
	if err != nil {
		m.logger.Warn("discarding undecodable mirror entry", "account_id", id, "error", err)
		return nil, false, nil
	}
	return acc, true, nil
}

// Balance reads only the balance field; ok is false when the account is not mirrored.
func (m *Mirror) Balance(ctx context.Context, id uuid.UUID) (decimal.Decimal, bool, error) {
	raw, ok, err := m.store.GetField(ctx, id.String(), FieldBalance)
	if err != nil || !ok {
		return decimal.Zero, false, err
	}
	bal, err := decimal.NewFromString(raw)
	if err != nil {
		m.logger.Warn("undecodable mirrored balance", "account_id", id, "value", raw)
		return decimal.Zero, false, nil
	}
	return bal, true, nil
}

func decode(id uuid.UUID, f map[string]string) (*account.Account, error) {
	owner, err := uuid.Parse(f[FieldOwnerID])
	if err != nil {
		return nil, fmt.Errorf("owner id: %w", err)
	}
	bal, err := decimal.NewFromString(f[FieldBalance])
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	code, err := currency.Parse(f[FieldCurrency])
	if err != nil {
		return nil, err
	}
	created, err := time.Parse(time.RFC3339Nano, f[FieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("created at: %w", err)
	}
	updated, err := time.Parse(time.RFC3339Nano, f[FieldUpdatedAt])
	if err != nil {
		return nil, fmt.Errorf("updated at: %w", err)
	}
	return &account.Account{
		ID:        id,
		OwnerID:   owner,
		Balance:   bal,
		Currency:  code,
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}
