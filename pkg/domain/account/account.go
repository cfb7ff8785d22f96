package account

import (
	"fmt"
	"time"

	"github.com/amirasaad/ledgersync/pkg/currency"
	"github.com/amirasaad/ledgersync/pkg/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is the Account ledger's record of one owner's balance.
//
// Invariants:
//   - ID and Currency never change after creation.
//   - Balance starts at zero and is only mutated through Apply.
//   - Version increases by one on every persisted mutation.
type Account struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Balance   decimal.Decimal
	Currency  currency.Code
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a zero-balance account for ownerID in the given currency.
func New(ownerID uuid.UUID, code currency.Code) (*Account, error) {
	if ownerID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrValidation)
	}
	if !code.IsValid() {
		return nil, fmt.Errorf("%w: unsupported currency %q", domain.ErrValidation, code)
	}
	now := time.Now().UTC()
	return &Account{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Balance:   decimal.Zero,
		Currency:  code,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Apply adds amount, already expressed in the account's currency, to the balance.
// Negative amounts subtract; there is no overdraft check.
func (a *Account) Apply(amount decimal.Decimal, at time.Time) {
	a.Balance = a.Balance.Add(amount)
	a.UpdatedAt = at
}

// Snapshot returns a copy that is safe to hand to other goroutines.
func (a *Account) Snapshot() Account {
	return *a
}
