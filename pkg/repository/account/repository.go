package account

import (
	"context"

	"github.com/amirasaad/ledgersync/pkg/domain/account"
	"github.com/google/uuid"
)

// Repository is the Account ledger's keyed store.
type Repository interface {
	// Create inserts a new account. A second account for the same owner
	// returns domain.ErrAlreadyExists.
	Create(ctx context.Context, a *account.Account) error

	// Get returns the account with id, or domain.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*account.Account, error)

	// GetByOwner returns the owner's account, or domain.ErrNotFound.
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*account.Account, error)

	// Update persists balance and updatedAt if the stored version still equals
	// a.Version, then increments a.Version. A stale version returns
	// domain.ErrConflict; a missing row returns domain.ErrNotFound.
	Update(ctx context.Context, a *account.Account) error

	// Delete removes the account, or returns domain.ErrNotFound.
	Delete(ctx context.Context, id uuid.UUID) error
}
