package transaction

import (
	"context"
	"time"

	"github.com/amirasaad/ledgersync/pkg/domain/transaction"
	"github.com/google/uuid"
)

// Repository is the Transaction ledger's keyed store.
type Repository interface {
	// Create inserts a new transaction.
	Create(ctx context.Context, tx *transaction.Transaction) error

	// Get returns the transaction with id, or domain.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error)

	// Resolve moves a PENDING transaction to status. A transaction that is no
	// longer PENDING returns domain.ErrInvalidTransition.
	Resolve(ctx context.Context, id uuid.UUID, status transaction.Status) error

	// ListRecent returns up to limit of the account's transactions, newest first.
	ListRecent(ctx context.Context, accountID uuid.UUID, limit int) ([]transaction.Transaction, error)

	// ListPage returns a zero-based page of the account's transactions, newest first.
	ListPage(ctx context.Context, accountID uuid.UUID, page, size int) (transaction.Page, error)

	// DeleteByAccount removes every transaction of the account and reports how many went.
	DeleteByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)

	// ListStalePending returns PENDING transactions created before cutoff, oldest first.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]transaction.Transaction, error)
}
