package transaction

import (
	"fmt"
	"time"

	"github.com/amirasaad/ledgersync/pkg/currency"
	"github.com/amirasaad/ledgersync/pkg/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the settlement state of a transaction.
type Status string

const (
	// StatusPending is the only initial state.
	StatusPending Status = "PENDING"
	// StatusDone means the owning account's balance was updated.
	StatusDone Status = "DONE"
	// StatusFailed means settlement was refused, timed out, or returned a bad reply.
	StatusFailed Status = "FAILED"
)

// IsTerminal reports whether s has no outgoing transitions.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// CanTransitionTo reports whether a transaction in s may move to next.
func (s Status) CanTransitionTo(next Status) bool {
	return s == StatusPending && next.IsTerminal()
}

// Transaction is the Transaction ledger's record of an amount to apply to an account.
// AccountID refers to an account owned by another service; nothing enforces that
// it still exists.
type Transaction struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	Currency    currency.Code
	Status      Status
	Description string
	CreatedAt   time.Time
}

// New creates a PENDING transaction.
func New(accountID uuid.UUID, amount decimal.Decimal, code currency.Code, description string) (*Transaction, error) {
	if accountID == uuid.Nil {
		return nil, fmt.Errorf("%w: account id is required", domain.ErrValidation)
	}
	if !code.IsValid() {
		return nil, fmt.Errorf("%w: unsupported currency %q", domain.ErrValidation, code)
	}
	return &Transaction{
		ID:          uuid.New(),
		AccountID:   accountID,
		Amount:      amount,
		Currency:    code,
		Status:      StatusPending,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Resolve moves the transaction to a terminal status exactly once.
func (t *Transaction) Resolve(next Status) error {
	if !t.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, t.Status, next)
	}
	t.Status = next
	return nil
}

// Page is one page of an account's transactions, newest first.
type Page struct {
	Content       []Transaction `json:"content"`
	PageNumber    int           `json:"pageNumber"`
	PageSize      int           `json:"pageSize"`
	TotalElements int64         `json:"totalElements"`
	TotalPages    int           `json:"totalPages"`
	Last          bool          `json:"last"`
}

// NewPage computes paging metadata for content at page/size out of total.
func NewPage(content []Transaction, page, size int, total int64) Page {
	totalPages := 0
	if size > 0 {
		totalPages = int((total + int64(size) - 1) / int64(size))
	}
	return Page{
		Content:       content,
		PageNumber:    page,
		PageSize:      size,
		TotalElements: total,
		TotalPages:    totalPages,
		Last:          page+1 >= totalPages,
	}
}
