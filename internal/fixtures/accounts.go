// Package fixtures provides in-memory ledger stores for tests and local runs.
package fixtures

import (
	"context"
	"fmt"
	"sync"

	"github.com/amirasaad/ledgersync/pkg/domain"
	"github.com/amirasaad/ledgersync/pkg/domain/account"
	repo "github.com/amirasaad/ledgersync/pkg/repository/account"
	"github.com/google/uuid"
)

// Store operations that can be made to fail.
const (
	OpCreate          = "create"
	OpGet             = "get"
	OpUpdate          = "update"
	OpDelete          = "delete"
	OpList            = "list"
	OpResolve         = "resolve"
	OpDeleteByAccount = "delete_by_account"
)

type faults struct {
	mu   sync.Mutex
	errs map[string]error
}

// Fail makes every call of op return err until cleared with a nil err.
func (f *faults) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = make(map[string]error)
	}
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

func (f *faults) err(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs[op]
}

// Accounts is an in-memory account repository with version compare-and-swap.
type Accounts struct {
	faults
	mu   sync.RWMutex
	rows map[uuid.UUID]account.Account
}

// NewAccounts creates an empty account store.
func NewAccounts() *Accounts {
	return &Accounts{rows: make(map[uuid.UUID]account.Account)}
}

func (s *Accounts) Create(_ context.Context, a *account.Account) error {
	if err := s.err(OpCreate); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.OwnerID == a.OwnerID || row.ID == a.ID {
			return domain.ErrAlreadyExists
		}
	}
	s.rows[a.ID] = *a
	return nil
}

func (s *Accounts) Get(_ context.Context, id uuid.UUID) (*account.Account, error) {
	if err := s.err(OpGet); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &row, nil
}

func (s *Accounts) GetByOwner(_ context.Context, ownerID uuid.UUID) (*account.Account, error) {
	if err := s.err(OpGet); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.rows {
		if row.OwnerID == ownerID {
			r := row
			return &r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Accounts) Update(_ context.Context, a *account.Account) error {
	if err := s.err(OpUpdate); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[a.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if row.Version != a.Version {
		return fmt.Errorf("%w: account %s changed since version %d", domain.ErrConflict, a.ID, a.Version)
	}
	row.Balance = a.Balance
	row.UpdatedAt = a.UpdatedAt
	row.Version++
	s.rows[a.ID] = row
	a.Version = row.Version
	return nil
}

func (s *Accounts) Delete(_ context.Context, id uuid.UUID) error {
	if err := s.err(OpDelete); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

// Put stores a directly, bypassing checks. For seeding tests.
func (s *Accounts) Put(a account.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[a.ID] = a
}

var _ repo.Repository = (*Accounts)(nil)
