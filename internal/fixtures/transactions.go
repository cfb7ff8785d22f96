package fixtures

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/amirasaad/ledgersync/pkg/domain"
	"github.com/amirasaad/ledgersync/pkg/domain/transaction"
	repo "github.com/amirasaad/ledgersync/pkg/repository/transaction"
	"github.com/google/uuid"
)

// Transactions is an in-memory transaction repository.
type Transactions struct {
	faults
	mu   sync.RWMutex
	rows map[uuid.UUID]transaction.Transaction
}

// NewTransactions creates an empty transaction store.
func NewTransactions() *Transactions {
	return &Transactions{rows: make(map[uuid.UUID]transaction.Transaction)}
}

func (s *Transactions) Create(_ context.Context, tx *transaction.Transaction) error {
	if err := s.err(OpCreate); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[tx.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.rows[tx.ID] = *tx
	return nil
}

func (s *Transactions) Get(_ context.Context, id uuid.UUID) (*transaction.Transaction, error) {
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

func (s *Transactions) Resolve(_ context.Context, id uuid.UUID, status transaction.Status) error {
	if err := s.err(OpResolve); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	if err := row.Resolve(status); err != nil {
		return err
	}
	s.rows[id] = row
	return nil
}

// byAccount returns the account's rows newest first.
func (s *Transactions) byAccount(accountID uuid.UUID) []transaction.Transaction {
	out := make([]transaction.Transaction, 0)
	for _, row := range s.rows {
		if row.AccountID == accountID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Transactions) ListRecent(_ context.Context, accountID uuid.UUID, limit int) ([]transaction.Transaction, error) {
	if err := s.err(OpList); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.byAccount(accountID)
	if limit >= 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *Transactions) ListPage(_ context.Context, accountID uuid.UUID, page, size int) (transaction.Page, error) {
	if err := s.err(OpList); err != nil {
		return transaction.Page{}, err
	}
	if page < 0 || size <= 0 {
		return transaction.Page{}, fmt.Errorf("%w: page %d size %d", domain.ErrValidation, page, size)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.byAccount(accountID)
	total := int64(len(rows))
	start := min(page*size, len(rows))
	end := min(start+size, len(rows))
	return transaction.NewPage(rows[start:end], page, size, total), nil
}

func (s *Transactions) DeleteByAccount(_ context.Context, accountID uuid.UUID) (int64, error) {
	if err := s.err(OpDeleteByAccount); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, row := range s.rows {
		if row.AccountID == accountID {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

func (s *Transactions) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]transaction.Transaction, error) {
	if err := s.err(OpList); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]transaction.Transaction, 0)
	for _, row := range s.rows {
		if row.Status == transaction.StatusPending && row.CreatedAt.Before(cutoff) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Put stores tx directly. For seeding tests.
func (s *Transactions) Put(tx transaction.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[tx.ID] = tx
}

// Len reports how many transactions are stored.
func (s *Transactions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

var _ repo.Repository = (*Transactions)(nil)
