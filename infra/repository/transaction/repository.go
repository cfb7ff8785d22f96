package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/amirasaad/ledgersync/infra/repository"
	"github.com/amirasaad/ledgersync/pkg/currency"
	"github.com/amirasaad/ledgersync/pkg/domain"
	"github.com/amirasaad/ledgersync/pkg/domain/transaction"
	repo "github.com/amirasaad/ledgersync/pkg/repository/transaction"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type transactionRepository struct {
	db *gorm.DB
}

// New creates a gorm-backed transaction repository.
func New(db *gorm.DB) repo.Repository {
	return &transactionRepository{db: db}
}

// AutoMigrate creates or updates the transactions table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Transaction{})
}

// Create implements transaction.Repository.
func (r *transactionRepository) Create(ctx context.Context, tx *transaction.Transaction) error {
	m := mapDomainToModel(tx)
	return repository.WrapError(func() error {
		return r.db.WithContext(ctx).Create(&m).Error
	})
}

// Get implements transaction.Repository.
func (r *transactionRepository) Get(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	var m Transaction
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, repository.MapGormErrorToDomain(err)
	}
	tx := mapModelToDomain(&m)
	return &tx, nil
}

// Resolve implements transaction.Repository. The status guard in the WHERE
// clause keeps the transition one-way even with concurrent resolvers.
func (r *transactionRepository) Resolve(ctx context.Context, id uuid.UUID, status transaction.Status) error {
	if !transaction.StatusPending.CanTransitionTo(status) {
		return fmt.Errorf("%w: PENDING -> %s", domain.ErrInvalidTransition, status)
	}
	res := r.db.WithContext(ctx).
		Model(&Transaction{}).
		Where("id = ? AND status = ?", id, string(transaction.StatusPending)).
		UpdateColumn("status", string(status))
	if res.Error != nil {
		return repository.MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, status)
}

// ListRecent implements transaction.Repository.
func (r *transactionRepository) ListRecent(ctx context.Context, accountID uuid.UUID, limit int) ([]transaction.Transaction, error) {
	var rows []Transaction
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, repository.MapGormErrorToDomain(err)
	}
	return mapModelsToDomain(rows), nil
}

// ListPage implements transaction.Repository.
func (r *transactionRepository) ListPage(ctx context.Context, accountID uuid.UUID, page, size int) (transaction.Page, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&Transaction{}).Where("account_id = ?", accountID).Count(&total).Error; err != nil {
		return transaction.Page{}, repository.MapGormErrorToDomain(err)
	}
	var rows []Transaction
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Offset(page * size).
		Limit(size).
		Find(&rows).Error
	if err != nil {
		return transaction.Page{}, repository.MapGormErrorToDomain(err)
	}
	return transaction.NewPage(mapModelsToDomain(rows), page, size, total), nil
}

// DeleteByAccount implements transaction.Repository.
func (r *transactionRepository) DeleteByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("account_id = ?", accountID).Delete(&Transaction{})
	if res.Error != nil {
		return 0, repository.MapGormErrorToDomain(res.Error)
	}
	return res.RowsAffected, nil
}

// ListStalePending implements transaction.Repository.
func (r *transactionRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]transaction.Transaction, error) {
	var rows []Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", string(transaction.StatusPending), cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, repository.MapGormErrorToDomain(err)
	}
	return mapModelsToDomain(rows), nil
}

func mapDomainToModel(tx *transaction.Transaction) Transaction {
	return Transaction{
		ID:          tx.ID,
		AccountID:   tx.AccountID,
		Amount:      tx.Amount,
		Currency:    tx.Currency.String(),
		Status:      string(tx.Status),
		Description: tx.Description,
		CreatedAt:   tx.CreatedAt,
	}
}

func mapModelToDomain(m *Transaction) transaction.Transaction {
	return transaction.Transaction{
		ID:          m.ID,
		AccountID:   m.AccountID,
		Amount:      m.Amount,
		Currency:    currency.Code(m.Currency),
		Status:      transaction.Status(m.Status),
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
	}
}

func mapModelsToDomain(rows []Transaction) []transaction.Transaction {
	out := make([]transaction.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, mapModelToDomain(&rows[i]))
	}
	return out
}
