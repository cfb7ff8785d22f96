package account

import (
	"context"
	"fmt"

	"github.com/amirasaad/ledgersync/infra/repository"
	"github.com/amirasaad/ledgersync/pkg/currency"
	"github.com/amirasaad/ledgersync/pkg/domain"
	"github.com/amirasaad/ledgersync/pkg/domain/account"
	repo "github.com/amirasaad/ledgersync/pkg/repository/account"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type accountRepository struct {
	db *gorm.DB
}

// New creates a gorm-backed account repository.
func New(db *gorm.DB) repo.Repository {
	return &accountRepository{db: db}
}

// AutoMigrate creates or updates the accounts table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Account{})
}

// Create implements account.Repository.
func (r *accountRepository) Create(ctx context.Context, a *account.Account) error {
	m := mapDomainToModel(a)
	return repository.WrapError(func() error {
		return r.db.WithContext(ctx).Create(&m).Error
	})
}

// Get implements account.Repository.
func (r *accountRepository) Get(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	var m Account
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, repository.MapGormErrorToDomain(err)
	}
	return mapModelToDomain(&m), nil
}

// GetByOwner implements account.Repository.
func (r *accountRepository) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*account.Account, error) {
	var m Account
	if err := r.db.WithContext(ctx).First(&m, "owner_id = ?", ownerID).Error; err != nil {
		return nil, repository.MapGormErrorToDomain(err)
	}
	return mapModelToDomain(&m), nil
}

// Update implements account.Repository with a compare-and-swap on version.
func (r *accountRepository) Update(ctx context.Context, a *account.Account) error {
	res := r.db.WithContext(ctx).
		Model(&Account{}).
		Where("id = ? AND version = ?", a.ID, a.Version).
		UpdateColumns(map[string]any{
			"balance":    a.Balance,
			"updated_at": a.UpdatedAt,
			"version":    gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return repository.MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&Account{}).Where("id = ?", a.ID).Count(&count).Error; err != nil {
			return repository.MapGormErrorToDomain(err)
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		return fmt.Errorf("%w: account %s changed since version %d", domain.ErrConflict, a.ID, a.Version)
	}
	a.Version++
	return nil
}

// Delete implements account.Repository.
func (r *accountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&Account{})
	if res.Error != nil {
		return repository.MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func mapDomainToModel(a *account.Account) Account {
	return Account{
		ID:        a.ID,
		OwnerID:   a.OwnerID,
		Balance:   a.Balance,
		Currency:  a.Currency.String(),
		Version:   a.Version,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func mapModelToDomain(m *Account) *account.Account {
	return &account.Account{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		Balance:   m.Balance,
		Currency:  currency.Code(m.Currency),
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
