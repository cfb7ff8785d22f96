package repository

import (
	"errors"

	"github.com/amirasaad/ledgersync/pkg/domain"
	"gorm.io/gorm"
)

// MapGormErrorToDomain converts gorm errors to domain sentinels so callers never
// depend on the persistence library. Unmapped errors are returned unchanged.
func MapGormErrorToDomain(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return domain.ErrAlreadyExists
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.ErrNotFound
	case errors.Is(err, gorm.ErrCheckConstraintViolated), errors.Is(err, gorm.ErrInvalidData):
		return domain.ErrValidation
	}
	return err
}

// WrapError runs a gorm operation and maps its error.
//
//	err := WrapError(func() error {
//	    return r.db.WithContext(ctx).Create(&m).Error
//	})
func WrapError(op func() error) error {
	return MapGormErrorToDomain(op())
}
