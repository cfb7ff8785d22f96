package account

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is the accounts table row.
type Account struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OwnerID   uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Currency  string          `gorm:"type:varchar(3);not null"`
	Version   int64           `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName specifies the table name for the Account model.
func (Account) TableName() string {
	return "accounts"
}
