package transaction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is the transactions table row.
type Transaction struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	AccountID   uuid.UUID       `gorm:"type:uuid;index;not null"`
	Amount      decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Currency    string          `gorm:"type:varchar(3);not null"`
	Status      string          `gorm:"type:varchar(16);index;not null"`
	Description string          `gorm:"type:text"`
	CreatedAt   time.Time       `gorm:"index"`
}

// TableName specifies the table name for the Transaction model.
func (Transaction) TableName() string {
	return "transactions"
}
