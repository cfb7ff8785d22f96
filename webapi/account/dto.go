package account

import (
	"time"

	"github.com/amirasaad/ledgersync/pkg/domain/account"
	"github.com/amirasaad/ledgersync/pkg/messaging"
	accountsvc "github.com/amirasaad/ledgersync/pkg/service/account"
)

// CreateAccountRequest represents the request body for creating a new account.
type CreateAccountRequest struct {
	OwnerID  string `json:"ownerId" validate:"required,uuid"`
	Currency string `json:"currency" validate:"required,len=3,alpha"`
}

// AccountDTO is the API representation of an account.
type AccountDTO struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Balance   string    `json:"balance"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AccountViewDTO is an account with its most recent transactions.
type AccountViewDTO struct {
	AccountDTO
	Transactions []messaging.TransactionSummary `json:"transactions"`
}

func toDTO(a account.Account) AccountDTO {
	return AccountDTO{
		ID:        a.ID.String(),
		OwnerID:   a.OwnerID.String(),
		Balance:   a.Balance.StringFixed(2),
		Currency:  a.Currency.String(),
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toViewDTO(v *accountsvc.View) AccountViewDTO {
	txs := v.Transactions
	if txs == nil {
		txs = []messaging.TransactionSummary{}
	}
	return AccountViewDTO{AccountDTO: toDTO(v.Account), Transactions: txs}
}
