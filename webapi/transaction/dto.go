package transaction

import (
	"time"

	"github.com/amirasaad/ledgersync/pkg/domain/transaction"
)

// CreateTransactionRequest represents the request body for recording a transaction.
type CreateTransactionRequest struct {
	AccountID   string `json:"accountId" validate:"required,uuid"`
	Amount      string `json:"amount" validate:"required,numeric"`
	Currency    string `json:"currency" validate:"required,len=3,alpha"`
	Description string `json:"description" validate:"max=255"`
}

// TransactionDTO is the API representation of a transaction.
type TransactionDTO struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"accountId"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PageDTO is one page of transactions.
type PageDTO struct {
	Content       []TransactionDTO `json:"content"`
	PageNumber    int              `json:"pageNumber"`
	PageSize      int              `json:"pageSize"`
	TotalElements int64            `json:"totalElements"`
	TotalPages    int              `json:"totalPages"`
	Last          bool             `json:"last"`
}

func toDTO(tx transaction.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:          tx.ID.String(),
		AccountID:   tx.AccountID.String(),
		Amount:      tx.Amount.String(),
		Currency:    tx.Currency.String(),
		Status:      string(tx.Status),
		Description: tx.Description,
		CreatedAt:   tx.CreatedAt,
	}
}

func toPageDTO(p transaction.Page) PageDTO {
	content := make([]TransactionDTO, 0, len(p.Content))
	for _, tx := range p.Content {
		content = append(content, toDTO(tx))
	}
	return PageDTO{
		Content:       content,
		PageNumber:    p.PageNumber,
		PageSize:      p.PageSize,
		TotalElements: p.TotalElements,
		TotalPages:    p.TotalPages,
		Last:          p.Last,
	}
}
