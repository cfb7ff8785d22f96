// Package transaction exposes the Transaction ledger over HTTP.
package transaction

import (
	"fmt"

	"github.com/amirasaad/ledgersync/pkg/currency"
	"github.com/amirasaad/ledgersync/pkg/domain"
	"github.com/amirasaad/ledgersync/pkg/messaging"
	txsvc "github.com/amirasaad/ledgersync/pkg/service/transaction"
	"github.com/amirasaad/ledgersync/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Routes registers the transaction endpoints.
//
// Routes:
//   - POST /api/v1/transactions             : Record a transaction and request its settlement.
//   - GET  /api/v1/transactions/:accountId  : Page through an account's transactions.
func Routes(app *fiber.App, svc *txsvc.Service) {
	g := app.Group("/api/v1/transactions")
	g.Post("/", CreateTransaction(svc))
	g.Get("/:accountId", ListTransactions(svc))
}

// CreateTransaction returns a handler that records a PENDING transaction. The
// response is 202 because settlement completes asynchronously.
// @Summary Record a transaction
// @Tags transactions
// @Accept json
// @Produce json
// @Success 202 {object} common.Response "Transaction accepted"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 404 {object} common.ProblemDetails "Account not found"
// @Failure 503 {object} common.ProblemDetails "Settlement request not sent, retry"
// @Router /api/v1/transactions [post]
func CreateTransaction(svc *txsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[CreateTransactionRequest](c)
		if input == nil {
			return err
		}
		accountID, err := messaging.ParseAccountIDString(input.AccountID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid account ID", err)
		}
		amount, err := decimal.NewFromString(input.Amount)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid amount", fmt.Errorf("%w: %v", domain.ErrValidation, err))
		}
		code, err := currency.Parse(input.Currency)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid currency", err)
		}

		tx, err := svc.Create(c.UserContext(), accountID, amount, code, input.Description)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to record transaction", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusAccepted, "Transaction accepted", toDTO(*tx))
	}
}

// ListTransactions returns a handler that pages through an account's
// transactions, newest first.
// @Summary List an account's transactions
// @Tags transactions
// @Produce json
// @Param accountId path string true "Account ID"
// @Param page query int false "Zero-based page"
// @Param size query int false "Page size" default(5)
// @Success 200 {object} common.Response
// @Router /api/v1/transactions/{accountId} [get]
func ListTransactions(svc *txsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accountID, err := uuid.Parse(c.Params("accountId"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid account ID", fmt.Errorf("%w: %v", domain.ErrValidation, err))
		}
		page, size := common.Page(c)
		p, err := svc.List(c.UserContext(), accountID, page, size)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list transactions", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Transactions fetched", toPageDTO(p))
	}
}
