// Package account exposes the Account ledger over HTTP.
package account

import (
	"github.com/amirasaad/ledgersync/pkg/currency"
	"github.com/amirasaad/ledgersync/pkg/messaging"
	accountsvc "github.com/amirasaad/ledgersync/pkg/service/account"
	"github.com/amirasaad/ledgersync/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Routes registers the account endpoints.
//
// Routes:
//   - POST   /api/v1/accounts      : Create an account for an owner.
//   - GET    /api/v1/accounts/:id  : Account with its most recent transactions.
//   - DELETE /api/v1/accounts/:id  : Purge the account's transactions, then remove it.
func Routes(app *fiber.App, svc *accountsvc.Service) {
	g := app.Group("/api/v1/accounts")
	g.Post("/", CreateAccount(svc))
	g.Get("/:id", GetAccount(svc))
	g.Delete("/:id", DeleteAccount(svc))
}

// CreateAccount returns a handler that opens a zero-balance account.
// @Summary Create a new account
// @Tags accounts
// @Accept json
// @Produce json
// @Success 201 {object} common.Response "Account created"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 409 {object} common.ProblemDetails "Owner already has an account"
// @Failure 422 {object} common.ProblemDetails "Unsupported currency"
// @Router /api/v1/accounts [post]
func CreateAccount(svc *accountsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[CreateAccountRequest](c)
		if input == nil {
			return err
		}
		code, err := currency.Parse(input.Currency)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid currency", err)
		}
		a, err := svc.Create(c.UserContext(), uuid.MustParse(input.OwnerID), code)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to create account", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Account created", toDTO(*a))
	}
}

// GetAccount returns a handler that reads an account and its recent
// transactions. Transactions are empty when the Transaction ledger is slow or down.
// @Summary Get an account
// @Tags accounts
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} common.Response
// @Failure 404 {object} common.ProblemDetails "Account not found"
// @Router /api/v1/accounts/{id} [get]
func GetAccount(svc *accountsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := messaging.ParseAccountIDString(c.Params("id"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid account ID", err)
		}
		view, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to get account", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Account fetched", toViewDTO(view))
	}
}

// DeleteAccount returns a handler that removes an account after its
// transactions are purged.
// @Summary Delete an account
// @Tags accounts
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} common.Response
// @Failure 404 {object} common.ProblemDetails "Account not found"
// @Failure 409 {object} common.ProblemDetails "Transactions were not purged"
// @Router /api/v1/accounts/{id} [delete]
func DeleteAccount(svc *accountsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := messaging.ParseAccountIDString(c.Params("id"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid account ID", err)
		}
		a, err := svc.Delete(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to delete account", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Account deleted", toDTO(*a))
	}
}
