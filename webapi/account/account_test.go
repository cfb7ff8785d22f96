package account

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amirasaad/ledgersync/infra/cache"
	infrabus "github.com/amirasaad/ledgersync/infra/messaging"
	"github.com/amirasaad/ledgersync/internal/fixtures"
	"github.com/amirasaad/ledgersync/pkg/currency"
	"github.com/amirasaad/ledgersync/pkg/domain/account"
	"github.com/amirasaad/ledgersync/pkg/messaging"
	"github.com/amirasaad/ledgersync/pkg/metrics"
	"github.com/amirasaad/ledgersync/pkg/mirror"
	accountsvc "github.com/amirasaad/ledgersync/pkg/service/account"
	"github.com/amirasaad/ledgersync/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type AccountRoutesTestSuite struct {
	suite.Suite
	app      *fiber.App
	bus      *infrabus.MemoryBus
	accounts *fixtures.Accounts
	mirror   *mirror.Mirror
}

func (s *AccountRoutesTestSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.bus = infrabus.NewMemoryBus(logger)
	s.accounts = fixtures.NewAccounts()
	s.mirror = mirror.New(cache.NewMemoryHashStore(), logger)
	svc := accountsvc.New(accountsvc.Deps{
		Accounts:       s.accounts,
		Mirror:         s.mirror,
		Bus:            s.bus,
		Metrics:        metrics.NewMemory(),
		Logger:         logger,
		RequestTimeout: 100 * time.Millisecond,
	})
	s.app = common.NewApp(common.Config{Service: "account", Logger: logger})
	Routes(s.app, svc)
}

func (s *AccountRoutesTestSuite) TearDownTest() {
	_ = s.bus.Close()
}

func (s *AccountRoutesTestSuite) do(method, path, body string) (*http.Response, map[string]any) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := s.app.Test(req, 2000)
	s.Require().NoError(err)
	defer resp.Body.Close() //nolint: errcheck
	var out map[string]any
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func (s *AccountRoutesTestSuite) seed(balance string) *account.Account {
	a, err := account.New(uuid.New(), currency.USD)
	s.Require().NoError(err)
	a.Balance = decimal.RequireFromString(balance)
	s.accounts.Put(*a)
	s.Require().NoError(s.mirror.Put(context.Background(), a.Snapshot()))
	return a
}

func (s *AccountRoutesTestSuite) TestCreateAccount() {
	owner := uuid.NewString()
	resp, body := s.do(fiber.MethodPost, "/api/v1/accounts", `{"ownerId":"`+owner+`","currency":"eur"}`)
	s.Equal(fiber.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]any)
	s.Equal(owner, data["ownerId"])
	s.Equal("EUR", data["currency"])
	s.Equal("0.00", data["balance"])

	resp, body = s.do(fiber.MethodPost, "/api/v1/accounts", `{"ownerId":"`+owner+`","currency":"EUR"}`)
	s.Equal(fiber.StatusConflict, resp.StatusCode)
	s.Equal("AlreadyExists", body["kind"])
}

func (s *AccountRoutesTestSuite) TestCreateAccount_Invalid() {
	resp, body := s.do(fiber.MethodPost, "/api/v1/accounts", `{"currency":"USD"}`)
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)
	s.Equal("Validation failed", body["title"])

	resp, _ = s.do(fiber.MethodPost, "/api/v1/accounts", `{"ownerId":"`+uuid.NewString()+`","currency":"GBP"}`)
	s.Equal(fiber.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = s.do(fiber.MethodPost, "/api/v1/accounts", `{not json`)
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)
}

func (s *AccountRoutesTestSuite) TestGetAccount() {
	a := s.seed("150.00")
	tx := messaging.TransactionSummary{ID: uuid.New(), Status: "DONE", CreatedAt: time.Now().UTC()}
	s.Require().NoError(s.bus.Serve(messaging.RouteTransactionsFetch, func(context.Context, []byte) ([]byte, error) {
		return json.Marshal([]messaging.TransactionSummary{tx})
	}))

	resp, body := s.do(fiber.MethodGet, "/api/v1/accounts/"+a.ID.String(), "")
	s.Equal(fiber.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	s.Equal("150.00", data["balance"])
	txs := data["transactions"].([]any)
	s.Require().Len(txs, 1)
	s.Equal(tx.ID.String(), txs[0].(map[string]any)["id"])
}

func (s *AccountRoutesTestSuite) TestGetAccount_TransactionLedgerDown() {
	a := s.seed("10.00")

	resp, body := s.do(fiber.MethodGet, "/api/v1/accounts/"+a.ID.String(), "")
	s.Equal(fiber.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	s.Empty(data["transactions"])
	s.NotNil(data["transactions"])
}

func (s *AccountRoutesTestSuite) TestGetAccount_Errors() {
	resp, body := s.do(fiber.MethodGet, "/api/v1/accounts/"+uuid.NewString(), "")
	s.Equal(fiber.StatusNotFound, resp.StatusCode)
	s.Equal("NotFound", body["kind"])

	resp, _ = s.do(fiber.MethodGet, "/api/v1/accounts/not-a-uuid", "")
	s.Equal(fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func (s *AccountRoutesTestSuite) TestDeleteAccount() {
	a := s.seed("1.00")
	s.Require().NoError(s.bus.Serve(messaging.RouteTransactionsPurge, func(context.Context, []byte) ([]byte, error) {
		return []byte(`{"success":true}`), nil
	}))

	resp, _ := s.do(fiber.MethodDelete, "/api/v1/accounts/"+a.ID.String(), "")
	s.Equal(fiber.StatusOK, resp.StatusCode)

	resp, _ = s.do(fiber.MethodGet, "/api/v1/accounts/"+a.ID.String(), "")
	s.Equal(fiber.StatusNotFound, resp.StatusCode)
}

func (s *AccountRoutesTestSuite) TestDeleteAccount_PurgeRefused() {
	a := s.seed("1.00")
	s.Require().NoError(s.bus.Serve(messaging.RouteTransactionsPurge, func(context.Context, []byte) ([]byte, error) {
		return []byte(`{"success":false}`), nil
	}))

	resp, body := s.do(fiber.MethodDelete, "/api/v1/accounts/"+a.ID.String(), "")
	s.Equal(fiber.StatusConflict, resp.StatusCode)
	s.Equal("RemovalFailed", body["kind"])

	_, err := s.accounts.Get(context.Background(), a.ID)
	s.NoError(err)
}

func (s *AccountRoutesTestSuite) TestHealth() {
	resp, body := s.do(fiber.MethodGet, "/health", "")
	s.Equal(fiber.StatusOK, resp.StatusCode)
	s.Equal("account", body["service"])
}

func TestAccountRoutesTestSuite(t *testing.T) {
	suite.Run(t, new(AccountRoutesTestSuite))
}
