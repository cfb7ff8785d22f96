package initializer

import (
	"context"
	"time"

	accountrepo "github.com/amirasaad/ledgersync/infra/repository/account"
	"github.com/amirasaad/ledgersync/pkg/config"
	"github.com/amirasaad/ledgersync/pkg/currency"
	accountsvc "github.com/amirasaad/ledgersync/pkg/service/account"
)

// AccountDeps is a running Account ledger.
type AccountDeps struct {
	*Common
	Service *accountsvc.Service
}

// InitializeAccount builds the Account ledger and starts serving balance
// updates.
func InitializeAccount(ctx context.Context, cfg *config.App) (*AccountDeps, error) {
	common, err := initCommon(ctx, cfg, "account", accountrepo.AutoMigrate)
	if err != nil {
		return nil, err
	}

	maxAttempts := 0
	var idempotencyTTL time.Duration
	if cfg.Settlement != nil {
		maxAttempts = cfg.Settlement.MaxAttempts
		idempotencyTTL = cfg.Settlement.IdempotencyTTL
	}
	svc := accountsvc.New(accountsvc.Deps{
		Accounts:       accountrepo.New(common.DB),
		Mirror:         common.Mirror,
		Bus:            common.Bus,
		Events:         common.Events,
		Converter:      currency.NewConverter(rates(cfg.Rates)),
		Metrics:        common.Metrics,
		Logger:         common.Logger,
		RequestTimeout: requestTimeout(cfg.Messaging),
		MaxAttempts:    maxAttempts,
		IdempotencyTTL: idempotencyTTL,
	})
	if err := svc.Listen(); err != nil {
		_ = common.Close(ctx)
		return nil, err
	}
	common.Logger.Info("account ledger ready")
	return &AccountDeps{Common: common, Service: svc}, nil
}
