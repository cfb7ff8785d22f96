package initializer

import (
	"context"
	"time"

	txrepo "github.com/amirasaad/ledgersync/infra/repository/transaction"
	"github.com/amirasaad/ledgersync/pkg/config"
	txsvc "github.com/amirasaad/ledgersync/pkg/service/transaction"
)

// TransactionDeps is a running Transaction ledger.
type TransactionDeps struct {
	*Common
	Service *txsvc.Service

	stopSweeper context.CancelFunc
}

// InitializeTransaction builds the Transaction ledger, starts serving fetch
// and purge requests and, when enabled, the stale PENDING sweeper.
func InitializeTransaction(ctx context.Context, cfg *config.App) (*TransactionDeps, error) {
	common, err := initCommon(ctx, cfg, "transaction", txrepo.AutoMigrate)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*TransactionDeps, error) {
		_ = common.Close(ctx)
		return nil, err
	}

	general, err := initPool("general", cfg.GeneralPool, common.Logger, common.Metrics)
	if err != nil {
		return fail(err)
	}
	common.onClose(general.Close)
	settlement, err := initPool("settlement", cfg.SettlementPool, common.Logger, common.Metrics)
	if err != nil {
		return fail(err)
	}
	common.onClose(settlement.Close)

	sweep := txsvc.SweepConfig{}
	if cfg.Sweep != nil {
		sweep.StaleAfter = cfg.Sweep.StaleAfter
		sweep.BatchSize = cfg.Sweep.BatchSize
	}
	retry := txsvc.RetryConfig{}
	if cfg.Settlement != nil {
		retry.Attempts = cfg.Settlement.ResolveAttempts
		retry.InitialInterval = cfg.Settlement.ResolveBackoff
		retry.MaxInterval = cfg.Settlement.ResolveMaxWait
	}
	svc := txsvc.New(txsvc.Deps{
		Transactions:   txrepo.New(common.DB),
		Mirror:         common.Mirror,
		Bus:            common.Bus,
		Events:         common.Events,
		General:        general,
		Settlement:     settlement,
		Metrics:        common.Metrics,
		Logger:         common.Logger,
		RequestTimeout: requestTimeout(cfg.Messaging),
		Sweep:          sweep,
		ResolveRetry:   retry,
	})
	// Settlements must drain before the pools and the bus close.
	common.onClose(svc.Wait)

	if err := svc.Listen(); err != nil {
		return fail(err)
	}

	deps := &TransactionDeps{Common: common, Service: svc}
	if cfg.Sweep != nil && cfg.Sweep.Enabled {
		interval := cfg.Sweep.Interval
		if interval <= 0 {
			interval = time.Minute
		}
		sweepCtx, cancel := context.WithCancel(context.Background())
		deps.stopSweeper = cancel
		common.onClose(func(context.Context) error { cancel(); return nil })
		go svc.RunSweeper(sweepCtx, interval)
	}
	common.Logger.Info("transaction ledger ready", "sweeper", deps.stopSweeper != nil)
	return deps, nil
}
