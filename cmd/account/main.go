package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirasaad/ledgersync/infra/initializer"
	"github.com/amirasaad/ledgersync/pkg/config"
	"github.com/amirasaad/ledgersync/webapi/account"
	"github.com/amirasaad/ledgersync/webapi/common"
	log "github.com/charmbracelet/log"
)

// @title Account Ledger API
// @version 1.0.0
// @BasePath /
func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("failed to load application configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializer.InitializeAccount(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := deps.Close(closeCtx); err != nil {
			deps.Logger.Error("shutdown incomplete", "error", err)
		}
	}()

	app := common.NewApp(common.Config{
		Service:     "account",
		Logger:      deps.Logger,
		MetricsPath: cfg.Metrics.Path,
		Metrics:     deps.Metrics.Handler(),
	})
	account.Routes(app, deps.Service)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	deps.Logger.Info("starting account ledger",
		"env", cfg.Env,
		"address", addr,
		"scheme", cfg.Server.Scheme,
	)
	return common.Serve(ctx, app, addr, deps.Logger)
}
