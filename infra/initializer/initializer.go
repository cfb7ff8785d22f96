// Package initializer builds the Account and Transaction services, and the
// infrastructure under them, from configuration.
package initializer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/amirasaad/ledgersync/infra/cache"
	infrabus "github.com/amirasaad/ledgersync/infra/messaging"
	inframetrics "github.com/amirasaad/ledgersync/infra/metrics"
	infrarepo "github.com/amirasaad/ledgersync/infra/repository"
	pkgcache "github.com/amirasaad/ledgersync/pkg/cache"
	"github.com/amirasaad/ledgersync/pkg/config"
	"github.com/amirasaad/ledgersync/pkg/currency"
	"github.com/amirasaad/ledgersync/pkg/messaging"
	"github.com/amirasaad/ledgersync/pkg/metrics"
	"github.com/amirasaad/ledgersync/pkg/mirror"
	"github.com/amirasaad/ledgersync/pkg/workerpool"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Messaging drivers.
const (
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Common is the infrastructure both services share.
type Common struct {
	Config  *config.App
	Logger  *slog.Logger
	Metrics *inframetrics.Prometheus
	DB      *gorm.DB
	Mirror  *mirror.Mirror
	Bus     messaging.Bus
	Events  messaging.Publisher

	closers []func(context.Context) error
}

func (c *Common) onClose(fn func(context.Context) error) {
	c.closers = append(c.closers, fn)
}

// Close releases everything in reverse order of creation.
func (c *Common) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// initCommon connects the database, Redis, the message channel and the event
// publisher. migrate creates the service's tables.
func initCommon(ctx context.Context, cfg *config.App, service string, migrate func(*gorm.DB) error) (_ *Common, err error) {
	logger := SetupLogger(cfg.Log, service)
	c := &Common{
		Config:  cfg,
		Logger:  logger,
		Metrics: inframetrics.NewPrometheus(metricsNamespace(cfg, service), logger),
	}
	defer func() {
		if err != nil {
			_ = c.Close(ctx)
		}
	}()

	c.DB, err = infrarepo.NewDBConnection(cfg.DB, cfg.Env)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		return nil, err
	}
	if sqlDB, dbErr := c.DB.DB(); dbErr == nil {
		c.onClose(func(context.Context) error { return sqlDB.Close() })
	}
	if err = migrate(c.DB); err != nil {
		return nil, fmt.Errorf("failed to migrate %s schema: %w", service, err)
	}

	var client *redis.Client
	if cfg.Redis != nil && cfg.Redis.URL != "" {
		client, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		c.onClose(func(context.Context) error { return client.Close() })
	}

	store, err := initHashStore(cfg.Redis, client, logger)
	if err != nil {
		return nil, err
	}
	c.Mirror = mirror.New(store, logger)

	c.Bus, err = initBus(cfg.Messaging, client, logger)
	if err != nil {
		return nil, err
	}
	c.onClose(func(context.Context) error { return c.Bus.Close() })

	c.Events, err = initEvents(cfg.Kafka, c.Bus, logger)
	if err != nil {
		return nil, err
	}
	if p, ok := c.Events.(*infrabus.KafkaPublisher); ok {
		c.onClose(func(context.Context) error { return p.Close() })
	}
	return c, nil
}

func metricsNamespace(cfg *config.App, service string) string {
	ns := "ledger"
	if cfg.Metrics != nil && cfg.Metrics.Namespace != "" {
		ns = cfg.Metrics.Namespace
	}
	return ns + "_" + service
}

// initHashStore backs the Cache Mirror with Redis, or with process memory when
// no Redis is configured.
func initHashStore(cfg *config.Redis, client *redis.Client, logger *slog.Logger) (pkgcache.HashStore, error) {
	if client == nil {
		logger.Warn("no redis configured, cache mirror is process-local")
		return cache.NewMemoryHashStore(), nil
	}
	prefix := "account"
	if cfg != nil && cfg.KeyPrefix != "" {
		prefix = cfg.KeyPrefix
	}
	return cache.NewRedisHashStore(client, prefix, logger), nil
}

// initBus selects the request/reply channel.
func initBus(cfg *config.Messaging, client *redis.Client, logger *slog.Logger) (messaging.Bus, error) {
	driver := DriverRedis
	if cfg != nil && cfg.Driver != "" {
		driver = strings.ToLower(cfg.Driver)
	}
	switch driver {
	case DriverMemory:
		logger.Info("using in-memory message channel")
		return infrabus.NewMemoryBus(logger), nil
	case DriverRedis:
		if client == nil {
			return nil, fmt.Errorf("messaging driver %q requires REDIS_URL", driver)
		}
		rc := infrabus.RedisConfig{}
		if cfg != nil {
			rc.Prefix = cfg.Prefix
			rc.Group = cfg.Group
			rc.ReplyTTL = cfg.ReplyTTL
		}
		logger.Info("using redis streams message channel", "prefix", rc.Prefix)
		return infrabus.NewRedisBus(client, rc, logger)
	default:
		return nil, fmt.Errorf("unknown messaging driver %q", driver)
	}
}

// initEvents publishes ledger events to Kafka when brokers are configured and
// to the message channel otherwise.
func initEvents(cfg *config.Kafka, bus messaging.Bus, logger *slog.Logger) (messaging.Publisher, error) {
	if cfg == nil || strings.TrimSpace(cfg.Brokers) == "" {
		return bus, nil
	}
	p, err := infrabus.NewKafkaPublisher(infrabus.KafkaConfig{
		Brokers:       cfg.Brokers,
		TopicPrefix:   cfg.TopicPrefix,
		SASLUsername:  cfg.SASLUsername,
		SASLPassword:  cfg.SASLPassword,
		TLSEnabled:    cfg.TLSEnabled,
		TLSSkipVerify: cfg.TLSSkipVerify,
	}, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("publishing ledger events to kafka", "topic", p.Topic(messaging.RouteLedgerEvents))
	return p, nil
}

func initPool(name string, cfg *config.Pool, logger *slog.Logger, m metrics.Metrics) (*workerpool.Pool, error) {
	pc := workerpool.Config{Name: name}
	if cfg != nil {
		policy, err := workerpool.ParsePolicy(cfg.Policy)
		if err != nil {
			return nil, err
		}
		pc.Workers = cfg.Workers
		pc.QueueSize = cfg.QueueSize
		pc.Policy = policy
	}
	return workerpool.New(pc, logger, m), nil
}

func rates(cfg *config.Rates) currency.Rates {
	if cfg == nil {
		return currency.DefaultRates()
	}
	r := currency.DefaultRates()
	if cfg.USDEUR.IsPositive() {
		r[currency.Pair{From: currency.USD, To: currency.EUR}] = cfg.USDEUR
	}
	if cfg.EURUSD.IsPositive() {
		r[currency.Pair{From: currency.EUR, To: currency.USD}] = cfg.EURUSD
	}
	return r
}

func requestTimeout(cfg *config.Messaging) time.Duration {
	if cfg == nil {
		return 0
	}
	return cfg.Timeout
}
