// Package account is the Account ledger side of the settlement protocol: it
// owns the account store and the Cache Mirror, applies balance updates sent by
// the Transaction ledger, and coordinates reads and deletions that need the
// Transaction ledger's cooperation.
package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/ledgersync/pkg/currency"
	"github.com/amirasaad/ledgersync/pkg/domain"
	"github.com/amirasaad/ledgersync/pkg/domain/account"
	"github.com/amirasaad/ledgersync/pkg/idempotency"
	"github.com/amirasaad/ledgersync/pkg/messaging"
	"github.com/amirasaad/ledgersync/pkg/metrics"
	"github.com/amirasaad/ledgersync/pkg/mirror"
	repo "github.com/amirasaad/ledgersync/pkg/repository/account"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxAttempts bounds compare-and-swap retries of one balance update.
const DefaultMaxAttempts = 3

// Deps are the collaborators of Service. Events may be nil.
type Deps struct {
	Accounts       repo.Repository
	Mirror         *mirror.Mirror
	Bus            messaging.Bus
	Events         messaging.Publisher
	Converter      *currency.Converter
	Metrics        metrics.Metrics
	Logger         *slog.Logger
	RequestTimeout time.Duration
	MaxAttempts    int
	// IdempotencyTTL is how long processed transaction ids are remembered.
	IdempotencyTTL time.Duration
}

// Service implements the Account ledger operations.
type Service struct {
	accounts  repo.Repository
	mirror    *mirror.Mirror
	bus       messaging.Bus
	events    messaging.Publisher
	converter *currency.Converter
	metrics   metrics.Metrics
	logger    *slog.Logger

	timeout     time.Duration
	maxAttempts int

	reads   singleflight.Group
	tracker *idempotency.Tracker
	locks   *keyedMutex
}

// New creates a Service.
func New(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop()
	}
	if deps.Converter == nil {
		deps.Converter = currency.NewConverter(nil)
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = messaging.DefaultRequestTimeout
	}
	if deps.MaxAttempts <= 0 {
		deps.MaxAttempts = DefaultMaxAttempts
	}
	return &Service{
		accounts:    deps.Accounts,
		mirror:      deps.Mirror,
		bus:         deps.Bus,
		events:      deps.Events,
		converter:   deps.Converter,
		metrics:     deps.Metrics,
		logger:      deps.Logger.With("component", "account-service"),
		timeout:     deps.RequestTimeout,
		maxAttempts: deps.MaxAttempts,
		tracker:     idempotency.NewTracker(deps.IdempotencyTTL),
		locks:       newKeyedMutex(),
	}
}

// Create opens a zero-balance account. Each owner may hold one account.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, code currency.Code) (*account.Account, error) {
	logger := s.logger.With("owner_id", ownerID, "currency", code)

	acc, err := account.New(ownerID, code)
	if err != nil {
		return nil, err
	}
	_, err = s.accounts.GetByOwner(ctx, ownerID)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: owner %s already has an account", domain.ErrAlreadyExists, ownerID)
	case !errors.Is(err, domain.ErrNotFound):
		s.metrics.Counter(metrics.AccountErrors).Inc()
		return nil, err
	}

	if err := s.accounts.Create(ctx, acc); err != nil {
		s.metrics.Counter(metrics.AccountErrors).Inc()
		logger.Error("account create failed", "error", err)
		return nil, err
	}
	if err := s.mirror.Put(ctx, acc.Snapshot()); err != nil {
		s.metrics.Counter(metrics.MirrorErrors).Inc()
		logger.Warn("mirror write failed after account create", "account_id", acc.ID, "error", err)
	}
	s.metrics.Counter(metrics.AccountCreated).Inc()
	logger.Info("account created", "account_id", acc.ID)
	return acc, nil
}

// Listen serves settlement requests from the Transaction ledger.
func (s *Service) Listen() error {
	return s.bus.Serve(messaging.RouteBalanceUpdate, s.HandleBalanceUpdate)
}

func (s *Service) publish(ctx context.Context, evt messaging.LedgerEvent) {
	if s.events == nil {
		return
	}
	b, err := json.Marshal(evt)
	if err == nil {
		err = s.events.Publish(ctx, messaging.RouteLedgerEvents, b)
	}
	if err != nil {
		s.metrics.Counter(metrics.EventPublishFailures).Inc()
		s.logger.Warn("ledger event not published", "type", evt.Type, "account_id", evt.AccountID, "error", err)
	}
}
