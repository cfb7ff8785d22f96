package transaction

import (
	"context"
	"errors"
	"time"

	"github.com/amirasaad/ledgersync/pkg/domain"
	"github.com/amirasaad/ledgersync/pkg/domain/transaction"
	"github.com/amirasaad/ledgersync/pkg/metrics"
)

// Sweep first writes settlement outcomes that could not be recorded when their
// reply arrived. It then marks FAILED every transaction that has been PENDING
// longer than the configured age, is not awaiting a reply and has no known
// outcome. It never re-sends a settlement request. It returns how many
// transactions were failed as stale.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	s.recordUnresolved(ctx)

	cutoff := time.Now().UTC().Add(-s.sweep.StaleAfter)
	stale, err := s.txs.ListStalePending(ctx, cutoff, s.sweep.BatchSize)
	if err != nil {
		s.logger.Error("stale transaction scan failed", "error", err)
		return 0, err
	}

	swept := 0
	for _, tx := range stale {
		if _, waiting := s.inflight.Load(tx.ID); waiting {
			continue
		}
		if _, known := s.unresolved.Load(tx.ID); known {
			continue
		}
		err := s.resolve(ctx, tx, transaction.StatusFailed)
		switch {
		case errors.Is(err, domain.ErrInvalidTransition):
			continue
		case err != nil:
			return swept, err
		}
		swept++
		s.metrics.Counter(metrics.StaleTransactionsSwept).Inc()
		s.logger.Warn("stale pending transaction failed",
			"transaction_id", tx.ID, "account_id", tx.AccountID, "created_at", tx.CreatedAt)
	}
	return swept, nil
}

// recordUnresolved retries each kept outcome once.
func (s *Service) recordUnresolved(ctx context.Context) {
	s.unresolved.Range(func(key, value any) bool {
		o := value.(pendingOutcome)
		err := s.resolve(ctx, o.tx, o.status)
		if err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
			return true
		}
		s.unresolved.Delete(key)
		s.metrics.Gauge(metrics.SettlementsUnresolved).Dec()
		if err == nil {
			s.logger.Info("kept settlement outcome recorded", "transaction_id", o.tx.ID, "status", o.status)
		}
		return true
	})
}

// RunSweeper calls Sweep every interval until ctx ends.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info("stale transaction sweeper started", "interval", interval, "stale_after", s.sweep.StaleAfter)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stale transaction sweeper stopped")
			return
		case <-ticker.C:
			if n, err := s.Sweep(ctx); err == nil && n > 0 {
				s.logger.Info("sweep finished", "failed", n)
			}
		}
	}
}
