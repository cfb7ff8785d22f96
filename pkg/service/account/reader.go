package account

import (
	"context"
	"errors"

	"github.com/amirasaad/ledgersync/pkg/domain"
	"github.com/amirasaad/ledgersync/pkg/domain/account"
	"github.com/amirasaad/ledgersync/pkg/messaging"
	"github.com/amirasaad/ledgersync/pkg/metrics"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// View is an account together with its most recent transactions.
type View struct {
	Account      account.Account
	Transactions []messaging.TransactionSummary
}

// Get resolves the account and fetches its transactions concurrently. A failed
// or late fetch yields an empty transaction list, never an error.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	var (
		acc *account.Account
		txs []messaging.TransactionSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		acc, err = s.resolve(gctx, id)
		return err
	})
	g.Go(func() error {
		txs = s.fetchTransactions(gctx, id)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &View{Account: *acc, Transactions: txs}, nil
}

// resolve reads the mirror first and falls back to the ledger, rebuilding the
// mirror entry. Concurrent misses for one id share a single ledger read.
func (s *Service) resolve(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	acc, ok, err := s.mirror.Get(ctx, id)
	switch {
	case err != nil:
		s.metrics.Counter(metrics.MirrorErrors).Inc()
		s.logger.Warn("mirror read failed, using ledger", "account_id", id, "error", err)
	case ok:
		s.metrics.Counter(metrics.MirrorHits).Inc()
		return acc, nil
	default:
		s.metrics.Counter(metrics.MirrorMisses).Inc()
	}

	// The shared read serves every waiter, so it must not end with the first
	// caller's context.
	rctx := context.WithoutCancel(ctx)
	v, err, _ := s.reads.Do(id.String(), func() (any, error) {
		acc, err := s.accounts.Get(rctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.mirror.Refresh(rctx, acc.Snapshot()); err != nil {
			s.metrics.Counter(metrics.MirrorErrors).Inc()
			s.logger.Debug("mirror rebuild failed", "account_id", id, "error", err)
		}
		return acc, nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.metrics.Counter(metrics.AccountErrors).Inc()
		}
		return nil, err
	}
	snapshot := v.(*account.Account).Snapshot()
	return &snapshot, nil
}

func (s *Service) fetchTransactions(ctx context.Context, id uuid.UUID) []messaging.TransactionSummary {
	empty := []messaging.TransactionSummary{}
	reply, err := messaging.Await(ctx, s.bus, messaging.RouteTransactionsFetch, messaging.EncodeAccountID(id), s.timeout)
	if err != nil {
		s.metrics.Counter(metrics.TransactionFetchFailures).Inc()
		s.logger.Warn("transaction fetch failed, returning account without transactions",
			"account_id", id, "route", messaging.RouteTransactionsFetch, "kind", domain.KindOf(err), "error", err)
		return empty
	}
	txs, err := messaging.ParseTransactionSummaries(reply)
	if err != nil {
		s.metrics.Counter(metrics.TransactionFetchFailures).Inc()
		s.logger.Warn("malformed transaction fetch reply", "account_id", id, "error", err)
		return empty
	}
	return txs
}
