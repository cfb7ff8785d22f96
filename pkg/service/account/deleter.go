package account

import (
	"context"
	"fmt"
	"time"

	"github.com/amirasaad/ledgersync/pkg/domain"
	"github.com/amirasaad/ledgersync/pkg/domain/account"
	"github.com/amirasaad/ledgersync/pkg/messaging"
	"github.com/amirasaad/ledgersync/pkg/metrics"
	"github.com/google/uuid"
)

// Delete purges the account's transactions on the Transaction ledger and only
// then removes the account and its mirror entry. If the purge is not
// acknowledged the account stays and domain.ErrRemovalFailed is returned.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	logger := s.logger.With("account_id", id)

	acc, err := s.accounts.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.purgeTransactions(ctx, id); err != nil {
		s.metrics.Counter(metrics.AccountRemovalFailed).Inc()
		logger.Warn("account deletion aborted", "route", messaging.RouteTransactionsPurge, "error", err)
		return nil, fmt.Errorf("%w: account %s: %v", domain.ErrRemovalFailed, id, err)
	}

	unlock := s.locks.Lock(id)
	defer unlock()
	if err := s.accounts.Delete(ctx, id); err != nil {
		s.metrics.Counter(metrics.AccountErrors).Inc()
		logger.Error("account delete failed after purge", "error", err)
		return nil, err
	}
	if err := s.mirror.Remove(ctx, id); err != nil {
		s.metrics.Counter(metrics.MirrorErrors).Inc()
		logger.Error("mirror entry not removed", "error", err)
	}

	s.metrics.Counter(metrics.AccountDeleted).Inc()
	s.publish(ctx, messaging.LedgerEvent{
		Type:       messaging.EventAccountDeleted,
		AccountID:  id.String(),
		OccurredAt: time.Now().UTC(),
	})
	logger.Info("account deleted")
	return acc, nil
}

func (s *Service) purgeTransactions(ctx context.Context, id uuid.UUID) error {
	reply, err := messaging.Await(ctx, s.bus, messaging.RouteTransactionsPurge, messaging.EncodeAccountID(id), s.timeout)
	if err != nil {
		return err
	}
	ack, err := messaging.ParsePurgeReply(reply)
	if err != nil {
		return err
	}
	if !ack.Success {
		return fmt.Errorf("purge not acknowledged")
	}
	return nil
}
