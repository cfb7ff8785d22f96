package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amirasaad/ledgersync/pkg/currency"
	"github.com/amirasaad/ledgersync/pkg/domain"
	"github.com/amirasaad/ledgersync/pkg/messaging"
	"github.com/amirasaad/ledgersync/pkg/metrics"
	"github.com/google/uuid"
)

// HandleBalanceUpdate is the messaging.Handler for RouteBalanceUpdate. It
// always answers, even for undecodable requests.
func (s *Service) HandleBalanceUpdate(ctx context.Context, payload []byte) ([]byte, error) {
	var req messaging.BalanceUpdateRequest
	var reply messaging.BalanceUpdateReply
	if err := json.Unmarshal(payload, &req); err != nil {
		s.metrics.Counter(metrics.BalanceUpdateFailures).Inc()
		s.logger.Warn("malformed balance update request", "route", messaging.RouteBalanceUpdate, "error", err)
		reply = messaging.BalanceUpdateFailed("", fmt.Errorf("%w: %v", domain.ErrValidation, err))
	} else {
		reply = s.UpdateBalance(ctx, req)
	}
	return json.Marshal(reply)
}

// UpdateBalance applies one settlement request and returns the reply to send.
// Failures, including panics, become failure replies carrying the request's
// account id.
func (s *Service) UpdateBalance(ctx context.Context, req messaging.BalanceUpdateRequest) (reply messaging.BalanceUpdateReply) {
	logger := s.logger.With("account_id", req.AccountID, "transaction_id", req.TransactionID)
	defer func() {
		if r := recover(); r != nil {
			s.metrics.Counter(metrics.BalanceUpdateFailures).Inc()
			logger.Error("panic recovered in balance update", "panic", r)
			reply = messaging.BalanceUpdateFailed(req.AccountID, fmt.Errorf("internal error: %v", r))
		}
	}()

	id, err := messaging.ParseAccountIDString(req.AccountID)
	if err != nil {
		s.metrics.Counter(metrics.BalanceUpdateFailures).Inc()
		logger.Warn("balance update rejected", "error", err)
		return messaging.BalanceUpdateFailed(req.AccountID, err)
	}
	code, err := currency.Parse(req.Currency)
	if err != nil {
		s.metrics.Counter(metrics.BalanceUpdateFailures).Inc()
		logger.Warn("balance update rejected", "error", err)
		return messaging.BalanceUpdateFailed(req.AccountID, err)
	}

	duplicate, err := s.tracker.Do(req.TransactionID, func() error {
		return s.apply(ctx, id, req, code)
	})
	if err != nil {
		if errors.Is(err, domain.ErrTimeout) {
			s.metrics.Counter(metrics.BalanceUpdatesExpired).Inc()
		}
		s.metrics.Counter(metrics.BalanceUpdateFailures).Inc()
		logger.Warn("balance update failed", "kind", domain.KindOf(err), "error", err)
		return messaging.BalanceUpdateFailed(req.AccountID, err)
	}
	if duplicate {
		s.metrics.Counter(metrics.BalanceUpdateDuplicates).Inc()
		logger.Info("duplicate balance update skipped")
		return messaging.BalanceUpdateOK(req.AccountID)
	}
	s.metrics.Counter(metrics.BalanceUpdates).Inc()
	return messaging.BalanceUpdateOK(req.AccountID)
}

// apply converts the request amount into the account's currency, adds it,
// persists with a version check and refreshes the mirror. Lost races reload and
// retry. Nothing is written once the request's deadline has passed.
func (s *Service) apply(ctx context.Context, id uuid.UUID, req messaging.BalanceUpdateRequest, from currency.Code) error {
	amount := req.Amount
	unlock := s.locks.Lock(id)
	defer unlock()

	for attempt := 1; ; attempt++ {
		acc, err := s.accounts.Get(ctx, id)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if req.Expired(now) {
			return fmt.Errorf("%w: settlement deadline %s passed", domain.ErrTimeout, req.Deadline.Format(time.RFC3339Nano))
		}
		converted := s.converter.Convert(amount, from, acc.Currency)
		acc.Apply(converted, now)

		err = s.accounts.Update(ctx, acc)
		if errors.Is(err, domain.ErrConflict) && attempt < s.maxAttempts {
			s.metrics.Counter(metrics.BalanceUpdateConflicts).Inc()
			s.logger.Debug("balance update lost a race, retrying", "account_id", id, "attempt", attempt)
			continue
		}
		if err != nil {
			return err
		}

		// The balance is committed at this point; a mirror that cannot be
		// rewritten is evicted so reads go back to the ledger.
		if err := s.mirror.Refresh(ctx, acc.Snapshot()); err != nil {
			s.metrics.Counter(metrics.MirrorErrors).Inc()
			s.logger.Warn("mirror refresh failed", "account_id", id, "error", err)
			if err := s.mirror.Remove(ctx, id); err != nil {
				s.logger.Error("mirror eviction failed", "account_id", id, "error", err)
			}
		}
		s.logger.Info("balance updated",
			"account_id", id,
			"amount", amount.String(),
			"currency", from,
			"converted", converted.String(),
			"balance", acc.Balance.String(),
		)
		return nil
	}
}
