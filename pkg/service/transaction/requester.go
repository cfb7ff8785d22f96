package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amirasaad/ledgersync/pkg/domain"
	"github.com/amirasaad/ledgersync/pkg/domain/transaction"
	"github.com/amirasaad/ledgersync/pkg/messaging"
	"github.com/amirasaad/ledgersync/pkg/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// requestSettlement sends the balance update for tx and hands the wait for its
// reply to the settlement pool. Only a failure to send is returned.
func (s *Service) requestSettlement(ctx context.Context, tx transaction.Transaction) error {
	// Stamped before sending, so the Account side gives up no later than the
	// wait below does.
	deadline := time.Now().UTC().Add(s.timeout)
	payload, err := json.Marshal(messaging.BalanceUpdateRequest{
		AccountID:     tx.AccountID.String(),
		Amount:        tx.Amount,
		Currency:      tx.Currency.String(),
		TransactionID: tx.ID.String(),
		Deadline:      &deadline,
	})
	if err != nil {
		return err
	}

	future, err := s.bus.Request(ctx, messaging.RouteBalanceUpdate, payload)
	if err != nil {
		return err
	}

	s.inflight.Store(tx.ID, struct{}{})
	s.settling.Add(1)
	s.metrics.Gauge(metrics.SettlementsInFlight).Inc()

	// The reply outlives the caller's request.
	wctx := context.WithoutCancel(ctx)
	task := func() { s.awaitSettlement(wctx, tx, future) }
	if err := s.settlement.Submit(wctx, task); err != nil {
		// The request is already out; its reply must still be observed.
		s.logger.Warn("settlement pool unavailable, awaiting on caller",
			"transaction_id", tx.ID, "error", err)
		task()
	}
	return nil
}

func (s *Service) awaitSettlement(ctx context.Context, tx transaction.Transaction, future *messaging.Future) {
	defer func() {
		s.metrics.Gauge(metrics.SettlementsInFlight).Dec()
		s.inflight.Delete(tx.ID)
		s.settling.Done()
	}()

	logger := s.logger.With("transaction_id", tx.ID, "account_id", tx.AccountID, "correlation_id", future.CorrelationID)

	reply, err := future.Wait(ctx, s.timeout)
	status, reason := s.outcome(tx, reply, err)
	if status == transaction.StatusFailed {
		logger.Warn("settlement failed", "reason", reason)
	} else {
		logger.Info("settlement done")
	}
	s.record(ctx, tx, status)
}

// record writes the outcome of a settlement, retrying store failures with
// backoff. An outcome that still cannot be written is kept for the sweeper,
// which must not fail a transaction whose outcome is already known.
func (s *Service) record(ctx context.Context, tx transaction.Transaction, status transaction.Status) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retry.InitialInterval
	b.MaxInterval = s.retry.MaxInterval
	b.MaxElapsedTime = 0

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := s.resolve(ctx, tx, status)
		if errors.Is(err, domain.ErrInvalidTransition) {
			return backoff.Permanent(err)
		}
		if err != nil && attempt < s.retry.Attempts {
			s.metrics.Counter(metrics.SettlementResolveRetries).Inc()
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.retry.Attempts-1)), ctx))
	if err == nil || errors.Is(err, domain.ErrInvalidTransition) {
		return
	}

	if _, loaded := s.unresolved.LoadOrStore(tx.ID, pendingOutcome{tx: tx, status: status}); !loaded {
		s.metrics.Gauge(metrics.SettlementsUnresolved).Inc()
	}
	s.logger.Error("settlement outcome not recorded, kept for the sweeper",
		"transaction_id", tx.ID, "status", status, "attempts", attempt, "error", err)
}

// pendingOutcome is a settlement outcome waiting to be written.
type pendingOutcome struct {
	tx     transaction.Transaction
	status transaction.Status
}

// outcome maps a settlement reply, or the lack of one, to a terminal status.
func (s *Service) outcome(tx transaction.Transaction, reply []byte, waitErr error) (transaction.Status, error) {
	if waitErr != nil {
		if domain.KindOf(waitErr) == domain.KindTimeout {
			s.metrics.Counter(metrics.SettlementTimeouts).Inc()
		}
		return transaction.StatusFailed, waitErr
	}

	r, err := messaging.ParseBalanceUpdateReply(reply)
	if err != nil {
		s.metrics.Counter(metrics.SettlementMalformed).Inc()
		return transaction.StatusFailed, err
	}
	if !r.Success {
		if r.Error != nil {
			return transaction.StatusFailed, fmt.Errorf("refused: %s: %s", r.Error.Kind, r.Error.Detail)
		}
		return transaction.StatusFailed, errors.New("refused")
	}
	if id, err := uuid.Parse(r.AccountID); err != nil || id != tx.AccountID {
		return transaction.StatusFailed, fmt.Errorf("reply account id %q does not match %s", r.AccountID, tx.AccountID)
	}
	return transaction.StatusDone, nil
}
