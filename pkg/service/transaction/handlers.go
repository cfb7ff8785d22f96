package transaction

import (
	"context"
	"encoding/json"

	"github.com/amirasaad/ledgersync/pkg/messaging"
	"github.com/amirasaad/ledgersync/pkg/metrics"
)

// HandleFetch answers a transactions fetch with the account's most recent
// transactions. A malformed account id gets an empty list. A store failure
// sends no reply and the requester degrades on its own timeout.
func (s *Service) HandleFetch(ctx context.Context, payload []byte) ([]byte, error) {
	summaries := []messaging.TransactionSummary{}

	accountID, err := messaging.ParseAccountID(payload)
	if err != nil {
		s.metrics.Counter(metrics.MessagesFailed).Inc()
		s.logger.Warn("fetch request with malformed account id", "payload", string(payload))
		return json.Marshal(summaries)
	}

	txs, err := s.txs.ListRecent(ctx, accountID, RecentLimit)
	if err != nil {
		s.metrics.Counter(metrics.MessagesFailed).Inc()
		s.logger.Error("fetch request failed", "account_id", accountID, "error", err)
		return nil, err
	}
	for _, tx := range txs {
		summaries = append(summaries, messaging.TransactionSummary{
			ID:        tx.ID,
			Status:    string(tx.Status),
			CreatedAt: tx.CreatedAt,
		})
	}
	s.metrics.Counter(metrics.MessagesProcessed).Inc()
	return json.Marshal(summaries)
}

// HandlePurge deletes all of the account's transactions and acknowledges it.
func (s *Service) HandlePurge(ctx context.Context, payload []byte) ([]byte, error) {
	accountID, err := messaging.ParseAccountID(payload)
	if err != nil {
		s.metrics.Counter(metrics.MessagesFailed).Inc()
		s.logger.Warn("purge request with malformed account id", "payload", string(payload))
		return json.Marshal(messaging.PurgeReply{Success: false})
	}

	n, err := s.txs.DeleteByAccount(ctx, accountID)
	if err != nil {
		s.metrics.Counter(metrics.MessagesFailed).Inc()
		s.logger.Error("purge failed", "account_id", accountID, "error", err)
		return json.Marshal(messaging.PurgeReply{Success: false})
	}
	s.metrics.Counter(metrics.MessagesProcessed).Inc()
	s.logger.Info("transactions purged", "account_id", accountID, "count", n)
	return json.Marshal(messaging.PurgeReply{Success: true})
}
