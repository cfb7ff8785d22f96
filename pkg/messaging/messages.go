package messaging

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/amirasaad/ledgersync/pkg/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceUpdateRequest is a settlement request sent to the Account side.
// Deadline is the instant the requester stops waiting for the reply; a request
// handled after it must not be applied.
type BalanceUpdateRequest struct {
	AccountID     string          `json:"accountId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	TransactionID string          `json:"transactionId,omitempty"`
	Deadline      *time.Time      `json:"deadline,omitempty"`
}

// Expired reports whether the request's deadline has passed at now. A request
// without a deadline never expires.
func (r BalanceUpdateRequest) Expired(now time.Time) bool {
	return r.Deadline != nil && !now.Before(*r.Deadline)
}

// ReplyError is the failure half of a tagged reply.
type ReplyError struct {
	Kind   domain.Kind `json:"kind"`
	Detail string      `json:"detail,omitempty"`
}

// BalanceUpdateReply is the Account side's answer to a BalanceUpdateRequest.
type BalanceUpdateReply struct {
	Success   bool        `json:"success"`
	AccountID string      `json:"accountId"`
	Error     *ReplyError `json:"error,omitempty"`
}

// BalanceUpdateOK builds a success reply.
func BalanceUpdateOK(accountID string) BalanceUpdateReply {
	return BalanceUpdateReply{Success: true, AccountID: accountID}
}

// BalanceUpdateFailed builds a failure reply tagged with the kind of err.
func BalanceUpdateFailed(accountID string, err error) BalanceUpdateReply {
	reply := BalanceUpdateReply{Success: false, AccountID: accountID}
	if err != nil {
		reply.Error = &ReplyError{Kind: domain.KindOf(err), Detail: err.Error()}
	}
	return reply
}

// ParseBalanceUpdateReply decodes a reply, requiring both success and accountId.
func ParseBalanceUpdateReply(b []byte) (BalanceUpdateReply, error) {
	var raw struct {
		Success   *bool       `json:"success"`
		AccountID *string     `json:"accountId"`
		Error     *ReplyError `json:"error"`
	}
	if len(b) == 0 {
		return BalanceUpdateReply{}, fmt.Errorf("%w: empty balance update reply", domain.ErrMalformedReply)
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return BalanceUpdateReply{}, fmt.Errorf("%w: %v", domain.ErrMalformedReply, err)
	}
	if raw.Success == nil || raw.AccountID == nil || *raw.AccountID == "" {
		return BalanceUpdateReply{}, fmt.Errorf("%w: balance update reply missing fields", domain.ErrMalformedReply)
	}
	return BalanceUpdateReply{Success: *raw.Success, AccountID: *raw.AccountID, Error: raw.Error}, nil
}

// TransactionSummary is one element of a transactions fetch reply.
type TransactionSummary struct {
	ID        uuid.UUID `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// ParseTransactionSummaries decodes a fetch reply, which must be a JSON array.
func ParseTransactionSummaries(b []byte) ([]TransactionSummary, error) {
	var out []TransactionSummary
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedReply, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: transactions reply is not an array", domain.ErrMalformedReply)
	}
	for _, s := range out {
		if s.ID == uuid.Nil || s.Status == "" {
			return nil, fmt.Errorf("%w: transaction summary missing fields", domain.ErrMalformedReply)
		}
	}
	return out, nil
}

// PurgeReply acknowledges a purge request.
type PurgeReply struct {
	Success bool `json:"success"`
}

// ParsePurgeReply decodes a purge acknowledgement.
func ParsePurgeReply(b []byte) (PurgeReply, error) {
	var raw struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return PurgeReply{}, fmt.Errorf("%w: %v", domain.ErrMalformedReply, err)
	}
	if raw.Success == nil {
		return PurgeReply{}, fmt.Errorf("%w: purge reply missing success", domain.ErrMalformedReply)
	}
	return PurgeReply{Success: *raw.Success}, nil
}

// EncodeAccountID encodes an account id as the bare JSON string payload used by
// the fetch and purge routes.
func EncodeAccountID(id uuid.UUID) []byte {
	b, _ := json.Marshal(id.String())
	return b
}

// ParseAccountID accepts a bare or quoted account id.
func ParseAccountID(b []byte) (uuid.UUID, error) {
	return ParseAccountIDString(string(b))
}

// ParseAccountIDString strips surrounding whitespace and one pair of enclosing
// quotes before parsing.
func ParseAccountIDString(s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed account id %q", domain.ErrValidation, s)
	}
	return id, nil
}

// Ledger event types published on RouteLedgerEvents.
const (
	EventTransactionSettled = "transaction.settled"
	EventTransactionFailed  = "transaction.failed"
	EventAccountDeleted     = "account.deleted"
)

// LedgerEvent is an informational, fire-and-forget notification.
type LedgerEvent struct {
	Type          string    `json:"type"`
	AccountID     string    `json:"accountId"`
	TransactionID string    `json:"transactionId,omitempty"`
	Status        string    `json:"status,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}
