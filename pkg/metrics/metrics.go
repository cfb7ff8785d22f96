// Package metrics defines the counters and gauges components report to.
// Components receive a Metrics value at construction; nothing registers
// process-wide collectors on its own.
package metrics

import (
	"sync"
)

// Counter is a monotonically increasing value.
type Counter interface {
	Inc()
	Add(delta float64)
}

// Gauge is a value that can go up and down.
type Gauge interface {
	Set(value float64)
	Inc()
	Dec()
}

// Metrics hands out named counters and gauges. Asking twice for the same name
// returns the same instrument.
type Metrics interface {
	Counter(name string) Counter
	Gauge(name string) Gauge
}

// Names of the instruments reported by the settlement protocol.
const (
	AccountCreated           = "account_created_total"
	AccountDeleted           = "account_deleted_total"
	AccountErrors            = "account_errors_total"
	AccountRemovalFailed     = "account_removal_failed_total"
	BalanceUpdates           = "balance_updates_total"
	BalanceUpdateFailures    = "balance_update_failures_total"
	BalanceUpdateDuplicates  = "balance_update_duplicates_total"
	BalanceUpdateConflicts   = "balance_update_conflicts_total"
	BalanceUpdatesExpired    = "balance_updates_expired_total"
	MirrorErrors             = "mirror_errors_total"
	MirrorHits               = "mirror_hits_total"
	MirrorMisses             = "mirror_misses_total"
	TransactionFetchFailures = "transaction_fetch_failures_total"
	TransactionsCreated      = "transactions_created_total"
	TransactionErrors        = "transaction_errors_total"
	SettlementsDone          = "settlements_done_total"
	SettlementsFailed        = "settlements_failed_total"
	SettlementTimeouts       = "settlement_timeouts_total"
	SettlementMalformed      = "settlement_malformed_replies_total"
	SettlementsInFlight      = "settlements_in_flight"
	SettlementResolveRetries = "settlement_resolve_retries_total"
	SettlementsUnresolved    = "settlements_unresolved"
	StaleTransactionsSwept   = "stale_transactions_swept_total"
	MessagesProcessed        = "messages_processed_total"
	MessagesFailed           = "messages_failed_total"
	EventPublishFailures     = "event_publish_failures_total"
	PoolCallerRuns           = "pool_caller_runs_total"
	PoolRejected             = "pool_rejected_total"
)

// Noop returns a Metrics that discards everything.
func Noop() Metrics {
	return noop{}
}

type noop struct{}

func (noop) Counter(string) Counter { return noopInstrument{} }
func (noop) Gauge(string) Gauge     { return noopInstrument{} }

type noopInstrument struct{}

func (noopInstrument) Inc()        {}
func (noopInstrument) Dec()        {}
func (noopInstrument) Add(float64) {}
func (noopInstrument) Set(float64) {}

// Memory is an in-process Metrics whose values can be read back, mostly for tests.
type Memory struct {
	mu     sync.Mutex
	values map[string]*memoryInstrument
}

// NewMemory creates an empty Memory registry.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]*memoryInstrument)}
}

func (m *Memory) instrument(name string) *memoryInstrument {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.values[name]
	if !ok {
		inst = &memoryInstrument{}
		m.values[name] = inst
	}
	return inst
}

// Counter implements Metrics.
func (m *Memory) Counter(name string) Counter { return m.instrument(name) }

// Gauge implements Metrics.
func (m *Memory) Gauge(name string) Gauge { return m.instrument(name) }

// Value returns the current value of the named instrument, zero if unused.
func (m *Memory) Value(name string) float64 {
	m.mu.Lock()
	inst, ok := m.values[name]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	return inst.load()
}

type memoryInstrument struct {
	mu    sync.Mutex
	value float64
}

func (i *memoryInstrument) Inc() { i.Add(1) }
func (i *memoryInstrument) Dec() { i.Add(-1) }

func (i *memoryInstrument) Add(delta float64) {
	i.mu.Lock()
	i.value += delta
	i.mu.Unlock()
}

func (i *memoryInstrument) Set(value float64) {
	i.mu.Lock()
	i.value = value
	i.mu.Unlock()
}

func (i *memoryInstrument) load() float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.value
}

var (
	_ Metrics = noop{}
	_ Metrics = (*Memory)(nil)
)
