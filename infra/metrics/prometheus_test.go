package metrics

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/amirasaad/ledgersync/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPrometheus() *Prometheus {
	return NewPrometheus("ledger-account", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPrometheus_Counter(t *testing.T) {
	p := newTestPrometheus()

	p.Counter(metrics.SettlementsDone).Inc()
	p.Counter(metrics.SettlementsDone).Add(2)

	c := p.counters[metrics.SettlementsDone]
	assert.InDelta(t, 3, testutil.ToFloat64(c), 0)
}

func TestPrometheus_Gauge(t *testing.T) {
	p := newTestPrometheus()

	g := p.Gauge(metrics.SettlementsInFlight)
	g.Inc()
	g.Inc()
	g.Dec()
	assert.InDelta(t, 1, testutil.ToFloat64(p.gauges[metrics.SettlementsInFlight]), 0)
}

func TestPrometheus_Handler(t *testing.T) {
	p := newTestPrometheus()
	p.Counter(metrics.BalanceUpdates).Inc()

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "ledger_account_balance_updates_total 1")
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "ledger_account", sanitize("ledger-account"))
	assert.Equal(t, "a_b_c", sanitize("a.b c"))
}
