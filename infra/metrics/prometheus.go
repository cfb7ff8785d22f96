// Package metrics backs the metrics.Metrics interface with Prometheus collectors.
package metrics

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/amirasaad/ledgersync/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus lazily registers one collector per instrument name, prefixed with
// the service namespace.
type Prometheus struct {
	namespace string
	registry  *prometheus.Registry
	logger    *slog.Logger

	mu       sync.Mutex
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
}

// NewPrometheus creates a registry with Go runtime and process collectors.
func NewPrometheus(namespace string, logger *slog.Logger) *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Prometheus{
		namespace: sanitize(namespace),
		registry:  reg,
		logger:    logger.With("component", "metrics"),
		counters:  make(map[string]prometheus.Counter),
		gauges:    make(map[string]prometheus.Gauge),
	}
}

// Counter implements metrics.Metrics.
func (p *Prometheus) Counter(name string) metrics.Counter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: p.namespace,
		Name:      sanitize(name),
		Help:      "Counter " + name,
	})
	if err := p.registry.Register(c); err != nil {
		p.logger.Error("failed to register counter", "name", name, "error", err)
	}
	p.counters[name] = c
	return c
}

// Gauge implements metrics.Metrics.
func (p *Prometheus) Gauge(name string) metrics.Gauge {
	p.mu.Lock()
	defer p.mu.Unlock()
	if g, ok := p.gauges[name]; ok {
		return g
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: p.namespace,
		Name:      sanitize(name),
		Help:      "Gauge " + name,
	})
	if err := p.registry.Register(g); err != nil {
		p.logger.Error("failed to register gauge", "name", name, "error", err)
	}
	p.gauges[name] = g
	return g
}

// Handler exposes the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Gatherer returns the underlying registry.
func (p *Prometheus) Gatherer() prometheus.Gatherer {
	return p.registry
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

var _ metrics.Metrics = (*Prometheus)(nil)
