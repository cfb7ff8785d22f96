// Package workerpool runs tasks on a fixed set of goroutines fed by a bounded
// queue. What happens when the queue is full is an explicit Policy.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/amirasaad/ledgersync/pkg/metrics"
)

var (
	// ErrRejected is returned by Submit under PolicyReject when the queue is full.
	ErrRejected = errors.New("workerpool: queue full")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("workerpool: closed")
)

// Policy decides what Submit does when the queue is full.
type Policy string

const (
	// PolicyCallerRuns runs the task on the submitting goroutine.
	PolicyCallerRuns Policy = "caller-runs"
	// PolicyBlock waits for queue space or for the submit context to end.
	PolicyBlock Policy = "block"
	// PolicyReject returns ErrRejected.
	PolicyReject Policy = "reject"
)

// ParsePolicy validates a configured policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyCallerRuns, PolicyBlock, PolicyReject:
		return p, nil
	case "":
		return PolicyCallerRuns, nil
	default:
		return "", fmt.Errorf("workerpool: unknown saturation policy %q", s)
	}
}

// Config sizes a Pool.
type Config struct {
	Name      string
	Workers   int
	QueueSize int
	Policy    Policy
}

// Pool is a bounded worker pool.
type Pool struct {
	name    string
	policy  Policy
	queue   chan func()
	logger  *slog.Logger
	metrics metrics.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New starts cfg.Workers goroutines draining a queue of cfg.QueueSize tasks.
func New(cfg Config, logger *slog.Logger, m metrics.Metrics) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyCallerRuns
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Noop()
	}
	p := &Pool{
		name:    cfg.Name,
		policy:  cfg.Policy,
		queue:   make(chan func(), cfg.QueueSize),
		logger:  logger.With("pool", cfg.Name),
		metrics: m,
	}
	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for task := range p.queue {
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic recovered in pool task", "panic", r)
		}
	}()
	task()
}

// Submit enqueues task. When the queue is full the pool's Policy applies; ctx
// only matters for PolicyBlock.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.queue <- task:
		return nil
	default:
	}

	switch p.policy {
	case PolicyReject:
		p.metrics.Counter(metrics.PoolRejected).Inc()
		p.logger.Warn("pool saturated, task rejected")
		return ErrRejected
	case PolicyBlock:
		select {
		case p.queue <- task:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	default:
		p.metrics.Counter(metrics.PoolCallerRuns).Inc()
		p.logger.Debug("pool saturated, running on caller")
		p.run(task)
		return nil
	}
}

// Close stops accepting tasks and waits for queued ones to finish or ctx to end.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
