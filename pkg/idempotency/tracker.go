// Package idempotency remembers which keys have already been processed.
package idempotency

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a processed key is remembered when no TTL is given.
const DefaultTTL = time.Hour

// pruneEvery is how many stores pass between sweeps of expired keys.
const pruneEvery = 256

// Tracker records processed keys for a limited time. Concurrent calls for one
// key share a single execution, so a duplicate delivery racing the original
// waits for its result.
type Tracker struct {
	ttl       time.Duration
	now       func() time.Time
	processed sync.Map // key -> expiry time.Time
	stores    atomic.Uint64
	inflight  singleflight.Group
}

// NewTracker creates an empty tracker that forgets keys ttl after they were
// processed.
func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{ttl: ttl, now: time.Now}
}

// Seen reports whether key has completed successfully and not yet expired.
func (t *Tracker) Seen(key string) bool {
	v, ok := t.processed.Load(key)
	if !ok {
		return false
	}
	if t.now().After(v.(time.Time)) {
		t.processed.CompareAndDelete(key, v)
		return false
	}
	return true
}

// Store marks key as processed.
func (t *Tracker) Store(key string) {
	t.processed.Store(key, t.now().Add(t.ttl))
	if t.stores.Add(1)%pruneEvery == 0 {
		t.Prune()
	}
}

// Delete forgets key.
func (t *Tracker) Delete(key string) {
	t.processed.Delete(key)
}

// Prune drops expired keys and returns how many were dropped.
func (t *Tracker) Prune() int {
	now := t.now()
	dropped := 0
	t.processed.Range(func(key, value any) bool {
		if now.After(value.(time.Time)) && t.processed.CompareAndDelete(key, value) {
			dropped++
		}
		return true
	})
	return dropped
}

// Len returns how many keys are held, expired or not.
func (t *Tracker) Len() int {
	n := 0
	t.processed.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// Do runs fn once per key. duplicate is true when key had already been
// processed and fn was skipped. A failed fn leaves the key unprocessed.
// An empty key always runs fn.
func (t *Tracker) Do(key string, fn func() error) (duplicate bool, err error) {
	if key == "" {
		return false, fn()
	}
	if t.Seen(key) {
		return true, nil
	}
	v, err, _ := t.inflight.Do(key, func() (any, error) {
		if t.Seen(key) {
			return true, nil
		}
		if err := fn(); err != nil {
			return false, err
		}
		t.Store(key)
		return false, nil
	})
	if err != nil {
		return false, err
	}
	dup, _ := v.(bool)
	return dup, nil
}
