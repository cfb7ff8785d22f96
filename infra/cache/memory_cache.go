package cache

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/amirasaad/ledgersync/pkg/cache"
	"github.com/amirasaad/ledgersync/pkg/domain"
)

// MemoryHashStore implements cache.HashStore in process memory.
type MemoryHashStore struct {
	mu   sync.RWMutex
	data map[string]map[string]string
	down atomic.Bool
}

// NewMemoryHashStore creates an empty store.
func NewMemoryHashStore() *MemoryHashStore {
	return &MemoryHashStore{data: make(map[string]map[string]string)}
}

// SetAvailable toggles simulated reachability; while unavailable every call
// fails with a transport error.
func (c *MemoryHashStore) SetAvailable(ok bool) {
	c.down.Store(!ok)
}

func (c *MemoryHashStore) check() error {
	if c.down.Load() {
		return fmt.Errorf("%w: cache unreachable", domain.ErrTransport)
	}
	return nil
}

func (c *MemoryHashStore) GetField(_ context.Context, key, field string) (string, bool, error) {
	if err := c.check(); err != nil {
		return "", false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key][field]
	return v, ok, nil
}

func (c *MemoryHashStore) GetAll(_ context.Context, key string) (map[string]string, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.data[key]))
	maps.Copy(out, c.data[key])
	return out, nil
}

func (c *MemoryHashStore) PutAll(_ context.Context, key string, fields map[string]string) error {
	if err := c.check(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[key]
	if !ok {
		entry = make(map[string]string, len(fields))
		c.data[key] = entry
	}
	maps.Copy(entry, fields)
	return nil
}

func (c *MemoryHashStore) Replace(_ context.Context, key string, fields map[string]string) error {
	if err := c.check(); err != nil {
		return err
	}
	entry := make(map[string]string, len(fields))
	maps.Copy(entry, fields)
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(entry) == 0 {
		delete(c.data, key)
		return nil
	}
	c.data[key] = entry
	return nil
}

func (c *MemoryHashStore) Delete(_ context.Context, key string) error {
	if err := c.check(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Len reports how many keys are stored.
func (c *MemoryHashStore) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

var _ cache.HashStore = (*MemoryHashStore)(nil)
