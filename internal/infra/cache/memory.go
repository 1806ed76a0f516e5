package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type entry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is an in-process stats cache for single-instance deployments
// and tests. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock uses now instead of the wall clock for expiry.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{entries: make(map[string]entry), now: now}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.data...), true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = entry{
		data:      append([]byte(nil), data...),
		expiresAt: m.now().Add(ttl),
	}
	return nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var n int64
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}
