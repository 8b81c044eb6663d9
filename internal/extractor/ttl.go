package extractor

import (
	"sync"
	"time"
)

// ttlMap is a small expiring map for memoizing extraction results.
// Entries are dropped lazily on lookup.
type ttlMap[V any] struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]ttlItem[V]
}

type ttlItem[V any] struct {
	value   V
	expires time.Time
}

func newTTLMap[V any](ttl time.Duration) *ttlMap[V] {
	return &ttlMap[V]{ttl: ttl, items: make(map[string]ttlItem[V])}
}

func (m *ttlMap[V]) get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	if time.Now().After(item.expires) {
		delete(m.items, key)
		var zero V
		return zero, false
	}
	return item.value, true
}

func (m *ttlMap[V]) set(key string, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = ttlItem[V]{value: value, expires: time.Now().Add(m.ttl)}
}

func (m *ttlMap[V]) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
}
