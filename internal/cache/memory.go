package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryTier holds entries in process. Each entry keeps its own expiry, so
// a promoted disk entry does not outlive its original deadline.
type MemoryTier struct {
	items *gocache.Cache
}

// NewMemoryTier sweeps expired entries every sweep interval
func NewMemoryTier(sweep time.Duration) *MemoryTier {
	return &MemoryTier{items: gocache.New(gocache.NoExpiration, sweep)}
}

func (m *MemoryTier) Load(key string) (Entry, bool) {
	v, ok := m.items.Get(key)
	if !ok {
		return Entry{}, false
	}
	e, ok := v.(Entry)
	return e, ok
}

func (m *MemoryTier) Store(key string, e Entry) error {
	ttl := gocache.NoExpiration
	if !e.ExpiresAt.IsZero() {
		ttl = time.Until(e.ExpiresAt)
		if ttl <= 0 {
			return nil
		}
	}
	m.items.Set(key, e, ttl)
	return nil
}

func (m *MemoryTier) Remove(key string) error {
	m.items.Delete(key)
	return nil
}

func (m *MemoryTier) Reset() error {
	m.items.Flush()
	return nil
}

// Len counts entries, including expired ones not yet swept
func (m *MemoryTier) Len() int {
	return m.items.ItemCount()
}
