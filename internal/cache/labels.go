package cache

import (
	"sync/atomic"
	"time"

	"github.com/ppiankov/ratchet/internal/model"
)

// Stats counts lookups since the cache was created
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Promoted int64 `json:"promoted"`
	Writes   int64 `json:"writes"`
}

// LabelCache looks a text up in each tier in order. A hit in a later tier
// is copied into every earlier one.
type LabelCache struct {
	model string
	ttl   time.Duration
	tiers []Tier
	disk  *DiskTier
	now   func() time.Time

	hits, misses, promoted, writes atomic.Int64
}

// Options configures a LabelCache
type Options struct {
	Model string
	// TTL bounds entry age; zero keeps entries forever
	TTL time.Duration
	// Dir enables the disk tier; empty keeps labels in memory only
	Dir string
}

func New(opts Options) *LabelCache {
	c := &LabelCache{
		model: opts.Model,
		ttl:   opts.TTL,
		tiers: []Tier{NewMemoryTier(10 * time.Minute)},
		now:   time.Now,
	}
	if opts.Dir != "" {
		c.disk = NewDiskTier(opts.Dir)
		c.tiers = append(c.tiers, c.disk)
	}
	return c
}

// Get returns the cached classification of text. Entries from another model
// or with a label outside the frame set count as misses.
func (c *LabelCache) Get(text string) (*model.Classification, bool) {
	key := Key(c.model, text)
	for i, t := range c.tiers {
		e, ok := t.Load(key)
		if !ok || e.Model != c.model || !e.valid() {
			continue
		}
		for _, earlier := range c.tiers[:i] {
			_ = earlier.Store(key, e)
			c.promoted.Add(1)
		}
		c.hits.Add(1)
		out := e.Result
		return &out, true
	}
	c.misses.Add(1)
	return nil, false
}

// Set writes cl to every tier, stopping at the first failure
func (c *LabelCache) Set(text string, cl *model.Classification) error {
	now := c.now()
	e := Entry{Model: c.model, Result: *cl, StoredAt: now}
	if c.ttl > 0 {
		e.ExpiresAt = now.Add(c.ttl)
	}
	key := Key(c.model, text)
	for _, t := range c.tiers {
		if err := t.Store(key, e); err != nil {
			return err
		}
	}
	c.writes.Add(1)
	return nil
}

// Forget drops text from every tier
func (c *LabelCache) Forget(text string) error {
	key := Key(c.model, text)
	var first error
	for _, t := range c.tiers {
		if err := t.Remove(key); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Prune removes stale entries from the disk tier
func (c *LabelCache) Prune() (int, error) {
	if c.disk == nil {
		return 0, nil
	}
	return c.disk.Prune(c.now())
}

func (c *LabelCache) Stats() Stats {
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Promoted: c.promoted.Load(),
		Writes:   c.writes.Load(),
	}
}
