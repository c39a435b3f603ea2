package lru

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/haukened/nosend/internal/nosend/domain"
	"github.com/haukened/nosend/internal/nosend/repos/rulebook"
)

// ruleSetCache is an expiring LRU of per-list active rule sets.
// Entries live at most ttl, which bounds staleness against writers this
// process never sees. Local writes invalidate immediately.
type ruleSetCache struct {
	lru       *expirable.LRU[domain.ListKey, []domain.Rule]
	capacity  int
	hits      uint64
	misses    uint64
	evictions uint64
}

// disabledCache is a no-op RuleSetCache used when size <= 0.
type disabledCache struct{}

// New creates a RuleSetCache holding up to size lists for at most ttl each.
// If size <= 0, a disabled cache is returned that always misses.
// A ttl <= 0 keeps entries until evicted or invalidated.
func New(size int, ttl time.Duration) rulebook.RuleSetCache {
	if size <= 0 {
		return &disabledCache{}
	}
	if ttl < 0 {
		ttl = 0
	}
	c := &ruleSetCache{capacity: size}
	// Count every removal: capacity evictions, expiry, invalidation and purge.
	c.lru = expirable.NewLRU(size, func(_ domain.ListKey, _ []domain.Rule) {
		atomic.AddUint64(&c.evictions, 1)
	}, ttl)
	return c
}

// Get returns a copy of the cached rule set for key.
func (c *ruleSetCache) Get(key domain.ListKey) ([]domain.Rule, bool) {
	if rules, ok := c.lru.Get(key); ok {
		atomic.AddUint64(&c.hits, 1)
		return cloneRules(rules), true
	}
	atomic.AddUint64(&c.misses, 1)
	return nil, false
}

// Put stores a copy of rules for key.
func (c *ruleSetCache) Put(key domain.ListKey, rules []domain.Rule) {
	c.lru.Add(key, cloneRules(rules))
}

// Invalidate drops the entry for key, if any.
func (c *ruleSetCache) Invalidate(key domain.ListKey) { c.lru.Remove(key) }

// Purge clears all entries.
func (c *ruleSetCache) Purge() { c.lru.Purge() }

func (c *ruleSetCache) Stats() rulebook.CacheStats {
	return rulebook.CacheStats{
		Capacity:  c.capacity,
		Size:      c.lru.Len(),
		Hits:      atomic.LoadUint64(&c.hits),
		Misses:    atomic.LoadUint64(&c.misses),
		Evictions: atomic.LoadUint64(&c.evictions),
	}
}

// cloneRules deep-copies rules so cached sets are never shared with callers.
// A nil input stays nil-free: an empty set is cached as an empty slice.
func cloneRules(in []domain.Rule) []domain.Rule {
	out := make([]domain.Rule, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}

// disabledCache implementation

func (d *disabledCache) Get(domain.ListKey) ([]domain.Rule, bool) { return nil, false }

func (d *disabledCache) Put(domain.ListKey, []domain.Rule) {}

func (d *disabledCache) Invalidate(domain.ListKey) {}

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() rulebook.CacheStats { return rulebook.CacheStats{} }

var _ rulebook.RuleSetCache = (*ruleSetCache)(nil)
var _ rulebook.RuleSetCache = (*disabledCache)(nil)
