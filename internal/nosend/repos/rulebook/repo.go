package rulebook

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haukened/nosend/internal/nosend/common/clock"
	"github.com/haukened/nosend/internal/nosend/domain"
)

// Options configures a Repository.
type Options struct {
	Store Store
	Cache RuleSetCache
	// Factory builds the list filter on Rebuild. Nil disables the filter, which
	// is required when other processes write to the same store.
	Factory FilterFactory
	FPRate  float64
	Clock   clock.Clock
}

// repository implements Repository by composing a Store, a ListFilter (via
// factory) and a RuleSetCache. Reads go cache → filter → store; writes go to
// the store and then invalidate the list's cache entry.
type repository struct {
	mu      sync.RWMutex
	store   Store
	cache   RuleSetCache
	filter  ListFilter
	factory FilterFactory
	fpRate  float64
	clock   clock.Clock

	// gen increments on every write so a read that raced a write does not
	// repopulate the cache with the pre-write rule set.
	gen           uint64
	filterSkips   uint64
	filterEntries uint64
	lastRebuild   time.Time
}

// NewRepository constructs a Repository. Call Rebuild once before serving
// reads to load the list filter.
func NewRepository(opts Options) Repository {
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &repository{
		store:   opts.Store,
		cache:   opts.Cache,
		factory: opts.Factory,
		fpRate:  opts.FPRate,
		clock:   clk,
	}
}

// ListRulesForEvaluation returns the enabled, non-deleted rules of the list.
// A list of another tenant yields an empty result, the same as an unknown list.
func (r *repository) ListRulesForEvaluation(ctx context.Context, key domain.ListKey) ([]domain.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// 1) checkFilter: early "no rules" if definitively negative
	if !r.checkFilter(key) {
		atomic.AddUint64(&r.filterSkips, 1)
		return nil, nil
	}
	// 2) checkCache
	if rules, ok := r.cache.Get(key); ok {
		return rules, nil
	}
	// 3) checkStore
	gen := r.generation()
	stored, err := r.store.List(key, false)
	if err != nil {
		return nil, fmt.Errorf("list rules for %s: %w", key, err)
	}
	active := make([]domain.Rule, 0, len(stored))
	for _, ru := range stored {
		if ru.IsActive() {
			active = append(active, ru)
		}
	}
	// 4) updateCache
	r.updateCache(key, active, gen)
	return active, nil
}

// Create persists a new rule and returns it with its assigned id.
func (r *repository) Create(ctx context.Context, ru domain.Rule) (domain.Rule, error) {
	if err := ctx.Err(); err != nil {
		return domain.Rule{}, err
	}
	created, err := r.store.Insert(ru)
	if err != nil {
		return domain.Rule{}, fmt.Errorf("insert rule: %w", err)
	}
	r.afterInsert(created)
	return created, nil
}

// CreateAll persists rules atomically. On error nothing was stored.
func (r *repository) CreateAll(ctx context.Context, rules []domain.Rule) ([]domain.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}
	created, err := r.store.InsertAll(rules)
	if err != nil {
		return nil, fmt.Errorf("insert rules: %w", err)
	}
	r.afterInsert(created...)
	return created, nil
}

// afterInsert records the lists of created rules in the filter and drops
// their cached rule sets.
func (r *repository) afterInsert(created ...domain.Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ru := range created {
		key := ru.Key()
		if r.filter != nil {
			fk := filterKey(key)
			if !r.filter.MightContain(fk) {
				r.filterEntries++
			}
			r.filter.Add(fk)
		}
		r.cache.Invalidate(key)
	}
	r.gen++
}

// Get returns one rule of the list, soft-deleted or not.
func (r *repository) Get(ctx context.Context, key domain.ListKey, id uint64) (domain.Rule, error) {
	if err := ctx.Err(); err != nil {
		return domain.Rule{}, err
	}
	return r.store.Get(key, id)
}

// List returns the rules of a list for management reads. Never cached.
func (r *repository) List(ctx context.Context, key domain.ListKey, includeDeleted bool) ([]domain.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.store.List(key, includeDeleted)
}

// Update overwrites an existing rule and invalidates its list's cache entry.
func (r *repository) Update(ctx context.Context, ru domain.Rule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.store.Put(ru); err != nil {
		return err
	}
	r.mu.Lock()
	r.gen++
	r.cache.Invalidate(ru.Key())
	r.mu.Unlock()
	return nil
}

// Rebuild reloads the list filter from the store and purges the cache.
func (r *repository) Rebuild() error {
	var (
		f ListFilter
		n uint64
	)
	if r.factory != nil {
		lists, err := r.store.Lists()
		if err != nil {
			return fmt.Errorf("rebuild list filter: %w", err)
		}
		n = uint64(len(lists))
		f = r.factory.New(n, r.fpRate)
		for _, k := range lists {
			f.Add(filterKey(k))
		}
	}

	r.mu.Lock()
	r.filter = f
	r.filterEntries = n
	r.gen++
	r.cache.Purge()
	r.lastRebuild = r.clock.Now()
	r.mu.Unlock()
	return nil
}

// RepoStats reports cache, filter and store counters.
func (r *repository) RepoStats() RepoStats {
	r.mu.RLock()
	last, entries := r.lastRebuild, r.filterEntries
	r.mu.RUnlock()
	return RepoStats{
		Cache:         r.cache.Stats(),
		Store:         r.store.Stats(),
		FilterSkips:   atomic.LoadUint64(&r.filterSkips),
		LastRebuild:   last,
		FilterEntries: entries,
	}
}

// checkFilter returns true if the store must be consulted (maybe-present),
// false if the list definitely holds no rules. Without a filter it returns true.
func (r *repository) checkFilter(key domain.ListKey) bool {
	r.mu.RLock()
	f := r.filter
	r.mu.RUnlock()
	if f == nil {
		return true
	}
	return f.MightContain(filterKey(key))
}

func (r *repository) generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gen
}

// updateCache stores the rule set unless a write happened since gen was read.
func (r *repository) updateCache(key domain.ListKey, rules []domain.Rule, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return
	}
	r.cache.Put(key, rules)
}

// filterKey encodes a list key as tenant||list, big endian.
func filterKey(k domain.ListKey) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], k.TenantID)
	binary.BigEndian.PutUint64(b[8:], k.ListID)
	return b
}
