package rulebook

import (
	"context"
	"time"

	"github.com/haukened/nosend/internal/nosend/domain"
)

// FilterSizer computes Bloom filter parameters from capacity (n) and target FP rate (p).
// It returns m (number of bits) and k (number of hash functions).
type FilterSizer interface {
	Size(n uint64, p float64) (m uint64, k uint8)
}

// ListFilter is a probabilistic set of lists that have ever held a rule.
// MightContain may report false positives, never false negatives.
type ListFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// FilterFactory builds ListFilters sized for an expected number of lists.
type FilterFactory interface {
	New(capacity uint64, fpRate float64) ListFilter
}

// CacheStats reports lightweight cache metrics.
type CacheStats struct {
	Capacity  int
	Size      int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// RuleSetCache caches the active rule set of each list.
// Implementations must copy on Put and Get so cached rules are never shared.
type RuleSetCache interface {
	Get(key domain.ListKey) ([]domain.Rule, bool)
	Put(key domain.ListKey, rules []domain.Rule)
	Invalidate(key domain.ListKey)
	Purge()
	Stats() CacheStats
}

// StoreStats captures counts and metadata of the persistent store.
type StoreStats struct {
	Tenants     uint64
	Lists       uint64
	Rules       uint64
	Version     uint64
	UpdatedUnix int64 // seconds since epoch
}

// Store persists rules keyed by tenant, list and rule id.
//
// Every method is scoped by tenant: a rule or list stored under another tenant
// is reported exactly like a missing one (domain.ErrNotFound or an empty result).
type Store interface {
	// Insert assigns the next rule id and persists r.
	Insert(r domain.Rule) (domain.Rule, error)
	// InsertAll inserts rules atomically, assigning ids in slice order.
	InsertAll(rules []domain.Rule) ([]domain.Rule, error)
	// Get returns one rule, including soft-deleted ones.
	Get(key domain.ListKey, id uint64) (domain.Rule, error)
	// List returns the rules of a list in ascending id order.
	List(key domain.ListKey, includeDeleted bool) ([]domain.Rule, error)
	// Put overwrites an existing rule.
	Put(r domain.Rule) error
	// Lists returns every list that holds at least one rule.
	Lists() ([]domain.ListKey, error)
	Stats() StoreStats
	Close() error
}

// RepoStats exposes repository-level counters and underlying store stats.
type RepoStats struct {
	Cache         CacheStats
	Store         StoreStats
	FilterSkips   uint64 // lookups answered "no rules" by the list filter
	LastRebuild   time.Time
	FilterEntries uint64
}

// Repository is the composition layer that wires cache → filter → store.
//
// ListRulesForEvaluation returns the active rules of a list in ascending id
// order. Writes go to the store first and then invalidate the list's cached
// rule set, so the next evaluation after a write returns sees the change.
type Repository interface {
	ListRulesForEvaluation(ctx context.Context, key domain.ListKey) ([]domain.Rule, error)
	Create(ctx context.Context, r domain.Rule) (domain.Rule, error)
	CreateAll(ctx context.Context, rules []domain.Rule) ([]domain.Rule, error)
	Get(ctx context.Context, key domain.ListKey, id uint64) (domain.Rule, error)
	List(ctx context.Context, key domain.ListKey, includeDeleted bool) ([]domain.Rule, error)
	Update(ctx context.Context, r domain.Rule) error
	Rebuild() error
	RepoStats() RepoStats
}
