package rulebook

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/nosend/internal/nosend/common/clock"
	"github.com/haukened/nosend/internal/nosend/domain"
)

// --- fakes ---

type fakeStore struct {
	mu        sync.Mutex
	rules     map[domain.ListKey][]domain.Rule
	nextID    uint64
	listCalls int
	listErr   error
	listsErr  error
	insertErr error
	// onList runs inside List after the snapshot is taken.
	onList func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{rules: map[domain.ListKey][]domain.Rule{}}
}

func (s *fakeStore) Insert(r domain.Rule) (domain.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r.ID = s.nextID
	s.rules[r.Key()] = append(s.rules[r.Key()], r.Clone())
	return r, nil
}

func (s *fakeStore) InsertAll(rules []domain.Rule) ([]domain.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	out := make([]domain.Rule, len(rules))
	for i, r := range rules {
		s.nextID++
		r.ID = s.nextID
		s.rules[r.Key()] = append(s.rules[r.Key()], r.Clone())
		out[i] = r
	}
	return out, nil
}

func (s *fakeStore) Get(key domain.ListKey, id uint64) (domain.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules[key] {
		if r.ID == id {
			return r.Clone(), nil
		}
	}
	return domain.Rule{}, domain.ErrNotFound
}

func (s *fakeStore) List(key domain.ListKey, includeDeleted bool) ([]domain.Rule, error) {
	s.mu.Lock()
	s.listCalls++
	if s.listErr != nil {
		s.mu.Unlock()
		return nil, s.listErr
	}
	var out []domain.Rule
	for _, r := range s.rules[key] {
		if includeDeleted || !r.IsDeleted() {
			out = append(out, r.Clone())
		}
	}
	hook := s.onList
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out, nil
}

func (s *fakeStore) Put(r domain.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.rules[r.Key()]
	for i := range rs {
		if rs[i].ID == r.ID {
			rs[i] = r.Clone()
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *fakeStore) Lists() ([]domain.ListKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listsErr != nil {
		return nil, s.listsErr
	}
	out := make([]domain.ListKey, 0, len(s.rules))
	for k := range s.rules {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (s *fakeStore) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StoreStats{Lists: uint64(len(s.rules)), Rules: s.nextID}
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

type fakeCache struct {
	mu          sync.Mutex
	m           map[domain.ListKey][]domain.Rule
	invalidated []domain.ListKey
	purges      int
}

func newFakeCache() *fakeCache { return &fakeCache{m: map[domain.ListKey][]domain.Rule{}} }

func (c *fakeCache) Get(k domain.ListKey) ([]domain.Rule, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.m[k]
	return r, ok
}

func (c *fakeCache) Put(k domain.ListKey, r []domain.Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[k] = r
}

func (c *fakeCache) Invalidate(k domain.ListKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, k)
	c.invalidated = append(c.invalidated, k)
}

func (c *fakeCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = map[domain.ListKey][]domain.Rule{}
	c.purges++
}

func (c *fakeCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Size: len(c.m)}
}

// setFilter is an exact set; it never reports false positives.
type setFilter struct {
	mu sync.Mutex
	m  map[string]struct{}
}

func (f *setFilter) Add(key []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[string(key)] = struct{}{}
}

func (f *setFilter) MightContain(key []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.m[string(key)]
	return ok
}

type fakeFactory struct {
	capacity uint64
	fpRate   float64
	built    int
}

func (f *fakeFactory) New(capacity uint64, fpRate float64) ListFilter {
	f.capacity, f.fpRate = capacity, fpRate
	f.built++
	return &setFilter{m: map[string]struct{}{}}
}

// --- helpers ---

var (
	listA   = domain.ListKey{TenantID: 1, ListID: 10}
	listB   = domain.ListKey{TenantID: 1, ListID: 11}
	foreign = domain.ListKey{TenantID: 2, ListID: 10}
)

func dayRule(key domain.ListKey, name string, days ...domain.ISOWeekday) domain.Rule {
	return domain.Rule{TenantID: key.TenantID, ListID: key.ListID, Name: name, Enabled: true,
		Window: domain.DayOfWeekWindow{Days: days}}
}

func newTestRepo(t *testing.T, withFilter bool) (*repository, *fakeStore, *fakeCache, *fakeFactory) {
	t.Helper()
	st, c := newFakeStore(), newFakeCache()
	ff := &fakeFactory{}
	opts := Options{Store: st, Cache: c, FPRate: 0.02,
		Clock: &clock.MockClock{CurrentTime: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}}
	if withFilter {
		opts.Factory = ff
	}
	return NewRepository(opts).(*repository), st, c, ff
}

// --- tests ---

func TestRepository_ListRulesForEvaluation_ActiveOnlyAndCached(t *testing.T) {
	repo, st, c, _ := newTestRepo(t, false)
	ctx := context.Background()

	on, err := repo.Create(ctx, dayRule(listA, "weekend", 6, 7))
	require.NoError(t, err)
	off := dayRule(listA, "mondays", 1)
	off.Enabled = false
	_, err = repo.Create(ctx, off)
	require.NoError(t, err)
	gone, err := repo.Create(ctx, dayRule(listA, "fridays", 5))
	require.NoError(t, err)
	gone.SoftDelete(time.Now())
	require.NoError(t, repo.Update(ctx, gone))

	got, err := repo.ListRulesForEvaluation(ctx, listA)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, on.ID, got[0].ID)
	assert.Equal(t, 1, st.calls())

	_, ok := c.Get(listA)
	assert.True(t, ok, "active set cached")

	_, err = repo.ListRulesForEvaluation(ctx, listA)
	require.NoError(t, err)
	assert.Equal(t, 1, st.calls(), "second read served from cache")
}

func TestRepository_WritesInvalidate(t *testing.T) {
	repo, _, c, _ := newTestRepo(t, false)
	ctx := context.Background()

	r, err := repo.Create(ctx, dayRule(listA, "weekend", 6, 7))
	require.NoError(t, err)
	got, err := repo.ListRulesForEvaluation(ctx, listA)
	require.NoError(t, err)
	require.Len(t, got, 1)

	r.Enabled = false
	require.NoError(t, repo.Update(ctx, r))
	assert.Contains(t, c.invalidated, listA)

	got, err = repo.ListRulesForEvaluation(ctx, listA)
	require.NoError(t, err)
	assert.Empty(t, got, "disabled rule no longer evaluated")

	_, err = repo.Create(ctx, dayRule(listA, "sundays", 7))
	require.NoError(t, err)
	got, err = repo.ListRulesForEvaluation(ctx, listA)
	require.NoError(t, err)
	assert.Len(t, got, 1, "new rule visible immediately")
}

func TestRepository_UpdateMissingIsNotFound(t *testing.T) {
	repo, _, c, _ := newTestRepo(t, false)
	err := repo.Update(context.Background(), domain.Rule{ID: 42, TenantID: 1, ListID: 10})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, c.invalidated)
}

func TestRepository_ReadRacingWriteDoesNotRepopulate(t *testing.T) {
	repo, st, c, _ := newTestRepo(t, false)
	ctx := context.Background()
	r, err := repo.Create(ctx, dayRule(listA, "weekend", 6, 7))
	require.NoError(t, err)

	st.onList = func() {
		st.onList = nil
		r.Enabled = false
		require.NoError(t, repo.Update(ctx, r))
	}
	got, err := repo.ListRulesForEvaluation(ctx, listA)
	require.NoError(t, err)
	assert.Len(t, got, 1, "read returns its own snapshot")

	_, ok := c.Get(listA)
	assert.False(t, ok, "stale snapshot must not be cached")

	got, err = repo.ListRulesForEvaluation(ctx, listA)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRepository_FilterSkipsUnknownLists(t *testing.T) {
	repo, st, _, ff := newTestRepo(t, true)
	ctx := context.Background()

	_, err := st.Insert(dayRule(listA, "weekend", 6, 7))
	require.NoError(t, err)
	require.NoError(t, repo.Rebuild())
	assert.Equal(t, 1, ff.built)
	assert.Equal(t, uint64(1), ff.capacity)
	assert.Equal(t, 0.02, ff.fpRate)

	got, err := repo.ListRulesForEvaluation(ctx, listB)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, st.calls(), "filter answered without the store")

	got, err = repo.ListRulesForEvaluation(ctx, listA)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// Created after rebuild: added to the filter on write.
	_, err = repo.Create(ctx, dayRule(listB, "nights", 1))
	require.NoError(t, err)
	got, err = repo.ListRulesForEvaluation(ctx, listB)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	stats := repo.RepoStats()
	assert.Equal(t, uint64(1), stats.FilterSkips)
	assert.Equal(t, uint64(2), stats.FilterEntries)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), stats.LastRebuild)
	assert.Equal(t, uint64(2), stats.Store.Lists)
}

func TestRepository_FilterEntriesCountLists(t *testing.T) {
	repo, _, _, _ := newTestRepo(t, true)
	ctx := context.Background()
	require.NoError(t, repo.Rebuild())

	for _, name := range []string{"weekend", "sundays", "mondays"} {
		_, err := repo.Create(ctx, dayRule(listA, name, 7))
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(1), repo.RepoStats().FilterEntries)

	_, err := repo.CreateAll(ctx, []domain.Rule{dayRule(listA, "fridays", 5), dayRule(listB, "nights", 1), dayRule(listB, "days", 2)})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), repo.RepoStats().FilterEntries)

	require.NoError(t, repo.Rebuild())
	assert.Equal(t, uint64(2), repo.RepoStats().FilterEntries, "matches the rebuilt count")
}

func TestRepository_CreateAll(t *testing.T) {
	repo, st, c, _ := newTestRepo(t, true)
	ctx := context.Background()
	require.NoError(t, repo.Rebuild())

	got, err := repo.CreateAll(ctx, []domain.Rule{dayRule(listB, "weekend", 6, 7), dayRule(listB, "mondays", 1)})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Less(t, got[0].ID, got[1].ID)
	assert.Contains(t, c.invalidated, listB)

	rules, err := repo.ListRulesForEvaluation(ctx, listB)
	require.NoError(t, err)
	assert.Len(t, rules, 2, "new list passes the filter")

	none, err := repo.CreateAll(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	st.insertErr = errors.New("disk full")
	_, err = repo.CreateAll(ctx, []domain.Rule{dayRule(listA, "x", 1)})
	assert.ErrorContains(t, err, "disk full")
	all, err := repo.List(ctx, listA, true)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRepository_NoFilterBeforeRebuild(t *testing.T) {
	repo, st, _, _ := newTestRepo(t, true)
	got, err := repo.ListRulesForEvaluation(context.Background(), listB)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, st.calls())
}

func TestRepository_RebuildPurgesAndReportsErrors(t *testing.T) {
	repo, st, c, _ := newTestRepo(t, true)
	require.NoError(t, repo.Rebuild())
	assert.Equal(t, 1, c.purges)

	st.listsErr = errors.New("disk gone")
	err := repo.Rebuild()
	assert.ErrorContains(t, err, "disk gone")
	assert.Equal(t, 1, c.purges, "failed rebuild keeps the previous state")
}

func TestRepository_TenantIsolation(t *testing.T) {
	repo, _, _, _ := newTestRepo(t, false)
	ctx := context.Background()
	mine, err := repo.Create(ctx, dayRule(listA, "weekend", 6, 7))
	require.NoError(t, err)

	got, err := repo.ListRulesForEvaluation(ctx, foreign)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = repo.Get(ctx, foreign, mine.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	all, err := repo.List(ctx, foreign, true)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRepository_StoreErrorPropagates(t *testing.T) {
	repo, st, c, _ := newTestRepo(t, false)
	st.listErr = errors.New("io")
	_, err := repo.ListRulesForEvaluation(context.Background(), listA)
	assert.ErrorContains(t, err, "io")
	_, ok := c.Get(listA)
	assert.False(t, ok)
}

func TestRepository_ContextCanceled(t *testing.T) {
	repo, st, _, _ := newTestRepo(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.ListRulesForEvaluation(ctx, listA)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = repo.Create(ctx, dayRule(listA, "x", 1))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = repo.CreateAll(ctx, []domain.Rule{dayRule(listA, "x", 1)})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = repo.Get(ctx, listA, 1)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = repo.List(ctx, listA, false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, repo.Update(ctx, domain.Rule{}), context.Canceled)
	assert.Equal(t, 0, st.calls())
}
