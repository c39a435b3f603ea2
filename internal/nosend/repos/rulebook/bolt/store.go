package bolt

import (
	"encoding/binary"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/nosend/internal/nosend/domain"
	"github.com/haukened/nosend/internal/nosend/repos/rulebook"
)

var (
	bucketRules = []byte("rules")
	bucketMeta  = []byte("meta")

	metaVersion = []byte("version")
	metaUpdated = []byte("updated")
)

// boltStore implements rulebook.Store using bbolt.
//
// Layout: rules/<tenant id>/<list id>/<rule id> -> JSON record, ids as 8-byte
// big-endian keys so cursor order is ascending id order. Rule ids come from the
// rules bucket sequence and are unique across tenants.
type boltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

// bucketCreator abstracts the subset of *bbolt.Tx used to create buckets.
// Allows unit tests to inject failures without touching the DB.
type bucketCreator interface {
	CreateBucketIfNotExists(name []byte) (*bbolt.Bucket, error)
}

// ensureBuckets creates the top-level buckets.
func ensureBuckets(tx bucketCreator) error {
	if _, err := tx.CreateBucketIfNotExists(bucketRules); err != nil {
		return err
	}
	if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
		return err
	}
	return nil
}

// ensureBucketsFn is a seam for tests.
var ensureBucketsFn = func(tx bucketCreator) error { return ensureBuckets(tx) }

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string) (rulebook.Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error { return ensureBucketsFn(tx) }); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db, now: time.Now}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

func (s *boltStore) Insert(r domain.Rule) (domain.Rule, error) {
	out, err := s.InsertAll([]domain.Rule{r})
	if err != nil {
		return domain.Rule{}, err
	}
	return out[0], nil
}

// InsertAll persists rules in one transaction: either every rule is stored or
// none is.
func (s *boltStore) InsertAll(rules []domain.Rule) ([]domain.Rule, error) {
	for _, r := range rules {
		if r.TenantID == 0 || r.ListID == 0 {
			return nil, fmt.Errorf("rule scope incomplete: tenant=%d list=%d", r.TenantID, r.ListID)
		}
	}
	out := make([]domain.Rule, len(rules))
	err := s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketRules)
		for i, r := range rules {
			id, err := root.NextSequence()
			if err != nil {
				return err
			}
			tb, err := root.CreateBucketIfNotExists(u64(r.TenantID))
			if err != nil {
				return err
			}
			lb, err := tb.CreateBucketIfNotExists(u64(r.ListID))
			if err != nil {
				return err
			}
			r.ID = id
			data, err := encodeRule(r)
			if err != nil {
				return err
			}
			if err := lb.Put(u64(id), data); err != nil {
				return err
			}
			out[i] = r
		}
		return s.bumpMeta(tx)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *boltStore) Get(key domain.ListKey, id uint64) (domain.Rule, error) {
	var r domain.Rule
	err := s.db.View(func(tx *bbolt.Tx) error {
		lb := listBucket(tx, key)
		if lb == nil {
			return domain.ErrNotFound
		}
		v := lb.Get(u64(id))
		if v == nil {
			return domain.ErrNotFound
		}
		var err error
		r, err = decodeRule(v)
		return err
	})
	return r, err
}

func (s *boltStore) List(key domain.ListKey, includeDeleted bool) ([]domain.Rule, error) {
	var out []domain.Rule
	err := s.db.View(func(tx *bbolt.Tx) error {
		lb := listBucket(tx, key)
		if lb == nil {
			return nil
		}
		return lb.ForEach(func(k, v []byte) error {
			r, err := decodeRule(v)
			if err != nil {
				// Keep an unreadable record visible as a windowless rule so
				// evaluation logs and skips it instead of failing the list.
				r = domain.Rule{ID: binary.BigEndian.Uint64(k), TenantID: key.TenantID, ListID: key.ListID, Enabled: true}
			}
			if r.IsDeleted() && !includeDeleted {
				return nil
			}
			out = append(out, r)
			return nil
		})
	})
	return out, err
}

func (s *boltStore) Put(r domain.Rule) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		lb := listBucket(tx, r.Key())
		if lb == nil || lb.Get(u64(r.ID)) == nil {
			return domain.ErrNotFound
		}
		data, err := encodeRule(r)
		if err != nil {
			return err
		}
		if err := lb.Put(u64(r.ID), data); err != nil {
			return err
		}
		return s.bumpMeta(tx)
	})
}

func (s *boltStore) Lists() ([]domain.ListKey, error) {
	var out []domain.ListKey
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRules).ForEachBucket(func(tk []byte) error {
			tenant := binary.BigEndian.Uint64(tk)
			tb := tx.Bucket(bucketRules).Bucket(tk)
			return tb.ForEachBucket(func(lk []byte) error {
				if tb.Bucket(lk).Stats().KeyN > 0 {
					out = append(out, domain.ListKey{TenantID: tenant, ListID: binary.BigEndian.Uint64(lk)})
				}
				return nil
			})
		})
	})
	return out, err
}

func (s *boltStore) Stats() rulebook.StoreStats {
	st := rulebook.StoreStats{}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketRules)
		_ = root.ForEachBucket(func(tk []byte) error {
			st.Tenants++
			tb := root.Bucket(tk)
			return tb.ForEachBucket(func(lk []byte) error {
				st.Lists++
				st.Rules += uint64(tb.Bucket(lk).Stats().KeyN)
				return nil
			})
		})
		if b := tx.Bucket(bucketMeta); b != nil {
			if v := b.Get(metaVersion); len(v) == 8 {
				st.Version = binary.BigEndian.Uint64(v)
			}
			if v := b.Get(metaUpdated); len(v) == 8 {
				st.UpdatedUnix = int64(binary.BigEndian.Uint64(v))
			}
		}
		return nil
	})
	return st
}

// bumpMeta increments the store version and records the write time.
func (s *boltStore) bumpMeta(tx *bbolt.Tx) error {
	b := tx.Bucket(bucketMeta)
	var version uint64
	if v := b.Get(metaVersion); len(v) == 8 {
		version = binary.BigEndian.Uint64(v)
	}
	if err := b.Put(metaVersion, u64(version+1)); err != nil {
		return err
	}
	return b.Put(metaUpdated, u64(uint64(s.now().Unix())))
}

// listBucket resolves the bucket of one tenant's list, or nil.
func listBucket(tx *bbolt.Tx, key domain.ListKey) *bbolt.Bucket {
	tb := tx.Bucket(bucketRules).Bucket(u64(key.TenantID))
	if tb == nil {
		return nil
	}
	return tb.Bucket(u64(key.ListID))
}

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

var _ rulebook.Store = (*boltStore)(nil)
