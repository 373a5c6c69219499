// Package store persists data that is expensive to recompute but safe to
// lose: a BoltDB-backed cache of the pseudo-essential set and the
// installability-safe set per run, keyed by dense tuple ids using
// github.com/jmank88/nuts to encode the ids as fixed-width,
// order-preserving byte keys.
package store

import (
	"encoding/binary"
	"time"

	"github.com/boltdb/bolt"
	"github.com/jmank88/nuts"
	"github.com/pkg/errors"
)

var (
	essentialBucket = []byte("essential-cache")
	safeSetBucket   = []byte("safe-set-cache")
)

// Store wraps a BoltDB file holding cross-run caches for one archive.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the BoltDB file at path and ensures
// its top-level buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening store database %q", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(essentialBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(safeSetBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initializing store buckets")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "closing store database")
}

// idKey encodes id as a fixed-width, order-preserving 4-byte key via
// nuts.Key.Put, so BoltDB's native key ordering doubles as numeric id
// ordering.
func idKey(id uint32) nuts.Key {
	key := make(nuts.Key, 4)
	key.Put(uint64(id))
	return key
}

// PutEssentialSet replaces the cached pseudo-essential set for arch.
func (s *Store) PutEssentialSet(arch string, base, never []uint32) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(essentialBucket).CreateBucketIfNotExists([]byte(arch))
		if err != nil {
			return err
		}
		if err := b.DeleteBucket([]byte("base")); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		if err := b.DeleteBucket([]byte("never")); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		baseB, err := b.CreateBucket([]byte("base"))
		if err != nil {
			return err
		}
		for _, id := range base {
			if err := baseB.Put(idKey(id), []byte{1}); err != nil {
				return err
			}
		}
		neverB, err := b.CreateBucket([]byte("never"))
		if err != nil {
			return err
		}
		for _, id := range never {
			if err := neverB.Put(idKey(id), []byte{1}); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetEssentialSet returns the cached pseudo-essential set for arch, if
// present.
func (s *Store) GetEssentialSet(arch string) (base, never []uint32, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(essentialBucket).Bucket([]byte(arch))
		if root == nil {
			return nil
		}
		ok = true
		if b := root.Bucket([]byte("base")); b != nil {
			base = collectKeys(b)
		}
		if b := root.Bucket([]byte("never")); b != nil {
			never = collectKeys(b)
		}
		return nil
	})
	if err != nil {
		return nil, nil, false, errors.Wrap(err, "reading cached essential set")
	}
	return base, never, ok, nil
}

func collectKeys(b *bolt.Bucket) []uint32 {
	var out []uint32
	_ = b.ForEach(func(k, _ []byte) error {
		if len(k) != 4 {
			return nil
		}
		out = append(out, binary.BigEndian.Uint32(k))
		return nil
	})
	return out
}

// PutSafeSet replaces the cached installability-safe set for the whole
// archive (it is architecture-independent).
func (s *Store) PutSafeSet(ids []uint32) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(safeSetBucket); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		b, err := tx.CreateBucket(safeSetBucket)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := b.Put(idKey(id), []byte{1}); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetSafeSet returns the cached installability-safe set, if present.
func (s *Store) GetSafeSet() ([]uint32, error) {
	var out []uint32
	err := s.db.View(func(tx *bolt.Tx) error {
		out = collectKeys(tx.Bucket(safeSetBucket))
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "reading cached safe set")
	}
	return out, nil
}
