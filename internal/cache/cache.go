// Package cache persists reconciliation state between runs in a local
// BoltDB file: one entry per cache identity, plus a list of identities
// whose provider resolution failed so later runs skip them.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/metafusion/metafusion/pkg/errors"
	"github.com/metafusion/metafusion/pkg/reconcile"
)

var (
	bucketEntries = []byte("entries")
	bucketFailed  = []byte("failed")
)

// Store implements reconcile.Store on BoltDB. Bolt serializes write
// transactions internally, so concurrent Put calls from the worker pool
// are safe without extra locking.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the cache database at dir/metafusion.db.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapIO("mkdir", dir, err)
	}

	dbPath := filepath.Join(dir, "metafusion.db")
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.WrapIO("open", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEntries, bucketFailed} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.WrapIO("init", dbPath, err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.db.Path()
}

// Get returns the entry for a cache identity, or ok=false when the
// identity has never been committed.
func (s *Store) Get(key string) (*reconcile.Entry, bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketEntries).Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, false, errors.WrapIO("read", s.db.Path(), err)
	}
	if data == nil {
		return nil, false, nil
	}

	var entry reconcile.Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, errors.WrapParse("json", key, err)
	}
	return &entry, true, nil
}

// Put upserts the entry for a cache identity.
func (s *Store) Put(key string, entry *reconcile.Entry) error {
	if entry == nil {
		return errors.NewValidationError("entry", nil, "entry is required")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding entry %q: %w", key, err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Put([]byte(key), data)
	})
	if err != nil {
		return errors.WrapIO("write", s.db.Path(), err)
	}
	return nil
}

// Delete removes the entry for a cache identity. Deleting an absent key
// is not an error.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Delete([]byte(key))
	})
	if err != nil {
		return errors.WrapIO("delete", s.db.Path(), err)
	}
	return nil
}

// Keys lists every cache identity currently stored.
func (s *Store) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, errors.WrapIO("read", s.db.Path(), err)
	}
	return keys, nil
}

// MarkFailed remembers an identity whose provider resolution failed.
func (s *Store) MarkFailed(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFailed).Put([]byte(key), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
	if err != nil {
		return errors.WrapIO("write", s.db.Path(), err)
	}
	return nil
}

// Failed reports whether an identity is on the failed-lookup list.
func (s *Store) Failed(key string) (bool, error) {
	var failed bool
	err := s.db.View(func(tx *bolt.Tx) error {
		failed = tx.Bucket(bucketFailed).Get([]byte(key)) != nil
		return nil
	})
	if err != nil {
		return false, errors.WrapIO("read", s.db.Path(), err)
	}
	return failed, nil
}

// FailedKeys lists every identity on the failed-lookup list.
func (s *Store) FailedKeys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFailed).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, errors.WrapIO("read", s.db.Path(), err)
	}
	return keys, nil
}

// ClearFailed removes an identity from the failed-lookup list.
func (s *Store) ClearFailed(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFailed).Delete([]byte(key))
	})
	if err != nil {
		return errors.WrapIO("delete", s.db.Path(), err)
	}
	return nil
}
