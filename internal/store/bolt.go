package store

import (
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"
)

// DefaultBucket is used when Options.Bucket is empty.
const DefaultBucket = "memo"

// Bolt is a Store persisted in a single bbolt file.
type Bolt struct {
	db     *bolt.DB
	bucket []byte
}

// Options configures Open.
type Options struct {
	// Bucket is the name of the Bolt bucket to use.
	Bucket string
	// Timeout bounds how long Open waits for the file lock. Defaults to 1s.
	Timeout time.Duration
}

var errNoBucket = errors.New("store: bucket missing")

// Open initializes or opens a Bolt store at the given path.
func Open(path string, opts Options) (*Bolt, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: opts.Timeout})
	if err != nil {
		return nil, err
	}
	bucket := []byte(DefaultBucket)
	if opts.Bucket != "" {
		bucket = []byte(opts.Bucket)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Bolt{db: db, bucket: bucket}, nil
}

// Path returns the file backing the store.
func (s *Bolt) Path() string { return s.db.Path() }

// Close closes the underlying database.
func (s *Bolt) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns a copy of the value at key, or ErrNotFound.
func (s *Bolt) Get(key []byte) ([]byte, error) {
	var out []byte
	err := s.view(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return errNoBucket
		}
		v := b.Get(key)
		if v == nil {
			return ErrNotFound
		}
		// bbolt values are only valid for the life of the transaction.
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Bolt) view(fn func(*bolt.Tx) error) error {
	return closedErr(s.db.View(fn))
}

func (s *Bolt) update(fn func(*bolt.Tx) error) error {
	return closedErr(s.db.Update(fn))
}

func closedErr(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}

func (s *Bolt) Put(key, value []byte) error {
	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return errNoBucket
		}
		return b.Put(key, value)
	})
}

func (s *Bolt) Delete(key []byte) error {
	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return errNoBucket
		}
		return b.Delete(key)
	})
}

// ForEach walks the bucket in key order inside one read transaction.
func (s *Bolt) ForEach(fn func(key, value []byte) error) error {
	return s.view(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return errNoBucket
		}
		return b.ForEach(func(k, v []byte) error {
			return fn(append([]byte(nil), k...), append([]byte(nil), v...))
		})
	})
}

var _ Store = (*Bolt)(nil)
