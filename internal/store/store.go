// Package store defines the embedded ordered key-value store the cache is
// persisted in, along with a bbolt-backed and an in-memory implementation.
package store

import "errors"

var (
	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("store: not found")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store: closed")
)

// Store is an ordered byte-keyed store. Every method is individually atomic
// and implementations must be safe for concurrent use by multiple goroutines.
type Store interface {
	// Get returns a copy of the value stored at key, or ErrNotFound.
	Get(key []byte) ([]byte, error)
	// Put writes value at key in a single atomic write.
	Put(key, value []byte) error
	// Delete removes key. Removing an absent key is not an error.
	Delete(key []byte) error
	// ForEach calls fn for every entry in ascending key order, stopping at
	// the first error fn returns. fn must not write to the store.
	ForEach(fn func(key, value []byte) error) error
	Close() error
}
