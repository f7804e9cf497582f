package cache

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a Cache after Close.
var ErrClosed = errors.New("cache: closed")

// StoreError reports a failure of the underlying store. It is always
// returned to the caller.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("cache: store %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// EncodingError reports that a key or value could not be encoded for a
// write. Nothing is written when it occurs.
type EncodingError struct {
	What string // "key" or "value"
	Err  error
}

func (e *EncodingError) Error() string { return fmt.Sprintf("cache: encode %s: %v", e.What, e.Err) }
func (e *EncodingError) Unwrap() error { return e.Err }

// DecodeError reports stored bytes that could not be decoded. Lookups
// absorb it into the Missing state; cleanup deletes the entry.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("cache: decode: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }
