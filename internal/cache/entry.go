package cache

import (
	"errors"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	errNoExpiry = errors.New("cache: entry has no expires_at")
	errNoValue  = errors.New("cache: entry has no value")
)

// StoredEntry is the unit of persistence: a value and the instant it stops
// being fresh. Entries are written whole and never modified in place.
type StoredEntry[T any] struct {
	ExpiresAt time.Time `msgpack:"expires_at" json:"expires_at"`
	Value     T         `msgpack:"value" json:"value"`
}

// IsExpired reports whether the entry is no longer fresh at now.
func (e StoredEntry[T]) IsExpired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// PartialStoredEntry reads only the expiry of a stored entry, leaving the
// payload undecoded.
type PartialStoredEntry struct {
	ExpiresAt time.Time `msgpack:"expires_at" json:"expires_at"`
}

// IsExpired reports whether the entry is no longer fresh at now.
func (e PartialStoredEntry) IsExpired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// EncodeEntry serializes e with codec.
func EncodeEntry[T any](codec ValueCodec, e StoredEntry[T]) ([]byte, error) {
	b, err := codec.Marshal(e)
	if err != nil {
		return nil, &EncodingError{What: "value", Err: err}
	}
	return b, nil
}

// DecodeEntry fully decodes a stored entry into T. A record without an
// expiry or without a value is a DecodeError.
func DecodeEntry[T any](codec ValueCodec, b []byte) (StoredEntry[T], error) {
	var e StoredEntry[T]
	if err := codec.Unmarshal(b, &e); err != nil {
		return StoredEntry[T]{}, &DecodeError{Err: err}
	}
	if e.ExpiresAt.IsZero() {
		return StoredEntry[T]{}, &DecodeError{Err: errNoExpiry}
	}
	// A stored nil value decodes to the zero T, so presence has to be
	// checked on the record itself.
	var fields map[string]skipped
	if err := codec.Unmarshal(b, &fields); err != nil {
		return StoredEntry[T]{}, &DecodeError{Err: err}
	}
	if _, ok := fields["value"]; !ok {
		return StoredEntry[T]{}, &DecodeError{Err: errNoValue}
	}
	return e, nil
}

// DecodePartial decodes only the expiry of a stored entry. A record without
// an expiry is a DecodeError.
func DecodePartial(codec ValueCodec, b []byte) (PartialStoredEntry, error) {
	var e PartialStoredEntry
	if err := codec.Unmarshal(b, &e); err != nil {
		return PartialStoredEntry{}, &DecodeError{Err: err}
	}
	if e.ExpiresAt.IsZero() {
		return PartialStoredEntry{}, &DecodeError{Err: errNoExpiry}
	}
	return e, nil
}

// skipped discards a field while its key is recorded.
type skipped struct{}

func (*skipped) DecodeMsgpack(dec *msgpack.Decoder) error { return dec.Skip() }
func (*skipped) UnmarshalJSON([]byte) error               { return nil }

// State is the outcome of a lookup.
type State int

const (
	// Missing means no decodable entry exists.
	Missing State = iota
	// Fresh means the entry has not yet expired.
	Fresh
	// Expired means the entry is present but past its expiry.
	Expired
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Expired:
		return "expired"
	default:
		return "missing"
	}
}

// EntryRef is the result of a single lookup. It binds the resolved state to
// the cache it came from so an expired entry can be removed.
type EntryRef[T any] struct {
	cache *Cache

	// Key is the encoded store key.
	Key   []byte
	State State
	// Entry is the zero value when State is Missing.
	Entry StoredEntry[T]
}

// Get returns the value whether fresh or expired.
func (r *EntryRef[T]) Get() (T, bool) {
	if r.State == Missing {
		var zero T
		return zero, false
	}
	return r.Entry.Value, true
}

// DeleteIfExpired returns the value if it is fresh. An expired entry is
// deleted from the store and reported as absent.
func (r *EntryRef[T]) DeleteIfExpired() (T, bool, error) {
	var zero T
	switch r.State {
	case Fresh:
		return r.Entry.Value, true, nil
	case Expired:
		if err := r.cache.deleteRaw(r.Key); err != nil {
			return zero, false, err
		}
	}
	return zero, false, nil
}
