package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/leonardcser/memo/internal/sf"
	"github.com/leonardcser/memo/internal/store"
)

// shared is the state every namespaced view of one store has in common.
type shared struct {
	store   store.Store
	codec   ValueCodec
	log     *slog.Logger
	metrics Metrics
	now     func() time.Time
	flights sf.Group
	refs    atomic.Int64
}

// Cache is a TTL cache over a Store. Namespaced views are cheap and share the
// store; the store is closed when the last view is closed.
// It is safe for concurrent use by multiple goroutines.
type Cache struct {
	ns     *string
	shared *shared
	closed atomic.Bool
}

// Load wraps st in a Cache and removes expired and undecodable entries.
// On error st is left open.
func Load(st store.Store, opts ...Option) (*Cache, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	sh := &shared{
		store:   st,
		codec:   cfg.codec,
		log:     cfg.log,
		metrics: cfg.metrics,
		now:     cfg.now,
	}
	sh.refs.Store(1)
	c := &Cache{shared: sh}

	if !cfg.noCleanup {
		stats, err := c.Cleanup()
		if err != nil {
			return nil, err
		}
		sh.log.Info("cache loaded",
			slog.String("codec", sh.codec.Name()),
			slog.Int("scanned", stats.Scanned),
			slog.Int("expired", stats.Expired),
			slog.Int("corrupt", stats.Corrupt))
	}
	return c, nil
}

// NS returns a pointer to name, for the namespace arguments that take one.
func NS(name string) *string { return &name }

// Namespaced returns a view whose keys live in namespace name. Namespaces are
// not checked for collisions; callers must pick unique names.
func (c *Cache) Namespaced(name string) *Cache {
	n := &Cache{ns: &name, shared: c.shared}
	if c.closed.Load() {
		n.closed.Store(true)
		return n
	}
	c.shared.refs.Add(1)
	return n
}

// Namespace reports the namespace of c, if any.
func (c *Cache) Namespace() (string, bool) {
	if c.ns == nil {
		return "", false
	}
	return *c.ns, true
}

func (c *Cache) nsLabel() string {
	if c.ns == nil {
		return ""
	}
	return *c.ns
}

// Close releases this view. The store is closed with the last view.
func (c *Cache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.shared.refs.Add(-1) == 0 {
		return c.shared.store.Close()
	}
	return nil
}

func (c *Cache) key(key any) ([]byte, error) {
	return c.keyWithNamespace(c.ns, key)
}

func (c *Cache) keyWithNamespace(ns *string, key any) ([]byte, error) {
	k, err := EncodeKey(ns, key)
	if err != nil {
		return nil, &EncodingError{What: "key", Err: err}
	}
	return k, nil
}

// Insert stores value under key until now+ttl, replacing any previous entry.
func (c *Cache) Insert(key any, ttl time.Duration, value any) error {
	if c.closed.Load() {
		return ErrClosed
	}
	k, err := c.key(key)
	if err != nil {
		return err
	}
	return c.insert(k, ttl, value)
}

func (c *Cache) insert(k []byte, ttl time.Duration, value any) error {
	entry := StoredEntry[any]{ExpiresAt: c.shared.now().Add(ttl), Value: value}
	b, err := EncodeEntry(c.shared.codec, entry)
	if err != nil {
		c.shared.log.Debug("store errored", slog.Any("key", keyFormat(k)), slog.Any("err", err))
		return err
	}
	c.shared.log.Debug("store", slog.Any("key", keyFormat(k)))
	if err := c.shared.store.Put(k, b); err != nil {
		return &StoreError{Op: "put", Err: err}
	}
	return nil
}

// Delete removes key from the namespace of c.
func (c *Cache) Delete(key any) error {
	return c.DeleteWithNamespace(c.ns, key)
}

// DeleteWithNamespace removes key from namespace ns (nil for none),
// regardless of the namespace of c.
func (c *Cache) DeleteWithNamespace(ns *string, key any) error {
	if c.closed.Load() {
		return ErrClosed
	}
	k, err := c.keyWithNamespace(ns, key)
	if err != nil {
		return err
	}
	return c.deleteRaw(k)
}

func (c *Cache) deleteRaw(k []byte) error {
	if err := c.shared.store.Delete(k); err != nil {
		return &StoreError{Op: "delete", Err: err}
	}
	return nil
}

// Test resolves the freshness of key by decoding only its expiry.
func (c *Cache) Test(key any) (*EntryRef[struct{}], error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	k, err := c.key(key)
	if err != nil {
		return nil, err
	}

	raw, ok, err := c.read(k)
	if err != nil || !ok {
		return resolve[struct{}](c, k, "test", nil, err)
	}
	partial, err := DecodePartial(c.shared.codec, raw)
	if err != nil {
		c.decodeFailed("test", k, raw, err)
		return resolve[struct{}](c, k, "test", nil, nil)
	}
	entry := StoredEntry[struct{}]{ExpiresAt: partial.ExpiresAt}
	return resolve(c, k, "test", &entry, nil)
}

// Get looks up key and decodes its value into T. Absent, undecodable and
// mistyped entries all resolve to Missing.
func Get[T any](c *Cache, key any) (*EntryRef[T], error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	k, err := c.key(key)
	if err != nil {
		return nil, err
	}
	return lookup[T](c, k, "get")
}

func lookup[T any](c *Cache, k []byte, op string) (*EntryRef[T], error) {
	raw, ok, err := c.read(k)
	if err != nil || !ok {
		return resolve[T](c, k, op, nil, err)
	}
	entry, err := DecodeEntry[T](c.shared.codec, raw)
	if err != nil {
		c.decodeFailed(op, k, raw, err)
		return resolve[T](c, k, op, nil, nil)
	}
	return resolve(c, k, op, &entry, nil)
}

func (c *Cache) read(k []byte) ([]byte, bool, error) {
	raw, err := c.shared.store.Get(k)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, &StoreError{Op: "get", Err: err}
	}
	return raw, true, nil
}

func resolve[T any](c *Cache, k []byte, op string, entry *StoredEntry[T], err error) (*EntryRef[T], error) {
	if err != nil {
		return nil, err
	}
	ref := &EntryRef[T]{cache: c, Key: k}
	switch {
	case entry == nil:
		ref.State = Missing
	case entry.IsExpired(c.shared.now()):
		ref.State, ref.Entry = Expired, *entry
	default:
		ref.State, ref.Entry = Fresh, *entry
	}
	c.shared.metrics.Lookup(c.nsLabel(), op, ref.State)
	c.shared.log.Debug(op, slog.Any("key", keyFormat(k)), slog.String("state", ref.State.String()))
	return ref, nil
}

func (c *Cache) decodeFailed(op string, k, raw []byte, err error) {
	c.shared.metrics.DecodeFailed(c.nsLabel(), op)
	attrs := []any{slog.String("op", op), slog.Any("key", keyFormat(k)), slog.Any("err", err)}
	if c.shared.log.Enabled(context.Background(), slog.LevelDebug) {
		attrs = append(attrs, slog.Any("value", keyFormat(raw)))
	}
	c.shared.log.Warn("failed to deserialize", attrs...)
}
