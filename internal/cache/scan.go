package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// JSONEntry is a type-erased snapshot of a stored entry, used for listing.
type JSONEntry struct {
	// Key is the decoded [namespace, key] pair.
	Key       json.RawMessage `json:"key"`
	ExpiresAt time.Time       `json:"expires_at"`
	Value     json.RawMessage `json:"value"`
}

// ListJSON returns every entry of the store, across all namespaces, in store
// order. Entries whose key or value cannot be decoded are skipped.
func (c *Cache) ListJSON() ([]JSONEntry, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	var out []JSONEntry
	err := c.shared.store.ForEach(func(k, v []byte) error {
		key, err := DecodeKey(k)
		if err != nil {
			return nil
		}
		entry, err := DecodeEntry[any](c.shared.codec, v)
		if err != nil {
			return nil
		}
		value, err := json.Marshal(entry.Value)
		if err != nil {
			return nil
		}
		out = append(out, JSONEntry{Key: key, ExpiresAt: entry.ExpiresAt, Value: value})
		return nil
	})
	if err != nil {
		return nil, &StoreError{Op: "scan", Err: err}
	}
	return out, nil
}

// CleanupStats summarizes a Cleanup pass.
type CleanupStats struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Corrupt int `json:"corrupt"`
}

// Removed is the number of entries deleted.
func (s CleanupStats) Removed() int { return s.Expired + s.Corrupt }

// Cleanup scans the whole store and deletes entries that have expired or
// whose expiry cannot be decoded. Load runs it once; long-lived processes can
// call it periodically, see RunJanitor.
func (c *Cache) Cleanup() (CleanupStats, error) {
	var stats CleanupStats
	if c.closed.Load() {
		return stats, ErrClosed
	}
	now := c.shared.now()

	// The store cannot be written to while it is being iterated.
	var doomed [][]byte
	err := c.shared.store.ForEach(func(k, v []byte) error {
		stats.Scanned++
		entry, err := DecodePartial(c.shared.codec, v)
		if err != nil {
			attrs := []any{slog.Any("key", keyFormat(k)), slog.Any("err", err)}
			if c.shared.log.Enabled(context.Background(), slog.LevelDebug) {
				attrs = append(attrs, slog.Any("value", keyFormat(v)))
			}
			c.shared.log.Warn("failed to load", attrs...)
			stats.Corrupt++
			doomed = append(doomed, k)
			return nil
		}
		if entry.IsExpired(now) {
			stats.Expired++
			doomed = append(doomed, k)
		}
		return nil
	})
	if err != nil {
		return stats, &StoreError{Op: "scan", Err: err}
	}

	for _, k := range doomed {
		if err := c.deleteRaw(k); err != nil {
			return stats, err
		}
	}
	c.shared.metrics.CleanupRemoved("expired", stats.Expired)
	c.shared.metrics.CleanupRemoved("corrupt", stats.Corrupt)
	return stats, nil
}

// RunJanitor calls Cleanup every interval until ctx is done. Failures are
// logged and the next tick tries again.
func (c *Cache) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := c.Cleanup()
			if err != nil {
				c.shared.log.Error("cleanup failed", slog.Any("err", err))
				if errors.Is(err, ErrClosed) {
					return
				}
				continue
			}
			if stats.Removed() > 0 {
				c.shared.log.Info("cleanup",
					slog.Int("scanned", stats.Scanned),
					slog.Int("expired", stats.Expired),
					slog.Int("corrupt", stats.Corrupt))
			}
		}
	}
}
