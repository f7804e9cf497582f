package cache

import (
	"context"
	"time"

	"github.com/leonardcser/memo/internal/sf"
)

// Wrap returns the fresh cached value for key or, when there is none, runs fn
// and caches its result for ttl.
//
// Concurrent Wrap calls for the same key, across every namespaced view of
// the store, run fn once: the first caller leads, the others wait for its
// outcome. The result is stored before any caller sees it. An error from fn,
// including the leader's context being cancelled, is returned to the leader
// and every waiter and nothing is stored; the next call starts over.
// A waiter whose own ctx ends returns ctx.Err() without disturbing the
// leader.
func Wrap[T any](ctx context.Context, c *Cache, key any, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if c.closed.Load() {
		return zero, ErrClosed
	}
	k, err := c.key(key)
	if err != nil {
		return zero, err
	}

	ref, err := lookup[T](c, k, "wrap")
	if err != nil {
		return zero, err
	}
	if ref.State == Fresh {
		return ref.Entry.Value, nil
	}

	ns := c.nsLabel()
	v, coalesced, err := sf.Do(ctx, &c.shared.flights, string(k), func() (T, error) {
		// A previous leader may have finished between the lookup above
		// and this flight starting.
		ref, err := lookup[T](c, k, "wrap")
		if err != nil {
			return zero, err
		}
		if ref.State == Fresh {
			return ref.Entry.Value, nil
		}

		timer := c.shared.metrics.WrapDuration(ns)
		out, err := fn(ctx)
		timer.ObserveDuration()
		if err != nil {
			return zero, err
		}
		if err := c.insert(k, ttl, out); err != nil {
			return zero, err
		}
		return out, nil
	})
	c.shared.metrics.WrapCompleted(ns, coalesced, err == nil)
	if err != nil {
		return zero, err
	}
	return v, nil
}
