// Package cache memoizes values in an embedded key-value store with
// expiry and namespaces.
//
// Keys are arbitrary msgpack-serializable values. They are stored as the
// canonical encoding of the pair [namespace, key], so two namespaces never
// collide and logically equal keys (maps included) always hit the same
// entry. Values are stored together with their expiry using a [ValueCodec].
//
//	st, _ := store.Open("memo.bbolt", store.Options{})
//	c, err := cache.Load(st, cache.WithLogger(log))
//	defer c.Close()
//
//	pages := c.Namespaced("pages")
//	page, err := cache.Wrap(ctx, pages, url, 15*time.Minute, func(ctx context.Context) (Page, error) {
//	    return fetch(ctx, url)
//	})
//
// # Lookups
//
// [Get] and [Cache.Test] resolve a key to one of three states: [Fresh],
// [Expired] (still readable, scheduled for removal) or [Missing]. Test only
// decodes the expiry. Stored bytes that cannot be decoded resolve to Missing
// and are logged; they never fail a lookup.
//
// # Cleanup
//
// [Load] scans the store once and deletes expired and undecodable entries.
// [Cache.RunJanitor] repeats that on an interval.
package cache
