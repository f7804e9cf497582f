// Package sf deduplicates concurrent computations that share a key.
//
// The first caller for a key becomes the leader and runs the function; every
// caller arriving while it runs waits for the leader and receives the same
// value or the same error. Once the leader finishes the key is released, so
// the next caller starts a fresh attempt. Waiters never retry a failed call on
// their own.
//
//	var g sf.Group
//
//	user, shared, err := sf.Do(ctx, &g, "user:123", func() (*User, error) {
//	    return db.GetUser(ctx, "123")
//	})
//
// Unlike the underlying golang.org/x/sync/singleflight, Do honours the
// caller's context: a caller whose context ends stops waiting and returns
// ctx.Err() while the in-flight call keeps running for the others.
package sf
