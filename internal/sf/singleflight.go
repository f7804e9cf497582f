package sf

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// ErrTypeMismatch is returned when callers sharing a key disagree on the
// result type.
var ErrTypeMismatch = errors.New("sf: result type mismatch")

// Group is a set of in-flight calls keyed by string. The zero value is ready
// to use. A Group may be shared by callers expecting different result types
// as long as each key is always used with the same type.
type Group struct {
	group singleflight.Group
}

// Do runs fn for key unless a call for key is already in flight, in which
// case it waits for that call's outcome. shared reports whether the outcome
// was delivered to more than one caller.
func Do[T any](ctx context.Context, g *Group, key string, fn func() (T, error)) (v T, shared bool, err error) {
	ch := g.group.DoChan(key, func() (any, error) {
		return fn()
	})
	select {
	case <-ctx.Done():
		return v, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return v, res.Shared, res.Err
		}
		out, ok := res.Val.(T)
		if !ok && res.Val != nil {
			return v, res.Shared, fmt.Errorf("%w: got %T", ErrTypeMismatch, res.Val)
		}
		return out, res.Shared, nil
	}
}

// Forget releases key so the next Do starts a new call even if one is still
// running.
func (g *Group) Forget(key string) {
	g.group.Forget(key)
}
