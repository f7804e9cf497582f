package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/leonardcser/memo/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type page struct {
	Title string
	Links []string
}

func newCache(t *testing.T, opts ...Option) (*Cache, *store.Memory, *fakeClock) {
	t.Helper()
	st := store.NewMemory()
	clk := newClock()
	c, err := Load(st, append([]Option{WithClock(clk.Now)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, st, clk
}

func Test_InsertThenGetIsFresh(t *testing.T) {
	c, _, _ := newCache(t)

	want := page{Title: "Go", Links: []string{"https://go.dev"}}
	require.NoError(t, c.Insert("https://go.dev", time.Minute, want))

	ref, err := Get[page](c, "https://go.dev")
	require.NoError(t, err)
	require.Equal(t, Fresh, ref.State)
	v, ok := ref.Get()
	require.True(t, ok)
	require.Equal(t, want, v)

	tst, err := c.Test("https://go.dev")
	require.NoError(t, err)
	require.Equal(t, Fresh, tst.State)
	require.True(t, tst.Entry.ExpiresAt.Equal(newClock().Now().Add(time.Minute)))
}

func Test_ExpiredLifecycle(t *testing.T) {
	c, st, clk := newCache(t)
	require.NoError(t, c.Insert("k", time.Minute, "v"))

	clk.Advance(time.Minute + time.Second)

	ref, err := Get[string](c, "k")
	require.NoError(t, err)
	require.Equal(t, Expired, ref.State)
	v, ok := ref.Get()
	require.True(t, ok)
	require.Equal(t, "v", v)

	_, ok, err = ref.DeleteIfExpired()
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 0, st.Len())

	ref, err = Get[string](c, "k")
	require.NoError(t, err)
	require.Equal(t, Missing, ref.State)
	_, ok = ref.Get()
	require.False(t, ok)
}

func Test_ExpiryBoundaryIsExpired(t *testing.T) {
	c, _, clk := newCache(t)
	require.NoError(t, c.Insert("k", time.Minute, 1))

	clk.Advance(time.Minute)
	ref, err := c.Test("k")
	require.NoError(t, err)
	require.Equal(t, Expired, ref.State)
}

func Test_DeleteIfExpiredKeepsFresh(t *testing.T) {
	c, st, _ := newCache(t)
	require.NoError(t, c.Insert("k", time.Minute, "v"))

	ref, err := Get[string](c, "k")
	require.NoError(t, err)
	v, ok, err := ref.DeleteIfExpired()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", v)
	require.Equal(t, 1, st.Len())

	missing, err := Get[string](c, "other")
	require.NoError(t, err)
	_, ok, err = missing.DeleteIfExpired()
	require.NoError(t, err)
	require.False(t, ok)
}

func Test_NamespacesAreIndependent(t *testing.T) {
	c, _, _ := newCache(t)
	a, b := c.Namespaced("a"), c.Namespaced("b")
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.Insert("x", time.Minute, "from a"))
	require.NoError(t, b.Insert("x", time.Minute, "from b"))

	ra, err := Get[string](a, "x")
	require.NoError(t, err)
	rb, err := Get[string](b, "x")
	require.NoError(t, err)
	va, _ := ra.Get()
	vb, _ := rb.Get()
	require.Equal(t, "from a", va)
	require.Equal(t, "from b", vb)

	root, err := Get[string](c, "x")
	require.NoError(t, err)
	require.Equal(t, Missing, root.State)

	ns, ok := a.Namespace()
	require.True(t, ok)
	require.Equal(t, "a", ns)
	_, ok = c.Namespace()
	require.False(t, ok)
}

func Test_DeleteWithNamespace(t *testing.T) {
	c, _, _ := newCache(t)
	a := c.Namespaced("a")
	defer a.Close()
	require.NoError(t, a.Insert("x", time.Minute, 1))
	require.NoError(t, c.Insert("x", time.Minute, 2))

	require.NoError(t, c.DeleteWithNamespace(NS("a"), "x"))

	ref, err := a.Test("x")
	require.NoError(t, err)
	require.Equal(t, Missing, ref.State)
	ref, err = c.Test("x")
	require.NoError(t, err)
	require.Equal(t, Fresh, ref.State)

	require.NoError(t, a.DeleteWithNamespace(nil, "x"))
	ref, err = c.Test("x")
	require.NoError(t, err)
	require.Equal(t, Missing, ref.State)
}

func Test_MalformedBytesResolveToMissing(t *testing.T) {
	c, st, _ := newCache(t)
	k, err := EncodeKey(nil, "k")
	require.NoError(t, err)
	require.NoError(t, st.Put(k, []byte{0xc1, 0x00}))

	ref, err := Get[string](c, "k")
	require.NoError(t, err)
	require.Equal(t, Missing, ref.State)

	tst, err := c.Test("k")
	require.NoError(t, err)
	require.Equal(t, Missing, tst.State)
}

func Test_RecordsWithoutExpiryAreCorrupt(t *testing.T) {
	valueOnly, err := msgpack.Marshal(map[string]any{"value": "x"})
	require.NoError(t, err)

	for name, raw := range map[string][]byte{
		"nil":        {0xc0},
		"empty map":  {0x80},
		"value only": valueOnly,
	} {
		t.Run(name, func(t *testing.T) {
			c, st, _ := newCache(t)
			k, err := EncodeKey(nil, "k")
			require.NoError(t, err)
			require.NoError(t, st.Put(k, raw))

			tst, err := c.Test("k")
			require.NoError(t, err)
			require.Equal(t, Missing, tst.State)

			ref, err := Get[string](c, "k")
			require.NoError(t, err)
			require.Equal(t, Missing, ref.State)
			_, ok := ref.Get()
			require.False(t, ok)

			entries, err := c.ListJSON()
			require.NoError(t, err)
			require.Empty(t, entries)

			stats, err := c.Cleanup()
			require.NoError(t, err)
			require.Equal(t, CleanupStats{Scanned: 1, Corrupt: 1}, stats)
			require.Equal(t, 0, st.Len())
		})
	}
}

func Test_RecordWithoutValueIsMissing(t *testing.T) {
	c, st, clk := newCache(t)
	k, err := EncodeKey(nil, "k")
	require.NoError(t, err)
	raw, err := msgpack.Marshal(map[string]any{"expires_at": clk.Now().Add(time.Hour)})
	require.NoError(t, err)
	require.NoError(t, st.Put(k, raw))

	tst, err := c.Test("k")
	require.NoError(t, err)
	require.Equal(t, Fresh, tst.State)

	ref, err := Get[string](c, "k")
	require.NoError(t, err)
	require.Equal(t, Missing, ref.State)

	entries, err := c.ListJSON()
	require.NoError(t, err)
	require.Empty(t, entries)

	stats, err := c.Cleanup()
	require.NoError(t, err)
	require.Equal(t, CleanupStats{Scanned: 1}, stats)
}

func Test_NonPositiveTTLIsImmediatelyExpired(t *testing.T) {
	c, _, _ := newCache(t)
	require.NoError(t, c.Insert("zero", 0, "v"))
	require.NoError(t, c.Insert("negative", -time.Second, "v"))

	for _, k := range []string{"zero", "negative"} {
		ref, err := c.Test(k)
		require.NoError(t, err)
		require.Equal(t, Expired, ref.State, k)
	}

	var calls atomic.Int32
	v, err := Wrap(t.Context(), c, "zero", time.Minute, func(context.Context) (string, error) {
		calls.Add(1)
		return "recomputed", nil
	})
	require.NoError(t, err)
	require.Equal(t, "recomputed", v)
	require.Equal(t, int32(1), calls.Load())
}

func Test_MistypedPayloadIsMissingButTestIsFresh(t *testing.T) {
	c, _, _ := newCache(t)
	require.NoError(t, c.Insert("k", time.Minute, "not a number"))

	ref, err := Get[int](c, "k")
	require.NoError(t, err)
	require.Equal(t, Missing, ref.State)

	tst, err := c.Test("k")
	require.NoError(t, err)
	require.Equal(t, Fresh, tst.State)
}

func Test_InsertEncodingErrors(t *testing.T) {
	c, st, _ := newCache(t)

	var encErr *EncodingError
	err := c.Insert("k", time.Minute, make(chan int))
	require.ErrorAs(t, err, &encErr)
	require.Equal(t, "value", encErr.What)

	err = c.Insert(make(chan int), time.Minute, 1)
	require.ErrorAs(t, err, &encErr)
	require.Equal(t, "key", encErr.What)

	require.Equal(t, 0, st.Len())
}

type failingStore struct {
	*store.Memory
	err error
}

func (f *failingStore) Get([]byte) ([]byte, error) { return nil, f.err }
func (f *failingStore) Put([]byte, []byte) error   { return f.err }

func Test_StoreErrorsPropagate(t *testing.T) {
	boom := errors.New("disk on fire")
	c, err := Load(&failingStore{Memory: store.NewMemory(), err: boom})
	require.NoError(t, err)
	defer c.Close()

	var storeErr *StoreError
	_, err = Get[string](c, "k")
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, "get", storeErr.Op)
	require.ErrorIs(t, err, boom)

	_, err = c.Test("k")
	require.ErrorIs(t, err, boom)

	err = c.Insert("k", time.Minute, 1)
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, "put", storeErr.Op)
}

func Test_CleanupRemovesExpiredAndCorrupt(t *testing.T) {
	st := store.NewMemory()
	clk := newClock()

	seed, err := Load(st, WithClock(clk.Now))
	require.NoError(t, err)
	require.NoError(t, seed.Insert("fresh", time.Hour, "keep"))
	require.NoError(t, seed.Insert("stale", time.Minute, "drop"))
	corrupt, err := EncodeKey(nil, "corrupt")
	require.NoError(t, err)
	require.NoError(t, st.Put(corrupt, []byte("\xc1 not an entry")))

	clk.Advance(2 * time.Minute)

	c, err := Load(st, WithClock(clk.Now))
	require.NoError(t, err)
	require.Equal(t, 1, st.Len())

	ref, err := Get[string](c, "fresh")
	require.NoError(t, err)
	require.Equal(t, Fresh, ref.State)

	stats, err := c.Cleanup()
	require.NoError(t, err)
	require.Equal(t, CleanupStats{Scanned: 1}, stats)
}

func Test_CleanupStats(t *testing.T) {
	c, st, clk := newCache(t)
	require.NoError(t, c.Insert("a", time.Minute, 1))
	require.NoError(t, c.Insert("b", time.Hour, 2))
	require.NoError(t, st.Put([]byte("junk"), []byte{0xc1}))
	clk.Advance(time.Minute)

	stats, err := c.Cleanup()
	require.NoError(t, err)
	require.Equal(t, CleanupStats{Scanned: 3, Expired: 1, Corrupt: 1}, stats)
	require.Equal(t, 2, stats.Removed())
	require.Equal(t, 1, st.Len())
}

func Test_WithoutCleanup(t *testing.T) {
	st := store.NewMemory()
	require.NoError(t, st.Put([]byte("junk"), []byte{0xc1}))

	c, err := Load(st, WithoutCleanup())
	require.NoError(t, err)
	defer c.Close()
	require.Equal(t, 1, st.Len())
}

func Test_ListJSONSkipsUndecodable(t *testing.T) {
	c, st, _ := newCache(t)
	require.NoError(t, c.Insert("a", time.Minute, 1))
	require.NoError(t, c.Namespaced("ns").Insert("b", time.Minute, map[string]any{"title": "Go"}))

	bad, err := EncodeKey(nil, "c")
	require.NoError(t, err)
	require.NoError(t, st.Put(bad, []byte{0xc1}))
	require.NoError(t, st.Put([]byte{0xc1}, []byte{0xc1}))

	entries, err := c.ListJSON()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// A string slot (0xa2) sorts before nil (0xc0) in store order.
	require.JSONEq(t, `["ns","b"]`, string(entries[0].Key))
	require.JSONEq(t, `{"title":"Go"}`, string(entries[0].Value))
	require.JSONEq(t, `[null,"a"]`, string(entries[1].Key))
	require.JSONEq(t, `1`, string(entries[1].Value))
	require.True(t, entries[1].ExpiresAt.Equal(newClock().Now().Add(time.Minute)))
}

func Test_JSONCodec(t *testing.T) {
	c, st, clk := newCache(t, WithCodec(JSON{}))
	want := page{Title: "Go"}
	require.NoError(t, c.Insert("k", time.Minute, want))

	ref, err := Get[page](c, "k")
	require.NoError(t, err)
	require.Equal(t, Fresh, ref.State)
	require.Equal(t, want, ref.Entry.Value)

	entries, err := c.ListJSON()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.JSONEq(t, `{"Title":"Go","Links":null}`, string(entries[0].Value))

	clk.Advance(time.Hour)
	stats, err := c.Cleanup()
	require.NoError(t, err)
	require.Equal(t, 1, stats.Expired)
	require.Equal(t, 0, st.Len())
}

func Test_CloseIsReferenceCounted(t *testing.T) {
	st := store.NewMemory()
	c, err := Load(st)
	require.NoError(t, err)
	ns := c.Namespaced("a")

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.False(t, st.Closed())
	require.ErrorIs(t, c.Insert("k", time.Minute, 1), ErrClosed)

	require.NoError(t, ns.Insert("k", time.Minute, 1))
	require.NoError(t, ns.Close())
	require.True(t, st.Closed())

	late := c.Namespaced("b")
	_, err = late.Test("k")
	require.ErrorIs(t, err, ErrClosed)
}

func Test_WrapRunsOnceForConcurrentCallers(t *testing.T) {
	c, _, _ := newCache(t)

	var counter atomic.Int64
	compute := func(context.Context) (int64, error) {
		time.Sleep(20 * time.Millisecond)
		return counter.Add(1), nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]int64, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = Wrap(t.Context(), c, "k", time.Minute, compute)
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), counter.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, int64(1), results[i])
	}

	ref, err := Get[int64](c, "k")
	require.NoError(t, err)
	require.Equal(t, Fresh, ref.State)
	require.Equal(t, int64(1), ref.Entry.Value)
}

func Test_WrapFreshSkipsComputation(t *testing.T) {
	c, _, _ := newCache(t)
	require.NoError(t, c.Insert("k", time.Minute, "cached"))

	v, err := Wrap(t.Context(), c, "k", time.Minute, func(context.Context) (string, error) {
		t.Fatal("computation must not run")
		return "", nil
	})
	require.NoError(t, err)
	require.Equal(t, "cached", v)
}

func Test_WrapRecomputesExpired(t *testing.T) {
	c, _, clk := newCache(t)
	require.NoError(t, c.Insert("k", time.Minute, "old"))
	clk.Advance(2 * time.Minute)

	v, err := Wrap(t.Context(), c, "k", time.Minute, func(context.Context) (string, error) {
		return "new", nil
	})
	require.NoError(t, err)
	require.Equal(t, "new", v)

	ref, err := Get[string](c, "k")
	require.NoError(t, err)
	require.Equal(t, Fresh, ref.State)
	require.Equal(t, "new", ref.Entry.Value)
}

func Test_WrapFailureIsSharedAndNotStored(t *testing.T) {
	c, st, _ := newCache(t)
	boom := errors.New("upstream down")

	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	compute := func(context.Context) (string, error) {
		calls.Add(1)
		once.Do(func() { close(started) })
		<-release
		return "", boom
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = Wrap(t.Context(), c, "k", time.Minute, compute)
		}()
	}
	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for _, err := range errs {
		require.ErrorIs(t, err, boom)
	}
	require.Equal(t, 0, st.Len())

	v, err := Wrap(t.Context(), c, "k", time.Minute, func(context.Context) (string, error) {
		return "recovered", nil
	})
	require.NoError(t, err)
	require.Equal(t, "recovered", v)
}

func Test_WrapLeaderCancelled(t *testing.T) {
	c, st, _ := newCache(t)
	ctx, cancel := context.WithCancel(t.Context())

	started := make(chan struct{})
	leaderErr := make(chan error, 1)
	go func() {
		_, err := Wrap(ctx, c, "k", time.Minute, func(ctx context.Context) (string, error) {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		})
		leaderErr <- err
	}()
	<-started

	waiterErr := make(chan error, 1)
	go func() {
		_, err := Wrap(t.Context(), c, "k", time.Minute, func(context.Context) (string, error) {
			return "waiter ran", nil
		})
		waiterErr <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	require.ErrorIs(t, <-leaderErr, context.Canceled)
	require.ErrorIs(t, <-waiterErr, context.Canceled)
	require.Equal(t, 0, st.Len())

	v, err := Wrap(t.Context(), c, "k", time.Minute, func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", v)
}

func Test_WrapNamespacesComputeSeparately(t *testing.T) {
	c, _, _ := newCache(t)
	a, b := c.Namespaced("a"), c.Namespaced("b")
	defer a.Close()
	defer b.Close()

	var calls atomic.Int32
	compute := func(context.Context) (int32, error) { return calls.Add(1), nil }

	va, err := Wrap(t.Context(), a, "k", time.Minute, compute)
	require.NoError(t, err)
	vb, err := Wrap(t.Context(), b, "k", time.Minute, compute)
	require.NoError(t, err)
	require.NotEqual(t, va, vb)
	require.Equal(t, int32(2), calls.Load())
}

func Test_RunJanitorRemovesExpired(t *testing.T) {
	c, st, clk := newCache(t)
	require.NoError(t, c.Insert("old", time.Minute, 1))
	require.NoError(t, c.Insert("new", time.Hour, 2))
	clk.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.RunJanitor(ctx, 5*time.Millisecond)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for st.Len() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 1, st.Len())

	cancel()
	<-done

	ref, err := Get[int](c, "new")
	require.NoError(t, err)
	require.Equal(t, Fresh, ref.State)
}

func Test_RunJanitorStopsWhenClosed(t *testing.T) {
	c, _, _ := newCache(t)
	require.NoError(t, c.Close())

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.RunJanitor(t.Context(), time.Millisecond)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor kept running on a closed cache")
	}
}
