package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openBolt(t *testing.T) *Bolt {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "memo.bbolt"), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"bolt":   openBolt(t),
		"memory": NewMemory(),
	}
}

func Test_Store_GetPutDelete(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get([]byte("missing"))
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put([]byte("a"), []byte("1")))
			v, err := s.Get([]byte("a"))
			require.NoError(t, err)
			require.Equal(t, []byte("1"), v)

			require.NoError(t, s.Put([]byte("a"), []byte("2")))
			v, err = s.Get([]byte("a"))
			require.NoError(t, err)
			require.Equal(t, []byte("2"), v)

			require.NoError(t, s.Delete([]byte("a")))
			require.NoError(t, s.Delete([]byte("a")))
			_, err = s.Get([]byte("a"))
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func Test_Store_ForEachOrdered(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"c", "a", "b"} {
				require.NoError(t, s.Put([]byte(k), []byte("v"+k)))
			}

			var keys, values []string
			require.NoError(t, s.ForEach(func(k, v []byte) error {
				keys = append(keys, string(k))
				values = append(values, string(v))
				return nil
			}))
			require.Equal(t, []string{"a", "b", "c"}, keys)
			require.Equal(t, []string{"va", "vb", "vc"}, values)
		})
	}
}

func Test_Store_ForEachStops(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put([]byte("a"), nil))
			require.NoError(t, s.Put([]byte("b"), nil))

			stop := errors.New("stop")
			n := 0
			err := s.ForEach(func(_, _ []byte) error {
				n++
				return stop
			})
			require.ErrorIs(t, err, stop)
			require.Equal(t, 1, n)
		})
	}
}

func Test_Store_ReturnedBytesAreCopies(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put([]byte("k"), []byte("abc")))
			v, err := s.Get([]byte("k"))
			require.NoError(t, err)
			v[0] = 'x'

			v, err = s.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("abc"), v)
		})
	}
}

func Test_Bolt_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memo.bbolt")
	s, err := Open(path, Options{Bucket: "custom"})
	require.NoError(t, err)
	require.NoError(t, s.Put([]byte("k"), []byte("v")))
	require.NoError(t, s.Close())

	s, err = Open(path, Options{Bucket: "custom"})
	require.NoError(t, err)
	defer s.Close()
	v, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
	require.Equal(t, path, s.Path())
}

func Test_Memory_Closed(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())
	require.True(t, m.Closed())
	require.ErrorIs(t, m.Put([]byte("k"), nil), ErrClosed)
	_, err := m.Get([]byte("k"))
	require.ErrorIs(t, err, ErrClosed)
}

func Test_Bolt_Closed(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "memo.bbolt"), Options{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Get([]byte("k"))
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, s.Put([]byte("k"), nil), ErrClosed)
	require.ErrorIs(t, s.Delete([]byte("k")), ErrClosed)
	require.ErrorIs(t, s.ForEach(func(_, _ []byte) error { return nil }), ErrClosed)
}
