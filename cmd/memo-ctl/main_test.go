package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leonardcser/memo/internal/cache"
	"github.com/leonardcser/memo/internal/store"
)

func seed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.bbolt")
	st, err := store.Open(path, store.Options{})
	require.NoError(t, err)
	c, err := cache.Load(st)
	require.NoError(t, err)

	web := c.Namespaced("web")
	require.NoError(t, web.Insert("a", time.Hour, "page"))
	require.NoError(t, c.Insert("old", -time.Minute, 1))
	require.NoError(t, web.Close())
	require.NoError(t, c.Close())
	return path
}

func TestListAndDelete(t *testing.T) {
	path := seed(t)

	var out bytes.Buffer
	require.NoError(t, run([]string{"-db", path, "list", "-ns", "web"}, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], `"key":["web","a"]`)
	require.Contains(t, lines[0], `"value":"page"`)

	require.NoError(t, run([]string{"-db", path, "delete", "-ns", "web", "a"}, &out))

	out.Reset()
	require.NoError(t, run([]string{"-db", path, "list", "-ns", "web"}, &out))
	require.Empty(t, out.String())
}

func TestCleanup(t *testing.T) {
	path := seed(t)

	var out bytes.Buffer
	require.NoError(t, run([]string{"-db", path, "cleanup"}, &out))
	require.Equal(t, "scanned 2 entries, removed 1 expired and 0 corrupt\n", out.String())

	out.Reset()
	require.NoError(t, run([]string{"-db", path, "list"}, &out))
	require.Equal(t, 1, strings.Count(out.String(), "\n"))
}

func TestUsageErrors(t *testing.T) {
	path := seed(t)
	var out bytes.Buffer

	require.Error(t, run([]string{"-db", path}, &out))
	require.Error(t, run([]string{"-db", path, "frobnicate"}, &out))
	require.Error(t, run([]string{"-db", path, "delete"}, &out))
}
