package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_EncodeKey_MapOrderIndependent(t *testing.T) {
	key := map[string]any{
		"url":    "https://go.dev",
		"lang":   "en",
		"page":   3,
		"params": map[string]any{"z": 1, "a": 2, "m": []any{map[string]int{"y": 1, "b": 2}}},
	}
	want, err := EncodeKey(NS("web"), key)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		got, err := EncodeKey(NS("web"), key)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func Test_EncodeKey_NonStringMapKeys(t *testing.T) {
	key := map[int]string{3: "c", 1: "a", 2: "b", 10: "j"}
	want, err := EncodeKey(nil, key)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		got, err := EncodeKey(nil, key)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func Test_EncodeKey_NamespaceSlot(t *testing.T) {
	none, err := EncodeKey(nil, "x")
	require.NoError(t, err)
	empty, err := EncodeKey(NS(""), "x")
	require.NoError(t, err)
	a, err := EncodeKey(NS("a"), "x")
	require.NoError(t, err)
	b, err := EncodeKey(NS("b"), "x")
	require.NoError(t, err)

	require.NotEqual(t, none, empty)
	require.NotEqual(t, a, b)
	require.NotEqual(t, none, a)
}

func Test_EncodeKey_IntWidthsAgree(t *testing.T) {
	a, err := EncodeKey(nil, int64(7))
	require.NoError(t, err)
	b, err := EncodeKey(nil, 7)
	require.NoError(t, err)
	c, err := EncodeKey(nil, uint8(7))
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, a, c)
}

func Test_EncodeKey_Struct(t *testing.T) {
	type query struct {
		Q     string
		Limit int
	}
	a, err := EncodeKey(NS("search"), query{Q: "golang", Limit: 10})
	require.NoError(t, err)
	b, err := EncodeKey(NS("search"), query{Q: "golang", Limit: 20})
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	j, err := DecodeKey(a)
	require.NoError(t, err)
	require.JSONEq(t, `["search",{"Q":"golang","Limit":10}]`, string(j))
}

func Test_DecodeKey(t *testing.T) {
	k, err := EncodeKey(NS("web_fetch"), map[string]any{"b": 2, "a": []string{"x"}})
	require.NoError(t, err)

	j, err := DecodeKey(k)
	require.NoError(t, err)
	require.JSONEq(t, `["web_fetch",{"a":["x"],"b":2}]`, string(j))

	_, err = DecodeKey([]byte{0xc1})
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
}

func Test_KeyFormat(t *testing.T) {
	k, err := EncodeKey(nil, "x")
	require.NoError(t, err)
	require.Equal(t, `[null,"x"]`, keyFormat(k).LogValue().String())
	require.Equal(t, "c1ff", keyFormat([]byte{0xc1, 0xff}).LogValue().String())
}
