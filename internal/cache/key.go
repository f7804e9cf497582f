package cache

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// EncodeKey returns the store key for key in namespace ns (nil for none).
//
// The key is the msgpack array [ns, key] rewritten into canonical form: maps
// at any depth have their entries ordered by the bytes of their encoded keys,
// so logically equal keys always produce identical bytes no matter how the
// Go map happened to iterate.
func EncodeKey(ns *string, key any) ([]byte, error) {
	var slot any
	if ns != nil {
		slot = *ns
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode([]any{slot, key}); err != nil {
		return nil, err
	}
	return canonicalize(buf.Bytes())
}

// DecodeKey renders a stored key as JSON, e.g. ["web_fetch","https://go.dev"].
func DecodeKey(b []byte) (json.RawMessage, error) {
	var v any
	if err := msgpack.Unmarshal(b, &v); err != nil {
		return nil, &DecodeError{Err: err}
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return out, nil
}

func canonicalize(raw []byte) ([]byte, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	var buf bytes.Buffer
	if err := canonicalValue(dec, msgpack.NewEncoder(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func canonicalBytes(dec *msgpack.Decoder) ([]byte, error) {
	var buf bytes.Buffer
	if err := canonicalValue(dec, msgpack.NewEncoder(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func canonicalValue(dec *msgpack.Decoder, enc *msgpack.Encoder) error {
	c, err := dec.PeekCode()
	if err != nil {
		return err
	}

	switch {
	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return err
		}
		type pair struct{ k, v []byte }
		pairs := make([]pair, n)
		for i := range pairs {
			if pairs[i].k, err = canonicalBytes(dec); err != nil {
				return err
			}
			if pairs[i].v, err = canonicalBytes(dec); err != nil {
				return err
			}
		}
		slices.SortFunc(pairs, func(a, b pair) int { return bytes.Compare(a.k, b.k) })

		if err := enc.EncodeMapLen(n); err != nil {
			return err
		}
		for _, p := range pairs {
			if err := enc.Encode(msgpack.RawMessage(p.k)); err != nil {
				return err
			}
			if err := enc.Encode(msgpack.RawMessage(p.v)); err != nil {
				return err
			}
		}
		return nil

	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return err
		}
		if err := enc.EncodeArrayLen(n); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := canonicalValue(dec, enc); err != nil {
				return err
			}
		}
		return nil

	default:
		raw, err := dec.DecodeRaw()
		if err != nil {
			return err
		}
		return enc.Encode(raw)
	}
}

// keyFormat renders stored bytes for logs: JSON when they decode, hex
// otherwise. Formatting only happens if the record is actually emitted.
type keyFormat []byte

func (k keyFormat) LogValue() slog.Value {
	if j, err := DecodeKey(k); err == nil {
		return slog.StringValue(string(j))
	}
	return slog.StringValue(hex.EncodeToString(k))
}
