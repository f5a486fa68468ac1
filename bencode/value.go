// Package bencode implements the bencode codec: a recursive, length-aware
// binary format used by .torrent files and tracker responses.
package bencode

import (
	"bytes"
	"sort"
)

// Kind discriminates the tagged sum a Value holds.
type Kind int

const (
	KindInteger Kind = iota
	KindString
	KindList
	KindDict
)

// Value is a tagged bencode value: an integer, a raw byte string, an
// ordered list of values, or a dict keyed by byte strings.
//
// Dict keys are stored as Go strings purely as a comparable carrier for
// arbitrary bytes (including NUL) — they are never treated as UTF-8 text.
type Value struct {
	kind Kind
	i    int64
	s    []byte
	list []Value
	dict map[string]Value
}

// Integer constructs an integer Value.
func Integer(i int64) Value { return Value{kind: KindInteger, i: i} }

// String constructs a byte-string Value. The argument is copied.
func String(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindString, s: cp}
}

// StringFrom is a convenience constructor for ASCII/text dict keys and
// values built from Go strings rather than raw byte slices.
func StringFrom(s string) Value { return String([]byte(s)) }

// List constructs a list Value. The argument slice is not copied; callers
// must not mutate it after this call.
func List(vs []Value) Value { return Value{kind: KindList, list: vs} }

// Dict constructs a dict Value from a key -> Value mapping.
func Dict(m map[string]Value) Value { return Value{kind: KindDict, dict: m} }

func (v Value) Kind() Kind { return v.kind }

// Int returns the integer payload, if this Value is an integer.
func (v Value) Int() (int64, bool) {
	if v.kind != KindInteger {
		return 0, false
	}
	return v.i, true
}

// Bytes returns the string payload, if this Value is a byte string.
func (v Value) Bytes() ([]byte, bool) {
	if v.kind != KindString {
		return nil, false
	}
	return v.s, true
}

// Str is Bytes with the result converted to a Go string, for dict keys and
// other values known to be textual.
func (v Value) Str() (string, bool) {
	b, ok := v.Bytes()
	if !ok {
		return "", false
	}
	return string(b), true
}

// ListItems returns the element slice, if this Value is a list.
func (v Value) ListItems() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

// DictItems returns the key -> Value mapping, if this Value is a dict.
func (v Value) DictItems() (map[string]Value, bool) {
	if v.kind != KindDict {
		return nil, false
	}
	return v.dict, true
}

// Get looks up key in a dict Value. ok is false if v is not a dict or the
// key is absent.
func (v Value) Get(key string) (Value, bool) {
	m, isDict := v.DictItems()
	if !isDict {
		return Value{}, false
	}
	val, present := m[key]
	return val, present
}

// Equal reports whether two Values are structurally identical. List order
// matters; dict key order does not.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindInteger:
		return a.i == b.i
	case KindString:
		return bytes.Equal(a.s, b.s)
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if len(a.dict) != len(b.dict) {
			return false
		}
		for k, av := range a.dict {
			bv, ok := b.dict[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// sortedKeys returns a dict's keys in ascending byte-wise order, the order
// Encode emits them in.
func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
