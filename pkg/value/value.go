// Package value implements the tagged-union metadata tree used throughout
// nvdb in place of a string-JSON blob (design note: "Dynamic metadata
// trees"), so filters and the type-inference engine can operate on typed
// values instead of re-parsing JSON at every step.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind tags which alternative of Value is populated.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindArray
	KindMap
)

// Value is a tagged union: null | bool | i64 | f64 | string | bytes |
// []Value | map[string]Value.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	by   []byte
	arr  []Value
	m    map[string]Value
}

func Null() Value                    { return Value{kind: KindNull} }
func Bool(b bool) Value              { return Value{kind: KindBool, b: b} }
func Int(i int64) Value              { return Value{kind: KindInt, i: i} }
func Float(f float64) Value          { return Value{kind: KindFloat, f: f} }
func String(s string) Value          { return Value{kind: KindString, s: s} }
func Bytes(b []byte) Value           { return Value{kind: KindBytes, by: b} }
func Array(v []Value) Value          { return Value{kind: KindArray, arr: v} }
func Map(m map[string]Value) Value   { return Value{kind: KindMap, m: m} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bool() (bool, bool)             { return v.b, v.kind == KindBool }
func (v Value) Int() (int64, bool)             { return v.i, v.kind == KindInt }
func (v Value) Float() (float64, bool)         { return v.f, v.kind == KindFloat }
func (v Value) String() (string, bool)         { return v.s, v.kind == KindString }
func (v Value) Bytes() ([]byte, bool)          { return v.by, v.kind == KindBytes }
func (v Value) Array() ([]Value, bool)         { return v.arr, v.kind == KindArray }
func (v Value) Map() (map[string]Value, bool)  { return v.m, v.kind == KindMap }

// AsFloat64 coerces numeric-ish kinds to float64 for ordering comparisons
// ($gt/$lt/etc); returns false for non-numeric kinds.
func (v Value) AsFloat64() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	}
	return 0, false
}

// Raw returns the value as a plain interface{} (bool, int64, float64,
// string, []byte, []interface{}, or map[string]interface{}), for callers
// that need to hand metadata to encoding/json or gjson-style path tools.
func (v Value) Raw() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return v.by
	case KindArray:
		out := make([]interface{}, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Raw()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.m))
		for k, e := range v.m {
			out[k] = e.Raw()
		}
		return out
	}
	return nil
}

// FromRaw converts a generic interface{} (as produced by encoding/json
// Unmarshal into interface{}, or supplied directly by a caller) into a
// Value tree.
func FromRaw(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float64:
		return Float(t)
	case float32:
		return Float(float64(t))
	case string:
		return String(t)
	case []byte:
		return Bytes(t)
	case []interface{}:
		arr := make([]Value, len(t))
		for i, e := range t {
			arr[i] = FromRaw(e)
		}
		return Array(arr)
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[k] = FromRaw(e)
		}
		return Map(m)
	case map[string]string:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[k] = String(e)
		}
		return Map(m)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i)
		}
		f, _ := t.Float64()
		return Float(f)
	default:
		return String(fmt.Sprintf("%v", t))
	}
}

// MarshalJSON implements json.Marshaler via Raw().
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Raw())
}

// UnmarshalJSON implements json.Unmarshaler via FromRaw.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromRaw(raw)
	return nil
}

// Get resolves a dot-path (e.g. "author.name") against a Map value,
// returning Null()/false when any segment is missing or the value is not a
// map at that point.
func (v Value) Get(path string) (Value, bool) {
	if path == "" {
		return v, true
	}
	segs := splitPath(path)
	cur := v
	for _, seg := range segs {
		m, ok := cur.Map()
		if !ok {
			return Null(), false
		}
		next, ok := m[seg]
		if !ok {
			return Null(), false
		}
		cur = next
	}
	return cur, true
}

func splitPath(path string) []string {
	var out []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			out = append(out, path[start:i])
			start = i + 1
		}
	}
	out = append(out, path[start:])
	return out
}

// Merge deep-merges overlay into base (used by Update's merge=true path):
// maps merge key-by-key recursively, everything else is replaced.
func Merge(base, overlay Value) Value {
	baseMap, baseIsMap := base.Map()
	overlayMap, overlayIsMap := overlay.Map()
	if !baseIsMap || !overlayIsMap {
		return overlay
	}
	merged := make(map[string]Value, len(baseMap)+len(overlayMap))
	for k, v := range baseMap {
		merged[k] = v
	}
	for k, v := range overlayMap {
		if existing, ok := merged[k]; ok {
			merged[k] = Merge(existing, v)
		} else {
			merged[k] = v
		}
	}
	return Map(merged)
}

// SortedKeys returns a Map value's keys in sorted order, for deterministic
// iteration (sampling, serialization).
func SortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
