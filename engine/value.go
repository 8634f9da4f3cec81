package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind discriminates the variant held by a Value.
type Kind int

// Value variants, mirroring JSON's type lattice. Step.Config and handler
// Output are opaque to the engine except through this tagged union; only
// the input resolver's selector/template walker and the pipe writer's path
// reader ever look inside one.
const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is a discriminated any-JSON value: exactly one of its fields is
// meaningful, selected by Kind. Values are carried by reference through the
// driver and never mutated in place by engine code (Context.Set always
// replaces, never edits nested containers).
type Value struct {
	Kind Kind
	Bool bool
	Num  float64
	Str  string
	Arr  []Value
	Obj  map[string]Value
}

// Null is the canonical empty Value, returned for undefined path reads.
var Null = Value{Kind: KindNull}

// BoolValue wraps a bool.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// NumberValue wraps a float64.
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// StringValue wraps a string.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// ArrayValue wraps a slice of Values.
func ArrayValue(items ...Value) Value { return Value{Kind: KindArray, Arr: items} }

// ObjectValue wraps a string-keyed map of Values.
func ObjectValue(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{Kind: KindObject, Obj: fields}
}

// IsNull reports whether v is the null variant.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// FromAny converts a Go value produced by encoding/json.Unmarshal into an
// interface{} (nil, bool, float64, string, []interface{}, map[string]interface{})
// into a Value. It also accepts int, int64, []Value, map[string]Value and
// Value; any other concrete type is rejected.
func FromAny(v interface{}) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null, nil
	case bool:
		return BoolValue(t), nil
	case float64:
		return NumberValue(t), nil
	case int:
		return NumberValue(float64(t)), nil
	case int64:
		return NumberValue(float64(t)), nil
	case string:
		return StringValue(t), nil
	case []interface{}:
		items := make([]Value, len(t))
		for i, e := range t {
			cv, err := FromAny(e)
			if err != nil {
				return Null, err
			}
			items[i] = cv
		}
		return ArrayValue(items...), nil
	case []Value:
		return ArrayValue(t...), nil
	case map[string]interface{}:
		fields := make(map[string]Value, len(t))
		for k, e := range t {
			cv, err := FromAny(e)
			if err != nil {
				return Null, err
			}
			fields[k] = cv
		}
		return ObjectValue(fields), nil
	case map[string]Value:
		return ObjectValue(t), nil
	case Value:
		return t, nil
	default:
		return Null, fmt.Errorf("engine: unsupported value type %T", v)
	}
}

// ToAny converts a Value back into a plain interface{} tree, suitable for
// handing to a handler or serializing with the standard library.
func (v Value) ToAny() interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num
	case KindString:
		return v.Str
	case KindArray:
		out := make([]interface{}, len(v.Arr))
		for i, e := range v.Arr {
			out[i] = e.ToAny()
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, len(v.Obj))
		for k, e := range v.Obj {
			out[k] = e.ToAny()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler using the canonical plain-JSON shape.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

// UnmarshalJSON implements json.Unmarshaler by decoding through the standard
// library's default interface{} representation and re-tagging it.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	cv, err := fromAnyNumberAware(raw)
	if err != nil {
		return err
	}
	*v = cv
	return nil
}

// fromAnyNumberAware handles json.Number produced by a decoder configured
// with UseNumber, in addition to the plain types FromAny already supports.
func fromAnyNumberAware(v interface{}) (Value, error) {
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		if err != nil {
			return Null, err
		}
		return NumberValue(f), nil
	}
	switch t := v.(type) {
	case []interface{}:
		items := make([]Value, len(t))
		for i, e := range t {
			cv, err := fromAnyNumberAware(e)
			if err != nil {
				return Null, err
			}
			items[i] = cv
		}
		return ArrayValue(items...), nil
	case map[string]interface{}:
		fields := make(map[string]Value, len(t))
		for k, e := range t {
			cv, err := fromAnyNumberAware(e)
			if err != nil {
				return Null, err
			}
			fields[k] = cv
		}
		return ObjectValue(fields), nil
	default:
		return FromAny(v)
	}
}

// CanonicalBytes returns a deterministic JSON encoding of v: object keys are
// sorted, so that byte-size measurement is stable regardless of map
// iteration order.
func (v Value) CanonicalBytes() []byte {
	var buf bytes.Buffer
	writeCanonical(&buf, v)
	return buf.Bytes()
}

func writeCanonical(buf *bytes.Buffer, v Value) {
	switch v.Kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.Bool {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		b, _ := json.Marshal(v.Num)
		buf.Write(b)
	case KindString:
		b, _ := json.Marshal(v.Str)
		buf.Write(b)
	case KindArray:
		buf.WriteByte('[')
		for i, e := range v.Arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonical(buf, e)
		}
		buf.WriteByte(']')
	case KindObject:
		keys := make([]string, 0, len(v.Obj))
		for k := range v.Obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			writeCanonical(buf, v.Obj[k])
		}
		buf.WriteByte('}')
	}
}

// ByteSize returns the length of v's canonical serialization, used to
// enforce Context's maxValueSize / maxTotalSize limits.
func (v Value) ByteSize() int {
	return len(v.CanonicalBytes())
}

// Depth returns v's container nesting depth. A scalar has depth 1; an empty
// array or object counts as depth 1 (a container, even if childless); a
// non-empty container is 1 + the max depth of its children.
func (v Value) Depth() int {
	switch v.Kind {
	case KindArray:
		if len(v.Arr) == 0 {
			return 1
		}
		max := 0
		for _, e := range v.Arr {
			if d := e.Depth(); d > max {
				max = d
			}
		}
		return 1 + max
	case KindObject:
		if len(v.Obj) == 0 {
			return 1
		}
		max := 0
		for _, e := range v.Obj {
			if d := e.Depth(); d > max {
				max = d
			}
		}
		return 1 + max
	default:
		return 1
	}
}

// GetPath navigates a dot path ("a.b.c") through nested objects. It returns
// Null and false if any segment is missing or not an object.
func (v Value) GetPath(path string) (Value, bool) {
	if path == "" {
		return v, true
	}
	segs := splitPath(path)
	cur := v
	for _, seg := range segs {
		if cur.Kind != KindObject {
			return Null, false
		}
		next, ok := cur.Obj[seg]
		if !ok {
			return Null, false
		}
		cur = next
	}
	return cur, true
}

// SetPath returns a copy of v with the value at path replaced by newVal,
// creating intermediate objects as needed. v itself is not mutated.
func SetPath(v Value, path string, newVal Value) Value {
	segs := splitPath(path)
	return setPathSegs(v, segs, newVal)
}

func setPathSegs(v Value, segs []string, newVal Value) Value {
	if len(segs) == 0 {
		return newVal
	}
	obj := map[string]Value{}
	if v.Kind == KindObject {
		for k, e := range v.Obj {
			obj[k] = e
		}
	}
	head, rest := segs[0], segs[1:]
	if len(rest) == 0 {
		obj[head] = newVal
	} else {
		obj[head] = setPathSegs(obj[head], rest, newVal)
	}
	return ObjectValue(obj)
}

func splitPath(path string) []string {
	var segs []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			segs = append(segs, path[start:i])
			start = i + 1
		}
	}
	segs = append(segs, path[start:])
	return segs
}

// ToString renders a Value the way template interpolation stringifies it:
// strings pass through unquoted, scalars use their natural text form,
// containers fall back to compact JSON, and null becomes empty.
func (v Value) ToString() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindString:
		return v.Str
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.Num)
	default:
		return string(v.CanonicalBytes())
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}
