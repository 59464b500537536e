// Package value implements the discriminated Value union that flows across
// every edge of the processing graph and is the value type of the atomic
// store.
package value

import "encoding/json"

// Kind discriminates the variant held by a Value.
type Kind int

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindIntSeq
	KindFloatSeq
	KindValueSeq
)

// Value is a tagged union over {bool, i32, f64, string, []i32, []f64, []Value}.
// The zero Value is KindNone and encodes as JSON null.
type Value struct {
	kind     Kind
	b        bool
	i        int32
	f        float64
	s        string
	ints     []int32
	floats   []float64
	values   []Value
}

func None() Value                 { return Value{kind: KindNone} }
func Bool(b bool) Value           { return Value{kind: KindBool, b: b} }
func Int(i int32) Value           { return Value{kind: KindInt, i: i} }
func Float(f float64) Value       { return Value{kind: KindFloat, f: f} }
func String(s string) Value       { return Value{kind: KindString, s: s} }
func IntSeq(v []int32) Value      { return Value{kind: KindIntSeq, ints: v} }
func FloatSeq(v []float64) Value  { return Value{kind: KindFloatSeq, floats: v} }
func ValueSeq(v []Value) Value    { return Value{kind: KindValueSeq, values: v} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNone() bool { return v.kind == KindNone }

func (v Value) Bool() (bool, bool)          { return v.b, v.kind == KindBool }
func (v Value) Int() (int32, bool)          { return v.i, v.kind == KindInt }
func (v Value) Float() (float64, bool)      { return v.f, v.kind == KindFloat }
func (v Value) String() (string, bool)      { return v.s, v.kind == KindString }
func (v Value) IntSeq() ([]int32, bool)     { return v.ints, v.kind == KindIntSeq }
func (v Value) FloatSeq() ([]float64, bool) { return v.floats, v.kind == KindFloatSeq }
func (v Value) ValueSeq() ([]Value, bool)   { return v.values, v.kind == KindValueSeq }

// AsFloat coerces bool/int/float variants to a float64, for callers (like the
// dispatcher) that only care about a tick's numeric fields.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// MarshalJSON encodes the discriminant into a plain JSON value; unknown
// variants (the zero value) encode as null, per spec.md §9.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindIntSeq:
		return json.Marshal(v.ints)
	case KindFloatSeq:
		return json.Marshal(v.floats)
	case KindValueSeq:
		return json.Marshal(v.values)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON infers the most specific variant from the wire shape: a JSON
// number becomes a Float (the wire format does not distinguish int/float),
// bool and string map directly, arrays become FloatSeq when every element is
// numeric, otherwise ValueSeq.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = fromAny(raw)
	return nil
}

func fromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return None()
	case bool:
		return Bool(t)
	case float64:
		return Float(t)
	case string:
		return String(t)
	case []any:
		allNumeric := true
		floats := make([]float64, 0, len(t))
		for _, e := range t {
			f, ok := e.(float64)
			if !ok {
				allNumeric = false
				break
			}
			floats = append(floats, f)
		}
		if allNumeric {
			return FloatSeq(floats)
		}
		vals := make([]Value, len(t))
		for i, e := range t {
			vals[i] = fromAny(e)
		}
		return ValueSeq(vals)
	default:
		return None()
	}
}
