// Package value implements the tagged, tree-shaped JSON variant that the
// translation core reads, writes, and finally serializes as the provider
// request body. It exists so that pathexpr, mapper, and friends never
// depend on Go's native map[string]any (which loses key order and blurs
// the null/absent distinction); Object preserves insertion order so the
// emitted provider_request_json is reproducible (spec.md §8 invariant 1).
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind tags the variant stored in a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a tagged tree-shaped JSON value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	n    json.Number
	s    string
	arr  []*Value
	obj  *Object
}

// Null returns a null Value.
func Null() *Value { return &Value{kind: KindNull} }

// Bool returns a boolean Value.
func Bool(b bool) *Value { return &Value{kind: KindBool, b: b} }

// String returns a string Value.
func String(s string) *Value { return &Value{kind: KindString, s: s} }

// Number returns a numeric Value from a float64.
func Number(f float64) *Value {
	return &Value{kind: KindNumber, n: json.Number(trimFloat(f))}
}

// Int returns a numeric Value from an int64.
func Int(i int64) *Value {
	return &Value{kind: KindNumber, n: json.Number(fmt.Sprintf("%d", i))}
}

// NumberFromJSON wraps an already-formatted JSON number literal, preserving
// its exact textual form (e.g. integer vs. float representation).
func NumberFromJSON(n json.Number) *Value {
	return &Value{kind: KindNumber, n: n}
}

// Array returns an array Value from a slice of elements.
func Array(elems ...*Value) *Value {
	return &Value{kind: KindArray, arr: elems}
}

// NewObject returns an empty, order-preserving object Value.
func NewObject() *Value {
	return &Value{kind: KindObject, obj: newObject()}
}

// Kind reports the tagged variant.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}

	return v.kind
}

// IsNull reports whether v is nil or a JSON null.
func (v *Value) IsNull() bool { return v == nil || v.kind == KindNull }

// Bool returns the boolean payload and whether v held one.
func (v *Value) Bool() (bool, bool) {
	if v == nil || v.kind != KindBool {
		return false, false
	}

	return v.b, true
}

// String returns the string payload and whether v held one.
func (v *Value) String() (string, bool) {
	if v == nil || v.kind != KindString {
		return "", false
	}

	return v.s, true
}

// Number returns the numeric payload as a float64 and whether v held a number.
func (v *Value) Number() (float64, bool) {
	if v == nil || v.kind != KindNumber {
		return 0, false
	}

	f, err := v.n.Float64()
	if err != nil {
		return 0, false
	}

	return f, true
}

// Int returns the numeric payload truncated toward zero as an int64.
func (v *Value) Int() (int64, bool) {
	if v == nil || v.kind != KindNumber {
		return 0, false
	}

	if i, err := v.n.Int64(); err == nil {
		return i, true
	}

	f, err := v.n.Float64()
	if err != nil {
		return 0, false
	}

	return int64(f), true
}

// Array returns the element slice and whether v held an array. The
// returned slice aliases v's storage; callers must not mutate it directly.
func (v *Value) Array() ([]*Value, bool) {
	if v == nil || v.kind != KindArray {
		return nil, false
	}

	return v.arr, true
}

// Object returns the underlying Object and whether v held one.
func (v *Value) Object() (*Object, bool) {
	if v == nil || v.kind != KindObject {
		return nil, false
	}

	return v.obj, true
}

// Clone returns a deep copy of v. PromptSpec and ProviderSpec are never
// mutated (spec.md §3.5); any stage that risks aliasing an input value
// into the working payload must Clone it first.
func (v *Value) Clone() *Value {
	if v == nil {
		return nil
	}

	switch v.kind {
	case KindArray:
		out := make([]*Value, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Clone()
		}

		return &Value{kind: KindArray, arr: out}
	case KindObject:
		return &Value{kind: KindObject, obj: v.obj.clone()}
	default:
		cp := *v

		return &cp
	}
}

// Equal reports deep structural equality, ignoring object key order.
func (v *Value) Equal(other *Value) bool {
	if v.IsNull() && other.IsNull() {
		return true
	}

	if v == nil || other == nil {
		return false
	}

	if v.kind != other.kind {
		return false
	}

	switch v.kind {
	case KindBool:
		return v.b == other.b
	case KindString:
		return v.s == other.s
	case KindNumber:
		vf, _ := v.Number()
		of, _ := other.Number()

		return vf == of
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}

		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}

		return true
	case KindObject:
		return v.obj.equal(other.obj)
	default:
		return true
	}
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%g", f)

	return s
}

// MarshalJSON implements json.Marshaler, preserving object key insertion
// order and exact numeric literal text.
func (v *Value) MarshalJSON() ([]byte, error) {
	if v == nil || v.kind == KindNull {
		return []byte("null"), nil
	}

	switch v.kind {
	case KindBool:
		if v.b {
			return []byte("true"), nil
		}

		return []byte("false"), nil
	case KindString:
		return json.Marshal(v.s)
	case KindNumber:
		if v.n == "" {
			return []byte("0"), nil
		}

		return []byte(v.n.String()), nil
	case KindArray:
		var buf bytes.Buffer

		buf.WriteByte('[')

		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}

			eb, err := e.MarshalJSON()
			if err != nil {
				return nil, err
			}

			buf.Write(eb)
		}

		buf.WriteByte(']')

		return buf.Bytes(), nil
	case KindObject:
		return v.obj.MarshalJSON()
	default:
		return nil, fmt.Errorf("value: unknown kind %v", v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler, decoding arbitrary JSON into
// the tagged-variant tree while preserving object key order and numeric
// literal text via json.Number.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any

	if err := dec.Decode(&raw); err != nil {
		return err
	}

	// Re-decode preserving object order using a token walk, since the
	// standard library's interface{} decode collapses objects into an
	// unordered map[string]interface{}.
	dec2 := json.NewDecoder(bytes.NewReader(data))
	dec2.UseNumber()

	parsed, err := decodeValue(dec2)
	if err != nil {
		return err
	}

	*v = *parsed

	return nil
}

// FromJSON parses data into a new tagged-variant Value tree.
func FromJSON(data []byte) (*Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	return decodeValue(dec)
}

// FromAny converts a decoded Go value (as produced by encoding/json with
// UseNumber, or by lo/cast helpers) into the tagged-variant tree.
func FromAny(x any) *Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case json.Number:
		return NumberFromJSON(t)
	case float64:
		return Number(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case []any:
		out := make([]*Value, len(t))
		for i, e := range t {
			out[i] = FromAny(e)
		}

		return Array(out...)
	case map[string]any:
		obj := newObject()
		for k, e := range t {
			obj.Set(k, FromAny(e))
		}

		return &Value{kind: KindObject, obj: obj}
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return Null()
		}

		v, err := FromJSON(b)
		if err != nil {
			return Null()
		}

		return v
	}
}

func decodeValue(dec *json.Decoder) (*Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (*Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return NumberFromJSON(t), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			arr := []*Value{}

			for dec.More() {
				elemTok, err := dec.Token()
				if err != nil {
					return nil, err
				}

				elem, err := decodeToken(dec, elemTok)
				if err != nil {
					return nil, err
				}

				arr = append(arr, elem)
			}

			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}

			return Array(arr...), nil
		case '{':
			obj := newObject()

			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}

				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("value: expected object key, got %v", keyTok)
				}

				valTok, err := dec.Token()
				if err != nil {
					return nil, err
				}

				val, err := decodeToken(dec, valTok)
				if err != nil {
					return nil, err
				}

				obj.Set(key, val)
			}

			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}

			return &Value{kind: KindObject, obj: obj}, nil
		default:
			return nil, fmt.Errorf("value: unexpected delimiter %v", t)
		}
	default:
		return nil, fmt.Errorf("value: unexpected token %v (%T)", tok, tok)
	}
}
