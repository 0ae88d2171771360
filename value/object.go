package value

import "bytes"

// Object is an order-preserving string-keyed map of *Value, the backing
// store for KindObject values. Insertion order is preserved across Set so
// that re-serializing an object a provider mapping table wrote into
// produces a stable, reproducible byte sequence (spec.md §8 invariant 1).
type Object struct {
	keys   []string
	values map[string]*Value
}

func newObject() *Object {
	return &Object{values: make(map[string]*Value)}
}

// Get returns the value at key and whether it was present.
func (o *Object) Get(key string) (*Value, bool) {
	if o == nil {
		return nil, false
	}

	v, ok := o.values[key]

	return v, ok
}

// Set inserts or replaces the value at key, preserving the original
// position on replace and appending on first insertion.
func (o *Object) Set(key string, v *Value) {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}

	o.values[key] = v
}

// Delete removes key, returning the removed value (if any) and whether it
// was present.
func (o *Object) Delete(key string) (*Value, bool) {
	v, ok := o.values[key]
	if !ok {
		return nil, false
	}

	delete(o.values, key)

	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}

	return v, true
}

// Keys returns the object's keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}

	out := make([]string, len(o.keys))
	copy(out, o.keys)

	return out
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}

	return len(o.keys)
}

func (o *Object) clone() *Object {
	out := newObject()

	for _, k := range o.keys {
		out.Set(k, o.values[k].Clone())
	}

	return out
}

func (o *Object) equal(other *Object) bool {
	if o.Len() != other.Len() {
		return false
	}

	for _, k := range o.keys {
		ov, ok := other.Get(k)
		if !ok {
			return false
		}

		if v, _ := o.Get(k); !v.Equal(ov) {
			return false
		}
	}

	return true
}

// MarshalJSON implements json.Marshaler, emitting keys in insertion order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}

		kb, err := (&Value{kind: KindString, s: k}).MarshalJSON()
		if err != nil {
			return nil, err
		}

		buf.Write(kb)
		buf.WriteByte(':')

		v := o.values[k]

		vb, err := v.MarshalJSON()
		if err != nil {
			return nil, err
		}

		buf.Write(vb)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}
