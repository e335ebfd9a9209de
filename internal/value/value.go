// Package value implements the store's dynamically-typed tree: a tagged
// union (Value) addressed by dot-separated paths, with copy-on-write
// mutation so that a reader holding an old root never observes a partial
// write (spec §3, §5).
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind is the tag of a Value's variant.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// object is the ordered map backing an Object Value. Keys preserve
// insertion order, per spec §3; mutation always clones (see clone()) so
// that other Values sharing the same *object are unaffected.
type object struct {
	keys []string
	vals map[string]Value
}

func newObject() *object {
	return &object{vals: make(map[string]Value)}
}

func (o *object) get(key string) (Value, bool) {
	v, ok := o.vals[key]
	return v, ok
}

func (o *object) set(key string, v Value) {
	if _, exists := o.vals[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

func (o *object) delete(key string) {
	if _, exists := o.vals[key]; !exists {
		return
	}
	delete(o.vals, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// clone returns a shallow copy: a fresh key slice and map, but the same
// child Values (which are themselves copy-on-write at their own level).
func (o *object) clone() *object {
	c := &object{
		keys: append([]string(nil), o.keys...),
		vals: make(map[string]Value, len(o.vals)),
	}
	for k, v := range o.vals {
		c.vals[k] = v
	}
	return c
}

// Value is a tagged union over the JSON data model: Null, Bool, Number,
// String, Array, Object. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  *object
}

// NewNull returns the Null value.
func NewNull() Value { return Value{kind: Null} }

// NewBool wraps a bool.
func NewBool(b bool) Value { return Value{kind: Bool, b: b} }

// NewNumber wraps a float64. Integers outside the exact-double range are
// not guaranteed (spec §3).
func NewNumber(n float64) Value { return Value{kind: Number, n: n} }

// NewString wraps a string.
func NewString(s string) Value { return Value{kind: String, s: s} }

// NewArray wraps an ordered sequence of Values. The slice is not copied;
// callers should not mutate it after handing it to NewArray.
func NewArray(items ...Value) Value {
	return Value{kind: Array, arr: items}
}

// NewObject returns an empty Object value.
func NewObject() Value {
	return Value{kind: Object, obj: newObject()}
}

// Kind returns the value's variant tag.
func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool   { return v.kind == Null }
func (v Value) IsBool() bool   { return v.kind == Bool }
func (v Value) IsNumber() bool { return v.kind == Number }
func (v Value) IsString() bool { return v.kind == String }
func (v Value) IsArray() bool  { return v.kind == Array }
func (v Value) IsObject() bool { return v.kind == Object }

// Bool returns the boolean payload; ok is false if the Kind is not Bool.
func (v Value) Bool() (bool, bool) {
	if v.kind != Bool {
		return false, false
	}
	return v.b, true
}

// NumberVal returns the numeric payload; ok is false if the Kind is not Number.
func (v Value) NumberVal() (float64, bool) {
	if v.kind != Number {
		return 0, false
	}
	return v.n, true
}

// StringVal returns the string payload; ok is false if the Kind is not String.
func (v Value) StringVal() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.s, true
}

// Items returns the array elements; nil, false if the Kind is not Array.
func (v Value) Items() ([]Value, bool) {
	if v.kind != Array {
		return nil, false
	}
	return v.arr, true
}

// Len returns the number of elements (Array) or keys (Object), 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.arr)
	case Object:
		return len(v.obj.keys)
	default:
		return 0
	}
}

// Keys returns an object's keys in insertion order; nil if not an Object.
func (v Value) Keys() []string {
	if v.kind != Object {
		return nil
	}
	return append([]string(nil), v.obj.keys...)
}

// Field looks up a key on an Object value.
func (v Value) Field(key string) (Value, bool) {
	if v.kind != Object {
		return Value{}, false
	}
	return v.obj.get(key)
}

// WithField returns a copy of the object with key set to val, leaving v
// untouched (copy-on-write at this level).
func (v Value) WithField(key string, val Value) Value {
	var o *object
	if v.kind == Object {
		o = v.obj.clone()
	} else {
		o = newObject()
	}
	o.set(key, val)
	return Value{kind: Object, obj: o}
}

// WithoutField returns a copy of the object with key removed.
func (v Value) WithoutField(key string) Value {
	if v.kind != Object {
		return v
	}
	o := v.obj.clone()
	o.delete(key)
	return Value{kind: Object, obj: o}
}

// Equal reports deep equality: same variant and recursively equal
// components, with object equality unordered key-by-key (spec §4.1).
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Null:
		return true
	case Bool:
		return a.b == b.b
	case Number:
		return a.n == b.n
	case String:
		return a.s == b.s
	case Array:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case Object:
		if len(a.obj.keys) != len(b.obj.keys) {
			return false
		}
		for _, k := range a.obj.keys {
			av := a.obj.vals[k]
			bv, ok := b.obj.vals[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// MarshalJSON encodes the value preserving object key insertion order,
// which encoding/json's native map support cannot do.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		data, err := json.Marshal(v.n)
		if err != nil {
			return err
		}
		buf.Write(data)
	case String:
		data, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(data)
	case Array:
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, k := range v.obj.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := v.obj.vals[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("value: unknown kind %d", v.kind)
	}
	return nil
}

// UnmarshalJSON decodes JSON into the value, preserving object key order
// by walking the token stream instead of decoding into a map.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	decoded, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		default:
			return Value{}, fmt.Errorf("value: unexpected delimiter %q", t)
		}
	case nil:
		return NewNull(), nil
	case bool:
		return NewBool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return NewNumber(f), nil
	case string:
		return NewString(t), nil
	default:
		return Value{}, fmt.Errorf("value: unexpected token %T", tok)
	}
}

func decodeObject(dec *json.Decoder) (Value, error) {
	o := newObject()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return Value{}, fmt.Errorf("value: object key is not a string")
		}
		val, err := decodeValue(dec)
		if err != nil {
			return Value{}, err
		}
		o.set(key, val)
	}
	if _, err := dec.Token(); err != nil { // consume closing '}'
		return Value{}, err
	}
	return Value{kind: Object, obj: o}, nil
}

func decodeArray(dec *json.Decoder) (Value, error) {
	var items []Value
	for dec.More() {
		val, err := decodeValue(dec)
		if err != nil {
			return Value{}, err
		}
		items = append(items, val)
	}
	if _, err := dec.Token(); err != nil { // consume closing ']'
		return Value{}, err
	}
	return Value{kind: Array, arr: items}, nil
}

// FromAny converts a plain Go value (as produced by encoding/json's
// generic interface{} decoding, e.g. for host-supplied literals) into a
// Value tree.
func FromAny(in any) (Value, error) {
	switch t := in.(type) {
	case nil:
		return NewNull(), nil
	case bool:
		return NewBool(t), nil
	case float64:
		return NewNumber(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return NewNumber(f), nil
	case string:
		return NewString(t), nil
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			cv, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			items[i] = cv
		}
		return NewArray(items...), nil
	case map[string]any:
		o := newObject()
		for k, e := range t {
			cv, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			o.set(k, cv)
		}
		return Value{kind: Object, obj: o}, nil
	default:
		return Value{}, fmt.Errorf("value: unsupported Go type %T", in)
	}
}
