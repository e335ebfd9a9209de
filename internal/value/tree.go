package value

import (
	"strconv"

	"github.com/chaturanga836/docstore/internal/common"
)

// Get navigates root by path, returning the addressed value and whether it
// was present. Reading through a missing or non-container segment yields
// absent rather than an error (spec §4.1/§4.2).
func Get(root Value, p Path) (Value, bool) {
	cur := root
	for _, seg := range p {
		switch cur.kind {
		case Object:
			v, ok := cur.obj.get(seg)
			if !ok {
				return Value{}, false
			}
			cur = v
		case Array:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(cur.arr) {
				return Value{}, false
			}
			cur = cur.arr[idx]
		default:
			return Value{}, false
		}
	}
	return cur, true
}

// Has reports whether the path resolves to a present value.
func Has(root Value, p Path) bool {
	_, ok := Get(root, p)
	return ok
}

// Set writes val at path p, returning a new root and the previous value (if
// any). An empty path replaces the entire root, which must stay an Object.
// Missing intermediate segments are created as Object nodes (never arrays).
func Set(root Value, p Path, val Value) (newRoot Value, old Value, hadOld bool, err error) {
	if p.IsRoot() {
		if !val.IsObject() {
			return root, Value{}, false, common.NewTypeError("set: root value must be an object")
		}
		return val, root, true, nil
	}
	old, hadOld = Get(root, p)
	newRoot, err = setAt(root, p, val)
	if err != nil {
		return root, Value{}, false, err
	}
	return newRoot, old, hadOld, nil
}

// setAt returns a copy of node with val placed at path p (non-empty),
// creating intermediate Object nodes as needed.
func setAt(node Value, p Path, val Value) (Value, error) {
	seg, rest := p.Head()

	if node.kind == Array {
		idx, isIdx := parseIndex(seg)
		if !isIdx {
			return Value{}, common.NewPathError("set: path segment %q addresses an object key but node is %s", seg, node.kind)
		}
		arr := append([]Value(nil), node.arr...)
		if len(rest) == 0 {
			switch {
			case idx < len(arr):
				arr[idx] = val
			case idx == len(arr):
				arr = append(arr, val)
			default:
				return Value{}, common.NewPathError("set: array index %d out of range (len %d)", idx, len(arr))
			}
			return Value{kind: Array, arr: arr}, nil
		}
		if idx >= len(arr) {
			return Value{}, common.NewPathError("set: array index %d out of range (len %d)", idx, len(arr))
		}
		child, err := setAt(arr[idx], rest, val)
		if err != nil {
			return Value{}, err
		}
		arr[idx] = child
		return Value{kind: Array, arr: arr}, nil
	}

	var o *object
	switch node.kind {
	case Object:
		o = node.obj.clone()
	case Null:
		o = newObject()
	default:
		return Value{}, common.NewPathError("set: path segment %q addresses an object key but node is %s", seg, node.kind)
	}
	if len(rest) == 0 {
		o.set(seg, val)
		return Value{kind: Object, obj: o}, nil
	}
	child, ok := o.get(seg)
	if !ok {
		child = NewNull()
	}
	newChild, err := setAt(child, rest, val)
	if err != nil {
		return Value{}, err
	}
	o.set(seg, newChild)
	return Value{kind: Object, obj: o}, nil
}

// Delete removes the value at path p, returning a new root and the removed
// value (if any). Deleting an absent path is a no-op.
func Delete(root Value, p Path) (newRoot Value, old Value, hadOld bool, err error) {
	if p.IsRoot() {
		return root, Value{}, false, common.NewPathError("delete: cannot delete the root")
	}
	old, hadOld = Get(root, p)
	if !hadOld {
		return root, Value{}, false, nil
	}
	parent, last := p.Parent()
	newRoot, err = deleteAt(root, parent, last)
	if err != nil {
		return root, Value{}, false, err
	}
	return newRoot, old, hadOld, nil
}

func deleteAt(root Value, parentPath Path, key string) (Value, error) {
	if parentPath.IsRoot() {
		return removeChild(root, key)
	}
	parent, ok := Get(root, parentPath)
	if !ok {
		return root, nil
	}
	newParent, err := removeChild(parent, key)
	if err != nil {
		return Value{}, err
	}
	return setAt(root, parentPath, newParent)
}

func removeChild(node Value, key string) (Value, error) {
	if idx, isIdx := parseIndex(key); isIdx {
		if node.kind != Array {
			return Value{}, common.NewPathError("delete: path segment %q addresses an array index but node is %s", key, node.kind)
		}
		if idx < 0 || idx >= len(node.arr) {
			return node, nil
		}
		arr := append([]Value(nil), node.arr[:idx]...)
		arr = append(arr, node.arr[idx+1:]...)
		return Value{kind: Array, arr: arr}, nil
	}
	if node.kind != Object {
		return Value{}, common.NewPathError("delete: path segment %q addresses an object key but node is %s", key, node.kind)
	}
	o := node.obj.clone()
	o.delete(key)
	return Value{kind: Object, obj: o}, nil
}

// Push appends items to the array at path p, skipping any item that is
// deep-equal to an item already present (including earlier items within the
// same call). Fails with TypeError if the existing value is present and not
// an Array.
func Push(root Value, p Path, items ...Value) (newRoot Value, result Value, err error) {
	existing, ok := Get(root, p)
	var arr []Value
	switch {
	case !ok:
		arr = nil
	case existing.IsArray():
		arr = append([]Value(nil), existing.arr...)
	default:
		return root, Value{}, common.NewTypeError("push: value at path is %s, not array", existing.kind)
	}
	for _, it := range items {
		if !containsEqual(arr, it) {
			arr = append(arr, it)
		}
	}
	result = Value{kind: Array, arr: arr}
	newRoot, _, _, err = Set(root, p, result)
	if err != nil {
		return root, Value{}, err
	}
	return newRoot, result, nil
}

// Pull recomputes the array at path p with every item deep-equal to any of
// items removed, then sets the result.
func Pull(root Value, p Path, items ...Value) (newRoot Value, result Value, err error) {
	existing, ok := Get(root, p)
	if !ok {
		result = Value{kind: Array}
		newRoot, _, _, err = Set(root, p, result)
		return newRoot, result, err
	}
	if !existing.IsArray() {
		return root, Value{}, common.NewTypeError("pull: value at path is %s, not array", existing.kind)
	}
	var kept []Value
	for _, cur := range existing.arr {
		if !containsEqual(items, cur) {
			kept = append(kept, cur)
		}
	}
	result = Value{kind: Array, arr: kept}
	newRoot, _, _, err = Set(root, p, result)
	if err != nil {
		return root, Value{}, err
	}
	return newRoot, result, nil
}

// AddNumber performs a numeric read-modify-write, starting from 0 if the
// path is absent; fails with TypeError if present and not a Number.
func AddNumber(root Value, p Path, delta float64) (newRoot Value, result float64, err error) {
	existing, ok := Get(root, p)
	base := 0.0
	if ok {
		n, isNum := existing.NumberVal()
		if !isNum {
			return root, 0, common.NewTypeError("add: value at path is %s, not number", existing.kind)
		}
		base = n
	}
	result = base + delta
	newRoot, _, _, err = Set(root, p, NewNumber(result))
	if err != nil {
		return root, 0, err
	}
	return newRoot, result, nil
}

func containsEqual(haystack []Value, needle Value) bool {
	for _, v := range haystack {
		if Equal(v, needle) {
			return true
		}
	}
	return false
}

func parseIndex(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	idx, err := strconv.Atoi(seg)
	if err != nil {
		return 0, false
	}
	return idx, true
}

// Clone returns a deep copy of v: arrays and objects are copied
// recursively, so the result shares no containers with v. Because Value
// mutation is already copy-on-write, a plain assignment is usually enough
// to keep a handle unaffected by later Sets.
func Clone(v Value) Value {
	switch v.kind {
	case Array:
		arr := make([]Value, len(v.arr))
		for i, e := range v.arr {
			arr[i] = Clone(e)
		}
		return Value{kind: Array, arr: arr}
	case Object:
		o := newObject()
		for _, k := range v.obj.keys {
			o.set(k, Clone(v.obj.vals[k]))
		}
		return Value{kind: Object, obj: o}
	default:
		return v
	}
}
