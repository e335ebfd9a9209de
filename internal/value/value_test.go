package value

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Accessors(t *testing.T) {
	require.True(t, NewNull().IsNull())
	b, ok := NewBool(true).Bool()
	require.True(t, ok)
	assert.True(t, b)

	n, ok := NewNumber(3.5).NumberVal()
	require.True(t, ok)
	assert.Equal(t, 3.5, n)

	s, ok := NewString("hi").StringVal()
	require.True(t, ok)
	assert.Equal(t, "hi", s)
}

func TestValue_ObjectOrderPreserved(t *testing.T) {
	o := NewObject().WithField("z", NewNumber(1)).WithField("a", NewNumber(2)).WithField("m", NewNumber(3))
	assert.Equal(t, []string{"z", "a", "m"}, o.Keys())
}

func TestValue_WithFieldIsCopyOnWrite(t *testing.T) {
	base := NewObject().WithField("x", NewNumber(1))
	mutated := base.WithField("x", NewNumber(2))

	bx, _ := base.Field("x")
	mx, _ := mutated.Field("x")
	bv, _ := bx.NumberVal()
	mv, _ := mx.NumberVal()
	assert.Equal(t, 1.0, bv)
	assert.Equal(t, 2.0, mv)
}

func TestEqual_Deep(t *testing.T) {
	a := NewObject().WithField("a", NewNumber(1)).WithField("b", NewArray(NewString("x")))
	b := NewObject().WithField("b", NewArray(NewString("x"))).WithField("a", NewNumber(1))
	assert.True(t, Equal(a, b), "object equality must be unordered")

	c := a.WithField("b", NewArray(NewString("y")))
	assert.False(t, Equal(a, c))
}

func TestJSONRoundTrip_PreservesOrder(t *testing.T) {
	v := NewObject().
		WithField("zeta", NewNumber(1)).
		WithField("alpha", NewString("hi")).
		WithField("nested", NewObject().WithField("inner", NewBool(true)))

	data, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":1,"alpha":"hi","nested":{"inner":true}}`, string(data))

	var decoded Value
	require.NoError(t, decoded.UnmarshalJSON(data))
	if diff := cmp.Diff(v, decoded, cmp.AllowUnexported(Value{}, object{})); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"zeta", "alpha", "nested"}, decoded.Keys())
}

func TestJSONRoundTrip_Array(t *testing.T) {
	v := NewArray(NewNumber(1), NewString("two"), NewNull())
	data, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `[1,"two",null]`, string(data))

	var decoded Value
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.True(t, Equal(v, decoded))
}

func TestFromAny(t *testing.T) {
	in := map[string]any{"name": "Alice", "age": float64(30)}
	v, err := FromAny(in)
	require.NoError(t, err)
	require.True(t, v.IsObject())

	name, ok := v.Field("name")
	require.True(t, ok)
	s, _ := name.StringVal()
	assert.Equal(t, "Alice", s)
}
