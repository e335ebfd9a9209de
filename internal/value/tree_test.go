package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGet_NestedObjects(t *testing.T) {
	root := NewObject()
	root, _, _, err := Set(root, ParsePath("user.name"), NewString("Alice"))
	require.NoError(t, err)

	got, ok := Get(root, ParsePath("user.name"))
	require.True(t, ok)
	s, _ := got.StringVal()
	assert.Equal(t, "Alice", s)

	user, ok := Get(root, ParsePath("user"))
	require.True(t, ok)
	name, ok := user.Field("name")
	require.True(t, ok)
	s2, _ := name.StringVal()
	assert.Equal(t, "Alice", s2)
}

func TestSet_CreatesIntermediateObjectsNotArrays(t *testing.T) {
	root := NewObject()
	root, _, _, err := Set(root, ParsePath("a.b.c"), NewNumber(1))
	require.NoError(t, err)

	a, ok := Get(root, ParsePath("a"))
	require.True(t, ok)
	assert.True(t, a.IsObject())
}

func TestSet_NumericSegmentOnMissingParentCreatesObjectNotArray(t *testing.T) {
	root := NewObject()
	root, _, _, err := Set(root, ParsePath("tags.0"), NewString("v"))
	require.NoError(t, err)

	tags, ok := Get(root, ParsePath("tags"))
	require.True(t, ok)
	assert.True(t, tags.IsObject())

	got, ok := Get(root, ParsePath("tags.0"))
	require.True(t, ok)
	s, _ := got.StringVal()
	assert.Equal(t, "v", s)
}

func TestSet_NumericSegmentDeepUnderMissingParentCreatesNestedObjects(t *testing.T) {
	root := NewObject()
	root, _, _, err := Set(root, ParsePath("a.0.b"), NewNumber(1))
	require.NoError(t, err)

	got, ok := Get(root, ParsePath("a.0.b"))
	require.True(t, ok)
	n, _ := got.NumberVal()
	assert.Equal(t, 1.0, n)

	a, ok := Get(root, ParsePath("a"))
	require.True(t, ok)
	assert.True(t, a.IsObject())
}

func TestSet_RootMustBeObject(t *testing.T) {
	root := NewObject()
	_, _, _, err := Set(root, Path{}, NewNumber(1))
	require.Error(t, err)
}

func TestSet_ArrayIndexAppendExtension(t *testing.T) {
	root := NewObject()
	root, _, _, err := Set(root, ParsePath("tags"), NewArray(NewString("a")))
	require.NoError(t, err)

	root, _, _, err = Set(root, ParsePath("tags.1"), NewString("b"))
	require.NoError(t, err)

	got, _ := Get(root, ParsePath("tags"))
	items, _ := got.Items()
	require.Len(t, items, 2)
	s1, _ := items[1].StringVal()
	assert.Equal(t, "b", s1)
}

func TestSet_ArrayIndexOutOfRange(t *testing.T) {
	root := NewObject()
	root, _, _, err := Set(root, ParsePath("tags"), NewArray(NewString("a")))
	require.NoError(t, err)

	_, _, _, err = Set(root, ParsePath("tags.5"), NewString("x"))
	require.Error(t, err)
}

func TestGet_MissingSegmentIsAbsentNotError(t *testing.T) {
	root := NewObject()
	_, ok := Get(root, ParsePath("missing.deep.path"))
	assert.False(t, ok)
}

func TestDelete_RemovesKey(t *testing.T) {
	root := NewObject()
	root, _, _, err := Set(root, ParsePath("a.b"), NewNumber(1))
	require.NoError(t, err)

	root, old, had, err := Delete(root, ParsePath("a.b"))
	require.NoError(t, err)
	require.True(t, had)
	n, _ := old.NumberVal()
	assert.Equal(t, 1.0, n)
	assert.False(t, Has(root, ParsePath("a.b")))
}

func TestDelete_AbsentIsNoOp(t *testing.T) {
	root := NewObject()
	newRoot, _, had, err := Delete(root, ParsePath("nope"))
	require.NoError(t, err)
	assert.False(t, had)
	assert.True(t, Equal(root, newRoot))
}

func TestPush_DedupesByDeepEquality(t *testing.T) {
	root := NewObject()
	root, _, _, err := Set(root, ParsePath("tags"), NewArray(NewString("a")))
	require.NoError(t, err)

	root, result, err := Push(root, ParsePath("tags"), NewString("b"), NewString("b"), NewString("c"))
	require.NoError(t, err)

	items, _ := result.Items()
	require.Len(t, items, 3)
	s0, _ := items[0].StringVal()
	s1, _ := items[1].StringVal()
	s2, _ := items[2].StringVal()
	assert.Equal(t, []string{"a", "b", "c"}, []string{s0, s1, s2})

	got, _ := Get(root, ParsePath("tags"))
	assert.True(t, Equal(got, result))
}

func TestPush_OnAbsentCreatesArray(t *testing.T) {
	root := NewObject()
	_, result, err := Push(root, ParsePath("fresh"), NewString("x"), NewString("x"))
	require.NoError(t, err)
	items, _ := result.Items()
	require.Len(t, items, 1)
}

func TestPush_FailsOnNonArray(t *testing.T) {
	root := NewObject()
	root, _, _, err := Set(root, ParsePath("n"), NewNumber(1))
	require.NoError(t, err)

	_, _, err = Push(root, ParsePath("n"), NewNumber(2))
	require.Error(t, err)
}

func TestPull_RemovesDeepEqualMatches(t *testing.T) {
	root := NewObject()
	root, _, _, err := Set(root, ParsePath("tags"), NewArray(NewString("a"), NewString("b"), NewString("c")))
	require.NoError(t, err)

	root, result, err := Pull(root, ParsePath("tags"), NewString("a"))
	require.NoError(t, err)

	items, _ := result.Items()
	require.Len(t, items, 2)
	got, _ := Get(root, ParsePath("tags"))
	assert.True(t, Equal(got, result))
}

func TestAddNumber_StartsFromZeroWhenAbsent(t *testing.T) {
	root := NewObject()
	root, result, err := AddNumber(root, ParsePath("counter"), 5)
	require.NoError(t, err)
	assert.Equal(t, 5.0, result)

	root, result, err = AddNumber(root, ParsePath("counter"), 7)
	require.NoError(t, err)
	assert.Equal(t, 12.0, result)

	got, _ := Get(root, ParsePath("counter"))
	n, _ := got.NumberVal()
	assert.Equal(t, 12.0, n)
}

func TestAddNumber_FailsOnNonNumber(t *testing.T) {
	root := NewObject()
	root, _, _, err := Set(root, ParsePath("s"), NewString("x"))
	require.NoError(t, err)

	_, _, err = AddNumber(root, ParsePath("s"), 1)
	require.Error(t, err)
}

func TestScenario_FromSpecWalkthrough(t *testing.T) {
	root := NewObject()
	root, _, _, err := Set(root, ParsePath("user.name"), NewString("Alice"))
	require.NoError(t, err)

	v, ok := Get(root, ParsePath("user.name"))
	require.True(t, ok)
	s, _ := v.StringVal()
	assert.Equal(t, "Alice", s)

	root, _, _, err = Set(root, ParsePath("tags"), NewArray(NewString("a")))
	require.NoError(t, err)
	root, _, err = Push(root, ParsePath("tags"), NewString("b"), NewString("b"), NewString("c"))
	require.NoError(t, err)
	got, _ := Get(root, ParsePath("tags"))
	items, _ := got.Items()
	require.Len(t, items, 3)

	root, _, err = Pull(root, ParsePath("tags"), NewString("a"))
	require.NoError(t, err)
	got, _ = Get(root, ParsePath("tags"))
	items, _ = got.Items()
	require.Len(t, items, 2)

	root, _, _, err = Set(root, ParsePath("counter"), NewNumber(10))
	require.NoError(t, err)
	_, sum, err := AddNumber(root, ParsePath("counter"), 5)
	require.NoError(t, err)
	assert.Equal(t, 15.0, sum)
}
