package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaturanga836/docstore/internal/common"
	"github.com/chaturanga836/docstore/internal/value"
	"github.com/chaturanga836/docstore/internal/wal"
)

func TestMatchPattern_SingleWildcardMatchesExactlyOneSegment(t *testing.T) {
	assert.True(t, matchPattern(value.ParsePath("users.*.name"), value.ParsePath("users.1.name")))
	assert.False(t, matchPattern(value.ParsePath("users.*.name"), value.ParsePath("users.1.2.name")))
	assert.False(t, matchPattern(value.ParsePath("users.*"), value.ParsePath("users")))
}

func TestMatchPattern_DoubleWildcardMatchesAnyRemainder(t *testing.T) {
	assert.True(t, matchPattern(value.ParsePath("users.**"), value.ParsePath("users.1.name")))
	assert.True(t, matchPattern(value.ParsePath("users.**"), value.ParsePath("users")))
	assert.True(t, matchPattern(value.ParsePath("**"), value.ParsePath("anything.at.all")))
}

func TestMatchPattern_ExactPathRequiresNoExtraSegments(t *testing.T) {
	assert.True(t, matchPattern(value.ParsePath("a.b"), value.ParsePath("a.b")))
	assert.False(t, matchPattern(value.ParsePath("a.b"), value.ParsePath("a.b.c")))
	assert.False(t, matchPattern(value.ParsePath("a.b.c"), value.ParsePath("a.b")))
}

func TestSubscribe_FiresOnMatchingPathWithOldAndNewValues(t *testing.T) {
	db := testOpen(t, Options{Durability: wal.DurabilitySync})

	type event struct {
		path           string
		newVal, oldVal value.Value
	}
	var got []event
	db.Subscribe("users.*", func(path string, newVal, oldVal value.Value) {
		got = append(got, event{path, newVal, oldVal})
	})

	_, _, err := db.Set("users.alice", value.NewString("first"))
	require.NoError(t, err)
	_, _, err = db.Set("users.alice", value.NewString("second"))
	require.NoError(t, err)
	_, _, err = db.Set("other.thing", value.NewString("ignored"))
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.True(t, got[0].oldVal.IsNull())
	s, _ := got[0].newVal.StringVal()
	assert.Equal(t, "first", s)

	oldS, _ := got[1].oldVal.StringVal()
	assert.Equal(t, "first", oldS)
	newS, _ := got[1].newVal.StringVal()
	assert.Equal(t, "second", newS)
}

func TestSubscribe_UnsubscribeStopsFurtherNotifications(t *testing.T) {
	db := testOpen(t, Options{Durability: wal.DurabilitySync})

	count := 0
	unsub := db.Subscribe("**", func(path string, newVal, oldVal value.Value) {
		count++
	})
	_, _, err := db.Set("a", value.NewNumber(1))
	require.NoError(t, err)
	unsub()
	_, _, err = db.Set("b", value.NewNumber(2))
	require.NoError(t, err)

	assert.Equal(t, 1, count)
}

func TestBefore_CanRewriteValuePriorToValidationAndApply(t *testing.T) {
	db := testOpen(t, Options{Durability: wal.DurabilitySync})

	db.Before("set", "prices.*", func(path string, v value.Value) (value.Value, error) {
		n, _ := v.NumberVal()
		return value.NewNumber(n + 1), nil
	})

	_, _, err := db.Set("prices.widget", value.NewNumber(9))
	require.NoError(t, err)

	v, _ := db.Get("prices.widget")
	n, _ := v.NumberVal()
	assert.Equal(t, 10.0, n)
}

func TestBefore_ErrorAbortsTheMutation(t *testing.T) {
	db := testOpen(t, Options{Durability: wal.DurabilitySync})

	db.Before("set", "**", func(path string, v value.Value) (value.Value, error) {
		return v, common.NewValidationError("rejected")
	})

	_, _, err := db.Set("x", value.NewNumber(1))
	assert.Error(t, err)
	assert.False(t, db.Has("x"))
}

func TestAfter_RunsOnceMutationHasBeenAppliedAndNotified(t *testing.T) {
	db := testOpen(t, Options{Durability: wal.DurabilitySync})

	var sawCommittedValue bool
	db.After("set", "**", func(path string, newVal, oldVal value.Value) {
		v, ok := db.Get(path)
		sawCommittedValue = ok && value.Equal(v, newVal)
	})

	_, _, err := db.Set("x", value.NewNumber(1))
	require.NoError(t, err)
	assert.True(t, sawCommittedValue)
}

func TestAfter_OnlyRunsForMatchingMethod(t *testing.T) {
	db := testOpen(t, Options{Durability: wal.DurabilitySync})

	var deletes int
	db.After("delete", "**", func(path string, newVal, oldVal value.Value) {
		deletes++
	})

	_, _, err := db.Set("x", value.NewNumber(1))
	require.NoError(t, err)
	assert.Equal(t, 0, deletes)

	_, _, err = db.Delete("x")
	require.NoError(t, err)
	assert.Equal(t, 1, deletes)
}

func TestBefore_DispatchesForEveryMutatingMethodNotJustSet(t *testing.T) {
	db := testOpen(t, Options{Durability: wal.DurabilitySync})

	var seen []string
	record := func(method string) BeforeHook {
		return func(path string, v value.Value) (value.Value, error) {
			seen = append(seen, method)
			return v, nil
		}
	}
	db.Before("delete", "**", record("delete"))
	db.Before("push", "**", record("push"))
	db.Before("pull", "**", record("pull"))
	db.Before("add", "**", record("add"))
	db.Before("subtract", "**", record("subtract"))

	_, _, err := db.Set("tags", value.NewArray(value.NewString("a")))
	require.NoError(t, err)
	_, err = db.Push("tags", value.NewString("b"))
	require.NoError(t, err)
	_, err = db.Pull("tags", value.NewString("a"))
	require.NoError(t, err)
	_, err = db.Add("counter", 3)
	require.NoError(t, err)
	_, err = db.Subtract("counter", 1)
	require.NoError(t, err)
	_, _, err = db.Delete("tags")
	require.NoError(t, err)

	assert.Equal(t, []string{"push", "pull", "add", "subtract", "delete"}, seen)
}

func TestBefore_CanRewriteDeltaOnAdd(t *testing.T) {
	db := testOpen(t, Options{Durability: wal.DurabilitySync})

	db.Before("add", "counter", func(path string, v value.Value) (value.Value, error) {
		n, _ := v.NumberVal()
		return value.NewNumber(n * 2), nil
	})

	result, err := db.Add("counter", 5)
	require.NoError(t, err)
	assert.Equal(t, 10.0, result)
}
