package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaturanga836/docstore/internal/exec"
	"github.com/chaturanga836/docstore/internal/index"
	"github.com/chaturanga836/docstore/internal/value"
	"github.com/chaturanga836/docstore/internal/wal"
)

func seedUsers(t *testing.T, db *DB) {
	t.Helper()
	users := map[string]map[string]any{
		"1": {"name": "alice", "age": float64(30)},
		"2": {"name": "bob", "age": float64(25)},
		"3": {"name": "carol", "age": float64(40)},
	}
	for id, fields := range users {
		doc, err := value.FromAny(fields)
		require.NoError(t, err)
		_, _, err = db.Set("users."+id, doc)
		require.NoError(t, err)
	}
}

func TestQuery_FiltersCollectionByField(t *testing.T) {
	db := testOpen(t, Options{Durability: wal.DurabilitySync})
	seedUsers(t, db)

	items, err := db.Query(context.Background(), "users", []exec.Filter{
		{Field: "age", Op: exec.OpGte, Value: value.NewNumber(30)},
	})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestQuery_SeedsFromIndexOnEqFilter(t *testing.T) {
	db := testOpen(t, Options{
		Durability: wal.DurabilitySync,
		Indices: []index.Declaration{
			{Name: "by_name", CollectionPath: "users", Field: "name"},
		},
	})
	seedUsers(t, db)

	items, err := db.Query(context.Background(), "users", []exec.Filter{
		{Field: "name", Op: exec.OpEq, Value: value.NewString("bob")},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "users.2", items[0].Path)
}

func TestQuery_AbsentCollectionReturnsNoItems(t *testing.T) {
	db := testOpen(t, Options{Durability: wal.DurabilitySync})
	items, err := db.Query(context.Background(), "missing", nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestAggregate_SumAndAvgOverField(t *testing.T) {
	db := testOpen(t, Options{Durability: wal.DurabilitySync})
	seedUsers(t, db)

	sum, err := db.Aggregate(context.Background(), "users", exec.AggSum, "age")
	require.NoError(t, err)
	n, _ := sum.NumberVal()
	assert.Equal(t, 95.0, n)

	avg, err := db.Aggregate(context.Background(), "users", exec.AggAvg, "age")
	require.NoError(t, err)
	n, _ = avg.NumberVal()
	assert.InDelta(t, 31.666, n, 0.01)
}

func TestAggregate_CountOverEmptyCollectionIsZero(t *testing.T) {
	db := testOpen(t, Options{Durability: wal.DurabilitySync})
	count, err := db.Aggregate(context.Background(), "users", exec.AggCount, "")
	require.NoError(t, err)
	n, _ := count.NumberVal()
	assert.Equal(t, 0.0, n)
}

func TestLookup_AttachesMatchingRightBucketPreservingLeftOrder(t *testing.T) {
	db := testOpen(t, Options{Durability: wal.DurabilitySync})

	orders := map[string]map[string]any{
		"1": {"userId": "u1"},
		"2": {"userId": "u2"},
	}
	for _, id := range []string{"1", "2"} {
		doc, err := value.FromAny(orders[id])
		require.NoError(t, err)
		_, _, err = db.Set("orders."+id, doc)
		require.NoError(t, err)
	}
	users := map[string]map[string]any{
		"1": {"id": "u1", "name": "alice"},
	}
	for id, fields := range users {
		doc, err := value.FromAny(fields)
		require.NoError(t, err)
		_, _, err = db.Set("users."+id, doc)
		require.NoError(t, err)
	}

	joined, err := db.Lookup(context.Background(), "orders", "users", "userId", "id", "user")
	require.NoError(t, err)
	require.Len(t, joined, 2)
	assert.Equal(t, "orders.1", joined[0].Path)
	assert.Equal(t, "orders.2", joined[1].Path)

	bucket, ok := joined[0].Doc.Field("user")
	require.True(t, ok)
	assert.Equal(t, 1, bucket.Len())

	emptyBucket, ok := joined[1].Doc.Field("user")
	require.True(t, ok)
	assert.Equal(t, 0, emptyBucket.Len())
}
