package exec

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaturanga836/docstore/internal/value"
)

func personItem(id int, age float64, active bool) Item {
	doc, _ := value.FromAny(map[string]any{
		"id":     float64(id),
		"age":    age,
		"active": active,
	})
	return Item{Path: fmt.Sprintf("u.%d", id), Doc: doc}
}

func TestQuery_Sequential(t *testing.T) {
	children := []Item{
		personItem(1, 25, true),
		personItem(2, 60, true),
		personItem(3, 70, false),
	}
	filters := []Filter{
		{Field: "age", Op: OpGte, Value: value.NewNumber(50)},
		{Field: "active", Op: OpEq, Value: value.NewBool(true)},
	}
	got, err := Query(context.Background(), children, filters)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u.2", got[0].Path)
}

func TestQuery_ParallelEquivalence(t *testing.T) {
	var children []Item
	for i := 0; i < 500; i++ {
		children = append(children, personItem(i, float64(18+i%80), i%2 == 0))
	}
	filters := []Filter{{Field: "age", Op: OpGte, Value: value.NewNumber(50)}}

	got, err := Query(context.Background(), children, filters)
	require.NoError(t, err)

	var want []Item
	for _, it := range children {
		ageVal, _ := it.Doc.Field("age")
		age, _ := ageVal.NumberVal()
		if age >= 50 {
			want = append(want, it)
		}
	}
	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i].Path, got[i].Path, "order must match sequential filter")
	}
}

func TestQuery_StringOps(t *testing.T) {
	mk := func(name string) Item {
		doc, _ := value.FromAny(map[string]any{"name": name})
		return Item{Path: name, Doc: doc}
	}
	children := []Item{mk("alice"), mk("bob"), mk("alicia")}

	got, err := Query(context.Background(), children, []Filter{
		{Field: "name", Op: OpStartsWith, Value: value.NewString("ali")},
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestAggregate_MinMaxSumAvgCount(t *testing.T) {
	var children []Item
	ages := []float64{18, 25, 77, 40}
	for i, a := range ages {
		children = append(children, personItem(i, a, true))
	}

	count, err := Aggregate(context.Background(), children, AggCount, "age")
	require.NoError(t, err)
	n, _ := count.NumberVal()
	assert.Equal(t, 4.0, n)

	min, err := Aggregate(context.Background(), children, AggMin, "age")
	require.NoError(t, err)
	mn, _ := min.NumberVal()
	assert.Equal(t, 18.0, mn)

	max, err := Aggregate(context.Background(), children, AggMax, "age")
	require.NoError(t, err)
	mx, _ := max.NumberVal()
	assert.Equal(t, 77.0, mx)

	sum, err := Aggregate(context.Background(), children, AggSum, "age")
	require.NoError(t, err)
	sm, _ := sum.NumberVal()
	assert.Equal(t, 160.0, sm)

	avg, err := Aggregate(context.Background(), children, AggAvg, "age")
	require.NoError(t, err)
	av, _ := avg.NumberVal()
	assert.Equal(t, 40.0, av)
}

func TestAggregate_AvgOfEmptyIsZero(t *testing.T) {
	avg, err := Aggregate(context.Background(), nil, AggAvg, "age")
	require.NoError(t, err)
	v, _ := avg.NumberVal()
	assert.Equal(t, 0.0, v)
}

func TestAggregate_MinOfEmptyIsAbsent(t *testing.T) {
	min, err := Aggregate(context.Background(), nil, AggMin, "age")
	require.NoError(t, err)
	assert.True(t, min.IsNull())
}

func TestLookup_HashJoinPreservesLeftOrder(t *testing.T) {
	mkUser := func(id int, name string) Item {
		doc, _ := value.FromAny(map[string]any{"id": float64(id), "name": name})
		return Item{Path: name, Doc: doc}
	}
	mkOrder := func(userID int) Item {
		doc, _ := value.FromAny(map[string]any{"userId": float64(userID)})
		return Item{Doc: doc}
	}

	users := []Item{mkUser(1, "alice"), mkUser(2, "bob"), mkUser(3, "charlie")}
	var orders []Item
	for i := 0; i < 2; i++ {
		orders = append(orders, mkOrder(1))
	}
	for i := 0; i < 3; i++ {
		orders = append(orders, mkOrder(2))
	}

	joined, err := Lookup(context.Background(), users, orders, "id", "userId", "orders")
	require.NoError(t, err)
	require.Len(t, joined, 3)

	assert.Equal(t, "alice", joined[0].Path)
	aliceOrders, _ := joined[0].Doc.Field("orders")
	assert.Equal(t, 2, aliceOrders.Len())

	bobOrders, _ := joined[1].Doc.Field("orders")
	assert.Equal(t, 3, bobOrders.Len())

	charlieOrders, _ := joined[2].Doc.Field("orders")
	assert.Equal(t, 0, charlieOrders.Len())
}
