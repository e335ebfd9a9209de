package docstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaturanga836/docstore"
)

func TestOpen_RoundTripsThroughTheWholePublicSurface(t *testing.T) {
	dir := t.TempDir()
	db, err := docstore.Open(filepath.Join(dir, "store.db"), docstore.Options{
		WAL: true,
		Indices: []docstore.IndexDeclaration{
			{Name: "by_email", CollectionPath: "users", Field: "email"},
		},
	})
	require.NoError(t, err)
	defer db.Close()

	alice, err := docstore.FromAny(map[string]any{
		"name":  "alice",
		"email": "alice@example.com",
		"age":   float64(30),
	})
	require.NoError(t, err)
	_, _, err = db.Set("users.1", alice)
	require.NoError(t, err)

	bob, err := docstore.FromAny(map[string]any{
		"name":  "bob",
		"email": "bob@example.com",
		"age":   float64(25),
	})
	require.NoError(t, err)
	_, _, err = db.Set("users.2", bob)
	require.NoError(t, err)

	found, ok, err := db.FindByIndex("by_email", docstore.NewString("bob@example.com"))
	require.NoError(t, err)
	require.True(t, ok)
	name, _ := found.Field("name")
	s, _ := name.StringVal()
	assert.Equal(t, "bob", s)

	items, err := db.Query(context.Background(), "users", []docstore.Filter{
		{Field: "age", Op: docstore.OpGte, Value: docstore.NewNumber(28)},
	})
	require.NoError(t, err)
	assert.Len(t, items, 1)

	sum, err := db.Aggregate(context.Background(), "users", docstore.AggSum, "age")
	require.NoError(t, err)
	n, _ := sum.NumberVal()
	assert.Equal(t, 55.0, n)

	err = db.Transaction(func(tx *docstore.Tx) error {
		if err := tx.Subtract("users.1.age", 1); err != nil {
			return err
		}
		return tx.Add("users.2.age", 1)
	})
	require.NoError(t, err)

	aliceAge, _ := db.Get("users.1.age")
	n, _ = aliceAge.NumberVal()
	assert.Equal(t, 29.0, n)

	require.NoError(t, db.Save())
}

func TestIsKind_ClassifiesReturnedErrors(t *testing.T) {
	dir := t.TempDir()
	db, err := docstore.Open(filepath.Join(dir, "store.db"), docstore.Options{})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.FindByIndex("never-declared", docstore.NewString("x"))
	require.Error(t, err)
	assert.True(t, docstore.IsKind(err, docstore.ErrIndex))
}
