package engine

import (
	"context"

	"github.com/chaturanga836/docstore/internal/common"
	"github.com/chaturanga836/docstore/internal/exec"
	"github.com/chaturanga836/docstore/internal/value"
)

// collectionItems returns every child of the object at collectionPath as a
// scan item, pinned to the immutable root captured when the caller read it
// (spec §5: readers observe a consistent point-in-time snapshot, never a
// torn view of a concurrent writer's in-flight mutation).
func collectionItems(root value.Value, collectionPath string) ([]exec.Item, error) {
	coll, ok := value.Get(root, value.ParsePath(collectionPath))
	if !ok {
		return nil, nil
	}
	if !coll.IsObject() {
		return nil, common.NewTypeError("query: %q is not a collection (object)", collectionPath)
	}
	items := make([]exec.Item, 0, coll.Len())
	for _, key := range coll.Keys() {
		doc, _ := coll.Field(key)
		items = append(items, exec.Item{Path: collectionPath + "." + key, Doc: doc})
	}
	return items, nil
}

// seedFromIndex narrows the scan to the paths an equality filter's index
// already knows about, per spec §4.9 step 2: an eq filter whose field has a
// declared index on this collection seeds the scan instead of a full walk.
func (db *DB) seedFromIndex(root value.Value, collectionPath string, filters []exec.Filter) ([]exec.Item, []exec.Filter, bool) {
	for i, f := range filters {
		if f.Op != exec.OpEq {
			continue
		}
		for _, ix := range db.indices {
			if ix.CollectionPath != collectionPath || ix.Field != f.Field {
				continue
			}
			paths := ix.FindAll(f.Value)
			items := make([]exec.Item, 0, len(paths))
			for _, p := range paths {
				doc, ok := value.Get(root, value.ParsePath(p))
				if ok {
					items = append(items, exec.Item{Path: p, Doc: doc})
				}
			}
			remaining := append(append([]exec.Filter{}, filters[:i]...), filters[i+1:]...)
			return items, remaining, true
		}
	}
	return nil, filters, false
}

// Query runs filters over the collection at collectionPath, seeding from a
// matching index when one of the filters is an eq on an indexed field
// (spec §4.9).
func (db *DB) Query(ctx context.Context, collectionPath string, filters []exec.Filter) ([]exec.Item, error) {
	root := db.loadRoot()
	if items, remaining, seeded := db.seedFromIndex(root, collectionPath, filters); seeded {
		return exec.Query(ctx, items, remaining)
	}
	items, err := collectionItems(root, collectionPath)
	if err != nil {
		return nil, err
	}
	return exec.Query(ctx, items, filters)
}

// Aggregate runs a parallel fold (count/sum/avg/min/max) over the
// collection at collectionPath.
func (db *DB) Aggregate(ctx context.Context, collectionPath string, op exec.AggOp, field string) (value.Value, error) {
	items, err := collectionItems(db.loadRoot(), collectionPath)
	if err != nil {
		return value.Value{}, err
	}
	return exec.Aggregate(ctx, items, op, field)
}

// Lookup performs a parallel hash join between the collections at leftPath
// and rightPath, attaching the matching right-side bucket under asField on
// a cloned copy of each left item (spec §4.9).
func (db *DB) Lookup(ctx context.Context, leftPath, rightPath, leftField, rightField, asField string) ([]exec.Item, error) {
	root := db.loadRoot()
	left, err := collectionItems(root, leftPath)
	if err != nil {
		return nil, err
	}
	right, err := collectionItems(root, rightPath)
	if err != nil {
		return nil, err
	}
	return exec.Lookup(ctx, left, right, leftField, rightField, asField)
}
