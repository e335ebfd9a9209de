package engine

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chaturanga836/docstore/internal/common"
	"github.com/chaturanga836/docstore/internal/value"
	"github.com/chaturanga836/docstore/internal/wal"
)

// touchEntry is the value a path held the first time it was touched within
// a given savepoint frame, used to synthesize compensating WAL records on
// rollback.
type touchEntry struct {
	had bool
	val value.Value
}

type txFrame struct {
	name     string
	baseRoot value.Value
	touched  map[string]touchEntry
	order    []string
}

func newTxFrame(name string, base value.Value) *txFrame {
	return &txFrame{name: name, baseRoot: base, touched: map[string]touchEntry{}}
}

func (f *txFrame) recordTouch(p string, root value.Value, path value.Path) {
	if _, ok := f.touched[p]; ok {
		return
	}
	val, had := value.Get(root, path)
	f.touched[p] = touchEntry{had: had, val: val}
	f.order = append(f.order, p)
}

// Tx is the handle passed to a Transaction callback. All mutation methods
// operate on a transaction-local root; nothing is visible to other readers
// until the transaction commits.
type Tx struct {
	db     *DB
	root   value.Value
	frames []*txFrame
}

func (tx *Tx) top() *txFrame {
	return tx.frames[len(tx.frames)-1]
}

// Savepoint marks the current state as a restorable point named name.
func (tx *Tx) Savepoint(name string) {
	tx.frames = append(tx.frames, newTxFrame(name, tx.root))
}

// RollbackTo restores the state captured at the named savepoint, discarding
// every mutation made since. The savepoint remains active and further
// operations (or further rollbacks) may follow.
func (tx *Tx) RollbackTo(name string) error {
	targetIdx := -1
	for i := len(tx.frames) - 1; i >= 0; i-- {
		if tx.frames[i].name == name {
			targetIdx = i
			break
		}
	}
	if targetIdx == -1 {
		return common.NewTxConflictError("engine: no such savepoint %q", name)
	}

	target := tx.frames[targetIdx]
	for _, f := range tx.frames[targetIdx+1:] {
		for _, p := range f.order {
			if _, ok := target.touched[p]; ok {
				continue
			}
			target.touched[p] = f.touched[p]
			target.order = append(target.order, p)
		}
	}
	tx.root = target.baseRoot
	tx.frames = tx.frames[:targetIdx+1]
	return nil
}

func (tx *Tx) mutate(p string, apply func(root value.Value, path value.Path) (value.Value, error)) error {
	path := value.ParsePath(p)
	tx.top().recordTouch(p, tx.root, path)
	newRoot, err := apply(tx.root, path)
	if err != nil {
		return err
	}
	tx.root = newRoot
	return nil
}

// Set validates v and applies it within the transaction.
func (tx *Tx) Set(p string, v value.Value) error {
	v, err := tx.db.runBeforeHooks("set", p, v)
	if err != nil {
		return err
	}
	if tx.db.schemas != nil {
		if err := tx.db.schemas.Validate(p, v); err != nil {
			return err
		}
	}
	return tx.mutate(p, func(root value.Value, path value.Path) (value.Value, error) {
		newRoot, _, _, err := value.Set(root, path, v)
		if err != nil {
			return value.Value{}, err
		}
		payload, err := v.MarshalJSON()
		if err != nil {
			return value.Value{}, common.NewErrorWithCause(common.ErrInternal, "engine: marshal tx set payload", err)
		}
		if _, err := tx.db.wal.Append(wal.OpSet, p, payload); err != nil {
			return value.Value{}, err
		}
		return newRoot, nil
	})
}

// Delete removes the value at p within the transaction.
func (tx *Tx) Delete(p string) error {
	if _, err := tx.db.runBeforeHooks("delete", p, value.NewNull()); err != nil {
		return err
	}
	return tx.mutate(p, func(root value.Value, path value.Path) (value.Value, error) {
		newRoot, _, hadOld, err := value.Delete(root, path)
		if err != nil {
			return value.Value{}, err
		}
		if !hadOld {
			return root, nil
		}
		if _, err := tx.db.wal.Append(wal.OpDelete, p, nil); err != nil {
			return value.Value{}, err
		}
		return newRoot, nil
	})
}

// Push appends items within the transaction.
func (tx *Tx) Push(p string, items ...value.Value) error {
	rewritten, err := tx.db.runBeforeHooks("push", p, value.NewArray(items...))
	if err != nil {
		return err
	}
	items, _ = rewritten.Items()
	return tx.mutate(p, func(root value.Value, path value.Path) (value.Value, error) {
		newRoot, _, err := value.Push(root, path, items...)
		if err != nil {
			return value.Value{}, err
		}
		payload, err := marshalItems(items)
		if err != nil {
			return value.Value{}, err
		}
		if _, err := tx.db.wal.Append(wal.OpPush, p, payload); err != nil {
			return value.Value{}, err
		}
		return newRoot, nil
	})
}

// Pull removes deep-equal items within the transaction.
func (tx *Tx) Pull(p string, items ...value.Value) error {
	rewritten, err := tx.db.runBeforeHooks("pull", p, value.NewArray(items...))
	if err != nil {
		return err
	}
	items, _ = rewritten.Items()
	return tx.mutate(p, func(root value.Value, path value.Path) (value.Value, error) {
		newRoot, result, err := value.Pull(root, path, items...)
		if err != nil {
			return value.Value{}, err
		}
		payload, err := result.MarshalJSON()
		if err != nil {
			return value.Value{}, common.NewErrorWithCause(common.ErrInternal, "engine: marshal tx pull result", err)
		}
		if _, err := tx.db.wal.Append(wal.OpSet, p, payload); err != nil {
			return value.Value{}, err
		}
		return newRoot, nil
	})
}

// Add performs delta-add read-modify-write within the transaction.
func (tx *Tx) Add(p string, delta float64) error {
	return tx.addNumber(p, delta, "add")
}

// Subtract performs delta-subtract read-modify-write within the transaction.
func (tx *Tx) Subtract(p string, delta float64) error {
	return tx.addNumber(p, -delta, "subtract")
}

func (tx *Tx) addNumber(p string, delta float64, method string) error {
	rewritten, err := tx.db.runBeforeHooks(method, p, value.NewNumber(delta))
	if err != nil {
		return err
	}
	delta, _ = rewritten.NumberVal()
	return tx.mutate(p, func(root value.Value, path value.Path) (value.Value, error) {
		newRoot, _, err := value.AddNumber(root, path, delta)
		if err != nil {
			return value.Value{}, err
		}
		if _, err := tx.db.wal.Append(wal.OpAddNum, p, fmtDelta(delta)); err != nil {
			return value.Value{}, err
		}
		return newRoot, nil
	})
}

// Get reads the transaction-local state, observing this transaction's own
// uncommitted writes.
func (tx *Tx) Get(p string) (value.Value, bool) {
	return value.Get(tx.root, value.ParsePath(p))
}

// Transaction runs fn under the single write lock, committing its effect on
// normal return or rolling it back (via compensating WAL records and an
// unchanged live root) on error. Nested transactions are savepoints
// (spec §4.8.1).
func (db *DB) Transaction(fn func(tx *Tx) error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	if err := db.checkWritable(); err != nil {
		return err
	}

	initialRoot := db.loadRoot()
	tx := &Tx{db: db, root: initialRoot, frames: []*txFrame{newTxFrame("", initialRoot)}}

	if err := fn(tx); err != nil {
		db.rollbackTx(tx, initialRoot)
		return err
	}

	return db.commitTx(tx, initialRoot)
}

func (db *DB) rollbackTx(tx *Tx, initialRoot value.Value) {
	_ = tx.RollbackTo("")
	root := tx.top()

	for _, p := range root.order {
		entry := root.touched[p]
		if entry.had {
			payload, err := entry.val.MarshalJSON()
			if err != nil {
				db.logger.Error("rollback: marshal compensating value failed", zap.Error(err))
				continue
			}
			if _, err := db.wal.Append(wal.OpSet, p, payload); err != nil {
				db.logger.Error("rollback: append compensating record failed", zap.Error(err))
			}
		} else {
			if _, err := db.wal.Append(wal.OpDelete, p, nil); err != nil {
				db.logger.Error("rollback: append compensating delete failed", zap.Error(err))
			}
		}
	}
	if _, err := db.wal.Append(wal.OpAbort, uuid.NewString(), nil); err != nil {
		db.logger.Error("rollback: append abort marker failed", zap.Error(err))
	}
	// The live root and indices were never touched during the
	// transaction (writes only landed on tx.root); the compensating
	// records above exist solely so a crash replay reconstructs the same
	// state this process already has in memory.
}

func (db *DB) commitTx(tx *Tx, initialRoot value.Value) error {
	merged := map[string]bool{}
	var order []string
	for _, f := range tx.frames {
		for _, p := range f.order {
			if !merged[p] {
				merged[p] = true
				order = append(order, p)
			}
		}
	}

	if _, err := db.wal.Append(wal.OpCommit, uuid.NewString(), nil); err != nil {
		return err
	}
	finalRoot := tx.root
	db.root.Store(&finalRoot)
	for _, p := range order {
		db.refreshIndicesForPath(finalRoot, value.ParsePath(p))
	}
	db.notifyTouched(initialRoot, finalRoot, order, "transaction")
	return nil
}
