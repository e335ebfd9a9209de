package engine

import (
	"fmt"

	"github.com/chaturanga836/docstore/internal/common"
	"github.com/chaturanga836/docstore/internal/value"
	"github.com/chaturanga836/docstore/internal/wal"
)

// BatchOpKind selects which tree mutation a BatchOp performs.
type BatchOpKind int

const (
	BatchSet BatchOpKind = iota
	BatchDelete
	BatchPush
	BatchPull
	BatchAdd
	BatchSubtract
)

// BatchOp is one mutation within a Batch call.
type BatchOp struct {
	Kind  BatchOpKind
	Path  string
	Value value.Value
	Items []value.Value
	Delta float64
}

type pendingRecord struct {
	op      wal.Op
	path    string
	payload []byte
}

// Batch applies ops in order under one write-lock acquisition and one WAL
// flush boundary. It is all-or-nothing from the caller's perspective: every
// op is first applied to a private working copy of the root, and only once
// every op has succeeded are the buffered WAL records appended and the new
// root published. On the first failing op, nothing durable or visible has
// happened yet and that op's error is returned.
func (db *DB) Batch(ops []BatchOp) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	if err := db.checkWritable(); err != nil {
		return err
	}

	origRoot := db.loadRoot()
	workRoot := origRoot
	var records []pendingRecord
	var touchedOrder []string
	touchedSeen := map[string]bool{}

	markTouched := func(p string) {
		if !touchedSeen[p] {
			touchedSeen[p] = true
			touchedOrder = append(touchedOrder, p)
		}
	}

	for _, op := range ops {
		path := value.ParsePath(op.Path)
		switch op.Kind {
		case BatchSet:
			v, err := db.runBeforeHooks("set", op.Path, op.Value)
			if err != nil {
				return err
			}
			if db.schemas != nil {
				if err := db.schemas.Validate(op.Path, v); err != nil {
					return err
				}
			}
			newRoot, _, _, err := value.Set(workRoot, path, v)
			if err != nil {
				return err
			}
			payload, err := v.MarshalJSON()
			if err != nil {
				return common.NewErrorWithCause(common.ErrInternal, "engine: marshal batch set payload", err)
			}
			workRoot = newRoot
			records = append(records, pendingRecord{wal.OpSet, op.Path, payload})
			markTouched(op.Path)

		case BatchDelete:
			if _, err := db.runBeforeHooks("delete", op.Path, value.NewNull()); err != nil {
				return err
			}
			newRoot, _, hadOld, err := value.Delete(workRoot, path)
			if err != nil {
				return err
			}
			if hadOld {
				workRoot = newRoot
				records = append(records, pendingRecord{wal.OpDelete, op.Path, nil})
				markTouched(op.Path)
			}

		case BatchPush:
			rewritten, err := db.runBeforeHooks("push", op.Path, value.NewArray(op.Items...))
			if err != nil {
				return err
			}
			items, _ := rewritten.Items()
			newRoot, _, err := value.Push(workRoot, path, items...)
			if err != nil {
				return err
			}
			payload, err := marshalItems(items)
			if err != nil {
				return err
			}
			workRoot = newRoot
			records = append(records, pendingRecord{wal.OpPush, op.Path, payload})
			markTouched(op.Path)

		case BatchPull:
			rewritten, err := db.runBeforeHooks("pull", op.Path, value.NewArray(op.Items...))
			if err != nil {
				return err
			}
			items, _ := rewritten.Items()
			newRoot, result, err := value.Pull(workRoot, path, items...)
			if err != nil {
				return err
			}
			payload, err := result.MarshalJSON()
			if err != nil {
				return common.NewErrorWithCause(common.ErrInternal, "engine: marshal batch pull result", err)
			}
			workRoot = newRoot
			records = append(records, pendingRecord{wal.OpSet, op.Path, payload})
			markTouched(op.Path)

		case BatchAdd, BatchSubtract:
			delta := op.Delta
			if op.Kind == BatchSubtract {
				delta = -delta
			}
			method := "add"
			if op.Kind == BatchSubtract {
				method = "subtract"
			}
			rewritten, err := db.runBeforeHooks(method, op.Path, value.NewNumber(delta))
			if err != nil {
				return err
			}
			delta, _ = rewritten.NumberVal()
			newRoot, _, err := value.AddNumber(workRoot, path, delta)
			if err != nil {
				return err
			}
			payload := fmtDelta(delta)
			workRoot = newRoot
			records = append(records, pendingRecord{wal.OpAddNum, op.Path, payload})
			markTouched(op.Path)

		default:
			return common.NewValidationError("engine: unknown batch op kind %d", op.Kind)
		}
	}

	for _, r := range records {
		if _, err := db.wal.Append(r.op, r.path, r.payload); err != nil {
			return err
		}
	}
	db.root.Store(&workRoot)
	for _, p := range touchedOrder {
		db.refreshIndicesForPath(workRoot, value.ParsePath(p))
	}
	db.notifyTouched(origRoot, workRoot, touchedOrder, "batch")
	return nil
}

func (db *DB) notifyTouched(oldRoot, newRoot value.Value, paths []string, method string) {
	for _, p := range paths {
		path := value.ParsePath(p)
		oldVal, hadOld := value.Get(oldRoot, path)
		if !hadOld {
			oldVal = value.NewNull()
		}
		newVal, hasNew := value.Get(newRoot, path)
		if !hasNew {
			newVal = value.NewNull()
		}
		db.notify(p, newVal, oldVal)
		db.runAfterHooks(method, p, newVal, oldVal)
	}
}

func fmtDelta(delta float64) []byte {
	return fmt.Appendf(nil, "%g", delta)
}
