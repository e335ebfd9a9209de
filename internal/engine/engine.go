// Package engine orchestrates the value tree, WAL, file lock, index store,
// and recovery pass into the public operation set of spec §4.8: a single
// write lock serializes mutations while reads go straight to an atomically
// published immutable root. Grounded on the teacher's
// internal/services/storage_manager.go orchestration role.
package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/chaturanga836/docstore/internal/common"
	"github.com/chaturanga836/docstore/internal/filelock"
	"github.com/chaturanga836/docstore/internal/index"
	"github.com/chaturanga836/docstore/internal/recovery"
	"github.com/chaturanga836/docstore/internal/schema"
	"github.com/chaturanga836/docstore/internal/value"
	"github.com/chaturanga836/docstore/internal/wal"
)

// DB is an open store. All exported methods are safe for concurrent use.
type DB struct {
	path string

	writeMu sync.Mutex
	root    atomic.Pointer[value.Value]

	wal           *wal.WAL
	lock          *filelock.Lock
	lockMode      filelock.Mode
	indices       map[string]*index.Index
	schemas       *schema.Registry
	encryptionKey string

	checkpointLSN common.LSN

	autoSaveInterval   time.Duration
	slowQueryThreshold time.Duration

	logger *zap.Logger

	subsMu          sync.Mutex
	subscribers     []*subscription
	beforeHooksList []*beforeHookReg
	afterHooksList  []*afterHookReg

	stopAutoSave chan struct{}
	autoSaveDone chan struct{}

	closed bool
}

// Open loads (or creates) the store at path under opts.
func Open(path string, opts Options) (*DB, error) {
	opts.setDefaults()

	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("docstore")

	registry, err := schema.NewRegistry(opts.Schemas)
	if err != nil {
		return nil, err
	}

	res, err := recovery.Open(recovery.Options{
		Path:          path,
		LockMode:      opts.LockMode,
		LockTimeout:   opts.LockTimeout,
		Durability:    opts.Durability,
		WALBatchSize:  opts.WALBatchSize,
		WALFlushMs:    opts.WALFlushInterval,
		EncryptionKey: opts.EncryptionKey,
		Indices:       opts.Indices,
	})
	if err != nil {
		logger.Error("open failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}

	db := &DB{
		path:               path,
		wal:                res.WAL,
		lock:               res.Lock,
		lockMode:           opts.LockMode,
		indices:            res.Indices,
		schemas:            registry,
		encryptionKey:      opts.EncryptionKey,
		checkpointLSN:      res.CheckpointLSN,
		autoSaveInterval:   opts.AutoSaveInterval,
		slowQueryThreshold: opts.SlowQueryThreshold,
		logger:             logger,
	}
	db.root.Store(&res.Root)

	if opts.Durability == wal.DurabilityNone {
		db.stopAutoSave = make(chan struct{})
		db.autoSaveDone = make(chan struct{})
		go db.autoSaveLoop()
	}

	logger.Info("opened", zap.String("path", path), zap.Uint64("checkpoint_lsn", uint64(res.CheckpointLSN)))
	return db, nil
}

func (db *DB) autoSaveLoop() {
	defer close(db.autoSaveDone)
	ticker := time.NewTicker(db.autoSaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-db.stopAutoSave:
			return
		case <-ticker.C:
			if err := db.Save(); err != nil {
				db.logger.Warn("autosave failed", zap.Error(err))
			}
		}
	}
}

func (db *DB) loadRoot() value.Value {
	return *db.root.Load()
}

// Get returns the value at p, lock-free against concurrent writers.
func (db *DB) Get(p string) (value.Value, bool) {
	return value.Get(db.loadRoot(), value.ParsePath(p))
}

// Has reports whether p is addressable.
func (db *DB) Has(p string) bool {
	return value.Has(db.loadRoot(), value.ParsePath(p))
}

func (db *DB) checkWritable() error {
	if db.lockMode == filelock.ModeShared {
		return common.NewReadOnlyError("engine: mutation attempted under shared lock")
	}
	return nil
}

func (db *DB) timeOp(method, p string, start time.Time) {
	if d := time.Since(start); d > db.slowQueryThreshold {
		db.logger.Warn("slow_query", zap.String("method", method), zap.String("path", p), zap.Duration("duration", d))
	}
}

// Set validates v (schema + before-hooks), writes it at p, and returns the
// prior value if any.
func (db *DB) Set(p string, v value.Value) (value.Value, bool, error) {
	path := value.ParsePath(p)
	start := time.Now()
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	if err := db.checkWritable(); err != nil {
		return value.Value{}, false, err
	}

	v, err := db.runBeforeHooks("set", p, v)
	if err != nil {
		return value.Value{}, false, err
	}
	if db.schemas != nil {
		if err := db.schemas.Validate(p, v); err != nil {
			return value.Value{}, false, err
		}
	}

	root := db.loadRoot()
	newRoot, old, hadOld, err := value.Set(root, path, v)
	if err != nil {
		return value.Value{}, false, err
	}
	payload, err := v.MarshalJSON()
	if err != nil {
		return value.Value{}, false, common.NewErrorWithCause(common.ErrInternal, "engine: marshal set payload", err)
	}
	if _, err := db.wal.Append(wal.OpSet, p, payload); err != nil {
		return value.Value{}, false, err
	}
	db.root.Store(&newRoot)
	db.refreshIndicesForPath(newRoot, path)
	oldForNotify := old
	if !hadOld {
		oldForNotify = value.NewNull()
	}
	db.notify(p, v, oldForNotify)
	db.runAfterHooks("set", p, v, oldForNotify)
	db.timeOp("set", p, start)
	return old, hadOld, nil
}

// Delete removes the value at p, returning the prior value if any.
func (db *DB) Delete(p string) (value.Value, bool, error) {
	path := value.ParsePath(p)
	start := time.Now()
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	if err := db.checkWritable(); err != nil {
		return value.Value{}, false, err
	}
	if _, err := db.runBeforeHooks("delete", p, value.NewNull()); err != nil {
		return value.Value{}, false, err
	}

	root := db.loadRoot()
	newRoot, old, hadOld, err := value.Delete(root, path)
	if err != nil {
		return value.Value{}, false, err
	}
	if !hadOld {
		return value.Value{}, false, nil
	}
	if _, err := db.wal.Append(wal.OpDelete, p, nil); err != nil {
		return value.Value{}, false, err
	}
	db.root.Store(&newRoot)
	db.refreshIndicesForPath(newRoot, path)
	db.notify(p, value.NewNull(), old)
	db.runAfterHooks("delete", p, value.NewNull(), old)
	db.timeOp("delete", p, start)
	return old, true, nil
}

// Push appends items to the array at p (creating it if absent), skipping
// any deep-equal to an existing element, and returns the resulting array.
func (db *DB) Push(p string, items ...value.Value) (value.Value, error) {
	path := value.ParsePath(p)
	start := time.Now()
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	if err := db.checkWritable(); err != nil {
		return value.Value{}, err
	}
	rewritten, err := db.runBeforeHooks("push", p, value.NewArray(items...))
	if err != nil {
		return value.Value{}, err
	}
	items, _ = rewritten.Items()

	root := db.loadRoot()
	oldVal, hadOld := value.Get(root, path)
	newRoot, result, err := value.Push(root, path, items...)
	if err != nil {
		return value.Value{}, err
	}
	payload, err := marshalItems(items)
	if err != nil {
		return value.Value{}, err
	}
	if _, err := db.wal.Append(wal.OpPush, p, payload); err != nil {
		return value.Value{}, err
	}
	db.root.Store(&newRoot)
	db.refreshIndicesForPath(newRoot, path)
	oldForNotify := oldVal
	if !hadOld {
		oldForNotify = value.NewNull()
	}
	db.notify(p, result, oldForNotify)
	db.runAfterHooks("push", p, result, oldForNotify)
	db.timeOp("push", p, start)
	return result, nil
}

// Pull removes every element deep-equal to one of items, re-`set`ting the
// resulting array (spec §4.8: pull is implemented as a set of the result).
func (db *DB) Pull(p string, items ...value.Value) (value.Value, error) {
	path := value.ParsePath(p)
	start := time.Now()
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	if err := db.checkWritable(); err != nil {
		return value.Value{}, err
	}
	rewritten, err := db.runBeforeHooks("pull", p, value.NewArray(items...))
	if err != nil {
		return value.Value{}, err
	}
	items, _ = rewritten.Items()

	root := db.loadRoot()
	oldVal, hadOld := value.Get(root, path)
	newRoot, result, err := value.Pull(root, path, items...)
	if err != nil {
		return value.Value{}, err
	}
	payload, err := result.MarshalJSON()
	if err != nil {
		return value.Value{}, common.NewErrorWithCause(common.ErrInternal, "engine: marshal pull result", err)
	}
	if _, err := db.wal.Append(wal.OpSet, p, payload); err != nil {
		return value.Value{}, err
	}
	db.root.Store(&newRoot)
	db.refreshIndicesForPath(newRoot, path)
	oldForNotify := oldVal
	if !hadOld {
		oldForNotify = value.NewNull()
	}
	db.notify(p, result, oldForNotify)
	db.runAfterHooks("pull", p, result, oldForNotify)
	db.timeOp("pull", p, start)
	return result, nil
}

// Add performs delta-add read-modify-write, starting from 0 if p is absent.
func (db *DB) Add(p string, delta float64) (float64, error) {
	return db.addNumber(p, delta, "add")
}

// Subtract performs delta-subtract read-modify-write, starting from 0 if p
// is absent.
func (db *DB) Subtract(p string, delta float64) (float64, error) {
	return db.addNumber(p, -delta, "subtract")
}

func (db *DB) addNumber(p string, delta float64, method string) (float64, error) {
	path := value.ParsePath(p)
	start := time.Now()
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	if err := db.checkWritable(); err != nil {
		return 0, err
	}
	rewritten, err := db.runBeforeHooks(method, p, value.NewNumber(delta))
	if err != nil {
		return 0, err
	}
	delta, _ = rewritten.NumberVal()

	root := db.loadRoot()
	oldVal, hadOld := value.Get(root, path)
	newRoot, result, err := value.AddNumber(root, path, delta)
	if err != nil {
		return 0, err
	}
	payload := fmt.Appendf(nil, "%g", delta)
	if _, err := db.wal.Append(wal.OpAddNum, p, payload); err != nil {
		return 0, err
	}
	db.root.Store(&newRoot)
	db.refreshIndicesForPath(newRoot, path)
	oldForNotify := oldVal
	if !hadOld {
		oldForNotify = value.NewNumber(0)
	}
	db.notify(p, value.NewNumber(result), oldForNotify)
	db.runAfterHooks(method, p, value.NewNumber(result), oldForNotify)
	db.timeOp(method, p, start)
	return result, nil
}

// FindByIndex looks up the first document registered under name whose
// field equals v.
func (db *DB) FindByIndex(name string, v value.Value) (value.Value, bool, error) {
	ix, ok := db.indices[name]
	if !ok {
		return value.Value{}, false, common.NewIndexError("engine: unknown index %q", name)
	}
	path, ok := ix.FindFirst(v)
	if !ok {
		return value.Value{}, false, nil
	}
	doc, ok := value.Get(db.loadRoot(), value.ParsePath(path))
	return doc, ok, nil
}

// FindAllByIndex returns every document path registered under name whose
// field equals v, feeding the parallel executor's index-seeded scans.
func (db *DB) FindAllByIndex(name string, v value.Value) ([]string, error) {
	ix, ok := db.indices[name]
	if !ok {
		return nil, common.NewIndexError("engine: unknown index %q", name)
	}
	return ix.FindAll(v), nil
}

// Save forces an immediate checkpoint: a fresh snapshot file, index sidecar
// persistence, and WAL truncation.
func (db *DB) Save() error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	return db.saveLocked()
}

func (db *DB) saveLocked() error {
	root := db.loadRoot()
	lsn := db.wal.Status().AllocatedLSN
	if err := recovery.WriteSnapshot(db.path, root, lsn, db.encryptionKey); err != nil {
		return err
	}
	if err := db.wal.Checkpoint(lsn); err != nil {
		return err
	}
	var errs error
	for name, ix := range db.indices {
		if err := ix.Persist(db.path + "." + name + ".idx"); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	db.checkpointLSN = lsn
	return errs
}

// Sync blocks until every WAL record accepted so far has been fsynced.
func (db *DB) Sync() error {
	return db.wal.Sync()
}

// WalStatus reports WAL enablement and durable/allocated LSNs. The WAL is
// never encrypted even when EncryptionKey is set (spec §4.10's documented
// gap) — only the snapshot file round-trips through AES-256-GCM.
func (db *DB) WalStatus() wal.Status {
	return db.wal.Status()
}

// CreateSnapshot writes a point-in-time backup of the current read view to
// `<path>.<name>.<iso-timestamp>.bak`, independent of the live snapshot file.
func (db *DB) CreateSnapshot(name string) (string, error) {
	root := db.loadRoot()
	backupPath := fmt.Sprintf("%s.%s.%s.bak", db.path, name, common.Now().String())
	if err := recovery.WriteSnapshot(backupPath, root, db.checkpointLSN, db.encryptionKey); err != nil {
		return "", err
	}
	return backupPath, nil
}

// Close flushes, checkpoints, and releases the file lock.
func (db *DB) Close() error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	if db.stopAutoSave != nil {
		close(db.stopAutoSave)
		<-db.autoSaveDone
	}

	var errs error
	if err := db.saveLocked(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := db.wal.Close(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := db.lock.Unlock(); err != nil {
		errs = multierr.Append(errs, err)
	}
	db.logger.Sync()
	return errs
}

// refreshIndicesForPath re-derives every declared index entry whose
// collection contains path, per spec §4.3's incremental maintenance rule:
// re-derive from collection_path.k after any mutation at or below it.
func (db *DB) refreshIndicesForPath(root value.Value, path value.Path) {
	for _, ix := range db.indices {
		prefix := value.ParsePath(ix.CollectionPath)
		if !pathHasPrefix(path, prefix) || len(path) <= len(prefix) {
			continue
		}
		docPath := append(append(value.Path{}, prefix...), path[len(prefix)])
		docPathStr := docPath.String()
		doc, ok := value.Get(root, docPath)
		if !ok {
			ix.Remove(docPathStr)
			continue
		}
		ix.Update(docPathStr, doc)
	}
}

func pathHasPrefix(path, prefix value.Path) bool {
	if len(path) < len(prefix) {
		return false
	}
	for i, seg := range prefix {
		if path[i] != seg {
			return false
		}
	}
	return true
}

func marshalItems(items []value.Value) ([]byte, error) {
	arr := value.NewArray(items...)
	data, err := arr.MarshalJSON()
	if err != nil {
		return nil, common.NewErrorWithCause(common.ErrInternal, "engine: marshal push items", err)
	}
	return data, nil
}
