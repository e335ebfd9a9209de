// Package recovery implements the store's open sequence (spec §4.7): file
// lock acquisition, snapshot load, WAL tail replay with torn-tail
// tolerance, and index adoption-or-rebuild. Grounded on the teacher's
// wal.Manager load/replay split and on the four-step mkdir -> load snapshot
// -> open WAL -> replay tail sequence used for opening a small embedded
// store elsewhere in the retrieved pack.
package recovery

import (
	"encoding/json"
	"os"
	"time"

	"github.com/chaturanga836/docstore/internal/common"
	"github.com/chaturanga836/docstore/internal/crypt"
	"github.com/chaturanga836/docstore/internal/filelock"
	"github.com/chaturanga836/docstore/internal/index"
	"github.com/chaturanga836/docstore/internal/value"
	"github.com/chaturanga836/docstore/internal/wal"
)

// Options configures a single Open call, mirroring the engine's public
// Options (spec §6) narrowed to what recovery itself needs.
type Options struct {
	Path          string
	LockMode      filelock.Mode
	LockTimeout   time.Duration
	Durability    wal.Durability
	WALBatchSize  int
	WALFlushMs    time.Duration
	EncryptionKey string
	Indices       []index.Declaration
}

// Result is everything the engine needs to start serving requests after a
// successful open.
type Result struct {
	Root          value.Value
	CheckpointLSN common.LSN
	Lock          *filelock.Lock
	WAL           *wal.WAL
	Indices       map[string]*index.Index
}

// snapshotEnvelope is the on-disk shape of the (possibly encrypted)
// snapshot file. Root is decoded via value.Value's own order-preserving
// UnmarshalJSON, which is why the envelope itself is decoded with
// encoding/json rather than a generic fast-JSON library: the custom
// json.Unmarshaler on Root must be honored exactly.
type snapshotEnvelope struct {
	CheckpointLSN uint64      `json:"checkpoint_lsn"`
	Root          value.Value `json:"root"`
}

// Open performs the full recovery sequence and returns a Result ready for
// the engine to wrap.
func Open(opts Options) (*Result, error) {
	lock, err := filelock.Acquire(opts.Path+".lock", opts.LockMode, opts.LockTimeout)
	if err != nil {
		return nil, err
	}

	root, checkpointLSN, err := loadSnapshot(opts.Path, opts.EncryptionKey)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	w, err := wal.Open(wal.Config{
		Path:          opts.Path + ".wal",
		Durability:    opts.Durability,
		BatchSize:     opts.WALBatchSize,
		FlushInterval: opts.WALFlushMs,
	})
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	root, maxLSN, err := replayTail(w, checkpointLSN, root)
	if err != nil {
		w.Close()
		lock.Unlock()
		return nil, err
	}
	w.SetNextLSN(uint64(maxLSN) + 1)

	indices := make(map[string]*index.Index, len(opts.Indices))
	for _, decl := range opts.Indices {
		ix := index.New(decl)
		sidecarPath := opts.Path + "." + decl.Name + ".idx"
		found, err := ix.Load(sidecarPath)
		if err != nil {
			w.Close()
			lock.Unlock()
			return nil, err
		}
		if !found {
			collection, _ := value.Get(root, value.ParsePath(decl.CollectionPath))
			ix.Rebuild(collection)
		}
		indices[decl.Name] = ix
	}

	return &Result{
		Root:          root,
		CheckpointLSN: common.LSN(maxLSN),
		Lock:          lock,
		WAL:           w,
		Indices:       indices,
	}, nil
}

func loadSnapshot(path, encryptionKey string) (value.Value, common.LSN, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return value.NewObject(), 0, nil
		}
		return value.Value{}, 0, common.NewIOError(err, "recovery: read snapshot %s", path)
	}

	if encryptionKey != "" {
		plain, err := crypt.Open(encryptionKey, data)
		if err != nil {
			return value.Value{}, 0, err
		}
		data = plain
	}

	var env snapshotEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return value.Value{}, 0, common.NewCorruptionError(err, "recovery: parse snapshot %s", path)
	}
	if !env.Root.IsObject() {
		env.Root = value.NewObject()
	}
	return env.Root, common.LSN(env.CheckpointLSN), nil
}

func replayTail(w *wal.WAL, checkpointLSN common.LSN, root value.Value) (value.Value, common.LSN, error) {
	maxLSN := checkpointLSN
	err := w.Replay(checkpointLSN, func(rec wal.Record) error {
		if rec.LSN > maxLSN {
			maxLSN = rec.LSN
		}
		newRoot, err := applyRecord(root, rec)
		if err != nil {
			// A replayed record that no longer applies cleanly (e.g. a
			// stale path) is not a crash signal; skip it rather than
			// aborting the whole recovery.
			return nil
		}
		root = newRoot
		return nil
	})
	if err != nil {
		return value.Value{}, 0, err
	}
	return root, maxLSN, nil
}

func applyRecord(root value.Value, rec wal.Record) (value.Value, error) {
	path := value.ParsePath(rec.Path)
	switch rec.Op {
	case wal.OpSet:
		var v value.Value
		if err := json.Unmarshal(rec.Payload, &v); err != nil {
			return root, err
		}
		newRoot, _, _, err := value.Set(root, path, v)
		return newRoot, err
	case wal.OpDelete:
		newRoot, _, _, err := value.Delete(root, path)
		return newRoot, err
	case wal.OpPush:
		var items []value.Value
		if err := json.Unmarshal(rec.Payload, &items); err != nil {
			return root, err
		}
		newRoot, _, err := value.Push(root, path, items...)
		return newRoot, err
	case wal.OpAddNum:
		var delta float64
		if err := json.Unmarshal(rec.Payload, &delta); err != nil {
			return root, err
		}
		newRoot, _, err := value.AddNumber(root, path, delta)
		return newRoot, err
	default:
		return root, nil
	}
}

// WriteSnapshot atomically writes root (and checkpointLSN metadata) to
// path: serialize, write to `<path>.tmp`, fsync, rename over path, fsync
// the parent directory (spec §4.5's checkpoint step).
func WriteSnapshot(path string, root value.Value, checkpointLSN common.LSN, encryptionKey string) error {
	env := snapshotEnvelope{CheckpointLSN: uint64(checkpointLSN), Root: root}
	data, err := json.Marshal(env)
	if err != nil {
		return common.NewErrorWithCause(common.ErrInternal, "recovery: marshal snapshot", err)
	}
	if encryptionKey != "" {
		data, err = crypt.Seal(encryptionKey, data)
		if err != nil {
			return err
		}
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return common.NewIOError(err, "recovery: create snapshot temp file")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return common.NewIOError(err, "recovery: write snapshot temp file")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return common.NewIOError(err, "recovery: fsync snapshot temp file")
	}
	if err := f.Close(); err != nil {
		return common.NewIOError(err, "recovery: close snapshot temp file")
	}
	if err := os.Rename(tmp, path); err != nil {
		return common.NewIOError(err, "recovery: rename snapshot into place")
	}

	dir, err := os.Open(parentDir(path))
	if err != nil {
		return common.NewIOError(err, "recovery: open parent directory for fsync")
	}
	defer dir.Close()
	if err := dir.Sync(); err != nil {
		return common.NewIOError(err, "recovery: fsync parent directory")
	}
	return nil
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
