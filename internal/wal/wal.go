package wal

import (
	"os"
	"sync"
	"time"

	"github.com/chaturanga836/docstore/internal/common"
)

// Durability selects when records are fsynced, per spec §4.5.
type Durability int

const (
	// DurabilityNone disables the WAL entirely; the snapshot file is the
	// only persistence mechanism, written by an explicit save().
	DurabilityNone Durability = iota
	// DurabilityLazy appends and flushes to the OS immediately, fsyncing
	// on a fixed ~100ms background tick.
	DurabilityLazy
	// DurabilityBatched group-commits: fsync every Config.FlushInterval or
	// every Config.BatchSize records, whichever comes first.
	DurabilityBatched
	// DurabilitySync fsyncs synchronously after every record.
	DurabilitySync
)

const lazyFsyncInterval = 100 * time.Millisecond

// Config configures an open WAL.
type Config struct {
	Path          string
	Durability    Durability
	BatchSize     int           // DurabilityBatched record-count trigger
	FlushInterval time.Duration // DurabilityBatched fsync tick (Lazy uses a fixed 100ms)
}

func (c *Config) setDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = int(common.DefaultWALBatchSize)
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = common.DefaultWALFlushInterval
	}
}

// WAL owns the single on-disk log file and the LSN counter authoritative
// for this process. Append serializes under mu; a background goroutine
// drives periodic fsyncs for the lazy and batched durability modes.
type WAL struct {
	cfg Config

	mu       sync.Mutex
	file     *os.File
	nextLSN  uint64
	pending  int  // records appended since the last fsync (batched mode)
	lastSync uint64 // highest LSN known fsynced

	stopCh chan struct{}
	doneCh chan struct{}

	syncCond *sync.Cond // signaled when lastSync advances, for Sync()
}

// Open creates or opens the WAL file at cfg.Path in append mode. When
// cfg.Durability is DurabilityNone, no file is opened and Append becomes a
// pure in-memory LSN allocator (spec §4.5's "WAL disabled" mode).
func Open(cfg Config) (*WAL, error) {
	cfg.setDefaults()
	w := &WAL{cfg: cfg, nextLSN: 1}
	w.syncCond = sync.NewCond(&w.mu)

	if cfg.Durability == DurabilityNone {
		return w, nil
	}

	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, common.NewIOError(err, "wal: open %s", cfg.Path)
	}
	w.file = f

	if cfg.Durability == DurabilityLazy || cfg.Durability == DurabilityBatched {
		w.stopCh = make(chan struct{})
		w.doneCh = make(chan struct{})
		go w.flusher()
	}
	return w, nil
}

// SetNextLSN primes the LSN counter after recovery has determined the
// highest LSN already durable (from the snapshot's checkpoint_lsn and any
// replayed tail records).
func (w *WAL) SetNextLSN(n uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextLSN = n
	w.lastSync = n - 1
}

// Append assigns the next LSN to rec, writes it, and applies the
// configured durability policy. Returns the assigned LSN.
func (w *WAL) Append(op Op, path string, payload []byte) (common.LSN, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	lsn := w.nextLSN
	w.nextLSN++

	if w.cfg.Durability == DurabilityNone {
		w.lastSync = lsn
		return common.LSN(lsn), nil
	}

	rec := Record{LSN: common.LSN(lsn), Op: op, Path: path, Payload: payload}
	if _, err := w.file.Write(rec.encode()); err != nil {
		return 0, common.NewIOError(err, "wal: append record lsn=%d", lsn)
	}
	w.pending++

	switch w.cfg.Durability {
	case DurabilitySync:
		if err := w.file.Sync(); err != nil {
			return 0, common.NewIOError(err, "wal: fsync record lsn=%d", lsn)
		}
		w.markSynced(lsn)
	case DurabilityBatched:
		if w.pending >= w.cfg.BatchSize {
			if err := w.file.Sync(); err != nil {
				return 0, common.NewIOError(err, "wal: group-commit fsync at lsn=%d", lsn)
			}
			w.pending = 0
			w.markSynced(lsn)
		}
	case DurabilityLazy:
		// Flushed to the OS already via the unbuffered os.File.Write;
		// fsync happens on the background tick.
	}
	return common.LSN(lsn), nil
}

func (w *WAL) markSynced(lsn uint64) {
	if lsn > w.lastSync {
		w.lastSync = lsn
	}
	w.syncCond.Broadcast()
}

func (w *WAL) flusher() {
	defer close(w.doneCh)
	ticker := time.NewTicker(tickerInterval(w.cfg))
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.mu.Lock()
			if w.pending > 0 {
				if err := w.file.Sync(); err == nil {
					w.markSynced(w.nextLSN - 1)
					w.pending = 0
				}
			}
			w.mu.Unlock()
		}
	}
}

func tickerInterval(cfg Config) time.Duration {
	if cfg.Durability == DurabilityLazy {
		return lazyFsyncInterval
	}
	return cfg.FlushInterval
}

// Sync blocks until every record accepted so far has been fsynced,
// regardless of durability mode (spec §4.5's sync()).
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cfg.Durability == DurabilityNone {
		return nil
	}
	target := w.nextLSN - 1
	if w.pending > 0 {
		if err := w.file.Sync(); err != nil {
			return common.NewIOError(err, "wal: sync")
		}
		w.pending = 0
		w.markSynced(target)
	}
	for w.lastSync < target {
		w.syncCond.Wait()
	}
	return nil
}

// Status reports whether the WAL is enabled and the highest durable LSN.
type Status struct {
	Enabled      bool
	DurableLSN   common.LSN
	AllocatedLSN common.LSN
}

func (w *WAL) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{
		Enabled:      w.cfg.Durability != DurabilityNone,
		DurableLSN:   common.LSN(w.lastSync),
		AllocatedLSN: common.LSN(w.nextLSN - 1),
	}
}

// Replay walks the WAL sequentially, invoking apply for every well-formed
// record with LSN > checkpointLSN. It stops at the first record that fails
// its checksum or is truncated mid-record (torn-tail tolerance, spec §4.7)
// and truncates the file to the last good record boundary.
func (w *WAL) Replay(checkpointLSN common.LSN, apply func(Record) error) error {
	if w.cfg.Durability == DurabilityNone || w.file == nil {
		return nil
	}
	data, err := os.ReadFile(w.cfg.Path)
	if err != nil {
		return common.NewIOError(err, "wal: read for replay")
	}

	offset := 0
	maxLSN := uint64(checkpointLSN)
	for offset < len(data) {
		rec, n, err := decodeRecord(data[offset:])
		if err != nil {
			break // torn tail or corruption: stop, truncate below
		}
		if uint64(rec.LSN) > uint64(checkpointLSN) && rec.Op != OpCheckpoint {
			if err := apply(rec); err != nil {
				return err
			}
		}
		if uint64(rec.LSN) > maxLSN {
			maxLSN = uint64(rec.LSN)
		}
		offset += n
	}

	if offset != len(data) {
		if err := w.truncateTo(offset); err != nil {
			return err
		}
	}
	w.nextLSN = maxLSN + 1
	w.lastSync = maxLSN
	return nil
}

func (w *WAL) truncateTo(offset int) error {
	if err := w.file.Truncate(int64(offset)); err != nil {
		return common.NewCorruptionError(err, "wal: truncate torn tail at offset %d", offset)
	}
	if _, err := w.file.Seek(0, os.SEEK_END); err != nil {
		return common.NewIOError(err, "wal: seek to end after truncate")
	}
	return nil
}

// Checkpoint truncates the WAL to empty and writes a single checkpoint
// marker record at lsn, called once the corresponding snapshot has been
// durably written and renamed into place (spec §4.5).
func (w *WAL) Checkpoint(lsn common.LSN) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cfg.Durability == DurabilityNone {
		return nil
	}
	if err := w.file.Truncate(0); err != nil {
		return common.NewIOError(err, "wal: truncate for checkpoint")
	}
	if _, err := w.file.Seek(0, os.SEEK_SET); err != nil {
		return common.NewIOError(err, "wal: seek to start for checkpoint")
	}
	rec := Record{LSN: lsn, Op: OpCheckpoint}
	if _, err := w.file.Write(rec.encode()); err != nil {
		return common.NewIOError(err, "wal: write checkpoint marker")
	}
	if err := w.file.Sync(); err != nil {
		return common.NewIOError(err, "wal: fsync checkpoint marker")
	}
	w.pending = 0
	w.markSynced(uint64(lsn))
	return nil
}

// Close stops the background flusher (if any) and closes the file.
func (w *WAL) Close() error {
	if w.stopCh != nil {
		close(w.stopCh)
		<-w.doneCh
	}
	if w.file == nil {
		return nil
	}
	if err := w.file.Close(); err != nil {
		return common.NewIOError(err, "wal: close")
	}
	return nil
}
