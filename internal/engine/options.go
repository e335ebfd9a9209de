package engine

import (
	"time"

	"github.com/chaturanga836/docstore/internal/common"
	"github.com/chaturanga836/docstore/internal/filelock"
	"github.com/chaturanga836/docstore/internal/index"
	"github.com/chaturanga836/docstore/internal/schema"
	"github.com/chaturanga836/docstore/internal/wal"
)

// Options configures Open (spec §6). Every field is optional; setDefaults
// fills in the documented defaults.
type Options struct {
	// Indices declares the secondary equality indexes to maintain.
	Indices []index.Declaration

	// WAL is a convenience flag: true sets Durability to batched when it
	// is DurabilityNone and LockMode to exclusive when it is ModeNone.
	// Those are the zero values, so an explicit none is replaced as well.
	WAL bool

	// EncryptionKey enables AES-256-GCM envelope encryption of the
	// snapshot file (the WAL itself is never encrypted).
	EncryptionKey string

	// AutoSaveInterval is the period of the background save that runs
	// when Durability is none: the store is saved on every tick, whether
	// or not it changed, and saves are not deferred after recent writes.
	// Default 1s.
	AutoSaveInterval time.Duration

	// LockMode selects the file-lock discipline. Default none, or
	// exclusive when WAL is true.
	LockMode filelock.Mode

	// LockTimeout bounds how long Open waits to acquire LockMode.
	// Default 0 (fail fast).
	LockTimeout time.Duration

	// Durability selects the WAL fsync policy. Default none, or batched
	// when WAL is true.
	Durability wal.Durability

	// WALBatchSize is the batched-mode group-commit record count.
	// Default 1000.
	WALBatchSize int

	// WALFlushInterval is the batched-mode group-commit fsync interval.
	// Default 10ms.
	WALFlushInterval time.Duration

	// Schemas maps a path prefix to the schema validated against writes
	// under that prefix.
	Schemas map[string]*schema.Schema

	// SlowQueryThreshold is the duration above which an operation logs a
	// slow_query event. Default 100ms.
	SlowQueryThreshold time.Duration
}

func (o *Options) setDefaults() {
	if o.WAL {
		if o.Durability == wal.DurabilityNone {
			o.Durability = wal.DurabilityBatched
		}
		if o.LockMode == filelock.ModeNone {
			o.LockMode = filelock.ModeExclusive
		}
	}
	if o.AutoSaveInterval <= 0 {
		o.AutoSaveInterval = common.DefaultAutoSaveInterval
	}
	if o.WALBatchSize <= 0 {
		o.WALBatchSize = common.DefaultWALBatchSize
	}
	if o.WALFlushInterval <= 0 {
		o.WALFlushInterval = common.DefaultWALFlushInterval
	}
	if o.SlowQueryThreshold <= 0 {
		o.SlowQueryThreshold = common.DefaultSlowQueryThreshold
	}
}
