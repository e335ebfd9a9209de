// Package docstore is an embedded, single-file JSON document store: an
// in-memory value tree addressed by dot-paths, durable via a write-ahead
// log and periodic snapshots, with optional secondary hash indexes and a
// data-parallel query/aggregate/join executor. See internal/engine for the
// orchestration and internal/value for the tree itself.
package docstore

import (
	"github.com/chaturanga836/docstore/internal/common"
	"github.com/chaturanga836/docstore/internal/engine"
	"github.com/chaturanga836/docstore/internal/exec"
	"github.com/chaturanga836/docstore/internal/filelock"
	"github.com/chaturanga836/docstore/internal/index"
	"github.com/chaturanga836/docstore/internal/schema"
	"github.com/chaturanga836/docstore/internal/value"
	"github.com/chaturanga836/docstore/internal/wal"
)

// DB is an open document store. All exported methods are safe for
// concurrent use: reads are lock-free, mutations are serialized.
type DB = engine.DB

// Options configures Open. Every field is optional; unset fields take the
// defaults documented on each (spec §6).
type Options = engine.Options

// Tx is the handle passed to a Transaction callback.
type Tx = engine.Tx

// BatchOp is one mutation within a Batch call.
type BatchOp = engine.BatchOp

// BatchOpKind selects which tree mutation a BatchOp performs.
type BatchOpKind = engine.BatchOpKind

const (
	BatchSet      = engine.BatchSet
	BatchDelete   = engine.BatchDelete
	BatchPush     = engine.BatchPush
	BatchPull     = engine.BatchPull
	BatchAdd      = engine.BatchAdd
	BatchSubtract = engine.BatchSubtract
)

// Subscriber, BeforeHook, and AfterHook are the collaborator hooks a host
// can register against a DB (spec §6).
type (
	Subscriber = engine.Subscriber
	BeforeHook = engine.BeforeHook
	AfterHook  = engine.AfterHook
)

// IndexDeclaration declares one secondary equality index at open time.
type IndexDeclaration = index.Declaration

// Schema declares a structural constraint enforced on every write under a
// registered path prefix.
type Schema = schema.Schema

// Value is a single immutable JSON value: null, bool, number, string,
// array, or object.
type Value = value.Value

// Durability selects the WAL fsync policy.
type Durability = wal.Durability

const (
	DurabilityNone    = wal.DurabilityNone
	DurabilityLazy    = wal.DurabilityLazy
	DurabilityBatched = wal.DurabilityBatched
	DurabilitySync    = wal.DurabilitySync
)

// LockMode selects the file-lock discipline taken on open.
type LockMode = filelock.Mode

const (
	LockModeNone      = filelock.ModeNone
	LockModeExclusive = filelock.ModeExclusive
	LockModeShared    = filelock.ModeShared
)

// Filter is one predicate in a Query call: item[Field] Op Value.
type Filter = exec.Filter

// FilterOp is a comparison or set operator usable in a Filter.
type FilterOp = exec.FilterOp

const (
	OpEq          = exec.OpEq
	OpNe          = exec.OpNe
	OpGt          = exec.OpGt
	OpGte         = exec.OpGte
	OpLt          = exec.OpLt
	OpLte         = exec.OpLte
	OpContains    = exec.OpContains
	OpStartsWith  = exec.OpStartsWith
	OpEndsWith    = exec.OpEndsWith
	OpIn          = exec.OpIn
	OpNotIn       = exec.OpNotIn
	OpRegex       = exec.OpRegex
	OpContainsAll = exec.OpContainsAll
	OpContainsAny = exec.OpContainsAny
)

// AggOp selects the fold Aggregate runs.
type AggOp = exec.AggOp

const (
	AggCount = exec.AggCount
	AggSum   = exec.AggSum
	AggAvg   = exec.AggAvg
	AggMin   = exec.AggMin
	AggMax   = exec.AggMax
)

// Item is one child of a scanned collection, returned by Query and Lookup.
type Item = exec.Item

// Stats is a point-in-time snapshot of operational counters, for
// diagnostics and logging.
type Stats = engine.Stats

// IndexStats is one declared index's counters within Stats.
type IndexStats = engine.IndexStats

// ErrorKind classifies the errors returned by every public operation
// (spec §7).
type ErrorKind = common.ErrorKind

const (
	ErrPath       = common.ErrPath
	ErrType       = common.ErrType
	ErrValidation = common.ErrValidation
	ErrIndex      = common.ErrIndex
	ErrLock       = common.ErrLock
	ErrReadOnly   = common.ErrReadOnly
	ErrIO         = common.ErrIO
	ErrCorruption = common.ErrCorruption
	ErrTxConflict = common.ErrTxConflict
)

// IsKind reports whether err was returned with the given ErrorKind.
func IsKind(err error, kind ErrorKind) bool {
	return common.IsKind(err, kind)
}

// Open loads (or creates) the store at path under opts, running the
// recovery sequence of spec §4.7: acquire the file lock, load the
// snapshot, replay the WAL tail, and adopt or rebuild every declared
// index.
func Open(path string, opts Options) (*DB, error) {
	return engine.Open(path, opts)
}

// re-exported so callers can build values without importing the internal
// value package directly.
var (
	NewNull   = value.NewNull
	NewBool   = value.NewBool
	NewNumber = value.NewNumber
	NewString = value.NewString
	NewArray  = value.NewArray
	NewObject = value.NewObject
	FromAny   = value.FromAny
)
