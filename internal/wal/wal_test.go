package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaturanga836/docstore/internal/common"
)

func TestWAL_AppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.wal")

	w, err := Open(Config{Path: path, Durability: DurabilitySync})
	require.NoError(t, err)

	lsn1, err := w.Append(OpSet, "user.name", []byte(`"Alice"`))
	require.NoError(t, err)
	assert.Equal(t, common.LSN(1), lsn1)

	lsn2, err := w.Append(OpSet, "user.age", []byte(`30`))
	require.NoError(t, err)
	assert.Equal(t, common.LSN(2), lsn2)
	require.NoError(t, w.Close())

	w2, err := Open(Config{Path: path, Durability: DurabilitySync})
	require.NoError(t, err)
	defer w2.Close()

	var replayed []Record
	require.NoError(t, w2.Replay(0, func(r Record) error {
		replayed = append(replayed, r)
		return nil
	}))
	require.Len(t, replayed, 2)
	assert.Equal(t, "user.name", replayed[0].Path)
	assert.Equal(t, "user.age", replayed[1].Path)
}

func TestWAL_ReplayHonorsCheckpointLSN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.wal")

	w, err := Open(Config{Path: path, Durability: DurabilitySync})
	require.NoError(t, err)
	_, err = w.Append(OpSet, "a", []byte(`1`))
	require.NoError(t, err)
	_, err = w.Append(OpSet, "b", []byte(`2`))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w2, err := Open(Config{Path: path, Durability: DurabilitySync})
	require.NoError(t, err)
	defer w2.Close()

	var replayed []Record
	require.NoError(t, w2.Replay(1, func(r Record) error {
		replayed = append(replayed, r)
		return nil
	}))
	require.Len(t, replayed, 1)
	assert.Equal(t, "b", replayed[0].Path)
}

func TestWAL_TornTailIsTruncated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.wal")

	w, err := Open(Config{Path: path, Durability: DurabilitySync})
	require.NoError(t, err)
	_, err = w.Append(OpSet, "a", []byte(`1`))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Append a deliberately truncated second record directly to the file.
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0o644)
	require.NoError(t, err)
	goodRec := Record{LSN: 2, Op: OpSet, Path: "b", Payload: []byte(`2`)}
	encoded := goodRec.encode()
	_, err = f.Write(encoded[:len(encoded)-3]) // truncate mid-record
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w2, err := Open(Config{Path: path, Durability: DurabilitySync})
	require.NoError(t, err)
	defer w2.Close()

	var replayed []Record
	require.NoError(t, w2.Replay(0, func(r Record) error {
		replayed = append(replayed, r)
		return nil
	}))
	require.Len(t, replayed, 1)
	assert.Equal(t, "a", replayed[0].Path)
}

func TestWAL_CheckpointTruncatesAndWritesMarker(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.wal")

	w, err := Open(Config{Path: path, Durability: DurabilitySync})
	require.NoError(t, err)
	_, err = w.Append(OpSet, "a", []byte(`1`))
	require.NoError(t, err)
	require.NoError(t, w.Checkpoint(5))

	status := w.Status()
	assert.Equal(t, common.LSN(5), status.DurableLSN)
	require.NoError(t, w.Close())

	w2, err := Open(Config{Path: path, Durability: DurabilitySync})
	require.NoError(t, err)
	defer w2.Close()
	var replayed []Record
	require.NoError(t, w2.Replay(5, func(r Record) error {
		replayed = append(replayed, r)
		return nil
	}))
	assert.Empty(t, replayed)
}

func TestWAL_DurabilityNoneDoesNotPersist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.wal")

	w, err := Open(Config{Path: path, Durability: DurabilityNone})
	require.NoError(t, err)
	lsn, err := w.Append(OpSet, "a", []byte(`1`))
	require.NoError(t, err)
	assert.Equal(t, common.LSN(1), lsn)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())
}

func TestWAL_SetNextLSNContinuesNumbering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.wal")
	w, err := Open(Config{Path: path, Durability: DurabilitySync})
	require.NoError(t, err)
	defer w.Close()

	w.SetNextLSN(100)
	lsn, err := w.Append(OpSet, "a", []byte(`1`))
	require.NoError(t, err)
	assert.Equal(t, common.LSN(100), lsn)
}
