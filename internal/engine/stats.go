package engine

import (
	"github.com/bytedance/sonic"

	"github.com/chaturanga836/docstore/internal/common"
)

// IndexStats is one declared index's counters, as reported by Stats.
type IndexStats struct {
	Name          string `json:"name"`
	Collection    string `json:"collection"`
	Field         string `json:"field"`
	UniqueValues  int    `json:"unique_values"`
	TotalPathRefs int    `json:"total_path_refs"`
}

// Stats is a snapshot of operational counters for diagnostics and logging.
// Unlike the snapshot envelope (see internal/recovery), nothing here carries
// a custom (Un)MarshalJSON, so it marshals through sonic's fast path
// without the correctness hazard that rules sonic out for value.Value.
type Stats struct {
	RootKeyCount  int          `json:"root_key_count"`
	CheckpointLSN uint64       `json:"checkpoint_lsn"`
	AllocatedLSN  uint64       `json:"allocated_lsn"`
	DurableLSN    uint64       `json:"durable_lsn"`
	WALEnabled    bool         `json:"wal_enabled"`
	Indices       []IndexStats `json:"indices"`
}

// Stats reports a point-in-time snapshot of operational counters.
func (db *DB) Stats() Stats {
	root := db.loadRoot()
	status := db.wal.Status()

	indices := make([]IndexStats, 0, len(db.indices))
	for _, ix := range db.indices {
		s := ix.Stats()
		indices = append(indices, IndexStats{
			Name:          s["name"].(string),
			Collection:    s["collection"].(string),
			Field:         s["field"].(string),
			UniqueValues:  s["unique_values"].(int),
			TotalPathRefs: s["total_path_refs"].(int),
		})
	}

	return Stats{
		RootKeyCount:  root.Len(),
		CheckpointLSN: uint64(db.checkpointLSN),
		AllocatedLSN:  uint64(status.AllocatedLSN),
		DurableLSN:    uint64(status.DurableLSN),
		WALEnabled:    status.Enabled,
		Indices:       indices,
	}
}

// StatsJSON marshals Stats via sonic, for callers that want to log or
// expose the diagnostic snapshot as a JSON string directly.
func (db *DB) StatsJSON() ([]byte, error) {
	data, err := sonic.Marshal(db.Stats())
	if err != nil {
		return nil, common.NewErrorWithCause(common.ErrInternal, "engine: marshal stats", err)
	}
	return data, nil
}
