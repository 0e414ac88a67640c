// Package storage — bolt.go
//
// BoltDB-backed persistent storage for ranswarm agents.
//
// Schema (BoltDB bucket layout):
//
//	/working_sets
//	    key:   blake3(agent_id)  [32 bytes hex-encoded = 64 chars]
//	    value: JSON-encoded WorkingSetRecord
//
//	/decision_ledger
//	    key:   UTC RFC3339 timestamp with a fixed 9-digit fraction + "_" + agent_id  [sortable]
//	    value: JSON-encoded DecisionEntry
//
//	/meta
//	    key:   "schema_version"
//	    value: "1"
//
//	/raft_log
//	    key:   index (uint64 big-endian, 8 bytes) — sortable, matches log order
//	    value: JSON-encoded raft.LogEntry
//
//	/raft_meta
//	    key:   "current_term" | "voted_for" | "snapshot"
//	    value: raw term/candidate bytes, or JSON-encoded raft.Snapshot
//
// Consistency model:
//   - Single-process, single-writer (BoltDB does not support concurrent writers).
//   - All writes use ACID transactions (bbolt Tx.Commit()).
//   - Reads use read-only transactions (bbolt.View()).
//   - CRC32 integrity check on database open (bbolt built-in).
//
// Retention:
//   - Decision ledger entries older than RetentionDays are pruned once at
//     startup by cmd/ranswarm; nothing prunes them while the agent runs.
//   - Working sets are never automatically pruned (an evicted cache entry
//     overwrites its own prior snapshot; an agent leaving the swarm is an
//     operator action).
//
// Failure modes:
//   - BoltDB file corruption: bbolt detects via CRC and returns an error
//     on Open(). The agent logs a fatal event and refuses to start.
//   - Disk full: bbolt.Update() returns an error. The cache's eviction path
//     treats this as a non-fatal persistence failure (spec §4.6) and
//     continues with the eviction committed.
package storage

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
	"lukechampine.com/blake3"
)

const (
	// DefaultDBPath is the default BoltDB file location.
	DefaultDBPath = "/var/lib/ranswarm/ranswarm.db"

	// SchemaVersion is the current database schema version.
	SchemaVersion = "1"

	// DefaultRetentionDays is the default decision ledger retention period.
	DefaultRetentionDays = 30

	// bucketWorkingSets is the BoltDB bucket name for cached agent working sets.
	bucketWorkingSets = "working_sets"

	// bucketDecisionLedger is the BoltDB bucket name for the decision audit log.
	bucketDecisionLedger = "decision_ledger"

	// bucketMeta is the BoltDB bucket name for schema metadata.
	bucketMeta = "meta"

	// bucketRaftLog is the BoltDB bucket name for the replicated Raft log.
	bucketRaftLog = "raft_log"

	// bucketRaftMeta is the BoltDB bucket name for Raft term/vote/snapshot state.
	bucketRaftMeta = "raft_meta"
)

// WorkingSetRecord is the persisted form of an evicted agent working set.
// Stored as JSON in the working_sets bucket; mirrors cache.Entry.
type WorkingSetRecord struct {
	AgentID          string    `json:"agent_id"`
	QTableBytes      []byte    `json:"q_table_bytes"`
	TrajectoryBytes  []byte    `json:"trajectory_bytes"`
	HNSWSliceBytes   []byte    `json:"hnsw_slice_bytes,omitempty"`
	MemoryUsageBytes uint64    `json:"memory_usage_bytes"`
	LastAccessed     time.Time `json:"last_accessed"`
	AccessCount      uint64    `json:"access_count"`
	PersistedAt      time.Time `json:"persisted_at"`
}

// DecisionEntry is a single query-pipeline decision audit record.
// Stored as JSON in the decision_ledger bucket.
type DecisionEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	AgentID    string    `json:"agent_id"`
	QueryType  uint8     `json:"query_type"`
	Action     uint8     `json:"action"`
	Confidence float32   `json:"confidence"`
	Reward     float32   `json:"reward"`
	NodeID     string    `json:"node_id"`
}

// DB wraps a BoltDB instance with typed accessors for ranswarm data.
type DB struct {
	db            *bolt.DB
	retentionDays int
}

// Open opens (or creates) the BoltDB database at the given path.
// Initialises all required buckets and verifies the schema version.
// Returns an error if the database is corrupt or schema is incompatible.
func Open(path string, retentionDays int) (*DB, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:      5 * time.Second,
		NoGrowSync:   false,
		FreelistType: bolt.FreelistArrayType,
	})
	if err != nil {
		return nil, fmt.Errorf("bolt.Open(%q): %w", path, err)
	}

	d := &DB{db: bdb, retentionDays: retentionDays}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketWorkingSets, bucketDecisionLedger, bucketMeta, bucketRaftLog, bucketRaftMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("CreateBucketIfNotExists(%q): %w", name, err)
			}
		}

		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(SchemaVersion)); err != nil {
				return fmt.Errorf("write schema_version: %w", err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("database initialisation failed: %w", err)
	}

	if err := d.checkSchemaVersion(); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return d, nil
}

// checkSchemaVersion reads and validates the stored schema version.
func (d *DB) checkSchemaVersion() error {
	return d.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		v := meta.Get([]byte("schema_version"))
		if string(v) != SchemaVersion {
			return fmt.Errorf(
				"schema version mismatch: database has %q, agent requires %q. "+
					"Run migration or restore from backup.",
				string(v), SchemaVersion,
			)
		}
		return nil
	})
}

// Close closes the underlying BoltDB file.
func (d *DB) Close() error {
	return d.db.Close()
}

// ─── Working-set operations ────────────────────────────────────────────────

// agentKey computes the BoltDB key for an agent id: blake3(id) hex-encoded.
func agentKey(agentID string) []byte {
	h := blake3.Sum256([]byte(agentID))
	key := make([]byte, hex.EncodedLen(len(h)))
	hex.Encode(key, h[:])
	return key
}

// PutWorkingSet writes or overwrites the persisted working set for an agent.
// Uses a single ACID write transaction.
func (d *DB) PutWorkingSet(rec WorkingSetRecord) error {
	rec.PersistedAt = time.Now().UTC()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("PutWorkingSet marshal: %w", err)
	}

	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketWorkingSets))
		if err := b.Put(agentKey(rec.AgentID), data); err != nil {
			return fmt.Errorf("PutWorkingSet bolt.Put: %w", err)
		}
		return nil
	})
}

// GetWorkingSet retrieves the persisted working set for an agent id.
// Returns (nil, nil) if no snapshot exists.
func (d *DB) GetWorkingSet(agentID string) (*WorkingSetRecord, error) {
	key := agentKey(agentID)
	var rec WorkingSetRecord
	found := false

	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketWorkingSets))
		data := b.Get(key)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("GetWorkingSet(%q): %w", agentID, err)
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

// ─── Decision ledger operations ────────────────────────────────────────────

// ledgerKey constructs a sortable BoltDB key for a decision entry.
// Format: UTC RFC3339 with a fixed 9-digit fraction + "_" + agent_id. The
// fixed width makes lexicographic sort = chronological.
func ledgerKey(t time.Time, agentID string) []byte {
	return []byte(fmt.Sprintf("%s_%s", t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"), agentID))
}

// AppendDecision writes a new decision audit entry.
func (d *DB) AppendDecision(entry DecisionEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("AppendDecision marshal: %w", err)
	}

	key := ledgerKey(entry.Timestamp, entry.AgentID)

	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketDecisionLedger))
		if err := b.Put(key, data); err != nil {
			return fmt.Errorf("AppendDecision bolt.Put: %w", err)
		}
		return nil
	})
}

// PruneOldDecisions deletes decision ledger entries older than
// retentionDays. Returns the number of entries deleted.
func (d *DB) PruneOldDecisions() (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -d.retentionDays)
	cutoffKey := ledgerKey(cutoff, "")

	var deleted int
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketDecisionLedger))
		c := b.Cursor()

		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if string(k) >= string(cutoffKey) {
				break
			}
			keyCopy := make([]byte, len(k))
			copy(keyCopy, k)
			toDelete = append(toDelete, keyCopy)
		}

		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("PruneOldDecisions delete: %w", err)
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// ReadDecisions returns all decision ledger entries in chronological order.
// For operational inspection; not called on the hot path.
func (d *DB) ReadDecisions() ([]DecisionEntry, error) {
	var entries []DecisionEntry
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketDecisionLedger))
		return b.ForEach(func(_, v []byte) error {
			var entry DecisionEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}
