package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/octoreflex/ranswarm/internal/raft"
)

const (
	raftMetaCurrentTerm = "current_term"
	raftMetaVotedFor    = "voted_for"
	raftMetaSnapshot    = "snapshot"
)

// BoltRaftStore persists Raft term/vote state, log entries, and snapshots
// into the same BoltDB file used for cache working-set persistence,
// implementing raft.Storage.
type BoltRaftStore struct {
	db *DB
}

// NewBoltRaftStore adapts a DB to raft.Storage.
func NewBoltRaftStore(db *DB) *BoltRaftStore {
	return &BoltRaftStore{db: db}
}

func raftLogKey(index uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, index)
	return key
}

// SaveTermAndVote persists currentTerm and votedFor before a node replies
// to a RequestVote or steps down, per spec §4.8's "persist before replying"
// requirement.
func (s *BoltRaftStore) SaveTermAndVote(term uint64, votedFor string) error {
	return s.db.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketRaftMeta))
		termBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(termBytes, term)
		if err := b.Put([]byte(raftMetaCurrentTerm), termBytes); err != nil {
			return fmt.Errorf("save current_term: %w", err)
		}
		if err := b.Put([]byte(raftMetaVotedFor), []byte(votedFor)); err != nil {
			return fmt.Errorf("save voted_for: %w", err)
		}
		return nil
	})
}

// LoadTermAndVote reads back the last persisted term/vote, for recovery on
// restart. Returns (0, "", nil) if nothing has been persisted yet.
func (s *BoltRaftStore) LoadTermAndVote() (uint64, string, error) {
	var term uint64
	var votedFor string
	err := s.db.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketRaftMeta))
		if v := b.Get([]byte(raftMetaCurrentTerm)); v != nil {
			term = binary.BigEndian.Uint64(v)
		}
		if v := b.Get([]byte(raftMetaVotedFor)); v != nil {
			votedFor = string(v)
		}
		return nil
	})
	return term, votedFor, err
}

// SaveEntries appends or overwrites log entries in the raft_log bucket,
// keyed by big-endian index so iteration order matches log order.
func (s *BoltRaftStore) SaveEntries(entries []raft.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketRaftLog))
		for _, e := range entries {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal log entry %d: %w", e.Index, err)
			}
			if err := b.Put(raftLogKey(e.Index), data); err != nil {
				return fmt.Errorf("put log entry %d: %w", e.Index, err)
			}
		}
		return nil
	})
}

// LoadEntries returns every persisted log entry, in index order, for
// restart recovery.
func (s *BoltRaftStore) LoadEntries() ([]raft.LogEntry, error) {
	var entries []raft.LogEntry
	err := s.db.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketRaftLog))
		return b.ForEach(func(_, v []byte) error {
			var e raft.LogEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	return entries, err
}

// SaveSnapshot persists a compaction snapshot and discards log entries it
// covers, keeping the raft_log bucket bounded.
func (s *BoltRaftStore) SaveSnapshot(snap raft.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.db.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketRaftMeta))
		if err := meta.Put([]byte(raftMetaSnapshot), data); err != nil {
			return fmt.Errorf("put snapshot: %w", err)
		}

		logBucket := tx.Bucket([]byte(bucketRaftLog))
		c := logBucket.Cursor()
		cutoff := raftLogKey(snap.LastIncludedIndex)
		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if string(k) > string(cutoff) {
				break
			}
			keyCopy := make([]byte, len(k))
			copy(keyCopy, k)
			toDelete = append(toDelete, keyCopy)
		}
		for _, k := range toDelete {
			if err := logBucket.Delete(k); err != nil {
				return fmt.Errorf("delete compacted entry: %w", err)
			}
		}
		return nil
	})
}

// LoadSnapshot returns the last persisted snapshot, if any.
func (s *BoltRaftStore) LoadSnapshot() (*raft.Snapshot, error) {
	var snap raft.Snapshot
	found := false
	err := s.db.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketRaftMeta))
		data := meta.Get([]byte(raftMetaSnapshot))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &snap)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &snap, nil
}
