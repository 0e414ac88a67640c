package storage

import (
	"testing"

	"github.com/octoreflex/ranswarm/internal/raft"
)

func TestBoltRaftStoreSaveAndLoadTermAndVote(t *testing.T) {
	db := openTestDB(t)
	store := NewBoltRaftStore(db)

	if err := store.SaveTermAndVote(7, "node-b"); err != nil {
		t.Fatalf("SaveTermAndVote: %v", err)
	}

	term, votedFor, err := store.LoadTermAndVote()
	if err != nil {
		t.Fatalf("LoadTermAndVote: %v", err)
	}
	if term != 7 || votedFor != "node-b" {
		t.Fatalf("LoadTermAndVote() = (%d, %q), want (7, \"node-b\")", term, votedFor)
	}
}

func TestBoltRaftStoreLoadTermAndVoteDefaultsToZero(t *testing.T) {
	db := openTestDB(t)
	store := NewBoltRaftStore(db)

	term, votedFor, err := store.LoadTermAndVote()
	if err != nil {
		t.Fatalf("LoadTermAndVote: %v", err)
	}
	if term != 0 || votedFor != "" {
		t.Fatalf("LoadTermAndVote() on empty store = (%d, %q), want (0, \"\")", term, votedFor)
	}
}

func TestBoltRaftStoreSaveAndLoadEntriesInIndexOrder(t *testing.T) {
	db := openTestDB(t)
	store := NewBoltRaftStore(db)

	entries := []raft.LogEntry{
		{Term: 1, Index: 1, Command: raft.Command{Type: raft.CommandNoop}},
		{Term: 1, Index: 2, Command: raft.Command{Type: raft.CommandRegisterAgent, AgentID: "a"}},
		{Term: 2, Index: 3, Command: raft.Command{Type: raft.CommandRemoveAgent, AgentID: "a"}},
	}
	if err := store.SaveEntries(entries); err != nil {
		t.Fatalf("SaveEntries: %v", err)
	}

	loaded, err := store.LoadEntries()
	if err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("len(loaded) = %d, want 3", len(loaded))
	}
	for i, e := range loaded {
		if e.Index != uint64(i+1) {
			t.Fatalf("loaded[%d].Index = %d, want %d", i, e.Index, i+1)
		}
	}
}

func TestBoltRaftStoreSaveSnapshotCompactsCoveredEntries(t *testing.T) {
	db := openTestDB(t)
	store := NewBoltRaftStore(db)

	entries := []raft.LogEntry{
		{Term: 1, Index: 1},
		{Term: 1, Index: 2},
		{Term: 2, Index: 3},
	}
	if err := store.SaveEntries(entries); err != nil {
		t.Fatalf("SaveEntries: %v", err)
	}

	snap := raft.Snapshot{LastIncludedIndex: 2, LastIncludedTerm: 1, Data: []byte("state")}
	if err := store.SaveSnapshot(snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	loaded, err := store.LoadEntries()
	if err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Index != 3 {
		t.Fatalf("expected only index 3 to survive compaction, got %+v", loaded)
	}

	gotSnap, err := store.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if gotSnap == nil || gotSnap.LastIncludedIndex != 2 || string(gotSnap.Data) != "state" {
		t.Fatalf("LoadSnapshot() = %+v, want LastIncludedIndex=2 Data=state", gotSnap)
	}
}

func TestBoltRaftStoreLoadSnapshotReturnsNilWhenNoneSaved(t *testing.T) {
	db := openTestDB(t)
	store := NewBoltRaftStore(db)

	snap, err := store.LoadSnapshot()
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if snap != nil {
		t.Fatalf("expected nil snapshot, got %+v", snap)
	}
}
