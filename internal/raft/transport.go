package raft

import "context"

// Transport abstracts the RPC mechanism used to reach peers, so the
// consensus core stays independent of the wire protocol. The production
// implementation is internal/raftrpc's gRPC client; tests use an in-memory
// transport wired directly against peer Nodes.
type Transport interface {
	RequestVote(ctx context.Context, peerAddr string, req *RequestVoteRequest) (*RequestVoteResponse, error)
	AppendEntries(ctx context.Context, peerAddr string, req *AppendEntriesRequest) (*AppendEntriesResponse, error)
	InstallSnapshot(ctx context.Context, peerAddr string, req *InstallSnapshotRequest) (*InstallSnapshotResponse, error)
}

// Storage is the persistence hook a Node writes currentTerm, votedFor,
// log entries and snapshots to. The Node never reads them back, so a
// restarted Node starts at term 0 with an empty log. Persistence is
// best-effort from the Node's perspective: a SaveSnapshot failure during
// the Node's own compaction is logged, every other Save error is
// discarded, and none is fatal, mirroring the cache's persist-before-evict contract
// (internal/cache.Persister) — correctness here comes from the in-memory
// Log and majority replication, not from any single node's disk state.
type Storage interface {
	SaveTermAndVote(term uint64, votedFor string) error
	SaveEntries(entries []LogEntry) error
	SaveSnapshot(snap Snapshot) error
}

// noopStorage discards everything. Used when a Node is constructed without
// a durable backing store (tests, ephemeral simulation nodes).
type noopStorage struct{}

func (noopStorage) SaveTermAndVote(uint64, string) error { return nil }
func (noopStorage) SaveEntries([]LogEntry) error         { return nil }
func (noopStorage) SaveSnapshot(Snapshot) error          { return nil }
