// Package raft implements the leader-elected replicated log that holds the
// cluster-wide routing index (agent identity -> embedding) and agent
// registry metadata.
//
// Roles: Follower, Candidate, Leader. Standard Raft invariants apply
// (Election Safety, Leader Append-Only, Log Matching, Leader Completeness,
// State Machine Safety). RequestVote/AppendEntries follow the reference
// protocol plus the ConflictIndex/ConflictTerm fast-backtrack extension on
// AppendEntries rejection, so a rejected leader jumps directly to the
// follower's first entry for the conflicting term instead of decrementing
// nextIndex one at a time.
package raft

import "fmt"

// Role is a node's current position in the Raft state machine.
type Role uint8

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(r))
	}
}

// CommandType tags the payload carried by a LogEntry.
type CommandType uint8

const (
	// CommandNoop is appended by a new leader to commit entries from
	// previous terms; it carries no state-machine effect.
	CommandNoop CommandType = iota
	// CommandUpdateRoutingIndex upserts an agent's embedding in the
	// replicated routing index.
	CommandUpdateRoutingIndex
	// CommandRemoveAgent deletes an agent from both the routing index and
	// the agent registry.
	CommandRemoveAgent
	// CommandRegisterAgent inserts agent metadata into the registry.
	CommandRegisterAgent
	// CommandUpdateConfiguration swaps the cluster's peer set.
	CommandUpdateConfiguration
)

// AgentMetadata is the RegisterAgent command's payload shape, grounded on
// the original routing design's registration record.
type AgentMetadata struct {
	FeatureCode  string   `json:"feature_code"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
	Confidence   float32  `json:"confidence"`
}

// DefaultAgentConfidence is the confidence assigned to a newly registered
// agent before it has accumulated any feedback.
const DefaultAgentConfidence = 0.5

// Command is the decoded form of a LogEntry's payload.
type Command struct {
	Type          CommandType     `json:"type"`
	AgentID       string          `json:"agent_id,omitempty"`
	Embedding     []float32       `json:"embedding,omitempty"`
	Metadata      *AgentMetadata  `json:"metadata,omitempty"`
	Configuration []ClusterMember `json:"configuration,omitempty"`
}

// LogEntry is one slot in the replicated log. Index 0 is a sentinel with
// term 0; real entries start at index 1.
type LogEntry struct {
	Term    uint64  `json:"term"`
	Index   uint64  `json:"index"`
	Command Command `json:"command"`
	Hash    string  `json:"hash"`        // digest over this entry, chained from Parent
	Parent  string  `json:"parent_hash"` // Hash of entry at Index-1, "" for the sentinel
}

// ClusterMember is one voting participant in the cluster.
type ClusterMember struct {
	NodeID  string `json:"node_id"`
	Address string `json:"address"`
}

// ConfigChangeType distinguishes cluster-membership mutations.
type ConfigChangeType uint8

const (
	ConfigChangeAdd ConfigChangeType = iota
	ConfigChangeRemove
)

// ConfigChange describes a single membership mutation. It is not carried
// in the log: a CommandUpdateConfiguration entry's Configuration field
// holds the full recomputed member set, proposed wholesale
// (joint-consensus-lite: one round trip, no intermediate joint config).
type ConfigChange struct {
	Type   ConfigChangeType `json:"type"`
	Member ClusterMember    `json:"member"`
}

// Snapshot records compacted log state: everything up to and including
// LastIncludedIndex/LastIncludedTerm, replaced by a serialized state
// machine image.
type Snapshot struct {
	LastIncludedIndex uint64          `json:"last_included_index"`
	LastIncludedTerm  uint64          `json:"last_included_term"`
	Configuration     []ClusterMember `json:"configuration"`
	Data              []byte          `json:"data"`
}

// RequestVoteRequest is sent by a candidate to solicit votes.
type RequestVoteRequest struct {
	Term         uint64
	CandidateID  string
	LastLogIndex uint64
	LastLogTerm  uint64
}

// RequestVoteResponse is a follower's reply to RequestVote.
type RequestVoteResponse struct {
	Term        uint64
	VoteGranted bool
}

// AppendEntriesRequest replicates log entries (or serves as a heartbeat
// when Entries is empty).
type AppendEntriesRequest struct {
	Term         uint64
	LeaderID     string
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []LogEntry
	LeaderCommit uint64
}

// AppendEntriesResponse is a follower's reply to AppendEntries. ConflictIndex
// and ConflictTerm are populated on rejection to let the leader fast-forward
// nextIndex instead of decrementing by one each round.
type AppendEntriesResponse struct {
	Term          uint64
	Success       bool
	MatchIndex    uint64
	ConflictIndex uint64
	ConflictTerm  uint64
}

// InstallSnapshotRequest transfers a compacted snapshot to a follower that
// has fallen too far behind for normal log replication to catch it up.
type InstallSnapshotRequest struct {
	Term              uint64
	LeaderID          string
	LastIncludedIndex uint64
	LastIncludedTerm  uint64
	Configuration     []ClusterMember
	Data              []byte
}

// InstallSnapshotResponse is a follower's reply to InstallSnapshot.
type InstallSnapshotResponse struct {
	Term uint64
}
