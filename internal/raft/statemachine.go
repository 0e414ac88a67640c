package raft

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/octoreflex/ranswarm/internal/vectorops"
)

// StateMachine is the interface the apply loop drives with committed
// commands. The shipped implementation is RoutingStateMachine; tests may
// substitute a fake.
type StateMachine interface {
	Apply(cmd Command) error
	Snapshot() ([]byte, error)
	Restore(data []byte) error
}

// NearestAgent is one result row from a routing-index similarity query.
type NearestAgent struct {
	AgentID    string
	Similarity float32
}

// routingEntry is the per-agent record held in the replicated routing
// index.
type routingEntry struct {
	Embedding []float32
	Metadata  AgentMetadata
}

// RoutingStateMachine is the replicated state machine driven by the Raft
// apply loop: the cluster-wide mapping from agent identity to embedding
// (the routing index) plus each agent's registration metadata.
//
// Single-writer (the Raft apply loop); FindNearest is a read against
// committed state and takes the read lock only, per spec's "reads access
// through a snapshot API" ordering guarantee.
type RoutingStateMachine struct {
	mu    sync.RWMutex
	ops   *vectorops.Ops
	peers []ClusterMember
	byID  map[string]routingEntry
}

// NewRoutingStateMachine returns an empty state machine.
func NewRoutingStateMachine() *RoutingStateMachine {
	return &RoutingStateMachine{
		ops:  vectorops.New(),
		byID: make(map[string]routingEntry),
	}
}

// Apply dispatches a committed command to the state machine, per spec
// §4.8's apply-loop semantics.
func (sm *RoutingStateMachine) Apply(cmd Command) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch cmd.Type {
	case CommandUpdateRoutingIndex:
		entry := sm.byID[cmd.AgentID]
		entry.Embedding = cmd.Embedding
		sm.byID[cmd.AgentID] = entry

	case CommandRemoveAgent:
		delete(sm.byID, cmd.AgentID)

	case CommandRegisterAgent:
		entry := sm.byID[cmd.AgentID]
		if cmd.Metadata != nil {
			entry.Metadata = *cmd.Metadata
			if entry.Metadata.Confidence == 0 {
				entry.Metadata.Confidence = DefaultAgentConfidence
			}
		}
		sm.byID[cmd.AgentID] = entry

	case CommandUpdateConfiguration:
		sm.peers = cmd.Configuration

	case CommandNoop:
		// No state-machine effect; still resolves any pending apply waiter.
	}
	return nil
}

// FindNearest returns the top-k agent ids by cosine similarity to
// queryVec, scanning the routing index linearly and sorting by score —
// the reference routing design's semantics for this read path. This is a
// read against committed state only; it never itself goes through Raft.
func (sm *RoutingStateMachine) FindNearest(queryVec []float32, k int) []NearestAgent {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	results := make([]NearestAgent, 0, len(sm.byID))
	for id, entry := range sm.byID {
		if len(entry.Embedding) != len(queryVec) {
			continue
		}
		results = append(results, NearestAgent{
			AgentID:    id,
			Similarity: sm.ops.Cosine(queryVec, entry.Embedding),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].AgentID < results[j].AgentID
	})

	if k < len(results) {
		results = results[:k]
	}
	return results
}

// Metadata returns the registered metadata for an agent id, if any.
func (sm *RoutingStateMachine) Metadata(agentID string) (AgentMetadata, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	entry, ok := sm.byID[agentID]
	return entry.Metadata, ok
}

// Peers returns the current cluster member set recorded by the last
// applied CommandUpdateConfiguration.
func (sm *RoutingStateMachine) Peers() []ClusterMember {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]ClusterMember, len(sm.peers))
	copy(out, sm.peers)
	return out
}

// snapshotImage is the JSON-serialized form of the state machine used by
// Snapshot/Restore.
type snapshotImage struct {
	Peers []ClusterMember         `json:"peers"`
	ByID  map[string]routingEntry `json:"by_id"`
}

// Snapshot serializes the full state machine for log compaction or
// InstallSnapshot transfer.
func (sm *RoutingStateMachine) Snapshot() ([]byte, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return json.Marshal(snapshotImage{Peers: sm.peers, ByID: sm.byID})
}

// Restore replaces the state machine's contents with a previously
// serialized snapshot.
func (sm *RoutingStateMachine) Restore(data []byte) error {
	var img snapshotImage
	if err := json.Unmarshal(data, &img); err != nil {
		return err
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.peers = img.Peers
	sm.byID = img.ByID
	if sm.byID == nil {
		sm.byID = make(map[string]routingEntry)
	}
	return nil
}
