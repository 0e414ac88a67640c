package raft

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config parameterizes a Node's timers and cluster membership. Peers maps
// nodeID -> transport address and must not include the local NodeID.
type Config struct {
	NodeID             string
	Peers              map[string]string
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	HeartbeatInterval  time.Duration
	SnapshotThreshold  int
}

// DefaultConfig returns reasonable default timer values: 150-300ms
// randomized election timeout, 50ms heartbeat interval.
func DefaultConfig(nodeID string, peers map[string]string) Config {
	return Config{
		NodeID:             nodeID,
		Peers:              peers,
		ElectionTimeoutMin: 150 * time.Millisecond,
		ElectionTimeoutMax: 300 * time.Millisecond,
		HeartbeatInterval:  50 * time.Millisecond,
		SnapshotThreshold:  1000,
	}
}

// ApplyResult is delivered to a Propose caller once its entry is applied.
type ApplyResult struct {
	Index uint64
	Err   error
}

// Node is one participant in the Raft cluster. Role transitions
// (Follower -> Candidate -> Leader, and step-down back to Follower) and
// the term, vote, commit and peer-tracking fields change only while
// holding mu; the pending apply waiters are guarded by pendingMu.
type Node struct {
	mu sync.Mutex

	cfg    Config
	logger *zap.Logger
	rng    *rand.Rand

	role          Role
	currentTerm   uint64
	votedFor      string
	leaderID      string
	lastHeartbeat time.Time

	log     *Log
	sm      StateMachine
	storage Storage

	commitIndex uint64
	lastApplied uint64

	peers      map[string]string // live copy of cfg.Peers, mutated by CommandUpdateConfiguration
	nextIndex  map[string]uint64
	matchIndex map[string]uint64

	transport Transport

	pendingMu sync.Mutex
	pending   map[uint64]chan ApplyResult

	stopCh chan struct{}
	wg     sync.WaitGroup
	done   bool
}

// NewNode constructs a Node in the Follower role. storage may be nil, in
// which case nothing is written to disk. The Node writes to storage but
// never reads from it: a new Node always starts at term 0 with an empty
// log.
func NewNode(cfg Config, sm StateMachine, transport Transport, storage Storage, logger *zap.Logger) *Node {
	if storage == nil {
		storage = noopStorage{}
	}
	peers := make(map[string]string, len(cfg.Peers))
	for id, addr := range cfg.Peers {
		peers[id] = addr
	}
	return &Node{
		cfg:           cfg,
		logger:        logger,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		role:          Follower,
		log:           NewLog(),
		sm:            sm,
		storage:       storage,
		peers:         peers,
		nextIndex:     make(map[string]uint64),
		matchIndex:    make(map[string]uint64),
		transport:     transport,
		pending:       make(map[uint64]chan ApplyResult),
		stopCh:        make(chan struct{}),
		lastHeartbeat: time.Now(),
	}
}

// Start launches the node's run loop in the background.
func (n *Node) Start() {
	n.wg.Add(1)
	go n.run()
}

// Stop halts the run loop and waits for it to exit.
func (n *Node) Stop() {
	n.mu.Lock()
	if n.done {
		n.mu.Unlock()
		return
	}
	n.done = true
	n.mu.Unlock()
	close(n.stopCh)
	n.wg.Wait()
}

// Role returns the node's current role.
func (n *Node) Role() Role {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role
}

// Term returns the node's current term.
func (n *Node) Term() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.currentTerm
}

// IsLeader reports whether this node currently believes itself the leader.
func (n *Node) IsLeader() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role == Leader
}

// LeaderID returns the node id of the last known leader ("" if unknown).
func (n *Node) LeaderID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.leaderID
}

// CommitIndex returns the highest log index known to be committed.
func (n *Node) CommitIndex() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.commitIndex
}

// FindNearest serves a read-only routing-index query against committed
// state machine state. It never blocks on consensus: spec §4.8 defines
// find_nearest as "a read from the committed state machine", not a
// replicated operation.
func (n *Node) FindNearest(queryVec []float32, k int) []NearestAgent {
	if rsm, ok := n.sm.(*RoutingStateMachine); ok {
		return rsm.FindNearest(queryVec, k)
	}
	return nil
}

// Propose appends a command to the leader's log and returns once the
// append is local; it does not block for commit. Returns ok=false if this
// node is not the leader.
func (n *Node) Propose(cmd Command) (index uint64, term uint64, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.role != Leader {
		return 0, 0, false
	}

	parentHash := ""
	if last, found := n.log.Get(n.log.LastIndex()); found {
		parentHash = last.Hash
	}
	idx := n.log.LastIndex() + 1
	entry := LogEntry{
		Term:    n.currentTerm,
		Index:   idx,
		Command: cmd,
		Parent:  parentHash,
	}
	entry.Hash = chainHash(parentHash, entry.Term, entry.Index, entry.Command)
	n.log.Append(entry)
	_ = n.storage.SaveEntries([]LogEntry{entry})

	n.matchIndex[n.cfg.NodeID] = idx
	return idx, n.currentTerm, true
}

// run is the top-level role dispatch loop.
func (n *Node) run() {
	defer n.wg.Done()
	for {
		select {
		case <-n.stopCh:
			return
		default:
		}

		switch n.Role() {
		case Follower:
			n.runFollower()
		case Candidate:
			n.runCandidate()
		case Leader:
			n.runLeader()
		}
	}
}

func (n *Node) electionTimeout() time.Duration {
	span := n.cfg.ElectionTimeoutMax - n.cfg.ElectionTimeoutMin
	if span <= 0 {
		return n.cfg.ElectionTimeoutMin
	}
	return n.cfg.ElectionTimeoutMin + time.Duration(n.rng.Int63n(int64(span)))
}

func (n *Node) runFollower() {
	timeout := n.electionTimeout()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.mu.Lock()
			if n.role != Follower {
				n.mu.Unlock()
				return
			}
			elapsed := time.Since(n.lastHeartbeat)
			if elapsed > timeout {
				n.role = Candidate
				n.mu.Unlock()
				return
			}
			n.mu.Unlock()
		}
	}
}

func (n *Node) runCandidate() {
	n.mu.Lock()
	n.currentTerm++
	n.votedFor = n.cfg.NodeID
	n.lastHeartbeat = time.Now()
	term := n.currentTerm
	lastIndex := n.log.LastIndex()
	lastTerm := n.log.LastTerm()
	peers := n.peerAddrsLocked()
	_ = n.storage.SaveTermAndVote(term, n.votedFor)
	n.mu.Unlock()

	votes := 1 // self
	var voteMu sync.Mutex
	var wg sync.WaitGroup
	stepDownTerm := uint64(0)

	for peerID, addr := range peers {
		wg.Add(1)
		go func(peerID, addr string) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			resp, err := n.transport.RequestVote(ctx, addr, &RequestVoteRequest{
				Term:         term,
				CandidateID:  n.cfg.NodeID,
				LastLogIndex: lastIndex,
				LastLogTerm:  lastTerm,
			})
			if err != nil {
				return
			}
			voteMu.Lock()
			defer voteMu.Unlock()
			if resp.Term > term {
				if resp.Term > stepDownTerm {
					stepDownTerm = resp.Term
				}
				return
			}
			if resp.VoteGranted {
				votes++
			}
		}(peerID, addr)
	}

	timeout := n.electionTimeout()
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-n.stopCh:
		return
	case <-done:
	case <-time.After(timeout):
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.role != Candidate || n.currentTerm != term {
		return // already moved on (stepped down, or a new election started)
	}
	if stepDownTerm > n.currentTerm {
		n.stepDownLocked(stepDownTerm)
		return
	}

	quorum := (len(peers)+1)/2 + 1 // majority of the cluster, self included
	if votes >= quorum {
		n.becomeLeaderLocked()
		return
	}
	// Split vote or insufficient grants: stay candidate, next loop
	// iteration starts a fresh election at a new term.
}

func (n *Node) peerAddrsLocked() map[string]string {
	out := make(map[string]string, len(n.peers))
	for id, addr := range n.peers {
		out[id] = addr
	}
	return out
}

func (n *Node) becomeLeaderLocked() {
	n.role = Leader
	n.leaderID = n.cfg.NodeID
	lastIndex := n.log.LastIndex()
	n.nextIndex = make(map[string]uint64, len(n.peers))
	n.matchIndex = make(map[string]uint64, len(n.peers))
	for id := range n.peers {
		n.nextIndex[id] = lastIndex + 1
		n.matchIndex[id] = 0
	}
	n.matchIndex[n.cfg.NodeID] = lastIndex

	// Commit entries from previous terms via a no-op, per §5.4.2.
	parentHash := ""
	if last, found := n.log.Get(lastIndex); found {
		parentHash = last.Hash
	}
	entry := LogEntry{Term: n.currentTerm, Index: lastIndex + 1, Command: Command{Type: CommandNoop}, Parent: parentHash}
	entry.Hash = chainHash(parentHash, entry.Term, entry.Index, entry.Command)
	n.log.Append(entry)
	_ = n.storage.SaveEntries([]LogEntry{entry})
}

func (n *Node) runLeader() {
	ticker := time.NewTicker(n.cfg.HeartbeatInterval)
	defer ticker.Stop()

	n.replicateToAll()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.mu.Lock()
			isLeader := n.role == Leader
			n.mu.Unlock()
			if !isLeader {
				return
			}
			n.replicateToAll()
		}
	}
}

func (n *Node) replicateToAll() {
	n.mu.Lock()
	peers := n.peerAddrsLocked()
	n.mu.Unlock()
	for peerID, addr := range peers {
		go n.replicateToFollower(peerID, addr)
	}
}

func (n *Node) replicateToFollower(peerID, addr string) {
	n.mu.Lock()
	if n.role != Leader {
		n.mu.Unlock()
		return
	}
	nextIdx := n.nextIndex[peerID]
	if nextIdx == 0 {
		nextIdx = 1
	}
	prevIdx := nextIdx - 1
	prevTerm, _ := n.log.Term(prevIdx)
	entries := n.log.EntriesFrom(nextIdx)
	req := &AppendEntriesRequest{
		Term:         n.currentTerm,
		LeaderID:     n.cfg.NodeID,
		PrevLogIndex: prevIdx,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		LeaderCommit: n.commitIndex,
	}
	term := n.currentTerm
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	resp, err := n.transport.AppendEntries(ctx, addr, req)
	if err != nil {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.currentTerm != term || n.role != Leader {
		return
	}
	if resp.Term > n.currentTerm {
		n.stepDownLocked(resp.Term)
		return
	}
	if resp.Success {
		if len(entries) > 0 {
			matched := entries[len(entries)-1].Index
			n.matchIndex[peerID] = matched
			n.nextIndex[peerID] = matched + 1
		}
		n.advanceCommitIndexLocked()
		return
	}
	if resp.ConflictIndex > 0 {
		n.nextIndex[peerID] = resp.ConflictIndex
	} else if nextIdx > 1 {
		n.nextIndex[peerID] = nextIdx - 1
	}
}

// advanceCommitIndexLocked recomputes commitIndex as the highest index
// replicated on a majority, and only commits entries from the current
// term (Raft §5.4.2's safety restriction).
func (n *Node) advanceCommitIndexLocked() {
	matches := make([]uint64, 0, len(n.peers)+1)
	for id := range n.peers {
		matches = append(matches, n.matchIndex[id])
	}
	matches = append(matches, n.log.LastIndex())
	sort.Slice(matches, func(i, j int) bool { return matches[i] > matches[j] })

	majorityIdx := len(matches) / 2
	candidate := matches[majorityIdx]
	if candidate <= n.commitIndex {
		return
	}
	entry, ok := n.log.Get(candidate)
	if !ok || entry.Term != n.currentTerm {
		return
	}
	n.commitIndex = candidate
	n.applyCommittedLocked()
}

// applyCommittedLocked drives entries from lastApplied+1..commitIndex into
// the state machine, in order, exactly once (spec's ordering guarantee).
func (n *Node) applyCommittedLocked() {
	for n.lastApplied < n.commitIndex {
		n.lastApplied++
		entry, ok := n.log.Get(n.lastApplied)
		if !ok {
			continue
		}
		err := n.sm.Apply(entry.Command)

		n.pendingMu.Lock()
		if ch, ok := n.pending[entry.Index]; ok {
			ch <- ApplyResult{Index: entry.Index, Err: err}
			close(ch)
			delete(n.pending, entry.Index)
		}
		n.pendingMu.Unlock()

		if entry.Command.Type == CommandUpdateConfiguration {
			n.applyConfigurationLocked(entry.Command.Configuration)
		}
	}

	if n.cfg.SnapshotThreshold > 0 && n.log.Size() > n.cfg.SnapshotThreshold {
		go n.takeSnapshot()
	}
}

func (n *Node) applyConfigurationLocked(members []ClusterMember) {
	newPeers := make(map[string]string, len(members))
	for _, m := range members {
		if m.NodeID == n.cfg.NodeID {
			continue
		}
		newPeers[m.NodeID] = m.Address
	}
	n.peers = newPeers
	for id := range newPeers {
		if _, ok := n.nextIndex[id]; !ok {
			n.nextIndex[id] = n.log.LastIndex() + 1
		}
		if _, ok := n.matchIndex[id]; !ok {
			n.matchIndex[id] = 0
		}
	}
}

func (n *Node) stepDownLocked(term uint64) {
	n.currentTerm = term
	n.role = Follower
	n.votedFor = ""
	n.lastHeartbeat = time.Now()
	_ = n.storage.SaveTermAndVote(term, "")
}

// HandleRequestVote implements the RequestVote RPC (spec §4.8).
func (n *Node) HandleRequestVote(req *RequestVoteRequest) *RequestVoteResponse {
	n.mu.Lock()
	defer n.mu.Unlock()

	resp := &RequestVoteResponse{Term: n.currentTerm}

	if req.Term < n.currentTerm {
		return resp
	}
	if req.Term > n.currentTerm {
		n.stepDownLocked(req.Term)
		resp.Term = req.Term
	}

	lastIndex := n.log.LastIndex()
	lastTerm := n.log.LastTerm()
	canVote := n.votedFor == "" || n.votedFor == req.CandidateID
	logUpToDate := req.LastLogTerm > lastTerm ||
		(req.LastLogTerm == lastTerm && req.LastLogIndex >= lastIndex)

	if canVote && logUpToDate {
		n.votedFor = req.CandidateID
		n.lastHeartbeat = time.Now()
		resp.VoteGranted = true
		_ = n.storage.SaveTermAndVote(n.currentTerm, n.votedFor)
	}
	return resp
}

// HandleAppendEntries implements the AppendEntries RPC (spec §4.8),
// including the ConflictIndex/ConflictTerm fast-backtrack extension.
func (n *Node) HandleAppendEntries(req *AppendEntriesRequest) *AppendEntriesResponse {
	n.mu.Lock()
	defer n.mu.Unlock()

	resp := &AppendEntriesResponse{Term: n.currentTerm}

	if req.Term < n.currentTerm {
		return resp
	}

	n.lastHeartbeat = time.Now()
	n.leaderID = req.LeaderID

	if req.Term > n.currentTerm {
		n.stepDownLocked(req.Term)
		resp.Term = req.Term
	}
	if n.role != Follower {
		n.role = Follower
	}

	if req.PrevLogIndex > 0 {
		prevEntry, ok := n.log.Get(req.PrevLogIndex)
		if !ok {
			resp.ConflictIndex = n.log.LastIndex() + 1
			return resp
		}
		if prevEntry.Term != req.PrevLogTerm {
			resp.ConflictTerm = prevEntry.Term
			resp.ConflictIndex = n.log.ConflictSearch(req.PrevLogIndex, prevEntry.Term)
			n.log.TruncateAfter(req.PrevLogIndex - 1)
			return resp
		}
	}

	if len(req.Entries) > 0 {
		var toAppend []LogEntry
		for _, e := range req.Entries {
			existing, ok := n.log.Get(e.Index)
			if ok && existing.Term == e.Term {
				continue // already have this entry
			}
			if ok {
				n.log.TruncateAfter(e.Index - 1)
			}
			toAppend = append(toAppend, e)
		}
		if len(toAppend) > 0 {
			n.log.Append(toAppend...)
			_ = n.storage.SaveEntries(toAppend)
		}
	}

	resp.Success = true
	resp.MatchIndex = n.log.LastIndex()

	if req.LeaderCommit > n.commitIndex {
		newCommit := req.LeaderCommit
		if last := n.log.LastIndex(); last < newCommit {
			newCommit = last
		}
		n.commitIndex = newCommit
		n.applyCommittedLocked()
	}
	return resp
}

// HandleInstallSnapshot implements the InstallSnapshot RPC: a follower too
// far behind for normal replication to catch up accepts a full state
// machine image instead.
func (n *Node) HandleInstallSnapshot(req *InstallSnapshotRequest) *InstallSnapshotResponse {
	n.mu.Lock()
	defer n.mu.Unlock()

	resp := &InstallSnapshotResponse{Term: n.currentTerm}
	if req.Term < n.currentTerm {
		return resp
	}
	if req.Term > n.currentTerm {
		n.stepDownLocked(req.Term)
		resp.Term = req.Term
	}
	n.lastHeartbeat = time.Now()
	n.leaderID = req.LeaderID

	if err := n.sm.Restore(req.Data); err != nil {
		return resp
	}

	n.log.CompactBefore(req.LastIncludedIndex, req.LastIncludedTerm)
	n.applyConfigurationLocked(req.Configuration)
	if req.LastIncludedIndex > n.commitIndex {
		n.commitIndex = req.LastIncludedIndex
	}
	if req.LastIncludedIndex > n.lastApplied {
		n.lastApplied = req.LastIncludedIndex
	}

	snap := Snapshot{
		LastIncludedIndex: req.LastIncludedIndex,
		LastIncludedTerm:  req.LastIncludedTerm,
		Configuration:     req.Configuration,
		Data:              req.Data,
	}
	_ = n.storage.SaveSnapshot(snap)
	return resp
}

// takeSnapshot compacts the log once it exceeds SnapshotThreshold,
// discarding applied entries and replacing them with a serialized state
// machine image (spec §4.8 "Compaction").
func (n *Node) takeSnapshot() {
	data, err := n.sm.Snapshot()
	if err != nil {
		n.logger.Warn("raft snapshot failed", zap.String("node_id", n.cfg.NodeID), zap.Error(err))
		return
	}

	n.mu.Lock()
	lastApplied := n.lastApplied
	entry, ok := n.log.Get(lastApplied)
	if !ok {
		n.mu.Unlock()
		return
	}
	members := make([]ClusterMember, 0, len(n.peers)+1)
	members = append(members, ClusterMember{NodeID: n.cfg.NodeID})
	for id, addr := range n.peers {
		members = append(members, ClusterMember{NodeID: id, Address: addr})
	}
	snap := Snapshot{
		LastIncludedIndex: lastApplied,
		LastIncludedTerm:  entry.Term,
		Configuration:     members,
		Data:              data,
	}
	n.mu.Unlock()

	if err := n.storage.SaveSnapshot(snap); err != nil {
		n.logger.Warn("raft snapshot persist failed", zap.String("node_id", n.cfg.NodeID), zap.Error(err))
		return
	}
	n.log.CompactBefore(snap.LastIncludedIndex, snap.LastIncludedTerm)
}

// AwaitApply returns a channel that receives the apply result for index
// once an entry at that index is applied on this node. Waiters are keyed
// by index only: if a conflicting leader overwrites the proposed entry,
// the channel receives the result of whichever entry is applied at that
// index. An index already applied before the call never fires. The
// channel is closed only right after its one send.
func (n *Node) AwaitApply(index uint64) <-chan ApplyResult {
	ch := make(chan ApplyResult, 1)
	n.pendingMu.Lock()
	n.pending[index] = ch
	n.pendingMu.Unlock()
	return ch
}
