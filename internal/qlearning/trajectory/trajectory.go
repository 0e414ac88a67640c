// Package trajectory implements the per-context trajectory ring buffer
// (spec §4.5.4): a bounded set of open or completed Experience sequences,
// deduplicated by context_hash, sortable by total reward for prioritized
// sampling.
package trajectory

import (
	"sort"
	"sync"
	"time"

	"github.com/octoreflex/ranswarm/internal/qlearning/replay"
)

// DefaultCapacity is the maximum number of resident trajectories (spec
// §4.5.4: "ring of <=1000 trajectories").
const DefaultCapacity = 1000

// Outcome is the terminal result recorded by Complete.
type Outcome uint8

const (
	Pending Outcome = iota
	Success
	Failure
)

// ID identifies one trajectory.
type ID uint64

// Trajectory is one open or completed sequence of experiences sharing a
// context_hash.
type Trajectory struct {
	ID          ID
	AgentID     string
	ContextHash uint64
	Experiences []replay.Experience
	StartedAt   time.Time
	EndedAt     time.Time
	Outcome     Outcome
}

func (tr *Trajectory) totalReward() float32 {
	var sum float32
	for _, e := range tr.Experiences {
		sum += e.Reward
	}
	return sum
}

// Buffer is a capacity-bounded, context-deduplicated trajectory store.
type Buffer struct {
	mu sync.Mutex

	capacity  int
	order     []ID // insertion order, oldest first, for capacity eviction
	byID      map[ID]*Trajectory
	byContext map[uint64]ID

	nextID ID
}

// New constructs a Buffer with the given capacity (<=0 uses DefaultCapacity).
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity:  capacity,
		byID:      make(map[ID]*Trajectory),
		byContext: make(map[uint64]ID),
	}
}

// Start opens a new trajectory for agentID/contextHash. If a trajectory
// for the same contextHash is already open, it is evicted first (spec
// §4.5.4 deduplication), on the theory that a fresh query into the same
// neighbor context supersedes the previous attempt.
func (b *Buffer) Start(agentID string, contextHash uint64, now time.Time) ID {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.byContext[contextHash]; ok {
		b.evictLocked(existing)
	}

	id := b.nextID
	b.nextID++

	tr := &Trajectory{
		ID:          id,
		AgentID:     agentID,
		ContextHash: contextHash,
		StartedAt:   now,
	}
	b.byID[id] = tr
	b.byContext[contextHash] = id
	b.order = append(b.order, id)

	b.evictOverCapacityLocked()
	return id
}

// AddTransition appends an experience to an open trajectory. No-op if id
// is unknown (already evicted or never opened).
func (b *Buffer) AddTransition(id ID, exp replay.Experience) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if tr, ok := b.byID[id]; ok {
		tr.Experiences = append(tr.Experiences, exp)
	}
}

// Complete stamps EndedAt and the outcome for a trajectory.
func (b *Buffer) Complete(id ID, outcome Outcome, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if tr, ok := b.byID[id]; ok {
		tr.EndedAt = now
		tr.Outcome = outcome
	}
}

// Get returns a copy of the trajectory for id, if resident.
func (b *Buffer) Get(id ID) (Trajectory, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tr, ok := b.byID[id]
	if !ok {
		return Trajectory{}, false
	}
	return *tr, true
}

// SampleByReward returns the k trajectories with the highest total reward,
// descending.
func (b *Buffer) SampleByReward(k int) []Trajectory {
	b.mu.Lock()
	defer b.mu.Unlock()

	all := make([]*Trajectory, 0, len(b.byID))
	for _, tr := range b.byID {
		all = append(all, tr)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].totalReward() > all[j].totalReward()
	})
	if k > len(all) {
		k = len(all)
	}
	out := make([]Trajectory, k)
	for i := 0; i < k; i++ {
		out[i] = *all[i]
	}
	return out
}

// Len returns the number of resident trajectories.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byID)
}

func (b *Buffer) evictOverCapacityLocked() {
	for len(b.order) > b.capacity {
		oldest := b.order[0]
		b.order = b.order[1:]
		b.removeLocked(oldest)
	}
}

func (b *Buffer) evictLocked(id ID) {
	for i, oid := range b.order {
		if oid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	b.removeLocked(id)
}

func (b *Buffer) removeLocked(id ID) {
	tr, ok := b.byID[id]
	if !ok {
		return
	}
	delete(b.byID, id)
	if b.byContext[tr.ContextHash] == id {
		delete(b.byContext, tr.ContextHash)
	}
}
