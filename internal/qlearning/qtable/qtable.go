// Package qtable implements the Q-value store (spec §4.5.1): a map keyed
// by (state, action) with the standard Bellman update, visit counting, and
// epsilon restoration on reset.
package qtable

import (
	"math"
	"sync"
	"time"

	"github.com/octoreflex/ranswarm/internal/qlearning"
)

// Config holds the learning-rate hyperparameters (default values: alpha
// 0.1, gamma 0.95, epsilon 0.15, decay 0.995, epsilon floor 0.01).
type Config struct {
	Alpha        float32
	Gamma        float32
	Epsilon      float32
	EpsilonDecay float32
	EpsilonMin   float32
}

// DefaultConfig returns the reference hyperparameters.
func DefaultConfig() Config {
	return Config{
		Alpha:        0.1,
		Gamma:        0.95,
		Epsilon:      0.15,
		EpsilonDecay: 0.995,
		EpsilonMin:   0.01,
	}
}

type key struct {
	state  qlearning.StateKey
	action qlearning.Action
}

// entry is one (state, action) value record.
type entry struct {
	value       float32
	visitCount  uint32
	lastUpdated time.Time
}

// Table is a thread-safe Q-value store for one agent.
type Table struct {
	mu sync.RWMutex

	cfg     Config
	entries map[key]*entry

	currentEpsilon float32
	totalUpdates   uint32
	totalEpisodes  uint32
}

// New constructs a Table with the given configuration.
func New(cfg Config) *Table {
	return &Table{
		cfg:            cfg,
		entries:        make(map[key]*entry),
		currentEpsilon: cfg.Epsilon,
	}
}

// Get returns the Q-value for (state, action), defaulting to 0.0 when
// unseen.
func (t *Table) Get(state qlearning.StateKey, action qlearning.Action) float32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.entries[key{state, action}]; ok {
		return e.value
	}
	return 0.0
}

// Set overwrites the Q-value for (state, action), recording a visit.
func (t *Table) Set(state qlearning.StateKey, action qlearning.Action, value float32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setLocked(state, action, value)
}

func (t *Table) setLocked(state qlearning.StateKey, action qlearning.Action, value float32) {
	k := key{state, action}
	e, ok := t.entries[k]
	if !ok {
		e = &entry{}
		t.entries[k] = e
	}
	e.value = value
	e.visitCount++
	e.lastUpdated = time.Now()
}

// Update applies the Bellman update:
//
//	new_q = q + alpha*(r + gamma*next_max_q - q)
//
// and returns new_q. visit_count is incremented and last_updated stamped.
func (t *Table) Update(state qlearning.StateKey, action qlearning.Action, reward, nextMaxQ float32) float32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{state, action}
	e, ok := t.entries[k]
	current := float32(0)
	if ok {
		current = e.value
	}

	newQ := current + t.cfg.Alpha*(reward+t.cfg.Gamma*nextMaxQ-current)
	t.setLocked(state, action, newQ)
	t.totalUpdates++
	return newQ
}

// MaxQ returns the maximum Q-value over the supplied action set for state.
// If no entry exists for any of the actions, returns negative infinity
// (spec §4.5.1).
func (t *Table) MaxQ(state qlearning.StateKey, actions []qlearning.Action) float32 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	best := float32(math.Inf(-1))
	seen := false
	for _, a := range actions {
		if e, ok := t.entries[key{state, a}]; ok {
			if !seen || e.value > best {
				best = e.value
				seen = true
			}
		}
	}
	if !seen {
		return float32(math.Inf(-1))
	}
	return best
}

// VisitCount returns the number of updates recorded for (state, action).
func (t *Table) VisitCount(state qlearning.StateKey, action qlearning.Action) uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.entries[key{state, action}]; ok {
		return e.visitCount
	}
	return 0
}

// CurrentEpsilon returns the current exploration rate.
func (t *Table) CurrentEpsilon() float32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentEpsilon
}

// DecayEpsilon applies current_epsilon <- max(current_epsilon*decay, min)
// and increments total_episodes.
func (t *Table) DecayEpsilon() float32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentEpsilon *= t.cfg.EpsilonDecay
	if t.currentEpsilon < t.cfg.EpsilonMin {
		t.currentEpsilon = t.cfg.EpsilonMin
	}
	t.totalEpisodes++
	return t.currentEpsilon
}

// TotalUpdates returns the lifetime count of Update calls.
func (t *Table) TotalUpdates() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalUpdates
}

// TotalEpisodes returns the lifetime count of DecayEpsilon calls.
func (t *Table) TotalEpisodes() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalEpisodes
}

// Len returns the number of distinct (state, action) entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Reset wipes all entries and counters and restores epsilon to its
// configured initial value.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[key]*entry)
	t.totalUpdates = 0
	t.totalEpisodes = 0
	t.currentEpsilon = t.cfg.Epsilon
}

// Entry is a snapshot of one (state, action) record, used by Snapshot and
// the federation merger.
type Entry struct {
	State      qlearning.StateKey
	Action     qlearning.Action
	Value      float32
	VisitCount uint32
}

// Snapshot returns a copy of every entry currently stored, for federated
// merge or persistence.
func (t *Table) Snapshot() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.entries))
	for k, e := range t.entries {
		out = append(out, Entry{State: k.state, Action: k.action, Value: e.value, VisitCount: e.visitCount})
	}
	return out
}

// GetOrZero returns the stored (value, visitCount) for (state, action), or
// (0, 0) if absent. Used by the federated merger, which needs the raw
// visit count rather than the Get/MaxQ defaults.
func (t *Table) GetOrZero(state qlearning.StateKey, action qlearning.Action) (value float32, visitCount uint32) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.entries[key{state, action}]; ok {
		return e.value, e.visitCount
	}
	return 0, 0
}

// SetMerged installs a merged (value, visitCount) pair directly, bypassing
// the Bellman update path and without disturbing last_updated semantics
// beyond stamping "now" (federated merges are not themselves learning
// updates, but they do change resident state).
func (t *Table) SetMerged(state qlearning.StateKey, action qlearning.Action, value float32, visitCount uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key{state, action}
	e, ok := t.entries[k]
	if !ok {
		e = &entry{}
		t.entries[k] = e
	}
	e.value = value
	e.visitCount = visitCount
	e.lastUpdated = time.Now()
}
