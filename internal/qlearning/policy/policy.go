// Package policy implements the epsilon-greedy action-selection strategy
// (spec §4.5.2) over a qtable.Table.
package policy

import (
	"math/rand"

	"github.com/octoreflex/ranswarm/internal/qlearning"
	"github.com/octoreflex/ranswarm/internal/qlearning/qtable"
)

// Policy selects actions epsilon-greedily against a Q-table.
type Policy struct {
	table          *qtable.Table
	rng            *rand.Rand
	explorationOff bool
}

// New constructs a Policy bound to table, using src for the exploration
// coin-flip and the uniform action draw. Pass rand.NewSource(seed) for
// deterministic tests.
func New(table *qtable.Table, src rand.Source) *Policy {
	return &Policy{table: table, rng: rand.New(src)}
}

// SetExplorationDisabled forces the greedy branch unconditionally,
// regardless of current_epsilon (spec §4.5.2: "when exploration is
// globally disabled, the greedy branch always runs").
func (p *Policy) SetExplorationDisabled(disabled bool) {
	p.explorationOff = disabled
}

// Selection is the result of a Select call.
type Selection struct {
	Action        qlearning.Action
	QValue        float32
	IsExploration bool
}

// Select chooses an action for state from the available action set. With
// probability current_epsilon it explores uniformly (q_value reported as
// 0); otherwise it exploits the argmax, breaking ties toward the lowest
// ordinal action.
func (p *Policy) Select(state qlearning.StateKey, actions []qlearning.Action) Selection {
	if len(actions) == 0 {
		panic("policy: Select requires a non-empty action set")
	}

	if !p.explorationOff && p.rng.Float32() < p.table.CurrentEpsilon() {
		idx := p.rng.Intn(len(actions))
		return Selection{Action: actions[idx], QValue: 0, IsExploration: true}
	}

	best := actions[0]
	bestQ := p.table.Get(state, best)
	for _, a := range actions[1:] {
		q := p.table.Get(state, a)
		if q > bestQ || (q == bestQ && a < best) {
			bestQ = q
			best = a
		}
	}
	return Selection{Action: best, QValue: bestQ, IsExploration: false}
}
