package policy

import (
	"math/rand"
	"testing"

	"github.com/octoreflex/ranswarm/internal/qlearning"
	"github.com/octoreflex/ranswarm/internal/qlearning/qtable"
)

const state1 = qlearning.StateKey(1)

func TestSelectExploitsArgmaxWhenExplorationDisabled(t *testing.T) {
	tbl := qtable.New(qtable.DefaultConfig())
	tbl.Set(state1, qlearning.DirectAnswer, 0.2)
	tbl.Set(state1, qlearning.ContextAnswer, 0.9)

	p := New(tbl, rand.NewSource(1))
	p.SetExplorationDisabled(true)

	sel := p.Select(state1, []qlearning.Action{qlearning.DirectAnswer, qlearning.ContextAnswer, qlearning.Escalate})
	if sel.IsExploration {
		t.Fatal("expected exploitation when exploration disabled")
	}
	if sel.Action != qlearning.ContextAnswer {
		t.Fatalf("Action = %v, want ContextAnswer", sel.Action)
	}
	if sel.QValue != 0.9 {
		t.Fatalf("QValue = %v, want 0.9", sel.QValue)
	}
}

func TestSelectTiesBreakTowardLowestOrdinal(t *testing.T) {
	tbl := qtable.New(qtable.DefaultConfig())
	// All unseen -> all default to 0, tie across every action.
	p := New(tbl, rand.NewSource(1))
	p.SetExplorationDisabled(true)

	sel := p.Select(state1, []qlearning.Action{qlearning.Escalate, qlearning.DirectAnswer, qlearning.ConsultPeer})
	if sel.Action != qlearning.DirectAnswer {
		t.Fatalf("Action = %v, want DirectAnswer (lowest ordinal among tied actions)", sel.Action)
	}
}

func TestSelectExplorationReturnsZeroQValue(t *testing.T) {
	tbl := qtable.New(qtable.DefaultConfig())
	tbl.Set(state1, qlearning.DirectAnswer, 0.9)

	p := New(tbl, rand.NewSource(1))
	// current_epsilon defaults to 0.15; force exploration deterministically
	// by not disabling it and relying on a seed that yields a low draw is
	// fragile, so instead verify the exploration branch directly via a
	// table with epsilon=1 (always explore).
	always := qtable.New(qtable.Config{Alpha: 0.1, Gamma: 0.95, Epsilon: 1.0, EpsilonDecay: 1.0, EpsilonMin: 1.0})
	p = New(always, rand.NewSource(2))

	sel := p.Select(state1, qlearning.Actions)
	if !sel.IsExploration {
		t.Fatal("expected exploration branch with epsilon=1.0")
	}
	if sel.QValue != 0 {
		t.Fatalf("QValue during exploration = %v, want 0", sel.QValue)
	}
}

func TestSelectPanicsOnEmptyActionSet(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on empty action set")
		}
	}()
	tbl := qtable.New(qtable.DefaultConfig())
	p := New(tbl, rand.NewSource(1))
	p.Select(state1, nil)
}
