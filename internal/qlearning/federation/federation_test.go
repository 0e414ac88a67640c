package federation

import (
	"testing"

	"github.com/octoreflex/ranswarm/internal/qlearning"
	"github.com/octoreflex/ranswarm/internal/qlearning/qtable"
)

const state1 = qlearning.StateKey(7)

func TestSimpleWeightedAverageScenario(t *testing.T) {
	local := qtable.New(qtable.DefaultConfig())
	local.SetMerged(state1, qlearning.DirectAnswer, 0.8, 1)

	peer := []qtable.Entry{
		{State: state1, Action: qlearning.DirectAnswer, Value: 0.6, VisitCount: 1},
	}

	stats := Merge(local, peer, SimpleWeightedAverage, 0.5)

	got, _ := local.GetOrZero(state1, qlearning.DirectAnswer)
	if abs32(got-0.7) > 1e-5 {
		t.Fatalf("merged value = %v, want 0.7", got)
	}
	if stats.EntriesMerged != 1 {
		t.Fatalf("EntriesMerged = %d, want 1", stats.EntriesMerged)
	}
}

func TestWeightedAverageByVisitCount(t *testing.T) {
	local := qtable.New(qtable.DefaultConfig())
	local.SetMerged(state1, qlearning.DirectAnswer, 1.0, 3)

	peer := []qtable.Entry{
		{State: state1, Action: qlearning.DirectAnswer, Value: 0.0, VisitCount: 1},
	}

	Merge(local, peer, WeightedAverage, 0)

	got, n := local.GetOrZero(state1, qlearning.DirectAnswer)
	// (1.0*3 + 0.0*1) / 4 = 0.75
	if abs32(got-0.75) > 1e-5 {
		t.Fatalf("merged value = %v, want 0.75", got)
	}
	if n != 2 {
		t.Fatalf("merged visit count = %d, want 2 (avg of 3 and 1)", n)
	}
}

func TestMaxStrategyKeepsLarger(t *testing.T) {
	local := qtable.New(qtable.DefaultConfig())
	local.SetMerged(state1, qlearning.Escalate, 0.3, 1)

	peer := []qtable.Entry{{State: state1, Action: qlearning.Escalate, Value: 0.9, VisitCount: 1}}
	Merge(local, peer, Max, 0)

	got, _ := local.GetOrZero(state1, qlearning.Escalate)
	if got != 0.9 {
		t.Fatalf("Max merge = %v, want 0.9", got)
	}
}

func TestMinStrategyKeepsSmaller(t *testing.T) {
	local := qtable.New(qtable.DefaultConfig())
	local.SetMerged(state1, qlearning.Escalate, 0.3, 1)

	peer := []qtable.Entry{{State: state1, Action: qlearning.Escalate, Value: 0.9, VisitCount: 1}}
	Merge(local, peer, Min, 0)

	got, _ := local.GetOrZero(state1, qlearning.Escalate)
	if got != 0.3 {
		t.Fatalf("Min merge = %v, want 0.3", got)
	}
}

func TestMergeReportsConflictsAboveThreshold(t *testing.T) {
	local := qtable.New(qtable.DefaultConfig())
	local.SetMerged(state1, qlearning.DirectAnswer, 0.1, 1)        // |0.1-0.1|=0, no conflict
	local.SetMerged(state1, qlearning.ContextAnswer, 0.9, 1)       // |0.9-0.1|=0.8, conflict

	peer := []qtable.Entry{
		{State: state1, Action: qlearning.DirectAnswer, Value: 0.1, VisitCount: 1},
		{State: state1, Action: qlearning.ContextAnswer, Value: 0.1, VisitCount: 1},
	}

	stats := Merge(local, peer, Max, 0)
	if stats.Conflicts != 1 {
		t.Fatalf("Conflicts = %d, want 1", stats.Conflicts)
	}
	if stats.EntriesMerged != 2 {
		t.Fatalf("EntriesMerged = %d, want 2", stats.EntriesMerged)
	}
}

func TestMergeOnUnseenLocalEntryTreatsLocalAsZero(t *testing.T) {
	local := qtable.New(qtable.DefaultConfig())
	peer := []qtable.Entry{{State: state1, Action: qlearning.RequestClarification, Value: 0.4, VisitCount: 2}}

	Merge(local, peer, SimpleWeightedAverage, 1.0) // weight=1 -> pure peer value

	got, _ := local.GetOrZero(state1, qlearning.RequestClarification)
	if abs32(got-0.4) > 1e-5 {
		t.Fatalf("merged value = %v, want 0.4", got)
	}
}

func TestWeightIsClampedToUnitRange(t *testing.T) {
	local := qtable.New(qtable.DefaultConfig())
	local.SetMerged(state1, qlearning.DirectAnswer, 1.0, 1)
	peer := []qtable.Entry{{State: state1, Action: qlearning.DirectAnswer, Value: 0.0, VisitCount: 1}}

	Merge(local, peer, SimpleWeightedAverage, 5.0) // should clamp to 1.0 -> pure peer value

	got, _ := local.GetOrZero(state1, qlearning.DirectAnswer)
	if got != 0.0 {
		t.Fatalf("merged value with over-range weight = %v, want 0.0 (clamped weight=1)", got)
	}
}
