package trajectory

import (
	"testing"
	"time"

	"github.com/octoreflex/ranswarm/internal/qlearning"
	"github.com/octoreflex/ranswarm/internal/qlearning/replay"
)

func TestStartAssignsDistinctIDsAndTracksContext(t *testing.T) {
	b := New(10)
	now := time.Unix(1000, 0)

	id1 := b.Start("agent-a", 42, now)
	id2 := b.Start("agent-a", 43, now)
	if id1 == id2 {
		t.Fatal("expected distinct trajectory IDs for distinct contexts")
	}
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}
}

func TestStartWithDuplicateContextEvictsPrevious(t *testing.T) {
	b := New(10)
	now := time.Unix(1000, 0)

	first := b.Start("agent-a", 42, now)
	b.AddTransition(first, replay.Experience{State: qlearning.StateKey(1), Reward: 1})

	second := b.Start("agent-a", 42, now.Add(time.Second))

	if b.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (duplicate context should evict the old trajectory)", b.Len())
	}
	if _, ok := b.Get(first); ok {
		t.Fatal("expected the first trajectory to be evicted")
	}
	if _, ok := b.Get(second); !ok {
		t.Fatal("expected the second trajectory to remain resident")
	}
}

func TestAddTransitionAppendsAndCompleteStampsOutcome(t *testing.T) {
	b := New(10)
	now := time.Unix(1000, 0)

	id := b.Start("agent-a", 1, now)
	b.AddTransition(id, replay.Experience{State: 1, Reward: 0.5})
	b.AddTransition(id, replay.Experience{State: 2, Reward: 1.5})

	end := now.Add(5 * time.Second)
	b.Complete(id, Success, end)

	tr, ok := b.Get(id)
	if !ok {
		t.Fatal("expected trajectory to be resident")
	}
	if len(tr.Experiences) != 2 {
		t.Fatalf("len(Experiences) = %d, want 2", len(tr.Experiences))
	}
	if tr.Outcome != Success {
		t.Fatalf("Outcome = %v, want Success", tr.Outcome)
	}
	if !tr.EndedAt.Equal(end) {
		t.Fatalf("EndedAt = %v, want %v", tr.EndedAt, end)
	}
}

func TestAddTransitionOnUnknownIDIsNoOp(t *testing.T) {
	b := New(10)
	b.AddTransition(ID(999), replay.Experience{State: 1})
	if b.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", b.Len())
	}
}

func TestCapacityEvictsOldestFirst(t *testing.T) {
	b := New(3)
	now := time.Unix(1000, 0)

	ids := make([]ID, 0, 5)
	for i := 0; i < 5; i++ {
		ids = append(ids, b.Start("agent-a", uint64(i), now))
	}

	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 (capacity-bound)", b.Len())
	}
	for _, evicted := range ids[:2] {
		if _, ok := b.Get(evicted); ok {
			t.Fatalf("expected oldest trajectory %d to be evicted", evicted)
		}
	}
	for _, kept := range ids[2:] {
		if _, ok := b.Get(kept); !ok {
			t.Fatalf("expected trajectory %d to remain resident", kept)
		}
	}
}

func TestSampleByRewardReturnsHighestRewardFirst(t *testing.T) {
	b := New(10)
	now := time.Unix(1000, 0)

	low := b.Start("agent-a", 1, now)
	b.AddTransition(low, replay.Experience{Reward: 0.1})

	high := b.Start("agent-a", 2, now)
	b.AddTransition(high, replay.Experience{Reward: 5})
	b.AddTransition(high, replay.Experience{Reward: 5})

	mid := b.Start("agent-a", 3, now)
	b.AddTransition(mid, replay.Experience{Reward: 2})

	top := b.SampleByReward(2)
	if len(top) != 2 {
		t.Fatalf("len(SampleByReward(2)) = %d, want 2", len(top))
	}
	if top[0].ID != high {
		t.Fatalf("top[0].ID = %v, want the highest-reward trajectory %v", top[0].ID, high)
	}
	if top[1].ID != mid {
		t.Fatalf("top[1].ID = %v, want the second-highest-reward trajectory %v", top[1].ID, mid)
	}
}

func TestSampleByRewardClampsToAvailableCount(t *testing.T) {
	b := New(10)
	now := time.Unix(1000, 0)
	b.Start("agent-a", 1, now)

	top := b.SampleByReward(5)
	if len(top) != 1 {
		t.Fatalf("len(SampleByReward(5)) = %d, want 1", len(top))
	}
}
