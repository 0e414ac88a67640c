package replay

import (
	"math/rand"
	"testing"

	"github.com/octoreflex/ranswarm/internal/qlearning"
)

func TestAddRespectsCapacityAsRingBuffer(t *testing.T) {
	b := New(3, DefaultAlpha, DefaultBetaStart, rand.NewSource(1))
	for i := 0; i < 5; i++ {
		b.Add(Experience{State: qlearning.StateKey(i), Action: qlearning.DirectAnswer, Reward: float32(i)})
	}
	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 (capacity-bound ring buffer)", b.Len())
	}
	// The oldest two experiences (state 0, 1) should have been overwritten;
	// the buffer should now hold states 2, 3, 4 in some cyclic order.
	seen := make(map[qlearning.StateKey]bool)
	for _, r := range b.records {
		seen[r.exp.State] = true
	}
	for _, want := range []qlearning.StateKey{2, 3, 4} {
		if !seen[want] {
			t.Fatalf("expected state %d to remain resident, records=%+v", want, b.records)
		}
	}
}

func TestNewInsertionsGetMaxPriority(t *testing.T) {
	b := New(10, DefaultAlpha, DefaultBetaStart, rand.NewSource(1))
	b.Add(Experience{State: 1})
	b.UpdatePriority(0, 5.0) // large TD error raises maxPriority

	b.Add(Experience{State: 2})
	if b.records[1].priority != b.maxPriority {
		t.Fatalf("new insertion priority = %v, want current max %v", b.records[1].priority, b.maxPriority)
	}
}

func TestSampleReturnsRequestedBatchSizeAndNormalizedWeights(t *testing.T) {
	b := New(10, DefaultAlpha, DefaultBetaStart, rand.NewSource(2))
	for i := 0; i < 10; i++ {
		b.Add(Experience{State: qlearning.StateKey(i)})
		b.UpdatePriority(i, float32(i)+1) // distinct nonzero priorities
	}

	exps, indices, weights := b.Sample(4)
	if len(exps) != 4 || len(indices) != 4 || len(weights) != 4 {
		t.Fatalf("Sample returned lengths %d/%d/%d, want 4 each", len(exps), len(indices), len(weights))
	}

	seen := make(map[int]bool)
	for _, idx := range indices {
		if seen[idx] {
			t.Fatalf("Sample drew index %d more than once (should be without replacement)", idx)
		}
		seen[idx] = true
	}

	var maxWeight float32
	for _, w := range weights {
		if w > maxWeight {
			maxWeight = w
		}
		if w <= 0 || w > 1.0001 {
			t.Fatalf("weight %v out of expected (0, 1] range", w)
		}
	}
	if maxWeight < 0.999 {
		t.Fatalf("max IS weight in batch = %v, want ~1.0 after normalization", maxWeight)
	}
}

func TestSampleOnEmptyBufferReturnsNil(t *testing.T) {
	b := New(10, DefaultAlpha, DefaultBetaStart, rand.NewSource(1))
	exps, indices, weights := b.Sample(4)
	if exps != nil || indices != nil || weights != nil {
		t.Fatal("expected nil results sampling an empty buffer")
	}
}

func TestSampleClampsBatchSizeToBufferLength(t *testing.T) {
	b := New(10, DefaultAlpha, DefaultBetaStart, rand.NewSource(1))
	b.Add(Experience{State: 1})
	b.Add(Experience{State: 2})

	exps, _, _ := b.Sample(100)
	if len(exps) != 2 {
		t.Fatalf("Sample(100) on 2-element buffer returned %d, want 2", len(exps))
	}
}
