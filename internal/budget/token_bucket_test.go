package budget

import (
	"testing"
	"time"

	"github.com/octoreflex/ranswarm/internal/qlearning"
)

func TestConsumeForActionFreeActionsAlwaysSucceed(t *testing.T) {
	b := New(5, time.Hour)
	defer b.Close()

	for i := 0; i < 10; i++ {
		if !b.ConsumeForAction(qlearning.DirectAnswer) {
			t.Fatal("expected DirectAnswer to always succeed (cost 0)")
		}
	}
	if b.Remaining() != 5 {
		t.Fatalf("Remaining() = %d, want 5 (free actions consume nothing)", b.Remaining())
	}
}

func TestConsumeForActionDeductsDefinedCost(t *testing.T) {
	b := New(5, time.Hour)
	defer b.Close()

	if !b.ConsumeForAction(qlearning.ConsultPeer) {
		t.Fatal("expected ConsultPeer to succeed with capacity 5 and cost 2")
	}
	if b.Remaining() != 3 {
		t.Fatalf("Remaining() = %d, want 3", b.Remaining())
	}
}

func TestConsumeForActionFailsOutright(t *testing.T) {
	b := New(5, time.Hour)
	defer b.Close()

	if b.ConsumeForAction(qlearning.Escalate) {
		t.Fatal("expected Escalate (cost 10) to fail against a 5-token bucket")
	}
	if b.Remaining() != 5 {
		t.Fatalf("Remaining() = %d, want 5 (failed consume must not deduct)", b.Remaining())
	}
}

func TestRefillRestoresFullCapacity(t *testing.T) {
	b := New(5, 20*time.Millisecond)
	defer b.Close()

	if !b.Consume(5) {
		t.Fatal("expected to drain the bucket")
	}
	if b.Remaining() != 0 {
		t.Fatalf("Remaining() = %d, want 0", b.Remaining())
	}

	time.Sleep(60 * time.Millisecond)
	if b.Remaining() != 5 {
		t.Fatalf("Remaining() after refill = %d, want 5", b.Remaining())
	}
	if b.RefillCount() == 0 {
		t.Fatal("expected at least one refill cycle to have run")
	}
}

func TestConsumedTotalAccumulates(t *testing.T) {
	b := New(10, time.Hour)
	defer b.Close()

	b.Consume(3)
	b.Consume(2)
	if b.ConsumedTotal() != 5 {
		t.Fatalf("ConsumedTotal() = %d, want 5", b.ConsumedTotal())
	}
}
