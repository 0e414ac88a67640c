package replay

import (
	"errors"
	"testing"
	"time"

	"github.com/octoreflex/ranswarm/internal/crypto/identity"
)

func testSigner() identity.AgentID {
	var id identity.AgentID
	id[0] = 0x42
	return id
}

func TestFirstOccurrenceAcceptedSecondRejected(t *testing.T) {
	c := New(DefaultWindow)
	signer := testSigner()
	var nonce [16]byte
	nonce[0] = 7

	now := time.Now()
	if err := c.Check(signer, nonce, now); err != nil {
		t.Fatalf("first Check = %v, want nil", err)
	}
	if err := c.Check(signer, nonce, now); !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("second Check = %v, want ErrReplayDetected", err)
	}
}

func TestDistinctNoncesBothAccepted(t *testing.T) {
	c := New(DefaultWindow)
	signer := testSigner()
	now := time.Now()

	var n1, n2 [16]byte
	n1[0], n2[0] = 1, 2

	if err := c.Check(signer, n1, now); err != nil {
		t.Fatalf("Check n1 = %v", err)
	}
	if err := c.Check(signer, n2, now); err != nil {
		t.Fatalf("Check n2 = %v", err)
	}
}

func TestEntryExpiresAfterWindow(t *testing.T) {
	c := New(time.Minute)
	signer := testSigner()
	var nonce [16]byte
	nonce[0] = 9

	t0 := time.Now()
	if err := c.Check(signer, nonce, t0); err != nil {
		t.Fatalf("Check = %v", err)
	}

	later := t0.Add(2 * time.Minute)
	if err := c.Check(signer, nonce, later); err != nil {
		t.Fatalf("Check after window expiry = %v, want nil (re-accepted)", err)
	}
}

func TestPurgeRemovesExpiredEntries(t *testing.T) {
	c := New(time.Minute)
	signer := testSigner()
	var nonce [16]byte
	nonce[0] = 3

	t0 := time.Now()
	if err := c.Check(signer, nonce, t0); err != nil {
		t.Fatalf("Check = %v", err)
	}
	if got := c.Len(); got != 1 {
		t.Fatalf("Len = %d, want 1", got)
	}

	removed := c.Purge(t0.Add(2 * time.Minute))
	if removed != 1 {
		t.Fatalf("Purge removed = %d, want 1", removed)
	}
	if got := c.Len(); got != 0 {
		t.Fatalf("Len after purge = %d, want 0", got)
	}
}

func TestNewWithNonPositiveWindowUsesDefault(t *testing.T) {
	c := New(0)
	if c.window != DefaultWindow {
		t.Fatalf("window = %v, want %v", c.window, DefaultWindow)
	}
}
