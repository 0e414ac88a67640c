package signing

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/octoreflex/ranswarm/internal/crypto/identity"
)

func mustIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	return id
}

func TestSignVerifyRoundTrip(t *testing.T) {
	id := mustIdentity(t)
	for _, size := range []int{0, 1, 64, 4096, 10000} {
		msg := bytes.Repeat([]byte{0xAB}, size)
		sm, err := Sign(id, msg)
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		if err := Verify(sm, id.SigningPublicKey()); err != nil {
			t.Fatalf("Verify (size=%d): %v", size, err)
		}
	}
}

func TestVerifyRejectsExpiredSignature(t *testing.T) {
	id := mustIdentity(t)
	sm, err := Sign(id, []byte("stale"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sm.Time = time.Now().Add(-MaxAge - time.Second)
	if err := Verify(sm, id.SigningPublicKey()); !errors.Is(err, ErrSignatureExpired) {
		t.Fatalf("Verify = %v, want ErrSignatureExpired", err)
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	id := mustIdentity(t)
	sm, err := Sign(id, []byte("original"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	sm.Payload = []byte("tampered")
	if err := Verify(sm, id.SigningPublicKey()); !errors.Is(err, ErrSignatureVerificationFailed) {
		t.Fatalf("Verify = %v, want ErrSignatureVerificationFailed", err)
	}
}

func TestVerifyRejectsWrongSigner(t *testing.T) {
	id := mustIdentity(t)
	other := mustIdentity(t)
	sm, err := Sign(id, []byte("msg"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := Verify(sm, other.SigningPublicKey()); !errors.Is(err, ErrSignatureVerificationFailed) {
		t.Fatalf("Verify = %v, want ErrSignatureVerificationFailed", err)
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	id := mustIdentity(t)
	sm, err := Sign(id, []byte("wire format check"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	wire := Serialize(sm)
	got, err := Deserialize(wire)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !bytes.Equal(got.Payload, sm.Payload) {
		t.Fatal("payload mismatch after round trip")
	}
	if got.Signature != sm.Signature {
		t.Fatal("signature mismatch after round trip")
	}
	if got.Nonce != sm.Nonce {
		t.Fatal("nonce mismatch after round trip")
	}
	if got.SignerID != sm.SignerID {
		t.Fatal("signer id mismatch after round trip")
	}
	if err := Verify(got, id.SigningPublicKey()); err != nil {
		t.Fatalf("Verify after round trip: %v", err)
	}
}

func TestDeserializeRejectsTruncatedInput(t *testing.T) {
	if _, err := Deserialize([]byte{1, 2, 3}); !errors.Is(err, ErrInvalidKeyFormat) {
		t.Fatalf("Deserialize = %v, want ErrInvalidKeyFormat", err)
	}
}
