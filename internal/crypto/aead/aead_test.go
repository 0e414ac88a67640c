package aead

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, SessionKeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := randomKey(t)
	plaintext := []byte("route to peer agent with confidence 0.92")
	aad := []byte("context-42")

	payload, err := Encrypt(plaintext, key, aad)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err := Decrypt(payload, key, aad)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("Decrypt = %q, want %q", got, plaintext)
	}
}

func TestDecryptFailsOnTamperedCiphertext(t *testing.T) {
	key := randomKey(t)
	payload, err := Encrypt([]byte("payload"), key, nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	payload.Ciphertext[0] ^= 0xFF
	if _, err := Decrypt(payload, key, nil); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("Decrypt = %v, want ErrDecryptionFailed", err)
	}
}

func TestDecryptFailsOnTamperedNonce(t *testing.T) {
	key := randomKey(t)
	payload, err := Encrypt([]byte("payload"), key, nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	payload.Nonce[0] ^= 0xFF
	if _, err := Decrypt(payload, key, nil); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("Decrypt = %v, want ErrDecryptionFailed", err)
	}
}

func TestDecryptFailsOnTamperedAAD(t *testing.T) {
	key := randomKey(t)
	payload, err := Encrypt([]byte("payload"), key, []byte("aad-original"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt(payload, key, []byte("aad-tampered")); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("Decrypt = %v, want ErrDecryptionFailed", err)
	}
}

func TestDecryptFailsOnWrongKey(t *testing.T) {
	key := randomKey(t)
	wrongKey := randomKey(t)
	payload, err := Encrypt([]byte("payload"), key, nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := Decrypt(payload, wrongKey, nil); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("Decrypt = %v, want ErrDecryptionFailed", err)
	}
}

func TestEncryptPanicsOnWrongKeySize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for wrong key size")
		}
	}()
	_, _ = Encrypt([]byte("x"), make([]byte, 16), nil)
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	key := randomKey(t)
	payload, err := Encrypt([]byte("serialize me"), key, nil)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	wire := Serialize(payload)
	got, err := Deserialize(wire)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.Nonce != payload.Nonce {
		t.Fatal("nonce mismatch after round trip")
	}
	if !bytes.Equal(got.Ciphertext, payload.Ciphertext) {
		t.Fatal("ciphertext mismatch after round trip")
	}
	plaintext, err := Decrypt(got, key, nil)
	if err != nil {
		t.Fatalf("Decrypt after round trip: %v", err)
	}
	if string(plaintext) != "serialize me" {
		t.Fatalf("plaintext = %q", plaintext)
	}
}

func TestDeserializeRejectsTooShortInput(t *testing.T) {
	if _, err := Deserialize([]byte{1, 2, 3}); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("Deserialize = %v, want ErrDecryptionFailed", err)
	}
}
