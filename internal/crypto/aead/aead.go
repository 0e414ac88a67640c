// Package aead implements the symmetric encryption primitive from spec
// §3/§4.2/§6: AES-256-GCM with a random 12-byte nonce and optional
// associated data. EncryptedPayload serializes as nonce(12) || ciphertext
// (ciphertext includes the GCM authentication tag).
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// SessionKeySize is the required key length: AES-256 uses a 32-byte key.
const SessionKeySize = 32

// NonceSize is the GCM nonce length used on the wire.
const NonceSize = 12

// ErrDecryptionFailed is returned when authentication fails (tampered
// ciphertext, nonce, or associated data) or the payload is malformed.
var ErrDecryptionFailed = errors.New("aead: decryption failed")

// EncryptedPayload is nonce || ciphertext-with-tag, per spec §3/§6.
type EncryptedPayload struct {
	Nonce      [NonceSize]byte
	Ciphertext []byte
}

// Encrypt seals plaintext under key with a freshly drawn random nonce.
// aad is authenticated but not encrypted; it may be nil.
func Encrypt(plaintext, key, aad []byte) (*EncryptedPayload, error) {
	if len(key) != SessionKeySize {
		panic(fmt.Sprintf("aead: key must be %d bytes, got %d", SessionKeySize, len(key)))
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("aead: nonce generation: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce[:], plaintext, aad)
	return &EncryptedPayload{Nonce: nonce, Ciphertext: ciphertext}, nil
}

// Decrypt opens an EncryptedPayload under key, authenticating aad. Returns
// ErrDecryptionFailed on any tamper (ciphertext, nonce, or aad).
func Decrypt(payload *EncryptedPayload, key, aad []byte) ([]byte, error) {
	if len(key) != SessionKeySize {
		panic(fmt.Sprintf("aead: key must be %d bytes, got %d", SessionKeySize, len(key)))
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, payload.Nonce[:], payload.Ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aead: aes cipher init: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("aead: gcm init: %w", err)
	}
	return gcm, nil
}

// Serialize writes nonce || ciphertext to a single buffer.
func Serialize(p *EncryptedPayload) []byte {
	buf := make([]byte, NonceSize+len(p.Ciphertext))
	copy(buf, p.Nonce[:])
	copy(buf[NonceSize:], p.Ciphertext)
	return buf
}

// Deserialize parses the nonce || ciphertext wire format.
func Deserialize(buf []byte) (*EncryptedPayload, error) {
	if len(buf) < NonceSize {
		return nil, ErrDecryptionFailed
	}
	p := &EncryptedPayload{}
	copy(p.Nonce[:], buf[:NonceSize])
	p.Ciphertext = append([]byte(nil), buf[NonceSize:]...)
	return p, nil
}
