// Package signing builds and verifies signed messages binding a payload to
// a signer identity, a creation timestamp, and a random nonce, per spec
// §3/§4.2/§6. The canonical signed payload is
// `msg || time_le_bytes(i64) || nonce(16) || signer_id(16)`; the Ed25519
// signature covers exactly those bytes.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/octoreflex/ranswarm/internal/crypto/identity"
)

// MaxAge is the maximum age of a signature before Verify rejects it as
// expired (spec §4.2, §5, §8: "5 minutes").
const MaxAge = 5 * time.Minute

// Algorithm identifies the signature scheme. Only Ed25519 is defined.
type Algorithm uint8

const AlgorithmEd25519 Algorithm = 1

var (
	// ErrSignatureExpired is returned when a signature is older than MaxAge.
	ErrSignatureExpired = errors.New("signing: signature expired")
	// ErrSignatureVerificationFailed is returned when the Ed25519 check fails.
	ErrSignatureVerificationFailed = errors.New("signing: signature verification failed")
	// ErrInvalidKeyFormat is returned by Deserialize on malformed input.
	ErrInvalidKeyFormat = errors.New("signing: invalid wire format")
)

const nonceLen = 16

// SignedMessage is a payload plus the metadata needed to verify it.
type SignedMessage struct {
	Payload   []byte
	Signature [ed25519.SignatureSize]byte
	Time      time.Time
	Nonce     [nonceLen]byte
	SignerID  identity.AgentID
	Algorithm Algorithm
}

// Sign builds a SignedMessage over msg, signed by id.
func Sign(id *identity.Identity, msg []byte) (*SignedMessage, error) {
	var nonce [nonceLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("signing: nonce generation: %w", err)
	}
	now := time.Now()
	signerID := id.ID()

	signedPayload := canonicalPayload(msg, now, nonce, signerID)
	sig := id.Sign(signedPayload)

	sm := &SignedMessage{
		Payload:   msg,
		Time:      now,
		Nonce:     nonce,
		SignerID:  signerID,
		Algorithm: AlgorithmEd25519,
	}
	copy(sm.Signature[:], sig)
	return sm, nil
}

// Verify checks signature freshness and Ed25519 validity against pub.
// It does not perform replay detection; see the replay package for that.
func Verify(sm *SignedMessage, pub ed25519.PublicKey) error {
	if time.Since(sm.Time) > MaxAge {
		return ErrSignatureExpired
	}
	signedPayload := canonicalPayload(sm.Payload, sm.Time, sm.Nonce, sm.SignerID)
	if !ed25519.Verify(pub, signedPayload, sm.Signature[:]) {
		return ErrSignatureVerificationFailed
	}
	return nil
}

func canonicalPayload(msg []byte, t time.Time, nonce [nonceLen]byte, signer identity.AgentID) []byte {
	buf := make([]byte, 0, len(msg)+8+nonceLen+identity.IDLen)
	buf = append(buf, msg...)
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(t.UnixMilli()))
	buf = append(buf, ts[:]...)
	buf = append(buf, nonce[:]...)
	buf = append(buf, signer[:]...)
	return buf
}

// Serialize writes the wire format from spec §6:
//
//	payload_len(u32 LE) || payload || signature(64) || time(i64 LE) ||
//	nonce(16) || signer_id(16) || algorithm(u8)
func Serialize(sm *SignedMessage) []byte {
	n := 4 + len(sm.Payload) + ed25519.SignatureSize + 8 + nonceLen + identity.IDLen + 1
	buf := make([]byte, n)
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(sm.Payload)))
	off += 4
	off += copy(buf[off:], sm.Payload)
	off += copy(buf[off:], sm.Signature[:])
	binary.LittleEndian.PutUint64(buf[off:], uint64(sm.Time.UnixMilli()))
	off += 8
	off += copy(buf[off:], sm.Nonce[:])
	off += copy(buf[off:], sm.SignerID[:])
	buf[off] = byte(sm.Algorithm)
	return buf
}

// Deserialize parses the wire format produced by Serialize.
func Deserialize(buf []byte) (*SignedMessage, error) {
	if len(buf) < 4 {
		return nil, ErrInvalidKeyFormat
	}
	payloadLen := binary.LittleEndian.Uint32(buf)
	off := 4
	want := off + int(payloadLen) + ed25519.SignatureSize + 8 + nonceLen + identity.IDLen + 1
	if len(buf) != want {
		return nil, ErrInvalidKeyFormat
	}

	sm := &SignedMessage{}
	sm.Payload = append([]byte(nil), buf[off:off+int(payloadLen)]...)
	off += int(payloadLen)
	copy(sm.Signature[:], buf[off:off+ed25519.SignatureSize])
	off += ed25519.SignatureSize
	ms := binary.LittleEndian.Uint64(buf[off:])
	sm.Time = time.UnixMilli(int64(ms))
	off += 8
	copy(sm.Nonce[:], buf[off:off+nonceLen])
	off += nonceLen
	copy(sm.SignerID[:], buf[off:off+identity.IDLen])
	off += identity.IDLen
	sm.Algorithm = Algorithm(buf[off])
	return sm, nil
}
