// Package kex implements X25519 ECDH key exchange and HKDF-over-BLAKE3
// session-key derivation, per spec §3/§4.2/§8. Session keys carry a
// 60-minute lifetime (KeyExchangeResult.IsValid); post-expiry use is
// forbidden by the caller checking IsValid before every use.
package kex

import (
	"errors"
	"fmt"
	"hash"
	"time"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
	"lukechampine.com/blake3"

	"github.com/octoreflex/ranswarm/internal/crypto/aead"
	"github.com/octoreflex/ranswarm/internal/crypto/identity"
)

// SessionKeyLifetime is the validity period of a derived session key
// (spec §4.2: "60-minute lifetime").
const SessionKeyLifetime = 60 * time.Minute

// defaultSalt is the fixed label used when no context is supplied
// (spec §4.2: "salt = optional context or the fixed label
// 'elex-session-key'"). Carried verbatim from the original design so wire
// compatibility with peers using the same label is preserved.
const defaultSalt = "elex-session-key"

// ErrKeyExchangeFailed wraps any failure in the ECDH or derivation path.
var ErrKeyExchangeFailed = errors.New("kex: key exchange failed")

// Result is a derived session key with its validity window.
type Result struct {
	SessionKey [aead.SessionKeySize]byte
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// IsValid reports whether the session key is still within its lifetime.
func (r *Result) IsValid(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}

// DeriveSessionKey performs X25519 ECDH between id's key-exchange scalar
// and peerPublic, then derives a session key via HKDF-Extract-and-Expand
// with BLAKE3 as the underlying hash, using the fixed default salt.
func DeriveSessionKey(id *identity.Identity, peerPublic [32]byte) (*Result, error) {
	return DeriveSessionKeyWithContext(id, peerPublic, nil)
}

// DeriveSessionKeyWithContext is DeriveSessionKey with an explicit HKDF
// salt (the context) instead of the fixed default label.
func DeriveSessionKeyWithContext(id *identity.Identity, peerPublic [32]byte, context []byte) (*Result, error) {
	scalar := id.KeyExchangeScalar()
	shared, err := curve25519.X25519(scalar[:], peerPublic[:])
	if err != nil {
		return nil, fmt.Errorf("%w: ecdh: %v", ErrKeyExchangeFailed, err)
	}

	salt := context
	if salt == nil {
		salt = []byte(defaultSalt)
	}

	newHash := func() hash.Hash { return blake3.New(32, nil) }
	kdf := hkdf.New(newHash, shared, salt, nil)

	var res Result
	if _, err := kdf.Read(res.SessionKey[:]); err != nil {
		return nil, fmt.Errorf("%w: hkdf: %v", ErrKeyExchangeFailed, err)
	}
	res.CreatedAt = time.Now()
	res.ExpiresAt = res.CreatedAt.Add(SessionKeyLifetime)
	return &res, nil
}
