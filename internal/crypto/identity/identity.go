// Package identity implements agent cryptographic identity: an Ed25519
// signing keypair, an X25519 key-exchange keypair, and a 16-byte agent id
// derived from the Ed25519 public key. Identity is immutable for the life
// of the agent; the secret keys are held in unexported fields and are
// handed out only through SigningPrivateKey and KeyExchangeScalar.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/curve25519"
	"lukechampine.com/blake3"
)

// IDLen is the length in bytes of an AgentID.
const IDLen = 16

// AgentID is a 16-byte identifier derived as BLAKE3(public_key)[0:16].
type AgentID [IDLen]byte

// String returns the hex encoding of the id.
func (id AgentID) String() string {
	return hex.EncodeToString(id[:])
}

// ParseAgentID decodes a hex-encoded 16-byte agent id.
func ParseAgentID(s string) (AgentID, error) {
	var id AgentID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("identity: invalid hex agent id: %w", err)
	}
	if len(b) != IDLen {
		return id, fmt.Errorf("identity: agent id must be %d bytes, got %d", IDLen, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// deriveAgentID computes BLAKE3(pub)[0:16].
func deriveAgentID(pub ed25519.PublicKey) AgentID {
	sum := blake3.Sum256(pub)
	var id AgentID
	copy(id[:], sum[:IDLen])
	return id
}

// Identity is an agent's full cryptographic identity: Ed25519 signing
// keys, an X25519 key-exchange keypair, and the derived agent id. The
// zero value is not valid; use Generate.
type Identity struct {
	id         AgentID
	signPub    ed25519.PublicKey
	signPriv   ed25519.PrivateKey
	kexPriv    [32]byte // X25519 scalar
	kexPub     [32]byte
	createdAt  time.Time
}

// Generate draws fresh randomness from the host CSPRNG and builds a new
// Identity: Ed25519 secret -> verifying key -> X25519 keypair -> agent id.
func Generate() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: ed25519 key generation: %w", err)
	}

	var kexPriv [32]byte
	if _, err := rand.Read(kexPriv[:]); err != nil {
		return nil, fmt.Errorf("identity: x25519 scalar generation: %w", err)
	}
	// Clamp per RFC 7748 so curve25519.X25519 treats it as a valid scalar.
	kexPriv[0] &= 248
	kexPriv[31] &= 127
	kexPriv[31] |= 64

	kexPubBytes, err := curve25519.X25519(kexPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("identity: x25519 public key derivation: %w", err)
	}
	var kexPub [32]byte
	copy(kexPub[:], kexPubBytes)

	return &Identity{
		id:        deriveAgentID(pub),
		signPub:   pub,
		signPriv:  priv,
		kexPriv:   kexPriv,
		kexPub:    kexPub,
		createdAt: time.Now(),
	}, nil
}

// ID returns the agent's derived 16-byte identifier.
func (idn *Identity) ID() AgentID { return idn.id }

// SigningPublicKey returns the Ed25519 verifying key.
func (idn *Identity) SigningPublicKey() ed25519.PublicKey { return idn.signPub }

// SigningPrivateKey returns the Ed25519 signing key. Callers in this
// module tree only; never serialize this value across a trust boundary.
func (idn *Identity) SigningPrivateKey() ed25519.PrivateKey { return idn.signPriv }

// KeyExchangePublicKey returns the X25519 public key.
func (idn *Identity) KeyExchangePublicKey() [32]byte { return idn.kexPub }

// keyExchangePrivateKey returns the X25519 scalar.
func (idn *Identity) keyExchangePrivateKey() [32]byte { return idn.kexPriv }

// KeyExchangeScalar returns the X25519 private scalar. It is exported, so
// any package can call it; in this tree only the kex package does.
func (idn *Identity) KeyExchangeScalar() [32]byte { return idn.keyExchangePrivateKey() }

// CreatedAt returns the identity's creation time.
func (idn *Identity) CreatedAt() time.Time { return idn.createdAt }

// Sign produces a raw Ed25519 signature over msg. Higher-level signed
// message construction (with nonce/timestamp/signer binding) lives in the
// signing package, which takes an *Identity as a signer.
func (idn *Identity) Sign(msg []byte) []byte {
	return ed25519.Sign(idn.signPriv, msg)
}
