// Package replay implements the nonce/signer replay-protection cache:
// within a validity window, the first occurrence of a (signer_id, nonce)
// pair is accepted and any subsequent occurrence within the window is
// rejected. Entries older than the window are purged lazily.
//
// internal/gossip/server.go checks envelope freshness and signatures but
// does not use this cache.
package replay

import (
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/octoreflex/ranswarm/internal/crypto/identity"
)

// DefaultWindow is the validity window specified in spec §3 ("5-minute
// validity window").
const DefaultWindow = 5 * time.Minute

// ErrReplayDetected is returned when a (signer, nonce) pair has already
// been observed within the validity window.
var ErrReplayDetected = errors.New("replay: nonce already seen within validity window")

type entry struct {
	seenAt time.Time
}

// Cache is a single-writer-per-agent replay cache (spec §5: "single-writer
// per agent (the agent's own inbox handler)"). It is safe for concurrent
// use; the single-writer discipline is a caller-side invariant, not one
// this type enforces.
type Cache struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]entry // key: signerID hex + nonce hex
}

// New creates a Cache with the given validity window. window <= 0 uses
// DefaultWindow.
func New(window time.Duration) *Cache {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Cache{
		window: window,
		seen:   make(map[string]entry),
	}
}

func key(signer identity.AgentID, nonce [16]byte) string {
	return hex.EncodeToString(signer[:]) + ":" + hex.EncodeToString(nonce[:])
}

// Check records the (signer, nonce) pair if it has not been seen within
// the validity window, returning nil. If it has already been seen within
// the window, it returns ErrReplayDetected and does not re-record it (the
// original timestamp is preserved).
func (c *Cache) Check(signer identity.AgentID, nonce [16]byte, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeExpiredLocked(now)

	k := key(signer, nonce)
	if _, ok := c.seen[k]; ok {
		return ErrReplayDetected
	}
	c.seen[k] = entry{seenAt: now}
	return nil
}

// Purge removes entries older than the validity window. Check already
// purges lazily; Purge is exposed for callers that want to bound memory
// on an idle cache (no incoming traffic to trigger lazy purging).
func (c *Cache) Purge(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeExpiredLocked(now)
}

func (c *Cache) purgeExpiredLocked(now time.Time) int {
	removed := 0
	for k, e := range c.seen {
		if now.Sub(e.seenAt) > c.window {
			delete(c.seen, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries currently resident (for metrics/tests).
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
