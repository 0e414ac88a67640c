// Package budget implements the token bucket rate limiter gating
// high-cost agent actions (spec §4.7: ConsultPeer and Escalate consume
// swarm-wide coordination capacity that cheaper actions do not).
//
// Cost model:
//   - DirectAnswer, ContextAnswer, RequestClarification: cost 0 (free)
//   - ConsultPeer:  cost 2  (crosses agent boundaries, consumes peer time)
//   - Escalate:     cost 10 (pulls in human or higher-tier review)
//
// Refill: full capacity restored every refill period (not incremental).
//
// Invariants:
//   - tokens in [0, capacity] at all times.
//   - Consume() is atomic under mutex.
//   - Refill goroutine runs for the lifetime of the Bucket.
package budget

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/octoreflex/ranswarm/internal/qlearning"
)

// CostModel defines the token cost for each agent action. Actions absent
// from this map are free (ConsumeForAction treats them as cost 0).
var CostModel = map[qlearning.Action]int{
	qlearning.ConsultPeer: 2,
	qlearning.Escalate:    10,
}

// Bucket is a thread-safe token bucket for rate-limiting high-cost actions.
type Bucket struct {
	mu           sync.Mutex
	capacity     int
	tokens       int
	refillPeriod time.Duration

	consumedTotal atomic.Uint64
	refillCount   atomic.Uint64

	stop chan struct{}
}

// New creates a Bucket with the given capacity and starts the refill
// goroutine. capacity must be > 0. refillPeriod must be > 0. Call Close()
// to stop the refill goroutine.
func New(capacity int, refillPeriod time.Duration) *Bucket {
	if capacity <= 0 {
		panic("budget.Bucket: capacity must be > 0")
	}
	if refillPeriod <= 0 {
		panic("budget.Bucket: refillPeriod must be > 0")
	}
	b := &Bucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		stop:         make(chan struct{}),
	}
	go b.refillLoop()
	return b
}

func (b *Bucket) refillLoop() {
	ticker := time.NewTicker(b.refillPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.mu.Lock()
			b.tokens = b.capacity
			b.mu.Unlock()
			b.refillCount.Add(1)
		case <-b.stop:
			return
		}
	}
}

// Consume attempts to consume cost tokens. Returns true if available and
// consumed, false if the action must be downgraded/deferred.
func (b *Bucket) Consume(cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokens >= cost {
		b.tokens -= cost
		b.consumedTotal.Add(uint64(cost))
		return true
	}
	return false
}

// ConsumeForAction consumes the standard cost for a given action. Actions
// with no defined cost (e.g. DirectAnswer) always succeed.
func (b *Bucket) ConsumeForAction(action qlearning.Action) bool {
	cost, ok := CostModel[action]
	if !ok {
		return true
	}
	return b.Consume(cost)
}

// Remaining returns the current token count.
func (b *Bucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// Capacity returns the maximum token capacity.
func (b *Bucket) Capacity() int {
	return b.capacity
}

// ConsumedTotal returns the lifetime total of tokens consumed.
func (b *Bucket) ConsumedTotal() uint64 {
	return b.consumedTotal.Load()
}

// RefillCount returns the number of refill cycles completed.
func (b *Bucket) RefillCount() uint64 {
	return b.refillCount.Load()
}

// Close stops the refill goroutine. Safe to call once.
func (b *Bucket) Close() {
	close(b.stop)
}
