// Package replay implements prioritized experience replay (spec §4.5.3):
// a fixed-capacity ring buffer of Experiences sampled by TD-error-derived
// priority with importance-sampling weight correction.
package replay

import (
	"math"
	"math/rand"

	"github.com/octoreflex/ranswarm/internal/qlearning"
)

// DefaultCapacity is the ring buffer's default size.
const DefaultCapacity = 10000

// DefaultAlpha is the priority exponent (spec §4.5.3).
const DefaultAlpha = 0.6

// DefaultBetaStart and DefaultBetaEnd bound the importance-sampling
// exponent's annealing schedule.
const (
	DefaultBetaStart = 0.4
	DefaultBetaEnd   = 1.0
)

// priorityEpsilon is the small additive constant preventing zero
// probability for zero-TD-error experiences.
const priorityEpsilon = 1e-3

// Experience is one recorded transition.
type Experience struct {
	State      qlearning.StateKey
	Action     qlearning.Action
	Reward     float32
	NextState  qlearning.StateKey
	Done       bool
	TDError    float32
	QValueBefore float32
	QValueAfter  float32
}

type record struct {
	exp      Experience
	priority float32
}

// Buffer is a fixed-capacity prioritized replay ring buffer.
type Buffer struct {
	capacity int
	alpha    float32
	beta     float32

	records     []record
	writeCursor int
	filled      bool
	maxPriority float32

	rng *rand.Rand
}

// New constructs a Buffer with the given capacity, priority exponent, and
// initial importance-sampling beta.
func New(capacity int, alpha, betaStart float32, src rand.Source) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity:    capacity,
		alpha:       alpha,
		beta:        betaStart,
		records:     make([]record, 0, capacity),
		maxPriority: 1.0,
		rng:         rand.New(src),
	}
}

// Len returns the number of resident experiences.
func (b *Buffer) Len() int {
	return len(b.records)
}

// SetBeta updates the importance-sampling exponent (callers anneal this
// from DefaultBetaStart to DefaultBetaEnd over training).
func (b *Buffer) SetBeta(beta float32) {
	b.beta = beta
}

// Add inserts a new experience with the current maximum priority (spec
// §4.5.3: "new insertions receive the current maximum priority").
func (b *Buffer) Add(exp Experience) {
	r := record{exp: exp, priority: b.maxPriority}
	if len(b.records) < b.capacity {
		b.records = append(b.records, r)
		return
	}
	b.records[b.writeCursor] = r
	b.writeCursor = (b.writeCursor + 1) % b.capacity
	b.filled = true
}

// UpdatePriority sets the priority of the experience at index i to
// |tdError|+eps raised to alpha is computed internally from the raw TD
// error magnitude, and updates maxPriority if this is now the largest.
func (b *Buffer) UpdatePriority(i int, tdError float32) {
	if i < 0 || i >= len(b.records) {
		return
	}
	p := float32(math.Pow(float64(absF(tdError)+priorityEpsilon), float64(b.alpha)))
	b.records[i].priority = p
	if p > b.maxPriority {
		b.maxPriority = p
	}
}

// Sample draws batchSize indices without replacement, weighted by
// priority, and returns the corresponding experiences with their
// importance-sampling weights (normalized so the maximum weight in the
// batch is 1.0, per spec §4.5.3 step 3).
func (b *Buffer) Sample(batchSize int) (experiences []Experience, indices []int, weights []float32) {
	n := len(b.records)
	if n == 0 || batchSize <= 0 {
		return nil, nil, nil
	}
	if batchSize > n {
		batchSize = n
	}

	var totalPriority float64
	for _, r := range b.records {
		totalPriority += math.Pow(float64(r.priority), 1.0)
	}
	probs := make([]float64, n)
	for i, r := range b.records {
		probs[i] = float64(r.priority) / totalPriority
	}

	indices = weightedSampleWithoutReplacement(b.rng, probs, batchSize)

	experiences = make([]Experience, batchSize)
	weights = make([]float32, batchSize)
	var maxWeight float32
	for i, idx := range indices {
		experiences[i] = b.records[idx].exp
		w := float32(math.Pow(1.0/(float64(n)*probs[idx]), float64(b.beta)))
		weights[i] = w
		if w > maxWeight {
			maxWeight = w
		}
	}
	if maxWeight > 0 {
		for i := range weights {
			weights[i] /= maxWeight
		}
	}
	return experiences, indices, weights
}

// weightedSampleWithoutReplacement draws k distinct indices from probs
// using repeated weighted draws, renormalizing the remaining mass after
// each pick.
func weightedSampleWithoutReplacement(rng *rand.Rand, probs []float64, k int) []int {
	n := len(probs)
	remaining := append([]float64(nil), probs...)
	available := make([]int, n)
	for i := range available {
		available[i] = i
	}

	out := make([]int, 0, k)
	for len(out) < k && len(available) > 0 {
		var total float64
		for _, i := range available {
			total += remaining[i]
		}
		if total <= 0 {
			// Degenerate: fall back to uniform pick over what remains.
			pick := rng.Intn(len(available))
			out = append(out, available[pick])
			available = append(available[:pick], available[pick+1:]...)
			continue
		}
		draw := rng.Float64() * total
		var acc float64
		pick := 0
		for j, i := range available {
			acc += remaining[i]
			if draw <= acc {
				pick = j
				break
			}
		}
		out = append(out, available[pick])
		available = append(available[:pick], available[pick+1:]...)
	}
	return out
}

func absF(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
