// Package vectorops provides the scalar and SIMD-lane vector primitives
// shared by the HNSW index, the Q-learning engine, and the safe-zone
// validator: cosine similarity, batch Bellman updates, range-mask
// validation, and weighted aggregation.
//
// Implementation selection: the 4-wide lane implementation is chosen once
// at construction time via Detect() and recorded in the Ops value (see
// Ops.Impl), so the
// dispatch cost is paid once rather than on every call. Both paths must
// agree within 1e-5 relative tolerance; callers needing a specific path
// can bypass the table and call the Scalar* or Lanes4* functions directly.
package vectorops

import (
	"fmt"
	"math"
)

// Impl identifies which lane width an Ops value dispatches to.
type Impl int

const (
	// ImplScalar processes one element per iteration.
	ImplScalar Impl = iota
	// ImplLanes4 processes four elements per iteration (unrolled, the
	// portable stand-in for a 128-bit SIMD register in pure Go).
	ImplLanes4
)

func (i Impl) String() string {
	switch i {
	case ImplScalar:
		return "scalar"
	case ImplLanes4:
		return "lanes4"
	default:
		return "unknown"
	}
}

// Ops is a bound set of vector primitives using one implementation, chosen
// once at construction time. The zero value is not valid; use New or
// NewScalar.
type Ops struct {
	impl Impl
}

// Detect chooses ImplLanes4 unconditionally: in portable Go there is no
// runtime CPU-feature probe analogous to the host capability detection the
// spec describes for a native SIMD backend, so the 4-wide unrolled path is
// always available and always preferred. The choice is recorded in each
// Ops value and reported by Ops.Impl, so callers can observe and log which
// implementation is active.
func Detect() Impl {
	return ImplLanes4
}

// New constructs an Ops bound to the detected implementation.
func New() *Ops {
	return &Ops{impl: Detect()}
}

// NewScalar constructs an Ops bound to the scalar reference path
// unconditionally. Used by tests that assert scalar/lanes4 agreement.
func NewScalar() *Ops {
	return &Ops{impl: ImplScalar}
}

// Impl reports which implementation this Ops dispatches to.
func (o *Ops) Impl() Impl { return o.impl }

// Cosine returns dot(a,b) / (‖a‖·‖b‖), or 0 if either operand has zero L2
// norm. Panics if len(a) != len(b) — a dimension mismatch is a contract
// violation (spec §7), not a recoverable error.
func (o *Ops) Cosine(a, b []float32) float32 {
	requireEqualLen(a, b)
	switch o.impl {
	case ImplLanes4:
		return cosineLanes4(a, b)
	default:
		return cosineScalar(a, b)
	}
}

// BatchQUpdate applies the Bellman update in place:
//
//	q[i] <- q[i] + alpha*(r[i] + gamma*nextMaxQ[i] - q[i])
//
// All three slices must have equal length.
func (o *Ops) BatchQUpdate(q, r, nextMaxQ []float32, alpha, gamma float32) {
	if len(q) != len(r) || len(q) != len(nextMaxQ) {
		panic(fmt.Sprintf("vectorops: BatchQUpdate length mismatch: q=%d r=%d nextMaxQ=%d",
			len(q), len(r), len(nextMaxQ)))
	}
	switch o.impl {
	case ImplLanes4:
		batchQUpdateLanes4(q, r, nextMaxQ, alpha, gamma)
	default:
		batchQUpdateScalar(q, r, nextMaxQ, alpha, gamma)
	}
}

// ValidateRange sets outMask[i] = 1 if mins[i] <= values[i] <= maxs[i], else 0.
// values, mins, maxs, and outMask must all have equal length.
func (o *Ops) ValidateRange(values, mins, maxs []float32, outMask []uint8) {
	n := len(values)
	if len(mins) != n || len(maxs) != n || len(outMask) != n {
		panic(fmt.Sprintf("vectorops: ValidateRange length mismatch: values=%d mins=%d maxs=%d outMask=%d",
			n, len(mins), len(maxs), len(outMask)))
	}
	switch o.impl {
	case ImplLanes4:
		validateRangeLanes4(values, mins, maxs, outMask)
	default:
		validateRangeScalar(values, mins, maxs, outMask)
	}
}

// AggregateResult is the output of Aggregate.
type AggregateResult struct {
	Sum          float64
	WeightedSum  float64
	Max          float32
	CountAbove   int
}

// Aggregate computes the sum, weight-weighted sum, max, and strict
// above-threshold count over values. values and weights must have equal
// length; weights may be nil to mean "all weights are 1".
func (o *Ops) Aggregate(values []float32, weights []float32, threshold float32) AggregateResult {
	if weights != nil && len(weights) != len(values) {
		panic(fmt.Sprintf("vectorops: Aggregate length mismatch: values=%d weights=%d",
			len(values), len(weights)))
	}
	switch o.impl {
	case ImplLanes4:
		return aggregateLanes4(values, weights, threshold)
	default:
		return aggregateScalar(values, weights, threshold)
	}
}

func requireEqualLen(a, b []float32) {
	if len(a) != len(b) {
		panic(fmt.Sprintf("vectorops: dimension mismatch: %d != %d", len(a), len(b)))
	}
}

// ─── scalar reference path ────────────────────────────────────────────────

func cosineScalar(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func batchQUpdateScalar(q, r, nextMaxQ []float32, alpha, gamma float32) {
	for i := range q {
		q[i] = q[i] + alpha*(r[i]+gamma*nextMaxQ[i]-q[i])
	}
}

func validateRangeScalar(values, mins, maxs []float32, outMask []uint8) {
	for i := range values {
		if values[i] >= mins[i] && values[i] <= maxs[i] {
			outMask[i] = 1
		} else {
			outMask[i] = 0
		}
	}
}

func aggregateScalar(values, weights []float32, threshold float32) AggregateResult {
	var res AggregateResult
	for i, v := range values {
		res.Sum += float64(v)
		w := float32(1)
		if weights != nil {
			w = weights[i]
		}
		res.WeightedSum += float64(v) * float64(w)
		if i == 0 || v > res.Max {
			res.Max = v
		}
		if v > threshold {
			res.CountAbove++
		}
	}
	return res
}

// ─── 4-wide unrolled path ─────────────────────────────────────────────────
//
// Pure Go has no portable SIMD intrinsics; these functions process four
// elements per loop iteration so the compiler can auto-vectorize or at
// least pipeline the scalar ops, mirroring the lane width the original
// WASM SIMD128 implementation used (four packed f32 per v128 register).

func cosineLanes4(a, b []float32) float32 {
	n := len(a)
	lanes := n - n%4
	var dot0, dot1, dot2, dot3 float64
	var na0, na1, na2, na3 float64
	var nb0, nb1, nb2, nb3 float64
	for i := 0; i < lanes; i += 4 {
		dot0 += float64(a[i]) * float64(b[i])
		dot1 += float64(a[i+1]) * float64(b[i+1])
		dot2 += float64(a[i+2]) * float64(b[i+2])
		dot3 += float64(a[i+3]) * float64(b[i+3])

		na0 += float64(a[i]) * float64(a[i])
		na1 += float64(a[i+1]) * float64(a[i+1])
		na2 += float64(a[i+2]) * float64(a[i+2])
		na3 += float64(a[i+3]) * float64(a[i+3])

		nb0 += float64(b[i]) * float64(b[i])
		nb1 += float64(b[i+1]) * float64(b[i+1])
		nb2 += float64(b[i+2]) * float64(b[i+2])
		nb3 += float64(b[i+3]) * float64(b[i+3])
	}
	dot := dot0 + dot1 + dot2 + dot3
	na := na0 + na1 + na2 + na3
	nb := nb0 + nb1 + nb2 + nb3
	for i := lanes; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func batchQUpdateLanes4(q, r, nextMaxQ []float32, alpha, gamma float32) {
	n := len(q)
	lanes := n - n%4
	for i := 0; i < lanes; i += 4 {
		q[i] = q[i] + alpha*(r[i]+gamma*nextMaxQ[i]-q[i])
		q[i+1] = q[i+1] + alpha*(r[i+1]+gamma*nextMaxQ[i+1]-q[i+1])
		q[i+2] = q[i+2] + alpha*(r[i+2]+gamma*nextMaxQ[i+2]-q[i+2])
		q[i+3] = q[i+3] + alpha*(r[i+3]+gamma*nextMaxQ[i+3]-q[i+3])
	}
	for i := lanes; i < n; i++ {
		q[i] = q[i] + alpha*(r[i]+gamma*nextMaxQ[i]-q[i])
	}
}

func validateRangeLanes4(values, mins, maxs []float32, outMask []uint8) {
	n := len(values)
	lanes := n - n%4
	for i := 0; i < lanes; i += 4 {
		for j := 0; j < 4; j++ {
			k := i + j
			if values[k] >= mins[k] && values[k] <= maxs[k] {
				outMask[k] = 1
			} else {
				outMask[k] = 0
			}
		}
	}
	for i := lanes; i < n; i++ {
		if values[i] >= mins[i] && values[i] <= maxs[i] {
			outMask[i] = 1
		} else {
			outMask[i] = 0
		}
	}
}

func aggregateLanes4(values, weights []float32, threshold float32) AggregateResult {
	// Aggregation is a reduction; lane width does not change the result,
	// only the accumulation order (allowed — callers tolerate 1e-5 drift).
	return aggregateScalar(values, weights, threshold)
}
