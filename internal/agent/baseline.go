package agent

import (
	"math"
	"sync"

	"github.com/octoreflex/ranswarm/internal/vectorops"
)

// embeddingBaseline tracks a running mean and covariance of the query
// embeddings an agent has seen, updated online via Welford's algorithm
// (the same incremental mean/variance update the baseline-establishment
// window used, generalized here from per-process event-rate features to
// the query embedding space). Once enough samples have accumulated, it
// can score how far a new embedding sits from the agent's typical
// traffic.
type embeddingBaseline struct {
	mu     sync.Mutex
	dim    int
	n      int
	mean   []float64
	covSum [][]float64 // sum of (x-mean_old)(x-mean_new)^T, Welford's online covariance
}

func newEmbeddingBaseline(dim int) *embeddingBaseline {
	covSum := make([][]float64, dim)
	for i := range covSum {
		covSum[i] = make([]float64, dim)
	}
	return &embeddingBaseline{dim: dim, mean: make([]float64, dim), covSum: covSum}
}

// observe folds x into the running baseline. Vectors of the wrong
// dimension are ignored rather than erroring, since a mismatch here is a
// caller bug and must not disrupt the query pipeline.
func (b *embeddingBaseline) observe(x []float32) {
	if len(x) != b.dim {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.n++
	deltaOld := make([]float64, b.dim)
	for i, xi := range x {
		deltaOld[i] = float64(xi) - b.mean[i]
		b.mean[i] += deltaOld[i] / float64(b.n)
	}
	for i := 0; i < b.dim; i++ {
		for j := 0; j < b.dim; j++ {
			deltaNew := float64(x[j]) - b.mean[j]
			b.covSum[i][j] += deltaOld[i] * deltaNew
		}
	}
}

// minBaselineSamples is how many samples beyond the embedding dimension
// deviation requires (n >= dim+minBaselineSamples) before the covariance
// estimate is treated as established rather than noise.
const minBaselineSamples = 2

// deviation returns the squared Mahalanobis distance of x from the
// baseline mean, falling back to squared Euclidean distance when the
// covariance is singular, and ok=false when too few samples have been
// observed to trust the estimate yet.
func (b *embeddingBaseline) deviation(x []float32) (dist float64, ok bool) {
	if len(x) != b.dim {
		return 0, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.n < b.dim+minBaselineSamples {
		return 0, false
	}

	diff := make([]float64, b.dim)
	for i, xi := range x {
		diff[i] = float64(xi) - b.mean[i]
	}

	cov := make([][]float64, b.dim)
	scale := 1.0 / float64(b.n-1)
	for i := range cov {
		cov[i] = make([]float64, b.dim)
		for j := range cov[i] {
			cov[i][j] = b.covSum[i][j] * scale
		}
	}

	if inv := vectorops.InvertCovariance(cov); inv != nil {
		return vectorops.MahalanobisSquared(diff, inv), true
	}
	return vectorops.EuclideanSquared(diff), true
}

// baselineWeightedEstimator decorates weightedEstimator with a deviation
// penalty: confidence earned from the retrieval signals is discounted
// when the query embedding sits far from the agent's established
// baseline, the same composition the anomaly score used (a base
// statistical term adjusted by how far the current sample sits from
// normal), retargeted from "should this be escalated" onto "how much
// should this query's confidence be trusted."
type baselineWeightedEstimator struct {
	inner    weightedEstimator
	baseline *embeddingBaseline
	// scale controls how fast the penalty decays with distance; it is
	// the feature count (dim), so a distance equal to dim multiplies
	// confidence by e^-1 (about 0.37).
	scale float64
}

func newBaselineWeightedEstimator(dim int, weights ConfidenceWeights) *baselineWeightedEstimator {
	return &baselineWeightedEstimator{
		inner:    weightedEstimator{weights: weights},
		baseline: newEmbeddingBaseline(dim),
		scale:    math.Max(float64(dim), 1),
	}
}

func (e *baselineWeightedEstimator) Name() string { return "baseline_weighted" }

func (e *baselineWeightedEstimator) Estimate(req ConfidenceRequest, momentum float32) float32 {
	base := e.inner.Estimate(req, momentum)

	dist, ok := e.baseline.deviation(req.Embedding)
	if !ok {
		return base
	}
	penalty := float32(math.Exp(-dist / e.scale))
	return clamp01(base * penalty)
}

// Observe folds a query embedding into the deviation baseline. Called by
// the pipeline after confidence has been estimated for the query, so the
// baseline always reflects traffic seen, not traffic about to be scored.
func (e *baselineWeightedEstimator) Observe(x []float32) {
	e.baseline.observe(x)
}
