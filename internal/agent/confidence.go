// Package agent implements the per-agent query pipeline (spec §4.7): the
// aggregate that binds identity, HNSW context retrieval, epsilon-greedy
// Q-learning action selection, safe-zone parameter validation, the
// working-set cache, and Raft-backed routing into a single pipeline()/
// feedback() contract.
package agent

import "sync"

// ConfidenceWeights are the coefficients of the composite confidence
// formula step 3 of the pipeline evaluates. The four-term weighted-sum
// shape is the same one the severity scorer used for composite threshold
// scoring, retargeted here from (anomaly, quorum, integrity, pressure)
// onto the retrieval signals a query actually has available: how close
// the best neighbor is, how close neighbors are on average, how much of
// the requested context was actually found, and the agent's recent
// confidence momentum.
type ConfidenceWeights struct {
	MaxSimilarity  float32
	MeanSimilarity float32
	Coverage       float32
	Momentum       float32
}

// DefaultConfidenceWeights mirrors the default severity weighting
// (0.4/0.2/0.2/0.2): the single strongest signal (best-neighbor
// similarity) dominates, the remaining three terms split the rest evenly.
func DefaultConfidenceWeights() ConfidenceWeights {
	return ConfidenceWeights{
		MaxSimilarity:  0.4,
		MeanSimilarity: 0.2,
		Coverage:       0.2,
		Momentum:       0.2,
	}
}

// ConfidenceRequest carries the retrieval signals available at the point
// pipeline() must estimate confidence (step 3).
type ConfidenceRequest struct {
	MaxSimilarity  float32
	MeanSimilarity float32
	NeighborCount  int
	RequestedK     int
	// Embedding is the query's own embedding, carried through for
	// estimators that score confidence against a baseline of prior
	// traffic rather than (or in addition to) the retrieval signals
	// above. May be nil.
	Embedding []float32
}

// ConfidenceEstimator scores a context retrieval into a confidence value
// in [0,1], deterministic for fixed inputs. Pluggable: swarm operators
// that want a different confidence model can register one without
// touching the pipeline.
type ConfidenceEstimator interface {
	Name() string
	Estimate(req ConfidenceRequest, momentum float32) float32
}

var (
	estimatorMu sync.RWMutex
	estimators  = make(map[string]ConfidenceEstimator)
)

// RegisterEstimator adds e to the global estimator registry under e.Name().
// Panics if the name is already registered.
func RegisterEstimator(e ConfidenceEstimator) {
	estimatorMu.Lock()
	defer estimatorMu.Unlock()
	name := e.Name()
	if _, exists := estimators[name]; exists {
		panic("agent: confidence estimator already registered: " + name)
	}
	estimators[name] = e
}

// GetEstimator looks up a registered estimator by name.
func GetEstimator(name string) (ConfidenceEstimator, bool) {
	estimatorMu.RLock()
	defer estimatorMu.RUnlock()
	e, ok := estimators[name]
	return e, ok
}

// ListEstimators returns the names of every registered estimator.
func ListEstimators() []string {
	estimatorMu.RLock()
	defer estimatorMu.RUnlock()
	names := make([]string, 0, len(estimators))
	for name := range estimators {
		names = append(names, name)
	}
	return names
}

// weightedEstimator is the reference ConfidenceEstimator: a fixed
// weighted sum of similarity, coverage, and momentum terms.
type weightedEstimator struct {
	weights ConfidenceWeights
}

func (w weightedEstimator) Name() string { return "weighted_composite" }

func (w weightedEstimator) Estimate(req ConfidenceRequest, momentum float32) float32 {
	coverage := float32(0)
	if req.RequestedK > 0 {
		coverage = float32(req.NeighborCount) / float32(req.RequestedK)
	}
	s := w.weights.MaxSimilarity*clamp01(req.MaxSimilarity) +
		w.weights.MeanSimilarity*clamp01(req.MeanSimilarity) +
		w.weights.Coverage*clamp01(coverage) +
		w.weights.Momentum*clamp01(momentum)
	return clamp01(s)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func init() {
	RegisterEstimator(weightedEstimator{weights: DefaultConfidenceWeights()})
}

// momentumTracker is an exponentially-weighted moving average of recent
// confidence scores, ported from the EWMA accumulator used to smooth a
// per-subject pressure signal: P_{t+1} = alpha*P_t + (1-alpha)*x_t. Here
// it smooths confidence instead of pressure, so a run of low-confidence
// queries drags the momentum term down gradually rather than letting a
// single noisy query swing the next query's estimate.
type momentumTracker struct {
	mu    sync.Mutex
	alpha float64
	value float64
}

// defaultMomentumAlpha is the default EWMA smoothing constant.
const defaultMomentumAlpha = 0.8

func newMomentumTracker(alpha float64) *momentumTracker {
	if alpha < 0 || alpha > 1 {
		panic("agent: momentum alpha must be in [0,1]")
	}
	return &momentumTracker{alpha: alpha, value: 0.5}
}

func (m *momentumTracker) update(x float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = m.alpha*m.value + (1-m.alpha)*x
	return m.value
}

func (m *momentumTracker) get() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value
}
