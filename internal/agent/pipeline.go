package agent

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"lukechampine.com/blake3"

	"github.com/octoreflex/ranswarm/internal/budget"
	"github.com/octoreflex/ranswarm/internal/hnsw"
	"github.com/octoreflex/ranswarm/internal/qlearning"
	"github.com/octoreflex/ranswarm/internal/qlearning/replay"
	"github.com/octoreflex/ranswarm/internal/qlearning/trajectory"
	"github.com/octoreflex/ranswarm/internal/safety"
)

// pipeline runs the nine-step query pipeline (spec §4.7) and returns the
// synthesized Response. Safe for concurrent use by the worker pool;
// per-query state lives entirely on the stack and in the shared,
// internally-synchronized subsystems in a.deps.
func (a *Agent) pipeline(ctx context.Context, q Query) (Response, error) {
	start := time.Now()

	// Step 1: entity extraction (external).
	entities := a.deps.Extractor.Extract(q.Text)

	// Step 2: context retrieval.
	var neighbors []hnsw.Result
	k := a.deps.Config.ContextRetrievalK
	if a.deps.HNSW != nil && q.Embedding != nil {
		searchStart := time.Now()
		res, err := a.deps.HNSW.Search(q.Embedding, k)
		if err != nil {
			a.deps.Logger.Warn("context retrieval failed", zap.Error(err))
		} else {
			neighbors = res
		}
		if a.deps.Metrics != nil {
			a.deps.Metrics.HNSWSearchLatencySeconds.Observe(time.Since(searchStart).Seconds())
		}
	}
	contextHash := neighborContextHash(neighbors)

	// Step 3: confidence estimation.
	maxSim, meanSim := similarityStats(neighbors)
	confReq := ConfidenceRequest{
		MaxSimilarity:  maxSim,
		MeanSimilarity: meanSim,
		NeighborCount:  len(neighbors),
		RequestedK:     k,
		Embedding:      q.Embedding,
	}
	confidence := a.deps.Estimator.Estimate(confReq, float32(a.momentum.get()))
	a.momentum.update(float64(confidence))
	if observer, ok := a.deps.Estimator.(interface{ Observe([]float32) }); ok && q.Embedding != nil {
		observer.Observe(q.Embedding)
	}

	// Step 4: state encoding.
	bucket := qlearning.ConfidenceBucket(confidence)
	state := qlearning.EncodeState(q.Type, q.Complexity, bucket, contextHash)

	// Step 5: action selection.
	sel := a.deps.Policy.Select(state, qlearning.Actions)
	action := sel.Action

	if a.deps.Budget != nil {
		if cost, gated := budget.CostModel[action]; gated && cost > 0 {
			if !a.deps.Budget.Consume(cost) {
				action = qlearning.RequestClarification
			}
		}
	}

	// Step 6: response synthesis (external).
	neighborIDs := neighborIDs(neighbors)
	text, change := a.deps.Synthesizer.Synthesize(action, q, neighborIDs, entities)

	// Step 7: parameter-change emission.
	if change != nil && action != qlearning.RequestClarification {
		if err := a.deps.Safety.ValidateChange(change.Parameter, change.OldValue, change.NewValue); err != nil {
			if a.deps.Metrics != nil {
				a.deps.Metrics.SafetyViolationsTotal.WithLabelValues(violationTypeLabel(err), "critical").Inc()
			}
			action = qlearning.RequestClarification
			text = safetyExplanation(change.Parameter, err)
		} else {
			a.deps.Safety.RecordChange(change.Parameter)
		}
	}

	// Step 8: trajectory.
	trajID := a.openTrajectory(contextHash, q, start)
	exp := replay.Experience{
		State:        state,
		Action:       action,
		Reward:       0,
		NextState:    state,
		Done:         false,
		QValueBefore: sel.QValue,
		QValueAfter:  sel.QValue,
	}
	a.deps.Trajectories.AddTransition(trajID, exp)

	latency := time.Since(start)
	if a.deps.Metrics != nil {
		a.deps.Metrics.QueriesProcessedTotal.WithLabelValues(action.String()).Inc()
		a.deps.Metrics.QueryLatencySeconds.Observe(latency.Seconds())
	}

	return Response{
		Text:         text,
		Action:       action,
		AgentID:      a.ID(),
		Confidence:   confidence,
		LatencyMS:    float64(latency) / float64(time.Millisecond),
		QValue:       sel.QValue,
		TrajectoryID: trajID,
	}, nil
}

// openTrajectory returns the already-open trajectory for contextHash, or
// starts a new one. trajectory.Buffer.Start unconditionally evicts any
// existing trajectory for the same context, so membership must be
// tracked here to honor "start() if not already open" (spec §4.7 step
// 8): a still-pending trajectory for this context is reused rather than
// restarted on every query that lands on it.
func (a *Agent) openTrajectory(contextHash uint64, q Query, now time.Time) trajectory.ID {
	a.openMu.Lock()
	defer a.openMu.Unlock()

	if id, ok := a.openCtx[contextHash]; ok {
		if tr, ok := a.deps.Trajectories.Get(id); ok && tr.Outcome == trajectory.Pending {
			return id
		}
		delete(a.openCtx, contextHash)
	}

	id := a.deps.Trajectories.Start(a.ID(), contextHash, now)
	a.openCtx[contextHash] = id
	return id
}

// neighborContextHash derives the pipeline's context_hash (spec §4.7
// step 2) as the first 8 bytes of BLAKE3 over the neighbor ids,
// concatenated in result order (descending similarity). An empty
// neighbor set hashes to a fixed value distinct from any real context.
func neighborContextHash(neighbors []hnsw.Result) uint64 {
	buf := make([]byte, 0, len(neighbors)*8)
	for _, n := range neighbors {
		buf = appendUint64(buf, n.ID)
	}
	sum := blake3.Sum256(buf)
	return beUint64(sum[:8])
}

func appendUint64(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func beUint64(b []byte) uint64 {
	return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
}

func similarityStats(neighbors []hnsw.Result) (max, mean float32) {
	if len(neighbors) == 0 {
		return 0, 0
	}
	var sum float32
	max = neighbors[0].Similarity
	for _, n := range neighbors {
		if n.Similarity > max {
			max = n.Similarity
		}
		sum += n.Similarity
	}
	return max, sum / float32(len(neighbors))
}

func neighborIDs(neighbors []hnsw.Result) []uint64 {
	if len(neighbors) == 0 {
		return nil
	}
	ids := make([]uint64, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ID
	}
	return ids
}

func violationTypeLabel(err error) string {
	switch {
	case errors.Is(err, safety.ErrExceedsAbsoluteMax):
		return "exceeds_absolute_max"
	case errors.Is(err, safety.ErrBelowAbsoluteMin):
		return "below_absolute_min"
	case errors.Is(err, safety.ErrExceedsChangeLimit):
		return "exceeds_change_limit"
	case errors.Is(err, safety.ErrParameterInCooldown):
		return "in_cooldown"
	default:
		return "unknown"
	}
}

func safetyExplanation(parameter string, err error) string {
	return "parameter change to " + parameter + " rejected by safe-zone validator: " + err.Error()
}
