package agent

import (
	"context"
	"math/rand"
	"testing"

	"github.com/octoreflex/ranswarm/internal/crypto/identity"
	"github.com/octoreflex/ranswarm/internal/hnsw"
	"github.com/octoreflex/ranswarm/internal/qlearning"
	"github.com/octoreflex/ranswarm/internal/qlearning/policy"
	"github.com/octoreflex/ranswarm/internal/qlearning/qtable"
	"github.com/octoreflex/ranswarm/internal/qlearning/replay"
	"github.com/octoreflex/ranswarm/internal/qlearning/trajectory"
	"github.com/octoreflex/ranswarm/internal/safety"
)

func newTestAgent(t *testing.T) *Agent {
	t.Helper()

	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}

	index := hnsw.New(hnsw.DefaultConfig(8))
	for i := 0; i < 10; i++ {
		v := make([]float32, 8)
		v[i%8] = 1
		if _, err := index.Insert(v); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	table := qtable.New(qtable.DefaultConfig())
	pol := policy.New(table, rand.NewSource(1))
	pol.SetExplorationDisabled(true)

	deps := Deps{
		Identity:     id,
		HNSW:         index,
		QTable:       table,
		Policy:       pol,
		Replay:       replay.New(replay.DefaultCapacity, replay.DefaultAlpha, replay.DefaultBetaStart, rand.NewSource(2)),
		Trajectories: trajectory.New(trajectory.DefaultCapacity),
		Safety:       safety.NewValidator(),
	}

	a, err := New(deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestPipelineReturnsResponseWithTrajectory(t *testing.T) {
	a := newTestAgent(t)

	q := Query{
		Text:       "increase handover margin on cell 42",
		Type:       qlearning.QueryType(1),
		Complexity: qlearning.Complexity(1),
		Embedding:  []float32{1, 0, 0, 0, 0, 0, 0, 0},
	}

	resp, err := a.pipeline(context.Background(), q)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if resp.AgentID != a.ID() {
		t.Fatalf("AgentID = %q, want %q", resp.AgentID, a.ID())
	}
	if resp.Confidence < 0 || resp.Confidence > 1 {
		t.Fatalf("Confidence = %v, want in [0,1]", resp.Confidence)
	}
	if resp.Text == "" {
		t.Fatal("Text is empty")
	}

	tr, ok := a.deps.Trajectories.Get(resp.TrajectoryID)
	if !ok {
		t.Fatal("trajectory not found after pipeline()")
	}
	if len(tr.Experiences) != 1 {
		t.Fatalf("len(tr.Experiences) = %d, want 1", len(tr.Experiences))
	}
}

func TestPipelineReusesOpenTrajectoryForSameContext(t *testing.T) {
	a := newTestAgent(t)

	q := Query{
		Type:       qlearning.QueryType(0),
		Complexity: qlearning.Complexity(0),
		Embedding:  []float32{1, 0, 0, 0, 0, 0, 0, 0},
	}

	first, err := a.pipeline(context.Background(), q)
	if err != nil {
		t.Fatalf("pipeline (first): %v", err)
	}
	second, err := a.pipeline(context.Background(), q)
	if err != nil {
		t.Fatalf("pipeline (second): %v", err)
	}

	if first.TrajectoryID != second.TrajectoryID {
		t.Fatalf("expected identical trajectory id for repeated context, got %d and %d", first.TrajectoryID, second.TrajectoryID)
	}

	tr, ok := a.deps.Trajectories.Get(first.TrajectoryID)
	if !ok {
		t.Fatal("trajectory not found")
	}
	if len(tr.Experiences) != 2 {
		t.Fatalf("len(tr.Experiences) = %d, want 2", len(tr.Experiences))
	}
}

func TestPipelineWithoutEmbeddingSkipsContextRetrieval(t *testing.T) {
	a := newTestAgent(t)

	resp, err := a.pipeline(context.Background(), Query{Type: qlearning.QueryType(2), Complexity: qlearning.Complexity(0)})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	// With no neighbors, similarity and coverage terms are both zero, so
	// confidence is driven entirely by the momentum term seeded at 0.5.
	want := DefaultConfidenceWeights().Momentum * 0.5
	if diff := resp.Confidence - want; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("Confidence = %v, want %v (momentum-only)", resp.Confidence, want)
	}
}

func TestFeedbackCompletesTrajectoryAndUpdatesQTable(t *testing.T) {
	a := newTestAgent(t)

	resp, err := a.pipeline(context.Background(), Query{
		Type:       qlearning.QueryType(0),
		Complexity: qlearning.Complexity(0),
		Embedding:  []float32{0, 1, 0, 0, 0, 0, 0, 0},
	})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}

	if err := a.Feedback(resp.TrajectoryID, 1.0, true); err != nil {
		t.Fatalf("Feedback: %v", err)
	}

	tr, ok := a.deps.Trajectories.Get(resp.TrajectoryID)
	if !ok {
		t.Fatal("trajectory not found after Feedback")
	}
	if tr.Outcome != trajectory.Success {
		t.Fatalf("Outcome = %v, want Success", tr.Outcome)
	}
	if a.deps.Replay.Len() != 1 {
		t.Fatalf("Replay.Len() = %d, want 1", a.deps.Replay.Len())
	}
}

func TestFeedbackUnknownTrajectoryErrors(t *testing.T) {
	a := newTestAgent(t)
	if err := a.Feedback(trajectory.ID(9999), 1.0, true); err == nil {
		t.Fatal("expected error for unknown trajectory id")
	}
}

func TestSubmitDropsWhenQueueFull(t *testing.T) {
	a := newTestAgent(t)
	a.deps.Config.QueryQueueSize = 1
	a.jobs = make(chan job, 1)

	// Fill the queue without a worker draining it.
	a.jobs <- job{ctx: context.Background(), query: Query{}, result: make(chan jobResult, 1)}

	_, err := a.Submit(context.Background(), Query{})
	if err != ErrQueueFull {
		t.Fatalf("Submit() error = %v, want ErrQueueFull", err)
	}
}
