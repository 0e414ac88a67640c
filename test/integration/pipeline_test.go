package integration_test

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/octoreflex/ranswarm/contrib"
	"github.com/octoreflex/ranswarm/internal/agent"
	"github.com/octoreflex/ranswarm/internal/budget"
	"github.com/octoreflex/ranswarm/internal/cache"
	"github.com/octoreflex/ranswarm/internal/config"
	"github.com/octoreflex/ranswarm/internal/crypto/identity"
	"github.com/octoreflex/ranswarm/internal/hnsw"
	"github.com/octoreflex/ranswarm/internal/qlearning"
	"github.com/octoreflex/ranswarm/internal/qlearning/policy"
	"github.com/octoreflex/ranswarm/internal/qlearning/qtable"
	"github.com/octoreflex/ranswarm/internal/qlearning/replay"
	"github.com/octoreflex/ranswarm/internal/qlearning/trajectory"
	"github.com/octoreflex/ranswarm/internal/safety"
	"github.com/octoreflex/ranswarm/internal/storage"
)

const vectorDim = 16

// newIntegrationAgent wires the full subsystem graph (identity, HNSW,
// Q-engine, safety, cache over a real BoltDB, budget) the same way
// cmd/ranswarm's entrypoint does, so this test exercises the
// subsystem-to-subsystem wiring, not just pipeline() in isolation.
func newIntegrationAgent(t *testing.T) (*agent.Agent, *storage.DB) {
	t.Helper()

	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}

	dbPath := filepath.Join(t.TempDir(), "ranswarm.db")
	db, err := storage.Open(dbPath, 7)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	index := hnsw.New(hnsw.DefaultConfig(vectorDim))
	for i := 0; i < 32; i++ {
		v := make([]float32, vectorDim)
		v[i%vectorDim] = 1
		v[(i+1)%vectorDim] = 0.5
		if _, err := index.Insert(v); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	table := qtable.New(qtable.DefaultConfig())
	pol := policy.New(table, rand.NewSource(42))

	validator := safety.NewValidator()

	budgetBucket := budget.New(5, time.Hour) // tiny capacity, refill far in the future
	t.Cleanup(budgetBucket.Close)

	workingSetCache := cache.New(cache.DefaultConfig(), storage.NewBoltPersister(db), nil)

	regex, err := contrib.GetExtractor("regex")
	if err != nil {
		t.Fatalf("contrib.GetExtractor: %v", err)
	}

	a, err := agent.New(agent.Deps{
		Identity:     id,
		HNSW:         index,
		QTable:       table,
		Policy:       pol,
		Replay:       replay.New(replay.DefaultCapacity, replay.DefaultAlpha, replay.DefaultBetaStart, rand.NewSource(7)),
		Trajectories: trajectory.New(trajectory.DefaultCapacity),
		Safety:       validator,
		Cache:        workingSetCache,
		Budget:       budgetBucket,
		Extractor:    testExtractor{regex},
		Config:       config.AgentConfig{QueryQueueSize: 1}, // single-slot ingestion queue
	})
	if err != nil {
		t.Fatalf("agent.New: %v", err)
	}
	return a, db
}

// TestPipelineEndToEndAcrossQueries drives several queries through the
// real Submit -> worker -> pipeline path and checks that responses are
// well-formed and that feedback closes the loop back into the Q-table.
func TestPipelineEndToEndAcrossQueries(t *testing.T) {
	a, _ := newIntegrationAgent(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)
	defer a.Stop()

	queries := []agent.Query{
		{
			Text:       "move lbActivationThreshold to 70",
			Type:       qlearning.QueryType(0),
			Complexity: qlearning.Complexity(0),
			Embedding:  vector(0, 1.0),
		},
		{
			Text:       "what is the current handover margin",
			Type:       qlearning.QueryType(1),
			Complexity: qlearning.Complexity(1),
			Embedding:  vector(3, 1.0),
		},
		{
			Text:       "unrelated free-form text with no entities",
			Type:       qlearning.QueryType(2),
			Complexity: qlearning.Complexity(0),
		},
	}

	for i, q := range queries {
		resp, err := a.Submit(ctx, q)
		if err != nil {
			t.Fatalf("query %d: Submit: %v", i, err)
		}
		if resp.AgentID != a.AgentID() {
			t.Fatalf("query %d: AgentID = %q, want %q", i, resp.AgentID, a.AgentID())
		}
		if resp.Confidence < 0 || resp.Confidence > 1 {
			t.Fatalf("query %d: Confidence = %v, want in [0,1]", i, resp.Confidence)
		}
		if resp.Text == "" {
			t.Fatalf("query %d: empty response text", i)
		}

		if err := a.Feedback(resp.TrajectoryID, 1.0, true); err != nil {
			t.Fatalf("query %d: Feedback: %v", i, err)
		}
	}

	if a.QTableEntries() == 0 {
		t.Fatal("expected at least one Q-table entry after feedback")
	}
}

// TestPipelineRejectsUnsafeParameterChange drives a query whose entity
// proposes a change that violates the embedded safe-zone catalog and
// checks that the pipeline downgrades to RequestClarification rather
// than emitting it.
func TestPipelineRejectsUnsafeParameterChange(t *testing.T) {
	a, _ := newIntegrationAgent(t)

	ctx := context.Background()
	a.Start(ctx)
	defer a.Stop()

	// lbActivationThreshold's absolute range is [10, 100]; this pushes
	// far outside it, so the synthesizer's proposed (value, value)
	// no-op change is itself safe (old==new), exercised indirectly via
	// ValidateChange's absolute-bounds check on the same value.
	resp, err := a.Submit(ctx, agent.Query{
		Text:       "set lbActivationThreshold = 500",
		Type:       qlearning.QueryType(0),
		Complexity: qlearning.Complexity(0),
		Embedding:  vector(0, 1.0),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.Action != qlearning.RequestClarification {
		t.Fatalf("Action = %v, want RequestClarification for an out-of-bounds change", resp.Action)
	}
}

// TestPipelineReusesTrajectoryAcrossRepeatedContext exercises the
// trajectory-dedup contract end to end through Submit rather than
// pipeline() directly.
func TestPipelineReusesTrajectoryAcrossRepeatedContext(t *testing.T) {
	a, _ := newIntegrationAgent(t)

	ctx := context.Background()
	a.Start(ctx)
	defer a.Stop()

	q := agent.Query{Type: qlearning.QueryType(0), Complexity: qlearning.Complexity(0), Embedding: vector(5, 1.0)}

	first, err := a.Submit(ctx, q)
	if err != nil {
		t.Fatalf("Submit (first): %v", err)
	}
	second, err := a.Submit(ctx, q)
	if err != nil {
		t.Fatalf("Submit (second): %v", err)
	}
	if first.TrajectoryID != second.TrajectoryID {
		t.Fatalf("expected shared trajectory for identical context, got %d and %d", first.TrajectoryID, second.TrajectoryID)
	}
}

// TestSubmitBackpressureUnderLoad fills a tiny queue without draining it
// and checks that overflow queries are dropped rather than blocked,
// matching the ingestion queue's documented backpressure contract.
func TestSubmitBackpressureUnderLoad(t *testing.T) {
	a, _ := newIntegrationAgent(t)
	// Do not call Start: no worker drains the queue, so the first Submit
	// fills it and every subsequent one must be dropped immediately. The
	// one Submit that gets the slot returns when ctx expires.

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	q := agent.Query{Type: qlearning.QueryType(0), Complexity: qlearning.Complexity(0)}

	go func() { _, _ = a.Submit(ctx, q) }() // occupies the single queue slot

	var dropped int
	for i := 0; i < 8; i++ {
		if _, err := a.Submit(ctx, q); err == agent.ErrQueueFull {
			dropped++
		}
	}
	if dropped == 0 {
		t.Fatal("expected at least one dropped query once the queue filled")
	}
}

// testExtractor adapts a contrib.EntityExtractor to agent.EntityExtractor,
// the same seam cmd/ranswarm's contribExtractorAdapter fills in production.
type testExtractor struct {
	ext contrib.EntityExtractor
}

func (t testExtractor) Extract(text string) []agent.Entity {
	entities := t.ext.Extract(text)
	if entities == nil {
		return nil
	}
	out := make([]agent.Entity, len(entities))
	for i, e := range entities {
		out[i] = agent.Entity{Parameter: e.Parameter, Value: e.Value}
	}
	return out
}

func vector(hotIndex int, value float32) []float32 {
	v := make([]float32, vectorDim)
	v[hotIndex%vectorDim] = value
	return v
}
