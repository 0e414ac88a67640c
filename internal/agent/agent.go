package agent

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/octoreflex/ranswarm/internal/budget"
	"github.com/octoreflex/ranswarm/internal/cache"
	"github.com/octoreflex/ranswarm/internal/config"
	"github.com/octoreflex/ranswarm/internal/crypto/identity"
	"github.com/octoreflex/ranswarm/internal/hnsw"
	"github.com/octoreflex/ranswarm/internal/observability"
	"github.com/octoreflex/ranswarm/internal/qlearning/policy"
	"github.com/octoreflex/ranswarm/internal/qlearning/qtable"
	"github.com/octoreflex/ranswarm/internal/qlearning/replay"
	"github.com/octoreflex/ranswarm/internal/qlearning/trajectory"
	"github.com/octoreflex/ranswarm/internal/raft"
	"github.com/octoreflex/ranswarm/internal/safety"
	"github.com/octoreflex/ranswarm/internal/vectorops"
)

// ErrQueueFull is returned by Submit when the ingestion queue has no
// room and the query is dropped rather than blocking the caller.
var ErrQueueFull = errors.New("agent: query queue full")

// Deps bundles every subsystem the query pipeline binds together. HNSW,
// Cache, Budget, and Raft are optional: an agent with no local semantic
// memory skips context retrieval (step 2), one with no cache never
// persists working sets, one with no budget never rate-limits
// ConsultPeer/Escalate, and one with no Raft node runs standalone.
type Deps struct {
	Identity     *identity.Identity
	HNSW         *hnsw.Index
	QTable       *qtable.Table
	Policy       *policy.Policy
	Replay       *replay.Buffer
	Trajectories *trajectory.Buffer
	Safety       *safety.Validator
	Cache        *cache.Cache
	Budget       *budget.Bucket
	Raft         *raft.Node
	Vector       *vectorops.Ops
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	Extractor    EntityExtractor
	Synthesizer  ResponseSynthesizer
	Estimator    ConfidenceEstimator
	Config       config.AgentConfig
}

// Agent is the per-node aggregate that runs the query pipeline (spec
// §4.7): it owns the ingestion queue and worker pool, and exposes
// Submit/Feedback as its public contract.
type Agent struct {
	deps Deps

	jobs chan job
	wg   sync.WaitGroup

	momentum *momentumTracker

	openMu  sync.Mutex
	openCtx map[uint64]trajectory.ID

	stopOnce sync.Once
	stop     chan struct{}
}

type job struct {
	ctx    context.Context
	query  Query
	result chan<- jobResult
}

type jobResult struct {
	resp Response
	err  error
}

// New validates deps and constructs an Agent. It does not start the
// worker pool; call Start for that.
func New(deps Deps) (*Agent, error) {
	if deps.Identity == nil {
		return nil, errors.New("agent: Deps.Identity is required")
	}
	if deps.QTable == nil {
		return nil, errors.New("agent: Deps.QTable is required")
	}
	if deps.Policy == nil {
		return nil, errors.New("agent: Deps.Policy is required")
	}
	if deps.Replay == nil {
		return nil, errors.New("agent: Deps.Replay is required")
	}
	if deps.Trajectories == nil {
		return nil, errors.New("agent: Deps.Trajectories is required")
	}
	if deps.Safety == nil {
		return nil, errors.New("agent: Deps.Safety is required")
	}
	if deps.Vector == nil {
		deps.Vector = vectorops.New()
	}
	if deps.Extractor == nil {
		deps.Extractor = NoOpExtractor{}
	}
	if deps.Synthesizer == nil {
		deps.Synthesizer = TemplateSynthesizer{}
	}
	if deps.Estimator == nil {
		if deps.HNSW != nil && deps.HNSW.Dim() > 0 {
			deps.Estimator = newBaselineWeightedEstimator(deps.HNSW.Dim(), DefaultConfidenceWeights())
		} else {
			est, ok := GetEstimator("weighted_composite")
			if !ok {
				return nil, errors.New("agent: no default confidence estimator registered")
			}
			deps.Estimator = est
		}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Config.MaxGoroutines <= 0 {
		deps.Config.MaxGoroutines = config.Defaults().Agent.MaxGoroutines
	}
	if deps.Config.QueryQueueSize <= 0 {
		deps.Config.QueryQueueSize = config.Defaults().Agent.QueryQueueSize
	}
	if deps.Config.ContextRetrievalK <= 0 {
		deps.Config.ContextRetrievalK = config.Defaults().Agent.ContextRetrievalK
	}

	return &Agent{
		deps:     deps,
		jobs:     make(chan job, deps.Config.QueryQueueSize),
		momentum: newMomentumTracker(defaultMomentumAlpha),
		openCtx:  make(map[uint64]trajectory.ID),
		stop:     make(chan struct{}),
	}, nil
}

// ID returns the agent's hex-encoded identity.
func (a *Agent) ID() string { return a.deps.Identity.ID().String() }

// The methods below satisfy internal/operator's AgentStatus interface,
// giving the admin socket a read-only view of agent state without that
// package importing internal/agent's dependency-heavy Deps.

// AgentID returns the agent's hex-encoded identity.
func (a *Agent) AgentID() string { return a.ID() }

// QueueDepth returns the number of queries currently buffered in the
// ingestion queue.
func (a *Agent) QueueDepth() int { return len(a.jobs) }

// Epsilon returns the Q-table's current exploration rate.
func (a *Agent) Epsilon() float32 { return a.deps.QTable.CurrentEpsilon() }

// QTableEntries returns the number of (state, action) pairs with a
// recorded Q-value.
func (a *Agent) QTableEntries() int { return a.deps.QTable.Len() }

// CacheEntries returns the number of working sets resident in the cache,
// or 0 if no cache is wired.
func (a *Agent) CacheEntries() int {
	if a.deps.Cache == nil {
		return 0
	}
	return a.deps.Cache.Len()
}

// CacheMemoryPressure returns the cache's current memory pressure in
// [0,1], or 0 if no cache is wired.
func (a *Agent) CacheMemoryPressure() float32 {
	if a.deps.Cache == nil {
		return 0
	}
	return a.deps.Cache.MemoryPressure()
}

// RaftRole returns the agent's current Raft role, or "" if no Raft node
// is wired (standalone mode).
func (a *Agent) RaftRole() string {
	if a.deps.Raft == nil {
		return ""
	}
	return a.deps.Raft.Role().String()
}

// RaftTerm returns the agent's current Raft term, or 0 if no Raft node
// is wired.
func (a *Agent) RaftTerm() uint64 {
	if a.deps.Raft == nil {
		return 0
	}
	return a.deps.Raft.Term()
}

// Start spawns the worker pool that drains the ingestion queue. Workers
// run until Stop is called or ctx is cancelled.
func (a *Agent) Start(ctx context.Context) {
	workers := a.deps.Config.MaxGoroutines
	if a.deps.Config.LightweightMode && workers > 2 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.worker(ctx)
	}
}

// Stop signals every worker to exit and waits for them to drain.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
	a.wg.Wait()
}

func (a *Agent) worker(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stop:
			return
		case j, ok := <-a.jobs:
			if !ok {
				return
			}
			resp, err := a.pipeline(j.ctx, j.query)
			j.result <- jobResult{resp: resp, err: err}
		}
	}
}

// Submit enqueues q for pipeline processing and blocks until a result is
// available or ctx is cancelled. If the ingestion queue is full, the
// query is dropped immediately (matching the ring-buffer processor's
// backpressure contract: drop under load rather than block the
// caller) and ErrQueueFull is returned.
func (a *Agent) Submit(ctx context.Context, q Query) (Response, error) {
	result := make(chan jobResult, 1)
	select {
	case a.jobs <- job{ctx: ctx, query: q, result: result}:
	default:
		if a.deps.Metrics != nil {
			a.deps.Metrics.QueriesDroppedTotal.Inc()
		}
		return Response{}, ErrQueueFull
	}
	if a.deps.Metrics != nil {
		a.deps.Metrics.QueryQueueDepth.Set(float64(len(a.jobs)))
	}

	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case r := <-result:
		return r.resp, r.err
	}
}
