// Package observability — metrics.go
//
// Prometheus metrics for the ranswarm agent.
//
// Endpoint: GET /metrics on 127.0.0.1:9091 (configurable).
// Format: Prometheus text exposition format (OpenMetrics compatible).
// Bind: loopback only — no external exposure.
//
// Metric naming convention: ranswarm_<subsystem>_<name>_<unit>
//
// All metrics are registered on a dedicated prometheus.Registry (not the
// default global registry) to avoid collisions with other instrumented
// libraries in the same process.
//
// Cardinality control:
//   - Action labels use the string action name (5 values max).
//   - Agent ID is NOT used as a label (unbounded cardinality).
//   - Per-agent metrics are aggregated before recording.

package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric descriptors for ranswarm.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Query pipeline ───────────────────────────────────────────────────────

	// QueriesProcessedTotal counts queries that completed the pipeline.
	// Labels: action (direct_answer, context_answer, consult_peer, ...)
	QueriesProcessedTotal *prometheus.CounterVec

	// QueriesDroppedTotal counts queries dropped due to queue overflow.
	QueriesDroppedTotal prometheus.Counter

	// QueryQueueDepth is the current in-memory query queue depth.
	QueryQueueDepth prometheus.Gauge

	// QueryLatencySeconds records end-to-end pipeline latency.
	QueryLatencySeconds prometheus.Histogram

	// ─── HNSW index ───────────────────────────────────────────────────────────

	// HNSWSearchLatencySeconds records Search() call latency.
	HNSWSearchLatencySeconds prometheus.Histogram

	// HNSWIndexSize is the current number of resident vectors.
	HNSWIndexSize prometheus.Gauge

	// HNSWMemoryBytes is the index's estimated memory footprint.
	HNSWMemoryBytes prometheus.Gauge

	// ─── Q-learning ───────────────────────────────────────────────────────────

	// QTableEntries is the current number of (state, action) entries.
	QTableEntries prometheus.Gauge

	// QTableUpdatesTotal counts Bellman updates applied.
	QTableUpdatesTotal prometheus.Counter

	// CurrentEpsilon is the current exploration rate.
	CurrentEpsilon prometheus.Gauge

	// FederationConflictsTotal counts federated-merge entries whose
	// local/peer values diverged beyond the conflict threshold.
	FederationConflictsTotal prometheus.Counter

	// ─── Safety validator ─────────────────────────────────────────────────────

	// SafetyViolationsTotal counts rejected parameter changes.
	// Labels: violation_type, severity
	SafetyViolationsTotal *prometheus.CounterVec

	// ─── Cache ────────────────────────────────────────────────────────────────

	// CacheMemoryPressure is the current total_bytes/budget_bytes ratio.
	CacheMemoryPressure prometheus.Gauge

	// CacheEvictionsTotal counts entries evicted from the working-set cache.
	CacheEvictionsTotal prometheus.Counter

	// CachePersistFailuresTotal counts evictions whose snapshot failed to
	// persist (spec §4.6: reported as a warning metric, not fatal).
	CachePersistFailuresTotal prometheus.Counter

	// ─── Budget ───────────────────────────────────────────────────────────────

	// BudgetTokensRemaining is the current token bucket level.
	BudgetTokensRemaining prometheus.Gauge

	// BudgetConsumedTotal counts total tokens consumed.
	BudgetConsumedTotal prometheus.Counter

	// ─── Raft ─────────────────────────────────────────────────────────────────

	// RaftTermCurrent is the node's current Raft term.
	RaftTermCurrent prometheus.Gauge

	// RaftIsLeader is 1 if this node believes it is leader, else 0.
	RaftIsLeader prometheus.Gauge

	// RaftLogEntriesTotal is the current length of the replicated log.
	RaftLogEntriesTotal prometheus.Gauge

	// ─── Gossip ───────────────────────────────────────────────────────────────

	// GossipEnvelopesReceivedTotal counts received gossip envelopes.
	// Labels: accepted (true, false)
	GossipEnvelopesReceivedTotal *prometheus.CounterVec

	// GossipEnvelopesSentTotal counts sent gossip envelopes.
	GossipEnvelopesSentTotal prometheus.Counter

	// ─── Storage ──────────────────────────────────────────────────────────────

	// StorageWriteLatency records BoltDB write transaction latency.
	StorageWriteLatency prometheus.Histogram

	// StorageDecisionLedgerEntries is the current number of ledger entries.
	StorageDecisionLedgerEntries prometheus.Gauge

	// ─── Agent ────────────────────────────────────────────────────────────────

	// AgentUptimeSeconds is the number of seconds since agent start.
	AgentUptimeSeconds prometheus.Gauge

	// startTime records when the agent started (for uptime calculation).
	startTime time.Time
}

// NewMetrics creates and registers all ranswarm Prometheus metrics.
// Returns a *Metrics with all descriptors initialised.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		QueriesProcessedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ranswarm",
			Subsystem: "agent",
			Name:      "queries_processed_total",
			Help:      "Total queries that completed the pipeline, by selected action.",
		}, []string{"action"}),

		QueriesDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ranswarm",
			Subsystem: "agent",
			Name:      "queries_dropped_total",
			Help:      "Total queries dropped due to ingestion queue overflow.",
		}),

		QueryQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ranswarm",
			Subsystem: "agent",
			Name:      "query_queue_depth",
			Help:      "Current depth of the in-memory query ingestion queue.",
		}),

		QueryLatencySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ranswarm",
			Subsystem: "agent",
			Name:      "query_latency_seconds",
			Help:      "End-to-end query pipeline latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		HNSWSearchLatencySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ranswarm",
			Subsystem: "hnsw",
			Name:      "search_latency_seconds",
			Help:      "HNSW Search() call latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		HNSWIndexSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ranswarm",
			Subsystem: "hnsw",
			Name:      "index_size",
			Help:      "Current number of vectors resident in the HNSW index.",
		}),

		HNSWMemoryBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ranswarm",
			Subsystem: "hnsw",
			Name:      "memory_bytes",
			Help:      "Estimated memory footprint of the HNSW index.",
		}),

		QTableEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ranswarm",
			Subsystem: "qlearning",
			Name:      "table_entries",
			Help:      "Current number of (state, action) entries in the Q-table.",
		}),

		QTableUpdatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ranswarm",
			Subsystem: "qlearning",
			Name:      "table_updates_total",
			Help:      "Total Bellman updates applied to the Q-table.",
		}),

		CurrentEpsilon: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ranswarm",
			Subsystem: "qlearning",
			Name:      "current_epsilon",
			Help:      "Current epsilon-greedy exploration rate.",
		}),

		FederationConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ranswarm",
			Subsystem: "qlearning",
			Name:      "federation_conflicts_total",
			Help:      "Total federated-merge entries whose local/peer values diverged beyond the conflict threshold.",
		}),

		SafetyViolationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ranswarm",
			Subsystem: "safety",
			Name:      "violations_total",
			Help:      "Total rejected parameter changes, by violation type and severity.",
		}, []string{"violation_type", "severity"}),

		CacheMemoryPressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ranswarm",
			Subsystem: "cache",
			Name:      "memory_pressure",
			Help:      "Current ratio of resident bytes to the cache's memory budget.",
		}),

		CacheEvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ranswarm",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total entries evicted from the working-set cache.",
		}),

		CachePersistFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ranswarm",
			Subsystem: "cache",
			Name:      "persist_failures_total",
			Help:      "Total evictions whose snapshot failed to persist.",
		}),

		BudgetTokensRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ranswarm",
			Subsystem: "budget",
			Name:      "tokens_remaining",
			Help:      "Current action-cost token bucket level.",
		}),

		BudgetConsumedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ranswarm",
			Subsystem: "budget",
			Name:      "consumed_total",
			Help:      "Lifetime total tokens consumed from the budget bucket.",
		}),

		RaftTermCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ranswarm",
			Subsystem: "raft",
			Name:      "term_current",
			Help:      "This node's current Raft term.",
		}),

		RaftIsLeader: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ranswarm",
			Subsystem: "raft",
			Name:      "is_leader",
			Help:      "1 if this node believes it is the current Raft leader, else 0.",
		}),

		RaftLogEntriesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ranswarm",
			Subsystem: "raft",
			Name:      "log_entries",
			Help:      "Current length of the replicated Raft log.",
		}),

		GossipEnvelopesReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ranswarm",
			Subsystem: "gossip",
			Name:      "envelopes_received_total",
			Help:      "Total gossip envelopes received, by acceptance status.",
		}, []string{"accepted"}),

		GossipEnvelopesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ranswarm",
			Subsystem: "gossip",
			Name:      "envelopes_sent_total",
			Help:      "Total gossip envelopes sent to peers.",
		}),

		StorageWriteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ranswarm",
			Subsystem: "storage",
			Name:      "write_latency_seconds",
			Help:      "BoltDB write transaction latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		StorageDecisionLedgerEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ranswarm",
			Subsystem: "storage",
			Name:      "decision_ledger_entries",
			Help:      "Current number of decision audit ledger entries in BoltDB.",
		}),

		AgentUptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ranswarm",
			Subsystem: "agent",
			Name:      "uptime_seconds",
			Help:      "Number of seconds since the agent started.",
		}),
	}

	reg.MustRegister(
		m.QueriesProcessedTotal,
		m.QueriesDroppedTotal,
		m.QueryQueueDepth,
		m.QueryLatencySeconds,
		m.HNSWSearchLatencySeconds,
		m.HNSWIndexSize,
		m.HNSWMemoryBytes,
		m.QTableEntries,
		m.QTableUpdatesTotal,
		m.CurrentEpsilon,
		m.FederationConflictsTotal,
		m.SafetyViolationsTotal,
		m.CacheMemoryPressure,
		m.CacheEvictionsTotal,
		m.CachePersistFailuresTotal,
		m.BudgetTokensRemaining,
		m.BudgetConsumedTotal,
		m.RaftTermCurrent,
		m.RaftIsLeader,
		m.RaftLogEntriesTotal,
		m.GossipEnvelopesReceivedTotal,
		m.GossipEnvelopesSentTotal,
		m.StorageWriteLatency,
		m.StorageDecisionLedgerEntries,
		m.AgentUptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ServeMetrics starts the Prometheus HTTP metrics server on the given address.
// Blocks until ctx is cancelled or the server fails.
// The server binds to addr (e.g., "127.0.0.1:9091") and serves GET /metrics.
// Returns an error only if the server fails to start or encounters a fatal error.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

// updateUptime periodically updates the AgentUptimeSeconds gauge.
func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.AgentUptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
