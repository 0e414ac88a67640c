// Package config provides configuration loading, validation, and hot-reload
// for ranswarm agents.
//
// Configuration file: /etc/ranswarm/config.yaml (default)
// Schema version: 1
//
// Hot-reload:
//   - Agent listens for SIGHUP.
//   - On SIGHUP: re-read and re-validate config.yaml, and log the result.
//   - A reloaded config is not applied to the running agent; every change
//     takes effect only after a restart.
//   - If the new config is invalid, the old config remains active and an
//     error is logged. The agent does NOT crash on invalid hot-reload config.
//
// Validation:
//   - All required fields must be present.
//   - Numeric ranges enforced (e.g., alpha in [0,1], thresholds >= 0).
//   - File paths are not checked for being absolute.
//   - Invalid config on startup: agent refuses to start (fatal error).
//   - Invalid config on hot-reload: logged, old config retained.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Version, GitCommit, BuildTime are injected by the Makefile via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config is the root configuration structure for ranswarm.
type Config struct {
	// SchemaVersion must be "1". Future versions will trigger migration.
	SchemaVersion string `yaml:"schema_version"`

	// NodeID is a unique identifier for this ranswarm node. Used in Raft,
	// gossip envelopes, and the decision ledger. Default: hostname.
	NodeID string `yaml:"node_id"`

	Agent         AgentConfig         `yaml:"agent"`
	HNSW          HNSWConfig          `yaml:"hnsw"`
	QLearning     QLearningConfig     `yaml:"qlearning"`
	Cache         CacheConfig         `yaml:"cache"`
	Safety        SafetyConfig        `yaml:"safety"`
	Budget        BudgetConfig        `yaml:"budget"`
	Storage       StorageConfig       `yaml:"storage"`
	Raft          RaftConfig          `yaml:"raft"`
	Gossip        GossipConfig        `yaml:"gossip"`
	Crypto        CryptoConfig        `yaml:"crypto"`
	Observability ObservabilityConfig `yaml:"observability"`
	Operator      OperatorConfig      `yaml:"operator"`
}

// AgentConfig holds agent-level operational parameters.
type AgentConfig struct {
	// MaxGoroutines is the maximum number of goroutines in the query
	// ingestion worker pool. Default: 4.
	MaxGoroutines int `yaml:"max_goroutines"`

	// QueryQueueSize is the in-memory query queue depth. If full, new
	// queries are rejected and the drop counter is incremented.
	// Default: 10000.
	QueryQueueSize int `yaml:"query_queue_size"`

	// MaxConcurrentTrajectories is parsed and defaulted but not read by
	// any component; the trajectory buffer is sized by
	// qlearning.trajectory_capacity. Default: 1000.
	MaxConcurrentTrajectories int `yaml:"max_concurrent_trajectories"`

	// ContextRetrievalK is the number of HNSW neighbors retrieved per
	// query (spec §4.7 step 2). Default: 5.
	ContextRetrievalK int `yaml:"context_retrieval_k"`

	// LightweightMode disables Prometheus metrics and gossip to reduce
	// resource consumption on edge nodes. When true: the metrics HTTP
	// server is not started, max_goroutines is capped at 2, and Validate
	// rejects the config if gossip.enabled or raft.enabled is also set.
	LightweightMode bool `yaml:"lightweight_mode"`

	// EntityExtractor names the contrib-registered EntityExtractor
	// plugin to use for pipeline step 1. Empty means the no-op
	// extractor (no parameter entities are ever proposed).
	EntityExtractor string `yaml:"entity_extractor"`
}

// OperatorConfig holds operator override socket parameters.
type OperatorConfig struct {
	// SocketPath is the Unix domain socket path for the operator CLI.
	// Permissions: 0600, owned by root. Default: /run/ranswarm/operator.sock.
	SocketPath string `yaml:"socket_path"`

	// Enabled controls whether the operator socket is active. Default: true.
	Enabled bool `yaml:"enabled"`
}

// HNSWConfig holds vector-index parameters (spec §4.4).
type HNSWConfig struct {
	// Dimension is the embedding vector width.
	Dimension int `yaml:"dimension"`

	// M is the maximum number of bidirectional neighbors per node per layer.
	M int `yaml:"m"`

	// EfConstruction is the candidate list size used during insertion.
	EfConstruction int `yaml:"ef_construction"`

	// EfSearch is the default candidate list size used during search.
	EfSearch int `yaml:"ef_search"`
}

// QLearningConfig holds the Q-learning engine's hyperparameters.
type QLearningConfig struct {
	Alpha        float32 `yaml:"alpha"`
	Gamma        float32 `yaml:"gamma"`
	Epsilon      float32 `yaml:"epsilon"`
	EpsilonDecay float32 `yaml:"epsilon_decay"`
	EpsilonMin   float32 `yaml:"epsilon_min"`

	// ReplayCapacity is the prioritized replay buffer's ring size.
	ReplayCapacity int `yaml:"replay_capacity"`

	// ReplayAlpha is the priority exponent.
	ReplayAlpha float32 `yaml:"replay_alpha"`

	// TrajectoryCapacity is the trajectory ring buffer's size.
	TrajectoryCapacity int `yaml:"trajectory_capacity"`
}

// CacheConfig holds memory-budget LRU cache parameters (spec §4.6).
type CacheConfig struct {
	BudgetBytes       uint64  `yaml:"budget_bytes"`
	MaxEntries        int     `yaml:"max_entries"`
	EvictionThreshold float32 `yaml:"eviction_threshold"`
	EvictionFraction  float32 `yaml:"eviction_fraction"`
}

// SafetyConfig holds parameter-validator parameters (spec §4.3 analog).
type SafetyConfig struct {
	// DefaultCooldownSeconds is parsed and defaulted but not read by any
	// component; each safety constraint carries its own cooldown.
	DefaultCooldownSeconds uint64 `yaml:"default_cooldown_seconds"`
}

// BudgetConfig holds the action-cost token bucket's parameters.
type BudgetConfig struct {
	// Capacity is the maximum number of tokens. Default: 100.
	Capacity int `yaml:"capacity"`

	// RefillPeriod is the interval between full refills. Default: 60s.
	RefillPeriod time.Duration `yaml:"refill_period"`
}

// StorageConfig holds BoltDB parameters.
type StorageConfig struct {
	// DBPath is the absolute path to the BoltDB file.
	DBPath string `yaml:"db_path"`

	// RetentionDays is the decision ledger retention period. Default: 30.
	RetentionDays int `yaml:"retention_days"`
}

// RaftConfig holds consensus parameters for replicating the routing index
// and agent registry.
type RaftConfig struct {
	// Enabled controls whether this node participates in Raft consensus.
	// Default: false (standalone mode).
	Enabled bool `yaml:"enabled"`

	// ListenAddr is the gRPC listen address for Raft RPCs.
	ListenAddr string `yaml:"listen_addr"`

	// Peers is the static list of peer addresses (host:port), including
	// this node's own address.
	Peers []string `yaml:"peers"`

	// ElectionTimeoutMin/Max bound the randomized election timeout.
	ElectionTimeoutMin time.Duration `yaml:"election_timeout_min"`
	ElectionTimeoutMax time.Duration `yaml:"election_timeout_max"`

	// HeartbeatInterval is how often a leader sends AppendEntries
	// heartbeats. Must be well below ElectionTimeoutMin.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// SnapshotThreshold is the number of log entries after which the
	// state machine is compacted into a snapshot.
	SnapshotThreshold int `yaml:"snapshot_threshold"`
}

// GossipConfig holds the federated Q-table/trajectory sharing layer's
// parameters.
type GossipConfig struct {
	// Enabled controls whether the gossip layer is active. Default: false.
	Enabled bool `yaml:"enabled"`

	// ListenAddr is the gossip TCP listen address. Default: 0.0.0.0:9443.
	ListenAddr string `yaml:"listen_addr"`

	// Peers is the static list of peer addresses (host:port).
	Peers []string `yaml:"peers"`

	// TrustedPeerKeys maps a peer's hex-encoded agent id to its
	// hex-encoded Ed25519 verifying key, authorizing it to submit signed
	// gossip envelopes.
	TrustedPeerKeys map[string]string `yaml:"trusted_peer_keys"`

	// QuorumMin is the minimum number of unique nodes that must agree on
	// a routing update before it is accepted in a partitioned cluster.
	// Default: 2.
	QuorumMin int `yaml:"quorum_min"`

	// EnvelopeTTL is the maximum age of a gossip envelope before rejection.
	EnvelopeTTL time.Duration `yaml:"envelope_ttl"`

	// Federation configures federated Q-table merge behaviour.
	Federation FederationConfig `yaml:"federation"`
}

// FederationConfig controls federated Q-table delta sharing via gossip.
type FederationConfig struct {
	// Enabled gates federated Q-table sharing. Requires gossip.enabled=true.
	Enabled bool `yaml:"enabled"`

	// ShareInterval is how often a node broadcasts Q-table deltas to peers.
	ShareInterval time.Duration `yaml:"share_interval"`

	// MinVisitsToShare is the minimum visit count an entry must have
	// before it is eligible for sharing, preventing noisy early estimates
	// from polluting peers.
	MinVisitsToShare uint32 `yaml:"min_visits_to_share"`

	// MergeWeight is the weight applied to peer values under the
	// SimpleWeightedAverage strategy. Range: [0.0, 1.0].
	MergeWeight float32 `yaml:"merge_weight"`
}

// CryptoConfig holds the cryptographic perimeter's parameters.
type CryptoConfig struct {
	// ReplayWindow is the nonce replay-protection window.
	ReplayWindow time.Duration `yaml:"replay_window"`

	// SessionKeyLifetime is how long a derived session key remains valid.
	SessionKeyLifetime time.Duration `yaml:"session_key_lifetime"`

	// IdentityKeyFile is the path to this node's Ed25519 private key.
	IdentityKeyFile string `yaml:"identity_key_file"`
}

// ObservabilityConfig holds metrics and logging parameters.
type ObservabilityConfig struct {
	// MetricsAddr is the Prometheus metrics HTTP bind address.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// LogFormat controls the log output format (json, console).
	LogFormat string `yaml:"log_format"`
}

// Defaults returns a Config populated with all default values.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		SchemaVersion: "1",
		NodeID:        hostname,
		Agent: AgentConfig{
			MaxGoroutines:             4,
			QueryQueueSize:            10000,
			MaxConcurrentTrajectories: 1000,
			ContextRetrievalK:         5,
		},
		HNSW: HNSWConfig{
			Dimension:      256,
			M:              16,
			EfConstruction: 200,
			EfSearch:       50,
		},
		QLearning: QLearningConfig{
			Alpha:              0.1,
			Gamma:              0.95,
			Epsilon:            0.15,
			EpsilonDecay:       0.995,
			EpsilonMin:         0.01,
			ReplayCapacity:     10000,
			ReplayAlpha:        0.6,
			TrajectoryCapacity: 1000,
		},
		Cache: CacheConfig{
			BudgetBytes:       500 * 1024 * 1024,
			MaxEntries:        50,
			EvictionThreshold: 0.8,
			EvictionFraction:  0.2,
		},
		Safety: SafetyConfig{
			DefaultCooldownSeconds: 300,
		},
		Budget: BudgetConfig{
			Capacity:     100,
			RefillPeriod: 60 * time.Second,
		},
		Storage: StorageConfig{
			DBPath:        DefaultDBPath,
			RetentionDays: 30,
		},
		Raft: RaftConfig{
			Enabled:            false,
			ListenAddr:         "0.0.0.0:9444",
			ElectionTimeoutMin: 150 * time.Millisecond,
			ElectionTimeoutMax: 300 * time.Millisecond,
			HeartbeatInterval:  50 * time.Millisecond,
			SnapshotThreshold:  10000,
		},
		Gossip: GossipConfig{
			Enabled:     false,
			ListenAddr:  "0.0.0.0:9443",
			QuorumMin:   2,
			EnvelopeTTL: 30 * time.Second,
			Federation: FederationConfig{
				Enabled:          false,
				ShareInterval:    5 * time.Minute,
				MinVisitsToShare: 5,
				MergeWeight:      0.3,
			},
		},
		Crypto: CryptoConfig{
			ReplayWindow:       5 * time.Minute,
			SessionKeyLifetime: 60 * time.Minute,
			IdentityKeyFile:    "/etc/ranswarm/identity.key",
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9091",
			LogLevel:    "info",
			LogFormat:   "json",
		},
		Operator: OperatorConfig{
			Enabled:    true,
			SocketPath: "/run/ranswarm/operator.sock",
		},
	}
}

// DefaultDBPath mirrors the storage package constant for use in config defaults.
const DefaultDBPath = "/var/lib/ranswarm/ranswarm.db"

// Load reads and validates a config file from the given path.
// Returns the merged config (defaults overridden by file values).
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks all config fields for correctness.
// Returns a descriptive error listing all violations found.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.NodeID == "" {
		errs = append(errs, "node_id must not be empty")
	}
	if cfg.Agent.MaxGoroutines < 1 || cfg.Agent.MaxGoroutines > 64 {
		errs = append(errs, fmt.Sprintf("agent.max_goroutines must be in [1, 64], got %d", cfg.Agent.MaxGoroutines))
	}
	if cfg.Agent.QueryQueueSize < 100 {
		errs = append(errs, fmt.Sprintf("agent.query_queue_size must be >= 100, got %d", cfg.Agent.QueryQueueSize))
	}
	if cfg.Agent.ContextRetrievalK < 1 {
		errs = append(errs, fmt.Sprintf("agent.context_retrieval_k must be >= 1, got %d", cfg.Agent.ContextRetrievalK))
	}
	if cfg.HNSW.Dimension < 1 {
		errs = append(errs, fmt.Sprintf("hnsw.dimension must be >= 1, got %d", cfg.HNSW.Dimension))
	}
	if cfg.HNSW.M < 2 {
		errs = append(errs, fmt.Sprintf("hnsw.m must be >= 2, got %d", cfg.HNSW.M))
	}
	if cfg.HNSW.EfConstruction < cfg.HNSW.M {
		errs = append(errs, fmt.Sprintf("hnsw.ef_construction must be >= hnsw.m, got %d < %d", cfg.HNSW.EfConstruction, cfg.HNSW.M))
	}
	if cfg.QLearning.Alpha < 0 || cfg.QLearning.Alpha > 1 {
		errs = append(errs, fmt.Sprintf("qlearning.alpha must be in [0.0, 1.0], got %f", cfg.QLearning.Alpha))
	}
	if cfg.QLearning.Gamma < 0 || cfg.QLearning.Gamma > 1 {
		errs = append(errs, fmt.Sprintf("qlearning.gamma must be in [0.0, 1.0], got %f", cfg.QLearning.Gamma))
	}
	if cfg.QLearning.Epsilon < 0 || cfg.QLearning.Epsilon > 1 {
		errs = append(errs, fmt.Sprintf("qlearning.epsilon must be in [0.0, 1.0], got %f", cfg.QLearning.Epsilon))
	}
	if cfg.Cache.EvictionThreshold <= 0 || cfg.Cache.EvictionThreshold > 1 {
		errs = append(errs, fmt.Sprintf("cache.eviction_threshold must be in (0.0, 1.0], got %f", cfg.Cache.EvictionThreshold))
	}
	if cfg.Cache.MaxEntries < 1 {
		errs = append(errs, fmt.Sprintf("cache.max_entries must be >= 1, got %d", cfg.Cache.MaxEntries))
	}
	if cfg.Budget.Capacity < 1 {
		errs = append(errs, fmt.Sprintf("budget.capacity must be >= 1, got %d", cfg.Budget.Capacity))
	}
	if cfg.Budget.RefillPeriod < time.Second {
		errs = append(errs, fmt.Sprintf("budget.refill_period must be >= 1s, got %s", cfg.Budget.RefillPeriod))
	}
	if cfg.Storage.DBPath == "" {
		errs = append(errs, "storage.db_path must not be empty")
	}
	if cfg.Storage.RetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("storage.retention_days must be >= 1, got %d", cfg.Storage.RetentionDays))
	}
	if cfg.Raft.Enabled {
		if len(cfg.Raft.Peers) < 1 {
			errs = append(errs, "raft.peers must be non-empty when raft.enabled=true")
		}
		if cfg.Raft.ElectionTimeoutMin >= cfg.Raft.ElectionTimeoutMax {
			errs = append(errs, "raft.election_timeout_min must be < raft.election_timeout_max")
		}
		if cfg.Raft.HeartbeatInterval*3 >= cfg.Raft.ElectionTimeoutMin {
			errs = append(errs, "raft.heartbeat_interval should be well below raft.election_timeout_min (suggest x3 margin)")
		}
	}
	if cfg.Gossip.Enabled {
		if cfg.Gossip.QuorumMin < 1 {
			errs = append(errs, fmt.Sprintf("gossip.quorum_min must be >= 1, got %d", cfg.Gossip.QuorumMin))
		}
		if cfg.Gossip.Federation.Enabled {
			if cfg.Gossip.Federation.MergeWeight < 0.0 || cfg.Gossip.Federation.MergeWeight > 1.0 {
				errs = append(errs, fmt.Sprintf(
					"gossip.federation.merge_weight must be in [0.0, 1.0], got %f",
					cfg.Gossip.Federation.MergeWeight))
			}
		}
	}
	if cfg.Agent.LightweightMode && (cfg.Gossip.Enabled || cfg.Raft.Enabled) {
		errs = append(errs, "agent.lightweight_mode=true is incompatible with gossip.enabled=true or raft.enabled=true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s",
			joinStrings(errs, "\n  - "))
	}
	return nil
}

// joinStrings joins a slice of strings with a separator.
func joinStrings(ss []string, sep string) string {
	if len(ss) == 0 {
		return ""
	}
	result := ss[0]
	for _, s := range ss[1:] {
		result += sep + s
	}
	return result
}
