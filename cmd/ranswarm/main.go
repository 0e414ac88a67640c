// Package main — cmd/ranswarm/main.go
//
// ranswarm agent entrypoint.
//
// Startup sequence:
//  1. Load and validate config from /etc/ranswarm/config.yaml.
//  2. Initialise structured logger (zap, JSON or console format).
//  3. Open BoltDB storage.
//  4. Prune stale decision-ledger entries.
//  5. Generate this run's agent identity.
//  6. Construct the Q-engine (qtable/policy/replay/trajectory), HNSW
//     index, safety validator, cache, and budget bucket.
//  7. Start the Prometheus metrics server (unless lightweight_mode).
//  8. Construct and start the agent aggregate (query ingestion pool).
//  9. Join Raft consensus, if enabled and a transport is available.
// 10. Register SIGHUP handler for config hot-reload.
// 11. Block on SIGINT/SIGTERM for graceful shutdown.
//
// Shutdown sequence (on SIGINT/SIGTERM):
//  1. Cancel the root context (propagates to every goroutine).
//  2. Stop the agent aggregate, draining in-flight queries (max 5s).
//  3. Close BoltDB.
//  4. Flush the logger.
//  5. Exit 0.
//
// On config validation failure: exit 1 immediately.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/octoreflex/ranswarm/contrib"
	"github.com/octoreflex/ranswarm/internal/agent"
	"github.com/octoreflex/ranswarm/internal/budget"
	"github.com/octoreflex/ranswarm/internal/cache"
	"github.com/octoreflex/ranswarm/internal/config"
	"github.com/octoreflex/ranswarm/internal/crypto/identity"
	"github.com/octoreflex/ranswarm/internal/gossip"
	"github.com/octoreflex/ranswarm/internal/hnsw"
	"github.com/octoreflex/ranswarm/internal/observability"
	"github.com/octoreflex/ranswarm/internal/operator"
	"github.com/octoreflex/ranswarm/internal/qlearning/policy"
	"github.com/octoreflex/ranswarm/internal/qlearning/qtable"
	"github.com/octoreflex/ranswarm/internal/qlearning/replay"
	"github.com/octoreflex/ranswarm/internal/qlearning/trajectory"
	"github.com/octoreflex/ranswarm/internal/raft"
	"github.com/octoreflex/ranswarm/internal/raftrpc"
	"github.com/octoreflex/ranswarm/internal/safety"
	"github.com/octoreflex/ranswarm/internal/storage"
)

func main() {
	configPath := flag.String("config", "/etc/ranswarm/config.yaml", "Path to config.yaml")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("ranswarm %s (commit=%s built=%s)\n",
			config.Version, config.GitCommit, config.BuildTime)
		os.Exit(0)
	}

	// ── Step 1: Load config ───────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
		os.Exit(1)
	}

	// ── Step 2: Initialise logger ──────────────────────────────────────────
	log, err := buildLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("ranswarm starting",
		zap.String("version", config.Version),
		zap.String("commit", config.GitCommit),
		zap.String("built", config.BuildTime),
		zap.String("node_id", cfg.NodeID),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Step 3: Open BoltDB ────────────────────────────────────────────────
	db, err := storage.Open(cfg.Storage.DBPath, cfg.Storage.RetentionDays)
	if err != nil {
		log.Fatal("BoltDB open failed", zap.Error(err), zap.String("path", cfg.Storage.DBPath))
	}
	defer db.Close() //nolint:errcheck
	log.Info("BoltDB opened", zap.String("path", cfg.Storage.DBPath))

	// ── Step 4: Prune stale ledger entries ─────────────────────────────────
	pruned, err := db.PruneOldDecisions()
	if err != nil {
		log.Warn("decision ledger pruning failed", zap.Error(err))
	} else {
		log.Info("decision ledger pruned", zap.Int("deleted", pruned))
	}

	// ── Step 5: Identity ───────────────────────────────────────────────────
	id, err := identity.Generate()
	if err != nil {
		log.Fatal("identity generation failed", zap.Error(err))
	}
	log.Info("agent identity generated", zap.String("agent_id", id.ID().String()))

	// ── Step 6: Q-engine, HNSW, safety, cache, budget ──────────────────────
	index := hnsw.New(hnsw.Config{
		Dim:            cfg.HNSW.Dimension,
		M:              cfg.HNSW.M,
		EfConstruction: cfg.HNSW.EfConstruction,
		EfSearch:       cfg.HNSW.EfSearch,
	})

	table := qtable.New(qtable.Config{
		Alpha:        cfg.QLearning.Alpha,
		Gamma:        cfg.QLearning.Gamma,
		Epsilon:      cfg.QLearning.Epsilon,
		EpsilonDecay: cfg.QLearning.EpsilonDecay,
		EpsilonMin:   cfg.QLearning.EpsilonMin,
	})
	pol := policy.New(table, rand.NewSource(time.Now().UnixNano()))

	replayBuf := replay.New(cfg.QLearning.ReplayCapacity, cfg.QLearning.ReplayAlpha, replay.DefaultBetaStart, rand.NewSource(time.Now().UnixNano()))
	trajectories := trajectory.New(cfg.QLearning.TrajectoryCapacity)

	validator := safety.NewValidator()

	budgetBucket := budget.New(cfg.Budget.Capacity, cfg.Budget.RefillPeriod)
	defer budgetBucket.Close()

	workingSetCache := cache.New(cache.Config{
		BudgetBytes:       cfg.Cache.BudgetBytes,
		MaxEntries:        cfg.Cache.MaxEntries,
		EvictionThreshold: cfg.Cache.EvictionThreshold,
		EvictionFraction:  cfg.Cache.EvictionFraction,
	}, storage.NewBoltPersister(db), nil)

	// ── Step 7: Prometheus metrics ──────────────────────────────────────────
	metrics := observability.NewMetrics()
	if !cfg.Agent.LightweightMode {
		go func() {
			if err := metrics.ServeMetrics(ctx, cfg.Observability.MetricsAddr); err != nil {
				log.Error("metrics server error", zap.Error(err))
			}
		}()
		log.Info("metrics server started", zap.String("addr", cfg.Observability.MetricsAddr))
	} else {
		log.Info("lightweight mode — metrics server disabled")
	}

	var extractor agent.EntityExtractor
	if cfg.Agent.EntityExtractor != "" {
		ext, err := contrib.GetExtractor(cfg.Agent.EntityExtractor)
		if err != nil {
			log.Fatal("entity extractor resolution failed", zap.Error(err))
		}
		extractor = contribExtractorAdapter{ext}
		log.Info("entity extractor loaded", zap.String("name", cfg.Agent.EntityExtractor))
	}

	// ── Step 8: Agent aggregate ──────────────────────────────────────────────
	a, err := agent.New(agent.Deps{
		Identity:     id,
		HNSW:         index,
		QTable:       table,
		Policy:       pol,
		Replay:       replayBuf,
		Trajectories: trajectories,
		Safety:       validator,
		Cache:        workingSetCache,
		Budget:       budgetBucket,
		Metrics:      metrics,
		Logger:       log,
		Extractor:    extractor,
		Config:       cfg.Agent,
	})
	if err != nil {
		log.Fatal("agent construction failed", zap.Error(err))
	}
	a.Start(ctx)
	log.Info("agent aggregate started",
		zap.String("agent_id", a.ID()),
		zap.Int("workers", cfg.Agent.MaxGoroutines),
		zap.Int("queue_size", cfg.Agent.QueryQueueSize),
	)

	if cfg.Operator.Enabled {
		opServer := operator.NewServer(cfg.Operator.SocketPath, a, validator, log)
		go func() {
			if err := opServer.ListenAndServe(ctx); err != nil {
				log.Error("operator socket server error", zap.Error(err))
			}
		}()
		log.Info("operator socket started", zap.String("path", cfg.Operator.SocketPath))
	}

	// ── Step 9: Raft consensus ──────────────────────────────────────────────
	var (
		raftNode      *raft.Node
		raftRPCServer *raftrpc.Server
		raftClient    *raftrpc.Transport
	)
	if cfg.Raft.Enabled {
		selfAddr := cfg.Raft.ListenAddr
		peers := make(map[string]string, len(cfg.Raft.Peers))
		for _, addr := range cfg.Raft.Peers {
			if addr == selfAddr {
				continue
			}
			peers[addr] = addr
		}

		raftClient = raftrpc.NewTransport(log)
		raftStore := storage.NewBoltRaftStore(db)
		routingSM := raft.NewRoutingStateMachine()

		raftCfg := raft.Config{
			NodeID:             selfAddr,
			Peers:              peers,
			ElectionTimeoutMin: cfg.Raft.ElectionTimeoutMin,
			ElectionTimeoutMax: cfg.Raft.ElectionTimeoutMax,
			HeartbeatInterval:  cfg.Raft.HeartbeatInterval,
			SnapshotThreshold:  cfg.Raft.SnapshotThreshold,
		}
		raftNode = raft.NewNode(raftCfg, routingSM, raftClient, raftStore, log)
		raftNode.Start()

		raftRPCServer = raftrpc.NewServer(raftNode, log)
		go func() {
			if err := raftRPCServer.ListenAndServe(selfAddr); err != nil {
				log.Error("raft gRPC transport error", zap.Error(err))
			}
		}()
		log.Info("raft consensus started",
			zap.String("node_id", selfAddr), zap.Int("peers", len(peers)))
	}

	// ── Gossip: routing-index quorum + federated Q-table sharing ───────────
	if cfg.Gossip.Enabled {
		trustedPeers := make(map[string]ed25519.PublicKey, len(cfg.Gossip.TrustedPeerKeys))
		for peerID, hexKey := range cfg.Gossip.TrustedPeerKeys {
			keyBytes, err := hex.DecodeString(hexKey)
			if err != nil || len(keyBytes) != ed25519.PublicKeySize {
				log.Fatal("gossip: invalid trusted_peer_keys entry", zap.String("peer_id", peerID))
			}
			trustedPeers[peerID] = ed25519.PublicKey(keyBytes)
		}

		quorum := gossip.NewQuorum(cfg.Gossip.QuorumMin, cfg.Gossip.EnvelopeTTL)
		gossipServer := gossip.NewServer(id.ID().String(), trustedPeers, quorum, log)
		go func() {
			if err := gossipServer.ListenAndServe(ctx, cfg.Gossip.ListenAddr); err != nil {
				log.Error("gossip server error", zap.Error(err))
			}
		}()
		log.Info("gossip server started", zap.String("addr", cfg.Gossip.ListenAddr))

		if cfg.Gossip.Federation.Enabled {
			federation := gossip.NewFederatedQTableManager(gossip.FederationConfig{
				Enabled:          cfg.Gossip.Federation.Enabled,
				ShareInterval:    cfg.Gossip.Federation.ShareInterval,
				MinVisitsToShare: cfg.Gossip.Federation.MinVisitsToShare,
				MergeWeight:      cfg.Gossip.Federation.MergeWeight,
			}, id, table, cfg.Gossip.Peers, log)
			go federation.Run(ctx)
		}
	}

	// ── Step 10: SIGHUP hot-reload ───────────────────────────────────────────
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			log.Info("SIGHUP received — reloading config...")
			newCfg, err := config.Load(*configPath)
			if err != nil {
				log.Error("config hot-reload failed — retaining old config", zap.Error(err))
				continue
			}
			log.Info("config hot-reload successful",
				zap.Float32("new_epsilon", newCfg.QLearning.Epsilon))
			// The reloaded config is validated and logged only; no field of
			// it is applied to the running agent.
		}
	}()

	// ── Step 11: Wait for shutdown signal ────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	cancel()

	if raftNode != nil {
		raftNode.Stop()
		raftRPCServer.Stop()
		_ = raftClient.Close()
		log.Info("raft consensus stopped")
	}

	shutdownTimer := time.NewTimer(5 * time.Second)
	defer shutdownTimer.Stop()
	drained := make(chan struct{})
	go func() {
		a.Stop()
		close(drained)
	}()
	select {
	case <-shutdownTimer.C:
		log.Warn("shutdown drain timeout — forcing exit")
	case <-drained:
		log.Info("agent aggregate drained")
	}

	log.Info("ranswarm shutdown complete")
}

// contribExtractorAdapter adapts a contrib.EntityExtractor (which must not
// depend on internal/agent) to agent.EntityExtractor.
type contribExtractorAdapter struct {
	ext contrib.EntityExtractor
}

func (a contribExtractorAdapter) Extract(text string) []agent.Entity {
	entities := a.ext.Extract(text)
	if entities == nil {
		return nil
	}
	out := make([]agent.Entity, len(entities))
	for i, e := range entities {
		out[i] = agent.Entity{Parameter: e.Parameter, Value: e.Value}
	}
	return out
}

func buildLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}
