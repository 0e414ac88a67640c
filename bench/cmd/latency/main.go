// Package bench — latency/main.go
//
// Query pipeline latency measurement tool.
//
// Measures the end-to-end wall-clock time of Agent.Submit — ingestion
// queue, context retrieval (HNSW), policy selection, synthesis, safety
// validation — for a configurable number of synthetic queries against a
// fully wired, single-process agent (no network, no BoltDB persistence
// beyond a temp file).
//
// Method:
//  1. Builds a real Agent (identity, HNSW seeded with random vectors,
//     Q-table, policy, safety validator, cache) the same way
//     cmd/ranswarm's entrypoint does.
//  2. Starts the worker pool and fires synthetic queries sequentially,
//     timing each Submit call with time.Now()/time.Since.
//  3. Builds a microsecond histogram and reports p50/p95/p99.
//  4. Writes per-iteration rows to a CSV file.
//
// Output CSV columns:
//
//	iteration, latency_us, action
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/octoreflex/ranswarm/internal/agent"
	"github.com/octoreflex/ranswarm/internal/cache"
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

const vectorDim = 32

func main() {
	iterations := flag.Int("iterations", 10000, "Number of Submit calls to measure")
	outputFile := flag.String("output", "latency_raw.csv", "Output CSV file path")
	p99TargetUs := flag.Int("p99-target-us", 2000, "Fail (exit 1) if p99 exceeds this, in microseconds")
	flag.Parse()

	a, cleanup, err := buildAgent()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build agent: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Start(ctx)
	defer a.Stop()

	f, err := os.Create(*outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	_ = w.Write([]string{"iteration", "latency_us", "action"})

	const histBuckets = 1_000_000 // 1s in microseconds
	hist := make([]int, histBuckets)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < *iterations; i++ {
		q := syntheticQuery(rng)

		start := time.Now()
		resp, err := a.Submit(ctx, q)
		latency := time.Since(start)

		if err != nil {
			fmt.Fprintf(os.Stderr, "iteration %d: Submit: %v\n", i, err)
			continue
		}

		latencyUs := int(latency.Microseconds())
		if latencyUs >= 0 && latencyUs < len(hist) {
			hist[latencyUs]++
		}
		_ = w.Write([]string{strconv.Itoa(i), strconv.Itoa(latencyUs), resp.Action.String()})
	}

	p50, p95, p99 := computePercentiles(hist, *iterations)

	fmt.Printf("Query Pipeline Latency Results (%d iterations)\n", *iterations)
	fmt.Printf("  p50: %dus\n", p50)
	fmt.Printf("  p95: %dus\n", p95)
	fmt.Printf("  p99: %dus\n", p99)
	fmt.Printf("  Output: %s\n", *outputFile)

	if p99 > *p99TargetUs {
		fmt.Fprintf(os.Stderr, "FAIL: p99 %dus exceeds %dus target\n", p99, *p99TargetUs)
		os.Exit(1)
	}
}

// buildAgent wires the same subsystem graph as cmd/ranswarm's entrypoint,
// minus metrics/operator/gossip, plus a temp-file BoltDB that the caller
// must remove via the returned cleanup func.
func buildAgent() (*agent.Agent, func(), error) {
	id, err := identity.Generate()
	if err != nil {
		return nil, nil, fmt.Errorf("identity.Generate: %w", err)
	}

	dbDir, err := os.MkdirTemp("", "ranswarm-bench-*")
	if err != nil {
		return nil, nil, fmt.Errorf("mkdir temp: %w", err)
	}
	cleanup := func() { os.RemoveAll(dbDir) }

	db, err := storage.Open(filepath.Join(dbDir, "bench.db"), 7)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("storage.Open: %w", err)
	}
	prevCleanup := cleanup
	cleanup = func() { db.Close(); prevCleanup() }

	index := hnsw.New(hnsw.DefaultConfig(vectorDim))
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 256; i++ {
		v := make([]float32, vectorDim)
		for j := range v {
			v[j] = rng.Float32()
		}
		if _, err := index.Insert(v); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("hnsw.Insert: %w", err)
		}
	}

	table := qtable.New(qtable.DefaultConfig())
	pol := policy.New(table, rand.NewSource(42))
	validator := safety.NewValidator()
	workingSetCache := cache.New(cache.DefaultConfig(), storage.NewBoltPersister(db), nil)

	a, err := agent.New(agent.Deps{
		Identity:     id,
		HNSW:         index,
		QTable:       table,
		Policy:       pol,
		Replay:       replay.New(replay.DefaultCapacity, replay.DefaultAlpha, replay.DefaultBetaStart, rand.NewSource(3)),
		Trajectories: trajectory.New(trajectory.DefaultCapacity),
		Safety:       validator,
		Cache:        workingSetCache,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("agent.New: %w", err)
	}
	return a, cleanup, nil
}

func syntheticQuery(rng *rand.Rand) agent.Query {
	v := make([]float32, vectorDim)
	for j := range v {
		v[j] = rng.Float32()
	}
	return agent.Query{
		Text:       "what is the current handover margin",
		Type:       qlearning.QueryType(rng.Intn(4)),
		Complexity: qlearning.Complexity(rng.Intn(3)),
		Embedding:  v,
	}
}

func computePercentiles(hist []int, total int) (p50, p95, p99 int) {
	targets := []struct {
		pct float64
		out *int
	}{
		{0.50, &p50},
		{0.95, &p95},
		{0.99, &p99},
	}
	cumulative := 0
	ti := 0
	for i, count := range hist {
		cumulative += count
		for ti < len(targets) && float64(cumulative) >= targets[ti].pct*float64(total) {
			*targets[ti].out = i
			ti++
		}
		if ti == len(targets) {
			break
		}
	}
	return
}
