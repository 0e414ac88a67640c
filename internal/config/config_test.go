package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsPassValidation(t *testing.T) {
	cfg := Defaults()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("Validate(Defaults()) = %v, want nil", err)
	}
}

func TestValidateRejectsBadSchemaVersion(t *testing.T) {
	cfg := Defaults()
	cfg.SchemaVersion = "2"
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected validation error for unsupported schema_version")
	}
}

func TestValidateRejectsOutOfRangeEpsilon(t *testing.T) {
	cfg := Defaults()
	cfg.QLearning.Epsilon = 1.5
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected validation error for epsilon > 1.0")
	}
}

func TestValidateRejectsEfConstructionBelowM(t *testing.T) {
	cfg := Defaults()
	cfg.HNSW.M = 32
	cfg.HNSW.EfConstruction = 10
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected validation error for ef_construction < m")
	}
}

func TestValidateRequiresPeersWhenRaftEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Raft.Enabled = true
	cfg.Raft.Peers = nil
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected validation error for raft.enabled with no peers")
	}
}

func TestValidateRejectsLightweightModeWithGossipEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Agent.LightweightMode = true
	cfg.Gossip.Enabled = true
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected validation error for lightweight_mode with gossip enabled")
	}
}

func TestLoadReadsAndOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "schema_version: \"1\"\nnode_id: test-node\nqlearning:\n  alpha: 0.25\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NodeID != "test-node" {
		t.Fatalf("NodeID = %q, want test-node", cfg.NodeID)
	}
	if cfg.QLearning.Alpha != 0.25 {
		t.Fatalf("QLearning.Alpha = %v, want 0.25", cfg.QLearning.Alpha)
	}
	// Unspecified fields should retain their defaults.
	if cfg.HNSW.M != 16 {
		t.Fatalf("HNSW.M = %d, want default 16", cfg.HNSW.M)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "schema_version: \"1\"\nnode_id: test-node\nqlearning:\n  alpha: 5.0\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to reject an out-of-range alpha")
	}
}

func TestLoadReturnsErrorForMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
