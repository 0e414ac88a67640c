// Package gossip — federated_qtable.go
//
// Federated Q-table sharing: periodic exchange of learned (state, action)
// values between swarm nodes, so a freshly joined or locally under-trained
// agent benefits from the rest of the swarm's experience instead of
// starting cold.
//
// Protocol:
//  1. Every ShareInterval, the local node snapshots its Q-table
//     (qtable.Table.Snapshot) and keeps only entries with
//     VisitCount >= MinVisitsToShare — noisy, barely-visited estimates are
//     not worth propagating.
//  2. The kept entries are wrapped in a QTableDelta, JSON-marshaled, signed
//     with the node's identity (internal/crypto/signing), and sent to every
//     configured peer via SendReport's envelope wrapping (reusing the same
//     wire envelope gossip's routing-quorum traffic uses).
//  3. A receiving node merges each entry into its local table with a
//     visit-weighted average:
//
//       w = MergeWeight * (visits_federated / (visits_local + visits_federated))
//       value_merged = (1 - w) * value_local + w * value_federated
//       visits_merged = visits_local + visits_federated
//
//     giving more trust to peers with more experience on that (state,
//     action) pair, bounded by the configured MergeWeight ceiling.
package gossip

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/octoreflex/ranswarm/internal/crypto/identity"
	"github.com/octoreflex/ranswarm/internal/crypto/signing"
	"github.com/octoreflex/ranswarm/internal/qlearning"
	"github.com/octoreflex/ranswarm/internal/qlearning/qtable"
)

// QTableDeltaEntry is the wire shape of one shared (state, action) value.
type QTableDeltaEntry struct {
	State      uint64  `json:"state"`
	Action     uint8   `json:"action"`
	Value      float32 `json:"value"`
	VisitCount uint32  `json:"visit_count"`
}

// QTableDelta is the signed payload broadcast to peers.
type QTableDelta struct {
	NodeID  string             `json:"node_id"`
	Entries []QTableDeltaEntry `json:"entries"`
}

// FederationConfig mirrors config.FederationConfig for use in this package.
type FederationConfig struct {
	Enabled          bool
	ShareInterval    time.Duration
	MinVisitsToShare uint32
	MergeWeight      float32
}

// FederatedQTableManager runs the periodic share loop and merges incoming
// deltas from peers.
type FederatedQTableManager struct {
	cfg      FederationConfig
	identity *identity.Identity
	table    *qtable.Table
	peers    []string
	log      *zap.Logger
}

// NewFederatedQTableManager creates a manager bound to the local Q-table.
func NewFederatedQTableManager(cfg FederationConfig, id *identity.Identity, table *qtable.Table, peers []string, log *zap.Logger) *FederatedQTableManager {
	return &FederatedQTableManager{cfg: cfg, identity: id, table: table, peers: peers, log: log}
}

// Run starts the periodic share loop. Blocks until ctx is cancelled.
func (m *FederatedQTableManager) Run(ctx context.Context) {
	if !m.cfg.Enabled {
		m.log.Info("federated Q-table sharing disabled")
		return
	}

	ticker := time.NewTicker(m.cfg.ShareInterval)
	defer ticker.Stop()

	m.log.Info("federated Q-table manager started",
		zap.Duration("share_interval", m.cfg.ShareInterval),
		zap.Float32("merge_weight", m.cfg.MergeWeight),
		zap.Uint32("min_visits_to_share", m.cfg.MinVisitsToShare))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.shareRound(ctx)
		}
	}
}

func (m *FederatedQTableManager) shareRound(ctx context.Context) {
	snapshot := m.table.Snapshot()

	entries := make([]QTableDeltaEntry, 0, len(snapshot))
	for _, e := range snapshot {
		if e.VisitCount < m.cfg.MinVisitsToShare {
			continue
		}
		entries = append(entries, QTableDeltaEntry{
			State:      uint64(e.State),
			Action:     uint8(e.Action),
			Value:      e.Value,
			VisitCount: e.VisitCount,
		})
	}

	if len(entries) == 0 {
		m.log.Debug("federated Q-table: nothing eligible to share",
			zap.Int("total_entries", len(snapshot)))
		return
	}

	delta := QTableDelta{NodeID: m.identity.ID().String(), Entries: entries}
	payload, err := json.Marshal(delta)
	if err != nil {
		m.log.Error("federated Q-table: marshal delta", zap.Error(err))
		return
	}
	sm, err := signing.Sign(m.identity, payload)
	if err != nil {
		m.log.Error("federated Q-table: sign delta", zap.Error(err))
		return
	}
	wire := encodeWireEnvelope(sm)

	sent, failed := 0, 0
	for _, peer := range m.peers {
		if err := sendWireEnvelope(ctx, peer, wire); err != nil {
			m.log.Warn("federated Q-table: send to peer failed", zap.String("peer", peer), zap.Error(err))
			failed++
			continue
		}
		sent++
	}
	m.log.Info("federated Q-table: share round complete",
		zap.Int("entries", len(entries)), zap.Int("sent", sent), zap.Int("failed", failed))
}

// ReceiveDelta verifies and merges an incoming QTableDelta, signed by
// peerPub, into the local table.
func (m *FederatedQTableManager) ReceiveDelta(sm *signing.SignedMessage, peerPub ed25519.PublicKey) error {
	if err := signing.Verify(sm, peerPub); err != nil {
		return fmt.Errorf("federated Q-table: %w", err)
	}

	var delta QTableDelta
	if err := json.Unmarshal(sm.Payload, &delta); err != nil {
		return fmt.Errorf("federated Q-table: decode delta: %w", err)
	}

	merged := 0
	for _, e := range delta.Entries {
		state := qlearning.StateKey(e.State)
		action := qlearning.Action(e.Action)

		localValue, localVisits := m.table.GetOrZero(state, action)
		totalVisits := localVisits + e.VisitCount
		if totalVisits == 0 {
			continue
		}

		w := m.cfg.MergeWeight * (float32(e.VisitCount) / float32(totalVisits))
		mergedValue := (1-w)*localValue + w*e.Value
		m.table.SetMerged(state, action, mergedValue, totalVisits)
		merged++
	}

	m.log.Info("federated Q-table: merged delta",
		zap.String("node", delta.NodeID), zap.Int("entries", merged))
	return nil
}
