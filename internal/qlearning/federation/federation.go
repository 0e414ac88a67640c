// Package federation implements cross-agent Q-table merging (spec
// §4.5.5): given a local and a peer snapshot of the same state/action
// entries, combine them under one of several strategies and report
// divergence statistics.
package federation

import (
	"github.com/octoreflex/ranswarm/internal/qlearning/qtable"
)

// Strategy selects how local and peer Q-values are combined.
type Strategy uint8

const (
	// WeightedAverage blends by visit count:
	// merged_v = (local_v*local_n + peer_v*peer_n) / max(local_n+peer_n, 1)
	// merged_n = (local_n+peer_n)/2
	WeightedAverage Strategy = iota
	// SimpleWeightedAverage blends by a fixed caller-supplied weight w in [0,1]:
	// merged_v = local_v*(1-w) + peer_v*w
	SimpleWeightedAverage
	// Max keeps the larger of the two values.
	Max
	// Min keeps the smaller of the two values.
	Min
)

// conflictThreshold is the |local_v - peer_v| magnitude above which an
// entry counts as a conflict in Stats.
const conflictThreshold = 0.1

// Stats summarizes one merge pass.
type Stats struct {
	EntriesMerged int
	Conflicts     int
}

// Merge combines peer's entries into local using strategy, mutating
// local in place via SetMerged. weight is only consulted for
// SimpleWeightedAverage (clamped to [0,1]); it is ignored otherwise.
func Merge(local *qtable.Table, peer []qtable.Entry, strategy Strategy, weight float32) Stats {
	if weight < 0 {
		weight = 0
	} else if weight > 1 {
		weight = 1
	}

	var stats Stats
	for _, pe := range peer {
		localV, localN := local.GetOrZero(pe.State, pe.Action)
		peerV, peerN := pe.Value, pe.VisitCount

		if abs32(localV-peerV) > conflictThreshold {
			stats.Conflicts++
		}

		mergedV, mergedN := mergeOne(strategy, localV, localN, peerV, peerN, weight)
		local.SetMerged(pe.State, pe.Action, mergedV, mergedN)
		stats.EntriesMerged++
	}
	return stats
}

func mergeOne(strategy Strategy, localV float32, localN uint32, peerV float32, peerN uint32, weight float32) (float32, uint32) {
	switch strategy {
	case SimpleWeightedAverage:
		return localV*(1-weight) + peerV*weight, averageVisits(localN, peerN)
	case Max:
		if peerV > localV {
			return peerV, averageVisits(localN, peerN)
		}
		return localV, averageVisits(localN, peerN)
	case Min:
		if peerV < localV {
			return peerV, averageVisits(localN, peerN)
		}
		return localV, averageVisits(localN, peerN)
	default: // WeightedAverage
		totalN := localN + peerN
		denom := totalN
		if denom == 0 {
			denom = 1
		}
		mergedV := (localV*float32(localN) + peerV*float32(peerN)) / float32(denom)
		return mergedV, totalN / 2
	}
}

func averageVisits(a, b uint32) uint32 {
	return (a + b) / 2
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
