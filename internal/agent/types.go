package agent

import (
	"github.com/octoreflex/ranswarm/internal/qlearning"
	"github.com/octoreflex/ranswarm/internal/qlearning/trajectory"
)

// Query is one unit of pipeline work (spec §4.7): free text plus the
// caller-supplied query type and complexity, and an optional
// pre-computed embedding. If Embedding is nil, context retrieval (step
// 2) is skipped and the query is answered from state alone.
type Query struct {
	Text       string
	Type       qlearning.QueryType
	Complexity qlearning.Complexity
	Embedding  []float32
}

// Response is pipeline()'s result (spec §4.7 step 9).
type Response struct {
	Text         string
	Action       qlearning.Action
	AgentID      string
	Confidence   float32
	LatencyMS    float64
	QValue       float32
	TrajectoryID trajectory.ID
}
