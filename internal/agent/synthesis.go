package agent

import "github.com/octoreflex/ranswarm/internal/qlearning"

// Entity is one parameter/value pair extracted from a query's free text
// (pipeline step 1). Extraction itself is external to this package: the
// pipeline only consumes whatever an EntityExtractor implementation
// returns.
type Entity struct {
	Parameter string
	Value     float32
}

// EntityExtractor turns raw query text into the entities a response
// synthesizer and safety validator can act on. Implementations typically
// wrap an NLP/NER component; this package only defines the seam.
type EntityExtractor interface {
	Extract(text string) []Entity
}

// NoOpExtractor returns no entities for every query. Useful as a default
// when no NLP component is wired in, or in tests that only exercise the
// retrieval/action-selection/safety path.
type NoOpExtractor struct{}

// Extract implements EntityExtractor.
func (NoOpExtractor) Extract(string) []Entity { return nil }

// ParameterChange is a proposed RAN parameter adjustment a synthesized
// response wants to emit (pipeline step 7). Nil means the response
// carries no parameter change.
type ParameterChange struct {
	Parameter string
	OldValue  float32
	NewValue  float32
}

// ResponseSynthesizer produces the final response text and, optionally,
// a parameter change, given the chosen action and retrieved context
// (pipeline step 6). Synthesis is external to this package in the same
// sense entity extraction is: the pipeline only consumes the result.
type ResponseSynthesizer interface {
	Synthesize(action qlearning.Action, q Query, neighborIDs []uint64, entities []Entity) (text string, change *ParameterChange)
}

// TemplateSynthesizer is a deterministic, dependency-free
// ResponseSynthesizer: it describes the chosen action and context in a
// fixed template and proposes a parameter change only when extraction
// produced exactly one entity. It exists so the pipeline is runnable end
// to end without an external NLG component wired in; production
// deployments are expected to supply their own ResponseSynthesizer.
type TemplateSynthesizer struct{}

// Synthesize implements ResponseSynthesizer.
func (TemplateSynthesizer) Synthesize(action qlearning.Action, q Query, neighborIDs []uint64, entities []Entity) (string, *ParameterChange) {
	var change *ParameterChange
	if action != qlearning.RequestClarification && len(entities) == 1 {
		e := entities[0]
		change = &ParameterChange{Parameter: e.Parameter, OldValue: e.Value, NewValue: e.Value}
	}

	switch action {
	case qlearning.DirectAnswer:
		return "answering directly from local policy", change
	case qlearning.ContextAnswer:
		return "answering using retrieved context", change
	case qlearning.ConsultPeer:
		return "consulting a peer agent before answering", nil
	case qlearning.RequestClarification:
		return "requesting clarification", nil
	case qlearning.Escalate:
		return "escalating for human or higher-tier review", nil
	default:
		return "unhandled action", nil
	}
}
