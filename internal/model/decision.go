package model

// VoteDecision is the decision engine's verdict for a single proposal.
// Produced fresh per proposal per round; never persisted on its own.
type VoteDecision struct {
	// ShouldEvaluate is false when the proposal failed basic validity checks
	// and must be skipped entirely (no vote either way).
	ShouldEvaluate bool    `json:"should_evaluate"`
	Support        bool    `json:"support"`
	Confidence     float64 `json:"confidence"` // [0,1], clamped per policy
	Reasoning      string  `json:"reasoning"`
}

// Abstain reports whether the decision amounts to taking no action.
func (d VoteDecision) Abstain() bool {
	return !d.ShouldEvaluate
}
