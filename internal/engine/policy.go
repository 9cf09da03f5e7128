package engine

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/quorumworks/govpilot/internal/model"
)

// DecisionInput is everything a policy needs to turn a validated proposal
// into a vote. The engine resolves amounts, flags, and market signals once
// so policies stay pure rule sets.
type DecisionInput struct {
	Proposal      model.Proposal
	Amount        float64
	Stable        bool
	RiskScore     float64 // composite risk in [0,1], computed by the engine
	Market        *model.MarketContext
	Signal        *model.Signal // market signal for the target asset, nil if unknown
	SupportRatio  float64       // -1 when no votes tallied yet
	WindowElapsed float64       // fraction of the voting window consumed, [0,1]
}

// Policy is a named, pluggable rule set converting a validated proposal into
// a vote decision. Implementations must be deterministic and free of I/O.
type Policy interface {
	Name() string

	// AmountBand returns the [min,max] validation band in human-readable
	// units. Stablecoin-flagged proposals get a tighter band.
	AmountBand(stable bool) (min, max float64)

	// Decide applies the policy's thresholds to a proposal that already
	// passed validation. Confidence comes back clamped to the policy's
	// valid range.
	Decide(in DecisionInput) model.VoteDecision
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "conservative":
		return NewConservative(), nil
	case "aggressive":
		return NewAggressive(), nil
	default:
		return nil, eris.Errorf("engine: unknown policy %q", name)
	}
}

// clamp bounds confidence into a policy's valid range.
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// joinReasons builds the human-readable reasoning string from the rule that
// fired plus any confidence-adjustment annotations.
func joinReasons(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "; ")
}
