package engine

import (
	"fmt"

	"github.com/quorumworks/govpilot/internal/model"
)

// Aggressive chases growth: high risk tolerance, large position cap,
// preference for trend-aligned investments, reluctance to divest, and
// confidence boosts for contrarian and decisive late-window action.
type Aggressive struct {
	riskTolerance float64
	positionCap   float64
	minConf       float64
	maxConf       float64
}

// NewAggressive creates the aggressive policy with its standard limits.
func NewAggressive() *Aggressive {
	return &Aggressive{
		riskTolerance: 0.8,
		positionCap:   5000,
		minConf:       0.1,
		maxConf:       0.95,
	}
}

func (a *Aggressive) Name() string { return "aggressive" }

// AmountBand is wider than the conservative one but still tighter for
// stablecoin-flagged proposals.
func (a *Aggressive) AmountBand(stable bool) (float64, float64) {
	if stable {
		return 1, 50_000
	}
	return 1, 100_000
}

func (a *Aggressive) Decide(in DecisionInput) model.VoteDecision {
	var support bool
	var confidence float64
	var rule string

	switch in.Proposal.Kind {
	case model.KindInvest:
		switch {
		case in.Signal != nil && in.Signal.Action == model.ActionBuy && in.Signal.Confidence >= 0.7:
			support = true
			confidence = 0.85
			rule = fmt.Sprintf("growth-asset investment aligned with strong market trend (%.2f)", in.Signal.Confidence)
		case in.SupportRatio >= 0.6:
			support = true
			confidence = 0.7
			rule = fmt.Sprintf("investment riding high community momentum (%.0f%% support)", in.SupportRatio*100)
		case in.RiskScore <= a.riskTolerance && in.Amount <= a.positionCap:
			support = true
			confidence = 0.6
			rule = "investment within aggressive risk appetite"
		default:
			support = false
			confidence = 0.6
			rule = fmt.Sprintf("risk score %.2f beyond even aggressive tolerance %.2f", in.RiskScore, a.riskTolerance)
		}

	case model.KindDivest:
		switch {
		case in.Market != nil && in.Market.RiskScore > 0.85:
			support = true
			confidence = 0.7
			rule = fmt.Sprintf("divestment accepted under extreme market risk (%.2f)", in.Market.RiskScore)
		case in.Signal != nil && in.Signal.Action == model.ActionSell && in.Signal.Confidence >= 0.6:
			support = true
			confidence = 0.7
			rule = "divestment backed by detected downtrend for the asset"
		default:
			support = false
			confidence = 0.65
			rule = "opposing divestment absent extreme risk or a downtrend"
		}

	default: // rebalance
		if in.RiskScore <= a.riskTolerance {
			support = true
			confidence = 0.55
			rule = "rebalance acceptable within aggressive risk appetite"
		} else {
			support = false
			confidence = 0.55
			rule = fmt.Sprintf("rebalance rejected at risk score %.2f", in.RiskScore)
		}
	}

	var annotations []string
	if support && in.SupportRatio >= 0 && in.SupportRatio < 0.3 {
		confidence += 0.1
		annotations = append(annotations, "contrarian position against low-support proposal, confidence boosted")
	}
	if in.WindowElapsed >= 0.9 {
		confidence += 0.05
		annotations = append(annotations, "decisive late-window action, confidence boosted")
	}

	parts := append([]string{rule}, annotations...)
	return model.VoteDecision{
		Support:    support,
		Confidence: clamp(confidence, a.minConf, a.maxConf),
		Reasoning:  joinReasons(parts...),
	}
}
