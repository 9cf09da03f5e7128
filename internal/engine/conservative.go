package engine

import (
	"fmt"

	"github.com/quorumworks/govpilot/internal/model"
)

// Conservative favors capital preservation: low risk tolerance, small
// position cap, strong preference for stable-asset investments, and reduced
// conviction on last-minute decisions.
type Conservative struct {
	riskTolerance float64
	positionCap   float64
	minConf       float64
	maxConf       float64
}

// NewConservative creates the conservative policy with its standard limits.
func NewConservative() *Conservative {
	return &Conservative{
		riskTolerance: 0.3,
		positionCap:   1000,
		minConf:       0.1,
		maxConf:       0.9,
	}
}

func (c *Conservative) Name() string { return "conservative" }

// AmountBand keeps stablecoin exposure tighter than general positions.
func (c *Conservative) AmountBand(stable bool) (float64, float64) {
	if stable {
		return 1, 10_000
	}
	return 1, 25_000
}

func (c *Conservative) Decide(in DecisionInput) model.VoteDecision {
	var support bool
	var confidence float64
	var rule string

	switch {
	case in.Stable && in.Proposal.Kind == model.KindInvest:
		// Stable-asset investments are the conservative sweet spot and are
		// judged ahead of the generic risk gate.
		support = true
		confidence = 0.8
		rule = "stable-asset investment aligns with capital preservation mandate"

	case in.Proposal.Kind == model.KindDivest && in.Market != nil && in.Market.RiskScore > 0.7:
		support = true
		confidence = 0.75
		rule = fmt.Sprintf("divestment favored while market risk is elevated (%.2f)", in.Market.RiskScore)

	case in.Proposal.Kind == model.KindRebalance && in.Signal != nil &&
		in.Signal.Action == model.ActionHold && in.Signal.Confidence >= 0.6:
		support = true
		confidence = 0.7
		rule = "rebalance backed by explicit portfolio-hold signal"

	case in.RiskScore > c.riskTolerance:
		support = false
		confidence = clamp(0.5+(in.RiskScore-c.riskTolerance), c.minConf, c.maxConf)
		rule = fmt.Sprintf("risk score %.2f exceeds conservative tolerance %.2f", in.RiskScore, c.riskTolerance)

	case in.Amount > c.positionCap:
		support = false
		confidence = 0.7
		rule = fmt.Sprintf("amount %.0f exceeds conservative position cap %.0f", in.Amount, c.positionCap)

	default:
		support = true
		confidence = 0.6
		rule = "within conservative risk limits"
	}

	var annotation string
	if in.WindowElapsed >= 0.9 {
		confidence *= 0.8
		annotation = "last-minute decision, confidence reduced 20%"
	}

	return model.VoteDecision{
		Support:    support,
		Confidence: clamp(confidence, c.minConf, c.maxConf),
		Reasoning:  joinReasons(rule, annotation),
	}
}
