// Package engine converts canonical proposals plus optional market context
// into vote decisions under a pluggable risk policy. It performs no I/O.
package engine

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quorumworks/govpilot/internal/model"
)

// Config tunes validation and signal resolution.
type Config struct {
	// MinDescriptionLen rejects proposals with emptier descriptions.
	// Default: 10.
	MinDescriptionLen int

	// StableIdentifiers override the default stable-asset markers.
	StableIdentifiers []string

	// AssetSymbols maps lower-case asset addresses to the market symbols
	// used for signal lookup (e.g. "0xa0b8..." -> "USDC").
	AssetSymbols map[string]string
}

// Engine evaluates proposals under a policy.
type Engine struct {
	policy  Policy
	stable  *StableAssetSet
	cfg     Config
	nowFunc func() time.Time
}

// New creates an engine for the given policy.
func New(policy Policy, cfg Config) *Engine {
	if cfg.MinDescriptionLen <= 0 {
		cfg.MinDescriptionLen = 10
	}
	return &Engine{
		policy:  policy,
		stable:  NewStableAssetSet(cfg.StableIdentifiers),
		cfg:     cfg,
		nowFunc: time.Now,
	}
}

// WithNow sets a fixed clock for testing.
func (e *Engine) WithNow(fn func() time.Time) *Engine {
	e.nowFunc = fn
	return e
}

// PolicyName returns the active policy's name for reporting.
func (e *Engine) PolicyName() string {
	return e.policy.Name()
}

// Evaluate runs validation, risk scoring, and the policy's thresholds for a
// single proposal. mctx may be nil ("no market signal").
func (e *Engine) Evaluate(p model.Proposal, mctx *model.MarketContext) model.VoteDecision {
	now := e.nowFunc()
	stable := e.stable.Flagged(p)

	if reason, ok := e.validate(p, stable, now); !ok {
		zap.L().Debug("engine: proposal rejected in validation",
			zap.String("proposal_id", p.ID),
			zap.String("reason", reason),
		)
		return model.VoteDecision{ShouldEvaluate: false, Reasoning: reason}
	}

	amount, _ := p.AmountUnits() // validated above

	in := DecisionInput{
		Proposal:      p,
		Amount:        amount,
		Stable:        stable,
		RiskScore:     riskScore(p, amount, mctx),
		Market:        mctx,
		Signal:        e.signalFor(p, mctx),
		SupportRatio:  p.SupportRatio(),
		WindowElapsed: p.WindowElapsedFraction(now),
	}

	decision := e.policy.Decide(in)
	decision.ShouldEvaluate = true

	zap.L().Debug("engine: decision",
		zap.String("proposal_id", p.ID),
		zap.String("policy", e.policy.Name()),
		zap.Bool("support", decision.Support),
		zap.Float64("confidence", decision.Confidence),
		zap.Float64("risk_score", in.RiskScore),
	)
	return decision
}

// validate applies the basic-validity checks; a failure skips the proposal
// entirely rather than casting an oppose vote.
func (e *Engine) validate(p model.Proposal, stable bool, now time.Time) (string, bool) {
	if p.State != model.StateActive {
		return fmt.Sprintf("proposal is %s, not active", p.State), false
	}
	if p.State == model.StateCancelled || p.Executed {
		return "proposal already executed or cancelled", false
	}
	if p.EndTime <= now.Unix() {
		return "voting window has elapsed", false
	}
	if len(strings.TrimSpace(p.Description)) < e.cfg.MinDescriptionLen {
		return "description too short to evaluate", false
	}
	if p.TargetAsset == "" || strings.EqualFold(p.TargetAsset, model.ZeroAddress) {
		return "target asset is the zero address", false
	}

	amount, err := p.AmountUnits()
	if err != nil {
		return fmt.Sprintf("amount %q is not a number", p.Amount), false
	}
	min, max := e.policy.AmountBand(stable)
	if amount < min || amount > max {
		return fmt.Sprintf("amount %s outside %s band [%.0f, %.0f]", p.Amount, e.policy.Name(), min, max), false
	}

	return "", true
}

// riskScore composes the policy-independent risk estimate: base 0.5,
// adjusted for amount size, proposal kind, market risk, and weak existing
// community support.
func riskScore(p model.Proposal, amount float64, mctx *model.MarketContext) float64 {
	score := 0.5

	switch {
	case amount > 5000:
		score += 0.2
	case amount > 1000:
		score += 0.1
	}

	switch p.Kind {
	case model.KindInvest:
		score += 0.1
	case model.KindDivest:
		score -= 0.1
	}

	if mctx != nil {
		score += mctx.RiskScore * 0.3
	}

	if ratio := p.SupportRatio(); ratio >= 0 && ratio < 0.3 {
		score += 0.15
	}

	return clamp(score, 0, 1)
}

// signalFor resolves the market signal for the proposal's target asset.
func (e *Engine) signalFor(p model.Proposal, mctx *model.MarketContext) *model.Signal {
	if mctx == nil {
		return nil
	}
	symbol, ok := e.cfg.AssetSymbols[strings.ToLower(p.TargetAsset)]
	if !ok {
		return nil
	}
	sig, ok := mctx.SignalFor(strings.ToUpper(symbol))
	if !ok {
		return nil
	}
	return &sig
}
