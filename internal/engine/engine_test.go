package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumworks/govpilot/internal/model"
)

var (
	engNow       = time.Unix(1_700_000_000, 0)
	proposerAddr = "0x1111111111111111111111111111111111111111"
	growthAddr   = "0x2222222222222222222222222222222222222222"
	stableAddr   = "0x3333333333333333333333333333333333333333"
)

func activeProposal() model.Proposal {
	return model.Proposal{
		ID:           "7",
		Proposer:     proposerAddr,
		Kind:         model.KindInvest,
		TargetAsset:  growthAddr,
		Amount:       "500",
		Description:  "Invest treasury funds into the growth position",
		VotesFor:     "120",
		VotesAgainst: "30",
		StartTime:    engNow.Unix() - 600,
		EndTime:      engNow.Unix() + 3600,
		State:        model.StateActive,
	}
}

func newConservativeEngine() *Engine {
	return New(NewConservative(), Config{}).WithNow(func() time.Time { return engNow })
}

func newAggressiveEngine(symbols map[string]string) *Engine {
	return New(NewAggressive(), Config{AssetSymbols: symbols}).WithNow(func() time.Time { return engNow })
}

func TestEvaluate_NonActiveStatesRejected(t *testing.T) {
	eng := newConservativeEngine()

	states := []model.ProposalState{
		model.StatePending, model.StateSucceeded, model.StateDefeated,
		model.StateQueued, model.StateExecuted, model.StateCancelled,
	}
	for _, st := range states {
		t.Run(st.String(), func(t *testing.T) {
			p := activeProposal()
			p.State = st
			d := eng.Evaluate(p, nil)
			assert.False(t, d.ShouldEvaluate, "state %s must not be evaluated", st)
		})
	}
}

func TestEvaluate_ValidationRejections(t *testing.T) {
	eng := newConservativeEngine()

	tests := []struct {
		name   string
		mutate func(p *model.Proposal)
		reason string
	}{
		{"elapsed window", func(p *model.Proposal) { p.EndTime = engNow.Unix() - 1 }, "elapsed"},
		{"executed", func(p *model.Proposal) { p.Executed = true }, "executed"},
		{"short description", func(p *model.Proposal) { p.Description = "short" }, "description"},
		{"zero target asset", func(p *model.Proposal) { p.TargetAsset = model.ZeroAddress }, "zero address"},
		{"unparseable amount", func(p *model.Proposal) { p.Amount = "12,5 units" }, "not a number"},
		{"amount below band", func(p *model.Proposal) { p.Amount = "0.1" }, "band"},
		{"amount above band", func(p *model.Proposal) { p.Amount = "50000" }, "band"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := activeProposal()
			tt.mutate(&p)
			d := eng.Evaluate(p, nil)
			require.False(t, d.ShouldEvaluate)
			assert.Contains(t, strings.ToLower(d.Reasoning), tt.reason)
		})
	}
}

func TestEvaluate_OversizedAmountRejectedRegardlessOfContext(t *testing.T) {
	eng := newConservativeEngine()

	p := activeProposal()
	p.Amount = "50000" // above the conservative non-stable band

	calm := &model.MarketContext{RiskScore: 0.0}
	d := eng.Evaluate(p, calm)
	require.False(t, d.ShouldEvaluate, "band rejection is independent of market context")
}

func TestConservative_StableInvestmentSupported(t *testing.T) {
	eng := newConservativeEngine()

	p := activeProposal()
	p.TargetAsset = stableAddr
	p.Amount = "2500"
	p.Description = "Invest into USDC stable reserve for treasury yield"

	d := eng.Evaluate(p, nil)
	require.True(t, d.ShouldEvaluate)
	assert.True(t, d.Support)
	assert.InDelta(t, 0.8, d.Confidence, 0.01)
	assert.Contains(t, strings.ToLower(d.Reasoning), "stable")
}

func TestConservative_HighRiskOpposed(t *testing.T) {
	eng := newConservativeEngine()

	// 2000 units, invest kind: risk = 0.5 + 0.1 + 0.1 = 0.7 > 0.3.
	p := activeProposal()
	p.Amount = "2000"

	d := eng.Evaluate(p, nil)
	require.True(t, d.ShouldEvaluate)
	assert.False(t, d.Support)
	assert.Contains(t, d.Reasoning, "tolerance")
}

func TestConservative_DivestmentDuringHighMarketRisk(t *testing.T) {
	eng := newConservativeEngine()

	p := activeProposal()
	p.Kind = model.KindDivest
	p.Description = "Divest from the legacy growth position"

	d := eng.Evaluate(p, &model.MarketContext{RiskScore: 0.9})
	require.True(t, d.ShouldEvaluate)
	assert.True(t, d.Support)
	assert.Contains(t, d.Reasoning, "market risk")
}

func TestConservative_LastMinuteConfidenceDamping(t *testing.T) {
	eng := newConservativeEngine()

	p := activeProposal()
	p.TargetAsset = stableAddr
	p.Amount = "2500"
	p.Description = "Invest into USDC stable reserve for treasury yield"
	// 95% of the window elapsed.
	p.StartTime = engNow.Unix() - 950
	p.EndTime = engNow.Unix() + 50

	d := eng.Evaluate(p, nil)
	require.True(t, d.ShouldEvaluate)
	assert.True(t, d.Support)
	assert.InDelta(t, 0.64, d.Confidence, 0.01) // 0.8 × 0.8
	assert.Contains(t, d.Reasoning, "last-minute")
}

func TestAggressive_TrendAlignedInvestment(t *testing.T) {
	eng := newAggressiveEngine(map[string]string{strings.ToLower(growthAddr): "ETH"})

	p := activeProposal()
	p.Amount = "4000"

	mctx := &model.MarketContext{
		RiskScore: 0.4,
		Signals:   map[string]model.Signal{"ETH": {Action: model.ActionBuy, Confidence: 0.8}},
	}
	d := eng.Evaluate(p, mctx)
	require.True(t, d.ShouldEvaluate)
	assert.True(t, d.Support)
	assert.InDelta(t, 0.85, d.Confidence, 0.01)
	assert.Contains(t, d.Reasoning, "market trend")
}

func TestAggressive_ContrarianBoost(t *testing.T) {
	eng := newAggressiveEngine(nil)

	// Low community support (10%) with an otherwise acceptable investment.
	p := activeProposal()
	p.VotesFor = "10"
	p.VotesAgainst = "90"

	d := eng.Evaluate(p, nil)
	require.True(t, d.ShouldEvaluate)
	assert.True(t, d.Support)
	assert.InDelta(t, 0.7, d.Confidence, 0.01) // 0.6 base + 0.1 contrarian
	assert.Contains(t, d.Reasoning, "contrarian")
}

func TestAggressive_DivestmentOpposedByDefault(t *testing.T) {
	eng := newAggressiveEngine(nil)

	p := activeProposal()
	p.Kind = model.KindDivest
	p.Description = "Divest from the core growth position"

	d := eng.Evaluate(p, nil)
	require.True(t, d.ShouldEvaluate)
	assert.False(t, d.Support)
	assert.Contains(t, d.Reasoning, "divestment")
}

func TestAggressive_DivestmentSupportedOnDowntrend(t *testing.T) {
	eng := newAggressiveEngine(map[string]string{strings.ToLower(growthAddr): "ETH"})

	p := activeProposal()
	p.Kind = model.KindDivest
	p.Description = "Divest from the core growth position"

	mctx := &model.MarketContext{
		RiskScore: 0.4,
		Signals:   map[string]model.Signal{"ETH": {Action: model.ActionSell, Confidence: 0.7}},
	}
	d := eng.Evaluate(p, mctx)
	require.True(t, d.ShouldEvaluate)
	assert.True(t, d.Support)
	assert.Contains(t, d.Reasoning, "downtrend")
}

func TestAggressive_ConfidenceClampedAtPolicyCeiling(t *testing.T) {
	eng := newAggressiveEngine(map[string]string{strings.ToLower(growthAddr): "ETH"})

	// Strong trend + contrarian + late window would stack to 1.0 unclamped.
	p := activeProposal()
	p.VotesFor = "5"
	p.VotesAgainst = "95"
	p.StartTime = engNow.Unix() - 990
	p.EndTime = engNow.Unix() + 10

	mctx := &model.MarketContext{
		Signals: map[string]model.Signal{"ETH": {Action: model.ActionBuy, Confidence: 0.9}},
	}
	d := eng.Evaluate(p, mctx)
	require.True(t, d.ShouldEvaluate)
	assert.LessOrEqual(t, d.Confidence, 0.95)
	assert.InDelta(t, 0.95, d.Confidence, 0.001)
}

func TestRiskScore_MarketContribution(t *testing.T) {
	p := activeProposal()
	p.Amount = "500"

	base := riskScore(p, 500, nil)
	withMarket := riskScore(p, 500, &model.MarketContext{RiskScore: 1.0})
	assert.InDelta(t, 0.3, withMarket-base, 1e-9)
}

func TestRiskScore_LowSupportPenalty(t *testing.T) {
	p := activeProposal()
	p.VotesFor = "10"
	p.VotesAgainst = "90"

	penalized := riskScore(p, 500, nil)
	p.VotesFor = "90"
	p.VotesAgainst = "10"
	normal := riskScore(p, 500, nil)

	assert.InDelta(t, 0.15, penalized-normal, 1e-9)
}

func TestPolicyByName(t *testing.T) {
	for name, want := range map[string]string{
		"":             "conservative",
		"conservative": "conservative",
		"Aggressive":   "aggressive",
	} {
		p, err := PolicyByName(name)
		require.NoError(t, err)
		assert.Equal(t, want, p.Name())
	}

	_, err := PolicyByName("yolo")
	require.Error(t, err)
}

func TestStableAssetSet_Flagged(t *testing.T) {
	set := NewStableAssetSet(nil)

	assert.True(t, set.Flagged(model.Proposal{Description: "Move funds into USDC reserve"}))
	assert.True(t, set.Flagged(model.Proposal{Description: "dai vault deposit for yield"}))
	assert.False(t, set.Flagged(model.Proposal{Description: "Acquire governance tokens"}))

	custom := NewStableAssetSet([]string{"0xstable"})
	assert.True(t, custom.Flagged(model.Proposal{TargetAsset: "0xSTABLEcoinAddress"}))
	assert.False(t, custom.Flagged(model.Proposal{Description: "Move funds into USDC reserve"}))
}
