// Package coordinator runs complete voting rounds: discover votable
// proposals, decide each one under the active policy, and cast the decided
// vote once per configured identity. The round is strictly sequential and
// budgeted by a wall-clock emergency brake; it always produces a RunReport,
// even when every item inside it failed.
package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quorumworks/govpilot/internal/engine"
	"github.com/quorumworks/govpilot/internal/model"
	"github.com/quorumworks/govpilot/internal/provider"
	"github.com/quorumworks/govpilot/internal/rpc"
	"github.com/quorumworks/govpilot/pkg/registry"
)

// Config tunes round pacing and limits.
type Config struct {
	// MaxProposalsPerRound caps how many proposals one round acts on.
	// Default: 10.
	MaxProposalsPerRound int

	// RoundBudget is the emergency brake: once this much wall-clock time
	// has passed since the round started, no further proposal or identity
	// is attempted. Default: 45s.
	RoundBudget time.Duration

	// IdentityDelay is the base pause before each identity after the
	// first; IdentityDelayStep is added per identity index so later
	// identities spread out further. Defaults: 1s, 200ms.
	IdentityDelay     time.Duration
	IdentityDelayStep time.Duration

	// ProposalDelay is the pause between proposals. Default: 2s.
	ProposalDelay time.Duration

	// PriorityAsset is an asset address whose proposals are acted on
	// first. Empty disables priority ordering.
	PriorityAsset string

	// GasLimit for vote transactions. Default: registry.DefaultGasLimit.
	GasLimit uint64

	// MarketSymbols are fetched for market context at the start of each
	// round. Empty skips the market lookup.
	MarketSymbols []string
}

func (c Config) withDefaults() Config {
	if c.MaxProposalsPerRound <= 0 {
		c.MaxProposalsPerRound = 10
	}
	if c.RoundBudget <= 0 {
		c.RoundBudget = 45 * time.Second
	}
	if c.IdentityDelay <= 0 {
		c.IdentityDelay = time.Second
	}
	if c.IdentityDelayStep < 0 {
		c.IdentityDelayStep = 0
	}
	if c.ProposalDelay <= 0 {
		c.ProposalDelay = 2 * time.Second
	}
	if c.GasLimit == 0 {
		c.GasLimit = registry.DefaultGasLimit
	}
	return c
}

// ProposalSource yields the proposals a round should consider. Implemented
// by discovery.Scanner.
type ProposalSource interface {
	DiscoverVotable(ctx context.Context) ([]model.Proposal, int)
}

// MarketSource supplies optional market context. Implemented by the market
// data client.
type MarketSource interface {
	Context(ctx context.Context, symbols []string) (*model.MarketContext, error)
}

// ReportSink persists finished round reports.
type ReportSink interface {
	SaveReport(ctx context.Context, report *model.RunReport) error
}

// Coordinator drives one voting round at a time.
type Coordinator struct {
	source     ProposalSource
	eng        *engine.Engine
	exec       *rpc.Executor
	client     registry.Client
	gas        registry.GasPricer
	identities []model.VotingIdentity
	market     MarketSource
	sink       ReportSink
	cfg        Config

	nowFunc   func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// New creates a coordinator. market and sink are optional and attached via
// WithMarket and WithSink.
func New(source ProposalSource, eng *engine.Engine, exec *rpc.Executor, client registry.Client, identities []model.VotingIdentity, cfg Config) *Coordinator {
	return &Coordinator{
		source:     source,
		eng:        eng,
		exec:       exec,
		client:     client,
		gas:        registry.StaticGasPricer(0),
		identities: identities,
		cfg:        cfg.withDefaults(),
		nowFunc:    time.Now,
		sleepFunc:  sleepCtx,
	}
}

// WithGasPricer replaces the default static gas pricer.
func (c *Coordinator) WithGasPricer(g registry.GasPricer) *Coordinator {
	c.gas = g
	return c
}

// WithMarket attaches a market context source.
func (c *Coordinator) WithMarket(m MarketSource) *Coordinator {
	c.market = m
	return c
}

// WithSink attaches a report sink.
func (c *Coordinator) WithSink(s ReportSink) *Coordinator {
	c.sink = s
	return c
}

// WithNow sets a fixed clock for testing.
func (c *Coordinator) WithNow(fn func() time.Time) *Coordinator {
	c.nowFunc = fn
	return c
}

// WithSleep overrides the pacing sleeper for testing.
func (c *Coordinator) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Coordinator {
	c.sleepFunc = fn
	return c
}

// RunVotingRound executes one complete round and always returns its report.
// Per-proposal and per-identity failures are contained in the report; the
// only things that end a round early are the context and the emergency
// brake.
func (c *Coordinator) RunVotingRound(ctx context.Context) *model.RunReport {
	start := c.nowFunc()
	report := &model.RunReport{
		ID:        uuid.NewString(),
		StartedAt: start,
		Policy:    c.eng.PolicyName(),
	}
	deadline := start.Add(c.cfg.RoundBudget)

	zap.L().Info("coordinator: round started",
		zap.String("round_id", report.ID),
		zap.String("policy", report.Policy),
		zap.Int("identities", len(c.identities)),
	)

	mctx := c.marketContext(ctx)

	proposals, scanned := c.source.DiscoverVotable(ctx)
	report.ProposalsScanned = scanned

	Prioritize(proposals, c.cfg.PriorityAsset)
	if len(proposals) > c.cfg.MaxProposalsPerRound {
		zap.L().Info("coordinator: capping round",
			zap.Int("votable", len(proposals)),
			zap.Int("cap", c.cfg.MaxProposalsPerRound),
		)
		proposals = proposals[:c.cfg.MaxProposalsPerRound]
	}

round:
	for i, p := range proposals {
		if c.brakeTripped(deadline) {
			report.BrakeTripped = true
			break
		}
		if i > 0 {
			if err := c.sleepFunc(ctx, c.cfg.ProposalDelay); err != nil {
				break
			}
		}

		decision := c.eng.Evaluate(p, mctx)
		report.ProposalsEvaluated++
		if !decision.ShouldEvaluate {
			report.AddOutcome(model.ProposalOutcome{
				ProposalID: p.ID,
				Decision:   decision,
				Skipped:    true,
				SkipReason: decision.Reasoning,
			})
			continue
		}

		outcome := model.ProposalOutcome{ProposalID: p.ID, Decision: decision}
		for j, ident := range c.identities {
			if c.brakeTripped(deadline) {
				report.BrakeTripped = true
				report.AddOutcome(outcome)
				break round
			}
			if j > 0 {
				delay := c.cfg.IdentityDelay + time.Duration(j)*c.cfg.IdentityDelayStep
				if err := c.sleepFunc(ctx, delay); err != nil {
					report.AddOutcome(outcome)
					break round
				}
			}
			outcome.Records = append(outcome.Records, c.voteAs(ctx, p, decision, ident))
		}
		report.AddOutcome(outcome)
	}

	report.FinishedAt = c.nowFunc()
	c.persist(ctx, report)

	zap.L().Info("coordinator: round finished",
		zap.String("round_id", report.ID),
		zap.Int("scanned", report.ProposalsScanned),
		zap.Int("evaluated", report.ProposalsEvaluated),
		zap.Int("votes_cast", report.VotesCast),
		zap.Bool("brake_tripped", report.BrakeTripped),
		zap.Duration("took", report.Duration()),
	)
	return report
}

// voteAs checks the idempotence guard and then casts one vote. Every path
// returns a record; nothing here can fail the round.
func (c *Coordinator) voteAs(ctx context.Context, p model.Proposal, decision model.VoteDecision, ident model.VotingIdentity) model.VoteRecord {
	rec := model.VoteRecord{ProposalID: p.ID, IdentityIndex: ident.Index}

	voted, err := rpc.Execute(ctx, c.exec, rpc.CallHasVoted,
		func(ctx context.Context, ep *provider.Endpoint) (bool, error) {
			return c.client.HasVoted(ctx, ep.URL, p.ID, ident.Address)
		})
	if err != nil {
		if rpc.IsRateLimited(err) {
			// Fail safe under rate limiting: assume the vote is already
			// in rather than risk a duplicate submission.
			zap.L().Warn("coordinator: has-voted check rate limited, treating as voted",
				zap.String("proposal_id", p.ID),
				zap.Int("identity", ident.Index),
			)
			rec.Outcome = model.OutcomeAlreadyVoted
			return rec
		}
		rec.Outcome = model.OutcomeFailed
		rec.ErrorDetail = err.Error()
		return rec
	}
	if voted {
		rec.Outcome = model.OutcomeAlreadyVoted
		return rec
	}

	tx, err := rpc.Execute(ctx, c.exec, rpc.CallVoteSubmit,
		func(ctx context.Context, ep *provider.Endpoint) (string, error) {
			req := registry.VoteRequest{
				ProposalID:  p.ID,
				Support:     decision.Support,
				Voter:       ident.Address,
				KeyRef:      ident.KeyRef,
				GasLimit:    c.cfg.GasLimit,
				GasPriceWei: c.gas.SuggestPrice(ctx, ep.URL),
			}
			return c.client.SubmitVote(ctx, ep.URL, req)
		})
	if err != nil {
		if registry.IsAlreadyVoted(err) {
			rec.Outcome = model.OutcomeAlreadyVoted
			return rec
		}
		zap.L().Warn("coordinator: vote submission failed",
			zap.String("proposal_id", p.ID),
			zap.Int("identity", ident.Index),
			zap.Error(err),
		)
		rec.Outcome = model.OutcomeFailed
		rec.ErrorDetail = err.Error()
		return rec
	}

	zap.L().Info("coordinator: vote cast",
		zap.String("proposal_id", p.ID),
		zap.Int("identity", ident.Index),
		zap.Bool("support", decision.Support),
		zap.String("tx", tx),
	)
	rec.Outcome = model.OutcomeSuccess
	rec.TxRef = tx
	return rec
}

func (c *Coordinator) brakeTripped(deadline time.Time) bool {
	if !c.nowFunc().After(deadline) {
		return false
	}
	zap.L().Warn("coordinator: emergency brake tripped",
		zap.Duration("budget", c.cfg.RoundBudget),
	)
	return true
}

// marketContext fetches market data once per round. A missing source or a
// lookup failure degrades to nil, which the engine treats as "no signal".
func (c *Coordinator) marketContext(ctx context.Context) *model.MarketContext {
	if c.market == nil || len(c.cfg.MarketSymbols) == 0 {
		return nil
	}
	mctx, err := c.market.Context(ctx, c.cfg.MarketSymbols)
	if err != nil {
		zap.L().Warn("coordinator: market context unavailable, deciding without it", zap.Error(err))
		return nil
	}
	return mctx
}

func (c *Coordinator) persist(ctx context.Context, report *model.RunReport) {
	if c.sink == nil {
		return
	}
	if err := c.sink.SaveReport(ctx, report); err != nil {
		zap.L().Error("coordinator: report persistence failed",
			zap.String("round_id", report.ID),
			zap.Error(err),
		)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
