package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/quorumworks/govpilot/internal/engine"
	"github.com/quorumworks/govpilot/internal/model"
	"github.com/quorumworks/govpilot/internal/provider"
	"github.com/quorumworks/govpilot/internal/rpc"
	"github.com/quorumworks/govpilot/pkg/registry"
)

var coordNow = time.Unix(1_700_000_000, 0)

// fakeClock advances on every Now call so endpoint spacing never stalls the
// executor in tests.
type fakeClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newFakeClock(step time.Duration) *fakeClock {
	return &fakeClock{t: coordNow, step: step}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

type fakeSource struct {
	proposals []model.Proposal
}

func (s *fakeSource) DiscoverVotable(context.Context) ([]model.Proposal, int) {
	return append([]model.Proposal(nil), s.proposals...), len(s.proposals)
}

// fakeRegistry tracks voted state in memory so a second round observes the
// first round's votes.
type fakeRegistry struct {
	voted       map[string]bool
	hasVotedErr error
	submitErr   func(req registry.VoteRequest) error
	submits     []registry.VoteRequest
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{voted: make(map[string]bool)}
}

func voteKey(proposalID, voter string) string {
	return proposalID + "|" + voter
}

func (r *fakeRegistry) ProposalCount(context.Context, string) (uint64, error) {
	return 0, errors.New("not used")
}

func (r *fakeRegistry) ProposalAt(context.Context, string, uint64) (*registry.RawProposal, error) {
	return nil, errors.New("not used")
}

func (r *fakeRegistry) HasVoted(_ context.Context, _ string, proposalID, voter string) (bool, error) {
	if r.hasVotedErr != nil {
		return false, r.hasVotedErr
	}
	return r.voted[voteKey(proposalID, voter)], nil
}

func (r *fakeRegistry) SubmitVote(_ context.Context, _ string, req registry.VoteRequest) (string, error) {
	if r.submitErr != nil {
		if err := r.submitErr(req); err != nil {
			return "", err
		}
	}
	r.submits = append(r.submits, req)
	r.voted[voteKey(req.ProposalID, req.Voter)] = true
	return fmt.Sprintf("0xtx%04d", len(r.submits)), nil
}

func (r *fakeRegistry) Ping(context.Context, string) error { return nil }

type fakeSink struct {
	saved []*model.RunReport
	err   error
}

func (s *fakeSink) SaveReport(_ context.Context, report *model.RunReport) error {
	s.saved = append(s.saved, report)
	return s.err
}

func testIdentities(n int) []model.VotingIdentity {
	ids := make([]model.VotingIdentity, n)
	for i := range ids {
		ids[i] = model.VotingIdentity{
			Index:   i,
			Address: fmt.Sprintf("0x%040x", i+1),
			KeyRef:  fmt.Sprintf("vault:gov/%d", i),
		}
	}
	return ids
}

func votableProposal(id, amount string) model.Proposal {
	return model.Proposal{
		ID:           id,
		Proposer:     "0x1111111111111111111111111111111111111111",
		Kind:         model.KindInvest,
		TargetAsset:  "0x3333333333333333333333333333333333333333",
		Amount:       amount,
		Description:  "Invest into USDC stable reserve for treasury yield",
		VotesFor:     "120",
		VotesAgainst: "30",
		StartTime:    coordNow.Unix() - 600,
		EndTime:      coordNow.Unix() + 3600,
		State:        model.StateActive,
	}
}

func newTestExecutor(reg registry.Client) *rpc.Executor {
	pool := provider.NewPool([]provider.Endpoint{
		{URL: "https://rpc-a.example", Name: "a", Priority: 1},
		{URL: "https://rpc-b.example", Name: "b", Priority: 2},
	}, provider.DefaultPoolConfig())
	return rpc.NewExecutor(pool, reg).
		WithNow(newFakeClock(10 * time.Second).Now).
		WithPacer(rate.NewLimiter(rate.Inf, 1)).
		WithSleep(func(context.Context, time.Duration) error { return nil })
}

func newTestCoordinator(src ProposalSource, reg *fakeRegistry, identities int, cfg Config) *Coordinator {
	eng := engine.New(engine.NewConservative(), engine.Config{}).
		WithNow(func() time.Time { return coordNow })
	return New(src, eng, newTestExecutor(reg), reg, testIdentities(identities), cfg).
		WithNow(func() time.Time { return coordNow }).
		WithSleep(func(context.Context, time.Duration) error { return nil })
}

func TestRunVotingRound_CastsVoteForEveryIdentity(t *testing.T) {
	reg := newFakeRegistry()
	src := &fakeSource{proposals: []model.Proposal{votableProposal("7", "2500")}}
	c := newTestCoordinator(src, reg, 3, Config{})

	report := c.RunVotingRound(context.Background())

	require.NotNil(t, report)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, "conservative", report.Policy)
	assert.Equal(t, 1, report.ProposalsScanned)
	assert.Equal(t, 1, report.ProposalsEvaluated)
	assert.Equal(t, 3, report.VotesCast)
	assert.False(t, report.BrakeTripped)

	require.Len(t, report.Proposals, 1)
	records := report.Proposals[0].Records
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, i, rec.IdentityIndex)
		assert.Equal(t, model.OutcomeSuccess, rec.Outcome)
		assert.NotEmpty(t, rec.TxRef)
	}
	assert.Len(t, reg.submits, 3)
	assert.True(t, report.Proposals[0].Decision.Support)
}

func TestRunVotingRound_IdempotentAcrossRounds(t *testing.T) {
	reg := newFakeRegistry()
	src := &fakeSource{proposals: []model.Proposal{votableProposal("7", "2500")}}
	c := newTestCoordinator(src, reg, 3, Config{})

	first := c.RunVotingRound(context.Background())
	require.Equal(t, 3, first.VotesCast)
	require.Len(t, reg.submits, 3)

	// Unchanged remote state: every identity has already voted, so the
	// second round must submit nothing.
	second := c.RunVotingRound(context.Background())
	assert.Equal(t, 0, second.VotesCast)
	assert.Len(t, reg.submits, 3)

	require.Len(t, second.Proposals, 1)
	for _, rec := range second.Proposals[0].Records {
		assert.Equal(t, model.OutcomeAlreadyVoted, rec.Outcome)
	}
}

func TestRunVotingRound_FailedIdentityIsContained(t *testing.T) {
	reg := newFakeRegistry()
	failing := testIdentities(5)[3].Address
	reg.submitErr = func(req registry.VoteRequest) error {
		if req.Voter == failing {
			return errors.New("execution reverted: nonce gap")
		}
		return nil
	}
	src := &fakeSource{proposals: []model.Proposal{votableProposal("7", "2500")}}
	c := newTestCoordinator(src, reg, 5, Config{})

	report := c.RunVotingRound(context.Background())

	assert.Equal(t, 4, report.VotesCast)
	require.Len(t, report.Proposals, 1)
	records := report.Proposals[0].Records
	require.Len(t, records, 5)
	for _, rec := range records {
		if rec.IdentityIndex == 3 {
			assert.Equal(t, model.OutcomeFailed, rec.Outcome)
			assert.Contains(t, rec.ErrorDetail, "reverted")
			continue
		}
		assert.Equal(t, model.OutcomeSuccess, rec.Outcome, "identity %d", rec.IdentityIndex)
	}
}

func TestRunVotingRound_RateLimitedGuardTreatedAsVoted(t *testing.T) {
	reg := newFakeRegistry()
	reg.hasVotedErr = errors.New("HTTP 429 Too Many Requests")
	src := &fakeSource{proposals: []model.Proposal{votableProposal("7", "2500")}}
	c := newTestCoordinator(src, reg, 2, Config{})

	report := c.RunVotingRound(context.Background())

	assert.Equal(t, 0, report.VotesCast)
	assert.Empty(t, reg.submits, "a rate-limited guard must never fall through to submission")
	require.Len(t, report.Proposals, 1)
	for _, rec := range report.Proposals[0].Records {
		assert.Equal(t, model.OutcomeAlreadyVoted, rec.Outcome)
	}
}

func TestRunVotingRound_EmergencyBrake(t *testing.T) {
	reg := newFakeRegistry()
	src := &fakeSource{proposals: []model.Proposal{
		votableProposal("7", "2500"),
		votableProposal("8", "2500"),
	}}
	c := newTestCoordinator(src, reg, 1, Config{RoundBudget: 45 * time.Second})
	// 20s per observed tick: the second proposal lands past the 45s budget.
	c.WithNow(newFakeClock(20 * time.Second).Now)

	report := c.RunVotingRound(context.Background())

	assert.True(t, report.BrakeTripped)
	assert.Equal(t, 1, report.ProposalsEvaluated)
	assert.Equal(t, 1, report.VotesCast)
	assert.Len(t, report.Proposals, 1)
	assert.False(t, report.FinishedAt.IsZero())
}

func TestRunVotingRound_ProposalCap(t *testing.T) {
	reg := newFakeRegistry()
	src := &fakeSource{}
	for i := 0; i < 12; i++ {
		p := votableProposal(fmt.Sprintf("%d", i), "2500")
		p.Description = "short" // skipped in validation, no votes attempted
		src.proposals = append(src.proposals, p)
	}
	c := newTestCoordinator(src, reg, 1, Config{})

	report := c.RunVotingRound(context.Background())

	assert.Equal(t, 12, report.ProposalsScanned)
	assert.Equal(t, 10, report.ProposalsEvaluated)
	assert.Len(t, report.Proposals, 10)
	for _, o := range report.Proposals {
		assert.True(t, o.Skipped)
		assert.NotEmpty(t, o.SkipReason)
	}
	assert.Empty(t, reg.submits)
}

func TestRunVotingRound_ReportReachesSink(t *testing.T) {
	reg := newFakeRegistry()
	sink := &fakeSink{}
	src := &fakeSource{proposals: []model.Proposal{votableProposal("7", "2500")}}
	c := newTestCoordinator(src, reg, 1, Config{}).WithSink(sink)

	report := c.RunVotingRound(context.Background())

	require.Len(t, sink.saved, 1)
	assert.Equal(t, report.ID, sink.saved[0].ID)
}

func TestRunVotingRound_SinkFailureDoesNotFailRound(t *testing.T) {
	reg := newFakeRegistry()
	sink := &fakeSink{err: errors.New("disk full")}
	src := &fakeSource{proposals: []model.Proposal{votableProposal("7", "2500")}}
	c := newTestCoordinator(src, reg, 1, Config{}).WithSink(sink)

	report := c.RunVotingRound(context.Background())
	require.NotNil(t, report)
	assert.Equal(t, 1, report.VotesCast)
}

func TestPrioritize(t *testing.T) {
	priority := "0xAAAA000000000000000000000000000000000000"
	p := func(id, asset, amount string) model.Proposal {
		return model.Proposal{ID: id, TargetAsset: asset, Amount: amount}
	}
	proposals := []model.Proposal{
		p("1", "0xbbbb000000000000000000000000000000000000", "100"),
		p("2", "0xcccc000000000000000000000000000000000000", "900"),
		p("3", priority, "500"),
		p("4", priority, "50"),
		p("5", "0xdddd000000000000000000000000000000000000", "garbage"),
	}

	Prioritize(proposals, priority)

	got := make([]string, len(proposals))
	for i, pr := range proposals {
		got[i] = pr.ID
	}
	// Priority asset first by amount, then the rest by amount; unparseable
	// amounts sink to the bottom.
	assert.Equal(t, []string{"3", "4", "2", "1", "5"}, got)
}

func TestPrioritize_NoPriorityAsset(t *testing.T) {
	proposals := []model.Proposal{
		{ID: "1", Amount: "10"},
		{ID: "2", Amount: "300"},
		{ID: "3", Amount: "40"},
	}
	Prioritize(proposals, "")
	assert.Equal(t, "2", proposals[0].ID)
}
