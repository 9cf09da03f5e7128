package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumworks/govpilot/internal/model"
	"github.com/quorumworks/govpilot/internal/provider"
	"github.com/quorumworks/govpilot/internal/store"
)

// fakeStore returns canned reports for Collect.
type fakeStore struct {
	store.Store
	reports []model.RunReport
	err     error
}

func (s *fakeStore) ListReports(_ context.Context, _ store.ReportFilter) ([]model.RunReport, error) {
	return s.reports, s.err
}

func reportWithRecords(braked bool, outcomes ...model.VoteOutcome) model.RunReport {
	var records []model.VoteRecord
	for i, o := range outcomes {
		records = append(records, model.VoteRecord{ProposalID: "1", IdentityIndex: i, Outcome: o})
	}
	return model.RunReport{
		ID:                 "r",
		StartedAt:          time.Now().UTC(),
		Policy:             "conservative",
		ProposalsScanned:   20,
		ProposalsEvaluated: 1,
		BrakeTripped:       braked,
		Proposals:          []model.ProposalOutcome{{ProposalID: "1", Records: records}},
	}
}

func TestCollect_AggregatesReports(t *testing.T) {
	st := &fakeStore{reports: []model.RunReport{
		reportWithRecords(false, model.OutcomeSuccess, model.OutcomeSuccess, model.OutcomeFailed),
		reportWithRecords(true, model.OutcomeAlreadyVoted, model.OutcomeSuccess),
	}}
	c := NewCollector(st, nil)

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 2, snap.RoundsTotal)
	assert.Equal(t, 1, snap.RoundsBraked)
	assert.Equal(t, 40, snap.ProposalsScanned)
	assert.Equal(t, 2, snap.ProposalsEvaluated)
	assert.Equal(t, 3, snap.VotesCast)
	assert.Equal(t, 1, snap.VotesFailed)
	assert.Equal(t, 1, snap.VotesAlreadyCast)
	assert.InDelta(t, 0.25, snap.VoteFailRate, 1e-9)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollect_IncludesProviderHealth(t *testing.T) {
	pool := provider.NewPool([]provider.Endpoint{
		{URL: "https://rpc-a.example", Name: "a", Priority: 1},
		{URL: "https://rpc-b.example", Name: "b", Priority: 2},
	}, provider.DefaultPoolConfig())

	// Drive the preferred endpoint unhealthy.
	now := time.Now()
	a := pool.SelectCandidate(now)
	require.NotNil(t, a)
	for i := 0; i < 3; i++ {
		pool.RecordFailure(a, now, false)
	}

	c := NewCollector(&fakeStore{}, pool)
	snap, err := c.Collect(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 2, snap.TotalProviders)
	assert.Equal(t, 1, snap.HealthyProviders)
}

func TestCollect_StoreError(t *testing.T) {
	c := NewCollector(&fakeStore{err: errors.New("db down")}, nil)

	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list reports")
}

func TestCollect_EmptyWindow(t *testing.T) {
	c := NewCollector(&fakeStore{}, nil)

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.RoundsTotal)
	assert.Zero(t, snap.VoteFailRate)
}
