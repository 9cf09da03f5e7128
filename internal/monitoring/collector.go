package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/quorumworks/govpilot/internal/model"
	"github.com/quorumworks/govpilot/internal/provider"
	"github.com/quorumworks/govpilot/internal/store"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Round metrics (within lookback window).
	RoundsTotal        int `json:"rounds_total"`
	RoundsBraked       int `json:"rounds_braked"`
	ProposalsScanned   int `json:"proposals_scanned"`
	ProposalsEvaluated int `json:"proposals_evaluated"`

	// Vote metrics (within lookback window).
	VotesCast        int     `json:"votes_cast"`
	VotesFailed      int     `json:"votes_failed"`
	VotesAlreadyCast int     `json:"votes_already_cast"`
	VoteFailRate     float64 `json:"vote_fail_rate"`

	// Provider health at collection time.
	HealthyProviders int `json:"healthy_providers"`
	TotalProviders   int `json:"total_providers"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from stored reports and the provider pool.
type Collector struct {
	store store.Store
	pool  *provider.Pool
}

// NewCollector creates a new metrics collector. pool may be nil when no live
// pool is available (e.g. one-shot report inspection).
func NewCollector(st store.Store, pool *provider.Pool) *Collector {
	return &Collector{store: st, pool: pool}
}

// Collect gathers a snapshot of system metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	reports, err := c.store.ListReports(ctx, store.ReportFilter{
		Since: cutoff,
		Limit: 10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list reports")
	}

	snap.RoundsTotal = len(reports)
	for _, r := range reports {
		if r.BrakeTripped {
			snap.RoundsBraked++
		}
		snap.ProposalsScanned += r.ProposalsScanned
		snap.ProposalsEvaluated += r.ProposalsEvaluated
		for _, o := range r.Proposals {
			for _, rec := range o.Records {
				switch rec.Outcome {
				case model.OutcomeSuccess:
					snap.VotesCast++
				case model.OutcomeFailed:
					snap.VotesFailed++
				case model.OutcomeAlreadyVoted:
					snap.VotesAlreadyCast++
				}
			}
		}
	}

	attempts := snap.VotesCast + snap.VotesFailed
	if attempts > 0 {
		snap.VoteFailRate = float64(snap.VotesFailed) / float64(attempts)
	}

	if c.pool != nil {
		snap.HealthyProviders = c.pool.HealthyCount()
		snap.TotalProviders = len(c.pool.Snapshot())
	}

	return snap, nil
}
