package model

import (
	"time"
)

// VoteOutcome is the result of a single vote attempt by one identity.
type VoteOutcome string

const (
	OutcomeSuccess      VoteOutcome = "success"
	OutcomeAlreadyVoted VoteOutcome = "already_voted"
	OutcomeFailed       VoteOutcome = "failed"
)

// VoteRecord captures one vote attempt (one proposal, one identity).
type VoteRecord struct {
	ProposalID    string      `json:"proposal_id"`
	IdentityIndex int         `json:"identity_index"`
	Outcome       VoteOutcome `json:"outcome"`
	TxRef         string      `json:"tx_ref,omitempty"`       // present on success
	ErrorDetail   string      `json:"error_detail,omitempty"` // present on failed
}

// ProposalOutcome aggregates the per-identity records for one proposal.
type ProposalOutcome struct {
	ProposalID string       `json:"proposal_id"`
	Decision   VoteDecision `json:"decision"`
	Skipped    bool         `json:"skipped"`
	SkipReason string       `json:"skip_reason,omitempty"`
	Records    []VoteRecord `json:"records,omitempty"`
}

// RunReport is the structured result of one complete voting round. The round
// always returns a report, even on partial failure; per-item outcomes are the
// only place partial failure is visible.
type RunReport struct {
	ID                 string            `json:"id"`
	StartedAt          time.Time         `json:"started_at"`
	FinishedAt         time.Time         `json:"finished_at"`
	Policy             string            `json:"policy"`
	ProposalsScanned   int               `json:"proposals_scanned"`
	ProposalsEvaluated int               `json:"proposals_evaluated"`
	Proposals          []ProposalOutcome `json:"proposals"`
	VotesCast          int               `json:"votes_cast"`
	BrakeTripped       bool              `json:"brake_tripped,omitempty"`
}

// AddOutcome appends a proposal outcome and folds its successes into the
// round vote total.
func (r *RunReport) AddOutcome(o ProposalOutcome) {
	r.Proposals = append(r.Proposals, o)
	for _, rec := range o.Records {
		if rec.Outcome == OutcomeSuccess {
			r.VotesCast++
		}
	}
}

// Duration returns the wall-clock span of the round.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
