package model

import (
	"strconv"
	"strings"
	"time"
)

// ZeroAddress is the null address used by the registry contract for unset
// proposer/asset slots.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// ProposalKind classifies what a governance proposal asks the treasury to do.
type ProposalKind int

const (
	KindInvest ProposalKind = iota
	KindDivest
	KindRebalance
)

func (k ProposalKind) String() string {
	switch k {
	case KindInvest:
		return "invest"
	case KindDivest:
		return "divest"
	case KindRebalance:
		return "rebalance"
	default:
		return "unknown"
	}
}

// ProposalState mirrors the registry contract's lifecycle enum.
type ProposalState int

const (
	StatePending ProposalState = iota
	StateActive
	StateSucceeded
	StateDefeated
	StateQueued
	StateExecuted
	StateCancelled
)

func (s ProposalState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateSucceeded:
		return "succeeded"
	case StateDefeated:
		return "defeated"
	case StateQueued:
		return "queued"
	case StateExecuted:
		return "executed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Proposal is the canonical, normalized view of one on-chain governance item.
// It is a read-only snapshot: each discovery pass re-fetches from source and
// nothing here is persisted between rounds.
type Proposal struct {
	ID           string        `json:"id"`
	Proposer     string        `json:"proposer"`
	Kind         ProposalKind  `json:"kind"`
	TargetAsset  string        `json:"target_asset"`
	Amount       string        `json:"amount"` // human-readable units, decimal string
	Description  string        `json:"description"`
	VotesFor     string        `json:"votes_for"`
	VotesAgainst string        `json:"votes_against"`
	StartTime    int64         `json:"start_time"` // unix seconds, 0 if unset
	EndTime      int64         `json:"end_time"`
	State        ProposalState `json:"state"`
	Executed     bool          `json:"executed"`
}

// Votable reports whether the proposal is currently eligible for a vote
// attempt: active, real proposer, and an open voting window.
func (p *Proposal) Votable(now time.Time) bool {
	if p.State != StateActive {
		return false
	}
	if p.Proposer == "" || strings.EqualFold(p.Proposer, ZeroAddress) {
		return false
	}
	if p.EndTime <= 0 {
		return false
	}
	return p.EndTime > now.Unix()
}

// AmountUnits parses the human-readable amount. Returns an error for
// malformed or negative values.
func (p *Proposal) AmountUnits() (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(p.Amount), 64)
	if err != nil {
		return 0, err
	}
	return v, nil
}

// SupportRatio returns votesFor / (votesFor + votesAgainst), or -1 when no
// votes have been tallied yet.
func (p *Proposal) SupportRatio() float64 {
	f, err1 := strconv.ParseFloat(strings.TrimSpace(p.VotesFor), 64)
	a, err2 := strconv.ParseFloat(strings.TrimSpace(p.VotesAgainst), 64)
	if err1 != nil || err2 != nil {
		return -1
	}
	total := f + a
	if total <= 0 {
		return -1
	}
	return f / total
}

// WindowElapsedFraction returns how far through the voting window now is,
// in [0,1]. Returns 0 when the window bounds are unusable.
func (p *Proposal) WindowElapsedFraction(now time.Time) float64 {
	if p.EndTime <= p.StartTime || p.StartTime <= 0 {
		return 0
	}
	frac := float64(now.Unix()-p.StartTime) / float64(p.EndTime-p.StartTime)
	if frac < 0 {
		return 0
	}
	if frac > 1 {
		return 1
	}
	return frac
}
