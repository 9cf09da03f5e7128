package monitoring

import (
	"fmt"
	"time"

	"github.com/quorumworks/govpilot/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertProviderOutage  AlertType = "provider_outage"
	AlertVoteFailureRate AlertType = "vote_failure_rate"
	AlertBrakeTripped    AlertType = "brake_tripped"
)

// Alert represents a single alert to be published.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds.
type Alerter struct {
	cfg config.AlertsConfig
}

// NewAlerter creates a new Alerter with the given alert config.
func NewAlerter(cfg config.AlertsConfig) *Alerter {
	return &Alerter{cfg: cfg}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Provider pool degradation.
	if snap.TotalProviders > 0 && snap.HealthyProviders < a.cfg.MinHealthyProviders {
		severity := "high"
		if snap.HealthyProviders == 0 {
			severity = "critical"
		}
		alerts = append(alerts, Alert{
			Type:     AlertProviderOutage,
			Severity: severity,
			Message: fmt.Sprintf(
				"%d of %d RPC providers healthy, minimum is %d",
				snap.HealthyProviders, snap.TotalProviders, a.cfg.MinHealthyProviders,
			),
			Details: map[string]any{
				"healthy": snap.HealthyProviders,
				"total":   snap.TotalProviders,
				"minimum": a.cfg.MinHealthyProviders,
			},
			Timestamp: now,
		})
	}

	// Vote failure rate, with a floor so one failed vote in an otherwise
	// quiet window does not page anyone.
	attempts := snap.VotesCast + snap.VotesFailed
	if attempts >= 5 && snap.VoteFailRate > a.cfg.MaxFailureRate {
		alerts = append(alerts, Alert{
			Type:     AlertVoteFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Vote failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d attempts in last %dh)",
				snap.VoteFailRate*100, a.cfg.MaxFailureRate*100,
				snap.VotesFailed, attempts, snap.LookbackHours,
			),
			Details: map[string]any{
				"fail_rate": snap.VoteFailRate,
				"threshold": a.cfg.MaxFailureRate,
				"failed":    snap.VotesFailed,
				"attempts":  attempts,
			},
			Timestamp: now,
		})
	}

	// Emergency brake activity.
	if snap.RoundsBraked > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertBrakeTripped,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Emergency brake tripped in %d of %d rounds in last %dh",
				snap.RoundsBraked, snap.RoundsTotal, snap.LookbackHours,
			),
			Details: map[string]any{
				"braked_rounds": snap.RoundsBraked,
				"total_rounds":  snap.RoundsTotal,
			},
			Timestamp: now,
		})
	}

	return alerts
}
