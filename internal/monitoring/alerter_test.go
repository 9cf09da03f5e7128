package monitoring

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumworks/govpilot/internal/config"
)

func alertCfg() config.AlertsConfig {
	return config.AlertsConfig{
		Enabled:             true,
		Topic:               "govpilot.alerts",
		MinHealthyProviders: 1,
		MaxFailureRate:      0.5,
	}
}

func TestEvaluate_NoAlertsWhenHealthy(t *testing.T) {
	a := NewAlerter(alertCfg())

	snap := &MetricsSnapshot{
		HealthyProviders: 2,
		TotalProviders:   3,
		VotesCast:        10,
		VotesFailed:      1,
		VoteFailRate:     1.0 / 11.0,
	}
	assert.Empty(t, a.Evaluate(snap))
}

func TestEvaluate_ProviderOutage(t *testing.T) {
	a := NewAlerter(alertCfg())

	snap := &MetricsSnapshot{HealthyProviders: 0, TotalProviders: 3}
	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertProviderOutage, alerts[0].Type)
	assert.Equal(t, "critical", alerts[0].Severity)
}

func TestEvaluate_VoteFailureRate(t *testing.T) {
	a := NewAlerter(alertCfg())

	snap := &MetricsSnapshot{
		HealthyProviders: 2,
		TotalProviders:   2,
		VotesCast:        2,
		VotesFailed:      4,
		VoteFailRate:     4.0 / 6.0,
		LookbackHours:    24,
	}
	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertVoteFailureRate, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "66.7%")
}

func TestEvaluate_FailureRateFloorSuppressesSmallSamples(t *testing.T) {
	a := NewAlerter(alertCfg())

	// 1 of 2 attempts failed: over threshold but under the 5-attempt floor.
	snap := &MetricsSnapshot{
		HealthyProviders: 2,
		TotalProviders:   2,
		VotesCast:        1,
		VotesFailed:      1,
		VoteFailRate:     0.5,
	}
	assert.Empty(t, a.Evaluate(snap))
}

func TestEvaluate_BrakeTripped(t *testing.T) {
	a := NewAlerter(alertCfg())

	snap := &MetricsSnapshot{
		HealthyProviders: 2,
		TotalProviders:   2,
		RoundsTotal:      4,
		RoundsBraked:     1,
	}
	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertBrakeTripped, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
}

// fakeProducer records sent messages.
type fakeProducer struct {
	msgs   []*sarama.ProducerMessage
	err    error
	closed bool
}

func (p *fakeProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	if p.err != nil {
		return 0, 0, p.err
	}
	p.msgs = append(p.msgs, msg)
	return 0, int64(len(p.msgs)), nil
}

func (p *fakeProducer) Close() error {
	p.closed = true
	return nil
}

func TestPublish_SendsEachAlert(t *testing.T) {
	fp := &fakeProducer{}
	p := &Publisher{producer: fp, topic: "govpilot.alerts"}

	sent := p.Publish([]Alert{
		{Type: AlertProviderOutage, Severity: "critical"},
		{Type: AlertBrakeTripped, Severity: "medium"},
	})
	assert.Equal(t, 2, sent)
	require.Len(t, fp.msgs, 2)
	assert.Equal(t, "govpilot.alerts", fp.msgs[0].Topic)

	key, err := fp.msgs[0].Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, string(AlertProviderOutage), string(key))
}

func TestPublish_DeliveryFailureSkipped(t *testing.T) {
	fp := &fakeProducer{err: errors.New("broker unreachable")}
	p := &Publisher{producer: fp, topic: "govpilot.alerts"}

	sent := p.Publish([]Alert{{Type: AlertProviderOutage}})
	assert.Equal(t, 0, sent)
}

func TestPublish_NilPublisher(t *testing.T) {
	var p *Publisher
	assert.Equal(t, 0, p.Publish([]Alert{{Type: AlertProviderOutage}}))
	assert.NoError(t, p.Close())
}

func TestNewPublisher_DisabledReturnsNil(t *testing.T) {
	cfg := alertCfg()
	cfg.Enabled = false

	p, err := NewPublisher(cfg)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPublisherClose(t *testing.T) {
	fp := &fakeProducer{}
	p := &Publisher{producer: fp, topic: "t"}
	require.NoError(t, p.Close())
	assert.True(t, fp.closed)
}
