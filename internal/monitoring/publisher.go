package monitoring

import (
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quorumworks/govpilot/internal/config"
)

// syncSender is the producer surface the publisher needs; satisfied by
// sarama.SyncProducer.
type syncSender interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

// Publisher delivers alerts to a Kafka topic.
type Publisher struct {
	producer syncSender
	topic    string
}

// NewPublisher connects a synchronous Kafka producer for the configured
// brokers. Returns nil when alerts are disabled.
func NewPublisher(cfg config.AlertsConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true
	sc.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: connect kafka producer")
	}
	return &Publisher{producer: producer, topic: cfg.Topic}, nil
}

// Publish sends each alert as one message keyed by alert type. Returns the
// number of alerts successfully published; delivery failures are logged and
// skipped.
func (p *Publisher) Publish(alerts []Alert) int {
	if p == nil || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		payload, err := json.Marshal(alert)
		if err != nil {
			zap.L().Error("monitoring: marshal alert", zap.Error(err))
			continue
		}

		partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(alert.Type),
			Value: sarama.ByteEncoder(payload),
		})
		if err != nil {
			zap.L().Error("monitoring: publish alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert published",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
			zap.Int32("partition", partition),
			zap.Int64("offset", offset),
		)
		sent++
	}
	return sent
}

// Close shuts down the underlying producer.
func (p *Publisher) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return eris.Wrap(p.producer.Close(), "monitoring: close kafka producer")
}
