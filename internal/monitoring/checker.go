package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/quorumworks/govpilot/internal/config"
)

// Checker runs periodic alert checks in the background.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	publisher *Publisher
	cfg       config.AlertsConfig
}

// NewChecker creates a background alert checker. publisher may be nil, in
// which case alerts are only logged.
func NewChecker(collector *Collector, alerter *Alerter, publisher *Publisher, cfg config.AlertsConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	lookback := c.cfg.LookbackHours
	if lookback <= 0 {
		lookback = 24
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", lookback),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log, lookback)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger, lookback int) {
	snap, err := c.collector.Collect(ctx, lookback)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		return
	}
	for _, a := range alerts {
		log.Warn("monitoring: threshold breached",
			zap.String("type", string(a.Type)),
			zap.String("severity", a.Severity),
			zap.String("message", a.Message),
		)
	}
	c.publisher.Publish(alerts)
}
