package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/config"
)

// Checker periodically evaluates recent runs and sends alerts.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{collector: collector, alerter: alerter, cfg: cfg}
}

// Run checks on every interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("monitoring: starting alert checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_minutes", c.cfg.LookbackMinutes),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("monitoring: alert checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check runs one evaluation and returns the number of alerts delivered.
func (c *Checker) Check(ctx context.Context) int {
	lookback := time.Duration(c.cfg.LookbackMinutes) * time.Minute
	if lookback <= 0 {
		lookback = time.Hour
	}

	alerts := c.alerter.Evaluate(c.collector.Collect(lookback))
	if len(alerts) == 0 {
		zap.L().Debug("monitoring: no alerts triggered")
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	zap.L().Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return sent
}
