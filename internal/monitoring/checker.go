package monitoring

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/freight-quotes/internal/config"
)

// Checker runs one alert check after a batch of pipelines.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

// NewChecker creates a checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{collector: collector, alerter: alerter, cfg: cfg}
}

// Check collects, evaluates and sends. It returns the alerts triggered;
// collection and delivery failures are logged, not returned.
func (c *Checker) Check(ctx context.Context, failed map[string]error) []Alert {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	lookback := c.cfg.LookbackHours
	if lookback <= 0 {
		lookback = 24
	}
	snap, err := c.collector.Collect(ctx, lookback)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		snap = &MetricsSnapshot{LookbackHours: lookback}
	}

	alerts := c.alerter.Evaluate(snap, failed)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return nil
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return alerts
}
