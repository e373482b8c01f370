package monitoring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/freight-quotes/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertCarrierErrorRate AlertType = "carrier_error_rate"
	AlertPipelineFailed   AlertType = "pipeline_failed"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Carrier   string         `json:"carrier"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds and
// sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *resty.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: resty.New().SetTimeout(10*time.Second).SetHeader("Content-Type", "application/json"),
	}
}

// Evaluate checks the snapshot against thresholds. failed names the
// pipelines that aborted in the run being reported. Alerts are ordered by
// carrier.
func (a *Alerter) Evaluate(snap *MetricsSnapshot, failed map[string]error) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	for carrier, err := range failed {
		alerts = append(alerts, Alert{
			Type:      AlertPipelineFailed,
			Severity:  "high",
			Carrier:   carrier,
			Message:   fmt.Sprintf("%s pipeline aborted: %v", carrier, err),
			Timestamp: now,
		})
	}

	minAttempts := a.cfg.MinAttempts
	if minAttempts <= 0 {
		minAttempts = 1
	}
	for carrier, s := range snap.Carriers {
		if s.Attempts < minAttempts || s.ErrorRate <= a.cfg.ErrorRateThreshold {
			continue
		}
		alerts = append(alerts, Alert{
			Type:     AlertCarrierErrorRate,
			Severity: "medium",
			Carrier:  carrier,
			Message: fmt.Sprintf(
				"%s error rate %.1f%% exceeds threshold %.1f%% (%d errors / %d attempts in last %dh)",
				carrier, s.ErrorRate*100, a.cfg.ErrorRateThreshold*100,
				s.Errors, s.Attempts, snap.LookbackHours,
			),
			Details: map[string]any{
				"error_rate": s.ErrorRate,
				"threshold":  a.cfg.ErrorRateThreshold,
				"errors":     s.Errors,
				"attempts":   s.Attempts,
				"top_code":   s.TopCode(),
			},
			Timestamp: now,
		})
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Carrier != alerts[j].Carrier {
			return alerts[i].Carrier < alerts[j].Carrier
		}
		return alerts[i].Type > alerts[j].Type
	})
	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.String("carrier", alert.Carrier),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("carrier", alert.Carrier),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	resp, err := a.client.R().SetContext(ctx).SetBody(alert).Post(a.cfg.WebhookURL)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	if resp.IsError() {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode())
	}
	return nil
}
