package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertHighRiskShare  AlertType = "high_risk_share"
	AlertSkipRate       AlertType = "skip_rate"
)

// Alert is a single webhook notification.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter checks snapshots against the configured thresholds and posts
// alerts to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates an Alerter.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate returns the alerts snap triggers. Rate-based alerts need at least
// MinRuns runs in the window.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	if snap.RunsTotal < a.cfg.MinRuns {
		return nil
	}
	var alerts []Alert

	if a.cfg.FailureRateThreshold > 0 && snap.FailureRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf("Scoring failure rate %.1f%% exceeds %.1f%% (%d of %d runs in last %dm)",
				snap.FailureRate*100, a.cfg.FailureRateThreshold*100,
				snap.RunsFailed, snap.RunsTotal, snap.LookbackMinutes),
			Details: map[string]any{
				"failure_rate": snap.FailureRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"unavailable":  snap.Unavailable,
			},
		})
	}

	if a.cfg.HighRiskThreshold > 0 && snap.HighRiskShare > a.cfg.HighRiskThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertHighRiskShare,
			Severity: "medium",
			Message: fmt.Sprintf("%.1f%% of scored runs were High risk in last %dm (threshold %.1f%%)",
				snap.HighRiskShare*100, snap.LookbackMinutes, a.cfg.HighRiskThreshold*100),
			Details: map[string]any{
				"high_risk_runs": snap.HighRiskRuns,
				"avg_composite":  snap.AvgComposite,
			},
		})
	}

	if a.cfg.SkipRateThreshold > 0 && snap.SkipRate > a.cfg.SkipRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertSkipRate,
			Severity: "medium",
			Message: fmt.Sprintf("%d of %d input rows skipped as malformed in last %dm",
				snap.RowsSkipped, snap.RowsTotal, snap.LookbackMinutes),
			Details: map[string]any{
				"skip_rate": snap.SkipRate,
				"threshold": a.cfg.SkipRateThreshold,
			},
		})
	}

	for i := range alerts {
		alerts[i].Timestamp = snap.CollectedAt
	}
	return alerts
}

// SendAlerts posts each alert to the webhook and returns how many were
// delivered.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.post(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
