// Package monitoring records scoring runs as Prometheus metrics and raises
// webhook alerts when recent runs look unhealthy.
package monitoring

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/risk-cli/internal/model"
)

const namespace = "risk"

// MetricsSnapshot is a view of the runs recorded within a lookback window.
type MetricsSnapshot struct {
	RunsTotal    int     `json:"runs_total"`
	RunsFailed   int     `json:"runs_failed"`
	FailureRate  float64 `json:"failure_rate"`
	HighRiskRuns int     `json:"high_risk_runs"`
	// HighRiskShare is the share of successful runs classified High.
	HighRiskShare float64 `json:"high_risk_share"`
	AvgComposite  float64 `json:"avg_composite"`
	RowsTotal     int     `json:"rows_total"`
	RowsSkipped   int     `json:"rows_skipped"`
	SkipRate      float64 `json:"skip_rate"`

	Unavailable map[model.MetricName]int `json:"unavailable,omitempty"`

	LookbackMinutes int       `json:"lookback_minutes"`
	CollectedAt     time.Time `json:"collected_at"`
}

type runEvent struct {
	at          time.Time
	failed      bool
	category    model.RiskCategory
	composite   float64
	rows        int
	skipped     int
	unavailable []model.MetricName
}

// Collector records runs into a Prometheus registry and keeps recent run
// outcomes for alerting.
type Collector struct {
	registry *prometheus.Registry

	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	composite   prometheus.Histogram
	skipped     prometheus.Counter
	unavailable *prometheus.CounterVec
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec

	mu        sync.Mutex
	events    []runEvent
	retention time.Duration
	now       func() time.Time
}

// NewCollector creates a Collector with its own registry. Run outcomes older
// than retention are dropped.
func NewCollector(retention time.Duration) *Collector {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Scoring runs by strategy, risk category, and outcome.",
		}, []string{"strategy", "category", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Scoring run duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"strategy"}),
		composite: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "composite_score",
			Help:      "Composite risk scores of successful runs.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_rows_total",
			Help:      "Input rows excluded as malformed.",
		}),
		unavailable: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metric_unavailable_total",
			Help:      "Runs in which a metric could not be computed.",
		}, []string{"metric"}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern, and status code.",
		}, []string{"method", "route", "status"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		retention: retention,
		now:       time.Now,
	}
}

// Registry returns the registry metrics are recorded in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// RecordRun records one pipeline run. report may be nil when err is set.
func (c *Collector) RecordRun(strategy model.Strategy, report *model.ScoreReport, elapsed time.Duration, err error) {
	ev := runEvent{at: c.now(), failed: err != nil || report == nil}
	if report != nil {
		if strategy == "" {
			strategy = report.Strategy
		}
		ev.category = report.RiskCategory
		ev.composite = report.CompositeScore
		ev.rows = report.Skipped.Total
		ev.skipped = report.Skipped.Count()
		for m := range report.Unavailable {
			ev.unavailable = append(ev.unavailable, m)
		}
	}

	outcome, category := "ok", string(ev.category)
	if ev.failed {
		outcome, category = "error", "none"
	}
	c.runs.WithLabelValues(string(strategy), category, outcome).Inc()
	c.duration.WithLabelValues(string(strategy)).Observe(elapsed.Seconds())
	if !ev.failed {
		c.composite.Observe(ev.composite)
	}
	c.skipped.Add(float64(ev.skipped))
	for _, m := range ev.unavailable {
		c.unavailable.WithLabelValues(string(m)).Inc()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	c.pruneLocked()
}

// ObserveRequest records one HTTP request.
func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.latency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (c *Collector) pruneLocked() {
	cutoff := c.now().Add(-c.retention)
	i := 0
	for i < len(c.events) && c.events[i].at.Before(cutoff) {
		i++
	}
	c.events = c.events[i:]
}

// Collect summarizes the runs recorded in the last lookback.
func (c *Collector) Collect(lookback time.Duration) *MetricsSnapshot {
	now := c.now()
	snap := &MetricsSnapshot{
		Unavailable:     make(map[model.MetricName]int),
		LookbackMinutes: int(lookback / time.Minute),
		CollectedAt:     now.UTC(),
	}
	cutoff := now.Add(-lookback)

	c.mu.Lock()
	defer c.mu.Unlock()

	var compositeSum float64
	for _, ev := range c.events {
		if ev.at.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		if ev.failed {
			snap.RunsFailed++
			continue
		}
		compositeSum += ev.composite
		if ev.category == model.RiskHigh {
			snap.HighRiskRuns++
		}
		snap.RowsTotal += ev.rows
		snap.RowsSkipped += ev.skipped
		for _, m := range ev.unavailable {
			snap.Unavailable[m]++
		}
	}

	if snap.RunsTotal > 0 {
		snap.FailureRate = float64(snap.RunsFailed) / float64(snap.RunsTotal)
	}
	if ok := snap.RunsTotal - snap.RunsFailed; ok > 0 {
		snap.AvgComposite = compositeSum / float64(ok)
		snap.HighRiskShare = float64(snap.HighRiskRuns) / float64(ok)
	}
	if snap.RowsTotal > 0 {
		snap.SkipRate = float64(snap.RowsSkipped) / float64(snap.RowsTotal)
	}
	return snap
}
