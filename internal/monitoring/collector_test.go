package monitoring

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/risk-cli/internal/model"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestCollector() (*Collector, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)}
	c := NewCollector(2 * time.Hour)
	c.now = clock.now
	return c, clock
}

func report(category model.RiskCategory, composite float64, rows, skipped int, unavailable ...model.MetricName) *model.ScoreReport {
	r := &model.ScoreReport{
		Strategy:       model.StrategyTimeSeries,
		RiskCategory:   category,
		CompositeScore: composite,
		Skipped:        model.SkipReport{Total: rows},
		Unavailable:    make(map[model.MetricName]string),
	}
	for i := 0; i < skipped; i++ {
		r.Skipped.Skipped = append(r.Skipped.Skipped, model.SkippedRecord{Row: i + 2})
	}
	for _, m := range unavailable {
		r.Unavailable[m] = "missing column"
	}
	return r
}

func TestCollectorRecordRun(t *testing.T) {
	t.Parallel()

	c, _ := newTestCollector()
	c.RecordRun("", report(model.RiskHigh, 8, 10, 2, model.MetricKYCStability), 150*time.Millisecond, nil)
	c.RecordRun(model.StrategyProfile, report(model.RiskLow, 2, 10, 0), 50*time.Millisecond, nil)
	c.RecordRun(model.StrategyProfile, nil, time.Millisecond, errors.New("insufficient metrics"))

	assert.InDelta(t, 1, testutil.ToFloat64(c.runs.WithLabelValues("timeseries", "High", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.runs.WithLabelValues("profile", "Low", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.runs.WithLabelValues("profile", "none", "error")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(c.skipped), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.unavailable.WithLabelValues("kyc_stability")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(c.duration))
}

func TestCollectorCollect(t *testing.T) {
	t.Parallel()

	c, clock := newTestCollector()
	c.RecordRun("", report(model.RiskHigh, 8, 10, 1, model.MetricKYCStability), time.Second, nil)

	clock.t = clock.t.Add(30 * time.Minute)
	c.RecordRun("", report(model.RiskLow, 2, 30, 3, model.MetricKYCStability), time.Second, nil)
	c.RecordRun("", nil, time.Second, errors.New("boom"))
	c.RecordRun("", report(model.RiskMedium, 5, 0, 0), time.Second, nil)

	snap := c.Collect(time.Hour)
	assert.Equal(t, 4, snap.RunsTotal)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.InDelta(t, 0.25, snap.FailureRate, 1e-9)
	assert.Equal(t, 1, snap.HighRiskRuns)
	assert.InDelta(t, 1.0/3, snap.HighRiskShare, 1e-9)
	assert.InDelta(t, 5, snap.AvgComposite, 1e-9)
	assert.Equal(t, 40, snap.RowsTotal)
	assert.Equal(t, 4, snap.RowsSkipped)
	assert.InDelta(t, 0.1, snap.SkipRate, 1e-9)
	assert.Equal(t, 2, snap.Unavailable[model.MetricKYCStability])
	assert.Equal(t, 60, snap.LookbackMinutes)

	// Only the last three runs fall inside a 20 minute window.
	snap = c.Collect(20 * time.Minute)
	assert.Equal(t, 3, snap.RunsTotal)
}

func TestCollectorRetention(t *testing.T) {
	t.Parallel()

	c, clock := newTestCollector()
	c.RecordRun("", report(model.RiskLow, 1, 1, 0), time.Second, nil)
	clock.t = clock.t.Add(3 * time.Hour)
	c.RecordRun("", report(model.RiskLow, 1, 1, 0), time.Second, nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Len(t, c.events, 1)
}

func TestCollectorEmptySnapshot(t *testing.T) {
	t.Parallel()

	c, _ := newTestCollector()
	snap := c.Collect(time.Hour)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.FailureRate)
	assert.Zero(t, snap.SkipRate)
}

func TestCollectorHandler(t *testing.T) {
	t.Parallel()

	c, _ := newTestCollector()
	c.RecordRun("", report(model.RiskMedium, 5, 4, 1), time.Second, nil)
	c.ObserveRequest("POST", "/v1/score", 200, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `risk_runs_total{category="Medium",outcome="ok",strategy="timeseries"} 1`)
	assert.Contains(t, string(body), `risk_http_requests_total{method="POST",route="/v1/score",status="200"} 1`)
	assert.Contains(t, string(body), "risk_skipped_rows_total 1")
}
