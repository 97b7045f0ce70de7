package scorer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/risk-cli/internal/aggregate"
	"github.com/sells-group/risk-cli/internal/config"
	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/schema"
)

// Calculator computes one metric from a strategy's input.
type Calculator[T any] func(in T, cfg config.ScoringConfig) (model.MetricResult, error)

// ProfileCalculators score a profile dataset.
var ProfileCalculators = map[model.MetricName]Calculator[*model.ProfileSet]{
	model.MetricIncomeResilience:   IncomeResilience,
	model.MetricKYCStability:       KYCStability,
	model.MetricSpendingPropensity: SpendingPropensity,
	model.MetricRiskVigilance:      RiskVigilance,
}

// SeriesCalculators score a monthly aggregate series.
var SeriesCalculators = map[model.MetricName]Calculator[[]model.MonthlyAggregate]{
	model.MetricIncomeResilience:   SeriesIncomeResilience,
	model.MetricKYCStability:       SeriesKYCStability,
	model.MetricSpendingPropensity: SeriesSpendingPropensity,
	model.MetricRiskVigilance:      SeriesRiskVigilance,
}

// RunContext carries the per-invocation inputs of a run. Nothing outlives
// the call.
type RunContext struct {
	// RunID is generated when empty.
	RunID  string
	UserID string

	// Strategy forces a scoring mode; empty uses the configured mode, then
	// header detection.
	Strategy model.Strategy

	// Window and Through apply to time-series datasets only.
	Window  aggregate.Window
	Through model.YearMonth
}

// Outcome is the per-metric result set of one fan-out.
type Outcome struct {
	Metrics     map[model.MetricName]model.MetricResult
	Unavailable map[model.MetricName]string
}

// Pipeline turns a raw table into a ScoreReport.
type Pipeline struct {
	cfg     config.ScoringConfig
	decoder *schema.Decoder
	agg     *aggregate.Aggregator
	now     func() time.Time
}

// New creates a Pipeline after validating cfg. A nil decoder uses defaults.
func New(cfg config.ScoringConfig, decoder *schema.Decoder) (*Pipeline, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if decoder == nil {
		decoder = schema.NewDecoder(schema.Options{})
	}
	return &Pipeline{
		cfg:     cfg,
		decoder: decoder,
		agg:     aggregate.New(decoder),
		now:     time.Now,
	}, nil
}

// Strategy resolves the scoring mode for a table.
func (p *Pipeline) Strategy(rc RunContext, t *schema.Table) (model.Strategy, error) {
	if rc.Strategy != "" {
		return rc.Strategy, nil
	}
	if p.cfg.Mode != "" && p.cfg.Mode != "auto" {
		return model.Strategy(p.cfg.Mode), nil
	}
	kind := schema.DetectKind(t)
	if kind == schema.KindUnknown {
		return "", eris.Wrap(&schema.MissingColumnError{Columns: model.TransactionColumns},
			"scorer: dataset is neither a profile table nor a transaction list")
	}
	return kind.Strategy(), nil
}

// Run scores t and returns a fresh report. Metrics that cannot be computed
// are listed in ScoreReport.Unavailable; only when none can be computed does
// Run fail, with *InsufficientMetricsError.
func (p *Pipeline) Run(ctx context.Context, rc RunContext, t *schema.Table) (*model.ScoreReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "scorer: run")
	}

	strategy, err := p.Strategy(rc, t)
	if err != nil {
		return nil, err
	}

	report := &model.ScoreReport{
		RunID:    rc.RunID,
		UserID:   rc.UserID,
		Strategy: strategy,
	}
	if report.RunID == "" {
		report.RunID = uuid.NewString()
	}

	var out Outcome
	switch strategy {
	case model.StrategyProfile:
		set, skipped, err := p.decoder.Profiles(t)
		if err != nil {
			return nil, eris.Wrap(err, "scorer: decode profiles")
		}
		report.Skipped = skipped
		out = ScoreProfiles(set, p.cfg)

	case model.StrategyTimeSeries:
		raws, err := p.decoder.RawTransactions(t)
		if err != nil {
			return nil, eris.Wrap(err, "scorer: read transactions")
		}
		res, err := p.agg.AggregateRows(raws, rc.Window)
		if err != nil {
			return nil, eris.Wrap(err, "scorer: aggregate")
		}
		report.Skipped = res.Skipped
		report.Months = aggregate.Through(res.Months, rc.Through)
		out = ScoreMonths(report.Months, p.cfg)

	default:
		return nil, eris.Errorf("scorer: unknown strategy %q", strategy)
	}

	report.Metrics = out.Metrics
	report.Unavailable = out.Unavailable
	report.PerMetric = make(map[model.MetricName]float64, len(out.Metrics))
	for name, m := range out.Metrics {
		report.PerMetric[name] = m.FinalScore
	}

	composite, err := Composite(report.PerMetric, report.Unavailable)
	if err != nil {
		zap.L().Warn("scorer: no metric could be computed",
			zap.String("run_id", report.RunID),
			zap.String("strategy", string(strategy)),
			zap.Error(err),
		)
		return nil, err
	}
	report.CompositeScore = composite
	report.RiskCategory = Classify(composite, p.cfg)
	report.Advice = Advise(report.RiskCategory)
	report.GeneratedAt = p.now().UTC()

	zap.L().Info("scorer: run complete",
		zap.String("run_id", report.RunID),
		zap.String("user_id", report.UserID),
		zap.String("strategy", string(strategy)),
		zap.Int("metrics", len(report.PerMetric)),
		zap.Int("skipped", report.Skipped.Count()),
		zap.Float64("composite", composite),
		zap.String("category", string(report.RiskCategory)),
	)
	return report, nil
}

// ScoreProfiles runs every profile calculator in parallel.
func ScoreProfiles(set *model.ProfileSet, cfg config.ScoringConfig) Outcome {
	return fanOut(set, ProfileCalculators, cfg)
}

// ScoreMonths runs every time-series calculator in parallel.
func ScoreMonths(months []model.MonthlyAggregate, cfg config.ScoringConfig) Outcome {
	return fanOut(months, SeriesCalculators, cfg)
}

type calcResult struct {
	res model.MetricResult
	err error
}

// fanOut runs each calculator on in concurrently. A calculator's failure is
// recorded against its metric and never cancels the others.
func fanOut[T any](in T, calcs map[model.MetricName]Calculator[T], cfg config.ScoringConfig) Outcome {
	results := make([]calcResult, len(model.AllMetrics))

	var g errgroup.Group
	for i, name := range model.AllMetrics {
		calc, ok := calcs[name]
		if !ok {
			results[i].err = eris.Errorf("scorer: no calculator for %s", name)
			continue
		}
		g.Go(func() error {
			res, err := calc(in, cfg)
			results[i] = calcResult{res: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	out := Outcome{
		Metrics:     make(map[model.MetricName]model.MetricResult),
		Unavailable: make(map[model.MetricName]string),
	}
	for i, name := range model.AllMetrics {
		r := results[i]
		if r.err != nil {
			out.Unavailable[name] = r.err.Error()
			zap.L().Info("scorer: metric unavailable",
				zap.String("metric", string(name)),
				zap.Error(r.err),
			)
			continue
		}
		out.Metrics[name] = r.res
	}
	return out
}
