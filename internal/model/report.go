package model

import "time"

// MetricName identifies one of the four risk sub-metrics.
type MetricName string

const (
	MetricIncomeResilience   MetricName = "income_resilience"
	MetricKYCStability       MetricName = "kyc_stability"
	MetricSpendingPropensity MetricName = "spending_propensity"
	MetricRiskVigilance      MetricName = "risk_vigilance"
)

// AllMetrics lists the metrics in report order.
var AllMetrics = []MetricName{
	MetricIncomeResilience,
	MetricKYCStability,
	MetricSpendingPropensity,
	MetricRiskVigilance,
}

// Title returns the human-readable metric name.
func (m MetricName) Title() string {
	switch m {
	case MetricIncomeResilience:
		return "Income Resilience"
	case MetricKYCStability:
		return "KYC Stability"
	case MetricSpendingPropensity:
		return "Spending Propensity"
	case MetricRiskVigilance:
		return "Risk Vigilance"
	}
	return string(m)
}

// Strategy selects which family of calculators scores a dataset. The two
// strategies produce scores on the same 0-10 scale that are not comparable
// with each other.
type Strategy string

const (
	StrategyProfile    Strategy = "profile"
	StrategyTimeSeries Strategy = "timeseries"
)

// RiskCategory is the tier assigned to a composite score.
type RiskCategory string

const (
	RiskLow    RiskCategory = "Low"
	RiskMedium RiskCategory = "Medium"
	RiskHigh   RiskCategory = "High"
)

// Window is the [Min, Max] range used to rescale raw ratios.
type Window struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Degenerate reports whether the window has zero width.
func (w Window) Degenerate() bool {
	return w.Max == w.Min
}

// MetricResult is one calculator's output. SubScores hold the mean raw ratio
// per name before normalization; FinalScore is on a 0-10 scale.
type MetricResult struct {
	Metric     MetricName         `json:"metric" yaml:"metric"`
	SubScores  map[string]float64 `json:"sub_scores" yaml:"sub_scores"`
	Details    map[string]float64 `json:"details,omitempty" yaml:"details,omitempty"`
	Windows    map[string]Window  `json:"windows" yaml:"windows"`
	FinalScore float64            `json:"final_score" yaml:"final_score"`
	Rows       int                `json:"rows" yaml:"rows"`
	Fallbacks  map[string]int     `json:"fallbacks,omitempty" yaml:"fallbacks,omitempty"`
}

// SkippedRecord describes one malformed cell. Transaction rows holding one
// are excluded from aggregation; profile rows only from the metrics that
// read the cell.
type SkippedRecord struct {
	Row    int    `json:"row" yaml:"row"`
	Field  string `json:"field" yaml:"field"`
	Value  string `json:"value" yaml:"value"`
	Reason string `json:"reason" yaml:"reason"`
}

// SkipReport summarizes cells rejected during decoding or aggregation.
type SkipReport struct {
	Total   int             `json:"total" yaml:"total"`
	Skipped []SkippedRecord `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// Count returns the number of distinct rows with at least one skipped cell.
func (r SkipReport) Count() int {
	rows := make(map[int]struct{}, len(r.Skipped))
	for _, s := range r.Skipped {
		rows[s.Row] = struct{}{}
	}
	return len(rows)
}

// Advice holds the explanation and next steps shown with a risk category.
type Advice struct {
	Summary         string   `json:"summary" yaml:"summary"`
	Reasons         []string `json:"reasons" yaml:"reasons"`
	Recommendations []string `json:"recommendations" yaml:"recommendations"`
	References      []string `json:"references,omitempty" yaml:"references,omitempty"`
}

// ScoreReport is the result of one pipeline run.
type ScoreReport struct {
	RunID          string                      `json:"run_id" yaml:"run_id"`
	UserID         string                      `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Strategy       Strategy                    `json:"strategy" yaml:"strategy"`
	PerMetric      map[MetricName]float64      `json:"per_metric" yaml:"per_metric"`
	Metrics        map[MetricName]MetricResult `json:"metrics" yaml:"metrics"`
	Unavailable    map[MetricName]string       `json:"unavailable,omitempty" yaml:"unavailable,omitempty"`
	CompositeScore float64                     `json:"composite_score" yaml:"composite_score"`
	RiskCategory   RiskCategory                `json:"risk_category" yaml:"risk_category"`
	Advice         Advice                      `json:"advice" yaml:"advice"`
	Months         []MonthlyAggregate          `json:"months,omitempty" yaml:"months,omitempty"`
	Skipped        SkipReport                  `json:"skipped" yaml:"skipped"`
	GeneratedAt    time.Time                   `json:"generated_at" yaml:"generated_at"`
}
