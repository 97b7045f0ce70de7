package scorer

import (
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/config"
	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/schema"
)

// Fallback keys specific to monthly scoring.
const (
	FallbackMinExpense = "min_expense_threshold"
	FallbackZeroIncome = "zero_income"
)

// Time-series sub-score names.
const (
	SeriesIncomeConsistency     = "Income Consistency"
	SeriesFinancialIndependence = "Financial Independence"
	SeriesIncomeDiversification = "Income Diversification"
	SeriesRiskAssessment        = "Risk Assessment"
	SeriesSavingsRate           = "Savings Rate"
	SeriesAvgTransactionSize    = "Avg Transaction Size"
	SeriesExpenseStability      = "Expense Stability"
	SeriesTransactionFrequency  = "Transaction Frequency"
)

// seriesColumn is one named per-month column.
type seriesColumn struct {
	name   string
	values []float64
}

// pooledSeries normalizes each month's mean across the pooled window of all
// columns and returns the mean of those normalized composites on 0-10.
func pooledSeries(metric model.MetricName, months int, cols []seriesColumn, fb fallbacks, cfg config.ScoringConfig) model.MetricResult {
	all := make([][]float64, len(cols))
	for i, c := range cols {
		all[i] = c.values
	}
	w := pooledWindow(all...)
	if w.Degenerate() {
		fb[FallbackDegenerateWindow]++
	}

	res := model.MetricResult{
		Metric:    metric,
		SubScores: make(map[string]float64, len(cols)),
		Windows:   make(map[string]model.Window, len(cols)),
		Rows:      months,
	}
	for _, c := range cols {
		res.SubScores[c.name] = mean(c.values)
		res.Windows[c.name] = w
	}

	composite := make([]float64, months)
	for i := range composite {
		var row float64
		for _, c := range cols {
			row += normalize(c.values[i], w, cfg.DegenerateScore/10)
		}
		composite[i] = row / float64(len(cols)) * 10
	}
	res.FinalScore = clamp(mean(composite), 0, 10)
	res.Fallbacks = fb.result()
	logFallbacks(metric, res.Fallbacks)
	return res
}

// SeriesIncomeResilience scores how evenly income arrives across months and
// how well it covers expenses.
func SeriesIncomeResilience(months []model.MonthlyAggregate, cfg config.ScoringConfig) (model.MetricResult, error) {
	if len(months) == 0 {
		return model.MetricResult{}, ErrNoRecords
	}

	fb := fallbacks{}
	income := make([]float64, len(months))
	for i, m := range months {
		income[i] = m.TotalIncome
	}
	total := sum(income)
	peak := maxOf(income)

	consistency := make([]float64, len(months))
	independence := make([]float64, len(months))
	diversification := make([]float64, len(months))
	for i, m := range months {
		expenses := m.TotalExpenses
		if expenses == 0 {
			expenses = cfg.MinExpenseThreshold
			fb[FallbackMinExpense]++
		}
		consistency[i] = fb.div(SeriesIncomeConsistency, m.TotalIncome, total) * 100
		independence[i] = math.Min(m.TotalIncome/expenses, cfg.IndependenceCap)
		if total == 0 {
			fb[SeriesIncomeDiversification]++
		} else {
			diversification[i] = 1 - peak/total
		}
	}

	return pooledSeries(model.MetricIncomeResilience, len(months), []seriesColumn{
		{SeriesIncomeConsistency, consistency},
		{SeriesFinancialIndependence, independence},
		{SeriesIncomeDiversification, diversification},
	}, fb, cfg), nil
}

// SeriesRiskVigilance scores monthly aggregates on the expense share of
// income and the savings rate.
func SeriesRiskVigilance(months []model.MonthlyAggregate, cfg config.ScoringConfig) (model.MetricResult, error) {
	if len(months) == 0 {
		return model.MetricResult{}, ErrNoRecords
	}

	fb := fallbacks{}
	risk := make([]float64, len(months))
	savings := make([]float64, len(months))
	for i, m := range months {
		if m.TotalIncome == 0 {
			fb[FallbackZeroIncome]++
			continue
		}
		risk[i] = math.Min(m.TotalExpenses/m.TotalIncome, 1)
		savings[i] = math.Max((m.TotalIncome-m.TotalExpenses)/m.TotalIncome, 0)
	}

	return pooledSeries(model.MetricRiskVigilance, len(months), []seriesColumn{
		{SeriesRiskAssessment, risk},
		{SeriesSavingsRate, savings},
	}, fb, cfg), nil
}

// SeriesSpendingPropensity scores monthly spending behavior. Each column is
// normalized on its own window; volatility counts against the score.
func SeriesSpendingPropensity(months []model.MonthlyAggregate, cfg config.ScoringConfig) (model.MetricResult, error) {
	if len(months) == 0 {
		return model.MetricResult{}, ErrNoRecords
	}

	fb := fallbacks{}
	size := make([]float64, len(months))
	expenses := make([]float64, len(months))
	freq := make([]float64, len(months))
	for i, m := range months {
		expenses[i] = m.TotalExpenses
		freq[i] = float64(m.ExpenseCount)
		size[i] = fb.div(SeriesAvgTransactionSize, m.TotalExpenses, float64(m.ExpenseCount))
	}
	stability := rollingStd(expenses, cfg.StabilityWindow)

	res := model.MetricResult{
		Metric: model.MetricSpendingPropensity,
		SubScores: map[string]float64{
			SeriesAvgTransactionSize:   mean(size),
			SeriesExpenseStability:     mean(stability),
			SeriesTransactionFrequency: mean(freq),
		},
		Windows: make(map[string]model.Window, 3),
		Rows:    len(months),
	}

	scaled := func(name string, xs []float64) []float64 {
		w := pooledWindow(xs)
		res.Windows[name] = w
		if w.Degenerate() {
			fb[FallbackDegenerateWindow]++
		}
		out := make([]float64, len(xs))
		for i, x := range xs {
			out[i] = normalize(x, w, cfg.DegenerateScore/10) * 10
		}
		return out
	}
	nSize := scaled(SeriesAvgTransactionSize, size)
	nStability := scaled(SeriesExpenseStability, stability)
	nFreq := scaled(SeriesTransactionFrequency, freq)

	composite := make([]float64, len(months))
	for i := range composite {
		composite[i] = (nSize[i] + (10 - nStability[i]) + nFreq[i]) / 3
	}
	res.FinalScore = clamp(mean(composite), 0, 10)
	res.Fallbacks = fb.result()
	logFallbacks(res.Metric, res.Fallbacks)
	return res, nil
}

// SeriesKYCStability always fails: identity signals are not derivable from
// transactions.
func SeriesKYCStability([]model.MonthlyAggregate, config.ScoringConfig) (model.MetricResult, error) {
	return model.MetricResult{}, &schema.MissingColumnError{
		Metric: model.MetricKYCStability,
		Columns: []model.Column{
			model.ColUniqueLocations, model.ColTotalLocations,
			model.ColBillsPaidOnTime, model.ColTotalBillsDue,
			model.ColActiveAccounts, model.ColTotalAccounts,
			model.ColAddressStability,
		},
	}
}

func logFallbacks(metric model.MetricName, fb map[string]int) {
	if len(fb) == 0 {
		return
	}
	zap.L().Debug("scorer: fallbacks applied",
		zap.String("metric", string(metric)),
		zap.Any("fallbacks", fb),
	)
}
