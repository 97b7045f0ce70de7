package scorer

import (
	"github.com/sells-group/risk-cli/internal/config"
	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/schema"
)

// ratio is one named per-row quantity of a profile metric.
type ratio struct {
	name string
	cols []model.Column
	fn   func(p model.ProfileRecord, fb fallbacks) float64
}

// profileMetric scores profile rows on one metric's ratios, pooled into a
// single min-max window.
type profileMetric struct {
	metric  model.MetricName
	ratios  []ratio
	extra   []model.Column
	details func(records []model.ProfileRecord) map[string]float64
}

// columns returns every column the metric reads, in ratio order.
func (m profileMetric) columns() []model.Column {
	seen := make(map[model.Column]bool)
	var out []model.Column
	for _, r := range m.ratios {
		for _, c := range r.cols {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

func (m profileMetric) score(set *model.ProfileSet, cfg config.ScoringConfig) (model.MetricResult, error) {
	if missing := set.Columns.Missing(m.columns()...); len(missing) > 0 {
		return model.MetricResult{}, &schema.MissingColumnError{Metric: m.metric, Columns: missing}
	}
	records := usable(set.Records, m.columns())
	if len(records) == 0 {
		return model.MetricResult{}, ErrNoRecords
	}

	fb := fallbacks{}
	values := make([][]float64, len(m.ratios))
	for k, r := range m.ratios {
		values[k] = make([]float64, len(records))
		for i, rec := range records {
			values[k][i] = r.fn(rec, fb)
		}
	}

	w := pooledWindow(values...)
	if w.Degenerate() {
		fb[FallbackDegenerateWindow]++
	}

	res := model.MetricResult{
		Metric:    m.metric,
		SubScores: make(map[string]float64, len(m.ratios)),
		Windows:   make(map[string]model.Window, len(m.ratios)),
		Rows:      len(records),
	}

	normalized := make([]float64, 0, len(m.ratios)*len(records))
	for k, r := range m.ratios {
		res.SubScores[r.name] = mean(values[k])
		res.Windows[r.name] = w
		for _, v := range values[k] {
			normalized = append(normalized, normalize(v, w, cfg.DegenerateScore/10))
		}
	}
	res.FinalScore = clamp(mean(normalized)*10, 0, 10)

	if m.details != nil && set.Columns.Has(m.extra...) {
		if detail := usable(records, m.extra); len(detail) > 0 {
			res.Details = m.details(detail)
		}
	}
	res.Fallbacks = fb.result()
	logFallbacks(m.metric, res.Fallbacks)
	return res, nil
}

// usable returns the records whose cells in cols all decoded.
func usable(records []model.ProfileRecord, cols []model.Column) []model.ProfileRecord {
	out := make([]model.ProfileRecord, 0, len(records))
	for _, rec := range records {
		if rec.Usable(cols...) {
			out = append(out, rec)
		}
	}
	return out
}

var incomeResilience = profileMetric{
	metric: model.MetricIncomeResilience,
	ratios: []ratio{
		{
			name: "Income Consistency",
			cols: []model.Column{model.ColAnnualIncome, model.ColTotalIncome},
			fn: func(p model.ProfileRecord, fb fallbacks) float64 {
				return fb.div("Income Consistency", p.MonthlySalary(), p.TotalIncome) * 100
			},
		},
		{
			name: "Financial Independence",
			cols: []model.Column{model.ColTotalIncome, model.ColFinancialObligations},
			fn: func(p model.ProfileRecord, fb fallbacks) float64 {
				return fb.div("Financial Independence", p.TotalIncome, p.FinancialObligations)
			},
		},
		{
			name: "Income Diversification",
			cols: []model.Column{model.ColIncomeSourceMain, model.ColIncomeSourceSecondary, model.ColTotalIncome},
			fn: func(p model.ProfileRecord, fb fallbacks) float64 {
				if p.TotalIncome == 0 {
					fb["Income Diversification"]++
					return 0
				}
				return 1 - max(p.IncomeSourceMain, p.IncomeSourceSecondary)/p.TotalIncome
			},
		},
	},
	extra: []model.Column{model.ColMonthlySalaryCredited},
	details: func(records []model.ProfileRecord) map[string]float64 {
		avg := make([]float64, len(records))
		credited := make([]float64, len(records))
		for i, p := range records {
			avg[i] = p.TotalIncome / 12
			credited[i] = p.MonthlySalary() * p.MonthlySalaryCredited
		}
		return map[string]float64{
			"Average Salary Amount": mean(avg),
			"Total Salary Credited": mean(credited),
		}
	},
}

var kycStability = profileMetric{
	metric: model.MetricKYCStability,
	ratios: []ratio{
		{
			name: "Location Diversification",
			cols: []model.Column{model.ColUniqueLocations, model.ColTotalLocations},
			fn: func(p model.ProfileRecord, fb fallbacks) float64 {
				return fb.div("Location Diversification", p.UniqueLocations, p.TotalLocations)
			},
		},
		{
			name: "Utility Payment",
			cols: []model.Column{model.ColBillsPaidOnTime, model.ColTotalBillsDue},
			fn: func(p model.ProfileRecord, fb fallbacks) float64 {
				return fb.div("Utility Payment", p.BillsPaidOnTime, p.TotalBillsDue)
			},
		},
		{
			name: "Active Account Ratio",
			cols: []model.Column{model.ColActiveAccounts, model.ColTotalAccounts},
			fn: func(p model.ProfileRecord, fb fallbacks) float64 {
				return fb.div("Active Account Ratio", p.ActiveAccounts, p.TotalAccounts)
			},
		},
		{
			name: "Address Stability",
			cols: []model.Column{model.ColAddressStability},
			fn: func(p model.ProfileRecord, _ fallbacks) float64 {
				return p.AddressStability
			},
		},
	},
}

var spendingPropensity = profileMetric{
	metric: model.MetricSpendingPropensity,
	ratios: []ratio{
		{
			name: "Monthly Savings Rate",
			cols: []model.Column{model.ColAnnualIncome, model.ColMonthlyExpenses},
			fn: func(p model.ProfileRecord, fb fallbacks) float64 {
				salary := p.MonthlySalary()
				return fb.div("Monthly Savings Rate", salary-p.MonthlyExpenses, salary) * 100
			},
		},
		{
			// No per-user expense history exists in a profile row.
			name: "Expense Stability",
			fn: func(model.ProfileRecord, fallbacks) float64 {
				return 0
			},
		},
		{
			name: "Transaction Frequency",
			cols: []model.Column{model.ColTransactionCount, model.ColAnnualIncome},
			fn: func(p model.ProfileRecord, fb fallbacks) float64 {
				return fb.div("Transaction Frequency", p.TransactionCount, p.MonthlySalary())
			},
		},
		{
			name: "Expense Diversification",
			cols: []model.Column{model.ColHousingExpense, model.ColGroceriesExpense, model.ColMonthlyExpenses},
			fn: func(p model.ProfileRecord, fb fallbacks) float64 {
				if p.MonthlyExpenses == 0 {
					fb["Expense Diversification"]++
					return 0
				}
				return 1 - max(p.HousingExpense, p.GroceriesExpense)/p.MonthlyExpenses
			},
		},
		{
			name: "Average Transaction Size",
			cols: []model.Column{model.ColTotalExpenses, model.ColTransactionCount},
			fn: func(p model.ProfileRecord, fb fallbacks) float64 {
				return fb.div("Average Transaction Size", p.TotalExpenses, p.TransactionCount)
			},
		},
	},
}

var riskVigilance = profileMetric{
	metric: model.MetricRiskVigilance,
	ratios: []ratio{
		{
			name: "Debt-to-Income",
			cols: []model.Column{model.ColMonthlyDebtPayment, model.ColAnnualIncome},
			fn: func(p model.ProfileRecord, fb fallbacks) float64 {
				return fb.div("Debt-to-Income", p.MonthlyDebtPayment, p.MonthlySalary())
			},
		},
		{
			name: "Loan Dependency",
			cols: []model.Column{model.ColOutstandingLoan, model.ColAnnualIncome},
			fn: func(p model.ProfileRecord, fb fallbacks) float64 {
				return fb.div("Loan Dependency", p.OutstandingLoan, p.AnnualIncome)
			},
		},
	},
}

// IncomeResilience scores profile rows on their income ratios.
func IncomeResilience(set *model.ProfileSet, cfg config.ScoringConfig) (model.MetricResult, error) {
	return incomeResilience.score(set, cfg)
}

// KYCStability scores profile rows on identity and payment stability.
func KYCStability(set *model.ProfileSet, cfg config.ScoringConfig) (model.MetricResult, error) {
	return kycStability.score(set, cfg)
}

// SpendingPropensity scores profile rows on savings and spending patterns.
func SpendingPropensity(set *model.ProfileSet, cfg config.ScoringConfig) (model.MetricResult, error) {
	return spendingPropensity.score(set, cfg)
}

// RiskVigilance scores profile rows on debt load.
func RiskVigilance(set *model.ProfileSet, cfg config.ScoringConfig) (model.MetricResult, error) {
	return riskVigilance.score(set, cfg)
}

var profileMetrics = []profileMetric{incomeResilience, kycStability, spendingPropensity, riskVigilance}

// ProfileColumnsFor returns the columns the profile calculator for m reads.
func ProfileColumnsFor(m model.MetricName) []model.Column {
	for _, pm := range profileMetrics {
		if pm.metric == m {
			return pm.columns()
		}
	}
	return nil
}
