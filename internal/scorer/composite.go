package scorer

import (
	"github.com/sells-group/risk-cli/internal/config"
	"github.com/sells-group/risk-cli/internal/model"
)

// Composite returns the unweighted mean of the available metric scores.
// Absent metrics are excluded, not zero-filled.
func Composite(scores map[model.MetricName]float64, unavailable map[model.MetricName]string) (float64, error) {
	if len(scores) == 0 {
		return 0, &InsufficientMetricsError{Unavailable: unavailable}
	}
	// Fixed order keeps the float sum identical across runs.
	var (
		total float64
		n     int
	)
	for _, m := range model.AllMetrics {
		s, ok := scores[m]
		if !ok {
			continue
		}
		total += s
		n++
	}
	if n == 0 {
		return 0, &InsufficientMetricsError{Unavailable: unavailable}
	}
	return total / float64(n), nil
}

// Classify maps a composite score onto a risk category. Lower bounds are
// inclusive.
func Classify(score float64, cfg config.ScoringConfig) model.RiskCategory {
	switch {
	case score >= cfg.HighThreshold:
		return model.RiskHigh
	case score >= cfg.MediumThreshold:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

var advice = map[model.RiskCategory]model.Advice{
	model.RiskHigh: {
		Summary: "High risk: act now to lower exposure.",
		Reasons: []string{
			"Debt payments take a large share of income.",
			"Heavy reliance on loans or credit.",
		},
		Recommendations: []string{
			"Pay down outstanding debt to shrink liabilities.",
			"Build an emergency fund so new borrowing is not needed.",
			"Bring the debt-to-income ratio down before taking on more credit.",
		},
		References: []string{
			"https://www.consumerfinance.gov/consumer-tools/debt/",
			"https://openknowledge.worldbank.org/handle/10986/34616",
		},
	},
	model.RiskMedium: {
		Summary: "Medium risk: managed, with room to improve.",
		Reasons: []string{
			"Some dependence on credit and loans.",
			"Income or expenses vary from month to month.",
		},
		Recommendations: []string{
			"Stabilize income by adding a second source.",
			"Cap large discretionary expenses and save a fixed amount monthly.",
			"Keep bill payments on time.",
		},
		References: []string{
			"https://www.federalreserve.gov/publications/financial-stability-report.htm",
			"https://www.fdic.gov/resources/financial-education/",
		},
	},
	model.RiskLow: {
		Summary: "Low risk: finances are well managed.",
		Reasons: []string{
			"Income is consistent and debt is low.",
			"Bills are paid on time.",
		},
		Recommendations: []string{
			"Keep current habits to stay low risk.",
			"Diversify income and investments for extra resilience.",
		},
		References: []string{
			"https://www.oecd.org/finance/financial-education/",
			"https://www.investopedia.com/terms/d/diversification.asp",
		},
	},
}

// Advise returns the explanation and next steps for a category.
func Advise(c model.RiskCategory) model.Advice {
	a, ok := advice[c]
	if !ok {
		return model.Advice{}
	}
	// Copy slices so callers cannot mutate the shared table.
	return model.Advice{
		Summary:         a.Summary,
		Reasons:         append([]string(nil), a.Reasons...),
		Recommendations: append([]string(nil), a.Recommendations...),
		References:      append([]string(nil), a.References...),
	}
}
