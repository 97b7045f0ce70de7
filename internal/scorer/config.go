// Package scorer turns profile or monthly transaction data into four risk
// sub-metrics, a composite score, and a risk category.
package scorer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/risk-cli/internal/config"
	"github.com/sells-group/risk-cli/internal/model"
)

// DefaultScoringConfig returns a config.ScoringConfig with the standard
// thresholds and fallbacks.
func DefaultScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		Mode: "auto",

		// Category lower bounds.
		HighThreshold:   7,
		MediumThreshold: 4,

		// Time-series fallbacks.
		MinExpenseThreshold: 1,
		IndependenceCap:     10,
		StabilityWindow:     3,

		DegenerateScore: 5,
	}
}

// ValidateConfig checks that a ScoringConfig is internally consistent.
func ValidateConfig(c config.ScoringConfig) error {
	var errs []string

	switch c.Mode {
	case "", "auto", string(model.StrategyProfile), string(model.StrategyTimeSeries):
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q", c.Mode))
	}

	// Thresholds.
	if c.HighThreshold < 0 || c.HighThreshold > 10 {
		errs = append(errs, "high_threshold must be between 0 and 10")
	}
	if c.MediumThreshold < 0 || c.MediumThreshold > 10 {
		errs = append(errs, "medium_threshold must be between 0 and 10")
	}
	if c.MediumThreshold >= c.HighThreshold {
		errs = append(errs, "medium_threshold must be below high_threshold")
	}

	// Fallbacks.
	if c.MinExpenseThreshold <= 0 {
		errs = append(errs, "min_expense_threshold must be > 0")
	}
	if c.IndependenceCap <= 0 {
		errs = append(errs, "independence_cap must be > 0")
	}
	if c.StabilityWindow < 2 {
		errs = append(errs, "stability_window must be >= 2")
	}
	if c.DegenerateScore < 0 || c.DegenerateScore > 10 {
		errs = append(errs, "degenerate_score must be between 0 and 10")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
