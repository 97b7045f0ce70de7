package scorer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/risk-cli/internal/model"
)

// ErrNoRecords is returned by a calculator given no usable rows.
var ErrNoRecords = eris.New("scorer: no usable rows")

// InsufficientMetricsError is returned when no metric could be computed, so
// no composite exists.
type InsufficientMetricsError struct {
	Unavailable map[model.MetricName]string
}

func (e *InsufficientMetricsError) Error() string {
	if len(e.Unavailable) == 0 {
		return "insufficient metrics: no metric results"
	}
	names := make([]string, 0, len(e.Unavailable))
	for m := range e.Unavailable {
		names = append(names, string(m))
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s: %s", n, e.Unavailable[model.MetricName(n)])
	}
	return "insufficient metrics: " + strings.Join(parts, "; ")
}
