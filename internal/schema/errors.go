package schema

import (
	"fmt"
	"strings"

	"github.com/sells-group/risk-cli/internal/model"
)

// MalformedRecordError reports a row whose cell could not be decoded. The
// row is excluded and processing continues.
type MalformedRecordError struct {
	Row   int
	Field model.Column
	Value string
	Err   error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("row %d: malformed %s %q: %v", e.Row, e.Field, e.Value, e.Err)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

// Skipped converts the error into a report entry.
func (e *MalformedRecordError) Skipped() model.SkippedRecord {
	reason := ""
	if e.Err != nil {
		reason = e.Err.Error()
	}
	return model.SkippedRecord{
		Row:    e.Row,
		Field:  string(e.Field),
		Value:  e.Value,
		Reason: reason,
	}
}

// MissingColumnError reports required columns absent from a dataset. When
// Metric is set the absence only disables that metric.
type MissingColumnError struct {
	Metric  model.MetricName
	Columns []model.Column
}

func (e *MissingColumnError) Error() string {
	names := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		names[i] = fmt.Sprintf("%q", string(c))
	}
	if e.Metric != "" {
		return fmt.Sprintf("%s unavailable: missing column(s) %s", e.Metric.Title(), strings.Join(names, ", "))
	}
	return fmt.Sprintf("missing column(s) %s", strings.Join(names, ", "))
}
