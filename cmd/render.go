package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/risk-cli/internal/model"
)

// Output formats accepted by --format.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
	formatCSV   = "csv"
)

// maxSkippedShown bounds the skipped-cell listing in table output.
const maxSkippedShown = 20

var amounts = message.NewPrinter(language.English)

func checkFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML, formatCSV:
		return nil
	}
	return eris.Errorf("--format must be table, json, yaml, or csv (got %q)", format)
}

// openOutput returns stdout, or a created file when path is set. The returned
// close func must always be called.
func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "create output file %s", path)
	}
	return f, f.Close, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode json")
	}
	return nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "encode yaml")
	}
	return enc.Close()
}

// writeReport renders a score report in format.
func writeReport(w io.Writer, r *model.ScoreReport, format string) error {
	switch format {
	case formatTable:
		return writeReportTable(w, r)
	case formatJSON:
		return writeJSON(w, r)
	case formatYAML:
		return writeYAML(w, r)
	case formatCSV:
		return writeReportCSV(w, r)
	}
	return eris.Errorf("unsupported format %q", format)
}

func writeReportTable(w io.Writer, r *model.ScoreReport) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Run:       %s\n", r.RunID)
	if r.UserID != "" {
		fmt.Fprintf(&b, "User:      %s\n", r.UserID)
	}
	fmt.Fprintf(&b, "Strategy:  %s\n", r.Strategy)
	fmt.Fprintf(&b, "Rows:      %d (%d skipped)\n", r.Skipped.Total, r.Skipped.Count())
	if len(r.Months) > 0 {
		fmt.Fprintf(&b, "Months:    %s to %s\n", r.Months[0].Period, r.Months[len(r.Months)-1].Period)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "%-22s %7s  %s\n", "Metric", "Score", "Notes")
	b.WriteString(strings.Repeat("-", 60) + "\n")
	for _, m := range model.AllMetrics {
		if reason, ok := r.Unavailable[m]; ok {
			fmt.Fprintf(&b, "%-22s %7s  unavailable: %s\n", m.Title(), "-", reason)
			continue
		}
		res := r.Metrics[m]
		fmt.Fprintf(&b, "%-22s %7.2f  %s\n", m.Title(), r.PerMetric[m], metricNotes(res))
	}
	b.WriteString(strings.Repeat("-", 60) + "\n")
	fmt.Fprintf(&b, "%-22s %7.2f  %s risk\n\n", "Composite", r.CompositeScore, r.RiskCategory)

	if r.Advice.Summary != "" {
		b.WriteString(r.Advice.Summary + "\n")
	}
	writeBullets(&b, "Reasons", r.Advice.Reasons)
	writeBullets(&b, "Recommendations", r.Advice.Recommendations)
	writeBullets(&b, "References", r.Advice.References)
	writeSkipped(&b, r.Skipped)

	if _, err := io.WriteString(w, b.String()); err != nil {
		return eris.Wrap(err, "write table")
	}
	return nil
}

// metricNotes lists a result's rows and any fallback counts.
func metricNotes(res model.MetricResult) string {
	notes := []string{fmt.Sprintf("%d rows", res.Rows)}
	keys := make([]string, 0, len(res.Fallbacks))
	for k := range res.Fallbacks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		notes = append(notes, fmt.Sprintf("%s fallback x%d", k, res.Fallbacks[k]))
	}
	return strings.Join(notes, ", ")
}

func writeBullets(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "  - %s\n", it)
	}
}

func writeSkipped(b *strings.Builder, s model.SkipReport) {
	if len(s.Skipped) == 0 {
		return
	}
	fmt.Fprintf(b, "\nSkipped cells (%d in %d rows):\n", len(s.Skipped), s.Count())
	for i, rec := range s.Skipped {
		if i == maxSkippedShown {
			fmt.Fprintf(b, "  ... and %d more\n", len(s.Skipped)-maxSkippedShown)
			break
		}
		fmt.Fprintf(b, "  row %-6d %-10s %q: %s\n", rec.Row, rec.Field, rec.Value, rec.Reason)
	}
}

func writeReportCSV(w io.Writer, r *model.ScoreReport) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"run_id", "user_id", "strategy", "metric", "score", "status", "detail"}); err != nil {
		return eris.Wrap(err, "write CSV header")
	}
	for _, m := range model.AllMetrics {
		row := []string{r.RunID, r.UserID, string(r.Strategy), string(m), "", "ok", ""}
		if reason, ok := r.Unavailable[m]; ok {
			row[5], row[6] = "unavailable", reason
		} else {
			row[4] = strconv.FormatFloat(r.PerMetric[m], 'f', 4, 64)
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "write CSV row")
		}
	}
	composite := []string{
		r.RunID, r.UserID, string(r.Strategy), "composite",
		strconv.FormatFloat(r.CompositeScore, 'f', 4, 64), string(r.RiskCategory), r.Advice.Summary,
	}
	if err := cw.Write(composite); err != nil {
		return eris.Wrap(err, "write CSV row")
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "flush CSV")
}

// monthsOutput is the structured form of the aggregate command's output.
type monthsOutput struct {
	Months  []model.MonthlyAggregate `json:"months" yaml:"months"`
	Skipped model.SkipReport         `json:"skipped" yaml:"skipped"`
}

// writeMonths renders monthly aggregates in format.
func writeMonths(w io.Writer, out monthsOutput, format string) error {
	switch format {
	case formatTable:
		return writeMonthsTable(w, out)
	case formatJSON:
		return writeJSON(w, out)
	case formatYAML:
		return writeYAML(w, out)
	case formatCSV:
		return writeMonthsCSV(w, out.Months)
	}
	return eris.Errorf("unsupported format %q", format)
}

func writeMonthsTable(w io.Writer, out monthsOutput) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%-8s %16s %16s %8s %8s\n", "Month", "Income", "Expenses", "Credits", "Debits")
	b.WriteString(strings.Repeat("-", 60) + "\n")
	var income, expenses float64
	for _, m := range out.Months {
		fmt.Fprintf(&b, "%-8s %16s %16s %8d %8d\n",
			m.Period, amounts.Sprintf("%.2f", m.TotalIncome), amounts.Sprintf("%.2f", m.TotalExpenses),
			m.IncomeCount, m.ExpenseCount)
		income += m.TotalIncome
		expenses += m.TotalExpenses
	}
	b.WriteString(strings.Repeat("-", 60) + "\n")
	fmt.Fprintf(&b, "%-8s %16s %16s\n", "Total", amounts.Sprintf("%.2f", income), amounts.Sprintf("%.2f", expenses))
	writeSkipped(&b, out.Skipped)

	if _, err := io.WriteString(w, b.String()); err != nil {
		return eris.Wrap(err, "write table")
	}
	return nil
}

func writeMonthsCSV(w io.Writer, months []model.MonthlyAggregate) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"period", "total_income", "total_expenses", "income_count", "expense_count"}); err != nil {
		return eris.Wrap(err, "write CSV header")
	}
	for _, m := range months {
		row := []string{
			m.Period.String(),
			strconv.FormatFloat(m.TotalIncome, 'f', 2, 64),
			strconv.FormatFloat(m.TotalExpenses, 'f', 2, 64),
			strconv.Itoa(m.IncomeCount),
			strconv.Itoa(m.ExpenseCount),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "write CSV row")
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "flush CSV")
}
