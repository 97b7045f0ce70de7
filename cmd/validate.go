package main

import (
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/risk-cli/internal/aggregate"
	"github.com/sells-group/risk-cli/internal/config"
	"github.com/sells-group/risk-cli/internal/fetcher"
	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/schema"
	"github.com/sells-group/risk-cli/internal/scorer"
)

var validateCmd = &cobra.Command{
	Use:   "validate <source>",
	Short: "Check that a dataset can be scored",
	Long: `Load a dataset without scoring it and report its detected kind, the
metrics its columns support, and any rows that would be skipped. Exits
non-zero when no metric could be computed.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	f := validateCmd.Flags()
	f.String("input-format", "", "dataset format: csv, xlsx, json, or zip (default from source name)")
	f.String("format", formatTable, "output format: table, json, or yaml")

	rootCmd.AddCommand(validateCmd)
}

// validation is the validate command's report.
type validation struct {
	Source      string                      `json:"source" yaml:"source"`
	Kind        schema.Kind                 `json:"kind" yaml:"kind"`
	Rows        int                         `json:"rows" yaml:"rows"`
	Unknown     []string                    `json:"unknown_columns,omitempty" yaml:"unknown_columns,omitempty"`
	Available   []model.MetricName          `json:"available" yaml:"available"`
	Unavailable map[model.MetricName]string `json:"unavailable,omitempty" yaml:"unavailable,omitempty"`
	Skipped     model.SkipReport            `json:"skipped" yaml:"skipped"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	inputFormat, _ := cmd.Flags().GetString("input-format")
	format, _ := cmd.Flags().GetString("format")
	if format == formatCSV {
		return eris.New("validate: csv output is not supported")
	}
	if err := checkFormat(format); err != nil {
		return err
	}

	env, err := initPipeline(cfg, "aggregate")
	if err != nil {
		return err
	}

	tbl, err := env.Loader.Load(ctx, args[0], fetcher.Format(inputFormat))
	if err != nil {
		return eris.Wrap(err, "validate: load dataset")
	}

	v, err := validateTable(env, cfg, args[0], tbl)
	if err != nil {
		return err
	}

	switch format {
	case formatJSON:
		err = writeJSON(cmd.OutOrStdout(), v)
	case formatYAML:
		err = writeYAML(cmd.OutOrStdout(), v)
	default:
		err = writeValidation(cmd.OutOrStdout(), v)
	}
	if err != nil {
		return err
	}

	if len(v.Available) == 0 {
		return eris.Errorf("validate: %s supports no metric", args[0])
	}
	return nil
}

// validateTable inspects tbl and reports which metrics it can feed.
func validateTable(env *pipelineEnv, c *config.Config, source string, tbl *schema.Table) (*validation, error) {
	v := &validation{
		Source:      source,
		Kind:        schema.DetectKind(tbl),
		Rows:        tbl.Len(),
		Unknown:     unknownColumns(tbl),
		Unavailable: make(map[model.MetricName]string),
	}

	switch v.Kind {
	case schema.KindProfile:
		for _, m := range model.AllMetrics {
			cols := scorer.ProfileColumnsFor(m)
			if missing := tbl.Columns(cols...).Missing(cols...); len(missing) > 0 {
				v.Unavailable[m] = (&schema.MissingColumnError{Metric: m, Columns: missing}).Error()
				continue
			}
			v.Available = append(v.Available, m)
		}
		_, skipped, err := env.Decoder.Profiles(tbl)
		if err != nil {
			return nil, eris.Wrap(err, "validate: decode profiles")
		}
		v.Skipped = skipped

	case schema.KindTransactions:
		raws, err := env.Decoder.RawTransactions(tbl)
		if err != nil {
			return nil, eris.Wrap(err, "validate: read transactions")
		}
		res, err := env.Aggregator.AggregateRows(raws, aggregate.Window{MaxMonths: c.Input.MaxMonths})
		if err != nil {
			return nil, eris.Wrap(err, "validate: aggregate")
		}
		v.Skipped = res.Skipped
		for _, m := range model.AllMetrics {
			if _, err := scorer.SeriesCalculators[m](res.Months, c.Scoring); err != nil {
				v.Unavailable[m] = err.Error()
				continue
			}
			v.Available = append(v.Available, m)
		}

	default:
		reason := (&schema.MissingColumnError{Columns: model.TransactionColumns}).Error()
		for _, m := range model.AllMetrics {
			v.Unavailable[m] = reason
		}
	}
	return v, nil
}

// unknownColumns lists header cells matching no profile or transaction column.
func unknownColumns(tbl *schema.Table) []string {
	known := make(map[string]bool)
	for _, c := range model.ProfileColumns {
		known[c.Key()] = true
	}
	for _, c := range model.TransactionColumns {
		known[c.Key()] = true
	}

	var out []string
	for _, h := range tbl.Header {
		if h != "" && !known[model.NormalizeHeader(h)] {
			out = append(out, h)
		}
	}
	return out
}

func writeValidation(w io.Writer, v *validation) error {
	var b strings.Builder

	kind := string(v.Kind)
	if kind == "" {
		kind = "unknown"
	}
	fmt.Fprintf(&b, "Source:  %s\n", v.Source)
	fmt.Fprintf(&b, "Kind:    %s\n", kind)
	fmt.Fprintf(&b, "Rows:    %d (%d skipped)\n", v.Rows, v.Skipped.Count())
	if len(v.Unknown) > 0 {
		fmt.Fprintf(&b, "Ignored: %s\n", strings.Join(v.Unknown, ", "))
	}
	b.WriteString("\n")

	for _, m := range model.AllMetrics {
		if reason, ok := v.Unavailable[m]; ok {
			fmt.Fprintf(&b, "  --  %-20s %s\n", m.Title(), reason)
			continue
		}
		fmt.Fprintf(&b, "  ok  %s\n", m.Title())
	}
	writeSkipped(&b, v.Skipped)

	if _, err := io.WriteString(w, b.String()); err != nil {
		return eris.Wrap(err, "write table")
	}
	return nil
}
