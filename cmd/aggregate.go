package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/aggregate"
	"github.com/sells-group/risk-cli/internal/fetcher"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <source>",
	Short: "Group a transaction ledger into monthly totals",
	Long: `Aggregate a transaction ledger into one row per calendar month.

Months inside the window without any transaction are emitted with zero
totals. Rows whose date or amount cannot be parsed are listed as skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runAggregate,
}

func init() {
	f := aggregateCmd.Flags()
	f.String("input-format", "", "dataset format: csv, xlsx, json, or zip (default from source name)")
	f.String("from", "", "first month to emit, YYYY-MM (overrides config)")
	f.String("to", "", "last month to emit, YYYY-MM (overrides config)")
	f.String("through", "", "drop months after YYYY-MM")
	f.String("output", "", "output file path (default: stdout)")
	f.String("format", formatTable, "output format: table, json, yaml, or csv")

	rootCmd.AddCommand(aggregateCmd)
}

func runAggregate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	inputFormat, _ := cmd.Flags().GetString("input-format")
	outputPath, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")
	if err := checkFormat(format); err != nil {
		return err
	}

	env, err := initPipeline(cfg, "aggregate")
	if err != nil {
		return err
	}
	window, through, err := readWindowFlags(cmd).resolve(cfg)
	if err != nil {
		return err
	}

	tbl, err := env.Loader.Load(ctx, args[0], fetcher.Format(inputFormat))
	if err != nil {
		return eris.Wrap(err, "aggregate: load dataset")
	}
	raws, err := env.Decoder.RawTransactions(tbl)
	if err != nil {
		return eris.Wrap(err, "aggregate: read transactions")
	}
	res, err := env.Aggregator.AggregateRows(raws, window)
	if err != nil {
		return eris.Wrap(err, "aggregate")
	}
	months := aggregate.Through(res.Months, through)

	zap.L().Info("aggregation complete",
		zap.String("command", "aggregate"),
		zap.String("source", args[0]),
		zap.Int("months", len(months)),
		zap.Int("rows", res.Skipped.Total),
		zap.Int("skipped", res.Skipped.Count()),
	)

	w, closeOut, err := openOutput(outputPath)
	if err != nil {
		return err
	}
	defer closeOut() //nolint:errcheck

	return writeMonths(w, monthsOutput{Months: months, Skipped: res.Skipped}, format)
}
