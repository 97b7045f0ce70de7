// Package aggregate buckets transaction rows into calendar months.
package aggregate

import (
	"errors"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/schema"
)

// DefaultMaxMonths caps a window when Window.MaxMonths is unset.
const DefaultMaxMonths = 600

// ErrWindowTooLarge is returned when a window spans more months than allowed.
var ErrWindowTooLarge = eris.New("aggregate: window too large")

// Window bounds the months emitted. A zero bound is taken from the data.
type Window struct {
	From model.YearMonth
	To   model.YearMonth

	// MaxMonths limits how many months the window may span. Zero means
	// DefaultMaxMonths.
	MaxMonths int
}

// Limit returns the effective month cap.
func (w Window) Limit() int {
	if w.MaxMonths > 0 {
		return w.MaxMonths
	}
	return DefaultMaxMonths
}

// CheckSpan fails with ErrWindowTooLarge when from..to covers more months
// than the window allows.
func (w Window) CheckSpan(from, to model.YearMonth) error {
	if n := from.MonthsThrough(to); n > w.Limit() {
		return eris.Wrapf(ErrWindowTooLarge, "%s to %s spans %d months (max %d)", from, to, n, w.Limit())
	}
	return nil
}

// Result is the aggregator output: one row per month plus the rows it
// excluded.
type Result struct {
	Months  []model.MonthlyAggregate
	Skipped model.SkipReport
}

// Aggregator groups transactions into MonthlyAggregates.
type Aggregator struct {
	decoder *schema.Decoder
}

// New creates an Aggregator that decodes rows with d.
func New(d *schema.Decoder) *Aggregator {
	if d == nil {
		d = schema.NewDecoder(schema.Options{})
	}
	return &Aggregator{decoder: d}
}

type bucket struct {
	income   decimal.Decimal
	expenses decimal.Decimal
	nIncome  int
	nExpense int
}

// AggregateRows decodes and aggregates raw rows. Malformed rows are excluded,
// logged, and listed in Result.Skipped; they never abort the batch.
func (a *Aggregator) AggregateRows(rows []model.RawTransaction, w Window) (*Result, error) {
	records := make([]model.TransactionRecord, 0, len(rows))
	skipped := model.SkipReport{Total: len(rows)}

	for _, raw := range rows {
		rec, err := a.decoder.ParseTransaction(raw)
		if err != nil {
			var mre *schema.MalformedRecordError
			if !errors.As(err, &mre) {
				return nil, eris.Wrap(err, "aggregate: parse row")
			}
			skipped.Skipped = append(skipped.Skipped, mre.Skipped())
			zap.L().Warn("aggregate: excluding malformed transaction",
				zap.Int("row", mre.Row),
				zap.String("field", string(mre.Field)),
				zap.String("value", mre.Value),
				zap.Error(mre.Err),
			)
			continue
		}
		records = append(records, rec)
	}

	months, err := Aggregate(records, w)
	if err != nil {
		return nil, err
	}

	if skipped.Count() > 0 {
		zap.L().Info("aggregate: malformed rows excluded",
			zap.Int("skipped", skipped.Count()),
			zap.Int("total", skipped.Total),
		)
	}
	return &Result{Months: months, Skipped: skipped}, nil
}

// Aggregate sums decoded records per calendar month. Every month from the
// window start to its end is present, zero-filled when inactive. Records
// outside an explicit window are ignored. Windows longer than w.Limit()
// months fail with ErrWindowTooLarge before anything is allocated.
func Aggregate(records []model.TransactionRecord, w Window) ([]model.MonthlyAggregate, error) {
	from, to := w.From, w.To
	lo, hi, ok := span(records)
	if from.IsZero() {
		from = to
		if ok && (to.IsZero() || lo.Before(to)) {
			from = lo
		}
	}
	if to.IsZero() {
		to = from
		if ok && hi.After(from) {
			to = hi
		}
	}
	if from.IsZero() {
		return nil, nil
	}
	if to.Before(from) {
		return nil, eris.Errorf("aggregate: window end %s precedes start %s", to, from)
	}
	if err := w.CheckSpan(from, to); err != nil {
		return nil, err
	}

	buckets := make(map[model.YearMonth]*bucket)
	for _, rec := range records {
		p := rec.Period()
		if p.Before(from) || p.After(to) {
			continue
		}
		b, ok := buckets[p]
		if !ok {
			b = &bucket{}
			buckets[p] = b
		}
		switch {
		case rec.IsIncome():
			b.income = b.income.Add(rec.Amount)
			b.nIncome++
		case rec.IsExpense():
			b.expenses = b.expenses.Add(rec.Amount.Abs())
			b.nExpense++
		}
	}

	var out []model.MonthlyAggregate
	for m := from; !m.After(to); m = m.Next() {
		agg := model.MonthlyAggregate{Period: m}
		if b, ok := buckets[m]; ok {
			agg.TotalIncome = b.income.InexactFloat64()
			agg.TotalExpenses = b.expenses.InexactFloat64()
			agg.IncomeCount = b.nIncome
			agg.ExpenseCount = b.nExpense
		}
		out = append(out, agg)
	}
	return out, nil
}

func span(records []model.TransactionRecord) (lo, hi model.YearMonth, ok bool) {
	for i, rec := range records {
		p := rec.Period()
		if i == 0 || p.Before(lo) {
			lo = p
		}
		if i == 0 || p.After(hi) {
			hi = p
		}
	}
	return lo, hi, len(records) > 0
}

// Through returns the prefix of months up to and including through. A zero
// month returns the series unchanged.
func Through(months []model.MonthlyAggregate, through model.YearMonth) []model.MonthlyAggregate {
	if through.IsZero() {
		return months
	}
	out := make([]model.MonthlyAggregate, 0, len(months))
	for _, m := range months {
		if m.Period.After(through) {
			break
		}
		out = append(out, m)
	}
	return out
}
