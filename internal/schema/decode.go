package schema

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/model"
)

// DefaultDateLayouts are tried in order when parsing transaction dates.
var DefaultDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
	"Jan 2, 2006",
}

// Excel stores dates as days since 1899-12-30.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Options configures a Decoder.
type Options struct {
	DateLayouts []string
}

// Decoder turns table rows into typed records.
type Decoder struct {
	layouts  []string
	validate *validator.Validate
}

// NewDecoder creates a Decoder. Empty options fall back to DefaultDateLayouts.
func NewDecoder(opts Options) *Decoder {
	layouts := opts.DateLayouts
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}
	return &Decoder{layouts: layouts, validate: validator.New()}
}

// RawTransactions extracts the Date/Amount/Category cells of every row. It
// fails only when a required column is absent.
func (d *Decoder) RawTransactions(t *Table) ([]model.RawTransaction, error) {
	if err := t.Require(model.TransactionColumns...); err != nil {
		return nil, eris.Wrap(err, "schema: transaction dataset")
	}
	out := make([]model.RawTransaction, t.Len())
	for i := range t.Rows {
		out[i] = model.RawTransaction{
			Row:      i + 2,
			Date:     t.Cell(i, model.ColDate),
			Amount:   t.Cell(i, model.ColAmount),
			Category: t.Cell(i, model.ColCategory),
		}
	}
	return out, nil
}

// ParseTransaction decodes one raw row. Failures are *MalformedRecordError.
func (d *Decoder) ParseTransaction(raw model.RawTransaction) (model.TransactionRecord, error) {
	date, err := d.ParseDate(raw.Date)
	if err != nil {
		return model.TransactionRecord{}, &MalformedRecordError{Row: raw.Row, Field: model.ColDate, Value: raw.Date, Err: err}
	}
	amount, err := ParseAmount(raw.Amount)
	if err != nil {
		return model.TransactionRecord{}, &MalformedRecordError{Row: raw.Row, Field: model.ColAmount, Value: raw.Amount, Err: err}
	}
	return model.TransactionRecord{
		Date:     date,
		Amount:   amount,
		Category: strings.ToLower(strings.TrimSpace(raw.Category)),
	}, nil
}

// ParseDate tries each configured layout, then an Excel serial day number.
func (d *Decoder) ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, eris.New("empty date")
	}
	for _, layout := range d.layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial >= 1 && serial < 2958466 {
		days := math.Floor(serial)
		return excelEpoch.AddDate(0, 0, int(days)), nil
	}
	return time.Time{}, eris.Errorf("unrecognized date %q", s)
}

// ParseAmount parses a signed monetary amount. Currency symbols, thousands
// separators, and accounting-style parentheses are accepted.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, eris.New("empty amount")
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer(",", "", "$", "", "€", "", "£", "", " ", "").Replace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, eris.Wrap(err, "unparseable amount")
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseNumber parses a numeric profile cell into a finite float.
func ParseNumber(s string) (float64, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, eris.Errorf("non-finite value %q", s)
	}
	return f, nil
}

// Profiles decodes every row of a profile dataset. An unparseable or
// out-of-range cell is listed in the skip report and marked bad on its
// record, so only calculators reading that column drop the row. Columns
// absent from the header are not an error here; calculators report them.
func (d *Decoder) Profiles(t *Table) (*model.ProfileSet, model.SkipReport, error) {
	cols := t.Columns(model.ProfileColumns...)
	if len(cols) == 0 {
		return nil, model.SkipReport{}, eris.Wrap(
			&MissingColumnError{Columns: model.ProfileColumns}, "schema: profile dataset")
	}

	set := &model.ProfileSet{Columns: cols, Records: make([]model.ProfileRecord, 0, t.Len())}
	report := model.SkipReport{Total: t.Len()}

	for i := range t.Rows {
		rec, bad, err := d.decodeProfile(t, i, cols)
		if err != nil {
			return nil, report, err
		}
		for _, mre := range bad {
			report.Skipped = append(report.Skipped, mre.Skipped())
			zap.L().Warn("schema: malformed profile cell",
				zap.Int("row", mre.Row),
				zap.String("field", string(mre.Field)),
				zap.String("value", mre.Value),
				zap.Error(mre.Err),
			)
		}
		set.Records = append(set.Records, rec)
	}

	return set, report, nil
}

func (d *Decoder) decodeProfile(t *Table, i int, cols model.ColumnSet) (model.ProfileRecord, []*MalformedRecordError, error) {
	var (
		rec model.ProfileRecord
		bad []*MalformedRecordError
	)
	row := i + 2
	for _, col := range model.ProfileColumns {
		if !cols[col] {
			continue
		}
		raw := t.Cell(i, col)
		v, err := ParseNumber(raw)
		if err != nil {
			bad = append(bad, &MalformedRecordError{Row: row, Field: col, Value: raw, Err: err})
			rec.MarkBad(col)
			continue
		}
		rec.Set(col, v)
	}

	if err := d.validate.Struct(rec); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return rec, nil, eris.Wrap(err, "schema: validate profile")
		}
		for _, fe := range verrs {
			col := columnForField(fe.StructField())
			bad = append(bad, &MalformedRecordError{
				Row:   row,
				Field: col,
				Value: t.Cell(i, col),
				Err:   eris.Errorf("failed %q constraint", fe.Tag()),
			})
			rec.MarkBad(col)
		}
	}
	return rec, bad, nil
}

var fieldColumns = map[string]model.Column{
	"AnnualIncome":          model.ColAnnualIncome,
	"TotalIncome":           model.ColTotalIncome,
	"FinancialObligations":  model.ColFinancialObligations,
	"IncomeSourceMain":      model.ColIncomeSourceMain,
	"IncomeSourceSecondary": model.ColIncomeSourceSecondary,
	"MonthlySalaryCredited": model.ColMonthlySalaryCredited,
	"UniqueLocations":       model.ColUniqueLocations,
	"TotalLocations":        model.ColTotalLocations,
	"BillsPaidOnTime":       model.ColBillsPaidOnTime,
	"TotalBillsDue":         model.ColTotalBillsDue,
	"ActiveAccounts":        model.ColActiveAccounts,
	"TotalAccounts":         model.ColTotalAccounts,
	"AddressStability":      model.ColAddressStability,
	"MonthlyExpenses":       model.ColMonthlyExpenses,
	"TransactionCount":      model.ColTransactionCount,
	"HousingExpense":        model.ColHousingExpense,
	"GroceriesExpense":      model.ColGroceriesExpense,
	"TotalExpenses":         model.ColTotalExpenses,
	"MonthlyDebtPayment":    model.ColMonthlyDebtPayment,
	"OutstandingLoan":       model.ColOutstandingLoan,
}

func columnForField(field string) model.Column {
	if c, ok := fieldColumns[field]; ok {
		return c
	}
	return model.Column(field)
}
