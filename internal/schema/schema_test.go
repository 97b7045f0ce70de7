package schema

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/risk-cli/internal/model"
)

func TestNewTable(t *testing.T) {
	t.Parallel()

	tbl, err := NewTable([][]string{
		{"", ""},
		{" date ", "AMOUNT", "Category"},
		{"2024-01-05", "5000", "income"},
		{"", "", ""},
		{"2024-01-20", "-1200", "expense"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())

	idx, ok := tbl.Lookup(model.ColAmount)
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "-1200", tbl.Cell(1, model.ColAmount))
	assert.Equal(t, "", tbl.Cell(5, model.ColAmount))
	assert.Equal(t, "", tbl.Cell(0, model.ColOutstandingLoan))
}

func TestNewTableEmpty(t *testing.T) {
	t.Parallel()

	_, err := NewTable(nil)
	assert.Error(t, err)

	_, err = NewTable([][]string{{" ", ""}})
	assert.Error(t, err)
}

func TestDetectKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header []string
		want   Kind
	}{
		{"transactions", []string{"Date", "Amount", "Category"}, KindTransactions},
		{"profile", []string{"Annual Income", "Total Income"}, KindProfile},
		{"partial transactions", []string{"Date", "Amount"}, KindUnknown},
		{"unknown", []string{"foo", "bar"}, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tbl, err := NewTable([][]string{tt.header})
			require.NoError(t, err)
			assert.Equal(t, tt.want, DetectKind(tbl))
		})
	}

	assert.Equal(t, model.StrategyTimeSeries, KindTransactions.Strategy())
	assert.Equal(t, model.StrategyProfile, KindProfile.Strategy())
}

func TestRequireNamesMissingColumns(t *testing.T) {
	t.Parallel()

	tbl, err := NewTable([][]string{{"Date", "Category"}})
	require.NoError(t, err)

	err = tbl.Require(model.TransactionColumns...)
	var mce *MissingColumnError
	require.True(t, errors.As(err, &mce))
	assert.Equal(t, []model.Column{model.ColAmount}, mce.Columns)
	assert.Contains(t, err.Error(), `"Amount"`)
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"5000", "5000", false},
		{"-1200.50", "-1200.5", false},
		{"$1,234.56", "1234.56", false},
		{"(1,200.00)", "-1200", false},
		{"", "", true},
		{"abc", "", true},
		{"NaN", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	d := NewDecoder(Options{})
	want := time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)

	for _, in := range []string{"2024-01-05", "01/05/2024", "1/5/2024", "2024/01/05", "45296"} {
		got, err := d.ParseDate(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%s parsed as %s", in, got)
	}

	_, err := d.ParseDate("not a date")
	assert.Error(t, err)
	_, err = d.ParseDate("")
	assert.Error(t, err)
}

func TestParseTransactionMalformed(t *testing.T) {
	t.Parallel()

	d := NewDecoder(Options{})
	_, err := d.ParseTransaction(model.RawTransaction{Row: 7, Date: "yesterday", Amount: "10", Category: "x"})

	var mre *MalformedRecordError
	require.True(t, errors.As(err, &mre))
	assert.Equal(t, 7, mre.Row)
	assert.Equal(t, model.ColDate, mre.Field)
	assert.Equal(t, "yesterday", mre.Skipped().Value)

	_, err = d.ParseTransaction(model.RawTransaction{Row: 8, Date: "2024-01-01", Amount: "ten", Category: "x"})
	require.True(t, errors.As(err, &mre))
	assert.Equal(t, model.ColAmount, mre.Field)
}

func TestParseTransaction(t *testing.T) {
	t.Parallel()

	d := NewDecoder(Options{})
	rec, err := d.ParseTransaction(model.RawTransaction{Row: 2, Date: "2024-01-20", Amount: "-1200", Category: " Expense "})
	require.NoError(t, err)
	assert.Equal(t, "expense", rec.Category)
	assert.True(t, rec.IsExpense())
	assert.Equal(t, model.YearMonth{Year: 2024, Month: time.January}, rec.Period())
}

func TestRawTransactions(t *testing.T) {
	t.Parallel()

	tbl, err := NewTable([][]string{
		{"Category", "Date", "Amount"},
		{"income", "2024-01-05", "5000"},
	})
	require.NoError(t, err)

	raws, err := NewDecoder(Options{}).RawTransactions(tbl)
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, model.RawTransaction{Row: 2, Date: "2024-01-05", Amount: "5000", Category: "income"}, raws[0])

	tbl, err = NewTable([][]string{{"Annual Income"}})
	require.NoError(t, err)
	_, err = NewDecoder(Options{}).RawTransactions(tbl)
	var mce *MissingColumnError
	assert.True(t, errors.As(err, &mce))
}

func TestProfiles(t *testing.T) {
	t.Parallel()

	tbl, err := NewTable([][]string{
		{"Annual Income", "Total Income", "Address Stability", "Outstanding Loan Amount"},
		{"120000", "130000", "1", "20000"},
		{"abc", "1", "1", "0"},
		{"60000", "65000", "3", "0"},
		{"-5", "65000", "0", "0"},
		{"90,000", "95000", "0", "1000"},
	})
	require.NoError(t, err)

	set, report, err := NewDecoder(Options{}).Profiles(tbl)
	require.NoError(t, err)
	require.Len(t, set.Records, 5)
	assert.InDelta(t, 120000, set.Records[0].AnnualIncome, 1e-9)
	assert.InDelta(t, 90000, set.Records[4].AnnualIncome, 1e-9)
	assert.True(t, set.Columns.Has(model.ColAnnualIncome, model.ColOutstandingLoan))
	assert.False(t, set.Columns[model.ColMonthlyDebtPayment])

	// Bad cells are flagged on their record; the rest of the row survives.
	assert.True(t, set.Records[0].Usable(model.ProfileColumns...))
	assert.False(t, set.Records[1].Usable(model.ColAnnualIncome))
	assert.InDelta(t, 1, set.Records[1].TotalIncome, 1e-9)
	assert.True(t, set.Records[2].Usable(model.ColAnnualIncome, model.ColOutstandingLoan))
	assert.False(t, set.Records[2].Usable(model.ColAddressStability))
	assert.Zero(t, set.Records[2].AddressStability)
	assert.False(t, set.Records[3].Usable(model.ColAnnualIncome))
	assert.Zero(t, set.Records[3].AnnualIncome)

	assert.Equal(t, 5, report.Total)
	require.Equal(t, 3, report.Count())
	assert.Equal(t, 3, report.Skipped[0].Row)
	assert.Equal(t, string(model.ColAnnualIncome), report.Skipped[0].Field)
	assert.Equal(t, string(model.ColAddressStability), report.Skipped[1].Field)
	assert.Equal(t, string(model.ColAnnualIncome), report.Skipped[2].Field)
}

func TestProfilesListsEveryBadCell(t *testing.T) {
	t.Parallel()

	tbl, err := NewTable([][]string{
		{"Annual Income", "Monthly Salary Credited", "Address Stability"},
		{"", "n/a", "2"},
		{"50000", "1", "1"},
	})
	require.NoError(t, err)

	set, report, err := NewDecoder(Options{}).Profiles(tbl)
	require.NoError(t, err)
	require.Len(t, set.Records, 2)
	require.Len(t, report.Skipped, 3)
	assert.Equal(t, 1, report.Count())
	for _, s := range report.Skipped {
		assert.Equal(t, 2, s.Row)
	}
	assert.Equal(t, model.ColumnSet{
		model.ColAnnualIncome:          true,
		model.ColMonthlySalaryCredited: true,
		model.ColAddressStability:      true,
	}, set.Records[0].Bad)
	assert.Nil(t, set.Records[1].Bad)
}

func TestProfilesRequiresSomeProfileColumn(t *testing.T) {
	t.Parallel()

	tbl, err := NewTable([][]string{{"foo"}, {"1"}})
	require.NoError(t, err)
	_, _, err = NewDecoder(Options{}).Profiles(tbl)
	var mce *MissingColumnError
	assert.True(t, errors.As(err, &mce))
}
