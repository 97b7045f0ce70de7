// Package model defines the records, aggregates, and reports shared by the
// risk scoring pipeline.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// TransactionRecord is a single dated ledger movement. Positive amounts are
// credits (income), negative amounts are debits (expenses).
type TransactionRecord struct {
	Date     time.Time       `json:"date"`
	Amount   decimal.Decimal `json:"amount"`
	Category string          `json:"category"`
}

// IsIncome reports whether the record credits the account.
func (t TransactionRecord) IsIncome() bool {
	return t.Amount.IsPositive()
}

// IsExpense reports whether the record debits the account.
func (t TransactionRecord) IsExpense() bool {
	return t.Amount.IsNegative()
}

// Period returns the calendar month the record falls in.
func (t TransactionRecord) Period() YearMonth {
	return YearMonthOf(t.Date)
}

// YearMonth identifies a calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

const yearMonthLayout = "2006-01"

// YearMonthOf returns the month containing t.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// ParseYearMonth parses a "YYYY-MM" string.
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse(yearMonthLayout, s)
	if err != nil {
		return YearMonth{}, eris.Wrapf(err, "model: parse year-month %q", s)
	}
	return YearMonthOf(t), nil
}

// Start returns midnight UTC on the first day of the month.
func (ym YearMonth) Start() time.Time {
	return time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Next returns the following month.
func (ym YearMonth) Next() YearMonth {
	return YearMonthOf(ym.Start().AddDate(0, 1, 0))
}

// Before reports whether ym is strictly earlier than other.
func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}

// After reports whether ym is strictly later than other.
func (ym YearMonth) After(other YearMonth) bool {
	return other.Before(ym)
}

// MonthsThrough returns the number of months from ym to end inclusive, or
// zero when end precedes ym.
func (ym YearMonth) MonthsThrough(end YearMonth) int {
	n := (end.Year-ym.Year)*12 + int(end.Month-ym.Month) + 1
	return max(n, 0)
}

// IsZero reports whether ym is unset.
func (ym YearMonth) IsZero() bool {
	return ym.Year == 0 && ym.Month == 0
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// MarshalJSON encodes the month as "YYYY-MM".
func (ym YearMonth) MarshalJSON() ([]byte, error) {
	return json.Marshal(ym.String())
}

// UnmarshalJSON decodes a "YYYY-MM" string.
func (ym *YearMonth) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return eris.Wrap(err, "model: decode year-month")
	}
	parsed, err := ParseYearMonth(s)
	if err != nil {
		return err
	}
	*ym = parsed
	return nil
}

// MarshalYAML encodes the month as "YYYY-MM".
func (ym YearMonth) MarshalYAML() (any, error) {
	return ym.String(), nil
}

// MonthlyAggregate holds one calendar month's income and expense totals.
// Expenses are stored as a positive magnitude.
type MonthlyAggregate struct {
	Period        YearMonth `json:"period" yaml:"period"`
	TotalIncome   float64   `json:"total_income" yaml:"total_income"`
	TotalExpenses float64   `json:"total_expenses" yaml:"total_expenses"`
	IncomeCount   int       `json:"income_count" yaml:"income_count"`
	ExpenseCount  int       `json:"expense_count" yaml:"expense_count"`
}

// RawTransaction is an undecoded transaction row as it appeared in the
// dataset. Row is 1-based and counts the header.
type RawTransaction struct {
	Row      int
	Date     string
	Amount   string
	Category string
}
