package model

import (
	"strings"

	"golang.org/x/text/cases"
)

// Column identifies a profile attribute by its canonical dataset header.
type Column string

// Profile dataset headers.
const (
	ColAnnualIncome          Column = "Annual Income"
	ColTotalIncome           Column = "Total Income"
	ColFinancialObligations  Column = "Total Financial Obligations"
	ColIncomeSourceMain      Column = "Income Source 1 (Main)"
	ColIncomeSourceSecondary Column = "Income Source 2 (Freelance/Investment)"
	ColMonthlySalaryCredited Column = "Monthly Salary Credited"
	ColUniqueLocations       Column = "Unique Transaction Locations"
	ColTotalLocations        Column = "Total Transaction Locations"
	ColBillsPaidOnTime       Column = "Utility Bills Paid On-Time"
	ColTotalBillsDue         Column = "Total Utility Bills Due"
	ColActiveAccounts        Column = "Number of Active Accounts"
	ColTotalAccounts         Column = "Total Accounts Held"
	ColAddressStability      Column = "Address Stability"
	ColMonthlyExpenses       Column = "Monthly Expenses"
	ColTransactionCount      Column = "Total Transaction Count"
	ColHousingExpense        Column = "Total Expense Amount (Housing/Utility)"
	ColGroceriesExpense      Column = "Total Expense Amount (Groceries)"
	ColTotalExpenses         Column = "Total Expenses"
	ColMonthlyDebtPayment    Column = "Monthly Debt Payment"
	ColOutstandingLoan       Column = "Outstanding Loan Amount"
)

// Transaction dataset headers.
const (
	ColDate     Column = "Date"
	ColAmount   Column = "Amount"
	ColCategory Column = "Category"
)

// ProfileColumns lists every profile column in dataset order.
var ProfileColumns = []Column{
	ColAnnualIncome,
	ColTotalIncome,
	ColFinancialObligations,
	ColIncomeSourceMain,
	ColIncomeSourceSecondary,
	ColMonthlySalaryCredited,
	ColUniqueLocations,
	ColTotalLocations,
	ColBillsPaidOnTime,
	ColTotalBillsDue,
	ColActiveAccounts,
	ColTotalAccounts,
	ColAddressStability,
	ColMonthlyExpenses,
	ColTransactionCount,
	ColHousingExpense,
	ColGroceriesExpense,
	ColTotalExpenses,
	ColMonthlyDebtPayment,
	ColOutstandingLoan,
}

// TransactionColumns lists the columns a transaction dataset must carry.
var TransactionColumns = []Column{ColDate, ColAmount, ColCategory}

// Key returns the case-folded, whitespace-trimmed form used to match headers.
func (c Column) Key() string {
	return NormalizeHeader(string(c))
}

// NormalizeHeader folds a raw header cell for comparison against Column.Key.
func NormalizeHeader(h string) string {
	return cases.Fold().String(strings.Join(strings.Fields(h), " "))
}

// ColumnSet records which columns a dataset carries.
type ColumnSet map[Column]bool

// Has reports whether every column is present.
func (s ColumnSet) Has(cols ...Column) bool {
	for _, c := range cols {
		if !s[c] {
			return false
		}
	}
	return true
}

// Missing returns the subset of cols absent from the set, preserving order.
func (s ColumnSet) Missing(cols ...Column) []Column {
	var out []Column
	for _, c := range cols {
		if !s[c] {
			out = append(out, c)
		}
	}
	return out
}

// ProfileRecord holds one user's flat financial attributes. Fields whose
// column is absent from the dataset are left at zero; consult the owning
// ProfileSet's Columns before relying on them. Malformed cells are zero too
// and listed in Bad.
type ProfileRecord struct {
	AnnualIncome          float64 `json:"annual_income" validate:"gte=0"`
	TotalIncome           float64 `json:"total_income" validate:"gte=0"`
	FinancialObligations  float64 `json:"total_financial_obligations" validate:"gte=0"`
	IncomeSourceMain      float64 `json:"income_source_main" validate:"gte=0"`
	IncomeSourceSecondary float64 `json:"income_source_secondary" validate:"gte=0"`
	MonthlySalaryCredited float64 `json:"monthly_salary_credited" validate:"gte=0"`
	UniqueLocations       float64 `json:"unique_transaction_locations" validate:"gte=0"`
	TotalLocations        float64 `json:"total_transaction_locations" validate:"gte=0"`
	BillsPaidOnTime       float64 `json:"utility_bills_paid_on_time" validate:"gte=0"`
	TotalBillsDue         float64 `json:"total_utility_bills_due" validate:"gte=0"`
	ActiveAccounts        float64 `json:"active_accounts" validate:"gte=0"`
	TotalAccounts         float64 `json:"total_accounts" validate:"gte=0"`
	AddressStability      float64 `json:"address_stability" validate:"gte=0,lte=1"`
	MonthlyExpenses       float64 `json:"monthly_expenses" validate:"gte=0"`
	TransactionCount      float64 `json:"transaction_count" validate:"gte=0"`
	HousingExpense        float64 `json:"housing_expense" validate:"gte=0"`
	GroceriesExpense      float64 `json:"groceries_expense" validate:"gte=0"`
	TotalExpenses         float64 `json:"total_expenses" validate:"gte=0"`
	MonthlyDebtPayment    float64 `json:"monthly_debt_payment" validate:"gte=0"`
	OutstandingLoan       float64 `json:"outstanding_loan" validate:"gte=0"`

	// Bad lists columns whose cell in this row was malformed. Calculators
	// reading any of them exclude the row.
	Bad ColumnSet `json:"-" yaml:"-" validate:"-"`
}

// Usable reports whether every cell in cols decoded cleanly.
func (p ProfileRecord) Usable(cols ...Column) bool {
	for _, c := range cols {
		if p.Bad[c] {
			return false
		}
	}
	return true
}

// MarkBad flags col as malformed and zeroes its value.
func (p *ProfileRecord) MarkBad(col Column) {
	if p.Bad == nil {
		p.Bad = make(ColumnSet)
	}
	p.Bad[col] = true
	p.Set(col, 0)
}

// MonthlySalary derives the monthly salary from annual income.
func (p ProfileRecord) MonthlySalary() float64 {
	return p.AnnualIncome / 12
}

// Set assigns v to the field backing col. Unknown columns are ignored.
func (p *ProfileRecord) Set(col Column, v float64) {
	if ptr := p.field(col); ptr != nil {
		*ptr = v
	}
}

// Get returns the value of the field backing col.
func (p *ProfileRecord) Get(col Column) float64 {
	if ptr := p.field(col); ptr != nil {
		return *ptr
	}
	return 0
}

func (p *ProfileRecord) field(col Column) *float64 {
	switch col {
	case ColAnnualIncome:
		return &p.AnnualIncome
	case ColTotalIncome:
		return &p.TotalIncome
	case ColFinancialObligations:
		return &p.FinancialObligations
	case ColIncomeSourceMain:
		return &p.IncomeSourceMain
	case ColIncomeSourceSecondary:
		return &p.IncomeSourceSecondary
	case ColMonthlySalaryCredited:
		return &p.MonthlySalaryCredited
	case ColUniqueLocations:
		return &p.UniqueLocations
	case ColTotalLocations:
		return &p.TotalLocations
	case ColBillsPaidOnTime:
		return &p.BillsPaidOnTime
	case ColTotalBillsDue:
		return &p.TotalBillsDue
	case ColActiveAccounts:
		return &p.ActiveAccounts
	case ColTotalAccounts:
		return &p.TotalAccounts
	case ColAddressStability:
		return &p.AddressStability
	case ColMonthlyExpenses:
		return &p.MonthlyExpenses
	case ColTransactionCount:
		return &p.TransactionCount
	case ColHousingExpense:
		return &p.HousingExpense
	case ColGroceriesExpense:
		return &p.GroceriesExpense
	case ColTotalExpenses:
		return &p.TotalExpenses
	case ColMonthlyDebtPayment:
		return &p.MonthlyDebtPayment
	case ColOutstandingLoan:
		return &p.OutstandingLoan
	}
	return nil
}

// ProfileSet is a decoded profile dataset together with the columns its
// header carried.
type ProfileSet struct {
	Records []ProfileRecord `json:"records"`
	Columns ColumnSet       `json:"-"`
}
