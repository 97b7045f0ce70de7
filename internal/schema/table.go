// Package schema validates rectangular datasets and decodes them into
// transaction or profile records.
package schema

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/risk-cli/internal/model"
)

// Kind is the shape of a dataset, inferred from its header.
type Kind string

const (
	KindUnknown      Kind = ""
	KindProfile      Kind = "profile"
	KindTransactions Kind = "transactions"
)

// Strategy returns the scoring strategy a dataset of this kind feeds.
func (k Kind) Strategy() model.Strategy {
	if k == KindTransactions {
		return model.StrategyTimeSeries
	}
	return model.StrategyProfile
}

// Table is an in-memory dataset: one header row followed by data rows.
type Table struct {
	Header []string
	Rows   [][]string

	index map[string]int
}

// NewTable builds a Table from raw rows, treating the first non-blank row as
// the header. Trailing blank rows are dropped.
func NewTable(rows [][]string) (*Table, error) {
	start := -1
	for i, r := range rows {
		if !blank(r) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, eris.New("schema: dataset has no header row")
	}

	t := &Table{
		Header: rows[start],
		index:  make(map[string]int, len(rows[start])),
	}
	for i, h := range t.Header {
		key := model.NormalizeHeader(h)
		if key == "" {
			continue
		}
		if _, dup := t.index[key]; !dup {
			t.index[key] = i
		}
	}
	for _, r := range rows[start+1:] {
		if blank(r) {
			continue
		}
		t.Rows = append(t.Rows, r)
	}
	return t, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Lookup returns the index of col in the header.
func (t *Table) Lookup(col model.Column) (int, bool) {
	i, ok := t.index[col.Key()]
	return i, ok
}

// Cell returns the trimmed value of col in data row i, or "" when the row is
// short or the column is absent.
func (t *Table) Cell(i int, col model.Column) string {
	idx, ok := t.Lookup(col)
	if !ok || i < 0 || i >= len(t.Rows) || idx >= len(t.Rows[i]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[i][idx])
}

// Columns returns which of cols the header carries.
func (t *Table) Columns(cols ...model.Column) model.ColumnSet {
	set := make(model.ColumnSet, len(cols))
	for _, c := range cols {
		if _, ok := t.Lookup(c); ok {
			set[c] = true
		}
	}
	return set
}

// Require returns a MissingColumnError naming every absent column.
func (t *Table) Require(cols ...model.Column) error {
	missing := t.Columns(cols...).Missing(cols...)
	if len(missing) > 0 {
		return &MissingColumnError{Columns: missing}
	}
	return nil
}

// DetectKind infers the dataset shape. A table carrying all transaction
// columns is a transaction table; one carrying any profile column is a
// profile table.
func DetectKind(t *Table) Kind {
	if t.Columns(model.TransactionColumns...).Has(model.TransactionColumns...) {
		return KindTransactions
	}
	if len(t.Columns(model.ProfileColumns...)) > 0 {
		return KindProfile
	}
	return KindUnknown
}
