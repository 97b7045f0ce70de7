package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const txnCSV = "Date,Amount,Category\n2024-01-05,5000,income\n2024-01-20,-1200,expense\n"

func TestFormatFromName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"transactions.csv", FormatCSV, false},
		{"/exports/DATA.TSV", FormatCSV, false},
		{"profiles.xlsx", FormatXLSX, false},
		{"profiles.json", FormatJSON, false},
		{"bundle.zip", FormatZIP, false},
		{"profiles.xls", "", true},
		{"noext", "", true},
	}
	for _, tt := range tests {
		got, err := FormatFromName(tt.name)
		if tt.wantErr {
			assert.Error(t, err, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestFormatFromContentType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, FormatCSV, FormatFromContentType("text/csv; charset=utf-8"))
	assert.Equal(t, FormatJSON, FormatFromContentType("Application/JSON"))
	assert.Equal(t, FormatXLSX, FormatFromContentType("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"))
	assert.Equal(t, FormatZIP, FormatFromContentType("application/zip"))
	assert.Equal(t, Format(""), FormatFromContentType("image/png"))
}

func TestLoadLocalFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "transactions.csv")
	require.NoError(t, os.WriteFile(path, []byte(txnCSV), 0o644))

	l := NewLoader(Options{})
	for _, src := range []string{path, "file://" + path} {
		tbl, err := l.Load(context.Background(), src, "")
		require.NoError(t, err, src)
		assert.Equal(t, []string{"Date", "Amount", "Category"}, tbl.Header)
		assert.Equal(t, 2, tbl.Len())
	}

	_, err := l.Load(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), "")
	assert.ErrorContains(t, err, "fetcher: open")
}

func TestLoadHTTP(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transactions.csv":
			_, _ = w.Write([]byte(txnCSV))
		case "/profiles.json":
			_, _ = w.Write([]byte(`[{"Annual Income": 120000, "Monthly Debt Payment": 2000}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l := NewLoader(Options{})
	tbl, err := l.Load(context.Background(), srv.URL+"/transactions.csv", "")
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())

	tbl, err = l.Load(context.Background(), srv.URL+"/profiles.json?v=2", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Annual Income", "Monthly Debt Payment"}, tbl.Header)
	assert.Equal(t, []string{"120000", "2000"}, tbl.Rows[0])

	_, err = l.Load(context.Background(), srv.URL+"/gone.csv", "")
	assert.ErrorContains(t, err, "http 404")
}

func TestParseFormats(t *testing.T) {
	t.Parallel()

	l := NewLoader(Options{Delimiter: ';', SheetName: "Profiles"})
	ctx := context.Background()

	tbl, err := l.Parse(ctx, []byte("Date;Amount;Category\n2024-01-05;10;income\n"), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "10", tbl.Rows[0][1])

	xl := workbookBytes(t, buildWorkbook(t, profileSheets, "Summary", "Profiles"))
	tbl, err = l.Parse(ctx, xl, FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())

	tbl, err = l.Parse(ctx, buildZIP(t, [2]string{"export/profiles.xlsx", string(xl)}), FormatZIP)
	require.NoError(t, err)
	assert.Equal(t, "Annual Income", tbl.Header[0])

	_, err = l.Parse(ctx, buildZIP(t, [2]string{"inner.zip", "x"}), FormatZIP)
	assert.ErrorContains(t, err, "nested archive")

	_, err = l.Parse(ctx, []byte("x"), Format("parquet"))
	assert.ErrorContains(t, err, "unsupported format")

	_, err = l.Parse(ctx, []byte("\n\n"), FormatCSV)
	assert.ErrorContains(t, err, "no header row")
}

func TestLoadSizeLimit(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "big.csv")
	require.NoError(t, os.WriteFile(path, []byte(txnCSV), 0o644))

	_, err := NewLoader(Options{MaxBytes: 10}).Load(context.Background(), path, FormatCSV)
	assert.ErrorContains(t, err, "exceeds 10 bytes")
	assert.ErrorIs(t, err, ErrTooLarge)
}
