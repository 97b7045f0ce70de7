//go:build !integration

package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/risk-cli/internal/config"
	"github.com/sells-group/risk-cli/internal/model"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.Scoring.Mode = "auto"
	c.Scoring.HighThreshold = 7
	c.Scoring.MediumThreshold = 4
	c.Scoring.MinExpenseThreshold = 1
	c.Scoring.IndependenceCap = 10
	c.Scoring.StabilityWindow = 3
	c.Scoring.DegenerateScore = 5
	c.Input.Delimiter = ","
	c.Input.MaxBytes = 1 << 20
	c.Input.MaxMonths = 120
	c.Fetch.TimeoutSecs = 5
	c.Fetch.MaxRetries = 1
	c.Fetch.BreakerThreshold = 5
	c.Fetch.BreakerResetSecs = 30
	c.Server.Port = 8080
	c.Server.AllowedOrigins = []string{"*"}
	c.Monitoring.LookbackMinutes = 60
	c.Log.Format = "json"
	c.Log.Level = "info"
	return c
}

const ledgerCSV = `Date,Amount,Category
2024-01-05,5000,income
2024-01-20,-1200,expense
2024-02-05,5000,income
2024-02-11,-800,expense
2024-02-19,-700,expense
not-a-date,-10,expense
2024-03-05,4500,income
2024-03-22,-3000,expense
`

// profileCSV returns a profile table carrying every profile column.
func profileCSV(rows int) string {
	var b strings.Builder
	header := make([]string, len(model.ProfileColumns))
	for i, c := range model.ProfileColumns {
		header[i] = `"` + string(c) + `"`
	}
	b.WriteString(strings.Join(header, ",") + "\n")
	for r := 1; r <= rows; r++ {
		cells := make([]string, len(model.ProfileColumns))
		for i := range model.ProfileColumns {
			cells[i] = strconv.Itoa((i + 1) * 100 * (r + i%3))
		}
		b.WriteString(strings.Join(cells, ",") + "\n")
	}
	return b.String()
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestInitPipeline(t *testing.T) {
	t.Parallel()

	env, err := initPipeline(testConfig(), "score")
	require.NoError(t, err)
	assert.NotNil(t, env.Decoder)
	assert.NotNil(t, env.Loader)
	assert.NotNil(t, env.Aggregator)
	assert.NotNil(t, env.Pipeline)
}

func TestInitPipeline_InvalidConfig(t *testing.T) {
	t.Parallel()

	c := testConfig()
	c.Scoring.MediumThreshold = 8
	_, err := initPipeline(c, "score")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "medium_threshold")
}

func TestLoaderOptions(t *testing.T) {
	t.Parallel()

	c := testConfig()
	c.Input.Delimiter = ";"
	c.Input.SheetName = "Ledger"
	c.Fetch.UserAgent = "risk-test"
	c.Fetch.BackoffMs = 250

	opts := loaderOptions(c)
	assert.Equal(t, ';', opts.Delimiter)
	assert.Equal(t, "Ledger", opts.SheetName)
	assert.Equal(t, int64(1<<20), opts.MaxBytes)
	assert.Equal(t, "risk-test", opts.HTTP.UserAgent)
	assert.Equal(t, 5*time.Second, opts.HTTP.Timeout)
	assert.Equal(t, 250*time.Millisecond, opts.HTTP.Retry.InitialBackoff)
	assert.NotNil(t, opts.HTTP.Breakers)
	assert.Equal(t, opts.HTTP.Retry.MaxAttempts, opts.FTP.Retry.MaxAttempts)
}

func TestWindowFlagsResolve(t *testing.T) {
	t.Parallel()

	c := testConfig()
	c.Scoring.WindowFrom = "2023-01"
	c.Scoring.WindowTo = "2023-12"

	tests := []struct {
		name    string
		flags   windowFlags
		from    string
		to      string
		through string
		wantErr string
	}{
		{name: "config window", from: "2023-01", to: "2023-12"},
		{name: "flag override", flags: windowFlags{from: "2023-06", through: "2023-09"}, from: "2023-06", to: "2023-12", through: "2023-09"},
		{name: "bad month", flags: windowFlags{to: "2023-13"}, wantErr: "invalid --to"},
		{name: "inverted", flags: windowFlags{from: "2024-02", to: "2024-01"}, wantErr: "precedes"},
		{name: "bad through", flags: windowFlags{through: "june"}, wantErr: "invalid --through"},
		{name: "too many months", flags: windowFlags{from: "0001-01", to: "9999-12"}, wantErr: "window too large"},
		{name: "at month cap", flags: windowFlags{from: "2014-01", to: "2023-12"}, from: "2014-01", to: "2023-12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w, through, err := tt.flags.resolve(c)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 120, w.MaxMonths)
			assert.Equal(t, tt.from, w.From.String())
			assert.Equal(t, tt.to, w.To.String())
			if tt.through != "" {
				assert.Equal(t, tt.through, through.String())
			} else {
				assert.True(t, through.IsZero())
			}
		})
	}
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	for mode, want := range map[string]model.Strategy{
		"":           "",
		"auto":       "",
		"profile":    model.StrategyProfile,
		"timeseries": model.StrategyTimeSeries,
	} {
		got, err := parseStrategy(mode)
		require.NoError(t, err, mode)
		assert.Equal(t, want, got, mode)
	}

	_, err := parseStrategy("monthly")
	assert.ErrorContains(t, err, "unknown mode")
}
