package main

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/aggregate"
	"github.com/sells-group/risk-cli/internal/config"
	"github.com/sells-group/risk-cli/internal/fetcher"
	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/resilience"
	"github.com/sells-group/risk-cli/internal/schema"
	"github.com/sells-group/risk-cli/internal/scorer"
)

// pipelineEnv holds the decoder, loader, and scoring pipeline shared by the
// score, aggregate, validate, and serve commands.
type pipelineEnv struct {
	Decoder    *schema.Decoder
	Loader     *fetcher.Loader
	Aggregator *aggregate.Aggregator
	Pipeline   *scorer.Pipeline
}

// initPipeline validates the config for mode and builds the pipeline env.
func initPipeline(c *config.Config, mode string) (*pipelineEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	decoder := schema.NewDecoder(schema.Options{DateLayouts: c.Input.DateLayouts})
	p, err := scorer.New(c.Scoring, decoder)
	if err != nil {
		return nil, eris.Wrap(err, "init scorer")
	}

	zap.L().Debug("pipeline initialized",
		zap.String("mode", c.Scoring.Mode),
		zap.Float64("high_threshold", c.Scoring.HighThreshold),
		zap.Float64("medium_threshold", c.Scoring.MediumThreshold),
	)

	return &pipelineEnv{
		Decoder:    decoder,
		Loader:     fetcher.NewLoader(loaderOptions(c)),
		Aggregator: aggregate.New(decoder),
		Pipeline:   p,
	}, nil
}

// loaderOptions maps the input and fetch sections onto fetcher options.
func loaderOptions(c *config.Config) fetcher.Options {
	delim := ','
	if d := []rune(c.Input.Delimiter); len(d) == 1 {
		delim = d[0]
	}

	retry := resilience.FromFetchConfig(c.Fetch)
	timeout := time.Duration(c.Fetch.TimeoutSecs) * time.Second

	return fetcher.Options{
		Delimiter:  delim,
		SheetName:  c.Input.SheetName,
		SheetIndex: c.Input.SheetIndex,
		MaxBytes:   c.Input.MaxBytes,
		HTTP: fetcher.HTTPOptions{
			UserAgent: c.Fetch.UserAgent,
			Timeout:   timeout,
			Retry:     retry,
			Breakers:  resilience.NewHostBreakers(resilience.BreakerFromFetchConfig(c.Fetch)),
		},
		FTP: fetcher.FTPOptions{
			Timeout: timeout,
			Retry:   retry,
		},
	}
}

// windowFlags are the YYYY-MM bounds shared by the score and aggregate
// commands. Empty flags fall back to the configured window.
type windowFlags struct {
	from, to, through string
}

// resolve parses the flags into an aggregation window capped at the
// configured number of months, plus a through month.
func (f windowFlags) resolve(c *config.Config) (aggregate.Window, model.YearMonth, error) {
	var (
		sc      = c.Scoring
		w       = aggregate.Window{MaxMonths: c.Input.MaxMonths}
		through model.YearMonth
		err     error
	)

	from := firstNonEmpty(f.from, sc.WindowFrom)
	to := firstNonEmpty(f.to, sc.WindowTo)

	if from != "" {
		if w.From, err = model.ParseYearMonth(from); err != nil {
			return w, through, eris.Wrap(err, "invalid --from")
		}
	}
	if to != "" {
		if w.To, err = model.ParseYearMonth(to); err != nil {
			return w, through, eris.Wrap(err, "invalid --to")
		}
	}
	if !w.From.IsZero() && !w.To.IsZero() {
		if w.To.Before(w.From) {
			return w, through, eris.Errorf("window end %s precedes start %s", w.To, w.From)
		}
		if err = w.CheckSpan(w.From, w.To); err != nil {
			return w, through, err
		}
	}
	if f.through != "" {
		if through, err = model.ParseYearMonth(f.through); err != nil {
			return w, through, eris.Wrap(err, "invalid --through")
		}
	}
	return w, through, nil
}

// parseStrategy maps a --mode flag onto a forced strategy. "auto" and ""
// leave the choice to the pipeline.
func parseStrategy(mode string) (model.Strategy, error) {
	switch mode {
	case "", "auto":
		return "", nil
	case string(model.StrategyProfile):
		return model.StrategyProfile, nil
	case string(model.StrategyTimeSeries):
		return model.StrategyTimeSeries, nil
	}
	return "", eris.Errorf("unknown mode %q (want auto, profile, or timeseries)", mode)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
