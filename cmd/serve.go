package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for scoring requests",
	Long: `Start an HTTP server that scores uploaded datasets.

Routes:
  GET  /health     liveness check
  GET  /metrics    Prometheus metrics
  POST /v1/score   score a dataset (multipart "file" field or raw body)
  GET  /v1/stats   recent run summary

/v1/score accepts mode, from, to, through, and format query parameters and
records the X-User-ID header on the report.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(cfg, "serve")
		if err != nil {
			return err
		}

		retention := 24 * time.Hour
		if lb := time.Duration(cfg.Monitoring.LookbackMinutes) * time.Minute; lb > retention {
			retention = lb
		}
		collector := monitoring.NewCollector(retention)

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newScoreServer(env, cfg, collector).routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.Bool("monitoring", cfg.Monitoring.Enabled),
			zap.Float64("rate_limit_rps", cfg.Server.RateLimitRPS),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
