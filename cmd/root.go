package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "risk-cli",
	Short: "Financial risk scoring pipeline",
	Long: "Loads customer profile tables or transaction ledgers from files, HTTP, or FTP, " +
		"scores income resilience, KYC stability, spending propensity, and risk vigilance on a 0-10 scale, " +
		"and classifies the composite as Low, Medium, or High risk.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
