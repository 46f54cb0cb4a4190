package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bricodata/retail-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "retail-cli",
	Short: "Retail customer churn and sales forecasting toolkit",
	Long:  "Generates and imports retail transaction data, derives RFM features, trains the churn classifier and the daily sales forecaster, and serves predictions.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
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
