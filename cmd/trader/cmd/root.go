package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kbd172102/trading-dashboard/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "Intraday breakout trading engine for leveraged commodity futures",
	Long: `Trader runs a three-bar breakout strategy with an EMA trend filter
against a single leveraged instrument, either live against the broker
or as a replay over historical bars.

It provides tools for:
  - Replaying historical 15-minute bars with full P&L accounting
  - Running the live tick-to-order pipeline against the broker
  - Importing historical bar archives into the journal
  - Streak-reactive position sizing with margin-aware caps`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON)")
}

// loadConfig reads the configured file, or defaults when none given.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		cfg := config.Default()
		cfg.ApplyEnv()
		return cfg, nil
	}
	return config.LoadFromFile(cfgFile)
}
