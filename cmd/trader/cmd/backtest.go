package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kbd172102/trading-dashboard/engine"
	"github.com/kbd172102/trading-dashboard/journal"
	"github.com/kbd172102/trading-dashboard/market"
	"github.com/kbd172102/trading-dashboard/replay"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical bars through the strategy",
	Long: `Backtest replays a CSV of OHLC bars through the breakout strategy and
prints the per-trade table and run statistics.

The CSV needs time,open,high,low,close columns (header names are
matched loosely; .xz compressed files are read transparently).

Example:
  trader backtest -c silverm.yaml --data data/silverm_15min.csv.xz`,
	RunE: runBacktest,
}

var (
	btDataPath string
	btDBPath   string
	btCSVPath  string
	btBalance  float64
	btTrades   bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btDataPath, "data", "d", "", "path to bar CSV (required)")
	backtestCmd.Flags().StringVar(&btDBPath, "db", "", "journal events to this SQLite DB")
	backtestCmd.Flags().StringVar(&btCSVPath, "events", "", "journal events to this CSV file")
	backtestCmd.Flags().Float64VarP(&btBalance, "balance", "b", 0, "starting cash (overrides config)")
	backtestCmd.Flags().BoolVar(&btTrades, "trades", true, "print the per-trade table")

	backtestCmd.MarkFlagRequired("data")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if btBalance > 0 {
		cfg.Account.StartingCash = btBalance
	}

	bars, dropped, err := market.LoadBarsFile(btDataPath)
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}
	if dropped > 0 {
		fmt.Printf("Skipped %d unparsable rows\n", dropped)
	}

	var sink engine.EventSink
	switch {
	case btDBPath != "":
		j, err := journal.NewSQLite(btDBPath)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer j.Close()
		sink = j
	case btCSVPath != "":
		j, err := journal.NewCSV(btCSVPath)
		if err != nil {
			return fmt.Errorf("open events csv: %w", err)
		}
		defer j.Close()
		sink = j
	}

	runner := &replay.Runner{
		Params:       cfg.Strategy,
		StartingCash: cfg.Account.StartingCash,
		Sink:         sink,
	}

	first, last := firstLast(bars)
	fmt.Printf("Replaying %d bars of %s (%s -> %s)\n\n", len(bars), cfg.Strategy.Instrument, first, last)

	res, err := runner.Run(context.Background(), bars)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	if btTrades {
		printTrades(res.Trades)
	}
	printStats(res)
	return nil
}

func firstLast(bars []market.Bar) (string, string) {
	if len(bars) == 0 {
		return "-", "-"
	}
	const layout = "2006-01-02 15:04"
	return bars[0].Start.Format(layout), bars[len(bars)-1].Start.Format(layout)
}
