package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kbd172102/trading-dashboard/ledger"
	"github.com/kbd172102/trading-dashboard/replay"
)

const timeLayout = "2006-01-02 15:04"

func printTrades(trades []ledger.TradeSummary) {
	if len(trades) == 0 {
		fmt.Println("No completed trades.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSIDE\tENTRY\tEXIT\tIN\tOUT\tLOTS\tBARS\tGROSS\tFEES\tNET\tEXIT REASON")
	for i, t := range trades {
		fmt.Fprintf(w, "%d\t%s\t%.2f\t%.2f\t%s\t%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%s\n",
			i+1, t.Side, t.EntryPrice, t.ExitPrice,
			t.EntryTime.Format(timeLayout), t.ExitTime.Format(timeLayout),
			t.Lots, t.HoldingBars, t.GrossPnL, t.Brokerage, t.NetPnL, t.ExitReason)
	}
	w.Flush()
	fmt.Println()
}

func printStats(res replay.Result) {
	s := res.Stats
	total := s.Wins + s.Losses
	winRate := 0.0
	if total > 0 {
		winRate = float64(s.Wins) / float64(total) * 100
	}

	var best, worst float64
	for i, p := range s.ExitPnLs {
		if i == 0 || p > best {
			best = p
		}
		if i == 0 || p < worst {
			worst = p
		}
	}

	fmt.Println("Run summary")
	fmt.Printf("  Bars:          %d\n", res.Bars)
	fmt.Printf("  Trades:        %d (%d wins / %d losses, %.1f%% win rate)\n", total, s.Wins, s.Losses, winRate)
	fmt.Printf("  Realized P&L:  %.2f\n", s.RealizedPnL)
	fmt.Printf("  Ending cash:   %.2f\n", s.EndingCash)
	if total > 0 {
		fmt.Printf("  Best trade:    %.2f\n", best)
		fmt.Printf("  Worst trade:   %.2f\n", worst)
	}
	if !s.FlatCashMin.Time.IsZero() {
		fmt.Printf("  Flat cash low: %.2f at %s\n", s.FlatCashMin.Cash, s.FlatCashMin.Time.Format(timeLayout))
		fmt.Printf("  Flat cash high:%.2f at %s\n", s.FlatCashMax.Cash, s.FlatCashMax.Time.Format(timeLayout))
	}
}
