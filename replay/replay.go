// Package replay drives historical bars through the strategy engine,
// deterministically and single-threaded, to produce backtest
// statistics.
package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/kbd172102/trading-dashboard/broker"
	"github.com/kbd172102/trading-dashboard/engine"
	"github.com/kbd172102/trading-dashboard/indicators"
	"github.com/kbd172102/trading-dashboard/ledger"
	"github.com/kbd172102/trading-dashboard/market"
	"github.com/kbd172102/trading-dashboard/strategy"
)

// Result summarizes one replay run.
type Result struct {
	Events []ledger.TradeEvent
	Trades []ledger.TradeSummary
	Stats  ledger.Stats

	FirstBar time.Time
	LastBar  time.Time
	Bars     int
}

// Runner replays a bar history through a fresh engine.
type Runner struct {
	Params       strategy.Params
	StartingCash float64

	// Sink optionally receives every trade event as it happens, e.g. a
	// journal. May be nil.
	Sink engine.EventSink
}

// Run replays bars (sorted ascending) and returns the run summary. Any
// position still open after the final bar is force-closed with reason
// EOD.
func (r *Runner) Run(ctx context.Context, bars []market.Bar) (Result, error) {
	if err := r.Params.Validate(); err != nil {
		return Result{}, err
	}
	if len(bars) < 3 {
		return Result{Bars: len(bars)}, nil
	}

	eng := engine.New(r.Params, r.StartingCash, &broker.AcceptAll{}, nil, r.Sink)
	periodEnd := indicators.PeriodEndFlags(bars)

	for i, b := range bars {
		if _, err := eng.OnBar(ctx, b, periodEnd[i]); err != nil {
			return Result{}, fmt.Errorf("replay bar %d (%s): %w", i, b.Start, err)
		}
	}

	if _, err := eng.CloseAtEnd(ctx, ledger.ReasonEOD); err != nil {
		return Result{}, fmt.Errorf("replay end-of-data close: %w", err)
	}

	l := eng.Ledger()
	trades, err := ledger.PairTrades(l.Events(), r.Params.PointValue, r.Params.BarMinutes)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Events:   l.Events(),
		Trades:   trades,
		Stats:    l.Stats(),
		FirstBar: bars[0].Start,
		LastBar:  bars[len(bars)-1].Start,
		Bars:     len(bars),
	}, nil
}
