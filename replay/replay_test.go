package replay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbd172102/trading-dashboard/ledger"
	"github.com/kbd172102/trading-dashboard/market"
	"github.com/kbd172102/trading-dashboard/strategy"
)

func testParams() strategy.Params {
	p := strategy.Defaults()
	p.EMAShort = 2
	p.EMALong = 3
	p.CooldownBars = 2
	return p
}

func risingBars(n int, from float64) []market.Bar {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, n)
	for i := range bars {
		c := from + float64(i)
		bars[i] = market.Bar{
			Start: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:  c - 0.5, High: c + 0.1, Low: c - 0.6, Close: c,
		}
	}
	return bars
}

func TestRunProducesPairedTrades(t *testing.T) {
	r := &Runner{Params: testParams(), StartingCash: 100000}
	res, err := r.Run(context.Background(), risingBars(20, 100))
	require.NoError(t, err)

	assert.Equal(t, 20, res.Bars)
	require.NotEmpty(t, res.Events)
	require.NotEmpty(t, res.Trades)

	// Every entry has its exit; the final bar is flagged period-end so
	// nothing stays open past the series.
	assert.Equal(t, len(res.Events), 2*len(res.Trades))
	last := res.Events[len(res.Events)-1]
	assert.Equal(t, ledger.KindExit, last.Kind)
	assert.Equal(t, ledger.ReasonMonthEnd, last.Reason)
}

func TestRunIsDeterministic(t *testing.T) {
	bars := risingBars(30, 100)

	a, err := (&Runner{Params: testParams(), StartingCash: 100000}).Run(context.Background(), bars)
	require.NoError(t, err)
	b, err := (&Runner{Params: testParams(), StartingCash: 100000}).Run(context.Background(), bars)
	require.NoError(t, err)

	assert.Equal(t, a.Stats, b.Stats)
	assert.Equal(t, a.Trades, b.Trades)
}

func TestRunTooFewBars(t *testing.T) {
	r := &Runner{Params: testParams(), StartingCash: 100000}
	res, err := r.Run(context.Background(), risingBars(2, 100))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Bars)
	assert.Empty(t, res.Events)
}

func TestRunRejectsBadParams(t *testing.T) {
	p := testParams()
	p.EMAShort = p.EMALong
	r := &Runner{Params: p, StartingCash: 100000}
	_, err := r.Run(context.Background(), risingBars(10, 100))
	assert.Error(t, err)
}

func TestStatsAccounting(t *testing.T) {
	r := &Runner{Params: testParams(), StartingCash: 100000}
	res, err := r.Run(context.Background(), risingBars(20, 100))
	require.NoError(t, err)

	var sum float64
	for _, p := range res.Stats.ExitPnLs {
		sum += p
	}
	assert.InDelta(t, res.Stats.RealizedPnL, sum, 1e-9)
	assert.InDelta(t, 100000+res.Stats.RealizedPnL, res.Stats.EndingCash, 1e-9)
	assert.Equal(t, len(res.Trades), res.Stats.Wins+res.Stats.Losses)
}
