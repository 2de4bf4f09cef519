package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbd172102/trading-dashboard/market"
	"github.com/kbd172102/trading-dashboard/strategy"
)

func testParams() strategy.Params {
	p := strategy.Defaults()
	p.EMAShort = 3
	p.EMALong = 5
	return p
}

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return New(testParams(), 100000)
}

func ts(day, hour, min int) time.Time {
	return time.Date(2026, 3, day, hour, min, 0, 0, time.UTC)
}

func flatBar(c float64) market.Bar {
	return market.Bar{Open: c, High: c, Low: c, Close: c}
}

func TestOpenPositionSetsStops(t *testing.T) {
	l := newTestLedger(t)

	ev, err := l.OpenPosition(10, ts(2, 9, 0), Long, 100, 2, "breakout long")
	require.NoError(t, err)
	assert.Equal(t, KindEntry, ev.Kind)
	assert.Equal(t, "LONG", ev.Side)

	pos := l.Position()
	assert.InDelta(t, 98.50, pos.FixedStop, 1e-9)
	assert.InDelta(t, 97.50, pos.TrailStop, 1e-9)
	assert.Equal(t, 2*5, pos.Quantity)
	// Entry fee reserved, cash untouched until exit.
	assert.InDelta(t, 0.0003*100*2*5, pos.EntryFee, 1e-9)
	assert.Equal(t, 100000.0, l.Cash())
}

func TestSecondEntryIsInvariantViolation(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.OpenPosition(10, ts(2, 9, 0), Long, 100, 2, "x")
	require.NoError(t, err)

	_, err = l.OpenPosition(11, ts(2, 9, 15), Long, 101, 2, "x")
	assert.ErrorIs(t, err, ErrPositionOpen)
}

func TestFixedStopFiresIntrabar(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.OpenPosition(10, ts(2, 9, 0), Long, 100, 2, "x")
	require.NoError(t, err)

	// Low pierces the 98.50 stop even though the close recovered.
	b3 := market.Bar{Open: 99, High: 99.5, Low: 98.40, Close: 99.2}
	reason, exit := l.ExitDecision(flatBar(100), flatBar(99.5), b3, 101, 100, false)
	assert.True(t, exit)
	assert.Equal(t, ReasonStop, reason)
}

func TestPeriodEndOutranksEverything(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.OpenPosition(10, ts(31, 9, 0), Long, 100, 2, "x")
	require.NoError(t, err)

	// Nothing else would fire: price comfortably above stops, trend up.
	reason, exit := l.ExitDecision(flatBar(100), flatBar(101), flatBar(102), 101, 100, true)
	assert.True(t, exit)
	assert.Equal(t, ReasonMonthEnd, reason)
}

func TestEMAReversalNeedsConfirmingBreakout(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.OpenPosition(10, ts(2, 9, 0), Long, 100, 2, "x")
	require.NoError(t, err)

	// Trend flipped against the long but no bearish breakout: deferred.
	reason, exit := l.ExitDecision(flatBar(100), flatBar(100), flatBar(100), 99, 100, false)
	assert.False(t, exit)
	assert.Empty(t, reason)

	// Confirming short breakout on a later bar closes it.
	b1 := market.Bar{Open: 100.5, High: 100.8, Low: 99.6, Close: 100}
	b2 := market.Bar{Open: 100, High: 100.2, Low: 98.8, Close: 99}
	// Close under the buffered prior low, while the bar's low stays
	// above the 98.50 fixed stop so STOP does not fire first.
	b3 := market.Bar{Open: 99, High: 99.3, Low: 98.55, Close: 98.6}
	reason, exit = l.ExitDecision(b1, b2, b3, 99, 100, false)
	assert.True(t, exit)
	assert.Equal(t, ReasonEMAReversal, reason)
}

func TestReversalDeferCapForcesExit(t *testing.T) {
	p := testParams()
	p.MaxReversalDefer = 2
	l := New(p, 100000)
	_, err := l.OpenPosition(10, ts(2, 9, 0), Long, 100, 2, "x")
	require.NoError(t, err)

	_, exit := l.ExitDecision(flatBar(100), flatBar(100), flatBar(100), 99, 100, false)
	assert.False(t, exit)
	reason, exit := l.ExitDecision(flatBar(100), flatBar(100), flatBar(100), 99, 100, false)
	assert.True(t, exit)
	assert.Equal(t, ReasonEMAReversal, reason)
}

func TestTrailingStopRatchetsFavorablyOnly(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.OpenPosition(10, ts(2, 9, 0), Long, 100, 2, "x")
	require.NoError(t, err)

	prev := l.Position().TrailStop
	closes := []float64{101, 103, 102, 105, 104, 104.5}
	for _, c := range closes {
		b := market.Bar{Open: c, High: c + 0.2, Low: c - 0.2, Close: c}
		_, exit := l.ExitDecision(flatBar(c), flatBar(c), b, 101, 100, false)
		require.False(t, exit)
		cur := l.Position().TrailStop
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
	// 105 was the best close: stop parked at 105*(1-0.025).
	assert.InDelta(t, 105*0.975, prev, 1e-9)
}

func TestTrailingStopNeedsPriceBeyondEntry(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.OpenPosition(10, ts(2, 9, 0), Long, 100, 2, "x")
	require.NoError(t, err)

	initial := l.Position().TrailStop
	// Close below entry: no ratchet even though 99.9*(1-0.025) > 97.5.
	b := market.Bar{Open: 99.8, High: 99.95, Low: 99.7, Close: 99.9}
	_, exit := l.ExitDecision(flatBar(100), flatBar(100), b, 101, 100, false)
	require.False(t, exit)
	assert.Equal(t, initial, l.Position().TrailStop)
}

func TestRealizeExitSettlesBothFees(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.OpenPosition(10, ts(2, 9, 0), Long, 100, 2, "x")
	require.NoError(t, err)

	ev, err := l.RealizeExit(14, ts(2, 10, 0), 104, ReasonStop)
	require.NoError(t, err)

	gross := (104.0 - 100.0) * 2 * 5
	entryFee := 0.0003 * 100 * 2 * 5
	exitFee := 0.0003 * 104 * 2 * 5
	want := gross - entryFee - exitFee

	assert.InDelta(t, want, ev.RealizedPnL, 1e-9)
	assert.InDelta(t, 100000+want, l.Cash(), 1e-9)
	assert.False(t, l.Open())
	assert.True(t, l.InCooldown())

	stats := l.Stats()
	assert.Equal(t, 1, stats.Wins)
	assert.InDelta(t, want, stats.RealizedPnL, 1e-9)
}

func TestShortExitPnL(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.OpenPosition(10, ts(2, 9, 0), Short, 100, 3, "x")
	require.NoError(t, err)

	ev, err := l.RealizeExit(12, ts(2, 9, 30), 97, ReasonEMAReversal)
	require.NoError(t, err)

	gross := (97.0 - 100.0) * -1 * 3 * 5
	fees := 0.0003*100*3*5 + 0.0003*97*3*5
	assert.InDelta(t, gross-fees, ev.RealizedPnL, 1e-9)
}

func TestCooldownBlocksEntries(t *testing.T) {
	l := newTestLedger(t)
	_, _ = l.OpenPosition(10, ts(2, 9, 0), Long, 100, 2, "x")
	_, err := l.RealizeExit(11, ts(2, 9, 15), 99, ReasonStop)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.False(t, l.EntryAllowed())
		l.TickCooldown()
	}
	assert.True(t, l.EntryAllowed())
}

func TestDailyCapResetsOnNewDay(t *testing.T) {
	p := testParams()
	p.DailyTradeCap = 2
	p.CooldownBars = 0
	l := New(p, 100000)

	for i := 0; i < 2; i++ {
		l.StartBar(ts(2, 9+i, 0))
		require.True(t, l.EntryAllowed())
		_, err := l.OpenPosition(i*2, ts(2, 9+i, 0), Long, 100, 1, "x")
		require.NoError(t, err)
		_, err = l.RealizeExit(i*2+1, ts(2, 9+i, 30), 100, ReasonStop)
		require.NoError(t, err)
	}

	l.StartBar(ts(2, 12, 0))
	assert.False(t, l.EntryAllowed())

	// Next calendar day resets the counter.
	l.StartBar(ts(3, 9, 0))
	assert.True(t, l.EntryAllowed())
}

func TestPairTradesRoundTrip(t *testing.T) {
	l := newTestLedger(t)
	_, _ = l.OpenPosition(10, ts(2, 9, 0), Long, 100, 2, "breakout long")
	_, _ = l.RealizeExit(14, ts(2, 10, 0), 104, ReasonStop)
	_, _ = l.OpenPosition(20, ts(2, 11, 30), Short, 103, 1, "breakout short")
	_, _ = l.RealizeExit(22, ts(2, 12, 0), 101, ReasonEMAReversal)

	trades, err := PairTrades(l.Events(), 5, 15)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	assert.Equal(t, "LONG", trades[0].Side)
	assert.Equal(t, 4, trades[0].HoldingBars)
	assert.Equal(t, 60, trades[0].HoldingMinutes)
	assert.InDelta(t, 40.0, trades[0].GrossPnL, 1e-9)
	assert.Equal(t, ReasonStop, trades[0].ExitReason)

	assert.Equal(t, "SHORT", trades[1].Side)
	assert.InDelta(t, 10.0, trades[1].GrossPnL, 1e-9)
	// Brokerage reconciles gross minus net.
	assert.InDelta(t, trades[1].GrossPnL-trades[1].NetPnL, trades[1].Brokerage, 1e-9)
}

func TestPairTradesRejectsDoubleEntry(t *testing.T) {
	events := []TradeEvent{
		{Kind: KindEntry, Side: "LONG", Time: ts(2, 9, 0)},
		{Kind: KindEntry, Side: "LONG", Time: ts(2, 9, 15)},
	}
	_, err := PairTrades(events, 5, 15)
	assert.Error(t, err)

	_, err = PairTrades([]TradeEvent{{Kind: KindExit, Time: ts(2, 9, 0)}}, 5, 15)
	assert.Error(t, err)
}

func TestNoConsecutiveEntriesInEventLog(t *testing.T) {
	l := newTestLedger(t)
	_, _ = l.OpenPosition(10, ts(2, 9, 0), Long, 100, 2, "x")
	_, _ = l.RealizeExit(11, ts(2, 9, 15), 101, ReasonStop)
	_, _ = l.OpenPosition(15, ts(2, 10, 15), Short, 101, 1, "x")
	_, _ = l.RealizeExit(16, ts(2, 10, 30), 100, ReasonStop)

	last := ""
	for _, ev := range l.Events() {
		if ev.Kind == KindEntry {
			require.NotEqual(t, KindEntry, last, "two ENTRY events without intervening EXIT")
		}
		last = ev.Kind
	}
}
