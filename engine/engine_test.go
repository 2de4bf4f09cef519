package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbd172102/trading-dashboard/broker"
	"github.com/kbd172102/trading-dashboard/ledger"
	"github.com/kbd172102/trading-dashboard/market"
	"github.com/kbd172102/trading-dashboard/strategy"
)

// scriptedPlacer records every order and can be told to reject or
// error on demand.
type scriptedPlacer struct {
	requests []broker.OrderRequest
	reject   bool
	fail     bool
	seq      int
}

func (p *scriptedPlacer) PlaceOrder(_ context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	p.requests = append(p.requests, req)
	if p.fail {
		return broker.OrderResult{}, errors.New("venue unreachable")
	}
	if p.reject {
		return broker.OrderResult{Accepted: false, Reason: "margin check failed"}, nil
	}
	p.seq++
	return broker.OrderResult{Accepted: true, OrderID: fmt.Sprintf("T-%04d", p.seq)}, nil
}

func testParams() strategy.Params {
	p := strategy.Defaults()
	p.EMAShort = 2
	p.EMALong = 3
	p.CooldownBars = 2
	return p
}

func risingBar(i int, close float64) market.Bar {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC).Add(time.Duration(i) * 15 * time.Minute)
	return market.Bar{Start: start, Open: close - 0.5, High: close + 0.1, Low: close - 0.6, Close: close}
}

// feedRising pushes n steadily rising bars, returning all events.
func feedRising(t *testing.T, e *Engine, n int, from float64) []ledger.TradeEvent {
	t.Helper()
	var events []ledger.TradeEvent
	for i := 0; i < n; i++ {
		evs, err := e.OnBar(context.Background(), risingBar(i, from+float64(i)), false)
		require.NoError(t, err)
		events = append(events, evs...)
	}
	return events
}

func TestEngineEntersAfterWarmup(t *testing.T) {
	placer := &scriptedPlacer{}
	e := New(testParams(), 100000, placer, nil, nil)

	events := feedRising(t, e, 8, 100)
	require.NotEmpty(t, events)
	assert.Equal(t, ledger.KindEntry, events[0].Kind)
	assert.Equal(t, "LONG", events[0].Side)

	require.NotEmpty(t, placer.requests)
	assert.Equal(t, "BUY", placer.requests[0].Side)
	assert.Equal(t, "SILVERM", placer.requests[0].Instrument)
	// Quantity is lots * lot size.
	assert.Equal(t, events[0].Lots*5, placer.requests[0].Quantity)
}

func TestEngineStaysFlatBeforeWarmup(t *testing.T) {
	placer := &scriptedPlacer{}
	e := New(testParams(), 100000, placer, nil, nil)

	// Warmup is EMALong+3 = 6 bars; five rising bars must not trade.
	feedRising(t, e, 5, 100)
	assert.Empty(t, placer.requests)
	assert.False(t, e.Ledger().Open())
}

func TestRejectedOrderLeavesEngineFlat(t *testing.T) {
	placer := &scriptedPlacer{reject: true}
	e := New(testParams(), 100000, placer, nil, nil)

	events := feedRising(t, e, 10, 100)
	assert.Empty(t, events)
	assert.False(t, e.Ledger().Open())
	// The engine kept trying; every attempt was rejected, none opened.
	assert.NotEmpty(t, placer.requests)
}

func TestOrderErrorLeavesEngineFlat(t *testing.T) {
	placer := &scriptedPlacer{fail: true}
	e := New(testParams(), 100000, placer, nil, nil)

	feedRising(t, e, 10, 100)
	assert.False(t, e.Ledger().Open())
}

func TestPeriodEndClosesOpenPosition(t *testing.T) {
	placer := &scriptedPlacer{}
	e := New(testParams(), 100000, placer, nil, nil)

	feedRising(t, e, 8, 100)
	require.True(t, e.Ledger().Open())

	evs, err := e.OnBar(context.Background(), risingBar(8, 108), true)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, ledger.KindExit, evs[0].Kind)
	assert.Equal(t, ledger.ReasonMonthEnd, evs[0].Reason)
	assert.False(t, e.Ledger().Open())
}

func TestExitBarNeverReenters(t *testing.T) {
	placer := &scriptedPlacer{}
	e := New(testParams(), 100000, placer, nil, nil)

	feedRising(t, e, 8, 100)
	require.True(t, e.Ledger().Open())

	// A period-end bar that would also qualify as a fresh breakout
	// still produces only the exit.
	evs, err := e.OnBar(context.Background(), risingBar(8, 108), true)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, ledger.KindExit, evs[0].Kind)
}

func TestTickStopCheckFiresBetweenBars(t *testing.T) {
	placer := &scriptedPlacer{}
	e := New(testParams(), 100000, placer, nil, nil)

	feedRising(t, e, 8, 100)
	require.True(t, e.Ledger().Open())
	pos := e.Ledger().Position()

	// A tick above the stops does nothing.
	evs, err := e.OnTick(context.Background(), pos.EntryPrice, time.Now())
	require.NoError(t, err)
	assert.Empty(t, evs)
	assert.True(t, e.Ledger().Open())

	// A tick through the fixed stop closes immediately.
	evs, err = e.OnTick(context.Background(), pos.FixedStop-0.01, time.Now())
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, ledger.ReasonStop, evs[0].Reason)
	assert.False(t, e.Ledger().Open())
}

func TestCloseAtEnd(t *testing.T) {
	placer := &scriptedPlacer{}
	e := New(testParams(), 100000, placer, nil, nil)

	feedRising(t, e, 8, 100)
	require.True(t, e.Ledger().Open())

	ev, err := e.CloseAtEnd(context.Background(), ledger.ReasonEOD)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, ledger.ReasonEOD, ev.Reason)
	assert.False(t, e.Ledger().Open())

	// Idempotent while flat.
	ev, err = e.CloseAtEnd(context.Background(), ledger.ReasonEOD)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestFailedExitRetriesNextBar(t *testing.T) {
	placer := &scriptedPlacer{}
	e := New(testParams(), 100000, placer, nil, nil)

	feedRising(t, e, 8, 100)
	require.True(t, e.Ledger().Open())

	// Venue down: the exit trigger fires but no event is produced and
	// the position survives.
	placer.fail = true
	evs, err := e.OnBar(context.Background(), risingBar(8, 108), true)
	require.NoError(t, err)
	assert.Empty(t, evs)
	assert.True(t, e.Ledger().Open())

	// Venue back: the same trigger closes it on the next bar.
	placer.fail = false
	evs, err = e.OnBar(context.Background(), risingBar(9, 109), true)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, ledger.KindExit, evs[0].Kind)
}

func TestPrimeMatchesOnBarIndicators(t *testing.T) {
	placer := &scriptedPlacer{}
	traded := New(testParams(), 100000, placer, nil, nil)
	primed := New(testParams(), 100000, placer, nil, nil)

	for i := 0; i < 12; i++ {
		b := risingBar(i, 100+float64(i))
		_, err := traded.OnBar(context.Background(), b, false)
		require.NoError(t, err)
		primed.Prime(b)
	}

	tf, ts := traded.EMAs()
	pf, ps := primed.EMAs()
	assert.Equal(t, tf, pf)
	assert.Equal(t, ts, ps)
	assert.Equal(t, traded.BarsSeen(), primed.BarsSeen())
	// Priming never trades.
	assert.Empty(t, primed.Ledger().Events())
}

func TestEventLogNeverHasConsecutiveEntries(t *testing.T) {
	placer := &scriptedPlacer{}
	e := New(testParams(), 100000, placer, nil, nil)

	// Rise, force a period-end exit, rise again through cooldown.
	feedRising(t, e, 8, 100)
	_, err := e.OnBar(context.Background(), risingBar(8, 108), true)
	require.NoError(t, err)
	for i := 9; i < 20; i++ {
		_, err := e.OnBar(context.Background(), risingBar(i, 100+float64(i)), false)
		require.NoError(t, err)
	}

	last := ""
	for _, ev := range e.Ledger().Events() {
		if ev.Kind == ledger.KindEntry {
			require.NotEqual(t, ledger.KindEntry, last)
		}
		last = ev.Kind
	}
	require.GreaterOrEqual(t, len(e.Ledger().Events()), 3)
}
