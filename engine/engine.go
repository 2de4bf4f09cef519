// Package engine glues the indicator, signal, sizing, and ledger
// pieces into one decision per closed bar. The same engine instance
// backs both the streaming live path and the historical replay path;
// the two drivers differ only in scheduling.
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kbd172102/trading-dashboard/broker"
	"github.com/kbd172102/trading-dashboard/indicators"
	"github.com/kbd172102/trading-dashboard/ledger"
	"github.com/kbd172102/trading-dashboard/market"
	"github.com/kbd172102/trading-dashboard/strategy"
)

// EventSink receives trade events as they are appended. Typically a
// journal; may be nil.
type EventSink interface {
	RecordEvent(ev ledger.TradeEvent) error
}

// MarginQuoter supplies the margin required per lot for a prospective
// order. The live path binds this to the venue; replay derives it from
// the strategy's margin factor.
type MarginQuoter interface {
	MarginPerLot(ctx context.Context, action strategy.Action, price float64) (float64, error)
}

type paramsMargin struct{ p strategy.Params }

func (m paramsMargin) MarginPerLot(_ context.Context, _ strategy.Action, price float64) (float64, error) {
	return m.p.MarginPerLot(price), nil
}

// Engine evaluates exactly one decision per closed bar. It is
// single-writer: one goroutine (the bar/strategy worker, or the replay
// loop) owns it.
type Engine struct {
	params strategy.Params
	ledger *ledger.Ledger
	fast   *indicators.ExponentialMA
	slow   *indicators.ExponentialMA
	placer broker.OrderPlacer
	margin MarginQuoter
	sink   EventSink

	window  []market.Bar // last three closed bars
	count   int
	lastBar market.Bar
}

// New builds an engine over a fresh ledger. placer must not be nil;
// sink and margin may be.
func New(p strategy.Params, startingCash float64, placer broker.OrderPlacer, margin MarginQuoter, sink EventSink) *Engine {
	if margin == nil {
		margin = paramsMargin{p: p}
	}
	return &Engine{
		params: p,
		ledger: ledger.New(p, startingCash),
		fast:   indicators.NewEMA(p.EMAShort),
		slow:   indicators.NewEMA(p.EMALong),
		placer: placer,
		margin: margin,
		sink:   sink,
	}
}

// Ledger exposes the engine's ledger for stats and event reads.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// BarsSeen returns how many closed bars the engine has consumed,
// including primed ones.
func (e *Engine) BarsSeen() int { return e.count }

// Warm reports whether the indicator warm-up requirement is met.
func (e *Engine) Warm() bool { return e.count >= e.params.Warmup() }

// EMAs returns the current fast and slow EMA values.
func (e *Engine) EMAs() (fast, slow float64) {
	return e.fast.Value(), e.slow.Value()
}

// Prime consumes a historical bar for indicator and window state only,
// with no trading decision. The live path primes backfilled bars before
// going live so indicators are warm without replaying old trades.
func (e *Engine) Prime(bar market.Bar) {
	e.advance(bar)
}

func (e *Engine) advance(bar market.Bar) {
	e.fast.Update(bar)
	e.slow.Update(bar)
	e.window = append(e.window, bar)
	if len(e.window) > 3 {
		e.window = e.window[1:]
	}
	e.count++
	e.lastBar = bar
}

func (e *Engine) emit(ev ledger.TradeEvent) {
	if e.sink == nil {
		return
	}
	if err := e.sink.RecordEvent(ev); err != nil {
		log.Printf("[WARN] event sink: %v", err)
	}
}

// OnBar processes one closed bar: indicators advance, exit triggers are
// checked while a position is open, and, when flat, warm, outside
// cooldown, and under the daily cap, an entry signal is evaluated and
// sized. It returns the trade events the bar produced.
//
// A bar that realizes an exit produces no entry; cooldown bars are
// consumed whole.
func (e *Engine) OnBar(ctx context.Context, bar market.Bar, periodEnd bool) ([]ledger.TradeEvent, error) {
	e.advance(bar)
	barIdx := e.count - 1

	e.ledger.StartBar(bar.Start)

	if e.ledger.Open() {
		if len(e.window) < 3 {
			return nil, nil
		}
		b1, b2, b3 := e.window[0], e.window[1], e.window[2]
		reason, exit := e.ledger.ExitDecision(b1, b2, b3, e.fast.Value(), e.slow.Value(), periodEnd)
		if !exit {
			return nil, nil
		}
		ev, err := e.closeOut(ctx, barIdx, bar.Start, b3.Close, reason)
		if err != nil {
			// Ledger untouched; the same trigger re-fires next bar.
			log.Printf("[WARN] exit order not placed (%s): %v", reason, err)
			return nil, nil
		}
		return []ledger.TradeEvent{ev}, nil
	}

	if e.ledger.InCooldown() {
		e.ledger.TickCooldown()
		return nil, nil
	}

	if len(e.window) < 3 || !e.Warm() || !e.ledger.EntryAllowed() {
		return nil, nil
	}

	b1, b2, b3 := e.window[0], e.window[1], e.window[2]
	sig := strategy.Evaluate(b1, b2, b3, e.fast.Value(), e.slow.Value(), e.params.BreakoutBuffer)
	if sig.Action == strategy.Hold {
		return nil, nil
	}

	ev, err := e.enter(ctx, barIdx, bar.Start, sig, b3.Close)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, nil
	}
	return []ledger.TradeEvent{*ev}, nil
}

// enter sizes and places an entry order. A rejected or errored order
// leaves the engine flat with sizer state untouched.
func (e *Engine) enter(ctx context.Context, barIdx int, ts time.Time, sig strategy.Signal, price float64) (*ledger.TradeEvent, error) {
	marginPerLot, err := e.margin.MarginPerLot(ctx, sig.Action, price)
	if err != nil {
		log.Printf("[WARN] margin quote failed, skipping entry: %v", err)
		return nil, nil
	}
	if marginPerLot <= 0 {
		log.Printf("[WARN] invalid margin quote %v, skipping entry", marginPerLot)
		return nil, nil
	}

	lots := e.ledger.PlannedLots(marginPerLot)
	qty := lots * e.params.LotSize

	res, err := e.placer.PlaceOrder(ctx, broker.OrderRequest{
		Side:       string(sig.Action),
		Instrument: e.params.Instrument,
		Quantity:   qty,
	})
	if err != nil {
		log.Printf("[WARN] entry order error, staying flat: %v", err)
		return nil, nil
	}
	if !res.Accepted {
		log.Printf("[WARN] entry order rejected (%s), staying flat", res.Reason)
		return nil, nil
	}

	side := ledger.Long
	if sig.Action == strategy.Sell {
		side = ledger.Short
	}

	ev, err := e.ledger.OpenPosition(barIdx, ts, side, price, lots, sig.Reason)
	if err != nil {
		return nil, fmt.Errorf("engine: open after fill %s: %w", res.OrderID, err)
	}
	e.emit(ev)
	return &ev, nil
}

// closeOut places the closing order and realizes the exit. The closing
// order direction opposes the open side.
func (e *Engine) closeOut(ctx context.Context, barIdx int, ts time.Time, price float64, reason string) (ledger.TradeEvent, error) {
	pos := e.ledger.Position()
	action := "SELL"
	if pos.Side == ledger.Short {
		action = "BUY"
	}

	res, err := e.placer.PlaceOrder(ctx, broker.OrderRequest{
		Side:       action,
		Instrument: e.params.Instrument,
		Quantity:   pos.Quantity,
	})
	if err != nil {
		return ledger.TradeEvent{}, err
	}
	if !res.Accepted {
		return ledger.TradeEvent{}, fmt.Errorf("close order rejected: %s", res.Reason)
	}

	ev, err := e.ledger.RealizeExit(barIdx, ts, price, reason)
	if err != nil {
		return ledger.TradeEvent{}, err
	}
	e.emit(ev)
	return ev, nil
}

// OnTick checks the open position's stops against a raw tick between
// bars. Bar-close evaluation remains authoritative for ratcheting; the
// tick path only fires existing stops.
func (e *Engine) OnTick(ctx context.Context, price float64, ts time.Time) ([]ledger.TradeEvent, error) {
	if !e.ledger.Open() || price <= 0 {
		return nil, nil
	}
	pos := e.ledger.Position()
	if !pos.StopHit(price, price) {
		return nil, nil
	}
	ev, err := e.closeOut(ctx, e.count-1, ts, price, ledger.ReasonStop)
	if err != nil {
		log.Printf("[WARN] tick stop exit not placed: %v", err)
		return nil, nil
	}
	return []ledger.TradeEvent{ev}, nil
}

// CloseAtEnd force-closes any open position at the last seen bar's
// close. Used on the session's final bar.
func (e *Engine) CloseAtEnd(ctx context.Context, reason string) (*ledger.TradeEvent, error) {
	if !e.ledger.Open() {
		return nil, nil
	}
	if reason == "" {
		reason = ledger.ReasonEOD
	}
	ev, err := e.closeOut(ctx, e.count-1, e.lastBar.Start, e.lastBar.Close, reason)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}
