package ledger

import (
	"errors"
	"time"

	"github.com/kbd172102/trading-dashboard/market"
	"github.com/kbd172102/trading-dashboard/risk"
	"github.com/kbd172102/trading-dashboard/strategy"
)

// ErrPositionOpen signals an entry attempted while a position is
// already open. This indicates a dedup failure upstream and aborts the
// cycle's action.
var ErrPositionOpen = errors.New("ledger: entry attempted while position is open")

// CashMark is an extreme of flat cash over a run, with when it was set.
type CashMark struct {
	Cash float64
	Time time.Time
}

// Stats summarizes a ledger's realized activity.
type Stats struct {
	Wins        int
	Losses      int
	ExitPnLs    []float64
	FlatCashMin CashMark
	FlatCashMax CashMark
	EndingCash  float64
	RealizedPnL float64
}

// Ledger drives the FLAT -> OPEN_LONG/OPEN_SHORT -> FLAT state machine
// for one account/instrument pair. It is single-writer: only the
// bar/strategy worker (or the replay loop) touches it.
type Ledger struct {
	params strategy.Params
	sizer  *risk.Sizer

	cash float64
	pos  Position

	cooldownLeft int
	tradesToday  int
	curDay       time.Time
	haveDay      bool
	reversalWait int

	events      []TradeEvent
	realizedCum float64
	wins        int
	losses      int
	exitPnLs    []float64
	flatMin     CashMark
	flatMax     CashMark
}

// New creates a ledger holding the starting cash and a fresh sizer at
// the configured baseline lots.
func New(p strategy.Params, startingCash float64) *Ledger {
	return &Ledger{
		params:  p,
		sizer:   risk.NewSizer(p.InitialLots),
		cash:    startingCash,
		flatMin: CashMark{Cash: startingCash},
		flatMax: CashMark{Cash: startingCash},
	}
}

func (l *Ledger) Cash() float64          { return l.cash }
func (l *Ledger) Position() Position     { return l.pos }
func (l *Ledger) Open() bool             { return l.pos.Open() }
func (l *Ledger) InCooldown() bool       { return l.cooldownLeft > 0 }
func (l *Ledger) Events() []TradeEvent   { return l.events }
func (l *Ledger) RiskState() risk.State  { return l.sizer.State() }
func (l *Ledger) Params() strategy.Params { return l.params }

// Stats returns the realized summary so far.
func (l *Ledger) Stats() Stats {
	return Stats{
		Wins:        l.wins,
		Losses:      l.losses,
		ExitPnLs:    l.exitPnLs,
		FlatCashMin: l.flatMin,
		FlatCashMax: l.flatMax,
		EndingCash:  l.cash,
		RealizedPnL: l.realizedCum,
	}
}

// StartBar resets the daily entry counter on calendar-day change of the
// bar timestamp.
func (l *Ledger) StartBar(ts time.Time) {
	if l.params.DailyTradeCap <= 0 {
		return
	}
	if !l.haveDay || !market.SameDay(ts, l.curDay) {
		l.curDay = ts
		l.haveDay = true
		l.tradesToday = 0
	}
}

// TickCooldown burns one cooldown bar. Call once per closed bar while
// flat.
func (l *Ledger) TickCooldown() {
	if l.cooldownLeft > 0 {
		l.cooldownLeft--
	}
}

// EntryAllowed reports whether an entry may be evaluated this bar:
// flat, not cooling down, and under the daily cap.
func (l *Ledger) EntryAllowed() bool {
	if l.pos.Open() || l.cooldownLeft > 0 {
		return false
	}
	if l.params.DailyTradeCap > 0 && l.tradesToday >= l.params.DailyTradeCap {
		return false
	}
	return true
}

// PlannedLots sizes a prospective entry from the sizer without
// consuming any one-shot boost.
func (l *Ledger) PlannedLots(marginPerLot float64) int {
	return l.sizer.Lots(l.cash, marginPerLot, l.params.ReserveCash)
}

// ExitDecision evaluates exit triggers for the current bar, in strict
// priority order, while a position is open:
//
//  1. MONTH_END: forced liquidation on the period-end bar.
//  2. STOP: fixed or trailing stop breached intrabar.
//  3. EMA_REVERSAL: trend flip against the position, confirmed by an
//     opposite breakout on the same three bars. Without confirmation
//     the exit is deferred, bounded by MaxReversalDefer when set.
//
// When no trigger fires, the trailing stop is ratcheted in the
// favorable direction only.
func (l *Ledger) ExitDecision(b1, b2, b3 market.Bar, emaFast, emaSlow float64, periodEnd bool) (reason string, exit bool) {
	if !l.pos.Open() {
		return "", false
	}

	if periodEnd {
		return ReasonMonthEnd, true
	}

	if l.pos.StopHit(b3.Low, b3.High) {
		return ReasonStop, true
	}

	reversed := (l.pos.Side == Long && emaFast < emaSlow) ||
		(l.pos.Side == Short && emaFast > emaSlow)
	if reversed {
		confirmed := false
		if l.pos.Side == Long {
			confirmed = strategy.BreakoutShort(b1, b2, b3, l.params.BreakoutBuffer)
		} else {
			confirmed = strategy.BreakoutLong(b1, b2, b3, l.params.BreakoutBuffer)
		}
		if confirmed {
			l.reversalWait = 0
			return ReasonEMAReversal, true
		}
		l.reversalWait++
		if l.params.MaxReversalDefer > 0 && l.reversalWait >= l.params.MaxReversalDefer {
			l.reversalWait = 0
			return ReasonEMAReversal, true
		}
	} else {
		l.reversalWait = 0
	}

	l.ratchet(b3.Close)
	return "", false
}

// ratchet tightens the trailing stop when price has moved favorably
// past the entry. The stop never loosens.
func (l *Ledger) ratchet(close float64) {
	switch l.pos.Side {
	case Long:
		if close > l.pos.EntryPrice {
			if t := close * (1 - l.params.TrailSLPct); t > l.pos.TrailStop {
				l.pos.TrailStop = t
			}
		}
	case Short:
		if close < l.pos.EntryPrice {
			if t := close * (1 + l.params.TrailSLPct); t < l.pos.TrailStop {
				l.pos.TrailStop = t
			}
		}
	}
}

// RealizeExit closes the open position at price, settling both entry
// and exit brokerage into the realized P&L, appending the EXIT event,
// running the sizer transition, and starting the cooldown. Available
// cash is mutated here and nowhere else.
func (l *Ledger) RealizeExit(barIdx int, ts time.Time, price float64, reason string) (TradeEvent, error) {
	if !l.pos.Open() {
		return TradeEvent{}, errors.New("ledger: exit requested while flat")
	}

	p := l.pos
	gross := (price - p.EntryPrice) * float64(p.Side) * float64(p.Lots) * l.params.PointValue
	exitFee := l.params.BrokeragePct * price * float64(p.Lots) * l.params.PointValue
	pnl := gross - p.EntryFee - exitFee

	l.cash += pnl
	l.realizedCum += pnl
	l.exitPnLs = append(l.exitPnLs, pnl)
	if pnl >= 0 {
		l.wins++
	} else {
		l.losses++
	}

	ev := TradeEvent{
		ID:            newEventID(),
		Time:          ts,
		Kind:          KindExit,
		Side:          p.Side.String(),
		Price:         price,
		Lots:          p.Lots,
		Reason:        reason,
		RealizedPnL:   pnl,
		CumulativePnL: l.realizedCum,
		AvailableCash: l.cash,
		BarIndex:      barIdx,
	}
	l.events = append(l.events, ev)

	l.sizer.ApplyExit(pnl, l.cash, l.params.MarginPerLot(price))

	if l.cash < l.flatMin.Cash {
		l.flatMin = CashMark{Cash: l.cash, Time: ts}
	}
	if l.cash > l.flatMax.Cash {
		l.flatMax = CashMark{Cash: l.cash, Time: ts}
	}

	l.pos = Position{}
	l.reversalWait = 0
	l.cooldownLeft = l.params.CooldownBars
	return ev, nil
}

// OpenPosition records a filled entry: stops set from the entry price,
// entry brokerage reserved, ENTRY event appended, daily counter
// incremented, and any one-shot boost consumed. Cash is not touched.
//
// Returns ErrPositionOpen if a position already exists; callers must
// treat that as a failed invariant, not a recoverable condition.
func (l *Ledger) OpenPosition(barIdx int, ts time.Time, side Side, price float64, lots int, reason string) (TradeEvent, error) {
	if l.pos.Open() {
		return TradeEvent{}, ErrPositionOpen
	}
	if side == Flat || lots < 1 {
		return TradeEvent{}, errors.New("ledger: invalid entry request")
	}

	marginPerLot := l.params.MarginPerLot(price)
	entryFee := l.params.BrokeragePct * price * float64(lots) * l.params.PointValue

	pos := Position{
		Side:       side,
		EntryPrice: price,
		Lots:       lots,
		Quantity:   lots * l.params.LotSize,
		EntryFee:   entryFee,
		EntryTime:  ts,
		EntryBar:   barIdx,
	}
	if side == Long {
		pos.FixedStop = price * (1 - l.params.FixedSLPct)
		pos.TrailStop = price * (1 - l.params.TrailSLPct)
	} else {
		pos.FixedStop = price * (1 + l.params.FixedSLPct)
		pos.TrailStop = price * (1 + l.params.TrailSLPct)
	}
	l.pos = pos

	ev := TradeEvent{
		ID:            newEventID(),
		Time:          ts,
		Kind:          KindEntry,
		Side:          side.String(),
		Price:         price,
		Lots:          lots,
		Reason:        reason,
		CumulativePnL: l.realizedCum,
		AvailableCash: l.cash,
		MarginInUse:   float64(lots) * marginPerLot,
		BarIndex:      barIdx,
	}
	l.events = append(l.events, ev)

	l.sizer.ConsumeBoost()
	if l.params.DailyTradeCap > 0 {
		l.tradesToday++
	}
	return ev, nil
}
