package strategy

import (
	"fmt"

	"github.com/kbd172102/trading-dashboard/market"
)

// Action is a signal decision.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
	Hold Action = "HOLD"
)

// Signal is the evaluator's output for one closed bar.
type Signal struct {
	Action Action
	Reason string
}

// BreakoutLong reports whether the three closed bars form a bullish
// two-candle run whose third bar closes beyond the second bar's high by
// more than the buffer. All comparisons are strict; ties do not count.
func BreakoutLong(b1, b2, b3 market.Bar, buffer float64) bool {
	return b1.Bullish() && b2.Bullish() &&
		b2.High > b1.High &&
		b3.Close > b2.High*(1+buffer)
}

// BreakoutShort is the mirror of BreakoutLong.
func BreakoutShort(b1, b2, b3 market.Bar, buffer float64) bool {
	return b1.Bearish() && b2.Bearish() &&
		b2.Low < b1.Low &&
		b3.Close < b2.Low*(1-buffer)
}

// Evaluate emits BUY, SELL, or HOLD from the three most recent closed
// bars (chronological order) and the EMAs attached to the last of them.
//
// Evaluate is a pure function of its arguments: it never looks at the
// bar currently forming, holds no state, and is safe to call from unit
// tests in isolation.
func Evaluate(b1, b2, b3 market.Bar, emaFast, emaSlow, buffer float64) Signal {
	switch {
	case BreakoutLong(b1, b2, b3, buffer) && emaFast > emaSlow:
		return Signal{Action: Buy, Reason: "breakout long, ema uptrend"}
	case BreakoutShort(b1, b2, b3, buffer) && emaFast < emaSlow:
		return Signal{Action: Sell, Reason: "breakout short, ema downtrend"}
	case BreakoutLong(b1, b2, b3, buffer) || BreakoutShort(b1, b2, b3, buffer):
		return Signal{Action: Hold, Reason: "breakout against ema trend"}
	default:
		return Signal{Action: Hold, Reason: fmt.Sprintf("no breakout (uptrend=%v)", emaFast > emaSlow)}
	}
}
