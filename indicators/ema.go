package indicators

import (
	"fmt"

	"github.com/kbd172102/trading-dashboard/market"
)

// ExponentialMA is a streaming Exponential Moving Average.
//
// It seeds from the first close and applies the classic recursion
// ema = ema + alpha*(close-ema) with alpha = 2/(span+1) from the second
// bar on. Because the recursion carries no window, running it
// incrementally bar-by-bar or once over a full historical array
// produces bit-identical values for identical inputs.
type ExponentialMA struct {
	span  int
	alpha float64
	ema   float64
	count int
}

// NewEMA creates an EMA with the given span.
func NewEMA(span int) *ExponentialMA {
	return &ExponentialMA{
		span:  span,
		alpha: 2.0 / float64(span+1),
	}
}

func (e *ExponentialMA) Name() string {
	return fmt.Sprintf("EMA(%d)", e.span)
}

func (e *ExponentialMA) Warmup() int {
	return e.span
}

func (e *ExponentialMA) Reset() {
	e.ema = 0
	e.count = 0
}

func (e *ExponentialMA) Update(b market.Bar) {
	if e.count == 0 {
		e.ema = b.Close
	} else {
		e.ema += e.alpha * (b.Close - e.ema)
	}
	e.count++
}

// Ready reports whether at least Warmup() bars have been consumed. The
// value is defined from the first bar; Ready marks where it has decayed
// enough from the seed to be trusted.
func (e *ExponentialMA) Ready() bool {
	return e.count >= e.span
}

func (e *ExponentialMA) Value() float64 {
	if e.count == 0 {
		return 0
	}
	return e.ema
}

// Count returns how many bars have been consumed.
func (e *ExponentialMA) Count() int { return e.count }

// Series computes the EMA over bars in one pass, returning one value
// per bar. Used by the replay path; it matches the streaming form
// exactly.
func Series(bars []market.Bar, span int) []float64 {
	out := make([]float64, len(bars))
	ema := NewEMA(span)
	for i, b := range bars {
		ema.Update(b)
		out[i] = ema.Value()
	}
	return out
}
