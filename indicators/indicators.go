// Package indicators provides the streaming technical indicators the
// strategy consumes. All indicators are deterministic: feeding the same
// closed bars in the same order yields the same values in live,
// replay, and backtest use.
package indicators

import "github.com/kbd172102/trading-dashboard/market"

// Indicator computes a single streaming value from closed bars.
type Indicator interface {
	// Name returns a stable identifier like "EMA(27)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next *closed* bar and updates internal state.
	Update(b market.Bar)

	// Ready reports whether Value() is meaningful.
	Ready() bool

	// Value returns the current indicator value; callers should check
	// Ready() first.
	Value() float64
}
