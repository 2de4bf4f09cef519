// Package market provides the price primitives the engine trades on:
// ticks, fixed-interval OHLC bars, and loaders for historical bar data.
package market

import "time"

// Bar is a fixed-interval OHLC summary. A bar is immutable once closed;
// only the Aggregator mutates the in-progress bar.
type Bar struct {
	Start time.Time

	Open  float64
	High  float64
	Low   float64
	Close float64
}

// Bullish reports whether the bar closed above its open.
func (b Bar) Bullish() bool { return b.Close > b.Open }

// Bearish reports whether the bar closed below its open.
func (b Bar) Bearish() bool { return b.Close < b.Open }

// SameDay reports whether both bars fall on the same calendar day of
// their respective locations. Used for the daily entry-cap reset.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// LastDayOfMonth reports whether ts falls on the final calendar day of
// its month.
func LastDayOfMonth(ts time.Time) bool {
	return ts.AddDate(0, 0, 1).Month() != ts.Month()
}
