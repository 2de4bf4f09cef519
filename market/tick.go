package market

import "time"

// Tick is a single last-traded-price update pushed by the data feed.
type Tick struct {
	Token string
	Price float64
	Time  time.Time
}

// Valid reports whether the tick carries enough to be usable. Feeds
// drop invalid ticks rather than failing the process.
func (t Tick) Valid() bool {
	return t.Price > 0 && !t.Time.IsZero()
}
