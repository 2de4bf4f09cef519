package market

import "time"

// Aggregator converts a tick stream into fixed-interval bars. Bar
// boundaries are wall-clock aligned in the instrument's trading-day
// timezone, independent of tick arrival gaps.
//
// Aggregator is single-writer: exactly one goroutine may call Ingest.
type Aggregator struct {
	interval time.Duration
	loc      *time.Location

	cur     Bar
	haveCur bool
	dropped int
}

// NewAggregator returns an aggregator producing bars of the given
// interval, aligned in loc. A nil loc defaults to UTC.
func NewAggregator(interval time.Duration, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{interval: interval, loc: loc}
}

// floor truncates ts to the containing interval boundary, computed from
// midnight of the local trading day so that boundaries stay wall-clock
// aligned regardless of the location's UTC offset.
func (a *Aggregator) floor(ts time.Time) time.Time {
	t := ts.In(a.loc)
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, a.loc)
	return midnight.Add(t.Sub(midnight).Truncate(a.interval))
}

// Ingest consumes one tick. When the tick crosses an interval boundary
// the previously in-progress bar is returned closed (ok=true);
// otherwise the in-progress bar is updated and ok is false.
//
// Ticks older than the in-progress bar's start are dropped: a closed
// bar is never reopened. Gaps are tolerated; the next tick closes the
// stale bar and opens a new one at its own boundary, and no synthetic
// bars are fabricated for the missed intervals.
func (a *Aggregator) Ingest(tick Tick) (closed Bar, ok bool) {
	if !tick.Valid() {
		a.dropped++
		return Bar{}, false
	}

	start := a.floor(tick.Time)

	if !a.haveCur {
		a.cur = Bar{Start: start, Open: tick.Price, High: tick.Price, Low: tick.Price, Close: tick.Price}
		a.haveCur = true
		return Bar{}, false
	}

	if start.Before(a.cur.Start) {
		// Late tick from before the current bar opened.
		a.dropped++
		return Bar{}, false
	}

	if start.Equal(a.cur.Start) {
		if tick.Price > a.cur.High {
			a.cur.High = tick.Price
		}
		if tick.Price < a.cur.Low {
			a.cur.Low = tick.Price
		}
		a.cur.Close = tick.Price
		return Bar{}, false
	}

	closed = a.cur
	a.cur = Bar{Start: start, Open: tick.Price, High: tick.Price, Low: tick.Price, Close: tick.Price}
	return closed, true
}

// Current returns a copy of the in-progress bar, if any.
func (a *Aggregator) Current() (Bar, bool) {
	return a.cur, a.haveCur
}

// Dropped returns how many ticks were discarded (invalid or late).
func (a *Aggregator) Dropped() int { return a.dropped }
