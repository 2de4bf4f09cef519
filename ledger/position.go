// Package ledger owns the single open-position record: stop levels,
// cooldown, the append-only trade-event log, and realized P&L
// bookkeeping. At most one non-flat position exists per ledger.
package ledger

import "time"

// Side: +1 long, -1 short, 0 flat.
type Side int8

const (
	Flat  Side = 0
	Long  Side = +1
	Short Side = -1
)

func (s Side) String() string {
	switch s {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// Position is the open-position record. Created by an entry, mutated
// every bar while open (trailing-stop ratchet), zeroed on exit.
type Position struct {
	Side       Side
	EntryPrice float64
	Lots       int
	Quantity   int

	FixedStop float64
	TrailStop float64

	// EntryFee is the brokerage reserved at entry, settled into the
	// matching exit's realized P&L.
	EntryFee float64

	EntryTime time.Time
	EntryBar  int
}

// Open reports whether the position is live.
func (p Position) Open() bool { return p.Side != Flat }

// StopHit reports whether the given bar extremes breach the fixed or
// trailing stop intrabar.
func (p Position) StopHit(low, high float64) bool {
	switch p.Side {
	case Long:
		return low <= p.FixedStop || low <= p.TrailStop
	case Short:
		return high >= p.FixedStop || high >= p.TrailStop
	default:
		return false
	}
}
