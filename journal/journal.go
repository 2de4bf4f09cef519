// Package journal persists the append-only trade-event log and closed
// bars. The SQLite store also serves the live path's warm-up backfill.
package journal

import (
	"time"

	"github.com/kbd172102/trading-dashboard/ledger"
	"github.com/kbd172102/trading-dashboard/market"
)

// Journal records trade events and closed bars.
type Journal interface {
	RecordEvent(ev ledger.TradeEvent) error
	RecordBar(token string, bar market.Bar) error
	Close() error
}

// BarReader loads recent persisted bars, newest-last. Used to warm
// indicators on live start.
type BarReader interface {
	RecentBars(token string, n int) ([]market.Bar, error)
}

// EventReader lists recorded events in time order.
type EventReader interface {
	ListEventsBetween(start, end time.Time) ([]ledger.TradeEvent, error)
}
