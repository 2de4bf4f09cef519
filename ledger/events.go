package ledger

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event kinds.
const (
	KindEntry = "ENTRY"
	KindExit  = "EXIT"
)

// Exit reasons, recorded verbatim in the event log.
const (
	ReasonMonthEnd    = "MONTH_END"
	ReasonStop        = "STOP"
	ReasonEMAReversal = "EMA_REVERSAL"
	ReasonEOD         = "EOD"
)

// TradeEvent is one immutable row of the append-only event log. The
// log is the single source of truth: trade summaries and P&L tables
// are derived from it and nothing recomputes P&L independently.
type TradeEvent struct {
	ID            string
	Time          time.Time
	Kind          string
	Side          string
	Price         float64
	Lots          int
	Reason        string
	RealizedPnL   float64
	CumulativePnL float64
	AvailableCash float64
	MarginInUse   float64
	BarIndex      int
}

func newEventID() string {
	return ulid.Make().String()
}

// TradeSummary is one completed round trip derived from an ENTRY/EXIT
// pair.
type TradeSummary struct {
	EntryTime  time.Time
	ExitTime   time.Time
	Side       string
	EntryPrice float64
	ExitPrice  float64
	Lots       int

	EntryReason string
	ExitReason  string

	HoldingBars    int
	HoldingMinutes int

	GrossPnL  float64
	Brokerage float64
	NetPnL    float64

	CashAtEntry float64
	CashAfter   float64
}

// PairTrades re-derives per-trade summaries by pairing ENTRY and EXIT
// rows in order. events must be the full log, already sorted by time
// (the ledger appends in order). pointValue converts price moves into
// money; barMinutes converts holding bars into minutes.
func PairTrades(events []TradeEvent, pointValue float64, barMinutes int) ([]TradeSummary, error) {
	var out []TradeSummary
	var open *TradeEvent

	for i := range events {
		ev := events[i]
		switch ev.Kind {
		case KindEntry:
			if open != nil {
				return nil, fmt.Errorf("ledger: ENTRY at %s follows unclosed ENTRY at %s", ev.Time, open.Time)
			}
			open = &events[i]
		case KindExit:
			if open == nil {
				return nil, fmt.Errorf("ledger: EXIT at %s without prior ENTRY", ev.Time)
			}
			side := 1.0
			if open.Side == Short.String() {
				side = -1
			}
			gross := (ev.Price - open.Price) * side * float64(open.Lots) * pointValue
			bars := ev.BarIndex - open.BarIndex
			out = append(out, TradeSummary{
				EntryTime:      open.Time,
				ExitTime:       ev.Time,
				Side:           open.Side,
				EntryPrice:     open.Price,
				ExitPrice:      ev.Price,
				Lots:           open.Lots,
				EntryReason:    open.Reason,
				ExitReason:     ev.Reason,
				HoldingBars:    bars,
				HoldingMinutes: bars * barMinutes,
				GrossPnL:       gross,
				Brokerage:      gross - ev.RealizedPnL,
				NetPnL:         ev.RealizedPnL,
				CashAtEntry:    open.AvailableCash,
				CashAfter:      ev.AvailableCash,
			})
			open = nil
		default:
			return nil, fmt.Errorf("ledger: unknown event kind %q", ev.Kind)
		}
	}
	return out, nil
}
