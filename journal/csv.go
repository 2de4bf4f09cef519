package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/kbd172102/trading-dashboard/ledger"
	"github.com/kbd172102/trading-dashboard/market"
)

// CSVJournal appends trade events to a CSV file. Bars are not
// persisted; reporting collaborators only consume the event log.
type CSVJournal struct {
	w *csv.Writer
	f *os.File
}

func NewCSV(path string) (*CSVJournal, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		"event_id", "time", "kind", "side", "price", "lots", "reason",
		"realized_pnl", "cumulative_pnl", "available_cash", "margin_in_use", "bar_index",
	}); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, err
	}

	return &CSVJournal{w: w, f: f}, nil
}

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (j *CSVJournal) RecordEvent(ev ledger.TradeEvent) error {
	if err := j.w.Write([]string{
		ev.ID,
		ev.Time.Format(time.RFC3339),
		ev.Kind,
		ev.Side,
		f(ev.Price),
		strconv.Itoa(ev.Lots),
		ev.Reason,
		f(ev.RealizedPnL),
		f(ev.CumulativePnL),
		f(ev.AvailableCash),
		f(ev.MarginInUse),
		strconv.Itoa(ev.BarIndex),
	}); err != nil {
		return err
	}
	j.w.Flush()
	return j.w.Error()
}

func (j *CSVJournal) RecordBar(token string, b market.Bar) error {
	_ = token
	_ = b
	return nil
}

func (j *CSVJournal) Close() error {
	j.w.Flush()
	if err := j.w.Error(); err != nil {
		j.f.Close()
		return err
	}
	return j.f.Close()
}
