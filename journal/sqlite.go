package journal

import (
	"database/sql"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kbd172102/trading-dashboard/ledger"
	"github.com/kbd172102/trading-dashboard/market"
)

// SQLiteJournal stores events and bars in a SQLite database.
type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordEvent(ev ledger.TradeEvent) error {
	_, err := j.db.Exec(`
		INSERT INTO trade_events
		(event_id, time, kind, side, price, lots, reason, realized_pnl, cumulative_pnl, available_cash, margin_in_use, bar_index)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Time, ev.Kind, ev.Side, ev.Price, ev.Lots, ev.Reason,
		ev.RealizedPnL, ev.CumulativePnL, ev.AvailableCash, ev.MarginInUse, ev.BarIndex,
	)
	return err
}

// RecordBar upserts a closed bar. Re-ingesting the same bar (e.g. after
// a restart replays the feed) is a no-op rather than an error.
func (j *SQLiteJournal) RecordBar(token string, b market.Bar) error {
	_, err := j.db.Exec(`
		INSERT INTO bars (token, start_time, open, high, low, close)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(token, start_time) DO NOTHING`,
		token, b.Start, b.Open, b.High, b.Low, b.Close,
	)
	return err
}

// RecentBars returns up to n most recent bars for token, oldest first.
func (j *SQLiteJournal) RecentBars(token string, n int) ([]market.Bar, error) {
	rows, err := j.db.Query(`
		SELECT start_time, open, high, low, close
		FROM bars WHERE token = ?
		ORDER BY start_time DESC LIMIT ?`, token, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []market.Bar
	for rows.Next() {
		var b market.Bar
		if err := rows.Scan(&b.Start, &b.Open, &b.High, &b.Low, &b.Close); err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(bars, func(i, k int) bool { return bars[i].Start.Before(bars[k].Start) })
	return bars, nil
}

// ListEventsBetween returns events with start <= time < end, in time
// order.
func (j *SQLiteJournal) ListEventsBetween(start, end time.Time) ([]ledger.TradeEvent, error) {
	rows, err := j.db.Query(`
		SELECT event_id, time, kind, side, price, lots, reason, realized_pnl, cumulative_pnl, available_cash, margin_in_use, bar_index
		FROM trade_events
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evs []ledger.TradeEvent
	for rows.Next() {
		var ev ledger.TradeEvent
		if err := rows.Scan(&ev.ID, &ev.Time, &ev.Kind, &ev.Side, &ev.Price, &ev.Lots, &ev.Reason,
			&ev.RealizedPnL, &ev.CumulativePnL, &ev.AvailableCash, &ev.MarginInUse, &ev.BarIndex); err != nil {
			return nil, err
		}
		evs = append(evs, ev)
	}
	return evs, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
