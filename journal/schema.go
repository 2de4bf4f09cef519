package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trade_events (
	event_id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	kind TEXT NOT NULL,
	side TEXT NOT NULL,
	price REAL NOT NULL,
	lots INTEGER NOT NULL,
	reason TEXT NOT NULL,
	realized_pnl REAL NOT NULL,
	cumulative_pnl REAL NOT NULL,
	available_cash REAL NOT NULL,
	margin_in_use REAL NOT NULL,
	bar_index INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trade_events_time ON trade_events(time);

CREATE TABLE IF NOT EXISTS bars (
	token TEXT NOT NULL,
	start_time DATETIME NOT NULL,
	open REAL NOT NULL,
	high REAL NOT NULL,
	low REAL NOT NULL,
	close REAL NOT NULL,
	PRIMARY KEY (token, start_time)
);

CREATE INDEX IF NOT EXISTS idx_bars_token_time ON bars(token, start_time);
`
