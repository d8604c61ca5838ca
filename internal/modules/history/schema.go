package history

import "database/sql"

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	counterparty TEXT NOT NULL,
	amount INTEGER NOT NULL,
	category TEXT NOT NULL,
	kind TEXT NOT NULL,
	balance_after INTEGER NOT NULL
) STRICT;

CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);

CREATE TABLE IF NOT EXISTS monthly_aggregates (
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	received INTEGER NOT NULL DEFAULT 0,
	distributed INTEGER NOT NULL DEFAULT 0,
	emergency_withdrawn INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (year, month)
) STRICT;

CREATE TABLE IF NOT EXISTS metrics (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	total_received INTEGER NOT NULL DEFAULT 0,
	total_distributed INTEGER NOT NULL DEFAULT 0,
	balance INTEGER NOT NULL DEFAULT 0,
	policy_applications INTEGER NOT NULL DEFAULT 0,
	withdrawal_count INTEGER NOT NULL DEFAULT 0,
	emergency_count INTEGER NOT NULL DEFAULT 0
) STRICT;

INSERT OR IGNORE INTO metrics (id) VALUES (1);
`

// InitSchema creates the history tables if they do not exist.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
