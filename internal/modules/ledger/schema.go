package ledger

import "database/sql"

const schema = `
CREATE TABLE IF NOT EXISTS categories (
	category TEXT PRIMARY KEY,
	total_allocated INTEGER NOT NULL DEFAULT 0,
	reserved INTEGER NOT NULL DEFAULT 0,
	total_spent INTEGER NOT NULL DEFAULT 0,
	last_distribution INTEGER NOT NULL DEFAULT 0
) STRICT;

CREATE TABLE IF NOT EXISTS policy_entries (
	position INTEGER PRIMARY KEY,
	category TEXT NOT NULL UNIQUE,
	bps INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
) STRICT;
`

// InitSchema creates the ledger tables if they do not exist.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
