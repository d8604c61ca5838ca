package batches

import "database/sql"

const schema = `
CREATE TABLE IF NOT EXISTS batches (
	id TEXT PRIMARY KEY,
	recipients TEXT NOT NULL,
	amounts TEXT NOT NULL,
	category TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	total_amount INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	executed INTEGER NOT NULL DEFAULT 0,
	cancelled INTEGER NOT NULL DEFAULT 0
) STRICT;
`

// InitSchema creates the batches table if it does not exist.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
