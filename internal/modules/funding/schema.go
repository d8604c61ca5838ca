package funding

import "database/sql"

const schema = `
CREATE TABLE IF NOT EXISTS pools (
	name TEXT PRIMARY KEY,
	recipient TEXT NOT NULL,
	category TEXT NOT NULL,
	total_funded INTEGER NOT NULL DEFAULT 0
) STRICT;
`

// InitSchema creates the pools table if it does not exist.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
