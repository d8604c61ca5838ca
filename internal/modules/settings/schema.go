package settings

import "database/sql"

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	description TEXT,
	updated_at INTEGER NOT NULL
);
`

// InitSchema creates the settings table if it does not exist.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
