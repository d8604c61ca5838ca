package withdrawals

import "database/sql"

const schema = `
CREATE TABLE IF NOT EXISTS proposals (
	id TEXT PRIMARY KEY,
	proposer TEXT NOT NULL,
	recipient TEXT NOT NULL,
	amount INTEGER NOT NULL,
	category TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	execution_time INTEGER NOT NULL,
	status TEXT NOT NULL,
	approvals TEXT NOT NULL DEFAULT '[]',
	is_large INTEGER NOT NULL DEFAULT 0
) STRICT;

CREATE INDEX IF NOT EXISTS idx_proposals_status ON proposals(status);
`

// InitSchema creates the proposals table if it does not exist.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
