package journal

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration is one step of the journal schema.
type Migration struct {
	Version     int
	Description string
	Up          string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Executions table",
		Up: `
CREATE TABLE IF NOT EXISTS executions (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp_ns  INTEGER NOT NULL,
    device        TEXT NOT NULL,
    layer         TEXT NOT NULL,
    history       TEXT NOT NULL,
    kind          TEXT NOT NULL,
    action        TEXT NOT NULL,
    error         TEXT
);
CREATE INDEX IF NOT EXISTS idx_executions_timestamp ON executions(timestamp_ns);
`,
	},
	{
		Version:     2,
		Description: "Index executions by device",
		Up:          `CREATE INDEX IF NOT EXISTS idx_executions_device ON executions(device, timestamp_ns);`,
	},
}

// migrate applies every migration newer than the recorded schema version.
func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.Version, time.Now().UnixNano(), m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// Version returns the applied schema version.
func (j *Journal) Version() (int, error) {
	var v int
	err := j.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	return v, err
}
