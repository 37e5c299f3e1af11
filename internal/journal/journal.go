// Package journal records executed macros in a SQLite database.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// FileName is the journal database name inside the state directory.
const FileName = "journal.db"

// ErrClosed is returned when recording into a closed journal.
var ErrClosed = errors.New("journal: closed")

// Entry is one macro execution.
type Entry struct {
	ID      int64
	At      time.Time
	Device  string
	Layer   string
	History string
	Kind    string
	Action  string
	// Error is the spawn failure, empty on success.
	Error string
}

// Journal is the execution log.
type Journal struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed || j.db == nil {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

// Record appends e. A zero At is stamped with the current time.
func (j *Journal) Record(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	_, err := j.db.Exec(`
		INSERT INTO executions (timestamp_ns, device, layer, history, kind, action, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.At.UnixNano(), e.Device, e.Layer, e.History, e.Kind, e.Action, nullString(e.Error),
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. An empty device
// matches all devices.
func (j *Journal) Recent(device string, limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.Query(`
		SELECT id, timestamp_ns, device, layer, history, kind, action, error
		FROM executions
		WHERE ? = '' OR device = ?
		ORDER BY timestamp_ns DESC, id DESC
		LIMIT ?`,
		device, device, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			ts     int64
			errMsg sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Device, &e.Layer, &e.History, &e.Kind, &e.Action, &errMsg); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		e.At = time.Unix(0, ts)
		e.Error = errMsg.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries older than before and reports how many were removed.
func (j *Journal) Prune(before time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return 0, ErrClosed
	}

	res, err := j.db.Exec("DELETE FROM executions WHERE timestamp_ns < ?", before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune executions: %w", err)
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
