package session

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Archive persists finished session records to a local sqlite database so
// outcomes survive worker restarts.
type Archive struct {
	db *sql.DB
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id           TEXT PRIMARY KEY,
	board_path   TEXT NOT NULL,
	goal         TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	attempts     INTEGER NOT NULL,
	diff         TEXT NOT NULL DEFAULT '',
	abort_reason TEXT NOT NULL DEFAULT '',
	finished_at  TEXT NOT NULL
);`

// OpenArchive opens (creating if needed) the archive database at path.
func OpenArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session archive: %w", err)
	}
	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init session archive: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close releases the database handle.
func (a *Archive) Close() error { return a.db.Close() }

// Record is one archived session outcome.
type Record struct {
	SessionID   string
	BoardPath   string
	Goal        string
	Outcome     string
	Attempts    int
	Diff        string
	AbortReason string
	FinishedAt  time.Time
}

// Save upserts a session record.
func (a *Archive) Save(rec Record) error {
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now().UTC()
	}
	_, err := a.db.Exec(`
INSERT INTO sessions (id, board_path, goal, outcome, attempts, diff, abort_reason, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	outcome = excluded.outcome,
	attempts = excluded.attempts,
	diff = excluded.diff,
	abort_reason = excluded.abort_reason,
	finished_at = excluded.finished_at`,
		rec.SessionID, rec.BoardPath, rec.Goal, rec.Outcome,
		rec.Attempts, rec.Diff, rec.AbortReason, rec.FinishedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("archive session %s: %w", rec.SessionID, err)
	}
	return nil
}

// Load fetches one archived session by id.
func (a *Archive) Load(sessionID string) (*Record, error) {
	row := a.db.QueryRow(`
SELECT id, board_path, goal, outcome, attempts, diff, abort_reason, finished_at
FROM sessions WHERE id = ?`, sessionID)

	var rec Record
	var finished string
	err := row.Scan(&rec.SessionID, &rec.BoardPath, &rec.Goal, &rec.Outcome,
		&rec.Attempts, &rec.Diff, &rec.AbortReason, &finished)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	rec.FinishedAt, _ = time.Parse(time.RFC3339, finished)
	return &rec, nil
}
