// Package ledger keeps a SQLite catalog of every image the dataset writer
// published, and reconciles it when files are moved or deleted afterwards.
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"character-hunter/src/dataset"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS captures (
	path        TEXT PRIMARY KEY,
	meta_path   TEXT NOT NULL DEFAULT '',
	subject     TEXT NOT NULL,
	source      TEXT NOT NULL DEFAULT '',
	query       TEXT NOT NULL DEFAULT '',
	session     TEXT NOT NULL DEFAULT '',
	sequence_id INTEGER NOT NULL DEFAULT 0,
	captured_at DATETIME NOT NULL,
	removed_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_captures_subject ON captures(subject);
`

// Ledger wraps a sql.DB with catalog operations.
type Ledger struct {
	conn *sql.DB
}

// SubjectCount summarizes one subject folder.
type SubjectCount struct {
	Subject string `json:"subject"`
	Saved   int    `json:"saved"`
	Removed int    `json:"removed"`
}

// Open opens (or creates) the ledger database and applies the schema.
func Open(path string) (*Ledger, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ledger: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: apply schema: %w", err)
	}
	return &Ledger{conn: conn}, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	return l.conn.Close()
}

// Record inserts or refreshes a catalog row for e.
func (l *Ledger) Record(e dataset.Entry) error {
	_, err := l.conn.Exec(`
		INSERT INTO captures (path, meta_path, subject, source, query, session, sequence_id, captured_at, removed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(path) DO UPDATE SET
			meta_path = excluded.meta_path,
			subject = excluded.subject,
			source = excluded.source,
			query = excluded.query,
			session = excluded.session,
			sequence_id = excluded.sequence_id,
			captured_at = excluded.captured_at,
			removed_at = NULL`,
		e.Path, e.MetaPath, e.Subject, e.Source, e.Query, e.Session, e.SequenceID, e.CapturedAt.UTC())
	if err != nil {
		return fmt.Errorf("ledger: record %s: %w", e.Path, err)
	}
	return nil
}

// Notify implements dataset.Notifier. Failures are logged, never returned to
// the writer.
func (l *Ledger) Notify(e dataset.Entry) {
	if err := l.Record(e); err != nil {
		log.Printf("Ledger: %v", err)
	}
}

// MarkRemoved flags path as no longer on disk. It reports whether a live
// row was changed.
func (l *Ledger) MarkRemoved(path string) (bool, error) {
	res, err := l.conn.Exec(`UPDATE captures SET removed_at = ? WHERE path = ? AND removed_at IS NULL`,
		time.Now().UTC(), path)
	if err != nil {
		return false, fmt.Errorf("ledger: mark removed %s: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LivePaths returns every path not marked removed.
func (l *Ledger) LivePaths() ([]string, error) {
	rows, err := l.conn.Query(`SELECT path FROM captures WHERE removed_at IS NULL ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("ledger: live paths: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Counts returns per-subject totals ordered by subject.
func (l *Ledger) Counts() ([]SubjectCount, error) {
	rows, err := l.conn.Query(`
		SELECT subject,
			SUM(CASE WHEN removed_at IS NULL THEN 1 ELSE 0 END),
			SUM(CASE WHEN removed_at IS NULL THEN 0 ELSE 1 END)
		FROM captures GROUP BY subject ORDER BY subject`)
	if err != nil {
		return nil, fmt.Errorf("ledger: counts: %w", err)
	}
	defer rows.Close()
	var out []SubjectCount
	for rows.Next() {
		var c SubjectCount
		if err := rows.Scan(&c.Subject, &c.Saved, &c.Removed); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Reconcile marks every live row whose file has disappeared. It returns the
// number of rows changed.
func (l *Ledger) Reconcile() (int, error) {
	paths, err := l.LivePaths()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range paths {
		if _, err := os.Stat(p); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if changed, err := l.MarkRemoved(p); err != nil {
			return n, err
		} else if changed {
			n++
		}
	}
	return n, nil
}
