// Package store archives session histories in a SQLite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/MeKo-Tech/photoedit/internal/history"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Session is an archived history.
type Session struct {
	UpdatedAt time.Time
	ID        string
	Snapshots []history.Snapshot
	Cursor    int
}

// Summary describes an archived session without its image data.
type Summary struct {
	UpdatedAt time.Time `json:"updatedAt"`
	ID        string    `json:"id"`
	Snapshots int       `json:"snapshots"`
	Cursor    int       `json:"cursor"`
}

// Store is a session archive.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// Open opens or creates the archive at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, path: path, now: time.Now}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			cursor INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS snapshots (
			session_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			mime TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			data BLOB NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS snapshot_index ON snapshots (session_id, idx);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Save replaces the archived history of id in one transaction.
func (s *Store) Save(id string, snapshots []history.Snapshot, cursor int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO sessions (id, cursor, updated_at) VALUES (?, ?, ?)",
		id, cursor, s.now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("failed to save session %s: %w", id, err)
	}
	if _, err := tx.Exec("DELETE FROM snapshots WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("failed to clear snapshots of %s: %w", id, err)
	}

	stmt, err := tx.Prepare("INSERT INTO snapshots (session_id, idx, mime, width, height, data) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, snap := range snapshots {
		if _, err := stmt.Exec(id, i, snap.MIMEType, snap.Width, snap.Height, snap.Data); err != nil {
			return fmt.Errorf("failed to insert snapshot %s/%d: %w", id, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Load reads the archived history of id.
func (s *Store) Load(id string) (Session, error) {
	sess := Session{ID: id}

	var updated int64
	err := s.db.QueryRow("SELECT cursor, updated_at FROM sessions WHERE id = ?", id).Scan(&sess.Cursor, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to query session: %w", err)
	}
	sess.UpdatedAt = time.UnixMilli(updated)

	rows, err := s.db.Query("SELECT mime, width, height, data FROM snapshots WHERE session_id = ? ORDER BY idx", id)
	if err != nil {
		return Session{}, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var snap history.Snapshot
		if err := rows.Scan(&snap.MIMEType, &snap.Width, &snap.Height, &snap.Data); err != nil {
			return Session{}, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		sess.Snapshots = append(sess.Snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return Session{}, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return sess, nil
}

// List returns all archived sessions, most recently updated first.
func (s *Store) List() ([]Summary, error) {
	rows, err := s.db.Query(`
		SELECT s.id, s.cursor, s.updated_at, COUNT(p.idx)
		FROM sessions s LEFT JOIN snapshots p ON p.session_id = s.id
		GROUP BY s.id
		ORDER BY s.updated_at DESC, s.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var updated int64
		if err := rows.Scan(&sum.ID, &sum.Cursor, &updated, &sum.Snapshots); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sum.UpdatedAt = time.UnixMilli(updated)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return out, nil
}

// Delete removes an archived session. Unknown ids return ErrNotFound.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	if _, err := tx.Exec("DELETE FROM snapshots WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete snapshots of %s: %w", id, err)
	}
	res, err := tx.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
