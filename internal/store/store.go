// Package store is the durable state of the device: persisted alarms
// and the set of already-processed relay message ids. Both are mutated
// from more than one flow, so every read-modify-write sequence runs
// under one mutex.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Alarm struct {
	ID     string
	FireAt time.Time
	Label  string
	Fired  bool
}

type Store struct {
	mu sync.Mutex
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS alarms (
	id      TEXT PRIMARY KEY,
	fire_at INTEGER NOT NULL,
	label   TEXT NOT NULL DEFAULT '',
	fired   INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS processed_messages (
	id      TEXT PRIMARY KEY,
	seen_at INTEGER NOT NULL
);
`

// Open opens (creating if needed) the database and bootstraps the
// schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// AddAlarm persists a new alarm and returns it with its id assigned.
func (s *Store) AddAlarm(fireAt time.Time, label string) (Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := Alarm{ID: uuid.NewString(), FireAt: fireAt, Label: label}
	_, err := s.db.Exec(
		`INSERT INTO alarms (id, fire_at, label, fired) VALUES (?, ?, ?, 0)`,
		a.ID, a.FireAt.Unix(), a.Label)
	if err != nil {
		return Alarm{}, fmt.Errorf("insert alarm: %w", err)
	}
	return a, nil
}

// ListAlarms returns all alarms ordered by fire time.
func (s *Store) ListAlarms() ([]Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listAlarmsLocked()
}

func (s *Store) listAlarmsLocked() ([]Alarm, error) {
	rows, err := s.db.Query(`SELECT id, fire_at, label, fired FROM alarms ORDER BY fire_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query alarms: %w", err)
	}
	defer rows.Close()

	var out []Alarm
	for rows.Next() {
		var a Alarm
		var at int64
		var fired int
		if err := rows.Scan(&a.ID, &at, &a.Label, &fired); err != nil {
			return nil, fmt.Errorf("scan alarm: %w", err)
		}
		a.FireAt = time.Unix(at, 0)
		a.Fired = fired != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAlarm removes one alarm. Deleting an id the scheduler fired in
// the meantime is not an error.
func (s *Store) DeleteAlarm(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM alarms WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete alarm: %w", err)
	}
	return nil
}

// DeleteAllAlarms clears the alarm table and reports how many went.
func (s *Store) DeleteAllAlarms() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM alarms`)
	if err != nil {
		return 0, fmt.Errorf("delete alarms: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// FireDue atomically selects every unfired alarm due at now and marks
// it fired. The single transaction under the store mutex is the
// exclusion boundary with concurrent handler deletes, and makes a
// restart with a past-due alarm fire it exactly once.
func (s *Store) FireDue(now time.Time) ([]Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`SELECT id, fire_at, label FROM alarms WHERE fired = 0 AND fire_at <= ? ORDER BY fire_at ASC`,
		now.Unix())
	if err != nil {
		return nil, fmt.Errorf("query due alarms: %w", err)
	}

	var due []Alarm
	for rows.Next() {
		var a Alarm
		var at int64
		if err := rows.Scan(&a.ID, &at, &a.Label); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan due alarm: %w", err)
		}
		a.FireAt = time.Unix(at, 0)
		due = append(due, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range due {
		if _, err := tx.Exec(`UPDATE alarms SET fired = 1 WHERE id = ?`, due[i].ID); err != nil {
			return nil, fmt.Errorf("mark fired: %w", err)
		}
		due[i].Fired = true
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return due, nil
}

// SeenMessage reports whether a relay message id was already processed.
func (s *Store) SeenMessage(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var one int
	err := s.db.QueryRow(`SELECT 1 FROM processed_messages WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query processed: %w", err)
	}
	return true, nil
}

// MarkProcessed records a relay message id durably. Re-marking is a
// no-op.
func (s *Store) MarkProcessed(id string, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO processed_messages (id, seen_at) VALUES (?, ?)`,
		id, seenAt.Unix())
	if err != nil {
		return fmt.Errorf("insert processed: %w", err)
	}
	return nil
}
