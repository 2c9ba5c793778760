package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"olmera/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS account (
	id   INTEGER PRIMARY KEY CHECK (id = 1),
	blob TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
	session_id       TEXT PRIMARY KEY,
	device_key       TEXT NOT NULL,
	pickle           TEXT NOT NULL,
	last_received_ts INTEGER NOT NULL DEFAULT 0,
	used_seq         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_device ON sessions(device_key, used_seq DESC);
`

// SQLiteStore persists the account blob and session records in SQLite.
// used_seq orders each device's sessions most-recently-used first.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database file and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", domain.ErrStorage, err)
	}
	db.SetMaxOpenConns(1) // sqlite
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping sqlite: %v", domain.ErrStorage, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: apply schema: %v", domain.ErrStorage, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// LoadAccount returns the stored account blob, if any.
func (s *SQLiteStore) LoadAccount() (string, bool, error) {
	var blob string
	err := s.db.QueryRow(`SELECT blob FROM account WHERE id = 1`).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: load account: %v", domain.ErrStorage, err)
	}
	return blob, true, nil
}

// StoreAccount writes the account blob.
func (s *SQLiteStore) StoreAccount(blob string) error {
	_, err := s.db.Exec(
		`INSERT INTO account (id, blob) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET blob = excluded.blob`, blob)
	if err != nil {
		return fmt.Errorf("%w: store account: %v", domain.ErrStorage, err)
	}
	return nil
}

// GetSessionsForDevice returns the device's records, most-recently-used first.
func (s *SQLiteStore) GetSessionsForDevice(deviceKey domain.DeviceKey) ([]domain.SessionRecord, error) {
	rows, err := s.db.Query(
		`SELECT session_id, device_key, pickle, last_received_ts
		 FROM sessions WHERE device_key = ? ORDER BY used_seq DESC`, deviceKey.String())
	if err != nil {
		return nil, fmt.Errorf("%w: query sessions: %v", domain.ErrStorage, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// StoreSession upserts rec and marks it as the device's freshest session.
func (s *SQLiteStore) StoreSession(deviceKey domain.DeviceKey, rec domain.SessionRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (session_id, device_key, pickle, last_received_ts, used_seq)
		 VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(used_seq), 0) + 1 FROM sessions))
		 ON CONFLICT(session_id) DO UPDATE SET
			pickle = excluded.pickle,
			last_received_ts = excluded.last_received_ts,
			used_seq = excluded.used_seq`,
		rec.SessionID.String(), deviceKey.String(), rec.Pickle, rec.LastReceivedTS)
	if err != nil {
		return fmt.Errorf("%w: store session: %v", domain.ErrStorage, err)
	}
	return nil
}

// Sessions returns every stored record across all devices.
func (s *SQLiteStore) Sessions() ([]domain.SessionRecord, error) {
	rows, err := s.db.Query(
		`SELECT session_id, device_key, pickle, last_received_ts
		 FROM sessions ORDER BY used_seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: query sessions: %v", domain.ErrStorage, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ReplaceSessions swaps the whole session set in one transaction.
func (s *SQLiteStore) ReplaceSessions(recs []domain.SessionRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin replace: %v", domain.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM sessions`); err != nil {
		return fmt.Errorf("%w: clear sessions: %v", domain.ErrStorage, err)
	}
	for i, rec := range recs {
		// Earlier records are fresher, so they get the higher used_seq.
		_, err := tx.Exec(
			`INSERT INTO sessions (session_id, device_key, pickle, last_received_ts, used_seq)
			 VALUES (?, ?, ?, ?, ?)`,
			rec.SessionID.String(), rec.DeviceKey.String(), rec.Pickle, rec.LastReceivedTS, len(recs)-i)
		if err != nil {
			return fmt.Errorf("%w: insert session: %v", domain.ErrStorage, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit replace: %v", domain.ErrStorage, err)
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]domain.SessionRecord, error) {
	var out []domain.SessionRecord
	for rows.Next() {
		var rec domain.SessionRecord
		var id, key string
		if err := rows.Scan(&id, &key, &rec.Pickle, &rec.LastReceivedTS); err != nil {
			return nil, fmt.Errorf("%w: scan session: %v", domain.ErrStorage, err)
		}
		rec.SessionID = domain.SessionID(id)
		rec.DeviceKey = domain.DeviceKey(key)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return out, nil
}

// Compile-time assertion that SQLiteStore implements domain.SessionStore.
var _ domain.SessionStore = (*SQLiteStore)(nil)
