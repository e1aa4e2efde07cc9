package store

import (
	"database/sql"
	"encoding/json"
	"errors"

	_ "github.com/glebarez/go-sqlite"

	"github.com/ghl-peak/peak-go/internal/chat"
	"github.com/ghl-peak/peak-go/internal/logger"
)

// stateKey is the fixed slot the serialized session list lives under.
const stateKey = "sessions"

// SQLite keeps the session list as a single JSON blob in an app_state table.
// Open or write failures degrade the store to a no-op rather than failing the
// application; the in-memory registry stays usable either way.
type SQLite struct {
	db      *sql.DB
	initErr error
}

// OpenSQLite opens (creating if needed) the session database at path.
func OpenSQLite(path string) *SQLite {
	s := &SQLite{}
	s.db, s.initErr = sql.Open("sqlite", "file:"+path+"?_busy_timeout=10000")
	if s.initErr != nil {
		logger.L.Warn("sqlite open failed; session persistence disabled", "path", path, "error", s.initErr)
		return s
	}
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS app_state (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL
    );`); err != nil {
		s.initErr = err
		logger.L.Warn("sqlite table creation failed; session persistence disabled", "error", err)
	}
	return s
}

// Load reads and deserializes the stored session list. Missing or malformed
// data yields nil; the malformed case is logged and discarded.
func (s *SQLite) Load() []chat.Session {
	if s.initErr != nil {
		return nil
	}
	var raw string
	err := s.db.QueryRow(`SELECT value FROM app_state WHERE key = ?;`, stateKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		logger.L.Warn("failed to read stored sessions", "error", err)
		return nil
	}
	var sessions []chat.Session
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		logger.L.Warn("stored sessions are malformed; starting empty", "error", err)
		return nil
	}
	return sessions
}

// Save serializes the full session list and overwrites the stored value.
// Failures are logged and the in-memory state stays authoritative.
func (s *SQLite) Save(sessions []chat.Session) {
	if s.initErr != nil {
		return
	}
	raw, err := json.Marshal(sessions)
	if err != nil {
		logger.L.Error("failed to serialize sessions", "error", err)
		return
	}
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO app_state (key, value) VALUES (?, ?);`, stateKey, string(raw)); err != nil {
		logger.L.Error("failed to persist sessions", "error", err)
	}
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
