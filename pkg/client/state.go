package client

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// State manages client-side persistent preferences. It holds no messages.
type State struct {
	db  *sql.DB
	dir string // Directory where state is stored
}

// schemaSteps are applied in order; PRAGMA user_version records how many ran.
var schemaSteps = []string{
	`CREATE TABLE IF NOT EXISTS Config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ConnectionHistory (
		gateway_url TEXT PRIMARY KEY,
		nickname TEXT NOT NULL,
		last_success_at INTEGER NOT NULL
	)`,
}

// OpenState opens or creates the client state database
func OpenState(path string) (*State, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	// Client only needs one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := migrateState(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &State{db: db, dir: dir}, nil
}

func migrateState(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return err
	}

	for i := version; i < len(schemaSteps); i++ {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(schemaSteps[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the state database
func (s *State) Close() error {
	return s.db.Close()
}

// GetStateDir returns the directory where state is stored
func (s *State) GetStateDir() string {
	return s.dir
}

// GetConfig retrieves a configuration value, or "" if unset.
func (s *State) GetConfig(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM Config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetConfig stores a configuration value
func (s *State) SetConfig(key, value string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO Config (key, value) VALUES (?, ?)
	`, key, value)
	return err
}

// GetLastNickname returns the last used nickname
func (s *State) GetLastNickname() string {
	nickname, _ := s.GetConfig("last_nickname")
	return nickname
}

// SetLastNickname stores the last used nickname
func (s *State) SetLastNickname(nickname string) error {
	return s.SetConfig("last_nickname", nickname)
}

// GetAutoReconnect returns the stored auto-reconnect preference, or def if
// none was stored.
func (s *State) GetAutoReconnect(def bool) bool {
	val, _ := s.GetConfig("auto_reconnect")
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return b
}

// SetAutoReconnect stores the auto-reconnect preference
func (s *State) SetAutoReconnect(enabled bool) error {
	return s.SetConfig("auto_reconnect", strconv.FormatBool(enabled))
}

// Connection is one row of connection history.
type Connection struct {
	GatewayURL string
	Nickname   string
	At         time.Time
}

// SaveSuccessfulConnection records a registration on gatewayURL as nickname.
func (s *State) SaveSuccessfulConnection(gatewayURL, nickname string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO ConnectionHistory (gateway_url, nickname, last_success_at)
		VALUES (?, ?, ?)
	`, gatewayURL, nickname, time.Now().UnixMilli())
	return err
}

// GetLastSuccessfulConnection returns the most recent registration, or
// ok=false if there is none.
func (s *State) GetLastSuccessfulConnection() (c Connection, ok bool, err error) {
	var at int64
	err = s.db.QueryRow(`
		SELECT gateway_url, nickname, last_success_at
		FROM ConnectionHistory
		ORDER BY last_success_at DESC
		LIMIT 1
	`).Scan(&c.GatewayURL, &c.Nickname, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return Connection{}, false, nil
	}
	if err != nil {
		return Connection{}, false, err
	}
	c.At = time.UnixMilli(at)
	return c, true, nil
}
