package main

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection. It holds operational data only;
// simulation state is never persisted.
type DB struct {
	conn *sql.DB
}

// BanRow is one banned address. Addresses are stored as keyed hashes.
type BanRow struct {
	AddrHash  string    `json:"hash"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY between
	// the analytics writer and request handlers
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bans (
		addr_hash TEXT PRIMARY KEY,
		reason TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS analytics_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		entity_id INTEGER,
		name TEXT,
		data TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_type ON analytics_events(event_type, created_at);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		log.Error().Err(err).Msg("db migration failed")
	}
	return err
}

// GetSetting returns a stored setting, or "" when unset
func (db *DB) GetSetting(key string) string {
	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Warn().Err(err).Str("key", key).Msg("reading setting")
		}
		return ""
	}
	return value
}

// SetSetting stores a setting, replacing any previous value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// AddBan records a ban. Banning an address twice keeps the first reason.
func (db *DB) AddBan(addrHash, reason string) error {
	_, err := db.conn.Exec(
		"INSERT OR IGNORE INTO bans (addr_hash, reason) VALUES (?, ?)",
		addrHash, reason,
	)
	if err != nil {
		return fmt.Errorf("adding ban: %w", err)
	}
	return nil
}

// IsBanned reports whether the hashed address is banned
func (db *DB) IsBanned(addrHash string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM bans WHERE addr_hash = ?", addrHash).Scan(&count)
	return count > 0, err
}

// RemoveBan lifts a ban; it reports whether one existed
func (db *DB) RemoveBan(addrHash string) (bool, error) {
	res, err := db.conn.Exec("DELETE FROM bans WHERE addr_hash = ?", addrHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListBans returns every ban, newest first
func (db *DB) ListBans() ([]BanRow, error) {
	rows, err := db.conn.Query("SELECT addr_hash, reason, created_at FROM bans ORDER BY created_at DESC, addr_hash")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []BanRow{}
	for rows.Next() {
		var b BanRow
		if err := rows.Scan(&b.AddrHash, &b.Reason, &b.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}
