// Package persistence stores the player record in SQLite (default) or
// PostgreSQL. Every save replaces the whole record in one transaction.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ParseDialect normalizes a dialect name. Empty means sqlite.
func ParseDialect(raw string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(raw))); d {
	case "":
		return DialectSQLite, nil
	case DialectSQLite, DialectPostgres:
		return d, nil
	default:
		return "", fmt.Errorf("unsupported DB_DIALECT %q", raw)
	}
}

// DB wraps a SQL connection for player state persistence.
type DB struct {
	conn    *sqlx.DB
	dialect Dialect
}

// Open opens or creates the database. For sqlite dsn is a file path.
func Open(dialect Dialect, dsn string) (*DB, error) {
	var driver string
	switch dialect {
	case DialectSQLite, "":
		dialect = DialectSQLite
		driver = "sqlite"
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		dsn = dsn + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	case DialectPostgres:
		driver = "pgx"
		if dsn == "" {
			return nil, errors.New("postgres dialect requires a DSN")
		}
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// One writer at a time; avoids SQLITE_BUSY between autosave and snapshot.
		conn.SetMaxOpenConns(1)
	}

	db := &DB{conn: conn, dialect: dialect}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("database opened", "dialect", dialect)
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	eventID := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.dialect == DialectPostgres {
		eventID = "id BIGSERIAL PRIMARY KEY"
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS player_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS posts (
			seq BIGINT PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			streamer_id BIGINT NOT NULL,
			streamer_name TEXT NOT NULL,
			title TEXT NOT NULL,
			hashtags_json TEXT NOT NULL,
			quality DOUBLE PRECISION NOT NULL,
			created_at TEXT NOT NULL,
			target_views BIGINT NOT NULL,
			target_likes BIGINT NOT NULL,
			target_comments BIGINT NOT NULL,
			target_shares BIGINT NOT NULL,
			target_earnings DOUBLE PRECISION NOT NULL,
			target_followers BIGINT NOT NULL,
			current_views BIGINT NOT NULL,
			current_likes BIGINT NOT NULL,
			current_comments BIGINT NOT NULL,
			current_shares BIGINT NOT NULL,
			current_earnings DOUBLE PRECISION NOT NULL,
			current_followers BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS clips (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			seq BIGINT NOT NULL,
			streamer_id BIGINT NOT NULL,
			streamer_name TEXT NOT NULL,
			captured_at TEXT NOT NULL,
			quality DOUBLE PRECISION NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS campaigns (
			kind TEXT NOT NULL,
			id BIGINT NOT NULL,
			seq BIGINT NOT NULL,
			name TEXT NOT NULL,
			streamer_id BIGINT NOT NULL,
			payout_per_1000 DOUBLE PRECISION NOT NULL,
			fee DOUBLE PRECISION NOT NULL,
			description TEXT NOT NULL,
			active INTEGER NOT NULL,
			PRIMARY KEY (kind, id)
		)`,
		`CREATE TABLE IF NOT EXISTS daily_stats (
			date TEXT PRIMARY KEY,
			followers_gained BIGINT NOT NULL,
			money_gained DOUBLE PRECISION NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			` + eventID + `,
			tick BIGINT NOT NULL,
			description TEXT NOT NULL,
			category TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick)`,
	}

	for _, stmt := range schema {
		if _, err := db.conn.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveMeta stores a key-value pair in player metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(db.conn.Rebind(upsertMeta), key, value)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, db.conn.Rebind("SELECT value FROM player_meta WHERE key = ?"), key)
	return value, err
}

const upsertMeta = `INSERT INTO player_meta (key, value) VALUES (?, ?)
	ON CONFLICT (key) DO UPDATE SET value = excluded.value`

// HasState reports whether a player record has been saved before. A missing
// row is not an error; any other failure is.
func (db *DB) HasState() (bool, error) {
	_, err := db.GetMeta(metaLevel)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check saved state: %w", err)
	}
	return true, nil
}
