package store

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite tree cache: one row per parsed file holding its
// refmap dump, plus a key/value metadata table.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for schema and maintenance events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the tables and indexes and records the schema version.
// Idempotent. A database written by a different schema version is wiped.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	version, err := s.GetMetadata(keySchemaVersion)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if version == schemaVersion {
		return nil
	}
	if version != "" {
		s.logger.Debug("schema version changed, wiping tree cache", "stored", version, "want", schemaVersion)
		if err := s.Clear(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	if err := s.SetMetadata(keySchemaVersion, schemaVersion); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaVersion = "1"

const keySchemaVersion = "schema_version"

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  module          TEXT NOT NULL,
  hash            TEXT NOT NULL,
  dump            BLOB NOT NULL,
  indexed_at      TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_module ON files(module);
`

// Clear removes every cached file. Metadata is kept.
func (s *Store) Clear() error {
	res, err := s.db.Exec("DELETE FROM files")
	if err != nil {
		return fmt.Errorf("clear files: %w", err)
	}
	n, _ := res.RowsAffected()
	s.logger.Debug("cleared tree cache", "files", n)
	return nil
}

// GetMetadata returns the value stored under key, or "" when unset.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %s: %w", key, err)
	}
	return value, nil
}

// SetMetadata stores value under key, replacing any previous value.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}
