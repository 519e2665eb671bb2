package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// --- Tree cache ---

// LoadDump returns the dump cached for path when its content hash still
// matches. ok is false on a miss or a stale entry.
func (s *Store) LoadDump(ctx context.Context, path, hash string) ([]byte, bool, error) {
	var stored string
	var dump []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT hash, dump FROM files WHERE path = ?", path,
	).Scan(&stored, &dump)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load dump %s: %w", path, err)
	}
	if stored != hash {
		return nil, false, nil
	}
	return dump, true, nil
}

// SaveDump inserts or replaces the cached tree for path.
func (s *Store) SaveDump(ctx context.Context, path, module, hash string, dump []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (path, module, hash, dump, indexed_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   module = excluded.module, hash = excluded.hash,
		   dump = excluded.dump, indexed_at = excluded.indexed_at`,
		path, module, hash, dump, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save dump %s: %w", path, err)
	}
	return nil
}

// --- File queries ---

func (s *Store) scanFile(scanner interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	var indexed sql.NullTime
	if err := scanner.Scan(&f.ID, &f.Path, &f.Module, &f.Hash, &f.Dump, &indexed); err != nil {
		return nil, err
	}
	if indexed.Valid {
		f.IndexedAt = indexed.Time
	}
	return f, nil
}

// FileByPath returns the cached file at path, or nil when absent.
func (s *Store) FileByPath(path string) (*File, error) {
	f, err := s.scanFile(s.db.QueryRow(
		"SELECT id, path, module, hash, dump, indexed_at FROM files WHERE path = ?", path,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

// FilesByModule returns every cached file for a dotted module name. More
// than one file can carry a name when search paths overlap.
func (s *Store) FilesByModule(module string) ([]*File, error) {
	return s.queryFiles("SELECT id, path, module, hash, dump, indexed_at FROM files WHERE module = ? ORDER BY path", module)
}

// Files returns every cached file ordered by path.
func (s *Store) Files() ([]*File, error) {
	return s.queryFiles("SELECT id, path, module, hash, dump, indexed_at FROM files ORDER BY path")
}

func (s *Store) queryFiles(query string, args ...any) ([]*File, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := s.scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// DeleteFile removes the cached tree for path. Deleting an absent path is
// not an error.
func (s *Store) DeleteFile(path string) error {
	if _, err := s.db.Exec("DELETE FROM files WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete file %s: %w", path, err)
	}
	return nil
}
