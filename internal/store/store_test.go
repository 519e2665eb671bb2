package store

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/thicket/internal/manager"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"files", "metadata"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.SaveDump(context.Background(), "/a.py", "a", "h", []byte("{}")))
	// Running migrate again keeps the data.
	require.NoError(t, s.Migrate())
	f, err := s.FileByPath("/a.py")
	require.NoError(t, err)
	assert.NotNil(t, f)

	version, err := s.GetMetadata("schema_version")
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, version)
}

func TestMigrate_SchemaChangeClears(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.SaveDump(context.Background(), "/a.py", "a", "h", []byte("{}")))
	require.NoError(t, s.SetMetadata("schema_version", "0"))

	require.NoError(t, s.Migrate())
	files, err := s.Files()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestMigrate_LogsWipe(t *testing.T) {
	t.Parallel()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s, err := NewStore(filepath.Join(t.TempDir(), "log.db"), WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())
	assert.Empty(t, logs.String(), "a fresh database is not wiped")

	require.NoError(t, s.SetMetadata("schema_version", "0"))
	require.NoError(t, s.Migrate())
	assert.Contains(t, logs.String(), "schema version changed")
	assert.Contains(t, logs.String(), "cleared tree cache")
}

func TestMigrate_WALMode(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	var mode string
	err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
}

// =============================================================================
// Metadata
// =============================================================================

func TestMetadata_GetSet(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	got, err := s.GetMetadata("brains_hash")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.SetMetadata("brains_hash", "abc"))
	require.NoError(t, s.SetMetadata("brains_hash", "def"))
	got, err = s.GetMetadata("brains_hash")
	require.NoError(t, err)
	assert.Equal(t, "def", got)
}

// =============================================================================
// Tree cache
// =============================================================================

func TestDump_SaveAndLoad(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDump(ctx, "/src/mod.py", "mod", "h1", []byte(`{"module":"mod"}`)))

	dump, ok, err := s.LoadDump(ctx, "/src/mod.py", "h1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"module":"mod"}`, string(dump))

	_, ok, err = s.LoadDump(ctx, "/src/mod.py", "h2")
	require.NoError(t, err)
	assert.False(t, ok, "stale hash must miss")

	_, ok, err = s.LoadDump(ctx, "/src/other.py", "h1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDump_SaveReplaces(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveDump(ctx, "/m.py", "m", "h1", []byte("one")))
	require.NoError(t, s.SaveDump(ctx, "/m.py", "m", "h2", []byte("two")))

	f, err := s.FileByPath("/m.py")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "h2", f.Hash)
	assert.Equal(t, []byte("two"), f.Dump)
	assert.Equal(t, "m", f.Module)
	assert.False(t, f.IndexedAt.IsZero())

	files, err := s.Files()
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestFiles_ByModuleAndDelete(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveDump(ctx, "/a/pkg/util.py", "pkg.util", "h", []byte("x")))
	require.NoError(t, s.SaveDump(ctx, "/b/pkg/util.py", "pkg.util", "h", []byte("y")))
	require.NoError(t, s.SaveDump(ctx, "/a/main.py", "main", "h", []byte("z")))

	got, err := s.FilesByModule("pkg.util")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "/a/pkg/util.py", got[0].Path)

	require.NoError(t, s.DeleteFile("/a/pkg/util.py"))
	require.NoError(t, s.DeleteFile("/never/there.py"))
	got, err = s.FilesByModule("pkg.util")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	missing, err := s.FileByPath("/a/pkg/util.py")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.Clear())
	all, err := s.Files()
	require.NoError(t, err)
	assert.Empty(t, all)
}

// =============================================================================
// Manager integration
// =============================================================================

func TestStore_ServesManagerCache(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "mod.py")
	require.NoError(t, os.WriteFile(path, []byte("class A:\n    x = 1\n"), 0o644))

	load := func() (string, *manager.Manager) {
		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
		m := manager.New(manager.WithSearchPaths(dir), manager.WithCache(s), manager.WithLogger(logger))
		tr, err := m.LoadFile(context.Background(), path)
		require.NoError(t, err)
		require.NotEmpty(t, tr.Root().Local("A"))
		return logs.String(), m
	}

	logs, _ := load()
	assert.Contains(t, logs, "tree cache miss")

	logs, _ = load()
	assert.Contains(t, logs, "tree cache hit")

	require.NoError(t, os.WriteFile(path, []byte("class A:\n    x = 2\nclass B:\n    pass\n"), 0o644))
	logs, m := load()
	assert.Contains(t, logs, "tree cache miss")
	tr, ok := m.Module("mod")
	require.True(t, ok)
	assert.NotEmpty(t, tr.Root().Local("B"))
}
