package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/thicket/internal/tree"
)

// writeFiles lays out files (slash-separated relative paths) under a fresh
// temp dir and returns it.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, src := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	}
	return root
}

func TestAddSource_CachesModule(t *testing.T) {
	t.Parallel()
	m := New()
	tr, err := m.AddSource(context.Background(), "mod", []byte("x = 1\n"))
	require.NoError(t, err)

	got, ok := m.Module("mod")
	require.True(t, ok)
	assert.Same(t, tr, got)
	assert.Contains(t, m.Modules(), "mod")

	root, err := m.ResolveModule("mod", nil, 0)
	require.NoError(t, err)
	assert.Same(t, tr.Root(), root)
}

func TestAddSource_ParseError(t *testing.T) {
	t.Parallel()
	m := New()
	_, err := m.AddSource(context.Background(), "bad", []byte("def (:\n"))
	require.Error(t, err)
	_, ok := m.Module("bad")
	assert.False(t, ok)
}

func TestResolveModule_Builtins(t *testing.T) {
	t.Parallel()
	m := New()
	root, err := m.ResolveModule("builtins", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "builtins", root.Name)
	for _, name := range []string{"object", "type", "int", "super", "len", "NotImplemented"} {
		assert.NotEmpty(t, root.Local(name), name)
	}

	again, err := m.ResolveModule("builtins", nil, 0)
	require.NoError(t, err)
	assert.Same(t, root, again)
}

func TestResolveModule_SearchPaths(t *testing.T) {
	t.Parallel()
	dir := writeFiles(t, map[string]string{
		"pkg/__init__.py":     "VERSION = 1\n",
		"pkg/util.py":         "def helper():\n    return 1\n",
		"pkg/sub/__init__.py": "",
		"pkg/sub/deep.py":     "from .. import util\nfrom . import leaf\n",
		"pkg/sub/leaf.py":     "LEAF = True\n",
	})
	m := New(WithSearchPaths(dir))

	pkg, err := m.ResolveModule("pkg", nil, 0)
	require.NoError(t, err)
	assert.True(t, pkg.Tree().Package)
	assert.Equal(t, filepath.Join(dir, "pkg", "__init__.py"), pkg.Tree().File)

	util, err := m.ResolveModule("pkg.util", nil, 0)
	require.NoError(t, err)
	assert.False(t, util.Tree().Package)
	assert.NotEmpty(t, util.Local("helper"))

	deep, err := m.ResolveModule("pkg.sub.deep", nil, 0)
	require.NoError(t, err)

	// "from .. import util" inside pkg.sub.deep
	up, err := m.ResolveModule("", deep, 2)
	require.NoError(t, err)
	assert.Same(t, pkg, up)
	got, err := m.ResolveModule("util", deep, 2)
	require.NoError(t, err)
	assert.Same(t, util, got)

	// "from . import leaf"
	leaf, err := m.ResolveModule("leaf", deep, 1)
	require.NoError(t, err)
	assert.Equal(t, "pkg.sub.leaf", leaf.Name)

	// A package's own relative imports start from the package itself.
	sub, err := m.ResolveModule("pkg.sub", nil, 0)
	require.NoError(t, err)
	fromInit, err := m.ResolveModule("leaf", sub, 1)
	require.NoError(t, err)
	assert.Same(t, leaf, fromInit)
}

func TestResolveModule_ImporterDirectory(t *testing.T) {
	t.Parallel()
	dir := writeFiles(t, map[string]string{
		"main.py":    "import helper\n",
		"helper.py":  "X = 1\n",
		"other/z.py": "",
	})
	m := New()
	main, err := m.LoadFile(context.Background(), filepath.Join(dir, "main.py"))
	require.NoError(t, err)
	assert.Equal(t, "main", main.Name)

	helper, err := m.ResolveModule("helper", main.Root(), 0)
	require.NoError(t, err)
	assert.Equal(t, "helper", helper.Name)
}

func TestResolveModule_NotFound(t *testing.T) {
	t.Parallel()
	m := New(WithSearchPaths(t.TempDir()))
	_, err := m.ResolveModule("nowhere", nil, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModuleNotFound))
	var rerr *ResolutionError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "nowhere", rerr.Name)

	top, err := m.AddSource(context.Background(), "top", []byte(""))
	require.NoError(t, err)
	_, err = m.ResolveModule("", top.Root(), 3)
	assert.True(t, errors.Is(err, ErrModuleNotFound))

	_, err = m.ResolveModule("x", nil, 1)
	assert.True(t, errors.Is(err, ErrModuleNotFound))
}

func TestLoadFile_ReusesCachedModule(t *testing.T) {
	t.Parallel()
	dir := writeFiles(t, map[string]string{"app/models.py": "class M:\n    pass\n"})
	m := New(WithSearchPaths(dir))
	path := filepath.Join(dir, "app", "models.py")

	first, err := m.LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "app.models", first.Name)

	second, err := m.LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestLoadFile_Missing(t *testing.T) {
	t.Parallel()
	m := New()
	_, err := m.LoadFile(context.Background(), filepath.Join(t.TempDir(), "absent.py"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestModuleName(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	m := New(WithSearchPaths(dir))
	cases := []struct {
		rel  string
		name string
		pkg  bool
	}{
		{"a.py", "a", false},
		{"a/b.py", "a.b", false},
		{"a/__init__.py", "a", true},
		{"a/b/__init__.py", "a.b", true},
	}
	for _, tc := range cases {
		name, pkg := m.ModuleName(filepath.Join(dir, filepath.FromSlash(tc.rel)))
		assert.Equal(t, tc.name, name, tc.rel)
		assert.Equal(t, tc.pkg, pkg, tc.rel)
	}

	name, pkg := m.ModuleName(filepath.Join(t.TempDir(), "loose.py"))
	assert.Equal(t, "loose", name)
	assert.False(t, pkg)
}

// =============================================================================
// Preload
// =============================================================================

func TestPreload_ParsesAll(t *testing.T) {
	t.Parallel()
	dir := writeFiles(t, map[string]string{
		"a.py": "A = 1\n",
		"b.py": "B = 2\n",
		"c.py": "C = 3\n",
	})
	m := New(WithSearchPaths(dir), WithWorkers(2))
	paths := []string{
		filepath.Join(dir, "a.py"),
		filepath.Join(dir, "b.py"),
		filepath.Join(dir, "c.py"),
	}
	require.NoError(t, m.Preload(context.Background(), paths))
	assert.ElementsMatch(t, []string{"a", "b", "c"}, m.Modules())

	// Already cached modules are skipped.
	require.NoError(t, m.Preload(context.Background(), paths))
}

func TestPreload_SkipsBadFiles(t *testing.T) {
	t.Parallel()
	dir := writeFiles(t, map[string]string{
		"good.py": "G = 1\n",
		"bad.py":  "def (:\n",
	})
	m := New(WithSearchPaths(dir))
	err := m.Preload(context.Background(), []string{
		filepath.Join(dir, "good.py"),
		filepath.Join(dir, "bad.py"),
		filepath.Join(dir, "missing.py"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "skipped 2 file(s)")
	_, ok := m.Module("good")
	assert.True(t, ok)
	_, ok = m.Module("bad")
	assert.False(t, ok)
}

func TestPreload_CanceledContext(t *testing.T) {
	t.Parallel()
	dir := writeFiles(t, map[string]string{"a.py": "A = 1\n"})
	m := New(WithSearchPaths(dir))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Preload(ctx, []string{filepath.Join(dir, "a.py")})
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Tree cache and transformer
// =============================================================================

type memCache struct {
	mu    sync.Mutex
	dumps map[string]memEntry
	loads int
	hits  int
}

type memEntry struct {
	hash string
	dump []byte
}

func (c *memCache) LoadDump(_ context.Context, path, hash string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loads++
	e, ok := c.dumps[path]
	if !ok || e.hash != hash {
		return nil, false, nil
	}
	c.hits++
	return e.dump, true, nil
}

func (c *memCache) SaveDump(_ context.Context, path, _ string, hash string, dump []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dumps == nil {
		c.dumps = make(map[string]memEntry)
	}
	c.dumps[path] = memEntry{hash: hash, dump: dump}
	return nil
}

type countingTransformer struct {
	mu    sync.Mutex
	calls int
}

func (c *countingTransformer) Transform(*tree.Tree) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil
}

func TestTreeCache_HitAndMiss(t *testing.T) {
	t.Parallel()
	dir := writeFiles(t, map[string]string{"mod.py": "X = 1\n"})
	path := filepath.Join(dir, "mod.py")
	cache := &memCache{}
	tr := &countingTransformer{}

	first := New(WithSearchPaths(dir), WithCache(cache))
	first.SetTransformer(tr)
	_, err := first.LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 0, cache.hits)
	assert.Equal(t, 1, tr.calls)

	// A fresh manager over the same file hits the cache and skips the
	// transformer.
	second := New(WithSearchPaths(dir), WithCache(cache))
	second.SetTransformer(tr)
	loaded, err := second.LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, 1, tr.calls)
	assert.NotEmpty(t, loaded.Root().Local("X"))

	// Editing the file changes the hash.
	require.NoError(t, os.WriteFile(path, []byte("X = 2\nY = 3\n"), 0o644))
	third := New(WithSearchPaths(dir), WithCache(cache))
	edited, err := third.LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.NotEmpty(t, edited.Root().Local("Y"))
}

type failingTransformer struct{}

func (failingTransformer) Transform(*tree.Tree) error { return errors.New("boom") }

func TestTransformerError(t *testing.T) {
	t.Parallel()
	m := New()
	m.SetTransformer(failingTransformer{})
	_, err := m.AddSource(context.Background(), "mod", []byte("x = 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transform mod")
}
