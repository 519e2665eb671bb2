// Package manager resolves Python modules by dotted name and caches their
// trees. It implements infer.ModuleResolver.
package manager

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jward/thicket/internal/parser"
	"github.com/jward/thicket/internal/persist"
	"github.com/jward/thicket/internal/tree"
)

//go:embed builtins.py
var builtinsSource []byte

// BuiltinsSource returns the embedded builtins stub.
func BuiltinsSource() []byte { return builtinsSource }

// ErrModuleNotFound is wrapped by every ResolutionError.
var ErrModuleNotFound = errors.New("module not found")

// ResolutionError reports a module that could not be found.
type ResolutionError struct {
	Name  string
	Level int
	// From is the importing module, for relative imports.
	From string
	Err  error
}

func (e *ResolutionError) Error() string {
	name := strings.Repeat(".", e.Level) + e.Name
	msg := fmt.Sprintf("manager: resolve %q", name)
	if e.From != "" {
		msg += " from " + e.From
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Transformer rewrites a freshly parsed tree before it is cached.
type Transformer interface {
	Transform(t *tree.Tree) error
}

// TreeCache stores serialized trees keyed by file path and content hash.
type TreeCache interface {
	LoadDump(ctx context.Context, path, hash string) ([]byte, bool, error)
	SaveDump(ctx context.Context, path, module, hash string, dump []byte) error
}

// Manager resolves and caches modules. It is safe for concurrent use.
type Manager struct {
	searchPaths []string
	logger      *slog.Logger
	cache       TreeCache
	workers     int

	mu          sync.Mutex
	transformer Transformer
	modules     map[string]*tree.Tree
	byFile      map[string]string
}

// Option configures a Manager.
type Option func(*Manager)

// WithSearchPaths sets the directories absolute imports are resolved in,
// in priority order.
func WithSearchPaths(paths ...string) Option {
	return func(m *Manager) { m.searchPaths = append(m.searchPaths, paths...) }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithCache stores parsed trees in c and reuses them while the file
// content is unchanged.
func WithCache(c TreeCache) Option {
	return func(m *Manager) { m.cache = c }
}

// WithWorkers bounds the number of files Preload parses at once.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// New creates a Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		workers: 4,
		modules: make(map[string]*tree.Tree),
		byFile:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetTransformer installs the transformer applied to every tree parsed
// from now on.
func (m *Manager) SetTransformer(t Transformer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transformer = t
}

func (m *Manager) currentTransformer() Transformer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transformer
}

// SearchPaths returns the configured search paths.
func (m *Manager) SearchPaths() []string {
	return append([]string(nil), m.searchPaths...)
}

// Module returns a cached module.
func (m *Manager) Module(name string) (*tree.Tree, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.modules[name]
	return t, ok
}

// Modules returns the names of all cached modules.
func (m *Manager) Modules() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.modules))
	for name := range m.modules {
		names = append(names, name)
	}
	return names
}

// commit caches t unless another goroutine got there first, and returns
// the tree that won.
func (m *Manager) commit(t *tree.Tree) *tree.Tree {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.modules[t.Name]; ok {
		return prev
	}
	m.modules[t.Name] = t
	if t.File != "" {
		m.byFile[t.File] = t.Name
	}
	return t
}

// =============================================================================
// Loading
// =============================================================================

// AddSource parses src as module name and caches it, replacing any module
// of that name. It is how in-memory modules are provided.
func (m *Manager) AddSource(ctx context.Context, name string, src []byte) (*tree.Tree, error) {
	return m.add(ctx, name, "", src, false)
}

// AddPackageSource is AddSource for a package's __init__ module.
func (m *Manager) AddPackageSource(ctx context.Context, name string, src []byte) (*tree.Tree, error) {
	return m.add(ctx, name, "", src, true)
}

func (m *Manager) add(ctx context.Context, name, file string, src []byte, pkg bool) (*tree.Tree, error) {
	t, err := m.build(ctx, name, file, src, pkg)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modules[name] = t
	if file != "" {
		m.byFile[file] = name
	}
	return t, nil
}

// LoadFile parses the file at path, naming the module after its location
// under the search paths. A cached module for the same file is reused.
func (m *Manager) LoadFile(ctx context.Context, path string) (*tree.Tree, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("manager: load %s: %w", path, err)
	}
	m.mu.Lock()
	if name, ok := m.byFile[abs]; ok {
		t := m.modules[name]
		m.mu.Unlock()
		return t, nil
	}
	m.mu.Unlock()
	name, pkg := m.ModuleName(abs)
	return m.loadPath(ctx, name, abs, pkg)
}

// ModuleName derives the dotted module name of a file from the search
// paths. Files outside every search path are named after their base name.
func (m *Manager) ModuleName(path string) (name string, pkg bool) {
	pkg = filepath.Base(path) == "__init__.py"
	for _, dir := range m.searchPaths {
		absDir, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(absDir, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		return dottedName(rel), pkg
	}
	if pkg {
		return filepath.Base(filepath.Dir(path)), true
	}
	return strings.TrimSuffix(filepath.Base(path), ".py"), false
}

func dottedName(rel string) string {
	rel = strings.TrimSuffix(rel, ".py")
	rel = strings.TrimSuffix(rel, string(filepath.Separator)+"__init__")
	return strings.ReplaceAll(rel, string(filepath.Separator), ".")
}

func (m *Manager) loadPath(ctx context.Context, name, path string, pkg bool) (*tree.Tree, error) {
	t, err := m.parsePath(ctx, name, path, pkg)
	if err != nil {
		return nil, err
	}
	return m.commit(t), nil
}

// parsePath reads and builds a file without caching the module.
func (m *Manager) parsePath(ctx context.Context, name, path string, pkg bool) (*tree.Tree, error) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manager: load %s: %w", name, &parser.FileReadError{Path: path, Err: err})
	}
	return m.build(ctx, name, path, src, pkg)
}

// build parses src, or loads it from the tree cache when the content hash
// matches, and applies the transformer to freshly parsed trees.
func (m *Manager) build(ctx context.Context, name, file string, src []byte, pkg bool) (*tree.Tree, error) {
	hash := fmt.Sprintf("%x", sha256.Sum256(src))
	if m.cache != nil && file != "" {
		dump, ok, err := m.cache.LoadDump(ctx, file, hash)
		if err != nil {
			m.logger.Warn("tree cache lookup failed", "module", name, "error", err)
		} else if ok {
			t, err := persist.Load(dump)
			if err == nil && t.Name == name {
				m.logger.Debug("tree cache hit", "module", name, "file", file)
				return t, nil
			}
			m.logger.Debug("tree cache entry unusable", "module", name, "error", err)
		} else {
			m.logger.Debug("tree cache miss", "module", name, "file", file)
		}
	}

	t, err := parser.Parse(ctx, src, name, file)
	if err != nil {
		return nil, fmt.Errorf("manager: parse %s: %w", name, err)
	}
	t.Package = pkg
	if tr := m.currentTransformer(); tr != nil {
		if err := tr.Transform(t); err != nil {
			return nil, fmt.Errorf("manager: transform %s: %w", name, err)
		}
	}

	if m.cache != nil && file != "" {
		dump, err := persist.Dump(t)
		if err == nil {
			err = m.cache.SaveDump(ctx, file, name, hash, dump)
		}
		if err != nil {
			m.logger.Warn("tree cache store failed", "module", name, "error", err)
		}
	}
	return t, nil
}

// =============================================================================
// Resolution
// =============================================================================

// ResolveModule finds the module name imported from relativeTo with the
// given number of leading dots. It implements infer.ModuleResolver.
func (m *Manager) ResolveModule(name string, relativeTo *tree.Node, level int) (*tree.Node, error) {
	full, err := absoluteName(name, relativeTo, level)
	if err != nil {
		return nil, err
	}
	if t, ok := m.Module(full); ok {
		return t.Root(), nil
	}
	ctx := context.Background()
	if full == "builtins" {
		t, err := m.build(ctx, "builtins", "", builtinsSource, false)
		if err != nil {
			return nil, err
		}
		return m.commit(t).Root(), nil
	}
	for _, dir := range m.searchDirs(relativeTo, level) {
		path, pkg, ok := findModule(dir, full)
		if !ok {
			continue
		}
		m.logger.Debug("resolved module", "module", full, "path", path)
		t, err := m.loadPath(ctx, full, path, pkg)
		if err != nil {
			return nil, err
		}
		return t.Root(), nil
	}
	from := ""
	if relativeTo != nil {
		from = relativeTo.Root().Name
	}
	return nil, &ResolutionError{Name: name, Level: level, From: from, Err: ErrModuleNotFound}
}

// absoluteName turns a relative import into a dotted name.
func absoluteName(name string, relativeTo *tree.Node, level int) (string, error) {
	if level == 0 {
		if name == "" {
			return "", &ResolutionError{Err: ErrModuleNotFound}
		}
		return name, nil
	}
	if relativeTo == nil {
		return "", &ResolutionError{Name: name, Level: level, Err: fmt.Errorf("relative import outside a module: %w", ErrModuleNotFound)}
	}
	root := relativeTo.Root()
	pkg := root.Name
	if t := root.Tree(); t == nil || !t.Package {
		pkg = parent(pkg)
	}
	for range level - 1 {
		pkg = parent(pkg)
	}
	if pkg == "" {
		if name == "" {
			return "", &ResolutionError{Name: name, Level: level, From: root.Name, Err: fmt.Errorf("beyond top-level package: %w", ErrModuleNotFound)}
		}
		return name, nil
	}
	if name == "" {
		return pkg, nil
	}
	return pkg + "." + name, nil
}

func parent(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return ""
}

// searchDirs lists where to look: the search paths, then for relative
// imports the directory tree above the importing file.
func (m *Manager) searchDirs(relativeTo *tree.Node, level int) []string {
	dirs := append([]string(nil), m.searchPaths...)
	if relativeTo == nil {
		return dirs
	}
	root := relativeTo.Root()
	file := root.Tree().File
	if file == "" {
		return dirs
	}
	// The directory holding the top-level package of the importer.
	dir := filepath.Dir(file)
	depth := strings.Count(root.Name, ".")
	if root.Tree().Package {
		depth++
	}
	for range depth {
		dir = filepath.Dir(dir)
	}
	if level == 0 {
		dirs = append(dirs, filepath.Dir(file))
	}
	return append(dirs, dir)
}

// findModule looks for dotted name under dir as a module file or a
// package directory.
func findModule(dir, name string) (path string, pkg bool, ok bool) {
	base := filepath.Join(dir, filepath.FromSlash(strings.ReplaceAll(name, ".", "/")))
	if fi, err := os.Stat(base + ".py"); err == nil && !fi.IsDir() {
		return base + ".py", false, true
	}
	init := filepath.Join(base, "__init__.py")
	if fi, err := os.Stat(init); err == nil && !fi.IsDir() {
		return init, true, true
	}
	return "", false, false
}
