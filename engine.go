package thicket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/jward/thicket/brains"
	"github.com/jward/thicket/internal/brain"
	"github.com/jward/thicket/internal/config"
	"github.com/jward/thicket/internal/infer"
	"github.com/jward/thicket/internal/manager"
	"github.com/jward/thicket/internal/persist"
	"github.com/jward/thicket/internal/store"
	"github.com/jward/thicket/internal/tree"
)

// brainsHashKey is the metadata key holding the hash of the brains the
// cached trees were built with.
const brainsHashKey = "brains_hash"

// ErrNotFound is returned when nothing usable sits at a position or no
// class has the requested name.
var ErrNotFound = errors.New("thicket: not found")

// Engine wires the module manager, the interpreter, the brains and the
// optional SQLite tree cache together.
type Engine struct {
	logger        *slog.Logger
	searchPaths   []string
	dbPath        string
	workers       int
	brainsFS      fs.FS
	brainsDir     string
	brainsEnabled []string
	noBrains      bool

	store   *store.Store
	manager *manager.Manager
	interp  *infer.Interpreter
	brains  *brain.Set
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithSearchPaths sets the directories imports are resolved against.
func WithSearchPaths(paths ...string) Option {
	return func(e *Engine) {
		e.searchPaths = paths
	}
}

// WithDB enables the SQLite tree cache at path.
func WithDB(path string) Option {
	return func(e *Engine) {
		e.dbPath = path
	}
}

// WithWorkers bounds parallel parsing in Preload.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithBrainsFS loads brains from fsys instead of the embedded set.
func WithBrainsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.brainsFS = fsys
	}
}

// WithBrainsDir loads brains from a directory on disk.
func WithBrainsDir(dir string) Option {
	return func(e *Engine) {
		e.brainsDir = dir
	}
}

// WithBrains restricts the brains to the named ones.
func WithBrains(names ...string) Option {
	return func(e *Engine) {
		e.brainsEnabled = names
	}
}

// WithoutBrains disables every brain.
func WithoutBrains() Option {
	return func(e *Engine) {
		e.noBrains = true
	}
}

// WithConfig applies a loaded configuration. Options after it override
// its values.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		e.searchPaths = cfg.ResolvedSearchPaths()
		e.dbPath = cfg.ResolvePath(cfg.Cache.Path)
		e.workers = cfg.Preload.Workers
		e.brainsEnabled = cfg.Brains.Enabled
		if cfg.Brains.Dir != "" {
			e.brainsDir = cfg.ResolvePath(cfg.Brains.Dir)
		}
	}
}

// New creates an Engine. Without WithDB trees are only cached in memory.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		brainsFS: brains.FS,
	}
	for _, opt := range opts {
		opt(e)
	}

	if !e.noBrains {
		set, err := brain.Load(e.brainOptions()...)
		if err != nil {
			return nil, fmt.Errorf("thicket: load brains: %w", err)
		}
		e.brains = set
	}

	if e.dbPath != "" {
		s, err := store.NewStore(e.dbPath, store.WithLogger(e.logger))
		if err != nil {
			return nil, fmt.Errorf("thicket: create store: %w", err)
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("thicket: migrate: %w", err)
		}
		e.store = s
		if err := e.syncBrainsHash(); err != nil {
			s.Close()
			return nil, err
		}
	}

	mopts := []manager.Option{
		manager.WithSearchPaths(e.searchPaths...),
		manager.WithLogger(e.logger),
		manager.WithWorkers(e.workers),
	}
	if e.store != nil {
		mopts = append(mopts, manager.WithCache(e.store))
	}
	e.manager = manager.New(mopts...)
	e.interp = infer.New(e.manager, infer.WithLogger(e.logger))
	e.manager.SetTransformer(e.interp)
	if e.brains != nil {
		e.brains.Register(e.interp)
	}
	return e, nil
}

func (e *Engine) brainOptions() []brain.Option {
	opts := []brain.Option{brain.WithLogger(e.logger), brain.WithEnabled(e.brainsEnabled...)}
	if e.brainsDir != "" {
		return append(opts, brain.WithDir(e.brainsDir))
	}
	return append(opts, brain.WithFS(e.brainsFS))
}

// syncBrainsHash clears the cache when it was filled under other brains,
// then records the current hash.
func (e *Engine) syncBrainsHash() error {
	current := ""
	if e.brains != nil {
		h, err := e.brains.Hash()
		if err != nil {
			return err
		}
		current = h
	}
	stored, err := e.store.GetMetadata(brainsHashKey)
	if err != nil {
		return fmt.Errorf("thicket: read brains hash: %w", err)
	}
	if stored == current {
		return nil
	}
	if stored != "" {
		e.logger.Debug("brains changed, clearing tree cache")
		if err := e.store.Clear(); err != nil {
			return fmt.Errorf("thicket: clear cache: %w", err)
		}
	}
	if err := e.store.SetMetadata(brainsHashKey, current); err != nil {
		return fmt.Errorf("thicket: store brains hash: %w", err)
	}
	return nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Interpreter returns the underlying interpreter for direct access.
func (e *Engine) Interpreter() *infer.Interpreter { return e.interp }

// Manager returns the underlying module manager.
func (e *Engine) Manager() *manager.Manager { return e.manager }

// LoadFile parses and caches the module at path.
func (e *Engine) LoadFile(ctx context.Context, path string) (*tree.Tree, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("thicket: resolving %s: %w", path, err)
	}
	return e.manager.LoadFile(ctx, abs)
}

// LoadSource registers in-memory source as the module name.
func (e *Engine) LoadSource(ctx context.Context, name string, src []byte) (*tree.Tree, error) {
	return e.manager.AddSource(ctx, name, src)
}

// Preload parses files in parallel ahead of inference.
func (e *Engine) Preload(ctx context.Context, paths []string) error {
	return e.manager.Preload(ctx, paths)
}

// InferAt infers the innermost expression at a position (1-based line,
// 0-based column) in file.
func (e *Engine) InferAt(ctx context.Context, file string, line, col int) (*InferResult, error) {
	t, err := e.LoadFile(ctx, file)
	if err != nil {
		return nil, err
	}
	n := t.Root().ExprAt(line, col)
	if n == nil {
		return nil, fmt.Errorf("%w: no expression at %s:%d:%d", ErrNotFound, file, line, col)
	}
	return e.inferNode(n)
}

// InferSource infers the innermost expression at a position in a module
// registered with LoadSource.
func (e *Engine) InferSource(module string, line, col int) (*InferResult, error) {
	t, ok := e.manager.Module(module)
	if !ok {
		return nil, fmt.Errorf("%w: module %s", ErrNotFound, module)
	}
	n := t.Root().ExprAt(line, col)
	if n == nil {
		return nil, fmt.Errorf("%w: no expression at %s:%d:%d", ErrNotFound, module, line, col)
	}
	return e.inferNode(n)
}

func (e *Engine) inferNode(n *tree.Node) (*InferResult, error) {
	vals, err := infer.Collect(e.interp.Infer(n, nil))
	if err != nil && len(vals) == 0 {
		return nil, fmt.Errorf("thicket: infer %s: %w", n, err)
	}
	res := &InferResult{Expr: describeNode(n), Values: make([]Value, 0, len(vals))}
	for _, v := range vals {
		res.Values = append(res.Values, describeValue(v))
	}
	return res, nil
}

// LookupAt resolves the name at a position to its scope and the
// statements that may bind it.
func (e *Engine) LookupAt(ctx context.Context, file string, line, col int) (*LookupResult, error) {
	t, err := e.LoadFile(ctx, file)
	if err != nil {
		return nil, err
	}
	n := t.Root().ExprAt(line, col)
	if n == nil || (n.Kind != tree.KindName && n.Kind != tree.KindAssignName && n.Kind != tree.KindDelName) {
		return nil, fmt.Errorf("%w: no name at %s:%d:%d", ErrNotFound, file, line, col)
	}
	// A name bound nowhere is a result with no statements, not a failure.
	scope, stmts, err := e.interp.Lookup(n, n.Name)
	if err != nil && !errors.Is(err, infer.ErrNameResolution) {
		return nil, fmt.Errorf("thicket: lookup %s: %w", n.Name, err)
	}
	res := &LookupResult{Name: n.Name, Statements: make([]NodeInfo, 0, len(stmts))}
	if scope != nil {
		res.Scope = nodeInfo(scope)
	}
	for _, s := range stmts {
		res.Statements = append(res.Statements, *nodeInfo(s))
	}
	return res, nil
}

// MRO returns the linearization of the module-level class called class
// in file.
func (e *Engine) MRO(ctx context.Context, file, class string) ([]NodeInfo, error) {
	t, err := e.LoadFile(ctx, file)
	if err != nil {
		return nil, err
	}
	cls := e.classNamed(t.Root(), class)
	if cls == nil {
		return nil, fmt.Errorf("%w: class %s in %s", ErrNotFound, class, file)
	}
	mro, err := e.interp.MRO(cls)
	if err != nil {
		return nil, fmt.Errorf("thicket: mro %s: %w", class, err)
	}
	out := make([]NodeInfo, len(mro))
	for i, c := range mro {
		out[i] = *nodeInfo(c)
	}
	return out, nil
}

// classNamed finds the class bound to name at module level: a class
// statement, or an assignment whose value infers to a class.
func (e *Engine) classNamed(mod *tree.Node, name string) *tree.Node {
	bindings := mod.Local(name)
	for i := len(bindings) - 1; i >= 0; i-- {
		n := bindings[i]
		if n.Kind == tree.KindClassDef {
			return n
		}
		v, err := infer.First(e.interp.Infer(n, nil))
		if err != nil {
			continue
		}
		if cls, ok := v.(*tree.Node); ok && cls.Kind == tree.KindClassDef {
			return cls
		}
	}
	return nil
}

// DumpFile returns the refmap serialization of the module at file.
func (e *Engine) DumpFile(ctx context.Context, file string) ([]byte, error) {
	t, err := e.LoadFile(ctx, file)
	if err != nil {
		return nil, err
	}
	return persist.Dump(t)
}
