// Package brain runs Risor plugins that stand in for library constructs.
// Each brain names a callee; a call to it is answered by Python source the
// brain's script emits, parsed into a class hanging off the call site.
package brain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/jward/thicket/internal/infer"
	"github.com/jward/thicket/internal/parser"
	"github.com/jward/thicket/internal/tree"
)

var (
	// ErrNoClass is returned when a script's output holds no class.
	ErrNoClass = errors.New("brain: emitted source defines no class")
	// ErrArguments is returned when the call's typename or fields cannot
	// be inferred.
	ErrArguments = errors.New("brain: typename or fields not inferable")
)

// Set is a loaded manifest bound to a runtime.
type Set struct {
	fsys    fs.FS
	dir     string
	enabled []string
	logger  *slog.Logger

	rt      *Runtime
	entries []Entry

	mu    sync.Mutex
	sites map[*tree.Node]*tree.Node
}

// Option configures a Set.
type Option func(*Set)

// WithFS loads the manifest and scripts from fsys.
func WithFS(fsys fs.FS) Option {
	return func(s *Set) {
		s.fsys = fsys
	}
}

// WithDir loads the manifest and scripts from a directory on disk. It
// takes precedence over WithFS.
func WithDir(dir string) Option {
	return func(s *Set) {
		s.dir = dir
	}
}

// WithEnabled restricts the set to the named brains.
func WithEnabled(names ...string) Option {
	return func(s *Set) {
		s.enabled = names
	}
}

// WithLogger sets the logger for brain execution and script log calls.
func WithLogger(l *slog.Logger) Option {
	return func(s *Set) {
		s.logger = l
	}
}

// Load reads the manifest and selects the enabled brains.
func Load(opts ...Option) (*Set, error) {
	s := &Set{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		sites:  make(map[*tree.Node]*tree.Node),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dir != "" {
		s.fsys = os.DirFS(s.dir)
		s.rt = NewRuntime(WithRuntimeDir(s.dir), WithRuntimeLogger(s.logger))
	} else if s.fsys != nil {
		s.rt = NewRuntime(WithRuntimeFS(s.fsys), WithRuntimeLogger(s.logger))
	} else {
		return nil, errors.New("brain: no brains filesystem or directory")
	}

	m, err := LoadManifest(s.fsys)
	if err != nil {
		return nil, err
	}
	s.entries, err = m.Select(s.enabled)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Entries returns the selected brains.
func (s *Set) Entries() []Entry { return s.entries }

// Register adds an inference tip per brain to in.
func (s *Set) Register(in *infer.Interpreter) {
	for _, e := range s.entries {
		in.RegisterInferenceTip(tree.KindCall, s.tip(e), calleePredicate(e.Callee))
		s.logger.Debug("registered brain", "brain", e.Name, "callee", e.Callee)
	}
}

// Hash is a SHA-256 over the manifest and every .risor file, sorted by
// path. It changes whenever a brain would produce different trees.
func (s *Set) Hash() (string, error) {
	paths := []string{ManifestFile}
	err := fs.WalkDir(s.fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".risor") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("brain: hashing scripts: %w", err)
	}
	sort.Strings(paths[1:])

	h := sha256.New()
	for _, p := range paths {
		data, err := fs.ReadFile(s.fsys, p)
		if err != nil {
			return "", fmt.Errorf("brain: hashing %s: %w", p, err)
		}
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Set) tip(e Entry) infer.TipFunc {
	return func(in *infer.Interpreter, n *tree.Node, ctx *infer.Context) infer.Seq {
		if !matchesCallee(in, n.Child(tree.FieldFunc), e.Callee) {
			return infer.UseDefault(n)
		}
		cls, err := s.classFor(in, n, ctx, e)
		if err != nil {
			s.logger.Debug("brain declined", "brain", e.Name, "site", n.String(), "error", err)
			return infer.UseDefault(n)
		}
		return func(yield func(infer.Value, error) bool) {
			yield(cls, nil)
		}
	}
}

// classFor runs the brain for the call at site once and caches the class,
// so every inference of the site sees the same node.
func (s *Set) classFor(in *infer.Interpreter, site *tree.Node, ctx *infer.Context, e Entry) (*tree.Node, error) {
	s.mu.Lock()
	cls, ok := s.sites[site]
	s.mu.Unlock()
	if ok {
		return cls, nil
	}

	input := callInput(in, site, ctx)
	if input.Typename == "" || input.Fields == nil {
		return nil, ErrArguments
	}
	// Tips carry no context.Context; script runs are bounded by the VM.
	src, err := s.rt.RunScript(context.Background(), e.Script, input)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(src) == "" {
		return nil, ErrNoClass
	}
	t, err := parser.Parse(context.Background(), []byte(src), e.Name, "<brain "+e.Name+">")
	if err != nil {
		return nil, fmt.Errorf("brain: %s: %w", e.Name, err)
	}
	var def *tree.Node
	for _, stmt := range t.Root().Body() {
		if stmt.Kind == tree.KindClassDef {
			def = stmt
			break
		}
	}
	if def == nil {
		return nil, ErrNoClass
	}
	cls = tree.Fragment(def, site).Root()

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.sites[site]; ok {
		return prev, nil
	}
	s.sites[site] = cls
	s.logger.Debug("brain synthesized class", "brain", e.Name, "class", cls.Name, "site", site.String())
	return cls, nil
}

func splitCallee(callee string) (mod, name string) {
	if i := strings.LastIndexByte(callee, '.'); i >= 0 {
		return callee[:i], callee[i+1:]
	}
	return "", callee
}

// calleePredicate matches calls whose callee ends in the callee's last
// component. matchesCallee settles the rest once names can be resolved.
func calleePredicate(callee string) infer.Predicate {
	_, name := splitCallee(callee)
	return func(n *tree.Node) bool {
		fn := n.Child(tree.FieldFunc)
		if fn == nil {
			return false
		}
		return (fn.Kind == tree.KindName || fn.Kind == tree.KindAttribute) && fn.Name == name
	}
}

// matchesCallee reports whether fn refers to callee: a name imported from
// the callee's module, the dotted attribute itself, or for a bare callee
// an unbound or builtin name.
func matchesCallee(in *infer.Interpreter, fn *tree.Node, callee string) bool {
	mod, name := splitCallee(callee)
	switch fn.Kind {
	case tree.KindName:
		_, stmts, err := in.Lookup(fn, fn.Name)
		if err != nil {
			return mod == ""
		}
		for _, st := range stmts {
			if mod == "" && st.Root().Name == "builtins" {
				return true
			}
			if st.Kind != tree.KindImportFrom || st.Level != 0 || st.Module != mod {
				continue
			}
			for _, a := range st.Aliases {
				if a.Name == name && a.Bound() == fn.Name {
					return true
				}
			}
		}
		return false
	case tree.KindAttribute:
		if mod == "" {
			return false
		}
		base := fn.Child(tree.FieldExpr)
		if base == nil || base.Kind != tree.KindName {
			return dotted(fn) == callee
		}
		_, stmts, err := in.Lookup(base, base.Name)
		if err != nil {
			return base.Name == mod
		}
		for _, st := range stmts {
			if st.Kind != tree.KindImport {
				continue
			}
			for _, a := range st.Aliases {
				if a.Name == mod && a.Bound() == base.Name {
					return true
				}
			}
		}
	}
	return false
}

// dotted renders a chain of attribute accesses on a name, or "" for any
// other expression.
func dotted(n *tree.Node) string {
	switch n.Kind {
	case tree.KindName:
		return n.Name
	case tree.KindAttribute:
		base := n.Child(tree.FieldExpr)
		if base == nil {
			return ""
		}
		if prefix := dotted(base); prefix != "" {
			return prefix + "." + n.Name
		}
	}
	return ""
}

// callInput infers the call's arguments into plain values.
func callInput(in *infer.Interpreter, call *tree.Node, ctx *infer.Context) Input {
	input := Input{Kwargs: make(map[string]any)}
	for _, a := range call.Seq(tree.FieldArgs) {
		if a == nil || a.Kind == tree.KindStarred {
			input.Args = append(input.Args, nil)
			continue
		}
		input.Args = append(input.Args, plainValue(in, a, ctx, 1))
	}
	for _, kw := range call.Seq(tree.FieldKeywords) {
		if kw == nil || kw.Name == "" {
			continue
		}
		input.Kwargs[kw.Name] = plainValue(in, kw.Child(tree.FieldValue), ctx, 1)
	}

	typename := argAt(input, 0, "typename")
	if s, ok := typename.(string); ok {
		input.Typename = s
	}
	spec := argAt(input, 1, "field_names")
	if spec == nil {
		spec = input.Kwargs["names"]
	}
	input.Fields = fieldList(spec)
	return input
}

func argAt(in Input, i int, keyword string) any {
	if i < len(in.Args) {
		return in.Args[i]
	}
	return in.Kwargs[keyword]
}

func fieldList(spec any) []string {
	switch x := spec.(type) {
	case string:
		return splitFields(x)
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil
			}
			out = append(out, s)
		}
		return out
	}
	return nil
}

// plainValue infers n and converts the first result: constants to Go
// scalars, lists and tuples to []any up to depth levels deep. Anything
// else is nil.
func plainValue(in *infer.Interpreter, n *tree.Node, ctx *infer.Context, depth int) any {
	if n == nil {
		return nil
	}
	v, err := infer.First(in.Infer(n, ctx))
	if err != nil {
		return nil
	}
	node, ok := v.(*tree.Node)
	if !ok {
		return nil
	}
	switch node.Kind {
	case tree.KindConst:
		c := node.Const
		switch c.Kind {
		case tree.ConstStr:
			return c.Str
		case tree.ConstInt:
			if i, ok := c.AsInt(); ok {
				return i
			}
			return nil
		case tree.ConstFloat:
			return c.Float
		case tree.ConstBool:
			return c.Bool
		}
	case tree.KindList, tree.KindTuple:
		if depth <= 0 {
			return nil
		}
		elts := node.Seq(tree.FieldElts)
		out := make([]any, len(elts))
		for i, e := range elts {
			out[i] = plainValue(in, e, ctx, depth-1)
		}
		return out
	}
	return nil
}
