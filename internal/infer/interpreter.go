// Package infer implements static value inference over thicket syntax
// trees: name lookup with builtin and wildcard fallbacks, the assignment
// resolver, the class model and the proxy values.
package infer

import (
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/jward/thicket/internal/tree"
)

// ModuleResolver finds modules by dotted name. relativeTo is the module
// doing the import and level the number of leading dots; level 0 is an
// absolute import and relativeTo may be nil.
type ModuleResolver interface {
	ResolveModule(name string, relativeTo *tree.Node, level int) (*tree.Node, error)
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(in *Interpreter) { in.logger = l }
}

// WithoutBuiltinTips disables the inference tips for super(), type(),
// frozenset() and the other builtins.
func WithoutBuiltinTips() Option {
	return func(in *Interpreter) { in.builtinTips = false }
}

type mroEntry struct {
	mro []*tree.Node
	err error
}

type metaEntry struct {
	class *tree.Node
}

// attrTable holds attributes assigned from outside a class body.
type attrTable struct {
	class    map[string][]*tree.Node
	instance map[string][]*tree.Node
}

// synthClass holds the inferred bases of a class built during inference.
type synthClass struct {
	bases     []*tree.Node
	metaclass *tree.Node
}

// Interpreter infers values. It owns the memoized class caches and the
// transform and inference-tip registry. It is safe for concurrent use once
// registration is done.
type Interpreter struct {
	resolver    ModuleResolver
	logger      *slog.Logger
	builtinTips bool

	mu          sync.Mutex
	mros        map[*tree.Node]mroEntry
	metaclasses map[*tree.Node]metaEntry
	classTypes  map[*tree.Node]string
	external    map[*tree.Node]*attrTable
	registered  map[*tree.Node]bool
	specials    map[*tree.Node]map[string]*tree.Node
	synthetic   map[*tree.Node]*synthClass
	typeCalls   map[*tree.Node]Value

	tips       map[tree.Kind][]tip
	transforms map[tree.Kind][]transform
}

// New creates an interpreter that imports modules through resolver.
func New(resolver ModuleResolver, opts ...Option) *Interpreter {
	in := &Interpreter{
		resolver:    resolver,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		builtinTips: true,
		mros:        make(map[*tree.Node]mroEntry),
		metaclasses: make(map[*tree.Node]metaEntry),
		classTypes:  make(map[*tree.Node]string),
		external:    make(map[*tree.Node]*attrTable),
		registered:  make(map[*tree.Node]bool),
		specials:    make(map[*tree.Node]map[string]*tree.Node),
		synthetic:   make(map[*tree.Node]*synthClass),
		typeCalls:   make(map[*tree.Node]Value),
		tips:        make(map[tree.Kind][]tip),
		transforms:  make(map[tree.Kind][]transform),
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.builtinTips {
		in.registerBuiltinTips()
	}
	return in
}

// Logger returns the interpreter's logger.
func (in *Interpreter) Logger() *slog.Logger { return in.logger }

// =============================================================================
// Builtins
// =============================================================================

func (in *Interpreter) builtins() *tree.Node {
	if in.resolver == nil {
		return nil
	}
	mod, err := in.resolver.ResolveModule("builtins", nil, 0)
	if err != nil {
		return nil
	}
	return mod
}

func (in *Interpreter) isBuiltinName(name string) bool {
	b := in.builtins()
	return b != nil && b.Locals().Has(name)
}

// builtinClass returns the class of the builtins module with the given
// name, or nil.
func (in *Interpreter) builtinClass(name string) *tree.Node {
	b := in.builtins()
	if b == nil {
		return nil
	}
	for _, n := range b.Local(name) {
		if n.Kind == tree.KindClassDef {
			return n
		}
	}
	return nil
}

func isBuiltinsNode(n *tree.Node) bool {
	return n != nil && n.Root().Name == "builtins"
}

// classOf returns the class a value is an instance of, or nil.
func (in *Interpreter) classOf(v Value) *tree.Node {
	switch x := v.(type) {
	case *Instance:
		return x.Class
	case *FrozenSet:
		return in.builtinClass("frozenset")
	case *BoundMethod, *UnboundMethod:
		return in.builtinClass("function")
	case *Generator:
		return in.builtinClass("generator")
	case *Super:
		return in.builtinClass("super")
	case *tree.Node:
		switch x.Kind {
		case tree.KindConst:
			return in.builtinClass(x.Const.Kind.PyType())
		case tree.KindList, tree.KindListComp:
			return in.builtinClass("list")
		case tree.KindTuple:
			return in.builtinClass("tuple")
		case tree.KindSet, tree.KindSetComp:
			return in.builtinClass("set")
		case tree.KindDict, tree.KindDictComp:
			return in.builtinClass("dict")
		case tree.KindGeneratorExp:
			return in.builtinClass("generator")
		case tree.KindSlice:
			return in.builtinClass("slice")
		case tree.KindFunctionDef, tree.KindLambda:
			return in.builtinClass("function")
		case tree.KindModule:
			return in.builtinClass("module")
		case tree.KindClassDef:
			if meta := in.Metaclass(x); meta != nil {
				return meta
			}
			return in.builtinClass("type")
		}
	}
	return nil
}

// =============================================================================
// Synthetic nodes
// =============================================================================

// constNode builds a Const fragment hanging off outer.
func constNode(outer *tree.Node, c tree.Constant) *tree.Node {
	b := tree.NewFragment(outer)
	line := 0
	if outer != nil {
		line = outer.Line
	}
	n := b.New(tree.KindConst, line, 0)
	n.Const = c
	return b.Finish(n).Root()
}

// seqNode builds a List, Tuple or Set fragment of copies of elts.
func seqNode(outer *tree.Node, kind tree.Kind, elts []*tree.Node) *tree.Node {
	b := tree.NewFragment(outer)
	line := 0
	if outer != nil {
		line = outer.Line
	}
	n := b.New(kind, line, 0)
	for _, e := range elts {
		b.Append(n, tree.FieldElts, b.Copy(e))
	}
	return b.Finish(n).Root()
}

// dictNode builds a Dict fragment of copies of the given pairs.
func dictNode(outer *tree.Node, items []tree.Pair) *tree.Node {
	b := tree.NewFragment(outer)
	line := 0
	if outer != nil {
		line = outer.Line
	}
	n := b.New(tree.KindDict, line, 0)
	for _, p := range items {
		b.AppendPair(n, tree.FieldItems, b.Copy(p.Key), b.Copy(p.Value))
	}
	return b.Finish(n).Root()
}

// moduleSpecial returns the synthetic node for __name__, __file__,
// __doc__ or __package__ of a module.
func (in *Interpreter) moduleSpecial(mod *tree.Node, name string) *tree.Node {
	if mod == nil || mod.Kind != tree.KindModule {
		return nil
	}
	var c tree.Constant
	switch name {
	case "__name__":
		c = tree.Str(mod.Name)
	case "__file__":
		if mod.Tree().File == "" {
			return nil
		}
		c = tree.Str(mod.Tree().File)
	case "__doc__":
		c = tree.None()
		if mod.Doc != "" {
			c = tree.Str(mod.Doc)
		}
	case "__package__":
		pkg := mod.Name
		if !mod.Tree().Package {
			pkg = parentPackage(mod.Name)
		}
		c = tree.Str(pkg)
	default:
		return nil
	}
	return in.cachedSpecial(mod, name, func() *tree.Node { return constNode(mod, c) })
}

func (in *Interpreter) cachedSpecial(owner *tree.Node, name string, build func() *tree.Node) *tree.Node {
	in.mu.Lock()
	if n, ok := in.specials[owner][name]; ok {
		in.mu.Unlock()
		return n
	}
	in.mu.Unlock()
	n := build()
	in.mu.Lock()
	defer in.mu.Unlock()
	if prev, ok := in.specials[owner][name]; ok {
		return prev
	}
	if in.specials[owner] == nil {
		in.specials[owner] = make(map[string]*tree.Node)
	}
	in.specials[owner][name] = n
	return n
}

func parentPackage(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return ""
}

// =============================================================================
// Lookup
// =============================================================================

// Lookup resolves name as seen from n. Structural scopes are searched
// first, then the module's special names, its wildcard imports and the
// builtins module. It returns the scope where candidates were found. When
// nothing binds name the error is an ErrNameResolution *Error and scope
// is the module of n.
func (in *Interpreter) Lookup(n *tree.Node, name string) (*tree.Node, []*tree.Node, error) {
	scope, stmts := n.Lookup(name, in.isBuiltinName)
	if len(stmts) > 0 {
		return scope, stmts, nil
	}
	root := n.Root()
	if sp := in.moduleSpecial(root, name); sp != nil {
		return root, []*tree.Node{sp}, nil
	}
	if !strings.HasPrefix(name, "_") {
		for _, imp := range root.WildcardImports() {
			mod, err := in.importFromModule(imp)
			if err != nil || mod == root {
				continue
			}
			if found := mod.Local(name); len(found) > 0 {
				return mod, found, nil
			}
		}
	}
	if b := in.builtins(); b != nil && b != root {
		if found := b.Local(name); len(found) > 0 {
			return b, found, nil
		}
	}
	return scope, nil, newError(ErrNameResolution, n, name)
}

// =============================================================================
// External attributes
// =============================================================================

// RegisterModule records attribute assignments of mod that target classes,
// instances or modules other than a method's own instance ("C.x = 1",
// "obj.y = 2"). Registering a module twice is a no-op.
func (in *Interpreter) RegisterModule(mod *tree.Node) {
	in.mu.Lock()
	if in.registered[mod] {
		in.mu.Unlock()
		return
	}
	in.registered[mod] = true
	in.mu.Unlock()

	for _, n := range mod.NodesOfKind(tree.KindAssignAttr) {
		if isInstanceAttr(n) {
			continue
		}
		expr := n.Child(tree.FieldExpr)
		if expr == nil {
			continue
		}
		for v, err := range in.Infer(expr, NewContext()) {
			if err != nil {
				break
			}
			switch x := v.(type) {
			case *Instance:
				in.addExternal(x.Class, true, n)
			case *tree.Node:
				if x.Kind == tree.KindClassDef || x.Kind == tree.KindModule {
					in.addExternal(x, false, n)
				}
			}
		}
	}
	in.logger.Debug("module registered", "module", mod.Name)
}

func isInstanceAttr(n *tree.Node) bool {
	fn := n.Frame()
	if fn.Kind != tree.KindFunctionDef || fn.Parent() == nil {
		return false
	}
	cls := fn.Parent().Frame()
	if cls.Kind != tree.KindClassDef {
		return false
	}
	for _, a := range cls.InstanceAttrs().Get(n.Name) {
		if a == n {
			return true
		}
	}
	return false
}

func (in *Interpreter) addExternal(owner *tree.Node, instance bool, n *tree.Node) {
	in.mu.Lock()
	defer in.mu.Unlock()
	t := in.external[owner]
	if t == nil {
		t = &attrTable{}
		in.external[owner] = t
	}
	target := &t.class
	if instance {
		target = &t.instance
	}
	if *target == nil {
		*target = make(map[string][]*tree.Node)
	}
	for _, existing := range (*target)[n.Name] {
		if existing == n {
			return
		}
	}
	(*target)[n.Name] = append((*target)[n.Name], n)
}

func (in *Interpreter) externalAttrs(owner *tree.Node, instance bool, name string) []*tree.Node {
	in.mu.Lock()
	defer in.mu.Unlock()
	t := in.external[owner]
	if t == nil {
		return nil
	}
	if instance {
		return append([]*tree.Node(nil), t.instance[name]...)
	}
	return append([]*tree.Node(nil), t.class[name]...)
}
