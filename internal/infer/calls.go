package infer

import (
	"slices"

	"github.com/jward/thicket/internal/tree"
)

// Function types reported by FunctionType.
const (
	FuncFunction    = "function"
	FuncMethod      = "method"
	FuncClassMethod = "classmethod"
	FuncStatic      = "staticmethod"
	FuncProperty    = "property"
)

// implicitClassMethods are the dunders Python treats as class methods
// without a decorator.
var implicitClassMethods = []string{"__new__", "__init_subclass__", "__class_getitem__"}

// FunctionType classifies a function or lambda by its decorators and
// position: function, method, classmethod, staticmethod or property.
func (in *Interpreter) FunctionType(fn *tree.Node) string {
	return in.functionType(fn, NewContext())
}

func (in *Interpreter) functionType(fn *tree.Node, ctx *Context) string {
	inClass := false
	if p := fn.Parent(); p != nil && p.Frame().Kind == tree.KindClassDef {
		inClass = true
	}
	if fn.Kind == tree.KindLambda {
		if inClass {
			return FuncMethod
		}
		return FuncFunction
	}
	for _, name := range fn.DecoratorNames() {
		switch name {
		case "classmethod", "builtins.classmethod":
			return FuncClassMethod
		case "staticmethod", "builtins.staticmethod":
			return FuncStatic
		case "property", "builtins.property", "functools.cached_property", "cached_property", "abc.abstractproperty":
			return FuncProperty
		}
	}
	if decs := fn.Child(tree.FieldDecorators); decs != nil {
		if guarded, ok := ctx.WithLookup("<decorators>").push(fn); ok {
			for _, d := range decs.Seq(tree.FieldNodes) {
				for v, err := range in.Infer(d, guarded) {
					if err != nil {
						break
					}
					cls := asClass(v)
					if cls == nil {
						continue
					}
					switch {
					case in.IsSubtypeOf(cls, "builtins.classmethod"):
						return FuncClassMethod
					case in.IsSubtypeOf(cls, "builtins.staticmethod"):
						return FuncStatic
					case in.IsSubtypeOf(cls, "builtins.property"):
						return FuncProperty
					}
				}
			}
		}
	}
	if !inClass {
		return FuncFunction
	}
	if slices.Contains(implicitClassMethods, fn.Name) {
		return FuncClassMethod
	}
	return FuncMethod
}

// isAbstract reports whether a function body only raises or passes, or the
// function is decorated as abstract.
func isAbstract(fn *tree.Node) bool {
	for _, name := range fn.DecoratorNames() {
		if name == "abstractmethod" || name == "abc.abstractmethod" {
			return true
		}
	}
	for _, stmt := range fn.Body() {
		if stmt.Kind == tree.KindExpr {
			if v := stmt.Child(tree.FieldValue); v != nil && v.Kind == tree.KindConst && v.Const.Kind == tree.ConstStr {
				continue
			}
		}
		return stmt.Kind == tree.KindRaise || stmt.Kind == tree.KindPass
	}
	return false
}

// =============================================================================
// Call results
// =============================================================================

// callResult yields what calling callee produces. ctx.Call describes the
// arguments; ctx.Bound, when set, is the receiver of a bound method.
func (in *Interpreter) callResult(callee Value, ctx *Context) Seq {
	switch x := callee.(type) {
	case *tree.Node:
		switch x.Kind {
		case tree.KindFunctionDef:
			return in.functionCallResult(x, ctx)
		case tree.KindLambda:
			return in.Infer(x.Child(tree.FieldBody), in.calleeContext(x, ctx))
		case tree.KindClassDef:
			return in.classCallResult(x, ctx)
		}
	case *BoundMethod:
		if cc := ctx.Call; cc != nil && x.Func.Name == "__new__" && isBuiltinsNode(x.Func) && cc.ArgCount() == 4 && cc.Values == nil {
			shifted := *cc
			shifted.Args = cc.Args[1:]
			return in.typeCall(&shifted, ctx)
		}
		return in.callResult(x.Func, ctx.WithBound(x.Bound))
	case *UnboundMethod:
		cc := ctx.Call
		if x.Func.Name == "__new__" && isBuiltinsNode(x.Func) && cc != nil && len(cc.Args) > 0 {
			return in.newInstance(cc)
		}
		if cc != nil {
			ctx = ctx.WithCall(cc.asUnbound())
		}
		return in.callResult(x.Func, ctx.WithBound(nil))
	case *Instance:
		return nonEmpty(nil, func(yield func(Value, error) bool) {
			for m, err := range in.igetattr(x, "__call__", ctx.WithBound(x)) {
				if err != nil {
					return
				}
				for v, err := range in.callResult(m, ctx) {
					if err != nil {
						break
					}
					if !yield(v, nil) {
						return
					}
				}
			}
		})
	}
	return failure(newError(ErrInference, asNodeOrNil(callee), "not callable"))
}

func asNodeOrNil(v Value) *tree.Node {
	n, _ := asNode(v)
	return n
}

// calleeContext binds the context's call to fn, so its parameters resolve
// against the call's arguments.
func (in *Interpreter) calleeContext(fn *tree.Node, ctx *Context) *Context {
	if ctx.Call == nil {
		return ctx
	}
	return ctx.WithCall(ctx.Call.withCallee(fn))
}

// newInstance handles object.__new__(cls).
func (in *Interpreter) newInstance(cc *CallContext) Seq {
	return func(yield func(Value, error) bool) {
		for v, err := range in.Infer(cc.Args[0], cc.callerContext()) {
			if err != nil {
				yield(Uninferable, nil)
				return
			}
			if cls := asClass(v); cls != nil {
				v = &Instance{Class: cls, Origin: cc.Site}
			} else {
				v = Uninferable
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

func (in *Interpreter) functionCallResult(fn *tree.Node, ctx *Context) Seq {
	ctx = in.calleeContext(fn, ctx)
	if fn.IsGenerator() {
		return single(&Generator{Func: fn})
	}
	if cc := ctx.Call; cc != nil && fn.Name == "with_metaclass" && cc.Values == nil && len(cc.Args) > 0 {
		if args := fn.Args(); args != nil && len(args.ArgNames()) == 1 && args.Child(tree.FieldVararg) != nil {
			if cls, ok := in.withMetaclass(cc); ok {
				return single(cls)
			}
		}
	}
	returns := fn.Returns()
	if len(returns) == 0 {
		if len(fn.Body()) == 0 {
			return failure(newError(ErrInference, fn, fn.Name))
		}
		if isAbstract(fn) {
			return single(Uninferable)
		}
		return single(in.noneFor(fn))
	}
	return func(yield func(Value, error) bool) {
		for _, ret := range returns {
			value := ret.Child(tree.FieldValue)
			if value == nil {
				if !yield(in.noneFor(ret), nil) {
					return
				}
				continue
			}
			for v, err := range safe(in.Infer(value, ctx)) {
				if !yield(v, err) {
					return
				}
			}
		}
	}
}

func (in *Interpreter) noneFor(n *tree.Node) *tree.Node {
	return in.cachedSpecial(n, "<none>", func() *tree.Node { return constNode(n, tree.None()) })
}

// withMetaclass models six.with_metaclass(meta, *bases): a hidden class
// carrying the metaclass and bases.
func (in *Interpreter) withMetaclass(cc *CallContext) (*tree.Node, bool) {
	caller := cc.callerContext()
	meta, err := First(in.Infer(cc.Args[0], caller))
	if err != nil || asClass(meta) == nil {
		return nil, false
	}
	var bases []*tree.Node
	for _, a := range cc.Args[1:] {
		if v, err := First(in.Infer(a, caller)); err == nil {
			if cls := asClass(v); cls != nil {
				bases = append(bases, cls)
			}
		}
	}
	if v, ok := in.cachedTypeCall(cc.Site); ok {
		return asClass(v), true
	}
	b := tree.NewFragment(cc.Site)
	cls := b.New(tree.KindClassDef, cc.Site.Line, cc.Site.Col)
	cls.Name = "temporary_class"
	cls.Hidden = true
	b.Finish(cls)
	in.storeSynthetic(cls, bases, asClass(meta))
	return asClass(in.storeTypeCall(cc.Site, cls)), true
}

// =============================================================================
// Classes
// =============================================================================

func (in *Interpreter) classCallResult(cls *tree.Node, ctx *Context) Seq {
	cc := ctx.Call
	if cc != nil && cc.Values == nil && len(cc.Args) == 3 && in.IsSubtypeOf(cls, "builtins.type") {
		return in.typeCall(cc, ctx)
	}
	var site *tree.Node
	if cc != nil {
		site = cc.Site
	}
	if meta := in.Metaclass(cls); meta != nil && !isBuiltinsNode(meta) {
		if attrs, err := in.Getattr(meta, "__call__", false); err == nil && len(attrs) > 0 {
			if fn, ok := asNode(attrs[0]); ok && fn.Kind == tree.KindFunctionDef && !isBuiltinsNode(fn) {
				vals, _ := Collect(in.callResult(&BoundMethod{Func: fn, Bound: cls}, ctx))
				if len(vals) > 0 {
					return values(vals...)
				}
			}
		}
	}
	return single(&Instance{Class: cls, Origin: site})
}

// typeCall synthesizes the class built by type(name, bases, dict). The
// result is cached per call site.
func (in *Interpreter) typeCall(cc *CallContext, ctx *Context) Seq {
	if v, ok := in.cachedTypeCall(cc.Site); ok {
		return single(v)
	}
	caller := cc.callerContext()
	nameVal, err := First(in.Infer(cc.Args[0], caller))
	if err != nil {
		return failure(wrapError(ErrInference, cc.Site, "type", err))
	}
	name, ok := asConst(nameVal)
	if !ok || name.Kind != tree.ConstStr {
		return failure(newError(ErrInference, cc.Site, "type"))
	}
	basesVal, err := First(in.Infer(cc.Args[1], caller))
	if err != nil || !isKind(basesVal, tree.KindTuple) {
		return failure(newError(ErrInference, cc.Site, "type"))
	}
	var bases []*tree.Node
	for _, e := range basesVal.(*tree.Node).Seq(tree.FieldElts) {
		if e == nil {
			continue
		}
		if v, err := First(in.Infer(e, caller)); err == nil {
			if base := asClass(v); base != nil {
				bases = append(bases, base)
			}
		}
	}
	dictVal, err := First(in.Infer(cc.Args[2], caller))
	if err != nil || !isKind(dictVal, tree.KindDict) {
		return failure(newError(ErrInference, cc.Site, "type"))
	}

	b := tree.NewFragment(cc.Site)
	cls := b.New(tree.KindClassDef, cc.Site.Line, cc.Site.Col)
	cls.Name = name.Str
	for _, item := range dictVal.(*tree.Node).PairSeq(tree.FieldItems) {
		if item.Key == nil || item.Value == nil {
			continue
		}
		key, err := First(in.Infer(item.Key, caller))
		if err != nil {
			continue
		}
		k, ok := asConst(key)
		if !ok || k.Kind != tree.ConstStr {
			continue
		}
		assign := b.New(tree.KindAssign, item.Key.Line, item.Key.Col)
		target := b.New(tree.KindAssignName, item.Key.Line, item.Key.Col)
		target.Name = k.Str
		b.Append(assign, tree.FieldTargets, target)
		b.Set(assign, tree.FieldValue, b.Copy(item.Value))
		b.Append(cls, tree.FieldBody, assign)
	}
	b.Finish(cls)
	in.storeSynthetic(cls, bases, nil)
	in.logger.Debug("synthesized class", "name", cls.Name, "site", cc.Site.String())
	return single(in.storeTypeCall(cc.Site, cls))
}

func (in *Interpreter) cachedTypeCall(site *tree.Node) (Value, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	v, ok := in.typeCalls[site]
	return v, ok
}

// storeTypeCall records v for site unless another request got there first,
// and returns the winner.
func (in *Interpreter) storeTypeCall(site *tree.Node, v Value) Value {
	in.mu.Lock()
	defer in.mu.Unlock()
	if prev, ok := in.typeCalls[site]; ok {
		return prev
	}
	in.typeCalls[site] = v
	return v
}

func (in *Interpreter) storeSynthetic(cls *tree.Node, bases []*tree.Node, meta *tree.Node) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.synthetic[cls] = &synthClass{bases: bases, metaclass: meta}
}

func (in *Interpreter) syntheticClass(cls *tree.Node) *synthClass {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.synthetic[cls]
}

// =============================================================================
// Arguments
// =============================================================================

// argumentAssigned infers a parameter. Inside a call to the parameter's
// own function the call's arguments are used; otherwise the declaration.
func (in *Interpreter) argumentAssigned(args, param *tree.Node, ctx *Context) Seq {
	fn := args.Parent()
	if cc := ctx.Call; cc != nil && fn != nil && cc.Callee == fn {
		return in.inferArgument(fn, param.Name, cc, ctx)
	}
	return in.declaredArgument(fn, args, param.Name, ctx)
}

// boundArgs are a call's arguments with starred and double-starred
// splats expanded where they infer to literals.
type boundArgs struct {
	positional []Value
	keywords   map[string]Value
	order      []string
	argsFail   bool
	kwargsFail bool
}

func (in *Interpreter) unpackArgs(cc *CallContext) boundArgs {
	ba := boundArgs{keywords: make(map[string]Value)}
	caller := cc.callerContext()
	if cc.Values != nil {
		ba.positional = append(ba.positional, cc.Values...)
	} else {
		for _, a := range cc.Args {
			if a == nil {
				continue
			}
			if a.Kind != tree.KindStarred {
				ba.positional = append(ba.positional, a)
				continue
			}
			v, err := First(in.Infer(a.Child(tree.FieldValue), caller))
			if err != nil || !isKind(v, tree.KindTuple, tree.KindList) {
				ba.argsFail = true
				continue
			}
			ba.positional = append(ba.positional, nodeValues(v.(*tree.Node).Seq(tree.FieldElts))...)
		}
	}
	add := func(name string, v Value) {
		if _, dup := ba.keywords[name]; dup {
			ba.kwargsFail = true
			return
		}
		ba.keywords[name] = v
		ba.order = append(ba.order, name)
	}
	for _, kw := range cc.Keywords {
		if kw.Name != "" {
			add(kw.Name, kw.Child(tree.FieldValue))
			continue
		}
		v, err := First(in.Infer(kw.Child(tree.FieldValue), caller))
		if err != nil || !isKind(v, tree.KindDict) {
			ba.kwargsFail = true
			continue
		}
		for _, item := range v.(*tree.Node).PairSeq(tree.FieldItems) {
			if item.Key == nil {
				ba.kwargsFail = true
				continue
			}
			key, err := First(in.Infer(item.Key, caller))
			k, ok := asConst(key)
			if err != nil || !ok || k.Kind != tree.ConstStr {
				ba.kwargsFail = true
				continue
			}
			add(k.Str, item.Value)
		}
	}
	return ba
}

func (in *Interpreter) inferArgument(fn *tree.Node, name string, cc *CallContext, ctx *Context) Seq {
	args := fn.Args()
	ba := in.unpackArgs(cc)
	caller := cc.callerContext()
	argValue := func(v Value) Seq { return in.inferValue(v, caller) }

	if v, ok := ba.keywords[name]; ok {
		return argValue(v)
	}
	params := args.ArgNames()
	hasVararg := args.Child(tree.FieldVararg) != nil
	functype := in.functionType(fn, ctx)
	offset := 0
	if (functype == FuncMethod || functype == FuncClassMethod) && !cc.unbound {
		offset = 1
	}
	if len(ba.positional)+offset > len(params) && !hasVararg {
		return failure(newError(ErrInference, fn, name))
	}

	if argindex := slices.Index(params, name); argindex >= 0 {
		if argindex == 0 && offset == 1 {
			bound := ctx.Bound
			if bound == nil {
				bound = fn.Parent().Frame()
			}
			if functype == FuncMethod {
				if cls := asClass(bound); cls != nil {
					bound = &Instance{Class: cls}
				}
			}
			return single(bound)
		}
		if i := argindex - offset; i < len(ba.positional) {
			return argValue(ba.positional[i])
		}
	}

	if kw := args.Child(tree.FieldKwarg); kw != nil && kw.Name == name {
		if ba.kwargsFail {
			return failure(newError(ErrInference, fn, name))
		}
		kwonly := make(map[string]bool)
		for _, a := range args.Seq(tree.FieldKwonlyArgs) {
			if a != nil {
				kwonly[a.Name] = true
			}
		}
		b := tree.NewFragment(args)
		dict := b.New(tree.KindDict, args.Line, args.Col)
		for _, key := range ba.order {
			if kwonly[key] || slices.Contains(params, key) {
				continue
			}
			value, ok := asNode(ba.keywords[key])
			if !ok {
				return single(Uninferable)
			}
			k := b.New(tree.KindConst, args.Line, args.Col)
			k.Const = tree.Str(key)
			b.AppendPair(dict, tree.FieldItems, k, b.Copy(value))
		}
		return single(b.Finish(dict).Root())
	}
	if va := args.Child(tree.FieldVararg); va != nil && va.Name == name {
		if ba.argsFail {
			return failure(newError(ErrInference, fn, name))
		}
		start := max(len(params)-offset, 0)
		var elts []*tree.Node
		for _, v := range ba.positional[min(start, len(ba.positional)):] {
			n, ok := asNode(v)
			if !ok {
				return single(Uninferable)
			}
			elts = append(elts, n)
		}
		return single(seqNode(args, tree.KindTuple, elts))
	}
	if def := args.DefaultValue(name); def != nil {
		return in.Infer(def, ctx.WithCall(nil))
	}
	return failure(newError(ErrInference, fn, name))
}

// declaredArgument infers a parameter without a call: the receiver of a
// method, empty containers for splats, or the default value followed by
// Uninferable.
func (in *Interpreter) declaredArgument(fn, args *tree.Node, name string, ctx *Context) Seq {
	params := args.ArgNames()
	va, kw := args.Child(tree.FieldVararg), args.Child(tree.FieldKwarg)
	if len(params) == 0 && va == nil && kw == nil && len(args.Seq(tree.FieldKwonlyArgs)) == 0 {
		return single(Uninferable)
	}
	if fn != nil && len(params) > 0 && params[0] == name {
		if cls := fn.Parent(); cls != nil {
			cls = cls.Frame()
			switch in.functionType(fn, ctx) {
			case FuncMethod, FuncProperty:
				if cls.Kind == tree.KindClassDef {
					if in.IsMetaclass(cls) {
						return single(cls)
					}
					if bound, ok := ctx.Bound.(*Instance); ok {
						return single(bound)
					}
					return single(&Instance{Class: cls})
				}
			case FuncClassMethod:
				if cls.Kind == tree.KindClassDef {
					if bound := asClass(ctx.Bound); bound != nil {
						return single(bound)
					}
					return single(cls)
				}
			}
		}
	}
	if va != nil && va.Name == name {
		return single(seqNode(args, tree.KindTuple, nil))
	}
	if kw != nil && kw.Name == name {
		return single(dictNode(args, nil))
	}
	if def := args.DefaultValue(name); def != nil {
		return func(yield func(Value, error) bool) {
			for v, err := range safe(in.Infer(def, ctx.WithCall(nil))) {
				if !yield(v, err) {
					return
				}
			}
			yield(Uninferable, nil)
		}
	}
	return single(Uninferable)
}
