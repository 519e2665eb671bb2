package infer

import (
	"github.com/jward/thicket/internal/tree"
)

// CallTo matches calls whose callee is the bare name.
func CallTo(name string) Predicate {
	return func(n *tree.Node) bool {
		fn := n.Child(tree.FieldFunc)
		return fn != nil && fn.Kind == tree.KindName && fn.Name == name
	}
}

func (in *Interpreter) registerBuiltinTips() {
	builtin := map[string]TipFunc{
		"super":      (*Interpreter).inferSuperCall,
		"frozenset":  (*Interpreter).inferFrozenSetCall,
		"type":       (*Interpreter).inferTypeCall,
		"len":        (*Interpreter).inferLenCall,
		"isinstance": (*Interpreter).inferIsInstanceCall,
		"callable":   (*Interpreter).inferCallableCall,
	}
	for _, name := range []string{"super", "frozenset", "type", "len", "isinstance", "callable"} {
		fn := builtin[name]
		in.RegisterInferenceTip(tree.KindCall, func(in *Interpreter, n *tree.Node, ctx *Context) Seq {
			if !in.resolvesToBuiltin(n.Child(tree.FieldFunc), name) {
				return UseDefault(n)
			}
			return fn(in, n, ctx)
		}, CallTo(name))
	}
}

// UseDefault is the result of a tip that declines n.
func UseDefault(n *tree.Node) Seq {
	return failure(newError(ErrUseInferenceDefault, n, ""))
}

// resolvesToBuiltin reports whether the name at ref is the builtin, not a
// local shadowing it.
func (in *Interpreter) resolvesToBuiltin(ref *tree.Node, name string) bool {
	_, stmts, err := in.Lookup(ref, name)
	return err == nil && isBuiltinsNode(stmts[0])
}

// plainArgs returns the positional arguments when the call has no
// keywords and no star arguments.
func plainArgs(call *tree.Node) ([]*tree.Node, bool) {
	if len(call.Seq(tree.FieldKeywords)) > 0 {
		return nil, false
	}
	args := call.Seq(tree.FieldArgs)
	for _, a := range args {
		if a.Kind == tree.KindStarred {
			return nil, false
		}
	}
	return args, true
}

// =============================================================================
// super
// =============================================================================

func (in *Interpreter) inferSuperCall(n *tree.Node, ctx *Context) Seq {
	args, ok := plainArgs(n)
	if !ok || len(args) == 1 || len(args) > 2 {
		return UseDefault(n)
	}
	scope := n.Scope()
	if scope.Kind != tree.KindFunctionDef {
		return UseDefault(n)
	}
	ft := in.functionType(scope, ctx)
	if ft != FuncMethod && ft != FuncClassMethod {
		return UseDefault(n)
	}
	cls := scope.Parent().Frame()
	if cls.Kind != tree.KindClassDef {
		return UseDefault(n)
	}
	s := &Super{SelfClass: cls, Scope: scope, Call: n}
	if len(args) == 0 {
		s.MroPointer = cls
		s.MroType = in.superSelf(scope, cls, ft, ctx)
		return single(s)
	}
	pointer, err := First(in.Infer(args[0], ctx))
	if err != nil || IsUninferable(pointer) {
		return UseDefault(n)
	}
	mroType, err := First(in.Infer(args[1], ctx))
	if err != nil || IsUninferable(mroType) {
		return UseDefault(n)
	}
	s.MroPointer, s.MroType = pointer, mroType
	return single(s)
}

// superSelf infers the first parameter of the method calling super(). It
// falls back to the class, or an instance of it, when the parameter
// yields nothing related to cls.
func (in *Interpreter) superSelf(scope, cls *tree.Node, ft string, ctx *Context) Value {
	var fallback Value = &Instance{Class: cls}
	if ft == FuncClassMethod {
		fallback = cls
	}
	args := scope.Args()
	if args == nil {
		return fallback
	}
	params := append(args.Seq(tree.FieldPosonlyArgs), args.Seq(tree.FieldArgs)...)
	if len(params) == 0 {
		return fallback
	}
	for v := range valuesOnly(safe(in.Infer(params[0], ctx))) {
		switch x := v.(type) {
		case *Instance:
			if ft == FuncMethod && in.IsSubtypeOf(x.Class, cls.QName()) {
				return x
			}
		case *tree.Node:
			if ft == FuncClassMethod && x.Kind == tree.KindClassDef && in.IsSubtypeOf(x, cls.QName()) {
				return x
			}
		}
	}
	return fallback
}

// =============================================================================
// frozenset, type, len
// =============================================================================

func (in *Interpreter) inferFrozenSetCall(n *tree.Node, ctx *Context) Seq {
	args, ok := plainArgs(n)
	if !ok || len(args) > 1 {
		return UseDefault(n)
	}
	if len(args) == 0 {
		return single(&FrozenSet{Origin: n})
	}
	v, err := First(in.Infer(args[0], ctx))
	if err != nil {
		return UseDefault(n)
	}
	switch x := v.(type) {
	case *FrozenSet:
		return single(&FrozenSet{Elts: x.Elts, Origin: n})
	case *tree.Node:
		switch x.Kind {
		case tree.KindList, tree.KindTuple, tree.KindSet:
			return single(&FrozenSet{Elts: x.Seq(tree.FieldElts), Origin: n})
		case tree.KindDict:
			var keys []*tree.Node
			for _, p := range x.PairSeq(tree.FieldItems) {
				if p.Key == nil {
					return UseDefault(n)
				}
				keys = append(keys, p.Key)
			}
			return single(&FrozenSet{Elts: keys, Origin: n})
		}
	}
	return UseDefault(n)
}

// inferTypeCall handles type(obj). The three-argument form is left to the
// class call.
func (in *Interpreter) inferTypeCall(n *tree.Node, ctx *Context) Seq {
	args, ok := plainArgs(n)
	if !ok || len(args) != 1 {
		return UseDefault(n)
	}
	return func(yield func(Value, error) bool) {
		produced := false
		for v := range valuesOnly(safe(in.Infer(args[0], ctx))) {
			var cls Value = Uninferable
			if !IsUninferable(v) {
				if c := in.classOf(v); c != nil {
					cls = c
				}
			}
			produced = true
			if !yield(cls, nil) {
				return
			}
		}
		if !produced {
			yield(Uninferable, nil)
		}
	}
}

func (in *Interpreter) inferLenCall(n *tree.Node, ctx *Context) Seq {
	args, ok := plainArgs(n)
	if !ok || len(args) != 1 {
		return UseDefault(n)
	}
	v, err := First(in.Infer(args[0], ctx))
	if err != nil || IsUninferable(v) {
		return UseDefault(n)
	}
	size := -1
	switch x := v.(type) {
	case *FrozenSet:
		size = len(x.Elts)
	case *tree.Node:
		switch x.Kind {
		case tree.KindList, tree.KindTuple, tree.KindSet:
			size = len(x.Seq(tree.FieldElts))
			for _, e := range x.Seq(tree.FieldElts) {
				if e.Kind == tree.KindStarred {
					size = -1
				}
			}
		case tree.KindDict:
			size = len(x.PairSeq(tree.FieldItems))
			for _, p := range x.PairSeq(tree.FieldItems) {
				if p.Key == nil {
					size = -1
				}
			}
		case tree.KindConst:
			switch x.Const.Kind {
			case tree.ConstStr:
				size = len([]rune(x.Const.Str))
			case tree.ConstBytes:
				size = len(x.Const.Str)
			}
		}
	}
	if size < 0 {
		return UseDefault(n)
	}
	return single(constNode(n, tree.Int(int64(size))))
}

// =============================================================================
// isinstance, callable
// =============================================================================

func (in *Interpreter) inferIsInstanceCall(n *tree.Node, ctx *Context) Seq {
	args, ok := plainArgs(n)
	if !ok || len(args) != 2 {
		return UseDefault(n)
	}
	obj, err := First(in.Infer(args[0], ctx))
	if err != nil || IsUninferable(obj) {
		return single(Uninferable)
	}
	objClass := in.classOf(obj)
	if objClass == nil {
		return single(Uninferable)
	}
	targets, ok := in.classTargets(args[1], ctx, 0)
	if !ok {
		return single(Uninferable)
	}
	for _, t := range targets {
		if in.IsSubtypeOf(objClass, t.QName()) {
			return single(constNode(n, tree.Bool(true)))
		}
	}
	return single(constNode(n, tree.Bool(false)))
}

// classTargets infers the second argument of isinstance: a class or a
// tuple of them, nested.
func (in *Interpreter) classTargets(expr *tree.Node, ctx *Context, depth int) ([]*tree.Node, bool) {
	if depth > 8 {
		return nil, false
	}
	v, err := First(in.Infer(expr, ctx))
	if err != nil {
		return nil, false
	}
	if cls := asClass(v); cls != nil {
		return []*tree.Node{cls}, true
	}
	if tup, ok := asNode(v); ok && tup.Kind == tree.KindTuple {
		var out []*tree.Node
		for _, e := range tup.Seq(tree.FieldElts) {
			sub, ok := in.classTargets(e, ctx, depth+1)
			if !ok {
				return nil, false
			}
			out = append(out, sub...)
		}
		return out, true
	}
	return nil, false
}

func (in *Interpreter) inferCallableCall(n *tree.Node, ctx *Context) Seq {
	args, ok := plainArgs(n)
	if !ok || len(args) != 1 {
		return UseDefault(n)
	}
	v, err := First(in.Infer(args[0], ctx))
	if err != nil || IsUninferable(v) {
		return single(Uninferable)
	}
	var result bool
	switch x := v.(type) {
	case *BoundMethod, *UnboundMethod:
		result = true
	case *Instance:
		result = in.HasAttr(x, "__call__")
	case *Generator, *FrozenSet, *Super:
		result = false
	case *tree.Node:
		switch x.Kind {
		case tree.KindFunctionDef, tree.KindLambda, tree.KindClassDef:
			result = true
		case tree.KindModule:
			result = false
		default:
			result = isTerminal(x) && in.HasAttr(x, "__call__")
		}
	}
	return single(constNode(n, tree.Bool(result)))
}
