package infer

import (
	"errors"

	"github.com/jward/thicket/internal/tree"
)

// Infer returns the values n may evaluate to. A nil ctx starts a new
// request. The sequence is lazy; an error value ends it. Inferring a node
// that is already on the context's path yields nothing.
func (in *Interpreter) Infer(n *tree.Node, ctx *Context) Seq {
	if ctx == nil {
		ctx = NewContext()
	}
	return func(yield func(Value, error) bool) {
		if n == nil {
			yield(nil, newError(ErrInference, nil, ""))
			return
		}
		pushed, ok := ctx.push(n)
		if !ok {
			return
		}
		seen := make(map[any]bool)
		for v, err := range in.inferWithTips(n, pushed) {
			if err != nil {
				yield(nil, err)
				return
			}
			if k, ok := valueKey(v); ok {
				if seen[k] {
					continue
				}
				seen[k] = true
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

func (in *Interpreter) inferWithTips(n *tree.Node, ctx *Context) Seq {
	tips := in.tipsFor(n)
	if len(tips) == 0 {
		return in.dispatch(n, ctx)
	}
	return func(yield func(Value, error) bool) {
		for _, t := range tips {
			vals, err := Collect(t.fn(in, n, ctx))
			if errors.Is(err, ErrUseInferenceDefault) {
				continue
			}
			for _, v := range vals {
				if !yield(v, nil) {
					return
				}
			}
			if err != nil {
				yield(nil, err)
			}
			return
		}
		for v, err := range in.dispatch(n, ctx) {
			if !yield(v, err) {
				return
			}
		}
	}
}

func isTerminal(n *tree.Node) bool {
	switch n.Kind {
	case tree.KindConst, tree.KindList, tree.KindTuple, tree.KindSet, tree.KindDict,
		tree.KindSlice, tree.KindModule, tree.KindClassDef, tree.KindFunctionDef,
		tree.KindLambda, tree.KindListComp, tree.KindSetComp, tree.KindDictComp,
		tree.KindGeneratorExp:
		return true
	}
	return false
}

func (in *Interpreter) dispatch(n *tree.Node, ctx *Context) Seq {
	if isTerminal(n) {
		return single(n)
	}
	switch n.Kind {
	case tree.KindName:
		return in.inferName(n, ctx)
	case tree.KindAssignName, tree.KindAssignAttr:
		return in.inferAssign(n, ctx)
	case tree.KindAttribute:
		return in.inferAttribute(n, ctx)
	case tree.KindCall:
		return in.inferCall(n, ctx)
	case tree.KindImport:
		return in.inferImport(n, ctx)
	case tree.KindImportFrom:
		return in.inferImportFrom(n, ctx)
	case tree.KindGlobal:
		return in.inferGlobal(n, ctx)
	case tree.KindBinOp:
		return in.inferBinOp(n, ctx)
	case tree.KindAugAssign:
		return in.inferAugAssign(n, ctx)
	case tree.KindUnaryOp:
		return in.inferUnaryOp(n, ctx)
	case tree.KindBoolOp:
		return in.inferBoolOp(n, ctx)
	case tree.KindCompare:
		return in.inferCompare(n, ctx)
	case tree.KindIfExp:
		return in.inferIfExp(n, ctx)
	case tree.KindSubscript:
		return in.inferSubscript(n, ctx)
	case tree.KindNamedExpr, tree.KindKeyword:
		return in.Infer(n.Child(tree.FieldValue), ctx)
	case tree.KindJoinedStr:
		return in.builtinInstance("str", n)
	case tree.KindYield, tree.KindYieldFrom, tree.KindAwait, tree.KindStarred, tree.KindInvalid:
		return single(Uninferable)
	case tree.KindDelName, tree.KindDelAttr:
		return failure(newError(ErrNameResolution, n, n.Name))
	}
	return failure(newError(ErrInference, n, ""))
}

// builtinInstance yields an Instance of a builtins class, or Uninferable
// when builtins are unavailable.
func (in *Interpreter) builtinInstance(class string, origin *tree.Node) Seq {
	cls := in.builtinClass(class)
	if cls == nil {
		return single(Uninferable)
	}
	return single(&Instance{Class: cls, Origin: origin})
}

// inferStmts infers each statement or value. Values that are not nodes,
// and nodes that are already values, pass through. A statement whose name
// cannot be resolved is skipped; other failures become Uninferable.
// Producing nothing at all is an ErrInference on n.
func (in *Interpreter) inferStmts(n *tree.Node, stmts []Value, ctx *Context) Seq {
	return func(yield func(Value, error) bool) {
		produced := false
		for _, stmt := range stmts {
			node, ok := asNode(stmt)
			if !ok || isTerminal(node) {
				produced = true
				if !yield(stmt, nil) {
					return
				}
				continue
			}
			for v, err := range in.Infer(node, ctx) {
				if err != nil {
					if !errors.Is(err, ErrNameResolution) {
						produced = true
						if !yield(Uninferable, nil) {
							return
						}
					}
					break
				}
				produced = true
				if !yield(v, nil) {
					return
				}
			}
		}
		if !produced {
			yield(nil, newError(ErrInference, n, ctx.LookupName))
		}
	}
}

// =============================================================================
// Names and assignments
// =============================================================================

func (in *Interpreter) inferName(n *tree.Node, ctx *Context) Seq {
	_, stmts, err := in.Lookup(n, n.Name)
	if err != nil {
		if fn := higherFunction(n.Scope()); fn != nil {
			_, stmts, err = in.Lookup(fn, n.Name)
		}
	}
	if err != nil {
		return failure(err)
	}
	return in.inferStmts(n, nodeValues(stmts), ctx.WithLookup(n.Name))
}

// higherFunction returns the function enclosing scope, skipping classes.
func higherFunction(scope *tree.Node) *tree.Node {
	cur := scope
	for cur.Parent() != nil && cur.Parent().Kind != tree.KindFunctionDef {
		cur = cur.Parent()
	}
	return cur.Parent()
}

func (in *Interpreter) inferAssign(n *tree.Node, ctx *Context) Seq {
	if p := n.Parent(); p != nil && p.Kind == tree.KindAugAssign && p.Child(tree.FieldTarget) == n {
		return in.Infer(p, ctx)
	}
	return func(yield func(Value, error) bool) {
		stmts, err := Collect(in.AssignedStmts(n, ctx))
		if err != nil {
			yield(nil, err)
			return
		}
		for v, err := range in.inferStmts(n, stmts, ctx) {
			if !yield(v, err) {
				return
			}
		}
	}
}

// =============================================================================
// Attributes and calls
// =============================================================================

func (in *Interpreter) inferAttribute(n *tree.Node, ctx *Context) Seq {
	return nonEmpty(n, func(yield func(Value, error) bool) {
		for owner, err := range in.Infer(n.Child(tree.FieldExpr), ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			if IsUninferable(owner) {
				if !yield(owner, nil) {
					return
				}
				continue
			}
			if inst, ok := owner.(*Instance); ok {
				if bound, ok := ctx.Bound.(*Instance); ok && in.IsSubtypeOf(bound.Class, inst.Class.QName()) {
					owner = bound
				}
			}
			for v, err := range in.igetattr(owner, n.Name, ctx.WithBound(owner)) {
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

func (in *Interpreter) inferCall(n *tree.Node, ctx *Context) Seq {
	return nonEmpty(n, func(yield func(Value, error) bool) {
		for callee, err := range in.Infer(n.Child(tree.FieldFunc), ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			if IsUninferable(callee) {
				if !yield(callee, nil) {
					return
				}
				continue
			}
			callCtx := ctx.WithCall(newCallContext(n, ctx)).WithBound(nil)
			for v, err := range in.callResult(callee, callCtx) {
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

// =============================================================================
// Imports
// =============================================================================

func aliasRealName(n *tree.Node, name string) string {
	for _, a := range n.Aliases {
		if a.AsName == name {
			return a.Name
		}
	}
	return name
}

func (in *Interpreter) inferImport(n *tree.Node, ctx *Context) Seq {
	name := ctx.LookupName
	if name == "" {
		return failure(newError(ErrInference, n, ""))
	}
	mod, err := in.importModule(aliasRealName(n, name), n.Root(), 0)
	if err != nil {
		return failure(wrapError(ErrInference, n, name, err))
	}
	return single(mod)
}

func (in *Interpreter) inferImportFrom(n *tree.Node, ctx *Context) Seq {
	name := ctx.LookupName
	if name == "" {
		return failure(newError(ErrInference, n, ""))
	}
	real := aliasRealName(n, name)
	mod, err := in.importFromModule(n)
	if err != nil {
		return failure(wrapError(ErrInference, n, real, err))
	}
	stmts, err := in.moduleGetattr(mod, real, mod == n.Root())
	if err != nil {
		return failure(wrapError(ErrInference, n, real, err))
	}
	return in.inferStmts(n, stmts, ctx.WithLookup(real))
}

func (in *Interpreter) inferGlobal(n *tree.Node, ctx *Context) Seq {
	name := ctx.LookupName
	if name == "" {
		return failure(newError(ErrInference, n, ""))
	}
	stmts, err := in.moduleGetattr(n.Root(), name, false)
	if err != nil {
		return failure(wrapError(ErrInference, n, name, err))
	}
	return in.inferStmts(n, stmts, ctx)
}

// =============================================================================
// Conditionals
// =============================================================================

func (in *Interpreter) inferIfExp(n *tree.Node, ctx *Context) Seq {
	return func(yield func(Value, error) bool) {
		both := false
		test, err := First(in.Infer(n.Child(tree.FieldTest), ctx.WithLookup("")))
		var branch *tree.Node
		if err != nil || IsUninferable(test) {
			both = true
		} else if truth, known := BoolValue(test); !known {
			both = true
		} else if truth {
			branch = n.Child(tree.FieldBody)
		} else {
			branch = n.Child(tree.FieldOrelse)
		}
		branches := []*tree.Node{branch}
		if both {
			branches = []*tree.Node{n.Child(tree.FieldBody), n.Child(tree.FieldOrelse)}
		}
		for _, b := range branches {
			for v, err := range safe(in.Infer(b, ctx)) {
				if !yield(v, err) {
					return
				}
			}
		}
	}
}

func (in *Interpreter) inferBoolOp(n *tree.Node, ctx *Context) Seq {
	operands := n.Seq(tree.FieldValues)
	return func(yield func(Value, error) bool) {
		options := make([][]Value, len(operands))
		for i, op := range operands {
			vals, err := Collect(in.Infer(op, ctx))
			if err != nil || len(vals) == 0 {
				yield(Uninferable, nil)
				return
			}
			options[i] = vals
		}
		for _, combo := range product(options) {
			if !yield(boolOpResult(n.Op, combo), nil) {
				return
			}
		}
	}
}

// boolOpResult evaluates "and"/"or" over one combination of operand values.
func boolOpResult(op string, operands []Value) Value {
	for i, v := range operands {
		if IsUninferable(v) {
			return Uninferable
		}
		truth, known := BoolValue(v)
		if !known {
			return Uninferable
		}
		last := i == len(operands)-1
		if last || (op == "and" && !truth) || (op == "or" && truth) {
			return v
		}
	}
	return Uninferable
}

// product returns the cartesian product of options, capped so pathological
// inputs stay bounded.
func product(options [][]Value) [][]Value {
	const limit = 256
	out := [][]Value{nil}
	for _, opts := range options {
		var next [][]Value
		for _, prefix := range out {
			for _, o := range opts {
				if len(next) >= limit {
					break
				}
				combo := append(append([]Value(nil), prefix...), o)
				next = append(next, combo)
			}
		}
		out = next
	}
	return out
}
