package infer

import (
	"slices"

	"github.com/jward/thicket/internal/tree"
)

// maxIteration caps the synthetic items produced when iterating strings
// and ranges.
const maxIteration = 1000

// AssignedStmts returns what an assignment target (AssignName, AssignAttr,
// or a Tuple/List/Starred target) is bound to. Results are expressions
// still to be inferred, or already inferred values.
func (in *Interpreter) AssignedStmts(target *tree.Node, ctx *Context) Seq {
	if ctx == nil {
		ctx = NewContext()
	}
	owner := target.Parent()
	if owner == nil {
		return failure(newError(ErrInference, target, target.Name))
	}
	return in.assignedFrom(owner, target, ctx, nil)
}

// unpackStep is one level of a destructuring target: the position of the
// element and the shape of the target it sits in.
type unpackStep struct {
	index   int // negative when it follows a starred element
	arity   int // elements in the target, the starred one included
	starred bool
}

// fits reports whether a sequence of n items can be unpacked into the
// target.
func (s unpackStep) fits(n int) bool {
	if s.starred {
		return n >= s.arity-1
	}
	return n == s.arity
}

// assignedFrom resolves node as a target of owner. path holds the unpack
// steps collected from enclosing Tuple and List targets, outermost first.
func (in *Interpreter) assignedFrom(owner, node *tree.Node, ctx *Context, path []unpackStep) Seq {
	switch owner.Kind {
	case tree.KindTuple, tree.KindList:
		elts := owner.Seq(tree.FieldElts)
		idx := slices.Index(elts, node)
		if idx < 0 {
			return failure(newError(ErrInference, node, ""))
		}
		step := unpackStep{index: idx, arity: len(elts)}
		for i, e := range elts {
			if e != nil && e.Kind == tree.KindStarred {
				step.starred = true
				if i < idx {
					step.index -= len(elts)
				}
			}
		}
		parent := owner.Parent()
		if parent == nil {
			return failure(newError(ErrInference, owner, ""))
		}
		return in.assignedFrom(parent, owner, ctx, append([]unpackStep{step}, path...))
	case tree.KindStarred:
		return in.starredAssigned(owner)
	case tree.KindAssign, tree.KindAugAssign, tree.KindAnnAssign:
		value := owner.Child(tree.FieldValue)
		if value == nil {
			return single(Uninferable)
		}
		if len(path) == 0 {
			return single(value)
		}
		return in.resolveParts(in.Infer(value, ctx), path, ctx)
	case tree.KindFor, tree.KindComprehension:
		return in.loopAssigned(owner, ctx, path)
	case tree.KindExceptHandler:
		return in.handlerAssigned(owner, ctx)
	case tree.KindWith:
		return in.withAssigned(owner, node, ctx, path)
	case tree.KindArguments:
		return in.argumentAssigned(owner, node, ctx)
	case tree.KindNamedExpr:
		return single(owner.Child(tree.FieldValue))
	case tree.KindDelete:
		return failure(newError(ErrNameResolution, node, node.Name))
	}
	return failure(newError(ErrInference, node, node.Name))
}

// starredAssigned handles "a, *rest = ..." targets. The starred value
// itself is not modelled.
func (in *Interpreter) starredAssigned(starred *tree.Node) Seq {
	stmt := starred.Statement()
	if stmt.Kind != tree.KindAssign && stmt.Kind != tree.KindFor {
		return failure(newError(ErrInference, starred, ""))
	}
	if p := starred.Parent(); p != nil && (p.Kind == tree.KindTuple || p.Kind == tree.KindList) {
		count := 0
		for _, e := range p.Seq(tree.FieldElts) {
			if e != nil && e.Kind == tree.KindStarred {
				count++
			}
		}
		if count > 1 {
			return failure(newError(ErrInference, starred, ""))
		}
	}
	return single(Uninferable)
}

// resolveParts indexes each inferred part by path[0], recursing on the
// remaining steps. A part whose length does not fit the target resolves
// to Uninferable.
func (in *Interpreter) resolveParts(parts Seq, path []unpackStep, ctx *Context) Seq {
	return func(yield func(Value, error) bool) {
		step, rest := path[0], path[1:]
		for part, err := range parts {
			if err != nil {
				yield(Uninferable, nil)
				return
			}
			item, ok := unpackItem(part, step)
			if !ok {
				if !yield(Uninferable, nil) {
					return
				}
				continue
			}
			if len(rest) == 0 {
				if !yield(item, nil) {
					return
				}
				continue
			}
			for v, err := range in.resolveParts(in.inferValue(item, ctx), rest, ctx) {
				if !yield(v, err) {
					return
				}
			}
		}
	}
}

// unpackItem returns the element of a literal sequence selected by step.
// Negative indices count from the end. Sequences with starred elements are
// not indexed.
func unpackItem(v Value, step unpackStep) (Value, bool) {
	index := step.index
	n, ok := asNode(v)
	if !ok {
		return nil, false
	}
	switch n.Kind {
	case tree.KindTuple, tree.KindList:
		elts := n.Seq(tree.FieldElts)
		for _, e := range elts {
			if e == nil || e.Kind == tree.KindStarred {
				return nil, false
			}
		}
		if !step.fits(len(elts)) {
			return nil, false
		}
		if index < 0 {
			index += len(elts)
		}
		if index < 0 || index >= len(elts) {
			return nil, false
		}
		return elts[index], true
	case tree.KindConst:
		if n.Const.Kind != tree.ConstStr {
			return nil, false
		}
		runes := []rune(n.Const.Str)
		if !step.fits(len(runes)) {
			return nil, false
		}
		if index < 0 {
			index += len(runes)
		}
		if index < 0 || index >= len(runes) {
			return nil, false
		}
		return constNode(n, tree.Str(string(runes[index]))), true
	}
	return nil, false
}

// inferValue infers v when it is an expression still to be inferred.
func (in *Interpreter) inferValue(v Value, ctx *Context) Seq {
	if n, ok := asNode(v); ok && !isTerminal(n) {
		return in.Infer(n, ctx)
	}
	return single(v)
}

// =============================================================================
// Loops
// =============================================================================

func (in *Interpreter) loopAssigned(loop *tree.Node, ctx *Context, path []unpackStep) Seq {
	return func(yield func(Value, error) bool) {
		for it, err := range in.Infer(loop.Child(tree.FieldIter), ctx) {
			if err != nil {
				yield(Uninferable, nil)
				return
			}
			items, ok := in.iterate(it, ctx)
			if !ok {
				if !yield(Uninferable, nil) {
					return
				}
				continue
			}
			for _, item := range items {
				if item == nil {
					continue
				}
				if n, ok := asNode(item); ok && n.Kind == tree.KindStarred {
					if !yield(Uninferable, nil) {
						return
					}
					continue
				}
				var s Seq
				if len(path) == 0 {
					s = single(item)
				} else {
					s = in.resolveParts(in.inferValue(item, ctx), path, ctx)
				}
				for v, err := range s {
					if !yield(v, err) {
						return
					}
				}
			}
		}
	}
}

// iterate returns the items produced by iterating v: the elements of
// literal sequences, dict keys, the characters of a string, or the values
// of range() over constants.
func (in *Interpreter) iterate(v Value, ctx *Context) ([]Value, bool) {
	switch x := v.(type) {
	case *FrozenSet:
		return nodeValues(x.Elts), true
	case *Instance:
		if x.Class.QName() == "builtins.range" && x.Origin != nil && x.Origin.Kind == tree.KindCall {
			return in.rangeItems(x.Origin, ctx)
		}
		return nil, false
	case *tree.Node:
		switch x.Kind {
		case tree.KindList, tree.KindTuple, tree.KindSet:
			return nodeValues(x.Seq(tree.FieldElts)), true
		case tree.KindDict:
			var keys []Value
			for _, p := range x.PairSeq(tree.FieldItems) {
				if p.Key == nil {
					return nil, false
				}
				keys = append(keys, p.Key)
			}
			return keys, true
		case tree.KindConst:
			if x.Const.Kind != tree.ConstStr {
				return nil, false
			}
			var out []Value
			for _, r := range x.Const.Str {
				if len(out) >= maxIteration {
					break
				}
				out = append(out, constNode(x, tree.Str(string(r))))
			}
			return out, true
		}
	}
	return nil, false
}

func (in *Interpreter) rangeItems(call *tree.Node, ctx *Context) ([]Value, bool) {
	args := call.Seq(tree.FieldArgs)
	if len(args) == 0 || len(args) > 3 || len(call.Seq(tree.FieldKeywords)) > 0 {
		return nil, false
	}
	bounds := make([]int64, len(args))
	for i, a := range args {
		v, err := First(in.Infer(a, ctx))
		if err != nil {
			return nil, false
		}
		c, ok := asConst(v)
		if !ok || c.Kind != tree.ConstInt {
			return nil, false
		}
		if bounds[i], ok = c.AsInt(); !ok {
			return nil, false
		}
	}
	start, stop, step := int64(0), bounds[0], int64(1)
	if len(bounds) > 1 {
		start, stop = bounds[0], bounds[1]
	}
	if len(bounds) > 2 {
		step = bounds[2]
	}
	if step == 0 {
		return nil, false
	}
	var out []Value
	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		if len(out) >= maxIteration {
			break
		}
		out = append(out, constNode(call, tree.Int(i)))
	}
	return out, true
}

// =============================================================================
// Exception handlers and with statements
// =============================================================================

func (in *Interpreter) handlerAssigned(handler *tree.Node, ctx *Context) Seq {
	typ := handler.Child(tree.FieldType)
	if typ == nil {
		return failure(newError(ErrInference, handler, ""))
	}
	return nonEmpty(handler, in.unpackTypes(typ, ctx))
}

// unpackTypes infers an exception type expression, flattening tuples and
// turning classes into instances.
func (in *Interpreter) unpackTypes(n *tree.Node, ctx *Context) Seq {
	return func(yield func(Value, error) bool) {
		for v, err := range in.Infer(n, ctx) {
			if err != nil {
				yield(Uninferable, nil)
				return
			}
			if t, ok := asNode(v); ok && (t.Kind == tree.KindTuple || t.Kind == tree.KindList) {
				for _, e := range t.Seq(tree.FieldElts) {
					if e == nil {
						continue
					}
					for ev, err := range in.unpackTypes(e, ctx) {
						if !yield(ev, err) {
							return
						}
					}
				}
				continue
			}
			if cls := asClass(v); cls != nil {
				v = &Instance{Class: cls}
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

func (in *Interpreter) withAssigned(with, target *tree.Node, ctx *Context, path []unpackStep) Seq {
	var expr *tree.Node
	for _, item := range with.PairSeq(tree.FieldItems) {
		if item.Value == target {
			expr = item.Key
			break
		}
	}
	if expr == nil {
		return failure(newError(ErrInference, target, ""))
	}
	return func(yield func(Value, error) bool) {
		for mgr, err := range in.Infer(expr, ctx) {
			if err != nil {
				yield(Uninferable, nil)
				return
			}
			for entered := range in.enterResult(with, mgr, ctx) {
				var s Seq
				if len(path) == 0 {
					s = single(entered)
				} else {
					s = in.resolveParts(in.inferValue(entered, ctx), path, ctx)
				}
				for v, err := range s {
					if !yield(v, err) {
						return
					}
				}
			}
		}
	}
}

// enterResult yields what "with mgr as x" binds to x.
func (in *Interpreter) enterResult(with *tree.Node, mgr Value, ctx *Context) func(func(Value) bool) {
	return func(yield func(Value) bool) {
		switch m := mgr.(type) {
		case *Instance:
			produced := false
			for enter, err := range in.igetattr(m, "__enter__", ctx.WithBound(m)) {
				if err != nil {
					break
				}
				cc := &CallContext{Site: with, Caller: ctx}
				for v, err := range in.callResult(enter, ctx.WithCall(cc)) {
					if err != nil {
						break
					}
					produced = true
					if !yield(v) {
						return
					}
				}
			}
			if !produced {
				yield(Uninferable)
			}
			return
		case *Generator:
			if isContextManager(m.Func) {
				yield(firstYield(m.Func))
				return
			}
		}
		yield(Uninferable)
	}
}

func isContextManager(fn *tree.Node) bool {
	for _, name := range fn.DecoratorNames() {
		if name == "contextmanager" || name == "contextlib.contextmanager" {
			return true
		}
	}
	return false
}

// firstYield returns the value of the first yield in fn's body, or a None
// constant for a bare yield.
func firstYield(fn *tree.Node) Value {
	var found *tree.Node
	for _, stmt := range fn.Body() {
		stmt.Walk(func(c *tree.Node) bool {
			if found != nil {
				return false
			}
			switch c.Kind {
			case tree.KindYield:
				found = c
				return false
			case tree.KindFunctionDef, tree.KindLambda, tree.KindClassDef:
				return false
			}
			return true
		})
		if found != nil {
			break
		}
	}
	if found == nil {
		return Uninferable
	}
	if v := found.Child(tree.FieldValue); v != nil {
		return v
	}
	return constNode(found, tree.None())
}
