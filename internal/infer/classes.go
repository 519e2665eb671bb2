package infer

import (
	"slices"
	"strings"

	"github.com/jward/thicket/internal/tree"
)

// Class types reported by ClassType.
const (
	ClassPlain     = "class"
	ClassMetaclass = "metaclass"
	ClassException = "exception"
)

var classSpecials = []string{"__name__", "__qualname__", "__doc__", "__module__", "__dict__", "__bases__"}

// =============================================================================
// Bases and ancestors
// =============================================================================

// baseValues infers the base expressions of cls. With first set only the
// first value of each base is kept. Instances stand for their class;
// other values are dropped.
func (in *Interpreter) baseValues(cls *tree.Node, first bool) []*tree.Node {
	if sc := in.syntheticClass(cls); sc != nil {
		return sc.bases
	}
	var out []*tree.Node
	for _, base := range cls.Seq(tree.FieldBases) {
		if base == nil {
			continue
		}
		for v, err := range in.Infer(base, NewContext()) {
			if err != nil {
				break
			}
			if inst, ok := v.(*Instance); ok {
				v = inst.Class
			}
			if c := asClass(v); c != nil && c != cls {
				out = append(out, c)
			}
			if first {
				break
			}
		}
	}
	return out
}

func (in *Interpreter) hasBaseExprs(cls *tree.Node) bool {
	if sc := in.syntheticClass(cls); sc != nil {
		return len(sc.bases) > 0
	}
	return len(cls.Seq(tree.FieldBases)) > 0
}

// Ancestors returns the base classes of cls, depth first and without
// duplicates. When recurse is false only direct bases are returned.
// Classes without bases derive from builtins.object.
func (in *Interpreter) Ancestors(cls *tree.Node, recurse bool) []*tree.Node {
	var out []*tree.Node
	yielded := map[*tree.Node]bool{cls: true}
	in.walkAncestors(cls, cls, recurse, yielded, map[*tree.Node]bool{}, &out)
	return out
}

func (in *Interpreter) walkAncestors(self, cls *tree.Node, recurse bool, yielded, visiting map[*tree.Node]bool, out *[]*tree.Node) {
	if visiting[cls] {
		return
	}
	visiting[cls] = true
	defer delete(visiting, cls)

	bases := in.baseValues(cls, false)
	if len(bases) == 0 && !in.hasBaseExprs(cls) {
		if obj := in.builtinClass("object"); obj != nil && obj != cls && !yielded[obj] {
			yielded[obj] = true
			*out = append(*out, obj)
		}
		return
	}
	for _, base := range bases {
		if base == self {
			return
		}
		if !base.Hidden {
			if !yielded[base] {
				yielded[base] = true
				*out = append(*out, base)
			}
			if !recurse {
				continue
			}
		}
		in.walkAncestors(self, base, recurse, yielded, visiting, out)
	}
}

// IsSubtypeOf reports whether cls, or one of its ancestors, has the given
// qualified name.
func (in *Interpreter) IsSubtypeOf(cls *tree.Node, qname string) bool {
	if cls.QName() == qname {
		return true
	}
	for _, a := range in.Ancestors(cls, true) {
		if a.QName() == qname {
			return true
		}
	}
	return false
}

// =============================================================================
// MRO
// =============================================================================

// MRO returns the C3 linearization of cls. Results, errors included, are
// memoized.
func (in *Interpreter) MRO(cls *tree.Node) ([]*tree.Node, error) {
	return in.mro(cls, map[*tree.Node]bool{})
}

func (in *Interpreter) mro(cls *tree.Node, stack map[*tree.Node]bool) ([]*tree.Node, error) {
	in.mu.Lock()
	e, ok := in.mros[cls]
	in.mu.Unlock()
	if ok {
		return slices.Clone(e.mro), e.err
	}
	if stack[cls] {
		return nil, newError(ErrMro, cls, cls.Name)
	}
	stack[cls] = true
	mro, err := in.computeMRO(cls, stack)
	delete(stack, cls)

	in.mu.Lock()
	in.mros[cls] = mroEntry{mro: mro, err: err}
	in.mu.Unlock()
	return slices.Clone(mro), err
}

// mroBases are the direct bases used for linearization: the first value
// of each base expression, hidden classes replaced by their own bases.
func (in *Interpreter) mroBases(cls *tree.Node, seen map[*tree.Node]bool) []*tree.Node {
	if seen[cls] {
		return nil
	}
	seen[cls] = true
	var out []*tree.Node
	for _, b := range in.baseValues(cls, true) {
		if b.Hidden {
			out = append(out, in.mroBases(b, seen)...)
			continue
		}
		out = append(out, b)
	}
	return out
}

func (in *Interpreter) computeMRO(cls *tree.Node, stack map[*tree.Node]bool) ([]*tree.Node, error) {
	bases := in.mroBases(cls, map[*tree.Node]bool{})
	if len(bases) == 0 && !in.hasBaseExprs(cls) {
		if obj := in.builtinClass("object"); obj != nil && obj != cls {
			bases = []*tree.Node{obj}
		}
	}
	names := make(map[string]bool, len(bases))
	for _, b := range bases {
		if names[b.QName()] {
			return nil, newError(ErrDuplicateBases, cls, b.QName())
		}
		names[b.QName()] = true
	}
	seqs := [][]*tree.Node{{cls}}
	for _, b := range bases {
		baseMRO, err := in.mro(b, stack)
		if err != nil {
			baseMRO = append([]*tree.Node{b}, in.Ancestors(b, true)...)
		}
		seqs = append(seqs, baseMRO)
	}
	seqs = append(seqs, slices.Clone(bases))
	mro, ok := c3Merge(seqs)
	if !ok {
		return nil, newError(ErrInconsistentMro, cls, cls.Name)
	}
	return mro, nil
}

// c3Merge merges linearizations. ok is false when no consistent order
// exists.
func c3Merge(seqs [][]*tree.Node) ([]*tree.Node, bool) {
	var result []*tree.Node
	for {
		live := seqs[:0]
		for _, s := range seqs {
			if len(s) > 0 {
				live = append(live, s)
			}
		}
		seqs = live
		if len(seqs) == 0 {
			return result, true
		}
		var head *tree.Node
		for _, s := range seqs {
			candidate := s[0]
			inTail := false
			for _, other := range seqs {
				if slices.Contains(other[1:], candidate) {
					inTail = true
					break
				}
			}
			if !inTail {
				head = candidate
				break
			}
		}
		if head == nil {
			return nil, false
		}
		result = append(result, head)
		for i, s := range seqs {
			if s[0] == head {
				seqs[i] = s[1:]
			}
		}
	}
}

// =============================================================================
// Metaclasses and class types
// =============================================================================

// Metaclass returns the metaclass of cls: the declared one, a hidden
// base's, or the first ancestor's. It returns nil when none is found.
func (in *Interpreter) Metaclass(cls *tree.Node) *tree.Node {
	return in.findMetaclass(cls, map[*tree.Node]bool{})
}

func (in *Interpreter) findMetaclass(cls *tree.Node, seen map[*tree.Node]bool) *tree.Node {
	in.mu.Lock()
	e, ok := in.metaclasses[cls]
	in.mu.Unlock()
	if ok {
		return e.class
	}
	seen[cls] = true
	meta := in.declaredMetaclass(cls)
	if meta == nil {
		for _, parent := range in.Ancestors(cls, true) {
			if seen[parent] {
				continue
			}
			if meta = in.findMetaclass(parent, seen); meta != nil {
				break
			}
		}
	}
	in.mu.Lock()
	in.metaclasses[cls] = metaEntry{class: meta}
	in.mu.Unlock()
	return meta
}

func (in *Interpreter) declaredMetaclass(cls *tree.Node) *tree.Node {
	if sc := in.syntheticClass(cls); sc != nil && sc.metaclass != nil {
		return sc.metaclass
	}
	for _, b := range in.baseValues(cls, false) {
		if b.Hidden {
			if sc := in.syntheticClass(b); sc != nil && sc.metaclass != nil {
				return sc.metaclass
			}
		}
	}
	for _, kw := range cls.Seq(tree.FieldKeywords) {
		if kw == nil || kw.Name != "metaclass" {
			continue
		}
		for v, err := range in.Infer(kw.Child(tree.FieldValue), NewContext()) {
			if err != nil {
				return nil
			}
			if c := asClass(v); c != nil {
				return c
			}
		}
	}
	return nil
}

// IsMetaclass reports whether cls is type or derives from a metaclass.
func (in *Interpreter) IsMetaclass(cls *tree.Node) bool {
	return in.isMetaclass(cls, map[string]bool{})
}

func (in *Interpreter) isMetaclass(cls *tree.Node, seen map[string]bool) bool {
	if cls.Name == "type" {
		return true
	}
	if sc := in.syntheticClass(cls); sc != nil {
		for _, b := range sc.bases {
			if in.isMetaclass(b, seen) {
				return true
			}
		}
		return false
	}
	for _, base := range cls.Seq(tree.FieldBases) {
		if base == nil {
			continue
		}
		for v, err := range in.Infer(base, NewContext()) {
			if err != nil {
				break
			}
			key := v.String()
			if c := asClass(v); c != nil {
				key = c.QName()
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			if _, ok := v.(*Instance); ok {
				return false
			}
			c := asClass(v)
			if c == nil || c == cls {
				continue
			}
			if in.isMetaclass(c, seen) {
				return true
			}
		}
	}
	return false
}

// ClassType returns "metaclass", "exception" or "class".
func (in *Interpreter) ClassType(cls *tree.Node) string {
	return in.classType(cls, map[string]bool{})
}

func (in *Interpreter) classType(cls *tree.Node, visiting map[string]bool) string {
	in.mu.Lock()
	t, ok := in.classTypes[cls]
	in.mu.Unlock()
	if ok {
		return t
	}
	t = ClassPlain
	switch {
	case in.IsMetaclass(cls):
		t = ClassMetaclass
	case strings.HasSuffix(cls.Name, "Exception"):
		t = ClassException
	default:
		qname := cls.QName()
		if visiting[qname] {
			return ClassPlain
		}
		visiting[qname] = true
		for _, base := range in.Ancestors(cls, false) {
			bt := in.classType(base, visiting)
			if bt == ClassPlain || (bt == ClassMetaclass && !in.IsMetaclass(cls)) {
				continue
			}
			t = bt
			break
		}
	}
	in.mu.Lock()
	in.classTypes[cls] = t
	in.mu.Unlock()
	return t
}

// HasDynamicGetattr reports whether cls has a __getattr__ or
// __getattribute__ defined outside the builtins module.
func (in *Interpreter) HasDynamicGetattr(cls *tree.Node) bool {
	for _, name := range []string{"__getattr__", "__getattribute__"} {
		attrs, err := in.Getattr(cls, name, true)
		if err != nil || len(attrs) == 0 {
			continue
		}
		var n *tree.Node
		switch a := attrs[0].(type) {
		case *tree.Node:
			n = a
		case *BoundMethod:
			n = a.Func
		}
		return n != nil && !isBuiltinsNode(n)
	}
	return false
}

// =============================================================================
// Attribute lookup
// =============================================================================

// Getattr returns the statements defining name on cls: its own locals and
// external attributes, then each ancestor's in MRO order. In class context
// the special class attributes and the metaclass's attributes are
// included.
func (in *Interpreter) Getattr(cls *tree.Node, name string, classContext bool) ([]Value, error) {
	return in.getattr(cls, name, classContext, NewContext())
}

func (in *Interpreter) getattr(cls *tree.Node, name string, classContext bool, ctx *Context) ([]Value, error) {
	var stmts []*tree.Node
	stmts = append(stmts, cls.Local(name)...)
	stmts = append(stmts, in.externalAttrs(cls, false, name)...)
	for _, a := range in.lookupOrder(cls) {
		stmts = append(stmts, a.Local(name)...)
		stmts = append(stmts, in.externalAttrs(a, false, name)...)
	}
	stmts = slices.DeleteFunc(stmts, notAnAttribute)

	if classContext && slices.Contains(classSpecials, name) && (len(stmts) == 0 || isBuiltinsNode(cls)) {
		result := []Value{in.classSpecial(cls, name)}
		if name == "__bases__" {
			result = append(result, nodeValues(stmts)...)
		}
		return result, nil
	}
	vals := nodeValues(stmts)
	if classContext {
		vals = append(vals, in.metaclassAttrs(cls, name, ctx)...)
	}
	if len(vals) == 0 {
		return nil, newError(ErrAttributeResolution, cls, name)
	}
	return vals, nil
}

// lookupOrder is the MRO without cls itself, or the ancestors when the MRO
// cannot be computed.
func (in *Interpreter) lookupOrder(cls *tree.Node) []*tree.Node {
	if mro, err := in.MRO(cls); err == nil && len(mro) > 0 {
		return mro[1:]
	}
	return in.Ancestors(cls, true)
}

// notAnAttribute drops deletions and annotations without a value.
func notAnAttribute(n *tree.Node) bool {
	switch n.Kind {
	case tree.KindDelAttr, tree.KindDelName:
		return true
	case tree.KindAssignName:
		stmt := n.Statement()
		return stmt.Kind == tree.KindAnnAssign && stmt.Child(tree.FieldValue) == nil
	}
	return false
}

func (in *Interpreter) classSpecial(cls *tree.Node, name string) Value {
	switch name {
	case "__dict__":
		if d := in.builtinClass("dict"); d != nil {
			return &Instance{Class: d}
		}
		return Uninferable
	case "__bases__":
		return in.cachedSpecial(cls, name, func() *tree.Node {
			return seqNode(cls, tree.KindTuple, cls.Seq(tree.FieldBases))
		})
	}
	return in.cachedSpecial(cls, name, func() *tree.Node {
		var c tree.Constant
		switch name {
		case "__name__":
			c = tree.Str(cls.Name)
		case "__qualname__":
			c = tree.Str(strings.TrimPrefix(cls.QName(), cls.Root().Name+"."))
		case "__module__":
			c = tree.Str(cls.Root().Name)
		default:
			c = tree.None()
			if cls.Doc != "" {
				c = tree.Str(cls.Doc)
			}
		}
		return constNode(cls, c)
	})
}

// metaclassAttrs looks name up on the implicit metaclass (type) and the
// declared one, binding functions to cls.
func (in *Interpreter) metaclassAttrs(cls *tree.Node, name string, ctx *Context) []Value {
	var out []Value
	metas := []*tree.Node{in.builtinClass("type")}
	if m := in.Metaclass(cls); m != nil && m != metas[0] {
		metas = append(metas, m)
	}
	for _, meta := range metas {
		if meta == nil || meta == cls {
			continue
		}
		stmts, err := in.getattr(meta, name, true, ctx)
		if err != nil {
			continue
		}
		for v, err := range in.inferStmts(meta, stmts, ctx.WithLookup(name)) {
			if err != nil {
				break
			}
			fn, ok := asNode(v)
			if !ok || fn.Kind != tree.KindFunctionDef {
				out = append(out, v)
				continue
			}
			switch in.functionType(fn, ctx) {
			case FuncClassMethod:
				out = append(out, &BoundMethod{Func: fn, Bound: meta})
			case FuncStatic:
				out = append(out, fn)
			case FuncProperty:
				vals, _ := Collect(in.callResult(&BoundMethod{Func: fn, Bound: cls}, ctx.WithCall(&CallContext{Site: fn, Caller: ctx})))
				out = append(out, vals...)
			default:
				out = append(out, &BoundMethod{Func: fn, Bound: cls})
			}
		}
	}
	return out
}

// Igetattr infers attribute name of cls in class context.
func (in *Interpreter) Igetattr(cls *tree.Node, name string, ctx *Context) Seq {
	if ctx == nil {
		ctx = NewContext()
	}
	return in.classIgetattr(cls, name, ctx, true)
}

func (in *Interpreter) classIgetattr(cls *tree.Node, name string, ctx *Context, classContext bool) Seq {
	ctx = ctx.WithLookup(name)
	attrs, err := in.getattr(cls, name, classContext, ctx)
	if err != nil {
		if !strings.HasPrefix(name, "__") && in.HasDynamicGetattr(cls) {
			return single(Uninferable)
		}
		return failure(wrapError(ErrInference, cls, name, err))
	}
	attrs = sameScopeAttrs(attrs)
	attrs = lastFunction(attrs, func(fn *tree.Node) bool { return in.functionType(fn, ctx) == FuncProperty })
	return func(yield func(Value, error) bool) {
		for v, err := range in.inferStmts(cls, attrs, ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(in.classAttrValue(cls, v, ctx), nil) {
				return
			}
		}
	}
}

// sameScopeAttrs keeps the first attribute and the later ones defined in
// its scope, so redefinitions in a subclass hide the base's.
func sameScopeAttrs(attrs []Value) []Value {
	if len(attrs) < 2 {
		return attrs
	}
	first, ok := asNode(attrs[0])
	if !ok || first.Parent() == nil {
		return attrs
	}
	scope := first.Parent().Scope()
	out := []Value{attrs[0]}
	for _, a := range attrs[1:] {
		n, ok := asNode(a)
		if !ok {
			out = append(out, a)
			continue
		}
		if p := n.Parent(); p != nil && p.Scope() == scope {
			out = append(out, a)
		}
	}
	return out
}

// lastFunction keeps only the last function definition among attrs,
// unless a function is a property.
func lastFunction(attrs []Value, isProperty func(*tree.Node) bool) []Value {
	var last *tree.Node
	for _, a := range attrs {
		if n, ok := asNode(a); ok && n.Kind == tree.KindFunctionDef {
			last = n
		}
	}
	if last == nil {
		return attrs
	}
	return slices.DeleteFunc(slices.Clone(attrs), func(a Value) bool {
		n, ok := asNode(a)
		return ok && n.Kind == tree.KindFunctionDef && n != last && !isProperty(n)
	})
}

// classAttrValue converts an inferred class attribute: user descriptors
// become Uninferable and functions become methods.
func (in *Interpreter) classAttrValue(cls *tree.Node, v Value, ctx *Context) Value {
	if inst, ok := v.(*Instance); ok {
		if !isBuiltinsNode(inst.Class) {
			if _, err := in.getattr(inst.Class, "__get__", false, ctx); err == nil {
				return Uninferable
			}
		}
		return v
	}
	fn, ok := asNode(v)
	if !ok || fn.Kind != tree.KindFunctionDef {
		return v
	}
	switch in.functionType(fn, ctx) {
	case FuncClassMethod:
		return &BoundMethod{Func: fn, Bound: cls}
	case FuncStatic, FuncProperty:
		return fn
	}
	return &UnboundMethod{Func: fn}
}

// InstanceAttr returns the "self.name = ..." assignments of cls and its
// ancestors.
func (in *Interpreter) InstanceAttr(cls *tree.Node, name string) ([]*tree.Node, error) {
	var out []*tree.Node
	for _, c := range append([]*tree.Node{cls}, in.Ancestors(cls, true)...) {
		out = append(out, c.InstanceAttrs().Get(name)...)
		out = append(out, in.externalAttrs(c, true, name)...)
	}
	out = slices.DeleteFunc(out, func(n *tree.Node) bool { return n.Kind == tree.KindDelAttr })
	if len(out) == 0 {
		return nil, newError(ErrAttributeResolution, cls, name)
	}
	return out, nil
}

// HasAttr reports whether name resolves on a class, instance or module.
func (in *Interpreter) HasAttr(v Value, name string) bool {
	switch x := v.(type) {
	case *Instance:
		_, err := in.instanceGetattr(x, name, true, NewContext())
		return err == nil
	case *tree.Node:
		switch x.Kind {
		case tree.KindClassDef:
			_, err := in.Getattr(x, name, true)
			return err == nil
		case tree.KindModule:
			_, err := in.moduleGetattr(x, name, false)
			return err == nil
		}
		if cls := in.classOf(x); cls != nil {
			_, err := in.Getattr(cls, name, false)
			return err == nil
		}
	}
	return false
}

// =============================================================================
// Instances
// =============================================================================

// instanceGetattr returns the statements for name on an instance: its
// instance attributes, then the class attributes outside class context.
func (in *Interpreter) instanceGetattr(inst *Instance, name string, lookupClass bool, ctx *Context) ([]Value, error) {
	attrs, err := in.InstanceAttr(inst.Class, name)
	vals := nodeValues(attrs)
	if lookupClass {
		if classVals, cerr := in.getattr(inst.Class, name, false, ctx); cerr == nil {
			vals = append(vals, classVals...)
			err = nil
		}
	}
	if err == nil || len(vals) > 0 {
		return vals, nil
	}
	switch name {
	case "__class__":
		return []Value{inst.Class}, nil
	case "__dict__":
		if d := in.builtinClass("dict"); d != nil {
			return []Value{&Instance{Class: d}}, nil
		}
	}
	return nil, newError(ErrAttributeResolution, inst.Class, name)
}

// instanceIgetattr infers attribute name of inst. self is the receiver
// methods bind to; it differs from inst for literals.
func (in *Interpreter) instanceIgetattr(inst *Instance, self Value, name string, ctx *Context) Seq {
	ctx = ctx.WithLookup(name)
	return func(yield func(Value, error) bool) {
		guarded, ok := ctx.push(inst.Class)
		if !ok {
			return
		}
		if stmts, err := in.instanceGetattr(inst, name, false, guarded); err == nil {
			for v, err := range in.inferStmts(inst.Class, stmts, guarded) {
				if err != nil {
					yield(nil, err)
					return
				}
				for w := range in.wrapInstanceAttr(self, v, ctx) {
					if !yield(w, nil) {
						return
					}
				}
			}
			return
		}
		if name == "__class__" {
			yield(inst.Class, nil)
			return
		}
		for v, err := range in.classIgetattr(inst.Class, name, guarded, false) {
			if err != nil {
				yield(nil, err)
				return
			}
			for w := range in.wrapInstanceAttr(self, v, ctx) {
				if !yield(w, nil) {
					return
				}
			}
		}
	}
}

// wrapInstanceAttr binds methods to self and evaluates properties.
func (in *Interpreter) wrapInstanceAttr(self, v Value, ctx *Context) func(func(Value) bool) {
	return func(yield func(Value) bool) {
		var fn *tree.Node
		switch x := v.(type) {
		case *UnboundMethod:
			fn = x.Func
		case *tree.Node:
			if x.Kind == tree.KindFunctionDef && in.functionType(x, ctx) == FuncProperty {
				fn = x
			}
			if x.Kind == tree.KindLambda {
				if args := x.Args(); args != nil {
					if names := args.ArgNames(); len(names) > 0 && names[0] == "self" {
						yield(&BoundMethod{Func: x, Bound: self})
						return
					}
				}
			}
		}
		if fn == nil {
			yield(v)
			return
		}
		if in.functionType(fn, ctx) == FuncProperty {
			cc := &CallContext{Site: fn, Caller: ctx}
			for r, err := range in.callResult(&BoundMethod{Func: fn, Bound: self}, ctx.WithCall(cc)) {
				if err != nil {
					yield(Uninferable)
					return
				}
				if !yield(r) {
					return
				}
			}
			return
		}
		yield(&BoundMethod{Func: fn, Bound: self})
	}
}

// =============================================================================
// Dispatch
// =============================================================================

// igetattr infers attribute name on any value.
func (in *Interpreter) igetattr(owner Value, name string, ctx *Context) Seq {
	switch x := owner.(type) {
	case *Instance:
		return in.instanceIgetattr(x, x, name, ctx)
	case *BoundMethod:
		switch name {
		case "__func__", "im_func":
			return single(x.Func)
		case "__self__":
			return single(x.Bound)
		}
		return in.igetattr(x.Func, name, ctx)
	case *UnboundMethod:
		switch name {
		case "__func__", "im_func":
			return single(x.Func)
		case "__self__":
			return single(in.noneFor(x.Func))
		}
		return in.igetattr(x.Func, name, ctx)
	case *Super:
		return in.superIgetattr(x, name, ctx)
	case *Generator:
		return single(Uninferable)
	case *FrozenSet:
		if cls := in.builtinClass("frozenset"); cls != nil {
			return in.instanceIgetattr(&Instance{Class: cls, Origin: x.Origin}, x, name, ctx)
		}
	case *tree.Node:
		switch x.Kind {
		case tree.KindClassDef:
			return in.classIgetattr(x, name, ctx, true)
		case tree.KindModule:
			return in.moduleIgetattr(x, name, ctx)
		case tree.KindFunctionDef, tree.KindLambda:
			if v := in.functionSpecial(x, name); v != nil {
				return single(v)
			}
		}
		if cls := in.classOf(x); cls != nil {
			return in.instanceIgetattr(&Instance{Class: cls}, x, name, ctx)
		}
	}
	if IsUninferable(owner) {
		return single(Uninferable)
	}
	return failure(newError(ErrInference, asNodeOrNil(owner), name))
}

func (in *Interpreter) functionSpecial(fn *tree.Node, name string) Value {
	var c tree.Constant
	switch name {
	case "__name__":
		c = tree.Str(fn.Name)
	case "__qualname__":
		c = tree.Str(strings.TrimPrefix(fn.QName(), fn.Root().Name+"."))
	case "__module__":
		c = tree.Str(fn.Root().Name)
	case "__doc__":
		c = tree.None()
		if fn.Doc != "" {
			c = tree.Str(fn.Doc)
		}
	default:
		return nil
	}
	return in.cachedSpecial(fn, name, func() *tree.Node { return constNode(fn, c) })
}
