package tree

// BuiltinNames reports whether a name is defined by the builtins module.
// It is consulted for decorators on class members that shadow builtins.
type BuiltinNames func(name string) bool

// Lookup resolves name as seen from n through the structural scope chain.
// It returns the scope where candidates were found and the filtered
// candidates. When nothing is bound anywhere up to the module, it returns
// the module and no candidates; builtins and wildcard imports are the
// caller's concern.
func (n *Node) Lookup(name string, builtins BuiltinNames) (*Node, []*Node) {
	return scopeLookup(n.Scope(), n, name, 0, builtins)
}

func scopeLookup(scope, ref *Node, name string, offset int, builtins BuiltinNames) (*Node, []*Node) {
	frame := scope
	switch {
	case scope.Kind.IsFunction():
		if inFunctionHeader(scope, ref) && scope.Parent() != nil {
			frame, offset = scope.Parent().Frame(), -1
		}
	case scope.Kind == KindClassDef:
		if inClassHeader(scope, ref, name, builtins) && scope.Parent() != nil {
			frame, offset = scope.Parent().Frame(), -1
		}
	case scope.Kind.IsComprehension():
		if gens := scope.Seq(FieldGenerators); len(gens) > 0 && scope.Parent() != nil {
			if it := gens[0].Child(FieldIter); it != nil && it.IsAncestorOrSelf(ref) {
				return scopeLookup(scope.Parent().Scope(), ref, name, offset, builtins)
			}
		}
	}
	return localLookup(frame, ref, name, offset, builtins)
}

func localLookup(frame, ref *Node, name string, offset int, builtins BuiltinNames) (*Node, []*Node) {
	if stmts := FilterStmts(ref, frame.Local(name), frame, offset); len(stmts) > 0 {
		return frame, stmts
	}
	p := frame.Parent()
	if p == nil {
		return frame, nil
	}
	pscope := p.Scope()
	if !pscope.Kind.IsFunction() {
		pscope = pscope.Root()
	}
	return scopeLookup(pscope, ref, name, 0, builtins)
}

// inFunctionHeader reports whether ref sits in a default value of fn's
// parameters, which evaluate in the enclosing frame.
func inFunctionHeader(fn, ref *Node) bool {
	args := fn.Args()
	if args == nil {
		return false
	}
	for _, f := range []Field{FieldDefaults, FieldKwDefaults} {
		for _, d := range args.Seq(f) {
			if d != nil && d.IsAncestorOrSelf(ref) {
				return true
			}
		}
	}
	if ret := fn.Child(FieldReturns); fn.Kind == KindFunctionDef && ret != nil && ret.IsAncestorOrSelf(ref) {
		return true
	}
	return false
}

// inClassHeader reports whether ref sits in the base list of cls, or is a
// decorator named after a builtin inside cls's body.
func inClassHeader(cls, ref *Node, name string, builtins BuiltinNames) bool {
	for _, b := range cls.Seq(FieldBases) {
		if b.IsAncestorOrSelf(ref) {
			return true
		}
	}
	for _, k := range cls.Seq(FieldKeywords) {
		if k.IsAncestorOrSelf(ref) {
			return true
		}
	}
	if builtins != nil && builtins(name) {
		if p := ref.Parent(); p != nil && p.Kind == KindDecorators {
			return true
		}
	}
	return false
}

// AssignType returns the node that determines how a binding node is
// assigned: the enclosing assignment statement, loop, comprehension,
// handler, argument list, or the binding node itself for definitions and
// imports.
func AssignType(n *Node) *Node {
	for cur := n; cur != nil; cur = cur.Parent() {
		switch cur.Kind {
		case KindAssignName, KindDelName, KindAssignAttr, KindDelAttr,
			KindTuple, KindList, KindStarred:
			continue
		}
		return cur
	}
	return n
}

// OptionalAssign reports whether an assignment type may not execute: loop
// targets keep earlier candidates alive.
func OptionalAssign(n *Node) bool {
	return n.Kind == KindFor || n.Kind == KindComprehension
}

// filteredStmts is the per-assignment-kind hook of FilterStmts. It returns
// the new candidate list and whether filtering is done.
func filteredStmts(assign, lookup, node *Node, stmts []*Node, mystmt *Node) ([]*Node, bool) {
	switch assign.Kind {
	case KindComprehension:
		if assign == mystmt {
			if lookup.Kind == KindConst || lookup.Kind == KindName {
				return []*Node{lookup}, true
			}
		} else if assign.Statement() == mystmt {
			return []*Node{node}, true
		}
		return stmts, false
	case KindImport, KindImportFrom, KindFunctionDef, KindClassDef:
		if assign.Statement() == mystmt {
			return []*Node{node}, true
		}
		return stmts, false
	}
	if assign == mystmt {
		return stmts, true
	}
	if assign.Statement() == mystmt {
		return []*Node{node}, true
	}
	return stmts, false
}

type candidate struct {
	node, stmt *Node
}

func filteredNodeStatements(ref *Node, nodes []*Node) []candidate {
	out := make([]candidate, 0, len(nodes))
	allHandlers := len(nodes) > 1
	for _, n := range nodes {
		st := n.Statement()
		out = append(out, candidate{node: n, stmt: st})
		if st.Kind != KindExceptHandler {
			allHandlers = false
		}
	}
	if !allHandlers {
		return out
	}
	kept := out[:0]
	for _, c := range out {
		if c.stmt.ParentOf(ref) {
			kept = append(kept, c)
		}
	}
	return kept
}

func hasBase(class, ref *Node) bool {
	if class.Kind != KindClassDef {
		return false
	}
	for _, b := range class.Seq(FieldBases) {
		if b == ref {
			return true
		}
	}
	return false
}

func indexOf(list []*Node, n *Node) int {
	for i, c := range list {
		if c == n {
			return i
		}
	}
	return -1
}

// FilterStmts narrows the raw definitions of a name in frame to those that
// can reach ref. A negative offset means ref resolves from the frame above
// its own (class bases, default values).
func FilterStmts(ref *Node, stmts []*Node, frame *Node, offset int) []*Node {
	if len(stmts) == 0 {
		return nil
	}
	var myframe *Node
	if p := ref.Frame().Parent(); offset == -1 && p != nil {
		myframe = p.Frame()
	} else {
		myframe = ref.Frame()
		if ref.Statement() == myframe && myframe.Parent() != nil {
			myframe = myframe.Parent().Frame()
		}
	}
	mystmt := ref.Statement()
	mylineno := 0
	if myframe == frame && mystmt.Line > 0 {
		mylineno = mystmt.Line + offset
	}

	var out, parents []*Node
	for _, c := range filteredNodeStatements(ref, stmts) {
		node, stmt := c.node, c.stmt
		if stmt.Line > 0 && mylineno > 0 && stmt.Line > mylineno {
			break
		}
		if mystmt == stmt && ref.FromDecorator() {
			continue
		}
		assign := AssignType(node)
		if hasBase(node, ref) {
			break
		}
		var done bool
		out, done = filteredStmts(assign, ref, node, out, mystmt)
		if done {
			break
		}
		optional := OptionalAssign(assign)
		if optional && assign.ParentOf(ref) {
			out = []*Node{node}
			parents = []*Node{stmt.Parent()}
			continue
		}
		if assign.Kind == KindNamedExpr {
			out = []*Node{node}
			parents = []*Node{stmt.Parent()}
			continue
		}
		if pindex := indexOf(parents, stmt.Parent()); pindex >= 0 {
			if AssignType(out[pindex]).ParentOf(assign) {
				continue
			}
			if !(optional || AreExclusive(out[pindex], node, nil)) {
				out = append(out[:pindex:pindex], out[pindex+1:]...)
				parents = append(parents[:pindex:pindex], parents[pindex+1:]...)
			}
		}
		if AreExclusive(ref, node, nil) {
			continue
		}
		switch node.Kind {
		case KindAssignName:
			if stmt.Kind == KindExceptHandler {
				if stmt.ParentOf(ref) {
					out, parents = nil, nil
				} else {
					continue
				}
			} else if !optional && stmt.Parent() == mystmt.Parent() {
				out, parents = nil, nil
			}
		case KindDelName:
			out, parents = nil, nil
			continue
		}
		out = append(out, node)
		if node.Kind == KindArguments || (node.Parent() != nil && node.Parent().Kind == KindArguments) {
			parents = append(parents, stmt)
		} else {
			parents = append(parents, stmt.Parent())
		}
	}
	return out
}

// AreExclusive reports whether a and b can never both execute on one
// control path. Only the nearest common ancestor is inspected. A non-nil
// exceptions list disables If exclusivity and restricts try-body versus
// handler exclusivity to handlers catching one of the names.
func AreExclusive(a, b *Node, exceptions []string) bool {
	aParents := make(map[*Node]*Node)
	prev := a
	for n := a.Parent(); n != nil; n = n.Parent() {
		aParents[n] = prev
		prev = n
	}
	prev = b
	for n := b.Parent(); n != nil; n = n.Parent() {
		childA, common := aParents[n]
		if !common {
			prev = n
			continue
		}
		switch {
		case n.Kind == KindIf && exceptions == nil:
			fa, _, _ := n.LocateChild(childA)
			fb, _, _ := n.LocateChild(prev)
			if fa != fb {
				return true
			}
		case n.Kind == KindTry:
			fb, _, _ := n.LocateChild(prev)
			fa, _, _ := n.LocateChild(childA)
			if fa != fb {
				switch {
				case fb == FieldHandlers && fa == FieldBody && prev.Catch(exceptions):
					return true
				case fb == FieldBody && fa == FieldHandlers && childA.Catch(exceptions):
					return true
				case fb == FieldHandlers && fa == FieldOrelse:
					return true
				case fb == FieldOrelse && fa == FieldHandlers:
					return true
				}
			} else if fa == FieldHandlers {
				return prev != childA
			}
		}
		return false
	}
	return false
}
