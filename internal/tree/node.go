package tree

import (
	"fmt"
	"strings"
)

// NodeID addresses a node inside its Tree's arena.
type NodeID int32

// NoNode marks an empty slot or a missing parent.
const NoNode NodeID = -1

// Alias is one name of an import statement: "import a.b as c" carries
// Alias{Name: "a.b", AsName: "c"}.
type Alias struct {
	Name   string `json:"name"`
	AsName string `json:"asname,omitempty"`
}

// Bound returns the local name an alias binds.
func (a Alias) Bound() string {
	if a.AsName != "" {
		return a.AsName
	}
	return a.Name
}

// Node is an element of a syntax tree. Children are stored as NodeIDs in
// per-kind slots (see Schema); the parent is a plain index, never an owning
// reference.
type Node struct {
	Kind    Kind
	Line    int
	EndLine int
	Col     int
	EndCol  int // just past the last character on EndLine

	// Name is the identifier of Name, AssignName, DelName, FunctionDef,
	// ClassDef, Module and Keyword nodes, and the attribute name of
	// Attribute, AssignAttr and DelAttr nodes.
	Name string
	// Op is the operator of BinOp, AugAssign ("+=" is stored as "+"),
	// UnaryOp and BoolOp nodes.
	Op string
	// Ops holds the comparison operators of a Compare node.
	Ops []string
	// Const is the value of a Const node.
	Const Constant
	// Aliases are the imported names of Import and ImportFrom nodes.
	Aliases []Alias
	// Names are the declared names of Global and Nonlocal nodes.
	Names []string
	// Module and Level describe the source of an ImportFrom.
	Module string
	Level  int
	Async  bool
	// Hidden marks synthetic helper classes skipped by ancestor walks.
	Hidden bool
	Doc    string

	tree   *Tree
	id     NodeID
	parent NodeID
	slots  [][]NodeID
}

// Tree returns the arena holding n.
func (n *Node) Tree() *Tree { return n.tree }

// ID returns n's index in its arena.
func (n *Node) ID() NodeID { return n.id }

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	switch n.Kind {
	case KindConst:
		return fmt.Sprintf("Const(%s) l.%d", n.Const, n.Line)
	case KindName, KindAssignName, KindDelName, KindFunctionDef, KindClassDef,
		KindModule, KindAttribute, KindAssignAttr, KindDelAttr:
		return fmt.Sprintf("%s(%s) l.%d", n.Kind, n.Name, n.Line)
	}
	return fmt.Sprintf("%s l.%d", n.Kind, n.Line)
}

func (n *Node) node(id NodeID) *Node {
	if id == NoNode {
		return nil
	}
	return n.tree.nodes[id]
}

func (n *Node) slot(f Field) []NodeID {
	i := slotIndex(n.Kind, f)
	if i < 0 {
		return nil
	}
	return n.slots[i]
}

// Child returns the single child in field f, or nil.
func (n *Node) Child(f Field) *Node {
	s := n.slot(f)
	if len(s) == 0 {
		return nil
	}
	return n.node(s[0])
}

// Seq returns the children in field f. Empty alignment slots are nil.
func (n *Node) Seq(f Field) []*Node {
	s := n.slot(f)
	out := make([]*Node, len(s))
	for i, id := range s {
		out[i] = n.node(id)
	}
	return out
}

// Pair is one (key, value) entry of a Pairs field. Key is nil for dict
// splats; Value is nil for a with-item without a target.
type Pair struct {
	Key, Value *Node
}

// PairSeq returns the entries of a Pairs field.
func (n *Node) PairSeq(f Field) []Pair {
	s := n.slot(f)
	out := make([]Pair, 0, len(s)/2)
	for i := 0; i+1 < len(s); i += 2 {
		out = append(out, Pair{Key: n.node(s[i]), Value: n.node(s[i+1])})
	}
	return out
}

// Children returns all direct children in schema order.
func (n *Node) Children() []*Node {
	var out []*Node
	for _, ids := range n.slots {
		for _, id := range ids {
			if id != NoNode {
				out = append(out, n.tree.nodes[id])
			}
		}
	}
	return out
}

// Body is shorthand for Seq(FieldBody).
func (n *Node) Body() []*Node { return n.Seq(FieldBody) }

// Args returns the Arguments node of a function or lambda.
func (n *Node) Args() *Node { return n.Child(FieldArgs) }

// LocateChild returns the field holding child and its position in that
// field. ok is false when child is not a direct child of n.
func (n *Node) LocateChild(child *Node) (f Field, index int, ok bool) {
	if child == nil || child.tree != n.tree {
		return 0, 0, false
	}
	for i, ids := range n.slots {
		for j, id := range ids {
			if id == child.id {
				return Schema(n.Kind)[i].Field, j, true
			}
		}
	}
	return 0, 0, false
}

// Parent returns n's parent. The root of a fragment tree reports the
// fragment's Outer node as its parent.
func (n *Node) Parent() *Node {
	if n.parent == NoNode {
		return n.tree.Outer
	}
	return n.tree.nodes[n.parent]
}

// Root returns the module containing n.
func (n *Node) Root() *Node {
	cur := n
	for p := cur.Parent(); p != nil; p = cur.Parent() {
		cur = p
	}
	return cur
}

// Scope returns the nearest scope node enclosing n, or n itself when n is a
// scope. Decorator expressions belong to the scope enclosing the decorated
// definition.
func (n *Node) Scope() *Node {
	if n.Kind.IsScope() {
		return n
	}
	for cur := n.Parent(); cur != nil; cur = cur.Parent() {
		if cur.Kind == KindDecorators {
			if def := cur.Parent(); def != nil && def.Parent() != nil {
				return def.Parent().Scope()
			}
		}
		if cur.Kind.IsScope() {
			return cur
		}
	}
	return n.Root()
}

// Frame returns the nearest enclosing module, function, lambda or class.
func (n *Node) Frame() *Node {
	for cur := n; cur != nil; cur = cur.Parent() {
		if cur.Kind.IsFrame() {
			return cur
		}
	}
	return n.Root()
}

// Statement returns the statement containing n. A Module is its own
// statement.
func (n *Node) Statement() *Node {
	for cur := n; cur != nil; cur = cur.Parent() {
		if cur.Kind.IsStatement() || cur.Kind == KindModule {
			return cur
		}
	}
	return n.Root()
}

// ParentOf reports whether n is a strict ancestor of other.
func (n *Node) ParentOf(other *Node) bool {
	if other == nil {
		return false
	}
	for cur := other.Parent(); cur != nil; cur = cur.Parent() {
		if cur == n {
			return true
		}
	}
	return false
}

// IsAncestorOrSelf reports whether n is other or one of its ancestors.
func (n *Node) IsAncestorOrSelf(other *Node) bool {
	return n == other || n.ParentOf(other)
}

// QName returns the dotted qualified name of a module, class or function.
func (n *Node) QName() string {
	if n.Kind == KindModule {
		return n.Name
	}
	p := n.Parent()
	if p == nil {
		return n.Name
	}
	return p.Frame().QName() + "." + n.Name
}

// Walk calls fn for n and every descendant in pre-order. Returning false
// from fn skips that node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children() {
		c.Walk(fn)
	}
}

// NodesOfKind returns descendants of n (including n) with the given kind.
// Nested scopes are entered.
func (n *Node) NodesOfKind(k Kind) []*Node {
	var out []*Node
	n.Walk(func(c *Node) bool {
		if c.Kind == k {
			out = append(out, c)
		}
		return true
	})
	return out
}

// FromDecorator reports whether n sits inside a decorator list.
func (n *Node) FromDecorator() bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Kind == KindDecorators {
			return true
		}
	}
	return false
}

// DecoratorNames returns the dotted source names of a definition's
// decorators, as written ("staticmethod", "functools.wraps").
func (n *Node) DecoratorNames() []string {
	decs := n.Child(FieldDecorators)
	if decs == nil {
		return nil
	}
	var out []string
	for _, d := range decs.Seq(FieldNodes) {
		if d.Kind == KindCall {
			d = d.Child(FieldFunc)
		}
		if name := DottedName(d); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// DottedName renders a Name or a chain of Attributes ending in a Name.
// Other expressions render as "".
func DottedName(n *Node) string {
	var parts []string
	for n != nil {
		switch n.Kind {
		case KindName, KindAssignName:
			parts = append(parts, n.Name)
			for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
				parts[i], parts[j] = parts[j], parts[i]
			}
			return strings.Join(parts, ".")
		case KindAttribute, KindAssignAttr:
			parts = append(parts, n.Name)
			n = n.Child(FieldExpr)
		default:
			return ""
		}
	}
	return ""
}

// ArgNames returns the positional parameter names of an Arguments node,
// positional-only first.
func (n *Node) ArgNames() []string {
	var out []string
	for _, a := range append(n.Seq(FieldPosonlyArgs), n.Seq(FieldArgs)...) {
		if a != nil {
			out = append(out, a.Name)
		}
	}
	return out
}

// DefaultValue returns the default expression of the named parameter of an
// Arguments node, or nil.
func (n *Node) DefaultValue(name string) *Node {
	positional := append(n.Seq(FieldPosonlyArgs), n.Seq(FieldArgs)...)
	defaults := n.Seq(FieldDefaults)
	offset := len(positional) - len(defaults)
	for i, a := range positional {
		if a != nil && a.Name == name && i >= offset {
			return defaults[i-offset]
		}
	}
	kwDefaults := n.Seq(FieldKwDefaults)
	for i, a := range n.Seq(FieldKwonlyArgs) {
		if a != nil && a.Name == name && i < len(kwDefaults) {
			return kwDefaults[i]
		}
	}
	return nil
}

// IsGenerator reports whether a function body yields, ignoring nested
// functions, lambdas and classes.
func (n *Node) IsGenerator() bool {
	found := false
	for _, stmt := range n.Body() {
		stmt.Walk(func(c *Node) bool {
			if found {
				return false
			}
			switch c.Kind {
			case KindYield, KindYieldFrom:
				found = true
				return false
			case KindFunctionDef, KindLambda, KindClassDef:
				return false
			}
			return true
		})
	}
	return found
}

// Returns collects the return statements of a function body, ignoring
// nested functions, lambdas and classes.
func (n *Node) Returns() []*Node {
	var out []*Node
	for _, stmt := range n.Body() {
		stmt.Walk(func(c *Node) bool {
			switch c.Kind {
			case KindReturn:
				out = append(out, c)
				return false
			case KindFunctionDef, KindLambda, KindClassDef:
				return false
			}
			return true
		})
	}
	return out
}

// Catch reports whether an ExceptHandler handles any of the named
// exceptions. A bare handler, or a nil list, always catches.
func (n *Node) Catch(exceptions []string) bool {
	typ := n.Child(FieldType)
	if typ == nil || exceptions == nil {
		return true
	}
	found := false
	typ.Walk(func(c *Node) bool {
		if c.Kind == KindName {
			for _, e := range exceptions {
				if c.Name == e {
					found = true
				}
			}
			return false
		}
		return !found
	})
	return found
}
