package tree_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/thicket/internal/parser"
	"github.com/jward/thicket/internal/tree"
)

func parseModule(t *testing.T, src string) *tree.Node {
	t.Helper()
	tr, err := parser.Parse(context.Background(), []byte(src), "mod", "")
	require.NoError(t, err)
	return tr.Root()
}

// nameAt returns the first Name node called name on the given line.
func nameAt(t *testing.T, mod *tree.Node, name string, line int) *tree.Node {
	t.Helper()
	for _, n := range mod.NodesOfKind(tree.KindName) {
		if n.Name == name && n.Line == line {
			return n
		}
	}
	t.Fatalf("no Name %q on line %d", name, line)
	return nil
}

func lines(nodes []*tree.Node) []int {
	out := make([]int, len(nodes))
	for i, n := range nodes {
		out[i] = n.Line
	}
	return out
}

// =============================================================================
// Locals
// =============================================================================

func TestLocals_BindingOrder(t *testing.T) {
	t.Parallel()
	src := `import os.path
from sys import argv as args
x = 1
def f(a):
    y = a
class C:
    z = 2
x = 3
`
	mod := parseModule(t, src)
	assert.Equal(t, []string{"os", "args", "x", "f", "C"}, mod.Locals().Names())
	assert.Len(t, mod.Local("x"), 2)

	fn := mod.Local("f")[0]
	assert.Equal(t, []string{"a", "y"}, fn.Locals().Names())
	cls := mod.Local("C")[0]
	assert.True(t, cls.Locals().Has("z"))
	assert.Nil(t, mod.Body()[0].Locals(), "non-scopes have no locals")
}

func TestLocals_GlobalAndNonlocal(t *testing.T) {
	t.Parallel()
	src := `def outer():
    v = 1
    def inner():
        nonlocal v
        global g
        v = 2
        g = 3
`
	mod := parseModule(t, src)
	outer := mod.Local("outer")[0]
	assert.Len(t, outer.Local("v"), 2)
	assert.Len(t, mod.Local("g"), 1)
	inner := outer.Local("inner")[0]
	assert.False(t, inner.Locals().Has("v"))
}

func TestLocals_ComprehensionAndWalrus(t *testing.T) {
	t.Parallel()
	mod := parseModule(t, "r = [y := i for i in range(3)]\n")
	comp := mod.NodesOfKind(tree.KindListComp)[0]
	assert.True(t, comp.Locals().Has("i"))
	assert.False(t, comp.Locals().Has("y"))
	assert.True(t, mod.Locals().Has("y"))
}

func TestLocals_InstanceAttrsAndWildcards(t *testing.T) {
	t.Parallel()
	src := `from pkg import *
class A:
    def __init__(self):
        self.a = 1
        other.b = 2
    @staticmethod
    def s(x):
        x.c = 3
`
	mod := parseModule(t, src)
	cls := mod.Local("A")[0]
	attrs := cls.InstanceAttrs()
	assert.Equal(t, []string{"a"}, attrs.Names())
	require.Len(t, mod.WildcardImports(), 1)
	assert.Equal(t, "pkg", mod.WildcardImports()[0].Module)
}

// =============================================================================
// Lookup
// =============================================================================

func TestLookup_ModuleShadowing(t *testing.T) {
	t.Parallel()
	src := `x = 1
x = 2
print(x)
`
	mod := parseModule(t, src)
	scope, stmts := nameAt(t, mod, "x", 3).Lookup("x", nil)
	assert.Equal(t, mod, scope)
	assert.Equal(t, []int{2}, lines(stmts))
}

func TestLookup_BranchesBothReach(t *testing.T) {
	t.Parallel()
	src := `if c:
    x = 1
else:
    x = 2
x
`
	mod := parseModule(t, src)
	_, stmts := nameAt(t, mod, "x", 5).Lookup("x", nil)
	assert.Equal(t, []int{2, 4}, lines(stmts))
}

func TestLookup_BranchSeesOnlyOwnBinding(t *testing.T) {
	t.Parallel()
	src := `if c:
    x = 1
else:
    x = 2
    x
`
	mod := parseModule(t, src)
	_, stmts := nameAt(t, mod, "x", 5).Lookup("x", nil)
	assert.Equal(t, []int{4}, lines(stmts))
}

func TestLookup_LoopTargetKeepsEarlier(t *testing.T) {
	t.Parallel()
	src := `x = 0
for x in range(3):
    x
x
`
	mod := parseModule(t, src)
	_, inside := nameAt(t, mod, "x", 3).Lookup("x", nil)
	assert.Equal(t, []int{2}, lines(inside))
	_, after := nameAt(t, mod, "x", 4).Lookup("x", nil)
	assert.Equal(t, []int{1, 2}, lines(after))
}

func TestLookup_SelfReferenceFindsNothing(t *testing.T) {
	t.Parallel()
	mod := parseModule(t, "def f():\n    x = x\n")
	fn := mod.Local("f")[0]
	ref := nameAt(t, mod, "x", 2)
	scope, stmts := ref.Lookup("x", nil)
	assert.Empty(t, stmts)
	assert.Equal(t, mod, scope)
	assert.Len(t, fn.Local("x"), 1)
}

func TestLookup_DeleteClearsBinding(t *testing.T) {
	t.Parallel()
	mod := parseModule(t, "x = 1\ndel x\nx\n")
	_, stmts := nameAt(t, mod, "x", 3).Lookup("x", nil)
	assert.Empty(t, stmts)
}

func TestLookup_EnclosingFunction(t *testing.T) {
	t.Parallel()
	src := `def outer():
    v = 1
    def inner():
        return v
`
	mod := parseModule(t, src)
	outer := mod.Local("outer")[0]
	scope, stmts := nameAt(t, mod, "v", 4).Lookup("v", nil)
	assert.Equal(t, outer, scope)
	assert.Equal(t, []int{2}, lines(stmts))
}

func TestLookup_ClassScopeSkippedByMethods(t *testing.T) {
	t.Parallel()
	src := `v = 0
class C:
    v = 1
    def m(self):
        return v
`
	mod := parseModule(t, src)
	scope, stmts := nameAt(t, mod, "v", 5).Lookup("v", nil)
	assert.Equal(t, mod, scope)
	assert.Equal(t, []int{1}, lines(stmts))
}

func TestLookup_DefaultValueUsesEnclosingFrame(t *testing.T) {
	t.Parallel()
	src := `d = 1
def f(d=d):
    return d
`
	mod := parseModule(t, src)
	def := nameAt(t, mod, "d", 2)
	scope, stmts := def.Lookup("d", nil)
	assert.Equal(t, mod, scope)
	assert.Equal(t, []int{1}, lines(stmts))

	fn := mod.Local("f")[0]
	scope, stmts = nameAt(t, mod, "d", 3).Lookup("d", nil)
	assert.Equal(t, fn, scope)
	require.Len(t, stmts, 1)
	assert.Equal(t, tree.KindAssignName, stmts[0].Kind)
}

func TestLookup_ClassBaseUsesEnclosingFrame(t *testing.T) {
	t.Parallel()
	src := `class A:
    pass
class B(A):
    A = 3
`
	mod := parseModule(t, src)
	scope, stmts := nameAt(t, mod, "A", 3).Lookup("A", nil)
	assert.Equal(t, mod, scope)
	require.Len(t, stmts, 1)
	assert.Equal(t, tree.KindClassDef, stmts[0].Kind)
}

func TestLookup_ComprehensionIterator(t *testing.T) {
	t.Parallel()
	src := `xs = [1]
r = [xs for xs in xs]
`
	mod := parseModule(t, src)
	comp := mod.NodesOfKind(tree.KindListComp)[0]
	iter := comp.Seq(tree.FieldGenerators)[0].Child(tree.FieldIter)
	scope, stmts := iter.Lookup("xs", nil)
	assert.Equal(t, mod, scope)
	assert.Equal(t, []int{1}, lines(stmts))

	elt := comp.Child(tree.FieldElt)
	scope, _ = elt.Lookup("xs", nil)
	assert.Equal(t, comp, scope)
}

func TestLookup_ExceptHandlerName(t *testing.T) {
	t.Parallel()
	src := `try:
    pass
except ValueError as e:
    e
`
	mod := parseModule(t, src)
	_, stmts := nameAt(t, mod, "e", 4).Lookup("e", nil)
	require.Len(t, stmts, 1)
	assert.Equal(t, tree.KindExceptHandler, stmts[0].Statement().Kind)
}

// =============================================================================
// AreExclusive
// =============================================================================

func TestAreExclusive(t *testing.T) {
	t.Parallel()
	src := `if c:
    a = 1
else:
    b = 2
try:
    t1 = 1
except ValueError:
    h1 = 2
except KeyError:
    h2 = 3
else:
    e1 = 4
d = 5
`
	mod := parseModule(t, src)
	assign := func(name string) *tree.Node {
		t.Helper()
		nodes := mod.Local(name)
		require.NotEmpty(t, nodes, name)
		return nodes[0]
	}
	assert.True(t, tree.AreExclusive(assign("a"), assign("b"), nil))
	assert.False(t, tree.AreExclusive(assign("a"), assign("d"), nil))
	assert.True(t, tree.AreExclusive(assign("h1"), assign("h2"), nil))
	assert.True(t, tree.AreExclusive(assign("t1"), assign("h1"), nil))
	assert.True(t, tree.AreExclusive(assign("h1"), assign("e1"), nil))
	assert.False(t, tree.AreExclusive(assign("t1"), assign("e1"), nil))

	assert.True(t, tree.AreExclusive(assign("t1"), assign("h2"), []string{"KeyError"}))
	assert.False(t, tree.AreExclusive(assign("t1"), assign("h2"), []string{"OSError"}))
	assert.False(t, tree.AreExclusive(assign("a"), assign("b"), []string{"KeyError"}))
}

func TestAreExclusive_Nested(t *testing.T) {
	t.Parallel()
	src := `try:
    if c:
        a = 1
    else:
        b = 2
except ValueError:
    h = 3
if p:
    if q:
        x = 1
    else:
        y = 2
    w = 0
else:
    z = 3
`
	mod := parseModule(t, src)
	assign := func(name string) *tree.Node {
		t.Helper()
		nodes := mod.Local(name)
		require.NotEmpty(t, nodes, name)
		return nodes[0]
	}
	tests := []struct {
		a, b string
		want bool
	}{
		{"a", "b", true},
		{"a", "h", true},
		{"b", "h", true},
		{"x", "y", true},
		{"x", "z", true},
		{"y", "z", true},
		{"x", "w", false},
		{"w", "z", true},
		{"a", "x", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tree.AreExclusive(assign(tt.a), assign(tt.b), nil), "%s/%s", tt.a, tt.b)
		assert.Equal(t, tt.want, tree.AreExclusive(assign(tt.b), assign(tt.a), nil), "%s/%s", tt.b, tt.a)
	}
}

// =============================================================================
// Arena
// =============================================================================

func TestReplace_FrozenTree(t *testing.T) {
	t.Parallel()
	mod := parseModule(t, "x = f()\n")
	call := mod.NodesOfKind(tree.KindCall)[0]

	b := tree.NewBuilder("repl", "")
	k := b.New(tree.KindConst, 1, 0)
	k.Const = tree.Int(7)
	repl := b.Finish(k).Root()

	n, err := mod.Tree().Replace(call, repl)
	require.NoError(t, err)
	assert.Equal(t, int64(7), mod.Body()[0].Child(tree.FieldValue).Const.Int)
	assert.Equal(t, mod.Body()[0], n.Parent())

	_ = mod.Locals()
	_, err = mod.Tree().Replace(n, repl)
	assert.True(t, errors.Is(err, tree.ErrFrozen))
}

func TestFragment_HangsOffOuter(t *testing.T) {
	t.Parallel()
	mod := parseModule(t, "class A:\n    pass\n")
	cls := mod.Local("A")[0]
	src := parseModule(t, "def m(self):\n    return 1\n").Body()[0]

	frag := tree.Fragment(src, cls)
	root := frag.Root()
	assert.Equal(t, cls, root.Parent())
	assert.Equal(t, cls, root.Frame().Parent().Frame())
	assert.Equal(t, mod, root.Root())
	assert.Equal(t, "mod.A.m", root.QName())
}

func TestRebuild_Validates(t *testing.T) {
	t.Parallel()
	mod := parseModule(t, "x = 1\n")
	tr := mod.Tree()
	n := tr.Len()
	nodes := make([]*tree.Node, n)
	slots := make([][][]tree.NodeID, n)
	parents := make([]tree.NodeID, n)
	for i := 0; i < n; i++ {
		src := tr.Node(tree.NodeID(i))
		clone := &tree.Node{Kind: src.Kind, Line: src.Line, Name: src.Name, Const: src.Const}
		nodes[i] = clone
		slots[i] = src.Slots()
		parents[i] = src.ParentID()
	}
	rebuilt, err := tree.Rebuild("mod", "", false, nodes, slots, parents, mod.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(1), rebuilt.Root().Body()[0].Child(tree.FieldValue).Const.Int)

	parents[0] = tree.NodeID(n + 5)
	_, err = tree.Rebuild("mod", "", false, nodes, slots, parents, mod.ID())
	assert.Error(t, err)
}

func TestKindByName_RoundTrip(t *testing.T) {
	t.Parallel()
	for _, k := range []tree.Kind{tree.KindInvalid, tree.KindModule, tree.KindDecorators, tree.KindJoinedStr} {
		got, ok := tree.KindByName(k.String())
		require.True(t, ok, k.String())
		assert.Equal(t, k, got)
	}
	_, ok := tree.KindByName("Nope")
	assert.False(t, ok)
}

func TestExprAt_Innermost(t *testing.T) {
	t.Parallel()
	mod := parseModule(t, "x = foo(a.b, 2)\n")

	n := mod.ExprAt(1, 8)
	require.NotNil(t, n)
	assert.Equal(t, tree.KindName, n.Kind)
	assert.Equal(t, "a", n.Name)

	n = mod.ExprAt(1, 10)
	require.NotNil(t, n)
	assert.Equal(t, tree.KindAttribute, n.Kind)

	n = mod.ExprAt(1, 4)
	require.NotNil(t, n)
	assert.Equal(t, "foo", n.Name)

	n = mod.ExprAt(1, 7)
	require.NotNil(t, n)
	assert.Equal(t, tree.KindCall, n.Kind, "the parenthesis belongs to the call")

	n = mod.ExprAt(1, 0)
	require.NotNil(t, n)
	assert.Equal(t, tree.KindAssignName, n.Kind)

	assert.Nil(t, mod.ExprAt(3, 0))
}

func TestContains_MultiLine(t *testing.T) {
	t.Parallel()
	mod := parseModule(t, "y = [\n    1,\n    2,\n]\n")
	lists := mod.NodesOfKind(tree.KindList)
	require.Len(t, lists, 1)
	l := lists[0]
	assert.True(t, l.Contains(1, 4))
	assert.True(t, l.Contains(2, 0))
	assert.True(t, l.Contains(4, 0))
	assert.False(t, l.Contains(4, 1))
	assert.False(t, l.Contains(1, 3))
}
