package infer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/thicket/internal/tree"
)

func classNamed(t *testing.T, mod *tree.Node, name string) *tree.Node {
	t.Helper()
	for _, n := range mod.Local(name) {
		if n.Kind == tree.KindClassDef {
			return n
		}
	}
	t.Fatalf("no class %q in %s", name, mod.Name)
	return nil
}

func names(nodes []*tree.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name
	}
	return out
}

// =============================================================================
// MRO
// =============================================================================

func TestMRO_Diamond(t *testing.T) {
	t.Parallel()
	mgr, in := newTestInterp(t)
	mod := parseModule(t, mgr, "diamond", `
class A: pass
class B(A): pass
class C(A): pass
class D(B, C): pass
`)
	mro, err := in.MRO(classNamed(t, mod, "D"))
	require.NoError(t, err)
	assert.Equal(t, []string{"D", "B", "C", "A", "object"}, names(mro))

	ancestors := in.Ancestors(classNamed(t, mod, "D"), true)
	assert.ElementsMatch(t, []string{"B", "C", "A", "object"}, names(ancestors))
}

func TestMRO_Errors(t *testing.T) {
	t.Parallel()
	mgr, in := newTestInterp(t)
	mod := parseModule(t, mgr, "badmro", `
class A: pass
class B(A): pass
class Dup(A, A): pass
class Bad(A, B): pass
`)
	_, err := in.MRO(classNamed(t, mod, "Dup"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateBases))
	assert.True(t, errors.Is(err, ErrMro))

	_, err = in.MRO(classNamed(t, mod, "Bad"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInconsistentMro))
	assert.False(t, errors.Is(err, ErrDuplicateBases))
}

func TestMRO_Memoized(t *testing.T) {
	t.Parallel()
	mgr, in := newTestInterp(t)
	mod := parseModule(t, mgr, "memo", "class A: pass\nclass B(A): pass\n")
	first, err := in.MRO(classNamed(t, mod, "B"))
	require.NoError(t, err)
	second, err := in.MRO(classNamed(t, mod, "B"))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// =============================================================================
// Attributes
// =============================================================================

func TestGetattr_ClassAndInstanceSeparate(t *testing.T) {
	t.Parallel()
	mgr, in := newTestInterp(t)
	mod := parseModule(t, mgr, "attrs", `
class C:
    a = 1
    def __init__(self):
        self.b = 2
C.a
C().b
C().a
C.b
`)
	c := classNamed(t, mod, "C")

	vals, err := in.Getattr(c, "a", true)
	require.NoError(t, err)
	assert.Len(t, vals, 1)

	_, err = in.Getattr(c, "b", true)
	assert.True(t, errors.Is(err, ErrAttributeResolution))

	attrs, err := in.InstanceAttr(c, "b")
	require.NoError(t, err)
	assert.Len(t, attrs, 1)
	_, err = in.InstanceAttr(c, "a")
	assert.True(t, errors.Is(err, ErrAttributeResolution))

	body := mod.Body()
	exprs := body[len(body)-4:]
	assert.Equal(t, []any{int64(1)}, inferPlain(t, in, exprs[0].Child(tree.FieldValue)))
	assert.Equal(t, []any{int64(2)}, inferPlain(t, in, exprs[1].Child(tree.FieldValue)))
	assert.Equal(t, []any{int64(1)}, inferPlain(t, in, exprs[2].Child(tree.FieldValue)))

	_, err = Collect(in.Infer(exprs[3].Child(tree.FieldValue), nil))
	assert.True(t, errors.Is(err, ErrInference))
}

func TestGetattr_MROOrder(t *testing.T) {
	t.Parallel()
	mgr, in := newTestInterp(t)
	mod := parseModule(t, mgr, "order", `
class A:
    name = "a"
class B(A):
    pass
class C(A):
    name = "c"
class D(B, C):
    pass
D().name
`)
	vals := inferPlain(t, in, lastValue(t, mod))
	require.NotEmpty(t, vals)
	assert.Equal(t, "c", vals[0])
}

func TestGetattr_ExternalAssignment(t *testing.T) {
	t.Parallel()
	mgr, in := newTestInterp(t)
	mod := parseModule(t, mgr, "external", `
class C:
    pass
C.added = 5
C.added
`)
	in.RegisterModule(mod)
	assert.Equal(t, []any{int64(5)}, inferPlain(t, in, lastValue(t, mod)))
}

func TestMethods_BoundAndProperty(t *testing.T) {
	t.Parallel()
	mgr, in := newTestInterp(t)
	mod := parseModule(t, mgr, "methods", `
class C:
    def m(self):
        return self
    @property
    def p(self):
        return "prop"
    @staticmethod
    def s():
        return 3
    @classmethod
    def k(cls):
        return cls
C().m
C().p
C.s()
C.k()
`)
	body := mod.Body()
	exprs := body[len(body)-4:]

	vals, err := Collect(in.Infer(exprs[0].Child(tree.FieldValue), nil))
	require.NoError(t, err)
	require.Len(t, vals, 1)
	bm, ok := vals[0].(*BoundMethod)
	require.True(t, ok, "got %T", vals[0])
	assert.Equal(t, "m", bm.Func.Name)

	assert.Equal(t, []any{"prop"}, inferPlain(t, in, exprs[1].Child(tree.FieldValue)))
	assert.Equal(t, []any{int64(3)}, inferPlain(t, in, exprs[2].Child(tree.FieldValue)))

	vals, err = Collect(in.Infer(exprs[3].Child(tree.FieldValue), nil))
	require.NoError(t, err)
	require.NotEmpty(t, vals)
	assert.Equal(t, classNamed(t, mod, "C"), asClass(vals[0]))

	c := classNamed(t, mod, "C")
	fn := func(name string) *tree.Node { return c.Local(name)[0] }
	assert.Equal(t, FuncMethod, in.FunctionType(fn("m")))
	assert.Equal(t, FuncProperty, in.FunctionType(fn("p")))
	assert.Equal(t, FuncStatic, in.FunctionType(fn("s")))
	assert.Equal(t, FuncClassMethod, in.FunctionType(fn("k")))
}

// =============================================================================
// Metaclasses
// =============================================================================

func TestMetaclass(t *testing.T) {
	t.Parallel()
	mgr, in := newTestInterp(t)
	mod := parseModule(t, mgr, "meta", `
class Meta(type):
    registry = {}
class Base(metaclass=Meta):
    pass
class Child(Base):
    pass
class Plain:
    pass
Child.registry
`)
	assert.Equal(t, classNamed(t, mod, "Meta"), in.Metaclass(classNamed(t, mod, "Child")))
	assert.Nil(t, in.Metaclass(classNamed(t, mod, "Plain")))
	assert.True(t, in.IsMetaclass(classNamed(t, mod, "Meta")))
	assert.False(t, in.IsMetaclass(classNamed(t, mod, "Plain")))

	vals, err := Collect(in.Infer(lastValue(t, mod), nil))
	require.NoError(t, err)
	require.Len(t, vals, 1)
	assert.True(t, isKind(vals[0], tree.KindDict))
}

// =============================================================================
// super
// =============================================================================

func TestSuper_MethodResolvesToParent(t *testing.T) {
	t.Parallel()
	mgr, in := newTestInterp(t)
	mod := parseModule(t, mgr, "supers", `
class A:
    def method(self):
        return "A"
class B(A):
    def method(self):
        return super().method()
B().method()
`)
	assert.Equal(t, []any{"A"}, inferPlain(t, in, lastValue(t, mod)))
}

func TestSuper_Object(t *testing.T) {
	t.Parallel()
	mgr, in := newTestInterp(t)
	mod := parseModule(t, mgr, "superobj", `
class A:
    pass
class B(A):
    def m(self):
        return super()
    def bad(self):
        return super().missing
`)
	b := classNamed(t, mod, "B")
	ret := b.Local("m")[0].Returns()[0].Child(tree.FieldValue)
	vals, err := Collect(in.Infer(ret, nil))
	require.NoError(t, err)
	require.Len(t, vals, 1)
	s, ok := vals[0].(*Super)
	require.True(t, ok, "got %T", vals[0])
	mro, err := in.SuperMRO(s)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "object"}, names(mro))

	missing := b.Local("bad")[0].Returns()[0].Child(tree.FieldValue)
	_, err = Collect(in.Infer(missing, nil))
	assert.True(t, errors.Is(err, ErrInference))
}

// =============================================================================
// type()
// =============================================================================

func TestTypeCall_SynthesizesClass(t *testing.T) {
	t.Parallel()
	mgr, in := newTestInterp(t)
	mod := parseModule(t, mgr, "dyn", `
class A:
    x = 1
X = type("X", (A,), {"y": 2})
X
X.x
X.y
`)
	body := mod.Body()
	vals, err := Collect(in.Infer(body[2].Child(tree.FieldValue), nil))
	require.NoError(t, err)
	require.Len(t, vals, 1)
	cls := asClass(vals[0])
	require.NotNil(t, cls)
	assert.Equal(t, "X", cls.Name)

	mro, err := in.MRO(cls)
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "A", "object"}, names(mro))

	assert.Equal(t, []any{int64(1)}, inferPlain(t, in, body[3].Child(tree.FieldValue)))
	assert.Equal(t, []any{int64(2)}, inferPlain(t, in, body[4].Child(tree.FieldValue)))

	// The same call site yields the same class.
	again, err := Collect(in.Infer(body[2].Child(tree.FieldValue), nil))
	require.NoError(t, err)
	assert.Same(t, cls, asClass(again[0]))
}
