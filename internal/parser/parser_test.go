package parser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/thicket/internal/tree"
)

func parseModule(t *testing.T, src string) *tree.Node {
	t.Helper()
	tr, err := Parse(context.Background(), []byte(src), "mod", "")
	require.NoError(t, err)
	require.NotNil(t, tr.Root())
	return tr.Root()
}

// =============================================================================
// Statements
// =============================================================================

func TestParse_ModuleName(t *testing.T) {
	t.Parallel()
	mod := parseModule(t, "x = 1\n")
	assert.Equal(t, tree.KindModule, mod.Kind)
	assert.Equal(t, "mod", mod.Name)
	require.Len(t, mod.Body(), 1)
}

func TestParse_ChainedAssign(t *testing.T) {
	t.Parallel()
	mod := parseModule(t, "a = b = 3\n")
	as := mod.Body()[0]
	require.Equal(t, tree.KindAssign, as.Kind)
	targets := as.Seq(tree.FieldTargets)
	require.Len(t, targets, 2)
	assert.Equal(t, "a", targets[0].Name)
	assert.Equal(t, "b", targets[1].Name)
	v := as.Child(tree.FieldValue)
	require.Equal(t, tree.KindConst, v.Kind)
	assert.Equal(t, int64(3), v.Const.Int)
}

func TestParse_TupleUnpacking(t *testing.T) {
	t.Parallel()
	mod := parseModule(t, "a, (b, *c) = 1, 2\n")
	as := mod.Body()[0]
	tgt := as.Seq(tree.FieldTargets)[0]
	require.Equal(t, tree.KindTuple, tgt.Kind)
	elts := tgt.Seq(tree.FieldElts)
	require.Len(t, elts, 2)
	assert.Equal(t, tree.KindAssignName, elts[0].Kind)
	inner := elts[1]
	require.Equal(t, tree.KindTuple, inner.Kind)
	star := inner.Seq(tree.FieldElts)[1]
	require.Equal(t, tree.KindStarred, star.Kind)
	assert.Equal(t, "c", star.Child(tree.FieldValue).Name)
	assert.Equal(t, tree.KindTuple, as.Child(tree.FieldValue).Kind)
}

func TestParse_AnnAssignAndAugAssign(t *testing.T) {
	t.Parallel()
	mod := parseModule(t, "x: int = 1\nx += 2\n")
	ann := mod.Body()[0]
	require.Equal(t, tree.KindAnnAssign, ann.Kind)
	assert.Equal(t, "x", ann.Child(tree.FieldTarget).Name)
	assert.Equal(t, "int", ann.Child(tree.FieldAnnotation).Name)
	aug := mod.Body()[1]
	require.Equal(t, tree.KindAugAssign, aug.Kind)
	assert.Equal(t, "+", aug.Op)
}

func TestParse_AttributeTarget(t *testing.T) {
	t.Parallel()
	mod := parseModule(t, "self.x = 1\ndel self.x, y\n")
	tgt := mod.Body()[0].Seq(tree.FieldTargets)[0]
	require.Equal(t, tree.KindAssignAttr, tgt.Kind)
	assert.Equal(t, "x", tgt.Name)
	assert.Equal(t, "self", tgt.Child(tree.FieldExpr).Name)

	del := mod.Body()[1]
	require.Equal(t, tree.KindDelete, del.Kind)
	targets := del.Seq(tree.FieldTargets)
	require.Len(t, targets, 2)
	assert.Equal(t, tree.KindDelAttr, targets[0].Kind)
	assert.Equal(t, tree.KindDelName, targets[1].Kind)
}

func TestParse_IfElifElse(t *testing.T) {
	t.Parallel()
	mod := parseModule(t, "if a:\n    x = 1\nelif b:\n    x = 2\nelse:\n    x = 3\n")
	root := mod.Body()[0]
	require.Equal(t, tree.KindIf, root.Kind)
	orelse := root.Seq(tree.FieldOrelse)
	require.Len(t, orelse, 1)
	elif := orelse[0]
	require.Equal(t, tree.KindIf, elif.Kind)
	assert.Equal(t, "b", elif.Child(tree.FieldTest).Name)
	require.Len(t, elif.Seq(tree.FieldOrelse), 1)
	assert.Equal(t, tree.KindAssign, elif.Seq(tree.FieldOrelse)[0].Kind)
}

func TestParse_ForWhileElse(t *testing.T) {
	t.Parallel()
	mod := parseModule(t, "for i in range(3):\n    pass\nelse:\n    y = 1\nwhile x:\n    break\n")
	f := mod.Body()[0]
	require.Equal(t, tree.KindFor, f.Kind)
	assert.Equal(t, "i", f.Child(tree.FieldTarget).Name)
	assert.Equal(t, tree.KindCall, f.Child(tree.FieldIter).Kind)
	assert.Len(t, f.Seq(tree.FieldOrelse), 1)
	w := mod.Body()[1]
	require.Equal(t, tree.KindWhile, w.Kind)
	assert.Equal(t, tree.KindBreak, w.Body()[0].Kind)
}

func TestParse_TryHandlers(t *testing.T) {
	t.Parallel()
	src := `try:
    x = 1
except (ValueError, KeyError) as exc:
    x = 2
except:
    pass
else:
    x = 3
finally:
    x = 4
`
	mod := parseModule(t, src)
	try := mod.Body()[0]
	require.Equal(t, tree.KindTry, try.Kind)
	handlers := try.Seq(tree.FieldHandlers)
	require.Len(t, handlers, 2)
	named := handlers[0]
	assert.Equal(t, tree.KindTuple, named.Child(tree.FieldType).Kind)
	assert.Equal(t, "exc", named.Child(tree.FieldName).Name)
	assert.Nil(t, handlers[1].Child(tree.FieldType))
	assert.Len(t, try.Seq(tree.FieldOrelse), 1)
	assert.Len(t, try.Seq(tree.FieldFinalbody), 1)
	assert.True(t, handlers[0].Catch([]string{"KeyError"}))
	assert.False(t, handlers[0].Catch([]string{"OSError"}))
}

func TestParse_With(t *testing.T) {
	t.Parallel()
	mod := parseModule(t, "with open(p) as f, lock:\n    pass\n")
	w := mod.Body()[0]
	require.Equal(t, tree.KindWith, w.Kind)
	items := w.PairSeq(tree.FieldItems)
	require.Len(t, items, 2)
	assert.Equal(t, tree.KindCall, items[0].Key.Kind)
	require.NotNil(t, items[0].Value)
	assert.Equal(t, "f", items[0].Value.Name)
	assert.Nil(t, items[1].Value)
}

func TestParse_FunctionParameters(t *testing.T) {
	t.Parallel()
	mod := parseModule(t, "def f(a, b=1, /, c=2, *args, d, e=3, **kw) -> int:\n    '''doc'''\n    return a\n")
	fn := mod.Body()[0]
	require.Equal(t, tree.KindFunctionDef, fn.Kind)
	assert.Equal(t, "f", fn.Name)
	assert.Equal(t, "doc", fn.Doc)
	args := fn.Args()
	require.NotNil(t, args)
	assert.Equal(t, []string{"a", "b", "c"}, args.ArgNames())
	assert.Len(t, args.Seq(tree.FieldPosonlyArgs), 2)
	assert.Equal(t, "args", args.Child(tree.FieldVararg).Name)
	assert.Equal(t, "kw", args.Child(tree.FieldKwarg).Name)
	kwonly := args.Seq(tree.FieldKwonlyArgs)
	require.Len(t, kwonly, 2)
	kwDefaults := args.Seq(tree.FieldKwDefaults)
	require.Len(t, kwDefaults, 2)
	assert.Nil(t, kwDefaults[0])
	assert.Equal(t, int64(3), kwDefaults[1].Const.Int)
	assert.Nil(t, args.DefaultValue("a"))
	assert.Equal(t, int64(1), args.DefaultValue("b").Const.Int)
	assert.Equal(t, int64(2), args.DefaultValue("c").Const.Int)
	assert.Equal(t, "int", fn.Child(tree.FieldReturns).Name)
}

func TestParse_DecoratedClass(t *testing.T) {
	t.Parallel()
	src := `@dataclass
class A(Base, metaclass=Meta):
    @staticmethod
    def f():
        pass
`
	mod := parseModule(t, src)
	cls := mod.Body()[0]
	require.Equal(t, tree.KindClassDef, cls.Kind)
	assert.Equal(t, []string{"dataclass"}, cls.DecoratorNames())
	bases := cls.Seq(tree.FieldBases)
	require.Len(t, bases, 1)
	assert.Equal(t, "Base", bases[0].Name)
	kws := cls.Seq(tree.FieldKeywords)
	require.Len(t, kws, 1)
	assert.Equal(t, "metaclass", kws[0].Name)
	method := cls.Body()[0]
	assert.Equal(t, []string{"staticmethod"}, method.DecoratorNames())
	assert.Equal(t, "mod.A.f", method.QName())
}

func TestParse_Imports(t *testing.T) {
	t.Parallel()
	mod := parseModule(t, "import os.path, sys as system\nfrom ..pkg.sub import a, b as c\nfrom . import *\n")
	imp := mod.Body()[0]
	require.Equal(t, tree.KindImport, imp.Kind)
	assert.Equal(t, []tree.Alias{{Name: "os.path"}, {Name: "sys", AsName: "system"}}, imp.Aliases)

	from := mod.Body()[1]
	require.Equal(t, tree.KindImportFrom, from.Kind)
	assert.Equal(t, "pkg.sub", from.Module)
	assert.Equal(t, 2, from.Level)
	assert.Equal(t, []tree.Alias{{Name: "a"}, {Name: "b", AsName: "c"}}, from.Aliases)

	star := mod.Body()[2]
	assert.Equal(t, 1, star.Level)
	assert.Equal(t, "", star.Module)
	assert.Equal(t, []tree.Alias{{Name: "*"}}, star.Aliases)
}

func TestParse_GlobalNonlocal(t *testing.T) {
	t.Parallel()
	mod := parseModule(t, "def f():\n    global a, b\n    def g():\n        nonlocal c\n")
	fn := mod.Body()[0]
	g := fn.Body()[0]
	require.Equal(t, tree.KindGlobal, g.Kind)
	assert.Equal(t, []string{"a", "b"}, g.Names)
	nl := fn.Body()[1].Body()[0]
	require.Equal(t, tree.KindNonlocal, nl.Kind)
	assert.Equal(t, []string{"c"}, nl.Names)
}

// =============================================================================
// Expressions
// =============================================================================

func exprOf(t *testing.T, src string) *tree.Node {
	t.Helper()
	mod := parseModule(t, src+"\n")
	require.NotEmpty(t, mod.Body())
	st := mod.Body()[0]
	require.Equal(t, tree.KindExpr, st.Kind)
	return st.Child(tree.FieldValue)
}

func TestParse_WideIntegers(t *testing.T) {
	t.Parallel()
	e := exprOf(t, "340282366920938463463374607431768211456")
	require.Equal(t, tree.KindConst, e.Kind)
	assert.Equal(t, tree.ConstInt, e.Const.Kind)
	require.NotNil(t, e.Const.Big)
	assert.Equal(t, "340282366920938463463374607431768211456", e.Const.String())
	_, fits := e.Const.AsInt()
	assert.False(t, fits)

	e = exprOf(t, "0xFFFF_FFFF_FFFF_FFFF_FF")
	assert.Equal(t, "4722366482869645213695", e.Const.String())

	e = exprOf(t, "9223372036854775807")
	assert.Nil(t, e.Const.Big, "int64 values stay in Int")
	assert.Equal(t, int64(9223372036854775807), e.Const.Int)
}

func TestParse_Literals(t *testing.T) {
	t.Parallel()
	tests := []struct {
		src  string
		want tree.Constant
	}{
		{"42", tree.Int(42)},
		{"0x1F", tree.Int(31)},
		{"1_000", tree.Int(1000)},
		{"0o17", tree.Int(15)},
		{"1.5", tree.Float(1.5)},
		{"1e3", tree.Float(1000)},
		{"True", tree.Bool(true)},
		{"None", tree.None()},
		{"...", tree.Ellipsis()},
		{`"a\tb"`, tree.Str("a\tb")},
		{`r"a\tb"`, tree.Str(`a\tb`)},
		{`b"\x41"`, tree.Bytes("A")},
		{`'''tri'''`, tree.Str("tri")},
		{`"a" "b"`, tree.Str("ab")},
		{`"\u00e9"`, tree.Str("é")},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			t.Parallel()
			e := exprOf(t, tt.src)
			require.Equal(t, tree.KindConst, e.Kind)
			assert.Equal(t, tt.want, e.Const)
		})
	}
}

func TestParse_FString(t *testing.T) {
	t.Parallel()
	e := exprOf(t, `f"x={x!r} {{y}}"`)
	require.Equal(t, tree.KindJoinedStr, e.Kind)
	var names []string
	var lits []string
	for _, v := range e.Seq(tree.FieldValues) {
		switch v.Kind {
		case tree.KindConst:
			lits = append(lits, v.Const.Str)
		case tree.KindName:
			names = append(names, v.Name)
		}
	}
	assert.Equal(t, []string{"x"}, names)
	assert.Contains(t, lits, "x=")
}

func TestParse_Operators(t *testing.T) {
	t.Parallel()
	b := exprOf(t, "a and b and c")
	require.Equal(t, tree.KindBoolOp, b.Kind)
	assert.Equal(t, "and", b.Op)
	assert.Len(t, b.Seq(tree.FieldValues), 3)

	cmp := exprOf(t, "a < b is not c not in d")
	require.Equal(t, tree.KindCompare, cmp.Kind)
	assert.Equal(t, []string{"<", "is not", "not in"}, cmp.Ops)
	assert.Len(t, cmp.Seq(tree.FieldComparators), 3)

	u := exprOf(t, "not -x")
	require.Equal(t, tree.KindUnaryOp, u.Kind)
	assert.Equal(t, "not", u.Op)
	assert.Equal(t, "-", u.Child(tree.FieldOperand).Op)

	bin := exprOf(t, "a ** 2")
	require.Equal(t, tree.KindBinOp, bin.Kind)
	assert.Equal(t, "**", bin.Op)
}

func TestParse_CallArguments(t *testing.T) {
	t.Parallel()
	call := exprOf(t, "f(1, *rest, key=2, **extra)")
	require.Equal(t, tree.KindCall, call.Kind)
	args := call.Seq(tree.FieldArgs)
	require.Len(t, args, 2)
	assert.Equal(t, tree.KindStarred, args[1].Kind)
	kws := call.Seq(tree.FieldKeywords)
	require.Len(t, kws, 2)
	assert.Equal(t, "key", kws[0].Name)
	assert.Equal(t, "", kws[1].Name)
}

func TestParse_SubscriptAndSlice(t *testing.T) {
	t.Parallel()
	sub := exprOf(t, "a[1:2]")
	require.Equal(t, tree.KindSubscript, sub.Kind)
	sl := sub.Child(tree.FieldSlice)
	require.Equal(t, tree.KindSlice, sl.Kind)
	assert.Equal(t, int64(1), sl.Child(tree.FieldLower).Const.Int)
	assert.Equal(t, int64(2), sl.Child(tree.FieldUpper).Const.Int)
	assert.Nil(t, sl.Child(tree.FieldStep))

	upper := exprOf(t, "a[:3]").Child(tree.FieldSlice)
	assert.Nil(t, upper.Child(tree.FieldLower))
	assert.Equal(t, int64(3), upper.Child(tree.FieldUpper).Const.Int)

	multi := exprOf(t, "m[1, 2]").Child(tree.FieldSlice)
	assert.Equal(t, tree.KindTuple, multi.Kind)
}

func TestParse_Comprehensions(t *testing.T) {
	t.Parallel()
	lc := exprOf(t, "[x * 2 for x in xs if x for y in x]")
	require.Equal(t, tree.KindListComp, lc.Kind)
	gens := lc.Seq(tree.FieldGenerators)
	require.Len(t, gens, 2)
	assert.Equal(t, "x", gens[0].Child(tree.FieldTarget).Name)
	assert.Len(t, gens[0].Seq(tree.FieldIfs), 1)
	assert.Equal(t, tree.KindBinOp, lc.Child(tree.FieldElt).Kind)

	dc := exprOf(t, "{k: v for k, v in items}")
	require.Equal(t, tree.KindDictComp, dc.Kind)
	assert.Equal(t, "k", dc.Child(tree.FieldKey).Name)
	assert.Equal(t, tree.KindTuple, dc.Seq(tree.FieldGenerators)[0].Child(tree.FieldTarget).Kind)
}

func TestParse_LambdaWalrusDict(t *testing.T) {
	t.Parallel()
	lam := exprOf(t, "lambda a, b=2: a + b")
	require.Equal(t, tree.KindLambda, lam.Kind)
	assert.Equal(t, []string{"a", "b"}, lam.Args().ArgNames())
	assert.Equal(t, tree.KindBinOp, lam.Child(tree.FieldBody).Kind)

	ne := exprOf(t, "(n := 10)")
	require.Equal(t, tree.KindNamedExpr, ne.Kind)
	assert.Equal(t, "n", ne.Child(tree.FieldTarget).Name)

	d := exprOf(t, "{'a': 1, **rest}")
	require.Equal(t, tree.KindDict, d.Kind)
	items := d.PairSeq(tree.FieldItems)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Key.Const.Str)
	assert.Nil(t, items[1].Key)
}

func TestParse_LinePositions(t *testing.T) {
	t.Parallel()
	mod := parseModule(t, "\n\ndef f():\n    return 1\n")
	fn := mod.Body()[0]
	assert.Equal(t, 3, fn.Line)
	assert.Equal(t, 4, fn.EndLine)
	assert.Equal(t, 0, fn.Col)
	ret := fn.Body()[0]
	assert.Equal(t, 4, ret.Line)
	assert.Equal(t, 4, ret.Col)
}

// =============================================================================
// Errors
// =============================================================================

func TestParse_SyntaxError(t *testing.T) {
	t.Parallel()
	_, err := Parse(context.Background(), []byte("def f(:\n"), "bad", "bad.py")
	require.Error(t, err)
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "bad.py", perr.File)
	assert.Positive(t, perr.Line)
}

func TestParseFile_Missing(t *testing.T) {
	t.Parallel()
	_, err := ParseFile(context.Background(), filepath.Join(t.TempDir(), "nope.py"), "nope")
	var ferr *FileReadError
	require.True(t, errors.As(err, &ferr))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestParseFile_ReadsSource(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "m.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))
	tr, err := ParseFile(context.Background(), path, "m")
	require.NoError(t, err)
	assert.Equal(t, path, tr.File)
	assert.Equal(t, "m", tr.Root().Name)
}
