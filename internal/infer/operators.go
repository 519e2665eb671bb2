package infer

import (
	"math"
	"math/big"
	"strings"

	"github.com/jward/thicket/internal/tree"
)

// maxFoldedLen bounds strings and sequences built by folding * and +.
const maxFoldedLen = 1 << 16

// maxFoldedBits bounds the size of folded integers.
const maxFoldedBits = 1 << 14

var binaryDunders = map[string]string{
	"+": "add", "-": "sub", "*": "mul", "@": "matmul", "/": "truediv",
	"//": "floordiv", "%": "mod", "**": "pow", "<<": "lshift", ">>": "rshift",
	"&": "and", "|": "or", "^": "xor",
}

var unaryDunders = map[string]string{"-": "__neg__", "+": "__pos__", "~": "__invert__"}

// =============================================================================
// Binary operations
// =============================================================================

func (in *Interpreter) inferBinOp(n *tree.Node, ctx *Context) Seq {
	left, right := n.Child(tree.FieldLeft), n.Child(tree.FieldRight)
	return in.binaryOp(n, n.Op, safe(in.Infer(left, ctx)), right, false, ctx)
}

func (in *Interpreter) inferAugAssign(n *tree.Node, ctx *Context) Seq {
	return in.binaryOp(n, n.Op, safe(in.inferLHS(n.Child(tree.FieldTarget), ctx)), n.Child(tree.FieldValue), true, ctx)
}

// inferLHS infers the value an augmented assignment target held before
// the statement.
func (in *Interpreter) inferLHS(target *tree.Node, ctx *Context) Seq {
	switch target.Kind {
	case tree.KindAssignName:
		_, stmts, err := in.Lookup(target, target.Name)
		if err != nil {
			return failure(err)
		}
		return in.inferStmts(target, nodeValues(stmts), ctx.WithLookup(target.Name))
	case tree.KindAssignAttr:
		return in.inferAttribute(target, ctx)
	case tree.KindSubscript:
		return in.inferSubscript(target, ctx)
	}
	return single(Uninferable)
}

func (in *Interpreter) binaryOp(n *tree.Node, op string, lhs Seq, right *tree.Node, aug bool, ctx *Context) Seq {
	return func(yield func(Value, error) bool) {
		rhsVals, err := Collect(safe(in.Infer(right, ctx)))
		if err != nil || len(rhsVals) == 0 {
			yield(Uninferable, nil)
			return
		}
		count := 0
		for l := range valuesOnly(lhs) {
			for _, r := range rhsVals {
				if count++; count > 256 {
					return
				}
				for _, v := range in.binop(n, op, l, r, aug, ctx) {
					if !yield(v, nil) {
						return
					}
				}
			}
		}
	}
}

func valuesOnly(s Seq) func(func(Value) bool) {
	return func(yield func(Value) bool) {
		for v, err := range s {
			if err != nil || !yield(v) {
				return
			}
		}
	}
}

// binop evaluates one pair of operands.
func (in *Interpreter) binop(n *tree.Node, op string, l, r Value, aug bool, ctx *Context) []Value {
	if IsUninferable(l) || IsUninferable(r) {
		return []Value{Uninferable}
	}
	lc, lok := asConst(l)
	rc, rok := asConst(r)
	if lok && rok {
		if c, ok := foldConst(op, lc, rc); ok {
			return []Value{constNode(n, c)}
		}
		if op == "%" && lc.Kind == tree.ConstStr {
			return collectOrUninferable(in.builtinInstance("str", n))
		}
		return []Value{Uninferable}
	}
	if v, ok := in.foldSequence(n, op, l, r); ok {
		return []Value{v}
	}
	name, ok := binaryDunders[op]
	if !ok {
		return []Value{Uninferable}
	}
	if aug {
		if vals, ok := in.callDunder(l, "__i"+name+"__", []Value{r}, n, ctx); ok {
			return vals
		}
	}
	forward := func() ([]Value, bool) { return in.callDunder(l, "__"+name+"__", []Value{r}, n, ctx) }
	reflected := func() ([]Value, bool) { return in.callDunder(r, "__r"+name+"__", []Value{l}, n, ctx) }
	order := []func() ([]Value, bool){forward, reflected}
	if !in.isUserValue(l) && in.isUserValue(r) {
		order = []func() ([]Value, bool){reflected, forward}
	}
	for _, try := range order {
		if vals, ok := try(); ok {
			return vals
		}
	}
	return []Value{Uninferable}
}

func collectOrUninferable(s Seq) []Value {
	vals, err := Collect(s)
	if err != nil || len(vals) == 0 {
		return []Value{Uninferable}
	}
	return vals
}

// isUserValue reports whether v is an instance of a class defined outside
// builtins.
func (in *Interpreter) isUserValue(v Value) bool {
	inst, ok := v.(*Instance)
	return ok && !isBuiltinsNode(inst.Class)
}

// callDunder calls method name on recv with already inferred args. ok is
// false when recv has no such method or the call produced nothing.
func (in *Interpreter) callDunder(recv Value, name string, args []Value, site *tree.Node, ctx *Context) ([]Value, bool) {
	if _, ok := recv.(*Instance); !ok {
		if n, isNode := asNode(recv); !isNode || in.classOf(n) == nil {
			return nil, false
		}
	}
	var out []Value
	for m, err := range in.igetattr(recv, name, ctx.WithBound(recv)) {
		if err != nil {
			break
		}
		if IsUninferable(m) {
			continue
		}
		cc := &CallContext{Values: args, Site: site, Caller: ctx}
		for v, err := range in.callResult(m, ctx.WithCall(cc)) {
			if err != nil {
				break
			}
			out = append(out, v)
		}
	}
	return out, len(out) > 0
}

// foldSequence concatenates and repeats literal lists and tuples.
func (in *Interpreter) foldSequence(n *tree.Node, op string, l, r Value) (Value, bool) {
	ln, lok := asNode(l)
	rn, rok := asNode(r)
	if !lok || !rok {
		return nil, false
	}
	isSeq := func(x *tree.Node) bool { return x.Kind == tree.KindList || x.Kind == tree.KindTuple }
	switch {
	case op == "+" && isSeq(ln) && ln.Kind == rn.Kind:
		elts := append(ln.Seq(tree.FieldElts), rn.Seq(tree.FieldElts)...)
		if len(elts) > maxFoldedLen {
			return Uninferable, true
		}
		return seqNode(n, ln.Kind, elts), true
	case op == "*" && (isSeq(ln) && rn.Kind == tree.KindConst || isSeq(rn) && ln.Kind == tree.KindConst):
		seq, count := ln, rn
		if isSeq(rn) {
			seq, count = rn, ln
		}
		times, ok := count.Const.AsInt()
		if !ok {
			return Uninferable, true
		}
		elts := seq.Seq(tree.FieldElts)
		if times < 0 {
			times = 0
		}
		if int64(len(elts))*times > maxFoldedLen {
			return Uninferable, true
		}
		var out []*tree.Node
		for range times {
			out = append(out, elts...)
		}
		return seqNode(n, seq.Kind, out), true
	}
	return nil, false
}

// foldConst applies a binary operator to two constants with Python
// semantics. ok is false when Python would raise or the result cannot be
// represented.
func foldConst(op string, l, r tree.Constant) (tree.Constant, bool) {
	switch {
	case l.Kind == tree.ConstStr && r.Kind == tree.ConstStr, l.Kind == tree.ConstBytes && r.Kind == tree.ConstBytes:
		if op != "+" || len(l.Str)+len(r.Str) > maxFoldedLen {
			return tree.Constant{}, false
		}
		return tree.Constant{Kind: l.Kind, Str: l.Str + r.Str}, true
	case op == "*" && (l.Kind == tree.ConstStr || l.Kind == tree.ConstBytes) && isIntLike(r):
		return repeatString(l, r)
	case op == "*" && (r.Kind == tree.ConstStr || r.Kind == tree.ConstBytes) && isIntLike(l):
		return repeatString(r, l)
	case !l.Numeric() || !r.Numeric():
		return tree.Constant{}, false
	case l.Kind == tree.ConstFloat || r.Kind == tree.ConstFloat:
		return foldFloat(op, l.AsFloat(), r.AsFloat())
	}
	if l.Kind == tree.ConstBool && r.Kind == tree.ConstBool {
		switch op {
		case "&":
			return tree.Bool(l.Bool && r.Bool), true
		case "|":
			return tree.Bool(l.Bool || r.Bool), true
		case "^":
			return tree.Bool(l.Bool != r.Bool), true
		}
	}
	a, _ := l.AsBig()
	b, _ := r.AsBig()
	return foldInt(op, a, b)
}

func isIntLike(c tree.Constant) bool {
	return c.Kind == tree.ConstInt || c.Kind == tree.ConstBool
}

func repeatString(s, count tree.Constant) (tree.Constant, bool) {
	n, ok := count.AsInt()
	if !ok {
		return tree.Constant{}, false
	}
	if n < 0 {
		n = 0
	}
	if int64(len(s.Str))*n > maxFoldedLen {
		return tree.Constant{}, false
	}
	return tree.Constant{Kind: s.Kind, Str: strings.Repeat(s.Str, int(n))}, true
}

func foldInt(op string, x, y *big.Int) (tree.Constant, bool) {
	z := new(big.Int)
	switch op {
	case "+":
		z.Add(x, y)
	case "-":
		z.Sub(x, y)
	case "*":
		z.Mul(x, y)
	case "/":
		if y.Sign() == 0 {
			return tree.Constant{}, false
		}
		q, _ := new(big.Rat).SetFrac(x, y).Float64()
		if math.IsInf(q, 0) {
			return tree.Constant{}, false
		}
		return tree.Float(q), true
	case "//", "%":
		if y.Sign() == 0 {
			return tree.Constant{}, false
		}
		q, m := new(big.Int).QuoRem(x, y, new(big.Int))
		if m.Sign() != 0 && (m.Sign() < 0) != (y.Sign() < 0) {
			q.Sub(q, big.NewInt(1))
			m.Add(m, y)
		}
		z = q
		if op == "%" {
			z = m
		}
	case "**":
		if y.Sign() < 0 {
			if x.Sign() == 0 || !x.IsInt64() || !y.IsInt64() {
				return tree.Constant{}, false
			}
			return foldFloat(op, float64(x.Int64()), float64(y.Int64()))
		}
		if x.CmpAbs(big.NewInt(1)) > 0 && (!y.IsInt64() || int64(x.BitLen()-1)*y.Int64() > maxFoldedBits) {
			return tree.Constant{}, false
		}
		z.Exp(x, y, nil)
	case "<<":
		if y.Sign() < 0 || !y.IsInt64() || int64(x.BitLen())+y.Int64() > maxFoldedBits {
			return tree.Constant{}, false
		}
		z.Lsh(x, uint(y.Int64()))
	case ">>":
		if y.Sign() < 0 {
			return tree.Constant{}, false
		}
		shift := uint(x.BitLen() + 1)
		if y.IsInt64() && y.Int64() < int64(shift) {
			shift = uint(y.Int64())
		}
		z.Rsh(x, shift)
	case "&":
		z.And(x, y)
	case "|":
		z.Or(x, y)
	case "^":
		z.Xor(x, y)
	default:
		return tree.Constant{}, false
	}
	if z.BitLen() > maxFoldedBits {
		return tree.Constant{}, false
	}
	return tree.BigInt(z), true
}

func foldFloat(op string, a, b float64) (tree.Constant, bool) {
	var z float64
	switch op {
	case "+":
		z = a + b
	case "-":
		z = a - b
	case "*":
		z = a * b
	case "/":
		if b == 0 {
			return tree.Constant{}, false
		}
		z = a / b
	case "//":
		if b == 0 {
			return tree.Constant{}, false
		}
		z = math.Floor(a / b)
	case "%":
		if b == 0 {
			return tree.Constant{}, false
		}
		z = math.Mod(a, b)
		if z != 0 && (z < 0) != (b < 0) {
			z += b
		}
	case "**":
		if a == 0 && b < 0 {
			return tree.Constant{}, false
		}
		z = math.Pow(a, b)
	default:
		return tree.Constant{}, false
	}
	if math.IsInf(z, 0) || math.IsNaN(z) {
		return tree.Constant{}, false
	}
	return tree.Float(z), true
}

// =============================================================================
// Unary operations
// =============================================================================

func (in *Interpreter) inferUnaryOp(n *tree.Node, ctx *Context) Seq {
	return func(yield func(Value, error) bool) {
		for v := range valuesOnly(safe(in.Infer(n.Child(tree.FieldOperand), ctx))) {
			for _, r := range in.unaryop(n, v, ctx) {
				if !yield(r, nil) {
					return
				}
			}
		}
	}
}

func (in *Interpreter) unaryop(n *tree.Node, v Value, ctx *Context) []Value {
	if IsUninferable(v) {
		return []Value{Uninferable}
	}
	if n.Op == "not" {
		if truth, known := BoolValue(v); known {
			return []Value{constNode(n, tree.Bool(!truth))}
		}
		return []Value{Uninferable}
	}
	if c, ok := asConst(v); ok {
		if folded, ok := foldUnary(n.Op, c); ok {
			return []Value{constNode(n, folded)}
		}
		return []Value{Uninferable}
	}
	if dunder, ok := unaryDunders[n.Op]; ok {
		if _, isInst := v.(*Instance); isInst {
			if vals, ok := in.callDunder(v, dunder, nil, n, ctx); ok {
				return vals
			}
		}
	}
	return []Value{Uninferable}
}

func foldUnary(op string, c tree.Constant) (tree.Constant, bool) {
	if c.Kind == tree.ConstFloat {
		switch op {
		case "-":
			return tree.Float(-c.Float), true
		case "+":
			return c, true
		}
		return tree.Constant{}, false
	}
	i, ok := c.AsBig()
	if !ok {
		return tree.Constant{}, false
	}
	switch op {
	case "-":
		return tree.BigInt(i.Neg(i)), true
	case "+":
		return tree.BigInt(i), true
	case "~":
		return tree.BigInt(i.Not(i)), true
	}
	return tree.Constant{}, false
}

// =============================================================================
// Comparisons
// =============================================================================

func (in *Interpreter) inferCompare(n *tree.Node, ctx *Context) Seq {
	return func(yield func(Value, error) bool) {
		lhs, _ := Collect(safe(in.Infer(n.Child(tree.FieldLeft), ctx)))
		result, known := true, true
		for i, right := range n.Seq(tree.FieldComparators) {
			if i >= len(n.Ops) {
				known = false
				break
			}
			rhs, _ := Collect(safe(in.Infer(right, ctx)))
			result, known = compareAll(n.Ops[i], lhs, rhs)
			if !known || !result {
				break
			}
			lhs = rhs
		}
		if !known {
			yield(Uninferable, nil)
			return
		}
		yield(constNode(n, tree.Bool(result)), nil)
	}
}

// compareAll applies op to every pair of candidates. The result is known
// only when all pairs agree.
func compareAll(op string, lhs, rhs []Value) (result, known bool) {
	if len(lhs) == 0 || len(rhs) == 0 {
		return false, false
	}
	first := true
	for _, l := range lhs {
		for _, r := range rhs {
			v, ok := compareValues(op, l, r)
			if !ok {
				return false, false
			}
			if first {
				result, first = v, false
			} else if v != result {
				return false, false
			}
		}
	}
	return result, true
}

func compareValues(op string, l, r Value) (bool, bool) {
	if IsUninferable(l) || IsUninferable(r) {
		return false, false
	}
	switch op {
	case "is", "is not":
		same, ok := identical(l, r)
		if !ok {
			return false, false
		}
		return same == (op == "is"), true
	}
	a, ok := toLiteral(l)
	if !ok {
		return false, false
	}
	b, ok := toLiteral(r)
	if !ok {
		return false, false
	}
	switch op {
	case "==":
		return a.equal(b), true
	case "!=":
		return !a.equal(b), true
	case "in", "not in":
		found, ok := b.contains(a)
		if !ok {
			return false, false
		}
		return found == (op == "in"), true
	}
	cmp, ok := a.order(b)
	if !ok {
		return false, false
	}
	switch op {
	case "<":
		return cmp < 0, true
	case "<=":
		return cmp <= 0, true
	case ">":
		return cmp > 0, true
	case ">=":
		return cmp >= 0, true
	}
	return false, false
}

// identical decides "is" for values whose identity is known statically.
func identical(l, r Value) (same, ok bool) {
	ln, lok := asNode(l)
	rn, rok := asNode(r)
	if lok && rok && ln == rn {
		return true, true
	}
	lc, lconst := asConst(l)
	rc, rconst := asConst(r)
	singleton := func(c tree.Constant) bool { return c.Kind == tree.ConstNone || c.Kind == tree.ConstBool }
	if lconst && rconst && singleton(lc) && singleton(rc) {
		return lc.Kind == rc.Kind && lc.Bool == rc.Bool, true
	}
	if (lconst && lc.Kind == tree.ConstNone) || (rconst && rc.Kind == tree.ConstNone) {
		if _, inst := l.(*Instance); inst {
			return false, true
		}
		if _, inst := r.(*Instance); inst {
			return false, true
		}
	}
	return false, false
}

// literal is a statically known Python value used for comparisons.
type literal struct {
	kind tree.Kind
	c    tree.Constant
	elts []literal
	vals []literal
}

func toLiteral(v Value) (literal, bool) {
	n, ok := asNode(v)
	if !ok {
		return literal{}, false
	}
	return nodeLiteral(n, 0)
}

func nodeLiteral(n *tree.Node, depth int) (literal, bool) {
	if n == nil || depth > 16 {
		return literal{}, false
	}
	switch n.Kind {
	case tree.KindConst:
		return literal{kind: tree.KindConst, c: n.Const}, true
	case tree.KindUnaryOp:
		if operand := n.Child(tree.FieldOperand); operand != nil && operand.Kind == tree.KindConst && (n.Op == "-" || n.Op == "+") {
			c, ok := foldUnary(n.Op, operand.Const)
			return literal{kind: tree.KindConst, c: c}, ok
		}
	case tree.KindList, tree.KindTuple, tree.KindSet:
		lit := literal{kind: n.Kind}
		for _, e := range n.Seq(tree.FieldElts) {
			el, ok := nodeLiteral(e, depth+1)
			if !ok {
				return literal{}, false
			}
			lit.elts = append(lit.elts, el)
		}
		return lit, true
	case tree.KindDict:
		lit := literal{kind: n.Kind}
		for _, p := range n.PairSeq(tree.FieldItems) {
			k, ok := nodeLiteral(p.Key, depth+1)
			if !ok {
				return literal{}, false
			}
			v, ok := nodeLiteral(p.Value, depth+1)
			if !ok {
				return literal{}, false
			}
			lit.elts = append(lit.elts, k)
			lit.vals = append(lit.vals, v)
		}
		return lit, true
	}
	return literal{}, false
}

func (a literal) equal(b literal) bool {
	if a.kind == tree.KindConst || b.kind == tree.KindConst {
		return a.kind == b.kind && a.c.Equal(b.c)
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case tree.KindSet:
		return a.subset(b) && b.subset(a)
	case tree.KindDict:
		if len(a.elts) != len(b.elts) {
			return false
		}
		for i, k := range a.elts {
			j := b.index(k)
			if j < 0 || !a.vals[i].equal(b.vals[j]) {
				return false
			}
		}
		return true
	}
	if len(a.elts) != len(b.elts) {
		return false
	}
	for i := range a.elts {
		if !a.elts[i].equal(b.elts[i]) {
			return false
		}
	}
	return true
}

func (a literal) index(x literal) int {
	for i, e := range a.elts {
		if e.equal(x) {
			return i
		}
	}
	return -1
}

func (a literal) subset(b literal) bool {
	for _, e := range a.elts {
		if b.index(e) < 0 {
			return false
		}
	}
	return true
}

// contains implements "x in a".
func (a literal) contains(x literal) (bool, bool) {
	if a.kind == tree.KindConst {
		if (a.c.Kind == tree.ConstStr || a.c.Kind == tree.ConstBytes) && x.kind == tree.KindConst && x.c.Kind == a.c.Kind {
			return strings.Contains(a.c.Str, x.c.Str), true
		}
		return false, false
	}
	return a.index(x) >= 0, true
}

// order compares a and b. ok is false when Python would raise TypeError.
func (a literal) order(b literal) (int, bool) {
	if a.kind == tree.KindConst && b.kind == tree.KindConst {
		switch {
		case a.c.Numeric() && b.c.Numeric():
			return a.c.Compare(b.c)
		case a.c.Kind == b.c.Kind && (a.c.Kind == tree.ConstStr || a.c.Kind == tree.ConstBytes):
			return strings.Compare(a.c.Str, b.c.Str), true
		}
		return 0, false
	}
	if a.kind != b.kind {
		return 0, false
	}
	switch a.kind {
	case tree.KindList, tree.KindTuple:
		for i := 0; i < len(a.elts) && i < len(b.elts); i++ {
			if a.elts[i].equal(b.elts[i]) {
				continue
			}
			return a.elts[i].order(b.elts[i])
		}
		return len(a.elts) - len(b.elts), true
	case tree.KindSet:
		switch {
		case a.equal(b):
			return 0, true
		case a.subset(b):
			return -1, true
		case b.subset(a):
			return 1, true
		}
	}
	return 0, false
}
