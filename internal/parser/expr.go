package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/thicket/internal/tree"
)

// exprList converts a run of expressions; more than one becomes a Tuple.
func (c *converter) exprList(kids []*sitter.Node) *tree.Node {
	switch len(kids) {
	case 0:
		return nil
	case 1:
		return c.expr(kids[0])
	}
	tup := c.newNode(tree.KindTuple, kids[0])
	last := kids[len(kids)-1].EndPoint()
	tup.EndLine, tup.EndCol = int(last.Row)+1, int(last.Column)
	for _, k := range kids {
		c.b.Append(tup, tree.FieldElts, c.expr(k))
	}
	return tup
}

func (c *converter) expr(n *sitter.Node) *tree.Node {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier", "keyword_identifier":
		name := c.newNode(tree.KindName, n)
		name.Name = c.text(n)
		return name
	case "attribute":
		at := c.newNode(tree.KindAttribute, n)
		if attr := n.ChildByFieldName("attribute"); attr != nil {
			at.Name = c.text(attr)
		}
		c.b.Set(at, tree.FieldExpr, c.expr(n.ChildByFieldName("object")))
		return at
	case "call":
		return c.call(n)
	case "binary_operator":
		op := c.newNode(tree.KindBinOp, n)
		if o := n.ChildByFieldName("operator"); o != nil {
			op.Op = c.text(o)
		}
		c.b.Set(op, tree.FieldLeft, c.expr(n.ChildByFieldName("left")))
		c.b.Set(op, tree.FieldRight, c.expr(n.ChildByFieldName("right")))
		return op
	case "unary_operator":
		op := c.newNode(tree.KindUnaryOp, n)
		if o := n.ChildByFieldName("operator"); o != nil {
			op.Op = c.text(o)
		}
		c.b.Set(op, tree.FieldOperand, c.expr(n.ChildByFieldName("argument")))
		return op
	case "not_operator":
		op := c.newNode(tree.KindUnaryOp, n)
		op.Op = "not"
		c.b.Set(op, tree.FieldOperand, c.expr(n.ChildByFieldName("argument")))
		return op
	case "boolean_operator":
		return c.boolOp(n)
	case "comparison_operator":
		return c.compare(n)
	case "conditional_expression":
		ifexp := c.newNode(tree.KindIfExp, n)
		kids := namedChildren(n)
		if len(kids) == 3 {
			c.b.Set(ifexp, tree.FieldBody, c.expr(kids[0]))
			c.b.Set(ifexp, tree.FieldTest, c.expr(kids[1]))
			c.b.Set(ifexp, tree.FieldOrelse, c.expr(kids[2]))
		}
		return ifexp
	case "subscript":
		return c.subscript(n)
	case "slice":
		return c.slice(n)
	case "list":
		return c.seq(tree.KindList, n)
	case "tuple", "expression_list":
		return c.seq(tree.KindTuple, n)
	case "set":
		return c.seq(tree.KindSet, n)
	case "dictionary":
		return c.dict(n)
	case "list_comprehension":
		return c.comprehension(tree.KindListComp, n)
	case "set_comprehension":
		return c.comprehension(tree.KindSetComp, n)
	case "generator_expression":
		return c.comprehension(tree.KindGeneratorExp, n)
	case "dictionary_comprehension":
		return c.comprehension(tree.KindDictComp, n)
	case "parenthesized_expression", "type":
		if inner := firstNamed(n); inner != nil {
			return c.expr(inner)
		}
		return c.seq(tree.KindTuple, n)
	case "lambda":
		return c.lambda(n)
	case "named_expression":
		ne := c.newNode(tree.KindNamedExpr, n)
		if name := n.ChildByFieldName("name"); name != nil {
			c.b.Set(ne, tree.FieldTarget, c.assignName(name))
		}
		c.b.Set(ne, tree.FieldValue, c.expr(n.ChildByFieldName("value")))
		return ne
	case "await":
		aw := c.newNode(tree.KindAwait, n)
		c.b.Set(aw, tree.FieldValue, c.expr(firstNamed(n)))
		return aw
	case "yield":
		kind := tree.KindYield
		if hasToken(n, "from") {
			kind = tree.KindYieldFrom
		}
		y := c.newNode(kind, n)
		c.b.Set(y, tree.FieldValue, c.yieldValue(namedChildren(n)))
		return y
	case "list_splat", "parenthesized_list_splat":
		st := c.newNode(tree.KindStarred, n)
		c.b.Set(st, tree.FieldValue, c.expr(firstNamed(n)))
		return st
	case "string":
		return c.str(n)
	case "concatenated_string":
		return c.concatenated(n)
	case "integer", "float":
		return c.number(n)
	case "true", "false":
		k := c.newNode(tree.KindConst, n)
		k.Const = tree.Bool(n.Type() == "true")
		return k
	case "none":
		k := c.newNode(tree.KindConst, n)
		k.Const = tree.None()
		return k
	case "ellipsis":
		k := c.newNode(tree.KindConst, n)
		k.Const = tree.Ellipsis()
		return k
	}
	return c.newNode(tree.KindInvalid, n)
}

func (c *converter) yieldValue(kids []*sitter.Node) *tree.Node {
	if len(kids) == 1 && kids[0].Type() == "expression_list" {
		return c.exprList(namedChildren(kids[0]))
	}
	return c.exprList(kids)
}

func (c *converter) seq(kind tree.Kind, n *sitter.Node) *tree.Node {
	s := c.newNode(kind, n)
	for _, k := range namedChildren(n) {
		c.b.Append(s, tree.FieldElts, c.expr(k))
	}
	return s
}

func (c *converter) dict(n *sitter.Node) *tree.Node {
	d := c.newNode(tree.KindDict, n)
	for _, k := range namedChildren(n) {
		switch k.Type() {
		case "pair":
			c.b.AppendPair(d, tree.FieldItems, c.expr(k.ChildByFieldName("key")), c.expr(k.ChildByFieldName("value")))
		case "dictionary_splat":
			c.b.AppendPair(d, tree.FieldItems, nil, c.expr(firstNamed(k)))
		}
	}
	return d
}

func (c *converter) call(n *sitter.Node) *tree.Node {
	call := c.newNode(tree.KindCall, n)
	c.b.Set(call, tree.FieldFunc, c.expr(n.ChildByFieldName("function")))
	args := n.ChildByFieldName("arguments")
	if args == nil {
		return call
	}
	if args.Type() == "generator_expression" {
		c.b.Append(call, tree.FieldArgs, c.expr(args))
		return call
	}
	for _, a := range namedChildren(args) {
		switch a.Type() {
		case "keyword_argument":
			c.b.Append(call, tree.FieldKeywords, c.keyword(a))
		case "dictionary_splat":
			kw := c.newNode(tree.KindKeyword, a)
			c.b.Set(kw, tree.FieldValue, c.expr(firstNamed(a)))
			c.b.Append(call, tree.FieldKeywords, kw)
		default:
			c.b.Append(call, tree.FieldArgs, c.expr(a))
		}
	}
	return call
}

func (c *converter) keyword(n *sitter.Node) *tree.Node {
	kw := c.newNode(tree.KindKeyword, n)
	if name := n.ChildByFieldName("name"); name != nil {
		kw.Name = c.text(name)
	}
	c.b.Set(kw, tree.FieldValue, c.expr(n.ChildByFieldName("value")))
	return kw
}

// boolOp flattens "a and b and c" into one BoolOp.
func (c *converter) boolOp(n *sitter.Node) *tree.Node {
	op := c.newNode(tree.KindBoolOp, n)
	if o := n.ChildByFieldName("operator"); o != nil {
		op.Op = c.text(o)
	}
	var flatten func(*sitter.Node)
	flatten = func(e *sitter.Node) {
		if e.Type() == "boolean_operator" {
			if o := e.ChildByFieldName("operator"); o != nil && c.text(o) == op.Op {
				flatten(e.ChildByFieldName("left"))
				flatten(e.ChildByFieldName("right"))
				return
			}
		}
		c.b.Append(op, tree.FieldValues, c.expr(e))
	}
	flatten(n.ChildByFieldName("left"))
	flatten(n.ChildByFieldName("right"))
	return op
}

func (c *converter) compare(n *sitter.Node) *tree.Node {
	cmp := c.newNode(tree.KindCompare, n)
	first := true
	pending := ""
	for _, k := range allChildren(n) {
		if k.IsNamed() {
			if k.Type() == "comment" {
				continue
			}
			if first {
				c.b.Set(cmp, tree.FieldLeft, c.expr(k))
				first = false
				continue
			}
			cmp.Ops = append(cmp.Ops, pending)
			pending = ""
			c.b.Append(cmp, tree.FieldComparators, c.expr(k))
			continue
		}
		// "not in" and "is not" arrive as two tokens.
		if pending != "" {
			pending += " " + k.Type()
		} else {
			pending = k.Type()
		}
	}
	return cmp
}

func (c *converter) subscript(n *sitter.Node) *tree.Node {
	sub := c.newNode(tree.KindSubscript, n)
	value := n.ChildByFieldName("value")
	if value == nil {
		return sub
	}
	c.b.Set(sub, tree.FieldValue, c.expr(value))
	var index []*sitter.Node
	for _, k := range namedChildren(n) {
		if k.StartByte() == value.StartByte() {
			continue
		}
		index = append(index, k)
	}
	c.b.Set(sub, tree.FieldSlice, c.exprList(index))
	return sub
}

// slice converts "lower:upper:step"; colons decide which part an
// expression fills.
func (c *converter) slice(n *sitter.Node) *tree.Node {
	sl := c.newNode(tree.KindSlice, n)
	fields := []tree.Field{tree.FieldLower, tree.FieldUpper, tree.FieldStep}
	part := 0
	for _, k := range allChildren(n) {
		if !k.IsNamed() {
			if k.Type() == ":" {
				part++
			}
			continue
		}
		if k.Type() == "comment" || part >= len(fields) {
			continue
		}
		c.b.Set(sl, fields[part], c.expr(k))
	}
	return sl
}

func (c *converter) comprehension(kind tree.Kind, n *sitter.Node) *tree.Node {
	comp := c.newNode(kind, n)
	body := n.ChildByFieldName("body")
	if kind == tree.KindDictComp {
		if body != nil && body.Type() == "pair" {
			c.b.Set(comp, tree.FieldKey, c.expr(body.ChildByFieldName("key")))
			c.b.Set(comp, tree.FieldValue, c.expr(body.ChildByFieldName("value")))
		}
	} else {
		c.b.Set(comp, tree.FieldElt, c.expr(body))
	}
	var last *tree.Node
	for _, k := range namedChildren(n) {
		switch k.Type() {
		case "for_in_clause":
			gen := c.newNode(tree.KindComprehension, k)
			gen.Async = hasToken(k, "async")
			c.b.Set(gen, tree.FieldTarget, c.target(k.ChildByFieldName("left")))
			c.b.Set(gen, tree.FieldIter, c.rhs(k.ChildByFieldName("right")))
			c.b.Append(comp, tree.FieldGenerators, gen)
			last = gen
		case "if_clause":
			if last != nil {
				c.b.Append(last, tree.FieldIfs, c.expr(firstNamed(k)))
			}
		}
	}
	return comp
}

func (c *converter) lambda(n *sitter.Node) *tree.Node {
	lam := c.newNode(tree.KindLambda, n)
	lam.Name = "<lambda>"
	c.b.Set(lam, tree.FieldArgs, c.arguments(n.ChildByFieldName("parameters"), n))
	c.b.Set(lam, tree.FieldBody, c.expr(n.ChildByFieldName("body")))
	return lam
}

func (c *converter) number(n *sitter.Node) *tree.Node {
	k := c.newNode(tree.KindConst, n)
	v, ok := parseNumber(c.text(n))
	if !ok {
		k.Kind = tree.KindInvalid
		return k
	}
	k.Const = v
	return k
}

func (c *converter) str(n *sitter.Node) *tree.Node {
	raw := c.text(n)
	prefix, body := splitString(raw)
	lower := strings.ToLower(prefix)
	if strings.Contains(lower, "f") {
		return c.fstring(n, lower)
	}
	k := c.newNode(tree.KindConst, n)
	if !strings.Contains(lower, "r") {
		body = unescape(body, strings.Contains(lower, "b"))
	}
	if strings.Contains(lower, "b") {
		k.Const = tree.Bytes(body)
	} else {
		k.Const = tree.Str(body)
	}
	return k
}

// fstring converts an f-string into a JoinedStr of literal Const parts and
// interpolated expressions.
func (c *converter) fstring(n *sitter.Node, prefix string) *tree.Node {
	js := c.newNode(tree.KindJoinedStr, n)
	raw := strings.Contains(prefix, "r")
	start, end := n.StartByte(), n.EndByte()
	for _, k := range allChildren(n) {
		switch k.Type() {
		case "string_start":
			start = k.EndByte()
		case "string_end":
			end = k.StartByte()
		}
	}
	pos := start
	flush := func(upto uint32) {
		if upto <= pos {
			return
		}
		lit := string(c.src[pos:upto])
		if !raw {
			lit = unescape(lit, false)
		}
		lit = strings.NewReplacer("{{", "{", "}}", "}").Replace(lit)
		if lit != "" {
			part := c.newNode(tree.KindConst, n)
			part.Const = tree.Str(lit)
			c.b.Append(js, tree.FieldValues, part)
		}
	}
	var visit func(*sitter.Node)
	visit = func(p *sitter.Node) {
		for _, k := range namedChildren(p) {
			if k.Type() != "interpolation" {
				if k.NamedChildCount() > 0 {
					visit(k)
				}
				continue
			}
			flush(k.StartByte())
			expr := k.ChildByFieldName("expression")
			if expr == nil {
				expr = firstNamed(k)
			}
			if expr != nil {
				c.b.Append(js, tree.FieldValues, c.rhs(expr))
			}
			pos = k.EndByte()
		}
	}
	visit(n)
	flush(end)
	return js
}

// concatenated joins adjacent literals. Any f-string part makes the whole
// a JoinedStr.
func (c *converter) concatenated(n *sitter.Node) *tree.Node {
	parts := make([]*tree.Node, 0, n.NamedChildCount())
	joined := false
	for _, k := range namedChildren(n) {
		p := c.expr(k)
		if p.Kind == tree.KindJoinedStr {
			joined = true
		}
		parts = append(parts, p)
	}
	if !joined {
		out := c.newNode(tree.KindConst, n)
		var sb strings.Builder
		kind := tree.ConstStr
		for _, p := range parts {
			sb.WriteString(p.Const.Str)
			if p.Const.Kind == tree.ConstBytes {
				kind = tree.ConstBytes
			}
		}
		if kind == tree.ConstBytes {
			out.Const = tree.Bytes(sb.String())
		} else {
			out.Const = tree.Str(sb.String())
		}
		return out
	}
	js := c.newNode(tree.KindJoinedStr, n)
	for _, p := range parts {
		if p.Kind == tree.KindJoinedStr {
			for _, v := range p.Seq(tree.FieldValues) {
				c.b.Append(js, tree.FieldValues, c.b.Copy(v))
			}
			continue
		}
		c.b.Append(js, tree.FieldValues, p)
	}
	return js
}
