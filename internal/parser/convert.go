package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/thicket/internal/tree"
)

type converter struct {
	src []byte
	b   *tree.Builder
}

func (c *converter) text(n *sitter.Node) string { return n.Content(c.src) }

func (c *converter) newNode(kind tree.Kind, n *sitter.Node) *tree.Node {
	start, end := n.StartPoint(), n.EndPoint()
	out := c.b.New(kind, int(start.Row)+1, int(start.Column))
	out.EndLine = int(end.Row) + 1
	out.EndCol = int(end.Column)
	return out
}

func (c *converter) module(root *sitter.Node) *tree.Node {
	mod := c.newNode(tree.KindModule, root)
	mod.Line = 0
	body := c.block(root)
	for _, s := range body {
		c.b.Append(mod, tree.FieldBody, s)
	}
	mod.Doc = docstring(body)
	return mod
}

// block converts the statements under a module or block node.
func (c *converter) block(n *sitter.Node) []*tree.Node {
	var out []*tree.Node
	for _, child := range namedChildren(n) {
		if s := c.stmt(child); s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (c *converter) appendBlock(parent *tree.Node, f tree.Field, n *sitter.Node) []*tree.Node {
	body := c.block(n)
	for _, s := range body {
		c.b.Append(parent, f, s)
	}
	return body
}

func docstring(body []*tree.Node) string {
	if len(body) == 0 || body[0].Kind != tree.KindExpr {
		return ""
	}
	v := body[0].Child(tree.FieldValue)
	if v != nil && v.Kind == tree.KindConst && v.Const.Kind == tree.ConstStr {
		return v.Const.Str
	}
	return ""
}

func (c *converter) stmt(n *sitter.Node) *tree.Node {
	switch n.Type() {
	case "expression_statement":
		return c.expressionStatement(n)
	case "assignment":
		return c.assignment(n, n)
	case "augmented_assignment":
		return c.augAssignment(n)
	case "return_statement":
		ret := c.newNode(tree.KindReturn, n)
		if kids := namedChildren(n); len(kids) > 0 {
			c.b.Set(ret, tree.FieldValue, c.exprList(kids))
		}
		return ret
	case "pass_statement":
		return c.newNode(tree.KindPass, n)
	case "break_statement":
		return c.newNode(tree.KindBreak, n)
	case "continue_statement":
		return c.newNode(tree.KindContinue, n)
	case "raise_statement":
		return c.raise(n)
	case "assert_statement":
		as := c.newNode(tree.KindAssert, n)
		kids := namedChildren(n)
		if len(kids) > 0 {
			c.b.Set(as, tree.FieldTest, c.expr(kids[0]))
		}
		if len(kids) > 1 {
			c.b.Set(as, tree.FieldMsg, c.expr(kids[1]))
		}
		return as
	case "delete_statement":
		del := c.newNode(tree.KindDelete, n)
		for _, k := range namedChildren(n) {
			if k.Type() == "expression_list" {
				for _, e := range namedChildren(k) {
					c.b.Append(del, tree.FieldTargets, c.delTarget(e))
				}
				continue
			}
			c.b.Append(del, tree.FieldTargets, c.delTarget(k))
		}
		return del
	case "global_statement", "nonlocal_statement":
		kind := tree.KindGlobal
		if n.Type() == "nonlocal_statement" {
			kind = tree.KindNonlocal
		}
		g := c.newNode(kind, n)
		for _, k := range namedChildren(n) {
			g.Names = append(g.Names, c.text(k))
		}
		return g
	case "import_statement":
		return c.importStmt(n)
	case "import_from_statement", "future_import_statement":
		return c.importFrom(n)
	case "if_statement":
		return c.ifStmt(n)
	case "for_statement":
		return c.forStmt(n)
	case "while_statement":
		return c.whileStmt(n)
	case "try_statement":
		return c.tryStmt(n)
	case "with_statement":
		return c.withStmt(n)
	case "function_definition":
		return c.funcDef(n, nil)
	case "class_definition":
		return c.classDef(n, nil)
	case "decorated_definition":
		return c.decorated(n)
	}
	// print/exec statements, match statements and type aliases carry no
	// bindings the engine models.
	return nil
}

func (c *converter) expressionStatement(n *sitter.Node) *tree.Node {
	kids := namedChildren(n)
	if len(kids) == 1 {
		switch kids[0].Type() {
		case "assignment":
			return c.assignment(kids[0], n)
		case "augmented_assignment":
			return c.augAssignment(kids[0])
		}
	}
	e := c.newNode(tree.KindExpr, n)
	c.b.Set(e, tree.FieldValue, c.exprList(kids))
	return e
}

// assignment converts "a = b = value" and annotated assignments. stmt is
// the node whose span the statement takes.
func (c *converter) assignment(n, stmt *sitter.Node) *tree.Node {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	typ := n.ChildByFieldName("type")
	if typ != nil {
		ann := c.newNode(tree.KindAnnAssign, stmt)
		c.b.Set(ann, tree.FieldTarget, c.target(left))
		c.b.Set(ann, tree.FieldAnnotation, c.expr(typ))
		if right != nil {
			c.b.Set(ann, tree.FieldValue, c.rhs(right))
		}
		return ann
	}
	as := c.newNode(tree.KindAssign, stmt)
	c.b.Append(as, tree.FieldTargets, c.target(left))
	for right != nil && right.Type() == "assignment" {
		c.b.Append(as, tree.FieldTargets, c.target(right.ChildByFieldName("left")))
		right = right.ChildByFieldName("right")
	}
	if right != nil {
		c.b.Set(as, tree.FieldValue, c.rhs(right))
	}
	return as
}

func (c *converter) rhs(n *sitter.Node) *tree.Node {
	switch n.Type() {
	case "expression_list", "pattern_list":
		return c.exprList(namedChildren(n))
	}
	return c.expr(n)
}

func (c *converter) augAssignment(n *sitter.Node) *tree.Node {
	aug := c.newNode(tree.KindAugAssign, n)
	if op := n.ChildByFieldName("operator"); op != nil {
		aug.Op = strings.TrimSuffix(c.text(op), "=")
	}
	c.b.Set(aug, tree.FieldTarget, c.target(n.ChildByFieldName("left")))
	c.b.Set(aug, tree.FieldValue, c.rhs(n.ChildByFieldName("right")))
	return aug
}

func (c *converter) raise(n *sitter.Node) *tree.Node {
	r := c.newNode(tree.KindRaise, n)
	cause := n.ChildByFieldName("cause")
	for _, k := range namedChildren(n) {
		if cause != nil && k.StartByte() == cause.StartByte() {
			continue
		}
		if r.Child(tree.FieldExc) == nil {
			c.b.Set(r, tree.FieldExc, c.rhs(k))
		}
	}
	if cause != nil {
		c.b.Set(r, tree.FieldCause, c.expr(cause))
	}
	return r
}

func (c *converter) importStmt(n *sitter.Node) *tree.Node {
	imp := c.newNode(tree.KindImport, n)
	for _, k := range namedChildren(n) {
		if a, ok := c.alias(k); ok {
			imp.Aliases = append(imp.Aliases, a)
		}
	}
	return imp
}

func (c *converter) alias(n *sitter.Node) (tree.Alias, bool) {
	switch n.Type() {
	case "dotted_name", "identifier":
		return tree.Alias{Name: c.text(n)}, true
	case "aliased_import":
		a := tree.Alias{}
		if name := n.ChildByFieldName("name"); name != nil {
			a.Name = c.text(name)
		}
		if as := n.ChildByFieldName("alias"); as != nil {
			a.AsName = c.text(as)
		}
		return a, a.Name != ""
	case "wildcard_import":
		return tree.Alias{Name: "*"}, true
	}
	return tree.Alias{}, false
}

func (c *converter) importFrom(n *sitter.Node) *tree.Node {
	imp := c.newNode(tree.KindImportFrom, n)
	mod := n.ChildByFieldName("module_name")
	switch {
	case n.Type() == "future_import_statement":
		imp.Module = "__future__"
	case mod != nil && mod.Type() == "relative_import":
		for _, k := range namedChildren(mod) {
			switch k.Type() {
			case "import_prefix":
				imp.Level = strings.Count(c.text(k), ".")
			case "dotted_name":
				imp.Module = c.text(k)
			}
		}
	case mod != nil:
		imp.Module = c.text(mod)
	}
	var collect func(*sitter.Node)
	collect = func(p *sitter.Node) {
		for _, k := range namedChildren(p) {
			if mod != nil && k.StartByte() == mod.StartByte() && k.Type() == mod.Type() {
				continue
			}
			if k.Type() == "import_list" {
				collect(k)
				continue
			}
			if a, ok := c.alias(k); ok {
				imp.Aliases = append(imp.Aliases, a)
			}
		}
	}
	collect(n)
	return imp
}

func (c *converter) ifStmt(n *sitter.Node) *tree.Node {
	root := c.newNode(tree.KindIf, n)
	c.b.Set(root, tree.FieldTest, c.expr(n.ChildByFieldName("condition")))
	c.appendBlock(root, tree.FieldBody, n.ChildByFieldName("consequence"))
	cur := root
	for _, alt := range namedChildren(n) {
		switch alt.Type() {
		case "elif_clause":
			elif := c.newNode(tree.KindIf, alt)
			c.b.Set(elif, tree.FieldTest, c.expr(alt.ChildByFieldName("condition")))
			c.appendBlock(elif, tree.FieldBody, alt.ChildByFieldName("consequence"))
			c.b.Append(cur, tree.FieldOrelse, elif)
			cur = elif
		case "else_clause":
			c.appendBlock(cur, tree.FieldOrelse, alt.ChildByFieldName("body"))
		}
	}
	return root
}

func (c *converter) elseBlock(parent *tree.Node, n *sitter.Node) {
	if alt := n.ChildByFieldName("alternative"); alt != nil {
		c.appendBlock(parent, tree.FieldOrelse, alt.ChildByFieldName("body"))
	}
}

func (c *converter) forStmt(n *sitter.Node) *tree.Node {
	f := c.newNode(tree.KindFor, n)
	f.Async = hasToken(n, "async")
	c.b.Set(f, tree.FieldTarget, c.target(n.ChildByFieldName("left")))
	c.b.Set(f, tree.FieldIter, c.rhs(n.ChildByFieldName("right")))
	c.appendBlock(f, tree.FieldBody, n.ChildByFieldName("body"))
	c.elseBlock(f, n)
	return f
}

func (c *converter) whileStmt(n *sitter.Node) *tree.Node {
	w := c.newNode(tree.KindWhile, n)
	c.b.Set(w, tree.FieldTest, c.expr(n.ChildByFieldName("condition")))
	c.appendBlock(w, tree.FieldBody, n.ChildByFieldName("body"))
	c.elseBlock(w, n)
	return w
}

func (c *converter) tryStmt(n *sitter.Node) *tree.Node {
	t := c.newNode(tree.KindTry, n)
	c.appendBlock(t, tree.FieldBody, n.ChildByFieldName("body"))
	for _, k := range namedChildren(n) {
		switch k.Type() {
		case "except_clause", "except_group_clause":
			c.b.Append(t, tree.FieldHandlers, c.handler(k))
		case "else_clause":
			c.appendBlock(t, tree.FieldOrelse, k.ChildByFieldName("body"))
		case "finally_clause":
			for _, b := range namedChildren(k) {
				if b.Type() == "block" {
					c.appendBlock(t, tree.FieldFinalbody, b)
				}
			}
		}
	}
	return t
}

func (c *converter) handler(n *sitter.Node) *tree.Node {
	h := c.newNode(tree.KindExceptHandler, n)
	var exprs []*sitter.Node
	for _, k := range namedChildren(n) {
		if k.Type() == "block" {
			c.appendBlock(h, tree.FieldBody, k)
			continue
		}
		exprs = append(exprs, k)
	}
	if len(exprs) == 0 {
		return h
	}
	first := exprs[0]
	if first.Type() == "as_pattern" {
		kids := namedChildren(first)
		if len(kids) > 0 {
			c.b.Set(h, tree.FieldType, c.expr(kids[0]))
		}
		if alias := asTarget(first); alias != nil {
			c.b.Set(h, tree.FieldName, c.target(alias))
		}
		return h
	}
	c.b.Set(h, tree.FieldType, c.expr(first))
	if len(exprs) > 1 {
		c.b.Set(h, tree.FieldName, c.target(exprs[1]))
	}
	return h
}

// asTarget returns the bound expression of an as_pattern.
func asTarget(n *sitter.Node) *sitter.Node {
	alias := n.ChildByFieldName("alias")
	if alias == nil {
		kids := namedChildren(n)
		if len(kids) < 2 {
			return nil
		}
		alias = kids[len(kids)-1]
	}
	if alias.Type() == "as_pattern_target" {
		if kids := namedChildren(alias); len(kids) > 0 {
			return kids[0]
		}
	}
	return alias
}

func (c *converter) withStmt(n *sitter.Node) *tree.Node {
	w := c.newNode(tree.KindWith, n)
	w.Async = hasToken(n, "async")
	var items []*sitter.Node
	for _, k := range namedChildren(n) {
		if k.Type() == "with_clause" {
			for _, it := range namedChildren(k) {
				if it.Type() == "with_item" {
					items = append(items, it)
				}
			}
		}
	}
	for _, it := range items {
		value := it.ChildByFieldName("value")
		if value == nil {
			kids := namedChildren(it)
			if len(kids) == 0 {
				continue
			}
			value = kids[0]
		}
		var ctxExpr, vars *tree.Node
		if value.Type() == "as_pattern" {
			kids := namedChildren(value)
			if len(kids) > 0 {
				ctxExpr = c.expr(kids[0])
			}
			if t := asTarget(value); t != nil {
				vars = c.target(t)
			}
		} else {
			ctxExpr = c.expr(value)
			if alias := it.ChildByFieldName("alias"); alias != nil {
				vars = c.target(alias)
			}
		}
		c.b.AppendPair(w, tree.FieldItems, ctxExpr, vars)
	}
	c.appendBlock(w, tree.FieldBody, n.ChildByFieldName("body"))
	return w
}

func (c *converter) decorated(n *sitter.Node) *tree.Node {
	var decs []*sitter.Node
	for _, k := range namedChildren(n) {
		if k.Type() == "decorator" {
			decs = append(decs, k)
		}
	}
	def := n.ChildByFieldName("definition")
	if def == nil {
		return nil
	}
	switch def.Type() {
	case "function_definition":
		return c.funcDef(def, decs)
	case "class_definition":
		return c.classDef(def, decs)
	}
	return nil
}

func (c *converter) decorators(decs []*sitter.Node) *tree.Node {
	if len(decs) == 0 {
		return nil
	}
	d := c.newNode(tree.KindDecorators, decs[0])
	for _, dec := range decs {
		if kids := namedChildren(dec); len(kids) > 0 {
			c.b.Append(d, tree.FieldNodes, c.expr(kids[0]))
		}
	}
	return d
}

func (c *converter) funcDef(n *sitter.Node, decs []*sitter.Node) *tree.Node {
	fn := c.newNode(tree.KindFunctionDef, n)
	fn.Async = hasToken(n, "async")
	if name := n.ChildByFieldName("name"); name != nil {
		fn.Name = c.text(name)
	}
	c.b.Set(fn, tree.FieldDecorators, c.decorators(decs))
	c.b.Set(fn, tree.FieldArgs, c.arguments(n.ChildByFieldName("parameters"), n))
	if ret := n.ChildByFieldName("return_type"); ret != nil {
		c.b.Set(fn, tree.FieldReturns, c.expr(ret))
	}
	body := c.appendBlock(fn, tree.FieldBody, n.ChildByFieldName("body"))
	fn.Doc = docstring(body)
	return fn
}

func (c *converter) classDef(n *sitter.Node, decs []*sitter.Node) *tree.Node {
	cls := c.newNode(tree.KindClassDef, n)
	if name := n.ChildByFieldName("name"); name != nil {
		cls.Name = c.text(name)
	}
	c.b.Set(cls, tree.FieldDecorators, c.decorators(decs))
	if sup := n.ChildByFieldName("superclasses"); sup != nil {
		for _, k := range namedChildren(sup) {
			switch k.Type() {
			case "keyword_argument":
				c.b.Append(cls, tree.FieldKeywords, c.keyword(k))
			case "dictionary_splat":
				kw := c.newNode(tree.KindKeyword, k)
				c.b.Set(kw, tree.FieldValue, c.expr(firstNamed(k)))
				c.b.Append(cls, tree.FieldKeywords, kw)
			default:
				c.b.Append(cls, tree.FieldBases, c.expr(k))
			}
		}
	}
	body := c.appendBlock(cls, tree.FieldBody, n.ChildByFieldName("body"))
	cls.Doc = docstring(body)
	return cls
}

// arguments converts a parameters or lambda_parameters node. owner gives
// the position when the parameter list is absent.
func (c *converter) arguments(n, owner *sitter.Node) *tree.Node {
	src := n
	if src == nil {
		src = owner
	}
	args := c.newNode(tree.KindArguments, src)
	if n == nil {
		return args
	}
	kwonly := false
	var positional []*tree.Node
	var defaults []*tree.Node
	addPositional := func(name *tree.Node, def *tree.Node) {
		if kwonly {
			c.b.Append(args, tree.FieldKwonlyArgs, name)
			c.b.Append(args, tree.FieldKwDefaults, def)
			return
		}
		positional = append(positional, name)
		if def != nil {
			defaults = append(defaults, def)
		}
	}
	var posonlyCount int
	for _, p := range namedChildren(n) {
		switch p.Type() {
		case "identifier":
			addPositional(c.assignName(p), nil)
		case "default_parameter", "typed_default_parameter":
			name := p.ChildByFieldName("name")
			if name == nil || name.Type() != "identifier" {
				continue
			}
			addPositional(c.assignName(name), c.expr(p.ChildByFieldName("value")))
		case "typed_parameter":
			inner := firstNamed(p)
			if inner == nil {
				continue
			}
			switch inner.Type() {
			case "identifier":
				addPositional(c.assignName(inner), nil)
			case "list_splat_pattern":
				if id := firstNamed(inner); id != nil {
					c.b.Set(args, tree.FieldVararg, c.assignName(id))
				}
				kwonly = true
			case "dictionary_splat_pattern":
				if id := firstNamed(inner); id != nil {
					c.b.Set(args, tree.FieldKwarg, c.assignName(id))
				}
			}
		case "list_splat_pattern":
			if id := firstNamed(p); id != nil {
				c.b.Set(args, tree.FieldVararg, c.assignName(id))
			}
			kwonly = true
		case "keyword_separator":
			kwonly = true
		case "positional_separator":
			posonlyCount = len(positional)
		case "dictionary_splat_pattern":
			if id := firstNamed(p); id != nil {
				c.b.Set(args, tree.FieldKwarg, c.assignName(id))
			}
		}
	}
	for i, p := range positional {
		if i < posonlyCount {
			c.b.Append(args, tree.FieldPosonlyArgs, p)
		} else {
			c.b.Append(args, tree.FieldArgs, p)
		}
	}
	for _, d := range defaults {
		c.b.Append(args, tree.FieldDefaults, d)
	}
	return args
}

func (c *converter) assignName(n *sitter.Node) *tree.Node {
	an := c.newNode(tree.KindAssignName, n)
	an.Name = c.text(n)
	return an
}

func firstNamed(n *sitter.Node) *sitter.Node {
	if kids := namedChildren(n); len(kids) > 0 {
		return kids[0]
	}
	return nil
}

// target converts an assignment target.
func (c *converter) target(n *sitter.Node) *tree.Node {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "identifier", "keyword_identifier":
		return c.assignName(n)
	case "attribute":
		at := c.newNode(tree.KindAssignAttr, n)
		if attr := n.ChildByFieldName("attribute"); attr != nil {
			at.Name = c.text(attr)
		}
		c.b.Set(at, tree.FieldExpr, c.expr(n.ChildByFieldName("object")))
		return at
	case "pattern_list", "tuple_pattern", "tuple", "expression_list":
		return c.targetSeq(tree.KindTuple, n)
	case "list_pattern", "list":
		return c.targetSeq(tree.KindList, n)
	case "list_splat_pattern", "list_splat":
		st := c.newNode(tree.KindStarred, n)
		c.b.Set(st, tree.FieldValue, c.target(firstNamed(n)))
		return st
	case "parenthesized_expression":
		return c.target(firstNamed(n))
	}
	return c.expr(n)
}

func (c *converter) targetSeq(kind tree.Kind, n *sitter.Node) *tree.Node {
	seq := c.newNode(kind, n)
	for _, k := range namedChildren(n) {
		c.b.Append(seq, tree.FieldElts, c.target(k))
	}
	return seq
}

func (c *converter) delTarget(n *sitter.Node) *tree.Node {
	switch n.Type() {
	case "identifier", "keyword_identifier":
		d := c.newNode(tree.KindDelName, n)
		d.Name = c.text(n)
		return d
	case "attribute":
		d := c.newNode(tree.KindDelAttr, n)
		if attr := n.ChildByFieldName("attribute"); attr != nil {
			d.Name = c.text(attr)
		}
		c.b.Set(d, tree.FieldExpr, c.expr(n.ChildByFieldName("object")))
		return d
	case "tuple", "list", "pattern_list", "tuple_pattern", "list_pattern":
		kind := tree.KindTuple
		if n.Type() == "list" || n.Type() == "list_pattern" {
			kind = tree.KindList
		}
		seq := c.newNode(kind, n)
		for _, k := range namedChildren(n) {
			c.b.Append(seq, tree.FieldElts, c.delTarget(k))
		}
		return seq
	case "parenthesized_expression":
		return c.delTarget(firstNamed(n))
	}
	return c.expr(n)
}
