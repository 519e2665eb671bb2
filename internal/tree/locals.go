package tree

import "strings"

// Locals is an ordered name → defining-nodes map.
type Locals struct {
	names  []string
	byName map[string][]*Node
}

func newLocals() *Locals {
	return &Locals{byName: make(map[string][]*Node)}
}

func (l *Locals) add(name string, n *Node) {
	if _, ok := l.byName[name]; !ok {
		l.names = append(l.names, name)
	}
	l.byName[name] = append(l.byName[name], n)
}

// Names returns the bound names in first-binding order.
func (l *Locals) Names() []string {
	if l == nil {
		return nil
	}
	return append([]string(nil), l.names...)
}

// Get returns the defining nodes of name in source order.
func (l *Locals) Get(name string) []*Node {
	if l == nil {
		return nil
	}
	return l.byName[name]
}

// Has reports whether name is bound.
func (l *Locals) Has(name string) bool {
	if l == nil {
		return false
	}
	_, ok := l.byName[name]
	return ok
}

// Locals returns the locals map of a scope node; nil for non-scopes.
func (n *Node) Locals() *Locals {
	n.tree.buildLocals()
	return n.tree.locals[n.id]
}

// Local returns the defining nodes of name in scope n.
func (n *Node) Local(name string) []*Node {
	return n.Locals().Get(name)
}

// InstanceAttrs returns the attributes a class's methods assign on their
// first parameter ("self.x = ...").
func (n *Node) InstanceAttrs() *Locals {
	n.tree.buildLocals()
	return n.tree.instAttrs[n.id]
}

// WildcardImports returns the "from m import *" statements of a scope in
// source order.
func (n *Node) WildcardImports() []*Node {
	n.tree.buildLocals()
	return n.tree.wildcards[n.id]
}

// Frozen reports whether the tree's locals were built; frozen trees accept
// no more grafts.
func (t *Tree) Frozen() bool { return t.frozen }

func (t *Tree) buildLocals() {
	t.localsOnce.Do(func() {
		t.frozen = true
		t.locals = make(map[NodeID]*Locals)
		t.instAttrs = make(map[NodeID]*Locals)
		t.wildcards = make(map[NodeID][]*Node)
		root := t.Root()
		if root == nil {
			return
		}
		decls := collectDeclarations(root)
		root.Walk(func(n *Node) bool {
			if n.Kind.IsScope() {
				t.locals[n.id] = newLocals()
			}
			t.bind(n, decls)
			return true
		})
	})
}

// declarations records global and nonlocal names per function scope.
type declarations struct {
	global   map[*Node]map[string]bool
	nonlocal map[*Node]map[string]bool
}

func collectDeclarations(root *Node) declarations {
	d := declarations{
		global:   make(map[*Node]map[string]bool),
		nonlocal: make(map[*Node]map[string]bool),
	}
	root.Walk(func(n *Node) bool {
		if n.Kind != KindGlobal && n.Kind != KindNonlocal {
			return true
		}
		scope := n.Scope()
		m := d.global
		if n.Kind == KindNonlocal {
			m = d.nonlocal
		}
		if m[scope] == nil {
			m[scope] = make(map[string]bool)
		}
		for _, name := range n.Names {
			m[scope][name] = true
		}
		return false
	})
	return d
}

// bindingScope resolves where a binding of name made in scope lands.
func (t *Tree) bindingScope(scope *Node, name string, d declarations) *Node {
	if d.global[scope][name] {
		return scope.Root()
	}
	if d.nonlocal[scope][name] {
		for p := scope.Parent(); p != nil; p = p.Parent() {
			if p.Kind.IsFunction() {
				return p
			}
		}
	}
	return scope
}

func (t *Tree) addLocal(scope *Node, name string, n *Node) {
	if scope == nil || scope.tree != t {
		return
	}
	l := t.locals[scope.id]
	if l == nil {
		l = newLocals()
		t.locals[scope.id] = l
	}
	l.add(name, n)
}

func (t *Tree) bind(n *Node, d declarations) {
	switch n.Kind {
	case KindAssignName, KindDelName:
		scope := n.Scope()
		if isWalrusTarget(n) {
			for scope.Kind.IsComprehension() && scope.Parent() != nil {
				scope = scope.Parent().Scope()
			}
		}
		t.addLocal(t.bindingScope(scope, n.Name, d), n.Name, n)
	case KindFunctionDef, KindClassDef:
		if p := n.Parent(); p != nil {
			scope := p.Scope()
			t.addLocal(t.bindingScope(scope, n.Name, d), n.Name, n)
		}
	case KindImport:
		scope := n.Scope()
		for _, a := range n.Aliases {
			name := a.AsName
			if name == "" {
				name, _, _ = strings.Cut(a.Name, ".")
			}
			t.addLocal(t.bindingScope(scope, name, d), name, n)
		}
	case KindImportFrom:
		scope := n.Scope()
		for _, a := range n.Aliases {
			if a.Name == "*" {
				if scope.tree == t {
					t.wildcards[scope.id] = append(t.wildcards[scope.id], n)
				}
				continue
			}
			name := a.Bound()
			t.addLocal(t.bindingScope(scope, name, d), name, n)
		}
	case KindAssignAttr, KindDelAttr:
		if cls := selfAttrClass(n); cls != nil && cls.tree == t {
			l := t.instAttrs[cls.id]
			if l == nil {
				l = newLocals()
				t.instAttrs[cls.id] = l
			}
			l.add(n.Name, n)
		}
	}
}

func isWalrusTarget(n *Node) bool {
	p := n.Parent()
	return p != nil && p.Kind == KindNamedExpr && p.Child(FieldTarget) == n
}

// selfAttrClass returns the class whose instance n assigns to, when n is
// "<first param>.attr" inside a method.
func selfAttrClass(n *Node) *Node {
	expr := n.Child(FieldExpr)
	if expr == nil || expr.Kind != KindName {
		return nil
	}
	fn := n.Frame()
	if fn.Kind != KindFunctionDef || fn.Parent() == nil {
		return nil
	}
	cls := fn.Parent().Frame()
	if cls.Kind != KindClassDef {
		return nil
	}
	for _, dec := range fn.DecoratorNames() {
		if dec == "staticmethod" || dec == "classmethod" {
			return nil
		}
	}
	args := fn.Args()
	if args == nil {
		return nil
	}
	names := args.ArgNames()
	if len(names) == 0 || names[0] != expr.Name {
		return nil
	}
	return cls
}
