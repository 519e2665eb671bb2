package infer

import (
	"fmt"

	"github.com/jward/thicket/internal/tree"
)

// Value is an inferred value. Literals and definitions (Const, List, Tuple,
// Set, Dict, Slice, Module, ClassDef, FunctionDef, Lambda and the
// comprehension scopes) are their own *tree.Node. Everything else is one of
// the proxy types in this file, or Uninferable.
type Value interface {
	String() string
}

type uninferable struct{}

func (uninferable) String() string { return "Uninferable" }

// Uninferable stands for a value that could not be determined.
var Uninferable Value = uninferable{}

// IsUninferable reports whether v is the Uninferable value.
func IsUninferable(v Value) bool {
	_, ok := v.(uninferable)
	return ok
}

// Instance is an object of a class.
type Instance struct {
	Class *tree.Node
	// Origin is the call that created the instance, when known.
	Origin *tree.Node
}

func (i *Instance) String() string { return fmt.Sprintf("Instance of %s", i.Class.QName()) }

// BoundMethod is a function bound to an instance or class.
type BoundMethod struct {
	Func  *tree.Node
	Bound Value
}

func (m *BoundMethod) String() string {
	return fmt.Sprintf("BoundMethod %s of %s", m.Func.QName(), m.Bound)
}

// UnboundMethod is a function accessed through its class.
type UnboundMethod struct {
	Func *tree.Node
}

func (m *UnboundMethod) String() string { return fmt.Sprintf("UnboundMethod %s", m.Func.QName()) }

// Generator is the result of calling a generator function.
type Generator struct {
	Func *tree.Node
}

func (g *Generator) String() string { return fmt.Sprintf("Generator %s", g.Func.QName()) }

// Super is the object returned by super().
type Super struct {
	// MroPointer is the class after which attribute lookup starts.
	MroPointer Value
	// MroType is the instance or class whose MRO is walked.
	MroType Value
	// SelfClass is the class the super() call appears in.
	SelfClass *tree.Node
	// Scope is the function the super() call appears in.
	Scope *tree.Node
	// Call is the super() call node.
	Call *tree.Node
}

func (s *Super) String() string {
	return fmt.Sprintf("Super of %s", s.MroPointer)
}

// FrozenSet is built by frozenset(...) from a literal iterable.
type FrozenSet struct {
	Elts []*tree.Node
	// Origin is the frozenset(...) call.
	Origin *tree.Node
}

func (f *FrozenSet) String() string { return fmt.Sprintf("FrozenSet(%d)", len(f.Elts)) }

func asNode(v Value) (*tree.Node, bool) {
	n, ok := v.(*tree.Node)
	return n, ok
}

func isKind(v Value, kinds ...tree.Kind) bool {
	n, ok := asNode(v)
	if !ok {
		return false
	}
	for _, k := range kinds {
		if n.Kind == k {
			return true
		}
	}
	return false
}

func asClass(v Value) *tree.Node {
	if n, ok := asNode(v); ok && n.Kind == tree.KindClassDef {
		return n
	}
	return nil
}

func asConst(v Value) (tree.Constant, bool) {
	if n, ok := asNode(v); ok && n.Kind == tree.KindConst {
		return n.Const, true
	}
	return tree.Constant{}, false
}

type instanceKey struct{ class *tree.Node }

// valueKey identifies values that deduplicate within one inference result.
func valueKey(v Value) (any, bool) {
	switch x := v.(type) {
	case *tree.Node:
		return x, true
	case *Instance:
		return instanceKey{x.Class}, true
	case uninferable:
		return x, true
	}
	return nil, false
}

// BoolValue returns the truth value of v. known is false when it cannot be
// determined statically.
func BoolValue(v Value) (truth, known bool) {
	switch x := v.(type) {
	case *tree.Node:
		switch x.Kind {
		case tree.KindConst:
			return x.Const.Truth(), true
		case tree.KindList, tree.KindTuple, tree.KindSet:
			return len(x.Seq(tree.FieldElts)) > 0, true
		case tree.KindDict:
			return len(x.PairSeq(tree.FieldItems)) > 0, true
		case tree.KindModule, tree.KindClassDef, tree.KindFunctionDef, tree.KindLambda:
			return true, true
		}
	case *BoundMethod, *UnboundMethod, *Generator:
		return true, true
	case *FrozenSet:
		return len(x.Elts) > 0, true
	}
	return false, false
}
