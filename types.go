package thicket

import (
	"strings"

	"github.com/jward/thicket/internal/infer"
	"github.com/jward/thicket/internal/tree"
)

// NodeInfo is a JSON-friendly description of a node.
type NodeInfo struct {
	Kind   string `json:"kind"`
	Name   string `json:"name,omitempty"`
	QName  string `json:"qname,omitempty"`
	Module string `json:"module,omitempty"`
	Line   int    `json:"line"`
	Col    int    `json:"col"`
}

// Value is a JSON-friendly description of one inferred value.
type Value struct {
	// Kind is the node kind for plain nodes, or the proxy type: Instance,
	// BoundMethod, UnboundMethod, Generator, Super, FrozenSet, Uninferable.
	Kind string `json:"kind"`
	// Repr is a short rendering: the literal for constants, the qualified
	// name for definitions and "Instance of C" and the like for proxies.
	Repr string `json:"repr"`
	// Type is the Python type name of constants and instances.
	Type string `json:"type,omitempty"`
	// Node is where the value is defined, when it is a node.
	Node *NodeInfo `json:"node,omitempty"`
}

// InferResult is the outcome of InferAt.
type InferResult struct {
	Expr   NodeInfo `json:"expr"`
	Values []Value  `json:"values"`
}

// LookupResult is the outcome of LookupAt. Scope is the scope that binds
// the name; a name bound nowhere has no statements.
type LookupResult struct {
	Name       string     `json:"name"`
	Scope      *NodeInfo  `json:"scope,omitempty"`
	Statements []NodeInfo `json:"statements"`
}

func nodeInfo(n *tree.Node) *NodeInfo {
	info := &NodeInfo{Kind: n.Kind.String(), Line: n.Line, Col: n.Col}
	if root := n.Root(); root != nil {
		info.Module = root.Name
	}
	switch n.Kind {
	case tree.KindModule, tree.KindClassDef, tree.KindFunctionDef:
		info.Name = n.Name
		info.QName = n.QName()
	case tree.KindName, tree.KindAssignName, tree.KindDelName,
		tree.KindAttribute, tree.KindAssignAttr, tree.KindDelAttr, tree.KindKeyword:
		info.Name = n.Name
	}
	return info
}

func describeNode(n *tree.Node) NodeInfo { return *nodeInfo(n) }

func describeValue(v infer.Value) Value {
	if infer.IsUninferable(v) {
		return Value{Kind: "Uninferable", Repr: "Uninferable"}
	}
	switch x := v.(type) {
	case *tree.Node:
		out := Value{Kind: x.Kind.String(), Repr: x.String(), Node: nodeInfo(x)}
		switch x.Kind {
		case tree.KindConst:
			out.Repr = x.Const.String()
			out.Type = x.Const.Kind.PyType()
		case tree.KindClassDef, tree.KindFunctionDef, tree.KindModule:
			out.Repr = x.QName()
		case tree.KindList, tree.KindTuple, tree.KindSet, tree.KindDict:
			out.Type = kindType[x.Kind]
			if lit, ok := literal(x); ok {
				out.Repr = lit
			}
		}
		return out
	case *infer.Instance:
		return Value{Kind: "Instance", Repr: x.String(), Type: x.Class.Name, Node: nodeInfo(x.Class)}
	case *infer.BoundMethod:
		return Value{Kind: "BoundMethod", Repr: x.String(), Node: nodeInfo(x.Func)}
	case *infer.UnboundMethod:
		return Value{Kind: "UnboundMethod", Repr: x.String(), Node: nodeInfo(x.Func)}
	case *infer.Generator:
		return Value{Kind: "Generator", Repr: x.String(), Node: nodeInfo(x.Func)}
	case *infer.Super:
		return Value{Kind: "Super", Repr: x.String()}
	case *infer.FrozenSet:
		return Value{Kind: "FrozenSet", Repr: x.String(), Type: "frozenset"}
	}
	return Value{Kind: "Unknown", Repr: v.String()}
}

// literal renders a list, tuple or set of constants as Python source.
func literal(n *tree.Node) (string, bool) {
	var open, close string
	switch n.Kind {
	case tree.KindList:
		open, close = "[", "]"
	case tree.KindTuple:
		open, close = "(", ")"
	case tree.KindSet:
		open, close = "{", "}"
	default:
		return "", false
	}
	elts := n.Seq(tree.FieldElts)
	parts := make([]string, len(elts))
	for i, e := range elts {
		if e == nil || e.Kind != tree.KindConst {
			return "", false
		}
		parts[i] = e.Const.String()
	}
	if n.Kind == tree.KindTuple && len(parts) == 1 {
		return "(" + parts[0] + ",)", true
	}
	return open + strings.Join(parts, ", ") + close, true
}

var kindType = map[tree.Kind]string{
	tree.KindList:  "list",
	tree.KindTuple: "tuple",
	tree.KindSet:   "set",
	tree.KindDict:  "dict",
}
