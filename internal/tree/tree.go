package tree

import (
	"errors"
	"fmt"
	"sync"
)

// ErrFrozen is returned when a tree is modified after its locals were built.
var ErrFrozen = errors.New("tree: tree is frozen")

// Tree is an arena of nodes for one module or synthetic fragment. NodeIDs
// index the arena; node handles stay valid for the life of the tree.
type Tree struct {
	// Name is the dotted module name.
	Name string
	// File is the source path, or "" for in-memory sources.
	File string
	// Package is true for a package's __init__ module.
	Package bool
	// Outer is the node that stands in as the parent of a fragment's root.
	// It is nil for module trees.
	Outer *Node

	nodes []*Node
	root  NodeID

	localsOnce sync.Once
	frozen     bool
	locals     map[NodeID]*Locals
	instAttrs  map[NodeID]*Locals
	wildcards  map[NodeID][]*Node
}

// Root returns the tree's root node.
func (t *Tree) Root() *Node {
	if t.root == NoNode || int(t.root) >= len(t.nodes) {
		return nil
	}
	return t.nodes[t.root]
}

// Node returns the node with the given id, or nil.
func (t *Tree) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Len returns the number of nodes in the arena.
func (t *Tree) Len() int { return len(t.nodes) }

func (t *Tree) alloc(kind Kind) *Node {
	n := &Node{
		Kind:   kind,
		tree:   t,
		id:     NodeID(len(t.nodes)),
		parent: NoNode,
	}
	sch := Schema(kind)
	n.slots = make([][]NodeID, len(sch))
	for i, s := range sch {
		if s.Shape == Single {
			n.slots[i] = []NodeID{NoNode}
		}
	}
	t.nodes = append(t.nodes, n)
	return n
}

// Builder assembles a Tree. Node handles returned by the builder are final;
// scalar fields may be set on them directly.
type Builder struct {
	t *Tree
}

// NewBuilder starts a module tree.
func NewBuilder(name, file string) *Builder {
	return &Builder{t: &Tree{Name: name, File: file, root: NoNode}}
}

// NewFragment starts a synthetic tree whose root hangs off outer.
func NewFragment(outer *Node) *Builder {
	b := &Builder{t: &Tree{root: NoNode, Outer: outer}}
	if outer != nil && outer.Root() != nil {
		b.t.Name = outer.Root().Name
		b.t.File = outer.Root().tree.File
	}
	return b
}

// Tree returns the tree under construction.
func (b *Builder) Tree() *Tree { return b.t }

// New allocates a node of the given kind.
func (b *Builder) New(kind Kind, line, col int) *Node {
	n := b.t.alloc(kind)
	n.Line, n.EndLine, n.Col, n.EndCol = line, line, col, col
	return n
}

func (b *Builder) index(parent *Node, f Field) int {
	if parent.tree != b.t {
		panic(fmt.Sprintf("tree: node %s belongs to another tree", parent))
	}
	i := slotIndex(parent.Kind, f)
	if i < 0 {
		panic(fmt.Sprintf("tree: %s has no field %s", parent.Kind, f))
	}
	return i
}

func (b *Builder) adopt(parent, child *Node) NodeID {
	if child == nil {
		return NoNode
	}
	if child.tree != b.t {
		panic(fmt.Sprintf("tree: child %s belongs to another tree", child))
	}
	child.parent = parent.id
	return child.id
}

// Set stores child in a Single field of parent.
func (b *Builder) Set(parent *Node, f Field, child *Node) {
	i := b.index(parent, f)
	parent.slots[i] = []NodeID{b.adopt(parent, child)}
}

// Append adds child to a Seq field of parent. A nil child keeps alignment.
func (b *Builder) Append(parent *Node, f Field, child *Node) {
	i := b.index(parent, f)
	parent.slots[i] = append(parent.slots[i], b.adopt(parent, child))
}

// AppendPair adds a (key, value) entry to a Pairs field of parent.
func (b *Builder) AppendPair(parent *Node, f Field, key, value *Node) {
	i := b.index(parent, f)
	parent.slots[i] = append(parent.slots[i], b.adopt(parent, key), b.adopt(parent, value))
}

// Finish sets the root and returns the tree. The builder must not be used
// afterwards.
func (b *Builder) Finish(root *Node) *Tree {
	b.t.root = root.id
	if root.Kind == KindModule && root.Name == "" {
		root.Name = b.t.Name
	}
	t := b.t
	b.t = nil
	return t
}

// Copy clones the subtree rooted at src into this builder's tree and
// returns the clone's root.
func (b *Builder) Copy(src *Node) *Node {
	if src == nil {
		return nil
	}
	n := b.t.alloc(src.Kind)
	copyScalars(n, src)
	for i, ids := range src.slots {
		out := make([]NodeID, len(ids))
		for j, id := range ids {
			if id == NoNode {
				out[j] = NoNode
				continue
			}
			c := b.Copy(src.tree.nodes[id])
			c.parent = n.id
			out[j] = c.id
		}
		n.slots[i] = out
	}
	return n
}

func copyScalars(dst, src *Node) {
	dst.Line, dst.EndLine, dst.Col, dst.EndCol = src.Line, src.EndLine, src.Col, src.EndCol
	dst.Name, dst.Op, dst.Const = src.Name, src.Op, src.Const
	dst.Ops = append([]string(nil), src.Ops...)
	dst.Aliases = append([]Alias(nil), src.Aliases...)
	dst.Names = append([]string(nil), src.Names...)
	dst.Module, dst.Level = src.Module, src.Level
	dst.Async, dst.Hidden, dst.Doc = src.Async, src.Hidden, src.Doc
}

// Fragment copies the subtree at src into a new tree hanging off outer.
func Fragment(src, outer *Node) *Tree {
	b := NewFragment(outer)
	return b.Finish(b.Copy(src))
}

// Replace grafts a copy of repl in place of old, which must not be the
// tree's root. It fails once the tree's locals have been built.
func (t *Tree) Replace(old, repl *Node) (*Node, error) {
	if t.frozen {
		return nil, ErrFrozen
	}
	if old.tree != t || old.parent == NoNode {
		return nil, fmt.Errorf("tree: replace: %s is not a child node of this tree", old)
	}
	b := &Builder{t: t}
	n := b.Copy(repl)
	parent := t.nodes[old.parent]
	for _, ids := range parent.slots {
		for j, id := range ids {
			if id == old.id {
				ids[j] = n.id
			}
		}
	}
	n.parent = old.parent
	old.parent = NoNode
	return n, nil
}

// Nodes returns every node reachable from the root in pre-order.
func (t *Tree) Nodes() []*Node {
	var out []*Node
	if r := t.Root(); r != nil {
		r.Walk(func(n *Node) bool {
			out = append(out, n)
			return true
		})
	}
	return out
}

// Rebuild recreates a tree from raw arena data. It is used by
// deserialization. parents[i] is the parent index of node i, or NoNode.
func Rebuild(name, file string, pkg bool, nodes []*Node, slots [][][]NodeID, parents []NodeID, root NodeID) (*Tree, error) {
	if len(slots) != len(nodes) || len(parents) != len(nodes) {
		return nil, fmt.Errorf("tree: rebuild: %d nodes, %d slot sets, %d parents", len(nodes), len(slots), len(parents))
	}
	t := &Tree{Name: name, File: file, Package: pkg, root: root}
	valid := func(id NodeID) bool { return id == NoNode || (id >= 0 && int(id) < len(nodes)) }
	for i, n := range nodes {
		if n == nil {
			return nil, fmt.Errorf("tree: rebuild: missing node %d", i)
		}
		if want := len(Schema(n.Kind)); len(slots[i]) != want {
			return nil, fmt.Errorf("tree: rebuild: node %d (%s) has %d slots, want %d", i, n.Kind, len(slots[i]), want)
		}
		for _, ids := range slots[i] {
			for _, id := range ids {
				if !valid(id) {
					return nil, fmt.Errorf("tree: rebuild: node %d references %d", i, id)
				}
			}
		}
		if !valid(parents[i]) {
			return nil, fmt.Errorf("tree: rebuild: node %d has parent %d", i, parents[i])
		}
		n.tree, n.id, n.parent = t, NodeID(i), parents[i]
		n.slots = slots[i]
	}
	t.nodes = nodes
	if t.Root() == nil {
		return nil, fmt.Errorf("tree: rebuild: invalid root %d", root)
	}
	return t, nil
}

// Slots exposes a node's raw slots, aligned with Schema(n.Kind).
func (n *Node) Slots() [][]NodeID { return n.slots }

// ParentID returns the raw parent index.
func (n *Node) ParentID() NodeID { return n.parent }
