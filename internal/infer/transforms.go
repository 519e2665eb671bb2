package infer

import (
	"fmt"

	"github.com/jward/thicket/internal/tree"
)

// TipFunc infers a node in place of the default inferer. Returning an
// error matching ErrUseInferenceDefault hands the node to the next tip.
type TipFunc func(in *Interpreter, n *tree.Node, ctx *Context) Seq

// TransformFunc rewrites a node of a freshly parsed tree. A non-nil result
// other than n is grafted in place of n.
type TransformFunc func(n *tree.Node) (*tree.Node, error)

// Predicate selects the nodes a tip or transform applies to. A nil
// predicate matches every node of the registered kind.
type Predicate func(n *tree.Node) bool

type tip struct {
	fn   TipFunc
	pred Predicate
}

type transform struct {
	fn   TransformFunc
	pred Predicate
}

// RegisterInferenceTip adds a tip for nodes of kind. Tips are consulted in
// registration order. Registration must finish before inference starts.
func (in *Interpreter) RegisterInferenceTip(kind tree.Kind, fn TipFunc, pred Predicate) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.tips[kind] = append(in.tips[kind], tip{fn: fn, pred: pred})
}

// RegisterTransform adds a transform applied by Transform.
func (in *Interpreter) RegisterTransform(kind tree.Kind, fn TransformFunc, pred Predicate) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.transforms[kind] = append(in.transforms[kind], transform{fn: fn, pred: pred})
}

func (in *Interpreter) tipsFor(n *tree.Node) []tip {
	var out []tip
	for _, t := range in.tips[n.Kind] {
		if t.pred == nil || t.pred(n) {
			out = append(out, t)
		}
	}
	return out
}

// Transform applies the registered transforms to t in pre-order. It must
// run before the tree's locals are built. Replacement subtrees are not
// transformed again, but their children are visited.
func (in *Interpreter) Transform(t *tree.Tree) error {
	in.mu.Lock()
	if len(in.transforms) == 0 {
		in.mu.Unlock()
		return nil
	}
	registry := make(map[tree.Kind][]transform, len(in.transforms))
	for k, v := range in.transforms {
		registry[k] = v
	}
	in.mu.Unlock()

	var visit func(n *tree.Node) error
	visit = func(n *tree.Node) error {
		for _, tr := range registry[n.Kind] {
			if tr.pred != nil && !tr.pred(n) {
				continue
			}
			repl, err := tr.fn(n)
			if err != nil {
				return fmt.Errorf("infer: transform %s at line %d: %w", n.Kind, n.Line, err)
			}
			if repl == nil || repl == n {
				continue
			}
			grafted, err := t.Replace(n, repl)
			if err != nil {
				return fmt.Errorf("infer: transform %s at line %d: %w", n.Kind, n.Line, err)
			}
			in.logger.Debug("transform replaced node", "module", t.Name, "kind", n.Kind.String(), "line", n.Line)
			n = grafted
			break
		}
		for _, c := range n.Children() {
			if err := visit(c); err != nil {
				return err
			}
		}
		return nil
	}
	return visit(t.Root())
}
