package infer

import "github.com/jward/thicket/internal/tree"

// maxPathDepth bounds the inference path. A request deeper than this is
// treated like a cycle.
const maxPathDepth = 400

// pathEntry is one link of the persistent inference path.
type pathEntry struct {
	node  *tree.Node
	name  string
	site  *tree.Node
	depth int
	next  *pathEntry
}

// Context carries the state of one inference request. Contexts are never
// mutated after construction; the With methods return modified copies.
type Context struct {
	path *pathEntry

	// LookupName is the name being resolved, used by import nodes to know
	// which binding they are inferred for.
	LookupName string
	// Call is set while inferring the result of a call.
	Call *CallContext
	// Bound is the value a method is bound to, or nil.
	Bound Value
}

// NewContext returns an empty context for a top-level request.
func NewContext() *Context { return &Context{} }

func (c *Context) clone() *Context {
	cp := *c
	return &cp
}

// WithLookup returns a copy of c resolving name.
func (c *Context) WithLookup(name string) *Context {
	cp := c.clone()
	cp.LookupName = name
	return cp
}

// WithCall returns a copy of c inside the given call.
func (c *Context) WithCall(cc *CallContext) *Context {
	cp := c.clone()
	cp.Call = cc
	return cp
}

// WithBound returns a copy of c bound to v.
func (c *Context) WithBound(v Value) *Context {
	cp := c.clone()
	cp.Bound = v
	return cp
}

// Depth returns the length of the inference path.
func (c *Context) Depth() int {
	if c.path == nil {
		return 0
	}
	return c.path.depth
}

// push records n on the path. It reports false when (n, lookup name, call
// site) is already on the path, or the path is too deep.
func (c *Context) push(n *tree.Node) (*Context, bool) {
	var site *tree.Node
	if c.Call != nil {
		site = c.Call.Site
	}
	for e := c.path; e != nil; e = e.next {
		if e.node == n && e.name == c.LookupName && e.site == site {
			return nil, false
		}
	}
	if c.Depth() >= maxPathDepth {
		return nil, false
	}
	cp := c.clone()
	cp.path = &pathEntry{node: n, name: c.LookupName, site: site, depth: c.Depth() + 1, next: c.path}
	return cp, true
}

// CallContext describes the arguments of a call being inferred.
type CallContext struct {
	// Args are the positional argument expressions, Starred included.
	Args []*tree.Node
	// Keywords are Keyword nodes; an empty name marks a **kwargs splat.
	Keywords []*tree.Node
	// Values, when set, replace Args with already inferred values. Operator
	// dunders are called this way.
	Values []Value
	// Site is the Call node, or the operator node for dunder calls.
	Site *tree.Node
	// Callee is the function the arguments are bound to, when known.
	Callee *tree.Node
	// Caller is the context the argument expressions are inferred in.
	Caller *Context

	// unbound is set when a method is called through its class, so the
	// first positional argument fills the first parameter.
	unbound bool
}

func newCallContext(call *tree.Node, caller *Context) *CallContext {
	return &CallContext{
		Args:     call.Seq(tree.FieldArgs),
		Keywords: call.Seq(tree.FieldKeywords),
		Site:     call,
		Caller:   caller,
	}
}

func (cc *CallContext) withCallee(fn *tree.Node) *CallContext {
	cp := *cc
	cp.Callee = fn
	return &cp
}

// ArgCount returns the number of positional arguments as written.
func (cc *CallContext) ArgCount() int {
	if cc.Values != nil {
		return len(cc.Values)
	}
	return len(cc.Args)
}

func (cc *CallContext) asUnbound() *CallContext {
	cp := *cc
	cp.unbound = true
	return &cp
}

func (cc *CallContext) callerContext() *Context {
	if cc.Caller != nil {
		return cc.Caller
	}
	return NewContext()
}
