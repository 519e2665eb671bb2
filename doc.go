// Package thicket infers the values of Python expressions without running
// them. It parses source with tree-sitter into an arena tree, resolves
// names through scopes and imports, and follows assignments, calls and
// attribute access to the values an expression may take.
//
// # Pipeline
//
// A file goes through three stages:
//
//  1. Load: the module manager parses the file, applies registered
//     transforms and caches the tree by dotted name. With a database the
//     transformed tree is also stored in SQLite, keyed by content hash.
//
//  2. Locate: a (line, column) position is mapped to the innermost
//     expression that contains it.
//
//  3. Infer: the interpreter yields every value the expression may
//     evaluate to. Anything it cannot follow becomes Uninferable.
//
// # Usage
//
//	e, err := thicket.New(thicket.WithSearchPaths("src"))
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	res, err := e.InferAt(ctx, "src/app/models.py", 12, 8)
//	mro, err := e.MRO(ctx, "src/app/models.py", "User")
//
// Lines are 1-based and columns 0-based, as in Python's own ast module.
//
// # Brains
//
// Library constructs whose behavior lives in C or in dynamic code, such as
// collections.namedtuple, are modeled by brains: Risor scripts listed in
// brains/brains.yaml that emit Python source for the class a call would
// create. [WithBrainsDir] loads them from disk instead of the embedded
// set and [WithBrains] selects a subset.
package thicket
