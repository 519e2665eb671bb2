// Package parser converts Python source into thicket syntax trees using the
// tree-sitter Python grammar.
package parser

import (
	"context"
	"fmt"
	"os"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/jward/thicket/internal/tree"
)

// ParseError reports source that the grammar could not parse.
type ParseError struct {
	Message string
	File    string
	Line    int
	Column  int
}

func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// FileReadError is returned when a source file cannot be read.
type FileReadError struct {
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("failed to read file %s: %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error { return e.Err }

var (
	pyLang   *sitter.Language
	langOnce sync.Once
)

func language() *sitter.Language {
	langOnce.Do(func() {
		pyLang = python.GetLanguage()
	})
	return pyLang
}

// Parse converts src into a module tree named modname. file is recorded on
// the tree and in errors; it may be empty.
func Parse(ctx context.Context, src []byte, modname, file string) (*tree.Tree, error) {
	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(language())

	cst, err := p.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parser: tree-sitter parse failed: %w", err)
	}
	defer cst.Close()

	root := cst.RootNode()
	if root.HasError() {
		line, col := firstError(root)
		return nil, &ParseError{Message: "invalid syntax", File: file, Line: line, Column: col}
	}

	c := &converter{src: src, b: tree.NewBuilder(modname, file)}
	mod := c.module(root)
	return c.b.Finish(mod), nil
}

// ParseFile reads and parses a source file.
func ParseFile(ctx context.Context, path, modname string) (*tree.Tree, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &FileReadError{Path: path, Err: err}
	}
	return Parse(ctx, src, modname, path)
}

// firstError finds the position of the first ERROR or missing node.
func firstError(n *sitter.Node) (int, int) {
	if n.Type() == "ERROR" || n.IsMissing() {
		p := n.StartPoint()
		return int(p.Row) + 1, int(p.Column)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c != nil && (c.HasError() || c.IsMissing()) {
			return firstError(c)
		}
	}
	p := n.StartPoint()
	return int(p.Row) + 1, int(p.Column)
}

// namedChildren returns the named children of n without comments.
func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		c := n.NamedChild(i)
		if c == nil || c.Type() == "comment" || c.Type() == "line_continuation" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// allChildren returns every child of n, named and anonymous.
func allChildren(n *sitter.Node) []*sitter.Node {
	count := int(n.ChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		if c := n.Child(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// hasToken reports whether n has an anonymous child of the given type.
func hasToken(n *sitter.Node, tok string) bool {
	for _, c := range allChildren(n) {
		if !c.IsNamed() && c.Type() == tok {
			return true
		}
	}
	return false
}
