package tree

// Contains reports whether the position (1-based line, 0-based column)
// falls inside n.
func (n *Node) Contains(line, col int) bool {
	if line < n.Line || line > n.EndLine {
		return false
	}
	if line == n.Line && col < n.Col {
		return false
	}
	if line == n.EndLine && col >= n.EndCol {
		return false
	}
	return true
}

// ExprAt returns the innermost expression under n containing the position,
// or nil. Of two expressions with the same extent the deeper one wins.
func (n *Node) ExprAt(line, col int) *Node {
	var best *Node
	n.Walk(func(c *Node) bool {
		if c.Kind.IsExpression() && c.Contains(line, col) && (best == nil || !wider(c, best)) {
			best = c
		}
		return true
	})
	return best
}

// wider reports whether a spans strictly more than b.
func wider(a, b *Node) bool {
	if a.Line != b.Line || a.Col != b.Col {
		return a.Line < b.Line || (a.Line == b.Line && a.Col < b.Col)
	}
	return a.EndLine > b.EndLine || (a.EndLine == b.EndLine && a.EndCol > b.EndCol)
}
