package infer

import (
	"iter"

	"github.com/jward/thicket/internal/tree"
)

// Seq is a lazy inference result. An error ends the sequence.
type Seq = iter.Seq2[Value, error]

func single(v Value) Seq {
	return func(yield func(Value, error) bool) { yield(v, nil) }
}

func values(vs ...Value) Seq {
	return func(yield func(Value, error) bool) {
		for _, v := range vs {
			if !yield(v, nil) {
				return
			}
		}
	}
}

func failure(err error) Seq {
	return func(yield func(Value, error) bool) { yield(nil, err) }
}

func empty(func(Value, error) bool) {}

func nodeValues(nodes []*tree.Node) []Value {
	out := make([]Value, 0, len(nodes))
	for _, n := range nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Collect drains s. Values produced before an error are returned with it.
func Collect(s Seq) ([]Value, error) {
	var out []Value
	for v, err := range s {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

// First returns the first value of s. An empty sequence is an
// ErrInference error.
func First(s Seq) (Value, error) {
	for v, err := range s {
		return v, err
	}
	return nil, newError(ErrInference, nil, "")
}

// safe converts errors into Uninferable, keeping values produced before.
func safe(s Seq) Seq {
	return func(yield func(Value, error) bool) {
		for v, err := range s {
			if err != nil {
				yield(Uninferable, nil)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// nonEmpty fails with ErrInference on n when s produces nothing.
func nonEmpty(n *tree.Node, s Seq) Seq {
	return func(yield func(Value, error) bool) {
		produced := false
		for v, err := range s {
			if err != nil {
				yield(nil, err)
				return
			}
			produced = true
			if !yield(v, nil) {
				return
			}
		}
		if !produced {
			yield(nil, newError(ErrInference, n, ""))
		}
	}
}
