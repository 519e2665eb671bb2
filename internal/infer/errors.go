package infer

import (
	"errors"
	"fmt"

	"github.com/jward/thicket/internal/tree"
)

// Sentinels matched with errors.Is against *Error values.
var (
	ErrInference           = errors.New("inference failed")
	ErrNameResolution      = errors.New("name resolution failed")
	ErrAttributeResolution = errors.New("attribute resolution failed")
	// ErrUseInferenceDefault is returned by inference tips that decline a
	// node; the next tip, and finally the default inferer, is tried.
	ErrUseInferenceDefault = errors.New("use default inference")
	ErrMro                 = errors.New("cannot compute mro")
	ErrInconsistentMro     = errors.New("inconsistent mro")
	ErrDuplicateBases      = errors.New("duplicate bases")
	ErrSuper               = errors.New("invalid super call")
)

// Error describes a failed resolution. Kind is one of the package
// sentinels; Err, when set, is the underlying cause.
type Error struct {
	Kind error
	Node *tree.Node
	Name string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Name != "" {
		msg += fmt.Sprintf(" for %q", e.Name)
	}
	if e.Node != nil {
		msg += fmt.Sprintf(" at %s", e.Node)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the error's kind and the kinds it specializes.
func (e *Error) Is(target error) bool {
	switch target {
	case e.Kind:
		return true
	case ErrInference:
		return e.Kind == ErrNameResolution
	case ErrMro:
		return e.Kind == ErrInconsistentMro || e.Kind == ErrDuplicateBases
	}
	return false
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind error, n *tree.Node, name string) *Error {
	return &Error{Kind: kind, Node: n, Name: name}
}

func wrapError(kind error, n *tree.Node, name string, cause error) *Error {
	return &Error{Kind: kind, Node: n, Name: name, Err: cause}
}
