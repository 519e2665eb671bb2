package brain

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"unicode"

	"github.com/risor-io/risor/object"
)

// emitter collects the Python source a script emits, one line per call.
type emitter struct {
	sb strings.Builder
}

func (e *emitter) String() string { return e.sb.String() }

// makeEmitFn creates the "emit" host function.
//
// emit(line, ...) appends each string argument as a line of source.
func makeEmitFn(out *emitter) *object.Builtin {
	return object.NewBuiltin("emit", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) == 0 {
			return object.NewArgsError("emit", 1, 0)
		}
		for _, a := range args {
			s, ok := a.(*object.String)
			if !ok {
				return object.Errorf("emit: expected string, got %s", a.Type())
			}
			out.sb.WriteString(s.Value())
			out.sb.WriteByte('\n')
		}
		return object.Nil
	})
}

// makeLogModule creates the "log" object: log.info, log.warn and
// log.error forward a message to the logger.
func makeLogModule(logger *slog.Logger) *object.Module {
	level := func(name string, fn func(msg string, args ...any)) *object.Builtin {
		return object.NewBuiltin("log."+name, func(ctx context.Context, args ...object.Object) object.Object {
			if len(args) != 1 {
				return object.NewArgsError("log."+name, 1, len(args))
			}
			fn(toString(args[0]))
			return object.Nil
		})
	}
	return object.NewBuiltinsModule("log", map[string]object.Object{
		"info":  level("info", logger.Info),
		"warn":  level("warn", logger.Warn),
		"error": level("error", logger.Error),
	})
}

// makeValidFieldFn creates the "valid_field" host function.
//
// valid_field(name) → bool: name is a Python identifier, not a keyword and
// not underscore-prefixed.
func makeValidFieldFn() *object.Builtin {
	return object.NewBuiltin("valid_field", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("valid_field", 1, len(args))
		}
		s, ok := args[0].(*object.String)
		if !ok {
			return object.False
		}
		name := s.Value()
		return object.NewBool(isIdentifier(name) && !isKeyword(name) && !strings.HasPrefix(name, "_"))
	})
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

var pythonKeywords = []string{
	"False", "None", "True", "and", "as", "assert", "async", "await",
	"break", "class", "continue", "def", "del", "elif", "else", "except",
	"finally", "for", "from", "global", "if", "import", "in", "is",
	"lambda", "nonlocal", "not", "or", "pass", "raise", "return", "try",
	"while", "with", "yield",
}

func isKeyword(s string) bool { return slices.Contains(pythonKeywords, s) }

// splitFields splits a field spec the way namedtuple does: commas count
// as whitespace.
func splitFields(spec string) []string {
	return strings.Fields(strings.ReplaceAll(spec, ",", " "))
}

// toObject converts a plain argument value to a Risor object.
func toObject(v any) object.Object {
	switch x := v.(type) {
	case nil:
		return object.Nil
	case string:
		return object.NewString(x)
	case int64:
		return object.NewInt(x)
	case float64:
		return object.NewFloat(x)
	case bool:
		return object.NewBool(x)
	case []any:
		items := make([]object.Object, len(x))
		for i, item := range x {
			items[i] = toObject(item)
		}
		return object.NewList(items)
	}
	return object.Nil
}

// toString converts a Risor object to a Go string.
func toString(obj object.Object) string {
	if s, ok := obj.(*object.String); ok {
		return s.Value()
	}
	return obj.Inspect()
}
