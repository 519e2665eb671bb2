package infer

import (
	"errors"
	"strings"

	"github.com/jward/thicket/internal/tree"
)

var errNoResolver = errors.New("no module resolver")

func (in *Interpreter) importModule(name string, relativeTo *tree.Node, level int) (*tree.Node, error) {
	if in.resolver == nil {
		return nil, errNoResolver
	}
	mod, err := in.resolver.ResolveModule(name, relativeTo, level)
	if err != nil {
		return nil, err
	}
	in.RegisterModule(mod)
	return mod, nil
}

// importFromModule resolves the source module of an ImportFrom statement.
func (in *Interpreter) importFromModule(imp *tree.Node) (*tree.Node, error) {
	return in.importModule(imp.Module, imp.Root(), imp.Level)
}

// moduleGetattr returns the statements defining name in mod: its locals
// (unless ignoreLocals) and externally assigned attributes, then the
// special module names, then a submodule of a package, then the names
// exported by wildcard imports.
func (in *Interpreter) moduleGetattr(mod *tree.Node, name string, ignoreLocals bool) ([]Value, error) {
	if !ignoreLocals {
		stmts := append(mod.Local(name), in.externalAttrs(mod, false, name)...)
		if len(stmts) > 0 {
			return nodeValues(stmts), nil
		}
	}
	if sp := in.moduleSpecial(mod, name); sp != nil {
		return []Value{sp}, nil
	}
	if mod.Tree().Package {
		if sub, err := in.importModule(mod.Name+"."+name, nil, 0); err == nil {
			return []Value{sub}, nil
		}
	}
	if !strings.HasPrefix(name, "_") {
		for _, imp := range mod.WildcardImports() {
			src, err := in.importFromModule(imp)
			if err != nil || src == mod {
				continue
			}
			if found := src.Local(name); len(found) > 0 {
				return nodeValues(found), nil
			}
		}
	}
	return nil, newError(ErrAttributeResolution, mod, name)
}

func (in *Interpreter) moduleIgetattr(mod *tree.Node, name string, ctx *Context) Seq {
	stmts, err := in.moduleGetattr(mod, name, false)
	if err != nil {
		return failure(wrapError(ErrInference, mod, name, err))
	}
	return in.inferStmts(mod, stmts, ctx.WithLookup(name))
}
