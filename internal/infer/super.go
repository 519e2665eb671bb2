package infer

import (
	"slices"

	"github.com/jward/thicket/internal/tree"
)

// SuperMRO returns the part of the MRO super() searches: everything after
// the pointer class in the MRO of the bound type.
func (in *Interpreter) SuperMRO(s *Super) ([]*tree.Node, error) {
	pointer := asClass(s.MroPointer)
	if pointer == nil {
		return nil, newError(ErrSuper, s.Call, "the first super argument must be a type")
	}
	var mroType *tree.Node
	switch t := s.MroType.(type) {
	case *Instance:
		mroType = t.Class
	case *tree.Node:
		if t.Kind == tree.KindClassDef {
			mroType = t
		}
	}
	if mroType == nil {
		return nil, newError(ErrSuper, s.Call, "super(type, obj): obj must be an instance or subtype of type")
	}
	mro, err := in.MRO(mroType)
	if err != nil {
		return nil, wrapError(ErrSuper, s.Call, "", err)
	}
	i := slices.Index(mro, pointer)
	if i < 0 {
		return nil, newError(ErrSuper, s.Call, "super(type, obj): obj must be an instance or subtype of type")
	}
	return mro[i+1:], nil
}

// classBased reports whether super was given a class rather than an
// instance as its second argument.
func (s *Super) classBased() bool {
	return asClass(s.MroType) != nil
}

func (in *Interpreter) superIgetattr(s *Super, name string, ctx *Context) Seq {
	switch name {
	case "__thisclass__":
		return single(s.MroPointer)
	case "__self_class__":
		return single(s.SelfClass)
	case "__self__":
		return single(s.MroType)
	case "__class__":
		return in.builtinClassValue("super")
	}
	return func(yield func(Value, error) bool) {
		mro, err := in.SuperMRO(s)
		if err != nil {
			yield(nil, wrapError(ErrAttributeResolution, s.Call, name, err))
			return
		}
		scopeType := ""
		if s.Scope != nil {
			scopeType = in.functionType(s.Scope, ctx)
		}
		found := false
		for _, cls := range mro {
			stmts := cls.Local(name)
			if len(stmts) == 0 {
				continue
			}
			found = true
			for v := range valuesOnly(in.inferStmts(cls, nodeValues(stmts), ctx.WithLookup(name))) {
				for out := range in.superBind(s, cls, v, scopeType, ctx) {
					if !yield(out, nil) {
						return
					}
				}
			}
		}
		if !found {
			yield(nil, newError(ErrAttributeResolution, s.Call, name))
		}
	}
}

// superBind converts an attribute found through super() into what the
// access produces.
func (in *Interpreter) superBind(s *Super, cls *tree.Node, v Value, scopeType string, ctx *Context) func(func(Value) bool) {
	return func(yield func(Value) bool) {
		fn, ok := asNode(v)
		if !ok || fn.Kind != tree.KindFunctionDef {
			yield(v)
			return
		}
		switch ft := in.functionType(fn, ctx); {
		case ft == FuncClassMethod:
			bound := Value(cls)
			if c := asClass(s.MroType); c != nil {
				bound = c
			} else if inst, ok := s.MroType.(*Instance); ok {
				bound = inst.Class
			}
			yield(&BoundMethod{Func: fn, Bound: bound})
		case ft == FuncProperty && !s.classBased():
			for r := range valuesOnly(in.callResult(&BoundMethod{Func: fn, Bound: s.MroType}, ctx.WithCall(&CallContext{Site: fn, Caller: ctx}))) {
				if !yield(r) {
					return
				}
			}
		case scopeType == FuncClassMethod && ft == FuncMethod, s.classBased(), ft == FuncStatic:
			yield(fn)
		default:
			yield(&BoundMethod{Func: fn, Bound: s.MroType})
		}
	}
}

func (in *Interpreter) builtinClassValue(name string) Seq {
	if cls := in.builtinClass(name); cls != nil {
		return single(cls)
	}
	return single(Uninferable)
}
