package infer

import (
	"github.com/jward/thicket/internal/tree"
)

func (in *Interpreter) inferSubscript(n *tree.Node, ctx *Context) Seq {
	return nonEmpty(n, func(yield func(Value, error) bool) {
		for value, err := range in.Infer(n.Child(tree.FieldValue), ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			if IsUninferable(value) {
				yield(Uninferable, nil)
				return
			}
			for index, err := range in.Infer(n.Child(tree.FieldSlice), ctx) {
				if err != nil {
					yield(nil, err)
					return
				}
				if IsUninferable(index) {
					yield(Uninferable, nil)
					return
				}
				item, err := in.getitem(n, value, index, ctx)
				if err != nil {
					yield(nil, wrapError(ErrInference, n, "", err))
					return
				}
				if IsUninferable(item) {
					yield(Uninferable, nil)
					return
				}
				for v, err := range in.inferValue(item, ctx) {
					if !yield(v, err) || err != nil {
						return
					}
				}
			}
		}
	})
}

// getitem evaluates value[index] for a single pair of inferred operands.
// The result may be a node that still needs inference.
func (in *Interpreter) getitem(site *tree.Node, value, index Value, ctx *Context) (Value, error) {
	if inst, ok := index.(*Instance); ok {
		if _, isInst := value.(*Instance); !isInst {
			idx, ok := in.indexValue(inst, site, ctx)
			if !ok {
				return nil, newError(ErrInference, site, "__index__")
			}
			index = idx
		}
	}
	switch v := value.(type) {
	case *Instance:
		return in.dunderItem(site, v, "__getitem__", index, ctx)
	case *tree.Node:
		switch v.Kind {
		case tree.KindList, tree.KindTuple:
			return sequenceItem(site, v, index)
		case tree.KindDict:
			return in.dictItem(site, v, index, ctx, 0)
		case tree.KindConst:
			return constItem(site, v.Const, index)
		case tree.KindClassDef:
			return in.classItem(site, v, index, ctx)
		}
		if cls := in.classOf(v); cls != nil {
			return in.dunderItem(site, &Instance{Class: cls, Origin: v}, "__getitem__", index, ctx)
		}
	}
	return nil, newError(ErrInference, site, "__getitem__")
}

// indexValue converts an instance used as an index through __index__.
func (in *Interpreter) indexValue(inst *Instance, site *tree.Node, ctx *Context) (Value, bool) {
	vals, ok := in.callDunder(inst, "__index__", nil, site, ctx)
	if !ok {
		return nil, false
	}
	for _, v := range vals {
		if c, isConst := asConst(v); isConst && isIntLike(c) {
			return v, true
		}
	}
	return nil, false
}

func (in *Interpreter) dunderItem(site *tree.Node, recv Value, method string, index Value, ctx *Context) (Value, error) {
	vals, ok := in.callDunder(recv, method, []Value{index}, site, ctx)
	if !ok {
		return nil, newError(ErrAttributeResolution, site, method)
	}
	return vals[0], nil
}

// classItem handles subscripting a class: __class_getitem__ first, then
// __getitem__ on the metaclass. Builtin generics subscript to themselves.
func (in *Interpreter) classItem(site, cls *tree.Node, index Value, ctx *Context) (Value, error) {
	if attrs, err := in.getattr(cls, "__class_getitem__", true, ctx); err == nil && len(attrs) > 0 {
		if n, ok := asNode(attrs[0]); ok && isBuiltinsNode(n) {
			return cls, nil
		}
		return in.dunderItem(site, cls, "__class_getitem__", index, ctx)
	}
	if meta := in.Metaclass(cls); meta != nil {
		if _, err := in.getattr(meta, "__getitem__", false, ctx); err == nil {
			vals, ok := in.callDunder(&Instance{Class: meta, Origin: cls}, "__getitem__", []Value{index}, site, ctx)
			if ok {
				return vals[0], nil
			}
		}
	}
	return nil, newError(ErrAttributeResolution, site, "__class_getitem__")
}

func sequenceItem(site, seq *tree.Node, index Value) (Value, error) {
	elts := seq.Seq(tree.FieldElts)
	idx, ok := asNode(index)
	if !ok {
		return nil, newError(ErrInference, site, "")
	}
	if idx.Kind == tree.KindSlice {
		start, stop, step, ok := sliceBounds(idx, len(elts))
		if !ok {
			return Uninferable, nil
		}
		var out []*tree.Node
		for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
			out = append(out, elts[i])
		}
		return seqNode(site, seq.Kind, out), nil
	}
	if idx.Kind != tree.KindConst || !isIntLike(idx.Const) {
		return nil, newError(ErrInference, site, "")
	}
	for _, e := range elts {
		if e.Kind == tree.KindStarred {
			return Uninferable, nil
		}
	}
	i, fits := idx.Const.AsInt()
	if i < 0 {
		i += int64(len(elts))
	}
	if !fits || i < 0 || i >= int64(len(elts)) {
		return nil, newError(ErrInference, site, "index out of range")
	}
	return elts[i], nil
}

func constItem(site *tree.Node, c tree.Constant, index Value) (Value, error) {
	if c.Kind != tree.ConstStr && c.Kind != tree.ConstBytes {
		return nil, newError(ErrInference, site, "")
	}
	idx, ok := asNode(index)
	if !ok {
		return nil, newError(ErrInference, site, "")
	}
	s := []rune(c.Str)
	if c.Kind == tree.ConstBytes {
		s = nil
		for i := 0; i < len(c.Str); i++ {
			s = append(s, rune(c.Str[i]))
		}
	}
	rebuild := func(rs []rune) string {
		if c.Kind == tree.ConstStr {
			return string(rs)
		}
		b := make([]byte, len(rs))
		for i, r := range rs {
			b[i] = byte(r)
		}
		return string(b)
	}
	if idx.Kind == tree.KindSlice {
		start, stop, step, ok := sliceBounds(idx, len(s))
		if !ok {
			return Uninferable, nil
		}
		var out []rune
		for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
			out = append(out, s[i])
		}
		return constNode(site, tree.Constant{Kind: c.Kind, Str: rebuild(out)}), nil
	}
	if idx.Kind != tree.KindConst || !isIntLike(idx.Const) {
		return nil, newError(ErrInference, site, "")
	}
	i, fits := idx.Const.AsInt()
	if i < 0 {
		i += int64(len(s))
	}
	if !fits || i < 0 || i >= int64(len(s)) {
		return nil, newError(ErrInference, site, "index out of range")
	}
	if c.Kind == tree.ConstBytes {
		return constNode(site, tree.Int(int64(s[i]))), nil
	}
	return constNode(site, tree.Str(string(s[i]))), nil
}

// dictItem finds the value stored under a constant key. Later keys win,
// and ** entries are searched through their inferred mapping.
func (in *Interpreter) dictItem(site, dict *tree.Node, index Value, ctx *Context, depth int) (Value, error) {
	key, ok := asConst(index)
	if !ok {
		if idx, isNode := asNode(index); isNode && idx.Kind == tree.KindSlice {
			return nil, newError(ErrInference, site, "unhashable slice")
		}
		return Uninferable, nil
	}
	items := dict.PairSeq(tree.FieldItems)
	for i := len(items) - 1; i >= 0; i-- {
		p := items[i]
		if p.Key == nil {
			if depth > 8 {
				continue
			}
			for v := range valuesOnly(safe(in.Infer(p.Value, ctx))) {
				if inner, isNode := asNode(v); isNode && inner.Kind == tree.KindDict {
					if found, err := in.dictItem(site, inner, index, ctx, depth+1); err == nil {
						return found, nil
					}
				}
			}
			continue
		}
		for k := range valuesOnly(safe(in.Infer(p.Key, ctx))) {
			if kc, ok := asConst(k); ok && kc.Equal(key) {
				return p.Value, nil
			}
		}
	}
	return nil, newError(ErrInference, site, key.String())
}

// sliceBounds resolves a literal slice against a sequence of length n the
// way slice.indices does.
func sliceBounds(sl *tree.Node, n int) (start, stop, step int, ok bool) {
	part := func(f tree.Field) (int, bool, bool) {
		c := sl.Child(f)
		if c == nil || (c.Kind == tree.KindConst && c.Const.IsNone()) {
			return 0, false, true
		}
		lit, ok := nodeLiteral(c, 0)
		if !ok || lit.kind != tree.KindConst || !isIntLike(lit.c) {
			return 0, false, false
		}
		v, fits := lit.c.AsInt()
		if !fits {
			return 0, false, false
		}
		return int(v), true, true
	}
	step = 1
	if v, set, valid := part(tree.FieldStep); !valid {
		return 0, 0, 0, false
	} else if set {
		if v == 0 {
			return 0, 0, 0, false
		}
		step = v
	}
	clamp := func(v int, set bool, def, lo, hi int) int {
		if !set {
			return def
		}
		if v < 0 {
			v += n
		}
		return max(lo, min(v, hi))
	}
	lo, hi := 0, n
	defStart, defStop := 0, n
	if step < 0 {
		lo, hi = -1, n-1
		defStart, defStop = n-1, -1
	}
	v, set, valid := part(tree.FieldLower)
	if !valid {
		return 0, 0, 0, false
	}
	start = clamp(v, set, defStart, lo, hi)
	v, set, valid = part(tree.FieldUpper)
	if !valid {
		return 0, 0, 0, false
	}
	stop = clamp(v, set, defStop, lo, hi)
	return start, stop, step, true
}
