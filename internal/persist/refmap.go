// Package persist serializes thicket trees to the refmap JSON format.
//
// A document holds the module metadata and its root node. Each node is an
// object carrying its kind under ".class", a numeric "id", its scalars and
// one key per schema field. A node met a second time is written as
// {".class": "Ref", ".value": id}, so shared nodes survive a round trip.
package persist

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/jward/thicket/internal/tree"
)

// ErrFormat is wrapped by every decoding failure.
var ErrFormat = errors.New("invalid refmap document")

const (
	classKey = ".class"
	valueKey = ".value"
	refClass = "Ref"
)

type document struct {
	Module  string          `json:"module"`
	File    string          `json:"file,omitempty"`
	Package bool            `json:"package,omitempty"`
	Root    json.RawMessage `json:"root"`
}

// =============================================================================
// Dump
// =============================================================================

type dumper struct {
	ids map[*tree.Node]int
}

// Dump serializes t.
func Dump(t *tree.Tree) ([]byte, error) {
	root := t.Root()
	if root == nil {
		return nil, errors.New("persist: dump: tree has no root")
	}
	d := &dumper{ids: make(map[*tree.Node]int)}
	body, err := json.Marshal(d.node(root))
	if err != nil {
		return nil, fmt.Errorf("persist: dump %s: %w", t.Name, err)
	}
	out, err := json.Marshal(document{Module: t.Name, File: t.File, Package: t.Package, Root: body})
	if err != nil {
		return nil, fmt.Errorf("persist: dump %s: %w", t.Name, err)
	}
	return out, nil
}

func (d *dumper) node(n *tree.Node) any {
	if n == nil {
		return nil
	}
	if id, ok := d.ids[n]; ok {
		return map[string]any{classKey: refClass, valueKey: id}
	}
	id := len(d.ids)
	d.ids[n] = id

	obj := map[string]any{classKey: n.Kind.String(), "id": id, "line": n.Line}
	if n.EndLine != 0 {
		obj["end_line"] = n.EndLine
	}
	if n.Col != 0 {
		obj["col"] = n.Col
	}
	if n.EndCol != 0 {
		obj["end_col"] = n.EndCol
	}
	if n.Name != "" {
		obj["name"] = n.Name
	}
	if n.Op != "" {
		obj["op"] = n.Op
	}
	if len(n.Ops) > 0 {
		obj["ops"] = n.Ops
	}
	if n.Kind == tree.KindConst {
		obj["value"] = dumpConst(n.Const)
	}
	if len(n.Aliases) > 0 {
		obj["aliases"] = n.Aliases
	}
	if len(n.Names) > 0 {
		obj["names"] = n.Names
	}
	if n.Module != "" {
		obj["module"] = n.Module
	}
	if n.Level != 0 {
		obj["level"] = n.Level
	}
	if n.Async {
		obj["async"] = true
	}
	if n.Hidden {
		obj["hidden"] = true
	}
	if n.Doc != "" {
		obj["doc"] = n.Doc
	}

	for _, slot := range tree.Schema(n.Kind) {
		key := slot.Field.String()
		switch slot.Shape {
		case tree.Single:
			obj[key] = d.node(n.Child(slot.Field))
		case tree.Seq:
			items := []any{}
			for _, c := range n.Seq(slot.Field) {
				items = append(items, d.node(c))
			}
			obj[key] = items
		case tree.Pairs:
			pairs := []any{}
			for _, p := range n.PairSeq(slot.Field) {
				pairs = append(pairs, []any{d.node(p.Key), d.node(p.Value)})
			}
			obj[key] = pairs
		}
	}
	return obj
}

func dumpConst(c tree.Constant) any {
	switch c.Kind {
	case tree.ConstNone:
		return nil
	case tree.ConstBool:
		return c.Bool
	case tree.ConstInt:
		if c.Big != nil {
			return map[string]any{classKey: "int", valueKey: c.Big.String()}
		}
		return c.Int
	case tree.ConstFloat:
		return map[string]any{classKey: "float", valueKey: strconv.FormatFloat(c.Float, 'g', -1, 64)}
	case tree.ConstStr:
		return c.Str
	case tree.ConstBytes:
		return map[string]any{classKey: "bytes", valueKey: base64.StdEncoding.EncodeToString([]byte(c.Str))}
	case tree.ConstEllipsis:
		return map[string]any{classKey: "ellipsis"}
	}
	return nil
}

// =============================================================================
// Load
// =============================================================================

type loader struct {
	nodes   []*tree.Node
	slots   [][][]tree.NodeID
	parents []tree.NodeID
	byID    map[int]tree.NodeID
}

// Load rebuilds a tree from a Dump document.
func Load(data []byte) (*tree.Tree, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("persist: load: %w: %w", ErrFormat, err)
	}
	dec := json.NewDecoder(bytes.NewReader(doc.Root))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("persist: load %s: %w: %w", doc.Module, ErrFormat, err)
	}
	l := &loader{byID: make(map[int]tree.NodeID)}
	rootID, err := l.node(root, tree.NoNode)
	if err != nil {
		return nil, fmt.Errorf("persist: load %s: %w", doc.Module, err)
	}
	t, err := tree.Rebuild(doc.Module, doc.File, doc.Package, l.nodes, l.slots, l.parents, rootID)
	if err != nil {
		return nil, fmt.Errorf("persist: load %s: %w: %w", doc.Module, ErrFormat, err)
	}
	return t, nil
}

func formatErr(msg string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFormat, fmt.Sprintf(msg, args...))
}

func (l *loader) node(v any, parent tree.NodeID) (tree.NodeID, error) {
	if v == nil {
		return tree.NoNode, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return 0, formatErr("node is %T, want object", v)
	}
	class, _ := obj[classKey].(string)
	if class == refClass {
		ref, err := intField(obj, valueKey)
		if err != nil {
			return 0, err
		}
		id, ok := l.byID[ref]
		if !ok {
			return 0, formatErr("reference to unknown node %d", ref)
		}
		return id, nil
	}
	kind, ok := tree.KindByName(class)
	if !ok {
		return 0, formatErr("unknown node class %q", class)
	}
	dumpID, err := intField(obj, "id")
	if err != nil {
		return 0, err
	}
	if _, dup := l.byID[dumpID]; dup {
		return 0, formatErr("node id %d defined twice", dumpID)
	}

	n := &tree.Node{Kind: kind}
	if err := loadScalars(n, obj); err != nil {
		return 0, fmt.Errorf("node %d: %w", dumpID, err)
	}
	id := tree.NodeID(len(l.nodes))
	l.byID[dumpID] = id
	l.nodes = append(l.nodes, n)
	l.parents = append(l.parents, parent)
	l.slots = append(l.slots, nil)

	schema := tree.Schema(kind)
	slots := make([][]tree.NodeID, len(schema))
	for i, slot := range schema {
		raw := obj[slot.Field.String()]
		switch slot.Shape {
		case tree.Single:
			child, err := l.node(raw, id)
			if err != nil {
				return 0, err
			}
			slots[i] = []tree.NodeID{child}
		case tree.Seq:
			items, _ := raw.([]any)
			if raw != nil && items == nil {
				return 0, formatErr("field %s of node %d is not a list", slot.Field, dumpID)
			}
			for _, item := range items {
				child, err := l.node(item, id)
				if err != nil {
					return 0, err
				}
				slots[i] = append(slots[i], child)
			}
		case tree.Pairs:
			items, _ := raw.([]any)
			for _, item := range items {
				pair, ok := item.([]any)
				if !ok || len(pair) != 2 {
					return 0, formatErr("field %s of node %d holds a malformed pair", slot.Field, dumpID)
				}
				for _, part := range pair {
					child, err := l.node(part, id)
					if err != nil {
						return 0, err
					}
					slots[i] = append(slots[i], child)
				}
			}
		}
	}
	l.slots[id] = slots
	return id, nil
}

func intField(obj map[string]any, key string) (int, error) {
	num, ok := obj[key].(json.Number)
	if !ok {
		return 0, formatErr("missing integer %q", key)
	}
	v, err := num.Int64()
	if err != nil {
		return 0, formatErr("%q: %v", key, err)
	}
	return int(v), nil
}

func optInt(obj map[string]any, key string) (int, error) {
	if _, ok := obj[key]; !ok {
		return 0, nil
	}
	return intField(obj, key)
}

func optString(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func stringList(obj map[string]any, key string) ([]string, error) {
	raw, ok := obj[key]
	if !ok {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, formatErr("%q is not a list", key)
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, formatErr("%q holds a non-string", key)
		}
		out[i] = s
	}
	return out, nil
}

func loadScalars(n *tree.Node, obj map[string]any) error {
	var err error
	if n.Line, err = optInt(obj, "line"); err != nil {
		return err
	}
	if n.EndLine, err = optInt(obj, "end_line"); err != nil {
		return err
	}
	if n.Col, err = optInt(obj, "col"); err != nil {
		return err
	}
	if n.EndCol, err = optInt(obj, "end_col"); err != nil {
		return err
	}
	if n.Level, err = optInt(obj, "level"); err != nil {
		return err
	}
	n.Name = optString(obj, "name")
	n.Op = optString(obj, "op")
	n.Module = optString(obj, "module")
	n.Doc = optString(obj, "doc")
	n.Async, _ = obj["async"].(bool)
	n.Hidden, _ = obj["hidden"].(bool)
	if n.Ops, err = stringList(obj, "ops"); err != nil {
		return err
	}
	if n.Names, err = stringList(obj, "names"); err != nil {
		return err
	}
	if raw, ok := obj["aliases"].([]any); ok {
		for _, item := range raw {
			a, ok := item.(map[string]any)
			if !ok {
				return formatErr("malformed alias")
			}
			n.Aliases = append(n.Aliases, tree.Alias{Name: optString(a, "name"), AsName: optString(a, "asname")})
		}
	}
	if n.Kind == tree.KindConst {
		c, err := loadConst(obj["value"])
		if err != nil {
			return err
		}
		n.Const = c
	}
	return nil
}

func loadConst(v any) (tree.Constant, error) {
	switch x := v.(type) {
	case nil:
		return tree.None(), nil
	case bool:
		return tree.Bool(x), nil
	case string:
		return tree.Str(x), nil
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return tree.Constant{}, formatErr("integer constant %s: %v", x, err)
		}
		return tree.Int(i), nil
	case map[string]any:
		raw, _ := x[valueKey].(string)
		switch x[classKey] {
		case "int":
			z, ok := new(big.Int).SetString(raw, 10)
			if !ok {
				return tree.Constant{}, formatErr("integer constant %q", raw)
			}
			return tree.BigInt(z), nil
		case "float":
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return tree.Constant{}, formatErr("float constant %q", raw)
			}
			return tree.Float(f), nil
		case "bytes":
			b, err := base64.StdEncoding.DecodeString(raw)
			if err != nil {
				return tree.Constant{}, formatErr("bytes constant: %v", err)
			}
			return tree.Bytes(string(b)), nil
		case "ellipsis":
			return tree.Ellipsis(), nil
		}
	}
	return tree.Constant{}, formatErr("unsupported constant %v", v)
}
