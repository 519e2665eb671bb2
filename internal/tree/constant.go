package tree

import (
	"math/big"
	"strconv"
	"strings"
)

// ConstKind is the Python type of a literal constant.
type ConstKind uint8

const (
	ConstNone ConstKind = iota
	ConstBool
	ConstInt
	ConstFloat
	ConstStr
	ConstBytes
	ConstEllipsis
)

var constKindNames = []string{"none", "bool", "int", "float", "str", "bytes", "ellipsis"}

func (k ConstKind) String() string {
	if int(k) < len(constKindNames) {
		return constKindNames[k]
	}
	return "invalid"
}

// PyType returns the builtins class name of the constant's type.
func (k ConstKind) PyType() string {
	switch k {
	case ConstNone:
		return "NoneType"
	case ConstEllipsis:
		return "ellipsis"
	}
	return k.String()
}

// Constant is the literal payload of a Const node.
type Constant struct {
	Kind  ConstKind `json:"kind"`
	Bool  bool      `json:"bool,omitempty"`
	Int   int64     `json:"int,omitempty"`
	Float float64   `json:"float,omitempty"`
	// Big holds ints that do not fit an int64; Int is then zero. It is
	// never mutated once set.
	Big *big.Int `json:"big,omitempty"`
	// Str holds str values and the raw bytes of bytes values.
	Str string `json:"str,omitempty"`
}

func None() Constant           { return Constant{Kind: ConstNone} }
func Bool(b bool) Constant     { return Constant{Kind: ConstBool, Bool: b} }
func Int(i int64) Constant     { return Constant{Kind: ConstInt, Int: i} }
func Float(f float64) Constant { return Constant{Kind: ConstFloat, Float: f} }

// BigInt returns an int constant for z, using Int when it fits.
func BigInt(z *big.Int) Constant {
	if z.IsInt64() {
		return Int(z.Int64())
	}
	return Constant{Kind: ConstInt, Big: new(big.Int).Set(z)}
}

func Str(s string) Constant       { return Constant{Kind: ConstStr, Str: s} }
func Bytes(s string) Constant     { return Constant{Kind: ConstBytes, Str: s} }
func Ellipsis() Constant          { return Constant{Kind: ConstEllipsis} }
func (c Constant) IsNone() bool   { return c.Kind == ConstNone }
func (c Constant) IsString() bool { return c.Kind == ConstStr }

// Truth returns the Python truth value of the constant.
func (c Constant) Truth() bool {
	switch c.Kind {
	case ConstBool:
		return c.Bool
	case ConstInt:
		return c.Int != 0 || c.Big != nil
	case ConstFloat:
		return c.Float != 0
	case ConstStr, ConstBytes:
		return c.Str != ""
	case ConstEllipsis:
		return true
	}
	return false
}

// Numeric reports whether the constant is a bool, int or float.
func (c Constant) Numeric() bool {
	return c.Kind == ConstBool || c.Kind == ConstInt || c.Kind == ConstFloat
}

// AsFloat widens a numeric constant.
func (c Constant) AsFloat() float64 {
	switch c.Kind {
	case ConstBool:
		if c.Bool {
			return 1
		}
		return 0
	case ConstInt:
		if c.Big != nil {
			f, _ := new(big.Float).SetInt(c.Big).Float64()
			return f
		}
		return float64(c.Int)
	}
	return c.Float
}

// AsBig returns a bool or int constant as a fresh big.Int. ok is false for
// other kinds.
func (c Constant) AsBig() (*big.Int, bool) {
	switch c.Kind {
	case ConstBool, ConstInt:
		if c.Big != nil {
			return new(big.Int).Set(c.Big), true
		}
		i, _ := c.AsInt()
		return big.NewInt(i), true
	}
	return nil, false
}

// AsInt narrows a bool or int constant. ok is false for other kinds and
// for ints that do not fit an int64.
func (c Constant) AsInt() (int64, bool) {
	switch c.Kind {
	case ConstBool:
		if c.Bool {
			return 1, true
		}
		return 0, true
	case ConstInt:
		return c.Int, c.Big == nil
	}
	return 0, false
}

// Compare orders two numeric constants. Ints and bools compare exactly;
// anything involving a float compares as float64. ok is false unless both
// are numeric.
func (c Constant) Compare(o Constant) (int, bool) {
	if !c.Numeric() || !o.Numeric() {
		return 0, false
	}
	if c.Kind != ConstFloat && o.Kind != ConstFloat {
		x, _ := c.AsBig()
		y, _ := o.AsBig()
		return x.Cmp(y), true
	}
	x, y := c.AsFloat(), o.AsFloat()
	switch {
	case x < y:
		return -1, true
	case x > y:
		return 1, true
	}
	return 0, true
}

// Equal reports Python equality between two constants.
func (c Constant) Equal(o Constant) bool {
	if cmp, ok := c.Compare(o); ok {
		return cmp == 0
	}
	if c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case ConstStr, ConstBytes:
		return c.Str == o.Str
	}
	return true
}

// String renders the constant the way Python's repr would.
func (c Constant) String() string {
	switch c.Kind {
	case ConstNone:
		return "None"
	case ConstBool:
		if c.Bool {
			return "True"
		}
		return "False"
	case ConstInt:
		if c.Big != nil {
			return c.Big.String()
		}
		return strconv.FormatInt(c.Int, 10)
	case ConstFloat:
		s := strconv.FormatFloat(c.Float, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		return s
	case ConstStr:
		return pyQuote(c.Str)
	case ConstBytes:
		return "b" + pyQuote(c.Str)
	case ConstEllipsis:
		return "Ellipsis"
	}
	return "?"
}

func pyQuote(s string) string {
	q := strconv.Quote(s)
	if strings.Contains(s, "'") {
		return q
	}
	return "'" + strings.ReplaceAll(q[1:len(q)-1], `\"`, `"`) + "'"
}
