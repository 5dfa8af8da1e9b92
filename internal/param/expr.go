package param

import (
	"math"
	"slices"
	"strconv"
)

// Expr is a constraint expression node.
//
// The node set is closed: Ref, Const, Neg, Binary and Call.
type Expr interface {
	expr()
	String() string
}

// Ref refers to another parameter by key.
type Ref struct {
	Key string
}

// Const is a literal.
type Const struct {
	Value float64
}

// Neg negates its operand.
type Neg struct {
	X Expr
}

// Binary applies one of + - * / to two operands.
type Binary struct {
	Op   byte
	L, R Expr
}

// Call applies a named unary function.
// Supported: sqrt, abs, sin, cos (radians).
type Call struct {
	Func string
	Arg  Expr
}

func (Ref) expr()    {}
func (Const) expr()  {}
func (Neg) expr()    {}
func (Binary) expr() {}
func (Call) expr()   {}

func (r Ref) String() string   { return r.Key }
func (c Const) String() string { return strconv.FormatFloat(c.Value, 'g', -1, 64) }
func (n Neg) String() string   { return "-" + n.X.String() }
func (b Binary) String() string {
	return "(" + b.L.String() + " " + string(b.Op) + " " + b.R.String() + ")"
}
func (c Call) String() string { return c.Func + "(" + c.Arg.String() + ")" }

var funcs = map[string]func(float64) float64{
	"sqrt": math.Sqrt,
	"abs":  math.Abs,
	"sin":  math.Sin,
	"cos":  math.Cos,
}

// Eval interprets e, resolving references through lookup.
func Eval(e Expr, lookup func(key string) float64) float64 {
	switch n := e.(type) {
	case Ref:
		return lookup(n.Key)
	case Const:
		return n.Value
	case Neg:
		return -Eval(n.X, lookup)
	case Binary:
		l, r := Eval(n.L, lookup), Eval(n.R, lookup)
		switch n.Op {
		case '+':
			return l + r
		case '-':
			return l - r
		case '*':
			return l * r
		case '/':
			return l / r
		}
	case Call:
		if f, ok := funcs[n.Func]; ok {
			return f(Eval(n.Arg, lookup))
		}
	}
	return math.NaN()
}

// Refs returns the sorted, de-duplicated keys e refers to.
func Refs(e Expr) []string {
	var keys []string
	var walk func(Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case Ref:
			keys = append(keys, n.Key)
		case Neg:
			walk(n.X)
		case Binary:
			walk(n.L)
			walk(n.R)
		case Call:
			walk(n.Arg)
		}
	}
	walk(e)
	slices.Sort(keys)
	return slices.Compact(keys)
}
