package param

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
)

// Parse converts expression text into an Expr tree.
//
// The grammar is Go expression syntax restricted to numeric literals,
// dotted parameter keys, unary minus, + - * / and calls to sqrt, abs, sin
// and cos:
//
//	lbco.cell.length_a * 1.01 + 0.002
func Parse(text string) (Expr, error) {
	node, err := parser.ParseExpr(text)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", text, err)
	}
	e, err := convert(node)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", text, err)
	}
	return e, nil
}

// MustParse is like Parse but panics on error. For tests and static tables.
func MustParse(text string) Expr {
	e, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return e
}

func convert(node ast.Expr) (Expr, error) {
	switch n := node.(type) {
	case *ast.ParenExpr:
		return convert(n.X)
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return nil, fmt.Errorf("unsupported literal %s", n.Value)
		}
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("literal %s: %w", n.Value, err)
		}
		return Const{Value: v}, nil
	case *ast.Ident, *ast.SelectorExpr:
		key, err := selectorKey(n)
		if err != nil {
			return nil, err
		}
		return Ref{Key: key}, nil
	case *ast.UnaryExpr:
		x, err := convert(n.X)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case token.SUB:
			return Neg{X: x}, nil
		case token.ADD:
			return x, nil
		}
		return nil, fmt.Errorf("unsupported unary operator %s", n.Op)
	case *ast.BinaryExpr:
		var op byte
		switch n.Op {
		case token.ADD:
			op = '+'
		case token.SUB:
			op = '-'
		case token.MUL:
			op = '*'
		case token.QUO:
			op = '/'
		default:
			return nil, fmt.Errorf("unsupported operator %s", n.Op)
		}
		l, err := convert(n.X)
		if err != nil {
			return nil, err
		}
		r, err := convert(n.Y)
		if err != nil {
			return nil, err
		}
		return Binary{Op: op, L: l, R: r}, nil
	case *ast.CallExpr:
		fn, ok := n.Fun.(*ast.Ident)
		if !ok {
			return nil, fmt.Errorf("unsupported call target")
		}
		if _, known := funcs[fn.Name]; !known {
			return nil, fmt.Errorf("unknown function %s", fn.Name)
		}
		if len(n.Args) != 1 || n.Ellipsis.IsValid() {
			return nil, fmt.Errorf("%s takes exactly one argument", fn.Name)
		}
		arg, err := convert(n.Args[0])
		if err != nil {
			return nil, err
		}
		return Call{Func: fn.Name, Arg: arg}, nil
	}
	return nil, fmt.Errorf("unsupported expression %T", node)
}

// selectorKey flattens a.b.c selector chains into "a.b.c".
func selectorKey(node ast.Expr) (string, error) {
	switch n := node.(type) {
	case *ast.Ident:
		return n.Name, nil
	case *ast.SelectorExpr:
		prefix, err := selectorKey(n.X)
		if err != nil {
			return "", err
		}
		return prefix + "." + n.Sel.Name, nil
	}
	return "", fmt.Errorf("unsupported key expression %T", node)
}
