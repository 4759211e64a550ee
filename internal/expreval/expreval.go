// Package expreval stands in for the out-of-scope "mathematical
// expression evaluator" of spec §1: a pure function invoked by the
// router's expression mode with a declared source vector and returning a
// destination vector. Nothing in the example pack imports a real
// expression-evaluation library (see DESIGN.md), so this is a small
// arithmetic evaluator built on the standard library's own Go expression
// parser, scoped strictly to numeric expressions over x0..xN identifiers.
package expreval

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"
	"strings"
)

// Evaluate parses expr as a comma-separated list of arithmetic
// expressions, one per destination element, each referencing source
// elements as x0, x1, ... xN, and returns the evaluated destination
// vector. It is a pure function: no state survives between calls.
func Evaluate(expr string, src []float64) ([]float64, error) {
	parts := splitTopLevelCommas(expr)
	if len(parts) == 0 {
		return nil, fmt.Errorf("expreval: empty expression")
	}

	out := make([]float64, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if eq := strings.IndexByte(part, '='); eq >= 0 {
			// Allow "y0 = x0 * 2" form; only the right-hand side is
			// evaluated, the destination index is positional.
			part = part[eq+1:]
		}
		node, err := parser.ParseExpr(part)
		if err != nil {
			return nil, fmt.Errorf("expreval: parse %q: %w", part, err)
		}
		v, err := evalNode(node, src)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func splitTopLevelCommas(expr string) []string {
	var parts []string
	depth := 0
	last := 0
	for i, r := range expr {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ';', ',':
			if depth == 0 {
				parts = append(parts, expr[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, expr[last:])
	return parts
}

func evalNode(n ast.Expr, src []float64) (float64, error) {
	switch e := n.(type) {
	case *ast.ParenExpr:
		return evalNode(e.X, src)
	case *ast.BasicLit:
		if e.Kind != token.INT && e.Kind != token.FLOAT {
			return 0, fmt.Errorf("expreval: unsupported literal %q", e.Value)
		}
		return strconv.ParseFloat(e.Value, 64)
	case *ast.Ident:
		idx, err := identIndex(e.Name)
		if err != nil {
			return 0, err
		}
		if idx < 0 || idx >= len(src) {
			return 0, fmt.Errorf("expreval: identifier %s out of range (source length %d)", e.Name, len(src))
		}
		return src[idx], nil
	case *ast.UnaryExpr:
		v, err := evalNode(e.X, src)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case token.SUB:
			return -v, nil
		case token.ADD:
			return v, nil
		}
		return 0, fmt.Errorf("expreval: unsupported unary operator %s", e.Op)
	case *ast.BinaryExpr:
		l, err := evalNode(e.X, src)
		if err != nil {
			return 0, err
		}
		r, err := evalNode(e.Y, src)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case token.ADD:
			return l + r, nil
		case token.SUB:
			return l - r, nil
		case token.MUL:
			return l * r, nil
		case token.QUO:
			return l / r, nil
		case token.REM:
			return math.Mod(l, r), nil
		}
		return 0, fmt.Errorf("expreval: unsupported binary operator %s", e.Op)
	case *ast.CallExpr:
		fn, ok := e.Fun.(*ast.Ident)
		if !ok || len(e.Args) != 1 {
			return 0, fmt.Errorf("expreval: unsupported call expression")
		}
		arg, err := evalNode(e.Args[0], src)
		if err != nil {
			return 0, err
		}
		switch fn.Name {
		case "abs":
			return math.Abs(arg), nil
		case "sqrt":
			return math.Sqrt(arg), nil
		case "floor":
			return math.Floor(arg), nil
		case "ceil":
			return math.Ceil(arg), nil
		}
		return 0, fmt.Errorf("expreval: unknown function %s", fn.Name)
	}
	return 0, fmt.Errorf("expreval: unsupported expression node %T", n)
}

func identIndex(name string) (int, error) {
	if len(name) < 2 || name[0] != 'x' {
		return 0, fmt.Errorf("expreval: unsupported identifier %q (expected x0, x1, ...)", name)
	}
	return strconv.Atoi(name[1:])
}
