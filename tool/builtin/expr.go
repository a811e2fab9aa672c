package builtin

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
)

// The calculator compiles expressions with expr-lang against a closed
// environment: the math constants and functions below, no builtins. Every
// number is a float64, "**" and "^" both mean exponentiation, "%" follows
// the sign of the divisor and "/" rejects a zero divisor.

var (
	errEmptyExpression = errors.New("empty expression")
	errDivisionByZero  = errors.New("division by zero")
	errFloorDivision   = errors.New(`floor division "//" is not supported, use floor(a / b)`)
)

var mathEnv = map[string]any{
	"pi":  math.Pi,
	"e":   math.E,
	"tau": 2 * math.Pi,
	"inf": math.Inf(1),

	"sqrt":    math.Sqrt,
	"sin":     math.Sin,
	"cos":     math.Cos,
	"tan":     math.Tan,
	"asin":    math.Asin,
	"acos":    math.Acos,
	"atan":    math.Atan,
	"sinh":    math.Sinh,
	"cosh":    math.Cosh,
	"tanh":    math.Tanh,
	"exp":     math.Exp,
	"log10":   math.Log10,
	"log2":    math.Log2,
	"fabs":    math.Abs,
	"abs":     math.Abs,
	"floor":   math.Floor,
	"ceil":    math.Ceil,
	"trunc":   math.Trunc,
	"round":   math.RoundToEven,
	"degrees": func(x float64) float64 { return x * 180 / math.Pi },
	"radians": func(x float64) float64 { return x * math.Pi / 180 },
	"atan2":   math.Atan2,
	"pow":     math.Pow,
	"hypot":   math.Hypot,
	"fmod":    math.Mod,
	"mod":     floorMod,
	"div":     divide,
	"log": func(x float64, base ...float64) (float64, error) {
		switch len(base) {
		case 0:
			return math.Log(x), nil
		case 1:
			return math.Log(x) / math.Log(base[0]), nil
		default:
			return 0, errors.New("log expects 1 or 2 arguments")
		}
	},
	"min": func(first float64, rest ...float64) float64 {
		m := first
		for _, v := range rest {
			m = math.Min(m, v)
		}

		return m
	},
	"max": func(first float64, rest ...float64) float64 {
		m := first
		for _, v := range rest {
			m = math.Max(m, v)
		}

		return m
	},
	"factorial": factorial,
}

func floorMod(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errDivisionByZero
	}

	r := math.Mod(a, b)
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}

	return r, nil
}

func divide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errDivisionByZero
	}

	return a / b, nil
}

func factorial(n float64) (float64, error) {
	if n < 0 || n != math.Trunc(n) {
		return 0, errors.New("factorial() only accepts non-negative integral values")
	}

	if n > 170 {
		return math.Inf(1), nil
	}

	r := 1.0
	for i := 2.0; i <= n; i++ {
		r *= i
	}

	return r, nil
}

// arithmetic rewrites the parsed tree to float semantics: integer literals
// become floats, "%" and "/" become checked calls.
type arithmetic struct{}

func (arithmetic) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IntegerNode:
		ast.Patch(node, &ast.FloatNode{Value: float64(n.Value)})
	case *ast.BinaryNode:
		var fn string

		switch n.Operator {
		case "%":
			fn = "mod"
		case "/":
			fn = "div"
		default:
			return
		}

		ast.Patch(node, &ast.CallNode{
			Callee:    &ast.IdentifierNode{Value: fn},
			Arguments: []ast.Node{n.Left, n.Right},
		})
	}
}

// Evaluate computes src. Names resolve only against the math environment,
// so nothing outside plain arithmetic can run.
func Evaluate(src string) (float64, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return 0, errEmptyExpression
	}

	// expr-lang reads "//" as a line comment
	if strings.Contains(src, "//") {
		return 0, errFloorDivision
	}

	program, err := expr.Compile(src,
		expr.Env(mathEnv),
		expr.DisableAllBuiltins(),
		expr.Patch(arithmetic{}),
		expr.AsFloat64(),
	)
	if err != nil {
		return 0, fmt.Errorf("invalid expression %q: %w", src, err)
	}

	out, err := expr.Run(program, mathEnv)
	if err != nil {
		return 0, fmt.Errorf("evaluate %q: %w", src, err)
	}

	v, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("expression %q is not numeric", src)
	}

	return v, nil
}
