package calc

import (
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/interpret"
)

type numericFunc func(a, b float64) any

var arithmetic = map[string]numericFunc{
	"+":  func(a, b float64) any { return a + b },
	"-":  func(a, b float64) any { return a - b },
	"*":  func(a, b float64) any { return a * b },
	"/":  func(a, b float64) any { return a / b },
	"%":  func(a, b float64) any { return math.Mod(a, b) },
	"^":  func(a, b float64) any { return math.Pow(a, b) },
	"**": func(a, b float64) any { return math.Pow(a, b) },
	"<":  func(a, b float64) any { return a < b },
	">":  func(a, b float64) any { return a > b },
	"<=": func(a, b float64) any { return a <= b },
	">=": func(a, b float64) any { return a >= b },
}

var logical = map[string]func(a, b bool) bool{
	"and": func(a, b bool) bool { return a && b },
	"&":   func(a, b bool) bool { return a && b },
	"or":  func(a, b bool) bool { return a || b },
	"|":   func(a, b bool) bool { return a || b },
	"xor": func(a, b bool) bool { return a != b },
}

type collectionFunc func(args []any) (any, error)

var collections = map[string]collectionFunc{
	"collect": collect,
	"sum":     sum,
}

// Operators returns every supported operator symbol, sorted.
func Operators() []string {
	var out []string
	for op := range arithmetic {
		out = append(out, op)
	}
	for op := range logical {
		out = append(out, op)
	}
	for op := range collections {
		out = append(out, op)
	}
	out = append(out, "==", "!=", "not")
	sort.Strings(out)
	return out
}

// Apply evaluates operator op over args. Scalar operators unwrap singleton
// sequences and value holders; a missing operand yields a nil result.
func Apply(op string, args []any) (any, error) {
	if fn, ok := collections[op]; ok {
		return fn(args)
	}

	scalars := make([]any, len(args))
	for i, a := range args {
		scalars[i] = Scalar(a)
	}

	switch len(scalars) {
	case 1:
		return unary(op, scalars[0])
	case 2:
		return binary(op, scalars[0], scalars[1])
	}
	return nil, fmt.Errorf("%w: %q with %d operands", errors.ErrOperatorUnsupported, op, len(args))
}

func unary(op string, x any) (any, error) {
	switch op {
	case "-", "+", "not":
	default:
		return nil, fmt.Errorf("%w: unary %q", errors.ErrOperatorUnsupported, op)
	}
	if x == nil {
		return nil, nil
	}
	if op == "not" {
		b, ok := x.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: not on %T", errors.ErrOperatorUnsupported, x)
		}
		return !b, nil
	}
	f, ok := toFloat(x)
	if !ok {
		return nil, fmt.Errorf("%w: unary %s on %T", errors.ErrOperatorUnsupported, op, x)
	}
	if op == "-" {
		return -f, nil
	}
	return f, nil
}

func binary(op string, a, b any) (any, error) {
	if op == "==" || op == "!=" {
		if a == nil || b == nil {
			return nil, nil
		}
		return equal(a, b) == (op == "=="), nil
	}

	if fn, ok := logical[op]; ok {
		if a == nil || b == nil {
			return nil, nil
		}
		x, okA := a.(bool)
		y, okB := b.(bool)
		if !okA || !okB {
			return nil, fmt.Errorf("%w: %s on %T and %T", errors.ErrOperatorUnsupported, op, a, b)
		}
		return fn(x, y), nil
	}

	fn, ok := arithmetic[op]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errors.ErrOperatorUnsupported, op)
	}
	if a == nil || b == nil {
		return nil, nil
	}
	if op == "+" {
		if x, ok := a.(string); ok {
			return x + fmt.Sprint(b), nil
		}
	}
	x, okA := toFloat(a)
	y, okB := toFloat(b)
	if !okA || !okB {
		return nil, fmt.Errorf("%w: %s on %T and %T", errors.ErrOperatorUnsupported, op, a, b)
	}
	return fn(x, y), nil
}

func equal(a, b any) bool {
	x, okA := toFloat(a)
	y, okB := toFloat(b)
	if okA && okB {
		return x == y
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// Scalar unwraps singleton sequence sets and value holders down to a plain
// value. Sets of more than one sequence are returned unchanged.
func Scalar(v any) any {
	for range 64 {
		switch x := v.(type) {
		case []interpret.Sequence:
			if len(x) != 1 {
				return x
			}
			last := x[0].Last()
			if last == nil {
				return nil
			}
			v = last
		case interpret.Holder:
			v = x.Get()
		default:
			return v
		}
	}
	return v
}

func sequences(v any) []interpret.Sequence {
	switch x := v.(type) {
	case []interpret.Sequence:
		return x
	case interpret.Holder:
		return sequences(x.Get())
	case interpret.Item:
		return []interpret.Sequence{{x}}
	}
	return nil
}

// collect navigates from each sequence of the collection operand along the
// path operand and yields the final item of every matching path sequence.
func collect(args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%w: collect takes 2 operands, got %d", errPartial, len(args))
	}
	if args[0] == nil || args[1] == nil {
		return nil, fmt.Errorf("%w: collect operand not computed", errPartial)
	}
	from := sequences(args[0])
	path := sequences(args[1])
	out := []interpret.Sequence{}
	for _, b := range path {
		for _, a := range from {
			if joins(a, b) {
				out = append(out, interpret.Sequence{b.Last()})
				break
			}
		}
	}
	return out, nil
}

// joins reports whether a is a prefix of b, or a trailing run of a equals a
// leading run of b.
func joins(a, b interpret.Sequence) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	if b.HasPrefix(a) {
		return true
	}
	for k := min(len(a), len(b)); k > 0; k-- {
		if b.HasPrefix(a[len(a)-k:]) {
			return true
		}
	}
	return false
}

// sum adds the numeric values of every item of its operand.
func sum(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: sum takes 1 operand, got %d", errPartial, len(args))
	}
	if args[0] == nil {
		return nil, nil
	}
	if f, ok := toFloat(args[0]); ok {
		return f, nil
	}
	total := 0.0
	for _, seq := range sequences(args[0]) {
		last := seq.Last()
		if last == nil {
			continue
		}
		v := Scalar(last)
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%w: sum over %T", errors.ErrOperatorUnsupported, v)
		}
		total += f
	}
	return total, nil
}
