package eval

import (
	"reflect"
	"regexp"
	"time"

	"github.com/relic-lang/relic/internal/ast"
	"github.com/relic-lang/relic/internal/graph"
	"github.com/relic-lang/relic/internal/token"
)

// Eval evaluates an expression in the given context.
func Eval(c *Context, expr ast.Expr) (any, error) {
	switch expr := expr.(type) {
	case *ast.Literal:
		return expr.Value, nil

	case *ast.Path:
		return c.Resolve(expr.Parts)

	case *ast.Binary:
		return evalBinary(c, expr)

	case *ast.Logical:
		left, err := EvalBool(c, expr.Left)
		if err != nil {
			return nil, err
		}
		if expr.Op == token.AND {
			if !left {
				return false, nil
			}
		} else {
			if left {
				return true, nil
			}
		}
		return EvalBool(c, expr.Right)

	case *ast.Not:
		v, err := EvalBool(c, expr.Operand)
		if err != nil {
			return nil, err
		}
		return !v, nil

	case *ast.Membership:
		value, err := Eval(c, expr.Value)
		if err != nil {
			return nil, err
		}
		if value == nil {
			return false, nil
		}
		for _, lit := range expr.List {
			if looseEqual(value, lit.Value) {
				return true, nil
			}
		}
		return false, nil

	case *ast.NullCheck:
		value, err := Eval(c, expr.Value)
		if err != nil {
			return nil, err
		}
		if expr.Negated {
			return value != nil, nil
		}
		return value == nil, nil

	case *ast.Call:
		return evalCall(c, expr)

	case *ast.Exists:
		return evalExists(c, expr)

	case *ast.Match:
		value, err := Eval(c, expr.Value)
		if err != nil {
			return nil, err
		}
		s, ok := value.(string)
		if !ok {
			return false, nil
		}
		// MATCHES is implicitly anchored: the pattern must cover the
		// whole subject, not a substring.
		re, err := regexp.Compile(AnchorPattern(expr.Pattern))
		if err != nil {
			return nil, &Error{Kind: InvalidPattern, Message: expr.Pattern, Err: err}
		}
		return re.MatchString(s), nil

	case *ast.Changed:
		return evalChanged(c, expr)

	default:
		return nil, newError(UnknownFunction, "unsupported expression %T", expr)
	}
}

// AnchorPattern wraps a MATCHES pattern so it must cover the whole
// subject. Every backend applies the same wrapping, so in-process and
// pushed-down evaluation agree.
func AnchorPattern(pattern string) string {
	return "^(?:" + pattern + ")$"
}

// EvalBool evaluates an expression and collapses the result to its truth
// value: nil and zero values are false, everything else true.
func EvalBool(c *Context, expr ast.Expr) (bool, error) {
	v, err := Eval(c, expr)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// Truthy reports the truth value of an evaluated result.
func Truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != ""
	case *graph.Entity:
		return v != nil
	default:
		return true
	}
}

func evalBinary(c *Context, expr *ast.Binary) (any, error) {
	left, err := Eval(c, expr.Left)
	if err != nil {
		return nil, err
	}
	right, err := Eval(c, expr.Right)
	if err != nil {
		return nil, err
	}

	switch expr.Op {
	case token.EQ:
		if left == nil && right == nil {
			return true, nil
		}
		if left == nil || right == nil {
			return false, nil
		}
		return looseEqual(left, right), nil

	case token.NEQ:
		// Comparison against null collapses to false, matching the
		// other ordered operators; only IS NULL observes nil.
		if left == nil || right == nil {
			return false, nil
		}
		return !looseEqual(left, right), nil

	case token.LT, token.GT, token.LTE, token.GTE:
		cmp, ok := compare(left, right)
		if !ok {
			return false, nil
		}
		switch expr.Op {
		case token.LT:
			return cmp < 0, nil
		case token.GT:
			return cmp > 0, nil
		case token.LTE:
			return cmp <= 0, nil
		default:
			return cmp >= 0, nil
		}

	case token.PLUS, token.MINUS, token.STAR, token.SLASH:
		return arithmetic(expr.Op, left, right)

	default:
		return nil, newError(UnknownFunction, "unsupported operator %s", expr.Op)
	}
}

func evalExists(c *Context, expr *ast.Exists) (any, error) {
	head := c.Entity(expr.Head)
	if head == nil {
		return nil, newError(UnknownVariable, "variable %q is not bound", expr.Head)
	}
	tail := c.Entity(expr.Tail)
	if tail == nil {
		return nil, newError(UnknownVariable, "variable %q is not bound", expr.Tail)
	}
	if c.Driver == nil {
		return false, nil
	}

	related, err := c.Driver.Related(c.Ctx(), head.ID, expr.Rel, tail.ID)
	if err != nil {
		return nil, &Error{Kind: GraphIO, Message: "relationship check", Err: err}
	}
	if !related {
		return false, nil
	}
	if expr.Where == nil {
		return true, nil
	}
	return EvalBool(c, expr.Where)
}

// evalChanged consults the old-value mapping of the current firing. The
// mapping describes the triggering entity only, so CHANGED on any other
// entity is false.
func evalChanged(c *Context, expr *ast.Changed) (any, error) {
	if len(expr.Target.Parts) != 2 {
		return false, nil
	}
	entity := c.Entity(expr.Target.Head())
	if entity == nil || c.This == nil || entity.ID != c.This.ID {
		return false, nil
	}

	prop := expr.Target.Parts[1]
	old, tracked := c.OldValues[prop]
	if !tracked {
		return false, nil
	}

	current, err := c.Resolve(expr.Target.Parts)
	if err != nil {
		return nil, err
	}

	if expr.From == nil {
		return !looseEqual(old, current) && !(old == nil && current == nil), nil
	}
	return looseEqual(old, expr.From.Value) && looseEqual(current, expr.To.Value), nil
}

// looseEqual compares two values with numeric coercion: an int64 equals
// the float64 with the same value. Times compare with time.Equal.
func looseEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			return at.Equal(bt)
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// compare returns the ordering of two values. Mixed or unordered types
// report ok=false, which the caller collapses to a false comparison.
func compare(a, b any) (int, bool) {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}

	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			switch {
			case as < bs:
				return -1, true
			case as > bs:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}

	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			return at.Compare(bt), true
		}
		return 0, false
	}

	if ad, aok := a.(time.Duration); aok {
		if bd, bok := b.(time.Duration); bok {
			switch {
			case ad < bd:
				return -1, true
			case ad > bd:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}

	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case float64:
		return v, true
	case float32:
		return float64(v), true
	default:
		return 0, false
	}
}

// arithmetic applies + - * / with numeric coercion. Integer operands stay
// integral except for division, which always yields a float. PLUS on two
// strings concatenates. Time plus duration shifts the time.
func arithmetic(op token.Type, left, right any) (any, error) {
	if left == nil || right == nil {
		return nil, nil
	}

	if op == token.PLUS {
		if ls, ok := left.(string); ok {
			if rs, ok := right.(string); ok {
				return ls + rs, nil
			}
		}
		if lt, ok := left.(time.Time); ok {
			if rd, ok := right.(time.Duration); ok {
				return lt.Add(rd), nil
			}
		}
	}
	if op == token.MINUS {
		if lt, ok := left.(time.Time); ok {
			if rd, ok := right.(time.Duration); ok {
				return lt.Add(-rd), nil
			}
			if rt, ok := right.(time.Time); ok {
				return lt.Sub(rt), nil
			}
		}
	}

	li, lInt := asInt(left)
	ri, rInt := asInt(right)
	if lInt && rInt && op != token.SLASH {
		switch op {
		case token.PLUS:
			return li + ri, nil
		case token.MINUS:
			return li - ri, nil
		case token.STAR:
			return li * ri, nil
		}
	}

	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if !lok || !rok {
		return nil, nil
	}
	switch op {
	case token.PLUS:
		return lf + rf, nil
	case token.MINUS:
		return lf - rf, nil
	case token.STAR:
		return lf * rf, nil
	case token.SLASH:
		if rf == 0 {
			return nil, nil
		}
		return lf / rf, nil
	}
	return nil, nil
}

func asInt(v any) (int64, bool) {
	switch v := v.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}
