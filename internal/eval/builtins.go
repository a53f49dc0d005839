package eval

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/relic-lang/relic/internal/ast"
)

// builtin is a registered function. Argument values arrive already
// evaluated, in call order.
type builtin struct {
	name     string
	minArgs  int
	maxArgs  int // -1 for variadic
	evaluate func(c *Context, args []any) (any, error)
}

var builtins = map[string]builtin{
	"NOW": {
		name: "NOW", minArgs: 0, maxArgs: 0,
		evaluate: func(c *Context, args []any) (any, error) {
			return c.Now, nil
		},
	},
	"DATE": {
		name: "DATE", minArgs: 1, maxArgs: 1,
		evaluate: func(c *Context, args []any) (any, error) {
			s, ok := args[0].(string)
			if !ok {
				return nil, newError(InvalidArgument, "DATE expects a string, got %T", args[0])
			}
			for _, layout := range []string{time.RFC3339, "2006-01-02"} {
				if t, err := time.Parse(layout, s); err == nil {
					return t, nil
				}
			}
			return nil, newError(InvalidArgument, "DATE cannot parse %q", s)
		},
	},
	"DAYS": {
		name: "DAYS", minArgs: 1, maxArgs: 1,
		evaluate: func(c *Context, args []any) (any, error) {
			n, ok := asFloat(args[0])
			if !ok {
				return nil, nil
			}
			return time.Duration(n * float64(24*time.Hour)), nil
		},
	},
	"HOURS": {
		name: "HOURS", minArgs: 1, maxArgs: 1,
		evaluate: func(c *Context, args []any) (any, error) {
			n, ok := asFloat(args[0])
			if !ok {
				return nil, nil
			}
			return time.Duration(n * float64(time.Hour)), nil
		},
	},
	"CONCAT": {
		name: "CONCAT", minArgs: 1, maxArgs: -1,
		evaluate: func(c *Context, args []any) (any, error) {
			var b strings.Builder
			for _, a := range args {
				b.WriteString(stringify(a))
			}
			return b.String(), nil
		},
	},
	"UPPER": {
		name: "UPPER", minArgs: 1, maxArgs: 1,
		evaluate: func(c *Context, args []any) (any, error) {
			s, ok := args[0].(string)
			if !ok {
				return nil, nil
			}
			return strings.ToUpper(s), nil
		},
	},
	"LOWER": {
		name: "LOWER", minArgs: 1, maxArgs: 1,
		evaluate: func(c *Context, args []any) (any, error) {
			s, ok := args[0].(string)
			if !ok {
				return nil, nil
			}
			return strings.ToLower(s), nil
		},
	},
	"LENGTH": {
		name: "LENGTH", minArgs: 1, maxArgs: 1,
		evaluate: func(c *Context, args []any) (any, error) {
			switch v := args[0].(type) {
			case nil:
				// Null has length zero rather than propagating.
				return int64(0), nil
			case string:
				return int64(len(v)), nil
			default:
				return nil, nil
			}
		},
	},
	"ABS": {
		name: "ABS", minArgs: 1, maxArgs: 1,
		evaluate: func(c *Context, args []any) (any, error) {
			if n, ok := asInt(args[0]); ok {
				if n < 0 {
					return -n, nil
				}
				return n, nil
			}
			f, ok := asFloat(args[0])
			if !ok {
				return nil, nil
			}
			return math.Abs(f), nil
		},
	},
	"ROUND": {
		name: "ROUND", minArgs: 1, maxArgs: 1,
		evaluate: func(c *Context, args []any) (any, error) {
			f, ok := asFloat(args[0])
			if !ok {
				return nil, nil
			}
			return int64(math.Round(f)), nil
		},
	},
	"MIN": {
		name: "MIN", minArgs: 2, maxArgs: -1,
		evaluate: func(c *Context, args []any) (any, error) {
			return pick(args, func(cmp int) bool { return cmp < 0 }), nil
		},
	},
	"MAX": {
		name: "MAX", minArgs: 2, maxArgs: -1,
		evaluate: func(c *Context, args []any) (any, error) {
			return pick(args, func(cmp int) bool { return cmp > 0 }), nil
		},
	},
}

// stringify renders one CONCAT argument. Nil contributes nothing,
// integers print without an exponent, and times print as RFC 3339.
func stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

func pick(args []any, better func(cmp int) bool) any {
	var best any
	for _, a := range args {
		if a == nil {
			continue
		}
		if best == nil {
			best = a
			continue
		}
		if cmp, ok := compare(a, best); ok && better(cmp) {
			best = a
		}
	}
	return best
}

func evalCall(c *Context, call *ast.Call) (any, error) {
	fn, ok := builtins[call.Name]
	if !ok {
		return nil, newError(UnknownFunction, "function %q is not defined", call.Name)
	}
	if len(call.Args) < fn.minArgs || (fn.maxArgs >= 0 && len(call.Args) > fn.maxArgs) {
		return nil, newError(UnknownFunction,
			"function %s called with %d arguments", fn.name, len(call.Args))
	}

	args := make([]any, len(call.Args))
	for i, argExpr := range call.Args {
		v, err := Eval(c, argExpr)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return fn.evaluate(c, args)
}
