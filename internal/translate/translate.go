// Package translate compiles FOR clause guards into parameterized graph
// queries. No literal from the source expression ever appears in the query
// text; each one becomes a $param_N placeholder with its value in the
// parameter map.
package translate

import (
	"fmt"
	"strings"

	"github.com/relic-lang/relic/internal/ast"
	"github.com/relic-lang/relic/internal/eval"
	"github.com/relic-lang/relic/internal/token"
)

// Query is a translated graph query with its parameter map.
type Query struct {
	Text   string
	Params map[string]any
}

// Binding pins an already-bound loop variable to a concrete entity for the
// duration of one query: the emitted query constrains the variable's id.
type Binding struct {
	Var        string
	EntityType string
	ID         string
}

// ChangeInfo describes the triggering property change so CHANGED
// predicates can be folded into a boolean parameter.
type ChangeInfo struct {
	EntityID string
	Property string
	Old      any
	New      any
}

// Error is a translation failure.
type Error struct {
	Message string
	Pos     token.Position
}

func (e *Error) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("translate: %s:%d:%d: %s", e.Pos.Filename, e.Pos.Line, e.Pos.Column, e.Message)
	}
	return "translate: " + e.Message
}

func errorf(pos token.Position, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Pos: pos}
}

// translator carries the fresh-parameter counter and the output map for
// one translation.
type translator struct {
	params  map[string]any
	counter int
	change  *ChangeInfo
}

func (t *translator) fresh(value any) string {
	name := fmt.Sprintf("param_%d", t.counter)
	t.counter++
	t.params[name] = value
	return "$" + name
}

// Translate compiles one FOR clause into a read query. Bindings are outer
// loop variables (or the triggering entity) already pinned to concrete
// entities; each contributes a MATCH clause and an identity constraint.
// The clause's own variable is matched and returned.
func Translate(clause *ast.ForClause, bound []Binding, change *ChangeInfo) (*Query, error) {
	if err := checkLabel(clause.EntityType, clause.StartPos); err != nil {
		return nil, err
	}
	for _, b := range bound {
		if err := checkLabel(b.EntityType, clause.StartPos); err != nil {
			return nil, err
		}
		if err := checkLabel(b.Var, clause.StartPos); err != nil {
			return nil, err
		}
	}
	if err := checkLabel(clause.Variable, clause.StartPos); err != nil {
		return nil, err
	}

	t := &translator{params: make(map[string]any), change: change}

	// A binding that pins the clause's own variable (the triggering
	// entity driving the outer loop) shares the clause's MATCH; it only
	// contributes an identity constraint.
	var b strings.Builder
	for _, bind := range bound {
		if bind.Var == clause.Variable {
			continue
		}
		fmt.Fprintf(&b, "MATCH (%s:%s) ", bind.Var, bind.EntityType)
	}
	fmt.Fprintf(&b, "MATCH (%s:%s)", clause.Variable, clause.EntityType)

	var conds []string
	for _, bind := range bound {
		param := "id_" + bind.Var
		t.params[param] = bind.ID
		conds = append(conds, fmt.Sprintf("%s.id = $%s", bind.Var, param))
	}
	if clause.Where != nil {
		guard, err := t.expr(clause.Where)
		if err != nil {
			return nil, err
		}
		conds = append(conds, guard)
	}

	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	fmt.Fprintf(&b, " RETURN %s", clause.Variable)

	return &Query{Text: b.String(), Params: t.params}, nil
}

// TranslateWrite compiles a single-property write on one entity.
func TranslateWrite(entityType, id, property string, value any) (*Query, error) {
	pos := token.Position{}
	if err := checkLabel(entityType, pos); err != nil {
		return nil, err
	}
	if err := checkLabel(property, pos); err != nil {
		return nil, err
	}

	t := &translator{params: make(map[string]any)}
	t.params["id"] = id
	valueParam := t.fresh(value)

	text := fmt.Sprintf("MATCH (n:%s) WHERE n.id = $id SET n.%s = %s", entityType, property, valueParam)
	return &Query{Text: text, Params: t.params}, nil
}

func (t *translator) expr(e ast.Expr) (string, error) {
	switch e := e.(type) {
	case *ast.Literal:
		return t.fresh(e.Value), nil

	case *ast.Path:
		if len(e.Parts) != 2 {
			return "", errorf(e.StartPos, "property access %q cannot be translated", e.String())
		}
		if err := checkLabel(e.Parts[0], e.StartPos); err != nil {
			return "", err
		}
		if err := checkLabel(e.Parts[1], e.StartPos); err != nil {
			return "", err
		}
		return e.Parts[0] + "." + e.Parts[1], nil

	case *ast.Binary:
		op, ok := binaryOps[e.Op]
		if !ok {
			return "", errorf(e.StartPos, "operator %s cannot be translated", e.Op)
		}
		left, err := t.operand(e.Op, e.Left)
		if err != nil {
			return "", err
		}
		right, err := t.operand(e.Op, e.Right)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", left, op, right), nil

	case *ast.Logical:
		left, err := t.expr(e.Left)
		if err != nil {
			return "", err
		}
		right, err := t.expr(e.Right)
		if err != nil {
			return "", err
		}
		op := "AND"
		if e.Op == token.OR {
			op = "OR"
		}
		return fmt.Sprintf("(%s %s %s)", left, op, right), nil

	case *ast.Not:
		inner, err := t.expr(e.Operand)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NOT (%s)", inner), nil

	case *ast.Membership:
		value, err := t.expr(e.Value)
		if err != nil {
			return "", err
		}
		list := make([]any, len(e.List))
		for i, lit := range e.List {
			list[i] = lit.Value
		}
		return fmt.Sprintf("%s IN %s", value, t.fresh(list)), nil

	case *ast.NullCheck:
		value, err := t.expr(e.Value)
		if err != nil {
			return "", err
		}
		if e.Negated {
			return value + " IS NOT NULL", nil
		}
		return value + " IS NULL", nil

	case *ast.Match:
		value, err := t.expr(e.Value)
		if err != nil {
			return "", err
		}
		// The pattern parameter carries the implicit anchoring, so the
		// drivers match whole strings without knowing the convention.
		return fmt.Sprintf("%s =~ %s", value, t.fresh(eval.AnchorPattern(e.Pattern))), nil

	case *ast.Exists:
		return t.exists(e)

	case *ast.Changed:
		return t.changed(e)

	case *ast.Call:
		return "", errorf(e.StartPos, "function call %s() cannot appear in a translated guard", e.Name)

	default:
		return "", errorf(e.Pos(), "expression %T cannot be translated", e)
	}
}

// operand renders one side of a binary expression. A nested arithmetic
// expression under an arithmetic parent is parenthesized so grouping
// survives the flat query text.
func (t *translator) operand(parent token.Type, e ast.Expr) (string, error) {
	out, err := t.expr(e)
	if err != nil {
		return "", err
	}
	if inner, ok := e.(*ast.Binary); ok && isArithmetic(parent) && isArithmetic(inner.Op) {
		return "(" + out + ")", nil
	}
	return out, nil
}

func isArithmetic(op token.Type) bool {
	return op == token.PLUS || op == token.MINUS || op == token.STAR || op == token.SLASH
}

func (t *translator) exists(e *ast.Exists) (string, error) {
	if err := checkLabel(e.Head, e.StartPos); err != nil {
		return "", err
	}
	if err := checkLabel(e.Rel, e.StartPos); err != nil {
		return "", err
	}
	if err := checkLabel(e.Tail, e.StartPos); err != nil {
		return "", err
	}

	pattern := fmt.Sprintf("(%s)-[:%s]->(%s)", e.Head, e.Rel, e.Tail)
	if e.Where == nil {
		return fmt.Sprintf("EXISTS(%s)", pattern), nil
	}
	inner, err := t.expr(e.Where)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("EXISTS(%s WHERE %s)", pattern, inner), nil
}

// changed folds a CHANGED predicate into a boolean parameter computed from
// the triggering change: the query does not consult history, the engine
// already knows old and new.
func (t *translator) changed(e *ast.Changed) (string, error) {
	if len(e.Target.Parts) != 2 {
		return "", errorf(e.StartPos, "CHANGED target %q cannot be translated", e.Target.String())
	}

	result := false
	if t.change != nil && t.change.Property == e.Target.Parts[1] {
		if e.From == nil {
			result = !equalValue(t.change.Old, t.change.New)
		} else {
			result = equalValue(t.change.Old, e.From.Value) && equalValue(t.change.New, e.To.Value)
		}
	}
	return t.fresh(result), nil
}

func equalValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

var binaryOps = map[token.Type]string{
	token.EQ:    "==",
	token.NEQ:   "!=",
	token.LT:    "<",
	token.GT:    ">",
	token.LTE:   "<=",
	token.GTE:   ">=",
	token.PLUS:  "+",
	token.MINUS: "-",
	token.STAR:  "*",
	token.SLASH: "/",
}

// checkLabel rejects identifiers that could break out of the query text.
// Labels are interpolated; everything else is parameterized.
func checkLabel(label string, pos token.Position) error {
	if label == "" {
		return errorf(pos, "empty label")
	}
	for i, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return errorf(pos, "label %q contains unsafe characters", label)
			}
		default:
			return errorf(pos, "label %q contains unsafe characters", label)
		}
	}
	return nil
}
