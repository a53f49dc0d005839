package graph

import (
	"fmt"
	"strings"
	"unicode"
)

// WireQuery is the structured form of one wire-dialect query. Reads carry
// Return; writes carry Set. The memory driver interprets this form
// directly and the Postgres driver compiles it to SQL.
type WireQuery struct {
	Matches []MatchClause
	Where   Predicate // nil when unguarded
	Return  string    // alias to return; empty for writes
	Set     *SetClause
}

// MatchClause binds an alias to an entity label.
type MatchClause struct {
	Alias string
	Label string
}

// SetClause writes one property of the matched entity.
type SetClause struct {
	Alias    string
	Property string
	Value    Operand
}

// Operand is a property reference, a parameter, or an arithmetic
// combination of the two.
type Operand interface{ operand() }

// PropOperand references alias.property.
type PropOperand struct {
	Alias    string
	Property string
}

// ParamOperand references $name in the parameter map.
type ParamOperand struct {
	Name string
}

// ArithOperand combines two operands with + - * or /.
type ArithOperand struct {
	Op          string
	Left, Right Operand
}

func (PropOperand) operand()  {}
func (ParamOperand) operand() {}
func (ArithOperand) operand() {}

// Predicate is one node of a parsed WHERE tree.
type Predicate interface{ pred() }

// CmpPred compares two operands: == != < > <= >=.
type CmpPred struct {
	Op          string
	Left, Right Operand
}

// InPred tests membership of an operand in a list parameter.
type InPred struct {
	Value Operand
	Param string
}

// NullPred is IS NULL / IS NOT NULL.
type NullPred struct {
	Value   Operand
	Negated bool
}

// RegexPred tests an operand against a regex parameter (=~).
type RegexPred struct {
	Value Operand
	Param string
}

// LogicalPred joins two predicates with AND or OR.
type LogicalPred struct {
	Op          string
	Left, Right Predicate
}

// NotPred negates a predicate.
type NotPred struct {
	Inner Predicate
}

// ExistsPred tests for a relationship between two aliases.
type ExistsPred struct {
	Head, Rel, Tail string
	Where           Predicate
}

// ParamPred is a bare boolean parameter used as a predicate.
type ParamPred struct {
	Param string
}

// PropPred is a bare property reference used as a predicate; it tests the
// property's truth value.
type PropPred struct {
	Prop PropOperand
}

func (CmpPred) pred()     {}
func (InPred) pred()      {}
func (NullPred) pred()    {}
func (RegexPred) pred()   {}
func (LogicalPred) pred() {}
func (NotPred) pred()     {}
func (ExistsPred) pred()  {}
func (ParamPred) pred()   {}
func (PropPred) pred()    {}

// ParseWire parses a wire-dialect query string into its structured form.
func ParseWire(query string) (*WireQuery, error) {
	s := &wireScanner{input: query}
	s.next()
	return s.parseQuery()
}

type wireScanner struct {
	input string
	pos   int
	tok   string // current token; "" at end
}

func (s *wireScanner) errf(format string, args ...any) error {
	return fmt.Errorf("wire query: "+format, args...)
}

// next advances to the following token. Tokens are identifiers, $params,
// numbers inside params never occur (all literals are parameters), and
// the punctuation of the dialect.
func (s *wireScanner) next() {
	for s.pos < len(s.input) && s.input[s.pos] == ' ' {
		s.pos++
	}
	if s.pos >= len(s.input) {
		s.tok = ""
		return
	}

	start := s.pos
	c := s.input[s.pos]
	switch {
	case isWireIdent(rune(c)) || c == '$':
		s.pos++
		for s.pos < len(s.input) && isWireIdent(rune(s.input[s.pos])) {
			s.pos++
		}
		s.tok = s.input[start:s.pos]
	case c == '-':
		// "-[" opens a relationship, "->" closes it; a bare "-" is the
		// arithmetic operator.
		if s.pos+1 < len(s.input) && s.input[s.pos+1] == '[' {
			s.pos++
			s.tok = "-"
		} else if s.pos+1 < len(s.input) && s.input[s.pos+1] == '>' {
			s.pos += 2
			s.tok = "->"
		} else {
			s.pos++
			s.tok = "-"
		}
	case strings.ContainsRune("()[]:.,", rune(c)):
		s.pos++
		s.tok = string(c)
	default:
		// multi-char operators
		for _, op := range []string{"==", "!=", "<=", ">=", "=~", "<", ">", "=", "+", "*", "/"} {
			if strings.HasPrefix(s.input[s.pos:], op) {
				s.pos += len(op)
				s.tok = op
				return
			}
		}
		s.pos++
		s.tok = string(c)
	}
}

func isWireIdent(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func (s *wireScanner) expect(tok string) error {
	if s.tok != tok {
		return s.errf("expected %q, got %q", tok, s.tok)
	}
	s.next()
	return nil
}

func (s *wireScanner) ident() (string, error) {
	if s.tok == "" || !unicode.IsLetter(rune(s.tok[0])) && s.tok[0] != '_' {
		return "", s.errf("expected identifier, got %q", s.tok)
	}
	id := s.tok
	s.next()
	return id, nil
}

func (s *wireScanner) param() (string, error) {
	if !strings.HasPrefix(s.tok, "$") {
		return "", s.errf("expected parameter, got %q", s.tok)
	}
	name := s.tok[1:]
	s.next()
	return name, nil
}

func (s *wireScanner) parseQuery() (*WireQuery, error) {
	q := &WireQuery{}

	for s.tok == "MATCH" {
		s.next()
		if err := s.expect("("); err != nil {
			return nil, err
		}
		alias, err := s.ident()
		if err != nil {
			return nil, err
		}
		if err := s.expect(":"); err != nil {
			return nil, err
		}
		label, err := s.ident()
		if err != nil {
			return nil, err
		}
		if err := s.expect(")"); err != nil {
			return nil, err
		}
		q.Matches = append(q.Matches, MatchClause{Alias: alias, Label: label})
	}
	if len(q.Matches) == 0 {
		return nil, s.errf("query must start with MATCH")
	}

	if s.tok == "WHERE" {
		s.next()
		where, err := s.parseOr()
		if err != nil {
			return nil, err
		}
		q.Where = where
	}

	switch s.tok {
	case "RETURN":
		s.next()
		alias, err := s.ident()
		if err != nil {
			return nil, err
		}
		q.Return = alias
	case "SET":
		s.next()
		alias, err := s.ident()
		if err != nil {
			return nil, err
		}
		if err := s.expect("."); err != nil {
			return nil, err
		}
		prop, err := s.ident()
		if err != nil {
			return nil, err
		}
		if err := s.expect("="); err != nil {
			return nil, err
		}
		value, err := s.parseOperand()
		if err != nil {
			return nil, err
		}
		q.Set = &SetClause{Alias: alias, Property: prop, Value: value}
	default:
		return nil, s.errf("expected RETURN or SET, got %q", s.tok)
	}

	if s.tok != "" {
		return nil, s.errf("trailing input at %q", s.tok)
	}
	return q, nil
}

func (s *wireScanner) parseOr() (Predicate, error) {
	left, err := s.parseAnd()
	if err != nil {
		return nil, err
	}
	for s.tok == "OR" {
		s.next()
		right, err := s.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &LogicalPred{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (s *wireScanner) parseAnd() (Predicate, error) {
	left, err := s.parseUnary()
	if err != nil {
		return nil, err
	}
	for s.tok == "AND" {
		s.next()
		right, err := s.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &LogicalPred{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (s *wireScanner) parseUnary() (Predicate, error) {
	switch {
	case s.tok == "NOT":
		s.next()
		if err := s.expect("("); err != nil {
			return nil, err
		}
		inner, err := s.parseOr()
		if err != nil {
			return nil, err
		}
		if err := s.expect(")"); err != nil {
			return nil, err
		}
		return &NotPred{Inner: inner}, nil

	case s.tok == "EXISTS":
		return s.parseExists()

	case s.tok == "(":
		// A parenthesis opens either a grouped arithmetic operand, as in
		// (a.x - a.y) * a.z > $p, or a grouped predicate. Try the
		// comparison form first and rewind on failure; the scanner is a
		// plain value, so a copy restores it.
		saved := *s
		if pred, err := s.parseComparison(); err == nil {
			return pred, nil
		}
		*s = saved
		s.next()
		inner, err := s.parseOr()
		if err != nil {
			return nil, err
		}
		if err := s.expect(")"); err != nil {
			return nil, err
		}
		return inner, nil

	default:
		return s.parseComparison()
	}
}

// parseExists parses EXISTS((a)-[:rel]->(b) WHERE ...).
func (s *wireScanner) parseExists() (Predicate, error) {
	s.next() // EXISTS
	if err := s.expect("("); err != nil {
		return nil, err
	}
	if err := s.expect("("); err != nil {
		return nil, err
	}
	head, err := s.ident()
	if err != nil {
		return nil, err
	}
	if err := s.expect(")"); err != nil {
		return nil, err
	}
	if err := s.expect("-"); err != nil {
		return nil, err
	}
	if err := s.expect("["); err != nil {
		return nil, err
	}
	if err := s.expect(":"); err != nil {
		return nil, err
	}
	rel, err := s.ident()
	if err != nil {
		return nil, err
	}
	if err := s.expect("]"); err != nil {
		return nil, err
	}
	if err := s.expect("->"); err != nil {
		return nil, err
	}
	if err := s.expect("("); err != nil {
		return nil, err
	}
	tail, err := s.ident()
	if err != nil {
		return nil, err
	}
	if err := s.expect(")"); err != nil {
		return nil, err
	}

	pred := &ExistsPred{Head: head, Rel: rel, Tail: tail}
	if s.tok == "WHERE" {
		s.next()
		where, err := s.parseOr()
		if err != nil {
			return nil, err
		}
		pred.Where = where
	}

	if err := s.expect(")"); err != nil {
		return nil, err
	}
	return pred, nil
}

func (s *wireScanner) parseComparison() (Predicate, error) {
	left, err := s.parseOperand()
	if err != nil {
		return nil, err
	}

	switch s.tok {
	case "==", "!=", "<", ">", "<=", ">=", "=":
		// "=" only appears in identity constraints (alias.id = $id_x);
		// it compares like "==".
		op := s.tok
		if op == "=" {
			op = "=="
		}
		s.next()
		right, err := s.parseOperand()
		if err != nil {
			return nil, err
		}
		return &CmpPred{Op: op, Left: left, Right: right}, nil

	case "IN":
		s.next()
		param, err := s.param()
		if err != nil {
			return nil, err
		}
		return &InPred{Value: left, Param: param}, nil

	case "IS":
		s.next()
		negated := false
		if s.tok == "NOT" {
			negated = true
			s.next()
		}
		if err := s.expect("NULL"); err != nil {
			return nil, err
		}
		return &NullPred{Value: left, Negated: negated}, nil

	case "=~":
		s.next()
		param, err := s.param()
		if err != nil {
			return nil, err
		}
		return &RegexPred{Value: left, Param: param}, nil

	default:
		// A bare parameter is a boolean predicate (folded CHANGED); a
		// bare property tests its truth value.
		if p, ok := left.(ParamOperand); ok {
			return &ParamPred{Param: p.Name}, nil
		}
		if p, ok := left.(PropOperand); ok {
			return &PropPred{Prop: p}, nil
		}
		return nil, s.errf("expected comparison operator, got %q", s.tok)
	}
}

// parseOperand parses a property reference, a parameter, a parenthesized
// arithmetic group, or a flat arithmetic chain of those.
func (s *wireScanner) parseOperand() (Operand, error) {
	left, err := s.parseOperandTerm()
	if err != nil {
		return nil, err
	}
	for s.tok == "+" || s.tok == "-" || s.tok == "*" || s.tok == "/" {
		op := s.tok
		s.next()
		right, err := s.parseOperandTerm()
		if err != nil {
			return nil, err
		}
		left = &ArithOperand{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (s *wireScanner) parseOperandTerm() (Operand, error) {
	switch {
	case strings.HasPrefix(s.tok, "$"):
		name, err := s.param()
		if err != nil {
			return nil, err
		}
		return ParamOperand{Name: name}, nil

	case s.tok == "(":
		s.next()
		inner, err := s.parseOperand()
		if err != nil {
			return nil, err
		}
		if err := s.expect(")"); err != nil {
			return nil, err
		}
		return inner, nil

	default:
		alias, err := s.ident()
		if err != nil {
			return nil, err
		}
		if err := s.expect("."); err != nil {
			return nil, err
		}
		prop, err := s.ident()
		if err != nil {
			return nil, err
		}
		return PropOperand{Alias: alias, Property: prop}, nil
	}
}
