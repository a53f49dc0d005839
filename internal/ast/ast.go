// Package ast defines the Abstract Syntax Tree for the RELIC rule language.
//
// The tree is a closed set of variants: expressions, statements, and
// top-level definitions each implement a marker interface, and every walker
// in the evaluator, translator, and engine dispatches exhaustively over the
// concrete types.
package ast

import (
	"strings"

	"github.com/relic-lang/relic/internal/token"
)

// Node is the interface implemented by all AST nodes.
type Node interface {
	node()
	Pos() token.Position
	End() token.Position
}

// Def is the interface implemented by top-level definitions
// (ACTION and RULE declarations).
type Def interface {
	Node
	def()
}

// Expr is the interface implemented by all expression nodes.
type Expr interface {
	Node
	expr()
}

// Stmt is the interface implemented by all statement nodes.
type Stmt interface {
	Node
	stmt()
}

// TriggerType enumerates the kinds of graph mutations a rule can react to.
type TriggerType string

const (
	TriggerUpdate TriggerType = "UPDATE"
	TriggerCreate TriggerType = "CREATE"
	TriggerDelete TriggerType = "DELETE"
	TriggerLink   TriggerType = "LINK"
	TriggerScan   TriggerType = "SCAN"
)

// Trigger is the declared shape of an event a rule reacts to.
// Property is set only for UPDATE triggers.
type Trigger struct {
	Type       TriggerType
	EntityType string
	Property   string
}

// Key returns the index key for this trigger: "UPDATE|<type>|<property>"
// for update triggers, "<kind>|<type>" otherwise.
func (t Trigger) Key() string {
	if t.Type == TriggerUpdate {
		return string(t.Type) + "|" + t.EntityType + "|" + t.Property
	}
	return string(t.Type) + "|" + t.EntityType
}

// Parameter is a declared action parameter.
type Parameter struct {
	Name     string
	Type     string
	Optional bool
}

// Precondition is a named boolean guard on an action. Preconditions are
// checked in declaration order; the first falsy one stops the action and
// its OnFailure message becomes the result error.
type Precondition struct {
	Name      string // optional label
	Condition Expr
	OnFailure string
	StartPos  token.Position
	EndPos    token.Position
}

func (p *Precondition) node()               {}
func (p *Precondition) Pos() token.Position { return p.StartPos }
func (p *Precondition) End() token.Position { return p.EndPos }

// ActionDef represents an ACTION declaration.
type ActionDef struct {
	EntityType    string
	Name          string
	Params        []Parameter
	Preconditions []*Precondition
	Effect        []Stmt // nil when the action has no EFFECT block
	StartPos      token.Position
	EndPos        token.Position
}

func (d *ActionDef) node()               {}
func (d *ActionDef) def()                {}
func (d *ActionDef) Pos() token.Position { return d.StartPos }
func (d *ActionDef) End() token.Position { return d.EndPos }

// QualifiedName returns "<EntityType>.<Name>".
func (d *ActionDef) QualifiedName() string {
	return d.EntityType + "." + d.Name
}

// RuleDef represents a RULE declaration.
type RuleDef struct {
	Name     string
	Priority int // default 0; higher fires first
	Trigger  Trigger
	Body     *ForClause
	StartPos token.Position
	EndPos   token.Position
}

func (d *RuleDef) node()               {}
func (d *RuleDef) def()                {}
func (d *RuleDef) Pos() token.Position { return d.StartPos }
func (d *RuleDef) End() token.Position { return d.EndPos }

// Statements

// ForClause binds a loop variable over entities of one type, optionally
// guarded by a WHERE expression, and runs its body once per matched entity.
type ForClause struct {
	Variable   string
	EntityType string
	Where      Expr // nil when unguarded
	Body       []Stmt
	StartPos   token.Position
	EndPos     token.Position
}

func (s *ForClause) node()               {}
func (s *ForClause) stmt()               {}
func (s *ForClause) Pos() token.Position { return s.StartPos }
func (s *ForClause) End() token.Position { return s.EndPos }

// SetStmt writes the value of an expression to a property of a bound entity.
// Target always has exactly two parts: a loop variable (or "this") and a
// property name.
type SetStmt struct {
	Target   *Path
	Value    Expr
	StartPos token.Position
	EndPos   token.Position
}

func (s *SetStmt) node()               {}
func (s *SetStmt) stmt()               {}
func (s *SetStmt) Pos() token.Position { return s.StartPos }
func (s *SetStmt) End() token.Position { return s.EndPos }

// TriggerArg is one named argument of a TRIGGER statement.
type TriggerArg struct {
	Name  string
	Value Expr
}

// TriggerStmt invokes an action on the entity bound to TargetVar.
type TriggerStmt struct {
	EntityType string
	ActionName string
	TargetVar  string
	Args       []TriggerArg // declaration order
	StartPos   token.Position
	EndPos     token.Position
}

func (s *TriggerStmt) node()               {}
func (s *TriggerStmt) stmt()               {}
func (s *TriggerStmt) Pos() token.Position { return s.StartPos }
func (s *TriggerStmt) End() token.Position { return s.EndPos }

// Expressions

// Literal is a string, number, boolean, or null literal.
// Value holds string, int64, float64, bool, or nil.
type Literal struct {
	Value    any
	StartPos token.Position
	EndPos   token.Position
}

func (e *Literal) node()               {}
func (e *Literal) expr()               {}
func (e *Literal) Pos() token.Position { return e.StartPos }
func (e *Literal) End() token.Position { return e.EndPos }

// Path is a dotted property access. The head is either the keyword "this"
// or a variable bound by an enclosing FOR clause.
type Path struct {
	Parts    []string
	StartPos token.Position
	EndPos   token.Position
}

func (e *Path) node()               {}
func (e *Path) expr()               {}
func (e *Path) Pos() token.Position { return e.StartPos }
func (e *Path) End() token.Position { return e.EndPos }

// Head returns the first path segment.
func (e *Path) Head() string {
	if len(e.Parts) == 0 {
		return ""
	}
	return e.Parts[0]
}

// String returns the dotted form of the path.
func (e *Path) String() string {
	return strings.Join(e.Parts, ".")
}

// Binary is a comparison or arithmetic expression.
// Op is one of == != < > <= >= + - * /.
type Binary struct {
	Op       token.Type
	Left     Expr
	Right    Expr
	StartPos token.Position
	EndPos   token.Position
}

func (e *Binary) node()               {}
func (e *Binary) expr()               {}
func (e *Binary) Pos() token.Position { return e.StartPos }
func (e *Binary) End() token.Position { return e.EndPos }

// Logical is a short-circuit AND or OR.
type Logical struct {
	Op       token.Type // token.AND or token.OR
	Left     Expr
	Right    Expr
	StartPos token.Position
	EndPos   token.Position
}

func (e *Logical) node()               {}
func (e *Logical) expr()               {}
func (e *Logical) Pos() token.Position { return e.StartPos }
func (e *Logical) End() token.Position { return e.EndPos }

// Not negates its operand.
type Not struct {
	Operand  Expr
	StartPos token.Position
	EndPos   token.Position
}

func (e *Not) node()               {}
func (e *Not) expr()               {}
func (e *Not) Pos() token.Position { return e.StartPos }
func (e *Not) End() token.Position { return e.EndPos }

// Membership tests a value against a list of literals: value IN [a, b, c].
type Membership struct {
	Value    Expr
	List     []*Literal
	StartPos token.Position
	EndPos   token.Position
}

func (e *Membership) node()               {}
func (e *Membership) expr()               {}
func (e *Membership) Pos() token.Position { return e.StartPos }
func (e *Membership) End() token.Position { return e.EndPos }

// NullCheck is IS NULL (Negated=false) or IS NOT NULL (Negated=true).
type NullCheck struct {
	Value    Expr
	Negated  bool
	StartPos token.Position
	EndPos   token.Position
}

func (e *NullCheck) node()               {}
func (e *NullCheck) expr()               {}
func (e *NullCheck) Pos() token.Position { return e.StartPos }
func (e *NullCheck) End() token.Position { return e.EndPos }

// Call invokes a built-in function.
type Call struct {
	Name     string
	Args     []Expr
	StartPos token.Position
	EndPos   token.Position
}

func (e *Call) node()               {}
func (e *Call) expr()               {}
func (e *Call) Pos() token.Position { return e.StartPos }
func (e *Call) End() token.Position { return e.EndPos }

// Exists tests for a relationship between two bound entities:
// head -[rel]-> tail, optionally narrowed by a WHERE expression.
// Both forms of the surface syntax (with and without the EXISTS keyword)
// produce this node.
type Exists struct {
	Head     string
	Rel      string
	Tail     string
	Where    Expr // nil unless the EXISTS form carried a WHERE
	StartPos token.Position
	EndPos   token.Position
}

func (e *Exists) node()               {}
func (e *Exists) expr()               {}
func (e *Exists) Pos() token.Position { return e.StartPos }
func (e *Exists) End() token.Position { return e.EndPos }

// Match tests a value against a regular expression literal.
type Match struct {
	Value    Expr
	Pattern  string
	StartPos token.Position
	EndPos   token.Position
}

func (e *Match) node()               {}
func (e *Match) expr()               {}
func (e *Match) Pos() token.Position { return e.StartPos }
func (e *Match) End() token.Position { return e.EndPos }

// Changed tests the old-value map of the current firing. With no FROM/TO
// clauses it is true when the property's old value differs from its new
// value; with clauses it requires old == From and new == To.
type Changed struct {
	Target   *Path
	From     *Literal // nil when no FROM/TO clause
	To       *Literal
	StartPos token.Position
	EndPos   token.Position
}

func (e *Changed) node()               {}
func (e *Changed) expr()               {}
func (e *Changed) Pos() token.Position { return e.StartPos }
func (e *Changed) End() token.Position { return e.EndPos }
