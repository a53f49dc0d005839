// Package parser provides a handwritten recursive descent parser for the
// RELIC rule language. Expressions use Pratt parsing; declarations are
// parsed top-down. The parser never returns a partial tree: when any
// diagnostic of error severity is produced, the definition list is nil.
package parser

import (
	"fmt"
	"os"
	"strconv"

	"github.com/relic-lang/relic/internal/ast"
	"github.com/relic-lang/relic/internal/diag"
	"github.com/relic-lang/relic/internal/lexer"
	"github.com/relic-lang/relic/internal/token"
)

// Precedence levels for Pratt parsing.
const (
	_ int = iota
	LOWEST
	OR      // OR
	AND     // AND
	NOT     // NOT x
	EQUALS  // == != IN IS MATCHES CHANGED
	COMPARE // < > <= >=
	SUM     // + -
	PRODUCT // * /
	CALL    // f(...)
)

var precedences = map[token.Type]int{
	token.OR:      OR,
	token.AND:     AND,
	token.EQ:      EQUALS,
	token.NEQ:     EQUALS,
	token.IN:      EQUALS,
	token.IS:      EQUALS,
	token.MATCHES: EQUALS,
	token.CHANGED: EQUALS,
	token.LT:      COMPARE,
	token.GT:      COMPARE,
	token.LTE:     COMPARE,
	token.GTE:     COMPARE,
	token.PLUS:    SUM,
	token.MINUS:   SUM,
	token.STAR:    PRODUCT,
	token.SLASH:   PRODUCT,
}

// Parser parses RELIC source text into definitions.
type Parser struct {
	l         *lexer.Lexer
	curToken  token.Token
	peekToken token.Token
	diag      *diag.Diagnostics

	prefixParseFns map[token.Type]func() ast.Expr
	infixParseFns  map[token.Type]func(ast.Expr) ast.Expr
}

// New creates a new Parser for the given input.
func New(input, filename string) *Parser {
	l := lexer.New(input, filename)
	p := &Parser{
		l:    l,
		diag: diag.New(),
	}

	p.prefixParseFns = make(map[token.Type]func() ast.Expr)
	p.registerPrefix(token.IDENT, p.parsePathOrCall)
	p.registerPrefix(token.INT, p.parseIntLiteral)
	p.registerPrefix(token.FLOAT, p.parseFloatLiteral)
	p.registerPrefix(token.STRING, p.parseStringLiteral)
	p.registerPrefix(token.TRUE, p.parseBoolLiteral)
	p.registerPrefix(token.FALSE, p.parseBoolLiteral)
	p.registerPrefix(token.NULL, p.parseNullLiteral)
	p.registerPrefix(token.NOT, p.parseNotExpression)
	p.registerPrefix(token.EXISTS, p.parseExistsExpression)
	p.registerPrefix(token.LPAREN, p.parseGroupedExpression)
	p.registerPrefix(token.MINUS, p.parseNegativeNumber)

	p.infixParseFns = make(map[token.Type]func(ast.Expr) ast.Expr)
	p.registerInfix(token.EQ, p.parseBinaryExpression)
	p.registerInfix(token.NEQ, p.parseBinaryExpression)
	p.registerInfix(token.LT, p.parseBinaryExpression)
	p.registerInfix(token.GT, p.parseBinaryExpression)
	p.registerInfix(token.LTE, p.parseBinaryExpression)
	p.registerInfix(token.GTE, p.parseBinaryExpression)
	p.registerInfix(token.PLUS, p.parseBinaryExpression)
	p.registerInfix(token.STAR, p.parseBinaryExpression)
	p.registerInfix(token.SLASH, p.parseBinaryExpression)
	p.registerInfix(token.MINUS, p.parseMinusOrPattern)
	p.registerInfix(token.AND, p.parseLogicalExpression)
	p.registerInfix(token.OR, p.parseLogicalExpression)
	p.registerInfix(token.IN, p.parseMembership)
	p.registerInfix(token.IS, p.parseNullCheck)
	p.registerInfix(token.MATCHES, p.parseMatch)
	p.registerInfix(token.CHANGED, p.parseChanged)

	// Read two tokens to initialize curToken and peekToken
	p.nextToken()
	p.nextToken()

	return p
}

func (p *Parser) registerPrefix(t token.Type, fn func() ast.Expr) {
	p.prefixParseFns[t] = fn
}

func (p *Parser) registerInfix(t token.Type, fn func(ast.Expr) ast.Expr) {
	p.infixParseFns[t] = fn
}

// Diagnostics returns the diagnostics produced during parsing.
func (p *Parser) Diagnostics() *diag.Diagnostics {
	result := diag.New()
	result.Merge(p.l.Diagnostics())
	result.Merge(p.diag)
	return result
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()

	for p.peekToken.Type == token.COMMENT {
		p.peekToken = p.l.NextToken()
	}
}

func (p *Parser) curTokenIs(t token.Type) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t token.Type) bool {
	return p.peekToken.Type == t
}

func (p *Parser) expectPeek(t token.Type) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

func (p *Parser) peekError(t token.Type) {
	msg := fmt.Sprintf("expected %s, got %s", t, p.peekToken.Type)
	p.diag.AddErrorAt(p.peekToken.Pos, diag.ErrExpectedToken, msg)
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return LOWEST
}

// ParseUnit parses a complete parse unit (zero or more ACTION and RULE
// definitions).
func (p *Parser) ParseUnit() []ast.Def {
	var defs []ast.Def

	// Skip a leading comment token if the file starts with one.
	for p.curTokenIs(token.COMMENT) {
		p.nextToken()
	}

	for !p.curTokenIs(token.EOF) {
		var def ast.Def
		switch p.curToken.Type {
		case token.ACTION:
			def = p.parseActionDef()
		case token.RULE:
			def = p.parseRuleDef()
		default:
			p.diag.AddErrorAt(p.curToken.Pos, diag.ErrInvalidDecl,
				fmt.Sprintf("unexpected token %s at start of declaration", p.curToken.Type))
			p.synchronize()
			continue
		}
		if def != nil {
			defs = append(defs, def)
		} else {
			p.synchronize()
			continue
		}
		p.nextToken()
	}

	return defs
}

// synchronize advances until the next declaration boundary so one bad
// declaration does not cascade into spurious errors for the rest.
func (p *Parser) synchronize() {
	for !p.curTokenIs(token.EOF) {
		p.nextToken()
		if p.curTokenIs(token.ACTION) || p.curTokenIs(token.RULE) {
			return
		}
	}
}

// parseActionDef parses:
//
//	ACTION Type.name(params?) { precondition+ effect? }
func (p *Parser) parseActionDef() ast.Def {
	def := &ast.ActionDef{StartPos: p.curToken.Pos}

	if !p.expectPeek(token.IDENT) {
		return nil
	}
	def.EntityType = p.curToken.Literal

	if !p.expectPeek(token.DOT) {
		return nil
	}
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	def.Name = p.curToken.Literal

	if p.peekTokenIs(token.LPAREN) {
		p.nextToken()
		params, ok := p.parseParamList()
		if !ok {
			return nil
		}
		def.Params = params
	}

	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	p.nextToken()

	for !p.curTokenIs(token.RBRACE) && !p.curTokenIs(token.EOF) {
		switch p.curToken.Type {
		case token.PRECONDITION:
			pre := p.parsePrecondition()
			if pre == nil {
				return nil
			}
			def.Preconditions = append(def.Preconditions, pre)
		case token.EFFECT:
			stmts, ok := p.parseEffectBlock()
			if !ok {
				return nil
			}
			def.Effect = stmts
		default:
			p.diag.AddErrorAt(p.curToken.Pos, diag.ErrUnexpectedToken,
				fmt.Sprintf("expected PRECONDITION or EFFECT, got %s", p.curToken.Type))
			return nil
		}
		p.nextToken()
	}

	if len(def.Preconditions) == 0 {
		p.diag.AddErrorAt(def.StartPos, diag.ErrInvalidDecl,
			fmt.Sprintf("action %s has no preconditions", def.QualifiedName()))
		return nil
	}

	def.EndPos = p.curToken.End
	return def
}

// parseParamList parses (name: type?, ...). The current token is LPAREN.
func (p *Parser) parseParamList() ([]ast.Parameter, bool) {
	var params []ast.Parameter

	if p.peekTokenIs(token.RPAREN) {
		p.nextToken()
		return params, true
	}

	for {
		if !p.expectPeek(token.IDENT) {
			return nil, false
		}
		param := ast.Parameter{Name: p.curToken.Literal}

		if !p.expectPeek(token.COLON) {
			return nil, false
		}
		if !p.expectPeek(token.IDENT) {
			return nil, false
		}
		param.Type = p.curToken.Literal

		if p.peekTokenIs(token.QUESTION) {
			p.nextToken()
			param.Optional = true
		}

		params = append(params, param)

		if p.peekTokenIs(token.COMMA) {
			p.nextToken()
			continue
		}
		break
	}

	if !p.expectPeek(token.RPAREN) {
		return nil, false
	}
	return params, true
}

// parsePrecondition parses:
//
//	PRECONDITION label? : expr ON_FAILURE : "message"
func (p *Parser) parsePrecondition() *ast.Precondition {
	pre := &ast.Precondition{StartPos: p.curToken.Pos}

	// A label is an identifier directly followed by a colon. An identifier
	// followed by anything else starts the condition itself.
	p.nextToken()
	if p.curTokenIs(token.IDENT) && p.peekTokenIs(token.COLON) {
		pre.Name = p.curToken.Literal
		p.nextToken()
		p.nextToken()
	} else if p.curTokenIs(token.COLON) {
		p.nextToken()
	}

	pre.Condition = p.parseExpression(LOWEST)
	if pre.Condition == nil {
		return nil
	}

	if !p.expectPeek(token.ON_FAILURE) {
		return nil
	}
	if !p.expectPeek(token.COLON) {
		return nil
	}
	if !p.expectPeek(token.STRING) {
		return nil
	}
	pre.OnFailure = p.curToken.Literal

	pre.EndPos = p.curToken.End
	return pre
}

// parseEffectBlock parses EFFECT { stmt* }. The current token is EFFECT.
// An empty effect block yields an empty (non-nil) statement list.
func (p *Parser) parseEffectBlock() ([]ast.Stmt, bool) {
	if !p.expectPeek(token.LBRACE) {
		return nil, false
	}
	p.nextToken()

	stmts := []ast.Stmt{}
	for !p.curTokenIs(token.RBRACE) && !p.curTokenIs(token.EOF) {
		stmt := p.parseStatement()
		if stmt == nil {
			return nil, false
		}
		stmts = append(stmts, stmt)
		p.nextToken()
	}
	return stmts, true
}

// parseRuleDef parses:
//
//	RULE name PRIORITY n? { ON TYPE(Entity.prop?) for_clause }
func (p *Parser) parseRuleDef() ast.Def {
	def := &ast.RuleDef{StartPos: p.curToken.Pos}

	if !p.expectPeek(token.IDENT) {
		return nil
	}
	def.Name = p.curToken.Literal

	if p.peekTokenIs(token.PRIORITY) {
		p.nextToken()
		neg := false
		if p.peekTokenIs(token.MINUS) {
			p.nextToken()
			neg = true
		}
		if !p.expectPeek(token.INT) {
			return nil
		}
		n, err := strconv.Atoi(p.curToken.Literal)
		if err != nil {
			p.diag.AddErrorAt(p.curToken.Pos, diag.ErrInvalidNumber,
				fmt.Sprintf("invalid priority %q", p.curToken.Literal))
			return nil
		}
		if neg {
			n = -n
		}
		def.Priority = n
	}

	if !p.expectPeek(token.LBRACE) {
		return nil
	}

	if !p.expectPeek(token.ON) {
		return nil
	}
	trigger, ok := p.parseTrigger()
	if !ok {
		return nil
	}
	def.Trigger = trigger

	if !p.expectPeek(token.FOR) {
		return nil
	}
	body := p.parseForClause()
	if body == nil {
		return nil
	}
	def.Body = body

	if !p.expectPeek(token.RBRACE) {
		return nil
	}

	def.EndPos = p.curToken.End
	return def
}

// parseTrigger parses ON TYPE(Entity) or ON UPDATE(Entity.property).
// The current token is ON.
func (p *Parser) parseTrigger() (ast.Trigger, bool) {
	var trigger ast.Trigger

	switch p.peekToken.Type {
	case token.UPDATE:
		trigger.Type = ast.TriggerUpdate
	case token.CREATE:
		trigger.Type = ast.TriggerCreate
	case token.DELETE:
		trigger.Type = ast.TriggerDelete
	case token.LINK:
		trigger.Type = ast.TriggerLink
	case token.SCAN:
		trigger.Type = ast.TriggerScan
	default:
		p.diag.AddErrorAt(p.peekToken.Pos, diag.ErrInvalidTrigger,
			fmt.Sprintf("expected trigger kind (UPDATE, CREATE, DELETE, LINK, SCAN), got %s", p.peekToken.Type))
		return trigger, false
	}
	p.nextToken()

	if !p.expectPeek(token.LPAREN) {
		return trigger, false
	}
	if !p.expectPeek(token.IDENT) {
		return trigger, false
	}
	trigger.EntityType = p.curToken.Literal

	if p.peekTokenIs(token.DOT) {
		p.nextToken()
		if !p.expectPeek(token.IDENT) {
			return trigger, false
		}
		trigger.Property = p.curToken.Literal
	}

	if !p.expectPeek(token.RPAREN) {
		return trigger, false
	}

	if trigger.Type == ast.TriggerUpdate && trigger.Property == "" {
		p.diag.AddErrorAt(p.curToken.Pos, diag.ErrInvalidTrigger,
			"UPDATE trigger requires a property: ON UPDATE(Entity.property)")
		return trigger, false
	}
	if trigger.Type != ast.TriggerUpdate && trigger.Property != "" {
		p.diag.AddErrorAt(p.curToken.Pos, diag.ErrInvalidTrigger,
			fmt.Sprintf("%s trigger does not take a property", trigger.Type))
		return trigger, false
	}

	return trigger, true
}

// parseForClause parses:
//
//	FOR (var:Type WHERE expr?) { stmt* }
//
// The current token is FOR.
func (p *Parser) parseForClause() *ast.ForClause {
	clause := &ast.ForClause{StartPos: p.curToken.Pos}

	if !p.expectPeek(token.LPAREN) {
		return nil
	}
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	clause.Variable = p.curToken.Literal

	if !p.expectPeek(token.COLON) {
		return nil
	}
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	clause.EntityType = p.curToken.Literal

	if p.peekTokenIs(token.WHERE) {
		p.nextToken()
		p.nextToken()
		clause.Where = p.parseExpression(LOWEST)
		if clause.Where == nil {
			return nil
		}
	}

	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	p.nextToken()

	for !p.curTokenIs(token.RBRACE) && !p.curTokenIs(token.EOF) {
		stmt := p.parseStatement()
		if stmt == nil {
			return nil
		}
		clause.Body = append(clause.Body, stmt)
		p.nextToken()
	}

	clause.EndPos = p.curToken.End
	return clause
}

// parseStatement parses one statement: SET, TRIGGER, or a nested FOR.
func (p *Parser) parseStatement() ast.Stmt {
	switch p.curToken.Type {
	case token.SET:
		return p.parseSetStmt()
	case token.TRIGGER:
		return p.parseTriggerStmt()
	case token.FOR:
		return p.parseForClause()
	default:
		p.diag.AddErrorAt(p.curToken.Pos, diag.ErrInvalidStmt,
			fmt.Sprintf("expected SET, TRIGGER, or FOR, got %s", p.curToken.Type))
		return nil
	}
}

// parseSetStmt parses SET path = expr ;
func (p *Parser) parseSetStmt() ast.Stmt {
	stmt := &ast.SetStmt{StartPos: p.curToken.Pos}

	if !p.expectPeek(token.IDENT) {
		return nil
	}
	target := p.parsePath()
	if target == nil {
		return nil
	}
	stmt.Target = target

	if len(target.Parts) != 2 {
		p.diag.AddErrorAt(target.StartPos, diag.ErrInvalidSetPath,
			fmt.Sprintf("SET target must be <variable>.<property>, got %q", target.String()))
		return nil
	}

	if !p.expectPeek(token.ASSIGN) {
		return nil
	}
	p.nextToken()

	stmt.Value = p.parseExpression(LOWEST)
	if stmt.Value == nil {
		return nil
	}

	if !p.expectPeek(token.SEMICOLON) {
		return nil
	}

	stmt.EndPos = p.curToken.End
	return stmt
}

// parseTriggerStmt parses TRIGGER Type.action ON var (WITH {k: expr, ...})? ;
func (p *Parser) parseTriggerStmt() ast.Stmt {
	stmt := &ast.TriggerStmt{StartPos: p.curToken.Pos}

	if !p.expectPeek(token.IDENT) {
		return nil
	}
	stmt.EntityType = p.curToken.Literal

	if !p.expectPeek(token.DOT) {
		return nil
	}
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	stmt.ActionName = p.curToken.Literal

	if !p.expectPeek(token.ON) {
		return nil
	}
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	stmt.TargetVar = p.curToken.Literal

	if p.peekTokenIs(token.WITH) {
		p.nextToken()
		if !p.expectPeek(token.LBRACE) {
			return nil
		}
		for !p.peekTokenIs(token.RBRACE) {
			if !p.expectPeek(token.IDENT) {
				return nil
			}
			arg := ast.TriggerArg{Name: p.curToken.Literal}
			if !p.expectPeek(token.COLON) {
				return nil
			}
			p.nextToken()
			arg.Value = p.parseExpression(LOWEST)
			if arg.Value == nil {
				return nil
			}
			stmt.Args = append(stmt.Args, arg)
			if p.peekTokenIs(token.COMMA) {
				p.nextToken()
				continue
			}
			break
		}
		if !p.expectPeek(token.RBRACE) {
			return nil
		}
	}

	if !p.expectPeek(token.SEMICOLON) {
		return nil
	}

	stmt.EndPos = p.curToken.End
	return stmt
}

// parsePath parses a dotted path starting at the current IDENT token.
func (p *Parser) parsePath() *ast.Path {
	path := &ast.Path{
		Parts:    []string{p.curToken.Literal},
		StartPos: p.curToken.Pos,
	}
	for p.peekTokenIs(token.DOT) {
		p.nextToken()
		if !p.expectPeek(token.IDENT) {
			return nil
		}
		path.Parts = append(path.Parts, p.curToken.Literal)
	}
	path.EndPos = p.curToken.End
	return path
}

// Expression parsing

func (p *Parser) parseExpression(precedence int) ast.Expr {
	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.diag.AddErrorAt(p.curToken.Pos, diag.ErrExpectedExpr,
			fmt.Sprintf("unexpected %s in expression", p.curToken.Type))
		return nil
	}
	left := prefix()

	for left != nil && precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return left
		}
		p.nextToken()
		left = infix(left)
	}

	return left
}

func (p *Parser) parsePathOrCall() ast.Expr {
	if p.peekTokenIs(token.LPAREN) {
		return p.parseCall()
	}
	return p.parsePath()
}

func (p *Parser) parseCall() ast.Expr {
	call := &ast.Call{Name: p.curToken.Literal, StartPos: p.curToken.Pos}
	p.nextToken() // now on LPAREN

	if p.peekTokenIs(token.RPAREN) {
		p.nextToken()
		call.EndPos = p.curToken.End
		return call
	}

	for {
		p.nextToken()
		arg := p.parseExpression(LOWEST)
		if arg == nil {
			return nil
		}
		call.Args = append(call.Args, arg)
		if p.peekTokenIs(token.COMMA) {
			p.nextToken()
			continue
		}
		break
	}

	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	call.EndPos = p.curToken.End
	return call
}

func (p *Parser) parseIntLiteral() ast.Expr {
	n, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
	if err != nil {
		p.diag.AddErrorAt(p.curToken.Pos, diag.ErrInvalidNumber,
			fmt.Sprintf("invalid integer %q", p.curToken.Literal))
		return nil
	}
	return &ast.Literal{Value: n, StartPos: p.curToken.Pos, EndPos: p.curToken.End}
}

func (p *Parser) parseFloatLiteral() ast.Expr {
	f, err := strconv.ParseFloat(p.curToken.Literal, 64)
	if err != nil {
		p.diag.AddErrorAt(p.curToken.Pos, diag.ErrInvalidNumber,
			fmt.Sprintf("invalid number %q", p.curToken.Literal))
		return nil
	}
	return &ast.Literal{Value: f, StartPos: p.curToken.Pos, EndPos: p.curToken.End}
}

func (p *Parser) parseStringLiteral() ast.Expr {
	return &ast.Literal{Value: p.curToken.Literal, StartPos: p.curToken.Pos, EndPos: p.curToken.End}
}

func (p *Parser) parseBoolLiteral() ast.Expr {
	return &ast.Literal{
		Value:    p.curToken.Type == token.TRUE,
		StartPos: p.curToken.Pos,
		EndPos:   p.curToken.End,
	}
}

func (p *Parser) parseNullLiteral() ast.Expr {
	return &ast.Literal{Value: nil, StartPos: p.curToken.Pos, EndPos: p.curToken.End}
}

// parseNegativeNumber handles a leading minus on a numeric literal.
func (p *Parser) parseNegativeNumber() ast.Expr {
	start := p.curToken.Pos
	p.nextToken()

	switch p.curToken.Type {
	case token.INT:
		lit := p.parseIntLiteral()
		if lit == nil {
			return nil
		}
		l := lit.(*ast.Literal)
		l.Value = -l.Value.(int64)
		l.StartPos = start
		return l
	case token.FLOAT:
		lit := p.parseFloatLiteral()
		if lit == nil {
			return nil
		}
		l := lit.(*ast.Literal)
		l.Value = -l.Value.(float64)
		l.StartPos = start
		return l
	default:
		p.diag.AddErrorAt(p.curToken.Pos, diag.ErrExpectedExpr,
			fmt.Sprintf("expected number after '-', got %s", p.curToken.Type))
		return nil
	}
}

func (p *Parser) parseNotExpression() ast.Expr {
	expr := &ast.Not{StartPos: p.curToken.Pos}
	p.nextToken()
	expr.Operand = p.parseExpression(NOT)
	if expr.Operand == nil {
		return nil
	}
	expr.EndPos = expr.Operand.End()
	return expr
}

func (p *Parser) parseGroupedExpression() ast.Expr {
	p.nextToken()
	expr := p.parseExpression(LOWEST)
	if expr == nil {
		return nil
	}
	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	return expr
}

func (p *Parser) parseBinaryExpression(left ast.Expr) ast.Expr {
	expr := &ast.Binary{
		Op:       p.curToken.Type,
		Left:     left,
		StartPos: left.Pos(),
	}
	prec := precedences[expr.Op]
	p.nextToken()
	expr.Right = p.parseExpression(prec)
	if expr.Right == nil {
		return nil
	}
	expr.EndPos = expr.Right.End()
	return expr
}

func (p *Parser) parseLogicalExpression(left ast.Expr) ast.Expr {
	expr := &ast.Logical{
		Op:       p.curToken.Type,
		Left:     left,
		StartPos: left.Pos(),
	}
	prec := precedences[expr.Op]
	p.nextToken()
	expr.Right = p.parseExpression(prec)
	if expr.Right == nil {
		return nil
	}
	expr.EndPos = expr.Right.End()
	return expr
}

// parseMinusOrPattern disambiguates arithmetic subtraction from a
// relationship pattern (a -[rel]-> b). The current token is MINUS.
func (p *Parser) parseMinusOrPattern(left ast.Expr) ast.Expr {
	if p.peekTokenIs(token.LBRACKET) {
		return p.parsePattern(left, nil)
	}

	expr := &ast.Binary{
		Op:       token.MINUS,
		Left:     left,
		StartPos: left.Pos(),
	}
	p.nextToken()
	expr.Right = p.parseExpression(SUM)
	if expr.Right == nil {
		return nil
	}
	expr.EndPos = expr.Right.End()
	return expr
}

// parsePattern parses the tail of a relationship pattern after its head:
// -[rel]-> tail. The current token is MINUS and the peek is LBRACKET.
// existsPos is non-nil when the pattern appears inside an EXISTS(...) form.
func (p *Parser) parsePattern(head ast.Expr, existsPos *token.Position) ast.Expr {
	headPath, ok := head.(*ast.Path)
	if !ok || len(headPath.Parts) != 1 {
		p.diag.AddErrorAt(head.Pos(), diag.ErrExpectedIdent,
			"relationship pattern head must be a bound variable")
		return nil
	}

	expr := &ast.Exists{Head: headPath.Parts[0], StartPos: headPath.StartPos}
	if existsPos != nil {
		expr.StartPos = *existsPos
	}

	if !p.expectPeek(token.LBRACKET) {
		return nil
	}
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	expr.Rel = p.curToken.Literal

	if !p.expectPeek(token.RBRACKET) {
		return nil
	}
	if !p.expectPeek(token.ARROW) {
		return nil
	}
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	expr.Tail = p.curToken.Literal
	expr.EndPos = p.curToken.End

	return expr
}

// parseExistsExpression parses EXISTS (a -[rel]-> b WHERE expr?).
func (p *Parser) parseExistsExpression() ast.Expr {
	startPos := p.curToken.Pos

	if !p.expectPeek(token.LPAREN) {
		return nil
	}
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	head := &ast.Path{Parts: []string{p.curToken.Literal}, StartPos: p.curToken.Pos, EndPos: p.curToken.End}

	if !p.expectPeek(token.MINUS) {
		return nil
	}
	pattern := p.parsePattern(head, &startPos)
	if pattern == nil {
		return nil
	}
	exists := pattern.(*ast.Exists)

	if p.peekTokenIs(token.WHERE) {
		p.nextToken()
		p.nextToken()
		exists.Where = p.parseExpression(LOWEST)
		if exists.Where == nil {
			return nil
		}
	}

	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	exists.EndPos = p.curToken.End
	return exists
}

// parseMembership parses left IN [lit, lit, ...].
func (p *Parser) parseMembership(left ast.Expr) ast.Expr {
	expr := &ast.Membership{Value: left, StartPos: left.Pos()}

	if !p.expectPeek(token.LBRACKET) {
		return nil
	}

	for !p.peekTokenIs(token.RBRACKET) {
		p.nextToken()
		lit := p.parseListLiteral()
		if lit == nil {
			return nil
		}
		expr.List = append(expr.List, lit)
		if p.peekTokenIs(token.COMMA) {
			p.nextToken()
			continue
		}
		break
	}

	if !p.expectPeek(token.RBRACKET) {
		return nil
	}
	expr.EndPos = p.curToken.End
	return expr
}

// parseListLiteral parses a literal inside an IN list or CHANGED clause.
func (p *Parser) parseListLiteral() *ast.Literal {
	var e ast.Expr
	switch p.curToken.Type {
	case token.INT:
		e = p.parseIntLiteral()
	case token.FLOAT:
		e = p.parseFloatLiteral()
	case token.STRING:
		e = p.parseStringLiteral()
	case token.TRUE, token.FALSE:
		e = p.parseBoolLiteral()
	case token.NULL:
		e = p.parseNullLiteral()
	case token.MINUS:
		e = p.parseNegativeNumber()
	default:
		p.diag.AddErrorAt(p.curToken.Pos, diag.ErrExpectedExpr,
			fmt.Sprintf("expected literal, got %s", p.curToken.Type))
		return nil
	}
	if e == nil {
		return nil
	}
	return e.(*ast.Literal)
}

// parseNullCheck parses left IS NULL / left IS NOT NULL.
func (p *Parser) parseNullCheck(left ast.Expr) ast.Expr {
	expr := &ast.NullCheck{Value: left, StartPos: left.Pos()}

	if p.peekTokenIs(token.NOT) {
		p.nextToken()
		expr.Negated = true
	}
	if !p.expectPeek(token.NULL) {
		return nil
	}
	expr.EndPos = p.curToken.End
	return expr
}

// parseMatch parses left MATCHES "pattern".
func (p *Parser) parseMatch(left ast.Expr) ast.Expr {
	expr := &ast.Match{Value: left, StartPos: left.Pos()}

	if !p.expectPeek(token.STRING) {
		return nil
	}
	expr.Pattern = p.curToken.Literal
	expr.EndPos = p.curToken.End
	return expr
}

// parseChanged parses path CHANGED (FROM lit TO lit)?.
func (p *Parser) parseChanged(left ast.Expr) ast.Expr {
	target, ok := left.(*ast.Path)
	if !ok {
		p.diag.AddErrorAt(left.Pos(), diag.ErrExpectedIdent,
			"CHANGED requires a property path on its left")
		return nil
	}

	expr := &ast.Changed{Target: target, StartPos: target.StartPos, EndPos: p.curToken.End}

	if p.peekTokenIs(token.FROM) {
		p.nextToken()
		p.nextToken()
		from := p.parseListLiteral()
		if from == nil {
			return nil
		}
		expr.From = from

		if !p.expectPeek(token.TO) {
			return nil
		}
		p.nextToken()
		to := p.parseListLiteral()
		if to == nil {
			return nil
		}
		expr.To = to
		expr.EndPos = to.EndPos
	}

	return expr
}

// Parse parses DSL text into a list of definitions. On any error the
// definition list is nil and the diagnostics carry positions; no partial
// tree is returned. Semantic checks (duplicate names, unbound variables)
// run after a syntactically clean parse.
func Parse(input, filename string) ([]ast.Def, *diag.Diagnostics) {
	p := New(input, filename)
	defs := p.ParseUnit()
	diags := p.Diagnostics()

	if diags.HasErrors() {
		return nil, diags
	}

	Check(defs, diags)
	if diags.HasErrors() {
		return nil, diags
	}
	return defs, diags
}

// ParseFile parses a DSL file.
func ParseFile(path string) ([]ast.Def, *diag.Diagnostics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	defs, diags := Parse(string(data), path)
	return defs, diags, nil
}
