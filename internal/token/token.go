// Package token defines the token types for the RELIC rule language.
package token

// Type represents the type of a token.
type Type int

const (
	// Special tokens
	ILLEGAL Type = iota
	EOF
	COMMENT

	// Literals
	IDENT  // identifier (e.g., Supplier, status)
	INT    // integer literal
	FLOAT  // float literal
	STRING // string literal

	// Keywords - declarations
	ACTION
	RULE
	PRIORITY
	PRECONDITION
	ON_FAILURE
	EFFECT

	// Keywords - triggers
	ON
	UPDATE
	CREATE
	DELETE
	LINK
	SCAN

	// Keywords - statements
	FOR
	WHERE
	SET
	TRIGGER
	WITH

	// Keywords - predicates
	AND
	OR
	NOT
	IN
	IS
	NULL
	MATCHES
	CHANGED
	FROM
	TO
	EXISTS
	TRUE
	FALSE

	// Operators
	ASSIGN    // =
	EQ        // ==
	NEQ       // !=
	LT        // <
	GT        // >
	LTE       // <=
	GTE       // >=
	ARROW     // ->
	DOT       // .
	COLON     // :
	COMMA     // ,
	SEMICOLON // ;
	QUESTION  // ?
	LBRACE    // {
	RBRACE    // }
	LPAREN    // (
	RPAREN    // )
	LBRACKET  // [
	RBRACKET  // ]
	PLUS      // +
	MINUS     // -
	STAR      // *
	SLASH     // /
)

var tokenNames = map[Type]string{
	ILLEGAL: "ILLEGAL",
	EOF:     "EOF",
	COMMENT: "COMMENT",

	IDENT:  "IDENT",
	INT:    "INT",
	FLOAT:  "FLOAT",
	STRING: "STRING",

	ACTION:       "ACTION",
	RULE:         "RULE",
	PRIORITY:     "PRIORITY",
	PRECONDITION: "PRECONDITION",
	ON_FAILURE:   "ON_FAILURE",
	EFFECT:       "EFFECT",

	ON:     "ON",
	UPDATE: "UPDATE",
	CREATE: "CREATE",
	DELETE: "DELETE",
	LINK:   "LINK",
	SCAN:   "SCAN",

	FOR:     "FOR",
	WHERE:   "WHERE",
	SET:     "SET",
	TRIGGER: "TRIGGER",
	WITH:    "WITH",

	AND:     "AND",
	OR:      "OR",
	NOT:     "NOT",
	IN:      "IN",
	IS:      "IS",
	NULL:    "NULL",
	MATCHES: "MATCHES",
	CHANGED: "CHANGED",
	FROM:    "FROM",
	TO:      "TO",
	EXISTS:  "EXISTS",
	TRUE:    "TRUE",
	FALSE:   "FALSE",

	ASSIGN:    "=",
	EQ:        "==",
	NEQ:       "!=",
	LT:        "<",
	GT:        ">",
	LTE:       "<=",
	GTE:       ">=",
	ARROW:     "->",
	DOT:       ".",
	COLON:     ":",
	COMMA:     ",",
	SEMICOLON: ";",
	QUESTION:  "?",
	LBRACE:    "{",
	RBRACE:    "}",
	LPAREN:    "(",
	RPAREN:    ")",
	LBRACKET:  "[",
	RBRACKET:  "]",
	PLUS:      "+",
	MINUS:     "-",
	STAR:      "*",
	SLASH:     "/",
}

// String returns the string representation of the token type.
func (t Type) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// keywords maps keyword strings to their token types.
// RELIC keywords are uppercase by convention.
var keywords = map[string]Type{
	"ACTION":       ACTION,
	"RULE":         RULE,
	"PRIORITY":     PRIORITY,
	"PRECONDITION": PRECONDITION,
	"ON_FAILURE":   ON_FAILURE,
	"EFFECT":       EFFECT,

	"ON":     ON,
	"UPDATE": UPDATE,
	"CREATE": CREATE,
	"DELETE": DELETE,
	"LINK":   LINK,
	"SCAN":   SCAN,

	"FOR":     FOR,
	"WHERE":   WHERE,
	"SET":     SET,
	"TRIGGER": TRIGGER,
	"WITH":    WITH,

	"AND":     AND,
	"OR":      OR,
	"NOT":     NOT,
	"IN":      IN,
	"IS":      IS,
	"NULL":    NULL,
	"MATCHES": MATCHES,
	"CHANGED": CHANGED,
	"FROM":    FROM,
	"TO":      TO,
	"EXISTS":  EXISTS,
	"TRUE":    TRUE,
	"FALSE":   FALSE,
}

// LookupIdent returns the token type for an identifier.
// If the identifier is a keyword, it returns the keyword token type.
// Otherwise, it returns IDENT.
func LookupIdent(ident string) Type {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}

// IsKeyword returns true if the token type is a keyword.
func (t Type) IsKeyword() bool {
	return t >= ACTION && t <= FALSE
}

// IsOperator returns true if the token type is an operator.
func (t Type) IsOperator() bool {
	return t >= ASSIGN && t <= SLASH
}

// IsLiteral returns true if the token type is a literal.
func (t Type) IsLiteral() bool {
	return t >= IDENT && t <= STRING
}

// Position represents a position in the source text.
type Position struct {
	Filename string
	Offset   int // byte offset
	Line     int // 1-indexed
	Column   int // 1-indexed (in bytes)
}

// Token represents a lexical token.
type Token struct {
	Type    Type
	Literal string
	Pos     Position
	End     Position
}

// IsValid returns true if the token is not ILLEGAL or EOF.
func (t Token) IsValid() bool {
	return t.Type != ILLEGAL && t.Type != EOF
}
