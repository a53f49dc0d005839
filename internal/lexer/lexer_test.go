package lexer

import (
	"testing"

	"github.com/relic-lang/relic/internal/diag"
	"github.com/relic-lang/relic/internal/token"
)

func TestLexerBasicTokens(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []token.Type
	}{
		{
			name:     "empty input",
			input:    "",
			expected: []token.Type{token.EOF},
		},
		{
			name:  "declaration keywords",
			input: "ACTION RULE PRIORITY PRECONDITION ON_FAILURE EFFECT",
			expected: []token.Type{
				token.ACTION, token.RULE, token.PRIORITY, token.PRECONDITION,
				token.ON_FAILURE, token.EFFECT, token.EOF,
			},
		},
		{
			name:  "trigger keywords",
			input: "ON UPDATE CREATE DELETE LINK SCAN",
			expected: []token.Type{
				token.ON, token.UPDATE, token.CREATE, token.DELETE,
				token.LINK, token.SCAN, token.EOF,
			},
		},
		{
			name:  "predicate keywords",
			input: "AND OR NOT IN IS NULL MATCHES CHANGED FROM TO EXISTS TRUE FALSE",
			expected: []token.Type{
				token.AND, token.OR, token.NOT, token.IN, token.IS, token.NULL,
				token.MATCHES, token.CHANGED, token.FROM, token.TO,
				token.EXISTS, token.TRUE, token.FALSE, token.EOF,
			},
		},
		{
			name:  "operators",
			input: "== != < > <= >= -> = . : ?",
			expected: []token.Type{
				token.EQ, token.NEQ, token.LT, token.GT, token.LTE, token.GTE,
				token.ARROW, token.ASSIGN, token.DOT, token.COLON, token.QUESTION,
				token.EOF,
			},
		},
		{
			name:  "delimiters",
			input: "{ } ( ) [ ] , ;",
			expected: []token.Type{
				token.LBRACE, token.RBRACE, token.LPAREN, token.RPAREN,
				token.LBRACKET, token.RBRACKET, token.COMMA, token.SEMICOLON,
				token.EOF,
			},
		},
		{
			name:     "arithmetic",
			input:    "+ - * /",
			expected: []token.Type{token.PLUS, token.MINUS, token.STAR, token.SLASH, token.EOF},
		},
		{
			name:  "keywords are case sensitive",
			input: "action Update for",
			expected: []token.Type{
				token.IDENT, token.IDENT, token.IDENT, token.EOF,
			},
		},
		{
			name:  "arrow vs minus",
			input: "po -[orderedFrom]-> s x - 1",
			expected: []token.Type{
				token.IDENT, token.MINUS, token.LBRACKET, token.IDENT,
				token.RBRACKET, token.ARROW, token.IDENT,
				token.IDENT, token.MINUS, token.INT, token.EOF,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, diags := Tokenize(tt.input, "test.rdsl")

			if diags.HasErrors() {
				t.Errorf("unexpected errors: %v", diags.Errors())
			}
			if len(tokens) != len(tt.expected) {
				t.Fatalf("expected %d tokens, got %d", len(tt.expected), len(tokens))
			}
			for i, expected := range tt.expected {
				if tokens[i].Type != expected {
					t.Errorf("token[%d]: expected %v, got %v", i, expected, tokens[i].Type)
				}
			}
		})
	}
}

func TestLexerLiterals(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantType    token.Type
		wantLiteral string
	}{
		{"integer", "42", token.INT, "42"},
		{"float", "3.14", token.FLOAT, "3.14"},
		{"string", `"RiskLocked"`, token.STRING, "RiskLocked"},
		{"string with escapes", `"a\nb\"c"`, token.STRING, "a\nb\"c"},
		{"identifier", "purchaseOrder_2", token.IDENT, "purchaseOrder_2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, diags := Tokenize(tt.input, "test.rdsl")
			if diags.HasErrors() {
				t.Fatalf("unexpected errors: %v", diags.Errors())
			}
			if tokens[0].Type != tt.wantType {
				t.Errorf("type = %v, want %v", tokens[0].Type, tt.wantType)
			}
			if tokens[0].Literal != tt.wantLiteral {
				t.Errorf("literal = %q, want %q", tokens[0].Literal, tt.wantLiteral)
			}
		})
	}
}

func TestLexerComments(t *testing.T) {
	input := "SET // trailing note\nx"
	tokens, diags := Tokenize(input, "test.rdsl")
	if diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", diags.Errors())
	}

	want := []token.Type{token.SET, token.COMMENT, token.IDENT, token.EOF}
	if len(tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %d", len(want), len(tokens))
	}
	for i, w := range want {
		if tokens[i].Type != w {
			t.Errorf("token[%d] = %v, want %v", i, tokens[i].Type, w)
		}
	}
	if tokens[1].Literal != " trailing note" {
		t.Errorf("comment literal = %q", tokens[1].Literal)
	}
}

func TestLexerPositions(t *testing.T) {
	input := "RULE R {\n  ON UPDATE(T.p)\n}"
	tokens, _ := Tokenize(input, "rules.rdsl")

	if first := tokens[0]; first.Pos.Line != 1 || first.Pos.Column != 1 {
		t.Errorf("RULE position = %d:%d, want 1:1", first.Pos.Line, first.Pos.Column)
	}

	// ON sits on line 2, column 3.
	var on token.Token
	for _, tok := range tokens {
		if tok.Type == token.ON {
			on = tok
		}
	}
	if on.Pos.Line != 2 || on.Pos.Column != 3 {
		t.Errorf("ON position = %d:%d, want 2:3", on.Pos.Line, on.Pos.Column)
	}
	if brace := tokens[len(tokens)-2]; brace.Pos.Line != 3 || brace.Pos.Column != 1 {
		t.Errorf("closing brace position = %d:%d, want 3:1", brace.Pos.Line, brace.Pos.Column)
	}
	if on.Pos.Filename != "rules.rdsl" {
		t.Errorf("filename = %q", on.Pos.Filename)
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantCode string
	}{
		{"unexpected character", "SET x @ 1", diag.ErrUnexpectedChar},
		{"bare bang", "x ! y", diag.ErrUnexpectedChar},
		{"unterminated string", `SET x = "oops`, diag.ErrUnterminatedString},
		{"invalid escape", `"a\qb"`, diag.ErrInvalidEscape},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, diags := Tokenize(tt.input, "test.rdsl")
			if !diags.HasErrors() {
				t.Fatal("expected a lex error")
			}
			found := false
			for _, d := range diags.Errors() {
				if d.Code == tt.wantCode {
					found = true
				}
			}
			if !found {
				t.Errorf("missing code %s in %v", tt.wantCode, diags.Errors())
			}
		})
	}
}
