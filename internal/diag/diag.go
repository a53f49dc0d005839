// Package diag provides structured diagnostics for the RELIC front end.
// A diagnostic carries a source range, a severity, and a stable code so
// hosts can surface parse failures as "file:line:col: message".
package diag

import (
	"fmt"
	"strings"

	"github.com/relic-lang/relic/internal/token"
)

// Severity represents the severity of a diagnostic.
type Severity int

const (
	Error Severity = iota
	Warning
	Info
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Info:
		return "info"
	default:
		return "unknown"
	}
}

// Range represents a range in the source text.
type Range struct {
	Start token.Position
	End   token.Position
}

// Diagnostic represents a single lexer, parser, or semantic finding.
type Diagnostic struct {
	Range    Range
	Severity Severity
	Code     string // e.g., "E0201"
	Message  string
}

// String renders the diagnostic as filename:line:column: severity: message [code].
func (d Diagnostic) String() string {
	var b strings.Builder

	if d.Range.Start.Filename != "" {
		fmt.Fprintf(&b, "%s:", d.Range.Start.Filename)
	}
	fmt.Fprintf(&b, "%d:%d: ", d.Range.Start.Line, d.Range.Start.Column)
	fmt.Fprintf(&b, "%s: %s", d.Severity, d.Message)
	if d.Code != "" {
		fmt.Fprintf(&b, " [%s]", d.Code)
	}

	return b.String()
}

// Diagnostics is a collection of diagnostics.
type Diagnostics struct {
	items []Diagnostic
}

// New creates a new Diagnostics collection.
func New() *Diagnostics {
	return &Diagnostics{items: make([]Diagnostic, 0)}
}

// Add adds a diagnostic to the collection.
func (d *Diagnostics) Add(diag Diagnostic) {
	d.items = append(d.items, diag)
}

// AddError adds an error diagnostic.
func (d *Diagnostics) AddError(r Range, code, message string) {
	d.Add(Diagnostic{Range: r, Severity: Error, Code: code, Message: message})
}

// AddErrorAt adds an error diagnostic at a specific position.
func (d *Diagnostics) AddErrorAt(pos token.Position, code, message string) {
	d.AddError(Range{Start: pos, End: pos}, code, message)
}

// AddWarning adds a warning diagnostic.
func (d *Diagnostics) AddWarning(r Range, code, message string) {
	d.Add(Diagnostic{Range: r, Severity: Warning, Code: code, Message: message})
}

// All returns all diagnostics.
func (d *Diagnostics) All() []Diagnostic {
	return d.items
}

// Errors returns all error diagnostics.
func (d *Diagnostics) Errors() []Diagnostic {
	var errors []Diagnostic
	for _, diag := range d.items {
		if diag.Severity == Error {
			errors = append(errors, diag)
		}
	}
	return errors
}

// HasErrors returns true if there are any error diagnostics.
func (d *Diagnostics) HasErrors() bool {
	for _, diag := range d.items {
		if diag.Severity == Error {
			return true
		}
	}
	return false
}

// Count returns the number of diagnostics.
func (d *Diagnostics) Count() int {
	return len(d.items)
}

// Merge merges another Diagnostics collection into this one.
func (d *Diagnostics) Merge(other *Diagnostics) {
	d.items = append(d.items, other.items...)
}

// Err converts the collection into a single error, or nil if there are no
// error-severity diagnostics. The message joins every error on its own line.
func (d *Diagnostics) Err() error {
	errs := d.Errors()
	if len(errs) == 0 {
		return nil
	}
	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = e.String()
	}
	return fmt.Errorf("%s", strings.Join(lines, "\n"))
}

// Error codes for the RELIC front end.
// Format: E = Error, W = Warning; first two digits = category.
const (
	// Lexer errors (E01xx)
	ErrUnexpectedChar     = "E0101"
	ErrUnterminatedString = "E0102"
	ErrInvalidNumber      = "E0103"
	ErrInvalidEscape      = "E0104"

	// Parser errors (E02xx)
	ErrUnexpectedToken = "E0201"
	ErrExpectedToken   = "E0202"
	ErrExpectedIdent   = "E0203"
	ErrExpectedExpr    = "E0204"
	ErrInvalidDecl     = "E0205"
	ErrInvalidTrigger  = "E0206"
	ErrInvalidStmt     = "E0207"

	// Semantic errors (E03xx)
	ErrDuplicateAction = "E0301"
	ErrDuplicateRule   = "E0302"
	ErrUnboundVariable = "E0303"
	ErrInvalidSetPath  = "E0304"
)
