package ast

import (
	"fmt"
	"strconv"
	"strings"
)

// Format renders definitions back to canonical DSL text. Reparsing the
// output yields a structurally equal tree: compound subexpressions are
// always parenthesized, so no precedence information is lost.
func Format(defs []Def) string {
	var b strings.Builder
	for i, d := range defs {
		if i > 0 {
			b.WriteString("\n")
		}
		switch def := d.(type) {
		case *ActionDef:
			formatAction(&b, def)
		case *RuleDef:
			formatRule(&b, def)
		}
	}
	return b.String()
}

func formatAction(b *strings.Builder, d *ActionDef) {
	fmt.Fprintf(b, "ACTION %s.%s", d.EntityType, d.Name)
	if len(d.Params) > 0 {
		b.WriteString("(")
		for i, p := range d.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%s: %s", p.Name, p.Type)
			if p.Optional {
				b.WriteString("?")
			}
		}
		b.WriteString(")")
	}
	b.WriteString(" {\n")
	for _, p := range d.Preconditions {
		b.WriteString("  PRECONDITION ")
		if p.Name != "" {
			b.WriteString(p.Name)
		}
		fmt.Fprintf(b, ": %s ON_FAILURE: %s\n", FormatExpr(p.Condition), strconv.Quote(p.OnFailure))
	}
	if d.Effect != nil {
		b.WriteString("  EFFECT {\n")
		for _, s := range d.Effect {
			formatStmt(b, s, "    ")
		}
		b.WriteString("  }\n")
	}
	b.WriteString("}\n")
}

func formatRule(b *strings.Builder, d *RuleDef) {
	fmt.Fprintf(b, "RULE %s", d.Name)
	if d.Priority != 0 {
		fmt.Fprintf(b, " PRIORITY %d", d.Priority)
	}
	b.WriteString(" {\n")
	b.WriteString("  ON ")
	b.WriteString(string(d.Trigger.Type))
	b.WriteString("(")
	b.WriteString(d.Trigger.EntityType)
	if d.Trigger.Property != "" {
		b.WriteString("." + d.Trigger.Property)
	}
	b.WriteString(")\n")
	formatStmt(b, d.Body, "  ")
	b.WriteString("}\n")
}

func formatStmt(b *strings.Builder, s Stmt, indent string) {
	switch stmt := s.(type) {
	case *ForClause:
		fmt.Fprintf(b, "%sFOR (%s:%s", indent, stmt.Variable, stmt.EntityType)
		if stmt.Where != nil {
			fmt.Fprintf(b, " WHERE %s", FormatExpr(stmt.Where))
		}
		b.WriteString(") {\n")
		for _, inner := range stmt.Body {
			formatStmt(b, inner, indent+"  ")
		}
		b.WriteString(indent + "}\n")
	case *SetStmt:
		fmt.Fprintf(b, "%sSET %s = %s;\n", indent, stmt.Target.String(), FormatExpr(stmt.Value))
	case *TriggerStmt:
		fmt.Fprintf(b, "%sTRIGGER %s.%s ON %s", indent, stmt.EntityType, stmt.ActionName, stmt.TargetVar)
		if len(stmt.Args) > 0 {
			b.WriteString(" WITH {")
			for i, a := range stmt.Args {
				if i > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(b, "%s: %s", a.Name, FormatExpr(a.Value))
			}
			b.WriteString("}")
		}
		b.WriteString(";\n")
	}
}

// FormatExpr renders a single expression in canonical form.
func FormatExpr(e Expr) string {
	switch expr := e.(type) {
	case *Literal:
		return formatLiteral(expr)
	case *Path:
		return expr.String()
	case *Binary:
		return fmt.Sprintf("%s %s %s", formatOperand(expr.Left), expr.Op, formatOperand(expr.Right))
	case *Logical:
		return fmt.Sprintf("%s %s %s", formatOperand(expr.Left), expr.Op, formatOperand(expr.Right))
	case *Not:
		return "NOT " + formatOperand(expr.Operand)
	case *Membership:
		items := make([]string, len(expr.List))
		for i, l := range expr.List {
			items[i] = formatLiteral(l)
		}
		return fmt.Sprintf("%s IN [%s]", formatOperand(expr.Value), strings.Join(items, ", "))
	case *NullCheck:
		if expr.Negated {
			return formatOperand(expr.Value) + " IS NOT NULL"
		}
		return formatOperand(expr.Value) + " IS NULL"
	case *Call:
		args := make([]string, len(expr.Args))
		for i, a := range expr.Args {
			args[i] = FormatExpr(a)
		}
		return fmt.Sprintf("%s(%s)", expr.Name, strings.Join(args, ", "))
	case *Exists:
		inner := fmt.Sprintf("%s -[%s]-> %s", expr.Head, expr.Rel, expr.Tail)
		if expr.Where != nil {
			inner += " WHERE " + FormatExpr(expr.Where)
		}
		return "EXISTS (" + inner + ")"
	case *Match:
		return fmt.Sprintf("%s MATCHES %s", formatOperand(expr.Value), strconv.Quote(expr.Pattern))
	case *Changed:
		out := expr.Target.String() + " CHANGED"
		if expr.From != nil {
			out += fmt.Sprintf(" FROM %s TO %s", formatLiteral(expr.From), formatLiteral(expr.To))
		}
		return out
	default:
		return ""
	}
}

// formatOperand parenthesizes compound operands so the canonical form
// round-trips without relying on precedence.
func formatOperand(e Expr) string {
	switch e.(type) {
	case *Binary, *Logical, *Not, *Membership, *NullCheck, *Match, *Changed, *Exists:
		return "(" + FormatExpr(e) + ")"
	default:
		return FormatExpr(e)
	}
}

func formatLiteral(l *Literal) string {
	switch v := l.Value.(type) {
	case nil:
		return "NULL"
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case string:
		return strconv.Quote(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
