package parser

import (
	"fmt"

	"github.com/relic-lang/relic/internal/ast"
	"github.com/relic-lang/relic/internal/diag"
)

// Check runs semantic validation over a syntactically clean parse unit:
// duplicate action and rule names, unbound variables in expressions and
// statements, and SET targets that do not name a bound entity.
func Check(defs []ast.Def, d *diag.Diagnostics) {
	actions := make(map[string]bool)
	rules := make(map[string]bool)

	for _, def := range defs {
		switch def := def.(type) {
		case *ast.ActionDef:
			name := def.QualifiedName()
			if actions[name] {
				d.AddErrorAt(def.StartPos, diag.ErrDuplicateAction,
					fmt.Sprintf("duplicate action %s", name))
				continue
			}
			actions[name] = true
			checkAction(def, d)
		case *ast.RuleDef:
			if rules[def.Name] {
				d.AddErrorAt(def.StartPos, diag.ErrDuplicateRule,
					fmt.Sprintf("duplicate rule %s", def.Name))
				continue
			}
			rules[def.Name] = true
			checkRule(def, d)
		}
	}
}

// checkAction validates variable references in an action. The implicit
// binding "this" names the entity the action runs on; parameter names are
// bound as plain variables.
func checkAction(def *ast.ActionDef, d *diag.Diagnostics) {
	bound := map[string]bool{"this": true}
	for _, p := range def.Params {
		bound[p.Name] = true
	}

	for _, pre := range def.Preconditions {
		checkExpr(pre.Condition, bound, d)
	}
	for _, stmt := range def.Effect {
		checkStmt(stmt, bound, d)
	}
}

func checkRule(def *ast.RuleDef, d *diag.Diagnostics) {
	checkStmt(def.Body, map[string]bool{}, d)
}

func checkStmt(stmt ast.Stmt, bound map[string]bool, d *diag.Diagnostics) {
	switch stmt := stmt.(type) {
	case *ast.ForClause:
		inner := make(map[string]bool, len(bound)+1)
		for k := range bound {
			inner[k] = true
		}
		inner[stmt.Variable] = true
		if stmt.Where != nil {
			checkExpr(stmt.Where, inner, d)
		}
		for _, s := range stmt.Body {
			checkStmt(s, inner, d)
		}
	case *ast.SetStmt:
		if !bound[stmt.Target.Head()] {
			d.AddErrorAt(stmt.Target.StartPos, diag.ErrUnboundVariable,
				fmt.Sprintf("unbound variable %q in SET target", stmt.Target.Head()))
		}
		checkExpr(stmt.Value, bound, d)
	case *ast.TriggerStmt:
		if !bound[stmt.TargetVar] {
			d.AddErrorAt(stmt.StartPos, diag.ErrUnboundVariable,
				fmt.Sprintf("unbound variable %q in TRIGGER target", stmt.TargetVar))
		}
		for _, arg := range stmt.Args {
			checkExpr(arg.Value, bound, d)
		}
	}
}

func checkExpr(expr ast.Expr, bound map[string]bool, d *diag.Diagnostics) {
	switch expr := expr.(type) {
	case *ast.Path:
		if !bound[expr.Head()] {
			d.AddErrorAt(expr.StartPos, diag.ErrUnboundVariable,
				fmt.Sprintf("unbound variable %q", expr.Head()))
		}
	case *ast.Binary:
		checkExpr(expr.Left, bound, d)
		checkExpr(expr.Right, bound, d)
	case *ast.Logical:
		checkExpr(expr.Left, bound, d)
		checkExpr(expr.Right, bound, d)
	case *ast.Not:
		checkExpr(expr.Operand, bound, d)
	case *ast.Membership:
		checkExpr(expr.Value, bound, d)
	case *ast.NullCheck:
		checkExpr(expr.Value, bound, d)
	case *ast.Call:
		for _, arg := range expr.Args {
			checkExpr(arg, bound, d)
		}
	case *ast.Exists:
		if !bound[expr.Head] {
			d.AddErrorAt(expr.StartPos, diag.ErrUnboundVariable,
				fmt.Sprintf("unbound variable %q in relationship pattern", expr.Head))
		}
		if !bound[expr.Tail] {
			d.AddErrorAt(expr.StartPos, diag.ErrUnboundVariable,
				fmt.Sprintf("unbound variable %q in relationship pattern", expr.Tail))
		}
		if expr.Where != nil {
			checkExpr(expr.Where, bound, d)
		}
	case *ast.Match:
		checkExpr(expr.Value, bound, d)
	case *ast.Changed:
		if !bound[expr.Target.Head()] {
			d.AddErrorAt(expr.Target.StartPos, diag.ErrUnboundVariable,
				fmt.Sprintf("unbound variable %q in CHANGED", expr.Target.Head()))
		}
	}
}
