// Package engine runs the reactive side of RELIC: action execution with
// precondition gating, rule dispatch on change events, and bounded
// cascades over the graph store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/relic-lang/relic/internal/ast"
	"github.com/relic-lang/relic/internal/eval"
	"github.com/relic-lang/relic/internal/events"
	"github.com/relic-lang/relic/internal/graph"
	"github.com/relic-lang/relic/internal/registry"
	"github.com/relic-lang/relic/internal/translate"
)

// Result is the outcome of one action execution. Changes maps every
// property the action wrote on its target entity to the written value.
type Result struct {
	Success bool
	Error   string
	Changes map[string]any
}

func failure(format string, args ...any) *Result {
	return &Result{Success: false, Error: fmt.Sprintf(format, args...), Changes: map[string]any{}}
}

// Executor resolves and runs actions: parameter validation, preconditions
// in declaration order, then effect statements. Emit, when set, receives
// a change event for every effective property write.
type Executor struct {
	Actions  *registry.Actions
	Driver   graph.Driver
	Logger   *slog.Logger
	Metrics  *Metrics
	Emit     func(events.ChangeEvent)
	MaxDepth int // trigger recursion bound; 0 means the default of 10
}

func (x *Executor) maxDepth() int {
	if x.MaxDepth <= 0 {
		return 10
	}
	return x.MaxDepth
}

// Execute runs an action against the entity with the given id. Execution
// failures come back in the Result; only infrastructure failures (context
// cancellation, storage errors while loading the target) return an error.
func (x *Executor) Execute(ctx context.Context, entityType, actionName, entityID string, args map[string]any) (*Result, error) {
	return x.execute(ctx, entityType, actionName, entityID, args, 1)
}

func (x *Executor) execute(ctx context.Context, entityType, actionName, entityID string, args map[string]any, depth int) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if depth > x.maxDepth() {
		x.Metrics.overflow()
		x.Logger.Warn("cascade overflow in action chain",
			"action", entityType+"."+actionName, "entity", entityID, "depth", depth)
		return failure("cascade overflow at depth %d", depth), nil
	}

	qualified := entityType + "." + actionName
	def, err := x.Actions.Lookup(entityType, actionName)
	if err != nil {
		var nf *registry.ErrNotFound
		if errors.As(err, &nf) {
			x.Metrics.action(qualified, "not_found")
			return failure("action %s not found", qualified), nil
		}
		return nil, err
	}

	if msg := validateArgs(def, args); msg != "" {
		x.Metrics.action(qualified, "bad_args")
		return failure("%s", msg), nil
	}

	entity, err := x.Driver.Get(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		x.Metrics.action(qualified, "no_entity")
		return failure("entity %s/%s not found", entityType, entityID), nil
	}

	ec := eval.NewContext(ctx, entity)
	ec.Driver = x.Driver
	ec.Params = args

	for _, pre := range def.Preconditions {
		ok, err := eval.EvalBool(ec, pre.Condition)
		if err != nil {
			x.Metrics.action(qualified, "precondition_error")
			x.Logger.Warn("precondition raised",
				"action", qualified, "precondition", pre.Name, "error", err)
			return failure("precondition %s: %v", pre.Name, err), nil
		}
		if !ok {
			x.Metrics.action(qualified, "precondition_failed")
			return &Result{Success: false, Error: pre.OnFailure, Changes: map[string]any{}}, nil
		}
	}

	result := &Result{Success: true, Changes: map[string]any{}}
	if err := x.runEffect(ctx, ec, def.Effect, result, depth); err != nil {
		x.Metrics.action(qualified, "effect_error")
		return failure("effect: %v", err), nil
	}

	x.Metrics.action(qualified, "success")
	return result, nil
}

// validateArgs rejects unknown argument names and missing required
// parameters. It returns an empty string when the arguments are valid.
func validateArgs(def *ast.ActionDef, args map[string]any) string {
	declared := make(map[string]ast.Parameter, len(def.Params))
	for _, p := range def.Params {
		declared[p.Name] = p
	}
	for name := range args {
		if _, ok := declared[name]; !ok {
			return fmt.Sprintf("unknown argument %q for %s", name, def.QualifiedName())
		}
	}
	for _, p := range def.Params {
		if p.Optional {
			continue
		}
		if _, ok := args[p.Name]; !ok {
			return fmt.Sprintf("missing required argument %q for %s", p.Name, def.QualifiedName())
		}
	}
	return ""
}

// runEffect executes effect statements sequentially. Writes go straight
// to the graph store; the local entity copies are updated so later
// statements observe earlier writes.
func (x *Executor) runEffect(ctx context.Context, ec *eval.Context, stmts []ast.Stmt, result *Result, depth int) error {
	for _, stmt := range stmts {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch stmt := stmt.(type) {
		case *ast.SetStmt:
			if err := x.runSet(ctx, ec, stmt, result); err != nil {
				return err
			}

		case *ast.ForClause:
			if err := x.runFor(ctx, ec, stmt, result, depth); err != nil {
				return err
			}

		case *ast.TriggerStmt:
			if err := x.runTrigger(ctx, ec, stmt, depth); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unsupported effect statement %T", stmt)
		}
	}
	return nil
}

func (x *Executor) runSet(ctx context.Context, ec *eval.Context, stmt *ast.SetStmt, result *Result) error {
	target := ec.Entity(stmt.Target.Head())
	if target == nil {
		return fmt.Errorf("SET target %q is not bound", stmt.Target.Head())
	}
	prop := stmt.Target.Parts[1]

	value, err := eval.Eval(ec, stmt.Value)
	if err != nil {
		return err
	}

	old := target.Props[prop]

	q, err := translate.TranslateWrite(target.Type, target.ID, prop, value)
	if err != nil {
		return err
	}
	if _, err := x.Driver.Run(ctx, q.Text, q.Params); err != nil {
		return err
	}
	x.Metrics.write()

	if target.Props == nil {
		target.Props = make(map[string]any)
	}
	target.Props[prop] = value

	// Changes reports writes on the action's own entity.
	if ec.This != nil && target.ID == ec.This.ID && target.Type == ec.This.Type {
		result.Changes[prop] = value
	}

	// Writing the value already present is persisted but not announced.
	if x.Emit != nil && !equalValues(old, value) {
		x.Emit(events.NewUpdate(target.Type, target.ID, prop, old, value))
	}
	return nil
}

func (x *Executor) runFor(ctx context.Context, ec *eval.Context, clause *ast.ForClause, result *Result, depth int) error {
	q, err := translate.Translate(clause, bindingsOf(ec), nil)
	if err != nil {
		return err
	}
	rows, err := x.Driver.Run(ctx, q.Text, q.Params)
	if err != nil {
		return err
	}

	for _, row := range rows {
		matched := row[clause.Variable]
		if matched == nil {
			continue
		}
		inner := ec.Fork()
		inner.Bind(clause.Variable, matched)
		if err := x.runEffect(ctx, inner, clause.Body, result, depth); err != nil {
			return err
		}
	}
	return nil
}

// runTrigger invokes another action. A failed triggered action is logged
// and does not abort the remaining statements of this effect.
func (x *Executor) runTrigger(ctx context.Context, ec *eval.Context, stmt *ast.TriggerStmt, depth int) error {
	target := ec.Entity(stmt.TargetVar)
	if target == nil {
		return fmt.Errorf("TRIGGER target %q is not bound", stmt.TargetVar)
	}

	args := make(map[string]any, len(stmt.Args))
	for _, arg := range stmt.Args {
		value, err := eval.Eval(ec, arg.Value)
		if err != nil {
			return err
		}
		args[arg.Name] = value
	}

	res, err := x.execute(ctx, stmt.EntityType, stmt.ActionName, target.ID, args, depth+1)
	if err != nil {
		return err
	}
	if !res.Success {
		x.Logger.Warn("triggered action failed",
			"action", stmt.EntityType+"."+stmt.ActionName,
			"entity", target.ID, "error", res.Error)
	}
	return nil
}

// bindingsOf pins every entity bound in the context, including "this",
// so a nested query can reference them.
func bindingsOf(ec *eval.Context) []translate.Binding {
	var out []translate.Binding
	if ec.This != nil {
		out = append(out, translate.Binding{Var: "this", EntityType: ec.This.Type, ID: ec.This.ID})
	}
	for name, entity := range ec.Vars {
		if entity == nil {
			continue
		}
		out = append(out, translate.Binding{Var: name, EntityType: entity.Type, ID: entity.ID})
	}
	return out
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
