package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/relic-lang/relic/internal/ast"
	"github.com/relic-lang/relic/internal/eval"
	"github.com/relic-lang/relic/internal/events"
	"github.com/relic-lang/relic/internal/graph"
	"github.com/relic-lang/relic/internal/registry"
	"github.com/relic-lang/relic/internal/translate"
)

// DefaultMaxDepth bounds cascade chains; firings past it are dropped with
// an overflow log entry.
const DefaultMaxDepth = 10

// Engine dispatches change events to rules. Each inbound event starts a
// cascade: rule writes produce synthetic events that re-enter dispatch on
// an internal FIFO queue until the depth bound cuts them off. Synthetic
// events also fan out on Outbound so hosts and the NATS bridge observe
// them without re-feeding the engine.
type Engine struct {
	Rules    *registry.Rules
	Actions  *registry.Actions
	Driver   graph.Driver
	Outbound *events.Emitter
	Logger   *slog.Logger
	Metrics  *Metrics
	MaxDepth int // 0 means DefaultMaxDepth
}

func (e *Engine) maxDepth() int {
	if e.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return e.MaxDepth
}

// Subscribe attaches the engine to an inbound emitter. Events are
// processed synchronously on the emitting goroutine.
func (e *Engine) Subscribe(inbound *events.Emitter) int {
	return inbound.Subscribe(events.SubscriberFunc(func(event events.ChangeEvent) {
		e.OnEvent(context.Background(), event)
	}))
}

// task is one queued firing of the cascade loop.
type task struct {
	event      events.ChangeEvent
	depth      int
	originRule string // rule whose write produced this event; "" for external
}

// OnEvent runs the full cascade for one top-level event. Rule failures
// are logged and do not abort sibling rules; a depth overflow drops the
// offending branch only.
func (e *Engine) OnEvent(ctx context.Context, event events.ChangeEvent) {
	e.Metrics.event()

	queue := []task{{event: event, depth: 1}}
	// One rule fires at most once per entity per top-level event, except
	// along its own self-cascade chain, which only the depth bound stops.
	visited := make(map[string]bool)
	deepest := 1

	for len(queue) > 0 {
		if ctx.Err() != nil {
			e.Logger.Warn("cascade interrupted", "error", ctx.Err())
			return
		}

		t := queue[0]
		queue = queue[1:]

		if t.depth > e.maxDepth() {
			e.Metrics.overflow()
			e.Logger.Warn("cascade overflow, dropping firing",
				"entity", t.event.EntityID, "trigger", t.event.TriggerKey(),
				"depth", t.depth, "origin_rule", t.originRule)
			continue
		}
		if t.depth > deepest {
			deepest = t.depth
		}

		for _, rule := range e.Rules.ByTrigger(t.event.TriggerKey()) {
			key := rule.Name + "|" + t.event.EntityID
			if visited[key] && t.originRule != rule.Name {
				continue
			}
			visited[key] = true

			started := time.Now()
			produced, err := e.fire(ctx, rule, t)
			e.Metrics.firingSeconds(time.Since(started).Seconds())

			if err != nil {
				e.Metrics.firing(rule.Name, "error")
				e.Logger.Error("rule firing failed",
					"rule", rule.Name, "entity", t.event.EntityID, "error", err)
				continue
			}
			e.Metrics.firing(rule.Name, "ok")

			for _, synthetic := range produced {
				e.Outbound.Emit(synthetic)
				queue = append(queue, task{
					event:      synthetic,
					depth:      t.depth + 1,
					originRule: rule.Name,
				})
			}
		}
	}

	e.Metrics.depthReached(deepest)
}

// fire runs one rule against one event and returns the synthetic events
// its writes produced.
func (e *Engine) fire(ctx context.Context, rule *ast.RuleDef, t task) ([]events.ChangeEvent, error) {
	entity, err := e.Driver.Get(ctx, t.event.EntityType, t.event.EntityID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		// The entity vanished between the event and the firing.
		return nil, nil
	}

	var change *translate.ChangeInfo
	oldValues := map[string]any{}
	if t.event.Kind == events.KindUpdate {
		change = &translate.ChangeInfo{
			EntityID: t.event.EntityID,
			Property: t.event.Property,
			Old:      t.event.OldValue,
			New:      t.event.NewValue,
		}
		oldValues[t.event.Property] = t.event.OldValue
	}

	clause := rule.Body
	if clause.EntityType != t.event.EntityType {
		return nil, fmt.Errorf("rule %s binds %s but the trigger delivers %s",
			rule.Name, clause.EntityType, t.event.EntityType)
	}

	// The outer loop variable is pinned to the triggering entity; the
	// guard decides whether the rule applies at all.
	pin := translate.Binding{Var: clause.Variable, EntityType: clause.EntityType, ID: entity.ID}
	q, err := translate.Translate(clause, []translate.Binding{pin}, change)
	if err != nil {
		return nil, err
	}
	rows, err := e.Driver.Run(ctx, q.Text, q.Params)
	if err != nil {
		return nil, err
	}

	f := &firing{
		engine:    e,
		rule:      rule,
		change:    change,
		oldValues: oldValues,
		now:       time.Now().UTC(),
	}

	for _, row := range rows {
		matched := row[clause.Variable]
		if matched == nil {
			continue
		}
		ec := eval.NewContext(ctx, matched)
		ec.Driver = e.Driver
		ec.OldValues = oldValues
		ec.Now = f.now
		ec.Bind(clause.Variable, matched)

		if err := f.runBody(ctx, ec, clause.Body); err != nil {
			return f.produced, err
		}
	}
	return f.produced, nil
}

// firing accumulates the synthetic events of one rule application. All
// NOW() calls inside the firing see the same frozen instant.
type firing struct {
	engine    *Engine
	rule      *ast.RuleDef
	change    *translate.ChangeInfo
	oldValues map[string]any
	now       time.Time
	produced  []events.ChangeEvent
}

func (f *firing) runBody(ctx context.Context, ec *eval.Context, stmts []ast.Stmt) error {
	for _, stmt := range stmts {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch stmt := stmt.(type) {
		case *ast.SetStmt:
			if err := f.runSet(ctx, ec, stmt); err != nil {
				return err
			}
		case *ast.ForClause:
			if err := f.runFor(ctx, ec, stmt); err != nil {
				return err
			}
		case *ast.TriggerStmt:
			if err := f.runTrigger(ctx, ec, stmt); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported rule statement %T", stmt)
		}
	}
	return nil
}

// runSet writes one property and records the synthetic event. The event
// is recorded even when the value is unchanged; downstream CHANGED
// predicates see old == new and stay false.
func (f *firing) runSet(ctx context.Context, ec *eval.Context, stmt *ast.SetStmt) error {
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
	if _, err := f.engine.Driver.Run(ctx, q.Text, q.Params); err != nil {
		return err
	}
	f.engine.Metrics.write()

	if target.Props == nil {
		target.Props = make(map[string]any)
	}
	target.Props[prop] = value

	f.produced = append(f.produced, events.NewUpdate(target.Type, target.ID, prop, old, value))
	return nil
}

// runFor drains a nested loop inline within the current firing.
func (f *firing) runFor(ctx context.Context, ec *eval.Context, clause *ast.ForClause) error {
	q, err := translate.Translate(clause, bindingsOf(ec), f.change)
	if err != nil {
		return err
	}
	rows, err := f.engine.Driver.Run(ctx, q.Text, q.Params)
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
		if err := f.runBody(ctx, inner, clause.Body); err != nil {
			return err
		}
	}
	return nil
}

// runTrigger invokes an action; the action's own writes join this
// firing's synthetic events so they cascade.
func (f *firing) runTrigger(ctx context.Context, ec *eval.Context, stmt *ast.TriggerStmt) error {
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

	exec := &Executor{
		Actions:  f.engine.Actions,
		Driver:   f.engine.Driver,
		Logger:   f.engine.Logger,
		Metrics:  f.engine.Metrics,
		MaxDepth: f.engine.maxDepth(),
		Emit: func(event events.ChangeEvent) {
			f.produced = append(f.produced, event)
		},
	}

	res, err := exec.Execute(ctx, stmt.EntityType, stmt.ActionName, target.ID, args)
	if err != nil {
		return err
	}
	if !res.Success {
		f.engine.Logger.Warn("rule-triggered action failed",
			"rule", f.rule.Name,
			"action", stmt.EntityType+"."+stmt.ActionName,
			"entity", target.ID, "error", res.Error)
	}
	return nil
}
