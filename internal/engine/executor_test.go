package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/relic-lang/relic/internal/events"
	"github.com/relic-lang/relic/internal/graph"
	"github.com/relic-lang/relic/internal/registry"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadDefs(t *testing.T, dsl string) (*registry.Actions, *registry.Rules) {
	t.Helper()
	actions := registry.NewActions()
	rules := registry.NewRules()
	if err := registry.LoadText(actions, rules, dsl, "test.rdsl"); err != nil {
		t.Fatalf("load: %v", err)
	}
	return actions, rules
}

func newExecutor(t *testing.T, dsl string, m *graph.Memory) *Executor {
	t.Helper()
	actions, _ := loadDefs(t, dsl)
	return &Executor{
		Actions: actions,
		Driver:  m,
		Logger:  newTestLogger(),
	}
}

func TestExecutePreconditionShortCircuit(t *testing.T) {
	// The second precondition would raise; it must never be evaluated
	// once the first one fails.
	dsl := `
ACTION PurchaseOrder.submit {
  PRECONDITION P1: this.status == "Draft" ON_FAILURE: "Must be draft"
  PRECONDITION P2: BOOM(this.amount) ON_FAILURE: "Amount must be positive"
}
`
	m := graph.NewMemory()
	m.Add(&graph.Entity{ID: "PO_9", Type: "PurchaseOrder",
		Props: map[string]any{"status": "Open", "amount": int64(100)}})

	res, err := newExecutor(t, dsl, m).Execute(context.Background(),
		"PurchaseOrder", "submit", "PO_9", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error != "Must be draft" {
		t.Errorf("error = %q, want the first failure message", res.Error)
	}
}

func TestExecuteEffectWrite(t *testing.T) {
	dsl := `
ACTION PurchaseOrder.cancel {
  PRECONDITION open: this.status == "Open" ON_FAILURE: "Not open"
  EFFECT {
    SET this.status = "Cancelled";
    SET this.cancelledAt = NOW();
  }
}
`
	m := graph.NewMemory()
	m.Add(&graph.Entity{ID: "PO_5", Type: "PurchaseOrder",
		Props: map[string]any{"status": "Open"}})

	res, err := newExecutor(t, dsl, m).Execute(context.Background(),
		"PurchaseOrder", "cancel", "PO_5", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("failed: %s", res.Error)
	}

	if res.Changes["status"] != "Cancelled" {
		t.Errorf("changes.status = %v", res.Changes["status"])
	}
	if _, ok := res.Changes["cancelledAt"]; !ok {
		t.Error("changes.cancelledAt missing")
	}
	if len(res.Changes) != 2 {
		t.Errorf("changes = %v, want exactly the written properties", res.Changes)
	}

	stored, _ := m.Get(context.Background(), "PurchaseOrder", "PO_5")
	if stored.Props["status"] != "Cancelled" {
		t.Errorf("stored status = %v", stored.Props["status"])
	}
	if stored.Props["cancelledAt"] == nil {
		t.Error("stored cancelledAt missing")
	}
}

func TestExecutePreconditionError(t *testing.T) {
	dsl := `
ACTION T.probe {
  PRECONDITION check: BOOM(this.x) ON_FAILURE: "never shown"
}
`
	m := graph.NewMemory()
	m.Add(&graph.Entity{ID: "E1", Type: "T", Props: map[string]any{}})

	res, err := newExecutor(t, dsl, m).Execute(context.Background(), "T", "probe", "E1", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error == "never shown" {
		t.Error("a raising precondition must not report the declared failure message")
	}
}

func TestExecuteParameterValidation(t *testing.T) {
	dsl := `
ACTION T.assign(owner: string, note: string?) {
  PRECONDITION : owner IS NOT NULL ON_FAILURE: "owner required"
  EFFECT {
    SET this.owner = owner;
  }
}
`
	m := graph.NewMemory()
	m.Add(&graph.Entity{ID: "E1", Type: "T", Props: map[string]any{}})
	x := newExecutor(t, dsl, m)

	res, err := x.Execute(context.Background(), "T", "assign",
		"E1", map[string]any{"owner": "ana", "bogus": 1})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Success || res.Error == "" {
		t.Errorf("unknown argument must fail, got %+v", res)
	}

	res, err = x.Execute(context.Background(), "T", "assign", "E1", map[string]any{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Success {
		t.Error("missing required argument must fail")
	}

	res, err = x.Execute(context.Background(), "T", "assign",
		"E1", map[string]any{"owner": "ana"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("optional argument may be omitted: %s", res.Error)
	}

	stored, _ := m.Get(context.Background(), "T", "E1")
	if stored.Props["owner"] != "ana" {
		t.Errorf("owner = %v", stored.Props["owner"])
	}
}

func TestExecuteActionNotFound(t *testing.T) {
	m := graph.NewMemory()
	x := &Executor{Actions: registry.NewActions(), Driver: m, Logger: newTestLogger()}

	res, err := x.Execute(context.Background(), "T", "missing", "E1", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Success {
		t.Error("expected failure for an unknown action")
	}
}

func TestExecuteEntityNotFound(t *testing.T) {
	dsl := `
ACTION T.touch {
  PRECONDITION : TRUE ON_FAILURE: "no"
}
`
	res, err := newExecutor(t, dsl, graph.NewMemory()).Execute(
		context.Background(), "T", "touch", "GHOST", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Success {
		t.Error("expected failure for a missing entity")
	}
}

func TestExecuteSkipsNoopEmission(t *testing.T) {
	dsl := `
ACTION T.mark {
  PRECONDITION : TRUE ON_FAILURE: "no"
  EFFECT {
    SET this.flag = TRUE;
    SET this.status = "Open";
  }
}
`
	m := graph.NewMemory()
	m.Add(&graph.Entity{ID: "E1", Type: "T",
		Props: map[string]any{"status": "Open", "flag": false}})

	var emitted []events.ChangeEvent
	x := newExecutor(t, dsl, m)
	x.Emit = func(e events.ChangeEvent) { emitted = append(emitted, e) }

	res, err := x.Execute(context.Background(), "T", "mark", "E1", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("failed: %s", res.Error)
	}

	// Both writes persist and both land in Changes, but the unchanged
	// status write announces nothing.
	if len(res.Changes) != 2 {
		t.Errorf("changes = %v", res.Changes)
	}
	if len(emitted) != 1 || emitted[0].Property != "flag" {
		t.Errorf("emitted = %+v, want a single flag event", emitted)
	}
}

func TestExecuteNestedForAndTrigger(t *testing.T) {
	dsl := `
ACTION Supplier.block {
  PRECONDITION active: this.status == "Active" ON_FAILURE: "Not active"
  EFFECT {
    SET this.status = "Blocked";
    FOR (po:PurchaseOrder WHERE po -[orderedFrom]-> this AND po.status == "Open") {
      TRIGGER PurchaseOrder.hold ON po;
    }
  }
}

ACTION PurchaseOrder.hold {
  PRECONDITION open: this.status == "Open" ON_FAILURE: "Not open"
  EFFECT {
    SET this.status = "Held";
  }
}
`
	m := graph.NewMemory()
	m.Add(&graph.Entity{ID: "BP_1", Type: "Supplier", Props: map[string]any{"status": "Active"}})
	m.Add(&graph.Entity{ID: "PO_1", Type: "PurchaseOrder", Props: map[string]any{"status": "Open"}})
	m.Add(&graph.Entity{ID: "PO_2", Type: "PurchaseOrder", Props: map[string]any{"status": "Closed"}})
	m.Relate("PO_1", "orderedFrom", "BP_1")
	m.Relate("PO_2", "orderedFrom", "BP_1")

	res, err := newExecutor(t, dsl, m).Execute(context.Background(),
		"Supplier", "block", "BP_1", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Success {
		t.Fatalf("failed: %s", res.Error)
	}

	po1, _ := m.Get(context.Background(), "PurchaseOrder", "PO_1")
	if po1.Props["status"] != "Held" {
		t.Errorf("PO_1 status = %v, want Held", po1.Props["status"])
	}
	po2, _ := m.Get(context.Background(), "PurchaseOrder", "PO_2")
	if po2.Props["status"] != "Closed" {
		t.Errorf("PO_2 status = %v, want untouched", po2.Props["status"])
	}
}

func TestExecuteTriggerDepthBound(t *testing.T) {
	// ping and pong trigger each other forever; the recursion bound must
	// cut the chain instead of overflowing the stack.
	dsl := `
ACTION T.ping {
  PRECONDITION : TRUE ON_FAILURE: "no"
  EFFECT {
    FOR (o:T WHERE o.id == this.id) {
      TRIGGER T.pong ON o;
    }
  }
}

ACTION T.pong {
  PRECONDITION : TRUE ON_FAILURE: "no"
  EFFECT {
    FOR (o:T WHERE o.id == this.id) {
      TRIGGER T.ping ON o;
    }
  }
}
`
	m := graph.NewMemory()
	m.Add(&graph.Entity{ID: "E1", Type: "T", Props: map[string]any{}})

	res, err := newExecutor(t, dsl, m).Execute(context.Background(), "T", "ping", "E1", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	// The outermost call still succeeds; the overflow is absorbed and
	// logged where the chain was cut.
	if !res.Success {
		t.Fatalf("failed: %s", res.Error)
	}
}
