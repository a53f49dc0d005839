package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/relic-lang/relic/internal/ast"
)

func ruleDef(name string, priority int, trigger ast.Trigger) *ast.RuleDef {
	return &ast.RuleDef{
		Name:     name,
		Priority: priority,
		Trigger:  trigger,
		Body:     &ast.ForClause{Variable: "x", EntityType: trigger.EntityType},
	}
}

func updateTrigger(entityType, property string) ast.Trigger {
	return ast.Trigger{Type: ast.TriggerUpdate, EntityType: entityType, Property: property}
}

func TestRulesPriorityOrdering(t *testing.T) {
	r := NewRules()
	trigger := updateTrigger("Supplier", "status")

	for _, tc := range []struct {
		name     string
		priority int
	}{
		{"low", 10},
		{"high", 100},
		{"mid_a", 50},
		{"mid_b", 50},
	} {
		if err := r.Register(ruleDef(tc.name, tc.priority, trigger)); err != nil {
			t.Fatalf("register %s: %v", tc.name, err)
		}
	}

	bucket := r.ByTrigger(trigger.Key())
	if len(bucket) != 4 {
		t.Fatalf("bucket size = %d, want 4", len(bucket))
	}

	// Highest priority first; equal priorities keep registration order.
	wantOrder := []string{"high", "mid_a", "mid_b", "low"}
	for i, want := range wantOrder {
		if bucket[i].Name != want {
			t.Errorf("bucket[%d] = %s, want %s", i, bucket[i].Name, want)
		}
	}
	for _, def := range bucket[1:] {
		if bucket[0].Priority < def.Priority {
			t.Errorf("first element priority %d below %d", bucket[0].Priority, def.Priority)
		}
	}
}

func TestRulesDuplicateName(t *testing.T) {
	r := NewRules()
	trigger := updateTrigger("Supplier", "status")

	if err := r.Register(ruleDef("R1", 0, trigger)); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := r.Register(ruleDef("R1", 10, trigger))
	var dup *ErrDuplicate
	if !errors.As(err, &dup) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestRulesReplace(t *testing.T) {
	r := NewRules()
	oldTrigger := updateTrigger("Supplier", "status")
	newTrigger := updateTrigger("Supplier", "rating")

	if err := r.Register(ruleDef("R1", 10, oldTrigger)); err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Replace(ruleDef("R1", 20, newTrigger))

	if got := r.ByTrigger(oldTrigger.Key()); len(got) != 0 {
		t.Errorf("old trigger bucket still has %d rules", len(got))
	}
	bucket := r.ByTrigger(newTrigger.Key())
	if len(bucket) != 1 || bucket[0].Priority != 20 {
		t.Errorf("new trigger bucket = %+v", bucket)
	}
}

func TestRulesUnregisterAndClear(t *testing.T) {
	r := NewRules()
	trigger := updateTrigger("T", "p")

	_ = r.Register(ruleDef("R1", 0, trigger))
	_ = r.Register(ruleDef("R2", 0, trigger))

	r.Unregister("R1")
	if _, err := r.Lookup("R1"); err == nil {
		t.Error("R1 should be gone")
	}
	if got := r.ByTrigger(trigger.Key()); len(got) != 1 || got[0].Name != "R2" {
		t.Errorf("bucket = %+v", got)
	}

	r.Unregister("does-not-exist")

	r.Clear()
	if r.Count() != 0 {
		t.Errorf("count after clear = %d", r.Count())
	}
}

func TestActionsRegistry(t *testing.T) {
	a := NewActions()
	def := &ast.ActionDef{EntityType: "PurchaseOrder", Name: "submit"}

	if err := a.Register(def); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := a.Lookup("PurchaseOrder", "submit")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != def {
		t.Error("lookup returned a different definition")
	}

	var dup *ErrDuplicate
	if err := a.Register(def); !errors.As(err, &dup) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	if _, err := a.Lookup("PurchaseOrder", "missing"); err == nil {
		t.Error("expected lookup failure")
	} else {
		var nf *ErrNotFound
		if !errors.As(err, &nf) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	}

	a.Unregister("PurchaseOrder", "submit")
	if a.Count() != 0 {
		t.Errorf("count = %d after unregister", a.Count())
	}
}

const sampleDSL = `
ACTION PurchaseOrder.cancel {
  PRECONDITION open: this.status == "Open" ON_FAILURE: "Not open"
  EFFECT {
    SET this.status = "Cancelled";
  }
}

RULE SupplierRisk PRIORITY 100 {
  ON UPDATE(Supplier.status)
  FOR (s:Supplier WHERE s.status IN ["Expired", "Suspended"]) {
    SET s.flagged = TRUE;
  }
}
`

func TestLoadText(t *testing.T) {
	actions := NewActions()
	rules := NewRules()

	if err := LoadText(actions, rules, sampleDSL, "sample.rdsl"); err != nil {
		t.Fatalf("load: %v", err)
	}

	if _, err := actions.Lookup("PurchaseOrder", "cancel"); err != nil {
		t.Errorf("action not registered: %v", err)
	}
	if _, err := rules.Lookup("SupplierRisk"); err != nil {
		t.Errorf("rule not registered: %v", err)
	}
	if got := rules.ByTrigger("UPDATE|Supplier|status"); len(got) != 1 {
		t.Errorf("trigger bucket = %d rules, want 1", len(got))
	}
}

func TestLoadTextParseErrorRegistersNothing(t *testing.T) {
	actions := NewActions()
	rules := NewRules()

	err := LoadText(actions, rules, "RULE Broken { ON UPDATE(T) }", "broken.rdsl")
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if actions.Count() != 0 || rules.Count() != 0 {
		t.Error("nothing should be registered on a parse error")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.rdsl")
	if err := os.WriteFile(path, []byte(sampleDSL), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	actions := NewActions()
	rules := NewRules()
	if err := LoadFile(actions, rules, path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if rules.Count() != 1 || actions.Count() != 1 {
		t.Errorf("counts = %d rules, %d actions", rules.Count(), actions.Count())
	}
}
