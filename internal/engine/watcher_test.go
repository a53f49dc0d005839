package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/relic-lang/relic/internal/registry"
)

const watcherRevisionOne = `
ACTION T.close {
  PRECONDITION open: this.status == "Open" ON_FAILURE: "Not open"
  EFFECT {
    SET this.status = "Closed";
  }
}

RULE Audit {
  ON UPDATE(T.status)
  FOR (x:T) {
    SET x.audited = TRUE;
  }
}
`

const watcherRevisionTwo = `
ACTION T.close {
  PRECONDITION open: this.status == "Open" ON_FAILURE: "Not open"
  EFFECT {
    SET this.status = "Archived";
  }
}

RULE Notify {
  ON UPDATE(T.status)
  FOR (x:T) {
    SET x.notified = TRUE;
  }
}
`

func writeRuleFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newWatcherFixture(t *testing.T) (*RuleWatcher, *registry.Actions, *registry.Rules, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.rdsl")
	writeRuleFile(t, path, watcherRevisionOne)

	actions := registry.NewActions()
	rules := registry.NewRules()
	w := NewRuleWatcher([]string{path}, actions, rules, newTestLogger())
	if err := w.LoadAll(); err != nil {
		t.Fatalf("load: %v", err)
	}
	return w, actions, rules, path
}

func TestWatcherLoadAll(t *testing.T) {
	_, actions, rules, _ := newWatcherFixture(t)

	if _, err := actions.Lookup("T", "close"); err != nil {
		t.Errorf("T.close not registered: %v", err)
	}
	if _, err := rules.Lookup("Audit"); err != nil {
		t.Errorf("Audit not registered: %v", err)
	}
}

func TestWatcherLoadAllFailsOnBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.rdsl")
	writeRuleFile(t, path, "RULE Broken {")

	actions := registry.NewActions()
	rules := registry.NewRules()
	w := NewRuleWatcher([]string{path}, actions, rules, newTestLogger())

	if err := w.LoadAll(); err == nil {
		t.Fatal("expected startup failure for an unparseable file")
	}
	if actions.Count() != 0 || rules.Count() != 0 {
		t.Error("nothing may be registered from a failed load")
	}
}

func TestWatcherReloadSwapsDefinitions(t *testing.T) {
	w, actions, rules, path := newWatcherFixture(t)

	writeRuleFile(t, path, watcherRevisionTwo)
	if err := w.reload(path, false); err != nil {
		t.Fatalf("reload: %v", err)
	}

	def, err := actions.Lookup("T", "close")
	if err != nil {
		t.Fatalf("T.close missing after reload: %v", err)
	}
	if len(def.Effect) == 0 {
		t.Fatal("reloaded action has no effect")
	}

	if _, err := rules.Lookup("Notify"); err != nil {
		t.Errorf("Notify not registered: %v", err)
	}
	// Audit was dropped by the new revision.
	if _, err := rules.Lookup("Audit"); err == nil {
		t.Error("Audit should have been retired")
	}
	if rules.Count() != 1 {
		t.Errorf("rule count = %d, want 1", rules.Count())
	}
}

func TestWatcherReloadKeepsOldOnParseError(t *testing.T) {
	w, actions, rules, path := newWatcherFixture(t)

	writeRuleFile(t, path, "ACTION T.close { nonsense")
	if err := w.reload(path, false); err == nil {
		t.Fatal("expected reload error")
	}

	// Previous definitions stay live.
	if _, err := actions.Lookup("T", "close"); err != nil {
		t.Errorf("T.close lost after failed reload: %v", err)
	}
	if _, err := rules.Lookup("Audit"); err != nil {
		t.Errorf("Audit lost after failed reload: %v", err)
	}
}
