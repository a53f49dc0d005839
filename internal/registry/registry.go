// Package registry holds the parsed ACTION and RULE definitions the engine
// dispatches against. Both registries are safe for concurrent use; the
// watcher replaces definitions while the engine reads them.
package registry

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/relic-lang/relic/internal/ast"
	"github.com/relic-lang/relic/internal/parser"
)

// ErrNotFound reports a failed lookup with the kind and name that missed.
type ErrNotFound struct {
	Kind string // "action" or "rule"
	Name string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// ErrDuplicate reports a registration conflict.
type ErrDuplicate struct {
	Kind string
	Name string
}

func (e *ErrDuplicate) Error() string {
	return fmt.Sprintf("%s %q is already registered", e.Kind, e.Name)
}

// Actions is the action registry, keyed by qualified name
// ("EntityType.action").
type Actions struct {
	mu    sync.RWMutex
	byKey map[string]*ast.ActionDef
}

// NewActions creates an empty action registry.
func NewActions() *Actions {
	return &Actions{byKey: make(map[string]*ast.ActionDef)}
}

// Register adds an action; a second registration under the same qualified
// name fails.
func (r *Actions) Register(def *ast.ActionDef) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := def.QualifiedName()
	if _, exists := r.byKey[key]; exists {
		return &ErrDuplicate{Kind: "action", Name: key}
	}
	r.byKey[key] = def
	return nil
}

// Replace registers an action, overwriting any previous definition with
// the same qualified name.
func (r *Actions) Replace(def *ast.ActionDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[def.QualifiedName()] = def
}

// Lookup finds an action by entity type and name.
func (r *Actions) Lookup(entityType, name string) (*ast.ActionDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := entityType + "." + name
	def, ok := r.byKey[key]
	if !ok {
		return nil, &ErrNotFound{Kind: "action", Name: key}
	}
	return def, nil
}

// Unregister removes an action; removing an unknown name is a no-op.
func (r *Actions) Unregister(entityType, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byKey, entityType+"."+name)
}

// Clear removes every action.
func (r *Actions) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey = make(map[string]*ast.ActionDef)
}

// All returns every registered action in unspecified order.
func (r *Actions) All() []*ast.ActionDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ast.ActionDef, 0, len(r.byKey))
	for _, def := range r.byKey {
		out = append(out, def)
	}
	return out
}

// Count returns the number of registered actions.
func (r *Actions) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

// Rules is the rule registry: a name map plus a trigger index. Buckets
// keep rules ordered by priority, highest first; rules with equal
// priority stay in registration order.
type Rules struct {
	mu        sync.RWMutex
	byName    map[string]*ast.RuleDef
	byTrigger map[string][]*ast.RuleDef
	seq       map[string]int // registration order for stable sorting
	nextSeq   int
}

// NewRules creates an empty rule registry.
func NewRules() *Rules {
	return &Rules{
		byName:    make(map[string]*ast.RuleDef),
		byTrigger: make(map[string][]*ast.RuleDef),
		seq:       make(map[string]int),
	}
}

// Register adds a rule and indexes it by trigger key.
func (r *Rules) Register(def *ast.RuleDef) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[def.Name]; exists {
		return &ErrDuplicate{Kind: "rule", Name: def.Name}
	}
	r.insertLocked(def)
	return nil
}

// Replace registers a rule, displacing any previous rule with the same
// name (including its trigger index entry).
func (r *Rules) Replace(def *ast.RuleDef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, exists := r.byName[def.Name]; exists {
		r.removeLocked(old)
	}
	r.insertLocked(def)
}

func (r *Rules) insertLocked(def *ast.RuleDef) {
	r.byName[def.Name] = def
	r.seq[def.Name] = r.nextSeq
	r.nextSeq++

	key := def.Trigger.Key()
	bucket := append(r.byTrigger[key], def)
	sort.SliceStable(bucket, func(i, j int) bool {
		if bucket[i].Priority != bucket[j].Priority {
			return bucket[i].Priority > bucket[j].Priority
		}
		return r.seq[bucket[i].Name] < r.seq[bucket[j].Name]
	})
	r.byTrigger[key] = bucket
}

func (r *Rules) removeLocked(def *ast.RuleDef) {
	delete(r.byName, def.Name)
	delete(r.seq, def.Name)

	key := def.Trigger.Key()
	bucket := r.byTrigger[key]
	for i, candidate := range bucket {
		if candidate.Name == def.Name {
			r.byTrigger[key] = append(bucket[:i:i], bucket[i+1:]...)
			break
		}
	}
	if len(r.byTrigger[key]) == 0 {
		delete(r.byTrigger, key)
	}
}

// Lookup finds a rule by name.
func (r *Rules) Lookup(name string) (*ast.RuleDef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.byName[name]
	if !ok {
		return nil, &ErrNotFound{Kind: "rule", Name: name}
	}
	return def, nil
}

// ByTrigger returns the rules indexed under a trigger key, highest
// priority first. The returned slice is a copy.
func (r *Rules) ByTrigger(key string) []*ast.RuleDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket := r.byTrigger[key]
	out := make([]*ast.RuleDef, len(bucket))
	copy(out, bucket)
	return out
}

// Unregister removes a rule by name; removing an unknown name is a no-op.
func (r *Rules) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if def, exists := r.byName[name]; exists {
		r.removeLocked(def)
	}
}

// Clear removes every rule.
func (r *Rules) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName = make(map[string]*ast.RuleDef)
	r.byTrigger = make(map[string][]*ast.RuleDef)
	r.seq = make(map[string]int)
}

// All returns every registered rule in unspecified order.
func (r *Rules) All() []*ast.RuleDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ast.RuleDef, 0, len(r.byName))
	for _, def := range r.byName {
		out = append(out, def)
	}
	return out
}

// Count returns the number of registered rules.
func (r *Rules) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// LoadText parses DSL text and registers every definition into the two
// registries. Parse and registration errors surface synchronously; on a
// parse error nothing is registered.
func LoadText(actions *Actions, rules *Rules, input, filename string) error {
	defs, diags := parser.Parse(input, filename)
	if err := diags.Err(); err != nil {
		return err
	}

	for _, def := range defs {
		switch def := def.(type) {
		case *ast.ActionDef:
			if err := actions.Register(def); err != nil {
				return err
			}
		case *ast.RuleDef:
			if err := rules.Register(def); err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadFile parses a DSL file and registers its definitions.
func LoadFile(actions *Actions, rules *Rules, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return LoadText(actions, rules, string(data), path)
}
