package engine

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/relic-lang/relic/internal/ast"
	"github.com/relic-lang/relic/internal/parser"
	"github.com/relic-lang/relic/internal/registry"
)

// RuleWatcher watches DSL files and hot-reloads their definitions. A file
// that stops parsing keeps its previously loaded definitions; the parse
// failure is logged and the registries stay untouched.
type RuleWatcher struct {
	paths    []string
	actions  *registry.Actions
	rules    *registry.Rules
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	done     chan struct{}
	mu       sync.Mutex
	debounce time.Duration

	// loaded tracks which definitions each file contributed so a reload
	// can replace exactly those.
	loaded map[string]loadedDefs
}

type loadedDefs struct {
	actions []string // qualified names
	rules   []string
}

// NewRuleWatcher creates a watcher over the given DSL files.
func NewRuleWatcher(paths []string, actions *registry.Actions, rules *registry.Rules, logger *slog.Logger) *RuleWatcher {
	return &RuleWatcher{
		paths:    paths,
		actions:  actions,
		rules:    rules,
		logger:   logger,
		done:     make(chan struct{}),
		debounce: 100 * time.Millisecond,
		loaded:   make(map[string]loadedDefs),
	}
}

// LoadAll parses and registers every watched file. Called once at
// startup; a failure in any file aborts so a bad deployment is caught
// before the engine starts.
func (w *RuleWatcher) LoadAll() error {
	for _, path := range w.paths {
		if err := w.reload(path, true); err != nil {
			return err
		}
	}
	return nil
}

// Start begins watching the directories containing the DSL files.
func (w *RuleWatcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	dirs := make(map[string]bool)
	for _, path := range w.paths {
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return err
		}
	}

	w.logger.Info("watching rule files", "count", len(w.paths))
	go w.watchLoop()
	return nil
}

// Stop stops watching.
func (w *RuleWatcher) Stop() {
	w.mu.Lock()
	watcher := w.watcher
	w.watcher = nil
	w.mu.Unlock()

	if watcher != nil {
		close(w.done)
		watcher.Close()
	}
}

func (w *RuleWatcher) watchLoop() {
	var debounceTimer *time.Timer

	watched := make(map[string]bool, len(w.paths))
	for _, path := range w.paths {
		watched[filepath.Clean(path)] = true
	}

	w.mu.Lock()
	watcher := w.watcher
	w.mu.Unlock()
	if watcher == nil {
		return
	}

	for {
		select {
		case <-w.done:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !watched[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			path := filepath.Clean(event.Name)
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				if err := w.reload(path, false); err != nil {
					w.logger.Error("rule reload failed, keeping previous definitions",
						"path", path, "error", err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// reload parses one file and swaps its definitions into the registries.
// Parsing happens before any registry mutation, so a syntax error leaves
// the previous definitions live.
func (w *RuleWatcher) reload(path string, initial bool) error {
	defs, diags, err := parser.ParseFile(path)
	if err != nil {
		return err
	}
	if err := diags.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// Retire definitions that the new revision no longer declares.
	previous := w.loaded[path]
	next := loadedDefs{}
	declared := make(map[string]bool)

	for _, def := range defs {
		switch def := def.(type) {
		case *ast.ActionDef:
			w.actions.Replace(def)
			next.actions = append(next.actions, def.QualifiedName())
			declared["a:"+def.QualifiedName()] = true
		case *ast.RuleDef:
			w.rules.Replace(def)
			next.rules = append(next.rules, def.Name)
			declared["r:"+def.Name] = true
		}
	}
	for _, name := range previous.actions {
		if !declared["a:"+name] {
			entityType, action, _ := splitQualified(name)
			w.actions.Unregister(entityType, action)
		}
	}
	for _, name := range previous.rules {
		if !declared["r:"+name] {
			w.rules.Unregister(name)
		}
	}
	w.loaded[path] = next

	if !initial {
		w.logger.Info("rules reloaded",
			"path", path, "actions", len(next.actions), "rules", len(next.rules))
	}
	return nil
}

func splitQualified(name string) (entityType, action string, ok bool) {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return name[:i], name[i+1:], true
		}
	}
	return name, "", false
}
