// Package eval implements the RELIC expression evaluator.
//
// Evaluation is null-tolerant: unresolved property paths yield nil rather
// than failing, comparisons against nil collapse to false, and only the
// IS NULL forms observe nil directly. Hard failures are reserved for
// unknown functions and unbound variables.
package eval

import (
	"context"
	"fmt"
	"time"

	"github.com/relic-lang/relic/internal/graph"
)

// ErrorKind classifies evaluator failures.
type ErrorKind int

const (
	UnknownFunction ErrorKind = iota
	UnknownVariable
	InvalidPattern
	InvalidArgument
	GraphIO
)

func (k ErrorKind) String() string {
	switch k {
	case UnknownFunction:
		return "unknown function"
	case UnknownVariable:
		return "unknown variable"
	case InvalidPattern:
		return "invalid pattern"
	case InvalidArgument:
		return "invalid argument"
	case GraphIO:
		return "graph io"
	default:
		return "eval error"
	}
}

// Error is an evaluator failure with a classification.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Context carries everything one expression evaluation can observe: the
// entity bound to "this", the previous values of the triggering change,
// named variable bindings, and a graph driver for relationship checks.
// Now is frozen when the enclosing firing starts, so every NOW() call in
// one firing returns the same instant.
type Context struct {
	This      *graph.Entity
	OldValues map[string]any
	Vars      map[string]*graph.Entity
	Params    map[string]any // scalar action arguments
	Driver    graph.Driver
	Now       time.Time

	ctx context.Context
}

// NewContext creates an evaluation context with the clock frozen at the
// current time.
func NewContext(ctx context.Context, this *graph.Entity) *Context {
	return &Context{
		This: this,
		Vars: make(map[string]*graph.Entity),
		Now:  time.Now().UTC(),
		ctx:  ctx,
	}
}

// Ctx returns the cancellation context for driver calls made during
// evaluation.
func (c *Context) Ctx() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Bind associates a variable name with an entity and returns the context
// for chaining.
func (c *Context) Bind(name string, e *graph.Entity) *Context {
	c.Vars[name] = e
	return c
}

// Fork returns a copy of the context with an independent variable map.
// The this-entity, old values, driver, and frozen clock are shared, so a
// nested scope sees the same firing while its bindings stay local.
func (c *Context) Fork() *Context {
	vars := make(map[string]*graph.Entity, len(c.Vars)+1)
	for k, v := range c.Vars {
		vars[k] = v
	}
	return &Context{
		This:      c.This,
		OldValues: c.OldValues,
		Vars:      vars,
		Params:    c.Params,
		Driver:    c.Driver,
		Now:       c.Now,
		ctx:       c.ctx,
	}
}

// Resolve looks up a dotted path. The head must be "this" or a bound
// variable; an unknown head is an UnknownVariable error. A known entity
// with a missing property resolves to nil.
func (c *Context) Resolve(parts []string) (any, error) {
	if len(parts) == 0 {
		return nil, nil
	}

	var entity *graph.Entity
	switch head := parts[0]; {
	case head == "this":
		entity = c.This
	default:
		bound, ok := c.Vars[head]
		if !ok {
			// Scalar action arguments resolve as bare names; deeper
			// segments descend into map values.
			value, isParam := c.Params[head]
			if !isParam {
				return nil, newError(UnknownVariable, "variable %q is not bound", head)
			}
			for _, part := range parts[1:] {
				m, ok := value.(map[string]any)
				if !ok {
					return nil, nil
				}
				value, ok = m[part]
				if !ok {
					return nil, nil
				}
			}
			return value, nil
		}
		entity = bound
	}

	if entity == nil {
		return nil, nil
	}
	if len(parts) == 1 {
		return entity, nil
	}

	// Only single-hop property access is supported; deeper segments
	// resolve through nested maps when the property holds one.
	value, ok := entity.Props[parts[1]]
	if !ok {
		if parts[1] == "id" {
			value = entity.ID
		} else {
			return nil, nil
		}
	}
	for _, part := range parts[2:] {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, nil
		}
		value, ok = m[part]
		if !ok {
			return nil, nil
		}
	}
	return value, nil
}

// Entity returns the entity bound to the given name, or nil. The name
// "this" resolves to the this-entity.
func (c *Context) Entity(name string) *graph.Entity {
	if name == "this" {
		return c.This
	}
	return c.Vars[name]
}
