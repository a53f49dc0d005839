// Package graph defines the labeled property graph store the rule engine
// runs against, with an in-memory driver for development and tests, a
// Postgres driver for production, and the wire query dialect both speak.
package graph

import (
	"context"
	"fmt"
)

// Entity is one node of the property graph.
type Entity struct {
	ID    string
	Type  string
	Props map[string]any
}

// Clone returns a deep-enough copy: the property map is copied, property
// values are shared.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	props := make(map[string]any, len(e.Props))
	for k, v := range e.Props {
		props[k] = v
	}
	return &Entity{ID: e.ID, Type: e.Type, Props: props}
}

// Row is one result row of a query: variable name to matched entity.
type Row map[string]*Entity

// Driver executes wire-dialect queries against a graph store. Run handles
// both reads (MATCH ... RETURN) and writes (MATCH ... SET); write queries
// return the affected entities in their post-write state.
type Driver interface {
	Run(ctx context.Context, query string, params map[string]any) ([]Row, error)

	// Related reports whether a relationship of the given kind exists
	// from one entity to another.
	Related(ctx context.Context, fromID, rel, toID string) (bool, error)

	// Get fetches a single entity by type and id; it returns nil with no
	// error when the entity does not exist.
	Get(ctx context.Context, entityType, id string) (*Entity, error)

	Close() error
}

// IOError wraps a storage failure so callers can distinguish driver
// trouble from empty results.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("graph io: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
