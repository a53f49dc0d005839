// Package events defines graph change events and their fan-out. The
// engine subscribes to an Emitter for inbound changes; synthetic events
// produced by rule writes go out on a separate Emitter so observers see
// them without feeding them back into rule dispatch.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind is the mutation category of a change event.
type Kind string

const (
	KindUpdate Kind = "UPDATE"
	KindCreate Kind = "CREATE"
	KindDelete Kind = "DELETE"
	KindLink   Kind = "LINK"
	KindScan   Kind = "SCAN"
)

// ChangeEvent describes one observed property change (or lifecycle event)
// on a graph entity. Property, OldValue, and NewValue are meaningful for
// UPDATE events only.
type ChangeEvent struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Property   string    `json:"property,omitempty"`
	OldValue   any       `json:"old_value,omitempty"`
	NewValue   any       `json:"new_value,omitempty"`
	At         time.Time `json:"at"`
}

// NewUpdate builds an UPDATE event with a fresh id.
func NewUpdate(entityType, entityID, property string, oldValue, newValue any) ChangeEvent {
	return ChangeEvent{
		ID:         uuid.NewString(),
		Kind:       KindUpdate,
		EntityType: entityType,
		EntityID:   entityID,
		Property:   property,
		OldValue:   oldValue,
		NewValue:   newValue,
		At:         time.Now().UTC(),
	}
}

// NewLifecycle builds a CREATE, DELETE, LINK, or SCAN event.
func NewLifecycle(kind Kind, entityType, entityID string) ChangeEvent {
	return ChangeEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		EntityType: entityType,
		EntityID:   entityID,
		At:         time.Now().UTC(),
	}
}

// TriggerKey returns the rule index key this event dispatches under.
func (e ChangeEvent) TriggerKey() string {
	if e.Kind == KindUpdate {
		return string(e.Kind) + "|" + e.EntityType + "|" + e.Property
	}
	return string(e.Kind) + "|" + e.EntityType
}

// Subscriber receives change events.
type Subscriber interface {
	Deliver(event ChangeEvent)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(event ChangeEvent)

// Deliver calls the function.
func (f SubscriberFunc) Deliver(event ChangeEvent) { f(event) }

// Emitter fans events out to subscribers synchronously, in subscription
// order.
type Emitter struct {
	mu   sync.RWMutex
	subs []subscription
	next int
}

type subscription struct {
	id  int
	sub Subscriber
}

// NewEmitter creates an emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Subscribe registers a subscriber and returns a token for Unsubscribe.
func (e *Emitter) Subscribe(sub Subscriber) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.next++
	e.subs = append(e.subs, subscription{id: e.next, sub: sub})
	return e.next
}

// Unsubscribe removes a subscriber by token; unknown tokens are ignored.
func (e *Emitter) Unsubscribe(token int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, s := range e.subs {
		if s.id == token {
			e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
			return
		}
	}
}

// Emit delivers the event to every subscriber in subscription order. The
// call returns when all subscribers have run.
func (e *Emitter) Emit(event ChangeEvent) {
	e.mu.RLock()
	subs := make([]subscription, len(e.subs))
	copy(subs, e.subs)
	e.mu.RUnlock()

	for _, s := range subs {
		s.sub.Deliver(event)
	}
}

// Count returns the number of subscribers.
func (e *Emitter) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}
