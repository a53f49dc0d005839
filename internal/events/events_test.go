package events

import (
	"testing"
)

func TestTriggerKey(t *testing.T) {
	tests := []struct {
		name  string
		event ChangeEvent
		want  string
	}{
		{
			name:  "update",
			event: NewUpdate("Supplier", "BP_1", "status", "Active", "Suspended"),
			want:  "UPDATE|Supplier|status",
		},
		{
			name:  "create",
			event: NewLifecycle(KindCreate, "Invoice", "INV_1"),
			want:  "CREATE|Invoice",
		},
		{
			name:  "scan",
			event: NewLifecycle(KindScan, "Contract", "C_1"),
			want:  "SCAN|Contract",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.TriggerKey(); got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
			if tt.event.ID == "" {
				t.Error("event must carry an id")
			}
		})
	}
}

func TestEmitterOrderAndUnsubscribe(t *testing.T) {
	e := NewEmitter()

	var order []string
	e.Subscribe(SubscriberFunc(func(ChangeEvent) { order = append(order, "first") }))
	second := e.Subscribe(SubscriberFunc(func(ChangeEvent) { order = append(order, "second") }))
	e.Subscribe(SubscriberFunc(func(ChangeEvent) { order = append(order, "third") }))

	e.Emit(NewLifecycle(KindCreate, "T", "1"))
	if len(order) != 3 || order[0] != "first" || order[1] != "second" || order[2] != "third" {
		t.Fatalf("delivery order = %v", order)
	}

	e.Unsubscribe(second)
	order = nil
	e.Emit(NewLifecycle(KindCreate, "T", "2"))
	if len(order) != 2 || order[0] != "first" || order[1] != "third" {
		t.Fatalf("delivery after unsubscribe = %v", order)
	}

	// Unknown tokens are ignored.
	e.Unsubscribe(9999)
	if e.Count() != 2 {
		t.Errorf("count = %d, want 2", e.Count())
	}
}

func TestEmitterNoSubscribers(t *testing.T) {
	e := NewEmitter()
	e.Emit(NewUpdate("T", "1", "p", 1, 2))
}
