// Package notification emits domain events for the external fan-out system
// (websocket/SMS/email dispatch lives elsewhere). Events fire after the
// transaction commits and are fire-and-forget from the lifecycle's
// perspective.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the lifecycle.
const (
	EventResultReleased = "test_result_released"
	EventResultAmended  = "test_result_amended"
)

// DomainEvent is the lightweight envelope consumed by the fan-out system.
type DomainEvent struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewDomainEvent builds an event with a fresh ID.
func NewDomainEvent(eventType string, payload map[string]any, now time.Time) DomainEvent {
	return DomainEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		Payload:   payload,
		Timestamp: now,
	}
}

// Notifier publishes domain events. Publish must not block on downstream
// consumers; failures are the publisher's to log, never the lifecycle's to
// propagate.
type Notifier interface {
	Publish(ctx context.Context, event DomainEvent) error
}

// MemoryNotifier records events in process, for tests and standalone runs.
type MemoryNotifier struct {
	mu     sync.Mutex
	events []DomainEvent
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

func (n *MemoryNotifier) Publish(_ context.Context, event DomainEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

// Events returns a snapshot of everything published so far.
func (n *MemoryNotifier) Events() []DomainEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]DomainEvent{}, n.events...)
}
