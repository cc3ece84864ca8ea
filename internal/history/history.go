// Package history exports lifecycle events of managed processes to an
// append-only destination for later inspection.
package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart       EventType = "start"
	EventStop        EventType = "stop"
	EventKill        EventType = "kill"
	EventSpawnFailed EventType = "spawn_failed"
	EventEvict       EventType = "evict"
	EventRotate      EventType = "rotate"
)

// Event is one lifecycle transition of a managed process.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	ID         string    `json:"id"`
	PID        int       `json:"pid"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Reader is implemented by sinks that can be queried back.
type Reader interface {
	// Recent returns up to limit events, newest first. An empty id matches all.
	Recent(ctx context.Context, id string, limit int) ([]Event, error)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Send(context.Context, Event) error { return nil }
