// Package pubsub is the fan-out channel between the orchestration loop and
// everything that watches it from another goroutine: the companion view, the
// daemon's websocket stream and the log tail.
package pubsub

import (
	"context"
	"time"
)

// EventType classifies a published payload.
type EventType string

const (
	// Emitted carries an orchestration event that was just broadcast.
	Emitted EventType = "emitted"
	// LogLine carries one formatted log line.
	LogLine EventType = "log"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}
