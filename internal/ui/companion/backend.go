package companion

import (
	"context"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/plugin"
	"github.com/zjrosen/deskmate/internal/plugins/pet"
	"github.com/zjrosen/deskmate/internal/pubsub"
)

// Snapshot is what the view draws between events.
type Snapshot struct {
	Name     string
	Position event.Point
	Bounds   pet.Size
	Mood     string // mood word, "" when state tracking is off
	Status   string // markdown status block
	Plugins  []plugin.Status
}

// Backend is the runtime the companion view drives. Every method may be
// called from any goroutine.
type Backend interface {
	pubsub.Subscriber[event.Event]

	Snapshot(ctx context.Context) (Snapshot, error)
	// Say delivers text typed by the user.
	Say(ctx context.Context, text string) error
	// Trigger broadcasts an event produced by the view.
	Trigger(ctx context.Context, e event.Event) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
	Reload(ctx context.Context, id string) error
}
