package app

import (
	"context"
	"time"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/plugins/pet"
	"github.com/zjrosen/deskmate/internal/plugins/petstate"
	"github.com/zjrosen/deskmate/internal/pubsub"
	"github.com/zjrosen/deskmate/internal/ui/companion"
	"github.com/zjrosen/deskmate/internal/worker"
)

// loopTimeout bounds how long the view waits on the loop.
const loopTimeout = 5 * time.Second

// Backend adapts an App to the companion view.
type Backend struct {
	app *App
}

var _ companion.Backend = (*Backend)(nil)

// Backend returns the companion view's handle on a.
func (a *App) Backend() *Backend {
	return &Backend{app: a}
}

func onLoop[T any](ctx context.Context, w *worker.Worker, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, loopTimeout)
	defer cancel()
	return worker.Await[T](ctx, w.Submit("ui."+name, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}))
}

func (b *Backend) Subscribe(ctx context.Context) <-chan pubsub.Event[event.Event] {
	return b.app.broker.Subscribe(ctx)
}

// Snapshot reads pet and plugin state on the loop.
func (b *Backend) Snapshot(ctx context.Context) (companion.Snapshot, error) {
	a := b.app
	return onLoop(ctx, a.Worker, "snapshot", func(context.Context) (companion.Snapshot, error) {
		var snap companion.Snapshot
		if p, ok := a.Plugins.Instance(pet.ID); ok {
			if p, ok := p.(*pet.Pet); ok {
				snap.Name = p.Name()
				snap.Position = p.Position()
				snap.Bounds = p.Bounds()
			}
		}
		if p, ok := a.Plugins.Instance(petstate.ID); ok {
			if t, ok := p.(*petstate.Tracker); ok {
				snap.Mood = petstate.MoodWord(t.State().Mood)
			}
		}
		status, err := a.Agent.Status()
		if err != nil {
			return snap, err
		}
		snap.Status = status
		snap.Plugins = a.Plugins.Status()
		return snap, nil
	})
}

// Say broadcasts text typed by the user.
func (b *Backend) Say(ctx context.Context, text string) error {
	return b.Trigger(ctx, event.UserInput{Content: text})
}

// Trigger broadcasts e on the loop.
func (b *Backend) Trigger(ctx context.Context, e event.Event) error {
	tasks := b.app.Tasks
	_, err := onLoop(ctx, b.app.Worker, "trigger", func(context.Context) (struct{}, error) {
		tasks.TriggerEvent(e)
		return struct{}{}, nil
	})
	return err
}

func (b *Backend) SetEnabled(ctx context.Context, id string, enabled bool) error {
	plugins := b.app.Plugins
	_, err := onLoop(ctx, b.app.Worker, "set_enabled", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, plugins.SetEnabled(ctx, id, enabled)
	})
	return err
}

func (b *Backend) Reload(ctx context.Context, id string) error {
	plugins := b.app.Plugins
	_, err := onLoop(ctx, b.app.Worker, "reload", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, plugins.Reload(ctx, id)
	})
	return err
}
