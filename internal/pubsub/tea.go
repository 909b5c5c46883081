package pubsub

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// ListenCmd returns a bubbletea command that yields the next event from ch
// as a tea.Msg, or nil once ctx is done or ch is closed.
func ListenCmd[T any](ctx context.Context, ch <-chan Event[T]) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			return ev
		}
	}
}

// ContinuousListener keeps one subscription open across bubbletea updates.
// Call Listen again after handling each event to keep receiving.
type ContinuousListener[T any] struct {
	ctx context.Context
	ch  <-chan Event[T]
}

// NewContinuousListener subscribes to sub for the lifetime of ctx.
func NewContinuousListener[T any](ctx context.Context, sub Subscriber[T]) *ContinuousListener[T] {
	return &ContinuousListener[T]{
		ctx: ctx,
		ch:  sub.Subscribe(ctx),
	}
}

// Listen returns a command waiting for the next event.
func (l *ContinuousListener[T]) Listen() tea.Cmd {
	return ListenCmd(l.ctx, l.ch)
}

// Events exposes the raw subscription for consumers outside bubbletea.
func (l *ContinuousListener[T]) Events() <-chan Event[T] {
	return l.ch
}
