package testutil

import (
	"context"
	"sync"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/task"
)

// Emitter records what a task body emits without a loop behind it.
type Emitter struct {
	mu     sync.Mutex
	events []event.Event
	tasks  []task.Task
}

func (e *Emitter) TriggerEvent(ev event.Event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
}

func (e *Emitter) AddTask(t task.Task) {
	e.mu.Lock()
	e.tasks = append(e.tasks, t)
	e.mu.Unlock()
}

// Events returns the recorded events.
func (e *Emitter) Events() []event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]event.Event(nil), e.events...)
}

// Tasks returns the recorded tasks.
func (e *Emitter) Tasks() []task.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]task.Task(nil), e.tasks...)
}

// RunTask executes t on a goroutine with a cancellable context. The
// returned channel yields Execute's result.
func RunTask(t task.Task, emit task.Emitter) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- t.Execute(ctx, emit) }()
	return cancel, done
}
