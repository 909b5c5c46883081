// Package task owns the running set of asynchronous tasks and the event
// broadcast that reaches them.
//
// All Manager methods except RegisterCallback and RemoveCallback must be
// called on the orchestration loop. Task bodies run on their own goroutines
// and talk back to the loop only through the Emitter they are given.
package task

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zjrosen/deskmate/internal/event"
)

var (
	// ErrDuplicateCallback is the panic value when a callback key is
	// registered twice.
	ErrDuplicateCallback = errors.New("callback key already registered")
	// ErrTaskPanic wraps a panic recovered from a task body.
	ErrTaskPanic = errors.New("task panicked")
)

// Task is a cancellable unit of work.
type Task interface {
	// Execute runs the task until it finishes or ctx is cancelled. Returning
	// ctx.Err() after cancellation is a normal unwind, not a failure.
	Execute(ctx context.Context, emit Emitter) error

	// Merge is consulted only when a task with the same name is already
	// running. It returns the task to run under that name (this task, or a
	// combination) with a description of the change, or nil to reject this
	// submission and keep old running. It must be a pure function of its
	// receiver and old.
	Merge(old Task) (Task, string)

	// OnEvent sees every broadcast event while the task runs. Returning true
	// cancels the task. It runs on the loop and must return quickly.
	OnEvent(e event.Event) bool

	// Info describes current progress for the status block, or "".
	Info() string
}

// Named overrides the uniqueness key of a task. Tasks without it are keyed
// by their type name.
type Named interface {
	Name() string
}

// Key returns the name a task runs under.
func Key(t Task) string {
	if n, ok := t.(Named); ok {
		if name := n.Name(); name != "" {
			return name
		}
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", t), "*")
}

// Base supplies defaults: resubmission is rejected while running, events
// are ignored and there is no progress info.
type Base struct{}

func (Base) Merge(Task) (Task, string) { return nil, "" }
func (Base) OnEvent(event.Event) bool  { return false }
func (Base) Info() string              { return "" }

// Replace is a Merge helper for tasks where the newest submission always
// wins.
func Replace(next Task, msg string) (Task, string) {
	return next, msg
}

// Emitter is how code off the loop feeds the manager. Both methods are
// safe from any goroutine; delivery happens later on the loop.
type Emitter interface {
	TriggerEvent(e event.Event)
	AddTask(t Task)
}

// NewTask is broadcast after every Add, whether or not anything started.
type NewTask struct {
	event.Base
	Old     Task // running task with the same name, or nil
	New     Task // the submitted task
	Run     Task // the task now running under the name, or nil when rejected
	Message string
}

func (NewTask) Tags() []event.Tag { return []event.Tag{event.TagTask} }

// Started reports whether the submission started a task.
func (e NewTask) Started() bool { return e.Run != nil }

// Failed is broadcast when a task body returns an error other than
// cancellation, or panics.
type Failed struct {
	event.Base
	Name string
	Err  error
}

func (Failed) Tags() []event.Tag { return []event.Tag{event.TagTask} }
