// Package drag lets the user pick the pet up and put it down elsewhere.
package drag

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/plugin"
	"github.com/zjrosen/deskmate/internal/plugins/pet"
	"github.com/zjrosen/deskmate/internal/task"
)

const (
	ID       = "drag"
	TaskName = "drag"
)

// Start is sent by the UI when the user grabs the pet.
type Start struct {
	event.Base
	Pos event.Point
}

func (Start) Tags() []event.Tag { return []event.Tag{event.TagMove, event.TagUser} }

func (Start) AgentMessage() (event.Message, bool) {
	return event.Message{Role: event.RoleEvent, Content: "The user picked you up."}, true
}

// Drag is sent while the pointer moves with the pet held.
type Drag struct {
	event.Base
	Pos event.Point
}

func (Drag) Tags() []event.Tag { return []event.Tag{event.TagMove, event.TagUser} }

// End is sent when the user lets go.
type End struct {
	event.Base
	Pos event.Point
}

func (End) Tags() []event.Tag { return []event.Tag{event.TagMove, event.TagUser} }

func (e End) AgentMessage() (event.Message, bool) {
	return event.Message{Role: event.RoleEvent, Content: fmt.Sprintf("The user put you down at %s.", e.Pos)}, true
}

// Task follows the pointer until the pet is dropped. Positions are applied
// from OnEvent, which runs on the loop; Execute only waits for the drop.
type Task struct {
	task.Base
	pet     *pet.Pet
	dropped chan struct{}
	once    sync.Once
}

func NewTask(p *pet.Pet) *Task {
	return &Task{pet: p, dropped: make(chan struct{})}
}

func (*Task) Name() string { return TaskName }

func (t *Task) OnEvent(e event.Event) bool {
	switch e := e.(type) {
	case Drag:
		t.pet.SetPosition(e.Pos)
	case End:
		t.pet.SetPosition(e.Pos)
		t.once.Do(func() { close(t.dropped) })
	}
	return false
}

func (t *Task) Info() string {
	return fmt.Sprintf("Being carried by the user at %s", t.pet.Position())
}

func (t *Task) Execute(ctx context.Context, _ task.Emitter) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.dropped:
		return nil
	}
}

// Dragger is the loaded plugin.
type Dragger struct {
	plugin.Base
	pc *plugin.Context
}

func Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		ID:   ID,
		Deps: []plugin.Dependency{plugin.Needs(pet.Capability)},
		New: func(pc *plugin.Context) (plugin.Plugin, error) {
			if _, ok := plugin.ProviderOf[*pet.Pet](pc, pet.Capability); !ok {
				return nil, errors.New("no pet to drag")
			}
			return &Dragger{pc: pc}, nil
		},
	}
}

func (d *Dragger) HandleEvent(e event.Event) {
	s, ok := e.(Start)
	if !ok {
		return
	}
	p, ok := plugin.ProviderOf[*pet.Pet](d.pc, pet.Capability)
	if !ok {
		return
	}
	p.SetPosition(s.Pos)
	d.pc.AddTask(NewTask(p))
}
