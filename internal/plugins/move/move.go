// Package move walks the pet toward a target.
package move

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/log"
	"github.com/zjrosen/deskmate/internal/plugin"
	"github.com/zjrosen/deskmate/internal/plugins/pet"
	"github.com/zjrosen/deskmate/internal/task"
)

const ID = "move"

// TaskName is shared by every movement so a new target replaces the old.
const TaskName = "move"

type Config struct {
	plugin.BaseConfig `yaml:",inline"`
	Speed             float64       `yaml:"speed"`     // px/s
	RunSpeed          float64       `yaml:"run_speed"` // px/s
	Step              time.Duration `yaml:"step"`
}

func DefaultConfig() *Config {
	return &Config{
		BaseConfig: plugin.BaseConfig{Enabled: true},
		Speed:      200,
		RunSpeed:   500,
		Step:       20 * time.Millisecond,
	}
}

// Positioner is what a move needs from the pet.
type Positioner interface {
	Position() event.Point
	SetPosition(event.Point) event.Point
	Clamp(event.Point) event.Point
}

// Move reports the pet's position while walking and once on arrival.
type Move struct {
	event.Base
	Pos      event.Point
	Finished bool
}

func (Move) Tags() []event.Tag { return []event.Tag{event.TagMove} }

func (e Move) AgentMessage() (event.Message, bool) {
	if !e.Finished {
		return event.Message{}, false
	}
	return event.Message{Role: event.RoleEvent, Content: fmt.Sprintf("You've arrived at %s.", e.Pos)}, true
}

// Task walks the pet to Target at Speed px/s.
type Task struct {
	task.Base
	pet    Positioner
	Target event.Point
	Speed  float64
	Step   time.Duration

	start    event.Point
	progress atomic.Uint32 // percent
}

// NewTask creates a walk from the pet's current position.
func NewTask(p Positioner, target event.Point, speed float64, step time.Duration) *Task {
	if step <= 0 {
		step = 20 * time.Millisecond
	}
	return &Task{pet: p, Target: p.Clamp(target), Speed: speed, Step: step, start: p.Position()}
}

func (*Task) Name() string { return TaskName }

// Merge always lets the newest target win.
func (t *Task) Merge(old task.Task) (task.Task, string) {
	prev, ok := old.(*Task)
	if !ok {
		return task.Replace(t, fmt.Sprintf("Change target to %s", t.Target))
	}
	return task.Replace(t, fmt.Sprintf("Change target from %s to %s", prev.Target, t.Target))
}

// OnEvent stops walking when the user grabs the pet.
func (t *Task) OnEvent(e event.Event) bool {
	return event.HasTag(e, event.TagMove, event.TagUser)
}

func (t *Task) Info() string {
	return fmt.Sprintf("Walking to %s, %d%% done", t.Target, t.progress.Load())
}

func (t *Task) Execute(ctx context.Context, emit task.Emitter) error {
	if t.Speed <= 0 {
		return errors.New("move speed must be positive")
	}
	total := distance(t.start, t.Target)
	perStep := t.Speed * t.Step.Seconds()

	ticker := time.NewTicker(t.Step)
	defer ticker.Stop()

	for {
		// A tick and a cancel can be ready together; a cancelled walk must not move the pet.
		if err := ctx.Err(); err != nil {
			return err
		}
		pos := t.pet.Position()
		left := distance(pos, t.Target)
		if left <= perStep {
			t.pet.SetPosition(t.Target)
			t.progress.Store(100)
			emit.TriggerEvent(Move{Pos: t.Target, Finished: true})
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		ratio := perStep / left
		next := t.pet.SetPosition(event.Point{
			X: pos.X + (t.Target.X-pos.X)*ratio,
			Y: pos.Y + (t.Target.Y-pos.Y)*ratio,
		})
		if total > 0 {
			t.progress.Store(uint32(min(100, 100*(1-distance(next, t.Target)/total))))
		}
		emit.TriggerEvent(Move{Pos: next})
	}
}

func distance(a, b event.Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Mover is the loaded plugin.
type Mover struct {
	plugin.Base
	pc  *plugin.Context
	cfg *Config
	pet atomic.Pointer[pet.Pet]
}

func Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		ID:        ID,
		Deps:      []plugin.Dependency{plugin.Needs(pet.Capability)},
		NewConfig: func() plugin.Config { return DefaultConfig() },
		New: func(pc *plugin.Context) (plugin.Plugin, error) {
			p, ok := plugin.ProviderOf[*pet.Pet](pc, pet.Capability)
			if !ok {
				return nil, errors.New("no pet to move")
			}
			m := &Mover{pc: pc, cfg: plugin.ConfigOf[*Config](pc)}
			m.pet.Store(p)
			return m, nil
		},
	}
}

// OnDepLoad picks up a reloaded pet.
func (m *Mover) OnDepLoad(_ string, p plugin.Plugin) {
	if pp, ok := p.(*pet.Pet); ok {
		m.pet.Store(pp)
	}
}

// Walk starts a move to target. Safe from any goroutine.
func (m *Mover) Walk(target event.Point, run bool) *Task {
	speed := m.cfg.Speed
	if run {
		speed = m.cfg.RunSpeed
	}
	t := NewTask(m.pet.Load(), target, speed, m.cfg.Step)
	m.pc.Emitter().AddTask(t)
	return t
}

// WalkAt starts a move at an explicit speed.
func (m *Mover) WalkAt(target event.Point, speed float64) *Task {
	t := NewTask(m.pet.Load(), target, speed, m.cfg.Step)
	m.pc.Emitter().AddTask(t)
	return t
}

// HandleEvent accepts a "move" field from the agent.
func (m *Mover) HandleEvent(e event.Event) {
	f, ok := e.(event.PluginField)
	if !ok || f.Key != "move" {
		return
	}
	target, run, err := parseTarget(f.Value)
	if err != nil {
		log.Warn(log.CatPlugin, "ignoring move field", "error", err)
		return
	}
	m.Walk(target, run)
}

func (m *Mover) Tools() []plugin.Tool {
	return []plugin.Tool{plugin.FuncTool{
		ToolName: "move_to",
		Desc:     "Walk to a point on the screen. Set run to move faster.",
		Params: plugin.ObjectSchema(map[string]any{
			"x":   map[string]any{"type": "number"},
			"y":   map[string]any{"type": "number"},
			"run": map[string]any{"type": "boolean"},
		}),
		Fn: func(_ context.Context, args map[string]any) (string, error) {
			target, run, err := parseTarget(args)
			if err != nil {
				return "", err
			}
			t := m.Walk(target, run)
			return fmt.Sprintf("Started walking to %s.", t.Target), nil
		},
	}}
}

func parseTarget(v any) (event.Point, bool, error) {
	args, ok := v.(map[string]any)
	if !ok {
		return event.Point{}, false, fmt.Errorf("move target must be an object, got %T", v)
	}
	x, okX := number(args["x"])
	y, okY := number(args["y"])
	if !okX || !okY {
		return event.Point{}, false, errors.New("move target needs numeric x and y")
	}
	run, _ := args["run"].(bool)
	return event.Point{X: x, Y: y}, run, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
