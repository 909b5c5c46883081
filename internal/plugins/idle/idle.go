// Package idle keeps the pet alive when nobody is talking to it: it wanders
// now and then and gets bored when left alone.
package idle

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/plugin"
	"github.com/zjrosen/deskmate/internal/plugins/move"
	"github.com/zjrosen/deskmate/internal/plugins/pet"
	"github.com/zjrosen/deskmate/internal/task"
)

const (
	ID         = "idle"
	WanderTask = "wander"
	BoredTask  = "bored"

	BoredMessage = "You feel a bit bored..."
)

type Config struct {
	plugin.BaseConfig `yaml:",inline"`
	Speed             float64       `yaml:"speed"`
	MinDistance       float64       `yaml:"min_distance"`
	MaxDistance       float64       `yaml:"max_distance"`
	WanderMin         time.Duration `yaml:"wander_min"`
	WanderMax         time.Duration `yaml:"wander_max"`
	BoredMin          time.Duration `yaml:"bored_min"`
	BoredMax          time.Duration `yaml:"bored_max"`
}

func DefaultConfig() *Config {
	return &Config{
		BaseConfig:  plugin.BaseConfig{Enabled: true},
		Speed:       50,
		MinDistance: 100,
		MaxDistance: 300,
		WanderMin:   30 * time.Second,
		WanderMax:   60 * time.Second,
		BoredMin:    80 * time.Second,
		BoredMax:    200 * time.Second,
	}
}

// Idle is the loaded plugin.
type Idle struct {
	pc    *plugin.Context
	cfg   *Config
	pet   atomic.Pointer[pet.Pet]
	mover atomic.Pointer[move.Mover]
}

func Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		ID:        ID,
		Deps:      []plugin.Dependency{plugin.Needs(pet.Capability), plugin.On(move.ID)},
		NewConfig: func() plugin.Config { return DefaultConfig() },
		New: func(pc *plugin.Context) (plugin.Plugin, error) {
			p, ok := plugin.ProviderOf[*pet.Pet](pc, pet.Capability)
			if !ok {
				return nil, errors.New("no pet")
			}
			m, ok := plugin.DepOf[*move.Mover](pc, move.ID)
			if !ok {
				return nil, errors.New("no mover")
			}
			i := &Idle{pc: pc, cfg: plugin.ConfigOf[*Config](pc)}
			i.pet.Store(p)
			i.mover.Store(m)
			return i, nil
		},
	}
}

func (i *Idle) Init(context.Context) error {
	i.pc.AddTask(&Wander{cfg: i.cfg, walk: i.walk})
	i.pc.AddTask(NewBored(i.cfg.BoredMin, i.cfg.BoredMax))
	return nil
}

func (i *Idle) Close() error { return nil }

func (i *Idle) OnDepLoad(_ string, p plugin.Plugin) {
	switch p := p.(type) {
	case *pet.Pet:
		i.pet.Store(p)
	case *move.Mover:
		i.mover.Store(p)
	}
}

// walk picks a random nearby point and strolls there.
func (i *Idle) walk() {
	p := i.pet.Load()
	from := p.Position()
	angle := rand.Float64() * 2 * math.Pi
	dist := i.cfg.MinDistance + rand.Float64()*(i.cfg.MaxDistance-i.cfg.MinDistance)
	i.mover.Load().WalkAt(event.Point{
		X: from.X + dist*math.Cos(angle),
		Y: from.Y + dist*math.Sin(angle),
	}, i.cfg.Speed)
}

// Wander strolls somewhere now and then, unless the pet moved recently.
type Wander struct {
	task.Base
	cfg  *Config
	walk func()

	lastActive atomic.Int64
}

func (*Wander) Name() string { return WanderTask }

func (w *Wander) OnEvent(e event.Event) bool {
	if event.HasTag(e, event.TagMove) || event.HasTag(e, event.TagUser) {
		w.lastActive.Store(time.Now().UnixNano())
	}
	return false
}

func (w *Wander) Execute(ctx context.Context, _ task.Emitter) error {
	for {
		wait := between(w.cfg.WanderMin, w.cfg.WanderMax)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if time.Since(time.Unix(0, w.lastActive.Load())) < wait {
			continue
		}
		w.walk()
	}
}

// Bored tells the agent it is bored after a quiet spell. Any user event
// restarts the countdown.
type Bored struct {
	task.Base
	min, max time.Duration
	reset    chan struct{}
}

func NewBored(lo, hi time.Duration) *Bored {
	return &Bored{min: lo, max: hi, reset: make(chan struct{}, 1)}
}

func (*Bored) Name() string { return BoredTask }

func (b *Bored) OnEvent(e event.Event) bool {
	if event.HasTag(e, event.TagUser) {
		select {
		case b.reset <- struct{}{}:
		default:
		}
	}
	return false
}

func (b *Bored) Execute(ctx context.Context, emit task.Emitter) error {
	timer := time.NewTimer(between(b.min, b.max))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.reset:
		case <-timer.C:
			emit.TriggerEvent(event.Plain{Content: BoredMessage})
		}
		timer.Reset(between(b.min, b.max))
	}
}

func between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}
