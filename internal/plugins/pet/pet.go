// Package pet owns the pet's identity, position and the screen area it may
// walk in.
package pet

import (
	"context"
	"fmt"
	"sync"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/plugin"
)

const ID = "pet"

// Capability is provided by any plugin that owns a pet position.
const Capability plugin.Capability = "pet"

// Size is the playground area.
type Size struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

type Config struct {
	plugin.BaseConfig `yaml:",inline"`
	Name              string      `yaml:"name"`
	Start             event.Point `yaml:"start"`
	Bounds            Size        `yaml:"bounds"`
}

func DefaultConfig() *Config {
	return &Config{
		BaseConfig: plugin.BaseConfig{Enabled: true},
		Name:       "Mochi",
		Start:      event.Point{X: 100, Y: 100},
		Bounds:     Size{Width: 1920, Height: 1080},
	}
}

// Pet is the loaded plugin. Position is written by whichever task owns
// movement and read by the UI, so it is guarded.
type Pet struct {
	plugin.Base
	pc  *plugin.Context
	cfg *Config

	mu  sync.RWMutex
	pos event.Point
}

func Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		ID:        ID,
		Provides:  []plugin.Capability{Capability},
		NewConfig: func() plugin.Config { return DefaultConfig() },
		New: func(pc *plugin.Context) (plugin.Plugin, error) {
			cfg := plugin.ConfigOf[*Config](pc)
			p := &Pet{pc: pc, cfg: cfg}
			p.pos = p.clamp(cfg.Start)
			return p, nil
		},
	}
}

func (p *Pet) Init(context.Context) error {
	p.pc.TriggerEvent(event.Plain{Content: "You've just been awakened..."})
	return nil
}

// Name returns the pet's name.
func (p *Pet) Name() string { return p.cfg.Name }

// Bounds returns the playground size.
func (p *Pet) Bounds() Size { return p.cfg.Bounds }

// Position returns the current position.
func (p *Pet) Position() event.Point {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pos
}

// SetPosition moves the pet, clamped to the bounds, and returns where it
// ended up.
func (p *Pet) SetPosition(pt event.Point) event.Point {
	pt = p.clamp(pt)
	p.mu.Lock()
	p.pos = pt
	p.mu.Unlock()
	return pt
}

// Clamp limits pt to the playground.
func (p *Pet) Clamp(pt event.Point) event.Point { return p.clamp(pt) }

func (p *Pet) clamp(pt event.Point) event.Point {
	b := p.cfg.Bounds
	pt.X = min(max(pt.X, 0), b.Width)
	pt.Y = min(max(pt.Y, 0), b.Height)
	return pt
}

func (p *Pet) Prompts() map[string]string {
	return map[string]string{
		"persona": fmt.Sprintf("You are %s, a small pet living on the user's desktop. You can walk around the screen and talk to the user.", p.cfg.Name),
	}
}

func (p *Pet) Infos() []plugin.InfoGroup {
	return []plugin.InfoGroup{{
		Title: "Pet",
		Items: []plugin.InfoItem{
			{Key: "Name", Value: p.cfg.Name},
			{Key: "Position", Value: p.Position().String()},
			{Key: "Screen", Value: fmt.Sprintf("%dx%d", int(p.cfg.Bounds.Width), int(p.cfg.Bounds.Height))},
		},
	}}
}
