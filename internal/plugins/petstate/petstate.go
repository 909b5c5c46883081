// Package petstate tracks how the pet feels. The values are persisted in
// the plugin's own config so they survive restarts.
package petstate

import (
	"context"
	"fmt"
	"strings"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/log"
	"github.com/zjrosen/deskmate/internal/plugin"
)

const (
	ID = "petstate"

	// Capability is provided by plugins that accept Modify events.
	Capability plugin.Capability = "state"

	Max = 100
)

// State holds the current values, each in [0, Max].
type State struct {
	Mood   int `yaml:"mood" json:"mood"`
	Health int `yaml:"health" json:"health"`
	Hunger int `yaml:"hunger" json:"hunger"` // satiety: 0 is starving
}

type Config struct {
	plugin.BaseConfig `yaml:",inline"`
	State             `yaml:",inline"`
}

func DefaultConfig() *Config {
	return &Config{
		BaseConfig: plugin.BaseConfig{Enabled: true},
		State:      State{Mood: 80, Health: 100, Hunger: 80},
	}
}

// Modify adjusts the state by the given deltas.
type Modify struct {
	event.Base
	Mood   int
	Health int
	Hunger int
	Reason string
}

// Changed is broadcast after a Modify moved any value.
type Changed struct {
	event.Base
	Old, New State
	message  string
}

func (e Changed) AgentMessage() (event.Message, bool) {
	if e.message == "" {
		return event.Message{}, false
	}
	return event.Message{Role: event.RoleEvent, Content: e.message}, true
}

// Tracker is the loaded plugin. It runs only on the loop.
type Tracker struct {
	plugin.Base
	pc  *plugin.Context
	cfg *Config
}

func Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		ID:        ID,
		Provides:  []plugin.Capability{Capability},
		NewConfig: func() plugin.Config { return DefaultConfig() },
		New: func(pc *plugin.Context) (plugin.Plugin, error) {
			cfg := plugin.ConfigOf[*Config](pc)
			cfg.State = cfg.State.clamp()
			return &Tracker{pc: pc, cfg: cfg}, nil
		},
	}
}

// State returns the current values.
func (t *Tracker) State() State { return t.cfg.State }

func (t *Tracker) HandleEvent(e event.Event) {
	m, ok := e.(Modify)
	if !ok {
		return
	}
	old := t.cfg.State
	next := State{
		Mood:   old.Mood + m.Mood,
		Health: old.Health + m.Health,
		Hunger: old.Hunger + m.Hunger,
	}.clamp()
	if next == old {
		return
	}
	t.cfg.State = next

	if err := t.pc.SaveConfig(context.Background()); err != nil {
		log.ErrorErr(log.CatPlugin, "failed to persist pet state", err)
	}
	t.pc.TriggerEvent(Changed{Old: old, New: next, message: describeChange(old, next)})
}

func (t *Tracker) Infos() []plugin.InfoGroup {
	s := t.cfg.State
	return []plugin.InfoGroup{{
		Title: "Pet State",
		Items: []plugin.InfoItem{
			{Key: "Mood", Value: fmt.Sprintf("%s (%d/%d)", MoodWord(s.Mood), s.Mood, Max)},
			{Key: "Health", Value: fmt.Sprintf("%s (%d/%d)", HealthWord(s.Health), s.Health, Max)},
			{Key: "Hunger", Value: fmt.Sprintf("%s (%d/%d)", HungerWord(s.Hunger), s.Hunger, Max)},
		},
	}}
}

func (t *Tracker) Prompts() map[string]string {
	return map[string]string{
		"state": "Your mood, health and hunger are listed under Pet State. Let them colour how you talk and act.",
	}
}

func (s State) clamp() State {
	return State{Mood: clamp(s.Mood), Health: clamp(s.Health), Hunger: clamp(s.Hunger)}
}

func clamp(v int) int { return min(max(v, 0), Max) }

func MoodWord(v int) string {
	return word(v, "happy", "calm", "sad", "miserable")
}

func HealthWord(v int) string {
	return word(v, "healthy", "tired", "sick", "exhausted")
}

func HungerWord(v int) string {
	return word(v, "full", "peckish", "hungry", "starving")
}

func word(v int, words ...string) string {
	switch {
	case v >= 80:
		return words[0]
	case v >= 50:
		return words[1]
	case v >= 20:
		return words[2]
	default:
		return words[3]
	}
}

// describeChange reports only the values whose wording changed.
func describeChange(old, next State) string {
	var parts []string
	if w := MoodWord(next.Mood); w != MoodWord(old.Mood) {
		parts = append(parts, "You feel "+w+" now.")
	}
	if w := HealthWord(next.Health); w != HealthWord(old.Health) {
		parts = append(parts, "You are "+w+" now.")
	}
	if w := HungerWord(next.Hunger); w != HungerWord(old.Hunger) {
		parts = append(parts, "You are "+w+" now.")
	}
	return strings.Join(parts, " ")
}
