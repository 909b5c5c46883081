// Package digest slowly makes the pet hungry.
package digest

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/zjrosen/deskmate/internal/plugin"
	"github.com/zjrosen/deskmate/internal/plugins/petstate"
	"github.com/zjrosen/deskmate/internal/task"
)

const (
	ID       = petstate.ID + "/digest"
	TaskName = "digest"
)

type Config struct {
	plugin.BaseConfig `yaml:",inline"`
	MinInterval       time.Duration `yaml:"min_interval"`
	MaxInterval       time.Duration `yaml:"max_interval"`
	MinAmount         int           `yaml:"min_amount"`
	MaxAmount         int           `yaml:"max_amount"`
}

func DefaultConfig() *Config {
	return &Config{
		BaseConfig:  plugin.BaseConfig{Enabled: true},
		MinInterval: 30 * time.Second,
		MaxInterval: 50 * time.Second,
		MinAmount:   1,
		MaxAmount:   3,
	}
}

// Task lowers hunger by a small random amount at random intervals.
type Task struct {
	task.Base
	cfg *Config
}

func (*Task) Name() string { return TaskName }

func (t *Task) Execute(ctx context.Context, emit task.Emitter) error {
	for {
		wait := t.cfg.MinInterval
		if span := t.cfg.MaxInterval - t.cfg.MinInterval; span > 0 {
			wait += rand.N(span)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		amount := t.cfg.MinAmount
		if span := t.cfg.MaxAmount - t.cfg.MinAmount; span > 0 {
			amount += rand.IntN(span + 1)
		}
		emit.TriggerEvent(petstate.Modify{Hunger: -amount, Reason: "digestion"})
	}
}

type digest struct {
	plugin.Base
	pc *plugin.Context
}

func (d *digest) Init(context.Context) error {
	d.pc.AddTask(&Task{cfg: plugin.ConfigOf[*Config](d.pc)})
	return nil
}

func Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		ID:        ID,
		NewConfig: func() plugin.Config { return DefaultConfig() },
		New: func(pc *plugin.Context) (plugin.Plugin, error) {
			return &digest{pc: pc}, nil
		},
	}
}
