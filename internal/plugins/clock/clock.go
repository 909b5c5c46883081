// Package clock gives the agent a tool to read the time.
package clock

import (
	"context"
	"fmt"
	"time"

	"github.com/zjrosen/deskmate/internal/plugin"
)

const ID = "clock"

type Config struct {
	plugin.BaseConfig `yaml:",inline"`
	Timezone          string `yaml:"timezone"`
}

type Clock struct {
	plugin.Base
	loc *time.Location
	now func() time.Time
}

func Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		ID:        ID,
		NewConfig: func() plugin.Config { return &Config{BaseConfig: plugin.BaseConfig{Enabled: true}} },
		New: func(pc *plugin.Context) (plugin.Plugin, error) {
			cfg := plugin.ConfigOf[*Config](pc)
			loc := time.Local
			if cfg.Timezone != "" {
				var err error
				if loc, err = time.LoadLocation(cfg.Timezone); err != nil {
					return nil, fmt.Errorf("clock timezone: %w", err)
				}
			}
			return &Clock{loc: loc, now: time.Now}, nil
		},
	}
}

// Now returns the current time in the configured zone.
func (c *Clock) Now() time.Time { return c.now().In(c.loc) }

func (c *Clock) Tools() []plugin.Tool {
	return []plugin.Tool{plugin.FuncTool{
		ToolName: "get_time",
		Desc:     "Get the current local date and time.",
		Params:   plugin.ObjectSchema(nil),
		Fn: func(context.Context, map[string]any) (string, error) {
			return c.Now().Format("It is 15:04 on Monday, 2 January 2006 (MST)."), nil
		},
	}}
}
