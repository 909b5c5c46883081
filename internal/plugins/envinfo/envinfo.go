// Package envinfo tells the agent about the world outside the screen.
package envinfo

import (
	"os"
	"runtime"
	"time"

	"github.com/zjrosen/deskmate/internal/plugin"
)

const ID = "envinfo"

type Config struct {
	plugin.BaseConfig `yaml:",inline"`
	Location          string `yaml:"location"`
	TimeFormat        string `yaml:"time_format"`
}

func DefaultConfig() *Config {
	return &Config{
		BaseConfig: plugin.BaseConfig{Enabled: true},
		TimeFormat: "Monday, 2 January 2006 15:04",
	}
}

type EnvInfo struct {
	plugin.Base
	cfg *Config
	now func() time.Time
}

func Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		ID:        ID,
		NewConfig: func() plugin.Config { return DefaultConfig() },
		New: func(pc *plugin.Context) (plugin.Plugin, error) {
			return &EnvInfo{cfg: plugin.ConfigOf[*Config](pc), now: time.Now}, nil
		},
	}
}

func (e *EnvInfo) Infos() []plugin.InfoGroup {
	items := []plugin.InfoItem{
		{Key: "Time", Value: e.now().Format(e.cfg.TimeFormat)},
		{Key: "Platform", Value: runtime.GOOS},
	}
	if e.cfg.Location != "" {
		items = append(items, plugin.InfoItem{Key: "Location", Value: e.cfg.Location})
	}
	if u := os.Getenv("USER"); u != "" {
		items = append(items, plugin.InfoItem{Key: "User", Value: u})
	}
	return []plugin.InfoGroup{{Title: "Environment", Items: items}}
}
