// Package plugins lists the built-in plugins.
package plugins

import (
	"github.com/zjrosen/deskmate/internal/plugin"
	"github.com/zjrosen/deskmate/internal/plugins/clock"
	"github.com/zjrosen/deskmate/internal/plugins/drag"
	"github.com/zjrosen/deskmate/internal/plugins/envinfo"
	"github.com/zjrosen/deskmate/internal/plugins/idle"
	"github.com/zjrosen/deskmate/internal/plugins/move"
	"github.com/zjrosen/deskmate/internal/plugins/pet"
	"github.com/zjrosen/deskmate/internal/plugins/petstate"
	"github.com/zjrosen/deskmate/internal/plugins/petstate/digest"
	"github.com/zjrosen/deskmate/internal/plugins/speak"
	"github.com/zjrosen/deskmate/internal/plugins/think"
	"github.com/zjrosen/deskmate/internal/plugins/toolcall"
)

// All returns the built-in descriptors in discovery order.
func All() []plugin.Descriptor {
	return []plugin.Descriptor{
		pet.Descriptor(),
		move.Descriptor(),
		drag.Descriptor(),
		idle.Descriptor(),
		petstate.Descriptor(),
		digest.Descriptor(),
		envinfo.Descriptor(),
		clock.Descriptor(),
		toolcall.Descriptor(),
		speak.Descriptor(),
		think.Descriptor(),
	}
}

// Registry returns a registry holding All.
func Registry() *plugin.Registry {
	reg := plugin.NewRegistry()
	reg.MustRegister(All()...)
	return reg
}
