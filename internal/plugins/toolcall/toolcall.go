// Package toolcall runs the tools other plugins expose when the agent asks
// for them. Each call is its own task so calls run side by side.
package toolcall

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/log"
	"github.com/zjrosen/deskmate/internal/plugin"
	"github.com/zjrosen/deskmate/internal/task"
)

const (
	ID = "toolcall"

	// Field is the agent output key that requests a call.
	Field = "tool_call"
)

var ErrUnknownTool = errors.New("unknown tool")

type Config struct {
	plugin.BaseConfig `yaml:",inline"`
	Timeout           time.Duration `yaml:"timeout"`
}

func DefaultConfig() *Config {
	return &Config{BaseConfig: plugin.BaseConfig{Enabled: true}, Timeout: 30 * time.Second}
}

// Request asks for a tool to be called. An empty ID is filled in.
type Request struct {
	event.Base
	ID   string
	Tool string
	Args map[string]any
}

func (Request) Tags() []event.Tag { return []event.Tag{event.TagAgent} }

// Result reports a finished call back to the agent.
type Result struct {
	event.Base
	ID     string
	Tool   string
	Output string
	Err    error
}

func (Result) Tags() []event.Tag { return []event.Tag{event.TagAgent} }

func (r Result) AgentMessage() (event.Message, bool) {
	if r.Err != nil {
		return event.Message{Role: event.RoleTool, Content: fmt.Sprintf("[%s] %s failed: %v", r.ID, r.Tool, r.Err)}, true
	}
	return event.Message{Role: event.RoleTool, Content: fmt.Sprintf("[%s] %s: %s", r.ID, r.Tool, r.Output)}, true
}

// Call runs one tool invocation.
type Call struct {
	task.Base
	ID      string
	Tool    plugin.Tool
	Args    map[string]any
	Timeout time.Duration
}

func (c *Call) Name() string { return "toolcall:" + c.ID }

func (c *Call) Info() string { return fmt.Sprintf("Waiting for tool %s", c.Tool.Name()) }

func (c *Call) Execute(ctx context.Context, emit task.Emitter) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	out, err := c.Tool.Call(ctx, c.Args)
	if errors.Is(err, context.Canceled) {
		return err
	}
	emit.TriggerEvent(Result{ID: c.ID, Tool: c.Tool.Name(), Output: out, Err: err})
	return nil
}

// Caller is the loaded plugin. It learns the current tool set from Refresh.
type Caller struct {
	plugin.Base
	pc    *plugin.Context
	cfg   *Config
	tools map[string]plugin.Tool
}

func Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		ID:        ID,
		NewConfig: func() plugin.Config { return DefaultConfig() },
		New: func(pc *plugin.Context) (plugin.Plugin, error) {
			return &Caller{pc: pc, cfg: plugin.ConfigOf[*Config](pc), tools: map[string]plugin.Tool{}}, nil
		},
	}
}

func (c *Caller) HandleEvent(e event.Event) {
	switch e := e.(type) {
	case plugin.Refresh:
		c.tools = make(map[string]plugin.Tool, len(e.Tools))
		for _, t := range e.Tools {
			c.tools[t.Name()] = t
		}
	case Request:
		c.call(e)
	case event.PluginField:
		if e.Key != Field {
			return
		}
		req, err := parseField(e.Value)
		if err != nil {
			log.Warn(log.CatAgent, "ignoring tool call", "error", err)
			return
		}
		c.call(req)
	}
}

func (c *Caller) call(req Request) {
	if req.ID == "" {
		req.ID = uuid.NewString()[:8]
	}
	tool, ok := c.tools[req.Tool]
	if !ok {
		c.pc.Emitter().TriggerEvent(Result{ID: req.ID, Tool: req.Tool, Err: fmt.Errorf("%w: %s", ErrUnknownTool, req.Tool)})
		return
	}
	log.Debug(log.CatAgent, "tool call", "id", req.ID, "tool", req.Tool)
	c.pc.AddTask(&Call{ID: req.ID, Tool: tool, Args: req.Args, Timeout: c.cfg.Timeout})
}

func parseField(v any) (Request, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Request{}, fmt.Errorf("tool call must be an object, got %T", v)
	}
	name, _ := m["name"].(string)
	if name == "" {
		return Request{}, errors.New("tool call has no name")
	}
	id, _ := m["id"].(string)
	args, _ := m["args"].(map[string]any)
	return Request{ID: id, Tool: name, Args: args}, nil
}
