// Package agent is the boundary between the orchestration core and the
// decision loop. The Bridge watches broadcasts for what the agent should
// read, keeps the current prompt and tool set, and turns structured agent
// output back into events.
package agent

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/log"
	"github.com/zjrosen/deskmate/internal/plugin"
	"github.com/zjrosen/deskmate/internal/task"
)

const (
	// CallbackKey is the task manager callback the bridge registers.
	CallbackKey = "agent"

	// NoInformation is the status block when nothing has anything to say.
	NoInformation = "No Information now."

	// DefaultQueueLimit bounds how many unread messages are kept.
	DefaultQueueLimit = 256
)

// Snapshot is the prompt and tool set from the last plugin refresh.
type Snapshot struct {
	Prompts map[string]string
	Tools   []plugin.Tool
}

// SystemPrompt joins the prompt fragments by key.
func (s Snapshot) SystemPrompt() string {
	keys := slices.Sorted(maps.Keys(s.Prompts))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, s.Prompts[k])
	}
	return strings.Join(parts, "\n\n")
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithQueueLimit caps the unread message queue. The oldest messages are
// dropped first.
func WithQueueLimit(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.limit = n
		}
	}
}

// Bridge connects the agent to the task and plugin managers. Snapshot,
// Drain and Pending are safe from any goroutine; Status and Respond must run
// on the loop.
type Bridge struct {
	plugins *plugin.Manager
	tasks   *task.Manager
	limit   int

	mu       sync.Mutex
	snapshot Snapshot
	queue    []event.Message
	dropped  int
	pending  chan struct{}
}

// New creates a bridge. It sees nothing until Attach.
func New(plugins *plugin.Manager, tasks *task.Manager, opts ...Option) *Bridge {
	b := &Bridge{
		plugins: plugins,
		tasks:   tasks,
		limit:   DefaultQueueLimit,
		pending: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach registers the bridge's callback.
func (b *Bridge) Attach() {
	b.tasks.RegisterCallback(CallbackKey, b.observe)
}

// Detach removes the bridge's callback.
func (b *Bridge) Detach() {
	b.tasks.RemoveCallback(CallbackKey)
}

func (b *Bridge) observe(e event.Event) {
	if r, ok := e.(plugin.Refresh); ok {
		b.mu.Lock()
		b.snapshot = Snapshot{Prompts: maps.Clone(r.Prompts), Tools: slices.Clone(r.Tools)}
		b.mu.Unlock()
		return
	}

	msg, ok := e.AgentMessage()
	if !ok {
		return
	}
	b.mu.Lock()
	b.queue = append(b.queue, msg)
	if over := len(b.queue) - b.limit; over > 0 {
		b.queue = slices.Delete(b.queue, 0, over)
		b.dropped += over
		log.Warn(log.CatAgent, "agent queue full, dropped oldest messages", "dropped", over)
	}
	b.mu.Unlock()

	select {
	case b.pending <- struct{}{}:
	default:
	}
}

// Snapshot returns the latest prompt and tool set.
func (b *Bridge) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{Prompts: maps.Clone(b.snapshot.Prompts), Tools: slices.Clone(b.snapshot.Tools)}
}

// Drain returns and clears the unread messages.
func (b *Bridge) Drain() []event.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.queue
	b.queue = nil
	return out
}

// Dropped reports how many messages were discarded for exceeding the limit.
func (b *Bridge) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Pending is signalled when new messages are queued.
func (b *Bridge) Pending() <-chan struct{} {
	return b.pending
}

// Status renders the status block: plugin infos followed by running task
// infos.
func (b *Bridge) Status() (string, error) {
	text, err := b.plugins.StatusText()
	if err != nil {
		return "", fmt.Errorf("building status: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(text)
	if infos := b.tasks.ExecuteInfos(); len(infos) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("### Tasks\n")
		for _, info := range infos {
			fmt.Fprintf(&sb, "- %s\n", info)
		}
	}
	if sb.Len() == 0 {
		return NoInformation, nil
	}
	return sb.String(), nil
}

// Respond broadcasts one agent invocation's output: InvokeStart, a
// PluginField per key in key order, then InvokeEnd.
func (b *Bridge) Respond(fields map[string]any) {
	b.tasks.TriggerEvent(event.InvokeStart{})
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		b.tasks.TriggerEvent(event.PluginField{Key: k, Value: fields[k]})
	}
	b.tasks.TriggerEvent(event.InvokeEnd{})
}
