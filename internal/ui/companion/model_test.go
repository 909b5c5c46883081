package companion

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"
	zone "github.com/lrstanley/bubblezone"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/plugin"
	"github.com/zjrosen/deskmate/internal/plugins/pet"
	"github.com/zjrosen/deskmate/internal/plugins/petstate"
	"github.com/zjrosen/deskmate/internal/plugins/speak"
	"github.com/zjrosen/deskmate/internal/pubsub"
	"github.com/zjrosen/deskmate/internal/task"
	"github.com/zjrosen/deskmate/internal/ui/markdown"
	"github.com/zjrosen/deskmate/internal/ui/playground"
)

func TestMain(m *testing.M) {
	zone.NewGlobal()
	os.Exit(m.Run())
}

type fakeBackend struct {
	*pubsub.Broker[event.Event]

	mu       sync.Mutex
	snap     Snapshot
	said     []string
	events   []event.Event
	toggled  map[string]bool
	reloaded []string
	sayErr   error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		Broker: pubsub.NewBroker[event.Event](),
		snap: Snapshot{
			Name:     "Mochi",
			Position: event.Point{X: 100, Y: 100},
			Bounds:   pet.Size{Width: 1920, Height: 1080},
			Mood:     "happy",
			Status:   "### Pet\n- Name: Mochi",
			Plugins: []plugin.Status{
				{ID: "pet", Enabled: true, Loaded: true},
				{ID: "speak", Enabled: true, Loaded: true},
			},
		},
		toggled: map[string]bool{},
	}
}

func (f *fakeBackend) Snapshot(context.Context) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, nil
}

func (f *fakeBackend) Say(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sayErr != nil {
		return f.sayErr
	}
	f.said = append(f.said, text)
	return nil
}

func (f *fakeBackend) Trigger(_ context.Context, e event.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakeBackend) SetEnabled(_ context.Context, id string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggled[id] = enabled
	return nil
}

func (f *fakeBackend) Reload(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloaded = append(f.reloaded, id)
	return nil
}

func (f *fakeBackend) triggered() []event.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event.Event(nil), f.events...)
}

func start(t *testing.T, b *fakeBackend, opts Options) *teatest.TestModel {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if opts.Theme == "" {
		opts.Theme = markdown.StyleNoTTY
	}
	tm := teatest.NewTestModel(t, New(ctx, b, opts), teatest.WithInitialTermSize(100, 30))
	t.Cleanup(func() { _ = tm.Quit() })
	return tm
}

func waitFor(t *testing.T, tm *teatest.TestModel, text string) {
	t.Helper()
	teatest.WaitFor(t, tm.Output(), func(out []byte) bool {
		return bytes.Contains(out, []byte(text))
	}, teatest.WithDuration(3*time.Second), teatest.WithCheckInterval(10*time.Millisecond))
}

func TestModel_ShowsPet(t *testing.T) {
	tm := start(t, newFakeBackend(), Options{})
	waitFor(t, tm, "Mochi")
}

func TestModel_SendsInput(t *testing.T) {
	b := newFakeBackend()
	tm := start(t, b, Options{})
	waitFor(t, tm, "Mochi")

	tm.Type("hello there")
	tm.Send(tea.KeyMsg{Type: tea.KeyEnter})

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.said) == 1 && b.said[0] == "hello there"
	}, 3*time.Second, 10*time.Millisecond)
}

func TestModel_SayFailureShowsToast(t *testing.T) {
	b := newFakeBackend()
	b.sayErr = errors.New("queue full")
	tm := start(t, b, Options{})
	waitFor(t, tm, "Mochi")

	tm.Type("hi")
	tm.Send(tea.KeyMsg{Type: tea.KeyEnter})
	waitFor(t, tm, "say: queue full")
}

func TestModel_SpeakEventShowsBubble(t *testing.T) {
	b := newFakeBackend()
	tm := start(t, b, Options{})
	waitFor(t, tm, "Mochi")

	b.Publish(pubsub.Emitted, speak.Speak{Text: "purr"})
	waitFor(t, tm, "purr")
}

func TestModel_TaskFailureShowsToast(t *testing.T) {
	b := newFakeBackend()
	tm := start(t, b, Options{})
	waitFor(t, tm, "Mochi")

	b.Publish(pubsub.Emitted, task.Failed{Name: "move", Err: errors.New("blocked")})
	waitFor(t, tm, "move failed: blocked")
}

func TestModel_StatusPane(t *testing.T) {
	tm := start(t, newFakeBackend(), Options{ShowStatus: true})
	waitFor(t, tm, "Name: Mochi")
}

func TestModel_PluginListToggles(t *testing.T) {
	b := newFakeBackend()
	tm := start(t, b, Options{})
	waitFor(t, tm, "Mochi")

	tm.Send(tea.KeyMsg{Type: tea.KeyCtrlP})
	waitFor(t, tm, "[x] pet")

	tm.Send(tea.KeyMsg{Type: tea.KeyDown})
	tm.Send(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		enabled, ok := b.toggled["speak"]
		return ok && !enabled
	}, 3*time.Second, 10*time.Millisecond)

	tm.Type("r")
	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.reloaded) == 1 && b.reloaded[0] == "speak"
	}, 3*time.Second, 10*time.Millisecond)
}

func TestModel_PettingModifiesMood(t *testing.T) {
	b := newFakeBackend()
	tm := start(t, b, Options{})
	waitFor(t, tm, "Mochi")

	tm.Send(playground.PetMsg{})
	require.Eventually(t, func() bool {
		for _, e := range b.triggered() {
			if m, ok := e.(petstate.Modify); ok && m.Mood > 0 && m.Reason == "petting" {
				return true
			}
		}
		return false
	}, 3*time.Second, 10*time.Millisecond)
}

func TestModel_QuitKey(t *testing.T) {
	tm := start(t, newFakeBackend(), Options{})
	waitFor(t, tm, "Mochi")

	tm.Send(tea.KeyMsg{Type: tea.KeyCtrlC})
	fm := tm.FinalModel(t, teatest.WithFinalTimeout(3*time.Second))
	_, ok := fm.(Model)
	require.True(t, ok)
}
