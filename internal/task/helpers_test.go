package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/worker"
)

type harness struct {
	t *testing.T
	w *worker.Worker
	m *Manager

	mu     sync.Mutex
	events []event.Event
	obs    *recordingObserver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	w := worker.New(worker.WithGracePeriod(time.Second))
	require.NoError(t, w.Start())

	h := &harness{t: t, w: w, obs: &recordingObserver{}}
	h.m = NewManager(w, WithObserver(h.obs))
	w.OnStop(func(ctx context.Context) { _ = h.m.Shutdown(ctx) })
	h.m.RegisterCallback("recorder", func(e event.Event) {
		h.mu.Lock()
		h.events = append(h.events, e)
		h.mu.Unlock()
	})

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.Stop(ctx)
	})
	return h
}

// do runs fn on the loop and waits for it.
func (h *harness) do(fn func()) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := h.w.Submit("test", func(context.Context) (any, error) {
		fn()
		return nil, nil
	}).Wait(ctx)
	require.NoError(h.t, err)
}

func (h *harness) add(t Task) bool {
	var started bool
	h.do(func() { started = h.m.Add(t) })
	return started
}

func (h *harness) names() []string {
	var names []string
	h.do(func() { names = h.m.Names() })
	return names
}

func (h *harness) recorded() []event.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]event.Event(nil), h.events...)
}

func (h *harness) waitFor(cond func([]event.Event) bool) []event.Event {
	h.t.Helper()
	var got []event.Event
	require.Eventually(h.t, func() bool {
		got = h.recorded()
		return cond(got)
	}, 5*time.Second, 5*time.Millisecond)
	return got
}

func ofType[T event.Event](events []event.Event) []T {
	var out []T
	for _, e := range events {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions []string
	events      int
}

func (o *recordingObserver) TaskTransition(name string, outcome Outcome) {
	o.mu.Lock()
	o.transitions = append(o.transitions, name+":"+string(outcome))
	o.mu.Unlock()
}

func (o *recordingObserver) EventTriggered(event.Event) {
	o.mu.Lock()
	o.events++
	o.mu.Unlock()
}

func (o *recordingObserver) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.transitions...)
}

// blockingTask runs until cancelled or released.
type blockingTask struct {
	Base
	name      string
	release   chan struct{}
	cancelled chan struct{}
	info      string
	replace   bool
	stopOn    event.Tag
}

func newBlocking(name string) *blockingTask {
	return &blockingTask{name: name, release: make(chan struct{}), cancelled: make(chan struct{})}
}

func (b *blockingTask) Name() string { return b.name }
func (b *blockingTask) Info() string { return b.info }

func (b *blockingTask) Execute(ctx context.Context, _ Emitter) error {
	select {
	case <-ctx.Done():
		close(b.cancelled)
		return ctx.Err()
	case <-b.release:
		return nil
	}
}

func (b *blockingTask) Merge(old Task) (Task, string) {
	if b.replace {
		return Replace(b, "replaced "+Key(old))
	}
	return nil, ""
}

func (b *blockingTask) OnEvent(e event.Event) bool {
	return b.stopOn != "" && event.HasTag(e, b.stopOn)
}

type ping struct {
	event.Base
	N int
}
