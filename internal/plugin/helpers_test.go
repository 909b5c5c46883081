package plugin

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/deskmate/internal/config"
	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/task"
	"github.com/zjrosen/deskmate/internal/worker"
)

type env struct {
	t     *testing.T
	w     *worker.Worker
	tasks *task.Manager
	store *config.PluginStore
	reg   *Registry
	m     *Manager
	rec   *recorder

	mu     sync.Mutex
	events []event.Event
}

func newEnv(t *testing.T) *env {
	t.Helper()
	w := worker.New(worker.WithGracePeriod(time.Second))
	require.NoError(t, w.Start())

	e := &env{
		t:     t,
		w:     w,
		store: config.NewPluginStore(t.TempDir()),
		reg:   NewRegistry(),
		rec:   &recorder{},
	}
	e.tasks = task.NewManager(w)
	w.OnStop(func(ctx context.Context) { _ = e.tasks.Shutdown(ctx) })
	e.tasks.RegisterCallback("test", func(ev event.Event) {
		e.mu.Lock()
		e.events = append(e.events, ev)
		e.mu.Unlock()
	})
	e.m = NewManager(e.reg, e.store, e.tasks)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.Stop(ctx)
	})
	return e
}

// do runs fn on the loop and waits for it.
func (e *env) do(fn func()) {
	e.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := e.w.Submit("test", func(context.Context) (any, error) {
		fn()
		return nil, nil
	}).Wait(ctx)
	require.NoError(e.t, err)
}

func (e *env) init() error {
	var err error
	e.do(func() { err = e.m.Init(context.Background()) })
	return err
}

func (e *env) loaded() []string {
	var ids []string
	e.do(func() { ids = e.m.Loaded() })
	return ids
}

func (e *env) setEnabled(id string, enabled bool) error {
	var err error
	e.do(func() { err = e.m.SetEnabled(context.Background(), id, enabled) })
	return err
}

func (e *env) writeConfig(id, doc string) {
	e.t.Helper()
	path := e.store.Path(id)
	require.NoError(e.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(e.t, os.WriteFile(path, []byte(doc), 0o644))
}

func (e *env) recorded() []event.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]event.Event(nil), e.events...)
}

func (e *env) register(ds ...Descriptor) {
	e.reg.MustRegister(ds...)
}

func eventsOf[T event.Event](events []event.Event) []T {
	var out []T
	for _, ev := range events {
		if v, ok := ev.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.calls = append(r.calls, s)
	r.mu.Unlock()
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeBehavior struct {
	deps     []Dependency
	provides []Capability
	infos    []InfoGroup
	prompts  map[string]string
	tools    []Tool
	initErr  error
	onInit   func(pc *Context)
	handle   func(e event.Event)
}

type fake struct {
	id       string
	pc       *Context
	rec      *recorder
	behavior fakeBehavior

	lastDep Plugin
}

func (f *fake) Init(context.Context) error {
	f.rec.add("init:" + f.id)
	if f.behavior.onInit != nil {
		f.behavior.onInit(f.pc)
	}
	return f.behavior.initErr
}

func (f *fake) Close() error {
	f.rec.add("close:" + f.id)
	return nil
}

func (f *fake) Infos() []InfoGroup          { return f.behavior.infos }
func (f *fake) Prompts() map[string]string { return f.behavior.prompts }
func (f *fake) Tools() []Tool              { return f.behavior.tools }

func (f *fake) OnDepLoad(id string, p Plugin) {
	f.rec.add("depload:" + f.id + "<-" + id)
	f.lastDep = p
}

func (f *fake) HandleEvent(e event.Event) {
	if f.behavior.handle != nil {
		f.behavior.handle(e)
	}
}

func fakeDesc(rec *recorder, id string, behavior fakeBehavior) Descriptor {
	return Descriptor{
		ID:       id,
		Deps:     behavior.deps,
		Provides: behavior.provides,
		New: func(pc *Context) (Plugin, error) {
			return &fake{id: id, pc: pc, rec: rec, behavior: behavior}, nil
		},
	}
}

func ids(descs []Descriptor) []string {
	out := make([]string, len(descs))
	for i, d := range descs {
		out[i] = d.ID
	}
	return out
}
