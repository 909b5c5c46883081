package task

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/log"
	"github.com/zjrosen/deskmate/internal/tracing"
)

// Poster schedules closures on the orchestration loop.
type Poster interface {
	Post(name string, fn func()) error
	PostWait(ctx context.Context, name string, fn func()) error
}

// Outcome classifies how a task left the running set.
type Outcome string

const (
	OutcomeStarted   Outcome = "started"
	OutcomeReplaced  Outcome = "replaced"
	OutcomeRejected  Outcome = "rejected"
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Observer is told about task transitions and every broadcast event.
type Observer interface {
	TaskTransition(name string, outcome Outcome)
	EventTriggered(e event.Event)
}

// Callback receives every broadcast event after running tasks have.
type Callback func(e event.Event)

// Option configures the Manager.
type Option func(*Manager)

// WithTracer records a span per task run.
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) {
		if t != nil {
			m.tracer = t
		}
	}
}

// WithObserver reports transitions and events, typically to metrics.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

type entry struct {
	id      uint64
	name    string
	task    Task
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time

	// finished is set on the task goroutine once the body returned, ahead
	// of the finish job reaching the loop.
	finished atomic.Bool
}

type callback struct {
	key string
	fn  Callback
}

// Manager owns the running tasks and the event broadcast.
type Manager struct {
	poster   Poster
	tracer   trace.Tracer
	observer Observer

	ctx    context.Context
	cancel context.CancelFunc

	// loop-owned
	running  map[string]*entry
	order    []*entry
	draining map[*entry]struct{} // replaced runs whose bodies have not returned
	nextID   uint64
	closed   bool

	cbMu      sync.RWMutex
	callbacks []callback
}

// NewManager creates a Manager that schedules its own follow-up work via
// poster.
func NewManager(poster Poster, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		poster:  poster,
		tracer:  noop.NewTracerProvider().Tracer("task"),
		ctx:     ctx,
		cancel:  cancel,
		running:  make(map[string]*entry),
		draining: make(map[*entry]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add submits t. With no task of the same name running, t starts. Otherwise
// t.Merge decides: the chosen task replaces the running one (which is
// cancelled first) or the submission is rejected. A NewTask event is
// broadcast either way. Add reports whether a task started.
func (m *Manager) Add(t Task) bool {
	name := Key(t)
	if m.closed {
		log.Warn(log.CatTask, "task submitted after shutdown", "task", name)
		return false
	}

	old := m.running[name]
	if old != nil && old.finished.Load() {
		// The body already returned; only its finish job is pending.
		m.detach(old)
		m.draining[old] = struct{}{}
		old = nil
	}
	run, msg := t, ""
	var oldTask Task
	if old != nil {
		oldTask = old.task
		run, msg = t.Merge(old.task)
	}

	switch {
	case run == nil:
		log.Debug(log.CatTask, "task rejected", "task", name)
		m.transition(name, OutcomeRejected)
	case old != nil:
		m.detach(old)
		m.draining[old] = struct{}{}
		old.cancel()
		log.Debug(log.CatTask, "task replaced", "task", name, "message", msg)
		m.transition(name, OutcomeReplaced)
		m.start(name, run)
	default:
		m.start(name, run)
	}

	m.TriggerEvent(NewTask{Old: oldTask, New: t, Run: run, Message: msg})
	return run != nil
}

// TriggerEvent delivers e to every running task in start order, then to
// every callback in registration order.
func (m *Manager) TriggerEvent(e event.Event) {
	if m.observer != nil {
		m.observer.EventTriggered(e)
	}
	log.Debug(log.CatEvent, "trigger", "event", event.Name(e))

	for _, en := range slices.Clone(m.order) {
		if m.running[en.name] != en {
			continue
		}
		if m.deliver(en, e) {
			log.Debug(log.CatTask, "task cancelled itself", "task", en.name, "event", event.Name(e))
			en.cancel()
		}
	}

	m.cbMu.RLock()
	cbs := slices.Clone(m.callbacks)
	m.cbMu.RUnlock()
	for _, cb := range cbs {
		m.invoke(cb, e)
	}
}

// RegisterCallback adds fn under key. Registering a key twice is a
// programming error and panics with ErrDuplicateCallback. Safe from any
// goroutine.
func (m *Manager) RegisterCallback(key string, fn Callback) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	for _, cb := range m.callbacks {
		if cb.key == key {
			panic(fmt.Errorf("%w: %s", ErrDuplicateCallback, key))
		}
	}
	m.callbacks = append(m.callbacks, callback{key: key, fn: fn})
}

// RemoveCallback removes the callback under key and reports whether it
// existed. Safe from any goroutine.
func (m *Manager) RemoveCallback(key string) bool {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	for i, cb := range m.callbacks {
		if cb.key == key {
			m.callbacks = slices.Delete(m.callbacks, i, i+1)
			return true
		}
	}
	return false
}

// ExecuteInfos returns the non-empty Info of every running task in start
// order.
func (m *Manager) ExecuteInfos() []string {
	var infos []string
	for _, en := range m.order {
		if info := en.task.Info(); info != "" {
			infos = append(infos, info)
		}
	}
	return infos
}

// Cancel cancels the task running under name and reports whether there was
// one. The entry leaves the running set once its body returns.
func (m *Manager) Cancel(name string) bool {
	en, ok := m.running[name]
	if !ok {
		return false
	}
	log.Debug(log.CatTask, "task cancel requested", "task", name)
	en.cancel()
	return true
}

// Running returns the task running under name.
func (m *Manager) Running(name string) (Task, bool) {
	en, ok := m.running[name]
	if !ok {
		return nil, false
	}
	return en.task, true
}

// Names lists running task names in start order.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.order))
	for _, en := range m.order {
		names = append(names, en.name)
	}
	return names
}

// Emitter returns an Emitter usable from any goroutine. Deliveries are
// dropped, with a warning, if the loop queue is full.
func (m *Manager) Emitter() Emitter {
	return loopEmitter{m: m}
}

// Shutdown cancels every running task and waits for their bodies, and those
// of replaced runs still unwinding, to return or for ctx to end. Later
// submissions are refused.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closed = true
	m.cancel()

	entries := slices.Clone(m.order)
	for _, en := range entries {
		m.detach(en)
	}
	for en := range m.draining {
		entries = append(entries, en)
	}
	clear(m.draining)

	var waitErr error
	for _, en := range entries {
		select {
		case <-en.done:
		case <-ctx.Done():
			log.Warn(log.CatTask, "task did not unwind in time", "task", en.name)
			waitErr = ctx.Err()
		}
		if waitErr != nil {
			break
		}
	}
	log.Debug(log.CatTask, "task manager shut down", "tasks", len(entries))
	return waitErr
}

func (m *Manager) start(name string, t Task) {
	ctx, cancel := context.WithCancel(m.ctx)
	m.nextID++
	en := &entry{
		id:      m.nextID,
		name:    name,
		task:    t,
		cancel:  cancel,
		done:    make(chan struct{}),
		started: time.Now(),
	}
	m.running[name] = en
	m.order = append(m.order, en)
	m.transition(name, OutcomeStarted)
	log.Debug(log.CatTask, "task started", "task", name, "run", en.id)

	go m.execute(ctx, en)
}

// execute runs on the task's own goroutine.
func (m *Manager) execute(ctx context.Context, en *entry) {
	defer close(en.done)

	ctx, span := m.tracer.Start(ctx, tracing.SpanPrefixTask+en.name, trace.WithAttributes(
		attribute.String(tracing.AttrTaskName, en.name),
		attribute.Int64(tracing.AttrTaskRun, int64(en.id)),
	))
	err := m.runBody(ctx, en)
	en.finished.Store(true)
	switch {
	case err == nil:
	case isCancellation(ctx, err):
		span.SetAttributes(attribute.Bool(tracing.AttrTaskCanceled, true))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	finish := func() { m.finish(ctx, en, err) }
	if perr := m.poster.PostWait(context.Background(), "task.finish:"+en.name, finish); perr != nil {
		log.Debug(log.CatTask, "task finished after loop stopped", "task", en.name, "error", perr)
	}
}

func (m *Manager) runBody(ctx context.Context, en *entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(log.CatTask, "task panicked", "task", en.name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return en.task.Execute(ctx, &taskEmitter{m: m, ctx: ctx})
}

// finish runs on the loop once a body has returned.
func (m *Manager) finish(ctx context.Context, en *entry, err error) {
	if m.running[en.name] == en {
		m.detach(en)
	}
	delete(m.draining, en)
	en.cancel()

	elapsed := time.Since(en.started)
	switch {
	case err == nil:
		log.Debug(log.CatTask, "task completed", "task", en.name, "duration", elapsed)
		m.transition(en.name, OutcomeCompleted)
	case isCancellation(ctx, err):
		log.Debug(log.CatTask, "task cancelled", "task", en.name, "duration", elapsed)
		m.transition(en.name, OutcomeCancelled)
	default:
		log.ErrorErr(log.CatTask, "task failed", err, "task", en.name, "duration", elapsed)
		m.transition(en.name, OutcomeFailed)
		if !m.closed {
			m.TriggerEvent(Failed{Name: en.name, Err: err})
		}
	}
}

func (m *Manager) detach(en *entry) {
	if m.running[en.name] == en {
		delete(m.running, en.name)
	}
	m.order = slices.DeleteFunc(m.order, func(o *entry) bool { return o == en })
}

func (m *Manager) deliver(en *entry, e event.Event) (stop bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(log.CatTask, "task event hook panicked", "task", en.name, "event", event.Name(e), "panic", r)
			stop = false
		}
	}()
	return en.task.OnEvent(e)
}

func (m *Manager) invoke(cb callback, e event.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(log.CatEvent, "callback panicked", "callback", cb.key, "event", event.Name(e), "panic", r, "stack", string(debug.Stack()))
		}
	}()
	cb.fn(e)
}

func (m *Manager) transition(name string, o Outcome) {
	if m.observer != nil {
		m.observer.TaskTransition(name, o)
	}
}

func isCancellation(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || (ctx.Err() != nil && errors.Is(err, ctx.Err()))
}

// taskEmitter is handed to task bodies; it stops delivering once the task's
// context is cancelled.
type taskEmitter struct {
	m   *Manager
	ctx context.Context
}

func (te *taskEmitter) TriggerEvent(e event.Event) {
	if te.ctx.Err() != nil {
		return
	}
	if err := te.m.poster.PostWait(te.ctx, "task.event:"+event.Name(e), func() { te.m.TriggerEvent(e) }); err != nil && te.ctx.Err() == nil {
		log.Warn(log.CatTask, "event from task dropped", "event", event.Name(e), "error", err)
	}
}

func (te *taskEmitter) AddTask(t Task) {
	if te.ctx.Err() != nil {
		return
	}
	if err := te.m.poster.PostWait(te.ctx, "task.add:"+Key(t), func() { te.m.Add(t) }); err != nil && te.ctx.Err() == nil {
		log.Warn(log.CatTask, "task from task dropped", "task", Key(t), "error", err)
	}
}

type loopEmitter struct {
	m *Manager
}

func (le loopEmitter) TriggerEvent(e event.Event) {
	if err := le.m.poster.Post("event:"+event.Name(e), func() { le.m.TriggerEvent(e) }); err != nil {
		log.Warn(log.CatEvent, "event dropped", "event", event.Name(e), "error", err)
	}
}

func (le loopEmitter) AddTask(t Task) {
	if err := le.m.poster.Post("task.add:"+Key(t), func() { le.m.Add(t) }); err != nil {
		log.Warn(log.CatTask, "task dropped", "task", Key(t), "error", err)
	}
}
