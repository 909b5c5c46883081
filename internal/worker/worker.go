// Package worker runs the orchestration loop: one goroutine that owns all
// task and plugin state, fed by a bounded FIFO queue that any goroutine may
// submit to. Callers observe results through a Future that resolves exactly
// once.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zjrosen/deskmate/internal/log"
)

const (
	// DefaultQueueCapacity is the default buffer size for the job queue.
	DefaultQueueCapacity = 1024
	// DefaultGracePeriod bounds how long Stop waits for in-flight work.
	DefaultGracePeriod = 2 * time.Second
)

var (
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("worker already started")
	// ErrNotStarted resolves submissions made before Start.
	ErrNotStarted = errors.New("worker not started")
	// ErrStopped resolves submissions made after Stop, and jobs still queued
	// when the loop exits.
	ErrStopped = errors.New("worker stopped")
	// ErrQueueFull resolves submissions that find the queue at capacity.
	ErrQueueFull = errors.New("worker queue full")
	// ErrPanic wraps a panic recovered from a job.
	ErrPanic = errors.New("job panicked")
)

// Func is a unit of work. Jobs run on the loop receive a context that is
// cancelled when the worker stops and for which InLoop reports true.
type Func func(ctx context.Context) (any, error)

// Hook runs on the loop while the worker stops. ctx expires with the grace
// period.
type Hook func(ctx context.Context)

// Option configures the Worker.
type Option func(*Worker)

// WithQueueCapacity sets the job queue capacity.
func WithQueueCapacity(capacity int) Option {
	return func(w *Worker) {
		if capacity > 0 {
			w.queueCapacity = capacity
		}
	}
}

// WithGracePeriod sets how long Stop gives hooks and helpers to unwind.
func WithGracePeriod(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.grace = d
		}
	}
}

// WithMiddleware wraps every job. The first middleware is outermost.
func WithMiddleware(middlewares ...Middleware) Option {
	return func(w *Worker) {
		w.middlewares = append(w.middlewares, middlewares...)
	}
}

type state int32

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

type job struct {
	name string
	fn   Func
	fut  *Future
}

// Worker owns the orchestration loop.
type Worker struct {
	queue         chan job
	queueCapacity int
	grace         time.Duration
	middlewares   []Middleware

	// mu guards state transitions against queue sends and helper spawns.
	mu    sync.RWMutex
	state state

	started  bool
	base     context.Context // cancelled on stop
	ctx      context.Context // base plus the loop marker
	cancel   context.CancelFunc
	stopCh   chan struct{}
	loopDone chan struct{}
	helpers  sync.WaitGroup

	hooksMu sync.Mutex
	hooks   []Hook

	processed atomic.Int64
	failed    atomic.Int64
}

// New creates a Worker. Nothing runs until Start.
func New(opts ...Option) *Worker {
	w := &Worker{
		queueCapacity: DefaultQueueCapacity,
		grace:         DefaultGracePeriod,
		stopCh:        make(chan struct{}),
		loopDone:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.queue = make(chan job, w.queueCapacity)
	return w
}

// Start launches the loop goroutine. It may be called once.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case stateRunning:
		return ErrAlreadyStarted
	case stateStopped:
		return ErrStopped
	}

	w.base, w.cancel = context.WithCancel(context.Background())
	w.ctx = context.WithValue(w.base, loopKey{}, w)
	w.started = true
	w.state = stateRunning

	go w.loop()
	log.Debug(log.CatWorker, "worker started", "queue_capacity", w.queueCapacity)
	return nil
}

// OnStop registers a hook run on the loop during Stop, before the worker
// context is cancelled. Hooks run in reverse registration order.
func (w *Worker) OnStop(h Hook) {
	w.hooksMu.Lock()
	w.hooks = append(w.hooks, h)
	w.hooksMu.Unlock()
}

// Submit schedules fn on the loop. The returned future carries fn's result.
func (w *Worker) Submit(name string, fn Func) *Future {
	fut := newFuture(name)
	if err := w.send(job{name: name, fn: fn, fut: fut}); err != nil {
		fut.resolve(nil, err)
	}
	return fut
}

// Go runs fn on a tracked goroutine with the worker's context and resolves
// the future with its outcome. Use it for work that waits; anything
// touching loop-owned state must go through Submit or Post instead.
func (w *Worker) Go(name string, fn Func) *Future {
	fut := newFuture(name)

	w.mu.RLock()
	st := w.state
	if st == stateRunning {
		w.helpers.Add(1)
	}
	w.mu.RUnlock()

	switch st {
	case stateIdle:
		fut.resolve(nil, ErrNotStarted)
		return fut
	case stateStopped:
		fut.resolve(nil, ErrStopped)
		return fut
	}

	go func() {
		defer w.helpers.Done()
		v, err := w.run(w.base, job{name: name, fn: fn})
		fut.resolve(v, err)
	}()
	return fut
}

// Post schedules fn on the loop without waiting. It fails fast when the
// worker is not running or the queue is full.
func (w *Worker) Post(name string, fn func()) error {
	return w.send(job{name: name, fn: func(context.Context) (any, error) {
		fn()
		return nil, nil
	}})
}

// PostWait is Post that waits for queue space until ctx is done or the
// worker stops. It must not be called from the loop.
func (w *Worker) PostWait(ctx context.Context, name string, fn func()) error {
	backoff := time.Millisecond
	for {
		err := w.Post(name, fn)
		if !errors.Is(err, ErrQueueFull) {
			return err
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-w.stopCh:
			timer.Stop()
			return ErrStopped
		case <-timer.C:
		}
		if backoff < 50*time.Millisecond {
			backoff *= 2
		}
	}
}

// Stop closes intake, runs stop hooks on the loop, cancels the worker
// context and waits up to the grace period for Go helpers. Jobs still
// queued resolve with ErrStopped. Stop is idempotent; it returns ctx's
// error if ctx ends before the loop exits.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	prev, started := w.state, w.started
	w.state = stateStopped
	if prev == stateRunning {
		close(w.stopCh)
	}
	w.mu.Unlock()

	if !started {
		return nil
	}
	if prev == stateRunning {
		log.Debug(log.CatWorker, "worker stopping", "queued", len(w.queue))
	}

	select {
	case <-w.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the loop has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.loopDone
}

// IsRunning reports whether the worker accepts submissions.
func (w *Worker) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state == stateRunning
}

// Stats reports how many loop jobs ran and how many returned an error.
func (w *Worker) Stats() (processed, failed int64) {
	return w.processed.Load(), w.failed.Load()
}

// QueueLength returns the number of pending jobs.
func (w *Worker) QueueLength() int {
	return len(w.queue)
}

type loopKey struct{}

// InLoop reports whether ctx was handed out by a worker to a job.
func InLoop(ctx context.Context) bool {
	_, ok := ctx.Value(loopKey{}).(*Worker)
	return ok
}

func (w *Worker) send(j job) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	switch w.state {
	case stateIdle:
		return ErrNotStarted
	case stateStopped:
		return ErrStopped
	}

	select {
	case w.queue <- j:
		return nil
	default:
		log.Warn(log.CatWorker, "queue full", "job", j.name, "capacity", w.queueCapacity)
		return ErrQueueFull
	}
}

func (w *Worker) loop() {
	defer close(w.loopDone)

	for {
		// A pending stop wins over queued jobs.
		select {
		case <-w.stopCh:
			w.shutdown()
			return
		default:
		}

		select {
		case <-w.stopCh:
			w.shutdown()
			return
		case j := <-w.queue:
			v, err := w.run(w.ctx, j)
			w.processed.Add(1)
			if err != nil {
				w.failed.Add(1)
			}
			if j.fut != nil {
				j.fut.resolve(v, err)
			}
		}
	}
}

func (w *Worker) shutdown() {
	graceCtx, cancel := context.WithTimeout(context.WithValue(context.Background(), loopKey{}, w), w.grace)
	defer cancel()

	w.hooksMu.Lock()
	hooks := append([]Hook(nil), w.hooks...)
	w.hooksMu.Unlock()
	for i := len(hooks) - 1; i >= 0; i-- {
		w.runHook(graceCtx, hooks[i])
	}

	w.cancel()

	helpersDone := make(chan struct{})
	go func() {
		w.helpers.Wait()
		close(helpersDone)
	}()
	select {
	case <-helpersDone:
	case <-graceCtx.Done():
		log.Warn(log.CatWorker, "helpers still running after grace period", "grace", w.grace)
	}

	dropped := 0
	for {
		select {
		case j := <-w.queue:
			dropped++
			if j.fut != nil {
				j.fut.resolve(nil, ErrStopped)
			}
		default:
			log.Debug(log.CatWorker, "worker stopped", "dropped", dropped)
			return
		}
	}
}

func (w *Worker) runHook(ctx context.Context, h Hook) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(log.CatWorker, "stop hook panicked", "panic", r)
		}
	}()
	h(ctx)
}

// run executes one job through the middleware chain, converting a panic
// into an error so the loop survives.
func (w *Worker) run(ctx context.Context, j job) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error(log.CatWorker, "job panicked", "job", j.name, "panic", r, "stack", string(debug.Stack()))
			v, err = nil, fmt.Errorf("%w: %s: %v", ErrPanic, j.name, r)
		}
	}()
	return ChainMiddleware(j.name, j.fn, w.middlewares...)(ctx)
}
