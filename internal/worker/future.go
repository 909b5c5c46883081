package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Future is the handle returned for a submitted job. It resolves exactly
// once, with either a value or an error.
type Future struct {
	id   string
	name string

	once sync.Once
	done chan struct{}
	val  any
	err  error
}

func newFuture(name string) *Future {
	return &Future{
		id:   uuid.NewString(),
		name: name,
		done: make(chan struct{}),
	}
}

// ID uniquely identifies the submission.
func (f *Future) ID() string { return f.id }

// Name is the job name given at submission.
func (f *Future) Name() string { return f.name }

// Done is closed when the future resolves.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the future resolves or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome without blocking. ok is false while pending.
func (f *Future) Result() (val any, err error, ok bool) {
	select {
	case <-f.done:
		return f.val, f.err, true
	default:
		return nil, nil, false
	}
}

// resolve settles the future; later calls are ignored and report false.
func (f *Future) resolve(val any, err error) bool {
	resolved := false
	f.once.Do(func() {
		if err != nil {
			val = nil
		}
		f.val, f.err = val, err
		close(f.done)
		resolved = true
	})
	return resolved
}

// Await waits for f and asserts its value to T. A nil value yields T's
// zero value.
func Await[T any](ctx context.Context, f *Future) (T, error) {
	var zero T
	v, err := f.Wait(ctx)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("job %s returned %T, want %T", f.name, v, zero)
	}
	return t, nil
}
