package worker

import (
	"context"
	"errors"
	"time"

	"github.com/zjrosen/deskmate/internal/log"
)

// Middleware wraps a job. name is the job name given at submission.
type Middleware func(name string, next Func) Func

// ChainMiddleware applies middlewares so the first one is outermost:
// ChainMiddleware(n, fn, a, b) runs a(b(fn)).
func ChainMiddleware(name string, fn Func, middlewares ...Middleware) Func {
	for i := len(middlewares) - 1; i >= 0; i-- {
		fn = middlewares[i](name, fn)
	}
	return fn
}

// LoggingMiddleware logs every job at debug level and failures at warn.
// Jobs faster than slow are only logged when they fail.
func LoggingMiddleware(slow time.Duration) Middleware {
	return func(name string, next Func) Func {
		return func(ctx context.Context) (any, error) {
			start := time.Now()
			v, err := next(ctx)
			elapsed := time.Since(start)

			switch {
			case err != nil && !errors.Is(err, context.Canceled):
				log.Warn(log.CatWorker, "job failed", "job", name, "duration", elapsed, "error", err)
			case elapsed >= slow:
				log.Debug(log.CatWorker, "slow job", "job", name, "duration", elapsed)
			}
			return v, err
		}
	}
}
