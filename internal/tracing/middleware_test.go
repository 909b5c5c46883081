package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zjrosen/deskmate/internal/worker"
)

func TestWorkerMiddleware_RecordsLoopJobs(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	w := worker.New(worker.WithMiddleware(WorkerMiddleware(tp.Tracer("test"))))
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := w.Submit("plugin.init", func(context.Context) (any, error) { return nil, nil }).Wait(ctx)
	require.NoError(t, err)
	_, err = w.Submit("plugin.reload", func(context.Context) (any, error) { return nil, errors.New("bad yaml") }).Wait(ctx)
	require.Error(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 2)

	require.Equal(t, "worker.plugin.init", spans[0].Name())
	require.Equal(t, codes.Ok, spans[0].Status().Code)
	attrs := map[string]any{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	require.Equal(t, "plugin.init", attrs[AttrJobName])
	require.Equal(t, true, attrs[AttrInLoop])

	require.Equal(t, codes.Error, spans[1].Status().Code)
	require.Equal(t, "bad yaml", spans[1].Status().Description)
}

func TestWorkerMiddleware_NilTracerPassesThrough(t *testing.T) {
	called := false
	fn := WorkerMiddleware(nil)("job", func(context.Context) (any, error) {
		called = true
		return 42, nil
	})
	v, err := fn(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.True(t, called)
}
