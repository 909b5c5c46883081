package tracing

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(Config{})
	require.NoError(t, err)
	require.False(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), "noop")
	require.False(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_FileExporterWritesSpans(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces", "traces.jsonl")
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.FilePath = path

	p, err := NewProvider(cfg)
	require.NoError(t, err)
	require.True(t, p.Enabled())

	ctx, parent := p.Tracer().Start(context.Background(), SpanPrefixPlugin+"load")
	_, child := p.Tracer().Start(ctx, SpanPrefixTask+"move")
	child.End()
	parent.End()
	require.NoError(t, p.Shutdown(context.Background()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	byName := map[string]SpanRecord{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec SpanRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		byName[rec.Name] = rec
	}
	require.Len(t, byName, 2)
	require.Equal(t, byName["plugin.load"].SpanID, byName["task.move"].ParentSpanID)
	require.Equal(t, byName["plugin.load"].TraceID, byName["task.move"].TraceID)
}

func TestNewProvider_ConfigErrors(t *testing.T) {
	_, err := NewProvider(Config{Enabled: true, Exporter: "file"})
	require.ErrorContains(t, err, "file_path required")

	_, err = NewProvider(Config{Enabled: true, Exporter: "carrier-pigeon"})
	require.ErrorContains(t, err, "unsupported exporter type")
}

func TestNewProvider_NoneStillRecords(t *testing.T) {
	p, err := NewProvider(Config{Enabled: true, Exporter: "none"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	_, span := p.Tracer().Start(context.Background(), "in-process")
	require.True(t, span.SpanContext().IsValid())
	span.End()
}
