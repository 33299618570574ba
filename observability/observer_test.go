package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/nbkernel/observability"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level observability.Level
		want  string
	}{
		{1, "TRACE"},
		{observability.LevelVerbose, "DEBUG"},
		{observability.LevelInfo, "INFO"},
		{observability.LevelWarning, "WARN"},
		{observability.LevelError, "ERROR"},
		{21, "FATAL"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestLevel_SlogLevel(t *testing.T) {
	tests := []struct {
		level observability.Level
		want  slog.Level
	}{
		{observability.LevelVerbose, slog.LevelDebug},
		{observability.LevelInfo, slog.LevelInfo},
		{observability.LevelWarning, slog.LevelWarn},
		{observability.LevelError, slog.LevelError},
	}

	for _, tt := range tests {
		if got := tt.level.SlogLevel(); got != tt.want {
			t.Errorf("Level(%d).SlogLevel() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestEmit(t *testing.T) {
	rec := observability.NewRecorder()
	observability.Emit(context.Background(), rec, "kernel.test", observability.LevelInfo, "test", map[string]any{"k": 1})
	observability.Emit(context.Background(), nil, "ignored", observability.LevelInfo, "test", nil)

	events := rec.Events()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Timestamp.IsZero() {
		t.Error("Emit did not stamp the event")
	}
	if events[0].Source != "test" {
		t.Errorf("source = %q, want test", events[0].Source)
	}
}

func TestMultiObserver(t *testing.T) {
	a, b := observability.NewRecorder(), observability.NewRecorder()
	multi := observability.NewMultiObserver(nil, a, nil, b)

	multi.OnEvent(context.Background(), observability.Event{Type: "x", Level: observability.LevelInfo})

	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatalf("fan-out = %d, %d; want 1, 1", len(a.Events()), len(b.Events()))
	}
}

func TestRecorder(t *testing.T) {
	rec := observability.NewRecorder()
	rec.OnEvent(context.Background(), observability.Event{Type: "a"})
	rec.OnEvent(context.Background(), observability.Event{Type: "b"})
	rec.OnEvent(context.Background(), observability.Event{Type: "a"})

	assert.Len(t, rec.Of("a"), 2)
	assert.Len(t, rec.Of("c"), 0)

	rec.Reset()
	assert.Empty(t, rec.Events())
}

func TestSlogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	obs := observability.NewSlogObserver(logger)

	obs.OnEvent(context.Background(), observability.Event{
		Type:   "kernel.execute.start",
		Level:  observability.LevelVerbose,
		Source: "kernel",
	})
	if buf.Len() != 0 {
		t.Fatalf("verbose event logged at info level: %q", buf.String())
	}

	obs.OnEvent(context.Background(), observability.Event{
		Type:   "kernel.execute.done",
		Level:  observability.LevelWarning,
		Source: "kernel",
		Data:   map[string]any{"execution_count": 3},
	})

	out := buf.String()
	for _, want := range []string{"level=WARN", "kernel.execute.done", "source=kernel", "execution_count=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %q: %s", want, out)
		}
	}
}

func TestRegistry(t *testing.T) {
	for _, name := range []string{"noop", "slog"} {
		if _, err := observability.GetObserver(name); err != nil {
			t.Errorf("GetObserver(%q): %v", name, err)
		}
	}

	_, err := observability.GetObserver("missing")
	if !errors.Is(err, observability.ErrUnknownObserver) {
		t.Errorf("GetObserver(missing) = %v, want ErrUnknownObserver", err)
	}

	rec := observability.NewRecorder()
	observability.RegisterObserver("recorder", rec)
	got, err := observability.GetObserver("recorder")
	require.NoError(t, err)
	assert.Same(t, rec, got)
	assert.Contains(t, observability.ObserverNames(), "recorder")
}

func TestMetricsObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := observability.NewMetricsObserver(reg)
	require.NoError(t, err)

	ctx := context.Background()
	m.OnEvent(ctx, observability.Event{Type: "kernel.execute.done", Level: observability.LevelInfo,
		Data: map[string]any{observability.DurationKey: 250 * time.Millisecond}})
	m.OnEvent(ctx, observability.Event{Type: "kernel.execute.done", Level: observability.LevelInfo,
		Data: map[string]any{observability.DurationKey: time.Second}})
	m.OnEvent(ctx, observability.Event{Type: "comm.unknown", Level: observability.LevelWarning})

	expected := `
# HELP nbkernel_events_total Kernel events by type and level.
# TYPE nbkernel_events_total counter
nbkernel_events_total{level="INFO",type="kernel.execute.done"} 2
nbkernel_events_total{level="WARN",type="comm.unknown"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "nbkernel_events_total"))
	count, err := testutil.GatherAndCount(reg, "nbkernel_event_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = observability.NewMetricsObserver(reg)
	assert.Error(t, err, "registering twice should fail")
}
