// Package observability carries kernel events to logs and metrics. Every
// subsystem emits Events through an Observer; observers decide where they
// go. Level values follow OpenTelemetry SeverityNumbers.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// Level is event severity on the OTel SeverityNumber scale.
type Level int

const (
	LevelVerbose Level = 5  // DEBUG
	LevelInfo    Level = 9  // INFO
	LevelWarning Level = 13 // WARN
	LevelError   Level = 17 // ERROR
)

// String returns the OTel severity text.
func (l Level) String() string {
	switch {
	case l <= 4:
		return "TRACE"
	case l <= 8:
		return "DEBUG"
	case l <= 12:
		return "INFO"
	case l <= 16:
		return "WARN"
	case l <= 20:
		return "ERROR"
	default:
		return "FATAL"
	}
}

// SlogLevel maps l onto slog's four levels.
func (l Level) SlogLevel() slog.Level {
	switch {
	case l <= 8:
		return slog.LevelDebug
	case l <= 12:
		return slog.LevelInfo
	case l <= 16:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// EventType names an event, e.g. "kernel.execute.start" or "comm.open".
// Packages declare their own constants.
type EventType string

// Event is one occurrence reported by a subsystem. A "duration" entry in Data
// holding a time.Duration is treated as the event's elapsed time.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// DurationKey is the Data key observers read elapsed time from.
const DurationKey = "duration"

// Duration returns the event's elapsed time, if it carries one.
func (e Event) Duration() (time.Duration, bool) {
	d, ok := e.Data[DurationKey].(time.Duration)
	return d, ok
}

// Observer receives events.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// Emit sends an event stamped with the current time. A nil observer is
// ignored.
func Emit(ctx context.Context, obs Observer, t EventType, level Level, source string, data map[string]any) {
	if obs == nil {
		return
	}
	obs.OnEvent(ctx, Event{
		Type:      t,
		Level:     level,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	})
}
