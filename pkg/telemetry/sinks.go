package telemetry

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/ddialog/pkg/domain"
)

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
	Level  slog.Level
}

// NewLogSink logs events at info level.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{Logger: logger, Level: slog.LevelInfo}
}

// Track implements ports.TelemetrySink.
func (s *LogSink) Track(ctx context.Context, event domain.TelemetryEvent) error {
	keys := make([]string, 0, len(event.Properties))
	for k := range event.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	props := make([]any, 0, len(keys))
	for _, k := range keys {
		props = append(props, slog.String(k, event.Properties[k]))
	}

	s.Logger.Log(ctx, s.Level, "Telemetry event",
		"event", event.Name,
		"event_id", event.ID,
		"conversation_id", event.ConversationID,
		slog.Group("properties", props...),
	)
	return nil
}

// MemorySink records events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []domain.TelemetryEvent
}

// Track implements ports.TelemetrySink.
func (s *MemorySink) Track(_ context.Context, event domain.TelemetryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (s *MemorySink) Events() []domain.TelemetryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TelemetryEvent(nil), s.events...)
}

// Named returns the recorded events with the given name.
func (s *MemorySink) Named(name string) []domain.TelemetryEvent {
	var out []domain.TelemetryEvent
	for _, e := range s.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// SinkFunc adapts a function to ports.TelemetrySink.
type SinkFunc func(ctx context.Context, event domain.TelemetryEvent) error

// Track calls f.
func (f SinkFunc) Track(ctx context.Context, event domain.TelemetryEvent) error {
	return f(ctx, event)
}
