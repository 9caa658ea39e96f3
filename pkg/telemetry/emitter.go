package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"time"

	"github.com/aretw0/ddialog/pkg/domain"
	"github.com/aretw0/ddialog/pkg/ports"
	"github.com/google/uuid"
)

// Emitter resolves TelemetryDefinitions and hands the resulting events to
// every sink. Emission never fails the caller: sink errors and panics are
// logged and dropped.
type Emitter struct {
	resolver *Resolver
	sinks    []ports.TelemetrySink
	redact   []*regexp.Regexp
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures the Emitter.
type Option func(*Emitter)

// WithSinks appends sinks.
func WithSinks(sinks ...ports.TelemetrySink) Option {
	return func(e *Emitter) {
		for _, s := range sinks {
			if s != nil {
				e.sinks = append(e.sinks, s)
			}
		}
	}
}

// WithRedaction masks properties whose key matches any of the patterns.
// Patterns must compile; see CompilePatterns.
func WithRedaction(patterns ...string) Option {
	return func(e *Emitter) {
		for _, p := range patterns {
			e.redact = append(e.redact, regexp.MustCompile(p))
		}
	}
}

// WithLogger sets the logger used for swallowed sink failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Emitter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithResolver replaces the default resolver.
func WithResolver(r *Resolver) Option {
	return func(e *Emitter) {
		if r != nil {
			e.resolver = r
		}
	}
}

// NewEmitter creates an Emitter. Without sinks, Emit is a no-op.
func NewEmitter(opts ...Option) *Emitter {
	e := &Emitter{
		resolver: NewResolver(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolver returns the resolver used by the emitter.
func (e *Emitter) Resolver() *Resolver {
	return e.resolver
}

// Emit resolves each definition against scope and tracks one event per
// definition on every sink.
func (e *Emitter) Emit(ctx context.Context, conversationID string, defs []domain.TelemetryDefinition, scope *Scope) {
	if len(e.sinks) == 0 || len(defs) == 0 {
		return
	}

	for _, def := range defs {
		props := e.resolver.Resolve(scope, def.Fields)
		mask(props, e.redact)

		event := domain.TelemetryEvent{
			ID:             uuid.NewString(),
			Name:           def.EventName,
			ConversationID: conversationID,
			Timestamp:      e.now().UTC(),
			Properties:     props,
		}

		for _, sink := range e.sinks {
			e.track(ctx, sink, event)
		}
	}
}

func (e *Emitter) track(ctx context.Context, sink ports.TelemetrySink, event domain.TelemetryEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Telemetry sink panicked", "event", event.Name, "panic", fmt.Sprint(r))
		}
	}()

	if err := sink.Track(ctx, event); err != nil {
		e.logger.Warn("Telemetry sink failed", "event", event.Name, "err", err)
	}
}

// CompilePatterns checks redaction patterns up front.
func CompilePatterns(patterns []string) error {
	for _, p := range patterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
	}
	return nil
}

func mask(props map[string]string, patterns []*regexp.Regexp) {
	for k := range props {
		for _, p := range patterns {
			if p.MatchString(k) {
				props[k] = "***"
				break
			}
		}
	}
}
