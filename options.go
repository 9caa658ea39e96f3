package ddialog

import (
	"context"
	"log/slog"

	"github.com/aretw0/ddialog/internal/runtime"
	"github.com/aretw0/ddialog/pkg/domain"
	"github.com/aretw0/ddialog/pkg/observability"
	"github.com/aretw0/ddialog/pkg/ports"
)

// CompletionPolicy decides what happens after the last step of a dialog.
type CompletionPolicy = runtime.CompletionPolicy

const (
	// CompletionRestart starts the dialog over at its first step (default).
	CompletionRestart = runtime.CompletionRestart
	// CompletionEnd returns the conversation to idle.
	CompletionEnd = runtime.CompletionEnd
)

// CompletionHandler receives every finished dialog run. Returned actions are
// sent after the stepper's own actions.
type CompletionHandler func(ctx context.Context, result *domain.DialogResult) ([]domain.Action, error)

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLoader injects a custom DefinitionLoader, bypassing the default Loam initialization.
func WithLoader(l ports.DefinitionLoader) Option {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithStore sets the progress store (default: in-memory).
func WithStore(s ports.ProgressStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithLocker enables distributed locking of conversations.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithRecognizer registers the recognizer for steps whose model is named model.
func WithRecognizer(model string, r ports.Recognizer) Option {
	return func(e *Engine) {
		if e.recognizers == nil {
			e.recognizers = make(map[string]ports.Recognizer)
		}
		e.recognizers[model] = r
	}
}

// WithDispatchRecognizer sets the recognizer run on the first message of an
// idle conversation to choose a dialog by intent.
func WithDispatchRecognizer(r ports.Recognizer) Option {
	return func(e *Engine) {
		e.dispatch = r
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = domain.MergeHooks(e.hooks, hooks)
	}
}

// WithTelemetrySinks adds sinks for custom telemetry events.
func WithTelemetrySinks(sinks ...ports.TelemetrySink) Option {
	return func(e *Engine) {
		e.sinks = append(e.sinks, sinks...)
	}
}

// WithRedaction masks telemetry properties whose key matches any pattern.
func WithRedaction(patterns ...string) Option {
	return func(e *Engine) {
		e.redact = append(e.redact, patterns...)
	}
}

// WithStrictTelemetry turns unsupported telemetry addresses into a
// configuration error instead of a warning.
func WithStrictTelemetry(strict bool) Option {
	return func(e *Engine) {
		e.strictTelemetry = strict
	}
}

// WithMetrics wires Prometheus metrics as hooks and as a telemetry sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithRunMode sets the environment; dialogs restricted to another mode are
// not dispatched.
func WithRunMode(mode domain.RunMode) Option {
	return func(e *Engine) {
		e.runMode = mode
	}
}

// WithDefaultDialog sets the dialog started when no dispatch intent matches.
func WithDefaultDialog(name string) Option {
	return func(e *Engine) {
		e.defaultDialog = name
	}
}

// WithCompletionPolicy sets what happens after the last step.
func WithCompletionPolicy(p CompletionPolicy) Option {
	return func(e *Engine) {
		e.completion = p
	}
}

// WithCompletionHandler registers the application's completion callback.
func WithCompletionHandler(h CompletionHandler) Option {
	return func(e *Engine) {
		e.onComplete = h
	}
}

// WithWelcomeText is sent when members join a conversation.
func WithWelcomeText(text string) Option {
	return func(e *Engine) {
		e.welcome = text
	}
}

// WithDefaultLocale is used for numeric recognition when an activity has no locale.
func WithDefaultLocale(locale string) Option {
	return func(e *Engine) {
		e.locale = locale
	}
}

// WithConfirmationPrompt overrides the training confirmation prompt. The
// format must hold exactly one %s, %q or %v verb, which receives the
// recognized value.
func WithConfirmationPrompt(format string) Option {
	return func(e *Engine) {
		e.confirmPrompt = format
	}
}
