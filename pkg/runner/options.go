package runner

import (
	"log/slog"
)

// DefaultChannelID tags activities produced by the runner.
const DefaultChannelID = "console"

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithHandler configures a custom IOHandler.
func WithHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.handler = handler
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithConversationID resumes a known conversation instead of a fresh one.
func WithConversationID(id string) Option {
	return func(r *Runner) {
		r.conversationID = id
	}
}

// WithLocale sets the locale attached to every activity.
func WithLocale(locale string) Option {
	return func(r *Runner) {
		r.locale = locale
	}
}

// WithChannelID overrides DefaultChannelID.
func WithChannelID(id string) Option {
	return func(r *Runner) {
		r.channelID = id
	}
}

// WithUser sets the account the runner speaks as.
func WithUser(id, name string) Option {
	return func(r *Runner) {
		r.user.ID = id
		r.user.Name = name
	}
}
