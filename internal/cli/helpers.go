package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aretw0/ddialog/internal/config"
	"github.com/aretw0/ddialog/internal/logging"
	"github.com/aretw0/ddialog/pkg/domain"
)

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// It acts as a drop-in replacement for signal.NotifyContext but allows retrieving the signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sc.sigCh:
			sc.mu.Lock()
			sc.sigVal = sig
			sc.mu.Unlock()
			sc.Cancel()
		case <-sc.Context.Done():
		}
		sc.stop.Do(func() {
			signal.Stop(sc.sigCh)
		})
	}()
	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// CreateLogger configures the application logger on w (stderr in the
// commands, so it never mixes with the conversation on stdout).
// debug forces the debug level.
func CreateLogger(w io.Writer, cfg config.LogConfig, debug bool) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if debug {
		level = slog.LevelDebug
	}
	return logging.NewWithWriter(w, level, cfg.Format), nil
}

// PrintSystemMessage prints a standardized system message.
func PrintSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepEnter: func(ctx context.Context, e *domain.StepEvent) {
			logger.Debug("Enter Step", "conversation_id", e.ConversationID, "dialog", e.Dialog, "step", e.Step, "index", e.Index)
		},
		OnStepComplete: func(ctx context.Context, e *domain.StepEvent) {
			logger.Debug("Step Complete", "conversation_id", e.ConversationID, "step", e.Step, "value", e.Result.Value)
		},
		OnStepRetry: func(ctx context.Context, e *domain.StepEvent) {
			logger.Debug("Step Retry", "conversation_id", e.ConversationID, "step", e.Step)
		},
		OnConfirmation: func(ctx context.Context, e *domain.StepEvent) {
			logger.Debug("Confirmation", "conversation_id", e.ConversationID, "step", e.Step, "confirmed", e.Confirmed != nil && *e.Confirmed)
		},
		OnDialogComplete: func(ctx context.Context, e *domain.DialogEvent) {
			logger.Debug("Dialog Complete", "conversation_id", e.ConversationID, "dialog", e.Dialog)
		},
	}
}

func logCompletion(logger *slog.Logger) func(context.Context, *domain.DialogResult) ([]domain.Action, error) {
	return func(_ context.Context, r *domain.DialogResult) ([]domain.Action, error) {
		logger.Info("Dialog result",
			"conversation_id", r.ConversationID,
			"dialog", r.Dialog,
			"values", r.Values,
		)
		return nil, nil
	}
}
