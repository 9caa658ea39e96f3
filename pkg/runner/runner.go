package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aretw0/ddialog"
	"github.com/aretw0/ddialog/internal/logging"
	"github.com/aretw0/ddialog/pkg/domain"
	"github.com/aretw0/ddialog/pkg/ports"
	"github.com/rs/xid"
)

// Engine is the part of *ddialog.Engine the runner needs.
type Engine interface {
	OnTurn(ctx context.Context, activity *domain.Activity, transport ports.Transport) (*ddialog.TurnResult, error)
	Reset(ctx context.Context, conversationID string) error
}

// Runner reads lines from an IOHandler and feeds them to the engine as
// message activities of a single conversation.
type Runner struct {
	engine  Engine
	handler IOHandler
	logger  *slog.Logger

	conversationID string
	channelID      string
	locale         string
	user           domain.ChannelAccount
}

// New creates a Runner. Without WithHandler it uses a TextHandler on
// Stdin/Stdout; without WithConversationID it generates a fresh id.
func New(engine Engine, opts ...Option) *Runner {
	r := &Runner{
		engine:    engine,
		channelID: DefaultChannelID,
		user:      domain.ChannelAccount{ID: "user", Name: "User", Role: "user"},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.handler == nil {
		r.handler = NewTextHandler(os.Stdin, os.Stdout)
	}
	if r.logger == nil {
		r.logger = logging.NewNop()
	}
	if r.conversationID == "" {
		r.conversationID = xid.New().String()
	}
	return r
}

// ConversationID returns the id turns are recorded under.
func (r *Runner) ConversationID() string {
	return r.conversationID
}

// Run executes the loop until input ends, the user exits or ctx is canceled.
// A canceled ctx is a clean shutdown and returns nil.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Debug("Runner started", "conversation_id", r.conversationID)

	join := r.activity(domain.ActivityConversationUpdate)
	join.MembersAdded = []domain.ChannelAccount{r.user}
	if _, err := r.engine.OnTurn(ctx, join, r.handler); err != nil {
		return fmt.Errorf("failed to open conversation: %w", err)
	}

	for {
		in, err := r.handler.Input(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				r.logger.Debug("Runner stopped", "conversation_id", r.conversationID, "reason", err)
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}

		if in.Value == nil {
			switch strings.ToLower(in.Text) {
			case "":
				continue
			case "exit", "quit":
				return nil
			case "/reset":
				if err := r.engine.Reset(ctx, r.conversationID); err != nil {
					return fmt.Errorf("reset failed: %w", err)
				}
				_ = r.handler.SystemOutput(ctx, "Conversation reset.")
				continue
			}
		}

		act := r.activity(domain.ActivityMessage)
		act.Text = in.Text
		act.Value = in.Value

		res, err := r.engine.OnTurn(ctx, act, r.handler)
		if err != nil {
			var recErr *domain.RecognizerError
			if errors.As(err, &recErr) {
				// The turn was not saved; the user can simply answer again.
				_ = r.handler.SystemOutput(ctx, "Could not understand that right now, please try again.")
				r.logger.Warn("Recognition failed", "conversation_id", r.conversationID, "err", err)
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("turn failed: %w", err)
		}

		if res.Completed != nil {
			r.logger.Info("Dialog completed",
				"conversation_id", r.conversationID,
				"dialog", res.Completed.Dialog,
				"values", len(res.Completed.Values),
			)
		}
	}
}

func (r *Runner) activity(typ domain.ActivityType) *domain.Activity {
	return &domain.Activity{
		ID:           xid.New().String(),
		Type:         typ,
		Locale:       r.locale,
		ChannelID:    r.channelID,
		Timestamp:    time.Now().UTC(),
		From:         r.user,
		Recipient:    domain.ChannelAccount{ID: "bot", Name: "ddialog", Role: "bot"},
		Conversation: domain.ConversationAccount{ID: r.conversationID},
	}
}
