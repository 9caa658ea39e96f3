package runner

import (
	"context"

	"github.com/aretw0/ddialog/pkg/ports"
)

// Input is one line read from the user.
type Input struct {
	Text  string
	Value any
}

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	ports.Transport

	// Input blocks until the user submits a line or ctx is done.
	// io.EOF signals the end of input.
	Input(ctx context.Context) (Input, error)

	// SystemOutput presents a meta-message (status, errors) that is not
	// part of the conversation.
	SystemOutput(ctx context.Context, msg string) error
}

// ContentRenderer transforms prompt text before output, e.g. markdown to ANSI.
type ContentRenderer func(string) (string, error)
