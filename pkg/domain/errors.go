package domain

import (
	"errors"
	"fmt"
)

// ErrProgressNotFound is returned by stores when a conversation has no saved progress.
var ErrProgressNotFound = errors.New("progress not found")

// ErrNotAwaitingConfirmation is returned when a confirmation arrives outside
// the AwaitingConfirmation state.
var ErrNotAwaitingConfirmation = errors.New("not awaiting confirmation")

// ErrNoActiveDialog is returned when a step operation is attempted while idle.
var ErrNoActiveDialog = errors.New("no active dialog")

// ConfigurationError reports malformed or missing definition files.
// It is fatal at startup.
type ConfigurationError struct {
	Source string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Source != "" {
		msg += " in " + e.Source
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// UnknownDialogError is returned when a dialog name is not in the catalog.
type UnknownDialogError struct {
	Name string
}

func (e *UnknownDialogError) Error() string {
	return fmt.Sprintf("unknown dialog %q", e.Name)
}

// PersistenceError wraps a failure of the progress store.
type PersistenceError struct {
	Op             string // "load" or "save"
	ConversationID string
	Err            error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s progress for %s: %v", e.Op, e.ConversationID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// RecognizerError wraps a failure of the NLU collaborator.
type RecognizerError struct {
	Model string
	Err   error
}

func (e *RecognizerError) Error() string {
	return fmt.Sprintf("recognizer %q failed: %v", e.Model, e.Err)
}

func (e *RecognizerError) Unwrap() error { return e.Err }
