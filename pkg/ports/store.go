package ports

import (
	"context"

	"github.com/aretw0/ddialog/pkg/domain"
)

// ProgressStore defines the interface for persisting conversation progress.
// The engine calls Load once at the start of a turn and Save once at its end.
type ProgressStore interface {
	// Save persists the progress for a given conversation key.
	Save(ctx context.Context, conversationID string, progress *domain.Progress) error

	// Load retrieves the progress for a given conversation key.
	// Returns domain.ErrProgressNotFound if the conversation has none.
	Load(ctx context.Context, conversationID string) (*domain.Progress, error)

	// Delete removes the progress for a given conversation key.
	Delete(ctx context.Context, conversationID string) error

	// List returns the keys of all stored conversations.
	List(ctx context.Context) ([]string, error)
}
