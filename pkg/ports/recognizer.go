package ports

import (
	"context"

	"github.com/aretw0/ddialog/pkg/domain"
)

// Recognizer is the NLU collaborator. It is treated as an opaque classifier.
type Recognizer interface {
	Recognize(ctx context.Context, activity *domain.Activity) (domain.RecognizerResult, error)
}

// RecognizerFunc adapts a function to the Recognizer interface.
type RecognizerFunc func(ctx context.Context, activity *domain.Activity) (domain.RecognizerResult, error)

// Recognize calls f.
func (f RecognizerFunc) Recognize(ctx context.Context, activity *domain.Activity) (domain.RecognizerResult, error) {
	return f(ctx, activity)
}
