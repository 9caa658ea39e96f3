package memory

import (
	"context"

	"github.com/aretw0/ddialog/pkg/domain"
)

// Loader implements ports.DefinitionLoader over definitions held in memory.
type Loader struct {
	dialogs []domain.DialogDefinition
	steps   []domain.StepDefinition
}

// NewLoader creates a loader returning the given definitions.
// This is mostly useful for tests and embedded bots that build their
// configuration in code.
func NewLoader(dialogs []domain.DialogDefinition, steps []domain.StepDefinition) *Loader {
	return &Loader{
		dialogs: append([]domain.DialogDefinition(nil), dialogs...),
		steps:   append([]domain.StepDefinition(nil), steps...),
	}
}

// LoadDefinitions returns copies of the held definitions.
func (l *Loader) LoadDefinitions(ctx context.Context) ([]domain.DialogDefinition, []domain.StepDefinition, error) {
	return append([]domain.DialogDefinition(nil), l.dialogs...),
		append([]domain.StepDefinition(nil), l.steps...),
		nil
}
