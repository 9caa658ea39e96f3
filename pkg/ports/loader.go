package ports

import (
	"context"

	"github.com/aretw0/ddialog/pkg/domain"
)

// DefinitionLoader defines how the stepper retrieves its static configuration.
// This allows the configuration source (Loam, Memory) to be decoupled.
type DefinitionLoader interface {
	// LoadDefinitions returns every dialog and step definition.
	// Parse failures are reported as *domain.ConfigurationError.
	LoadDefinitions(ctx context.Context) ([]domain.DialogDefinition, []domain.StepDefinition, error)
}
