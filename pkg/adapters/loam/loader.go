package loam

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/ddialog/pkg/domain"
	"github.com/aretw0/loam"
	"github.com/mitchellh/mapstructure"
)

// StepsFolder is the directory holding the shared step library.
const StepsFolder = "Steps"

// Loader reads dialog and step definitions from a Loam document repository.
type Loader struct {
	Repo *loam.TypedRepository[DefinitionMetadata]
}

// New creates a new Loam adapter.
func New(repo *loam.TypedRepository[DefinitionMetadata]) *Loader {
	return &Loader{
		Repo: repo,
	}
}

// Open initializes a read-only repository rooted at dir.
// The directory must contain a Steps folder.
func Open(dir string) (*Loader, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, &domain.ConfigurationError{Source: dir, Reason: "invalid path", Err: err}
	}

	info, err := os.Stat(filepath.Join(absPath, StepsFolder))
	if err != nil || !info.IsDir() {
		if err == nil {
			err = errors.New("not a directory")
		}
		return nil, &domain.ConfigurationError{Source: absPath, Reason: "missing " + StepsFolder + " folder", Err: err}
	}

	// Strict mode keeps numbers as json.Number across JSON, YAML and Markdown.
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, &domain.ConfigurationError{Source: absPath, Reason: "failed to initialize loam", Err: err}
	}

	return New(loam.NewTypedRepository[DefinitionMetadata](repo)), nil
}

// LoadDefinitions implements ports.DefinitionLoader.
func (l *Loader) LoadDefinitions(ctx context.Context) ([]domain.DialogDefinition, []domain.StepDefinition, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, nil, &domain.ConfigurationError{Reason: "loam list failed", Err: err}
	}

	var (
		dialogs []domain.DialogDefinition
		steps   []domain.StepDefinition
	)

	for _, doc := range docs {
		id := trimExtension(doc.ID)
		folder, base := splitID(id)
		if folder == "" {
			// Root-level documents are not definitions.
			continue
		}

		if strings.EqualFold(folder, StepsFolder) {
			step, err := buildStep(base, doc.Data, doc.Content)
			if err != nil {
				return nil, nil, &domain.ConfigurationError{Source: doc.ID, Reason: "invalid step", Err: err}
			}
			steps = append(steps, step)
			continue
		}

		dialog, err := buildDialog(folder, doc.Data)
		if err != nil {
			return nil, nil, &domain.ConfigurationError{Source: doc.ID, Reason: "invalid dialog", Err: err}
		}
		dialogs = append(dialogs, dialog)
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].Name < steps[j].Name })
	sort.Slice(dialogs, func(i, j int) bool { return dialogs[i].Name < dialogs[j].Name })

	return dialogs, steps, nil
}

func buildStep(fallbackName string, meta DefinitionMetadata, content string) (domain.StepDefinition, error) {
	step := domain.StepDefinition{
		Name:        meta.Name,
		Prompt:      meta.Prompt,
		RetryPrompt: meta.RetryPrompt,
	}
	if step.Name == "" {
		step.Name = fallbackName
	}
	if step.Prompt == "" {
		// Markdown documents may carry the prompt as body.
		step.Prompt = strings.TrimSpace(content)
	}

	var err error
	if step.Type, err = domain.ParseValueType(meta.Type); err != nil {
		return step, err
	}
	if step.RunMode, err = domain.ParseRunMode(meta.RunMode); err != nil {
		return step, err
	}

	if len(meta.Model) > 0 {
		if err := mapstructure.Decode(meta.Model, &step.Model); err != nil {
			return step, fmt.Errorf("failed to decode model: %w", err)
		}
	}

	if step.Telemetry, err = decodeTelemetry(meta.Telemetry); err != nil {
		return step, err
	}
	return step, nil
}

func buildDialog(fallbackName string, meta DefinitionMetadata) (domain.DialogDefinition, error) {
	dialog := domain.DialogDefinition{
		Name:            meta.Name,
		Steps:           meta.Prompts,
		DispatchIntents: meta.DispatchIntents,
	}
	if dialog.Name == "" {
		dialog.Name = fallbackName
	}

	var err error
	if dialog.RunMode, err = domain.ParseRunMode(meta.RunMode); err != nil {
		return dialog, err
	}
	if dialog.Telemetry, err = decodeTelemetry(meta.Telemetry); err != nil {
		return dialog, err
	}
	return dialog, nil
}

func decodeTelemetry(raw []any) ([]domain.TelemetryDefinition, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	defs := make([]domain.TelemetryDefinition, 0, len(raw))
	for i, item := range raw {
		var def domain.TelemetryDefinition
		if err := mapstructure.Decode(item, &def); err != nil {
			return nil, fmt.Errorf("telemetry[%d]: %w", i, err)
		}
		if def.EventName == "" {
			return nil, fmt.Errorf("telemetry[%d]: missing custom_event_name", i)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// splitID returns the top-level folder and the base name of a document id.
func splitID(id string) (string, string) {
	folder, _, found := strings.Cut(id, "/")
	if !found {
		return "", id
	}
	return folder, path.Base(id)
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}
