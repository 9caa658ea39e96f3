package dsl

import (
	"fmt"

	"github.com/aretw0/ddialog/pkg/adapters/memory"
	"github.com/aretw0/ddialog/pkg/domain"
)

// Builder collects dialog and step declarations.
type Builder struct {
	dialogs []*DialogBuilder
	steps   []*StepBuilder
	byName  map[string]*StepBuilder
	dialogN map[string]*DialogBuilder
}

// New creates an empty builder.
func New() *Builder {
	return &Builder{
		byName:  make(map[string]*StepBuilder),
		dialogN: make(map[string]*DialogBuilder),
	}
}

// Step declares a step. Declaring the same name twice returns the existing builder.
func (b *Builder) Step(name string) *StepBuilder {
	if sb, ok := b.byName[name]; ok {
		return sb
	}
	sb := &StepBuilder{step: domain.StepDefinition{Name: name, Type: domain.ValueString}}
	b.byName[name] = sb
	b.steps = append(b.steps, sb)
	return sb
}

// Dialog declares a dialog. Declaring the same name twice returns the existing builder.
func (b *Builder) Dialog(name string) *DialogBuilder {
	if db, ok := b.dialogN[name]; ok {
		return db
	}
	db := &DialogBuilder{dialog: domain.DialogDefinition{Name: name, RunMode: domain.RunModeNone}}
	b.dialogN[name] = db
	b.dialogs = append(b.dialogs, db)
	return db
}

// Definitions returns the declared definitions in declaration order.
func (b *Builder) Definitions() ([]domain.DialogDefinition, []domain.StepDefinition) {
	dialogs := make([]domain.DialogDefinition, 0, len(b.dialogs))
	for _, db := range b.dialogs {
		dialogs = append(dialogs, db.Build())
	}
	steps := make([]domain.StepDefinition, 0, len(b.steps))
	for _, sb := range b.steps {
		steps = append(steps, sb.Build())
	}
	return dialogs, steps
}

// Build checks the declarations and returns a loader serving them.
func (b *Builder) Build() (*memory.Loader, error) {
	dialogs, steps := b.Definitions()
	if _, err := domain.NewCatalog(dialogs, steps); err != nil {
		return nil, fmt.Errorf("invalid dialog declarations: %w", err)
	}
	return memory.NewLoader(dialogs, steps), nil
}

// StepBuilder configures a single step.
type StepBuilder struct {
	step domain.StepDefinition
}

// Prompt sets the text sent when the step starts.
func (s *StepBuilder) Prompt(text string) *StepBuilder {
	s.step.Prompt = text
	return s
}

// Retry sets the text sent when recognition fails.
func (s *StepBuilder) Retry(text string) *StepBuilder {
	s.step.RetryPrompt = text
	return s
}

// Integer makes the step coerce its input to an integer.
func (s *StepBuilder) Integer() *StepBuilder {
	s.step.Type = domain.ValueInteger
	return s
}

// Card makes the step accept a submitted adaptive card payload and echo it back.
func (s *StepBuilder) Card() *StepBuilder {
	s.step.Type = domain.ValueCard
	return s
}

// Model binds the step to a recognizer model. Matching entities may replace
// the raw text as the step value.
func (s *StepBuilder) Model(name string, entities ...string) *StepBuilder {
	s.step.Model = domain.ModelDefinition{Name: name, MatchingEntities: entities}
	return s
}

// Mode restricts the step to a run mode.
func (s *StepBuilder) Mode(mode domain.RunMode) *StepBuilder {
	s.step.RunMode = mode
	return s
}

// Telemetry adds a custom event emitted when the step completes.
func (s *StepBuilder) Telemetry(event string, fields ...string) *StepBuilder {
	s.step.Telemetry = append(s.step.Telemetry, domain.TelemetryDefinition{EventName: event, Fields: fields})
	return s
}

// Build returns a copy of the step definition.
func (s *StepBuilder) Build() domain.StepDefinition {
	out := s.step
	out.Telemetry = append([]domain.TelemetryDefinition(nil), s.step.Telemetry...)
	out.Model.MatchingEntities = append([]string(nil), s.step.Model.MatchingEntities...)
	return out
}

// DialogBuilder configures a dialog.
type DialogBuilder struct {
	dialog domain.DialogDefinition
}

// Steps appends steps to the dialog sequence.
func (d *DialogBuilder) Steps(names ...string) *DialogBuilder {
	d.dialog.Steps = append(d.dialog.Steps, names...)
	return d
}

// Intents sets the dispatch intents that start the dialog.
func (d *DialogBuilder) Intents(intents ...string) *DialogBuilder {
	d.dialog.DispatchIntents = append(d.dialog.DispatchIntents, intents...)
	return d
}

// Mode restricts the dialog to a run mode.
func (d *DialogBuilder) Mode(mode domain.RunMode) *DialogBuilder {
	d.dialog.RunMode = mode
	return d
}

// Telemetry adds a custom event emitted when the dialog completes.
func (d *DialogBuilder) Telemetry(event string, fields ...string) *DialogBuilder {
	d.dialog.Telemetry = append(d.dialog.Telemetry, domain.TelemetryDefinition{EventName: event, Fields: fields})
	return d
}

// Build returns a copy of the dialog definition.
func (d *DialogBuilder) Build() domain.DialogDefinition {
	out := d.dialog
	out.Steps = append([]string(nil), d.dialog.Steps...)
	out.DispatchIntents = append([]string(nil), d.dialog.DispatchIntents...)
	out.Telemetry = append([]domain.TelemetryDefinition(nil), d.dialog.Telemetry...)
	return out
}
