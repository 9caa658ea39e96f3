package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/aretw0/ddialog/internal/recognition"
	"github.com/aretw0/ddialog/pkg/domain"
	"github.com/aretw0/ddialog/pkg/telemetry"
)

// CompletionPolicy decides what happens after the last step of a dialog.
type CompletionPolicy string

const (
	// CompletionRestart starts the dialog over at its first step.
	CompletionRestart CompletionPolicy = "restart"
	// CompletionEnd returns the conversation to idle.
	CompletionEnd CompletionPolicy = "end"
)

// ParseCompletionPolicy normalizes a configuration value. Empty means restart.
func ParseCompletionPolicy(s string) (CompletionPolicy, error) {
	switch CompletionPolicy(s) {
	case "", CompletionRestart:
		return CompletionRestart, nil
	case CompletionEnd:
		return CompletionEnd, nil
	default:
		return "", fmt.Errorf("unknown completion policy %q", s)
	}
}

// DefaultConfirmationPrompt is sent before a training step. The %q verb is
// replaced by the value that was just recognized.
const DefaultConfirmationPrompt = "I understood %q. Is that correct? (yes/no)"

var promptVerb = regexp.MustCompile(`(?s)%[-+# 0]*\d*(?:\.\d*)?(.)`)

// CheckConfirmationPrompt reports whether format takes exactly one string
// verb (%s, %q or %v). A literal percent sign is written %%.
func CheckConfirmationPrompt(format string) error {
	verbs := 0
	for _, m := range promptVerb.FindAllStringSubmatch(format, -1) {
		switch m[1] {
		case "%":
			if m[0] != "%%" {
				return fmt.Errorf("malformed %q in confirmation prompt", m[0])
			}
		case "s", "q", "v":
			verbs++
		default:
			return fmt.Errorf("unsupported verb %q in confirmation prompt", m[0])
		}
	}
	if strings.HasSuffix(strings.ReplaceAll(format, "%%", ""), "%") {
		return errors.New("confirmation prompt ends with a bare %")
	}
	if verbs != 1 {
		return fmt.Errorf("confirmation prompt needs exactly one value verb, found %d", verbs)
	}
	return nil
}

// Outcome summarizes what a stepper call did.
type Outcome string

const (
	OutcomeIgnored              Outcome = "ignored"
	OutcomePrompted             Outcome = "prompted"
	OutcomeAdvanced             Outcome = "advanced"
	OutcomeRetried              Outcome = "retried"
	OutcomeAwaitingConfirmation Outcome = "awaiting_confirmation"
	OutcomeInvalidConfirmation  Outcome = "invalid_confirmation"
	OutcomeConfirmed            Outcome = "confirmed"
	OutcomeCompleted            Outcome = "completed"
)

// Result is the output of a stepper call. Progress is always a fresh value;
// the progress passed in is never mutated.
type Result struct {
	Progress *domain.Progress
	Actions  []domain.Action
	Outcome  Outcome

	// Step is the recognition outcome of this turn, if a step ran.
	Step *domain.StepResult
	// Finalized is the held result released by a confirmation answer.
	Finalized *domain.StepResult
	Confirmed *bool
	// Completed is set when the dialog finished during this turn.
	Completed *domain.DialogResult
}

// Stepper drives dialogs step by step.
type Stepper struct {
	catalog       *domain.Catalog
	recognizer    *recognition.Adapter
	emitter       *telemetry.Emitter
	hooks         domain.LifecycleHooks
	logger        *slog.Logger
	completion    CompletionPolicy
	confirmPrompt string
	now           func() time.Time
}

// Option configures the Stepper.
type Option func(*Stepper)

// WithEmitter sets the telemetry emitter.
func WithEmitter(e *telemetry.Emitter) Option {
	return func(s *Stepper) {
		if e != nil {
			s.emitter = e
		}
	}
}

// WithLifecycleHooks sets the hooks invoked on step and dialog events.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Stepper) {
		s.hooks = hooks
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stepper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCompletionPolicy sets what happens after the last step.
func WithCompletionPolicy(p CompletionPolicy) Option {
	return func(s *Stepper) {
		s.completion = p
	}
}

// WithConfirmationPrompt overrides DefaultConfirmationPrompt. Formats that
// fail CheckConfirmationPrompt are ignored.
func WithConfirmationPrompt(format string) Option {
	return func(s *Stepper) {
		if format != "" && CheckConfirmationPrompt(format) == nil {
			s.confirmPrompt = format
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Stepper) {
		s.now = now
	}
}

// NewStepper creates a Stepper over an immutable catalog.
func NewStepper(catalog *domain.Catalog, recognizer *recognition.Adapter, opts ...Option) *Stepper {
	s := &Stepper{
		catalog:       catalog,
		recognizer:    recognizer,
		emitter:       telemetry.NewEmitter(),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		completion:    CompletionRestart,
		confirmPrompt: DefaultConfirmationPrompt,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.recognizer == nil {
		s.recognizer = recognition.New(recognition.WithLogger(s.logger))
	}
	return s
}

// Catalog returns the catalog the stepper runs on.
func (s *Stepper) Catalog() *domain.Catalog {
	return s.catalog
}

// Begin starts dialogName at its first step, discarding any collected values.
func (s *Stepper) Begin(ctx context.Context, progress *domain.Progress, dialogName string) (*Result, error) {
	dialog, ok := s.catalog.Dialog(dialogName)
	if !ok {
		return nil, &domain.UnknownDialogError{Name: dialogName}
	}

	next := progress.Clone()
	next.Reset()
	next.DialogName = dialog.Name
	next.UpdatedAt = s.now().UTC()

	s.logger.Debug("Beginning dialog", "conversation_id", next.ConversationID, "dialog", dialog.Name)

	res := &Result{Progress: next, Outcome: OutcomePrompted}
	s.enterStep(ctx, res, dialog, 0)
	return res, nil
}

// Resume feeds a message activity to the current step. Activities other than
// messages leave the progress untouched.
func (s *Stepper) Resume(ctx context.Context, progress *domain.Progress, activity *domain.Activity) (*Result, error) {
	if !activity.IsMessage() {
		return &Result{Progress: progress.Clone(), Outcome: OutcomeIgnored}, nil
	}
	if progress.Idle() {
		return nil, domain.ErrNoActiveDialog
	}

	dialog, ok := s.catalog.Dialog(progress.DialogName)
	if !ok {
		return nil, &domain.UnknownDialogError{Name: progress.DialogName}
	}

	if progress.Phase() == domain.PhaseAwaitingConfirmation {
		confirmed, valid := ParseConfirmation(activity)
		if !valid {
			next := progress.Clone()
			next.Turns++
			next.UpdatedAt = s.now().UTC()
			return &Result{
				Progress: next,
				Actions:  []domain.Action{domain.SendText(s.confirmationText(progress.Pending))},
				Outcome:  OutcomeInvalidConfirmation,
			}, nil
		}
		res, err := s.ResumeConfirmation(ctx, progress, confirmed)
		if err != nil {
			return nil, err
		}
		res.Progress.Turns++
		return res, nil
	}

	index := progress.StepIndex
	if index < 0 || index >= len(dialog.Steps) {
		// The catalog shrank since the progress was saved.
		s.logger.Warn("Stored step index out of range, restarting dialog",
			"conversation_id", progress.ConversationID, "dialog", dialog.Name, "index", index)
		return s.Begin(ctx, progress, dialog.Name)
	}
	step, _ := s.catalog.StepAt(dialog, index)

	result, raw, err := s.recognizer.RecognizeDetailed(ctx, activity, step)
	if err != nil {
		return nil, err
	}

	next := progress.Clone()
	next.Turns++
	next.UpdatedAt = s.now().UTC()

	res := &Result{Progress: next, Step: &result}
	scope := &telemetry.Scope{
		Activity:  activity,
		Result:    &raw,
		Step:      step,
		Value:     &result,
		Dialog:    dialog,
		StepIndex: index,
	}

	if !result.Succeeded {
		delete(next.Values, step.Name)
		res.Outcome = OutcomeRetried
		res.Actions = append(res.Actions, domain.SendText(step.Retry()))
		s.logger.Debug("Step not recognized, retrying",
			"conversation_id", next.ConversationID, "dialog", dialog.Name, "step", step.Name)
		s.onStep(ctx, s.hooks.OnStepRetry, domain.EventStepRetry, next, dialog, step, index, &result)
		return res, nil
	}

	next.Values[step.Name] = result.Value
	if step.Type == domain.ValueCard {
		res.Actions = append(res.Actions, domain.SendStructured(result.Value))
	}
	s.emitter.Emit(ctx, next.ConversationID, step.Telemetry, scope)
	s.onStep(ctx, s.hooks.OnStepComplete, domain.EventStepComplete, next, dialog, step, index, &result)

	next.StepIndex = index + 1
	if next.StepIndex >= len(dialog.Steps) {
		s.complete(ctx, res, dialog, result, scope)
		return res, nil
	}

	upcoming, _ := s.catalog.StepAt(dialog, next.StepIndex)
	if upcoming.RunMode == domain.RunModeTraining {
		pending := result.Clone()
		next.Confirmation = domain.ConfirmationAwaiting
		next.Pending = &pending
		res.Outcome = OutcomeAwaitingConfirmation
		res.Actions = append(res.Actions, domain.SendText(s.confirmationText(&pending)))
		return res, nil
	}

	res.Outcome = OutcomeAdvanced
	s.enterStep(ctx, res, dialog, next.StepIndex)
	return res, nil
}

// ResumeConfirmation answers a pending confirmation. The held result is
// returned as Finalized and the current step is prompted.
func (s *Stepper) ResumeConfirmation(ctx context.Context, progress *domain.Progress, confirmed bool) (*Result, error) {
	if progress.Phase() != domain.PhaseAwaitingConfirmation {
		return nil, domain.ErrNotAwaitingConfirmation
	}

	dialog, ok := s.catalog.Dialog(progress.DialogName)
	if !ok {
		return nil, &domain.UnknownDialogError{Name: progress.DialogName}
	}

	next := progress.Clone()
	pending := next.Pending
	next.Confirmation = domain.ConfirmationNone
	next.Pending = nil
	next.UpdatedAt = s.now().UTC()

	stepName := ""
	if pending != nil {
		stepName = pending.StepName
	}
	s.logger.Info("Confirmation received",
		"conversation_id", next.ConversationID,
		"dialog", dialog.Name,
		"step", stepName,
		"confirmed", confirmed,
	)

	res := &Result{
		Progress:  next,
		Outcome:   OutcomeConfirmed,
		Finalized: pending,
		Confirmed: &confirmed,
	}

	if s.hooks.OnConfirmation != nil {
		s.hooks.OnConfirmation(ctx, &domain.StepEvent{
			EventBase: s.base(domain.EventConfirmation, next),
			Dialog:    dialog.Name,
			Step:      stepName,
			Index:     next.StepIndex,
			Result:    pending,
			Confirmed: &confirmed,
		})
	}

	if next.StepIndex >= 0 && next.StepIndex < len(dialog.Steps) {
		s.enterStep(ctx, res, dialog, next.StepIndex)
	}
	return res, nil
}

func (s *Stepper) complete(ctx context.Context, res *Result, dialog *domain.DialogDefinition, last domain.StepResult, scope *telemetry.Scope) {
	next := res.Progress
	completed := &domain.DialogResult{
		ConversationID: next.ConversationID,
		Dialog:         dialog.Name,
		Values:         next.Snapshot(),
		Last:           last.Clone(),
		CompletedAt:    s.now().UTC(),
	}
	res.Completed = completed
	res.Outcome = OutcomeCompleted
	next.CompletedRuns++

	scope.StepIndex = len(dialog.Steps)
	s.emitter.Emit(ctx, next.ConversationID, dialog.Telemetry, scope)

	s.logger.Info("Dialog completed",
		"conversation_id", next.ConversationID,
		"dialog", dialog.Name,
		"runs", next.CompletedRuns,
	)
	if s.hooks.OnDialogComplete != nil {
		s.hooks.OnDialogComplete(ctx, &domain.DialogEvent{
			EventBase: s.base(domain.EventDialogComplete, next),
			Dialog:    dialog.Name,
			Values:    completed.Values,
		})
	}

	if s.completion == CompletionEnd {
		next.Reset()
		return
	}

	next.StepIndex = 0
	next.Values = make(map[string]any)
	next.Confirmation = domain.ConfirmationNone
	next.Pending = nil
	s.enterStep(ctx, res, dialog, 0)
}

func (s *Stepper) enterStep(ctx context.Context, res *Result, dialog *domain.DialogDefinition, index int) {
	step, ok := s.catalog.StepAt(dialog, index)
	if !ok {
		return
	}
	res.Actions = append(res.Actions, domain.SendText(step.Prompt))
	s.onStep(ctx, s.hooks.OnStepEnter, domain.EventStepEnter, res.Progress, dialog, step, index, nil)
}

func (s *Stepper) onStep(ctx context.Context, hook func(context.Context, *domain.StepEvent), typ domain.EventType, p *domain.Progress, dialog *domain.DialogDefinition, step *domain.StepDefinition, index int, result *domain.StepResult) {
	if hook == nil {
		return
	}
	hook(ctx, &domain.StepEvent{
		EventBase: s.base(typ, p),
		Dialog:    dialog.Name,
		Step:      step.Name,
		Index:     index,
		Result:    result,
	})
}

func (s *Stepper) base(typ domain.EventType, p *domain.Progress) domain.EventBase {
	return domain.EventBase{
		Timestamp:      s.now().UTC(),
		Type:           typ,
		ConversationID: p.ConversationID,
	}
}

func (s *Stepper) confirmationText(pending *domain.StepResult) string {
	var value any
	if pending != nil {
		value = pending.Value
	}
	return fmt.Sprintf(s.confirmPrompt, fmt.Sprint(value))
}
