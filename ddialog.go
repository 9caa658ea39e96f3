package ddialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/aretw0/ddialog/internal/logging"
	"github.com/aretw0/ddialog/internal/recognition"
	"github.com/aretw0/ddialog/internal/runtime"
	loamAdapter "github.com/aretw0/ddialog/pkg/adapters/loam"
	"github.com/aretw0/ddialog/pkg/adapters/memory"
	"github.com/aretw0/ddialog/pkg/domain"
	"github.com/aretw0/ddialog/pkg/observability"
	"github.com/aretw0/ddialog/pkg/ports"
	"github.com/aretw0/ddialog/pkg/session"
	"github.com/aretw0/ddialog/pkg/telemetry"
)

// Outcome summarizes what a turn did.
type Outcome = runtime.Outcome

const (
	OutcomeIgnored              = runtime.OutcomeIgnored
	OutcomePrompted             = runtime.OutcomePrompted
	OutcomeAdvanced             = runtime.OutcomeAdvanced
	OutcomeRetried              = runtime.OutcomeRetried
	OutcomeAwaitingConfirmation = runtime.OutcomeAwaitingConfirmation
	OutcomeInvalidConfirmation  = runtime.OutcomeInvalidConfirmation
	OutcomeConfirmed            = runtime.OutcomeConfirmed
	OutcomeCompleted            = runtime.OutcomeCompleted
)

// TurnResult reports the effects of one processed activity.
type TurnResult struct {
	ConversationID string
	Outcome        Outcome
	// Progress is the persisted progress; nil when nothing was saved.
	Progress *domain.Progress
	Actions  []domain.Action

	Step      *domain.StepResult
	Finalized *domain.StepResult
	Completed *domain.DialogResult
}

// Engine is the high-level entry point of the library. It owns the catalog,
// serializes turns per conversation and persists progress.
type Engine struct {
	catalog  *domain.Catalog
	stepper  *runtime.Stepper
	sessions *session.Manager
	emitter  *telemetry.Emitter

	loader          ports.DefinitionLoader
	store           ports.ProgressStore
	locker          ports.DistributedLocker
	recognizers     map[string]ports.Recognizer
	dispatch        ports.Recognizer
	sinks           []ports.TelemetrySink
	redact          []string
	strictTelemetry bool
	metrics         *observability.Metrics
	hooks           domain.LifecycleHooks
	logger          *slog.Logger

	runMode       domain.RunMode
	defaultDialog string
	completion    CompletionPolicy
	onComplete    CompletionHandler
	welcome       string
	locale        string
	confirmPrompt string

	Name string
}

// New loads and validates the configuration and wires the engine.
// By default definitions are read with Loam from configDir; WithLoader
// replaces that, in which case configDir is only used as a label.
// Any configuration problem is returned as *domain.ConfigurationError.
func New(configDir string, opts ...Option) (*Engine, error) {
	eng := &Engine{
		runMode:    domain.RunModeNone,
		completion: CompletionRestart,
	}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}

	if eng.loader == nil {
		if configDir == "" {
			return nil, &domain.ConfigurationError{Reason: "configDir is required when no custom loader is provided"}
		}
		loader, err := loamAdapter.Open(configDir)
		if err != nil {
			return nil, err
		}
		eng.loader = loader
	}
	if configDir != "" {
		eng.Name = filepath.Base(configDir)
		eng.logger = eng.logger.With("config", eng.Name)
	}

	catalog, err := LoadCatalog(context.Background(), eng.loader)
	if err != nil {
		return nil, err
	}
	eng.catalog = catalog

	if err := eng.validate(); err != nil {
		return nil, err
	}

	if eng.store == nil {
		eng.store = memory.NewStore()
	}

	sinks := eng.sinks
	hooks := eng.hooks
	if eng.metrics != nil {
		sinks = append(sinks, eng.metrics)
		hooks = domain.MergeHooks(hooks, eng.metrics.Hooks())
	}

	eng.emitter = telemetry.NewEmitter(
		telemetry.WithSinks(sinks...),
		telemetry.WithRedaction(eng.redact...),
		telemetry.WithLogger(eng.logger),
	)

	adapterOpts := []recognition.Option{recognition.WithLogger(eng.logger)}
	if eng.locale != "" {
		adapterOpts = append(adapterOpts, recognition.WithDefaultLocale(eng.locale))
	}
	for model, r := range eng.recognizers {
		adapterOpts = append(adapterOpts, recognition.WithRecognizer(model, r))
	}

	eng.stepper = runtime.NewStepper(catalog, recognition.New(adapterOpts...),
		runtime.WithEmitter(eng.emitter),
		runtime.WithLifecycleHooks(hooks),
		runtime.WithLogger(eng.logger),
		runtime.WithCompletionPolicy(eng.completion),
		runtime.WithConfirmationPrompt(eng.confirmPrompt),
	)

	sessionOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(eng.locker))
	}
	eng.sessions = session.NewManager(eng.store, sessionOpts...)

	eng.logger.Info("Engine ready",
		"dialogs", len(catalog.DialogNames()),
		"steps", len(catalog.Steps()),
		"run_mode", eng.runMode,
	)
	return eng, nil
}

// LoadCatalog reads and validates all definitions from loader.
func LoadCatalog(ctx context.Context, loader ports.DefinitionLoader) (*domain.Catalog, error) {
	dialogs, steps, err := loader.LoadDefinitions(ctx)
	if err != nil {
		var cfgErr *domain.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, &domain.ConfigurationError{Reason: "failed to load definitions", Err: err}
	}
	return domain.NewCatalog(dialogs, steps)
}

func (e *Engine) validate() error {
	if e.defaultDialog != "" {
		if _, ok := e.catalog.Dialog(e.defaultDialog); !ok {
			return &domain.ConfigurationError{
				Source: "default dialog",
				Reason: "not defined",
				Err:    &domain.UnknownDialogError{Name: e.defaultDialog},
			}
		}
	}

	switch e.completion {
	case CompletionRestart, CompletionEnd:
	default:
		return &domain.ConfigurationError{Source: "completion policy", Reason: fmt.Sprintf("unknown policy %q", e.completion)}
	}

	if e.confirmPrompt != "" {
		if err := runtime.CheckConfirmationPrompt(e.confirmPrompt); err != nil {
			return &domain.ConfigurationError{Source: "confirmation prompt", Err: err}
		}
	}

	if err := telemetry.CompilePatterns(e.redact); err != nil {
		return &domain.ConfigurationError{Source: "telemetry redaction", Err: err}
	}

	resolver := telemetry.NewResolver()
	defs := e.catalog.TelemetryDefinitions()
	owners := make([]string, 0, len(defs))
	for owner := range defs {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	for _, owner := range owners {
		for _, def := range defs[owner] {
			err := resolver.Check(def.Fields)
			if err == nil {
				continue
			}
			if e.strictTelemetry {
				return &domain.ConfigurationError{Source: owner, Reason: "invalid telemetry event " + def.EventName, Err: err}
			}
			e.logger.Warn("Telemetry event has unsupported fields; they will be skipped",
				"owner", owner, "event", def.EventName, "err", err)
		}
	}

	for _, step := range e.catalog.Steps() {
		if step.Model.Name == "" {
			continue
		}
		if _, ok := e.recognizers[step.Model.Name]; !ok {
			e.logger.Warn("No recognizer registered for step model; input is used verbatim",
				"step", step.Name, "model", step.Model.Name)
		}
	}
	return nil
}

// Catalog returns the loaded definitions.
func (e *Engine) Catalog() *domain.Catalog {
	return e.catalog
}

// Sessions returns the session manager guarding the store.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Progress returns the stored progress of a conversation.
func (e *Engine) Progress(ctx context.Context, conversationID string) (*domain.Progress, error) {
	return e.sessions.Load(ctx, conversationID)
}

// Reset forgets a conversation's progress.
func (e *Engine) Reset(ctx context.Context, conversationID string) error {
	return e.sessions.Delete(ctx, conversationID)
}

// Begin starts dialogName for a conversation regardless of its current state.
func (e *Engine) Begin(ctx context.Context, conversationID, dialogName string, transport ports.Transport) (*TurnResult, error) {
	return e.turn(ctx, conversationID, transport, func(ctx context.Context, p *domain.Progress) (*runtime.Result, error) {
		return e.stepper.Begin(ctx, p, dialogName)
	})
}

// OnTurn processes one inbound activity. Actions are delivered to transport
// (when not nil) after the progress was saved.
func (e *Engine) OnTurn(ctx context.Context, activity *domain.Activity, transport ports.Transport) (res *TurnResult, err error) {
	if e.metrics != nil {
		start := time.Now()
		defer func() {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			e.metrics.ObserveTurn(time.Since(start), outcome)
		}()
	}

	if activity == nil {
		return nil, errors.New("activity is required")
	}
	conversationID := activity.Conversation.ID
	if conversationID == "" {
		return nil, errors.New("activity has no conversation id")
	}

	if !activity.IsMessage() {
		return e.onEvent(ctx, activity, transport)
	}

	return e.turn(ctx, conversationID, transport, func(ctx context.Context, p *domain.Progress) (*runtime.Result, error) {
		if !p.Idle() {
			if _, ok := e.catalog.Dialog(p.DialogName); ok {
				return e.stepper.Resume(ctx, p, activity)
			}
			e.logger.Warn("Stored dialog no longer exists, starting over",
				"conversation_id", p.ConversationID, "dialog", p.DialogName)
			p = p.Clone()
			p.Reset()
		}

		dialog, err := e.selectDialog(ctx, activity)
		if err != nil {
			return nil, err
		}
		if dialog == "" {
			e.logger.Debug("No dialog to start", "conversation_id", p.ConversationID)
			return &runtime.Result{Progress: p, Outcome: OutcomeIgnored}, nil
		}
		return e.stepper.Begin(ctx, p, dialog)
	})
}

// onEvent handles non-message activities. They never touch progress.
func (e *Engine) onEvent(ctx context.Context, activity *domain.Activity, transport ports.Transport) (*TurnResult, error) {
	res := &TurnResult{ConversationID: activity.Conversation.ID, Outcome: OutcomeIgnored}

	if activity.Type == domain.ActivityConversationUpdate && e.welcome != "" {
		for _, member := range activity.MembersAdded {
			if member.ID != activity.Recipient.ID {
				res.Actions = append(res.Actions, domain.SendText(e.welcome))
				break
			}
		}
	}

	if err := deliver(ctx, transport, res.Actions); err != nil {
		return res, err
	}
	return res, nil
}

type stepFunc func(ctx context.Context, p *domain.Progress) (*runtime.Result, error)

func (e *Engine) turn(ctx context.Context, conversationID string, transport ports.Transport, step stepFunc) (*TurnResult, error) {
	var res *TurnResult

	err := e.sessions.WithLock(ctx, conversationID, func(ctx context.Context) error {
		progress, err := e.sessions.LoadOrNew(ctx, conversationID)
		if err != nil {
			return err
		}

		out, err := step(ctx, progress)
		if err != nil {
			return err
		}

		res = &TurnResult{
			ConversationID: conversationID,
			Outcome:        out.Outcome,
			Actions:        out.Actions,
			Step:           out.Step,
			Finalized:      out.Finalized,
			Completed:      out.Completed,
		}
		if out.Outcome == OutcomeIgnored {
			return nil
		}

		if out.Completed != nil && e.onComplete != nil {
			extra, err := e.onComplete(ctx, out.Completed)
			if err != nil {
				e.logger.Error("Completion handler failed",
					"conversation_id", conversationID, "dialog", out.Completed.Dialog, "err", err)
			}
			res.Actions = append(res.Actions, extra...)
		}

		// Nothing is persisted or sent for a canceled turn.
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := e.sessions.Store().Save(ctx, conversationID, out.Progress); err != nil {
			return &domain.PersistenceError{Op: "save", ConversationID: conversationID, Err: err}
		}
		res.Progress = out.Progress

		return deliver(ctx, transport, res.Actions)
	})
	if err != nil {
		return res, err
	}
	return res, nil
}

func deliver(ctx context.Context, transport ports.Transport, actions []domain.Action) error {
	if transport == nil {
		return nil
	}
	for _, a := range actions {
		var err error
		switch a.Type {
		case domain.ActionSendText:
			err = transport.SendText(ctx, a.Text)
		case domain.ActionSendStructured:
			err = transport.SendStructured(ctx, a.Payload)
		}
		if err != nil {
			return fmt.Errorf("failed to deliver %s: %w", a.Type, err)
		}
	}
	return nil
}

// selectDialog picks the dialog for an idle conversation: the first dialog
// (by name) triggered by the dispatch intent, else the default dialog, else
// the only available dialog.
func (e *Engine) selectDialog(ctx context.Context, activity *domain.Activity) (string, error) {
	var available []*domain.DialogDefinition
	for _, d := range e.catalog.Dialogs() {
		if d.AvailableIn(e.runMode) {
			available = append(available, d)
		}
	}

	if e.dispatch != nil {
		rr, err := e.dispatch.Recognize(ctx, activity)
		if err != nil {
			return "", &domain.RecognizerError{Model: "dispatch", Err: err}
		}
		intent, _ := rr.TopIntent()
		for _, d := range available {
			if d.Triggers(intent) {
				e.logger.Debug("Dispatching dialog", "dialog", d.Name, "intent", intent)
				return d.Name, nil
			}
		}
	}

	if e.defaultDialog != "" {
		d, _ := e.catalog.Dialog(e.defaultDialog)
		if d.AvailableIn(e.runMode) {
			return d.Name, nil
		}
		e.logger.Warn("Default dialog is not available in this run mode",
			"dialog", d.Name, "run_mode", e.runMode)
	}

	if len(available) == 1 {
		return available[0].Name, nil
	}
	return "", nil
}
