package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/ddialog/internal/recognition"
	"github.com/aretw0/ddialog/internal/runtime"
	"github.com/aretw0/ddialog/pkg/domain"
	"github.com/aretw0/ddialog/pkg/ports"
	"github.com/aretw0/ddialog/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func greetingCatalog(t *testing.T) *domain.Catalog {
	t.Helper()
	steps := []domain.StepDefinition{
		{
			Name: "name", Prompt: "What is your name?", RetryPrompt: "Sorry, what was your name?", Type: domain.ValueString,
			Telemetry: []domain.TelemetryDefinition{{EventName: "NameCollected", Fields: []string{"Activity.Text as text", "Step.Name"}}},
		},
		{Name: "age", Prompt: "How old are you?", RetryPrompt: "Please enter your age as a number.", Type: domain.ValueInteger},
		{Name: "confirm", Prompt: "Please confirm your details.", Type: domain.ValueCard},
		{Name: "label", Prompt: "Label this sample.", Type: domain.ValueString, RunMode: domain.RunModeTraining},
	}
	dialogs := []domain.DialogDefinition{
		{
			Name: "greeting", Steps: []string{"name", "age", "confirm"},
			Telemetry: []domain.TelemetryDefinition{{EventName: "GreetingCompleted", Fields: []string{"Dialog.Name"}}},
		},
		{Name: "labeling", Steps: []string{"name", "label"}},
	}
	c, err := domain.NewCatalog(dialogs, steps)
	require.NoError(t, err)
	return c
}

func texts(actions []domain.Action) []string {
	var out []string
	for _, a := range actions {
		if a.Type == domain.ActionSendText {
			out = append(out, a.Text)
		}
	}
	return out
}

func begin(t *testing.T, s *runtime.Stepper, dialog string) *domain.Progress {
	t.Helper()
	res, err := s.Begin(context.Background(), domain.NewProgress("conv-1"), dialog)
	require.NoError(t, err)
	return res.Progress
}

func say(t *testing.T, s *runtime.Stepper, p *domain.Progress, text string) *runtime.Result {
	t.Helper()
	res, err := s.Resume(context.Background(), p, domain.NewMessage(p.ConversationID, text))
	require.NoError(t, err)
	return res
}

func TestStepper_GreetingFlow(t *testing.T) {
	s := runtime.NewStepper(greetingCatalog(t), recognition.New())
	ctx := context.Background()

	res, err := s.Begin(ctx, domain.NewProgress("conv-1"), "greeting")
	require.NoError(t, err)
	assert.Equal(t, runtime.OutcomePrompted, res.Outcome)
	assert.Equal(t, []string{"What is your name?"}, texts(res.Actions))
	assert.Equal(t, domain.PhaseRunningStep, res.Progress.Phase())

	res = say(t, s, res.Progress, "Dave")
	assert.Equal(t, runtime.OutcomeAdvanced, res.Outcome)
	assert.Equal(t, 1, res.Progress.StepIndex)
	assert.Equal(t, "Dave", res.Progress.Values["name"])
	assert.Equal(t, []string{"How old are you?"}, texts(res.Actions))

	res = say(t, s, res.Progress, "abc")
	assert.Equal(t, runtime.OutcomeRetried, res.Outcome)
	assert.Equal(t, 1, res.Progress.StepIndex, "index unchanged on failure")
	assert.Equal(t, []string{"Please enter your age as a number."}, texts(res.Actions))
	assert.False(t, res.Step.Succeeded)

	res = say(t, s, res.Progress, "thirty")
	assert.Equal(t, runtime.OutcomeAdvanced, res.Outcome)
	assert.Equal(t, int64(30), res.Progress.Values["age"])
	assert.Equal(t, []string{"Please confirm your details."}, texts(res.Actions))

	card := domain.NewMessage("conv-1", "")
	card.Value = map[string]any{"accepted": true}
	res, err = s.Resume(ctx, res.Progress, card)
	require.NoError(t, err)

	assert.Equal(t, runtime.OutcomeCompleted, res.Outcome)
	require.NotNil(t, res.Completed)
	assert.Equal(t, "greeting", res.Completed.Dialog)
	assert.Equal(t, map[string]any{
		"name":    "Dave",
		"age":     int64(30),
		"confirm": map[string]any{"accepted": true},
	}, res.Completed.Values)

	require.Len(t, res.Actions, 2)
	assert.Equal(t, domain.ActionSendStructured, res.Actions[0].Type, "card payload is echoed")
	assert.Equal(t, "What is your name?", res.Actions[1].Text, "dialog wraps around")

	assert.Equal(t, 0, res.Progress.StepIndex)
	assert.Empty(t, res.Progress.Values)
	assert.Equal(t, 1, res.Progress.CompletedRuns)
	assert.Equal(t, "greeting", res.Progress.DialogName)
	assert.Equal(t, 4, res.Progress.Turns)
}

func TestStepper_CompletesExactlyOnce(t *testing.T) {
	steps := []domain.StepDefinition{
		{Name: "a", Prompt: "A?"}, {Name: "b", Prompt: "B?"}, {Name: "c", Prompt: "C?"},
	}
	c, err := domain.NewCatalog([]domain.DialogDefinition{{Name: "abc", Steps: []string{"a", "b", "c"}}}, steps)
	require.NoError(t, err)

	var visited []string
	s := runtime.NewStepper(c, recognition.New(), runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnStepComplete: func(_ context.Context, e *domain.StepEvent) { visited = append(visited, e.Step) },
	}))

	p := begin(t, s, "abc")
	completions := 0
	for i := 0; i < 3; i++ {
		res := say(t, s, p, "answer")
		if res.Completed != nil {
			completions++
		}
		p = res.Progress
	}

	assert.Equal(t, 1, completions)
	assert.Equal(t, []string{"a", "b", "c"}, visited, "no step re-invoked")
}

func TestStepper_CompletionEnd(t *testing.T) {
	s := runtime.NewStepper(greetingCatalog(t), recognition.New(), runtime.WithCompletionPolicy(runtime.CompletionEnd))

	p := begin(t, s, "greeting")
	p = say(t, s, p, "Dave").Progress
	p = say(t, s, p, "30").Progress

	card := domain.NewMessage("conv-1", "")
	card.Value = `{"ok": true}`
	res, err := s.Resume(context.Background(), p, card)
	require.NoError(t, err)

	require.NotNil(t, res.Completed)
	assert.True(t, res.Progress.Idle())
	assert.Equal(t, 1, res.Progress.CompletedRuns)
	assert.Empty(t, texts(res.Actions), "no prompt after the dialog ended")
}

func TestStepper_NonMessageIsNoop(t *testing.T) {
	s := runtime.NewStepper(greetingCatalog(t), recognition.New())
	p := begin(t, s, "greeting")

	update := &domain.Activity{Type: domain.ActivityConversationUpdate, Text: "Dave"}
	res, err := s.Resume(context.Background(), p, update)
	require.NoError(t, err)

	assert.Equal(t, runtime.OutcomeIgnored, res.Outcome)
	assert.Empty(t, res.Actions)
	assert.Equal(t, p, res.Progress)
}

func TestStepper_UnknownDialog(t *testing.T) {
	s := runtime.NewStepper(greetingCatalog(t), recognition.New())
	p := domain.NewProgress("conv-1")

	_, err := s.Begin(context.Background(), p, "nope")
	var unknown *domain.UnknownDialogError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nope", unknown.Name)
	assert.True(t, p.Idle(), "progress untouched")
}

func TestStepper_ResumeIdle(t *testing.T) {
	s := runtime.NewStepper(greetingCatalog(t), recognition.New())

	_, err := s.Resume(context.Background(), domain.NewProgress("c"), domain.NewMessage("c", "hi"))
	assert.ErrorIs(t, err, domain.ErrNoActiveDialog)
}

func TestStepper_RetryRemovesStaleValue(t *testing.T) {
	s := runtime.NewStepper(greetingCatalog(t), recognition.New())

	p := begin(t, s, "greeting")
	p.StepIndex = 1
	p.Values["age"] = int64(5)

	res := say(t, s, p, "no idea")
	assert.NotContains(t, res.Progress.Values, "age")
	assert.Equal(t, int64(5), p.Values["age"], "input progress is not mutated")
}

func TestStepper_RetryFallsBackToPrompt(t *testing.T) {
	c, err := domain.NewCatalog(
		[]domain.DialogDefinition{{Name: "d", Steps: []string{"n"}}},
		[]domain.StepDefinition{{Name: "n", Prompt: "Number?", Type: domain.ValueInteger}},
	)
	require.NoError(t, err)
	s := runtime.NewStepper(c, recognition.New())

	res := say(t, s, begin(t, s, "d"), "none")
	assert.Equal(t, []string{"Number?"}, texts(res.Actions))
}

func TestStepper_TrainingConfirmation(t *testing.T) {
	var confirmations []bool
	s := runtime.NewStepper(greetingCatalog(t), recognition.New(), runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnConfirmation: func(_ context.Context, e *domain.StepEvent) { confirmations = append(confirmations, *e.Confirmed) },
	}))

	p := begin(t, s, "labeling")

	res := say(t, s, p, "Dave")
	assert.Equal(t, runtime.OutcomeAwaitingConfirmation, res.Outcome)
	assert.Equal(t, domain.PhaseAwaitingConfirmation, res.Progress.Phase())
	assert.Equal(t, 1, res.Progress.StepIndex, "index already advanced")
	require.NotNil(t, res.Progress.Pending)
	assert.Equal(t, `I understood "Dave". Is that correct? (yes/no)`, res.Actions[0].Text)
	confirmPrompt := res.Actions[0].Text

	res = say(t, s, res.Progress, "maybe")
	assert.Equal(t, runtime.OutcomeInvalidConfirmation, res.Outcome)
	assert.Equal(t, []string{confirmPrompt}, texts(res.Actions))
	assert.Equal(t, domain.PhaseAwaitingConfirmation, res.Progress.Phase())

	res = say(t, s, res.Progress, "YES")
	assert.Equal(t, runtime.OutcomeConfirmed, res.Outcome)
	require.NotNil(t, res.Finalized)
	assert.Equal(t, "Dave", res.Finalized.Value)
	assert.Equal(t, []string{"Label this sample."}, texts(res.Actions))
	assert.Equal(t, domain.PhaseRunningStep, res.Progress.Phase())
	assert.Nil(t, res.Progress.Pending)
	assert.Equal(t, []bool{true}, confirmations)

	_, err := s.ResumeConfirmation(context.Background(), res.Progress, true)
	assert.ErrorIs(t, err, domain.ErrNotAwaitingConfirmation)
}

func TestStepper_TelemetryNeverFails(t *testing.T) {
	sink := &telemetry.MemorySink{}
	emitter := telemetry.NewEmitter(telemetry.WithSinks(
		telemetry.SinkFunc(func(context.Context, domain.TelemetryEvent) error { panic("sink exploded") }),
		sink,
	))
	s := runtime.NewStepper(greetingCatalog(t), recognition.New(), runtime.WithEmitter(emitter))

	p := begin(t, s, "greeting")
	res, err := s.Resume(context.Background(), p, domain.NewMessage("conv-1", "Dave"))
	require.NoError(t, err)
	assert.Equal(t, runtime.OutcomeAdvanced, res.Outcome)

	events := sink.Named("NameCollected")
	require.Len(t, events, 1)
	assert.Equal(t, map[string]string{"text": "Dave", "Name": "name"}, events[0].Properties)
}

func TestStepper_DialogTelemetry(t *testing.T) {
	sink := &telemetry.MemorySink{}
	s := runtime.NewStepper(greetingCatalog(t), recognition.New(),
		runtime.WithEmitter(telemetry.NewEmitter(telemetry.WithSinks(sink))))

	p := begin(t, s, "greeting")
	p = say(t, s, p, "Dave").Progress
	p = say(t, s, p, "30").Progress
	card := domain.NewMessage("conv-1", "")
	card.Value = map[string]any{"ok": true}
	_, err := s.Resume(context.Background(), p, card)
	require.NoError(t, err)

	events := sink.Named("GreetingCompleted")
	require.Len(t, events, 1)
	assert.Equal(t, "greeting", events[0].Properties["Name"])
}

func TestStepper_RecognizerError(t *testing.T) {
	boom := errors.New("nlu unavailable")
	steps := []domain.StepDefinition{{Name: "n", Prompt: "?", Model: domain.ModelDefinition{Name: "m"}}}
	c, err := domain.NewCatalog([]domain.DialogDefinition{{Name: "d", Steps: []string{"n"}}}, steps)
	require.NoError(t, err)

	adapter := recognition.New(recognition.WithRecognizer("m", ports.RecognizerFunc(
		func(context.Context, *domain.Activity) (domain.RecognizerResult, error) {
			return domain.RecognizerResult{}, boom
		})))
	s := runtime.NewStepper(c, adapter)

	_, err = s.Resume(context.Background(), begin(t, s, "d"), domain.NewMessage("conv-1", "hi"))
	assert.ErrorIs(t, err, boom)
}

func TestStepper_StaleIndexRestarts(t *testing.T) {
	s := runtime.NewStepper(greetingCatalog(t), recognition.New())
	p := begin(t, s, "greeting")
	p.StepIndex = 9

	res := say(t, s, p, "Dave")
	assert.Equal(t, runtime.OutcomePrompted, res.Outcome)
	assert.Equal(t, 0, res.Progress.StepIndex)
}

func TestParseCompletionPolicy(t *testing.T) {
	p, err := runtime.ParseCompletionPolicy("")
	require.NoError(t, err)
	assert.Equal(t, runtime.CompletionRestart, p)

	p, err = runtime.ParseCompletionPolicy("end")
	require.NoError(t, err)
	assert.Equal(t, runtime.CompletionEnd, p)

	_, err = runtime.ParseCompletionPolicy("loop")
	assert.Error(t, err)
}

func TestCheckConfirmationPrompt(t *testing.T) {
	valid := []string{
		runtime.DefaultConfirmationPrompt,
		"Got %s, right?",
		"Is %v 100%% correct?",
		"%-10s ok?",
	}
	for _, format := range valid {
		assert.NoError(t, runtime.CheckConfirmationPrompt(format), format)
	}

	invalid := []string{
		"Is that right?",
		"%s or %s?",
		"You are %d years old?",
		"Sure 100%",
		"%q is 50% right",
	}
	for _, format := range invalid {
		assert.Error(t, runtime.CheckConfirmationPrompt(format), format)
	}
}

func TestStepper_CustomConfirmationPrompt(t *testing.T) {
	s := runtime.NewStepper(greetingCatalog(t), recognition.New(), runtime.WithConfirmationPrompt("Label %q?"))
	res := say(t, s, begin(t, s, "labeling"), "Dave")
	require.NotEmpty(t, res.Actions)
	assert.Equal(t, `Label "Dave"?`, res.Actions[0].Text)

	s = runtime.NewStepper(greetingCatalog(t), recognition.New(), runtime.WithConfirmationPrompt("Label this?"))
	res = say(t, s, begin(t, s, "labeling"), "Dave")
	require.NotEmpty(t, res.Actions)
	assert.Equal(t, `I understood "Dave". Is that correct? (yes/no)`, res.Actions[0].Text, "invalid formats fall back to the default")
}
