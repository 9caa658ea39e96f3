package ddialog_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/ddialog"
	"github.com/aretw0/ddialog/internal/testutils"
	"github.com/aretw0/ddialog/pkg/adapters/memory"
	"github.com/aretw0/ddialog/pkg/domain"
	"github.com/aretw0/ddialog/pkg/observability"
	"github.com/aretw0/ddialog/pkg/ports"
	"github.com/aretw0/ddialog/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	texts   []string
	payload []any
	fail    error
}

func (r *recorder) SendText(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.texts = append(r.texts, text)
	return nil
}

func (r *recorder) SendStructured(_ context.Context, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payload = append(r.payload, payload)
	return nil
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.texts) == 0 {
		return ""
	}
	return r.texts[len(r.texts)-1]
}

func definitions() ([]domain.DialogDefinition, []domain.StepDefinition) {
	steps := []domain.StepDefinition{
		{Name: "name", Prompt: "What is your name?", Type: domain.ValueString},
		{Name: "age", Prompt: "How old are you?", RetryPrompt: "Please enter your age as a number.", Type: domain.ValueInteger},
		{Name: "topic", Prompt: "What do you want to order?", Type: domain.ValueString},
	}
	dialogs := []domain.DialogDefinition{
		{
			Name: "greeting", Steps: []string{"name", "age"}, DispatchIntents: []string{"Greeting"},
			Telemetry: []domain.TelemetryDefinition{{EventName: "GreetingCompleted", Fields: []string{"Dialog.Name", "Activity.Text as text"}}},
		},
		{Name: "order", Steps: []string{"topic"}, DispatchIntents: []string{"Order"}},
	}
	return dialogs, steps
}

func newEngine(t *testing.T, opts ...ddialog.Option) *ddialog.Engine {
	t.Helper()
	dialogs, steps := definitions()
	opts = append([]ddialog.Option{ddialog.WithLoader(memory.NewLoader(dialogs, steps))}, opts...)
	eng, err := ddialog.New("", opts...)
	require.NoError(t, err)
	return eng
}

func TestEngine_DefaultDialogFlow(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	eng := newEngine(t, ddialog.WithStore(store), ddialog.WithDefaultDialog("greeting"))
	tr := &recorder{}

	res, err := eng.OnTurn(ctx, domain.NewMessage("c1", "hi"), tr)
	require.NoError(t, err)
	assert.Equal(t, ddialog.OutcomePrompted, res.Outcome)
	assert.Equal(t, "What is your name?", tr.last())

	res, err = eng.OnTurn(ctx, domain.NewMessage("c1", "Dave"), tr)
	require.NoError(t, err)
	assert.Equal(t, ddialog.OutcomeAdvanced, res.Outcome)
	assert.Equal(t, "How old are you?", tr.last())

	res, err = eng.OnTurn(ctx, domain.NewMessage("c1", "thirty"), tr)
	require.NoError(t, err)
	assert.Equal(t, ddialog.OutcomeCompleted, res.Outcome)
	require.NotNil(t, res.Completed)
	assert.Equal(t, "Dave", res.Completed.Values["name"])
	assert.EqualValues(t, 30, res.Completed.Values["age"])

	// Restart policy: the dialog starts over.
	assert.Equal(t, "What is your name?", tr.last())

	saved, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "greeting", saved.DialogName)
	assert.Equal(t, 0, saved.StepIndex)
	assert.Equal(t, 1, saved.CompletedRuns)
}

func TestEngine_Dispatch(t *testing.T) {
	ctx := context.Background()
	rec := memory.NewRecognizer(
		memory.WithIntent("Greeting", "hello", "hi"),
		memory.WithIntent("Order", "order", "buy"),
	)
	eng := newEngine(t, ddialog.WithDispatchRecognizer(rec))
	tr := &recorder{}

	_, err := eng.OnTurn(ctx, domain.NewMessage("c1", "I want to buy a pizza"), tr)
	require.NoError(t, err)
	assert.Equal(t, "What do you want to order?", tr.last())

	p, err := eng.Progress(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "order", p.DialogName)

	t.Run("No match without default is ignored", func(t *testing.T) {
		tr := &recorder{}
		res, err := eng.OnTurn(ctx, domain.NewMessage("c2", "weather?"), tr)
		require.NoError(t, err)
		assert.Equal(t, ddialog.OutcomeIgnored, res.Outcome)
		assert.Nil(t, res.Progress)
		assert.Empty(t, tr.texts)

		_, err = eng.Progress(ctx, "c2")
		assert.ErrorIs(t, err, domain.ErrProgressNotFound)
	})
}

func TestEngine_DispatchRespectsRunMode(t *testing.T) {
	dialogs, steps := definitions()
	dialogs[1].RunMode = domain.RunModeDev
	rec := memory.NewRecognizer(memory.WithIntent("Order", "buy"))

	eng, err := ddialog.New("", ddialog.WithLoader(memory.NewLoader(dialogs, steps)), ddialog.WithDispatchRecognizer(rec))
	require.NoError(t, err)

	// Only greeting is available, so it is the fallback.
	tr := &recorder{}
	_, err = eng.OnTurn(context.Background(), domain.NewMessage("c1", "buy"), tr)
	require.NoError(t, err)
	assert.Equal(t, "What is your name?", tr.last())
}

func TestEngine_WelcomeOnConversationUpdate(t *testing.T) {
	store := memory.NewStore()
	eng := newEngine(t, ddialog.WithStore(store), ddialog.WithWelcomeText("Welcome!"))
	tr := &recorder{}

	act := &domain.Activity{
		Type:         domain.ActivityConversationUpdate,
		Conversation: domain.ConversationAccount{ID: "c1"},
		Recipient:    domain.ChannelAccount{ID: "bot"},
		MembersAdded: []domain.ChannelAccount{{ID: "bot"}, {ID: "user"}},
	}
	res, err := eng.OnTurn(context.Background(), act, tr)
	require.NoError(t, err)
	assert.Equal(t, ddialog.OutcomeIgnored, res.Outcome)
	assert.Equal(t, []string{"Welcome!"}, tr.texts)

	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEngine_NonMessageActivitiesLeaveProgressAlone(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	eng := newEngine(t, ddialog.WithStore(store), ddialog.WithDefaultDialog("greeting"), ddialog.WithWelcomeText("Welcome!"))
	tr := &recorder{}

	_, err := eng.OnTurn(ctx, domain.NewMessage("c1", "hi"), tr)
	require.NoError(t, err)
	_, err = eng.OnTurn(ctx, domain.NewMessage("c1", "Dave"), tr)
	require.NoError(t, err)

	before, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 1, before.StepIndex)

	for _, act := range []*domain.Activity{
		{
			Type:         domain.ActivityConversationUpdate,
			Text:         "42",
			Conversation: domain.ConversationAccount{ID: "c1"},
			Recipient:    domain.ChannelAccount{ID: "bot"},
			MembersAdded: []domain.ChannelAccount{{ID: "user"}},
		},
		{Type: domain.ActivityEvent, Text: "42", Conversation: domain.ConversationAccount{ID: "c1"}},
	} {
		res, err := eng.OnTurn(ctx, act, tr)
		require.NoError(t, err)
		assert.Equal(t, ddialog.OutcomeIgnored, res.Outcome, string(act.Type))

		after, err := store.Load(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, before, after, string(act.Type))
	}

	res, err := eng.OnTurn(ctx, domain.NewMessage("c1", "30"), tr)
	require.NoError(t, err)
	assert.Equal(t, ddialog.OutcomeCompleted, res.Outcome, "the interrupted step still expects the age")
	require.NotNil(t, res.Completed)
	assert.EqualValues(t, 30, res.Completed.Values["age"])
}

func TestEngine_CompletionHandlerAndPolicy(t *testing.T) {
	ctx := context.Background()
	var got *domain.DialogResult
	eng := newEngine(t,
		ddialog.WithDefaultDialog("order"),
		ddialog.WithCompletionPolicy(ddialog.CompletionEnd),
		ddialog.WithCompletionHandler(func(_ context.Context, r *domain.DialogResult) ([]domain.Action, error) {
			got = r
			return []domain.Action{domain.SendText("Order placed: " + r.Values["topic"].(string))}, nil
		}),
	)
	tr := &recorder{}

	_, err := eng.OnTurn(ctx, domain.NewMessage("c1", "hello"), tr)
	require.NoError(t, err)
	res, err := eng.OnTurn(ctx, domain.NewMessage("c1", "pizza"), tr)
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "order", got.Dialog)
	assert.Equal(t, "Order placed: pizza", tr.last())
	assert.True(t, res.Progress.Idle())

	t.Run("Handler errors do not fail the turn", func(t *testing.T) {
		eng := newEngine(t,
			ddialog.WithDefaultDialog("order"),
			ddialog.WithCompletionHandler(func(context.Context, *domain.DialogResult) ([]domain.Action, error) {
				return nil, errors.New("downstream unavailable")
			}),
		)
		_, err := eng.OnTurn(ctx, domain.NewMessage("c1", "hello"), nil)
		require.NoError(t, err)
		res, err := eng.OnTurn(ctx, domain.NewMessage("c1", "pizza"), nil)
		require.NoError(t, err)
		assert.Equal(t, ddialog.OutcomeCompleted, res.Outcome)
	})
}

func TestEngine_BeginAndReset(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	tr := &recorder{}

	_, err := eng.Begin(ctx, "c1", "order", tr)
	require.NoError(t, err)
	assert.Equal(t, "What do you want to order?", tr.last())

	_, err = eng.Begin(ctx, "c1", "missing", tr)
	var unknown *domain.UnknownDialogError
	require.ErrorAs(t, err, &unknown)

	require.NoError(t, eng.Reset(ctx, "c1"))
	_, err = eng.Progress(ctx, "c1")
	assert.ErrorIs(t, err, domain.ErrProgressNotFound)
}

type failingStore struct {
	ports.ProgressStore
}

func (failingStore) Save(context.Context, string, *domain.Progress) error {
	return errors.New("disk full")
}

func TestEngine_SaveFailureSendsNothing(t *testing.T) {
	eng := newEngine(t,
		ddialog.WithStore(failingStore{memory.NewStore()}),
		ddialog.WithDefaultDialog("greeting"),
	)
	tr := &recorder{}

	_, err := eng.OnTurn(context.Background(), domain.NewMessage("c1", "hi"), tr)
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "save", perr.Op)
	assert.Empty(t, tr.texts)
}

func TestEngine_CanceledTurnIsNotSaved(t *testing.T) {
	store := memory.NewStore()
	eng := newEngine(t, ddialog.WithStore(store), ddialog.WithDefaultDialog("greeting"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := eng.OnTurn(ctx, domain.NewMessage("c1", "hi"), nil)
	require.Error(t, err)

	_, err = store.Load(context.Background(), "c1")
	assert.ErrorIs(t, err, domain.ErrProgressNotFound)
}

func TestEngine_RemovedDialogStartsOver(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	stale := domain.NewProgress("c1")
	stale.DialogName = "retired"
	stale.StepIndex = 3
	stale.Values["old"] = "value"
	require.NoError(t, store.Save(ctx, "c1", stale))

	eng := newEngine(t, ddialog.WithStore(store), ddialog.WithDefaultDialog("greeting"))
	tr := &recorder{}

	res, err := eng.OnTurn(ctx, domain.NewMessage("c1", "hi"), tr)
	require.NoError(t, err)
	assert.Equal(t, ddialog.OutcomePrompted, res.Outcome)
	assert.Equal(t, "What is your name?", tr.last())

	saved, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "greeting", saved.DialogName)
	assert.NotContains(t, saved.Values, "old")
}

func TestEngine_Telemetry(t *testing.T) {
	ctx := context.Background()
	sink := &telemetry.MemorySink{}
	metrics := observability.NewMetrics()
	eng := newEngine(t,
		ddialog.WithDefaultDialog("greeting"),
		ddialog.WithTelemetrySinks(sink),
		ddialog.WithRedaction("(?i)^text$"),
		ddialog.WithMetrics(metrics),
	)

	for _, text := range []string{"hi", "Dave", "42"} {
		_, err := eng.OnTurn(ctx, domain.NewMessage("c1", text), nil)
		require.NoError(t, err)
	}

	events := sink.Named("GreetingCompleted")
	require.Len(t, events, 1)
	assert.Equal(t, "greeting", events[0].Properties["Name"])
	assert.Equal(t, "***", events[0].Properties["text"])
}

func TestNew_ConfigurationErrors(t *testing.T) {
	dialogs, steps := definitions()

	tests := []struct {
		name string
		opts []ddialog.Option
	}{
		{"Unknown default dialog", []ddialog.Option{ddialog.WithDefaultDialog("nope")}},
		{"Bad redaction pattern", []ddialog.Option{ddialog.WithRedaction("(")}},
		{"Unknown completion policy", []ddialog.Option{ddialog.WithCompletionPolicy("loop")}},
		{"Confirmation prompt without verb", []ddialog.Option{ddialog.WithConfirmationPrompt("Is that right?")}},
		{"Confirmation prompt with two verbs", []ddialog.Option{ddialog.WithConfirmationPrompt("%s or %s?")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]ddialog.Option{ddialog.WithLoader(memory.NewLoader(dialogs, steps))}, tt.opts...)
			_, err := ddialog.New("", opts...)
			var cfgErr *domain.ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}

	t.Run("Strict telemetry", func(t *testing.T) {
		bad, steps := definitions()
		bad[0].Telemetry = []domain.TelemetryDefinition{{EventName: "Bad", Fields: []string{"Nope.Field"}}}

		_, err := ddialog.New("", ddialog.WithLoader(memory.NewLoader(bad, steps)))
		require.NoError(t, err)

		_, err = ddialog.New("", ddialog.WithLoader(memory.NewLoader(bad, steps)), ddialog.WithStrictTelemetry(true))
		var cfgErr *domain.ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	})

	t.Run("Missing config dir", func(t *testing.T) {
		_, err := ddialog.New("")
		var cfgErr *domain.ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	})
}

func TestNew_FromLoamRepository(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteTree(t, dir, testutils.GreetingTree)

	eng, err := ddialog.New(dir, ddialog.WithDefaultDialog("greeting"))
	require.NoError(t, err)
	assert.Equal(t, []string{"greeting"}, eng.Catalog().DialogNames())

	tr := &recorder{}
	_, err = eng.OnTurn(context.Background(), domain.NewMessage("c1", "hello"), tr)
	require.NoError(t, err)
	assert.NotEmpty(t, tr.last())
}
