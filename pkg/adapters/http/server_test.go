package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/ddialog"
	"github.com/aretw0/ddialog/pkg/adapters/memory"
	"github.com/aretw0/ddialog/pkg/domain"
	"github.com/aretw0/ddialog/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*httptest.Server, *ddialog.Engine) {
	t.Helper()
	loader := memory.NewLoader(
		[]domain.DialogDefinition{{Name: "greeting", Steps: []string{"name", "confirm"}}},
		[]domain.StepDefinition{
			{Name: "name", Prompt: "What is your name?", Type: domain.ValueString},
			{Name: "confirm", Prompt: "Please confirm.", Type: domain.ValueCard},
		},
	)
	metrics := observability.NewMetrics()
	eng, err := ddialog.New("", ddialog.WithLoader(loader), ddialog.WithMetrics(metrics))
	require.NoError(t, err)

	srv := httptest.NewServer(NewHandler(eng, WithMetricsHandler(metrics.Handler())))
	t.Cleanup(srv.Close)
	return srv, eng
}

func post(t *testing.T, srv *httptest.Server, body string) (*http.Response, MessagesResponse) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/messages", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out MessagesResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestPostMessage_Conversation(t *testing.T) {
	srv, _ := newServer(t)

	resp, out := post(t, srv, `{"type":"message","text":"hi","conversation":{"id":"c1"}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, ddialog.OutcomePrompted, out.Outcome)
	require.Len(t, out.Activities, 1)
	assert.Equal(t, "What is your name?", out.Activities[0].Text)

	_, out = post(t, srv, `{"text":"Ada","conversation":{"id":"c1"}}`)
	assert.Equal(t, "Please confirm.", out.Activities[0].Text)

	_, out = post(t, srv, `{"value":{"accept":true,"count":2},"conversation":{"id":"c1"}}`)
	assert.Equal(t, ddialog.OutcomeCompleted, out.Outcome)
	assert.True(t, out.Completed)
	assert.Equal(t, domain.ActionSendStructured, out.Activities[0].Type)

	get, err := http.Get(srv.URL + "/api/conversations/c1")
	require.NoError(t, err)
	defer get.Body.Close()
	require.Equal(t, http.StatusOK, get.StatusCode)

	var p domain.Progress
	require.NoError(t, json.NewDecoder(get.Body).Decode(&p))
	assert.Equal(t, 1, p.CompletedRuns)
}

func TestPostMessage_BadRequests(t *testing.T) {
	srv, _ := newServer(t)

	resp, _ := post(t, srv, `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = post(t, srv, `{"text":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = post(t, srv, `{"text":"`+strings.Repeat("a", 5000)+`","conversation":{"id":"c1"}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConversationLifecycle(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/api/conversations/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	post(t, srv, `{"text":"hi","conversation":{"id":"c1"}}`)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/conversations/c1", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/conversations/c1")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthDialogsAndMetrics(t *testing.T) {
	srv, _ := newServer(t)
	post(t, srv, `{"text":"hi","conversation":{"id":"c1"}}`)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/dialogs")
	require.NoError(t, err)
	var dialogs []domain.DialogDefinition
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&dialogs))
	resp.Body.Close()
	require.Len(t, dialogs, 1)
	assert.Equal(t, "greeting", dialogs[0].Name)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	scanner := bufio.NewScanner(resp.Body)
	found := false
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "ddialog_turn_duration_seconds") {
			found = true
			break
		}
	}
	assert.True(t, found)
}

func TestSubscribeEvents(t *testing.T) {
	srv, _ := newServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/conversations/c1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	require.Equal(t, "event: ping", <-lines)

	post(t, srv, `{"text":"hi","conversation":{"id":"c1"}}`)

	timeout := time.After(2 * time.Second)
	for {
		select {
		case line := <-lines:
			if strings.HasPrefix(line, "data: [") {
				assert.Contains(t, line, "What is your name?")
				return
			}
		case <-timeout:
			t.Fatal("no event received")
		}
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(domain.ErrProgressNotFound))
	assert.Equal(t, http.StatusNotFound, statusFor(&domain.UnknownDialogError{Name: "x"}))
	assert.Equal(t, http.StatusBadGateway, statusFor(&domain.RecognizerError{Model: "m", Err: context.Canceled}))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(&domain.PersistenceError{Op: "save", Err: assert.AnError}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}

func TestGetConversation_ProgressView(t *testing.T) {
	loader := memory.NewLoader(
		[]domain.DialogDefinition{{Name: "greeting", Steps: []string{"name", "age"}}},
		[]domain.StepDefinition{
			{Name: "name", Prompt: "What is your name?", Type: domain.ValueString},
			{Name: "age", Prompt: "How old are you?", Type: domain.ValueInteger},
		},
	)
	eng, err := ddialog.New("", ddialog.WithLoader(loader))
	require.NoError(t, err)

	hide := func(p *domain.Progress) *domain.Progress {
		out := p.Clone()
		out.Values["name"] = "***"
		return out
	}
	srv := httptest.NewServer(NewHandler(eng, WithProgressView(hide)))
	t.Cleanup(srv.Close)

	post(t, srv, `{"text":"hi","conversation":{"id":"c1"}}`)
	post(t, srv, `{"text":"Ada","conversation":{"id":"c1"}}`)

	resp, err := http.Get(srv.URL + "/api/conversations/c1")
	require.NoError(t, err)
	defer resp.Body.Close()

	var p domain.Progress
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	assert.Equal(t, "***", p.Values["name"])

	live, err := eng.Progress(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", live.Values["name"])
}

func TestStreamManager_DropsWithInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	sm := NewStreamManager(slog.New(slog.NewTextHandler(&buf, nil)))

	ch, cancel := sm.Subscribe("c1")
	defer cancel()
	for i := 0; i < cap(ch)+1; i++ {
		sm.Broadcast("c1", "msg")
	}

	assert.Len(t, ch, cap(ch))
	assert.Contains(t, buf.String(), "dropping message")
	assert.Equal(t, 1, sm.Subscribers("c1"))

	assert.NotPanics(t, func() { NewStreamManager(nil).Broadcast("c1", "msg") })
}
