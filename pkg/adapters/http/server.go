package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/ddialog"
	"github.com/aretw0/ddialog/internal/logging"
	"github.com/aretw0/ddialog/pkg/domain"
	"github.com/aretw0/ddialog/pkg/ports"
	"github.com/aretw0/ddialog/pkg/runner"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Engine defines the part of *ddialog.Engine the server exposes.
type Engine interface {
	OnTurn(ctx context.Context, activity *domain.Activity, transport ports.Transport) (*ddialog.TurnResult, error)
	Progress(ctx context.Context, conversationID string) (*domain.Progress, error)
	Reset(ctx context.Context, conversationID string) error
	Catalog() *domain.Catalog
}

// Server serves the bot endpoint and conversation inspection API.
type Server struct {
	Engine  Engine
	Streams *StreamManager

	logger  *slog.Logger
	metrics http.Handler
	view    func(*domain.Progress) *domain.Progress
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithProgressView transforms progress before GET /api/conversations/{id}
// returns it, e.g. to mask personal data.
func WithProgressView(view func(*domain.Progress) *domain.Progress) Option {
	return func(s *Server) {
		s.view = view
	}
}

// MessagesResponse is returned by POST /api/messages.
type MessagesResponse struct {
	ConversationID string          `json:"conversation_id"`
	Outcome        ddialog.Outcome `json:"outcome"`
	Activities     []domain.Action `json:"activities"`
	Completed      bool            `json:"completed,omitempty"`
}

// NewHandler creates the HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{Engine: engine}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.Streams = NewStreamManager(s.logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/healthz", s.GetHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/messages", s.PostMessage)
		r.Get("/dialogs", s.GetDialogs)
		r.Route("/conversations/{id}", func(r chi.Router) {
			r.Get("/", s.GetConversation)
			r.Delete("/", s.DeleteConversation)
			r.Get("/events", s.SubscribeEvents)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// collector buffers the actions of one turn for the response body.
type collector struct {
	mu      sync.Mutex
	actions []domain.Action
}

func (c *collector) SendText(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, domain.SendText(text))
	return nil
}

func (c *collector) SendStructured(_ context.Context, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, domain.SendStructured(payload))
	return nil
}

// PostMessage handles POST /api/messages. The body is one activity; the
// reply carries the actions produced by the turn.
func (s *Server) PostMessage(w http.ResponseWriter, r *http.Request) {
	var act domain.Activity
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&act); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("PostMessage: Invalid request body", "err", err)
		return
	}
	if act.Conversation.ID == "" {
		http.Error(w, "conversation.id is required", http.StatusBadRequest)
		return
	}
	if act.Type == "" {
		act.Type = domain.ActivityMessage
	}
	if act.Text != "" {
		clean, err := runner.SanitizeInput(act.Text)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid input: %v", err), http.StatusBadRequest)
			s.logger.Warn("PostMessage: Input rejected", "err", err, "size", len(act.Text))
			return
		}
		act.Text = clean
	}

	out := &collector{}
	res, err := s.Engine.OnTurn(r.Context(), &act, out)
	if err != nil {
		status := statusFor(err)
		http.Error(w, err.Error(), status)
		s.logger.Error("Turn failed",
			"conversation_id", act.Conversation.ID,
			"request_id", middleware.GetReqID(r.Context()),
			"status", status,
			"err", err,
		)
		return
	}

	if len(out.actions) > 0 {
		if data, err := json.Marshal(out.actions); err == nil {
			s.Streams.Broadcast(act.Conversation.ID, string(data))
		}
	}

	writeJSON(w, http.StatusOK, MessagesResponse{
		ConversationID: act.Conversation.ID,
		Outcome:        res.Outcome,
		Activities:     out.actions,
		Completed:      res.Completed != nil,
	})
}

// GetConversation handles GET /api/conversations/{id}.
func (s *Server) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.Engine.Progress(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	if s.view != nil {
		p = s.view(p)
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteConversation handles DELETE /api/conversations/{id}.
func (s *Server) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Engine.Reset(r.Context(), id); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetDialogs handles GET /api/dialogs.
func (s *Server) GetDialogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Engine.Catalog().Dialogs())
}

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SubscribeEvents handles GET /api/conversations/{id}/events (SSE). Every
// batch of actions sent to the conversation is pushed as one event.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	id := chi.URLParam(r, "id")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(id)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func statusFor(err error) int {
	var (
		unknown *domain.UnknownDialogError
		recErr  *domain.RecognizerError
		perr    *domain.PersistenceError
	)
	switch {
	case errors.Is(err, domain.ErrProgressNotFound), errors.As(err, &unknown):
		return http.StatusNotFound
	case errors.As(err, &recErr):
		return http.StatusBadGateway
	case errors.As(err, &perr):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
