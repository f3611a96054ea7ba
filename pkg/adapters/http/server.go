package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/aretw0/tendril"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine is the part of tendril.Engine the HTTP API drives.
type Engine interface {
	Send(ctx context.Context, conversationID string, input any) (*domain.Turn, error)
	Reset(ctx context.Context, conversationID string) error
	Snapshot(ctx context.Context, conversationID string) (*domain.ConversationSnapshot, error)
	Delete(ctx context.Context, conversationID string) error
	Conversations(ctx context.Context) ([]string, error)
	Topics() []domain.TopicInfo
	Subscribe(fn func(*domain.Turn)) (cancel func())
}

var _ Engine = (*tendril.Engine)(nil)

// MessageRequest is the body of POST /conversations/{id}/messages.
// Values answers a waiting card; otherwise Text is sent.
type MessageRequest struct {
	Text   string         `json:"text,omitempty"`
	Values map[string]any `json:"values,omitempty"`
}

// Server exposes an Engine over REST and SSE.
type Server struct {
	Engine  Engine
	Streams *StreamManager

	logger       *slog.Logger
	gatherer     prometheus.Gatherer
	maxInputSize int
	unsubscribe  func()
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger. Defaults to JSON on stderr.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics serves g on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithMaxInputSize bounds the text of a message.
func WithMaxInputSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxInputSize = n
		}
	}
}

// NewServer creates a server and starts relaying the engine's turns to SSE clients.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		Engine:       engine,
		logger:       slog.New(slog.NewJSONHandler(os.Stderr, nil)),
		maxInputSize: DefaultMaxInputSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.logger)
	s.unsubscribe = engine.Subscribe(s.relay)
	return s
}

// NewHandler is a shortcut for NewServer(engine, opts...).Handler().
func NewHandler(engine Engine, opts ...Option) http.Handler {
	return NewServer(engine, opts...).Handler()
}

// Close stops relaying turns.
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/topics", s.ListTopics)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", s.ListConversations)
		r.Post("/", s.CreateConversation)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetConversation)
			r.Delete("/", s.DeleteConversation)
			r.Post("/messages", s.SendMessage)
			r.Post("/reset", s.ResetConversation)
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

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "tendril-http",
		"version": strings.TrimSpace(tendril.Version),
	})
}

// ListTopics handles GET /topics.
func (s *Server) ListTopics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Engine.Topics())
}

// ListConversations handles GET /conversations.
func (s *Server) ListConversations(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Engine.Conversations(r.Context())
	if err != nil {
		s.fail(w, "List conversations failed", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, ids)
}

// CreateConversation handles POST /conversations. A body, when present, is
// delivered as the first message.
func (s *Server) CreateConversation(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	body, err := s.decodeMessage(r, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body == nil {
		w.Header().Set("Location", "/conversations/"+id)
		s.writeJSON(w, http.StatusCreated, map[string]string{"conversation_id": id})
		return
	}
	s.send(w, r, id, body, http.StatusCreated)
}

// GetConversation handles GET /conversations/{id}.
func (s *Server) GetConversation(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Engine.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrSessionNotFound) {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.fail(w, "Snapshot failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// DeleteConversation handles DELETE /conversations/{id}.
func (s *Server) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, "Delete failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendMessage handles POST /conversations/{id}/messages.
func (s *Server) SendMessage(w http.ResponseWriter, r *http.Request) {
	body, err := s.decodeMessage(r, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.send(w, r, chi.URLParam(r, "id"), body, http.StatusOK)
}

// ResetConversation handles POST /conversations/{id}/reset.
func (s *Server) ResetConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Reset(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, "Reset failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubscribeEvents handles GET /conversations/{id}/events (SSE). Every turn
// of the conversation is sent as one JSON data line.
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
	s.logger.Info("SSE: client subscribed", "conversation", id)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: client disconnected", "conversation", id)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: turn\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) relay(turn *domain.Turn) {
	if s.Streams.Subscribers(turn.ConversationID) == 0 {
		return
	}
	b, err := json.Marshal(turn)
	if err != nil {
		s.logger.Error("SSE: turn encode failed", "conversation", turn.ConversationID, "err", err)
		return
	}
	s.Streams.Broadcast(turn.ConversationID, string(b))
}

func (s *Server) send(w http.ResponseWriter, r *http.Request, id string, body *MessageRequest, status int) {
	var input any = body.Text
	if body.Values != nil {
		input = body.Values
	}
	turn, err := s.Engine.Send(r.Context(), id, input)
	if err != nil {
		s.fail(w, "Send failed", err)
		return
	}
	s.writeJSON(w, status, turn)
}

// decodeMessage reads a MessageRequest. With optional set an empty body yields nil.
func (s *Server) decodeMessage(r *http.Request, optional bool) (*MessageRequest, error) {
	var body MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil, nil
		}
		s.logger.Warn("Invalid request body", "err", err)
		return nil, fmt.Errorf("invalid request body")
	}
	if body.Values == nil {
		clean, err := SanitizeInput(body.Text, s.maxInputSize)
		if err != nil {
			s.logger.Warn("Input rejected", "err", err, "size", len(body.Text))
			return nil, fmt.Errorf("invalid input: %w", err)
		}
		body.Text = clean
	}
	return &body, nil
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, domain.ErrTopicNotFound) {
		status = http.StatusNotFound
	}
	s.logger.Error(msg, "err", err)
	http.Error(w, fmt.Sprintf("%s: %v", msg, err), status)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}
