package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/intake"
	"github.com/aretw0/intake/internal/logging"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Engine defines the conversation operations exposed over HTTP.
type Engine interface {
	Start(ctx context.Context, sessionID string) (string, error)
	Turn(ctx context.Context, sessionID, input string) (string, error)
	Reset(ctx context.Context, sessionID string) (string, error)
	Delete(ctx context.Context, sessionID string) error
	Inspect(ctx context.Context, sessionID string) (*domain.Snapshot, error)
	Sessions(ctx context.Context) ([]string, error)
}

// CallStatusHook is notified when the voice provider reports that a call is over.
type CallStatusHook func(ctx context.Context, snap *domain.Snapshot, status string)

// Server serves the conversation API.
type Server struct {
	Engine  Engine
	Streams *StreamManager

	logger      *slog.Logger
	metricsPath string
	metrics     http.Handler
	onCallEnd   CallStatusHook
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics mounts a metrics handler at path.
func WithMetrics(path string, handler http.Handler) Option {
	return func(s *Server) {
		s.metricsPath = path
		s.metrics = handler
	}
}

// WithStreams shares a StreamManager, typically one also registered as telemetry sink.
func WithStreams(streams *StreamManager) Option {
	return func(s *Server) {
		s.Streams = streams
	}
}

// WithCallStatusHook registers a hook for terminal voice call statuses.
func WithCallStatusHook(fn CallStatusHook) Option {
	return func(s *Server) {
		s.onCallEnd = fn
	}
}

// NewServer creates a Server for the engine.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{Engine: engine}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}
	return s
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	return NewServer(engine, opts...).Routes()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/start", s.StartSession)
	r.Post("/turn", s.Turn)
	r.Post("/reset", s.ResetSession)
	r.Get("/sessions", s.ListSessions)
	r.Get("/sessions/{id}", s.GetSession)
	r.Delete("/sessions/{id}", s.DeleteSession)
	r.Get("/events", s.SubscribeEvents)
	r.Post("/voice", s.Voice)
	r.Post("/voice/status", s.VoiceStatus)
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.metrics != nil {
		r.Handle(s.metricsPath, s.metrics)
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StartRequest is the body of POST /start. An empty SessionID gets a generated one.
type StartRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// TurnRequest is the body of POST /turn.
type TurnRequest struct {
	SessionID string `json:"session_id"`
	Input     string `json:"input"`
}

// TurnResponse is returned by /start, /turn and /reset.
type TurnResponse struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
	State     string `json:"state,omitempty"`
	Ended     bool   `json:"ended"`
}

// StartSession handles the POST /start request.
func (s *Server) StartSession(w http.ResponseWriter, r *http.Request) {
	var body StartRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			s.logger.Warn("Start: Invalid request body", "error", err)
			return
		}
	}
	if body.SessionID == "" {
		body.SessionID = uuid.NewString()
	}

	greeting, err := s.Engine.Start(r.Context(), body.SessionID)
	if err != nil {
		s.fail(w, "Start", err)
		return
	}
	s.respond(w, r, body.SessionID, greeting)
}

// Turn handles the POST /turn request.
func (s *Server) Turn(w http.ResponseWriter, r *http.Request) {
	var body TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("Turn: Invalid request body", "error", err)
		return
	}
	if body.SessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	reply, err := s.Engine.Turn(r.Context(), body.SessionID, body.Input)
	if err != nil {
		s.fail(w, "Turn", err)
		return
	}
	s.respond(w, r, body.SessionID, reply)
}

// ResetSession handles the POST /reset request.
func (s *Server) ResetSession(w http.ResponseWriter, r *http.Request) {
	var body StartRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	greeting, err := s.Engine.Reset(r.Context(), body.SessionID)
	if err != nil {
		s.fail(w, "Reset", err)
		return
	}
	s.respond(w, r, body.SessionID, greeting)
}

// ListSessions handles the GET /sessions request.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Engine.Sessions(r.Context())
	if err != nil {
		s.fail(w, "ListSessions", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, ids)
}

// GetSession handles the GET /sessions/{id} request.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Engine.Inspect(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "GetSession", err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// DeleteSession handles the DELETE /sessions/{id} request.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, "DeleteSession", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "intake-http",
		"version": strings.TrimSpace(intake.Version),
	})
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, sessionID, reply string) {
	resp := TurnResponse{SessionID: sessionID, Response: reply}
	if snap, err := s.Engine.Inspect(r.Context(), sessionID); err == nil {
		resp.State = snap.State
		resp.Ended = snap.Ended
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, session.ErrInputTooLarge), errors.Is(err, session.ErrInvalidUTF8):
		http.Error(w, fmt.Sprintf("Invalid input: %v", err), http.StatusBadRequest)
		s.logger.Warn(op+": Input rejected", "error", err)
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		http.Error(w, fmt.Sprintf("%s error: %v", op, err), http.StatusInternalServerError)
		s.logger.Error(op+" failed", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "error", err)
	}
}
