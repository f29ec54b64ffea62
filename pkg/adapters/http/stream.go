package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/persistence/middleware"
)

// allSessions is the subscription key receiving the records of every session.
const allSessions = "*"

// StreamManager handles active SSE connections. It is also a telemetry sink:
// every turn record is broadcast to the subscribers of its session.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // SessionID -> Set of Channels
	logger      *slog.Logger
	redact      func(domain.TurnRecord) domain.TurnRecord
}

// StreamOption configures a StreamManager.
type StreamOption func(*StreamManager)

// WithRedactKeys sets the key patterns whose context values are masked before
// a record is broadcast. The default is middleware.DefaultPIIPatterns.
func WithRedactKeys(patterns []string) StreamOption {
	return func(sm *StreamManager) {
		sm.redact = middleware.NewRecordRedactor(patterns)
	}
}

func NewStreamManager(logger *slog.Logger, opts ...StreamOption) *StreamManager {
	sm := &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logger,
		redact:      middleware.NewRecordRedactor(middleware.DefaultPIIPatterns),
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

func (sm *StreamManager) Subscribe(sessionID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[sessionID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, sessionID)
			}
		}
	}
}

// Subscribers returns the number of open subscriptions for sessionID.
func (sm *StreamManager) Subscribers(sessionID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[sessionID])
}

func (sm *StreamManager) Broadcast(sessionID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for _, key := range []string{sessionID, allSessions} {
		for ch := range sm.subscribers[key] {
			select {
			case ch <- msg:
			default:
				// Drop message if channel is full (slow client)
				sm.logger.Warn("SSE: Client buffer full, dropping message", "session_id", sessionID)
			}
		}
	}
}

// Enqueue implements ports.TelemetrySink. Contact fields are masked first.
func (sm *StreamManager) Enqueue(rec domain.TurnRecord) {
	payload, err := json.Marshal(sm.redact(rec))
	if err != nil {
		sm.logger.Warn("SSE: Record encode failed", "error", err, "session_id", rec.SessionID)
		return
	}
	sm.Broadcast(rec.SessionID, string(payload))
}

// SubscribeEvents handles the GET /events request (SSE). Without session_id the
// stream carries the records of every session. The optional kind parameter is a
// comma separated list of transition kinds to keep.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = allSessions
	}
	var kinds map[string]bool
	if raw := r.URL.Query().Get("kind"); raw != "" {
		kinds = make(map[string]bool)
		for _, k := range strings.Split(raw, ",") {
			kinds[strings.TrimSpace(k)] = true
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.logger.Info("SSE: Subscribing to turn records", "session_id", sessionID)
	ch, cancel := s.Streams.Subscribe(sessionID)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "session_id", sessionID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if kinds != nil {
				var rec domain.TurnRecord
				if err := json.Unmarshal([]byte(msg), &rec); err == nil && !kinds[string(rec.Kind)] {
					continue
				}
			}
			fmt.Fprintf(w, "event: turn\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
