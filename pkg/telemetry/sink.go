// Package telemetry delivers turn records to a backend without slowing down
// conversations.
//
// A Sink buffers records in a bounded queue drained by a single goroutine, so
// the records of one conversation reach the writer in sequence order. When the
// queue is full the oldest record is dropped: the conversation never waits for
// telemetry.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/intake/internal/logging"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/ports"
)

const (
	// DefaultBufferSize is the capacity of the record queue.
	DefaultBufferSize = 1000
	// DefaultWriteTimeout bounds a single write to the backend.
	DefaultWriteTimeout = 5 * time.Second
)

// ErrClosed is returned by Close when the sink was already closed.
var ErrClosed = errors.New("telemetry sink closed")

// Sink is an asynchronous ports.TelemetrySink.
type Sink struct {
	writer       ports.TelemetryWriter
	logger       *slog.Logger
	writeTimeout time.Duration
	onDrop       func(domain.TurnRecord)
	onError      func(error)

	mu      sync.RWMutex
	closed  bool
	records chan domain.TurnRecord
	done    chan struct{}

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// Option configures a Sink.
type Option func(*Sink)

// WithBufferSize sets the queue capacity.
func WithBufferSize(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.records = make(chan domain.TurnRecord, n)
		}
	}
}

// WithLogger sets the logger used to report drops and write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) { s.logger = logger }
}

// WithWriteTimeout bounds every write to the backend.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Sink) { s.writeTimeout = d }
}

// WithDropHook is called for every record dropped because the queue was full.
func WithDropHook(fn func(domain.TurnRecord)) Option {
	return func(s *Sink) { s.onDrop = fn }
}

// WithErrorHook is called for every failed write.
func WithErrorHook(fn func(error)) Option {
	return func(s *Sink) { s.onError = fn }
}

// NewSink starts a sink draining into w. Close must be called to flush it.
func NewSink(w ports.TelemetryWriter, opts ...Option) *Sink {
	s := &Sink{
		writer:       w,
		logger:       logging.NewNop(),
		writeTimeout: DefaultWriteTimeout,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.records == nil {
		s.records = make(chan domain.TurnRecord, DefaultBufferSize)
	}
	go s.run()
	return s
}

// Enqueue implements ports.TelemetrySink. It never blocks.
func (s *Sink) Enqueue(rec domain.TurnRecord) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop(rec, "sink closed")
		return
	}
	for {
		select {
		case s.records <- rec:
			return
		default:
		}
		select {
		case oldest := <-s.records:
			s.drop(oldest, "queue full")
		default:
		}
	}
}

func (s *Sink) drop(rec domain.TurnRecord, reason string) {
	s.dropped.Add(1)
	s.logger.Warn("Telemetry record dropped", "reason", reason,
		"session_id", rec.SessionID, "call_id", rec.CallID, "sequence", rec.Sequence)
	if s.onDrop != nil {
		s.onDrop(rec)
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for rec := range s.records {
		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		err := s.writer.Write(ctx, rec)
		cancel()
		if err != nil {
			s.failed.Add(1)
			s.logger.Warn("Telemetry write failed", "session_id", rec.SessionID, "sequence", rec.Sequence, "err", err)
			if s.onError != nil {
				s.onError(err)
			}
			continue
		}
		s.written.Add(1)
	}
}

// Close stops accepting records and waits until the queued ones are written
// or ctx ends.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	close(s.records)
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats is a point-in-time view of the sink counters.
type Stats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
	Queued  int    `json:"queued"`
}

// Stats returns the sink counters.
func (s *Sink) Stats() Stats {
	return Stats{
		Written: s.written.Load(),
		Dropped: s.dropped.Load(),
		Failed:  s.failed.Load(),
		Queued:  len(s.records),
	}
}
