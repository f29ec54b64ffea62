package telemetry

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/ports"
)

// LogWriter writes every record as one structured log line.
type LogWriter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogWriter creates a writer logging at info level.
func NewLogWriter(logger *slog.Logger) *LogWriter {
	return &LogWriter{logger: logger, level: slog.LevelInfo}
}

// Write implements ports.TelemetryWriter.
func (w *LogWriter) Write(ctx context.Context, rec domain.TurnRecord) error {
	w.logger.Log(ctx, w.level, "Turn recorded",
		"call_id", rec.CallID,
		"session_id", rec.SessionID,
		"sequence", rec.Sequence,
		"from", rec.FromState,
		"to", rec.ToState,
		"kind", string(rec.Kind),
		"model", rec.Model,
		"tokens", rec.Tokens,
		"processing_ms", rec.ProcessingMs,
		"delta", rec.ContextDelta,
	)
	return nil
}

// MultiWriter writes every record to each writer in order. A failing writer
// does not stop the others; their errors are joined.
type MultiWriter []ports.TelemetryWriter

// Write implements ports.TelemetryWriter.
func (m MultiWriter) Write(ctx context.Context, rec domain.TurnRecord) error {
	var errs []error
	for _, w := range m {
		if w == nil {
			continue
		}
		if err := w.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Func adapts a function to a synchronous ports.TelemetrySink, mostly for tests.
type Func func(domain.TurnRecord)

// Enqueue calls f.
func (f Func) Enqueue(rec domain.TurnRecord) { f(rec) }

// Tee fans every record out to each sink. Sinks are expected not to block.
type Tee []ports.TelemetrySink

// Enqueue implements ports.TelemetrySink.
func (t Tee) Enqueue(rec domain.TurnRecord) {
	for _, s := range t {
		if s != nil {
			s.Enqueue(rec)
		}
	}
}
