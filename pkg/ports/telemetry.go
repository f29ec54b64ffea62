package ports

import (
	"context"

	"github.com/aretw0/intake/pkg/domain"
)

// TelemetrySink receives every TurnRecord of every conversation.
// Enqueue must never block and never fail the conversation: implementations
// buffer records and drop them (with a local log) when the backend is unhealthy.
type TelemetrySink interface {
	Enqueue(record domain.TurnRecord)
}

// TelemetryWriter is the backend a sink drains into (a database, a log, a stream).
// Writes of one conversation are issued in sequence order by a single writer.
type TelemetryWriter interface {
	Write(ctx context.Context, record domain.TurnRecord) error
}

// TelemetryWriterFunc adapts a function to TelemetryWriter.
type TelemetryWriterFunc func(ctx context.Context, record domain.TurnRecord) error

// Write calls f.
func (f TelemetryWriterFunc) Write(ctx context.Context, record domain.TurnRecord) error {
	return f(ctx, record)
}
