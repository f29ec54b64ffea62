// Package middleware wraps conversation stores and telemetry writers with
// cross-cutting behavior: PII masking and encryption at rest.
package middleware

import "github.com/aretw0/intake/pkg/ports"

// Middleware allows wrapping a ConversationStore to add behavior.
type Middleware func(ports.ConversationStore) ports.ConversationStore

// WriterMiddleware allows wrapping a TelemetryWriter to add behavior.
type WriterMiddleware func(ports.TelemetryWriter) ports.TelemetryWriter

// Chain wraps store with every middleware. The first middleware is the outermost.
func Chain(store ports.ConversationStore, mws ...Middleware) ports.ConversationStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
