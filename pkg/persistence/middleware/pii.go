package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/ports"
)

// Mask replaces the value of every redacted key.
const Mask = "***"

// DefaultPIIPatterns match the caller contact fields collected during intake.
var DefaultPIIPatterns = []string{`contact`, `phone`, `email`, `owner_name`}

// compile turns key patterns into case-insensitive regular expressions.
func compile(patternStrings []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile("(?i)" + p)
	}
	return patterns
}

type piiMiddleware struct {
	next     ports.ConversationStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks context values of keys matching the patterns.
// Masked values cannot be recovered: a session restored from such a store asks the caller again.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := compile(patternStrings)
	return func(next ports.ConversationStore) ports.ConversationStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, sessionID string, snap *domain.Snapshot) error {
	// The orchestrator keeps using snap after Save returns.
	cloned := snap.Clone()
	for i, e := range cloned.Context {
		if matchAny(e.Key, m.patterns) {
			cloned.Context[i].Value = Mask
			continue
		}
		if sub, ok := e.Value.(map[string]any); ok {
			maskMap(sub, m.patterns)
		}
	}
	return m.next.Save(ctx, sessionID, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// NewRecordRedactor returns a function copying a record with the context
// snapshot and delta masked. The input record is never modified.
func NewRecordRedactor(patternStrings []string) func(domain.TurnRecord) domain.TurnRecord {
	patterns := compile(patternStrings)
	return func(rec domain.TurnRecord) domain.TurnRecord {
		return redact(rec, patterns)
	}
}

func redact(rec domain.TurnRecord, patterns []*regexp.Regexp) domain.TurnRecord {
	if rec.ContextSnapshot != nil {
		rec.ContextSnapshot = domain.CopyMap(rec.ContextSnapshot)
		maskMap(rec.ContextSnapshot, patterns)
	}
	if rec.ContextDelta != nil {
		rec.ContextDelta = domain.CopyMap(rec.ContextDelta)
		maskMap(rec.ContextDelta, patterns)
	}
	return rec
}

type piiWriter struct {
	next     ports.TelemetryWriter
	patterns []*regexp.Regexp
}

// NewPIIWriter creates a writer middleware that masks the context snapshot and
// delta of every record before it reaches the backend.
func NewPIIWriter(patternStrings []string) WriterMiddleware {
	patterns := compile(patternStrings)
	return func(next ports.TelemetryWriter) ports.TelemetryWriter {
		return &piiWriter{next: next, patterns: patterns}
	}
}

func (w *piiWriter) Write(ctx context.Context, rec domain.TurnRecord) error {
	return w.next.Write(ctx, redact(rec, w.patterns))
}

func matchAny(key string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		if matchAny(k, patterns) {
			m[k] = Mask
			continue
		}
		if subMap, ok := v.(map[string]any); ok {
			maskMap(subMap, patterns)
		}
	}
}
