/*
Package tools routes LLM tool calls to pure handlers.

A Router maps a tool name to a Handler producing a domain.ToolCallResult. Handlers
never perform I/O: they only see the call arguments and a read-only view of the
conversation context. Before a result leaves the router, its context keys are
normalized through the alias table (so "severity", "condition" and
"health_status" all land on "animal_condition") and coerced to the declared
field types.

Arguments that do not match the tool schema produce a *domain.LLMProtocolError.
Unknown tool names are logged and ignored.
*/
package tools

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/aretw0/intake/internal/logging"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/registry"
	"github.com/aretw0/intake/pkg/schema"
)

// Handler turns validated tool arguments into a result. It must be pure.
type Handler func(args map[string]any, view domain.View) (domain.ToolCallResult, error)

// Router dispatches tool calls. It is immutable after construction and safe for
// concurrent use.
type Router struct {
	handlers map[string]Handler
	registry *registry.Registry
	aliases  map[string]string
	fields   schema.Schema
	logger   *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithAliases sets the alias -> canonical field table.
func WithAliases(aliases map[string]string) Option {
	return func(r *Router) {
		for k, v := range aliases {
			r.aliases[k] = v
		}
	}
}

// WithFieldTypes sets the field typing applied to every update.
func WithFieldTypes(fields schema.Schema) Option {
	return func(r *Router) {
		r.fields = fields
	}
}

// WithHandler registers or replaces the handler of a tool.
func WithHandler(name string, h Handler) Option {
	return func(r *Router) {
		r.handlers[name] = h
	}
}

// WithLogger sets the router logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRouter creates a router with the built-in handlers and checks that every
// tool declared in the registry has a handler.
func NewRouter(reg *registry.Registry, opts ...Option) (*Router, error) {
	r := &Router{
		handlers: map[string]Handler{
			"analyze_request":        AnalyzeRequest,
			"update_context":         UpdateContext,
			"parse_datetime_request": ParseDatetimeRequest,
			"generate_response":      GenerateResponse,
		},
		registry: reg,
		aliases:  make(map[string]string),
		fields:   schema.Schema{},
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	var missing []error
	for _, name := range reg.Names() {
		if _, ok := r.handlers[name]; !ok {
			missing = append(missing, &schema.ValidationError{Key: name, Reason: "tool declared without handler"})
		}
	}
	if len(missing) > 0 {
		return nil, &schema.AggregateError{Errors: missing}
	}
	return r, nil
}

// Dispatch runs the handler of a tool call against a read-only context view.
func (r *Router) Dispatch(name string, args map[string]any, view domain.View) (domain.ToolCallResult, error) {
	h, ok := r.handlers[name]
	if !ok {
		r.logger.Warn("Unknown tool call ignored", "tool", name)
		return domain.ToolCallResult{}, nil
	}
	if _, declared := r.registry.Get(name); !declared {
		r.logger.Warn("Undeclared tool call ignored", "tool", name)
		return domain.ToolCallResult{}, nil
	}

	if err := r.registry.Validate(name, args); err != nil {
		return domain.ToolCallResult{}, &domain.LLMProtocolError{Tool: name, Reason: "arguments do not match schema", Err: err}
	}

	res, err := h(args, view)
	if err != nil {
		return domain.ToolCallResult{}, &domain.LLMProtocolError{Tool: name, Reason: err.Error(), Err: err}
	}

	res.ContextUpdates, res.Scores = r.normalize(name, res.ContextUpdates, res.Scores)
	return res, nil
}

// CanonicalName returns the canonical form of a context key.
func (r *Router) CanonicalName(key string) string {
	if c, ok := r.aliases[key]; ok {
		return c
	}
	return key
}

// Canonicalize rewrites aliased keys to their canonical names. When both an alias
// and its canonical key are present, the canonical key wins.
func (r *Router) Canonicalize(updates map[string]any) map[string]any {
	if updates == nil {
		return nil
	}
	out := make(map[string]any, len(updates))
	var aliased []string
	for k, v := range updates {
		if _, ok := r.aliases[k]; ok {
			aliased = append(aliased, k)
			continue
		}
		out[k] = v
	}
	sort.Strings(aliased)
	for _, k := range aliased {
		c := r.aliases[k]
		if _, exists := out[c]; !exists {
			out[c] = updates[k]
		}
	}
	return out
}

func (r *Router) normalize(tool string, updates map[string]any, scores map[string]float64) (map[string]any, map[string]float64) {
	if len(updates) == 0 {
		return nil, nil
	}
	out := r.Canonicalize(updates)

	coerced, err := r.fields.Coerce(out)
	for _, e := range schema.ValidationErrors(err) {
		r.logger.Warn("Dropped context update with unexpected type", "tool", tool, "err", e)
	}

	var outScores map[string]float64
	if len(scores) > 0 {
		outScores = make(map[string]float64, len(scores))
		for k, v := range scores {
			outScores[r.CanonicalName(k)] = v
		}
	}
	return coerced, outScores
}

// Describe renders a short summary of a result for debug logs.
func Describe(res domain.ToolCallResult) string {
	keys := make([]string, 0, len(res.ContextUpdates))
	for k := range res.ContextUpdates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	next := ""
	if res.NextState != nil {
		next = *res.NextState
	}
	return fmt.Sprintf("action=%s next=%s updates=%v", res.NextAction, next, keys)
}
