package intake

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/intake/internal/logging"
	"github.com/aretw0/intake/pkg/adapters/memory"
	"github.com/aretw0/intake/pkg/conversation"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/flow"
	"github.com/aretw0/intake/pkg/graph"
	"github.com/aretw0/intake/pkg/orchestrator"
	"github.com/aretw0/intake/pkg/ports"
	"github.com/aretw0/intake/pkg/registry"
	"github.com/aretw0/intake/pkg/session"
)

// Engine is the high-level entry point for the intake library.
// It assembles the flow, the tool registry, the conversation states and the
// transition graph around an LLM client, and serves many conversations through
// a session manager.
type Engine struct {
	flow     *flow.Definition
	tools    *registry.Registry
	graph    *graph.Graph
	states   *conversation.Registry
	sessions *session.Manager

	store         ports.ConversationStore
	locker        ports.DistributedLocker
	lockTTL       time.Duration
	cases         ports.CaseStore
	sink          ports.TelemetrySink
	hooks         []domain.LifecycleHooks
	model         string
	maxRetries    int
	historyWindow int
	clock         func() time.Time
	logger        *slog.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithFlow replaces the embedded animal control flow.
func WithFlow(def *flow.Definition) Option {
	return func(e *Engine) {
		e.flow = def
	}
}

// WithStore persists conversation snapshots. Without it, conversations live in memory.
func WithStore(store ports.ConversationStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLocker serializes turns of one conversation across replicas.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locker = locker
		e.lockTTL = ttl
	}
}

// WithCaseStore sets the case database used by the states that create cases.
// Defaults to an in-memory store seeded with sample cases.
func WithCaseStore(cases ports.CaseStore) Option {
	return func(e *Engine) {
		e.cases = cases
	}
}

// WithTelemetry sets the sink receiving every turn record.
func WithTelemetry(sink ports.TelemetrySink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithLifecycleHooks registers observability hooks. Hooks registered by
// several options are all called.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, hooks)
	}
}

// WithModel pins the model requested from the LLM client.
func WithModel(model string) Option {
	return func(e *Engine) {
		e.model = model
	}
}

// WithMaxRetries sets the number of failed turns a state absorbs before
// the conversation moves to error handling.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		e.maxRetries = n
	}
}

// WithHistoryWindow sets the number of transcript entries sent to the LLM.
func WithHistoryWindow(n int) Option {
	return func(e *Engine) {
		e.historyWindow = n
	}
}

// WithClock sets the clock stamping records and cases.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// New initializes an Engine driven by the given LLM client.
func New(llm ports.LLMClient, opts ...Option) (*Engine, error) {
	if llm == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	e := &Engine{clock: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.flow == nil {
		def, err := flow.Default()
		if err != nil {
			return nil, fmt.Errorf("failed to load default flow: %w", err)
		}
		e.flow = def
	}
	if e.cases == nil {
		e.cases = memory.NewCaseStore(memory.WithSamples(), memory.WithClock(e.clock))
	}
	if e.store == nil {
		e.store = memory.NewStore()
	}
	e.logger = e.logger.With("flow", e.flow.Name)

	tools, err := registry.NewBuiltin(e.flow.StateNames()...)
	if err != nil {
		return nil, fmt.Errorf("failed to load tool schemas: %w", err)
	}
	e.tools = tools

	e.states, err = conversation.NewRegistry(conversation.Deps{
		LLM:           llm,
		Flow:          e.flow,
		Tools:         tools,
		Cases:         e.cases,
		Model:         e.model,
		MaxRetries:    e.maxRetries,
		HistoryWindow: e.historyWindow,
		Logger:        e.logger,
		Clock:         e.clock,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build states: %w", err)
	}

	e.graph, err = graph.FromFlow(e.flow, graph.WithLogger(e.logger))
	if err != nil {
		return nil, fmt.Errorf("invalid transition graph: %w", err)
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithClock(e.clock),
		orchestrator.WithHooks(domain.CombineHooks(e.hooks...)),
	}
	if e.sink != nil {
		orchOpts = append(orchOpts, orchestrator.WithSink(e.sink))
	}
	sessOpts := []session.Option{
		session.WithLogger(e.logger),
		session.WithOrchestratorOptions(orchOpts...),
	}
	if e.locker != nil {
		sessOpts = append(sessOpts, session.WithLocker(e.locker))
		if e.lockTTL > 0 {
			sessOpts = append(sessOpts, session.WithLockTTL(e.lockTTL))
		}
	}
	e.sessions = session.NewManager(e.states, e.graph, e.store, sessOpts...)
	return e, nil
}

// Start begins a conversation and returns its greeting. Starting an existing
// session restarts it.
func (e *Engine) Start(ctx context.Context, sessionID string) (string, error) {
	return e.sessions.Start(ctx, sessionID)
}

// Turn processes one caller input and returns the reply.
func (e *Engine) Turn(ctx context.Context, sessionID, input string) (string, error) {
	return e.sessions.ProcessTurn(ctx, sessionID, input)
}

// Reset restarts a conversation from the initial state and returns the new greeting.
func (e *Engine) Reset(ctx context.Context, sessionID string) (string, error) {
	return e.sessions.Reset(ctx, sessionID)
}

// Delete forgets a conversation.
func (e *Engine) Delete(ctx context.Context, sessionID string) error {
	return e.sessions.Delete(ctx, sessionID)
}

// Inspect returns the persisted snapshot of a conversation.
func (e *Engine) Inspect(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	return e.sessions.Inspect(ctx, sessionID)
}

// Sessions lists the stored conversations.
func (e *Engine) Sessions(ctx context.Context) ([]string, error) {
	return e.sessions.List(ctx)
}

// Active returns the number of conversations held in memory.
func (e *Engine) Active() int {
	return e.sessions.Active()
}

// Flow returns the flow definition the engine runs.
func (e *Engine) Flow() *flow.Definition {
	return e.flow
}

// Graph returns the transition graph.
func (e *Engine) Graph() *graph.Graph {
	return e.graph
}

// Tools returns the tool registry offered to the LLM.
func (e *Engine) Tools() *registry.Registry {
	return e.tools
}

// Cases returns the case database.
func (e *Engine) Cases() ports.CaseStore {
	return e.cases
}

// Manager returns the session manager.
func (e *Engine) Manager() *session.Manager {
	return e.sessions
}
