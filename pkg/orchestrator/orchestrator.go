/*
Package orchestrator sequences the turns of one conversation.

An Orchestrator owns the current state, the conversation context, the
transcript and the per-state retry counters of exactly one conversation. Turns
are admitted one at a time in arrival order: a duplicate delivery that arrives
while a turn is running waits for it instead of interleaving with it.

Every transition requested by a state is validated by the transition graph,
and every processed turn is reported to the telemetry sink as a
domain.TurnRecord with a strictly increasing sequence number.
*/
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/intake/internal/logging"
	"github.com/aretw0/intake/pkg/conversation"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/graph"
	"github.com/aretw0/intake/pkg/ports"
	"github.com/google/uuid"
)

// Replies produced by the orchestrator itself.
const (
	EndedMessage      = "This conversation has ended. Please start a new session."
	NotUnderstoodText = "I didn't understand that. Could you please try again?"
)

// Orchestrator drives a single conversation. It is safe for concurrent use;
// turns are serialized.
type Orchestrator struct {
	states *conversation.Registry
	graph  *graph.Graph
	sink   ports.TelemetrySink
	store  ports.ConversationStore
	hooks  domain.LifecycleHooks
	logger *slog.Logger
	clock  func() time.Time
	guard  Guard

	queue turnQueue

	// Fields below are owned by the holder of queue.
	sessionID string
	callID    string
	current   conversation.State
	ctx       *domain.Context
	history   []domain.HistoryEntry
	retries   map[string]int
	seq       int
	started   bool
	ended     bool
	startedAt time.Time
	updatedAt time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSink sets the sink receiving one TurnRecord per processed turn.
func WithSink(sink ports.TelemetrySink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithStore persists a snapshot of the conversation after every turn.
func WithStore(store ports.ConversationStore) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithHooks registers lifecycle callbacks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(o *Orchestrator) { o.hooks = hooks }
}

// Guard is run by every turn, start and reset once it owns the conversation
// queue, typically to take a lock shared with other replicas. The returned function releases it.
type Guard func(ctx context.Context, sessionID string) (release func(), err error)

// WithGuard sets the guard of every turn. When a store is configured as well,
// a guarded turn first reloads the conversation if another process advanced it.
func WithGuard(g Guard) Option {
	return func(o *Orchestrator) { o.guard = g }
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// New creates an orchestrator over a state registry and its transition graph.
// The registry and the graph are shared read-only with other conversations.
func New(states *conversation.Registry, g *graph.Graph, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		states:  states,
		graph:   g,
		logger:  logging.NewNop(),
		clock:   time.Now,
		ctx:     domain.NewContext(states.Flow().Rules...),
		retries: make(map[string]int),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start begins a new conversation under sessionID, discarding any previous one,
// and returns the opening message of the initial state.
func (o *Orchestrator) Start(ctx context.Context, sessionID string) (string, error) {
	if err := o.queue.acquire(ctx); err != nil {
		return "", err
	}
	defer o.queue.release()

	release, err := o.guardLocked(ctx, sessionID)
	if err != nil {
		return "", err
	}
	defer release()

	initial, ok := o.states.Get(o.graph.Initial())
	if !ok {
		return "", fmt.Errorf("initial state %q is not registered", o.graph.Initial())
	}

	began := o.clock()
	o.resetLocked()
	o.sessionID = sessionID
	o.callID = uuid.Must(uuid.NewV7()).String()
	o.started = true
	o.startedAt = began
	o.current = initial
	o.fireEnter(ctx, "")

	acc := &accounting{}
	response := o.open(ctx, initial, "", "", acc)
	o.ctx.Set(domain.KeyMessage, response)
	o.appendHistory(domain.SpeakerSystem, response)

	o.logger.Info("Conversation started", "session_id", sessionID, "call_id", o.callID, "state", initial.Name())
	o.emit(ctx, domain.TurnRecord{
		ToState:       initial.Name(),
		AgentResponse: response,
		ContextDelta:  domain.Delta(nil, o.ctx.Snapshot()),
		Kind:          domain.KindStart,
		Model:         acc.model,
		Tokens:        acc.tokens,
	}, began)
	return response, nil
}

// ProcessTurn advances the conversation with one caller input and returns the reply.
// Concurrent calls are queued and processed in arrival order.
func (o *Orchestrator) ProcessTurn(ctx context.Context, input string) (string, error) {
	if err := o.queue.acquire(ctx); err != nil {
		return "", err
	}
	defer o.queue.release()

	if o.guard != nil && o.sessionID != "" {
		release, err := o.guardLocked(ctx, o.sessionID)
		if err != nil {
			return "", err
		}
		defer release()
		o.refreshLocked(ctx)
	}

	if !o.started {
		return "", &domain.SessionNotStartedError{SessionID: o.sessionID}
	}
	if o.ended {
		return EndedMessage, nil
	}

	began := o.clock()
	from := o.current
	before := o.ctx.Snapshot()
	acc := &accounting{}

	o.ctx.Delete(domain.KeyMessage)
	turn := o.turn(ctx, "")
	out, err := from.ProcessInput(ctx, input, turn)
	acc.add(out)
	o.appendHistory(domain.SpeakerUser, input)

	kind := domain.KindContinue
	if err != nil {
		kind = domain.KindError
		out = o.handleError(ctx, from, err)
	} else {
		o.retries[from.Name()] = 0
	}
	o.apply(from.Name(), out)

	response, k := o.resolve(ctx, from, out, acc)
	if kind != domain.KindError {
		kind = k
	}
	if o.ended {
		kind = domain.KindComplete
	}

	o.ctx.Set(domain.KeyMessage, response)
	o.appendHistory(domain.SpeakerSystem, response)

	o.emit(ctx, domain.TurnRecord{
		FromState:     from.Name(),
		ToState:       o.current.Name(),
		UserInput:     input,
		AgentResponse: response,
		ContextDelta:  domain.Delta(before, o.ctx.Snapshot()),
		Kind:          kind,
		Model:         acc.model,
		Tokens:        acc.tokens,
	}, began)
	return response, nil
}

// Reset clears the state, the context, the transcript and every retry counter.
// The conversation must be started again before the next turn.
func (o *Orchestrator) Reset(ctx context.Context) error {
	if err := o.queue.acquire(ctx); err != nil {
		return err
	}
	defer o.queue.release()

	release, err := o.guardLocked(ctx, o.sessionID)
	if err != nil {
		return err
	}
	defer release()

	o.logger.Info("Conversation reset", "session_id", o.sessionID)
	o.resetLocked()
	return nil
}

// guardLocked runs the guard for sessionID. It must be called while holding
// the queue, so that every caller takes the queue before the guard.
func (o *Orchestrator) guardLocked(ctx context.Context, sessionID string) (func(), error) {
	if o.guard == nil || sessionID == "" {
		return func() {}, nil
	}
	return o.guard(ctx, sessionID)
}

func (o *Orchestrator) resetLocked() {
	o.ctx.Clear()
	o.history = nil
	o.retries = make(map[string]int)
	o.seq = 0
	o.current = nil
	o.started = false
	o.ended = false
	o.callID = ""
}

func (o *Orchestrator) turn(ctx context.Context, previous string) conversation.Turn {
	state := ""
	if o.current != nil {
		state = o.current.Name()
	}
	return conversation.Turn{
		SessionID: o.sessionID,
		Context:   o.ctx,
		Work:      o.ctx.Clone(),
		History:   append([]domain.HistoryEntry(nil), o.history...),
		Previous:  previous,
		Retries:   o.retries[state],
		OnToolCall: func(call domain.ToolCall, err error) {
			if o.hooks.OnToolCall == nil {
				return
			}
			o.hooks.OnToolCall(ctx, &domain.ToolEvent{
				EventBase: o.event(domain.EventToolCall),
				State:     state,
				ToolName:  call.Name,
				Input:     call.Args,
				IsError:   err != nil,
			})
		},
	}
}

func (o *Orchestrator) handleError(ctx context.Context, state conversation.State, err error) conversation.Outcome {
	name := state.Name()
	o.retries[name]++
	attempts := o.retries[name]

	o.logger.Warn("Turn failed", "session_id", o.sessionID, "state", name, "retries", attempts, "err", err)
	if attempts >= o.states.MaxRetries() {
		o.logger.Error("Escalating conversation", "session_id", o.sessionID,
			"err", &domain.MaxRetriesExceededError{State: name, Attempts: attempts, Err: err})
	}
	if o.hooks.OnError != nil {
		o.hooks.OnError(ctx, &domain.ErrorEvent{EventBase: o.event(domain.EventLLMFailure), State: name, Retries: attempts, Err: err})
	}

	turn := o.turn(ctx, "")
	turn.Retries = attempts
	return state.HandleError(err, turn)
}

// apply merges the updates of a successful operation into the context.
func (o *Orchestrator) apply(state string, out conversation.Outcome) {
	if skipped := o.ctx.MergeScored(out.Updates, out.Scores); len(skipped) > 0 {
		o.logger.Warn("Kept higher confidence values", "session_id", o.sessionID, "state", state, "keys", skipped)
	}
}

// resolve carries out the action decided by the state and returns the reply.
func (o *Orchestrator) resolve(ctx context.Context, from conversation.State, out conversation.Outcome, acc *accounting) (string, domain.TransitionKind) {
	switch out.Action {
	case domain.ActionTransition:
		target := out.Next
		if out.System {
			if !o.graph.Has(target) {
				target = o.graph.Fallback()
			}
		} else if rewritten, ok := o.graph.Validate(from.Name(), target); ok {
			o.rewrite(ctx, from.Name(), target, rewritten)
			target = rewritten
		}
		return o.transition(ctx, target, out.Response, acc)

	case domain.ActionComplete:
		summary := o.states.Flow().Summary
		if _, ok := o.states.Get(summary); ok && summary != from.Name() {
			return o.transition(ctx, summary, "", acc)
		}
		o.ended = true
		o.logger.Info("Conversation completed", "session_id", o.sessionID, "state", from.Name())
		response := out.Response
		if response == "" {
			if def, ok := o.states.Flow().State(from.Name()); ok {
				response = def.Closing
			}
		}
		return response, domain.KindComplete
	}

	if out.Response != "" {
		return out.Response, domain.KindContinue
	}
	for _, key := range []string{domain.KeyMessage, domain.KeyErrorMessage} {
		if msg := o.ctx.GetString(key); msg != "" {
			return msg, domain.KindContinue
		}
	}
	return NotUnderstoodText, domain.KindContinue
}

func (o *Orchestrator) rewrite(ctx context.Context, from, to, rewritten string) {
	o.logger.Warn("Transition rewritten", "session_id", o.sessionID,
		"err", &domain.InvalidTransitionError{From: from, To: to, Rewritten: rewritten})
	if o.hooks.OnRewrite != nil {
		o.hooks.OnRewrite(ctx, &domain.RewriteEvent{EventBase: o.event(domain.EventRewrite), From: from, To: to, Rewritten: rewritten})
	}
}

// transition leaves the current state and opens target. Entering the initial
// state again starts a new request and drops the keys of the previous one.
// The opening message is, in order: the static entry of the target, the
// message carried by the previous state, or a second LLM call.
func (o *Orchestrator) transition(ctx context.Context, target, carried string, acc *accounting) (string, domain.TransitionKind) {
	next, ok := o.states.Get(target)
	if !ok {
		next, _ = o.states.Get(o.graph.Fallback())
	}
	prev := o.current
	prev.Exit(o.ctx)
	if o.hooks.OnStateLeave != nil {
		o.hooks.OnStateLeave(ctx, &domain.StateEvent{EventBase: o.event(domain.EventStateLeave), State: prev.Name()})
	}

	if next.Name() == o.graph.Initial() {
		for _, key := range domain.RequestKeys {
			o.ctx.Delete(key)
		}
	}
	o.current = next
	o.retries[next.Name()] = 0
	o.fireEnter(ctx, prev.Name())
	o.logger.Debug("Transition", "session_id", o.sessionID, "from", prev.Name(), "to", next.Name())

	calls := acc.calls
	response := o.open(ctx, next, prev.Name(), carried, acc)
	if acc.calls > calls {
		return response, domain.KindFallback
	}
	return response, domain.KindOptimized
}

// open produces the opening message of state.
func (o *Orchestrator) open(ctx context.Context, state conversation.State, previous, carried string, acc *accounting) string {
	if msg, ok := state.Enter(o.ctx); ok {
		return msg
	}
	if carried != "" {
		return carried
	}
	out, err := state.ProcessStateEntry(ctx, o.turn(ctx, previous))
	acc.add(out)
	if err != nil {
		o.logger.Warn("State entry failed, using default opening", "session_id", o.sessionID, "state", state.Name(), "err", err)
		return out.Response
	}
	o.apply(state.Name(), out)
	return out.Response
}

func (o *Orchestrator) fireEnter(ctx context.Context, previous string) {
	if o.hooks.OnStateEnter != nil {
		o.hooks.OnStateEnter(ctx, &domain.StateEvent{EventBase: o.event(domain.EventStateEnter), State: o.current.Name(), Previous: previous})
	}
}

func (o *Orchestrator) appendHistory(speaker domain.Speaker, msg string) {
	o.history = append(o.history, domain.HistoryEntry{Speaker: speaker, Message: msg, Timestamp: o.clock()})
}

func (o *Orchestrator) event(t domain.EventType) domain.EventBase {
	return domain.EventBase{Timestamp: o.clock(), Type: t, SessionID: o.sessionID}
}

// emit stamps and publishes a record, then persists the conversation.
func (o *Orchestrator) emit(ctx context.Context, rec domain.TurnRecord, began time.Time) {
	now := o.clock()
	o.updatedAt = now

	rec.CallID = o.callID
	rec.SessionID = o.sessionID
	rec.Sequence = o.seq
	rec.ContextSnapshot = o.ctx.Snapshot()
	rec.ProcessingMs = now.Sub(began).Milliseconds()
	rec.Timestamp = now
	o.seq++

	if o.sink != nil {
		o.sink.Enqueue(rec)
	}
	if o.hooks.OnTurn != nil {
		o.hooks.OnTurn(ctx, &domain.TurnEvent{EventBase: o.event(domain.EventTurn), Record: rec})
	}
	if o.store != nil {
		if err := o.store.Save(ctx, o.sessionID, o.snapshotLocked()); err != nil {
			o.logger.Warn("Failed to persist conversation", "session_id", o.sessionID, "err", err)
		}
	}
}

// accounting sums the LLM usage of one turn.
type accounting struct {
	calls  int
	tokens int
	model  string
}

func (a *accounting) add(out conversation.Outcome) {
	a.calls += out.LLMCalls
	a.tokens += out.Tokens
	if out.Model != "" {
		a.model = out.Model
	}
}
