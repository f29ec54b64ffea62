package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/intake/internal/logging"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/flow"
	"github.com/aretw0/intake/pkg/ports"
	"github.com/aretw0/intake/pkg/registry"
	"github.com/aretw0/intake/pkg/tools"
)

// Protocol defaults.
const (
	DefaultMaxRetries    = 3
	DefaultHistoryWindow = 5
	DefaultEntryWindow   = 3
)

// Caller-facing failure messages.
const (
	MessageTimeout  = "I'm sorry, that's taking longer than expected. Could you please try again?"
	MessageProtocol = "I'm sorry, I had trouble processing that. Could you please say it again?"
	MessageGeneric  = "I'm sorry, something went wrong on my side. Could you please try again?"
)

// Deps are the collaborators shared by every state of a flow.
type Deps struct {
	LLM    ports.LLMClient
	Flow   *flow.Definition
	Tools  *registry.Registry
	Router *tools.Router
	// Cases is optional. Without it no case is created and no availability is offered.
	Cases ports.CaseStore

	// Model is passed to the LLM client; empty selects the client's primary model.
	Model         string
	MaxRetries    int
	HistoryWindow int
	EntryWindow   int

	Logger *slog.Logger
	Clock  func() time.Time
}

func (d *Deps) init() error {
	if d.LLM == nil {
		return errors.New("conversation: llm client is required")
	}
	if d.Flow == nil {
		def, err := flow.Default()
		if err != nil {
			return err
		}
		d.Flow = def
	}
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.MaxRetries <= 0 {
		d.MaxRetries = DefaultMaxRetries
	}
	if d.HistoryWindow <= 0 {
		d.HistoryWindow = DefaultHistoryWindow
	}
	if d.EntryWindow <= 0 {
		d.EntryWindow = DefaultEntryWindow
	}
	if d.Tools == nil {
		reg, err := registry.NewBuiltin(d.Flow.StateNames()...)
		if err != nil {
			return err
		}
		d.Tools = reg
	}
	if d.Router == nil {
		router, err := tools.NewRouter(d.Tools,
			tools.WithAliases(d.Flow.Aliases),
			tools.WithFieldTypes(d.Flow.FieldTypes()),
			tools.WithLogger(d.Logger),
		)
		if err != nil {
			return err
		}
		d.Router = router
	}
	return nil
}

// Base implements the LLM protocol shared by every state.
type Base struct {
	def  flow.StateDef
	deps *Deps

	// sections renders state-specific prompt sections.
	sections func(ctx context.Context, view domain.View) []string
}

// NewBase creates an LLM-driven state from its descriptor.
func NewBase(def flow.StateDef, deps *Deps) *Base {
	return &Base{def: def, deps: deps}
}

func (b *Base) Name() string { return b.def.Name }

// Def returns the descriptor of the state.
func (b *Base) Def() flow.StateDef { return b.def }

// Enter has no static opening: LLM states are opened by ProcessStateEntry.
func (b *Base) Enter(domain.View) (string, bool) { return "", false }

// Exit clears the transient keys of the flow and of the state.
func (b *Base) Exit(c *domain.Context) {
	for _, k := range b.deps.Flow.TransientKeys(b.def.Name) {
		c.Delete(k)
	}
}

// ProcessStateEntry asks the LLM to open the state, guided by the transition
// prompt declared for the previous state. On failure the descriptor's entry text
// is returned together with the error.
func (b *Base) ProcessStateEntry(ctx context.Context, turn Turn) (Outcome, error) {
	work := turn.working()

	guidance := b.def.TransitionPrompts[turn.Previous]
	if guidance == "" {
		guidance = b.deps.Flow.DefaultEntryPrompt
	}
	system := RenderSystemPrompt(PromptInput{
		Persona:   b.deps.Flow.Persona,
		Prompt:    strings.TrimSpace(b.def.Prompt) + "\n\n" + strings.TrimSpace(guidance),
		Required:  b.def.Required,
		Satisfies: b.deps.Flow.Satisfies,
		Context:   work,
		Extra:     b.extra(ctx, work),
	})
	messages := append([]ports.Message{{Role: ports.RoleSystem, Content: system}}, HistoryMessages(turn.History, b.deps.EntryWindow)...)

	out, _, err := b.exchange(ctx, messages, work, turn)
	if err != nil {
		return Outcome{Response: b.def.Entry, LLMCalls: out.LLMCalls, Model: out.Model}, err
	}
	// Entry never moves the conversation on its own.
	out.Action = domain.ActionContinue
	out.Next = ""
	if out.Response == "" {
		out.Response = b.def.Entry
	}
	return out, nil
}

// ProcessInput runs the LLM protocol for input and applies the required-field policy.
func (b *Base) ProcessInput(ctx context.Context, input string, turn Turn) (Outcome, error) {
	out, work, err := b.Run(ctx, input, turn)
	if err != nil {
		return out, err
	}
	return b.Finish(out, work), nil
}

// Run performs phase one of a turn: it renders the prompt, calls the LLM with the
// tools of the state, dispatches every returned tool call and merges the results
// into a working copy of the context.
func (b *Base) Run(ctx context.Context, input string, turn Turn) (Outcome, *domain.Context, error) {
	work := turn.working()
	work.Delete(domain.KeyMessage)

	system := RenderSystemPrompt(PromptInput{
		Persona:   b.deps.Flow.Persona,
		Prompt:    b.def.Prompt,
		Required:  b.def.Required,
		Satisfies: b.deps.Flow.Satisfies,
		Context:   work,
		Extra:     b.extra(ctx, work),
	})
	messages := append([]ports.Message{{Role: ports.RoleSystem, Content: system}}, HistoryMessages(turn.History, b.deps.HistoryWindow)...)
	messages = append(messages, ports.Message{Role: ports.RoleUser, Content: input})

	out, res, err := b.exchange(ctx, messages, work, turn)
	if err != nil {
		return out, work, err
	}

	switch res.NextAction {
	case domain.ActionError:
		return out, work, &domain.LLMProtocolError{Tool: "generate_response", Reason: "model reported an error"}
	case domain.ActionTransition:
		out.Action = domain.ActionTransition
		if res.NextState != nil {
			out.Next = *res.NextState
		}
	case domain.ActionComplete:
		out.Action = domain.ActionComplete
	}
	return out, work, nil
}

// Finish applies the required-field policy: a state whose required fields are
// all collected moves to its completion target and records the case details.
func (b *Base) Finish(out Outcome, work *domain.Context) Outcome {
	target := b.def.OnComplete
	if out.Action == domain.ActionTransition && out.Next == "" {
		out.Next = target
	}
	if out.Action == domain.ActionContinue && target != "" && len(b.def.Required) > 0 &&
		len(Missing(b.def.Required, work, b.deps.Flow.Satisfies)) == 0 {
		out.Action = domain.ActionTransition
		out.Next = target
	}
	if out.Action == domain.ActionTransition && out.Next == target && len(b.def.Required) > 0 {
		out.set(domain.FieldCaseDetails, b.caseDetails(work))
	}
	if out.Action == domain.ActionContinue && out.Response == "" {
		out.Response = NeedMoreInformation(work)
	}
	return out
}

// HandleError applies the retry policy. Below the retry budget the caller gets
// an apology matching the failure; once the budget is spent the conversation is
// escalated to the error state. The error state itself completes instead.
func (b *Base) HandleError(err error, turn Turn) Outcome {
	out := Outcome{Updates: map[string]any{domain.KeyRetryCount: turn.Retries}}
	if turn.Retries >= b.deps.MaxRetries {
		out.System = true
		if b.def.Name == b.deps.Flow.Error {
			out.Action = domain.ActionComplete
			return out
		}
		out.Action = domain.ActionTransition
		out.Next = b.deps.Flow.Error
		out.set(domain.KeyErrorMessage, fmt.Sprintf("Maximum retries exceeded in state %s", b.def.Name))
		return out
	}

	msg := ErrorMessage(err)
	out.Action = domain.ActionContinue
	out.Response = msg
	out.set(domain.KeyErrorMessage, msg)
	return out
}

func (b *Base) extra(ctx context.Context, view domain.View) []string {
	if b.sections == nil {
		return nil
	}
	return b.sections(ctx, view)
}

func (b *Base) exchange(ctx context.Context, messages []ports.Message, work *domain.Context, turn Turn) (Outcome, domain.ToolCallResult, error) {
	out := Outcome{LLMCalls: 1, Model: b.deps.Model}
	completion, err := b.deps.LLM.ChatCompletion(ctx, messages, b.deps.Tools.ForState(b.def.Name), b.deps.Model)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !domain.IsTimeout(err) {
			err = &domain.LLMTimeoutError{Model: b.deps.Model, Err: err}
		}
		return out, domain.ToolCallResult{}, err
	}
	if completion.Model != "" {
		out.Model = completion.Model
	}
	out.Tokens = completion.Usage.TotalTokens

	var res domain.ToolCallResult
	for _, call := range completion.ToolCalls {
		r, err := b.deps.Router.Dispatch(call.Name, call.Args, work)
		if turn.OnToolCall != nil {
			turn.OnToolCall(call, err)
		}
		if err != nil {
			return out, domain.ToolCallResult{}, err
		}
		if skipped := work.MergeScored(r.ContextUpdates, r.Scores); len(skipped) > 0 {
			b.deps.Logger.Debug("Lower confidence updates ignored", "state", b.def.Name, "tool", call.Name, "keys", skipped)
		}
		b.deps.Logger.Debug("Tool call dispatched", "state", b.def.Name, "tool", call.Name, "result", tools.Describe(r))
		res = res.Merge(r)
	}

	out.Updates = res.ContextUpdates
	out.Scores = res.Scores
	if res.Response != nil {
		out.Response = *res.Response
	} else {
		out.Response = strings.TrimSpace(completion.Content)
	}
	return out, res, nil
}

func (b *Base) caseDetails(work domain.View) map[string]any {
	details := map[string]any{
		"type":      string(domain.CaseTypeForState(b.def.Name)),
		"state":     b.def.Name,
		"timestamp": b.deps.Clock().UTC().Format(time.RFC3339),
	}
	keys := append([]string{domain.FieldAnimalType}, b.def.Required...)
	for _, k := range keys {
		if v, ok := work.Get(k); ok && domain.IsPresent(v) {
			details[k] = v
		}
		for _, group := range b.deps.Flow.Satisfies[k] {
			for _, alt := range group {
				if v, ok := work.Get(alt); ok && domain.IsPresent(v) {
					details[alt] = v
				}
			}
		}
	}
	return details
}

// ErrorMessage returns the caller-facing apology for a failed turn.
func ErrorMessage(err error) string {
	switch {
	case domain.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return MessageTimeout
	case domain.IsProtocol(err):
		return MessageProtocol
	default:
		return MessageGeneric
	}
}

// NeedMoreInformation is the reply of a turn that produced no response.
func NeedMoreInformation(view domain.View) string {
	animal := view.GetString(domain.FieldAnimalType)
	if animal == "" {
		animal = "animal"
	}
	return fmt.Sprintf("I need more information to help you with your %s concern. Could you please provide more details?", animal)
}

func (t Turn) working() *domain.Context {
	if t.Work != nil {
		return t.Work
	}
	if c, ok := t.Context.(*domain.Context); ok {
		return c.Clone()
	}
	work := domain.NewContext()
	if t.Context != nil {
		for _, k := range t.Context.Keys() {
			v, _ := t.Context.Get(k)
			work.Set(k, v)
		}
	}
	return work
}
