package ports

import (
	"context"

	"github.com/aretw0/intake/pkg/domain"
)

// Message roles understood by LLM clients.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message sent to the LLM.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption of a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the answer of a chat completion call.
type Completion struct {
	Content   string            `json:"content"`
	ToolCalls []domain.ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage             `json:"usage"`
	// Model is the model that actually produced the answer, which differs from the
	// requested one when the client fell back.
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// LLMClient is the chat completion collaborator.
// Implementations support a primary/fallback model pair: when model is empty the
// primary is used, and a failed primary call is retried once against the fallback.
// Timeouts are reported as *domain.LLMTimeoutError and malformed answers as
// *domain.LLMProtocolError.
type LLMClient interface {
	ChatCompletion(ctx context.Context, messages []Message, tools []domain.ToolSchema, model string) (*Completion, error)
}
