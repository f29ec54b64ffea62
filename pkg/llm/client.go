/*
Package llm implements ports.LLMClient against OpenRouter's OpenAI-compatible API.

Requests force tool usage whenever tools are offered. A failed call on any model
other than the fallback is retried once against the fallback model; the model that
actually answered is reported in the completion.
*/
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/intake/internal/logging"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/aretw0/intake/pkg/ports"
	openai "github.com/sashabaranov/go-openai"
)

// Defaults of an OpenRouter client.
const (
	DefaultBaseURL       = "https://openrouter.ai/api/v1"
	DefaultPrimaryModel  = "anthropic/claude-3.5-sonnet"
	DefaultFallbackModel = "openai/gpt-3.5-turbo"
	DefaultTemperature   = 0.7
	DefaultMaxTokens     = 1000
	DefaultTimeout       = 30 * time.Second
	DefaultAppName       = "Animal Control Intake"
)

// Config holds the settings of an OpenRouter client.
// Setting FallbackModel to the primary model disables the fallback.
type Config struct {
	APIKey        string
	BaseURL       string
	PrimaryModel  string
	FallbackModel string
	Temperature   float32
	MaxTokens     int
	Timeout       time.Duration

	// AppName and SiteURL identify the application in the OpenRouter dashboard.
	AppName string
	SiteURL string
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.PrimaryModel == "" {
		c.PrimaryModel = DefaultPrimaryModel
	}
	if c.FallbackModel == "" {
		c.FallbackModel = DefaultFallbackModel
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.AppName == "" {
		c.AppName = DefaultAppName
	}
}

// Observer is notified of every request sent to the API.
// status is "ok", "timeout", "protocol" or "error".
type Observer interface {
	ObserveLLMRequest(model, status string, elapsed time.Duration, usage ports.Usage)
}

// Client is an OpenRouter chat completion client. It is safe for concurrent use.
type Client struct {
	api      *openai.Client
	cfg      Config
	logger   *slog.Logger
	observer Observer
	http     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithObserver reports every request to o.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithHTTPClient replaces the underlying HTTP client. The OpenRouter headers are
// still added to every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client. The API key is required.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openrouter: API key is required")
	}
	cfg.applyDefaults()

	c := &Client{cfg: cfg, logger: logging.NewNop(), http: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}

	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc := *c.http
	hc.Transport = &headerTransport{base: base, headers: map[string]string{
		"HTTP-Referer": cfg.SiteURL,
		"X-Title":      cfg.AppName,
	}}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	clientConfig.HTTPClient = &hc
	c.api = openai.NewClientWithConfig(clientConfig)
	return c, nil
}

// Config returns the effective configuration, defaults included.
func (c *Client) Config() Config {
	cfg := c.cfg
	cfg.APIKey = ""
	return cfg
}

// ChatCompletion implements ports.LLMClient.
func (c *Client) ChatCompletion(ctx context.Context, messages []ports.Message, tools []domain.ToolSchema, model string) (*ports.Completion, error) {
	if model == "" {
		model = c.cfg.PrimaryModel
	}
	completion, err := c.complete(ctx, messages, tools, model)
	if err == nil {
		return completion, nil
	}
	fallback := c.cfg.FallbackModel
	if fallback == "" || fallback == model || ctx.Err() != nil {
		return nil, err
	}

	c.logger.Warn("LLM call failed, trying fallback model", "model", model, "fallback", fallback, "err", err)
	return c.complete(ctx, messages, tools, fallback)
}

func (c *Client) complete(ctx context.Context, messages []ports.Message, tools []domain.ToolSchema, model string) (*ports.Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	began := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, c.request(messages, tools, model))
	if err != nil {
		err = c.classify(err, model)
		c.observe(model, err, began, ports.Usage{})
		return nil, err
	}

	completion, err := convert(resp, model)
	c.observe(model, err, began, usage(resp.Usage))
	if err != nil {
		return nil, err
	}
	c.logger.Debug("LLM call completed", "model", completion.Model, "tokens", completion.Usage.TotalTokens,
		"tool_calls", len(completion.ToolCalls), "finish_reason", completion.FinishReason)
	return completion, nil
}

func (c *Client) request(messages []ports.Message, tools []domain.ToolSchema, model string) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	if len(tools) > 0 {
		req.Tools = make([]openai.Tool, len(tools))
		for i, t := range tools {
			params := t.Parameters
			if params == nil {
				params = map[string]any{"type": "object", "properties": map[string]any{}}
			}
			req.Tools[i] = openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  params,
				},
			}
		}
		req.ToolChoice = "required"
	}
	return req
}

func (c *Client) classify(err error, model string) error {
	if isTimeout(err) {
		return &domain.LLMTimeoutError{Model: model, Timeout: c.cfg.Timeout, Err: err}
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("openrouter %s: status %d: %w", model, apiErr.HTTPStatusCode, err)
	}
	return fmt.Errorf("openrouter %s: %w", model, err)
}

func (c *Client) observe(model string, err error, began time.Time, u ports.Usage) {
	if c.observer == nil {
		return
	}
	status := "ok"
	var protocol *domain.LLMProtocolError
	switch {
	case err == nil:
	case domain.IsTimeout(err):
		status = "timeout"
	case errors.As(err, &protocol):
		status = "protocol"
	default:
		status = "error"
	}
	c.observer.ObserveLLMRequest(model, status, time.Since(began), u)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// convert maps an API response into a completion. Tool arguments that are not a
// JSON object are a protocol error.
func convert(resp openai.ChatCompletionResponse, requested string) (*ports.Completion, error) {
	if len(resp.Choices) == 0 {
		return nil, &domain.LLMProtocolError{Reason: "response has no choices"}
	}
	choice := resp.Choices[0]
	out := &ports.Completion{
		Content:      choice.Message.Content,
		Usage:        usage(resp.Usage),
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
	}
	if out.Model == "" {
		out.Model = requested
	}
	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if raw := strings.TrimSpace(tc.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, &domain.LLMProtocolError{Tool: tc.Function.Name, Reason: "arguments are not a JSON object", Err: err}
			}
		}
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}
	return out, nil
}

func usage(u openai.Usage) ports.Usage {
	return ports.Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}
