package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/intake"
	"github.com/aretw0/intake/internal/logging"
	"github.com/aretw0/intake/internal/presentation/graph"
	"github.com/aretw0/intake/pkg/domain"
	transitions "github.com/aretw0/intake/pkg/graph"
	"github.com/aretw0/intake/pkg/registry"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Resource URIs exposed by the server.
const (
	GraphURI = "intake://graph"
	ToolsURI = "intake://tools"
)

// TurnResult is returned by every conversational tool.
type TurnResult struct {
	SessionID string `json:"session_id" jsonschema_description:"The conversation the reply belongs to"`
	Response  string `json:"response" jsonschema_description:"What the assistant says to the caller"`
	State     string `json:"state,omitempty" jsonschema_description:"The conversation state after the turn"`
	Ended     bool   `json:"ended" jsonschema_description:"Indicates that the conversation is over"`
}

// SessionArgs names a conversation.
type SessionArgs struct {
	SessionID string `json:"session_id"`
}

// MessageArgs carries one caller message.
type MessageArgs struct {
	SessionID string `json:"session_id"`
	Input     string `json:"input"`
}

// Engine defines the interface required by the MCP server.
type Engine interface {
	Start(ctx context.Context, sessionID string) (string, error)
	Turn(ctx context.Context, sessionID, input string) (string, error)
	Reset(ctx context.Context, sessionID string) (string, error)
	Inspect(ctx context.Context, sessionID string) (*domain.Snapshot, error)
	Sessions(ctx context.Context) ([]string, error)
	Graph() *transitions.Graph
	Tools() *registry.Registry
}

// Server wraps the Engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		engine: engine,
		logger: logger,
		mcpServer: server.NewMCPServer("intake-mcp", strings.TrimSpace(intake.Version),
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE. It returns when ctx
// is cancelled and the listener has shut down.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.SSEHandler(baseURL),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

// SSEHandler returns the /sse and /message endpoints of the SSE transport.
func (s *Server) SSEHandler(baseURL string) http.Handler {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))
	return mux
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("start_conversation",
		mcp.WithDescription("Start (or restart) an animal control intake conversation and return the greeting."),
		mcp.WithString("session_id", mcp.Description("Conversation ID (optional, generated when omitted)")),
		mcp.WithOutputSchema[TurnResult](),
	), mcp.NewStructuredToolHandler(s.handleStart))

	s.mcpServer.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Send one caller message to a conversation and return the assistant reply."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation ID")),
		mcp.WithString("input", mcp.Required(), mcp.Description("What the caller said")),
		mcp.WithOutputSchema[TurnResult](),
	), mcp.NewStructuredToolHandler(s.handleSendMessage))

	s.mcpServer.AddTool(mcp.NewTool("reset_conversation",
		mcp.WithDescription("Restart a conversation from the greeting."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation ID")),
		mcp.WithOutputSchema[TurnResult](),
	), mcp.NewStructuredToolHandler(s.handleReset))

	s.mcpServer.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Get the stored snapshot of a conversation: state, collected context and transcript."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation ID")),
	), s.handleGetSession)

	s.mcpServer.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List the stored conversations."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids, err := s.engine.Sessions(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
		}
		if ids == nil {
			ids = []string{}
		}
		jsonBytes, _ := json.Marshal(ids)
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the conversation transition graph as a Mermaid diagram."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(graph.GenerateMermaid(s.engine.Graph(), nil)), nil
	})
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (TurnResult, error) {
	if args.SessionID == "" {
		args.SessionID = uuid.NewString()
	}
	greeting, err := s.engine.Start(ctx, args.SessionID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("start failed: %w", err)
	}
	return s.result(ctx, args.SessionID, greeting), nil
}

func (s *Server) handleSendMessage(ctx context.Context, request mcp.CallToolRequest, args MessageArgs) (TurnResult, error) {
	if args.SessionID == "" {
		return TurnResult{}, fmt.Errorf("session_id is required")
	}
	reply, err := s.engine.Turn(ctx, args.SessionID, args.Input)
	if err != nil {
		s.logger.Warn("MCP send_message failed", "error", err, "session_id", args.SessionID)
		return TurnResult{}, fmt.Errorf("turn failed: %w", err)
	}
	return s.result(ctx, args.SessionID, reply), nil
}

func (s *Server) handleReset(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (TurnResult, error) {
	if args.SessionID == "" {
		return TurnResult{}, fmt.Errorf("session_id is required")
	}
	greeting, err := s.engine.Reset(ctx, args.SessionID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("reset failed: %w", err)
	}
	return s.result(ctx, args.SessionID, greeting), nil
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap, err := s.engine.Inspect(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("inspect failed: %v", err)), nil
	}
	jsonBytes, _ := json.Marshal(snap)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) result(ctx context.Context, sessionID, reply string) TurnResult {
	res := TurnResult{SessionID: sessionID, Response: reply}
	if snap, err := s.engine.Inspect(ctx, sessionID); err == nil {
		res.State = snap.State
		res.Ended = snap.Ended
	}
	return res
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(GraphURI, "Conversation Transition Graph",
		mcp.WithMIMEType("text/vnd.mermaid"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      GraphURI,
				MIMEType: "text/vnd.mermaid",
				Text:     graph.GenerateMermaid(s.engine.Graph(), nil),
			},
		}, nil
	})

	s.mcpServer.AddResource(mcp.NewResource(ToolsURI, "LLM Tool Schemas",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		tools := s.engine.Tools()
		schemas := make([]domain.ToolSchema, 0, len(tools.Names()))
		for _, name := range tools.Names() {
			if schema, ok := tools.Get(name); ok {
				schemas = append(schemas, schema)
			}
		}
		jsonBytes, err := json.Marshal(schemas)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tools: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      ToolsURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
