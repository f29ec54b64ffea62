package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aretw0/intake"
	"github.com/aretw0/intake/internal/testutils"
	"github.com/aretw0/intake/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, llm *testutils.ScriptedLLM) *Server {
	t.Helper()
	engine, err := intake.New(llm)
	require.NoError(t, err)
	return NewServer(engine, nil)
}

func TestConversationTools(t *testing.T) {
	s := newServer(t, testutils.NewScriptedLLM(testutils.Reply("What kind of animal did you find?")))
	ctx := context.Background()

	start, err := s.handleStart(ctx, mcp.CallToolRequest{}, SessionArgs{SessionID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateGreeting, start.State)
	assert.Contains(t, start.Response, "How can I help you today?")

	turn, err := s.handleSendMessage(ctx, mcp.CallToolRequest{}, MessageArgs{SessionID: "m1", Input: "2"})
	require.NoError(t, err)
	assert.Equal(t, "What kind of animal did you find?", turn.Response)
	assert.Equal(t, domain.StateReportFound, turn.State)
	assert.False(t, turn.Ended)

	reset, err := s.handleReset(ctx, mcp.CallToolRequest{}, SessionArgs{SessionID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StateGreeting, reset.State)

	_, err = s.handleSendMessage(ctx, mcp.CallToolRequest{}, MessageArgs{SessionID: "ghost", Input: "hi"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = s.handleSendMessage(ctx, mcp.CallToolRequest{}, MessageArgs{Input: "hi"})
	assert.Error(t, err)
}

func TestStart_GeneratesSessionID(t *testing.T) {
	s := newServer(t, testutils.NewScriptedLLM())

	res, err := s.handleStart(context.Background(), mcp.CallToolRequest{}, SessionArgs{})
	require.NoError(t, err)
	assert.Len(t, res.SessionID, 36)
}

func TestGetSession(t *testing.T) {
	s := newServer(t, testutils.NewScriptedLLM())
	ctx := context.Background()
	_, err := s.handleStart(ctx, mcp.CallToolRequest{}, SessionArgs{SessionID: "m2"})
	require.NoError(t, err)

	req := mcp.CallToolRequest{}
	req.Params.Name = "get_session"
	req.Params.Arguments = map[string]any{"session_id": "m2"}
	res, err := s.handleGetSession(ctx, req)
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Len(t, res.Content, 1)

	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal([]byte(text.Text), &snap))
	assert.Equal(t, "m2", snap.SessionID)
	assert.Equal(t, domain.StateGreeting, snap.State)

	req.Params.Arguments = map[string]any{}
	res, err = s.handleGetSession(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestSSEHandler_CORSPreflight(t *testing.T) {
	s := newServer(t, testutils.NewScriptedLLM())
	h := s.SSEHandler("http://localhost:8080")

	for _, path := range []string{"/sse", "/message"} {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"), path)
	}
}
