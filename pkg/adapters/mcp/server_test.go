package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/aretw0/tendril"
	"github.com/aretw0/tendril/pkg/activity"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/topic"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type city struct {
	Name string `json:"name"`
}

func newServer(t *testing.T) *Server {
	t.Helper()
	cat, err := topic.NewCatalog(topic.Definition{
		Name:        "weather",
		Description: "Weather forecasts",
		Keywords:    []string{"weather"},
		Build: func(topic.Env) ([]activity.Activity, error) {
			card, err := activity.NewCard[city]("city", activity.CardConfig{
				Document: map[string]any{"title": "Which city?"},
			})
			if err != nil {
				return nil, err
			}
			reply, err := activity.NewMessage("reply", "Sunny in {{.city.Name}}.")
			if err != nil {
				return nil, err
			}
			return []activity.Activity{card, reply}, nil
		},
	})
	require.NoError(t, err)
	eng, err := tendril.New(cat)
	require.NoError(t, err)
	return NewServer(eng, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestServer_SendMessage(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	res, err := s.handleSend(ctx, call(map[string]any{"conversation_id": "w", "text": "weather please"}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	var turn domain.Turn
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &turn))
	assert.True(t, turn.Waiting)
	assert.Equal(t, "weather", turn.ActiveTopic)

	res, err = s.handleSend(ctx, call(map[string]any{"conversation_id": "w", "values": `{"name":"Lisbon"}`}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &turn))
	assert.Equal(t, []string{"Sunny in Lisbon."}, turn.Messages())
}

func TestServer_SendCreatesConversation(t *testing.T) {
	s := newServer(t)
	res, err := s.handleSend(context.Background(), call(map[string]any{"text": "weather"}))
	require.NoError(t, err)
	var turn domain.Turn
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &turn))
	assert.NotEmpty(t, turn.ConversationID)
}

func TestServer_SendRejectsBadValues(t *testing.T) {
	s := newServer(t)
	res, err := s.handleSend(context.Background(), call(map[string]any{"conversation_id": "w", "values": "[1,2"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestServer_ResetAndGet(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	_, err := s.handleSend(ctx, call(map[string]any{"conversation_id": "g", "text": "weather"}))
	require.NoError(t, err)

	res, err := s.handleGet(ctx, call(map[string]any{"conversation_id": "g"}))
	require.NoError(t, err)
	var snap domain.ConversationSnapshot
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &snap))
	assert.Equal(t, "weather", snap.ActiveTopic)

	res, err = s.handleReset(ctx, call(map[string]any{"conversation_id": "g"}))
	require.NoError(t, err)
	assert.Equal(t, "conversation g reset", text(t, res))

	res, err = s.handleReset(ctx, call(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleGet(ctx, call(map[string]any{"conversation_id": "unknown"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestServer_ListTopics(t *testing.T) {
	s := newServer(t)
	res, err := s.handleListTopics(context.Background(), call(nil))
	require.NoError(t, err)
	var topics []domain.TopicInfo
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &topics))
	require.Len(t, topics, 1)
	assert.Equal(t, "Weather forecasts", topics[0].Description)
	assert.NotNil(t, s.MCPServer())
}
