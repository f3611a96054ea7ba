package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/tendril"
	tendrilhttp "github.com/aretw0/tendril/pkg/adapters/http"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const topicsURI = "tendril://topics"

// Engine is the part of tendril.Engine the MCP tools drive.
type Engine interface {
	Send(ctx context.Context, conversationID string, input any) (*domain.Turn, error)
	Reset(ctx context.Context, conversationID string) error
	Snapshot(ctx context.Context, conversationID string) (*domain.ConversationSnapshot, error)
	Topics() []domain.TopicInfo
}

var _ Engine = (*tendril.Engine)(nil)

// Server exposes an Engine as an MCP server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine: engine,
		logger: logger,
		mcpServer: server.NewMCPServer("tendril-mcp", strings.TrimSpace(tendril.Version),
			server.WithToolCapabilities(true),
			server.WithResourceCapabilities(false, false),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on port until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
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
	s.mcpServer.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Send user input to a conversation and get the assistant's replies. A new conversation is created when conversation_id is omitted."),
		mcp.WithString("conversation_id", mcp.Description("Conversation to continue (optional)")),
		mcp.WithString("text", mcp.Description("Free text typed by the user")),
		mcp.WithString("values", mcp.Description("JSON object answering the waiting card (optional)")),
	), s.handleSend)

	s.mcpServer.AddTool(mcp.NewTool("reset_conversation",
		mcp.WithDescription("Reset a conversation, dropping its topics, call frames and globals."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation to reset")),
	), s.handleReset)

	s.mcpServer.AddTool(mcp.NewTool("get_conversation",
		mcp.WithDescription("Get the current snapshot of a conversation."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation to inspect")),
	), s.handleGet)

	s.mcpServer.AddTool(mcp.NewTool("list_topics",
		mcp.WithDescription("List the topics the assistant can handle."),
	), s.handleListTopics)
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(topicsURI, "Topic catalog",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(s.engine.Topics())
		if err != nil {
			return nil, fmt.Errorf("failed to encode topics: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      topicsURI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	})
}

func getArgs(request mcp.CallToolRequest) map[string]any {
	if args, ok := request.Params.Arguments.(map[string]any); ok {
		return args
	}
	return make(map[string]any)
}

func (s *Server) handleSend(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	id, _ := args["conversation_id"].(string)
	if id == "" {
		id = uuid.NewString()
	}

	var input any
	if raw, _ := args["values"].(string); raw != "" {
		var values map[string]any
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("values must be a JSON object: %v", err)), nil
		}
		input = values
	} else {
		text, _ := args["text"].(string)
		clean, err := tendrilhttp.SanitizeInput(text, tendrilhttp.DefaultMaxInputSize)
		if err != nil {
			s.logger.Warn("MCP send: input rejected", "err", err, "size", len(text))
			return mcp.NewToolResultError(fmt.Sprintf("input rejected: %v", err)), nil
		}
		input = clean
	}

	turn, err := s.engine.Send(ctx, id, input)
	if err != nil {
		s.logger.Error("MCP send failed", "conversation", id, "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("send failed: %v", err)), nil
	}
	return jsonResult(turn)
}

func (s *Server) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _ := getArgs(request)["conversation_id"].(string)
	if id == "" {
		return mcp.NewToolResultError("Missing required parameter: conversation_id"), nil
	}
	if err := s.engine.Reset(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reset failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("conversation %s reset", id)), nil
}

func (s *Server) handleGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _ := getArgs(request)["conversation_id"].(string)
	if id == "" {
		return mcp.NewToolResultError("Missing required parameter: conversation_id"), nil
	}
	snap, err := s.engine.Snapshot(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get failed: %v", err)), nil
	}
	return jsonResult(snap)
}

func (s *Server) handleListTopics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.engine.Topics())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
