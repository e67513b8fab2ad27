package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/w-h-a/grounded/server"
)

const (
	name    = "grounded"
	version = "0.1.0"
)

type mcpServer struct {
	options server.Options
	mcp     *mcpserver.MCPServer
	in      io.Reader
	out     io.Writer
	cancel  context.CancelFunc
	mtx     sync.Mutex
}

func (s *mcpServer) Start() error {
	ctx, cancel := context.WithCancel(s.options.Context)

	s.mtx.Lock()
	s.cancel = cancel
	s.mtx.Unlock()

	defer cancel()

	slog.InfoContext(ctx, "mcp server listening on stdio")

	err := mcpserver.NewStdioServer(s.mcp).Listen(ctx, s.in, s.out)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}

func (s *mcpServer) Stop(ctx context.Context) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	return nil
}

func (s *mcpServer) registerTools() {
	s.mcp.AddTool(
		mcpgo.NewTool("answer",
			mcpgo.WithDescription("Answer a cryptocurrency question using only verified knowledge-base passages and live market data. Returns the answer text, citations, confidence and decision (ANSWER, CAVEAT or REFUSE)."),
			mcpgo.WithString("query", mcpgo.Required(), mcpgo.Description("The user's question")),
			mcpgo.WithString("session_id", mcpgo.Description("Conversation to continue; omit to start a new one")),
		),
		s.handleAnswer,
	)

	s.mcp.AddTool(
		mcpgo.NewTool("history",
			mcpgo.WithDescription("List the remembered turns of a conversation"),
			mcpgo.WithString("session_id", mcpgo.Required(), mcpgo.Description("Conversation identifier")),
		),
		s.handleHistory,
	)

	s.mcp.AddTool(
		mcpgo.NewTool("usage",
			mcpgo.WithDescription("Report the market-data request budget and cache statistics"),
		),
		s.handleUsage,
	)
}

func (s *mcpServer) handleAnswer(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return mcpgo.NewToolResultError("invalid arguments format, expected object"), nil
	}

	query, _ := args["query"].(string)
	if len(strings.TrimSpace(query)) == 0 {
		return mcpgo.NewToolResultError("query is required"), nil
	}

	sessionId, _ := args["session_id"].(string)

	rsp, err := s.options.Service.Answer(ctx, query, sessionId)
	if err != nil {
		slog.ErrorContext(ctx, "answer tool failed", "error", err)
		return mcpgo.NewToolResultError(fmt.Sprintf("failed to answer: %v", err)), nil
	}

	return jsonResult(rsp)
}

func (s *mcpServer) handleHistory(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return mcpgo.NewToolResultError("invalid arguments format, expected object"), nil
	}

	sessionId, _ := args["session_id"].(string)
	if len(strings.TrimSpace(sessionId)) == 0 {
		return mcpgo.NewToolResultError("session_id is required"), nil
	}

	turns, err := s.options.Service.History(ctx, sessionId)
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	return jsonResult(turns)
}

func (s *mcpServer) handleUsage(ctx context.Context, request mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	usage, err := s.options.Service.Usage(ctx)
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	stats, err := s.options.Service.CacheStats(ctx)
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	return jsonResult(map[string]any{"usage": usage, "cache": stats})
}

func jsonResult(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

func NewServer(opts ...server.Option) server.Server {
	options := server.NewOptions(opts...)

	if options.Service == nil {
		detail := "mcp server requires a service"
		slog.ErrorContext(context.Background(), detail)
		panic(detail)
	}

	s := &mcpServer{
		options: options,
		mcp:     mcpserver.NewMCPServer(name, version, mcpserver.WithToolCapabilities(true)),
		in:      os.Stdin,
		out:     os.Stdout,
		mtx:     sync.Mutex{},
	}

	if in, out, ok := StreamsFrom(options.Context); ok {
		s.in = in
		s.out = out
	}

	s.registerTools()

	return s
}
