package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/grounded/answer"
	"github.com/w-h-a/grounded/cache"
	"github.com/w-h-a/grounded/conversation"
	"github.com/w-h-a/grounded/errs"
	"github.com/w-h-a/grounded/ratelimit"
	"github.com/w-h-a/grounded/server"
)

type stubService struct {
	sessionIds []string
	err        error
}

func (s *stubService) Answer(ctx context.Context, query string, sessionId string) (answer.Response, error) {
	if s.err != nil {
		return answer.Response{}, s.err
	}
	s.sessionIds = append(s.sessionIds, sessionId)
	return answer.Response{
		Text:       "I can't give financial or investment advice or predict prices.",
		Decision:   answer.Refuse,
		Reasons:    []string{"investment_advice"},
		SessionId:  "generated",
		Query:      query,
		Class:      "OUT_OF_SCOPE",
		Confidence: 0,
	}, nil
}

func (s *stubService) History(ctx context.Context, sessionId string) ([]conversation.Turn, error) {
	if sessionId != "known" {
		return nil, errs.ErrSessionNotFound
	}
	return []conversation.Turn{{Role: conversation.User, Text: "Should I buy ETH?"}}, nil
}

func (s *stubService) DeleteSession(ctx context.Context, sessionId string) bool {
	return false
}

func (s *stubService) Usage(ctx context.Context) (ratelimit.Usage, error) {
	return ratelimit.Usage{SourceId: "freecryptoapi", Limit: 10, Used: 1}, nil
}

func (s *stubService) CacheStats(ctx context.Context) (cache.Stats, error) {
	return cache.Stats{Entries: 1}, nil
}

func newTestServer(t *testing.T, svc server.Service) *mcpServer {
	t.Helper()
	return NewServer(server.WithService(svc)).(*mcpServer)
}

func call(args any) mcpgo.CallToolRequest {
	req := mcpgo.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcpgo.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcpgo.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestHandleAnswer(t *testing.T) {
	svc := &stubService{}
	s := newTestServer(t, svc)

	res, err := s.handleAnswer(context.Background(), call(map[string]any{"query": "Should I buy ETH?"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var rsp answer.Response
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &rsp))
	assert.Equal(t, answer.Refuse, rsp.Decision)
	assert.Equal(t, []string{"investment_advice"}, rsp.Reasons)
	assert.Equal(t, []string{""}, svc.sessionIds)
}

func TestHandleAnswer_Invalid(t *testing.T) {
	s := newTestServer(t, &stubService{})

	res, err := s.handleAnswer(context.Background(), call("not an object"))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleAnswer(context.Background(), call(map[string]any{"query": "   "}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "query is required")
}

func TestHandleAnswer_ServiceError(t *testing.T) {
	s := newTestServer(t, &stubService{err: errors.New("boom")})

	res, err := s.handleAnswer(context.Background(), call(map[string]any{"query": "What is Bitcoin?"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "boom")
}

func TestHandleHistory(t *testing.T) {
	s := newTestServer(t, &stubService{})

	res, err := s.handleHistory(context.Background(), call(map[string]any{"session_id": "known"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var turns []conversation.Turn
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &turns))
	require.Len(t, turns, 1)
	assert.Equal(t, conversation.User, turns[0].Role)

	res, err = s.handleHistory(context.Background(), call(map[string]any{"session_id": "missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleUsage(t *testing.T) {
	s := newTestServer(t, &stubService{})

	res, err := s.handleUsage(context.Background(), call(map[string]any{}))
	require.NoError(t, err)

	var body struct {
		Usage ratelimit.Usage `json:"usage"`
		Cache cache.Stats     `json:"cache"`
	}
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &body))
	assert.Equal(t, 1, body.Usage.Used)
	assert.Equal(t, 1, body.Cache.Entries)
}

func TestStopBeforeStart(t *testing.T) {
	s := NewServer(server.WithService(&stubService{}))
	assert.NoError(t, s.Stop(context.Background()))
}

func TestStart_ReturnsAtEndOfInput(t *testing.T) {
	var out strings.Builder

	s := NewServer(
		server.WithService(&stubService{}),
		WithStreams(strings.NewReader(""), &out),
	)

	assert.NoError(t, s.Start())
	assert.NoError(t, s.Stop(context.Background()))
}
