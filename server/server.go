package server

import (
	"context"

	"github.com/w-h-a/grounded/answer"
	"github.com/w-h-a/grounded/cache"
	"github.com/w-h-a/grounded/conversation"
	"github.com/w-h-a/grounded/ratelimit"
)

type Server interface {
	Start() error
	Stop(ctx context.Context) error
}

// Service is what a transport exposes. *grounded.Grounded satisfies it.
type Service interface {
	Answer(ctx context.Context, query string, sessionId string) (answer.Response, error)
	History(ctx context.Context, sessionId string) ([]conversation.Turn, error)
	DeleteSession(ctx context.Context, sessionId string) bool
	Usage(ctx context.Context) (ratelimit.Usage, error)
	CacheStats(ctx context.Context) (cache.Stats, error)
}
