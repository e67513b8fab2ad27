package session

import (
	"context"
	"sync"
	"time"

	"github.com/w-h-a/grounded/conversation"
)

type Session struct {
	id           string
	conversation *conversation.Conversation
	turn         chan struct{}
	createdAt    time.Time
	lastUsed     time.Time
	mtx          sync.Mutex
}

func (s *Session) Id() string {
	return s.id
}

func (s *Session) Conversation() *conversation.Conversation {
	return s.conversation
}

func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// LastUsed is when the session was last created, fetched or answered on.
func (s *Session) LastUsed() time.Time {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.lastUsed
}

func (s *Session) touch(at time.Time) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if at.After(s.lastUsed) {
		s.lastUsed = at
	}
}

func (s *Session) busy() bool {
	return len(s.turn) > 0
}

// Acquire waits for the session's previous query to finish. The returned
// func releases it.
func (s *Session) Acquire(ctx context.Context) (func(), error) {
	select {
	case s.turn <- struct{}{}:
		return func() { <-s.turn }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
