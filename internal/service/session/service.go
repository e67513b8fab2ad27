package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/w-h-a/grounded/conversation"
	"github.com/w-h-a/grounded/errs"
)

var ErrSessionNotFound = errs.ErrSessionNotFound

type Service struct {
	opts     []conversation.Option
	clock    func() time.Time
	sessions map[string]*Session
	mtx      sync.RWMutex
}

// CreateSession returns the session with id, creating it if needed. An
// empty id gets a fresh uuid.
func (s *Service) CreateSession(ctx context.Context, id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if len(id) == 0 {
		id = uuid.NewString()
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	now := s.clock()

	if session, ok := s.sessions[id]; ok {
		session.touch(now)
		return session, nil
	}

	session := &Session{
		id:           id,
		conversation: conversation.New(s.opts...),
		turn:         make(chan struct{}, 1),
		createdAt:    now,
		lastUsed:     now,
	}

	s.sessions[id] = session

	return session, nil
}

func (s *Service) ListSessionIds(ctx context.Context) []string {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Service) GetSession(ctx context.Context, id string) (*Session, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	session.touch(s.clock())
	return session, nil
}

// DeleteSession ends a session and drops its history.
func (s *Service) DeleteSession(ctx context.Context, id string) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// ExpireIdle drops sessions unused for longer than idle and returns how
// many it dropped. Sessions with a query in flight are kept.
func (s *Service) ExpireIdle(ctx context.Context, idle time.Duration) int {
	if idle <= 0 {
		return 0
	}

	cutoff := s.clock().Add(-idle)

	s.mtx.Lock()
	defer s.mtx.Unlock()

	n := 0
	for id, session := range s.sessions {
		if session.busy() || session.LastUsed().After(cutoff) {
			continue
		}
		delete(s.sessions, id)
		n++
	}

	return n
}

func New(clock func() time.Time, opts ...conversation.Option) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		opts:     opts,
		clock:    clock,
		sessions: map[string]*Session{},
		mtx:      sync.RWMutex{},
	}
}
