package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/grounded/conversation"
)

func TestCreateSession(t *testing.T) {
	svc := New(nil)
	ctx := context.Background()

	a, err := svc.CreateSession(ctx, "abc")
	require.NoError(t, err)
	b, err := svc.CreateSession(ctx, " abc ")
	require.NoError(t, err)

	assert.Same(t, a, b)

	fresh, err := svc.CreateSession(ctx, "")
	require.NoError(t, err)
	assert.Len(t, fresh.Id(), 36)

	assert.ElementsMatch(t, []string{"abc", fresh.Id()}, svc.ListSessionIds(ctx))
}

func TestGetAndDeleteSession(t *testing.T) {
	svc := New(nil, conversation.WithWindowSize(2))
	ctx := context.Background()

	_, err := svc.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	s, err := svc.CreateSession(ctx, "abc")
	require.NoError(t, err)
	s.Conversation().Record(conversation.User, "What is Bitcoin?", time.Now())

	got, err := svc.GetSession(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Conversation().Len())

	assert.True(t, svc.DeleteSession(ctx, "abc"))
	assert.False(t, svc.DeleteSession(ctx, "abc"))

	s, err = svc.CreateSession(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Conversation().Len())
}

func TestExpireIdle(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := New(func() time.Time { return now })
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, "stale")
	require.NoError(t, err)
	_, err = svc.CreateSession(ctx, "busy")
	require.NoError(t, err)
	busy, err := svc.CreateSession(ctx, "busy")
	require.NoError(t, err)

	now = now.Add(20 * time.Minute)
	_, err = svc.CreateSession(ctx, "fresh")
	require.NoError(t, err)

	release, err := busy.Acquire(ctx)
	require.NoError(t, err)

	now = now.Add(15 * time.Minute)

	assert.Equal(t, 0, svc.ExpireIdle(ctx, 0))
	assert.Equal(t, 1, svc.ExpireIdle(ctx, 30*time.Minute))
	assert.Equal(t, []string{"busy", "fresh"}, svc.ListSessionIds(ctx))

	release()
	assert.Equal(t, 1, svc.ExpireIdle(ctx, 30*time.Minute))
	assert.Equal(t, []string{"fresh"}, svc.ListSessionIds(ctx))
}

func TestGetSession_KeepsSessionAlive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := New(func() time.Time { return now })
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, "abc")
	require.NoError(t, err)

	now = now.Add(50 * time.Minute)
	s, err := svc.GetSession(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, now, s.LastUsed())

	now = now.Add(20 * time.Minute)
	assert.Equal(t, 0, svc.ExpireIdle(ctx, time.Hour))
}

func TestAcquire_Serializes(t *testing.T) {
	s, err := New(nil).CreateSession(context.Background(), "abc")
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mtx     sync.Mutex
		active  int
		maxSeen int
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := s.Acquire(context.Background())
			require.NoError(t, err)
			defer release()

			mtx.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mtx.Unlock()

			time.Sleep(time.Millisecond)

			mtx.Lock()
			active--
			mtx.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestAcquire_Cancelled(t *testing.T) {
	s, err := New(nil).CreateSession(context.Background(), "abc")
	require.NoError(t, err)

	release, err := s.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = s.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
