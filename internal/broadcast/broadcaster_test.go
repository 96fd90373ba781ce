package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rocketscienceinc/gamesession-backend/internal/apperror"
	"github.com/rocketscienceinc/gamesession-backend/internal/entity"
	"github.com/rocketscienceinc/gamesession-backend/testing/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	sessions map[string]*entity.Session
}

func newFakeSource(sessions ...*entity.Session) *fakeSource {
	source := &fakeSource{sessions: make(map[string]*entity.Session)}
	for _, session := range sessions {
		source.sessions[session.ID] = session
	}
	return source
}

func (that *fakeSource) Get(_ context.Context, id string) (*entity.Session, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	session, ok := that.sessions[id]
	if !ok {
		return nil, apperror.ErrSessionNotFound
	}
	return session.Clone(), nil
}

func sessionAt(revision int64) *entity.Session {
	session := entity.NewSession("ABC123", entity.VariantGrid, "alice", 9, time.Now())
	session.Revision = revision
	session.Version = revision
	return session
}

func nextWithin(t *testing.T, sub *Subscription) *entity.Session {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	session, err := sub.Next(ctx)
	require.NoError(t, err)

	return session
}

func TestBroadcaster_Subscribe(t *testing.T) {
	t.Run("Late subscriber first gets the current snapshot", func(t *testing.T) {
		// Given: a session that is already at revision 5
		feed := New(suite.NewLogger())
		source := newFakeSource(sessionAt(5))

		// When: a viewer subscribes
		sub, err := feed.Subscribe(context.Background(), source, "ABC123")
		require.NoError(t, err)
		defer sub.Close()

		// Then: the first delivery is revision 5
		assert.Equal(t, int64(5), nextWithin(t, sub).Revision)
	})

	t.Run("Unknown session is rejected and not registered", func(t *testing.T) {
		feed := New(suite.NewLogger())

		_, err := feed.Subscribe(context.Background(), newFakeSource(), "NOPE00")

		require.ErrorIs(t, err, apperror.ErrSessionNotFound)
		assert.Zero(t, feed.Subscribers("NOPE00"))
	})

	t.Run("Hidden answers never reach subscribers", func(t *testing.T) {
		session := sessionAt(0)
		session.Rounds = &entity.Rounds{Total: 1, Answers: []string{"cat"}}
		feed := New(suite.NewLogger())

		sub, err := feed.Subscribe(context.Background(), newFakeSource(session), "ABC123")
		require.NoError(t, err)
		defer sub.Close()

		assert.Nil(t, nextWithin(t, sub).Rounds.Answers)

		feed.Publish(session)
		assert.Nil(t, nextWithin(t, sub).Rounds.Answers)
	})
}

func TestBroadcaster_Publish(t *testing.T) {
	t.Run("Deliveries never go back in revision", func(t *testing.T) {
		// Given: a subscriber that has read revision 2
		feed := New(suite.NewLogger())
		sub, err := feed.Subscribe(context.Background(), newFakeSource(sessionAt(2)), "ABC123")
		require.NoError(t, err)
		defer sub.Close()
		require.Equal(t, int64(2), nextWithin(t, sub).Revision)

		// When: an old snapshot arrives after a newer one
		feed.Publish(sessionAt(3))
		feed.Publish(sessionAt(1))

		// Then: only the newer one is delivered
		assert.Equal(t, int64(3), nextWithin(t, sub).Revision)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err = sub.Next(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("Slow subscriber is conflated to the latest snapshot", func(t *testing.T) {
		// Given: a subscriber that is not reading
		feed := New(suite.NewLogger())
		sub, err := feed.Subscribe(context.Background(), newFakeSource(sessionAt(0)), "ABC123")
		require.NoError(t, err)
		defer sub.Close()

		// When: many commits are published without blocking
		for revision := int64(1); revision <= 100; revision++ {
			feed.Publish(sessionAt(revision))
		}

		// Then: the next read is the newest state
		assert.Equal(t, int64(100), nextWithin(t, sub).Revision)
	})

	t.Run("Concurrent viewers each see a non-decreasing sequence ending at the latest", func(t *testing.T) {
		feed := New(suite.NewLogger())
		source := newFakeSource(sessionAt(0))

		const viewers = 8
		const commits = 200

		var wg sync.WaitGroup
		for range viewers {
			sub, err := feed.Subscribe(context.Background(), source, "ABC123")
			require.NoError(t, err)

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sub.Close()

				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				last := int64(-1)
				for {
					session, err := sub.Next(ctx)
					if !assert.NoError(t, err) {
						return
					}
					assert.GreaterOrEqual(t, session.Revision, last)
					last = session.Revision
					if last == commits {
						return
					}
				}
			}()
		}

		for revision := int64(1); revision <= commits; revision++ {
			feed.Publish(sessionAt(revision))
		}

		wg.Wait()
	})
}

func TestBroadcaster_Close(t *testing.T) {
	// Given: a subscriber with an unread snapshot
	feed := New(suite.NewLogger())
	sub, err := feed.Subscribe(context.Background(), newFakeSource(sessionAt(0)), "ABC123")
	require.NoError(t, err)
	feed.Publish(sessionAt(1))

	// When: the session feed is closed
	feed.Close("ABC123")

	// Then: the pending snapshot is still delivered and then the feed ends
	assert.Equal(t, int64(1), nextWithin(t, sub).Revision)

	_, err = sub.Next(context.Background())
	require.ErrorIs(t, err, ErrClosed)

	select {
	case <-sub.Done():
	default:
		t.Fatal("subscription should be done")
	}
	assert.Zero(t, feed.Subscribers("ABC123"))
}

func TestSubscription_Close(t *testing.T) {
	feed := New(suite.NewLogger())
	sub, err := feed.Subscribe(context.Background(), newFakeSource(sessionAt(0)), "ABC123")
	require.NoError(t, err)
	require.Equal(t, 1, feed.Subscribers("ABC123"))

	sub.Close()
	sub.Close()

	assert.Zero(t, feed.Subscribers("ABC123"))
}
