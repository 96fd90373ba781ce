package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rocketscienceinc/gamesession-backend/internal/apperror"
	"github.com/rocketscienceinc/gamesession-backend/internal/entity"
	"github.com/rocketscienceinc/gamesession-backend/internal/repository"
	"github.com/rocketscienceinc/gamesession-backend/testing/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu        sync.Mutex
	published []*entity.Session
	closed    []string
}

func (that *recordingPublisher) Publish(session *entity.Session) {
	that.mu.Lock()
	defer that.mu.Unlock()
	that.published = append(that.published, session)
}

func (that *recordingPublisher) Close(id string) {
	that.mu.Lock()
	defer that.mu.Unlock()
	that.closed = append(that.closed, id)
}

// stallingPublisher parks Publish for the given revision until released.
type stallingPublisher struct {
	revision int64
	entered  chan struct{}
	release  chan struct{}
}

func (that *stallingPublisher) Publish(session *entity.Session) {
	if session.Revision != that.revision {
		return
	}
	close(that.entered)
	<-that.release
}

func (that *stallingPublisher) Close(string) {}

type mockRepository struct {
	mock.Mock
}

func (that *mockRepository) Create(ctx context.Context, session *entity.Session) error {
	return that.Called(ctx, session).Error(0)
}

func (that *mockRepository) GetByID(ctx context.Context, id string) (*entity.Session, error) {
	args := that.Called(ctx, id)
	session, _ := args.Get(0).(*entity.Session)
	return session, args.Error(1)
}

func (that *mockRepository) Save(ctx context.Context, session *entity.Session, expectedRevision int64) error {
	return that.Called(ctx, session, expectedRevision).Error(0)
}

func (that *mockRepository) DeleteByID(ctx context.Context, id string) error {
	return that.Called(ctx, id).Error(0)
}

func (that *mockRepository) ListIDs(ctx context.Context) ([]string, error) {
	args := that.Called(ctx)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func newStore(t *testing.T, lockTimeout time.Duration) (*Store, *recordingPublisher) {
	t.Helper()

	publisher := &recordingPublisher{}
	st := New(suite.NewLogger(), repository.NewMemorySessionRepository(), publisher, lockTimeout)

	require.NoError(t, st.Create(context.Background(), entity.NewSession("ABC123", entity.VariantGrid, "alice", 9, time.Now())))

	return st, publisher
}

func bumpVersion(session *entity.Session) error {
	session.Version++
	return nil
}

func TestStore_Commit(t *testing.T) {
	ctx := context.Background()

	t.Run("Commit persists the next revision and publishes it", func(t *testing.T) {
		// Given: a stored session
		st, publisher := newStore(t, time.Second)

		// When: a mutation is committed
		committed, err := st.Commit(ctx, "ABC123", bumpVersion)

		// Then: revision and version advance and subscribers see it
		require.NoError(t, err)
		assert.Equal(t, int64(1), committed.Revision)
		assert.Equal(t, int64(1), committed.Version)

		stored, err := st.Get(ctx, "ABC123")
		require.NoError(t, err)
		assert.Equal(t, committed.Revision, stored.Revision)
		assert.Equal(t, committed.Version, stored.Version)

		require.Len(t, publisher.published, 2)
		assert.Equal(t, int64(1), publisher.published[1].Revision)
	})

	t.Run("Rejected mutation leaves the record unchanged", func(t *testing.T) {
		// Given: a stored session
		st, publisher := newStore(t, time.Second)

		// When: the mutator edits its copy and then fails
		_, err := st.Commit(ctx, "ABC123", func(session *entity.Session) error {
			session.Board[0] = entity.MarkX
			session.Version = 42
			return apperror.ErrInvalidMove
		})

		// Then: the error carries the untouched current state
		require.ErrorIs(t, err, apperror.ErrInvalidMove)
		snapshot, ok := entity.SnapshotOf(err)
		require.True(t, ok)
		assert.Zero(t, snapshot.Version)
		assert.Equal(t, entity.EmptyCell, snapshot.Board[0])

		stored, err := st.Get(ctx, "ABC123")
		require.NoError(t, err)
		assert.Zero(t, stored.Revision)
		assert.Equal(t, entity.EmptyCell, stored.Board[0])
		assert.Len(t, publisher.published, 1)
	})

	t.Run("Missing session is reported", func(t *testing.T) {
		st, _ := newStore(t, time.Second)

		_, err := st.Commit(ctx, "NOPE00", bumpVersion)

		assert.ErrorIs(t, err, apperror.ErrSessionNotFound)
	})

	t.Run("Concurrent commits are serialized without gaps", func(t *testing.T) {
		// Given: a stored session
		st, _ := newStore(t, 5*time.Second)

		// When: fifty writers commit at once
		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := st.Commit(ctx, "ABC123", bumpVersion)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		// Then: every increment landed exactly once
		stored, err := st.Get(ctx, "ABC123")
		require.NoError(t, err)
		assert.Equal(t, int64(50), stored.Version)
		assert.Equal(t, int64(50), stored.Revision)

		// And: no lock entries are left behind
		st.mu.Lock()
		assert.Empty(t, st.locks)
		st.mu.Unlock()
	})

	t.Run("Lock held past the timeout gives ErrBusy", func(t *testing.T) {
		// Given: a writer parked inside the session lock
		st, _ := newStore(t, 50*time.Millisecond)
		require.NoError(t, st.Create(ctx, entity.NewSession("OTHER1", entity.VariantGrid, "carol", 9, time.Now())))

		entered := make(chan struct{})
		unblock := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = st.Commit(ctx, "ABC123", func(session *entity.Session) error {
				close(entered)
				<-unblock
				return bumpVersion(session)
			})
		}()
		<-entered

		// When: a second writer tries the same session
		_, err := st.Commit(ctx, "ABC123", bumpVersion)

		// Then: it gives up with ErrBusy while other sessions still commit
		require.ErrorIs(t, err, apperror.ErrBusy)

		_, err = st.Commit(ctx, "OTHER1", bumpVersion)
		require.NoError(t, err)

		close(unblock)
		<-done
	})

	t.Run("Slow subscribers do not hold the session lock", func(t *testing.T) {
		// Given: a publisher that stalls on the first committed revision
		publisher := &stallingPublisher{revision: 1, entered: make(chan struct{}), release: make(chan struct{})}
		st := New(suite.NewLogger(), repository.NewMemorySessionRepository(), publisher, 200*time.Millisecond)
		require.NoError(t, st.Create(ctx, entity.NewSession("ABC123", entity.VariantGrid, "alice", 9, time.Now())))

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, err := st.Commit(ctx, "ABC123", bumpVersion)
			assert.NoError(t, err)
		}()
		<-publisher.entered

		// When: another commit arrives while the first is still publishing
		committed, err := st.Commit(ctx, "ABC123", bumpVersion)

		// Then: it goes through instead of reporting busy
		require.NoError(t, err)
		assert.Equal(t, int64(2), committed.Revision)

		close(publisher.release)
		<-done
	})

	t.Run("Storage failures are transient", func(t *testing.T) {
		// Given: a repository that cannot be reached
		repo := &mockRepository{}
		repo.On("GetByID", mock.Anything, "ABC123").Return(nil, errors.New("connection refused"))
		st := New(suite.NewLogger(), repo, nil, time.Second)

		// When: a commit is attempted
		_, err := st.Commit(ctx, "ABC123", bumpVersion)

		// Then: the failure is marked transient
		require.ErrorIs(t, err, apperror.ErrTransient)
		repo.AssertExpectations(t)
	})

	t.Run("Save failure is transient and nothing is published", func(t *testing.T) {
		repo := &mockRepository{}
		repo.On("GetByID", mock.Anything, "ABC123").
			Return(entity.NewSession("ABC123", entity.VariantGrid, "alice", 9, time.Now()), nil)
		repo.On("Save", mock.Anything, mock.Anything, int64(0)).Return(errors.New("disk full"))
		publisher := &recordingPublisher{}
		st := New(suite.NewLogger(), repo, publisher, time.Second)

		_, err := st.Commit(ctx, "ABC123", bumpVersion)

		require.ErrorIs(t, err, apperror.ErrTransient)
		assert.Empty(t, publisher.published)
		repo.AssertExpectations(t)
	})
}

func TestStore_Create(t *testing.T) {
	// Given: a stored session
	st, _ := newStore(t, time.Second)

	// When: the same id is created again
	err := st.Create(context.Background(), entity.NewSession("ABC123", entity.VariantGrid, "mallory", 9, time.Now()))

	// Then: the original is kept
	require.ErrorIs(t, err, apperror.ErrSessionExists)

	stored, err := st.Get(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Participants[entity.SlotFirst])
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("Predicate refusal keeps the session", func(t *testing.T) {
		st, publisher := newStore(t, time.Second)

		deleted, err := st.Delete(ctx, "ABC123", func(*entity.Session) bool { return false })

		require.NoError(t, err)
		assert.False(t, deleted)
		assert.Empty(t, publisher.closed)
	})

	t.Run("Approved delete removes the session and closes its feed", func(t *testing.T) {
		st, publisher := newStore(t, time.Second)

		deleted, err := st.Delete(ctx, "ABC123", func(session *entity.Session) bool { return session.IsWaiting() })

		require.NoError(t, err)
		assert.True(t, deleted)
		assert.Equal(t, []string{"ABC123"}, publisher.closed)

		_, err = st.Get(ctx, "ABC123")
		assert.ErrorIs(t, err, apperror.ErrSessionNotFound)
	})

	t.Run("Deleting a missing session is a no-op", func(t *testing.T) {
		st, _ := newStore(t, time.Second)

		deleted, err := st.Delete(ctx, "NOPE00", nil)

		require.NoError(t, err)
		assert.False(t, deleted)
	})
}
