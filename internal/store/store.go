// Package store serializes every state transition of a session. Writers of
// one session queue on that session's lock only; other sessions proceed.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rocketscienceinc/gamesession-backend/internal/apperror"
	"github.com/rocketscienceinc/gamesession-backend/internal/entity"
	"github.com/rocketscienceinc/gamesession-backend/internal/repository"
)

// Mutator edits a private copy of the session. Returning an error discards the copy.
type Mutator func(session *entity.Session) error

// Predicate decides, under the session lock, whether a delete goes ahead.
type Predicate func(session *entity.Session) bool

// Publisher receives committed snapshots in revision order.
type Publisher interface {
	Publish(session *entity.Session)
	Close(id string)
}

type sessionLock struct {
	ch   chan struct{}
	refs int
}

type Store struct {
	logger      *slog.Logger
	repo        repository.SessionRepository
	publisher   Publisher
	lockTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sessionLock
}

func New(logger *slog.Logger, repo repository.SessionRepository, publisher Publisher, lockTimeout time.Duration) *Store {
	return &Store{
		logger:      logger.With("component", "store"),
		repo:        repo,
		publisher:   publisher,
		lockTimeout: lockTimeout,
		locks:       make(map[string]*sessionLock),
	}
}

// Get reads the committed session without taking its lock.
func (that *Store) Get(ctx context.Context, id string) (*entity.Session, error) {
	session, err := that.repo.GetByID(ctx, id)
	if err != nil {
		return nil, classify(err)
	}

	return session, nil
}

func (that *Store) ListIDs(ctx context.Context) ([]string, error) {
	ids, err := that.repo.ListIDs(ctx)
	if err != nil {
		return nil, classify(err)
	}

	return ids, nil
}

// Create stores a brand new session; an existing id is never overwritten.
func (that *Store) Create(ctx context.Context, session *entity.Session) error {
	if err := that.create(ctx, session); err != nil {
		return err
	}

	that.publish(session)

	return nil
}

func (that *Store) create(ctx context.Context, session *entity.Session) error {
	release, err := that.acquire(ctx, session.ID)
	if err != nil {
		return err
	}
	defer release()

	if err = that.repo.Create(ctx, session); err != nil {
		return classify(err)
	}

	return nil
}

// Commit runs mutate against the current session under its lock and persists
// the result as the next revision. A rejected mutation leaves the stored
// record untouched and comes back as a rejection carrying the current state.
// Subscribers are notified after the lock is released.
func (that *Store) Commit(ctx context.Context, id string, mutate Mutator) (*entity.Session, error) {
	next, err := that.commit(ctx, id, mutate)
	if err != nil {
		return nil, err
	}

	that.publish(next)

	return next, nil
}

func (that *Store) commit(ctx context.Context, id string, mutate Mutator) (*entity.Session, error) {
	log := that.logger.With("method", "Commit", "session_id", id)

	release, err := that.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := that.repo.GetByID(ctx, id)
	if err != nil {
		return nil, classify(err)
	}

	next := current.Clone()
	if err = mutate(next); err != nil {
		if _, ok := entity.SnapshotOf(err); ok {
			return nil, err
		}
		return nil, entity.Reject(err, current)
	}

	next.Revision = current.Revision + 1

	if err = that.repo.Save(ctx, next, current.Revision); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			log.Warn("session changed outside this instance", "revision", current.Revision)
		}
		return nil, classify(err)
	}

	log.Debug("session committed", "revision", next.Revision, "version", next.Version)

	return next, nil
}

// Delete removes the session when allow approves its current state. It
// reports whether anything was removed.
func (that *Store) Delete(ctx context.Context, id string, allow Predicate) (bool, error) {
	deleted, err := that.delete(ctx, id, allow)
	if err != nil || !deleted {
		return false, err
	}

	if that.publisher != nil {
		that.publisher.Close(id)
	}

	return true, nil
}

func (that *Store) delete(ctx context.Context, id string, allow Predicate) (bool, error) {
	release, err := that.acquire(ctx, id)
	if err != nil {
		return false, err
	}
	defer release()

	current, err := that.repo.GetByID(ctx, id)
	if errors.Is(err, apperror.ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, classify(err)
	}

	if allow != nil && !allow(current) {
		return false, nil
	}

	err = that.repo.DeleteByID(ctx, id)
	if errors.Is(err, apperror.ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, classify(err)
	}

	return true, nil
}

func (that *Store) publish(session *entity.Session) {
	if that.publisher != nil {
		that.publisher.Publish(session.Clone())
	}
}

// acquire waits up to lockTimeout for the session's lock.
func (that *Store) acquire(ctx context.Context, id string) (func(), error) {
	that.mu.Lock()
	lock, ok := that.locks[id]
	if !ok {
		lock = &sessionLock{ch: make(chan struct{}, 1)}
		that.locks[id] = lock
	}
	lock.refs++
	that.mu.Unlock()

	timer := time.NewTimer(that.lockTimeout)
	defer timer.Stop()

	select {
	case lock.ch <- struct{}{}:
		return func() {
			<-lock.ch
			that.unref(id, lock)
		}, nil
	case <-timer.C:
		that.unref(id, lock)
		return nil, apperror.ErrBusy
	case <-ctx.Done():
		that.unref(id, lock)
		return nil, ctx.Err()
	}
}

func (that *Store) unref(id string, lock *sessionLock) {
	that.mu.Lock()
	defer that.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(that.locks, id)
	}
}

// classify keeps taxonomy errors as they are and marks everything else as a
// transient storage failure.
func classify(err error) error {
	switch {
	case errors.Is(err, apperror.ErrSessionNotFound),
		errors.Is(err, apperror.ErrSessionExists),
		errors.Is(err, apperror.ErrConflict),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", apperror.ErrTransient, err)
	}
}
