package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rocketscienceinc/gamesession-backend/internal/apperror"
	"github.com/rocketscienceinc/gamesession-backend/internal/entity"
	"github.com/rocketscienceinc/gamesession-backend/internal/store"
	"github.com/rocketscienceinc/gamesession-backend/internal/variant"
)

type sessionStore interface {
	Get(ctx context.Context, id string) (*entity.Session, error)
	ListIDs(ctx context.Context) ([]string, error)
	Create(ctx context.Context, session *entity.Session) error
	Commit(ctx context.Context, id string, mutate store.Mutator) (*entity.Session, error)
	Delete(ctx context.Context, id string, allow store.Predicate) (bool, error)
}

type Config struct {
	IdleTimeout       time.Duration
	FinishedRetention time.Duration
	CodeLength        int
	CodeAttempts      int
}

type Manager struct {
	logger *slog.Logger
	store  sessionStore
	rules  *variant.Registry
	conf   Config

	codes CodeGenerator
	now   func() time.Time
}

func New(logger *slog.Logger, sessions sessionStore, rules *variant.Registry, conf Config) *Manager {
	return &Manager{
		logger: logger.With("component", "lifecycle"),
		store:  sessions,
		rules:  rules,
		conf:   conf,
		codes:  RandomCode(conf.CodeLength),
		now:    time.Now,
	}
}

// Create opens a waiting session with identity in the first slot. Codes that
// are already taken are retried, never overwritten.
func (that *Manager) Create(ctx context.Context, identity string, kind entity.Variant, options entity.Options) (*entity.Session, error) {
	log := that.logger.With("method", "Create")

	if identity == "" {
		return nil, fmt.Errorf("%w: identity is required", apperror.ErrInvalidOptions)
	}

	rules, err := that.rules.Lookup(kind)
	if err != nil {
		return nil, err
	}

	session := entity.NewSession("", kind, identity, 0, that.now())
	if err = rules.Setup(session, options); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= that.conf.CodeAttempts; attempt++ {
		session.ID, err = that.codes()
		if err != nil {
			return nil, fmt.Errorf("failed to generate session code: %w", err)
		}

		err = that.store.Create(ctx, session)
		if errors.Is(err, apperror.ErrSessionExists) {
			log.Debug("session code collision", "code", session.ID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}

		log.Info("session created", "session_id", session.ID, "variant", kind)

		return session, nil
	}

	return nil, fmt.Errorf("%w after %d attempts", apperror.ErrCodesExhausted, that.conf.CodeAttempts)
}

// Join seats identity in the second slot and starts the game. An identity that
// is already seated gets ErrAlreadyJoined together with the current session.
func (that *Manager) Join(ctx context.Context, id, identity string) (*entity.Session, error) {
	if identity == "" {
		return nil, fmt.Errorf("%w: identity is required", apperror.ErrInvalidOptions)
	}

	session, err := that.store.Commit(ctx, id, func(session *entity.Session) error {
		return session.Seat(identity, that.now())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to join session: %w", err)
	}

	that.logger.Info("participant joined", "session_id", id, "status", session.Status)

	return session, nil
}

// Resume hands a seated participant the current session, e.g. after a reconnect.
func (that *Manager) Resume(ctx context.Context, id, identity string) (*entity.Session, error) {
	session, err := that.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to resume session: %w", err)
	}

	if _, ok := session.SlotFor(identity); !ok {
		return nil, apperror.ErrNotParticipant
	}

	return session, nil
}

// Close removes a session on behalf of one of its participants.
func (that *Manager) Close(ctx context.Context, id, identity string) error {
	var found, seated bool

	_, err := that.store.Delete(ctx, id, func(session *entity.Session) bool {
		found = true
		_, seated = session.SlotFor(identity)
		return seated
	})
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	switch {
	case !found:
		return apperror.ErrSessionNotFound
	case !seated:
		return apperror.ErrNotParticipant
	}

	that.logger.Info("session closed", "session_id", id)

	return nil
}

// EvictIdle removes sessions that saw no activity within the idle timeout and
// finished sessions past their retention. Sessions whose lock is held are left
// for the next sweep. It returns how many sessions were removed.
func (that *Manager) EvictIdle(ctx context.Context, now time.Time) (int, error) {
	log := that.logger.With("method", "EvictIdle")

	ids, err := that.store.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	evicted := 0
	for _, id := range ids {
		deleted, err := that.store.Delete(ctx, id, func(session *entity.Session) bool {
			return that.expired(session, now)
		})
		switch {
		case errors.Is(err, apperror.ErrBusy):
			log.Debug("session busy, skipping", "session_id", id)
			continue
		case err != nil:
			if ctx.Err() != nil {
				return evicted, ctx.Err()
			}
			log.Warn("failed to evict session", "session_id", id, "error", err)
			continue
		}

		if deleted {
			evicted++
			log.Info("session evicted", "session_id", id)
		}
	}

	return evicted, nil
}

func (that *Manager) expired(session *entity.Session, now time.Time) bool {
	if session.IsFinished() {
		return session.IsIdle(now.Add(-that.conf.FinishedRetention))
	}
	return session.IsIdle(now.Add(-that.conf.IdleTimeout))
}

// Run sweeps idle sessions every half idle timeout until ctx is done.
func (that *Manager) Run(ctx context.Context) error {
	log := that.logger.With("method", "Run")

	interval := that.conf.IdleTimeout / 2
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("session sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := that.EvictIdle(ctx, that.now()); err != nil && ctx.Err() == nil {
				log.Error("sweep failed", "error", err)
			}
		}
	}
}
