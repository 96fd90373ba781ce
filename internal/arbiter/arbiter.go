// Package arbiter decides whether a submitted move is accepted and applies it.
package arbiter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rocketscienceinc/gamesession-backend/internal/apperror"
	"github.com/rocketscienceinc/gamesession-backend/internal/entity"
	"github.com/rocketscienceinc/gamesession-backend/internal/store"
	"github.com/rocketscienceinc/gamesession-backend/internal/variant"
)

type sessionStore interface {
	Commit(ctx context.Context, id string, mutate store.Mutator) (*entity.Session, error)
}

type Arbiter struct {
	logger *slog.Logger
	store  sessionStore
	rules  *variant.Registry

	now func() time.Time
}

func New(logger *slog.Logger, sessions sessionStore, rules *variant.Registry) *Arbiter {
	return &Arbiter{
		logger: logger.With("component", "arbiter"),
		store:  sessions,
		rules:  rules,
		now:    time.Now,
	}
}

// SubmitMove validates move against the committed session and, if accepted,
// commits the next version. Checks run in a fixed order and the first failure
// is returned as a rejection carrying the unchanged session.
func (that *Arbiter) SubmitMove(ctx context.Context, move entity.Move) (*entity.Session, error) {
	log := that.logger.With("method", "SubmitMove", "session_id", move.SessionID)

	session, err := that.store.Commit(ctx, move.SessionID, func(session *entity.Session) error {
		return that.apply(session, move)
	})
	if err != nil {
		log.Debug("move rejected", "submitter", move.Submitter, "error", err)
		return nil, fmt.Errorf("failed to submit move: %w", err)
	}

	log.Debug("move accepted", "version", session.Version, "status", session.Status)

	return session, nil
}

func (that *Arbiter) apply(session *entity.Session, move entity.Move) error {
	if err := session.ConfirmActiveState(); err != nil {
		return err
	}

	slot, ok := session.SlotFor(move.Submitter)
	if !ok || slot != session.TurnOwner {
		return apperror.ErrNotYourTurn
	}

	if move.ObservedVersion != session.Version {
		return fmt.Errorf("%w: observed %d, current %d", apperror.ErrConflict, move.ObservedVersion, session.Version)
	}

	rules, err := that.rules.Lookup(session.Variant)
	if err != nil {
		return err
	}

	outcome, err := rules.Apply(session, slot, move.Action)
	if err != nil {
		return err
	}

	if outcome.IsTerminal() {
		session.Finish(outcome)
	} else {
		session.PassTurn()
	}

	session.Version++
	session.LastActivityAt = that.now()

	return nil
}
