package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rocketscienceinc/gamesession-backend/internal/apperror"
	"github.com/rocketscienceinc/gamesession-backend/internal/broadcast"
	"github.com/rocketscienceinc/gamesession-backend/internal/entity"
	"github.com/rocketscienceinc/gamesession-backend/internal/telemetry"
)

// SessionUseCase is what the transports see. Every session it returns, and
// every snapshot attached to its errors, has hidden answers removed.
type SessionUseCase interface {
	Create(ctx context.Context, identity string, kind entity.Variant, options entity.Options) (*entity.Session, error)
	Join(ctx context.Context, id, identity string) (*entity.Session, error)
	Resume(ctx context.Context, id, identity string) (*entity.Session, error)
	Close(ctx context.Context, id, identity string) error

	SubmitMove(ctx context.Context, move entity.Move) (*entity.Session, error)

	Get(ctx context.Context, id string) (*entity.Session, error)
	Subscribe(ctx context.Context, id string) (*broadcast.Subscription, error)
}

type lifecycleManager interface {
	Create(ctx context.Context, identity string, kind entity.Variant, options entity.Options) (*entity.Session, error)
	Join(ctx context.Context, id, identity string) (*entity.Session, error)
	Resume(ctx context.Context, id, identity string) (*entity.Session, error)
	Close(ctx context.Context, id, identity string) error
}

type moveArbiter interface {
	SubmitMove(ctx context.Context, move entity.Move) (*entity.Session, error)
}

type sessionFeed interface {
	Subscribe(ctx context.Context, source broadcast.Source, id string) (*broadcast.Subscription, error)
}

type sessionUseCase struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *telemetry.Metrics

	lifecycle lifecycleManager
	arbiter   moveArbiter
	sessions  broadcast.Source
	feed      sessionFeed
}

func NewSessionUseCase(
	logger *slog.Logger,
	metrics *telemetry.Metrics,
	lifecycle lifecycleManager,
	arbiter moveArbiter,
	sessions broadcast.Source,
	feed sessionFeed,
) SessionUseCase {
	return &sessionUseCase{
		logger:    logger.With("component", "usecase"),
		tracer:    telemetry.Tracer(),
		metrics:   metrics,
		lifecycle: lifecycle,
		arbiter:   arbiter,
		sessions:  sessions,
		feed:      feed,
	}
}

func (that *sessionUseCase) Create(ctx context.Context, identity string, kind entity.Variant, options entity.Options) (*entity.Session, error) {
	ctx, done := that.begin(ctx, "create", attribute.String("session.variant", string(kind)))

	session, err := that.lifecycle.Create(ctx, identity, kind, options)
	done(err)
	if err != nil {
		return nil, err
	}

	that.metrics.SessionCreated(string(kind))

	return session.Masked(), nil
}

func (that *sessionUseCase) Join(ctx context.Context, id, identity string) (*entity.Session, error) {
	ctx, done := that.begin(ctx, "join", attribute.String("session.id", id))

	session, err := that.lifecycle.Join(ctx, id, identity)
	done(err)
	if err != nil {
		return nil, masked(err)
	}

	return session.Masked(), nil
}

func (that *sessionUseCase) Resume(ctx context.Context, id, identity string) (*entity.Session, error) {
	ctx, done := that.begin(ctx, "resume", attribute.String("session.id", id))

	session, err := that.lifecycle.Resume(ctx, id, identity)
	done(err)
	if err != nil {
		return nil, err
	}

	return session.Masked(), nil
}

func (that *sessionUseCase) Close(ctx context.Context, id, identity string) error {
	ctx, done := that.begin(ctx, "close", attribute.String("session.id", id))

	err := that.lifecycle.Close(ctx, id, identity)
	done(err)

	return err
}

func (that *sessionUseCase) SubmitMove(ctx context.Context, move entity.Move) (*entity.Session, error) {
	ctx, done := that.begin(ctx, "move",
		attribute.String("session.id", move.SessionID),
		attribute.String("move.action", string(move.Action.Kind)),
		attribute.Int64("move.observed_version", move.ObservedVersion),
	)

	session, err := that.arbiter.SubmitMove(ctx, move)
	done(err)
	if err != nil {
		if snapshot, ok := entity.SnapshotOf(err); ok {
			that.metrics.ObserveMove(string(snapshot.Variant), resultOf(err))
		}
		return nil, masked(err)
	}

	that.metrics.ObserveMove(string(session.Variant), resultOf(nil))

	return session.Masked(), nil
}

func (that *sessionUseCase) Get(ctx context.Context, id string) (*entity.Session, error) {
	ctx, done := that.begin(ctx, "get", attribute.String("session.id", id))

	session, err := that.sessions.Get(ctx, id)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session.Masked(), nil
}

// Subscribe opens a feed of session id; the caller must Close it.
func (that *sessionUseCase) Subscribe(ctx context.Context, id string) (*broadcast.Subscription, error) {
	ctx, done := that.begin(ctx, "subscribe", attribute.String("session.id", id))

	sub, err := that.feed.Subscribe(ctx, that.sessions, id)
	done(err)
	if err != nil {
		return nil, err
	}

	that.metrics.SubscriberOpened()
	go func() {
		<-sub.Done()
		that.metrics.SubscriberClosed()
	}()

	return sub, nil
}

// begin opens a span for operation and returns the func that closes it and
// records the result.
func (that *sessionUseCase) begin(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	started := time.Now()
	ctx, span := that.tracer.Start(ctx, "session."+operation, trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		result := resultOf(err)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, result)

			if result == "internal" || result == "transient" {
				that.logger.Error("session operation failed", "operation", operation, "error", err)
			} else {
				that.logger.Debug("session operation rejected", "operation", operation, "result", result)
			}
		}

		span.SetAttributes(attribute.String("result", result))
		span.End()

		that.metrics.ObserveOperation(operation, result, started)
	}
}

func resultOf(err error) string {
	if err == nil {
		return "ok"
	}
	return apperror.Code(err)
}

// masked strips hidden answers from a snapshot carried by err.
func masked(err error) error {
	var rejection *entity.Rejection
	if errors.As(err, &rejection) && rejection.Session != nil {
		rejection.Session = rejection.Session.Masked()
	}
	return err
}
