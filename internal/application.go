package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rocketscienceinc/gamesession-backend/internal/arbiter"
	"github.com/rocketscienceinc/gamesession-backend/internal/broadcast"
	"github.com/rocketscienceinc/gamesession-backend/internal/config"
	"github.com/rocketscienceinc/gamesession-backend/internal/lifecycle"
	"github.com/rocketscienceinc/gamesession-backend/internal/repository"
	"github.com/rocketscienceinc/gamesession-backend/internal/repository/storage"
	"github.com/rocketscienceinc/gamesession-backend/internal/reveal"
	"github.com/rocketscienceinc/gamesession-backend/internal/store"
	"github.com/rocketscienceinc/gamesession-backend/internal/telemetry"
	"github.com/rocketscienceinc/gamesession-backend/internal/tictactoe"
	relay "github.com/rocketscienceinc/gamesession-backend/internal/transport/redis"
	"github.com/rocketscienceinc/gamesession-backend/internal/usecase"
	"github.com/rocketscienceinc/gamesession-backend/internal/variant"
	"github.com/rocketscienceinc/gamesession-backend/transport/rest"
	"github.com/rocketscienceinc/gamesession-backend/transport/websocket"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application until SIGINT/SIGTERM or the first component failure.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, conf.Otel.Endpoint, conf.Otel.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		if shutdownErr := shutdownTracing(context.Background()); shutdownErr != nil {
			log.Error("could not flush traces", "error", shutdownErr)
		}
	}()

	repo, db, err := openRepository(ctx, log, conf)
	if err != nil {
		return err
	}
	defer db.close()

	feed := broadcast.New(logger)

	var publisher store.Publisher = feed
	var sessionRelay *relay.Client
	if db.redis != nil && conf.Redis.Relay {
		sessionRelay = relay.New(logger, db.redis, feed)
		publisher = sessionRelay
	}

	sessions := store.New(logger, repo, publisher, conf.Session.LockTimeout)
	rules := variant.NewRegistry(
		tictactoe.NewGameController(),
		reveal.New(conf.Session.RevealCells),
	)

	manager := lifecycle.New(logger, sessions, rules, lifecycle.Config{
		IdleTimeout:       conf.Session.IdleTimeout,
		FinishedRetention: conf.Session.FinishedRetention,
		CodeLength:        conf.Session.CodeLength,
		CodeAttempts:      conf.Session.CodeAttempts,
	})

	metrics := telemetry.NewMetrics()
	sessionUseCase := usecase.NewSessionUseCase(logger, metrics, manager, arbiter.New(logger, sessions, rules), sessions, feed)

	wsServer := websocket.New(logger, sessionUseCase, conf.AllowedOrigins)
	router := rest.NewRouter(logger, sessionUseCase, metrics.Handler(), wsServer)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := rest.Start(ctx, conf.HTTPPort, router); httpErr != nil {
			return fmt.Errorf("HTTP server error: %w", httpErr)
		}
		return nil
	})

	group.Go(func() error {
		return manager.Run(ctx)
	})

	if sessionRelay != nil {
		group.Go(func() error {
			if relayErr := sessionRelay.Run(ctx); relayErr != nil {
				return fmt.Errorf("session relay error: %w", relayErr)
			}
			return nil
		})
	}

	err = group.Wait()
	log.Info("Application stopped")

	return err
}

type backend struct {
	redis *redis.Client
	close func()
}

// openRepository picks the durable store named by storage.driver.
func openRepository(ctx context.Context, log *slog.Logger, conf *config.Config) (repository.SessionRepository, backend, error) {
	switch conf.Storage.Driver {
	case config.DriverRedis:
		if conf.Redis.Host == "" {
			return nil, backend{}, ErrAddrNotFound
		}

		client, err := storage.NewRedisStorage(ctx, conf.Redis.GetRedisAddr(), conf.Redis.MaxWait)
		if err != nil {
			return nil, backend{}, fmt.Errorf("could not connect to redis storage: %w", err)
		}

		return repository.NewSessionRepository(client), backend{
			redis: client,
			close: func() {
				if err := client.Close(); err != nil {
					log.Error("could not close redis storage", "error", err)
				}
			},
		}, nil

	case config.DriverSQLite:
		db, err := storage.NewSQLiteStorage(conf.SQLiteStoragePath)
		if err != nil {
			return nil, backend{}, fmt.Errorf("could not open sqlite storage: %w", err)
		}

		if err = db.Init(ctx); err != nil {
			_ = db.Close()
			return nil, backend{}, fmt.Errorf("could not init sqlite storage: %w", err)
		}

		return repository.NewSQLiteSessionRepository(db.Connection), backend{
			close: func() {
				if err := db.Close(); err != nil {
					log.Error("could not close sqlite storage", "error", err)
				}
			},
		}, nil

	case config.DriverMemory:
		log.Warn("using in-memory session storage, sessions will not survive a restart")
		return repository.NewMemorySessionRepository(), backend{close: func() {}}, nil

	default:
		return nil, backend{}, fmt.Errorf("%w: %q", config.ErrUnknownDriver, conf.Storage.Driver)
	}
}
