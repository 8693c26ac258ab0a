// Package runtime wires configuration, storage, services and the HTTP
// server into a runnable application.
package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/posterwatch/posterwatch/internal/api/httpserver"
	app "github.com/posterwatch/posterwatch/internal/app"
	"github.com/posterwatch/posterwatch/internal/app/httpapi"
	"github.com/posterwatch/posterwatch/internal/app/metrics"
	filestore "github.com/posterwatch/posterwatch/internal/app/storage/file"
	"github.com/posterwatch/posterwatch/internal/app/storage/postgres"
	redisstore "github.com/posterwatch/posterwatch/internal/app/storage/redis"
	"github.com/posterwatch/posterwatch/internal/config"
	"github.com/posterwatch/posterwatch/internal/middleware"
	"github.com/posterwatch/posterwatch/pkg/logger"
)

// Application wires core dependencies and manages the server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	app        *app.Application
	httpServer *httpserver.Server

	db    *sql.DB
	redis *redisstore.Store
}

// NewApplication constructs an application from the environment.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewApplicationWithConfig(cfg)
}

// NewApplicationWithConfig constructs an application from an explicit
// configuration.
func NewApplicationWithConfig(cfg *config.Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	a := &Application{cfg: cfg, log: log}

	stores, err := a.buildStores()
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}

	application, err := app.New(cfg, stores, log)
	if err != nil {
		a.closeStores()
		return nil, err
	}
	a.app = application

	handler := httpapi.NewHandler(application, cfg.Telegram.BotToken, log)
	handler = metrics.InstrumentHandler(handler)
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter := middleware.NewRateLimiter(float64(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst, log)
		handler = limiter.Handler(handler)
	}
	handler = middleware.NewTracing(log).Handler(handler)

	a.httpServer = httpserver.New(cfg.Server, log, handler)
	return a, nil
}

// App exposes the wired application, mainly for tests.
func (a *Application) App() *app.Application { return a.app }

func (a *Application) buildStores() (app.Stores, error) {
	switch strings.ToLower(a.cfg.Storage.Driver) {
	case "", "memory":
		return app.Stores{}, nil

	case "file":
		store, err := filestore.New(a.cfg.Storage.DataDir)
		if err != nil {
			return app.Stores{}, err
		}
		return app.Stores{Watches: store, Sightings: store, Subscribers: store}, nil

	case "postgres":
		db, err := sql.Open("postgres", a.cfg.Storage.DSN)
		if err != nil {
			return app.Stores{}, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return app.Stores{}, fmt.Errorf("ping postgres: %w", err)
		}
		if err := postgres.Migrate(db); err != nil {
			_ = db.Close()
			return app.Stores{}, fmt.Errorf("apply migrations: %w", err)
		}
		a.db = db
		store := postgres.New(db)
		return app.Stores{Watches: store, Sightings: store, Subscribers: store}, nil

	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store, err := redisstore.Open(ctx, a.cfg.Storage.RedisAddr, a.cfg.Storage.RedisDB)
		if err != nil {
			return app.Stores{}, err
		}
		a.redis = store
		return app.Stores{Watches: store, Sightings: store, Subscribers: store}, nil

	default:
		return app.Stores{}, fmt.Errorf("unknown storage driver %q", a.cfg.Storage.Driver)
	}
}

func (a *Application) closeStores() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
		a.db = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("error closing redis connection")
		}
		a.redis = nil
	}
}

// Run starts the services and the HTTP server, then blocks until the
// context is cancelled or a server error occurs.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Subscriptions.SeedDefault(ctx, a.cfg.Telegram.DefaultChatID); err != nil {
		a.log.WithError(err).Warn("seeding default chat failed")
	}

	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	if a.app.Telegram != nil && a.cfg.WebhookEnabled() {
		webhookURL := fmt.Sprintf("%s/webhook/%s", a.cfg.Telegram.PublicURL, a.cfg.Telegram.BotToken)
		if err := a.app.Telegram.SetWebhook(ctx, webhookURL); err != nil {
			a.log.WithError(err).Warn("setting telegram webhook failed")
		} else {
			a.log.Info("telegram webhook registered")
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr())
		if err := a.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the HTTP server, background services and storage.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var firstErr error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		firstErr = err
	}

	if a.app.Telegram != nil && a.cfg.WebhookEnabled() {
		if err := a.app.Telegram.DeleteWebhook(shutdownCtx); err != nil {
			a.log.WithError(err).Warn("deleting telegram webhook failed")
		}
	}

	if err := a.app.Stop(shutdownCtx); err != nil && firstErr == nil {
		firstErr = err
	}

	a.closeStores()
	return firstErr
}
