package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/posterwatch/posterwatch/internal/app/metrics"
	"github.com/posterwatch/posterwatch/internal/app/services/checker"
	subscriptionsvc "github.com/posterwatch/posterwatch/internal/app/services/subscription"
	watchsvc "github.com/posterwatch/posterwatch/internal/app/services/watch"
	"github.com/posterwatch/posterwatch/internal/app/storage"
	"github.com/posterwatch/posterwatch/internal/app/storage/memory"
	"github.com/posterwatch/posterwatch/internal/app/stream"
	"github.com/posterwatch/posterwatch/internal/app/system"
	"github.com/posterwatch/posterwatch/internal/config"
	"github.com/posterwatch/posterwatch/internal/nitter"
	"github.com/posterwatch/posterwatch/internal/telegram"
	"github.com/posterwatch/posterwatch/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Watches     storage.WatchStore
	Sightings   storage.SightingStore
	Subscribers storage.SubscriberStore
}

// Application ties the services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Watches       *watchsvc.Service
	Subscriptions *subscriptionsvc.Service
	Checker       *checker.Checker
	Hub           *stream.Hub

	// Telegram and Bot are nil when no bot token is configured.
	Telegram *telegram.Client
	Bot      *telegram.Bot
}

// New builds a fully initialised application with the provided stores.
func New(cfg *config.Config, stores Stores, log *logger.Logger) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Watches == nil {
		stores.Watches = mem
	}
	if stores.Sightings == nil {
		stores.Sightings = mem
	}
	if stores.Subscribers == nil {
		stores.Subscribers = mem
	}

	fetchTimeout := time.Duration(cfg.Watcher.FetchTimeoutSec) * time.Second
	if fetchTimeout <= 0 {
		fetchTimeout = 15 * time.Second
	}
	nitterClient, err := nitter.NewClient(&http.Client{Timeout: fetchTimeout}, cfg.Watcher.Mirrors, log)
	if err != nil {
		return nil, fmt.Errorf("configure nitter client: %w", err)
	}
	nitterClient.OnMirrorFailure = metrics.RecordMirrorFailure

	watchService := watchsvc.New(stores.Watches, stores.Sightings, stores.Subscribers, nitterClient, log)
	subscriptionService := subscriptionsvc.New(stores.Subscribers, log)
	hub := stream.NewHub(log)

	notifiers := []checker.Notifier{hub}

	var tgClient *telegram.Client
	var bot *telegram.Bot
	if cfg.Telegram.BotToken != "" {
		tgClient, err = telegram.NewClient(&http.Client{Timeout: 10 * time.Second}, cfg.Telegram.BotToken, log)
		if err != nil {
			return nil, fmt.Errorf("configure telegram client: %w", err)
		}
		bot = telegram.NewBot(tgClient, watchService, subscriptionService, log)
		notifiers = append([]checker.Notifier{telegram.NewNotifier(tgClient, subscriptionService, log)}, notifiers...)
	} else {
		log.Warn("no bot token configured; alerts go to the websocket stream only")
	}

	checkRunner := checker.New(
		watchService,
		nitterClient,
		multiNotifier(notifiers),
		cfg.Watcher.Schedule,
		cfg.Watcher.PostsToCheck,
		log,
	)

	manager := system.NewManager()
	for _, svc := range []system.Service{hub, checkRunner} {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:       manager,
		log:           log,
		Watches:       watchService,
		Subscriptions: subscriptionService,
		Checker:       checkRunner,
		Hub:           hub,
		Telegram:      tgClient,
		Bot:           bot,
	}, nil
}

// multiNotifier fans an alert out to several notifiers. The first error is
// returned after every notifier has run.
type multiNotifier []checker.Notifier

func (m multiNotifier) Broadcast(ctx context.Context, text string) (int, error) {
	total := 0
	var firstErr error
	for _, n := range m {
		sent, err := n.Broadcast(ctx, text)
		total += sent
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return total, firstErr
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
