// Package checker runs the periodic poster check over all active watches.
package checker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/posterwatch/posterwatch/internal/app/domain/watch"
	"github.com/posterwatch/posterwatch/internal/app/metrics"
	watchsvc "github.com/posterwatch/posterwatch/internal/app/services/watch"
	"github.com/posterwatch/posterwatch/internal/app/system"
	"github.com/posterwatch/posterwatch/internal/nitter"
	"github.com/posterwatch/posterwatch/pkg/logger"
)

var _ system.Service = (*Checker)(nil)

// Fetcher retrieves the timeline HTML for a handle.
type Fetcher interface {
	FetchPage(ctx context.Context, handle string) (string, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, handle string) (string, error)

// FetchPage implements Fetcher.
func (f FetcherFunc) FetchPage(ctx context.Context, handle string) (string, error) {
	return f(ctx, handle)
}

// Notifier broadcasts an alert to all subscribers.
type Notifier interface {
	Broadcast(ctx context.Context, text string) (int, error)
}

// Checker periodically fetches every active watch's page, diffs the posters
// against the seen set and alerts subscribers about new ones.
type Checker struct {
	watches      *watchsvc.Service
	fetcher      Fetcher
	notifier     Notifier
	log          *logger.Logger
	schedule     string
	postsToCheck int
	alertPause   time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool

	// checkMu guards against overlapping runs when a check outlives the
	// schedule interval.
	checkMu sync.Mutex
}

// New constructs a checker. Schedule takes a cron spec ("@every 5m" style
// included).
func New(watches *watchsvc.Service, fetcher Fetcher, notifier Notifier, schedule string, postsToCheck int, log *logger.Logger) *Checker {
	if schedule == "" {
		schedule = "@every 5m"
	}
	if postsToCheck <= 0 {
		postsToCheck = 20
	}
	if log == nil {
		log = logger.NewDefault("checker")
	}
	return &Checker{
		watches:      watches,
		fetcher:      fetcher,
		notifier:     notifier,
		log:          log,
		schedule:     schedule,
		postsToCheck: postsToCheck,
		alertPause:   time.Second,
	}
}

func (c *Checker) Name() string { return "poster-checker" }

// Start schedules the periodic check.
func (c *Checker) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	runner := cron.New()
	if _, err := runner.AddFunc(c.schedule, func() {
		if err := c.RunOnce(runCtx); err != nil {
			c.log.WithError(err).Warn("poster check failed")
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("schedule %q: %w", c.schedule, err)
	}
	runner.Start()

	c.cron = runner
	c.cancel = cancel
	c.running = true
	c.log.WithField("schedule", c.schedule).Info("poster checker started")
	return nil
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (c *Checker) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	runner := c.cron
	cancel := c.cancel
	c.cron = nil
	c.cancel = nil
	c.running = false
	c.mu.Unlock()

	cancel()
	stopped := runner.Stop()

	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	c.log.Info("poster checker stopped")
	return nil
}

// RunOnce performs a single check over all active watches. Overlapping
// calls are rejected so a slow run is never doubled.
func (c *Checker) RunOnce(ctx context.Context) error {
	if !c.checkMu.TryLock() {
		c.log.Warn("previous check still running, skipping")
		return nil
	}
	defer c.checkMu.Unlock()

	start := time.Now()
	err := c.run(ctx)
	metrics.RecordCheckRun(time.Since(start), err)
	return err
}

func (c *Checker) run(ctx context.Context) error {
	watches, err := c.watches.ListActiveWatches(ctx)
	if err != nil {
		return err
	}
	if len(watches) == 0 {
		c.log.Debug("no watches to check")
		return nil
	}

	c.log.WithField("watches", len(watches)).Info("starting poster check")
	for _, w := range watches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.checkWatch(ctx, w); err != nil {
			c.log.WithField("handle", w.Handle).WithError(err).Warn("watch check failed")
		}
	}
	return nil
}

func (c *Checker) checkWatch(ctx context.Context, w watch.Watch) error {
	html, err := c.fetcher.FetchPage(ctx, w.Handle)
	if err != nil {
		return err
	}

	pageType := nitter.DetectPageType(html)
	posters, err := nitter.ParseTimeline(html, c.postsToCheck)
	if err != nil {
		return err
	}

	fresh, err := c.watches.RecordSightings(ctx, w.ID, pageType, posters, time.Now().UTC())
	if err != nil {
		return err
	}
	if len(fresh) == 0 {
		c.log.WithField("handle", w.Handle).Debug("no new posters")
		return nil
	}

	metrics.RecordNewPosters(len(fresh))
	c.log.WithField("handle", w.Handle).WithField("new_posters", len(fresh)).Info("new posters found")

	if c.notifier != nil {
		if _, err := c.notifier.Broadcast(ctx, FormatAlert(w.Handle, pageType, fresh)); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.alertPause):
		}
	}
	return nil
}

// FormatAlert renders the Telegram alert for a batch of new posters.
func FormatAlert(handle string, pageType watch.PageType, posters []string) string {
	label := "User"
	if pageType == watch.PageTypeCommunity {
		label = "Community"
	}
	mentions := make([]string, 0, len(posters))
	for _, poster := range posters {
		mentions = append(mentions, "@"+poster)
	}
	return fmt.Sprintf(
		"🔔 <b>New posters on @%s (%s Page)</b>\n\n👤 %d new user(s):\n%s",
		handle, label, len(posters), strings.Join(mentions, ", "),
	)
}
