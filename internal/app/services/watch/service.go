// Package watch manages the set of monitored handles and the posters seen
// on their pages.
package watch

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/posterwatch/posterwatch/internal/app/domain/watch"
	"github.com/posterwatch/posterwatch/internal/app/storage"
	"github.com/posterwatch/posterwatch/pkg/logger"
)

// Prober verifies a handle resolves to a real page and classifies it.
type Prober interface {
	Probe(ctx context.Context, handle string) (watch.PageType, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, handle string) (watch.PageType, error)

// Probe implements Prober.
func (f ProberFunc) Probe(ctx context.Context, handle string) (watch.PageType, error) {
	return f(ctx, handle)
}

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)

// Status summarizes the service for /status.
type Status struct {
	Watches        int
	ActiveWatches  int
	Subscribers    int
	TotalSightings int
}

// Service manages watches and their sightings.
type Service struct {
	watches     storage.WatchStore
	sightings   storage.SightingStore
	subscribers storage.SubscriberStore
	prober      Prober
	log         *logger.Logger
}

// New constructs a watch service. The prober may be nil, in which case
// handles are accepted without a page check.
func New(watches storage.WatchStore, sightings storage.SightingStore, subscribers storage.SubscriberStore, prober Prober, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("watch")
	}
	return &Service{
		watches:     watches,
		sightings:   sightings,
		subscribers: subscribers,
		prober:      prober,
		log:         log,
	}
}

// NormalizeHandle trims whitespace, strips a leading @ and lower-cases.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

// ValidateHandle reports whether a normalized handle is a plausible
// X/Twitter handle.
func ValidateHandle(handle string) error {
	if !handlePattern.MatchString(handle) {
		return fmt.Errorf("invalid handle %q", handle)
	}
	return nil
}

// AddWatch registers a new handle. The page is probed first so a typo is
// rejected instead of being silently monitored forever.
func (s *Service) AddWatch(ctx context.Context, handle, schedule string) (watch.Watch, error) {
	handle = NormalizeHandle(handle)
	if err := ValidateHandle(handle); err != nil {
		return watch.Watch{}, err
	}

	if _, err := s.watches.GetWatchByHandle(ctx, handle); err == nil {
		return watch.Watch{}, fmt.Errorf("handle @%s is already being monitored", handle)
	}

	pageType := watch.PageTypeUnknown
	if s.prober != nil {
		probed, err := s.prober.Probe(ctx, handle)
		if err != nil {
			return watch.Watch{}, fmt.Errorf("could not find a page for @%s: %w", handle, err)
		}
		pageType = probed
	}

	created, err := s.watches.CreateWatch(ctx, watch.Watch{
		Handle:   handle,
		PageType: pageType,
		Schedule: strings.TrimSpace(schedule),
		Active:   true,
	})
	if err != nil {
		return watch.Watch{}, err
	}
	s.log.WithField("handle", created.Handle).WithField("page_type", string(created.PageType)).Info("watch added")
	return created, nil
}

// RemoveWatch deletes a watch and forgets its seen posters.
func (s *Service) RemoveWatch(ctx context.Context, handle string) error {
	handle = NormalizeHandle(handle)

	w, err := s.watches.GetWatchByHandle(ctx, handle)
	if err != nil {
		return fmt.Errorf("@%s is not being monitored", handle)
	}

	if err := s.sightings.DeleteSightings(ctx, w.ID); err != nil {
		return err
	}
	if err := s.watches.DeleteWatch(ctx, w.ID); err != nil {
		return err
	}
	s.log.WithField("handle", handle).Info("watch removed")
	return nil
}

// GetWatch looks up a watch by its normalized handle.
func (s *Service) GetWatch(ctx context.Context, handle string) (watch.Watch, error) {
	return s.watches.GetWatchByHandle(ctx, NormalizeHandle(handle))
}

// ListWatches returns all watches ordered by handle.
func (s *Service) ListWatches(ctx context.Context) ([]watch.Watch, error) {
	return s.watches.ListWatches(ctx)
}

// ListActiveWatches returns the watches the checker should visit.
func (s *Service) ListActiveWatches(ctx context.Context) ([]watch.Watch, error) {
	all, err := s.watches.ListWatches(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]watch.Watch, 0, len(all))
	for _, w := range all {
		if w.Active {
			active = append(active, w)
		}
	}
	return active, nil
}

// SetActive pauses or resumes a watch without losing its seen set.
func (s *Service) SetActive(ctx context.Context, handle string, active bool) (watch.Watch, error) {
	w, err := s.watches.GetWatchByHandle(ctx, NormalizeHandle(handle))
	if err != nil {
		return watch.Watch{}, err
	}
	w.Active = active
	return s.watches.UpdateWatch(ctx, w)
}

// RecordSightings diffs the given posters against the watch's seen set,
// persists the new ones and returns them sorted. The watch's page type is
// refreshed and its last-checked timestamp advanced.
func (s *Service) RecordSightings(ctx context.Context, watchID string, pageType watch.PageType, posters []string, at time.Time) ([]string, error) {
	w, err := s.watches.GetWatch(ctx, watchID)
	if err != nil {
		return nil, err
	}

	seen, err := s.sightings.SeenPosters(ctx, watchID)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(seen))
	for _, poster := range seen {
		known[poster] = struct{}{}
	}

	var fresh []string
	for _, poster := range posters {
		poster = strings.ToLower(strings.TrimSpace(poster))
		if poster == "" {
			continue
		}
		if _, ok := known[poster]; ok {
			continue
		}
		if _, err := s.sightings.CreateSighting(ctx, watch.Sighting{
			WatchID: watchID,
			Poster:  poster,
			SeenAt:  at,
		}); err != nil {
			return nil, err
		}
		known[poster] = struct{}{}
		fresh = append(fresh, poster)
	}
	sort.Strings(fresh)

	if pageType != watch.PageTypeUnknown {
		w.PageType = pageType
	}
	w.LastCheckedAt = at
	if _, err := s.watches.UpdateWatch(ctx, w); err != nil {
		return nil, err
	}
	return fresh, nil
}

// Sightings returns the recorded sightings for a handle.
func (s *Service) Sightings(ctx context.Context, handle string) ([]watch.Sighting, error) {
	w, err := s.watches.GetWatchByHandle(ctx, NormalizeHandle(handle))
	if err != nil {
		return nil, err
	}
	return s.sightings.ListSightings(ctx, w.ID)
}

// Status returns the numbers shown by the /status command.
func (s *Service) Status(ctx context.Context) (Status, error) {
	watches, err := s.watches.ListWatches(ctx)
	if err != nil {
		return Status{}, err
	}
	active := 0
	for _, w := range watches {
		if w.Active {
			active++
		}
	}

	total, err := s.sightings.CountSightings(ctx)
	if err != nil {
		return Status{}, err
	}

	subs := 0
	if s.subscribers != nil {
		list, err := s.subscribers.ListSubscribers(ctx)
		if err != nil {
			return Status{}, err
		}
		subs = len(list)
	}

	return Status{
		Watches:        len(watches),
		ActiveWatches:  active,
		Subscribers:    subs,
		TotalSightings: total,
	}, nil
}
