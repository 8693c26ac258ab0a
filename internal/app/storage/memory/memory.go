package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/posterwatch/posterwatch/internal/app/domain/subscriber"
	"github.com/posterwatch/posterwatch/internal/app/domain/watch"
	"github.com/posterwatch/posterwatch/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu                sync.RWMutex
	nextID            int64
	watches           map[string]watch.Watch
	watchesByHandle   map[string]string
	sightings         map[string][]watch.Sighting
	seenPosters       map[string]map[string]struct{}
	subscribers       map[string]subscriber.Subscriber
	subscribersByChat map[int64]string
}

var _ storage.WatchStore = (*Store)(nil)
var _ storage.SightingStore = (*Store)(nil)
var _ storage.SubscriberStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:            1,
		watches:           make(map[string]watch.Watch),
		watchesByHandle:   make(map[string]string),
		sightings:         make(map[string][]watch.Sighting),
		seenPosters:       make(map[string]map[string]struct{}),
		subscribers:       make(map[string]subscriber.Subscriber),
		subscribersByChat: make(map[int64]string),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// observeIDLocked keeps the counter ahead of explicitly supplied numeric IDs
// so reloaded records never collide with newly generated ones.
func (s *Store) observeIDLocked(id string) {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil && n >= s.nextID {
		s.nextID = n + 1
	}
}

// WatchStore implementation ---------------------------------------------------

func (s *Store) CreateWatch(_ context.Context, w watch.Watch) (watch.Watch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.ID == "" {
		w.ID = s.nextIDLocked()
	} else if _, exists := s.watches[w.ID]; exists {
		return watch.Watch{}, fmt.Errorf("watch %s already exists", w.ID)
	} else {
		s.observeIDLocked(w.ID)
	}

	handleKey := strings.ToLower(strings.TrimSpace(w.Handle))
	if handleKey == "" {
		return watch.Watch{}, fmt.Errorf("watch handle required")
	}
	if existing, exists := s.watchesByHandle[handleKey]; exists {
		return watch.Watch{}, fmt.Errorf("handle %s already watched by %s", w.Handle, existing)
	}

	w.Handle = handleKey
	if w.CreatedAt.IsZero() {
		now := time.Now().UTC()
		w.CreatedAt = now
		w.UpdatedAt = now
	}

	s.watches[w.ID] = w
	s.watchesByHandle[handleKey] = w.ID
	return w, nil
}

func (s *Store) UpdateWatch(_ context.Context, w watch.Watch) (watch.Watch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.watches[w.ID]
	if !ok {
		return watch.Watch{}, fmt.Errorf("watch %s not found", w.ID)
	}

	// Handle is immutable; a rename is a remove plus add.
	w.Handle = original.Handle
	w.CreatedAt = original.CreatedAt
	w.UpdatedAt = time.Now().UTC()

	s.watches[w.ID] = w
	return w, nil
}

func (s *Store) GetWatch(_ context.Context, id string) (watch.Watch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.watches[id]
	if !ok {
		return watch.Watch{}, fmt.Errorf("watch %s not found", id)
	}
	return w, nil
}

func (s *Store) GetWatchByHandle(_ context.Context, handle string) (watch.Watch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.watchesByHandle[strings.ToLower(strings.TrimSpace(handle))]
	if !ok {
		return watch.Watch{}, fmt.Errorf("watch for handle %s not found", handle)
	}
	return s.watches[id], nil
}

func (s *Store) ListWatches(_ context.Context) ([]watch.Watch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]watch.Watch, 0, len(s.watches))
	for _, w := range s.watches {
		result = append(result, w)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Handle < result[j].Handle })
	return result, nil
}

func (s *Store) DeleteWatch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.watches[id]
	if !ok {
		return fmt.Errorf("watch %s not found", id)
	}
	delete(s.watches, id)
	delete(s.watchesByHandle, w.Handle)
	return nil
}

// SightingStore implementation ------------------------------------------------

func (s *Store) CreateSighting(_ context.Context, sighting watch.Sighting) (watch.Sighting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sighting.WatchID == "" {
		return watch.Sighting{}, fmt.Errorf("sighting watch id required")
	}
	poster := strings.ToLower(strings.TrimSpace(sighting.Poster))
	if poster == "" {
		return watch.Sighting{}, fmt.Errorf("sighting poster required")
	}

	seen := s.seenPosters[sighting.WatchID]
	if seen == nil {
		seen = make(map[string]struct{})
		s.seenPosters[sighting.WatchID] = seen
	}
	if _, exists := seen[poster]; exists {
		return watch.Sighting{}, fmt.Errorf("poster %s already sighted on watch %s", poster, sighting.WatchID)
	}

	if sighting.ID == "" {
		sighting.ID = s.nextIDLocked()
	} else {
		s.observeIDLocked(sighting.ID)
	}
	now := time.Now().UTC()
	sighting.Poster = poster
	if sighting.CreatedAt.IsZero() {
		sighting.CreatedAt = now
	}
	if sighting.SeenAt.IsZero() {
		sighting.SeenAt = now
	}

	seen[poster] = struct{}{}
	s.sightings[sighting.WatchID] = append(s.sightings[sighting.WatchID], sighting)
	return sighting, nil
}

func (s *Store) ListSightings(_ context.Context, watchID string) ([]watch.Sighting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]watch.Sighting(nil), s.sightings[watchID]...), nil
}

func (s *Store) SeenPosters(_ context.Context, watchID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := s.seenPosters[watchID]
	result := make([]string, 0, len(seen))
	for poster := range seen {
		result = append(result, poster)
	}
	sort.Strings(result)
	return result, nil
}

func (s *Store) DeleteSightings(_ context.Context, watchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sightings, watchID)
	delete(s.seenPosters, watchID)
	return nil
}

func (s *Store) CountSightings(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, entries := range s.sightings {
		total += len(entries)
	}
	return total, nil
}

// SubscriberStore implementation ----------------------------------------------

func (s *Store) CreateSubscriber(_ context.Context, sub subscriber.Subscriber) (subscriber.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.ChatID == 0 {
		return subscriber.Subscriber{}, fmt.Errorf("subscriber chat id required")
	}
	if existing, exists := s.subscribersByChat[sub.ChatID]; exists {
		return subscriber.Subscriber{}, fmt.Errorf("chat %d already subscribed as %s", sub.ChatID, existing)
	}

	if sub.ID == "" {
		sub.ID = s.nextIDLocked()
	} else if _, exists := s.subscribers[sub.ID]; exists {
		return subscriber.Subscriber{}, fmt.Errorf("subscriber %s already exists", sub.ID)
	} else {
		s.observeIDLocked(sub.ID)
	}

	if sub.CreatedAt.IsZero() {
		now := time.Now().UTC()
		sub.CreatedAt = now
		sub.UpdatedAt = now
	}

	s.subscribers[sub.ID] = sub
	s.subscribersByChat[sub.ChatID] = sub.ID
	return sub, nil
}

func (s *Store) UpdateSubscriber(_ context.Context, sub subscriber.Subscriber) (subscriber.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.subscribers[sub.ID]
	if !ok {
		return subscriber.Subscriber{}, fmt.Errorf("subscriber %s not found", sub.ID)
	}

	sub.ChatID = original.ChatID
	sub.CreatedAt = original.CreatedAt
	sub.UpdatedAt = time.Now().UTC()

	s.subscribers[sub.ID] = sub
	return sub, nil
}

func (s *Store) GetSubscriberByChat(_ context.Context, chatID int64) (subscriber.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.subscribersByChat[chatID]
	if !ok {
		return subscriber.Subscriber{}, fmt.Errorf("subscriber for chat %d not found", chatID)
	}
	return s.subscribers[id], nil
}

func (s *Store) ListSubscribers(_ context.Context) ([]subscriber.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]subscriber.Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		result = append(result, sub)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ChatID < result[j].ChatID })
	return result, nil
}

func (s *Store) DeleteSubscriber(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscribers[id]
	if !ok {
		return fmt.Errorf("subscriber %s not found", id)
	}
	delete(s.subscribers, id)
	delete(s.subscribersByChat, sub.ChatID)
	return nil
}
