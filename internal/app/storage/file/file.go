// Package file implements the storage interfaces on top of JSON files in a
// data directory, so a single-instance deployment survives restarts without a
// database.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/posterwatch/posterwatch/internal/app/domain/subscriber"
	"github.com/posterwatch/posterwatch/internal/app/domain/watch"
	"github.com/posterwatch/posterwatch/internal/app/storage"
	"github.com/posterwatch/posterwatch/internal/app/storage/memory"
)

const (
	watchesFile     = "watches.json"
	subscribersFile = "subscribers.json"
	sightingsFile   = "sightings.json"
)

// Store keeps the working set in memory and rewrites the JSON files after
// every mutation. Reads are served from memory.
type Store struct {
	mu  sync.Mutex
	dir string
	mem *memory.Store
}

var _ storage.WatchStore = (*Store)(nil)
var _ storage.SightingStore = (*Store)(nil)
var _ storage.SubscriberStore = (*Store)(nil)

type watchRecord struct {
	ID            string    `json:"id"`
	Handle        string    `json:"handle"`
	PageType      string    `json:"page_type"`
	Schedule      string    `json:"schedule,omitempty"`
	Active        bool      `json:"active"`
	LastCheckedAt time.Time `json:"last_checked_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type sightingRecord struct {
	ID        string    `json:"id"`
	Poster    string    `json:"poster"`
	SeenAt    time.Time `json:"seen_at"`
	CreatedAt time.Time `json:"created_at"`
}

type subscriberRecord struct {
	ID        string    `json:"id"`
	ChatID    int64     `json:"chat_id"`
	Muted     bool      `json:"muted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New opens (creating if needed) the data directory and loads any existing
// snapshot files.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("data directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &Store{dir: dir, mem: memory.New()}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	ctx := context.Background()

	var watches []watchRecord
	if err := readJSON(filepath.Join(s.dir, watchesFile), &watches); err != nil {
		return err
	}
	for _, rec := range watches {
		w := watch.Watch{
			ID:            rec.ID,
			Handle:        rec.Handle,
			PageType:      watch.PageType(rec.PageType),
			Schedule:      rec.Schedule,
			Active:        rec.Active,
			LastCheckedAt: rec.LastCheckedAt,
			CreatedAt:     rec.CreatedAt,
			UpdatedAt:     rec.UpdatedAt,
		}
		if _, err := s.mem.CreateWatch(ctx, w); err != nil {
			return fmt.Errorf("load watch %s: %w", rec.Handle, err)
		}
	}

	var sightings map[string][]sightingRecord
	if err := readJSON(filepath.Join(s.dir, sightingsFile), &sightings); err != nil {
		return err
	}
	for watchID, recs := range sightings {
		for _, rec := range recs {
			sighting := watch.Sighting{
				ID:        rec.ID,
				WatchID:   watchID,
				Poster:    rec.Poster,
				SeenAt:    rec.SeenAt,
				CreatedAt: rec.CreatedAt,
			}
			if _, err := s.mem.CreateSighting(ctx, sighting); err != nil {
				return fmt.Errorf("load sighting %s/%s: %w", watchID, rec.Poster, err)
			}
		}
	}

	var subs []subscriberRecord
	if err := readJSON(filepath.Join(s.dir, subscribersFile), &subs); err != nil {
		return err
	}
	for _, rec := range subs {
		sub := subscriber.Subscriber{
			ID:        rec.ID,
			ChatID:    rec.ChatID,
			Muted:     rec.Muted,
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		}
		if _, err := s.mem.CreateSubscriber(ctx, sub); err != nil {
			return fmt.Errorf("load subscriber %d: %w", rec.ChatID, err)
		}
	}

	return nil
}

func (s *Store) save(ctx context.Context) error {
	watches, err := s.mem.ListWatches(ctx)
	if err != nil {
		return err
	}
	watchRecs := make([]watchRecord, 0, len(watches))
	sightingRecs := make(map[string][]sightingRecord, len(watches))
	for _, w := range watches {
		watchRecs = append(watchRecs, watchRecord{
			ID:            w.ID,
			Handle:        w.Handle,
			PageType:      string(w.PageType),
			Schedule:      w.Schedule,
			Active:        w.Active,
			LastCheckedAt: w.LastCheckedAt,
			CreatedAt:     w.CreatedAt,
			UpdatedAt:     w.UpdatedAt,
		})

		sightings, err := s.mem.ListSightings(ctx, w.ID)
		if err != nil {
			return err
		}
		recs := make([]sightingRecord, 0, len(sightings))
		for _, sighting := range sightings {
			recs = append(recs, sightingRecord{
				ID:        sighting.ID,
				Poster:    sighting.Poster,
				SeenAt:    sighting.SeenAt,
				CreatedAt: sighting.CreatedAt,
			})
		}
		sightingRecs[w.ID] = recs
	}

	subs, err := s.mem.ListSubscribers(ctx)
	if err != nil {
		return err
	}
	subRecs := make([]subscriberRecord, 0, len(subs))
	for _, sub := range subs {
		subRecs = append(subRecs, subscriberRecord{
			ID:        sub.ID,
			ChatID:    sub.ChatID,
			Muted:     sub.Muted,
			CreatedAt: sub.CreatedAt,
			UpdatedAt: sub.UpdatedAt,
		})
	}

	if err := writeJSON(filepath.Join(s.dir, watchesFile), watchRecs); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(s.dir, sightingsFile), sightingRecs); err != nil {
		return err
	}
	return writeJSON(filepath.Join(s.dir, subscribersFile), subRecs)
}

func readJSON(path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// WatchStore implementation ---------------------------------------------------

func (s *Store) CreateWatch(ctx context.Context, w watch.Watch) (watch.Watch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created, err := s.mem.CreateWatch(ctx, w)
	if err != nil {
		return watch.Watch{}, err
	}
	if err := s.save(ctx); err != nil {
		return watch.Watch{}, err
	}
	return created, nil
}

func (s *Store) UpdateWatch(ctx context.Context, w watch.Watch) (watch.Watch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, err := s.mem.UpdateWatch(ctx, w)
	if err != nil {
		return watch.Watch{}, err
	}
	if err := s.save(ctx); err != nil {
		return watch.Watch{}, err
	}
	return updated, nil
}

func (s *Store) GetWatch(ctx context.Context, id string) (watch.Watch, error) {
	return s.mem.GetWatch(ctx, id)
}

func (s *Store) GetWatchByHandle(ctx context.Context, handle string) (watch.Watch, error) {
	return s.mem.GetWatchByHandle(ctx, handle)
}

func (s *Store) ListWatches(ctx context.Context) ([]watch.Watch, error) {
	return s.mem.ListWatches(ctx)
}

func (s *Store) DeleteWatch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mem.DeleteWatch(ctx, id); err != nil {
		return err
	}
	return s.save(ctx)
}

// SightingStore implementation ------------------------------------------------

func (s *Store) CreateSighting(ctx context.Context, sighting watch.Sighting) (watch.Sighting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created, err := s.mem.CreateSighting(ctx, sighting)
	if err != nil {
		return watch.Sighting{}, err
	}
	if err := s.save(ctx); err != nil {
		return watch.Sighting{}, err
	}
	return created, nil
}

func (s *Store) ListSightings(ctx context.Context, watchID string) ([]watch.Sighting, error) {
	return s.mem.ListSightings(ctx, watchID)
}

func (s *Store) SeenPosters(ctx context.Context, watchID string) ([]string, error) {
	return s.mem.SeenPosters(ctx, watchID)
}

func (s *Store) DeleteSightings(ctx context.Context, watchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mem.DeleteSightings(ctx, watchID); err != nil {
		return err
	}
	return s.save(ctx)
}

func (s *Store) CountSightings(ctx context.Context) (int, error) {
	return s.mem.CountSightings(ctx)
}

// SubscriberStore implementation ----------------------------------------------

func (s *Store) CreateSubscriber(ctx context.Context, sub subscriber.Subscriber) (subscriber.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created, err := s.mem.CreateSubscriber(ctx, sub)
	if err != nil {
		return subscriber.Subscriber{}, err
	}
	if err := s.save(ctx); err != nil {
		return subscriber.Subscriber{}, err
	}
	return created, nil
}

func (s *Store) UpdateSubscriber(ctx context.Context, sub subscriber.Subscriber) (subscriber.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, err := s.mem.UpdateSubscriber(ctx, sub)
	if err != nil {
		return subscriber.Subscriber{}, err
	}
	if err := s.save(ctx); err != nil {
		return subscriber.Subscriber{}, err
	}
	return updated, nil
}

func (s *Store) GetSubscriberByChat(ctx context.Context, chatID int64) (subscriber.Subscriber, error) {
	return s.mem.GetSubscriberByChat(ctx, chatID)
}

func (s *Store) ListSubscribers(ctx context.Context) ([]subscriber.Subscriber, error) {
	return s.mem.ListSubscribers(ctx)
}

func (s *Store) DeleteSubscriber(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mem.DeleteSubscriber(ctx, id); err != nil {
		return err
	}
	return s.save(ctx)
}
