// Package redis implements the storage interfaces on Redis. Seen posters are
// kept as native sets, which matches the set-diff the checker performs.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/posterwatch/posterwatch/internal/app/domain/subscriber"
	"github.com/posterwatch/posterwatch/internal/app/domain/watch"
	"github.com/posterwatch/posterwatch/internal/app/storage"
)

// Store implements the storage interfaces backed by Redis.
type Store struct {
	client *goredis.Client
}

var _ storage.WatchStore = (*Store)(nil)
var _ storage.SightingStore = (*Store)(nil)
var _ storage.SubscriberStore = (*Store)(nil)

// New wraps an existing Redis client.
func New(client *goredis.Client) *Store {
	return &Store{client: client}
}

// Open connects to Redis and verifies connectivity.
func Open(ctx context.Context, addr string, db int) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(client), nil
}

// Close releases the underlying client.
func (s *Store) Close() error { return s.client.Close() }

func watchKey(id string) string         { return "watch:" + id }
func watchHandleKey(h string) string    { return "watch:handle:" + h }
func seenKey(watchID string) string     { return "watch:" + watchID + ":seen" }
func sightingKey(watchID string) string { return "watch:" + watchID + ":sightings" }
func subKey(id string) string           { return "subscriber:" + id }
func subChatKey(chatID int64) string    { return "subscriber:chat:" + strconv.FormatInt(chatID, 10) }

const (
	watchIndexKey    = "watches"
	subIndexKey      = "subscribers"
	sightingTotalKey = "sightings:total"
)

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// WatchStore implementation ---------------------------------------------------

func watchFields(w watch.Watch) map[string]interface{} {
	return map[string]interface{}{
		"handle":          w.Handle,
		"page_type":       string(w.PageType),
		"schedule":        w.Schedule,
		"active":          strconv.FormatBool(w.Active),
		"last_checked_at": encodeTime(w.LastCheckedAt),
		"created_at":      encodeTime(w.CreatedAt),
		"updated_at":      encodeTime(w.UpdatedAt),
	}
}

func watchFromFields(id string, fields map[string]string) watch.Watch {
	active, _ := strconv.ParseBool(fields["active"])
	return watch.Watch{
		ID:            id,
		Handle:        fields["handle"],
		PageType:      watch.PageType(fields["page_type"]),
		Schedule:      fields["schedule"],
		Active:        active,
		LastCheckedAt: decodeTime(fields["last_checked_at"]),
		CreatedAt:     decodeTime(fields["created_at"]),
		UpdatedAt:     decodeTime(fields["updated_at"]),
	}
}

func (s *Store) CreateWatch(ctx context.Context, w watch.Watch) (watch.Watch, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	w.Handle = strings.ToLower(strings.TrimSpace(w.Handle))
	if w.Handle == "" {
		return watch.Watch{}, fmt.Errorf("watch handle required")
	}
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now

	ok, err := s.client.SetNX(ctx, watchHandleKey(w.Handle), w.ID, 0).Result()
	if err != nil {
		return watch.Watch{}, err
	}
	if !ok {
		return watch.Watch{}, fmt.Errorf("handle %s already watched", w.Handle)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, watchKey(w.ID), watchFields(w))
	pipe.SAdd(ctx, watchIndexKey, w.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return watch.Watch{}, err
	}
	return w, nil
}

func (s *Store) UpdateWatch(ctx context.Context, w watch.Watch) (watch.Watch, error) {
	existing, err := s.GetWatch(ctx, w.ID)
	if err != nil {
		return watch.Watch{}, err
	}

	w.Handle = existing.Handle
	w.CreatedAt = existing.CreatedAt
	w.UpdatedAt = time.Now().UTC()

	if err := s.client.HSet(ctx, watchKey(w.ID), watchFields(w)).Err(); err != nil {
		return watch.Watch{}, err
	}
	return w, nil
}

func (s *Store) GetWatch(ctx context.Context, id string) (watch.Watch, error) {
	fields, err := s.client.HGetAll(ctx, watchKey(id)).Result()
	if err != nil {
		return watch.Watch{}, err
	}
	if len(fields) == 0 {
		return watch.Watch{}, fmt.Errorf("watch %s not found", id)
	}
	return watchFromFields(id, fields), nil
}

func (s *Store) GetWatchByHandle(ctx context.Context, handle string) (watch.Watch, error) {
	handle = strings.ToLower(strings.TrimSpace(handle))
	id, err := s.client.Get(ctx, watchHandleKey(handle)).Result()
	if errors.Is(err, goredis.Nil) {
		return watch.Watch{}, fmt.Errorf("watch for handle %s not found", handle)
	}
	if err != nil {
		return watch.Watch{}, err
	}
	return s.GetWatch(ctx, id)
}

func (s *Store) ListWatches(ctx context.Context) ([]watch.Watch, error) {
	ids, err := s.client.SMembers(ctx, watchIndexKey).Result()
	if err != nil {
		return nil, err
	}

	result := make([]watch.Watch, 0, len(ids))
	for _, id := range ids {
		w, err := s.GetWatch(ctx, id)
		if err != nil {
			continue // removed concurrently
		}
		result = append(result, w)
	}
	sortWatches(result)
	return result, nil
}

func (s *Store) DeleteWatch(ctx context.Context, id string) error {
	w, err := s.GetWatch(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, watchKey(id), watchHandleKey(w.Handle))
	pipe.SRem(ctx, watchIndexKey, id)
	_, err = pipe.Exec(ctx)
	return err
}

// SightingStore implementation ------------------------------------------------

type sightingRecord struct {
	ID        string    `json:"id"`
	Poster    string    `json:"poster"`
	SeenAt    time.Time `json:"seen_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Store) CreateSighting(ctx context.Context, sighting watch.Sighting) (watch.Sighting, error) {
	if sighting.WatchID == "" {
		return watch.Sighting{}, fmt.Errorf("sighting watch id required")
	}
	sighting.Poster = strings.ToLower(strings.TrimSpace(sighting.Poster))
	if sighting.Poster == "" {
		return watch.Sighting{}, fmt.Errorf("sighting poster required")
	}

	added, err := s.client.SAdd(ctx, seenKey(sighting.WatchID), sighting.Poster).Result()
	if err != nil {
		return watch.Sighting{}, err
	}
	if added == 0 {
		return watch.Sighting{}, fmt.Errorf("poster %s already sighted on watch %s", sighting.Poster, sighting.WatchID)
	}

	if sighting.ID == "" {
		sighting.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sighting.CreatedAt = now
	if sighting.SeenAt.IsZero() {
		sighting.SeenAt = now
	}

	payload, err := json.Marshal(sightingRecord{
		ID:        sighting.ID,
		Poster:    sighting.Poster,
		SeenAt:    sighting.SeenAt,
		CreatedAt: sighting.CreatedAt,
	})
	if err != nil {
		return watch.Sighting{}, err
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, sightingKey(sighting.WatchID), payload)
	pipe.Incr(ctx, sightingTotalKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return watch.Sighting{}, err
	}
	return sighting, nil
}

func (s *Store) ListSightings(ctx context.Context, watchID string) ([]watch.Sighting, error) {
	entries, err := s.client.LRange(ctx, sightingKey(watchID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	result := make([]watch.Sighting, 0, len(entries))
	for _, entry := range entries {
		var rec sightingRecord
		if err := json.Unmarshal([]byte(entry), &rec); err != nil {
			return nil, fmt.Errorf("decode sighting: %w", err)
		}
		result = append(result, watch.Sighting{
			ID:        rec.ID,
			WatchID:   watchID,
			Poster:    rec.Poster,
			SeenAt:    rec.SeenAt,
			CreatedAt: rec.CreatedAt,
		})
	}
	return result, nil
}

func (s *Store) SeenPosters(ctx context.Context, watchID string) ([]string, error) {
	posters, err := s.client.SMembers(ctx, seenKey(watchID)).Result()
	if err != nil {
		return nil, err
	}
	return posters, nil
}

func (s *Store) DeleteSightings(ctx context.Context, watchID string) error {
	count, err := s.client.LLen(ctx, sightingKey(watchID)).Result()
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, seenKey(watchID), sightingKey(watchID))
	if count > 0 {
		pipe.DecrBy(ctx, sightingTotalKey, count)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) CountSightings(ctx context.Context) (int, error) {
	total, err := s.client.Get(ctx, sightingTotalKey).Int()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return total, nil
}

// SubscriberStore implementation ----------------------------------------------

func subFields(sub subscriber.Subscriber) map[string]interface{} {
	return map[string]interface{}{
		"chat_id":    strconv.FormatInt(sub.ChatID, 10),
		"muted":      strconv.FormatBool(sub.Muted),
		"created_at": encodeTime(sub.CreatedAt),
		"updated_at": encodeTime(sub.UpdatedAt),
	}
}

func subFromFields(id string, fields map[string]string) subscriber.Subscriber {
	chatID, _ := strconv.ParseInt(fields["chat_id"], 10, 64)
	muted, _ := strconv.ParseBool(fields["muted"])
	return subscriber.Subscriber{
		ID:        id,
		ChatID:    chatID,
		Muted:     muted,
		CreatedAt: decodeTime(fields["created_at"]),
		UpdatedAt: decodeTime(fields["updated_at"]),
	}
}

func (s *Store) CreateSubscriber(ctx context.Context, sub subscriber.Subscriber) (subscriber.Subscriber, error) {
	if sub.ChatID == 0 {
		return subscriber.Subscriber{}, fmt.Errorf("subscriber chat id required")
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	ok, err := s.client.SetNX(ctx, subChatKey(sub.ChatID), sub.ID, 0).Result()
	if err != nil {
		return subscriber.Subscriber{}, err
	}
	if !ok {
		return subscriber.Subscriber{}, fmt.Errorf("chat %d already subscribed", sub.ChatID)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, subKey(sub.ID), subFields(sub))
	pipe.SAdd(ctx, subIndexKey, sub.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return subscriber.Subscriber{}, err
	}
	return sub, nil
}

func (s *Store) UpdateSubscriber(ctx context.Context, sub subscriber.Subscriber) (subscriber.Subscriber, error) {
	existing, err := s.getSubscriber(ctx, sub.ID)
	if err != nil {
		return subscriber.Subscriber{}, err
	}

	sub.ChatID = existing.ChatID
	sub.CreatedAt = existing.CreatedAt
	sub.UpdatedAt = time.Now().UTC()

	if err := s.client.HSet(ctx, subKey(sub.ID), subFields(sub)).Err(); err != nil {
		return subscriber.Subscriber{}, err
	}
	return sub, nil
}

func (s *Store) getSubscriber(ctx context.Context, id string) (subscriber.Subscriber, error) {
	fields, err := s.client.HGetAll(ctx, subKey(id)).Result()
	if err != nil {
		return subscriber.Subscriber{}, err
	}
	if len(fields) == 0 {
		return subscriber.Subscriber{}, fmt.Errorf("subscriber %s not found", id)
	}
	return subFromFields(id, fields), nil
}

func (s *Store) GetSubscriberByChat(ctx context.Context, chatID int64) (subscriber.Subscriber, error) {
	id, err := s.client.Get(ctx, subChatKey(chatID)).Result()
	if errors.Is(err, goredis.Nil) {
		return subscriber.Subscriber{}, fmt.Errorf("subscriber for chat %d not found", chatID)
	}
	if err != nil {
		return subscriber.Subscriber{}, err
	}
	return s.getSubscriber(ctx, id)
}

func (s *Store) ListSubscribers(ctx context.Context) ([]subscriber.Subscriber, error) {
	ids, err := s.client.SMembers(ctx, subIndexKey).Result()
	if err != nil {
		return nil, err
	}

	result := make([]subscriber.Subscriber, 0, len(ids))
	for _, id := range ids {
		sub, err := s.getSubscriber(ctx, id)
		if err != nil {
			continue
		}
		result = append(result, sub)
	}
	sortSubscribers(result)
	return result, nil
}

func (s *Store) DeleteSubscriber(ctx context.Context, id string) error {
	sub, err := s.getSubscriber(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, subKey(id), subChatKey(sub.ChatID))
	pipe.SRem(ctx, subIndexKey, id)
	_, err = pipe.Exec(ctx)
	return err
}
