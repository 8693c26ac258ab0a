package storage

import (
	"context"

	"github.com/posterwatch/posterwatch/internal/app/domain/subscriber"
	"github.com/posterwatch/posterwatch/internal/app/domain/watch"
)

// WatchStore persists monitored handles.
type WatchStore interface {
	CreateWatch(ctx context.Context, w watch.Watch) (watch.Watch, error)
	UpdateWatch(ctx context.Context, w watch.Watch) (watch.Watch, error)
	GetWatch(ctx context.Context, id string) (watch.Watch, error)
	GetWatchByHandle(ctx context.Context, handle string) (watch.Watch, error)
	ListWatches(ctx context.Context) ([]watch.Watch, error)
	DeleteWatch(ctx context.Context, id string) error
}

// SightingStore persists posters seen per watch.
type SightingStore interface {
	CreateSighting(ctx context.Context, s watch.Sighting) (watch.Sighting, error)
	ListSightings(ctx context.Context, watchID string) ([]watch.Sighting, error)
	SeenPosters(ctx context.Context, watchID string) ([]string, error)
	DeleteSightings(ctx context.Context, watchID string) error
	CountSightings(ctx context.Context) (int, error)
}

// SubscriberStore persists alert subscribers.
type SubscriberStore interface {
	CreateSubscriber(ctx context.Context, sub subscriber.Subscriber) (subscriber.Subscriber, error)
	UpdateSubscriber(ctx context.Context, sub subscriber.Subscriber) (subscriber.Subscriber, error)
	GetSubscriberByChat(ctx context.Context, chatID int64) (subscriber.Subscriber, error)
	ListSubscribers(ctx context.Context) ([]subscriber.Subscriber, error)
	DeleteSubscriber(ctx context.Context, id string) error
}
