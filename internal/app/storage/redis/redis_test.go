package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"

	"github.com/posterwatch/posterwatch/internal/app/domain/subscriber"
	"github.com/posterwatch/posterwatch/internal/app/domain/watch"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client)
}

func TestWatchLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateWatch(ctx, watch.Watch{Handle: "ExampleUser", PageType: watch.PageTypeUser, Active: true})
	if err != nil {
		t.Fatalf("create watch: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated watch ID")
	}
	if created.Handle != "exampleuser" {
		t.Fatalf("expected lower-cased handle, got %q", created.Handle)
	}

	if _, err := store.CreateWatch(ctx, watch.Watch{Handle: "exampleuser"}); err == nil {
		t.Fatal("expected duplicate handle error")
	}

	got, err := store.GetWatchByHandle(ctx, "EXAMPLEUSER")
	if err != nil {
		t.Fatalf("get by handle: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("expected watch %s, got %s", created.ID, got.ID)
	}

	got.Active = false
	updated, err := store.UpdateWatch(ctx, got)
	if err != nil {
		t.Fatalf("update watch: %v", err)
	}
	if updated.Active {
		t.Fatal("expected watch to be inactive after update")
	}

	watches, err := store.ListWatches(ctx)
	if err != nil {
		t.Fatalf("list watches: %v", err)
	}
	if len(watches) != 1 {
		t.Fatalf("expected 1 watch, got %d", len(watches))
	}

	if err := store.DeleteWatch(ctx, created.ID); err != nil {
		t.Fatalf("delete watch: %v", err)
	}
	if _, err := store.GetWatch(ctx, created.ID); err == nil {
		t.Fatal("expected not-found after delete")
	}
	if _, err := store.GetWatchByHandle(ctx, "exampleuser"); err == nil {
		t.Fatal("expected handle index to be removed")
	}
}

func TestSightingDeduplication(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	w, err := store.CreateWatch(ctx, watch.Watch{Handle: "somegroup", PageType: watch.PageTypeCommunity, Active: true})
	if err != nil {
		t.Fatalf("create watch: %v", err)
	}

	if _, err := store.CreateSighting(ctx, watch.Sighting{WatchID: w.ID, Poster: "Alice"}); err != nil {
		t.Fatalf("create sighting: %v", err)
	}
	if _, err := store.CreateSighting(ctx, watch.Sighting{WatchID: w.ID, Poster: "alice"}); err == nil {
		t.Fatal("expected duplicate poster error")
	}
	if _, err := store.CreateSighting(ctx, watch.Sighting{WatchID: w.ID, Poster: "bob"}); err != nil {
		t.Fatalf("create second sighting: %v", err)
	}

	posters, err := store.SeenPosters(ctx, w.ID)
	if err != nil {
		t.Fatalf("seen posters: %v", err)
	}
	if len(posters) != 2 {
		t.Fatalf("expected 2 seen posters, got %d", len(posters))
	}

	sightings, err := store.ListSightings(ctx, w.ID)
	if err != nil {
		t.Fatalf("list sightings: %v", err)
	}
	if len(sightings) != 2 {
		t.Fatalf("expected 2 sightings, got %d", len(sightings))
	}
	if sightings[0].Poster != "alice" {
		t.Fatalf("expected insertion order, got %q first", sightings[0].Poster)
	}

	total, err := store.CountSightings(ctx)
	if err != nil {
		t.Fatalf("count sightings: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected total 2, got %d", total)
	}

	if err := store.DeleteSightings(ctx, w.ID); err != nil {
		t.Fatalf("delete sightings: %v", err)
	}
	total, err = store.CountSightings(ctx)
	if err != nil {
		t.Fatalf("count after delete: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected total 0 after delete, got %d", total)
	}
	posters, err = store.SeenPosters(ctx, w.ID)
	if err != nil {
		t.Fatalf("seen posters after delete: %v", err)
	}
	if len(posters) != 0 {
		t.Fatalf("expected empty seen set, got %d entries", len(posters))
	}
}

func TestSubscriberLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateSubscriber(ctx, subscriber.Subscriber{ChatID: 42})
	if err != nil {
		t.Fatalf("create subscriber: %v", err)
	}
	if _, err := store.CreateSubscriber(ctx, subscriber.Subscriber{ChatID: 42}); err == nil {
		t.Fatal("expected duplicate chat error")
	}

	got, err := store.GetSubscriberByChat(ctx, 42)
	if err != nil {
		t.Fatalf("get by chat: %v", err)
	}
	if got.ID != created.ID {
		t.Fatalf("expected subscriber %s, got %s", created.ID, got.ID)
	}

	got.Muted = true
	updated, err := store.UpdateSubscriber(ctx, got)
	if err != nil {
		t.Fatalf("update subscriber: %v", err)
	}
	if !updated.Muted {
		t.Fatal("expected subscriber muted after update")
	}

	subs, err := store.ListSubscribers(ctx)
	if err != nil {
		t.Fatalf("list subscribers: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected 1 subscriber, got %d", len(subs))
	}

	if err := store.DeleteSubscriber(ctx, created.ID); err != nil {
		t.Fatalf("delete subscriber: %v", err)
	}
	if _, err := store.GetSubscriberByChat(ctx, 42); err == nil {
		t.Fatal("expected not-found after delete")
	}
}
