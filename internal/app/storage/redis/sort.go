package redis

import (
	"sort"

	"github.com/posterwatch/posterwatch/internal/app/domain/subscriber"
	"github.com/posterwatch/posterwatch/internal/app/domain/watch"
)

// SMEMBERS order is unspecified, so listings sort by creation time.

func sortWatches(watches []watch.Watch) {
	sort.Slice(watches, func(i, j int) bool {
		if watches[i].CreatedAt.Equal(watches[j].CreatedAt) {
			return watches[i].Handle < watches[j].Handle
		}
		return watches[i].CreatedAt.Before(watches[j].CreatedAt)
	})
}

func sortSubscribers(subs []subscriber.Subscriber) {
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].ChatID < subs[j].ChatID
		}
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
}
