// Package subscription manages the chats that receive new-poster alerts.
package subscription

import (
	"context"

	"github.com/posterwatch/posterwatch/internal/app/domain/subscriber"
	"github.com/posterwatch/posterwatch/internal/app/storage"
	"github.com/posterwatch/posterwatch/pkg/logger"
)

// Service manages alert subscriptions.
type Service struct {
	store storage.SubscriberStore
	log   *logger.Logger
}

// New constructs a subscription service.
func New(store storage.SubscriberStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("subscription")
	}
	return &Service{store: store, log: log}
}

// Subscribe registers a chat for alerts. Subscribing twice is a no-op and
// returns the existing record.
func (s *Service) Subscribe(ctx context.Context, chatID int64) (subscriber.Subscriber, error) {
	if existing, err := s.store.GetSubscriberByChat(ctx, chatID); err == nil {
		return existing, nil
	}

	created, err := s.store.CreateSubscriber(ctx, subscriber.Subscriber{ChatID: chatID})
	if err != nil {
		return subscriber.Subscriber{}, err
	}
	s.log.WithField("chat_id", chatID).Info("chat subscribed")
	return created, nil
}

// Unsubscribe removes a chat. Unknown chats are a no-op.
func (s *Service) Unsubscribe(ctx context.Context, chatID int64) error {
	existing, err := s.store.GetSubscriberByChat(ctx, chatID)
	if err != nil {
		return nil
	}
	if err := s.store.DeleteSubscriber(ctx, existing.ID); err != nil {
		return err
	}
	s.log.WithField("chat_id", chatID).Info("chat unsubscribed")
	return nil
}

// SetMuted pauses or resumes alerts for a chat without dropping the
// subscription.
func (s *Service) SetMuted(ctx context.Context, chatID int64, muted bool) (subscriber.Subscriber, error) {
	existing, err := s.store.GetSubscriberByChat(ctx, chatID)
	if err != nil {
		return subscriber.Subscriber{}, err
	}
	existing.Muted = muted
	return s.store.UpdateSubscriber(ctx, existing)
}

// List returns all subscribers ordered by chat ID.
func (s *Service) List(ctx context.Context) ([]subscriber.Subscriber, error) {
	return s.store.ListSubscribers(ctx)
}

// Recipients returns the chat IDs that should receive alerts right now.
func (s *Service) Recipients(ctx context.Context) ([]int64, error) {
	subs, err := s.store.ListSubscribers(ctx)
	if err != nil {
		return nil, err
	}
	recipients := make([]int64, 0, len(subs))
	for _, sub := range subs {
		if sub.Muted {
			continue
		}
		recipients = append(recipients, sub.ChatID)
	}
	return recipients, nil
}

// SeedDefault subscribes the configured default chat, if any. Called once
// at startup.
func (s *Service) SeedDefault(ctx context.Context, chatID int64) error {
	if chatID <= 0 {
		return nil
	}
	_, err := s.Subscribe(ctx, chatID)
	return err
}
