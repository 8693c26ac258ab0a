package telegram

import (
	"context"

	"github.com/posterwatch/posterwatch/internal/app/metrics"
	"github.com/posterwatch/posterwatch/pkg/logger"
)

// Sender delivers a single message to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// RecipientSource lists the chats that should receive alerts.
type RecipientSource interface {
	Recipients(ctx context.Context) ([]int64, error)
}

// Notifier fans a message out to every alert recipient. A delivery failure
// to one chat does not stop the rest.
type Notifier struct {
	sender     Sender
	recipients RecipientSource
	log        *logger.Logger
}

// NewNotifier constructs a notifier.
func NewNotifier(sender Sender, recipients RecipientSource, log *logger.Logger) *Notifier {
	if log == nil {
		log = logger.NewDefault("notifier")
	}
	return &Notifier{sender: sender, recipients: recipients, log: log}
}

// Broadcast sends the message to all current recipients and returns how
// many deliveries succeeded.
func (n *Notifier) Broadcast(ctx context.Context, text string) (int, error) {
	chats, err := n.recipients.Recipients(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, chatID := range chats {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := n.sender.SendMessage(ctx, chatID, text); err != nil {
			n.log.WithField("chat_id", chatID).WithError(err).Warn("alert delivery failed")
			metrics.RecordAlert(false)
			continue
		}
		metrics.RecordAlert(true)
		sent++
	}
	return sent, nil
}
