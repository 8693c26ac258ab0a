package subscriber

import "time"

// Subscriber is a Telegram chat that receives new-poster alerts.
type Subscriber struct {
	ID        string
	ChatID    int64
	Muted     bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
