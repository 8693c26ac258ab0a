package watch

import "time"

// PageType classifies the monitored page.
type PageType string

const (
	PageTypeUser      PageType = "user"
	PageTypeCommunity PageType = "community"
	PageTypeUnknown   PageType = "unknown"
)

// Watch is a monitored handle (user page or community page).
type Watch struct {
	ID            string
	Handle        string
	PageType      PageType
	Schedule      string
	Active        bool
	LastCheckedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Sighting records a poster first seen on a watched page.
type Sighting struct {
	ID        string
	WatchID   string
	Poster    string
	SeenAt    time.Time
	CreatedAt time.Time
}
