package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/posterwatch/posterwatch/internal/app/domain/subscriber"
	"github.com/posterwatch/posterwatch/internal/app/domain/watch"
	"github.com/posterwatch/posterwatch/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.WatchStore = (*Store)(nil)
var _ storage.SightingStore = (*Store)(nil)
var _ storage.SubscriberStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- WatchStore -------------------------------------------------------------

func (s *Store) CreateWatch(ctx context.Context, w watch.Watch) (watch.Watch, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	w.Handle = strings.ToLower(strings.TrimSpace(w.Handle))
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watches (id, handle, page_type, schedule, active, last_checked_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, w.ID, w.Handle, string(w.PageType), w.Schedule, w.Active, nullTime(w.LastCheckedAt), w.CreatedAt, w.UpdatedAt)
	if err != nil {
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

	result, err := s.db.ExecContext(ctx, `
		UPDATE watches
		SET page_type = $2, schedule = $3, active = $4, last_checked_at = $5, updated_at = $6
		WHERE id = $1
	`, w.ID, string(w.PageType), w.Schedule, w.Active, nullTime(w.LastCheckedAt), w.UpdatedAt)
	if err != nil {
		return watch.Watch{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return watch.Watch{}, sql.ErrNoRows
	}
	return w, nil
}

const watchColumns = `id, handle, page_type, schedule, active, last_checked_at, created_at, updated_at`

func scanWatch(row interface{ Scan(...interface{}) error }) (watch.Watch, error) {
	var (
		w           watch.Watch
		pageType    string
		lastChecked sql.NullTime
	)
	if err := row.Scan(&w.ID, &w.Handle, &pageType, &w.Schedule, &w.Active, &lastChecked, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return watch.Watch{}, err
	}
	w.PageType = watch.PageType(pageType)
	if lastChecked.Valid {
		w.LastCheckedAt = lastChecked.Time
	}
	return w, nil
}

func (s *Store) GetWatch(ctx context.Context, id string) (watch.Watch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+watchColumns+` FROM watches WHERE id = $1
	`, id)
	return scanWatch(row)
}

func (s *Store) GetWatchByHandle(ctx context.Context, handle string) (watch.Watch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+watchColumns+` FROM watches WHERE handle = $1
	`, strings.ToLower(strings.TrimSpace(handle)))
	return scanWatch(row)
}

func (s *Store) ListWatches(ctx context.Context) ([]watch.Watch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+watchColumns+` FROM watches ORDER BY handle
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []watch.Watch
	for rows.Next() {
		w, err := scanWatch(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

func (s *Store) DeleteWatch(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM watches WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- SightingStore ----------------------------------------------------------

func (s *Store) CreateSighting(ctx context.Context, sighting watch.Sighting) (watch.Sighting, error) {
	if sighting.ID == "" {
		sighting.ID = uuid.NewString()
	}
	sighting.Poster = strings.ToLower(strings.TrimSpace(sighting.Poster))
	now := time.Now().UTC()
	sighting.CreatedAt = now
	if sighting.SeenAt.IsZero() {
		sighting.SeenAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sightings (id, watch_id, poster, seen_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, sighting.ID, sighting.WatchID, sighting.Poster, sighting.SeenAt, sighting.CreatedAt)
	if err != nil {
		return watch.Sighting{}, err
	}
	return sighting, nil
}

func (s *Store) ListSightings(ctx context.Context, watchID string) ([]watch.Sighting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, watch_id, poster, seen_at, created_at
		FROM sightings
		WHERE watch_id = $1
		ORDER BY seen_at
	`, watchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []watch.Sighting
	for rows.Next() {
		var sighting watch.Sighting
		if err := rows.Scan(&sighting.ID, &sighting.WatchID, &sighting.Poster, &sighting.SeenAt, &sighting.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, sighting)
	}
	return result, rows.Err()
}

func (s *Store) SeenPosters(ctx context.Context, watchID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT poster FROM sightings WHERE watch_id = $1 ORDER BY poster
	`, watchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var poster string
		if err := rows.Scan(&poster); err != nil {
			return nil, err
		}
		result = append(result, poster)
	}
	return result, rows.Err()
}

func (s *Store) DeleteSightings(ctx context.Context, watchID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sightings WHERE watch_id = $1
	`, watchID)
	return err
}

func (s *Store) CountSightings(ctx context.Context) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sightings`).Scan(&total)
	return total, err
}

// --- SubscriberStore --------------------------------------------------------

func (s *Store) CreateSubscriber(ctx context.Context, sub subscriber.Subscriber) (subscriber.Subscriber, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscribers (id, chat_id, muted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, sub.ID, sub.ChatID, sub.Muted, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
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

	result, err := s.db.ExecContext(ctx, `
		UPDATE subscribers SET muted = $2, updated_at = $3 WHERE id = $1
	`, sub.ID, sub.Muted, sub.UpdatedAt)
	if err != nil {
		return subscriber.Subscriber{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return subscriber.Subscriber{}, sql.ErrNoRows
	}
	return sub, nil
}

func (s *Store) getSubscriber(ctx context.Context, id string) (subscriber.Subscriber, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, chat_id, muted, created_at, updated_at FROM subscribers WHERE id = $1
	`, id)

	var sub subscriber.Subscriber
	if err := row.Scan(&sub.ID, &sub.ChatID, &sub.Muted, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return subscriber.Subscriber{}, err
	}
	return sub, nil
}

func (s *Store) GetSubscriberByChat(ctx context.Context, chatID int64) (subscriber.Subscriber, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, chat_id, muted, created_at, updated_at FROM subscribers WHERE chat_id = $1
	`, chatID)

	var sub subscriber.Subscriber
	if err := row.Scan(&sub.ID, &sub.ChatID, &sub.Muted, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return subscriber.Subscriber{}, err
	}
	return sub, nil
}

func (s *Store) ListSubscribers(ctx context.Context) ([]subscriber.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, muted, created_at, updated_at FROM subscribers ORDER BY chat_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []subscriber.Subscriber
	for rows.Next() {
		var sub subscriber.Subscriber
		if err := rows.Scan(&sub.ID, &sub.ChatID, &sub.Muted, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

func (s *Store) DeleteSubscriber(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM subscribers WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
