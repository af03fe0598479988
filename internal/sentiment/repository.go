package sentiment

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/selivandex/market-pulse/pkg/models"
)

// Repository handles daily sentiment aggregates. It is the storage-backed
// source of historical sentiment for the ingest job and the live API.
type Repository struct {
	ext sqlx.ExtContext
	now func() time.Time
}

// NewRepository creates new sentiment repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{ext: db, now: time.Now}
}

// WithTx returns a repository bound to tx
func (r *Repository) WithTx(tx *sqlx.Tx) *Repository {
	return &Repository{ext: tx, now: r.now}
}

// UpsertDaily stores one aggregate row per (entity, date)
func (r *Repository) UpsertDaily(ctx context.Context, data *models.SentimentData) error {
	data.Date = Day(data.Date)

	query := `
		INSERT INTO sentiment_data (
			entity, date, positive_count, negative_count, neutral_count,
			sentiment_avg, sentiment_stddev, post_count, comment_count
		) VALUES (
			:entity, :date, :positive_count, :negative_count, :neutral_count,
			:sentiment_avg, :sentiment_stddev, :post_count, :comment_count
		)
		ON CONFLICT (entity, date) DO UPDATE SET
			positive_count = excluded.positive_count,
			negative_count = excluded.negative_count,
			neutral_count = excluded.neutral_count,
			sentiment_avg = excluded.sentiment_avg,
			sentiment_stddev = excluded.sentiment_stddev,
			post_count = excluded.post_count,
			comment_count = excluded.comment_count
	`

	if _, err := sqlx.NamedExecContext(ctx, r.ext, query, data); err != nil {
		return fmt.Errorf("failed to upsert sentiment for %s on %s: %w",
			data.Entity, data.Date.Format("2006-01-02"), err)
	}
	return nil
}

// History returns the daily aggregates of entity for the last days calendar
// days, today included, oldest first.
func (r *Repository) History(ctx context.Context, entity string, days int) ([]models.HistoricalSentiment, error) {
	since := Day(r.now()).AddDate(0, 0, -(days - 1))

	query := r.ext.Rebind(`
		SELECT date, sentiment_avg, post_count
		FROM sentiment_data
		WHERE entity = ? AND date >= ?
		ORDER BY date
	`)

	history := make([]models.HistoricalSentiment, 0, days)
	if err := sqlx.SelectContext(ctx, r.ext, &history, query, entity, since); err != nil {
		return nil, fmt.Errorf("failed to load sentiment history for %s: %w", entity, err)
	}
	return history, nil
}

// PostsOnDay returns the stored posts created on day (UTC). With undated
// set, posts without a timestamp are included as well.
func (r *Repository) PostsOnDay(ctx context.Context, day time.Time, undated bool) ([]models.Post, error) {
	from := Day(day)
	to := from.AddDate(0, 0, 1)

	query := `
		SELECT id, title, COALESCE(selftext, '') AS selftext, created_utc, sentiment_compound
		FROM posts
		WHERE (created_utc >= ? AND created_utc < ?)`
	if undated {
		query += ` OR created_utc IS NULL`
	}

	var posts []models.Post
	if err := sqlx.SelectContext(ctx, r.ext, &posts, r.ext.Rebind(query), from, to); err != nil {
		return nil, fmt.Errorf("failed to load posts for %s: %w", from.Format("2006-01-02"), err)
	}
	return posts, nil
}

// Day truncates t to midnight UTC
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
