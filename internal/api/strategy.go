// Package api serves stored or live sentiment data over HTTP.
package api

import (
	"context"
	"time"

	"github.com/selivandex/market-pulse/pkg/models"
)

// PostQuery selects the posts listing in live mode. Precomputed mode
// ignores it.
type PostQuery struct {
	Subreddit  string
	TimePeriod string
	SortBy     string
}

// PostView is the JSON shape of a post
type PostView struct {
	ID          string                 `json:"id,omitempty"`
	Title       string                 `json:"title"`
	Selftext    string                 `json:"selftext"`
	URL         string                 `json:"url"`
	Subreddit   string                 `json:"subreddit"`
	Author      string                 `json:"author"`
	CreatedUTC  *string                `json:"created_utc"`
	Score       int                    `json:"score"`
	NumComments int                    `json:"num_comments"`
	Sentiment   models.SentimentScores `json:"sentiment"`
}

// CommentView is one comment with its nested replies
type CommentView struct {
	ID         string                 `json:"id"`
	Body       string                 `json:"body"`
	Author     string                 `json:"author"`
	CreatedUTC *string                `json:"created_utc"`
	Score      int                    `json:"score"`
	Sentiment  models.SentimentScores `json:"sentiment"`
	Replies    []CommentView          `json:"replies"`
}

// Strategy produces the API payloads. Implementations are safe for
// concurrent use.
type Strategy interface {
	// Mode returns the configured query mode name
	Mode() string
	// Posts returns recent posts with sentiment
	Posts(ctx context.Context, q PostQuery) ([]PostView, error)
	// Stocks returns one row per symbol
	Stocks(ctx context.Context) ([]models.Stock, error)
}

// CommentSource is implemented by strategies that can serve comment trees
type CommentSource interface {
	Comments(ctx context.Context, postID string) ([]CommentView, error)
}

// formatTime renders t as ISO-8601 in UTC, nil for a missing timestamp
func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
