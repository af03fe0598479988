package news

import (
	"context"

	"github.com/selivandex/market-pulse/pkg/models"
)

// PostFetcher lists posts of a forum
type PostFetcher interface {
	// FetchPosts returns up to limit posts of forum for the time window
	// (hour, day, week, ...) in the given order (hot, new, top, ...).
	FetchPosts(ctx context.Context, forum, window, order string, limit int) ([]models.PostRecord, error)
}
