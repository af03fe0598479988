package api

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/selivandex/market-pulse/internal/adapters/config"
	"github.com/selivandex/market-pulse/internal/posts"
	"github.com/selivandex/market-pulse/internal/stocks"
	"github.com/selivandex/market-pulse/pkg/models"
)

// PrecomputedStrategy serves what the ingest job stored
type PrecomputedStrategy struct {
	posts  *posts.Repository
	stocks *stocks.Repository
}

// NewPrecomputedStrategy creates strategy reading from db
func NewPrecomputedStrategy(db *sqlx.DB) *PrecomputedStrategy {
	return &PrecomputedStrategy{
		posts:  posts.NewRepository(db),
		stocks: stocks.NewRepository(db),
	}
}

func (s *PrecomputedStrategy) Mode() string {
	return config.QueryModePrecomputed
}

// Posts returns the most recent stored posts, newest first
func (s *PrecomputedStrategy) Posts(ctx context.Context, _ PostQuery) ([]PostView, error) {
	stored, err := s.posts.ListRecent(ctx, posts.DefaultListLimit)
	if err != nil {
		return nil, err
	}

	views := make([]PostView, 0, len(stored))
	for i := range stored {
		views = append(views, storedPostView(&stored[i]))
	}
	return views, nil
}

// Stocks returns every stored stock ordered by symbol
func (s *PrecomputedStrategy) Stocks(ctx context.Context) ([]models.Stock, error) {
	return s.stocks.ListAll(ctx)
}

// Comments returns the comment tree of a stored post
func (s *PrecomputedStrategy) Comments(ctx context.Context, postID string) ([]CommentView, error) {
	if _, err := s.posts.Get(ctx, postID); err != nil {
		return nil, err
	}

	comments, err := s.posts.ListComments(ctx, postID)
	if err != nil {
		return nil, err
	}

	return commentViews(posts.BuildCommentTree(comments).Threads()), nil
}

func storedPostView(p *models.Post) PostView {
	return PostView{
		ID:          p.ID,
		Title:       p.Title,
		Selftext:    p.Selftext,
		URL:         p.URL,
		Subreddit:   p.Subreddit,
		Author:      p.Author,
		CreatedUTC:  formatTime(p.CreatedUTC),
		Score:       p.Score,
		NumComments: p.NumComments,
		Sentiment:   p.Sentiment(),
	}
}

func commentViews(threads []posts.CommentThread) []CommentView {
	views := make([]CommentView, 0, len(threads))
	for _, th := range threads {
		c := th.Comment
		views = append(views, CommentView{
			ID:         c.ID,
			Body:       c.Body,
			Author:     c.Author,
			CreatedUTC: formatTime(c.CreatedUTC),
			Score:      c.Score,
			Sentiment:  c.Sentiment(),
			Replies:    commentViews(th.Replies),
		})
	}
	return views
}
