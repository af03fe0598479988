package posts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/selivandex/market-pulse/internal/errs"
	"github.com/selivandex/market-pulse/pkg/models"
)

// DefaultListLimit is the number of posts served by /api/posts
const DefaultListLimit = 25

// maxAncestorDepth bounds the parent walk in UpsertComment
const maxAncestorDepth = 1000

const postColumns = `
	id, title, COALESCE(selftext, '') AS selftext, COALESCE(url, '') AS url,
	subreddit, COALESCE(author, '') AS author, created_utc, score, num_comments,
	sentiment_positive, sentiment_negative, sentiment_neutral, sentiment_compound`

const commentColumns = `
	id, body, COALESCE(author, '') AS author, created_utc, score, post_id, parent_id,
	sentiment_positive, sentiment_negative, sentiment_neutral, sentiment_compound`

// Repository handles post and comment rows. It runs against the pool or,
// after WithTx, against one transaction.
type Repository struct {
	ext sqlx.ExtContext
}

// NewRepository creates new posts repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{ext: db}
}

// WithTx returns a repository bound to tx
func (r *Repository) WithTx(tx *sqlx.Tx) *Repository {
	return &Repository{ext: tx}
}

// Upsert inserts the post or overwrites every column of the existing row
// with the same id.
func (r *Repository) Upsert(ctx context.Context, post *models.Post) error {
	query := `
		INSERT INTO posts (
			id, title, selftext, url, subreddit, author, created_utc, score, num_comments,
			sentiment_positive, sentiment_negative, sentiment_neutral, sentiment_compound
		) VALUES (
			:id, :title, :selftext, :url, :subreddit, :author, :created_utc, :score, :num_comments,
			:sentiment_positive, :sentiment_negative, :sentiment_neutral, :sentiment_compound
		)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			selftext = excluded.selftext,
			url = excluded.url,
			subreddit = excluded.subreddit,
			author = excluded.author,
			created_utc = excluded.created_utc,
			score = excluded.score,
			num_comments = excluded.num_comments,
			sentiment_positive = excluded.sentiment_positive,
			sentiment_negative = excluded.sentiment_negative,
			sentiment_neutral = excluded.sentiment_neutral,
			sentiment_compound = excluded.sentiment_compound
	`

	if _, err := sqlx.NamedExecContext(ctx, r.ext, query, post); err != nil {
		return fmt.Errorf("failed to upsert post %s: %w", post.ID, err)
	}
	return nil
}

// ListRecent returns up to limit posts, newest first; posts without a
// timestamp sort last.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]models.Post, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := r.ext.Rebind(`SELECT ` + postColumns + `
		FROM posts
		ORDER BY created_utc DESC NULLS LAST, id
		LIMIT ?`)

	posts := make([]models.Post, 0, limit)
	if err := sqlx.SelectContext(ctx, r.ext, &posts, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return posts, nil
}

// Get returns a single post by id
func (r *Repository) Get(ctx context.Context, id string) (*models.Post, error) {
	query := r.ext.Rebind(`SELECT ` + postColumns + ` FROM posts WHERE id = ?`)

	var post models.Post
	if err := sqlx.GetContext(ctx, r.ext, &post, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.Wrapf(errs.ErrNotFound, "post %s", id)
		}
		return nil, fmt.Errorf("failed to get post %s: %w", id, err)
	}
	return &post, nil
}

// Exists reports whether a post with id is stored
func (r *Repository) Exists(ctx context.Context, id string) (bool, error) {
	var count int
	query := r.ext.Rebind(`SELECT COUNT(*) FROM posts WHERE id = ?`)
	if err := sqlx.GetContext(ctx, r.ext, &count, query, id); err != nil {
		return false, fmt.Errorf("failed to check post %s: %w", id, err)
	}
	return count > 0, nil
}

// UpsertComment stores a comment by id. The post must exist; a parent, when
// set, must exist and must not have the comment among its ancestors.
func (r *Repository) UpsertComment(ctx context.Context, comment *models.Comment) error {
	ok, err := r.Exists(ctx, comment.PostID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Wrapf(errs.ErrNotFound, "post %s for comment %s", comment.PostID, comment.ID)
	}

	if comment.ParentID != nil {
		if err := r.checkAncestry(ctx, comment.ID, *comment.ParentID); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO comments (
			id, body, author, created_utc, score, post_id, parent_id,
			sentiment_positive, sentiment_negative, sentiment_neutral, sentiment_compound
		) VALUES (
			:id, :body, :author, :created_utc, :score, :post_id, :parent_id,
			:sentiment_positive, :sentiment_negative, :sentiment_neutral, :sentiment_compound
		)
		ON CONFLICT (id) DO UPDATE SET
			body = excluded.body,
			author = excluded.author,
			created_utc = excluded.created_utc,
			score = excluded.score,
			post_id = excluded.post_id,
			parent_id = excluded.parent_id,
			sentiment_positive = excluded.sentiment_positive,
			sentiment_negative = excluded.sentiment_negative,
			sentiment_neutral = excluded.sentiment_neutral,
			sentiment_compound = excluded.sentiment_compound
	`

	if _, err := sqlx.NamedExecContext(ctx, r.ext, query, comment); err != nil {
		return fmt.Errorf("failed to upsert comment %s: %w", comment.ID, err)
	}
	return nil
}

// checkAncestry walks parent links upward from parentID and fails when it
// reaches commentID.
func (r *Repository) checkAncestry(ctx context.Context, commentID, parentID string) error {
	if parentID == commentID {
		return errs.Wrapf(errs.ErrCommentCycle, "comment %s", commentID)
	}

	query := r.ext.Rebind(`SELECT parent_id FROM comments WHERE id = ?`)
	current := parentID
	for depth := 0; depth < maxAncestorDepth; depth++ {
		var next *string
		if err := sqlx.GetContext(ctx, r.ext, &next, query, current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				if current == parentID {
					return errs.Wrapf(errs.ErrNotFound, "parent comment %s", parentID)
				}
				return nil
			}
			return fmt.Errorf("failed to load parent of %s: %w", current, err)
		}

		if next == nil {
			return nil
		}
		if *next == commentID {
			return errs.Wrapf(errs.ErrCommentCycle, "comment %s via %s", commentID, current)
		}
		current = *next
	}

	return errs.Wrapf(errs.ErrCommentCycle, "comment %s ancestry deeper than %d", commentID, maxAncestorDepth)
}

// ListComments returns all comments of a post, oldest first
func (r *Repository) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	query := r.ext.Rebind(`SELECT ` + commentColumns + `
		FROM comments
		WHERE post_id = ?
		ORDER BY created_utc NULLS LAST, id`)

	comments := make([]models.Comment, 0)
	if err := sqlx.SelectContext(ctx, r.ext, &comments, query, postID); err != nil {
		return nil, fmt.Errorf("failed to list comments for %s: %w", postID, err)
	}
	return comments, nil
}
