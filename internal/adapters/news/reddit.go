package news

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/market-pulse/internal/adapters/ratelimit"
	"github.com/selivandex/market-pulse/internal/errs"
	"github.com/selivandex/market-pulse/pkg/logger"
	"github.com/selivandex/market-pulse/pkg/metrics"
	"github.com/selivandex/market-pulse/pkg/models"
)

const (
	defaultRedditBaseURL = "https://www.reddit.com"
	defaultUserAgent     = "market-pulse/1.0"
	providerName         = "reddit"
)

// RedditProvider fetches subreddit listings from the public JSON API
type RedditProvider struct {
	client    *http.Client
	limiter   *ratelimit.Limiter
	baseURL   string
	userAgent string
}

// NewRedditProvider creates new Reddit provider
func NewRedditProvider(userAgent string, requestsPerMinute int) *RedditProvider {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &RedditProvider{
		client:    &http.Client{Timeout: 10 * time.Second},
		limiter:   ratelimit.NewLimiter(providerName, requestsPerMinute),
		baseURL:   defaultRedditBaseURL,
		userAgent: userAgent,
	}
}

// WithBaseURL points the provider at another host (tests, proxies)
func (r *RedditProvider) WithBaseURL(baseURL string) *RedditProvider {
	r.baseURL = baseURL
	return r
}

// FetchPosts implements PostFetcher
func (r *RedditProvider) FetchPosts(ctx context.Context, forum, window, order string, limit int) ([]models.PostRecord, error) {
	posts, err := r.fetchSubreddit(ctx, forum, window, order, limit)
	metrics.RecordUpstreamCall(providerName, err)
	if err != nil {
		return nil, errs.Mark(err, errs.ErrUpstreamFetch)
	}

	logger.Debug("fetched Reddit posts",
		zap.String("subreddit", forum),
		zap.String("order", order),
		zap.String("window", window),
		zap.Int("count", len(posts)),
	)

	return posts, nil
}

// fetchSubreddit fetches posts from specific subreddit
func (r *RedditProvider) fetchSubreddit(ctx context.Context, subreddit, window, order string, limit int) ([]models.PostRecord, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("t", window)
	query.Set("limit", fmt.Sprintf("%d", limit))
	endpoint := fmt.Sprintf("%s/r/%s/%s.json?%s",
		r.baseURL, url.PathEscape(subreddit), url.PathEscape(order), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set User-Agent (Reddit requires it)
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(bytes.TrimSpace(body)))
	}

	var result struct {
		Data struct {
			Children []struct {
				Data struct {
					// created_utc is kept raw; the ingest job normalizes it
					CreatedUTC  interface{} `json:"created_utc"`
					ID          string      `json:"id"`
					Title       string      `json:"title"`
					Selftext    string      `json:"selftext"`
					URL         string      `json:"url"`
					Subreddit   string      `json:"subreddit"`
					Author      string      `json:"author"`
					Score       int         `json:"score"`
					NumComments int         `json:"num_comments"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	posts := make([]models.PostRecord, 0, len(result.Data.Children))
	for _, child := range result.Data.Children {
		post := child.Data
		if post.ID == "" {
			continue
		}

		sub := post.Subreddit
		if sub == "" {
			sub = subreddit
		}

		posts = append(posts, models.PostRecord{
			CreatedUTC:  post.CreatedUTC,
			ID:          post.ID,
			Title:       truncate(post.Title, 300),
			Selftext:    post.Selftext,
			URL:         truncate(post.URL, 500),
			Subreddit:   sub,
			Author:      post.Author,
			Score:       post.Score,
			NumComments: post.NumComments,
		})
	}

	return posts, nil
}

// truncate cuts s to at most maxLen runes
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen])
}
