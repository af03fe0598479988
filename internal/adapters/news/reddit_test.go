package news

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/selivandex/market-pulse/internal/errs"
)

const listing = `{
	"data": {
		"children": [
			{"data": {"id": "abc1", "title": "AAPL to the moon", "selftext": "calls", "url": "https://reddit.com/abc1",
				"subreddit": "wallstreetbets", "author": "u1", "created_utc": 1709251200.0, "score": 42, "num_comments": 7}},
			{"data": {"id": "abc2", "title": "TSLA crash", "selftext": "", "url": "https://reddit.com/abc2",
				"subreddit": "wallstreetbets", "author": "u2", "created_utc": 1709254800, "score": 3, "num_comments": 0}},
			{"data": {"id": "", "title": "no id"}}
		]
	}
}`

func TestRedditProvider_FetchPosts(t *testing.T) {
	var gotPath, gotQuery, gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(listing))
	}))
	defer server.Close()

	provider := NewRedditProvider("pulse-test/0.1", 0).WithBaseURL(server.URL)

	posts, err := provider.FetchPosts(context.Background(), "wallstreetbets", "day", "hot", 25)
	if err != nil {
		t.Fatalf("FetchPosts failed: %v", err)
	}

	if gotPath != "/r/wallstreetbets/hot.json" {
		t.Errorf("Unexpected path %s", gotPath)
	}
	if !strings.Contains(gotQuery, "t=day") || !strings.Contains(gotQuery, "limit=25") {
		t.Errorf("Unexpected query %s", gotQuery)
	}
	if gotUA != "pulse-test/0.1" {
		t.Errorf("Expected user agent to be set, got %q", gotUA)
	}

	if len(posts) != 2 {
		t.Fatalf("Expected 2 posts, got %d", len(posts))
	}
	if posts[0].ID != "abc1" || posts[0].Score != 42 || posts[0].NumComments != 7 {
		t.Errorf("Unexpected first post %+v", posts[0])
	}
	if n, ok := posts[0].CreatedUTC.(json.Number); !ok || n.String() != "1709251200.0" {
		t.Errorf("Expected raw json.Number timestamp, got %#v", posts[0].CreatedUTC)
	}
	if posts[1].Selftext != "" {
		t.Errorf("Expected empty selftext, got %q", posts[1].Selftext)
	}
}

func TestRedditProvider_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer server.Close()

	provider := NewRedditProvider("", 0).WithBaseURL(server.URL)

	_, err := provider.FetchPosts(context.Background(), "stocks", "day", "hot", 25)
	if !errors.Is(err, errs.ErrUpstreamFetch) {
		t.Fatalf("Expected ErrUpstreamFetch, got %v", err)
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("Expected status in error, got %v", err)
	}
}

func TestRedditProvider_BadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer server.Close()

	_, err := NewRedditProvider("", 0).WithBaseURL(server.URL).
		FetchPosts(context.Background(), "stocks", "day", "hot", 25)
	if !errors.Is(err, errs.ErrUpstreamFetch) {
		t.Errorf("Expected ErrUpstreamFetch, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo", 2); got != "hé" {
		t.Errorf("Expected rune-safe truncate, got %q", got)
	}
	if got := truncate("ok", 10); got != "ok" {
		t.Errorf("Expected unchanged string, got %q", got)
	}
}
