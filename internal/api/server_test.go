package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/selivandex/market-pulse/internal/health"
	"github.com/selivandex/market-pulse/internal/posts"
	"github.com/selivandex/market-pulse/internal/stocks"
	"github.com/selivandex/market-pulse/pkg/models"
	"github.com/selivandex/market-pulse/test/testdb"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func newPrecomputedServer(t *testing.T) (http.Handler, *posts.Repository, *stocks.Repository) {
	t.Helper()

	db := testdb.Setup(t)
	srv := NewServer("0", NewPrecomputedStrategy(db.DB()), health.NewChecker())
	return srv.Routes(), posts.NewRepository(db.DB()), stocks.NewRepository(db.DB())
}

func TestServer_Index(t *testing.T) {
	h, _, _ := newPrecomputedServer(t)

	rec := get(t, h, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var body map[string]string
	decode(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body)
	}
}

func TestPrecomputed_Posts(t *testing.T) {
	h, repo, _ := newPrecomputedServer(t)
	ctx := context.Background()

	scores := models.SentimentScores{Positive: 0.512, Negative: 0.088, Neutral: 0.4, Compound: 0.6249}

	untimed := &models.Post{ID: "untimed", Title: "no time"}
	if err := repo.Upsert(ctx, untimed); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	for i := 0; i < 30; i++ {
		created := time.Date(2024, 3, 1, 9, i, 0, 0, time.UTC)
		p := &models.Post{ID: fmt.Sprintf("p%02d", i), Title: "post", CreatedUTC: &created}
		p.SetSentiment(scores)
		if err := repo.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	rec := get(t, h, "/api/posts")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var got []PostView
	decode(t, rec, &got)

	if len(got) != 25 {
		t.Fatalf("Expected 25 posts, got %d", len(got))
	}
	first := got[0]
	if first.ID != "p29" {
		t.Errorf("Expected newest post first, got %s", first.ID)
	}
	if first.CreatedUTC == nil || *first.CreatedUTC != "2024-03-01T09:29:00Z" {
		t.Errorf("Expected ISO timestamp, got %v", first.CreatedUTC)
	}
	if first.Sentiment != scores {
		t.Errorf("Expected sentiment %+v, got %+v", scores, first.Sentiment)
	}
}

func TestPrecomputed_NullTimestampIsJSONNull(t *testing.T) {
	h, repo, _ := newPrecomputedServer(t)

	if err := repo.Upsert(context.Background(), &models.Post{ID: "untimed", Title: "x"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	rec := get(t, h, "/api/posts")

	var raw []map[string]interface{}
	decode(t, rec, &raw)
	if len(raw) != 1 {
		t.Fatalf("Expected 1 post, got %d", len(raw))
	}
	v, ok := raw[0]["created_utc"]
	if !ok || v != nil {
		t.Errorf("Expected created_utc null, got %v (present=%v)", v, ok)
	}
	if _, ok := raw[0]["sentiment"].(map[string]interface{}); !ok {
		t.Errorf("Expected nested sentiment object, got %v", raw[0]["sentiment"])
	}
}

func TestPrecomputed_EmptyStoreReturnsEmptyArrays(t *testing.T) {
	h, _, _ := newPrecomputedServer(t)

	for _, path := range []string{"/api/posts", "/api/stocks"} {
		rec := get(t, h, path)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
		if body := rec.Body.String(); body != "[]\n" {
			t.Errorf("%s: expected empty array, got %q", path, body)
		}
	}
}

func TestPrecomputed_Stocks(t *testing.T) {
	h, _, repo := newPrecomputedServer(t)
	price := 412.5

	for _, s := range []models.Stock{
		{Symbol: "TSLA", Name: "Tesla", Sector: "Consumer", Sentiment: -0.1},
		{Symbol: "MSFT", Name: "Microsoft", Sector: "Technology", Price: &price, Sentiment: 0.2},
	} {
		s := s
		if err := repo.Upsert(context.Background(), &s); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	var got []models.Stock
	decode(t, get(t, h, "/api/stocks"), &got)

	if len(got) != 2 || got[0].Symbol != "MSFT" || got[1].Symbol != "TSLA" {
		t.Fatalf("Expected stocks ordered by symbol, got %+v", got)
	}
	if got[0].Price == nil || *got[0].Price != price {
		t.Errorf("Expected MSFT price %f, got %v", price, got[0].Price)
	}
	if got[1].Price != nil {
		t.Errorf("Expected TSLA price null, got %v", *got[1].Price)
	}
}

func strPtr(s string) *string { return &s }

func TestPrecomputed_Comments(t *testing.T) {
	h, repo, _ := newPrecomputedServer(t)
	ctx := context.Background()

	if err := repo.Upsert(ctx, &models.Post{ID: "post1", Title: "x"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	for _, c := range []models.Comment{
		{ID: "c1", PostID: "post1", Body: "root"},
		{ID: "c2", PostID: "post1", Body: "reply", ParentID: strPtr("c1")},
	} {
		c := c
		if err := repo.UpsertComment(ctx, &c); err != nil {
			t.Fatalf("UpsertComment failed: %v", err)
		}
	}

	var got []CommentView
	decode(t, get(t, h, "/api/posts/post1/comments"), &got)

	if len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("Expected one root comment, got %+v", got)
	}
	if len(got[0].Replies) != 1 || got[0].Replies[0].ID != "c2" {
		t.Errorf("Expected c2 nested under c1, got %+v", got[0].Replies)
	}

	if rec := get(t, h, "/api/posts/missing/comments"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown post, got %d", rec.Code)
	}
}

func TestServer_HealthRoutes(t *testing.T) {
	h, _, _ := newPrecomputedServer(t)

	if rec := get(t, h, "/health"); rec.Code != http.StatusOK {
		t.Errorf("Expected /health 200, got %d", rec.Code)
	}
	// not marked ready yet
	if rec := get(t, h, "/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected /ready 503, got %d", rec.Code)
	}
	if rec := get(t, h, "/metrics"); rec.Code != http.StatusOK {
		t.Errorf("Expected /metrics 200, got %d", rec.Code)
	}
}

func TestServer_CORS(t *testing.T) {
	h, _, _ := newPrecomputedServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected CORS header *, got %q", got)
	}
}
