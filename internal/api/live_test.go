package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/selivandex/market-pulse/internal/adapters/price"
	"github.com/selivandex/market-pulse/internal/errs"
	"github.com/selivandex/market-pulse/internal/health"
	"github.com/selivandex/market-pulse/internal/stocks"
	"github.com/selivandex/market-pulse/pkg/models"
	"github.com/selivandex/market-pulse/test/testdb"
)

type fakeFetcher struct {
	records []models.PostRecord
	err     error
	block   bool
	forum   string
	order   string
}

func (f *fakeFetcher) FetchPosts(ctx context.Context, forum, window, order string, limit int) ([]models.PostRecord, error) {
	f.forum, f.order = forum, order
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.records, f.err
}

type fakeMarket struct {
	failing  map[string]bool
	noPrice  map[string]bool
	calls    int32
	inFlight int32
	maxSeen  int32
}

func (m *fakeMarket) GetOverview(ctx context.Context, symbol string) (*models.StockOverview, error) {
	atomic.AddInt32(&m.calls, 1)
	n := atomic.AddInt32(&m.inFlight, 1)
	defer atomic.AddInt32(&m.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&m.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&m.maxSeen, seen, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	if m.failing[symbol] {
		return nil, errs.ErrUpstreamFetch
	}
	return &models.StockOverview{Symbol: symbol, Name: symbol + " Corp"}, nil
}

func (m *fakeMarket) GetDailyPrices(ctx context.Context, symbol string, days int) ([]models.DailyPrice, error) {
	if m.noPrice[symbol] {
		return []models.DailyPrice{}, nil
	}
	return []models.DailyPrice{{Date: time.Now().UTC(), Close: models.NewDecimal(100)}}, nil
}

type fixedScorer struct{}

func (fixedScorer) Score(ctx context.Context, text string) (models.SentimentScores, error) {
	return models.SentimentScores{Positive: 0.3, Neutral: 0.7, Compound: 0.4}, nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *memCache) Lookup(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Store(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func floatPtr(f float64) *float64 { return &f }

var tenSymbols = []string{"AAPL", "MSFT", "GOOG", "AMZN", "TSLA", "META", "NVDA", "SPY", "QQQ", "AMD"}

func newLiveHandler(fetcher *fakeFetcher, market *fakeMarket, cfg LiveConfig, opts ...LiveOption) http.Handler {
	strategy := NewLiveStrategy(cfg, fetcher, market, fixedScorer{}, opts...)
	return NewServer("0", strategy, health.NewChecker()).Routes()
}

func TestLive_Stocks(t *testing.T) {
	market := &fakeMarket{
		failing: map[string]bool{"TSLA": true},
		noPrice: map[string]bool{"SPY": true},
	}
	h := newLiveHandler(&fakeFetcher{}, market, LiveConfig{Symbols: tenSymbols, Concurrency: 3})

	rec := get(t, h, "/api/stocks")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var got []models.Stock
	decode(t, rec, &got)

	if len(got) != 9 {
		t.Fatalf("Expected 9 stocks with TSLA omitted, got %d", len(got))
	}
	for i, s := range got {
		if s.Symbol == "TSLA" {
			t.Error("Failing symbol should be omitted")
		}
		if s.Symbol == "SPY" && s.Price != nil {
			t.Errorf("Expected null price for SPY, got %f", *s.Price)
		}
		if s.Symbol != "SPY" && (s.Price == nil || *s.Price != 100) {
			t.Errorf("Expected price 100 for %s, got %v", s.Symbol, s.Price)
		}
		// symbol order is preserved
		if i == 0 && s.Symbol != "AAPL" {
			t.Errorf("Expected AAPL first, got %s", s.Symbol)
		}
	}

	if peak := atomic.LoadInt32(&market.maxSeen); peak > 3 {
		t.Errorf("Expected at most 3 concurrent fetches, saw %d", peak)
	}
}

func TestLive_StocksAllSymbolsWithOneMissingPrice(t *testing.T) {
	market := &fakeMarket{noPrice: map[string]bool{"QQQ": true}}
	h := newLiveHandler(&fakeFetcher{}, market, LiveConfig{Symbols: tenSymbols})

	rec := get(t, h, "/api/stocks")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var got []models.Stock
	decode(t, rec, &got)
	if len(got) != 10 {
		t.Fatalf("Expected 10 stocks, got %d", len(got))
	}

	nullPrices := 0
	for i, s := range got {
		if s.Symbol != tenSymbols[i] {
			t.Errorf("Expected %s at %d, got %s", tenSymbols[i], i, s.Symbol)
		}
		if s.Price == nil {
			nullPrices++
			if s.Symbol != "QQQ" {
				t.Errorf("Unexpected null price for %s", s.Symbol)
			}
		}
	}
	if nullPrices != 1 {
		t.Errorf("Expected exactly one null price, got %d", nullPrices)
	}
}

func TestLive_StocksAllSymbolsFailed(t *testing.T) {
	failing := make(map[string]bool)
	for _, s := range tenSymbols {
		failing[s] = true
	}
	h := newLiveHandler(&fakeFetcher{}, &fakeMarket{failing: failing}, LiveConfig{Symbols: tenSymbols})

	rec := get(t, h, "/api/stocks")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502 when every symbol fails, got %d", rec.Code)
	}

	var body errorResponse
	decode(t, rec, &body)
	if body.Error == "" {
		t.Error("Expected error message")
	}
}

// newAlphaVantage serves every symbol at the default free-tier budget
func newAlphaVantage(t *testing.T) *price.AlphaVantageProvider {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch q.Get("function") {
		case "OVERVIEW":
			_, _ = w.Write([]byte(`{"Symbol": "` + q.Get("symbol") + `", "Name": "Live ` + q.Get("symbol") + `", "Sector": "TECHNOLOGY"}`))
		default:
			_, _ = w.Write([]byte(`{"Time Series (Daily)": {"2024-03-01": {"1. open": "10", "2. high": "11", "3. low": "9", "4. close": "10.5", "5. volume": "100"}}}`))
		}
	}))
	t.Cleanup(server.Close)

	return price.NewAlphaVantageProvider("k", 5).WithBaseURL(server.URL)
}

func TestLive_StocksRateBudgetServesStoredRows(t *testing.T) {
	db := testdb.Setup(t)
	repo := stocks.NewRepository(db.DB())
	ctx := context.Background()

	for _, symbol := range tenSymbols {
		row := models.Stock{Symbol: symbol, Name: symbol + " Stored", Price: floatPtr(50), Sector: "Technology", Sentiment: 0.1}
		if err := repo.Upsert(ctx, &row); err != nil {
			t.Fatalf("Upsert %s failed: %v", symbol, err)
		}
	}

	strategy := NewLiveStrategy(LiveConfig{Symbols: tenSymbols, Concurrency: 4, Timeout: 2 * time.Second},
		&fakeFetcher{}, newAlphaVantage(t), fixedScorer{}, WithStoredStocks(repo))

	start := time.Now()
	got, err := strategy.Stocks(ctx)
	if err != nil {
		t.Fatalf("Stocks failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Expected the limiter to fail fast, took %v", elapsed)
	}
	if len(got) != 10 {
		t.Fatalf("Expected 10 stocks, got %d", len(got))
	}
	for i, s := range got {
		if s.Symbol != tenSymbols[i] {
			t.Errorf("Expected %s at %d, got %s", tenSymbols[i], i, s.Symbol)
		}
	}
}

func TestLive_StocksRateBudgetWithoutStoredRows(t *testing.T) {
	strategy := NewLiveStrategy(LiveConfig{Symbols: tenSymbols, Concurrency: 4, Timeout: 2 * time.Second},
		&fakeFetcher{}, newAlphaVantage(t), fixedScorer{})
	h := NewServer("0", strategy, health.NewChecker()).Routes()

	rec := get(t, h, "/api/stocks")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502 instead of an empty list, got %d", rec.Code)
	}
}

func TestLive_StocksUsesCache(t *testing.T) {
	market := &fakeMarket{}
	cache := &memCache{data: make(map[string][]byte)}
	h := newLiveHandler(&fakeFetcher{}, market, LiveConfig{Symbols: []string{"AAPL", "MSFT"}, CacheTTL: time.Minute}, WithCache(cache))

	get(t, h, "/api/stocks")
	rec := get(t, h, "/api/stocks")

	var got []models.Stock
	decode(t, rec, &got)
	if len(got) != 2 || got[0].Name != "AAPL Corp" {
		t.Errorf("Unexpected cached response: %+v", got)
	}
	if calls := atomic.LoadInt32(&market.calls); calls != 2 {
		t.Errorf("Expected 2 upstream calls with cache, got %d", calls)
	}
}

func TestLive_Posts(t *testing.T) {
	fetcher := &fakeFetcher{records: []models.PostRecord{
		{ID: "x1", Title: "calls on NVDA", CreatedUTC: float64(1709296200)},
		{ID: "x2", Title: "no time", CreatedUTC: "soon"},
	}}
	h := newLiveHandler(fetcher, &fakeMarket{}, LiveConfig{})

	rec := get(t, h, "/api/posts?subreddit=stocks&sort_by=new")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if fetcher.forum != "stocks" || fetcher.order != "new" {
		t.Errorf("Expected query parameters forwarded, got forum=%s order=%s", fetcher.forum, fetcher.order)
	}

	var got []PostView
	decode(t, rec, &got)
	if len(got) != 2 {
		t.Fatalf("Expected 2 posts, got %d", len(got))
	}
	if got[0].ID != "" {
		t.Errorf("Live posts carry no id, got %q", got[0].ID)
	}
	if got[0].CreatedUTC == nil || *got[0].CreatedUTC != "2024-03-01T12:30:00Z" {
		t.Errorf("Unexpected timestamp %v", got[0].CreatedUTC)
	}
	if got[1].CreatedUTC != nil {
		t.Errorf("Expected null timestamp, got %v", *got[1].CreatedUTC)
	}
	if got[0].Sentiment.Compound != 0.4 {
		t.Errorf("Expected inline score, got %+v", got[0].Sentiment)
	}
}

func TestLive_PostsUpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		fetcher    *fakeFetcher
		expectCode int
	}{
		{"upstream failure", &fakeFetcher{err: errors.New("503 from reddit")}, http.StatusBadGateway},
		{"deadline exceeded", &fakeFetcher{block: true}, http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newLiveHandler(tt.fetcher, &fakeMarket{}, LiveConfig{Timeout: 20 * time.Millisecond})

			rec := get(t, h, "/api/posts")
			if rec.Code != tt.expectCode {
				t.Errorf("Expected %d, got %d", tt.expectCode, rec.Code)
			}

			var body errorResponse
			decode(t, rec, &body)
			if body.Error == "" {
				t.Error("Expected error message")
			}
		})
	}
}

func TestLive_CommentsNotAvailable(t *testing.T) {
	h := newLiveHandler(&fakeFetcher{}, &fakeMarket{}, LiveConfig{})

	if rec := get(t, h, "/api/posts/abc/comments"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 in live mode, got %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errs.Mark(errors.New("x"), errs.ErrUpstreamFetch), http.StatusBadGateway},
		{errs.Wrap(errs.ErrNotFound, "post"), http.StatusNotFound},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.expected {
			t.Errorf("statusFor(%v) = %d, expected %d", tt.err, got, tt.expected)
		}
	}
}
