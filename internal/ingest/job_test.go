package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/selivandex/market-pulse/internal/errs"
	"github.com/selivandex/market-pulse/internal/posts"
	"github.com/selivandex/market-pulse/internal/sentiment"
	"github.com/selivandex/market-pulse/internal/stocks"
	"github.com/selivandex/market-pulse/pkg/models"
	"github.com/selivandex/market-pulse/test/testdb"
)

type mockFetcher struct {
	records []models.PostRecord
	err     error
	limit   int
}

func (m *mockFetcher) FetchPosts(ctx context.Context, forum, window, order string, limit int) ([]models.PostRecord, error) {
	m.limit = limit
	return m.records, m.err
}

type mockMarket struct {
	overviews map[string]*models.StockOverview
	prices    map[string][]models.DailyPrice
	failing   map[string]bool
}

func (m *mockMarket) GetOverview(ctx context.Context, symbol string) (*models.StockOverview, error) {
	if m.failing[symbol] {
		return nil, errs.Mark(errors.New("rate limited"), errs.ErrUpstreamFetch)
	}
	if o, ok := m.overviews[symbol]; ok {
		return o, nil
	}
	return &models.StockOverview{Symbol: symbol}, nil
}

func (m *mockMarket) GetDailyPrices(ctx context.Context, symbol string, days int) ([]models.DailyPrice, error) {
	return m.prices[symbol], nil
}

type mockHistory struct {
	values map[string][]models.HistoricalSentiment
}

func (m *mockHistory) History(ctx context.Context, symbol string, days int) ([]models.HistoricalSentiment, error) {
	return m.values[symbol], nil
}

type mockScorer struct {
	fail map[string]bool
}

func (m *mockScorer) Score(ctx context.Context, text string) (models.SentimentScores, error) {
	if m.fail[text] {
		return models.SentimentScores{}, errs.ErrScoring
	}
	return models.SentimentScores{Positive: 0.5, Neutral: 0.5, Compound: 0.3}, nil
}

type mockNotifier struct {
	mu    sync.Mutex
	calls []error
}

func (m *mockNotifier) NotifyFailure(ctx context.Context, runID string, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, err)
	return nil
}

type mockArchiver struct {
	prices []models.DailyPrice
	runID  string
}

func (m *mockArchiver) SaveDailyPrices(ctx context.Context, runID string, prices []models.DailyPrice) error {
	m.runID = runID
	m.prices = append(m.prices, prices...)
	return nil
}

type heldLock struct{}

func (heldLock) TryAcquire(ctx context.Context) (bool, error) { return false, nil }
func (heldLock) Release(ctx context.Context) error            { return nil }
func (heldLock) Name() string                                 { return "held" }

func threePosts() []models.PostRecord {
	return []models.PostRecord{
		{ID: "p1", Title: "$AAPL to the moon", Selftext: "calls", Subreddit: "wallstreetbets", CreatedUTC: float64(1709296200)},
		{ID: "p2", Title: "TSLA earnings", CreatedUTC: "1709299800"},
		{ID: "p3", Title: "no timestamp", CreatedUTC: "garbage"},
	}
}

func newMarket() *mockMarket {
	return &mockMarket{
		overviews: map[string]*models.StockOverview{
			"AAPL": {Symbol: "AAPL", Name: "Apple Inc", Sector: "TECHNOLOGY"},
		},
		prices: map[string][]models.DailyPrice{
			"AAPL": {{Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Close: models.NewDecimal(179.66)}},
		},
	}
}

func testConfig(symbols ...string) Config {
	return Config{Symbols: symbols, Timeout: time.Minute}
}

func TestJob_StoresPostsAndStocks(t *testing.T) {
	db := testdb.Setup(t)
	archive := &mockArchiver{}
	history := &mockHistory{values: map[string][]models.HistoricalSentiment{
		"AAPL": {{SentimentAvg: 0.2}, {SentimentAvg: 0.4}},
	}}

	fetcher := &mockFetcher{records: threePosts()}
	job := NewJob(testConfig("AAPL", "SPY"), db, fetcher, newMarket(), &mockScorer{}, history,
		WithArchive(archive),
	)

	result, err := job.Execute(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if fetcher.limit != 25 {
		t.Errorf("Expected default limit 25, got %d", fetcher.limit)
	}
	if result.PostsStored != 3 || result.StocksStored != 2 || result.Skipped != 0 {
		t.Errorf("Unexpected result: %+v", result)
	}
	if count := testdb.Count(t, db, "posts"); count != 3 {
		t.Errorf("Expected 3 posts, got %d", count)
	}

	repo := posts.NewRepository(db.DB())
	p3, err := repo.Get(context.Background(), "p3")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if p3.CreatedUTC != nil {
		t.Errorf("Expected NULL timestamp for garbage input, got %v", p3.CreatedUTC)
	}
	if p3.SentimentCompound != 0.3 {
		t.Errorf("Expected scored post, got compound %f", p3.SentimentCompound)
	}

	all, err := stocks.NewRepository(db.DB()).ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 stocks, got %d", len(all))
	}

	aapl, spy := all[0], all[1]
	if aapl.Name != "Apple Inc" || aapl.Price == nil || *aapl.Price != 179.66 {
		t.Errorf("Unexpected AAPL row: %+v", aapl)
	}
	if diff := aapl.Sentiment - 0.3; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Expected mean history sentiment 0.3, got %f", aapl.Sentiment)
	}
	if spy.Name != "SPY Inc." || spy.Sector != "Technology" || spy.Price != nil || spy.Sentiment != 0 {
		t.Errorf("Expected defaults for SPY, got %+v", spy)
	}

	if len(archive.prices) != 1 || archive.prices[0].Symbol != "AAPL" {
		t.Errorf("Expected AAPL price archived, got %+v", archive.prices)
	}
	if archive.runID != result.RunID.String() {
		t.Errorf("Expected archive run id %s, got %s", result.RunID, archive.runID)
	}
}

func TestJob_IsIdempotent(t *testing.T) {
	db := testdb.Setup(t)
	job := NewJob(testConfig("AAPL"), db, &mockFetcher{records: threePosts()}, newMarket(), &mockScorer{}, &mockHistory{})

	for i := 0; i < 2; i++ {
		if _, err := job.Execute(context.Background()); err != nil {
			t.Fatalf("Run #%d failed: %v", i+1, err)
		}
	}

	if count := testdb.Count(t, db, "posts"); count != 3 {
		t.Errorf("Expected 3 posts after two runs, got %d", count)
	}
	if count := testdb.Count(t, db, "stocks"); count != 1 {
		t.Errorf("Expected 1 stock after two runs, got %d", count)
	}
}

func TestJob_PreCommitFailureRollsBack(t *testing.T) {
	db := testdb.Setup(t)
	notifier := &mockNotifier{}

	failing := func(ctx context.Context, tx *sqlx.Tx, posts []models.Post) error {
		if len(posts) != 3 {
			t.Errorf("Expected 3 posts in pre-commit step, got %d", len(posts))
		}
		return errors.New("aggregation failed")
	}

	job := NewJob(testConfig("AAPL"), db, &mockFetcher{records: threePosts()}, newMarket(), &mockScorer{}, &mockHistory{},
		WithPreCommit(failing),
		WithNotifier(notifier),
	)

	_, err := job.Execute(context.Background())
	if !errors.Is(err, errs.ErrStorageCommit) {
		t.Fatalf("Expected ErrStorageCommit, got %v", err)
	}

	for _, table := range []string{"posts", "stocks", "sentiment_data"} {
		if count := testdb.Count(t, db, table); count != 0 {
			t.Errorf("Expected no %s after rollback, got %d", table, count)
		}
	}

	if len(notifier.calls) != 1 || !errors.Is(notifier.calls[0], errs.ErrStorageCommit) {
		t.Errorf("Expected one failure notification, got %v", notifier.calls)
	}
}

func TestJob_SkipsFailedRecords(t *testing.T) {
	db := testdb.Setup(t)
	market := newMarket()
	market.failing = map[string]bool{"TSLA": true}
	scorer := &mockScorer{fail: map[string]bool{"TSLA earnings ": true}}

	job := NewJob(testConfig("AAPL", "TSLA"), db, &mockFetcher{records: threePosts()}, market, scorer, &mockHistory{})

	result, err := job.Execute(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.PostsStored != 2 || result.StocksStored != 1 || result.Skipped != 2 {
		t.Errorf("Unexpected result: %+v", result)
	}
	if count := testdb.Count(t, db, "stocks"); count != 1 {
		t.Errorf("Expected only AAPL stored, got %d stocks", count)
	}
}

func TestJob_FailedListingStillStoresStocks(t *testing.T) {
	db := testdb.Setup(t)
	fetcher := &mockFetcher{err: errs.ErrUpstreamFetch}

	job := NewJob(testConfig("AAPL"), db, fetcher, newMarket(), &mockScorer{}, &mockHistory{})

	result, err := job.Execute(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.PostsStored != 0 || result.StocksStored != 1 {
		t.Errorf("Unexpected result: %+v", result)
	}
}

func TestJob_AggregationStep(t *testing.T) {
	db := testdb.Setup(t)
	agg := sentiment.NewAggregator(sentiment.NewRepository(db.DB()), []string{"AAPL", "TSLA"})

	job := NewJob(testConfig("AAPL"), db, &mockFetcher{records: threePosts()}, newMarket(), &mockScorer{}, &mockHistory{},
		WithPreCommit(agg.Aggregate),
	)

	for i := 0; i < 2; i++ {
		if _, err := job.Execute(context.Background()); err != nil {
			t.Fatalf("Run #%d failed: %v", i+1, err)
		}
	}

	// one row per mentioned symbol and day, unchanged by the re-run
	if count := testdb.Count(t, db, "sentiment_data"); count != 2 {
		t.Errorf("Expected 2 sentiment rows, got %d", count)
	}
}

func TestJob_ContendedLock(t *testing.T) {
	db := testdb.Setup(t)
	fetcher := &mockFetcher{records: threePosts()}

	job := NewJob(testConfig("AAPL"), db, fetcher, newMarket(), &mockScorer{}, &mockHistory{},
		WithLock(heldLock{}),
	)

	if _, err := job.Execute(context.Background()); !errors.Is(err, errs.ErrJobRunning) {
		t.Fatalf("Expected ErrJobRunning, got %v", err)
	}
	if fetcher.limit != 0 {
		t.Error("Fetcher should not be called when the lock is held")
	}
	if err := job.Run(context.Background()); err != nil {
		t.Errorf("Scheduled run should treat a held lock as a skip, got %v", err)
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	tests := []struct {
		limit    int
		expected int
	}{
		{0, 25},
		{10, 25},
		{30, 30},
		{100, 50},
	}

	for _, tt := range tests {
		cfg := Config{Limit: tt.limit}.withDefaults()
		if cfg.Limit != tt.expected {
			t.Errorf("Limit %d: expected %d, got %d", tt.limit, tt.expected, cfg.Limit)
		}
		if cfg.Forum != "wallstreetbets" || cfg.Window != "day" || cfg.Order != "hot" || cfg.HistoryDays != 7 {
			t.Errorf("Unexpected defaults: %+v", cfg)
		}
	}
}
